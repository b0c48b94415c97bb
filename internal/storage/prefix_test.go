package storage

import (
	"errors"
	"fmt"
	"testing"
)

func TestPrefixDB_GetPutDelete(t *testing.T) {
	db := NewPrefixDB(NewMemory(), []byte("chain/"))

	if err := db.Put([]byte("s/tip"), []byte("abc")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := db.Get([]byte("s/tip"))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != "abc" {
		t.Fatalf("Get = %q, want %q", got, "abc")
	}

	if ok, _ := db.Has([]byte("s/tip")); !ok {
		t.Fatal("Has = false, want true")
	}
	if err := db.Delete([]byte("s/tip")); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := db.Get([]byte("s/tip")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get after delete = %v, want ErrNotFound", err)
	}
}

func TestPrefixDB_Isolation(t *testing.T) {
	inner := NewMemory()
	blocks := NewPrefixDB(inner, []byte("chain/"))
	balances := NewPrefixDB(inner, []byte("utxo/"))

	blocks.Put([]byte("key"), []byte("block"))
	balances.Put([]byte("key"), []byte("balance"))

	got, _ := blocks.Get([]byte("key"))
	if string(got) != "block" {
		t.Fatalf("blocks.Get = %q, want block", got)
	}
	got, _ = balances.Get([]byte("key"))
	if string(got) != "balance" {
		t.Fatalf("balances.Get = %q, want balance", got)
	}

	raw, err := inner.Get([]byte("utxo/key"))
	if err != nil || string(raw) != "balance" {
		t.Fatalf("inner.Get(utxo/key) = %q, %v", raw, err)
	}
	if ok, _ := blocks.Has([]byte("utxo/key")); ok {
		t.Fatal("namespaces should not see each other's raw keys")
	}
}

func TestPrefixDB_ForEachStripsPrefix(t *testing.T) {
	db := NewPrefixDB(NewMemory(), []byte("utxo/"))
	db.Put([]byte("u/h1/alice"), []byte("1"))
	db.Put([]byte("u/h1/bob"), []byte("2"))
	db.Put([]byte("u/h2/carol"), []byte("3"))

	var keys []string
	err := db.ForEach([]byte("u/h1/"), func(key, value []byte) error {
		keys = append(keys, string(key))
		return nil
	})
	if err != nil {
		t.Fatalf("ForEach: %v", err)
	}
	if len(keys) != 2 || keys[0] != "u/h1/alice" || keys[1] != "u/h1/bob" {
		t.Fatalf("ForEach keys = %v, want [u/h1/alice u/h1/bob]", keys)
	}
}

func TestPrefixDB_ForEachStopEarly(t *testing.T) {
	db := NewPrefixDB(NewMemory(), []byte("p/"))
	for i := 0; i < 10; i++ {
		db.Put([]byte(fmt.Sprintf("k%d", i)), []byte("v"))
	}

	count := 0
	stopErr := errors.New("stop")
	err := db.ForEach(nil, func(key, value []byte) error {
		count++
		if count >= 3 {
			return stopErr
		}
		return nil
	})
	if !errors.Is(err, stopErr) {
		t.Fatalf("ForEach err = %v, want stopErr", err)
	}
	if count != 3 {
		t.Fatalf("ForEach called %d times, want 3", count)
	}
}

func TestPrefixDB_DeleteAll(t *testing.T) {
	inner := NewMemory()
	a := NewPrefixDB(inner, []byte("a/"))
	b := NewPrefixDB(inner, []byte("b/"))

	a.Put([]byte("k1"), []byte("v1"))
	a.Put([]byte("k2"), []byte("v2"))
	b.Put([]byte("k1"), []byte("other"))

	if err := a.DeleteAll(); err != nil {
		t.Fatalf("DeleteAll: %v", err)
	}
	for _, k := range []string{"k1", "k2"} {
		if ok, _ := a.Has([]byte(k)); ok {
			t.Fatalf("a still has %q after DeleteAll", k)
		}
	}
	got, err := b.Get([]byte("k1"))
	if err != nil || string(got) != "other" {
		t.Fatalf("b.Get after a.DeleteAll = %q, %v", got, err)
	}

	if err := NewPrefixDB(inner, []byte("empty/")).DeleteAll(); err != nil {
		t.Fatalf("DeleteAll on empty namespace: %v", err)
	}
}

func TestPrefixDB_Batch(t *testing.T) {
	inner := NewMemory()
	db := NewPrefixDB(inner, []byte("chain/"))

	batch := db.NewBatch()
	batch.Put([]byte("b/1"), []byte("blk"))
	batch.Put([]byte("s/tip"), []byte("1"))
	if err := batch.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	for _, k := range []string{"chain/b/1", "chain/s/tip"} {
		if ok, _ := inner.Has([]byte(k)); !ok {
			t.Errorf("inner missing %s after batch commit", k)
		}
	}
}

func TestPrefixDB_CloseIsNoop(t *testing.T) {
	inner := NewMemory()
	db := NewPrefixDB(inner, []byte("x/"))
	db.Put([]byte("key"), []byte("val"))

	if err := db.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	got, err := inner.Get([]byte("x/key"))
	if err != nil || string(got) != "val" {
		t.Fatalf("inner.Get after Close = %q, %v", got, err)
	}
}
