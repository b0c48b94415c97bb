package chain

import (
	"bytes"
	"errors"
	"testing"

	"github.com/Klingon-tech/klingnet-ledger/internal/storage"
	"github.com/Klingon-tech/klingnet-ledger/pkg/types"
)

func TestBlockStore_PutGetBlock(t *testing.T) {
	for _, maxCost := range []int64{0, DefaultCacheMaxCost} {
		bs, err := NewBlockStore(storage.NewMemory(), maxCost)
		if err != nil {
			t.Fatalf("NewBlockStore: %v", err)
		}
		defer bs.Close()

		g := genesis(t)
		hash, err := bs.PutBlock(g)
		if err != nil {
			t.Fatalf("PutBlock: %v", err)
		}
		if hash != g.Hash(true) {
			t.Fatal("PutBlock should return the block hash")
		}

		raw, err := bs.GetRaw(hash)
		if err != nil {
			t.Fatalf("GetRaw: %v", err)
		}
		if !bytes.Equal(raw, g.Serialize(true)) {
			t.Error("stored bytes should be the canonical encoding")
		}

		got, err := bs.GetBlock(hash)
		if err != nil {
			t.Fatalf("GetBlock: %v", err)
		}
		if got.Hash(true) != hash {
			t.Error("decoded block hash mismatch")
		}

		if ok, _ := bs.HasBlock(hash); !ok {
			t.Error("HasBlock = false after PutBlock")
		}
		tip, ok, err := bs.GetTip()
		if err != nil || !ok || tip != hash {
			t.Errorf("GetTip = %s, %v, %v", tip, ok, err)
		}
		at, err := bs.HashAt(1)
		if err != nil || at != hash {
			t.Errorf("HashAt(1) = %s, %v", at, err)
		}
	}
}

func TestBlockStore_Empty(t *testing.T) {
	bs, err := NewBlockStore(storage.NewMemory(), 0)
	if err != nil {
		t.Fatal(err)
	}

	if _, ok, err := bs.GetTip(); ok || err != nil {
		t.Errorf("GetTip on empty store = %v, %v", ok, err)
	}
	if _, err := bs.GetBlock(types.Hash{1}); !errors.Is(err, ErrBlockNotFound) {
		t.Errorf("GetBlock(missing) err = %v, want ErrBlockNotFound", err)
	}
	if _, err := bs.GetTxBlock(types.Hash{1}); !errors.Is(err, ErrBlockNotFound) {
		t.Errorf("GetTxBlock(missing) err = %v, want ErrBlockNotFound", err)
	}
}

func TestBlockStore_CorruptData(t *testing.T) {
	db := storage.NewMemory()
	bs, _ := NewBlockStore(db, 0)

	db.Put(keyTipHash, []byte{1, 2, 3})
	if _, _, err := bs.GetTip(); err == nil {
		t.Error("GetTip should fail on a short hash")
	}

	db.Put(blockKey(types.Hash{9}), []byte(`{"chainLength":"x"}`))
	if _, err := bs.GetBlock(types.Hash{9}); err == nil {
		t.Error("GetBlock should fail on a malformed block")
	}
}

func TestBlockStore_TxIndex(t *testing.T) {
	bs, _ := NewBlockStore(storage.NewMemory(), 0)
	g := genesis(t)
	hash, _ := bs.PutBlock(g)

	for _, id := range g.TransactionIDs() {
		got, err := bs.GetTxBlock(id)
		if err != nil {
			t.Fatalf("GetTxBlock(%s): %v", id, err)
		}
		if got != hash {
			t.Errorf("GetTxBlock(%s) = %s, want %s", id, got, hash)
		}
	}
}
