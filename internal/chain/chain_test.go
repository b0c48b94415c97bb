package chain

import (
	"errors"
	"testing"

	"github.com/Klingon-tech/klingnet-ledger/config"
	"github.com/Klingon-tech/klingnet-ledger/internal/consensus"
	"github.com/Klingon-tech/klingnet-ledger/internal/storage"
	"github.com/Klingon-tech/klingnet-ledger/pkg/block"
	"github.com/Klingon-tech/klingnet-ledger/pkg/tx"
)

// testBits keeps sealing in tests to a handful of attempts.
const testBits = 4

func testChain(t *testing.T, db storage.DB) *Chain {
	t.Helper()
	ch, err := New(db)
	if err != nil {
		t.Fatalf("New chain: %v", err)
	}
	t.Cleanup(ch.Close)
	return ch
}

func seal(t *testing.T, blk *block.Block) *block.Block {
	t.Helper()
	if err := consensus.NewPoW(1).Seal(blk); err != nil {
		t.Fatalf("Seal: %v", err)
	}
	return blk
}

func genesis(t *testing.T) *block.Block {
	t.Helper()
	blk, err := CreateGenesisBlock("alice", 1,
		block.WithTarget(block.TargetFromBits(testBits)),
		block.WithTimestamp(1700000000000),
		block.WithComment("genesis"),
	)
	if err != nil {
		t.Fatalf("CreateGenesisBlock: %v", err)
	}
	return seal(t, blk)
}

// child builds a sealed child of parent with a coinbase to miner and the
// given transfers.
func child(t *testing.T, parent *block.Block, miner string, txs ...*tx.Transaction) *block.Block {
	t.Helper()
	blk, err := block.New(parent,
		block.WithTarget(block.TargetFromBits(testBits)),
		block.WithTimestamp(parent.Timestamp()+1000),
	)
	if err != nil {
		t.Fatalf("block.New: %v", err)
	}
	if err := blk.AddTransaction(tx.NewCoinbase(map[string]int64{miner: 1}), "", miner); err != nil {
		t.Fatalf("coinbase: %v", err)
	}
	for _, transfer := range txs {
		if err := blk.AddTransaction(transfer, "", miner); err != nil {
			t.Fatalf("AddTransaction: %v", err)
		}
	}
	return seal(t, blk)
}

func TestCreateGenesisBlock(t *testing.T) {
	blk := genesis(t)
	if !blk.IsGenesis() || blk.ChainLength() != 1 {
		t.Fatalf("genesis length = %d, IsGenesis = %v", blk.ChainLength(), blk.IsGenesis())
	}
	if blk.Balance("alice") != 1 {
		t.Errorf("genesis alice = %d, want 1", blk.Balance("alice"))
	}
	if blk.Comment() != "genesis" {
		t.Errorf("comment = %q, want genesis", blk.Comment())
	}

	if _, err := CreateGenesisBlock("", 1); err == nil {
		t.Error("empty miner id should fail")
	}
	if _, err := CreateGenesisBlock("alice", 2); !errors.Is(err, block.ErrCoinbaseTooLarge) {
		t.Errorf("reward above allowance err = %v, want ErrCoinbaseTooLarge", err)
	}
}

func TestGenesisFromConfig(t *testing.T) {
	g := config.TestnetGenesis()
	a, err := GenesisFromConfig(g)
	if err != nil {
		t.Fatalf("GenesisFromConfig: %v", err)
	}
	b, _ := GenesisFromConfig(config.TestnetGenesis())
	if a.Hash(true) != b.Hash(true) {
		t.Error("same genesis config should build the same block")
	}
	if a.Timestamp() != g.Timestamp || a.Comment() != g.Comment {
		t.Errorf("timestamp/comment = %d/%q", a.Timestamp(), a.Comment())
	}
	if !a.Target().Eq(block.TargetFromBits(g.TargetBits)) {
		t.Error("target does not follow target_bits")
	}
	if a.Balance(g.Miner) != g.Reward {
		t.Errorf("miner balance = %d, want %d", a.Balance(g.Miner), g.Reward)
	}

	m, _ := GenesisFromConfig(config.MainnetGenesis())
	if m.Hash(true) == a.Hash(true) {
		t.Error("mainnet and testnet genesis should differ")
	}

	bad := config.TestnetGenesis()
	bad.Miner = ""
	if _, err := GenesisFromConfig(bad); err == nil {
		t.Error("invalid genesis config should fail")
	}
}

func TestChain_Empty(t *testing.T) {
	ch := testChain(t, storage.NewMemory())
	if ch.Tip() != nil {
		t.Error("empty chain should have no tip")
	}
	if ch.Height() != 0 {
		t.Errorf("Height() = %d, want 0", ch.Height())
	}
	if st := ch.State(); !st.IsEmpty() {
		t.Errorf("State() = %+v, want empty", st)
	}
	if bal, err := ch.Balance("alice"); err != nil || bal != 0 {
		t.Errorf("Balance on empty chain = %d, %v", bal, err)
	}
}

func TestChain_AppendAndQuery(t *testing.T) {
	ch := testChain(t, storage.NewMemory())

	g := genesis(t)
	if err := ch.Append(g); err != nil {
		t.Fatalf("Append genesis: %v", err)
	}
	b2 := child(t, g, "bob")
	if err := ch.Append(b2); err != nil {
		t.Fatalf("Append b2: %v", err)
	}

	if ch.Height() != 2 {
		t.Fatalf("Height() = %d, want 2", ch.Height())
	}
	if ch.TipHash() != b2.Hash(true) {
		t.Error("TipHash() should be the hash of the last block")
	}
	if ch.Tip().Hash(true) != b2.Hash(true) {
		t.Error("Tip() should decode to the appended block")
	}

	got, err := ch.BlockAt(1)
	if err != nil {
		t.Fatalf("BlockAt(1): %v", err)
	}
	if got.Hash(true) != g.Hash(true) {
		t.Error("BlockAt(1) should be genesis")
	}
	if _, err := ch.Block(b2.Hash(true)); err != nil {
		t.Fatalf("Block(b2): %v", err)
	}
	if _, err := ch.BlockAt(3); !errors.Is(err, ErrBlockNotFound) {
		t.Errorf("BlockAt(3) err = %v, want ErrBlockNotFound", err)
	}

	for acct, want := range map[string]int64{"alice": 1, "bob": 1, "carol": 0} {
		bal, err := ch.Balance(acct)
		if err != nil || bal != want {
			t.Errorf("Balance(%s) = %d, %v; want %d", acct, bal, err, want)
		}
	}
	if bal, _ := ch.BalanceAt(g.Hash(true), "bob"); bal != 0 {
		t.Errorf("BalanceAt(genesis, bob) = %d, want 0", bal)
	}
}

func TestChain_TxBlock(t *testing.T) {
	ch := testChain(t, storage.NewMemory())
	g := genesis(t)
	ch.Append(g)

	transfer := tx.NewTransfer("alice", map[string]int64{"alice": 1})
	b2 := child(t, g, "bob", transfer)
	if err := ch.Append(b2); err != nil {
		t.Fatalf("Append: %v", err)
	}

	got, err := ch.TxBlock(transfer.ID())
	if err != nil {
		t.Fatalf("TxBlock: %v", err)
	}
	if got.Hash(true) != b2.Hash(true) {
		t.Error("TxBlock should return the block holding the transfer")
	}
	if _, err := ch.TxBlock(tx.NewTransfer("x", map[string]int64{"y": 1}).ID()); !errors.Is(err, ErrBlockNotFound) {
		t.Errorf("TxBlock(unknown) err = %v, want ErrBlockNotFound", err)
	}
}

func TestChain_AppendRejects(t *testing.T) {
	ch := testChain(t, storage.NewMemory())
	g := genesis(t)
	b2 := child(t, g, "bob")

	if err := ch.Append(b2); !errors.Is(err, ErrBadParent) {
		t.Fatalf("Append(child on empty) = %v, want ErrBadParent", err)
	}
	if err := ch.Append(g); err != nil {
		t.Fatalf("Append genesis: %v", err)
	}
	if err := ch.Append(g); !errors.Is(err, ErrGenesisExists) {
		t.Fatalf("Append(second genesis) = %v, want ErrGenesisExists", err)
	}

	stale := child(t, child(t, g, "carol"), "dave")
	if err := ch.Append(stale); !errors.Is(err, ErrBadParent) {
		t.Fatalf("Append(stale) = %v, want ErrBadParent", err)
	}

	unsealed, _ := block.New(g, block.WithTarget(block.TargetFromBits(200)))
	if err := ch.Append(unsealed); !errors.Is(err, ErrInsufficientWork) {
		t.Fatalf("Append(unsealed) = %v, want ErrInsufficientWork", err)
	}

	if ch.Height() != 1 {
		t.Errorf("rejected blocks changed the height to %d", ch.Height())
	}
}

func TestChain_EngineBoundsTarget(t *testing.T) {
	pow := consensus.NewPoW(1)
	pow.MaxTarget = block.TargetFromBits(testBits + 4)

	ch, err := New(storage.NewMemory(), WithEngine(pow))
	if err != nil {
		t.Fatal(err)
	}
	defer ch.Close()

	if err := ch.Append(genesis(t)); !errors.Is(err, consensus.ErrTargetTooEasy) {
		t.Fatalf("Append(easy target) = %v, want ErrTargetTooEasy", err)
	}
}

func TestChain_AppendIsolatesCaller(t *testing.T) {
	ch := testChain(t, storage.NewMemory())
	g := genesis(t)
	ch.Append(g)

	// Mutating the appended block must not reach the stored tip.
	g.AddTransaction(tx.NewTransfer("alice", map[string]int64{"alice": 1}), "later", "")
	if ch.Tip().Comment() != "genesis" {
		t.Errorf("tip comment = %q, want genesis", ch.Tip().Comment())
	}
}

func TestChain_Reopen(t *testing.T) {
	for _, backend := range []string{storage.BackendBadger, storage.BackendLevelDB} {
		t.Run(backend, func(t *testing.T) {
			dir := t.TempDir()

			db, err := storage.Open(backend, dir)
			if err != nil {
				t.Fatalf("Open: %v", err)
			}
			ch, err := New(db)
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			g := genesis(t)
			b2 := child(t, g, "bob")
			if err := ch.Append(g); err != nil {
				t.Fatal(err)
			}
			if err := ch.Append(b2); err != nil {
				t.Fatal(err)
			}
			ch.Close()
			db.Close()

			db, err = storage.Open(backend, dir)
			if err != nil {
				t.Fatalf("reopen: %v", err)
			}
			defer db.Close()
			ch, err = New(db, WithCacheMaxCost(0))
			if err != nil {
				t.Fatalf("New after reopen: %v", err)
			}
			defer ch.Close()

			if ch.Height() != 2 || ch.TipHash() != b2.Hash(true) {
				t.Fatalf("reopened tip = %d %s, want 2 %s", ch.Height(), ch.TipHash(), b2.Hash(true))
			}
			if bal, _ := ch.Balance("bob"); bal != 1 {
				t.Errorf("Balance(bob) after reopen = %d, want 1", bal)
			}
			if err := ch.Append(child(t, b2, "carol")); err != nil {
				t.Errorf("Append after reopen: %v", err)
			}
		})
	}
}
