package rpcclient

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"testing"

	"github.com/Klingon-tech/klingnet-ledger/config"
	"github.com/Klingon-tech/klingnet-ledger/internal/chain"
	"github.com/Klingon-tech/klingnet-ledger/internal/consensus"
	klog "github.com/Klingon-tech/klingnet-ledger/internal/log"
	"github.com/Klingon-tech/klingnet-ledger/internal/mempool"
	"github.com/Klingon-tech/klingnet-ledger/internal/rpc"
	"github.com/Klingon-tech/klingnet-ledger/internal/storage"
	"github.com/Klingon-tech/klingnet-ledger/pkg/block"
	"github.com/Klingon-tech/klingnet-ledger/pkg/tx"
)

type testEnv struct {
	client  *Client
	chain   *chain.Chain
	genesis *block.Block
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()
	klog.Init("error", false, "")

	engine := consensus.NewPoW(1)
	ch, err := chain.New(storage.NewMemory(), chain.WithEngine(engine))
	if err != nil {
		t.Fatalf("create chain: %v", err)
	}
	t.Cleanup(ch.Close)

	gen, err := chain.CreateGenesisBlock("alice", 1,
		block.WithTarget(block.TargetFromBits(4)),
		block.WithTimestamp(1700000000000),
	)
	if err != nil {
		t.Fatalf("create genesis: %v", err)
	}
	if err := engine.Seal(gen); err != nil {
		t.Fatalf("seal genesis: %v", err)
	}
	if err := ch.Append(gen); err != nil {
		t.Fatalf("append genesis: %v", err)
	}

	srv := rpc.New("127.0.0.1:0", ch, mempool.New(10), config.MainnetGenesis(), engine)
	if err := srv.Start(); err != nil {
		t.Fatalf("start rpc: %v", err)
	}
	t.Cleanup(func() { srv.Stop() })

	return &testEnv{
		client:  New(fmt.Sprintf("http://%s/", srv.Addr())),
		chain:   ch,
		genesis: gen,
	}
}

func TestClient_ChainGetInfo(t *testing.T) {
	env := setupTestEnv(t)

	var result rpc.ChainInfoResult
	if err := env.client.Call("chain_getInfo", nil, &result); err != nil {
		t.Fatalf("Call error: %v", err)
	}

	if result.ChainID != config.MainnetGenesis().ChainID {
		t.Errorf("chain_id = %q, want %q", result.ChainID, config.MainnetGenesis().ChainID)
	}
	if result.Length != 1 {
		t.Errorf("length = %d, want 1", result.Length)
	}
	if result.TipHash != env.genesis.Hash(true).String() {
		t.Errorf("tip_hash = %s", result.TipHash)
	}
}

func TestClient_GetBlockByLength(t *testing.T) {
	env := setupTestEnv(t)

	var result rpc.BlockResult
	if err := env.client.Call("chain_getBlockByLength", rpc.LengthParam{Length: 1}, &result); err != nil {
		t.Fatalf("Call error: %v", err)
	}

	blk, err := block.Deserialize(result.Block)
	if err != nil {
		t.Fatalf("Deserialize: %v", err)
	}
	if blk.ChainLength() != 1 || !blk.HasCoinbaseTransaction() {
		t.Errorf("length = %d, coinbase = %v", blk.ChainLength(), blk.HasCoinbaseTransaction())
	}
	if blk.Hash(true).String() != result.Hash {
		t.Errorf("decoded hash %s, reported %s", blk.Hash(true), result.Hash)
	}
}

func TestClient_GetBalance(t *testing.T) {
	env := setupTestEnv(t)

	var result rpc.BalanceResult
	if err := env.client.Call("ledger_getBalance", rpc.BalanceParam{Account: "alice"}, &result); err != nil {
		t.Fatalf("Call error: %v", err)
	}
	if result.Balance != 1 {
		t.Errorf("balance = %d, want 1", result.Balance)
	}
}

func TestClient_SubmitTx(t *testing.T) {
	env := setupTestEnv(t)
	transfer := tx.NewTransfer("alice", map[string]int64{"bob": 1})

	var result rpc.TxSubmitResult
	err := env.client.CallContext(context.Background(), "tx_submit", rpc.TxSubmitParam{Transaction: transfer}, &result)
	if err != nil {
		t.Fatalf("CallContext error: %v", err)
	}
	if result.ID != transfer.ID().String() {
		t.Errorf("id = %s, want %s", result.ID, transfer.ID())
	}
}

func TestClient_GetBlockByHash_NotFound(t *testing.T) {
	env := setupTestEnv(t)

	fakeHash := hex.EncodeToString(make([]byte, 32))
	var result rpc.BlockResult
	err := env.client.Call("chain_getBlockByHash", rpc.HashParam{Hash: fakeHash}, &result)
	if err == nil {
		t.Fatal("expected error for non-existent block")
	}

	var rpcErr *RPCError
	if !errors.As(err, &rpcErr) {
		t.Fatalf("expected RPCError, got %T: %v", err, err)
	}
	if rpcErr.Code != rpc.CodeNotFound {
		t.Errorf("error code = %d, want %d", rpcErr.Code, rpc.CodeNotFound)
	}
}

func TestClient_Call_InvalidEndpoint(t *testing.T) {
	client := New("http://127.0.0.1:1/") // port 1 should refuse

	var result rpc.ChainInfoResult
	err := client.Call("chain_getInfo", nil, &result)
	if err == nil {
		t.Fatal("expected connection error")
	}
}

func TestClient_CallContext_Canceled(t *testing.T) {
	env := setupTestEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := env.client.CallContext(ctx, "chain_getInfo", nil, nil); !errors.Is(err, context.Canceled) {
		t.Errorf("CallContext(canceled) = %v, want context.Canceled", err)
	}
}

func TestClient_Call_MethodNotFound(t *testing.T) {
	env := setupTestEnv(t)

	err := env.client.Call("nonexistent_method", nil, nil)
	if err == nil {
		t.Fatal("expected error for unknown method")
	}

	var rpcErr *RPCError
	if !errors.As(err, &rpcErr) {
		t.Fatalf("expected RPCError, got %T: %v", err, err)
	}
	if rpcErr.Code != rpc.CodeMethodNotFound {
		t.Errorf("error code = %d, want %d", rpcErr.Code, rpc.CodeMethodNotFound)
	}
}
