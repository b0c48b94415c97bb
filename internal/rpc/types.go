package rpc

import (
	"encoding/json"

	"github.com/Klingon-tech/klingnet-ledger/pkg/block"
	"github.com/Klingon-tech/klingnet-ledger/pkg/tx"
)

// JSON-RPC 2.0 error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
	CodeNotFound       = -32000
	CodeRejected       = -32001
)

// Request is a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
	ID      interface{} `json:"id"`
}

// Response is a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string      `json:"jsonrpc"`
	Result  interface{} `json:"result,omitempty"`
	Error   *Error      `json:"error,omitempty"`
	ID      interface{} `json:"id"`
}

// Error is a JSON-RPC 2.0 error object.
type Error struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// ── Param types ─────────────────────────────────────────────────────────

// HashParam is used by endpoints that take a single hash.
type HashParam struct {
	Hash string `json:"hash"`
}

// LengthParam is used by endpoints that take a chain length.
type LengthParam struct {
	Length uint64 `json:"length"`
}

// BalanceParam is used by ledger_getBalance. An empty Block means the tip.
type BalanceParam struct {
	Account string `json:"account"`
	Block   string `json:"block,omitempty"`
}

// TxSubmitParam is used by tx_submit and tx_validate.
type TxSubmitParam struct {
	Transaction *tx.Transaction `json:"transaction"`
}

// ── Result types ────────────────────────────────────────────────────────

// ChainInfoResult is returned by chain_getInfo.
type ChainInfoResult struct {
	ChainID      string `json:"chain_id"`
	Length       uint64 `json:"length"`
	TipHash      string `json:"tip_hash"`
	TipTimestamp int64  `json:"tip_timestamp"`
}

// BlockResult carries a block's canonical encoding, balances included.
type BlockResult struct {
	Hash   string          `json:"hash"`
	Length uint64          `json:"length"`
	Block  json.RawMessage `json:"block"`
}

// NewBlockResult builds the RPC view of blk.
func NewBlockResult(blk *block.Block) *BlockResult {
	return &BlockResult{
		Hash:   blk.Hash(true).String(),
		Length: blk.ChainLength(),
		Block:  blk.Serialize(true),
	}
}

// TxResult is returned by chain_getTransaction.
type TxResult struct {
	ID          string          `json:"id"`
	Transaction *tx.Transaction `json:"transaction"`
	BlockHash   string          `json:"block_hash,omitempty"`
	Pending     bool            `json:"pending"`
}

// BalanceResult is returned by ledger_getBalance.
type BalanceResult struct {
	Account string `json:"account"`
	Balance int64  `json:"balance"`
	Block   string `json:"block"`
}

// TxSubmitResult is returned by tx_submit.
type TxSubmitResult struct {
	ID string `json:"id"`
}

// ValidateResult is returned by tx_validate and chain_verifyBlock.
type ValidateResult struct {
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
}

// MempoolInfoResult is returned by mempool_getInfo.
type MempoolInfoResult struct {
	Count int `json:"count"`
}

// MempoolContentResult is returned by mempool_getContent, oldest first.
type MempoolContentResult struct {
	Transactions []string `json:"transactions"`
}
