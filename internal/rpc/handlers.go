package rpc

import (
	"errors"
	"fmt"

	"github.com/Klingon-tech/klingnet-ledger/internal/chain"
	"github.com/Klingon-tech/klingnet-ledger/internal/mempool"
	"github.com/Klingon-tech/klingnet-ledger/pkg/types"
)

// parseHash decodes a 32-byte hex hash parameter.
func parseHash(s string) (types.Hash, *Error) {
	if s == "" {
		return types.Hash{}, &Error{Code: CodeInvalidParams, Message: "hash is required"}
	}
	h, err := types.HexToHash(s)
	if err != nil {
		return types.Hash{}, &Error{Code: CodeInvalidParams, Message: "invalid hash: must be 32-byte hex"}
	}
	return h, nil
}

// ── Chain endpoints ─────────────────────────────────────────────────────

func (s *Server) handleChainGetInfo(req *Request) (interface{}, *Error) {
	st := s.chain.State()
	return &ChainInfoResult{
		ChainID:      s.genesis.ChainID,
		Length:       st.Length,
		TipHash:      st.TipHash.String(),
		TipTimestamp: st.TipTimestamp,
	}, nil
}

func (s *Server) handleChainGetBlockByHash(req *Request) (interface{}, *Error) {
	var params HashParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	hash, rpcErr := parseHash(params.Hash)
	if rpcErr != nil {
		return nil, rpcErr
	}

	blk, err := s.chain.Block(hash)
	if err != nil {
		return nil, &Error{Code: CodeNotFound, Message: fmt.Sprintf("block not found: %v", err)}
	}
	return NewBlockResult(blk), nil
}

func (s *Server) handleChainGetBlockByLength(req *Request) (interface{}, *Error) {
	var params LengthParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}

	blk, err := s.chain.BlockAt(params.Length)
	if err != nil {
		return nil, &Error{Code: CodeNotFound, Message: fmt.Sprintf("block not found at length %d: %v", params.Length, err)}
	}
	return NewBlockResult(blk), nil
}

func (s *Server) handleChainGetTransaction(req *Request) (interface{}, *Error) {
	var params HashParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	id, rpcErr := parseHash(params.Hash)
	if rpcErr != nil {
		return nil, rpcErr
	}

	// Check mempool first.
	if t, ok := s.pool.Get(id); ok {
		return &TxResult{ID: id.String(), Transaction: t, Pending: true}, nil
	}

	blk, err := s.chain.TxBlock(id)
	if err != nil {
		return nil, &Error{Code: CodeNotFound, Message: "transaction not found"}
	}
	t, ok := blk.Transaction(id)
	if !ok {
		return nil, &Error{Code: CodeInternalError, Message: "transaction index points at the wrong block"}
	}
	return &TxResult{ID: id.String(), Transaction: t, BlockHash: blk.Hash(true).String()}, nil
}

func (s *Server) handleChainVerifyBlock(req *Request) (interface{}, *Error) {
	if s.engine == nil {
		return nil, &Error{Code: CodeMethodNotFound, Message: "block verification not enabled"}
	}
	var params HashParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	hash, rpcErr := parseHash(params.Hash)
	if rpcErr != nil {
		return nil, rpcErr
	}

	blk, err := s.chain.Block(hash)
	if err != nil {
		return nil, &Error{Code: CodeNotFound, Message: fmt.Sprintf("block not found: %v", err)}
	}
	if err := s.engine.VerifyBlock(blk); err != nil {
		return &ValidateResult{Valid: false, Error: err.Error()}, nil
	}
	return &ValidateResult{Valid: true}, nil
}

// ── Ledger endpoints ────────────────────────────────────────────────────

func (s *Server) handleLedgerGetBalance(req *Request) (interface{}, *Error) {
	var params BalanceParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	if params.Account == "" {
		return nil, &Error{Code: CodeInvalidParams, Message: "account is required"}
	}

	at := s.chain.TipHash()
	if params.Block != "" {
		h, rpcErr := parseHash(params.Block)
		if rpcErr != nil {
			return nil, rpcErr
		}
		at = h
	}
	if at.IsZero() {
		return &BalanceResult{Account: params.Account, Balance: 0, Block: at.String()}, nil
	}

	bal, err := s.chain.BalanceAt(at, params.Account)
	if err != nil {
		return nil, &Error{Code: CodeNotFound, Message: fmt.Sprintf("balance at %s: %v", at, err)}
	}
	return &BalanceResult{Account: params.Account, Balance: bal, Block: at.String()}, nil
}

// ── Transaction endpoints ───────────────────────────────────────────────

func (s *Server) handleTxSubmit(req *Request) (interface{}, *Error) {
	var params TxSubmitParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	if params.Transaction == nil {
		return nil, &Error{Code: CodeInvalidParams, Message: "transaction is required"}
	}

	id, err := s.pool.Add(params.Transaction)
	if err != nil {
		code := CodeRejected
		if errors.Is(err, mempool.ErrPoolFull) {
			code = CodeInternalError
		}
		return nil, &Error{Code: code, Message: err.Error()}
	}
	s.logger.Info().Str("tx", id.String()).Msg("Transaction submitted")
	return &TxSubmitResult{ID: id.String()}, nil
}

// handleTxValidate checks a transaction against the tip balances without
// queueing it.
func (s *Server) handleTxValidate(req *Request) (interface{}, *Error) {
	var params TxSubmitParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	if params.Transaction == nil {
		return nil, &Error{Code: CodeInvalidParams, Message: "transaction is required"}
	}
	if params.Transaction.IsCoinbase() {
		return &ValidateResult{Valid: false, Error: mempool.ErrCoinbase.Error()}, nil
	}

	tip := s.chain.Tip()
	if tip == nil {
		return &ValidateResult{Valid: false, Error: chain.ErrBlockNotFound.Error()}, nil
	}
	if err := tip.CheckTransaction(params.Transaction); err != nil {
		return &ValidateResult{Valid: false, Error: err.Error()}, nil
	}
	return &ValidateResult{Valid: true}, nil
}

// ── Mempool endpoints ───────────────────────────────────────────────────

func (s *Server) handleMempoolGetInfo(req *Request) (interface{}, *Error) {
	return &MempoolInfoResult{Count: s.pool.Count()}, nil
}

func (s *Server) handleMempoolGetContent(req *Request) (interface{}, *Error) {
	pending := s.pool.SelectForBlock(0)
	ids := make([]string, len(pending))
	for i, t := range pending {
		ids[i] = t.ID().String()
	}
	return &MempoolContentResult{Transactions: ids}, nil
}
