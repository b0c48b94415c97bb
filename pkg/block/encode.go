package block

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/holiman/uint256"

	"github.com/Klingon-tech/klingnet-ledger/pkg/ledger"
	"github.com/Klingon-tech/klingnet-ledger/pkg/tx"
	"github.com/Klingon-tech/klingnet-ledger/pkg/types"
)

// ErrMalformedBlock is returned when serialized block data cannot be
// turned back into a consistent Block.
var ErrMalformedBlock = errors.New("malformed block")

// blockJSON is the wire shape of a block. Field order is fixed by the struct
// and map keys are sorted by encoding/json, so equal blocks encode to equal
// bytes. Numeric fields travel as decimal strings.
type blockJSON struct {
	Transactions  map[types.Hash]*tx.Transaction `json:"transactions"`
	Comment       string                         `json:"comment"`
	UTXO          *map[string]int64              `json:"utxo,omitempty"`
	PrevBlockHash *types.Hash                    `json:"prevBlockHash"`
	Timestamp     string                         `json:"timestamp"`
	Target        string                         `json:"target"`
	Proof         string                         `json:"proof"`
	ChainLength   string                         `json:"chainLength"`
}

func (b *Block) wire(includeUTXO bool, proof uint64) blockJSON {
	j := blockJSON{
		Transactions: b.transactions,
		Comment:      b.comment,
		Timestamp:    strconv.FormatInt(b.timestamp, 10),
		Target:       b.target.Dec(),
		Proof:        strconv.FormatUint(proof, 10),
		ChainLength:  strconv.FormatUint(b.chainLength, 10),
	}
	if includeUTXO {
		m := b.utxo.Map()
		j.UTXO = &m
	}
	if b.hasPrev {
		prev := b.prevHash
		j.PrevBlockHash = &prev
	}
	return j
}

func encode(j blockJSON) []byte {
	data, err := json.Marshal(j)
	if err != nil {
		// Every field is a string, an integer or a string-keyed map.
		panic(fmt.Sprintf("block: encode: %v", err))
	}
	return data
}

// Serialize returns the canonical encoding of the block. The balance table is
// part of the encoding unless includeUTXO is false; leaving it out changes the
// hash and therefore what the proof of work commits to.
func (b *Block) Serialize(includeUTXO bool) []byte {
	return encode(b.wire(includeUTXO, b.proof))
}

// MarshalJSON encodes the block with its balance table.
func (b *Block) MarshalJSON() ([]byte, error) {
	return b.Serialize(true), nil
}

// UnmarshalJSON decodes a block produced by MarshalJSON or Serialize.
func (b *Block) UnmarshalJSON(data []byte) error {
	decoded, err := Deserialize(data)
	if err != nil {
		return err
	}
	*b = *decoded
	return nil
}

// Deserialize reconstructs a block from its serialized form. A missing utxo
// field yields an empty balance table. The result uses SettleLegacy; the
// settlement mode is not part of the encoding.
func Deserialize(data []byte) (*Block, error) {
	var j blockJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedBlock, err)
	}
	b, err := fromWire(&j)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedBlock, err)
	}
	return b, nil
}

func fromWire(j *blockJSON) (*Block, error) {
	if j.Timestamp == "" || j.Target == "" || j.Proof == "" || j.ChainLength == "" {
		return nil, errors.New("missing timestamp, target, proof or chainLength")
	}
	timestamp, err := strconv.ParseInt(j.Timestamp, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("timestamp: %w", err)
	}
	target, err := uint256.FromDecimal(j.Target)
	if err != nil {
		return nil, fmt.Errorf("target: %w", err)
	}
	proof, err := strconv.ParseUint(j.Proof, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("proof: %w", err)
	}
	length, err := strconv.ParseUint(j.ChainLength, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("chainLength: %w", err)
	}
	if length < 1 {
		return nil, errors.New("chainLength must be at least 1")
	}
	if (j.PrevBlockHash != nil) != (length > 1) {
		return nil, fmt.Errorf("prevBlockHash must be set iff chainLength > 1 (chainLength %d)", length)
	}

	b := &Block{
		chainLength:  length,
		target:       target,
		timestamp:    timestamp,
		proof:        proof,
		comment:      j.Comment,
		transactions: make(map[types.Hash]*tx.Transaction, len(j.Transactions)),
		utxo:         ledger.New(),
	}
	if j.PrevBlockHash != nil {
		b.prevHash = *j.PrevBlockHash
		b.hasPrev = true
	}
	if j.UTXO != nil {
		l, err := ledger.FromMap(*j.UTXO)
		if err != nil {
			return nil, fmt.Errorf("utxo: %w", err)
		}
		b.utxo = l
	}

	for id, t := range j.Transactions {
		if t == nil {
			return nil, fmt.Errorf("tx %s: null record", id)
		}
		if got := t.ID(); got != id {
			return nil, fmt.Errorf("tx %s: content hashes to %s", id, got)
		}
		if _, err := t.TotalOutput(); err != nil {
			return nil, fmt.Errorf("tx %s: %w", id, err)
		}
		if t.IsCoinbase() {
			if b.coinbase != nil {
				return nil, fmt.Errorf("tx %s: %w", id, ErrDuplicateCoinbase)
			}
			if total, _ := t.TotalOutput(); total > CoinbaseAllowance {
				return nil, fmt.Errorf("tx %s: %w", id, ErrCoinbaseTooLarge)
			}
			b.coinbase = t
		}
		b.transactions[id] = t
	}
	return b, nil
}
