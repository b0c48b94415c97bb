package block

import (
	"strings"
	"testing"

	"github.com/holiman/uint256"

	"github.com/Klingon-tech/klingnet-ledger/pkg/crypto"
	"github.com/Klingon-tech/klingnet-ledger/pkg/tx"
	"github.com/Klingon-tech/klingnet-ledger/pkg/types"
)

func TestBaseTarget(t *testing.T) {
	// (2^256 - 1) >> 20 == 2^236 - 1.
	want := new(uint256.Int).Lsh(uint256.NewInt(1), 236)
	want.Sub(want, uint256.NewInt(1))
	if BaseTarget().Cmp(want) != 0 {
		t.Fatalf("BaseTarget() = %s, want %s", BaseTarget().Hex(), want.Hex())
	}
	if BaseTarget().BitLen() != 236 {
		t.Errorf("BaseTarget().BitLen() = %d, want 236", BaseTarget().BitLen())
	}
}

func TestTargetFromBits(t *testing.T) {
	if TargetFromBits(0).Cmp(maxUint256) != 0 {
		t.Error("TargetFromBits(0) should be 2^256-1")
	}
	if !TargetFromBits(255).Eq(uint256.NewInt(1)) {
		t.Errorf("TargetFromBits(255) = %s, want 1", TargetFromBits(255).Dec())
	}
	if !TargetFromBits(256).IsZero() || !TargetFromBits(1000).IsZero() {
		t.Error("TargetFromBits(>=256) should be zero")
	}
	// The package-level max must not be modified by callers.
	TargetFromBits(0).SetUint64(7)
	if TargetFromBits(0).Cmp(maxUint256) != 0 {
		t.Error("TargetFromBits should return a fresh value")
	}
}

func TestMeetsTarget(t *testing.T) {
	target := uint256.NewInt(0x0100)

	below := types.Hash{}
	below[31] = 0xff
	if !MeetsTarget(below, target) {
		t.Error("0xff should meet target 0x100")
	}

	equal := types.Hash{}
	equal[30] = 0x01
	if MeetsTarget(equal, target) {
		t.Error("a hash equal to the target must not meet it")
	}

	above := types.Hash{0x01}
	if MeetsTarget(above, target) {
		t.Error("large hash should not meet small target")
	}

	if MeetsTarget(types.Hash{}, new(uint256.Int)) {
		t.Error("nothing meets a zero target")
	}
}

func TestHash_IncludeUTXO(t *testing.T) {
	b := mustNew(t, nil, WithTimestamp(1))
	b.AddTransaction(tx.NewCoinbase(map[string]int64{"alice": 1}), "", "")

	if b.Hash(true) == b.Hash(false) {
		t.Error("hash with and without utxo should differ")
	}
	if b.Hash(true).String() != b.Hash(true).String() {
		t.Error("Hash() should be deterministic")
	}
}

func TestHashWithProof(t *testing.T) {
	b := mustNew(t, nil, WithTimestamp(1))
	b.SetProof(5)
	h := b.Hash(true)

	if b.HashWithProof(5) != h {
		t.Error("HashWithProof(current) should equal Hash(true)")
	}
	if b.HashWithProof(6) == h {
		t.Error("HashWithProof(other) should differ")
	}
	if b.Proof() != 5 {
		t.Error("HashWithProof must not change the proof")
	}
}

func TestVerifyProof_Pure(t *testing.T) {
	b := mustNew(t, nil, WithTimestamp(1), WithTarget(TargetFromBits(1)))
	before := string(b.Serialize(true))
	first := b.VerifyProof()
	for i := 0; i < 5; i++ {
		if b.VerifyProof() != first {
			t.Fatal("VerifyProof() changed between calls")
		}
	}
	if string(b.Serialize(true)) != before {
		t.Error("VerifyProof() mutated the block")
	}
}

func TestVerifyProof_Extremes(t *testing.T) {
	easy := mustNew(t, nil, WithTarget(TargetFromBits(0)))
	if !easy.VerifyProof() {
		t.Error("every realistic hash is below 2^256-1")
	}

	impossible := mustNew(t, nil, WithTarget(new(uint256.Int)))
	if impossible.VerifyProof() {
		t.Error("zero target can never be met")
	}
}

func TestVerifyProof_SearchEasyTarget(t *testing.T) {
	// 1-in-16 odds per attempt.
	b := mustNew(t, nil, WithTimestamp(1), WithTarget(TargetFromBits(4)))
	b.AddTransaction(tx.NewCoinbase(map[string]int64{"miner": 1}), "", "")

	found := false
	for proof := uint64(0); proof < 4096; proof++ {
		b.SetProof(proof)
		if b.VerifyProof() {
			found = true
			break
		}
	}
	if !found {
		t.Fatal("no proof found for an easy target")
	}
	if !MeetsTarget(b.Hash(true), b.Target()) {
		t.Error("verified block hash should meet its target")
	}
}

func TestProofTemplate(t *testing.T) {
	b := mustNew(t, nil, WithTimestamp(1), WithComment(`"proof":"7"`))
	b.AddTransaction(tx.NewCoinbase(map[string]int64{"proof": 1}), "", "")

	prefix, suffix := b.ProofTemplate()
	if !strings.HasSuffix(string(prefix), `"proof":"`) {
		t.Fatalf("prefix should end at the proof digits: %s", prefix)
	}

	var buf []byte
	for _, proof := range []uint64{0, 9, 10, 123456789, ^uint64(0)} {
		buf = AppendProof(buf, prefix, proof, suffix)
		if crypto.Hash(buf) != b.HashWithProof(proof) {
			t.Errorf("template hash mismatch for proof %d", proof)
		}
	}
}
