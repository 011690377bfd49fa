package block

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"testing"
	"time"
)

func TestAssembleHeaderComputesHash(t *testing.T) {
	ts := time.Unix(1700000000, 0)
	h := AssembleHeader(1, GenesisPrevHash, "validator-a", ts)

	if h.Hash != h.ComputeHash() {
		t.Error("assembled header hash does not match recomputed hash")
	}

	// Any field change must change the hash
	h2 := AssembleHeader(2, GenesisPrevHash, "validator-a", ts)
	if h.Hash == h2.Hash {
		t.Error("different heights produced the same hash")
	}
}

func TestSignAndVerifySignature(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}

	h := AssembleHeader(5, [32]byte{1, 2, 3}, hex.EncodeToString(pub), time.Now())
	h.Sign(priv)

	if !h.VerifySignature(pub) {
		t.Error("valid signature did not verify")
	}

	h.Signature[0] ^= 0xff
	if h.VerifySignature(pub) {
		t.Error("tampered signature verified")
	}
}

func TestIsGenesis(t *testing.T) {
	genesis := AssembleHeader(0, GenesisPrevHash, "validator-a", time.Now())
	if !genesis.IsGenesis() {
		t.Error("height-0 header with sentinel prev hash should be genesis")
	}

	h := AssembleHeader(1, genesis.Hash, "validator-a", time.Now())
	if h.IsGenesis() {
		t.Error("height-1 header should not be genesis")
	}
}
