package block

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"time"
)

// GenesisPrevHash is the sentinel previous-hash carried by the header
// at height 0.
var GenesisPrevHash = [32]byte{}

// Header is a block header as exchanged during catch-up. Immutable once
// validated and stored.
type Header struct {
	Height    uint64    // Block height
	PrevHash  [32]byte  // Hash of the header at Height-1
	Timestamp time.Time // Proposal time
	Validator string    // Hex pubkey of the proposer
	Hash      [32]byte  // Hash of the whole header (without Signature)
	Signature []byte    // Proposer signature over Hash
}

func AssembleHeader(
	height uint64,
	prevHash [32]byte,
	validator string,
	timestamp time.Time,
) *Header {
	h := &Header{
		Height:    height,
		PrevHash:  prevHash,
		Validator: validator,
		Timestamp: timestamp,
	}
	h.Hash = h.ComputeHash()
	return h
}

// ComputeHash hashes every field except Hash and Signature.
func (h *Header) ComputeHash() [32]byte {
	hasher := sha256.New()
	buf := make([]byte, 8)
	// Height
	binary.BigEndian.PutUint64(buf, h.Height)
	hasher.Write(buf)
	// PrevHash
	hasher.Write(h.PrevHash[:])
	// Validator
	hasher.Write([]byte(h.Validator))
	// Timestamp (UnixNano)
	binary.BigEndian.PutUint64(buf, uint64(h.Timestamp.UnixNano()))
	hasher.Write(buf)
	var out [32]byte
	copy(out[:], hasher.Sum(nil))
	return out
}

func (h *Header) Sign(privKey ed25519.PrivateKey) {
	sig := ed25519.Sign(privKey, h.Hash[:])
	h.Signature = sig
}

func (h *Header) VerifySignature(pubKey ed25519.PublicKey) bool {
	return ed25519.Verify(pubKey, h.Hash[:], h.Signature)
}

func (h *Header) HashString() string {
	return hex.EncodeToString(h.Hash[:])
}

// IsGenesis reports whether this is the height-0 header.
func (h *Header) IsGenesis() bool {
	return h.Height == 0 && h.PrevHash == GenesisPrevHash
}
