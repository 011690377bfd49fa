package validator

import (
	"crypto/ed25519"
	"encoding/hex"

	"github.com/ancourn/kaldr/block"
)

// SignatureVerifier is the crypto-layer capability consulted per header.
type SignatureVerifier interface {
	VerifySignature(h *block.Header) bool
}

// BasicVerifier is the minimum-viable check: a signature must be
// present and non-trivial. Full cryptographic verification belongs to
// the crypto layer via Ed25519Verifier.
type BasicVerifier struct{}

func (BasicVerifier) VerifySignature(h *block.Header) bool {
	if len(h.Signature) == 0 {
		return false
	}
	for _, b := range h.Signature {
		if b != 0 {
			return true
		}
	}
	return false
}

// Ed25519Verifier verifies header signatures against the registered
// validator set, keyed by hex pubkey.
type Ed25519Verifier struct {
	keys map[string]ed25519.PublicKey
}

// NewEd25519Verifier builds a verifier from hex-encoded validator
// pubkeys; malformed entries are skipped.
func NewEd25519Verifier(validatorPubKeys []string) *Ed25519Verifier {
	keys := make(map[string]ed25519.PublicKey, len(validatorPubKeys))
	for _, pk := range validatorPubKeys {
		raw, err := hex.DecodeString(pk)
		if err != nil || len(raw) != ed25519.PublicKeySize {
			continue
		}
		keys[pk] = ed25519.PublicKey(raw)
	}
	return &Ed25519Verifier{keys: keys}
}

func (v *Ed25519Verifier) VerifySignature(h *block.Header) bool {
	pub, exists := v.keys[h.Validator]
	if !exists {
		return false
	}
	return h.VerifySignature(pub)
}
