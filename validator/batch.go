package validator

import (
	"fmt"

	"github.com/ancourn/kaldr/block"
	syncerrors "github.com/ancourn/kaldr/errors"
)

// BatchValidator checks hash-chain continuity and per-header signature
// validity for an ordered batch. Acceptance is all-or-nothing: the
// caller stores nothing unless Validate returns nil.
type BatchValidator struct {
	verifier SignatureVerifier
}

func NewBatchValidator(verifier SignatureVerifier) *BatchValidator {
	if verifier == nil {
		verifier = BasicVerifier{}
	}
	return &BatchValidator{verifier: verifier}
}

// Validate accepts a height-ascending batch. An empty batch is trivially
// valid. The returned error names the first offending height.
func (v *BatchValidator) Validate(batch []*block.Header) error {
	if len(batch) == 0 {
		return nil
	}

	// Chain linkage end-to-end, failing on the first violation.
	for i := 1; i < len(batch); i++ {
		prev, cur := batch[i-1], batch[i]
		if cur.Height != prev.Height+1 {
			return syncerrors.NewSyncErrorAt(syncerrors.ErrCodeHeightDiscontinuity,
				fmt.Sprintf("expected height %d after %d, got %d", prev.Height+1, prev.Height, cur.Height), cur.Height)
		}
		if cur.PrevHash != prev.Hash {
			return syncerrors.NewSyncErrorAt(syncerrors.ErrCodeChainBreak,
				fmt.Sprintf("prev_hash of height %d does not match hash of height %d", cur.Height, prev.Height), cur.Height)
		}
	}

	// Every header must individually verify.
	for _, h := range batch {
		if !v.verifier.VerifySignature(h) {
			return syncerrors.NewSyncErrorAt(syncerrors.ErrCodeInvalidSignature,
				fmt.Sprintf("signature check failed for height %d", h.Height), h.Height)
		}
	}

	return nil
}
