package network

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/ancourn/kaldr/block"
)

// SimulatedSource is a deterministic stand-in for peer I/O: it serves a
// pre-built signed chain with configurable failure probability and
// latency. The CLI demo and integration tests run against it; a real
// deployment plugs a peer client into fetcher.BlockSource instead.
type SimulatedSource struct {
	mu    sync.Mutex
	rng   *rand.Rand
	chain []*block.Header

	failRate   float64
	minLatency time.Duration
	maxLatency time.Duration

	validatorPubKey string
}

// NewSimulatedSource builds a signed chain of tipHeight+1 headers
// (genesis included) from the given seed.
func NewSimulatedSource(seed int64, tipHeight uint64, failRate float64, minLatency, maxLatency time.Duration) *SimulatedSource {
	rng := rand.New(rand.NewSource(seed))

	keySeed := make([]byte, ed25519.SeedSize)
	rng.Read(keySeed)
	privKey := ed25519.NewKeyFromSeed(keySeed)
	pubKey := hex.EncodeToString(privKey.Public().(ed25519.PublicKey))

	base := time.Unix(1700000000, 0).UTC()
	chain := make([]*block.Header, 0, tipHeight+1)
	prevHash := block.GenesisPrevHash
	for height := uint64(0); height <= tipHeight; height++ {
		h := block.AssembleHeader(height, prevHash, pubKey, base.Add(time.Duration(height)*time.Second))
		h.Sign(privKey)
		chain = append(chain, h)
		prevHash = h.Hash
	}

	return &SimulatedSource{
		rng:             rng,
		chain:           chain,
		failRate:        failRate,
		minLatency:      minLatency,
		maxLatency:      maxLatency,
		validatorPubKey: pubKey,
	}
}

// BlockAt implements fetcher.BlockSource
func (s *SimulatedSource) BlockAt(ctx context.Context, height uint64) (*block.Header, error) {
	if delay := s.nextLatency(); delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if s.nextFailure() {
		return nil, fmt.Errorf("peer unavailable for height %d", height)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if height >= uint64(len(s.chain)) {
		return nil, fmt.Errorf("height %d beyond simulated tip %d", height, len(s.chain)-1)
	}
	cloned := *s.chain[height]
	return &cloned, nil
}

// TipHeight returns the highest simulated height
func (s *SimulatedSource) TipHeight() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return uint64(len(s.chain) - 1)
}

// ValidatorPubKey returns the hex pubkey the simulated chain is signed
// with, for wiring into a signature verifier.
func (s *SimulatedSource) ValidatorPubKey() string {
	return s.validatorPubKey
}

func (s *SimulatedSource) nextLatency() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.maxLatency <= s.minLatency {
		return s.minLatency
	}
	return s.minLatency + time.Duration(s.rng.Int63n(int64(s.maxLatency-s.minLatency)))
}

func (s *SimulatedSource) nextFailure() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failRate > 0 && s.rng.Float64() < s.failRate
}
