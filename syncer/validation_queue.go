package syncer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ancourn/kaldr/block"
	"github.com/ancourn/kaldr/config"
	"github.com/ancourn/kaldr/events"
	"github.com/ancourn/kaldr/exception"
	"github.com/ancourn/kaldr/logx"
	"github.com/ancourn/kaldr/monitoring"
	"github.com/ancourn/kaldr/validator"
)

// ValidationQueue re-checks already-stored headers on a fixed cadence,
// off the hot catch-up path. The coordinator is the producer, the
// queue's own goroutine the consumer. Invalid results are reported via
// blockValidated events, not remediated.
type ValidationQueue struct {
	verifier validator.SignatureVerifier
	bus      *events.EventBus
	depth    int
	tick     time.Duration

	mu    sync.Mutex
	queue []*block.Header

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewValidationQueue(cfg *config.CatchupConfig, verifier validator.SignatureVerifier, bus *events.EventBus) *ValidationQueue {
	ctx, cancel := context.WithCancel(context.Background())
	if verifier == nil {
		verifier = validator.BasicVerifier{}
	}
	return &ValidationQueue{
		verifier: verifier,
		bus:      bus,
		depth:    cfg.ValidationDepth,
		tick:     time.Duration(cfg.ValidationTickMs) * time.Millisecond,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Enqueue appends stored headers pending deep validation
func (vq *ValidationQueue) Enqueue(headers ...*block.Header) {
	vq.mu.Lock()
	vq.queue = append(vq.queue, headers...)
	depth := len(vq.queue)
	vq.mu.Unlock()

	monitoring.SetValidationQueueDepth(depth)
}

// Len returns the number of headers awaiting deep validation
func (vq *ValidationQueue) Len() int {
	vq.mu.Lock()
	defer vq.mu.Unlock()
	return len(vq.queue)
}

// Start launches the drain loop
func (vq *ValidationQueue) Start() {
	vq.wg.Add(1)
	exception.SafeGo("validation-queue", func() {
		defer vq.wg.Done()

		ticker := time.NewTicker(vq.tick)
		defer ticker.Stop()

		for {
			select {
			case <-vq.ctx.Done():
				return
			case <-ticker.C:
				vq.DrainOnce()
			}
		}
	})
}

// Stop halts the drain loop and waits for it to exit
func (vq *ValidationQueue) Stop() {
	vq.cancel()
	vq.wg.Wait()
}

// DrainOnce dequeues up to validationDepth headers and re-runs the
// structural and signature checks, emitting one blockValidated event
// per header regardless of outcome.
func (vq *ValidationQueue) DrainOnce() int {
	vq.mu.Lock()
	n := vq.depth
	if n > len(vq.queue) {
		n = len(vq.queue)
	}
	drained := vq.queue[:n]
	vq.queue = vq.queue[n:]
	depth := len(vq.queue)
	vq.mu.Unlock()

	monitoring.SetValidationQueueDepth(depth)

	for _, h := range drained {
		isValid := vq.deepValidate(h)
		monitoring.IncreaseDeepValidatedCount(isValid)
		if !isValid {
			logx.Warn("VALIDATION_QUEUE", fmt.Sprintf("Deep validation failed for height %d (%s)", h.Height, h.HashString()))
		}
		vq.bus.Publish(events.NewBlockValidated(h.Height, h.HashString(), isValid))
	}

	return len(drained)
}

// deepValidate re-runs the structural hash check and the signature
// capability on a stored header.
func (vq *ValidationQueue) deepValidate(h *block.Header) bool {
	if h.Hash != h.ComputeHash() {
		return false
	}
	return vq.verifier.VerifySignature(h)
}
