package syncer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ancourn/kaldr/block"
	"github.com/ancourn/kaldr/events"
	"github.com/ancourn/kaldr/validator"
)

func queuedChain(to uint64) []*block.Header {
	headers := make([]*block.Header, 0, to+1)
	prevHash := block.GenesisPrevHash
	for height := uint64(0); height <= to; height++ {
		h := block.AssembleHeader(height, prevHash, "validator-a", time.Unix(int64(1700000000+height), 0))
		h.Signature = []byte{0x01}
		headers = append(headers, h)
		prevHash = h.Hash
	}
	return headers
}

func TestValidationQueueDrainsUpToDepth(t *testing.T) {
	cfg := testCatchupConfig()
	cfg.ValidationDepth = 4
	bus := events.NewEventBus()
	vq := NewValidationQueue(cfg, validator.BasicVerifier{}, bus)

	vq.Enqueue(queuedChain(9)...)
	require.Equal(t, 10, vq.Len())

	assert.Equal(t, 4, vq.DrainOnce())
	assert.Equal(t, 6, vq.Len())
	assert.Equal(t, 4, vq.DrainOnce())
	assert.Equal(t, 2, vq.DrainOnce())
	assert.Equal(t, 0, vq.DrainOnce(), "draining an empty queue is a no-op")
	assert.Equal(t, 0, vq.Len())
}

func TestValidationQueueEmitsEventPerHeader(t *testing.T) {
	cfg := testCatchupConfig()
	bus := events.NewEventBus()
	_, ch := bus.Subscribe()
	vq := NewValidationQueue(cfg, validator.BasicVerifier{}, bus)

	headers := queuedChain(2)
	// Tampered header: stored hash no longer matches its fields
	headers[1].Validator = "someone-else"
	// Missing signature fails the verifier
	headers[2].Signature = nil

	vq.Enqueue(headers...)
	require.Equal(t, 3, vq.DrainOnce())

	// One blockValidated per drained header, in queue order, valid or not
	want := []bool{true, false, false}
	for i, expectValid := range want {
		event := waitForEvent(t, ch, events.EventBlockValidated, time.Second).(*events.BlockValidated)
		assert.Equal(t, uint64(i), event.Height())
		assert.Equal(t, expectValid, event.IsValid())
		assert.Equal(t, headers[i].HashString(), event.BlockHash())
	}
}

func TestValidationQueueBackgroundLoop(t *testing.T) {
	cfg := testCatchupConfig()
	cfg.ValidationDepth = 2
	cfg.ValidationTickMs = 5
	bus := events.NewEventBus()
	_, ch := bus.Subscribe()
	vq := NewValidationQueue(cfg, validator.BasicVerifier{}, bus)

	vq.Start()
	defer vq.Stop()

	vq.Enqueue(queuedChain(5)...)

	for i := 0; i < 6; i++ {
		waitForEvent(t, ch, events.EventBlockValidated, time.Second)
	}
	assert.Equal(t, 0, vq.Len())
}

func TestCoordinatorFeedsValidationQueue(t *testing.T) {
	source := newChainSource(5)
	bus := events.NewEventBus()
	_, ch := bus.Subscribe()

	cfg := testCatchupConfig()
	vq := NewValidationQueue(cfg, validator.BasicVerifier{}, bus)
	c := NewCoordinator(cfg, source, validator.BasicVerifier{}, bus).
		WithFetcherSleep(func(time.Duration) {}).
		WithValidationQueue(vq)

	require.NoError(t, c.StartCatchup(0, 5))
	c.Wait()

	require.Equal(t, 5, vq.Len(), "every stored header is queued for deep validation")
	assert.Equal(t, 5, vq.DrainOnce())

	validated := 0
	for _, event := range drainEvents(ch) {
		if event.Type() == events.EventBlockValidated {
			validated++
		}
	}
	assert.Equal(t, 5, validated)
}
