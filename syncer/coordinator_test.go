package syncer

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ancourn/kaldr/block"
	"github.com/ancourn/kaldr/config"
	syncerrors "github.com/ancourn/kaldr/errors"
	"github.com/ancourn/kaldr/events"
	"github.com/ancourn/kaldr/validator"
)

// chainSource serves a pre-built header chain, with per-height
// permanent failures, an optional gate blocking every fetch, an
// optional per-fetch delay, and high-water tracking of concurrent
// fetches.
type chainSource struct {
	mu          sync.Mutex
	headers     map[uint64]*block.Header
	failHeights map[uint64]bool
	gate        chan struct{}
	delay       time.Duration
	inflight    int
	maxInflight int
}

func newChainSource(to uint64) *chainSource {
	headers := make(map[uint64]*block.Header, to+1)
	prevHash := block.GenesisPrevHash
	for height := uint64(0); height <= to; height++ {
		h := block.AssembleHeader(height, prevHash, "validator-a", time.Unix(int64(1700000000+height), 0))
		h.Signature = []byte{0x01} // satisfies the minimum-viable check
		headers[height] = h
		prevHash = h.Hash
	}
	return &chainSource{
		headers:     headers,
		failHeights: make(map[uint64]bool),
	}
}

func (s *chainSource) BlockAt(ctx context.Context, height uint64) (*block.Header, error) {
	s.mu.Lock()
	gate := s.gate
	s.inflight++
	if s.inflight > s.maxInflight {
		s.maxInflight = s.inflight
	}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.inflight--
		s.mu.Unlock()
	}()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failHeights[height] {
		return nil, fmt.Errorf("peer unavailable for height %d", height)
	}
	h, exists := s.headers[height]
	if !exists {
		return nil, fmt.Errorf("no header at height %d", height)
	}
	cloned := *h
	return &cloned, nil
}

func testCatchupConfig() *config.CatchupConfig {
	return &config.CatchupConfig{
		MaxBatchSize:     5,
		SyncTimeoutMs:    2000,
		RetryAttempts:    1,
		ParallelSyncs:    3,
		ValidationDepth:  10,
		BatchRetryLimit:  10,
		BatchCooldownMs:  5,
		BatchIntervalMs:  1,
		ValidationTickMs: 10,
	}
}

func newTestCoordinator(cfg *config.CatchupConfig, source *chainSource) (*Coordinator, chan events.SyncEvent) {
	bus := events.NewEventBus()
	_, ch := bus.Subscribe()
	c := NewCoordinator(cfg, source, validator.BasicVerifier{}, bus).
		WithFetcherSleep(func(time.Duration) {})
	return c, ch
}

// drainEvents empties whatever is buffered right now
func drainEvents(ch chan events.SyncEvent) []events.SyncEvent {
	var collected []events.SyncEvent
	for {
		select {
		case event := <-ch:
			collected = append(collected, event)
		default:
			return collected
		}
	}
}

func waitForEvent(t *testing.T, ch chan events.SyncEvent, eventType events.EventType, timeout time.Duration) events.SyncEvent {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case event := <-ch:
			if event.Type() == eventType {
				return event
			}
		case <-deadline:
			t.Fatalf("timeout waiting for %s", eventType)
			return nil
		}
	}
}

func TestCatchupSingleBatch(t *testing.T) {
	// Scenario: startCatchup(0, 5) with maxBatchSize=5, everything
	// succeeds, one batch, one completion.
	source := newChainSource(5)
	c, ch := newTestCoordinator(testCatchupConfig(), source)

	require.NoError(t, c.StartCatchup(0, 5))
	c.Wait()

	state := c.GetSyncState()
	assert.Equal(t, uint64(5), state.CurrentHeight)
	assert.Equal(t, uint64(5), state.TargetHeight)
	assert.False(t, state.IsSyncing)
	assert.Equal(t, float64(0), state.EstimatedTimeRemaining)
	assert.Equal(t, PhaseCompleted, c.GetPhase())

	batchEvent := waitForEvent(t, ch, events.EventBatchSynced, time.Second).(*events.BatchSynced)
	assert.Equal(t, uint64(1), batchEvent.StartHeight())
	assert.Equal(t, uint64(5), batchEvent.EndHeight())
	assert.Equal(t, 5, batchEvent.BlockCount())

	completed := waitForEvent(t, ch, events.EventCatchupCompleted, time.Second).(*events.CatchupCompleted)
	assert.Equal(t, uint64(5), completed.FinalHeight())
	assert.True(t, completed.Success())

	for height := uint64(1); height <= 5; height++ {
		require.NotNil(t, c.GetBlock(height), "height %d should be stored", height)
	}
}

func TestCatchupMultipleBatchesMonotonic(t *testing.T) {
	source := newChainSource(23)
	c, ch := newTestCoordinator(testCatchupConfig(), source)

	require.NoError(t, c.StartCatchup(0, 23))
	c.Wait()

	assert.Equal(t, uint64(23), c.GetSyncState().CurrentHeight)

	// currentHeight must never decrease across progress events
	var last uint64
	for _, event := range drainEvents(ch) {
		if progress, ok := event.(*events.CatchupProgress); ok {
			require.GreaterOrEqual(t, progress.CurrentHeight(), last)
			last = progress.CurrentHeight()
			assert.Greater(t, progress.SyncSpeed(), float64(0))
		}
	}
	assert.Equal(t, uint64(23), last)

	latest := c.GetLatestBlocks(3)
	require.Len(t, latest, 3)
	assert.Equal(t, uint64(21), latest[0].Height)
	assert.Equal(t, uint64(23), latest[2].Height)
}

func TestCatchupMissingHeightEmitsErrors(t *testing.T) {
	// Scenario: height 11 never fetches; the batch [11,12] keeps
	// failing until shutdown, and nothing is stored.
	source := newChainSource(12)
	source.failHeights[11] = true

	cfg := testCatchupConfig()
	cfg.BatchRetryLimit = 0 // retry forever
	c, ch := newTestCoordinator(cfg, source)

	require.NoError(t, c.StartCatchup(10, 12))

	waitForEvent(t, ch, events.EventCatchupError, 2*time.Second)
	waitForEvent(t, ch, events.EventCatchupError, 2*time.Second)

	c.Shutdown()

	state := c.GetSyncState()
	assert.Equal(t, uint64(10), state.CurrentHeight)
	assert.False(t, state.IsSyncing)
	assert.Nil(t, c.GetBlock(11))
	assert.Nil(t, c.GetBlock(12))

	// A cancelled session never reports completion
	for _, event := range drainEvents(ch) {
		assert.NotEqual(t, events.EventCatchupCompleted, event.Type())
	}
}

func TestCatchupAllOrNothingOnChainBreak(t *testing.T) {
	// Scenario: the source serves a header at height 7 whose prev hash
	// does not match height 6; the whole batch is rejected.
	source := newChainSource(8)
	tampered := *source.headers[7]
	tampered.PrevHash = [32]byte{0xba, 0xad}
	tampered.Hash = tampered.ComputeHash()
	source.headers[7] = &tampered

	cfg := testCatchupConfig()
	cfg.BatchRetryLimit = 2
	c, ch := newTestCoordinator(cfg, source)

	require.NoError(t, c.StartCatchup(5, 8))
	c.Wait()

	state := c.GetSyncState()
	assert.Equal(t, uint64(5), state.CurrentHeight, "currentHeight must stay at the last validated height")
	assert.Equal(t, PhaseFailed, c.GetPhase())
	assert.Nil(t, c.GetBlock(6), "no header from a rejected batch may be stored")
	assert.Nil(t, c.GetBlock(7))
	assert.Nil(t, c.GetBlock(8))

	// Hitting the batch retry limit surfaces as a coded final error
	// before the failed completion.
	var sawEscalation bool
	var completed *events.CatchupCompleted
	deadline := time.After(2 * time.Second)
	for completed == nil {
		select {
		case event := <-ch:
			switch e := event.(type) {
			case *events.CatchupError:
				if syncerrors.CodeOf(e.Err()) == syncerrors.ErrCodeRetriesExceeded {
					sawEscalation = true
				}
			case *events.CatchupCompleted:
				completed = e
			}
		case <-deadline:
			t.Fatal("timeout waiting for completion")
		}
	}
	assert.True(t, sawEscalation, "retry-limit escalation must carry the retries_exceeded code")
	assert.False(t, completed.Success())
}

func TestFetchFanOutCappedByParallelSyncs(t *testing.T) {
	source := newChainSource(10)
	source.delay = 5 * time.Millisecond

	cfg := testCatchupConfig()
	cfg.MaxBatchSize = 10
	cfg.ParallelSyncs = 2
	c, _ := newTestCoordinator(cfg, source)

	require.NoError(t, c.StartCatchup(0, 10))
	c.Wait()

	assert.Equal(t, uint64(10), c.GetSyncState().CurrentHeight)

	source.mu.Lock()
	maxInflight := source.maxInflight
	source.mu.Unlock()
	assert.LessOrEqual(t, maxInflight, 2, "fan-out must not exceed parallel_syncs")
	assert.GreaterOrEqual(t, maxInflight, 1)
}

func TestStartCatchupWhileSyncingIsNoOp(t *testing.T) {
	// Scenario: a second startCatchup before the first completes must
	// not replace the running session's target.
	source := newChainSource(5)
	source.gate = make(chan struct{})
	c, _ := newTestCoordinator(testCatchupConfig(), source)

	require.NoError(t, c.StartCatchup(0, 5))

	err := c.StartCatchup(0, 99)
	require.Error(t, err)
	assert.Equal(t, uint64(5), c.GetSyncState().TargetHeight)

	close(source.gate)
	c.Wait()

	state := c.GetSyncState()
	assert.Equal(t, uint64(5), state.TargetHeight)
	assert.Equal(t, uint64(5), state.CurrentHeight)
}

func TestCoordinatorIsReusableAfterCompletion(t *testing.T) {
	source := newChainSource(10)
	c, ch := newTestCoordinator(testCatchupConfig(), source)

	require.NoError(t, c.StartCatchup(0, 5))
	c.Wait()
	assert.Equal(t, PhaseCompleted, c.GetPhase())

	require.NoError(t, c.StartCatchup(5, 10))
	c.Wait()

	state := c.GetSyncState()
	assert.Equal(t, uint64(10), state.CurrentHeight)
	assert.False(t, state.IsSyncing)

	completions := 0
	for _, event := range drainEvents(ch) {
		if event.Type() == events.EventCatchupCompleted {
			completions++
		}
	}
	assert.Equal(t, 2, completions)
}

func TestCatchupEmptyRangeCompletesImmediately(t *testing.T) {
	source := newChainSource(5)
	c, ch := newTestCoordinator(testCatchupConfig(), source)

	require.NoError(t, c.StartCatchup(5, 5))
	c.Wait()

	completed := waitForEvent(t, ch, events.EventCatchupCompleted, time.Second).(*events.CatchupCompleted)
	assert.True(t, completed.Success())
	assert.Equal(t, uint64(5), completed.FinalHeight())
	assert.Equal(t, 0, c.BlockStore().Len())
}

func TestCatchupRecoversFromTransientFailures(t *testing.T) {
	source := newChainSource(9)

	// Height 3 fails for the first rounds, then the peer recovers.
	source.failHeights[3] = true
	recovered := make(chan struct{})
	go func() {
		time.Sleep(50 * time.Millisecond)
		source.mu.Lock()
		delete(source.failHeights, 3)
		source.mu.Unlock()
		close(recovered)
	}()

	cfg := testCatchupConfig()
	cfg.BatchRetryLimit = 0
	c, ch := newTestCoordinator(cfg, source)

	require.NoError(t, c.StartCatchup(0, 9))
	<-recovered
	c.Wait()

	assert.Equal(t, uint64(9), c.GetSyncState().CurrentHeight)
	completed := waitForEvent(t, ch, events.EventCatchupCompleted, time.Second).(*events.CatchupCompleted)
	assert.True(t, completed.Success())
}
