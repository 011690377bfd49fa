package syncer

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/ancourn/kaldr/block"
	"github.com/ancourn/kaldr/blockstore"
	"github.com/ancourn/kaldr/config"
	syncerrors "github.com/ancourn/kaldr/errors"
	"github.com/ancourn/kaldr/events"
	"github.com/ancourn/kaldr/exception"
	"github.com/ancourn/kaldr/fetcher"
	"github.com/ancourn/kaldr/logx"
	"github.com/ancourn/kaldr/monitoring"
	"github.com/ancourn/kaldr/store"
	"github.com/ancourn/kaldr/utils"
	"github.com/ancourn/kaldr/validator"
)

// Coordinator drives a catch-up session: it splits the height range
// into batches, fans out fetches, validates each batch and advances the
// stores. One session at a time; the loop goroutine is the single
// writer of SyncState and both stores.
type Coordinator struct {
	cfg       *config.CatchupConfig
	fetcher   *fetcher.Fetcher
	validator *validator.BatchValidator
	blocks    *blockstore.BlockStore
	archive   *store.HeaderStore // optional persistent archive
	vq        *ValidationQueue   // optional deep-validation feed
	bus       *events.EventBus

	mu                 sync.RWMutex
	state              SyncState
	phase              Phase
	sessionStart       time.Time
	sessionStartHeight uint64

	// ctx interrupts cooldown/interval waits and is checked at loop
	// boundaries; in-flight fetches are never force-interrupted, they
	// complete or time out on their own.
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewCoordinator(cfg *config.CatchupConfig, source fetcher.BlockSource, verifier validator.SignatureVerifier, bus *events.EventBus) *Coordinator {
	return &Coordinator{
		cfg:       cfg,
		fetcher:   fetcher.NewFetcher(source, cfg),
		validator: validator.NewBatchValidator(verifier),
		blocks:    blockstore.NewBlockStore(),
		bus:       bus,
		phase:     PhaseIdle,
	}
}

// WithArchive attaches a persistent header archive flushed per batch
func (c *Coordinator) WithArchive(archive *store.HeaderStore) *Coordinator {
	c.archive = archive
	return c
}

// WithValidationQueue feeds stored headers into a deep-validation queue
func (c *Coordinator) WithValidationQueue(vq *ValidationQueue) *Coordinator {
	c.vq = vq
	return c
}

// WithFetcherSleep overrides the fetch backoff sleeper. Intended for tests.
func (c *Coordinator) WithFetcherSleep(sleep func(time.Duration)) *Coordinator {
	c.fetcher.WithSleep(sleep)
	return c
}

// StartCatchup begins a session advancing from `from` to `to`. A call
// while a session is running is a no-op and keeps the running session's
// target untouched.
func (c *Coordinator) StartCatchup(from, to uint64) error {
	c.mu.Lock()
	if c.state.IsSyncing {
		c.mu.Unlock()
		logx.Warn("SYNC", fmt.Sprintf("Catchup already in progress, ignoring startCatchup(%d, %d)", from, to))
		return syncerrors.NewSyncError(syncerrors.ErrCodeAlreadySyncing, "catchup session already running")
	}

	now := time.Now()
	c.state = SyncState{
		CurrentHeight:          from,
		TargetHeight:           to,
		SyncSpeed:              0,
		EstimatedTimeRemaining: math.Inf(1),
		IsSyncing:              true,
		LastSyncUpdate:         now,
	}
	c.phase = PhaseSyncing
	c.sessionStart = now
	c.sessionStartHeight = from
	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.mu.Unlock()

	monitoring.SetSyncHeights(from, to)
	logx.Info("SYNC", fmt.Sprintf("Starting catchup from height %d to %d", from, to))
	c.bus.Publish(events.NewCatchupStarted(from, to))

	c.wg.Add(1)
	exception.SafeGo("catchup-loop", func() {
		defer c.wg.Done()
		c.run()
	})
	return nil
}

// Shutdown cooperatively stops the running session between iterations
// and waits for the loop to exit. Stored blocks are kept; no
// catchupCompleted event is emitted for a cancelled session.
func (c *Coordinator) Shutdown() {
	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
	}
	c.mu.Unlock()
	c.wg.Wait()
}

// Wait blocks until the current session's loop has exited
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

// GetSyncState returns a snapshot of the session state
func (c *Coordinator) GetSyncState() SyncState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// GetPhase returns the coordinator lifecycle phase
func (c *Coordinator) GetPhase() Phase {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.phase
}

// GetBlock returns the stored header at height, nil when absent
func (c *Coordinator) GetBlock(height uint64) *block.Header {
	return c.blocks.Block(height)
}

// GetLatestBlocks returns up to count trailing stored headers in
// ascending height order.
func (c *Coordinator) GetLatestBlocks(count int) []*block.Header {
	return c.blocks.LatestBlocks(count)
}

// BlockStore exposes the session store for collaborating components
func (c *Coordinator) BlockStore() *blockstore.BlockStore {
	return c.blocks
}

func (c *Coordinator) run() {
	consecutiveFailures := 0

	for {
		if c.ctx.Err() != nil {
			c.abandon()
			return
		}

		c.mu.RLock()
		current, target := c.state.CurrentHeight, c.state.TargetHeight
		c.mu.RUnlock()

		if current >= target {
			c.complete(true)
			return
		}

		start := current + 1
		end := current + uint64(c.cfg.MaxBatchSize)
		if end > target {
			end = target
		}

		batchStarted := time.Now()
		batch, err := c.fetchRange(start, end)
		if err == nil {
			err = c.validator.Validate(batch)
		}

		if err != nil {
			monitoring.IncreaseCatchupErrorCount()
			logx.Error("SYNC", fmt.Sprintf("Batch [%d..%d] failed: %v", start, end, err))
			c.bus.Publish(events.NewCatchupError(start, end, err))

			consecutiveFailures++
			if c.cfg.BatchRetryLimit > 0 && consecutiveFailures >= c.cfg.BatchRetryLimit {
				logx.Error("SYNC", fmt.Sprintf("Batch [%d..%d] failed %d consecutive times, aborting session", start, end, consecutiveFailures))
				c.bus.Publish(events.NewCatchupError(start, end, syncerrors.NewSyncErrorAt(
					syncerrors.ErrCodeRetriesExceeded,
					fmt.Sprintf("batch failed %d consecutive times", consecutiveFailures), start)))
				c.complete(false)
				return
			}

			c.pause(time.Duration(c.cfg.BatchCooldownMs) * time.Millisecond)
			continue
		}

		// All-or-nothing: the whole batch is stored only after it
		// validated end-to-end.
		c.blocks.PutBatch(batch)
		if c.archive != nil {
			if archiveErr := c.archive.PutBatch(batch); archiveErr != nil {
				logx.Error("SYNC", "Failed to archive batch: ", archiveErr)
			}
		}
		if c.vq != nil {
			c.vq.Enqueue(batch...)
		}

		consecutiveFailures = 0
		c.advance(start, end)
		monitoring.ObserveBatchSyncTime(time.Since(batchStarted).Seconds())

		c.pause(time.Duration(c.cfg.BatchIntervalMs) * time.Millisecond)
	}
}

// fetchRange fans out one fetch per height, at most parallelSyncs in
// flight, and assembles the results in ascending order. A height whose
// retries are exhausted surfaces as an incomplete batch; sibling
// fetches are unaffected.
func (c *Coordinator) fetchRange(start, end uint64) ([]*block.Header, error) {
	count := int(end - start + 1)
	results := make([]*block.Header, count)
	errs := make([]error, count)

	parallel := c.cfg.ParallelSyncs
	if parallel < 1 {
		parallel = 1
	}
	sem := make(chan struct{}, parallel)
	var wg sync.WaitGroup
	for i := 0; i < count; i++ {
		idx := i
		height := start + uint64(i)
		wg.Add(1)
		exception.SafeGo("fetch-height", func() {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			results[idx], errs[idx] = c.fetcher.Fetch(context.Background(), height)
		})
	}
	wg.Wait()

	for i, h := range results {
		if h == nil {
			height := start + uint64(i)
			return nil, syncerrors.NewSyncErrorAt(syncerrors.ErrCodeIncompleteBatch,
				fmt.Sprintf("missing header for height %d: %v", height, errs[i]), height)
		}
	}
	return results, nil
}

// advance is called after a batch is stored: it moves currentHeight to
// the batch's final height and recomputes the progress estimates.
func (c *Coordinator) advance(start, end uint64) {
	now := time.Now()

	c.mu.Lock()
	c.state.CurrentHeight = end
	c.state.LastSyncUpdate = now

	elapsed := utils.SecondsBetween(c.sessionStart, now)
	if elapsed > 0 {
		c.state.SyncSpeed = float64(end-c.sessionStartHeight) / elapsed
	}

	remaining := float64(c.state.TargetHeight - end)
	if remaining == 0 {
		c.state.EstimatedTimeRemaining = 0
	} else if c.state.SyncSpeed > 0 {
		c.state.EstimatedTimeRemaining = remaining / c.state.SyncSpeed
	} else {
		c.state.EstimatedTimeRemaining = math.Inf(1)
	}

	var progressPercent float64 = 100
	if span := c.state.TargetHeight - c.sessionStartHeight; span > 0 {
		progressPercent = float64(end-c.sessionStartHeight) / float64(span) * 100
	}

	target := c.state.TargetHeight
	speed := c.state.SyncSpeed
	eta := c.state.EstimatedTimeRemaining
	c.mu.Unlock()

	monitoring.SetSyncHeights(end, target)
	monitoring.SetSyncSpeed(speed)
	monitoring.IncreaseBatchSyncedCount()

	logx.Info("SYNC", fmt.Sprintf("Synced batch [%d..%d] (%.1f%%, %.2f blocks/s)", start, end, progressPercent, speed))
	c.bus.Publish(events.NewCatchupProgress(end, target, progressPercent, speed, eta))
	c.bus.Publish(events.NewBatchSynced(start, end, int(end-start+1)))
}

// complete finalizes the session, successfully or not
func (c *Coordinator) complete(success bool) {
	c.mu.Lock()
	duration := time.Since(c.sessionStart)
	finalHeight := c.state.CurrentHeight
	c.state.IsSyncing = false
	c.state.LastSyncUpdate = time.Now()
	if success {
		c.state.EstimatedTimeRemaining = 0
		c.phase = PhaseCompleted
	} else {
		c.phase = PhaseFailed
	}
	c.mu.Unlock()

	if success {
		logx.Info("SYNC", fmt.Sprintf("Catchup completed at height %d in %s", finalHeight, duration))
	} else {
		logx.Error("SYNC", fmt.Sprintf("Catchup failed at height %d after %s", finalHeight, duration))
	}
	c.bus.Publish(events.NewCatchupCompleted(finalHeight, duration, success))
}

// abandon finalizes a cancelled session: no completion event, no
// rollback of already-stored blocks.
func (c *Coordinator) abandon() {
	c.mu.Lock()
	c.state.IsSyncing = false
	c.state.LastSyncUpdate = time.Now()
	c.phase = PhaseIdle
	height := c.state.CurrentHeight
	c.mu.Unlock()

	logx.Info("SYNC", fmt.Sprintf("Catchup cancelled at height %d", height))
}

// pause waits for d unless the session is cancelled first
func (c *Coordinator) pause(d time.Duration) {
	if d <= 0 {
		return
	}
	select {
	case <-time.After(d):
	case <-c.ctx.Done():
	}
}
