package fetcher

import (
	"context"
	"fmt"
	"time"

	"github.com/ancourn/kaldr/block"
	"github.com/ancourn/kaldr/config"
	syncerrors "github.com/ancourn/kaldr/errors"
	"github.com/ancourn/kaldr/logx"
	"github.com/ancourn/kaldr/monitoring"
)

// BlockSource is the fetch capability supplied by the network layer.
// Production code backs it with a peer client; tests use a fake.
type BlockSource interface {
	BlockAt(ctx context.Context, height uint64) (*block.Header, error)
}

// backoffUnit is the base wait of the exponential backoff: attempt n
// waits 2^n units before retrying.
const backoffUnit = 100 * time.Millisecond

// Fetcher retrieves single headers with bounded-attempt retry. It holds
// no subsystem state; every call is independent.
type Fetcher struct {
	source        BlockSource
	retryAttempts int
	timeout       time.Duration

	// sleep is injectable so backoff is testable without real waits
	sleep func(time.Duration)
}

func NewFetcher(source BlockSource, cfg *config.CatchupConfig) *Fetcher {
	return &Fetcher{
		source:        source,
		retryAttempts: cfg.RetryAttempts,
		timeout:       time.Duration(cfg.SyncTimeoutMs) * time.Millisecond,
		sleep:         time.Sleep,
	}
}

// WithSleep overrides the backoff sleeper. Intended for tests.
func (f *Fetcher) WithSleep(sleep func(time.Duration)) *Fetcher {
	f.sleep = sleep
	return f
}

// Fetch retrieves the header at height, retrying transient failures
// with exponential backoff. The height is attempted at most
// retryAttempts+1 times before the error is permanent.
func (f *Fetcher) Fetch(ctx context.Context, height uint64) (*block.Header, error) {
	var lastErr error

	for attempt := 1; ; attempt++ {
		h, err := f.fetchOnce(ctx, height)
		if err == nil {
			return h, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if attempt > f.retryAttempts {
			break
		}

		wait := backoffUnit * (1 << uint(attempt))
		logx.Warn("FETCHER", fmt.Sprintf("Fetch failed for height %d (attempt %d/%d), retrying in %s: %v", height, attempt, f.retryAttempts+1, wait, err))
		monitoring.IncreaseFetchRetryCount()
		f.sleep(wait)
	}

	// Already-coded failures keep their code through the retry loop
	if se, ok := lastErr.(*syncerrors.SyncError); ok {
		return nil, se
	}
	return nil, syncerrors.NewSyncErrorAt(syncerrors.ErrCodeFetchFailed,
		fmt.Sprintf("fetch failed after %d attempts: %v", f.retryAttempts+1, lastErr), height)
}

func (f *Fetcher) fetchOnce(ctx context.Context, height uint64) (*block.Header, error) {
	fetchCtx := ctx
	if f.timeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	h, err := f.source.BlockAt(fetchCtx, height)
	if err != nil {
		if fetchCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			return nil, syncerrors.NewSyncErrorAt(syncerrors.ErrCodeFetchTimeout,
				fmt.Sprintf("fetch timed out after %s", f.timeout), height)
		}
		return nil, err
	}
	if h == nil {
		return nil, syncerrors.NewSyncErrorAt(syncerrors.ErrCodeMalformedBlock, "source returned no header", height)
	}
	if h.Height != height {
		return nil, syncerrors.NewSyncErrorAt(syncerrors.ErrCodeMalformedBlock,
			fmt.Sprintf("source returned height %d", h.Height), height)
	}
	return h, nil
}
