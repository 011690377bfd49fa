package blockstore

import (
	"fmt"
	"sync"

	"github.com/ancourn/kaldr/block"
	"github.com/ancourn/kaldr/logx"
)

// BlockStore is the in-memory registry of validated headers for a
// catch-up session, keyed by height. Append-only while a session runs:
// the coordinator is the single writer, readers get copies.
type BlockStore struct {
	mu      sync.RWMutex
	headers map[uint64]*block.Header
	latest  uint64
}

func NewBlockStore() *BlockStore {
	return &BlockStore{
		headers: make(map[uint64]*block.Header),
	}
}

// PutBatch stores a validated, height-ascending batch. Headers already
// present are not overwritten (entries are immutable once stored).
func (bs *BlockStore) PutBatch(headers []*block.Header) {
	if len(headers) == 0 {
		return
	}

	bs.mu.Lock()
	defer bs.mu.Unlock()

	for _, h := range headers {
		if _, exists := bs.headers[h.Height]; exists {
			continue
		}
		bs.headers[h.Height] = h
		if h.Height > bs.latest {
			bs.latest = h.Height
		}
	}

	logx.Debug("BLOCKSTORE", fmt.Sprintf("Stored batch [%d..%d], latest=%d", headers[0].Height, headers[len(headers)-1].Height, bs.latest))
}

// Block returns the header at height, or nil when absent.
func (bs *BlockStore) Block(height uint64) *block.Header {
	bs.mu.RLock()
	defer bs.mu.RUnlock()

	return bs.headers[height]
}

func (bs *BlockStore) HasBlock(height uint64) bool {
	bs.mu.RLock()
	defer bs.mu.RUnlock()

	_, exists := bs.headers[height]
	return exists
}

// LatestHeight returns the highest stored height, 0 when empty.
func (bs *BlockStore) LatestHeight() uint64 {
	bs.mu.RLock()
	defer bs.mu.RUnlock()

	return bs.latest
}

// LatestBlocks returns up to count trailing headers in ascending height
// order. The result is a snapshot; re-querying returns current state.
func (bs *BlockStore) LatestBlocks(count int) []*block.Header {
	bs.mu.RLock()
	defer bs.mu.RUnlock()

	if count <= 0 {
		return nil
	}

	// Walk down from the latest height, then reverse to ascending.
	descending := make([]*block.Header, 0, count)
	for height := bs.latest; len(descending) < count; height-- {
		if h, exists := bs.headers[height]; exists {
			descending = append(descending, h)
		}
		if height == 0 {
			break
		}
	}

	ascending := make([]*block.Header, len(descending))
	for i, h := range descending {
		ascending[len(descending)-1-i] = h
	}
	return ascending
}

func (bs *BlockStore) Len() int {
	bs.mu.RLock()
	defer bs.mu.RUnlock()

	return len(bs.headers)
}
