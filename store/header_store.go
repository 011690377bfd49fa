package store

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/ancourn/kaldr/block"
	"github.com/ancourn/kaldr/db"
	"github.com/ancourn/kaldr/jsonx"
	"github.com/ancourn/kaldr/logx"
)

const (
	// PrefixHeader namespaces header records: PrefixHeader + big-endian height
	PrefixHeader = "bh:"
	// PrefixMeta namespaces store metadata
	PrefixMeta = "meta:"

	metaKeyLatestHeight = "latest_height"
)

// HeaderStore persists validated headers across restarts. It is a
// database-agnostic archive over db.DatabaseProvider; the in-memory
// blockstore stays the session-hot registry.
type HeaderStore struct {
	provider db.DatabaseProvider
	mu       sync.RWMutex
	latest   uint64
	hasAny   bool
}

// NewHeaderStore creates a header archive on the given provider
func NewHeaderStore(provider db.DatabaseProvider) (*HeaderStore, error) {
	if provider == nil {
		return nil, fmt.Errorf("provider cannot be nil")
	}

	hs := &HeaderStore{provider: provider}
	if err := hs.loadLatestHeight(); err != nil {
		return nil, fmt.Errorf("failed to load metadata: %w", err)
	}
	return hs, nil
}

func (s *HeaderStore) loadLatestHeight() error {
	value, err := s.provider.Get(metaKey(metaKeyLatestHeight))
	if err != nil {
		return fmt.Errorf("failed to get latest height: %w", err)
	}

	if value == nil {
		// No existing data
		s.latest = 0
		s.hasAny = false
		return nil
	}

	if len(value) != 8 {
		return fmt.Errorf("invalid latest height value length: %d", len(value))
	}

	s.latest = binary.BigEndian.Uint64(value)
	s.hasAny = true
	return nil
}

func metaKey(name string) []byte {
	return []byte(PrefixMeta + name)
}

// heightToKey converts a height to a header storage key
func heightToKey(height uint64) []byte {
	key := make([]byte, len(PrefixHeader)+8)
	copy(key, PrefixHeader)
	binary.BigEndian.PutUint64(key[len(PrefixHeader):], height)
	return key
}

// PutBatch writes a validated batch and the latest-height metadata in
// one atomic provider batch.
func (s *HeaderStore) PutBatch(headers []*block.Header) error {
	if len(headers) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batch := s.provider.Batch()
	defer batch.Close()

	latest := s.latest
	for _, h := range headers {
		data, err := jsonx.Marshal(h)
		if err != nil {
			return fmt.Errorf("failed to marshal header %d: %w", h.Height, err)
		}
		batch.Put(heightToKey(h.Height), data)
		if h.Height > latest {
			latest = h.Height
		}
	}

	latestValue := make([]byte, 8)
	binary.BigEndian.PutUint64(latestValue, latest)
	batch.Put(metaKey(metaKeyLatestHeight), latestValue)

	if err := batch.Write(); err != nil {
		return fmt.Errorf("failed to write header batch: %w", err)
	}

	s.latest = latest
	s.hasAny = true
	logx.Debug("HEADERSTORE", fmt.Sprintf("Archived batch [%d..%d], latest=%d", headers[0].Height, headers[len(headers)-1].Height, latest))
	return nil
}

// Header retrieves a header by height, nil when absent
func (s *HeaderStore) Header(height uint64) (*block.Header, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	value, err := s.provider.Get(heightToKey(height))
	if err != nil {
		return nil, fmt.Errorf("failed to get header %d: %w", height, err)
	}
	if value == nil {
		return nil, nil
	}

	var h block.Header
	if err := jsonx.Unmarshal(value, &h); err != nil {
		return nil, fmt.Errorf("failed to unmarshal header %d: %w", height, err)
	}
	return &h, nil
}

// HasHeader checks whether a height has been archived
func (s *HeaderStore) HasHeader(height uint64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.provider.Has(heightToKey(height))
}

// LatestHeight returns the highest archived height and whether the
// archive holds anything at all.
func (s *HeaderStore) LatestHeight() (uint64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.latest, s.hasAny
}

// MustClose closes the underlying provider, logging on failure
func (s *HeaderStore) MustClose() {
	if err := s.provider.Close(); err != nil {
		logx.Error("HEADERSTORE", "Failed to close provider: ", err)
	}
}
