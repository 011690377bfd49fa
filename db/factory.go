package db

import (
	"fmt"
	"path/filepath"
)

// Backend names a supported database backend
type Backend string

const (
	BackendLevelDB Backend = "leveldb"
	BackendBolt    Backend = "bolt"
)

// NewProvider creates a DatabaseProvider of the given backend rooted at
// dataDir.
func NewProvider(backend Backend, dataDir string) (DatabaseProvider, error) {
	switch backend {
	case BackendLevelDB:
		return NewLevelDBProvider(filepath.Join(dataDir, "headers"))
	case BackendBolt:
		return NewBoltProvider(filepath.Join(dataDir, "headers.db"))
	default:
		return nil, fmt.Errorf("unsupported database backend: %s", backend)
	}
}
