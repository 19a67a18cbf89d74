package store

import (
	"fmt"
	"path/filepath"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
)

// Config holds the configuration for the snapshot database.
type Config struct {
	// DataDir is the directory where BadgerDB will store its data.
	DataDir string

	// InMemory enables in-memory mode (useful for testing).
	InMemory bool

	// BlockCacheSize is the size of the block cache in bytes.
	BlockCacheSize int64

	// IndexCacheSize is the size of the index cache in bytes.
	IndexCacheSize int64

	// Compression enables ZSTD compression of SST blocks. Values are
	// s2-compressed regardless.
	Compression bool

	// SyncWrites enables synchronous writes.
	SyncWrites bool

	// ReadOnly enables read-only mode.
	ReadOnly bool
}

// Validate checks if the configuration is valid and returns an error if not.
func (c *Config) Validate() error {
	if c.DataDir == "" && !c.InMemory {
		return fmt.Errorf("DataDir must be specified when InMemory is false")
	}
	if c.BlockCacheSize <= 0 {
		return fmt.Errorf("BlockCacheSize must be positive, got %d", c.BlockCacheSize)
	}
	if c.IndexCacheSize <= 0 {
		return fmt.Errorf("IndexCacheSize must be positive, got %d", c.IndexCacheSize)
	}
	if c.InMemory && c.ReadOnly {
		return fmt.Errorf("ReadOnly cannot be combined with InMemory")
	}
	return nil
}

// DefaultConfig returns a configuration sized for model snapshots of a few
// hundred thousand elements.
func DefaultConfig(dataDir string) *Config {
	return &Config{
		DataDir:        dataDir,
		BlockCacheSize: 64 << 20,
		IndexCacheSize: 32 << 20,
		Compression:    true,
	}
}

// buildBadgerOptions converts Config to badger.Options.
func buildBadgerOptions(cfg *Config) badger.Options {
	if cfg.InMemory {
		opts := badger.DefaultOptions("")
		opts.InMemory = true
		opts.Logger = nil
		return opts
	}

	opts := badger.DefaultOptions(filepath.Join(cfg.DataDir, "badger"))
	opts.Logger = nil
	opts.ReadOnly = cfg.ReadOnly
	opts.BloomFalsePositive = 0.01
	if cfg.Compression {
		opts.Compression = options.ZSTD
	} else {
		opts.Compression = options.None
	}
	opts.ValueLogFileSize = 64 << 20
	opts.NumCompactors = 2
	opts.BlockCacheSize = cfg.BlockCacheSize
	opts.IndexCacheSize = cfg.IndexCacheSize
	opts.SyncWrites = cfg.SyncWrites
	return opts
}
