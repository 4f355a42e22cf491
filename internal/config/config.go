// Package config holds the few tunables picblocks exposes as parameters,
// populated from CLI flags by cmd/picblocks. There is no global mutable
// config: every component that needs one takes a *Config explicitly.
package config

import (
	"github.com/rpcpool/picblocks-go/internal/hasher"
	"github.com/rpcpool/picblocks-go/internal/perrors"
)

// ConfigVersion tracks the shape of a persisted Config, in case a future
// on-disk form needs to distinguish old and new files.
const ConfigVersion = 1

// HashSize is the truncation width of a block hash, in bytes.
type HashSize int

const (
	HashSize32 HashSize = 4
	HashSize64 HashSize = 8
)

// Config is the typed set of tunables for a picblocks run.
type Config struct {
	// MinBlockSize is the minimum instruction count a basic block must
	// have to be hashed.
	MinBlockSize int
	// HashSize selects the 4-byte or 8-byte block hash truncation. Stored
	// hashes are 32-bit either way (see hasher.WithHashSize).
	HashSize HashSize
	// Workers bounds the worker pool size used for batch ingestion and
	// corpus hashing. Zero means "let the caller pick a default"
	// (typically runtime.NumCPU()).
	Workers int
	// DBPath is the on-disk location of the persisted index document.
	DBPath string
}

// Default returns the default tunables: min_block_size 4, 32-bit hashes,
// no worker cap, no DB path.
func Default() Config {
	return Config{
		MinBlockSize: hasher.DefaultMinBlockSize,
		HashSize:     HashSize32,
	}
}

// Validate rejects configurations the hasher and index cannot act on.
func (c Config) Validate() error {
	if c.MinBlockSize < 1 {
		return perrors.New(perrors.KindUsage, "min-block-size must be >= 1, got %d", c.MinBlockSize)
	}
	if c.HashSize != HashSize32 && c.HashSize != HashSize64 {
		return perrors.New(perrors.KindUsage, "hash-size must be 4 or 8, got %d", c.HashSize)
	}
	if c.Workers < 0 {
		return perrors.New(perrors.KindUsage, "workers must be >= 0, got %d", c.Workers)
	}
	return nil
}

// HasherOptions converts the config's hashing-relevant fields into
// hasher.Option values for hasher.New.
func (c Config) HasherOptions() []hasher.Option {
	return []hasher.Option{
		hasher.WithMinBlockSize(c.MinBlockSize),
		hasher.WithHashSize(int(c.HashSize)),
	}
}
