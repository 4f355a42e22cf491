// Package index implements the corpus blockhash database: the aggregated,
// multi-family hash store built by ingesting many blockhash reports, queried
// by the matcher, and persisted to a single JSON document.
package index

import (
	"context"
	"sync"

	"github.com/allegro/bigcache/v3"
	"k8s.io/klog/v2"
)

// Index is the in-memory, queryable corpus database. The zero value is not
// usable; construct with New. An Index grows monotonically during ingestion
// (Ingest), is snapshotted to disk once (Save), and is safe for concurrent
// HashExists/LookupSize calls once ingestion has stopped -- aggregation itself must be
// serialized, which the embedded mutex enforces.
type Index struct {
	mu sync.Mutex

	timestamp        string
	familyToID       map[string]uint32
	familyIDToFamily map[uint32]string
	sampleIDToSample map[uint32]string
	blockhashes      map[uint32]map[uint32][]Entry

	sampleCache *bigcache.BigCache
}

// New constructs an empty Index.
func New() *Index {
	cache, err := bigcache.New(context.Background(), bigcache.DefaultConfig(0))
	if err != nil {
		// bigcache.New only errors on invalid config; DefaultConfig is
		// always valid, so this is unreachable in practice. Fall back to a
		// nil cache rather than fail construction of the Index over a
		// purely cosmetic render-path optimization.
		klog.Warningf("index: sample lookup cache disabled: %v", err)
		cache = nil
	}
	return &Index{
		familyToID:       map[string]uint32{},
		familyIDToFamily: map[uint32]string{},
		sampleIDToSample: map[uint32]string{},
		blockhashes:      map[uint32]map[uint32][]Entry{},
		sampleCache:      cache,
	}
}

// HashExists reports whether blockHash is present at all in the index,
// independent of any particular block_size. The matcher needs this to
// distinguish "hash present, size missing" from "hash altogether absent".
func (idx *Index) HashExists(blockHash uint32) bool {
	_, ok := idx.blockhashes[blockHash]
	return ok
}

// LookupSize returns the entries stored for the exact (blockHash, blockSize)
// pair, and whether that pair exists.
func (idx *Index) LookupSize(blockHash, blockSize uint32) (entries []Entry, exists bool) {
	sizes, ok := idx.blockhashes[blockHash]
	if !ok {
		return nil, false
	}
	entries, exists = sizes[blockSize]
	return entries, exists
}

// NumFamilies returns the count of distinct family ids ever assigned
// (library or not), used by the match report's top-level "num_families".
func (idx *Index) NumFamilies() int {
	return len(idx.familyToID)
}

// NumSamples returns the count of ingested samples.
func (idx *Index) NumSamples() int {
	return len(idx.sampleIDToSample)
}

// NumBlockHashes returns the count of distinct block_hash keys.
func (idx *Index) NumBlockHashes() int {
	return len(idx.blockhashes)
}

// FamilyName resolves a family id to its name.
func (idx *Index) FamilyName(id uint32) (string, bool) {
	name, ok := idx.familyIDToFamily[id]
	return name, ok
}

// SampleName resolves a sample id to its filename, consulting (and
// populating) the bounded render-path cache before falling back to the
// authoritative map.
func (idx *Index) SampleName(id uint32) (string, bool) {
	if idx.sampleCache != nil {
		if cached, err := idx.sampleCache.Get(cacheKey(id)); err == nil {
			return string(cached), true
		}
	}
	name, ok := idx.sampleIDToSample[id]
	if ok && idx.sampleCache != nil {
		_ = idx.sampleCache.Set(cacheKey(id), []byte(name))
	}
	return name, ok
}

// SampleCacheStats exposes hit/miss counters for the bounded sample-name
// render cache. Returns zeros if the cache could not be constructed.
func (idx *Index) SampleCacheStats() (hits, misses uint64) {
	if idx.sampleCache == nil {
		return 0, 0
	}
	s := idx.sampleCache.Stats()
	return uint64(s.Hits), uint64(s.Misses)
}

func cacheKey(id uint32) string {
	return string([]byte{byte(id >> 24), byte(id >> 16), byte(id >> 8), byte(id)})
}
