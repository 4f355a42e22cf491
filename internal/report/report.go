// Package report defines the blockhash report: the output of the hasher and
// the input to the index and matcher.
package report

import (
	"sort"
)

// FunctionIDs is a sorted, duplicate-free list of function ids sharing one
// (block_hash, block_size) pair within a single report.
type FunctionIDs []uint32

// SizeMap maps block_size to the function ids that produced a block of that
// size under one block_hash.
type SizeMap map[uint32]FunctionIDs

// HashMap maps block_hash to a SizeMap. This is the "blockhashes" field of
// the on-disk report; both keys serialize as decimal strings on the wire,
// which Go's JSON codecs (including jsoniter in standard-library-compatible
// mode) handle natively for unsigned-integer-keyed maps.
type HashMap map[uint32]SizeMap

// BlockhashReport is the immutable output of the hasher.
type BlockhashReport struct {
	Family             string  `json:"family"`
	Version            string  `json:"version"`
	Bitness            int     `json:"bitness"`
	SHA256             string  `json:"sha256"`
	Filename           string  `json:"filename"`
	IsLibrary          bool    `json:"is_library"`
	Filesize           uint64  `json:"filesize"`
	MinBlockSize       int     `json:"min_block_size"`
	NumHashes          int     `json:"num_hashes"`
	NumFunctions       int     `json:"num_functions"`
	NumFunctionsHashed int     `json:"num_functions_hashed"`
	NumBlocks          int     `json:"num_blocks"`
	NumAllBlocks       int     `json:"num_all_blocks"`
	BlockBytes         uint64  `json:"block_bytes"`
	Blockhashes        HashMap `json:"blockhashes"`
}

// add records one qualifying block's (hash, size, function id) triple,
// maintaining the sorted-and-deduplicated invariant incrementally via
// insertSorted.
func (r *BlockhashReport) add(hash, size uint32, functionID uint32) {
	if r.Blockhashes == nil {
		r.Blockhashes = HashMap{}
	}
	sizes, ok := r.Blockhashes[hash]
	if !ok {
		sizes = SizeMap{}
		r.Blockhashes[hash] = sizes
	}
	sizes[size] = insertSorted(sizes[size], functionID)
}

// insertSorted inserts v into the sorted, duplicate-free slice ids, returning
// the (possibly reallocated) result.
func insertSorted(ids FunctionIDs, v uint32) FunctionIDs {
	i := sort.Search(len(ids), func(i int) bool { return ids[i] >= v })
	if i < len(ids) && ids[i] == v {
		return ids
	}
	ids = append(ids, 0)
	copy(ids[i+1:], ids[i:])
	ids[i] = v
	return ids
}

// NumHashAndSizePairs returns the number of distinct (block_hash, block_size)
// pairs in the report; the hasher stores this count as num_hashes.
func (r *BlockhashReport) NumHashAndSizePairs() int {
	n := 0
	for _, sizes := range r.Blockhashes {
		n += len(sizes)
	}
	return n
}

// ComputedBlockBytes recomputes block_bytes from the nested map, for
// verifying the hasher's size accounting independently of its running
// counter.
func (r *BlockhashReport) ComputedBlockBytes() uint64 {
	var total uint64
	for _, sizes := range r.Blockhashes {
		for size, ids := range sizes {
			total += uint64(size) * uint64(len(ids))
		}
	}
	return total
}
