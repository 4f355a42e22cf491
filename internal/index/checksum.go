package index

import (
	"encoding/binary"
	"sort"

	"github.com/cespare/xxhash/v2"
)

// Checksum folds xxhash over the sorted (block_hash, block_size, family_id,
// sample_id, function_id) tuples of the index, producing a fast structural
// fingerprint. This is a supplemental, read-only operation; the matcher CLI
// prints it under --verify-checksum and does not compare it against any
// stored value. The is_library flag is not folded in.
func (idx *Index) Checksum() uint64 {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	type tuple struct {
		blockHash, blockSize           uint32
		familyID, sampleID, functionID uint32
	}
	var tuples []tuple
	for hash, sizes := range idx.blockhashes {
		for size, entries := range sizes {
			for _, e := range entries {
				tuples = append(tuples, tuple{hash, size, e.FamilyID, e.SampleID, e.FunctionID})
			}
		}
	}
	sort.Slice(tuples, func(i, j int) bool {
		a, b := tuples[i], tuples[j]
		if a.blockHash != b.blockHash {
			return a.blockHash < b.blockHash
		}
		if a.blockSize != b.blockSize {
			return a.blockSize < b.blockSize
		}
		if a.familyID != b.familyID {
			return a.familyID < b.familyID
		}
		if a.sampleID != b.sampleID {
			return a.sampleID < b.sampleID
		}
		return a.functionID < b.functionID
	})

	digest := xxhash.New()
	buf := make([]byte, 20)
	for _, t := range tuples {
		binary.LittleEndian.PutUint32(buf[0:4], t.blockHash)
		binary.LittleEndian.PutUint32(buf[4:8], t.blockSize)
		binary.LittleEndian.PutUint32(buf[8:12], t.familyID)
		binary.LittleEndian.PutUint32(buf[12:16], t.sampleID)
		binary.LittleEndian.PutUint32(buf[16:20], t.functionID)
		_, _ = digest.Write(buf)
	}
	return digest.Sum64()
}
