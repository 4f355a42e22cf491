package index

// Stats are the corpus-wide summary figures of the index.
type Stats struct {
	NumFamilies     int
	NumLibraries    int
	NumFiles        int
	NumFunctions    int
	NumHashes       int
	NumHashAndSizes int
	NumBytes        uint64
	NumBytesUnique  uint64
	HashSizeCounts  map[int]int // histogram: size-map cardinality -> count of block_hash keys with that cardinality
}

// Stats computes the corpus-wide statistics. num_families counts only
// non-library families; num_libraries counts family ids that appear at
// least once with is_library=true; a family id may count in both if the
// corpus mixes library and non-library samples under the same family name.
func (idx *Index) Stats() Stats {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	familyIDs := map[uint32]struct{}{}
	libraryIDs := map[uint32]struct{}{}
	functionIDs := map[sampleFunction]struct{}{}
	hashSizeCounts := map[int]int{}

	var numHashAndSizes int
	var numBytes, numBytesUnique uint64

	for _, sizes := range idx.blockhashes {
		hashSizeCounts[len(sizes)]++
		for size, entries := range sizes {
			numHashAndSizes++
			numBytesUnique += uint64(size)
			for _, e := range entries {
				functionIDs[sampleFunction{e.SampleID, e.FunctionID}] = struct{}{}
				numBytes += uint64(size)
				if e.IsLibrary {
					libraryIDs[e.FamilyID] = struct{}{}
				} else {
					familyIDs[e.FamilyID] = struct{}{}
				}
			}
		}
	}

	return Stats{
		NumFamilies:     len(familyIDs),
		NumLibraries:    len(libraryIDs),
		NumFiles:        len(idx.sampleIDToSample),
		NumFunctions:    len(functionIDs),
		NumHashes:       len(idx.blockhashes),
		NumHashAndSizes: numHashAndSizes,
		NumBytes:        numBytes,
		NumBytesUnique:  numBytesUnique,
		HashSizeCounts:  hashSizeCounts,
	}
}

type sampleFunction struct {
	sampleID   uint32
	functionID uint32
}
