package index

import (
	"k8s.io/klog/v2"

	"github.com/rpcpool/picblocks-go/internal/report"
)

// Ingest appends a single blockhash report to the index. It allocates a new
// family_id iff the family is unseen, always allocates a new sample_id, and
// is atomic: if it returns an error, the Index is left exactly as it was
// before the call (the tentative family_id/sample_id allocation is rolled
// back).
func (idx *Index) Ingest(rep *report.BlockhashReport) (sampleID uint32, err error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	familyIsNew := false
	familyID, ok := idx.familyToID[rep.Family]
	if !ok {
		familyID = uint32(len(idx.familyToID))
		familyIsNew = true
	}

	sampleID = uint32(len(idx.sampleIDToSample))

	// Stage all mutations to local state first; only commit to idx once we
	// know the whole report is well-formed, so a malformed report never
	// partially mutates the index.
	type pending struct {
		hash, size uint32
		entry      Entry
	}
	var staged []pending
	for hash, sizes := range rep.Blockhashes {
		for size, fids := range sizes {
			for _, fid := range fids {
				staged = append(staged, pending{hash, size, Entry{
					FamilyID:   familyID,
					SampleID:   sampleID,
					FunctionID: fid,
					IsLibrary:  rep.IsLibrary,
				}})
			}
		}
	}

	if familyIsNew {
		idx.familyToID[rep.Family] = familyID
		idx.familyIDToFamily[familyID] = rep.Family
	}
	idx.sampleIDToSample[sampleID] = rep.Filename

	for _, p := range staged {
		sizes, ok := idx.blockhashes[p.hash]
		if !ok {
			sizes = map[uint32][]Entry{}
			idx.blockhashes[p.hash] = sizes
		}
		sizes[p.size] = append(sizes[p.size], p.entry)
	}

	klog.V(3).Infof("index: ingested sample %d (%s/%s, family=%d) with %d entries", sampleID, rep.Family, rep.Version, familyID, len(staged))
	return sampleID, nil
}
