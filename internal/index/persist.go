package index

import (
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"

	"github.com/rpcpool/picblocks-go/internal/perrors"
)

// document is the on-disk shape of picblocksdb.json.
type document struct {
	Timestamp        string                         `json:"timestamp"`
	FamilyToID       map[string]uint32              `json:"family_to_id"`
	FamilyIDToFamily map[uint32]string              `json:"family_id_to_family"`
	SampleIDToSample map[uint32]string              `json:"sample_id_to_sample"`
	Blockhashes      map[uint32]map[uint32][]Entry  `json:"blockhashes"`
}

// Save writes the index as a single JSON document to path, via a temp file
// and rename for atomicity.
func (idx *Index) Save(path string) error {
	idx.mu.Lock()
	doc := document{
		Timestamp:        nowISO8601(),
		FamilyToID:       idx.familyToID,
		FamilyIDToFamily: idx.familyIDToFamily,
		SampleIDToSample: idx.sampleIDToSample,
		Blockhashes:      idx.blockhashes,
	}
	idx.mu.Unlock()

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".picblocksdb-*.tmp")
	if err != nil {
		return perrors.Wrap(perrors.KindIO, err, "create temp db file")
	}
	tmpPath := tmp.Name()
	if err := json.NewEncoder(tmp).Encode(doc); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return perrors.Wrap(perrors.KindIO, err, "encode db")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return perrors.Wrap(perrors.KindIO, err, "close temp db file")
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return perrors.Wrap(perrors.KindIO, err, "rename temp db file")
	}
	return nil
}

// Load restores an Index from a document written by Save.
func Load(path string) (*Index, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, perrors.Wrap(perrors.KindIO, err, "open db file")
	}
	defer f.Close()
	return Decode(f)
}

// SaveCompressed writes the index as a zstd-compressed JSON document, for
// corpora large enough that the plain picblocksdb.json becomes unwieldy to
// ship around. The wire shape inside the stream is identical to Save's.
func (idx *Index) SaveCompressed(path string) error {
	idx.mu.Lock()
	doc := document{
		Timestamp:        nowISO8601(),
		FamilyToID:       idx.familyToID,
		FamilyIDToFamily: idx.familyIDToFamily,
		SampleIDToSample: idx.sampleIDToSample,
		Blockhashes:      idx.blockhashes,
	}
	idx.mu.Unlock()

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".picblocksdb-*.tmp")
	if err != nil {
		return perrors.Wrap(perrors.KindIO, err, "create temp db file")
	}
	tmpPath := tmp.Name()

	enc, err := zstd.NewWriter(tmp)
	if err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return perrors.Wrap(perrors.KindIO, err, "create zstd writer")
	}
	if err := json.NewEncoder(enc).Encode(doc); err != nil {
		enc.Close()
		tmp.Close()
		os.Remove(tmpPath)
		return perrors.Wrap(perrors.KindIO, err, "encode db")
	}
	if err := enc.Close(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return perrors.Wrap(perrors.KindIO, err, "flush zstd writer")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return perrors.Wrap(perrors.KindIO, err, "close temp db file")
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return perrors.Wrap(perrors.KindIO, err, "rename temp db file")
	}
	return nil
}

// LoadCompressed restores an Index from a document written by SaveCompressed.
func LoadCompressed(path string) (*Index, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, perrors.Wrap(perrors.KindIO, err, "open db file")
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, perrors.Wrap(perrors.KindCorruptDB, err, "create zstd reader")
	}
	defer dec.Close()

	return Decode(dec)
}

// Decode restores an Index from r. Malformed JSON or bad integer keys are
// reported as KindCorruptDB -- the string-keyed integer maps are coerced
// back to integer keys by the document struct's field types, and
// jsoniter.ConfigCompatibleWithStandardLibrary fails loudly (rather than
// silently truncating) on a non-numeric key.
func Decode(r io.Reader) (*Index, error) {
	var doc document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, perrors.Wrap(perrors.KindCorruptDB, err, "decode db")
	}
	idx := New()
	idx.timestamp = doc.Timestamp
	if doc.FamilyToID != nil {
		idx.familyToID = doc.FamilyToID
	}
	if doc.FamilyIDToFamily != nil {
		idx.familyIDToFamily = doc.FamilyIDToFamily
	}
	if doc.SampleIDToSample != nil {
		idx.sampleIDToSample = doc.SampleIDToSample
	}
	if doc.Blockhashes != nil {
		idx.blockhashes = doc.Blockhashes
	}
	for familyID := range idx.blockhashesFamilyIDs() {
		if _, ok := idx.familyIDToFamily[familyID]; !ok {
			return nil, perrors.New(perrors.KindCorruptDB, "family_id %d referenced in blockhashes but missing from family_id_to_family", familyID)
		}
	}
	for sampleID := range idx.blockhashesSampleIDs() {
		if _, ok := idx.sampleIDToSample[sampleID]; !ok {
			return nil, perrors.New(perrors.KindCorruptDB, "sample_id %d referenced in blockhashes but missing from sample_id_to_sample", sampleID)
		}
	}
	return idx, nil
}

func (idx *Index) blockhashesFamilyIDs() map[uint32]struct{} {
	out := map[uint32]struct{}{}
	for _, sizes := range idx.blockhashes {
		for _, entries := range sizes {
			for _, e := range entries {
				out[e.FamilyID] = struct{}{}
			}
		}
	}
	return out
}

func (idx *Index) blockhashesSampleIDs() map[uint32]struct{} {
	out := map[uint32]struct{}{}
	for _, sizes := range idx.blockhashes {
		for _, entries := range sizes {
			for _, e := range entries {
				out[e.SampleID] = struct{}{}
			}
		}
	}
	return out
}
