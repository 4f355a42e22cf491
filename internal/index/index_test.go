package index

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rpcpool/picblocks-go/internal/report"
)

func sampleReport(family, filename string, isLibrary bool) *report.BlockhashReport {
	r := &report.BlockhashReport{
		Family:    family,
		Filename:  filename,
		IsLibrary: isLibrary,
	}
	r.Blockhashes = report.HashMap{
		42: {16: report.FunctionIDs{0}},
	}
	return r
}

func TestIngestAssignsDenseIDs(t *testing.T) {
	idx := New()
	id0, err := idx.Ingest(sampleReport("acme", "a.bin", false))
	require.NoError(t, err)
	require.EqualValues(t, 0, id0)

	id1, err := idx.Ingest(sampleReport("acme", "b.bin", false))
	require.NoError(t, err)
	require.EqualValues(t, 1, id1)

	id2, err := idx.Ingest(sampleReport("other", "c.bin", false))
	require.NoError(t, err)
	require.EqualValues(t, 2, id2)

	require.Equal(t, 2, idx.NumFamilies())
	require.Equal(t, 3, idx.NumSamples())
}

func TestIngestAccumulatesEntries(t *testing.T) {
	idx := New()
	_, err := idx.Ingest(sampleReport("acme", "a.bin", false))
	require.NoError(t, err)
	_, err = idx.Ingest(sampleReport("mal", "b.bin", true))
	require.NoError(t, err)

	entries, exists := idx.LookupSize(42, 16)
	require.True(t, exists)
	require.Len(t, entries, 2)
}

func TestLookupDistinguishesMissingHashFromMissingSize(t *testing.T) {
	idx := New()
	_, err := idx.Ingest(sampleReport("acme", "a.bin", false))
	require.NoError(t, err)

	require.False(t, idx.HashExists(999))
	require.True(t, idx.HashExists(42))

	entries, existsWrongSize := idx.LookupSize(42, 999)
	require.False(t, existsWrongSize)
	require.Empty(t, entries)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	idx := New()
	_, err := idx.Ingest(sampleReport("acme", "a.bin", false))
	require.NoError(t, err)
	_, err = idx.Ingest(sampleReport("mal", "b.bin", true))
	require.NoError(t, err)

	var buf bytes.Buffer
	doc := document{
		Timestamp:        "2026-01-01T00:00:00Z",
		FamilyToID:       idx.familyToID,
		FamilyIDToFamily: idx.familyIDToFamily,
		SampleIDToSample: idx.sampleIDToSample,
		Blockhashes:      idx.blockhashes,
	}
	require.NoError(t, json.NewEncoder(&buf).Encode(doc))

	loaded, err := Decode(&buf)
	require.NoError(t, err)
	require.Equal(t, idx.familyToID, loaded.familyToID)
	require.Equal(t, idx.familyIDToFamily, loaded.familyIDToFamily)
	require.Equal(t, idx.sampleIDToSample, loaded.sampleIDToSample)
	require.Equal(t, idx.blockhashes, loaded.blockhashes)
}

func TestSaveLoadCompressedRoundTrip(t *testing.T) {
	idx := New()
	_, err := idx.Ingest(sampleReport("acme", "a.bin", false))
	require.NoError(t, err)

	dir := t.TempDir()
	path := dir + "/db.zst"
	require.NoError(t, idx.SaveCompressed(path))

	loaded, err := LoadCompressed(path)
	require.NoError(t, err)
	require.Equal(t, idx.familyToID, loaded.familyToID)
	require.Equal(t, idx.blockhashes, loaded.blockhashes)
}

func TestDecodeRejectsDanglingFamilyID(t *testing.T) {
	raw := `{"timestamp":"x","family_to_id":{},"family_id_to_family":{},"sample_id_to_sample":{"0":"a.bin"},"blockhashes":{"1":{"2":[[5,0,0,false]]}}}`
	_, err := Decode(bytes.NewBufferString(raw))
	require.Error(t, err)
}

func TestStats(t *testing.T) {
	idx := New()
	_, err := idx.Ingest(sampleReport("acme", "a.bin", false))
	require.NoError(t, err)
	_, err = idx.Ingest(sampleReport("libfam", "b.bin", true))
	require.NoError(t, err)

	stats := idx.Stats()
	require.Equal(t, 1, stats.NumFamilies)
	require.Equal(t, 1, stats.NumLibraries)
	require.Equal(t, 2, stats.NumFiles)
	require.Equal(t, 1, stats.NumHashes)
	require.Equal(t, 1, stats.NumHashAndSizes)
	require.EqualValues(t, 32, stats.NumBytes) // 16 * 2 entries
	require.EqualValues(t, 16, stats.NumBytesUnique)
}

func TestChecksumStableAndSensitive(t *testing.T) {
	idx1 := New()
	_, err := idx1.Ingest(sampleReport("acme", "a.bin", false))
	require.NoError(t, err)
	c1 := idx1.Checksum()
	c1again := idx1.Checksum()
	require.Equal(t, c1, c1again)

	idx2 := New()
	_, err = idx2.Ingest(sampleReport("acme", "a.bin", false))
	require.NoError(t, err)
	_, err = idx2.Ingest(sampleReport("other", "b.bin", false))
	require.NoError(t, err)
	require.NotEqual(t, c1, idx2.Checksum())
}
