package matcher

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rpcpool/picblocks-go/internal/index"
	"github.com/rpcpool/picblocks-go/internal/report"
)

func familyMatch(t *testing.T, out *MatchReport, family string) *FamilyMatch {
	t.Helper()
	for i := range out.FamilyMatches {
		if out.FamilyMatches[i].Family == family {
			return &out.FamilyMatches[i]
		}
	}
	return nil
}

// S1: an empty index matches nothing. Every block of the input contributes
// to unmatched_score, and every distinct block_hash it uses contributes once
// to unmatched_blocks.
func TestMatchEmptyIndex(t *testing.T) {
	idx := index.New()
	m := New(idx)

	rep := &report.BlockhashReport{
		Filename:   "sample.bin",
		BlockBytes: 24,
		Blockhashes: report.HashMap{
			42: {16: report.FunctionIDs{0}},
			99: {8: report.FunctionIDs{0}},
		},
	}

	out, samples, err := m.Match(rep)
	require.NoError(t, err)
	require.Empty(t, out.FamilyMatches)
	require.Equal(t, 2, out.UnmatchedBlocks)
	require.EqualValues(t, 24, out.UnmatchedScore)
	require.Empty(t, samples)
}

// S2: matching a sample against an index containing exactly that sample
// saturates every view at 100%.
func TestMatchSelfSaturates(t *testing.T) {
	idx := index.New()
	rep := &report.BlockhashReport{
		Family:     "acme",
		Filename:   "a.bin",
		BlockBytes: 24,
		Blockhashes: report.HashMap{
			42: {16: report.FunctionIDs{0}},
			99: {8: report.FunctionIDs{0}},
		},
	}
	_, err := idx.Ingest(rep)
	require.NoError(t, err)

	m := New(idx)
	out, samples, err := m.Match(rep)
	require.NoError(t, err)
	require.Len(t, out.FamilyMatches, 1)

	fm := out.FamilyMatches[0]
	require.Equal(t, "acme", fm.Family)
	require.EqualValues(t, 24, fm.DirectBytes)
	require.EqualValues(t, 2, fm.DirectBlocks)
	require.InDelta(t, 100, fm.DirectPerc, 0.001)
	require.EqualValues(t, fm.DirectBytes, fm.NonlibBytes)
	require.InDelta(t, fm.FreqBytes, float64(fm.DirectBytes), 0.001)
	require.EqualValues(t, fm.DirectBytes, fm.UniqBytes)
	require.Zero(t, out.UnmatchedBlocks)
	require.Zero(t, out.UnmatchedScore)
	require.Len(t, samples, 1)
}

// S3: a library sample sharing a block with a non-library family suppresses
// that block from the non-library's nonlib/freq/uniq views, but not from
// direct.
func TestMatchLibrarySuppression(t *testing.T) {
	idx := index.New()
	lib := &report.BlockhashReport{
		Family:    "lib",
		Filename:  "lib.bin",
		IsLibrary: true,
		Blockhashes: report.HashMap{
			7: {4: report.FunctionIDs{0}},
		},
	}
	mal := &report.BlockhashReport{
		Family:   "mal",
		Filename: "mal.bin",
		Blockhashes: report.HashMap{
			7: {4: report.FunctionIDs{0}},
		},
	}
	_, err := idx.Ingest(lib)
	require.NoError(t, err)
	_, err = idx.Ingest(mal)
	require.NoError(t, err)

	m := New(idx)
	query := &report.BlockhashReport{
		Filename:   "query.bin",
		BlockBytes: 4,
		Blockhashes: report.HashMap{
			7: {4: report.FunctionIDs{0}},
		},
	}
	out, _, err := m.Match(query)
	require.NoError(t, err)

	malMatch := familyMatch(t, out, "mal")
	require.NotNil(t, malMatch)
	require.EqualValues(t, 4, malMatch.DirectBytes)
	require.Zero(t, malMatch.NonlibBytes)
	require.Zero(t, malMatch.UniqBytes)
}

// S4: four families sharing one block each get their freq view damped by
// 1 + floor(log2 4) == 3; the nonlib view is not damped.
func TestMatchFrequencyAdjustment(t *testing.T) {
	idx := index.New()
	for _, family := range []string{"f0", "f1", "f2", "f3"} {
		rep := &report.BlockhashReport{
			Family:   family,
			Filename: family + ".bin",
			Blockhashes: report.HashMap{
				5: {10: report.FunctionIDs{0}},
			},
		}
		_, err := idx.Ingest(rep)
		require.NoError(t, err)
	}

	m := New(idx)
	query := &report.BlockhashReport{
		Filename:   "query.bin",
		BlockBytes: 10,
		Blockhashes: report.HashMap{
			5: {10: report.FunctionIDs{0}},
		},
	}
	out, _, err := m.Match(query)
	require.NoError(t, err)
	require.Len(t, out.FamilyMatches, 4)

	for _, fm := range out.FamilyMatches {
		require.InDelta(t, 10.0/3.0, fm.FreqBytes, 0.001)
		require.InDelta(t, 1.0/3.0, fm.FreqBlocks, 0.001)
		require.Zero(t, fm.UniqBytes)
	}
}

// S5: a block shape found in exactly one family is a unique match for it.
func TestMatchUnique(t *testing.T) {
	idx := index.New()
	solo := &report.BlockhashReport{
		Family:   "solo",
		Filename: "solo.bin",
		Blockhashes: report.HashMap{
			11: {6: report.FunctionIDs{0}},
		},
	}
	_, err := idx.Ingest(solo)
	require.NoError(t, err)

	m := New(idx)
	query := &report.BlockhashReport{
		Filename:   "query.bin",
		BlockBytes: 6,
		Blockhashes: report.HashMap{
			11: {6: report.FunctionIDs{0}},
		},
	}
	out, _, err := m.Match(query)
	require.NoError(t, err)
	require.Len(t, out.FamilyMatches, 1)
	require.EqualValues(t, 6, out.FamilyMatches[0].UniqBytes)
	require.EqualValues(t, 1, out.FamilyMatches[0].UniqBlocks)
}

// S6: position independence is a property of the hasher (see
// internal/hasher's TestPositionIndependence); at the matcher layer the
// corresponding guarantee is that two reports produced from the same binary
// rebased at different addresses score each other identically, since the
// matcher only ever sees already-escaped hashes.
func TestMatchRebaseInvariant(t *testing.T) {
	idx := index.New()
	rep := &report.BlockhashReport{
		Family:     "acme",
		Filename:   "a.bin",
		BlockBytes: 16,
		Blockhashes: report.HashMap{
			42: {16: report.FunctionIDs{0}},
		},
	}
	_, err := idx.Ingest(rep)
	require.NoError(t, err)

	m := New(idx)
	rebased := &report.BlockhashReport{
		Filename:   "a_rebased.bin",
		BlockBytes: 16,
		Blockhashes: report.HashMap{
			42: {16: report.FunctionIDs{0}},
		},
	}
	out, _, err := m.Match(rebased)
	require.NoError(t, err)
	require.Len(t, out.FamilyMatches, 1)
	require.EqualValues(t, 16, out.FamilyMatches[0].DirectBytes)
}

// Invariant: unique is a subset of nonlib is a subset of direct, for every
// family row.
func TestMatchOrderingInvariant(t *testing.T) {
	idx := index.New()
	a := &report.BlockhashReport{
		Family:   "a",
		Filename: "a.bin",
		Blockhashes: report.HashMap{
			1: {4: report.FunctionIDs{0}},
			2: {4: report.FunctionIDs{0}},
		},
	}
	b := &report.BlockhashReport{
		Family:   "b",
		Filename: "b.bin",
		Blockhashes: report.HashMap{
			2: {4: report.FunctionIDs{0}},
		},
	}
	_, err := idx.Ingest(a)
	require.NoError(t, err)
	_, err = idx.Ingest(b)
	require.NoError(t, err)

	m := New(idx)
	query := &report.BlockhashReport{
		Filename:   "query.bin",
		BlockBytes: 8,
		Blockhashes: report.HashMap{
			1: {4: report.FunctionIDs{0}},
			2: {4: report.FunctionIDs{0}},
		},
	}
	out, _, err := m.Match(query)
	require.NoError(t, err)

	for _, fm := range out.FamilyMatches {
		require.LessOrEqual(t, fm.UniqBytes, fm.NonlibBytes)
		require.LessOrEqual(t, fm.NonlibBytes, fm.DirectBytes)
	}
}

func TestMatchContextCancellation(t *testing.T) {
	idx := index.New()
	m := New(idx)
	rep := &report.BlockhashReport{
		Filename:   "x.bin",
		Blockhashes: report.HashMap{1: {4: report.FunctionIDs{0}}},
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := m.MatchContext(ctx, rep)
	require.Error(t, err)
}
