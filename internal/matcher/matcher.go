// Package matcher implements the four-way scoring: given a blockhash
// report, rank the corpus families it resembles under the direct,
// library-excluded, frequency-adjusted, and uniquely-matched views.
package matcher

import (
	"context"
	"math/bits"
	"sort"

	"github.com/rpcpool/picblocks-go/internal/index"
	"github.com/rpcpool/picblocks-go/internal/report"
)

// familyOrder tracks the order families are first matched in, so that ties
// in direct_bytes break the same way on every call for the same (index,
// report) pair instead of following Go's randomized map iteration order.
type familyOrder struct {
	seen  map[uint32]int
	order []uint32
}

func newFamilyOrder() *familyOrder {
	return &familyOrder{seen: map[uint32]int{}}
}

func (fo *familyOrder) touch(familyID uint32) {
	if _, ok := fo.seen[familyID]; ok {
		return
	}
	fo.seen[familyID] = len(fo.order)
	fo.order = append(fo.order, familyID)
}

// Matcher scores blockhash reports against a read-only Index. A Matcher is
// safe for concurrent use across goroutines once its Index has stopped
// ingesting.
type Matcher struct {
	idx *index.Index
}

// New constructs a Matcher bound to idx.
func New(idx *index.Index) *Matcher {
	return &Matcher{idx: idx}
}

// FamilyMatch is one row of the ranked family report.
type FamilyMatch struct {
	Index  int    `json:"index"`
	Family string `json:"family"`

	DirectBytes  uint64  `json:"direct_bytes"`
	DirectBlocks uint64  `json:"direct_blocks"`
	DirectPerc   float64 `json:"direct_perc"`

	NonlibBytes  uint64  `json:"nonlib_bytes"`
	NonlibBlocks uint64  `json:"nonlib_blocks"`
	NonlibPerc   float64 `json:"nonlib_perc"`

	FreqBytes  float64 `json:"freq_bytes"`
	FreqBlocks float64 `json:"freq_blocks"`
	FreqPerc   float64 `json:"freq_perc"`

	UniqBytes  uint64  `json:"uniq_bytes"`
	UniqBlocks uint64  `json:"uniq_blocks"`
	UniqPerc   float64 `json:"uniq_perc"`
}

// MatchReport is the output of Match.
type MatchReport struct {
	NumFamilies      int           `json:"num_families"`
	NumSamples       int           `json:"num_samples"`
	NumBlockhashes   int           `json:"num_blockhashes"`
	Bitness          int           `json:"bitness"`
	SHA256           string        `json:"sha256"`
	InputFilename    string        `json:"input_filename"`
	InputBlockBytes  uint64        `json:"input_block_bytes"`
	InputBlockHashes int           `json:"input_block_hashes"`
	UnmatchedScore   uint64        `json:"unmatched_score"`
	UnmatchedBlocks  int           `json:"unmatched_blocks"`
	FamilyMatches    []FamilyMatch `json:"family_matches"`
}

// SampleMatches maps sample_id to the accumulated byte score. It is
// returned as a second value for callers that want per-sample
// attribution, separate from the emitted MatchReport.
type SampleMatches map[uint32]uint64

// accumulator holds the per-family running totals for all four views.
type accumulator struct {
	directBytes, nonlibBytes, uniqBytes    map[uint32]uint64
	directBlocks, nonlibBlocks, uniqBlocks map[uint32]uint64
	freqBytes, freqBlocks                  map[uint32]float64
}

func newAccumulator() *accumulator {
	return &accumulator{
		directBytes:  map[uint32]uint64{},
		nonlibBytes:  map[uint32]uint64{},
		uniqBytes:    map[uint32]uint64{},
		directBlocks: map[uint32]uint64{},
		nonlibBlocks: map[uint32]uint64{},
		uniqBlocks:   map[uint32]uint64{},
		freqBytes:    map[uint32]float64{},
		freqBlocks:   map[uint32]float64{},
	}
}

// Match scores rep against the bound index.
func (m *Matcher) Match(rep *report.BlockhashReport) (*MatchReport, SampleMatches, error) {
	return m.MatchContext(context.Background(), rep)
}

// MatchContext is Match with cancellation at (hash,size) granularity. On
// cancellation it returns ctx.Err() and no partial report -- a match in
// progress never exposes partial results.
func (m *Matcher) MatchContext(ctx context.Context, rep *report.BlockhashReport) (*MatchReport, SampleMatches, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	out := &MatchReport{
		NumFamilies:      m.idx.NumFamilies(),
		NumSamples:       m.idx.NumSamples(),
		NumBlockhashes:   m.idx.NumBlockHashes(),
		Bitness:          rep.Bitness,
		SHA256:           rep.SHA256,
		InputFilename:    rep.Filename,
		InputBlockBytes:  rep.BlockBytes,
		InputBlockHashes: len(rep.Blockhashes),
	}

	acc := newAccumulator()
	sampleMatches := SampleMatches{}
	fo := newFamilyOrder()

	blockHashes := make([]uint32, 0, len(rep.Blockhashes))
	for blockHash := range rep.Blockhashes {
		blockHashes = append(blockHashes, blockHash)
	}
	sort.Slice(blockHashes, func(i, j int) bool { return blockHashes[i] < blockHashes[j] })

	iterations := 0
	for _, blockHash := range blockHashes {
		sizes := rep.Blockhashes[blockHash]
		hashExists := m.idx.HashExists(blockHash)
		if !hashExists {
			// Counted once per distinct block_hash, not once per (size, fid)
			// under it: a sample with the same absent hash at several sizes
			// is still one missing block shape, not several.
			out.UnmatchedBlocks++
		}

		blockSizes := make([]uint32, 0, len(sizes))
		for blockSize := range sizes {
			blockSizes = append(blockSizes, blockSize)
		}
		sort.Slice(blockSizes, func(i, j int) bool { return blockSizes[i] < blockSizes[j] })

		for _, blockSize := range blockSizes {
			fids := sizes[blockSize]
			iterations++
			if iterations%4096 == 0 {
				if err := ctx.Err(); err != nil {
					return nil, nil, err
				}
			}

			var entries []index.Entry
			sizeExists := false
			if hashExists {
				entries, sizeExists = m.idx.LookupSize(blockHash, blockSize)
			}
			if !hashExists || !sizeExists {
				// unmatched_score scales with the number of functions that
				// contributed this (hash,size) shape, matching how
				// block_bytes itself is accumulated in the input report.
				out.UnmatchedScore += uint64(blockSize) * uint64(len(fids))
				continue
			}

			families := distinctFamilies(entries)
			hasLibrary := anyLibrary(entries)
			adj := frequencyAdjustment(len(families))

			// Processed once per input function id so that a block shape
			// reused across N functions of the sample scores N times,
			// keeping a self-match's direct_bytes equal to the input's
			// block_bytes.
			for range fids {
				seenFamilies := map[uint32]bool{}
				seenSamples := map[uint32]bool{}
				for _, e := range entries {
					if !seenFamilies[e.FamilyID] {
						seenFamilies[e.FamilyID] = true
						fo.touch(e.FamilyID)
						acc.directBytes[e.FamilyID] += uint64(blockSize)
						acc.directBlocks[e.FamilyID]++
						if !hasLibrary {
							acc.nonlibBytes[e.FamilyID] += uint64(blockSize)
							acc.nonlibBlocks[e.FamilyID]++
							acc.freqBytes[e.FamilyID] += float64(blockSize) / float64(adj)
							acc.freqBlocks[e.FamilyID] += 1.0 / float64(adj)
							if len(families) == 1 {
								acc.uniqBytes[e.FamilyID] += uint64(blockSize)
								acc.uniqBlocks[e.FamilyID]++
							}
						}
					}
					if !seenSamples[e.SampleID] {
						seenSamples[e.SampleID] = true
						sampleMatches[e.SampleID] += uint64(blockSize)
					}
				}
			}
		}
	}

	out.FamilyMatches = buildFamilyMatches(m.idx, acc, fo, rep.BlockBytes)
	return out, sampleMatches, nil
}

// frequencyAdjustment: 1 for N < 3, else 1 + floor(log2 N), computed with
// bits.Len to avoid the floating-point drift a naive log(N, 2) is prone to.
func frequencyAdjustment(numFamilies int) int {
	if numFamilies < 3 {
		return 1
	}
	return 1 + (bits.Len(uint(numFamilies)) - 1)
}

func distinctFamilies(entries []index.Entry) map[uint32]struct{} {
	out := map[uint32]struct{}{}
	for _, e := range entries {
		out[e.FamilyID] = struct{}{}
	}
	return out
}

func anyLibrary(entries []index.Entry) bool {
	for _, e := range entries {
		if e.IsLibrary {
			return true
		}
	}
	return false
}

func buildFamilyMatches(idx *index.Index, acc *accumulator, fo *familyOrder, inputBlockBytes uint64) []FamilyMatch {
	type row struct {
		familyID uint32
		direct   uint64
		seenAt   int
	}
	var rows []row
	for familyID, direct := range acc.directBytes {
		rows = append(rows, row{familyID, direct, fo.seen[familyID]})
	}
	// Ties in direct_bytes break by first-seen order within this match, not
	// by the order Go's map iteration happened to produce.
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].direct != rows[j].direct {
			return rows[i].direct > rows[j].direct
		}
		return rows[i].seenAt < rows[j].seenAt
	})

	pct := func(bytes float64) float64 {
		if inputBlockBytes == 0 {
			return 0
		}
		return 100 * bytes / float64(inputBlockBytes)
	}

	matches := make([]FamilyMatch, 0, len(rows))
	for i, r := range rows {
		name, _ := idx.FamilyName(r.familyID)
		matches = append(matches, FamilyMatch{
			Index:  i + 1,
			Family: name,

			DirectBytes:  acc.directBytes[r.familyID],
			DirectBlocks: acc.directBlocks[r.familyID],
			DirectPerc:   pct(float64(acc.directBytes[r.familyID])),

			NonlibBytes:  acc.nonlibBytes[r.familyID],
			NonlibBlocks: acc.nonlibBlocks[r.familyID],
			NonlibPerc:   pct(float64(acc.nonlibBytes[r.familyID])),

			FreqBytes:  acc.freqBytes[r.familyID],
			FreqBlocks: acc.freqBlocks[r.familyID],
			FreqPerc:   pct(acc.freqBytes[r.familyID]),

			UniqBytes:  acc.uniqBytes[r.familyID],
			UniqBlocks: acc.uniqBlocks[r.familyID],
			UniqPerc:   pct(float64(acc.uniqBytes[r.familyID])),
		})
	}
	return matches
}
