// Package hasher implements the deterministic transformation of a
// disassembly report into a blockhash report: the position-independent
// fingerprinting of every non-trivial basic block.
package hasher

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"regexp"
	"strconv"
	"strings"

	"k8s.io/klog/v2"

	"github.com/rpcpool/picblocks-go/internal/disasm"
	"github.com/rpcpool/picblocks-go/internal/perrors"
	"github.com/rpcpool/picblocks-go/internal/report"
)

// DefaultMinBlockSize is the minimum instruction count a block must have
// to be hashed.
const DefaultMinBlockSize = 4

// Hasher turns disassembly reports into blockhash reports.
type Hasher struct {
	escaper      disasm.Escaper
	minBlockSize int
	hashSize     int // 4 (default, persisted format) or 8 (optional variant)
}

// Option configures a Hasher.
type Option func(*Hasher)

// WithMinBlockSize overrides the default minimum block length of 4
// instructions.
func WithMinBlockSize(n int) Option {
	return func(h *Hasher) { h.minBlockSize = n }
}

// WithHashSize selects the digest-truncation width: 4 (the persisted DB
// format) or 8 (the optional 64-bit variant). The blockhash report keys
// hashes as uint32, so with 8 only the low 32 bits are stored, and those
// equal the 4-byte hash.
func WithHashSize(n int) Option {
	return func(h *Hasher) { h.hashSize = n }
}

// WithEscaper overrides the default IntelEscaper, e.g. for tests that need
// to control exactly which bytes get wildcarded.
func WithEscaper(e disasm.Escaper) Option {
	return func(h *Hasher) { h.escaper = e }
}

// New constructs a Hasher with the default options (min_block_size=4,
// 32-bit hashes, IntelEscaper).
func New(opts ...Option) *Hasher {
	h := &Hasher{
		escaper:      disasm.IntelEscaper{},
		minBlockSize: DefaultMinBlockSize,
		hashSize:     4,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// ProcessDisasm is the preferred entry point: it does not invoke a
// disassembler, operating directly on an already-produced disasm.Report.
func (h *Hasher) ProcessDisasm(r disasm.Report) (*report.BlockhashReport, error) {
	klog.V(2).Infof("hasher: processing %s (%s/%s)", r.Filename, r.Family, r.Version)
	out, err := h.extractBlockhashes(r)
	if err != nil {
		return nil, err
	}
	klog.V(2).Infof("hasher: %s yielded %d hashes over %d blocks", r.Filename, out.NumHashes, out.NumBlocks)
	return out, nil
}

// ProcessBytes invokes the disassembler collaborator d and then hashes the
// result. If filename contains "_0x" or baseAddress is non-nil, the
// mapped-image path is used; otherwise the unmapped-buffer path is used.
func (h *Hasher) ProcessBytes(ctx context.Context, d disasm.Disassembler, buf []byte, filename string, bitness *int, baseAddress *uint64) (*report.BlockhashReport, error) {
	var rep disasm.Report
	var err error
	if strings.Contains(filename, "_0x") || baseAddress != nil {
		base := uint64(0)
		if baseAddress != nil {
			base = *baseAddress
		} else {
			base = ParseBaseAddrFromFilename(filename)
		}
		bits := 0
		if bitness != nil {
			bits = *bitness
		} else if parsed := ParseBitnessFromFilename(filename); parsed != nil {
			bits = *parsed
		}
		rep, err = d.DisassembleBuffer(ctx, buf, base, bits)
	} else {
		rep, err = d.DisassembleUnmappedBuffer(ctx, buf)
	}
	if err != nil {
		return nil, perrors.Wrap(perrors.KindDisassemblyFailed, err, "disassemble "+filename)
	}
	rep.Filename = filename
	return h.ProcessDisasm(rep)
}

var (
	reBaseAddrLong  = regexp.MustCompile(`0x(?P<addr>[0-9a-fA-F]{8,16})$`)
	reBaseAddrShort = regexp.MustCompile(`0x(?P<addr>[0-9a-fA-F]{5,16})`)
	reArch          = regexp.MustCompile(`x32|x64`)
)

// ParseBitnessFromFilename infers the architecture width from a filename
// ending in a bare hex address (16 hex digits implying 64 bit, 8 to 15 hex
// digits implying 32 bit)
// or containing an "x32"/"x64" token. Returns nil when nothing recognized.
func ParseBitnessFromFilename(filename string) *int {
	if m := reBaseAddrLong.FindStringSubmatch(filename); m != nil {
		bits := 32
		if len(m[1]) == 16 {
			bits = 64
		}
		return &bits
	}
	if m := reArch.FindString(filename); m != "" {
		bits := 32
		if m == "x64" {
			bits = 64
		}
		return &bits
	}
	return nil
}

// ParseBaseAddrFromFilename infers the load base address from the first
// "0x<5-16 hex digits>" token in filename, defaulting to 0.
func ParseBaseAddrFromFilename(filename string) uint64 {
	m := reBaseAddrShort.FindStringSubmatch(filename)
	if m == nil {
		return 0
	}
	v, err := strconv.ParseUint(m[1], 16, 64)
	if err != nil {
		return 0
	}
	return v
}

// calculateBlockHash computes the block_hash for block under the image
// bounds [lower, upper): escape each instruction, concatenate the raw
// escaped bytes, SHA-256 the result, and take the first hashSize bytes as
// a little-endian unsigned integer.
func (h *Hasher) calculateBlockHash(block disasm.Block, lower, upper uint64) (uint64, error) {
	var seq []byte
	for _, ins := range block.Instructions {
		escaped, err := h.escaper.Escape(ins, lower, upper)
		if err != nil {
			return 0, err
		}
		seq = append(seq, escaped...)
	}
	digest := sha256.Sum256(seq)
	if h.hashSize == 8 {
		return binary.LittleEndian.Uint64(digest[:8]), nil
	}
	return uint64(binary.LittleEndian.Uint32(digest[:4])), nil
}

// blockSize sums the binary byte length of every instruction in block.
func blockSize(block disasm.Block) uint32 {
	var total uint32
	for _, ins := range block.Instructions {
		total += uint32(ins.ByteLen())
	}
	return total
}

// extractBlockhashes implements the extraction procedure: for every block
// meeting the minimum instruction-count threshold, compute and record its
// block hash, size, and owning function id.
func (h *Hasher) extractBlockhashes(r disasm.Report) (*report.BlockhashReport, error) {
	lower, upper := r.ImageBounds()

	out := &report.BlockhashReport{
		Family:       r.Family,
		Version:      r.Version,
		Bitness:      r.Bitness,
		SHA256:       r.SHA256,
		Filename:     r.Filename,
		IsLibrary:    r.IsLibrary,
		Filesize:     r.BinarySize,
		MinBlockSize: h.minBlockSize,
		Blockhashes:  report.HashMap{},
	}

	var functionID uint32
	for _, fn := range r.Functions {
		out.NumFunctions++
		hashedAny := false
		for _, block := range fn.Blocks {
			out.NumAllBlocks++
			if block.Length() < h.minBlockSize {
				continue
			}
			out.NumBlocks++
			size := blockSize(block)
			hash, err := h.calculateBlockHash(block, lower, upper)
			if err != nil {
				return nil, err
			}
			sizes, ok := out.Blockhashes[uint32(hash)]
			if !ok {
				sizes = report.SizeMap{}
				out.Blockhashes[uint32(hash)] = sizes
			}
			// functionID only grows, so appending it unless it is already
			// last keeps every list sorted and duplicate-free.
			if ids := sizes[size]; len(ids) == 0 || ids[len(ids)-1] != functionID {
				sizes[size] = append(ids, functionID)
			}
			out.BlockBytes += uint64(size)
			hashedAny = true
		}
		if hashedAny {
			out.NumFunctionsHashed++
		}
		functionID++
	}
	out.NumHashes = out.NumHashAndSizePairs()
	return out, nil
}
