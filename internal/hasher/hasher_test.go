package hasher

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rpcpool/picblocks-go/internal/disasm"
)

// instr builds a 6-byte instruction: a 2-byte "opcode" prefix followed by a
// 4-byte little-endian absolute address operand.
func instr(opcodePrefix uint16, addr uint32) disasm.Instruction {
	b := make([]byte, 6)
	b[0] = byte(opcodePrefix >> 8)
	b[1] = byte(opcodePrefix)
	b[2] = byte(addr)
	b[3] = byte(addr >> 8)
	b[4] = byte(addr >> 16)
	b[5] = byte(addr >> 24)
	return disasm.Instruction{Bytes: hex.EncodeToString(b)}
}

func fourInstrBlock(base uint32) disasm.Block {
	return disasm.Block{Instructions: []disasm.Instruction{
		instr(0x0001, base+0x10),
		instr(0x0002, base+0x20),
		instr(0x0003, base+0x30),
		instr(0x0004, base+0x40),
	}}
}

func reportWithOneFunction(baseAddr uint64, binarySize uint64, blocks ...disasm.Block) disasm.Report {
	return disasm.Report{
		Family:     "acme",
		Version:    "1.0",
		Bitness:    32,
		SHA256:     "abc123",
		Filename:   "sample.bin",
		BaseAddr:   baseAddr,
		BinarySize: binarySize,
		Functions: []disasm.Function{
			{Offset: baseAddr, Blocks: blocks},
		},
	}
}

func TestDeterminism(t *testing.T) {
	h := New()
	r := reportWithOneFunction(0x400000, 0x1000, fourInstrBlock(0x400000))

	out1, err := h.ProcessDisasm(r)
	require.NoError(t, err)
	out2, err := h.ProcessDisasm(r)
	require.NoError(t, err)
	require.Equal(t, out1.Blockhashes, out2.Blockhashes)
}

func TestMinBlockThreshold(t *testing.T) {
	h := New()
	shortBlock := disasm.Block{Instructions: []disasm.Instruction{instr(1, 0), instr(2, 0)}}
	r := reportWithOneFunction(0x1000, 0x1000, shortBlock)

	out, err := h.ProcessDisasm(r)
	require.NoError(t, err)
	require.Equal(t, 0, out.NumBlocks)
	require.Equal(t, 1, out.NumFunctions)
	require.Equal(t, 0, out.NumFunctionsHashed)
	require.Equal(t, 1, out.NumAllBlocks)
	require.Empty(t, out.Blockhashes)
}

func TestSizeAccounting(t *testing.T) {
	h := New()
	r := reportWithOneFunction(0x1000, 0x1000, fourInstrBlock(0x1000))
	out, err := h.ProcessDisasm(r)
	require.NoError(t, err)
	require.Equal(t, out.BlockBytes, out.ComputedBlockBytes())
	require.Equal(t, uint64(24), out.BlockBytes) // 4 instructions * 6 bytes
}

func TestPositionIndependence(t *testing.T) {
	h := New()
	base1 := uint64(0x400000)
	base2 := uint64(0x10000000)

	// Each instruction's operand encodes an address relative to its own
	// function's base, so shifting the whole image preserves the property
	// that the operand still resolves to an address inside image bounds.
	block1 := fourInstrBlock(uint32(base1))
	block2 := fourInstrBlock(uint32(base2))

	r1 := reportWithOneFunction(base1, 0x1000, block1)
	r2 := reportWithOneFunction(base2, 0x1000, block2)

	out1, err := h.ProcessDisasm(r1)
	require.NoError(t, err)
	out2, err := h.ProcessDisasm(r2)
	require.NoError(t, err)

	require.Equal(t, out1.Blockhashes, out2.Blockhashes)
	require.Equal(t, out1.NumFunctions, out2.NumFunctions)
}

func TestFilenameInferenceBaseAddr(t *testing.T) {
	require.Equal(t, uint64(0x401000), ParseBaseAddrFromFilename("sample_0x401000.bin"))
	require.Equal(t, uint64(0), ParseBaseAddrFromFilename("no_address_here.bin"))
}

func TestFilenameInferenceBitness(t *testing.T) {
	b64 := ParseBitnessFromFilename("dump_0x0000000010000000")
	require.NotNil(t, b64)
	require.Equal(t, 64, *b64)

	b32 := ParseBitnessFromFilename("dump_0x00401000")
	require.NotNil(t, b32)
	require.Equal(t, 32, *b32)

	bx := ParseBitnessFromFilename("sample_x64_unpacked.bin")
	require.NotNil(t, bx)
	require.Equal(t, 64, *bx)

	require.Nil(t, ParseBitnessFromFilename("plain.bin"))
}
