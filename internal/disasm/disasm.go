// Package disasm defines the data shapes and collaborator interfaces the
// blockhash pipeline consumes from a disassembler. The disassembler itself
// is treated as an external collaborator: this package only specifies its
// contract (a disassembly report) and the position-independent byte-escaping
// contract that the hasher relies on.
package disasm

// Instruction carries the hex-encoded bytes of a single decoded instruction,
// at a given address within the containing image.
type Instruction struct {
	Offset uint64 `json:"offset"`
	Bytes  string `json:"bytes"` // hex-encoded, e.g. "488b05f0ffffff"
}

// ByteLen returns the number of raw binary bytes this instruction occupies,
// i.e. half the length of its hex representation, floored. An odd-length hex
// string is a disassembler defect; the floor is propagated as-is rather than
// rejected.
func (i Instruction) ByteLen() int {
	return len(i.Bytes) / 2
}

// Block is a straight-line run of instructions ending at a control-flow
// boundary.
type Block struct {
	Instructions []Instruction `json:"instructions"`
}

// Length returns the instruction count of the block.
func (b Block) Length() int {
	return len(b.Instructions)
}

// Function is an ordered sequence of blocks with a fixed entry address.
type Function struct {
	Offset uint64  `json:"offset"`
	Blocks []Block `json:"blocks"`
}

// Report is the full disassembly of one sample, as handed over by the
// disassembler collaborator.
type Report struct {
	Family     string     `json:"family"`
	Version    string     `json:"version"`
	Bitness    int        `json:"bitness"`
	SHA256     string     `json:"sha256"`
	Filename   string     `json:"filename"`
	IsLibrary  bool       `json:"is_library"`
	BaseAddr   uint64     `json:"base_addr"`
	BinarySize uint64     `json:"binary_size"`
	Functions  []Function `json:"functions"`
}

// ImageBounds returns the [lower, upper) address range of the mapped image,
// used to decide which operand bytes the Escaper should wildcard.
func (r Report) ImageBounds() (lower, upper uint64) {
	return r.BaseAddr, r.BaseAddr + r.BinarySize
}
