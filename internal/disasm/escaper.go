package disasm

import (
	"encoding/binary"
	"encoding/hex"

	"github.com/rpcpool/picblocks-go/internal/perrors"
)

// wildcardByte is substituted for any operand byte the Escaper determines
// encodes an absolute address inside the image bounds. The exact placeholder
// value is not part of the wire contract (it never leaves this package): two
// wildcarded instructions always collapse to the same hash input regardless
// of which byte value is chosen, as long as it is chosen consistently.
const wildcardByte = 0x00

// Escaper normalizes an instruction's bytes so that absolute addresses tied
// to one particular load address do not affect the resulting hash. This is
// the position-independent-code normalization step the hasher relies on.
type Escaper interface {
	// Escape returns the normalized byte sequence for ins, wildcarding any
	// operand that resolves to an absolute address in [lower, upper).
	Escape(ins Instruction, lower, upper uint64) ([]byte, error)
}

// IntelEscaper is a reduced reimplementation of SMDA's
// IntelInstructionEscaper: it does not decode x86 operands, but it
// approximates the common case of a trailing 32-bit displacement or
// immediate by inspecting the last four bytes of the instruction as a
// little-endian address candidate. This is sufficient to keep the hasher
// position-independent for any instruction stream where absolute references
// are encoded exactly that way -- which is how the literal
// rip-relative/absolute-address forms this system is built to normalize are
// laid out on x86.
type IntelEscaper struct{}

// Escape implements Escaper.
func (IntelEscaper) Escape(ins Instruction, lower, upper uint64) ([]byte, error) {
	raw, err := hex.DecodeString(ins.Bytes)
	if err != nil {
		return nil, perrors.Wrap(perrors.KindHashInputInvalid, err, "decode instruction bytes")
	}
	out := make([]byte, len(raw))
	copy(out, raw)
	if len(out) >= 4 {
		tail := out[len(out)-4:]
		candidate := uint64(binary.LittleEndian.Uint32(tail))
		if candidate >= lower && candidate < upper {
			for i := range tail {
				tail[i] = wildcardByte
			}
		}
	}
	return out, nil
}
