package disasm

import (
	"context"

	"github.com/rpcpool/picblocks-go/internal/perrors"
)

// Disassembler is the out-of-scope collaborator that, given raw bytes,
// yields a Report. This repository ships no real implementation (no
// disassembler is in-pack); NullDisassembler documents the extension point
// an embedder plugs a real one into.
type Disassembler interface {
	// DisassembleBuffer disassembles buf as a mapped image loaded at
	// baseAddr, with the given bitness.
	DisassembleBuffer(ctx context.Context, buf []byte, baseAddr uint64, bitness int) (Report, error)
	// DisassembleUnmappedBuffer disassembles buf without an associated load
	// address (e.g. a standalone code blob rather than a mapped image).
	DisassembleUnmappedBuffer(ctx context.Context, buf []byte) (Report, error)
}

// NullDisassembler always fails with KindDisassemblyFailed. It exists so
// that hasher.ProcessBytes has a concrete, zero-value-safe Disassembler to
// fall back on when the embedder has not wired in a real one.
type NullDisassembler struct{}

func (NullDisassembler) DisassembleBuffer(ctx context.Context, buf []byte, baseAddr uint64, bitness int) (Report, error) {
	return Report{}, perrors.New(perrors.KindDisassemblyFailed, "no disassembler configured: process_bytes requires an embedder-provided disasm.Disassembler")
}

func (NullDisassembler) DisassembleUnmappedBuffer(ctx context.Context, buf []byte) (Report, error) {
	return Report{}, perrors.New(perrors.KindDisassemblyFailed, "no disassembler configured: process_bytes requires an embedder-provided disasm.Disassembler")
}
