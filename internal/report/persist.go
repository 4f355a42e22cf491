package report

import (
	"io"
	"os"
	"path/filepath"

	jsoniter "github.com/json-iterator/go"

	"github.com/rpcpool/picblocks-go/internal/perrors"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Load reads a blockhash report from the .blocks file at path.
func Load(path string) (*BlockhashReport, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, perrors.Wrap(perrors.KindIO, err, "open blockhash report")
	}
	defer f.Close()
	return Decode(f)
}

// Decode reads a blockhash report from r.
func Decode(r io.Reader) (*BlockhashReport, error) {
	var rep BlockhashReport
	if err := json.NewDecoder(r).Decode(&rep); err != nil {
		return nil, perrors.Wrap(perrors.KindCorruptDB, err, "decode blockhash report")
	}
	return &rep, nil
}

// Save writes rep as a .blocks file at path, via a temp-file-then-rename so
// that a concurrent reader never observes a partially written file.
func Save(path string, rep *BlockhashReport) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".blocks-*.tmp")
	if err != nil {
		return perrors.Wrap(perrors.KindIO, err, "create temp blockhash report")
	}
	tmpPath := tmp.Name()
	enc := json.NewEncoder(tmp)
	if err := enc.Encode(rep); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return perrors.Wrap(perrors.KindIO, err, "encode blockhash report")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return perrors.Wrap(perrors.KindIO, err, "close temp blockhash report")
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return perrors.Wrap(perrors.KindIO, err, "rename temp blockhash report")
	}
	return nil
}
