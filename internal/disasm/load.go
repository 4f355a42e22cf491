package disasm

import (
	"io"
	"os"

	jsoniter "github.com/json-iterator/go"

	"github.com/rpcpool/picblocks-go/internal/perrors"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// LoadReport reads a disassembly report from a JSON file at path.
func LoadReport(path string) (Report, error) {
	f, err := os.Open(path)
	if err != nil {
		return Report{}, perrors.Wrap(perrors.KindIO, err, "open disassembly report")
	}
	defer f.Close()
	return DecodeReport(f)
}

// DecodeReport decodes a disassembly report from r.
func DecodeReport(r io.Reader) (Report, error) {
	var rep Report
	if err := json.NewDecoder(r).Decode(&rep); err != nil {
		return Report{}, perrors.Wrap(perrors.KindCorruptDB, err, "decode disassembly report")
	}
	return rep, nil
}
