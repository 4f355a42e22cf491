package index

import (
	"fmt"

	jsoniter "github.com/json-iterator/go"

	"github.com/rpcpool/picblocks-go/internal/perrors"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Entry is one (family, sample, function) attribution of a block hash,
// stored as a 4-tuple on the wire: [family_id, sample_id, function_id,
// is_library].
type Entry struct {
	FamilyID   uint32
	SampleID   uint32
	FunctionID uint32
	IsLibrary  bool
}

// MarshalJSON encodes the entry as a 4-element array.
func (e Entry) MarshalJSON() ([]byte, error) {
	return json.Marshal([4]interface{}{e.FamilyID, e.SampleID, e.FunctionID, e.IsLibrary})
}

// UnmarshalJSON decodes the 4-element array form. is_library defaults to
// false when the 4th element is absent.
func (e *Entry) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return perrors.Wrap(perrors.KindCorruptDB, err, "decode blockhash entry")
	}
	if len(raw) < 3 {
		return perrors.New(perrors.KindCorruptDB, "blockhash entry: expected at least 3 elements, got %d", len(raw))
	}
	if err := json.Unmarshal(raw[0], &e.FamilyID); err != nil {
		return perrors.Wrap(perrors.KindCorruptDB, err, "decode family_id")
	}
	if err := json.Unmarshal(raw[1], &e.SampleID); err != nil {
		return perrors.Wrap(perrors.KindCorruptDB, err, "decode sample_id")
	}
	if err := json.Unmarshal(raw[2], &e.FunctionID); err != nil {
		return perrors.Wrap(perrors.KindCorruptDB, err, "decode function_id")
	}
	e.IsLibrary = false
	if len(raw) > 3 {
		if err := json.Unmarshal(raw[3], &e.IsLibrary); err != nil {
			return perrors.Wrap(perrors.KindCorruptDB, err, "decode is_library")
		}
	}
	return nil
}

func (e Entry) String() string {
	return fmt.Sprintf("(family=%d sample=%d function=%d lib=%t)", e.FamilyID, e.SampleID, e.FunctionID, e.IsLibrary)
}
