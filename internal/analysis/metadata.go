package analysis

import (
	"bytes"

	"github.com/trust-ai-analyzer/internal/jsonx"
)

// RawMetadataKey holds an encoded metadata string that could not be decoded.
const RawMetadataKey = "raw_metadata"

// Metadata is document metadata. Values are scalars or arrays.
type Metadata map[string]interface{}

// DecodeMetadata turns the model's metadata string into a mapping. A string
// that is not a JSON object is kept under RawMetadataKey instead of dropped.
func DecodeMetadata(encoded string) Metadata {
	trimmed := bytes.TrimSpace([]byte(encoded))
	if len(trimmed) == 0 {
		return nil
	}
	var m map[string]interface{}
	if err := jsonx.Unmarshal(trimmed, &m); err != nil || m == nil {
		return Metadata{RawMetadataKey: encoded}
	}
	return Metadata(m)
}

// UnmarshalJSON accepts either an object or a JSON-encoded string holding one.
func (m *Metadata) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*m = nil
		return nil
	}

	if trimmed[0] == '"' {
		var s string
		if err := jsonx.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		*m = DecodeMetadata(s)
		return nil
	}

	var obj map[string]interface{}
	if err := jsonx.Unmarshal(trimmed, &obj); err != nil {
		*m = Metadata{RawMetadataKey: string(trimmed)}
		return nil
	}
	*m = Metadata(obj)
	return nil
}
