package codec

import (
	"encoding/json"
	"fmt"
)

// Raw stores []byte, string and json.RawMessage values verbatim. It is the
// codec for Text, Blob and ArrayBuffer responses that should skip a second
// serialization pass. Any other type is an error.
type Raw struct{}

var _ Codec = Raw{}

func (Raw) Encode(v any) ([]byte, error) {
	switch x := v.(type) {
	case []byte:
		return x, nil
	case string:
		return []byte(x), nil
	case json.RawMessage:
		return x, nil
	}
	return nil, fmt.Errorf("codec: raw cannot encode %T", v)
}

func (Raw) Decode(b []byte, v any) error {
	switch p := v.(type) {
	case *[]byte:
		*p = append([]byte(nil), b...)
	case *string:
		*p = string(b)
	case *json.RawMessage:
		*p = append(json.RawMessage(nil), b...)
	case *any:
		*p = append([]byte(nil), b...)
	default:
		return fmt.Errorf("codec: raw cannot decode into %T", v)
	}
	return nil
}
