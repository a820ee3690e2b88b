// Package codec turns response values into cache payloads and back.
//
// A Codec is untyped: Decode fills the value pointed to by v, so one codec
// instance serves every request type stored by a controller.
package codec

import "fmt"

// Codec encodes values to []byte for storage.
type Codec interface {
	Encode(v any) ([]byte, error)
	// Decode stores the result in the value pointed to by v.
	Decode(b []byte, v any) error
}

// ByName returns the codec registered under name: json, cbor, msgpack, raw.
func ByName(name string) (Codec, error) {
	switch name {
	case "", "json":
		return JSON{}, nil
	case "cbor":
		return NewCBOR(false)
	case "msgpack":
		return Msgpack{}, nil
	case "raw":
		return Raw{}, nil
	}
	return nil, fmt.Errorf("codec: unknown codec %q", name)
}
