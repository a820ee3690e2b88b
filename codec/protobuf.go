package codec

import (
	"fmt"
	"reflect"

	"google.golang.org/protobuf/proto"
)

// Protobuf stores proto.Message values. Decode targets are pointers to a
// message pointer (e.g. *(*pb.Product)); a nil message is allocated.
// The zero value is ready to use.
type Protobuf struct {
	Marshal   proto.MarshalOptions
	Unmarshal proto.UnmarshalOptions
}

var _ Codec = Protobuf{}

func (c Protobuf) Encode(v any) ([]byte, error) {
	m, ok := v.(proto.Message)
	if !ok {
		return nil, fmt.Errorf("codec: protobuf cannot encode %T", v)
	}
	return c.Marshal.Marshal(m)
}

func (c Protobuf) Decode(b []byte, v any) error {
	if m, ok := v.(proto.Message); ok {
		return c.Unmarshal.Unmarshal(b, m)
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return fmt.Errorf("codec: protobuf cannot decode into %T", v)
	}
	elem := rv.Elem()
	if elem.Kind() != reflect.Pointer {
		return fmt.Errorf("codec: protobuf cannot decode into %T", v)
	}
	if elem.IsNil() {
		elem.Set(reflect.New(elem.Type().Elem()))
	}
	m, ok := elem.Interface().(proto.Message)
	if !ok {
		return fmt.Errorf("codec: protobuf cannot decode into %T", v)
	}
	return c.Unmarshal.Unmarshal(b, m)
}
