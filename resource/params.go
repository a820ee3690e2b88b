package resource

import (
	"net/url"
	"strconv"
)

// IDKey is the reserved parameter that addresses one instance of a collection.
const IDKey = "id"

// Params are the parameters of one request. Values must be scalars: string,
// bool, any integer or float width, or nil (absent).
//
// A nil Params means "not ready yet" and disables reads; use Params{} for a
// request without parameters.
type Params map[string]any

// ID returns the rendered id parameter, if present and non-empty.
func (p Params) ID() (string, bool, error) {
	v, ok := p[IDKey]
	if !ok || v == nil {
		return "", false, nil
	}
	s, err := scalar(IDKey, v)
	if err != nil {
		return "", false, err
	}
	return s, s != "", nil
}

// Query renders every parameter except id as an encoded query string,
// sorted by key. Absent (nil) values are skipped.
func (p Params) Query() (string, error) {
	if len(p) == 0 {
		return "", nil
	}
	q := make(url.Values, len(p))
	for k, v := range p {
		if k == IDKey || v == nil {
			continue
		}
		s, err := scalar(k, v)
		if err != nil {
			return "", err
		}
		q.Set(k, s)
	}
	return q.Encode(), nil
}

// Validate rejects non-scalar values.
func (p Params) Validate() error {
	for k, v := range p {
		if _, err := scalar(k, v); err != nil {
			return err
		}
	}
	return nil
}

// Clone returns a shallow copy; nil stays nil.
func (p Params) Clone() Params {
	if p == nil {
		return nil
	}
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

func scalar(key string, v any) (string, error) {
	switch x := v.(type) {
	case nil:
		return "", nil
	case string:
		return x, nil
	case bool:
		return strconv.FormatBool(x), nil
	case int:
		return strconv.FormatInt(int64(x), 10), nil
	case int8:
		return strconv.FormatInt(int64(x), 10), nil
	case int16:
		return strconv.FormatInt(int64(x), 10), nil
	case int32:
		return strconv.FormatInt(int64(x), 10), nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	case uint:
		return strconv.FormatUint(uint64(x), 10), nil
	case uint8:
		return strconv.FormatUint(uint64(x), 10), nil
	case uint16:
		return strconv.FormatUint(uint64(x), 10), nil
	case uint32:
		return strconv.FormatUint(uint64(x), 10), nil
	case uint64:
		return strconv.FormatUint(x, 10), nil
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32), nil
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), nil
	default:
		return "", invalid(KindInvalidParam, key, "unsupported value of type %T (want string, number, bool or nil)", v)
	}
}
