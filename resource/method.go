package resource

import "net/http"

// Method is an HTTP verb a request descriptor may use.
type Method string

const (
	MethodGet     Method = http.MethodGet
	MethodPost    Method = http.MethodPost
	MethodPut     Method = http.MethodPut
	MethodPatch   Method = http.MethodPatch
	MethodDelete  Method = http.MethodDelete
	MethodOptions Method = http.MethodOptions
	MethodHead    Method = http.MethodHead
)

// Valid reports whether m is one of the supported verbs.
func (m Method) Valid() bool {
	switch m {
	case MethodGet, MethodPost, MethodPut, MethodPatch, MethodDelete, MethodOptions, MethodHead:
		return true
	}
	return false
}

// AllowsBody reports whether a request body may be attached.
// GET, HEAD and OPTIONS never carry one.
func (m Method) AllowsBody() bool {
	switch m {
	case MethodGet, MethodHead, MethodOptions:
		return false
	}
	return true
}

func (m Method) String() string { return string(m) }

// ResponseType selects how a successful response body is decoded.
type ResponseType uint8

const (
	JSON ResponseType = iota
	Text
	Blob
	ArrayBuffer
	Stream
)

var responseTypeNames = [...]string{
	JSON:        "json",
	Text:        "text",
	Blob:        "blob",
	ArrayBuffer: "arraybuffer",
	Stream:      "stream",
}

func (rt ResponseType) Valid() bool { return int(rt) < len(responseTypeNames) }

func (rt ResponseType) String() string {
	if !rt.Valid() {
		return "unknown"
	}
	return responseTypeNames[rt]
}

// ParseResponseType maps a textual name ("json", "text", ...) to a ResponseType.
func ParseResponseType(s string) (ResponseType, error) {
	for i, n := range responseTypeNames {
		if n == s {
			return ResponseType(i), nil
		}
	}
	return 0, invalid(KindInvalidOption, "responseType", "unknown response type %q", s)
}
