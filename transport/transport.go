// Package transport performs the HTTP exchange behind a request descriptor:
// it serializes the body, sends it, and decodes the response according to the
// declared response type. Failures are normalized into *RequestError (non-2xx)
// and *TransportError (no usable response). There are no retries here.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/unkn0wn-root/rescache/resource"
)

const (
	defaultTimeout = 30 * time.Second
	// maxErrorBody caps how much of a failed response is kept as the message.
	maxErrorBody = 64 << 10
)

// Call is one fully resolved request.
type Call struct {
	URL          string
	Method       resource.Method
	Header       http.Header
	ResponseType resource.ResponseType
	Body         any
}

// Executor sends Calls. It is safe for concurrent use.
type Executor struct {
	client    *http.Client
	userAgent string
}

type Option func(*Executor)

// WithHTTPClient replaces the default client (30s timeout).
func WithHTTPClient(c *http.Client) Option {
	return func(e *Executor) {
		if c != nil {
			e.client = c
		}
	}
}

// WithTokenSource authenticates every request with OAuth2 bearer tokens from
// ts, layered over whatever client is configured at that point.
func WithTokenSource(ts oauth2.TokenSource) Option {
	return func(e *Executor) {
		if ts == nil {
			return
		}
		base := e.client.Transport
		if base == nil {
			base = http.DefaultTransport
		}
		c := *e.client
		c.Transport = &oauth2.Transport{Source: oauth2.ReuseTokenSource(nil, ts), Base: base}
		e.client = &c
	}
}

// WithStaticToken is WithTokenSource for a fixed bearer token.
func WithStaticToken(token string) Option {
	if token == "" {
		return func(*Executor) {}
	}
	return WithTokenSource(oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}))
}

func WithUserAgent(ua string) Option {
	return func(e *Executor) { e.userAgent = ua }
}

func New(opts ...Option) *Executor {
	e := &Executor{client: &http.Client{Timeout: defaultTimeout}}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Do sends c and returns the response of a 2xx exchange. The caller owns the
// body. Non-2xx responses are drained into a *RequestError.
func (e *Executor) Do(ctx context.Context, c Call) (*http.Response, error) {
	if !c.Method.Valid() {
		return nil, &resource.ValidationError{Kind: resource.KindInvalidMethod, Field: "method",
			Reason: fmt.Sprintf("unsupported method %q", string(c.Method))}
	}
	body, err := encodeBody(c.Method, c.Body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, c.Method.String(), c.URL, body)
	if err != nil {
		return nil, &resource.ValidationError{Kind: resource.KindInvalidParam, Field: "url", Reason: err.Error()}
	}
	for k, vs := range c.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if e.userAgent != "" && req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", e.userAgent)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, &TransportError{Method: c.Method.String(), URL: c.URL, Err: err}
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	defer resp.Body.Close()
	msg, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return nil, &TransportError{Method: c.Method.String(), URL: c.URL, Err: err}
	}
	return nil, &RequestError{
		Method:     c.Method.String(),
		URL:        c.URL,
		StatusCode: resp.StatusCode,
		Message:    string(msg),
	}
}

// Execute is Do followed by Decode.
func Execute[T any](ctx context.Context, e *Executor, c Call) (T, error) {
	resp, err := e.Do(ctx, c)
	if err != nil {
		var zero T
		return zero, err
	}
	return Decode[T](resp, c.ResponseType)
}

// Decode reads a successful response as rt into T:
//
//	JSON              any T; an empty body yields the zero value
//	Text              T must be string
//	Blob, ArrayBuffer T must be []byte
//	Stream            T must be io.ReadCloser; the body is handed over unread
//
// The body is closed unless it is handed over as a stream.
func Decode[T any](resp *http.Response, rt resource.ResponseType) (out T, err error) {
	if rt != resource.Stream {
		defer resp.Body.Close()
	}
	method, url := origin(resp)
	fail := func(err error) (T, error) {
		var zero T
		return zero, &TransportError{Method: method, URL: url, Err: err}
	}

	switch rt {
	case resource.JSON:
		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return fail(err)
		}
		if len(bytes.TrimSpace(raw)) == 0 {
			return out, nil
		}
		if err := json.Unmarshal(raw, &out); err != nil {
			return out, fmt.Errorf("transport: decode json from %s: %w", url, err)
		}
		return out, nil
	case resource.Text:
		p, ok := any(&out).(*string)
		if !ok {
			return out, mismatch[T](rt, "string")
		}
		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return fail(err)
		}
		*p = string(raw)
		return out, nil
	case resource.Blob, resource.ArrayBuffer:
		p, ok := any(&out).(*[]byte)
		if !ok {
			return out, mismatch[T](rt, "[]byte")
		}
		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return fail(err)
		}
		*p = raw
		return out, nil
	case resource.Stream:
		p, ok := any(&out).(*io.ReadCloser)
		if !ok {
			resp.Body.Close()
			return out, mismatch[T](rt, "io.ReadCloser")
		}
		*p = resp.Body
		return out, nil
	default:
		return out, &resource.ValidationError{Kind: resource.KindResponseType, Field: "responseType",
			Reason: fmt.Sprintf("unknown response type %d", rt)}
	}
}

func origin(resp *http.Response) (method, url string) {
	if resp.Request == nil {
		return "", ""
	}
	return resp.Request.Method, resp.Request.URL.String()
}

func mismatch[T any](rt resource.ResponseType, want string) error {
	var zero T
	return &resource.ValidationError{
		Kind:   resource.KindResponseType,
		Field:  "responseType",
		Reason: fmt.Sprintf("%s responses decode into %s, not %T", rt, want, zero),
	}
}

// encodeBody passes raw payloads through and JSON-encodes structured values.
// GET, HEAD and OPTIONS never carry a body; one given for them is dropped.
func encodeBody(m resource.Method, body any) (io.Reader, error) {
	if !m.AllowsBody() || isNil(body) {
		return nil, nil
	}
	switch b := body.(type) {
	case []byte:
		return bytes.NewReader(b), nil
	case json.RawMessage:
		return bytes.NewReader(b), nil
	case string:
		return strings.NewReader(b), nil
	case io.Reader:
		return b, nil
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("transport: encode body: %w", err)
	}
	return bytes.NewReader(raw), nil
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface:
		return rv.IsNil()
	}
	return false
}
