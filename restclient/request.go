package restclient

import (
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ClientRequest describes one outbound call whose response body is
// materialized as R. It is immutable once built.
type ClientRequest[R any] struct {
	parts requestParts
}

type requestParts struct {
	uri     *url.URL
	method  string
	header  http.Header
	query   url.Values
	form    url.Values
	body    any
	timeout time.Duration
}

// RequestOption configures a ClientRequest.
type RequestOption func(*requestParts)

// WithMethod sets the HTTP method.
func WithMethod(method string) RequestOption {
	return func(s *requestParts) { s.method = strings.ToUpper(method) }
}

// WithHeader adds a header value.
func WithHeader(key, value string) RequestOption {
	return func(s *requestParts) { s.header.Add(key, value) }
}

// WithHeaders sets several headers, replacing earlier values for the same keys.
func WithHeaders(headers map[string]string) RequestOption {
	return func(s *requestParts) {
		for k, v := range headers {
			s.header.Set(k, v)
		}
	}
}

// WithQueryParam adds a query parameter.
func WithQueryParam(key, value string) RequestOption {
	return func(s *requestParts) { s.query.Add(key, value) }
}

// WithFormParam adds a url-encoded form parameter.
func WithFormParam(key, value string) RequestOption {
	return func(s *requestParts) { s.form.Add(key, value) }
}

// WithBody sets the request body. []byte, string and io.Reader bodies are
// sent as-is; anything else is encoded as JSON.
func WithBody(body any) RequestOption {
	return func(s *requestParts) { s.body = body }
}

// WithTimeout bounds the whole call. Zero uses the client's default.
func WithTimeout(d time.Duration) RequestOption {
	return func(s *requestParts) { s.timeout = d }
}

// NewRequest builds a request for uri, which must be an absolute http or
// https URL.
func NewRequest[R any](uri string, opts ...RequestOption) (*ClientRequest[R], error) {
	if strings.TrimSpace(uri) == "" {
		return nil, NewValidationError("request uri is required")
	}
	u, err := url.Parse(uri)
	if err != nil {
		return nil, &Error{Code: ErrCodeValidation, Message: fmt.Sprintf("invalid request uri %q", uri), Err: err}
	}
	if !u.IsAbs() || u.Host == "" {
		return nil, NewValidationError(fmt.Sprintf("request uri %q must be absolute", uri))
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, NewValidationError(fmt.Sprintf("request uri %q has unsupported scheme %q", uri, u.Scheme))
	}

	parts := requestParts{
		uri:    u,
		header: make(http.Header),
		query:  make(url.Values),
		form:   make(url.Values),
	}
	for _, opt := range opts {
		opt(&parts)
	}
	if parts.timeout < 0 {
		return nil, NewValidationError("request timeout must not be negative")
	}
	return &ClientRequest[R]{parts: parts}, nil
}

// MustRequest is like NewRequest but panics on error. It is meant for
// fixed URIs known to be valid.
func MustRequest[R any](uri string, opts ...RequestOption) *ClientRequest[R] {
	req, err := NewRequest[R](uri, opts...)
	if err != nil {
		panic(err)
	}
	return req
}

// WithMethod returns a copy of the request using method.
func (r *ClientRequest[R]) WithMethod(method string) *ClientRequest[R] {
	cp := &ClientRequest[R]{parts: r.parts.clone()}
	cp.parts.method = strings.ToUpper(method)
	return cp
}

// URI returns a copy of the target URI.
func (r *ClientRequest[R]) URI() *url.URL {
	u := *r.parts.uri
	return &u
}

// Method returns the HTTP method, empty if none has been set.
func (r *ClientRequest[R]) Method() string { return r.parts.method }

// Header returns a copy of the request headers.
func (r *ClientRequest[R]) Header() http.Header { return r.parts.header.Clone() }

// Query returns a copy of the query parameters.
func (r *ClientRequest[R]) Query() url.Values { return cloneValues(r.parts.query) }

// Form returns a copy of the form parameters.
func (r *ClientRequest[R]) Form() url.Values { return cloneValues(r.parts.form) }

// Body returns the request body as given.
func (r *ClientRequest[R]) Body() any { return r.parts.body }

// Timeout returns the request timeout, zero meaning the client default.
func (r *ClientRequest[R]) Timeout() time.Duration { return r.parts.timeout }

func (s requestParts) clone() requestParts {
	cp := s
	u := *s.uri
	cp.uri = &u
	cp.header = s.header.Clone()
	cp.query = cloneValues(s.query)
	cp.form = cloneValues(s.form)
	return cp
}

func cloneValues(v url.Values) url.Values {
	cp := make(url.Values, len(v))
	for k, vals := range v {
		cp[k] = append([]string(nil), vals...)
	}
	return cp
}

// Payload is an encoded request body.
type Payload struct {
	Body        []byte
	ContentType string
}

// Content types set on encoded payloads.
const (
	ContentTypeForm   = "application/x-www-form-urlencoded"
	ContentTypeJSON   = "application/json"
	ContentTypeText   = "text/plain; charset=utf-8"
	ContentTypeBinary = "application/octet-stream"
)

// EncodePayload encodes the body of a request. Form parameters win over a
// body when both are set and the method is POST; otherwise the body wins.
// A request with only form parameters is always url-encoded.
func EncodePayload(method string, form url.Values, body any) (Payload, error) {
	if len(form) > 0 && (body == nil || method == http.MethodPost) {
		return Payload{Body: []byte(form.Encode()), ContentType: ContentTypeForm}, nil
	}

	switch v := body.(type) {
	case nil:
		return Payload{}, nil
	case []byte:
		return Payload{Body: v, ContentType: ContentTypeBinary}, nil
	case string:
		return Payload{Body: []byte(v), ContentType: ContentTypeText}, nil
	case io.Reader:
		data, err := io.ReadAll(v)
		if err != nil {
			return Payload{}, fmt.Errorf("read body: %w", err)
		}
		return Payload{Body: data, ContentType: ContentTypeBinary}, nil
	case json.RawMessage:
		return Payload{Body: v, ContentType: ContentTypeJSON}, nil
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return Payload{}, fmt.Errorf("encode body: %w", err)
		}
		return Payload{Body: data, ContentType: ContentTypeJSON}, nil
	}
}

// mergeQuery returns u with params appended to its existing query. The
// query already in u is kept byte for byte.
func mergeQuery(u *url.URL, params url.Values) *url.URL {
	out := *u
	if len(params) == 0 {
		return &out
	}
	extra := params.Encode()
	if out.RawQuery == "" {
		out.RawQuery = extra
	} else {
		out.RawQuery += "&" + extra
	}
	return &out
}

// mergeHeaders applies defaults, then request headers on top.
func mergeHeaders(defaults map[string]string, header http.Header) http.Header {
	out := make(http.Header, len(defaults)+len(header))
	for k, v := range defaults {
		out.Set(k, v)
	}
	maps.Copy(out, header.Clone())
	return out
}
