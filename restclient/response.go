package restclient

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"unicode/utf8"
)

// NoContent declares that a call's response body is not wanted. The body is
// drained and discarded so the connection can be reused.
type NoContent struct{}

type responseKind int

const (
	kindNone responseKind = iota
	kindBytes
	kindText
	kindJSON
)

func (k responseKind) String() string {
	switch k {
	case kindNone:
		return "none"
	case kindBytes:
		return "bytes"
	case kindText:
		return "text"
	default:
		return "json"
	}
}

// loggable reports whether bodies of this kind are written to diagnostics.
func (k responseKind) loggable() bool {
	return k == kindText || k == kindJSON
}

func kindOf[R any]() responseKind {
	switch any((*R)(nil)).(type) {
	case *NoContent:
		return kindNone
	case *[]byte:
		return kindBytes
	case *string:
		return kindText
	default:
		return kindJSON
	}
}

// ClientResponse is the typed result of a call.
type ClientResponse[R any] struct {
	statusCode int
	reason     string
	header     http.Header
	content    R
	hasContent bool
}

// StatusCode returns the HTTP status code.
func (r *ClientResponse[R]) StatusCode() int { return r.statusCode }

// ReasonPhrase returns the status text, e.g. "OK".
func (r *ClientResponse[R]) ReasonPhrase() string { return r.reason }

// Header returns a copy of the response headers.
func (r *ClientResponse[R]) Header() http.Header { return r.header.Clone() }

// Content returns the materialized body. It is the zero value when the
// response type is NoContent.
func (r *ClientResponse[R]) Content() R { return r.content }

// HasContent reports whether a body was materialized.
func (r *ClientResponse[R]) HasContent() bool { return r.hasContent }

// materialize converts resp into a ClientResponse[R] and always closes the
// body. It also returns the raw body bytes that were read, nil for NoContent.
func materialize[R any](resp *EngineResponse) (*ClientResponse[R], []byte, error) {
	defer func() { _ = resp.Body.Close() }()

	out := &ClientResponse[R]{
		statusCode: resp.StatusCode,
		reason:     resp.Reason,
		header:     resp.Header.Clone(),
	}
	if out.header == nil {
		out.header = make(http.Header)
	}

	kind := kindOf[R]()
	if kind == kindNone {
		if _, err := io.Copy(io.Discard, resp.Body); err != nil {
			return nil, nil, ClassifyTransportError(fmt.Errorf("drain response body: %w", err))
		}
		return out, nil, nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, ClassifyTransportError(fmt.Errorf("read response body: %w", err))
	}

	switch kind {
	case kindBytes:
		out.content = any(body).(R)
	case kindText:
		if !utf8.Valid(body) {
			return nil, body, NewDeserializationError(resp.StatusCode, body, errors.New("response body is not valid UTF-8"))
		}
		out.content = any(string(body)).(R)
	default:
		if len(bytes.TrimSpace(body)) == 0 {
			return nil, body, NewDeserializationError(resp.StatusCode, body, errors.New("empty response body"))
		}
		var content R
		if err := json.Unmarshal(body, &content); err != nil {
			return nil, body, NewDeserializationError(resp.StatusCode, body, fmt.Errorf("decode %T: %w", content, err))
		}
		out.content = content
	}
	out.hasContent = true
	return out, body, nil
}
