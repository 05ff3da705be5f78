package restclient

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

// OutboundRequest is the engine-neutral form of a call, fully resolved by
// the client: headers merged, authorization applied, body encoded.
type OutboundRequest struct {
	Method  string
	URL     *url.URL
	Header  http.Header
	Body    []byte
	Timeout time.Duration
}

// EngineResponse is a raw response handed back by an engine. The client
// closes Body.
type EngineResponse struct {
	StatusCode int
	Reason     string
	Header     http.Header
	Body       io.ReadCloser
}

// Engine sends requests over a concrete HTTP stack.
type Engine interface {
	// Name identifies the engine in logs and telemetry.
	Name() string
	// Do sends req and returns the response with an open body. Failures are
	// returned as *Error with a transport or timeout code.
	Do(ctx context.Context, req *OutboundRequest) (*EngineResponse, error)
	// Unwrap sets target, a pointer to a native handle type, when the engine
	// has a handle of that type, and reports whether it did.
	Unwrap(target any) bool
	// Stop shuts the engine down. It is safe to call more than once.
	Stop(ctx context.Context) error
}

// EngineFactory builds an engine from validated configuration.
type EngineFactory func(cfg Config) (Engine, error)

// ReasonPhrase extracts the reason phrase from a status line such as
// "200 OK", falling back to the standard text for code.
func ReasonPhrase(status string, code int) string {
	if _, reason, ok := strings.Cut(status, " "); ok && strings.HasPrefix(status, strconv.Itoa(code)) {
		return reason
	}
	return http.StatusText(code)
}

// RequestContext derives the context a single call runs under, bounded by
// timeout when it is positive.
func RequestContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout > 0 {
		return context.WithTimeout(ctx, timeout)
	}
	return context.WithCancel(ctx)
}

// CancelOnClose runs cancel once body is closed, so a per-request timeout
// context outlives RoundTrip until the caller is done reading.
func CancelOnClose(body io.ReadCloser, cancel context.CancelFunc) io.ReadCloser {
	return &cancelBody{ReadCloser: body, cancel: cancel}
}

type cancelBody struct {
	io.ReadCloser
	once   sync.Once
	cancel context.CancelFunc
}

func (b *cancelBody) Close() error {
	err := b.ReadCloser.Close()
	b.once.Do(b.cancel)
	return err
}
