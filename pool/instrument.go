package pool

import (
	"io"
	"net/http"
	"net/http/httptrace"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) { return f(req) }

// Instrument wraps next so that every request marks its connection leased
// until the response body is closed, and every response's Keep-Alive header
// (or KeepAliveDefault when absent) sets the connection's expiry.
func (m *Manager) Instrument(next http.RoundTripper) http.RoundTripper {
	return roundTripperFunc(func(req *http.Request) (*http.Response, error) {
		var current atomic.Pointer[trackedConn]
		trace := &httptrace.ClientTrace{
			GotConn: func(info httptrace.GotConnInfo) {
				tc := m.lookup(info.Conn)
				if tc == nil {
					return
				}
				m.lease(tc)
				// The transport may retry on a fresh connection.
				if prev := current.Swap(tc); prev != nil {
					m.giveBack(prev)
				}
			},
		}
		ctx := httptrace.WithClientTrace(req.Context(), trace)

		resp, err := next.RoundTrip(req.WithContext(ctx))
		tc := current.Load()
		if tc == nil {
			return resp, err
		}
		if err != nil {
			m.giveBack(tc)
			return resp, err
		}

		ttl, ok := parseKeepAlive(resp.Header.Get("Keep-Alive"))
		m.setExpiry(tc, ttl, ok)
		resp.Body = &releaseBody{ReadCloser: resp.Body, release: func() { m.giveBack(tc) }}
		return resp, nil
	})
}

// releaseBody returns its connection to the pool when closed.
type releaseBody struct {
	io.ReadCloser
	once    sync.Once
	release func()
}

func (b *releaseBody) Close() error {
	err := b.ReadCloser.Close()
	b.once.Do(b.release)
	return err
}

// parseKeepAlive extracts the timeout parameter of a Keep-Alive header,
// e.g. "timeout=5, max=1000".
func parseKeepAlive(v string) (time.Duration, bool) {
	for _, part := range strings.Split(v, ",") {
		name, value, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found || !strings.EqualFold(strings.TrimSpace(name), "timeout") {
			continue
		}
		secs, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
		if err != nil || secs < 0 {
			return 0, false
		}
		return time.Duration(secs) * time.Second, true
	}
	return 0, false
}
