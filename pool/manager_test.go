package pool

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newManager(t *testing.T, cfg Config, opts ...Option) *Manager {
	t.Helper()
	m, err := New(cfg, opts...)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func newClient(t *testing.T, m *Manager) *http.Client {
	t.Helper()
	tr := &http.Transport{}
	m.Configure(tr)
	t.Cleanup(tr.CloseIdleConnections)
	return &http.Client{Transport: m.Instrument(tr)}
}

func noContentServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func get(t *testing.T, c *http.Client, url string) {
	t.Helper()
	resp, err := c.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}

func TestConfig_ApplyDefaults(t *testing.T) {
	var cfg Config
	cfg.ApplyDefaults()

	if cfg.MaxTotal != defaultMaxTotal {
		t.Errorf("MaxTotal = %d, want %d", cfg.MaxTotal, defaultMaxTotal)
	}
	if cfg.MaxPerRoute != defaultMaxPerRoute {
		t.Errorf("MaxPerRoute = %d, want %d", cfg.MaxPerRoute, defaultMaxPerRoute)
	}
	if cfg.IdleTimeout != defaultIdleTimeout {
		t.Errorf("IdleTimeout = %v, want %v", cfg.IdleTimeout, defaultIdleTimeout)
	}
	if cfg.KeepAliveDefault != 0 {
		t.Errorf("KeepAliveDefault = %v, want 0", cfg.KeepAliveDefault)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestConfig_ApplyDefaults_SmallMaxTotal(t *testing.T) {
	cfg := Config{MaxTotal: 4}
	cfg.ApplyDefaults()
	if cfg.MaxPerRoute != 4 {
		t.Errorf("MaxPerRoute = %d, want 4", cfg.MaxPerRoute)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "per route above total", mutate: func(c *Config) { c.MaxPerRoute = c.MaxTotal + 1 }, wantErr: "max_per_route"},
		{name: "negative keep alive", mutate: func(c *Config) { c.KeepAliveDefault = -time.Second }, wantErr: "keep_alive_default"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var cfg Config
			cfg.ApplyDefaults()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestManager_Configure(t *testing.T) {
	m := newManager(t, Config{MaxTotal: 8, MaxPerRoute: 3})
	tr := &http.Transport{IdleConnTimeout: time.Minute}
	m.Configure(tr)

	if tr.DialContext == nil {
		t.Fatal("DialContext not set")
	}
	if tr.MaxIdleConns != 8 || tr.MaxIdleConnsPerHost != 3 || tr.MaxConnsPerHost != 3 {
		t.Errorf("sizing = %d/%d/%d, want 8/3/3", tr.MaxIdleConns, tr.MaxIdleConnsPerHost, tr.MaxConnsPerHost)
	}
	if tr.IdleConnTimeout != 0 {
		t.Errorf("IdleConnTimeout = %v, want 0", tr.IdleConnTimeout)
	}
}

func TestManager_ReusesConnection(t *testing.T) {
	srv := noContentServer(t)
	m := newManager(t, Config{})
	client := newClient(t, m)

	for range 20 {
		get(t, client, srv.URL)
	}

	s := m.Stats()
	if s.Total != 1 {
		t.Errorf("Total = %d, want 1", s.Total)
	}
	if s.Leased != 0 || s.Idle != 1 {
		t.Errorf("Leased/Idle = %d/%d, want 0/1", s.Leased, s.Idle)
	}
}

func TestManager_LeasedUntilBodyClosed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("hello"))
	}))
	defer srv.Close()

	m := newManager(t, Config{})
	client := newClient(t, m)

	resp, err := client.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	if got := m.Stats().Leased; got != 1 {
		t.Errorf("Leased before close = %d, want 1", got)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	_ = resp.Body.Close()

	if got := m.Stats().Leased; got != 0 {
		t.Errorf("Leased after close = %d, want 0", got)
	}
}

func TestManager_KeepAliveHeaderExpiresConnection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Keep-Alive", "timeout=0, max=10")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	m := newManager(t, Config{})
	client := newClient(t, m)
	get(t, client, srv.URL)

	if got := m.Stats().Total; got != 0 {
		t.Errorf("Total = %d, want 0 after an expired keep-alive", got)
	}
}

func TestManager_KeepAliveDefault(t *testing.T) {
	srv := noContentServer(t)
	clock := newFakeClock()
	m := newManager(t, Config{KeepAliveDefault: time.Minute}, WithClock(clock.Now))
	client := newClient(t, m)
	get(t, client, srv.URL)

	if n := m.CloseIdle(time.Hour); n != 0 {
		t.Fatalf("CloseIdle closed %d before expiry", n)
	}
	clock.Advance(2 * time.Minute)
	if n := m.CloseIdle(time.Hour); n != 1 {
		t.Fatalf("CloseIdle closed %d after expiry, want 1", n)
	}
}

func TestManager_NoKeepAliveDefaultNeverExpires(t *testing.T) {
	srv := noContentServer(t)
	clock := newFakeClock()
	m := newManager(t, Config{}, WithClock(clock.Now))
	client := newClient(t, m)
	get(t, client, srv.URL)

	clock.Advance(24 * time.Hour)
	if n := m.CloseIdle(48 * time.Hour); n != 0 {
		t.Errorf("CloseIdle closed %d, want 0", n)
	}
}

func TestManager_CloseIdle(t *testing.T) {
	srv := noContentServer(t)
	clock := newFakeClock()
	var hooked atomic.Int64
	m := newManager(t, Config{IdleTimeout: time.Second},
		WithClock(clock.Now),
		WithEvictionHook(func(n int) { hooked.Add(int64(n)) }),
	)
	client := newClient(t, m)
	get(t, client, srv.URL)

	if n := m.CloseIdle(time.Second); n != 0 {
		t.Fatalf("closed %d fresh-idle connections, want 0", n)
	}
	clock.Advance(2 * time.Second)
	if n := m.CloseIdle(time.Second); n != 1 {
		t.Fatalf("closed %d, want 1", n)
	}

	s := m.Stats()
	if s.Total != 0 || s.Evicted != 1 {
		t.Errorf("stats = %+v, want Total 0 Evicted 1", s)
	}
	if hooked.Load() != 1 {
		t.Errorf("eviction hook saw %d, want 1", hooked.Load())
	}

	// The transport dials again after its idle connection was closed.
	get(t, client, srv.URL)
	if got := m.Stats().Total; got != 1 {
		t.Errorf("Total after redial = %d, want 1", got)
	}
}

func TestManager_CloseIdleSkipsLeased(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("body"))
	}))
	defer srv.Close()

	clock := newFakeClock()
	m := newManager(t, Config{}, WithClock(clock.Now))
	client := newClient(t, m)

	resp, err := client.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	clock.Advance(time.Hour)
	if n := m.CloseIdle(time.Second); n != 0 {
		t.Errorf("closed %d leased connections, want 0", n)
	}
}

func TestManager_MaxTotalClosesOldestIdle(t *testing.T) {
	a := noContentServer(t)
	b := noContentServer(t)

	m := newManager(t, Config{MaxTotal: 1, MaxPerRoute: 1})
	client := newClient(t, m)

	get(t, client, a.URL)
	get(t, client, b.URL)

	if got := m.Stats().Total; got != 1 {
		t.Errorf("Total = %d, want 1", got)
	}
}

func TestManager_MaxTotalWaitsForLeased(t *testing.T) {
	a := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("held"))
	}))
	defer a.Close()
	b := noContentServer(t)

	m := newManager(t, Config{MaxTotal: 1, MaxPerRoute: 1})
	client := newClient(t, m)

	held, err := client.Get(a.URL)
	if err != nil {
		t.Fatalf("GET a: %v", err)
	}
	defer held.Body.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, b.URL, nil)
	resp, err := client.Do(req)
	if err == nil {
		resp.Body.Close()
		t.Fatal("expected the second dial to wait for a slot and time out")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error = %v, want deadline exceeded", err)
	}
}

func TestManager_WaiterReclaimsReturnedConnection(t *testing.T) {
	a := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("held"))
	}))
	defer a.Close()
	b := noContentServer(t)

	m := newManager(t, Config{MaxTotal: 1, MaxPerRoute: 1})
	client := newClient(t, m)

	held, err := client.Get(a.URL)
	if err != nil {
		t.Fatalf("GET a: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	type result struct {
		err     error
		elapsed time.Duration
	}
	done := make(chan result, 1)
	go func() {
		start := time.Now()
		req, _ := http.NewRequestWithContext(ctx, http.MethodGet, b.URL, nil)
		resp, err := client.Do(req)
		if err == nil {
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
		}
		done <- result{err: err, elapsed: time.Since(start)}
	}()

	select {
	case r := <-done:
		t.Fatalf("request to b finished while a held the only slot: %v", r.err)
	case <-time.After(100 * time.Millisecond):
	}

	_, _ = io.Copy(io.Discard, held.Body)
	_ = held.Body.Close()

	r := <-done
	if r.err != nil {
		t.Fatalf("GET b after a was returned: %v", r.err)
	}
	if r.elapsed > 2*time.Second {
		t.Errorf("GET b took %v, want it to proceed once a went idle", r.elapsed)
	}
	if s := m.Stats(); s.Total != 1 || s.Leased != 0 {
		t.Errorf("stats = %+v, want one idle connection", s)
	}
}

func TestManager_CloseIsIdempotentAndFinal(t *testing.T) {
	srv := noContentServer(t)
	m, err := New(Config{IdleTimeout: 10 * time.Millisecond})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	client := newClient(t, m)
	m.Start()
	get(t, client, srv.URL)

	if err := m.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if !m.Closed() {
		t.Error("Closed() = false after Close")
	}
	if got := m.Stats().Total; got != 0 {
		t.Errorf("Total after Close = %d, want 0", got)
	}

	m.Start()
	if _, err := m.DialContext(context.Background(), "tcp", srv.Listener.Addr().String()); !errors.Is(err, ErrClosed) {
		t.Errorf("DialContext after Close = %v, want ErrClosed", err)
	}
}

func TestManager_CloseWithoutStart(t *testing.T) {
	m, err := New(Config{})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	done := make(chan struct{})
	go func() {
		_ = m.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Close blocked on an evictor that never started")
	}
}

func TestManager_EvictorRuns(t *testing.T) {
	srv := noContentServer(t)
	m := newManager(t, Config{IdleTimeout: 20 * time.Millisecond})
	client := newClient(t, m)
	get(t, client, srv.URL)
	m.Start()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if m.Stats().Evicted >= 1 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("evictor did not close the idle connection: %+v", m.Stats())
}

func TestManager_ConcurrentRequests(t *testing.T) {
	srv := noContentServer(t)
	m := newManager(t, Config{MaxTotal: 4, MaxPerRoute: 4})
	client := newClient(t, m)

	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := client.Get(srv.URL)
			if err != nil {
				t.Errorf("GET: %v", err)
				return
			}
			_ = resp.Body.Close()
		}()
	}
	wg.Wait()

	s := m.Stats()
	if s.Total > 4 {
		t.Errorf("Total = %d, exceeds MaxTotal 4", s.Total)
	}
	if s.Leased != 0 {
		t.Errorf("Leased = %d, want 0", s.Leased)
	}
}

func TestParseKeepAlive(t *testing.T) {
	tests := []struct {
		header string
		want   time.Duration
		ok     bool
	}{
		{"timeout=5, max=1000", 5 * time.Second, true},
		{"max=10, timeout=30", 30 * time.Second, true},
		{"Timeout = 2", 2 * time.Second, true},
		{"max=10", 0, false},
		{"timeout=abc", 0, false},
		{"timeout=-1", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			got, ok := parseKeepAlive(tt.header)
			if got != tt.want || ok != tt.ok {
				t.Errorf("parseKeepAlive(%q) = %v, %v; want %v, %v", tt.header, got, ok, tt.want, tt.ok)
			}
		})
	}
}
