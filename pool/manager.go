package pool

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/kbukum/restkit/logger"
)

// ErrClosed is returned by DialContext once the manager has been closed.
var ErrClosed = errors.New("pool: manager closed")

// DialFunc matches net.Dialer.DialContext.
type DialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// Stats is a point-in-time snapshot of the pool.
type Stats struct {
	Total   int   `json:"total"`
	Leased  int   `json:"leased"`
	Idle    int   `json:"idle"`
	Evicted int64 `json:"evicted"`
}

// Option customizes a Manager.
type Option func(*Manager)

// WithLogger sets the logger used by the evictor.
func WithLogger(l *logger.Logger) Option {
	return func(m *Manager) { m.log = l }
}

// WithDialFunc replaces the TCP dialer. Connections it returns are still
// tracked and counted against MaxTotal.
func WithDialFunc(fn DialFunc) Option {
	return func(m *Manager) { m.dial = fn }
}

// WithEvictionHook registers a callback invoked with the number of
// connections closed by each eviction pass that closed at least one.
func WithEvictionHook(fn func(n int)) Option {
	return func(m *Manager) { m.onEvict = fn }
}

// WithClock overrides time.Now for idle and expiry bookkeeping.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// Manager owns the lifecycle of the connections an engine's transport opens:
// it dials them, limits how many exist, tracks which are idle, honours
// keep-alive expiry, and runs the background idle evictor.
type Manager struct {
	cfg     Config
	log     *logger.Logger
	dial    DialFunc
	slots   *semaphore.Weighted
	onEvict func(n int)
	now     func() time.Time

	mu      sync.Mutex
	conns   map[*trackedConn]struct{}
	idled   chan struct{} // closed and replaced when a connection turns idle
	evicted int64
	started bool
	closed  bool

	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// New builds a Manager. The evictor is not running until Start is called.
func New(cfg Config, opts ...Option) (*Manager, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	dialer := &net.Dialer{
		Timeout:   cfg.ConnectTimeout,
		KeepAlive: cfg.ValidateAfterInactivity,
	}

	m := &Manager{
		cfg:   cfg,
		log:   logger.Get("pool"),
		dial:  dialer.DialContext,
		slots: semaphore.NewWeighted(int64(cfg.MaxTotal)),
		now:   time.Now,
		conns: make(map[*trackedConn]struct{}),
		idled: make(chan struct{}),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Config returns the effective configuration.
func (m *Manager) Config() Config {
	return m.cfg
}

// Configure points t at the manager's dialer and applies the pool sizing.
// Idle expiry is left to the evictor, so the transport's own idle timeout
// is disabled.
func (m *Manager) Configure(t *http.Transport) {
	t.DialContext = m.DialContext
	t.MaxIdleConns = m.cfg.MaxTotal
	t.MaxIdleConnsPerHost = m.cfg.MaxPerRoute
	t.MaxConnsPerHost = m.cfg.MaxPerRoute
	t.IdleConnTimeout = 0
}

// Start launches the evictor. It is a no-op when already started or closed.
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started || m.closed {
		return
	}
	m.started = true
	go m.runEvictor()
}

// DialContext opens a tracked connection, waiting for a free slot when
// MaxTotal connections are already open and none of them is idle.
func (m *Manager) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	if m.isClosed() {
		return nil, ErrClosed
	}
	if err := m.acquire(ctx); err != nil {
		return nil, err
	}
	if m.isClosed() {
		m.slots.Release(1)
		return nil, ErrClosed
	}

	conn, err := m.dial(ctx, network, addr)
	if err != nil {
		m.slots.Release(1)
		return nil, err
	}

	tc := &trackedConn{Conn: conn, m: m, fresh: true, idleSince: m.now()}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		_ = conn.Close()
		m.slots.Release(1)
		return nil, ErrClosed
	}
	m.conns[tc] = struct{}{}
	m.mu.Unlock()

	return tc, nil
}

// acquire takes a connection slot, closing the longest-idle connection to
// make room when the pool is full. A waiter re-checks for an idle victim
// whenever a leased connection is returned.
func (m *Manager) acquire(ctx context.Context) error {
	for {
		if m.slots.TryAcquire(1) {
			return nil
		}
		victim, idled := m.oldestIdle()
		if victim != nil {
			m.log.Debug("pool full, closing oldest idle connection", logger.Fields(
				"remote", victim.RemoteAddr().String(),
			))
			_ = victim.Close()
			continue
		}

		waitCtx, cancel := context.WithCancel(ctx)
		go func() {
			select {
			case <-idled:
				cancel()
			case <-waitCtx.Done():
			}
		}()
		err := m.slots.Acquire(waitCtx, 1)
		cancel()
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

// oldestIdle returns the longest-idle connection, or nil with the channel
// that is closed when the next connection turns idle.
func (m *Manager) oldestIdle() (*trackedConn, <-chan struct{}) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var victim *trackedConn
	for c := range m.conns {
		if c.inFlight > 0 || c.fresh {
			continue
		}
		if victim == nil || c.idleSince.Before(victim.idleSince) {
			victim = c
		}
	}
	return victim, m.idled
}

// CloseIdle closes every connection that has been idle for longer than
// idle, plus every idle connection whose keep-alive has expired. It returns
// the number of connections closed.
func (m *Manager) CloseIdle(idle time.Duration) int {
	now := m.now()

	m.mu.Lock()
	var victims []*trackedConn
	for c := range m.conns {
		if c.inFlight > 0 {
			continue
		}
		if now.Sub(c.idleSince) > idle || c.expired(now) {
			victims = append(victims, c)
		}
	}
	m.mu.Unlock()

	for _, c := range victims {
		_ = c.Close()
	}

	if n := len(victims); n > 0 {
		m.mu.Lock()
		m.evicted += int64(n)
		m.mu.Unlock()
		if m.onEvict != nil {
			m.onEvict(n)
		}
	}
	return len(victims)
}

// runEvictor waits two idle periods, then evicts once per idle period until
// Close. A ticker drops missed ticks, so passes never overlap.
func (m *Manager) runEvictor() {
	defer close(m.done)

	delay := time.NewTimer(2 * m.cfg.IdleTimeout)
	select {
	case <-m.stop:
		delay.Stop()
		return
	case <-delay.C:
	}

	ticker := time.NewTicker(m.cfg.IdleTimeout)
	defer ticker.Stop()
	for {
		if n := m.CloseIdle(m.cfg.IdleTimeout); n > 0 {
			m.log.Debug("evicted idle connections", logger.Fields("count", n))
		}
		select {
		case <-m.stop:
			return
		case <-ticker.C:
		}
	}
}

// Close stops the evictor, waits for an in-progress pass to finish, then
// closes every tracked connection. It is idempotent and the manager cannot
// be restarted.
func (m *Manager) Close() error {
	m.closeOnce.Do(func() {
		m.mu.Lock()
		m.closed = true
		started := m.started
		m.mu.Unlock()

		close(m.stop)
		if started {
			<-m.done
		}

		m.mu.Lock()
		conns := make([]*trackedConn, 0, len(m.conns))
		for c := range m.conns {
			conns = append(conns, c)
		}
		m.mu.Unlock()

		for _, c := range conns {
			_ = c.Close()
		}
		m.log.Debug("pool closed", logger.Fields("connections", len(conns)))
	})
	return nil
}

// Closed reports whether Close has been called.
func (m *Manager) Closed() bool {
	return m.isClosed()
}

func (m *Manager) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Stats returns a snapshot of the tracked connections.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Stats{Total: len(m.conns), Evicted: m.evicted}
	for c := range m.conns {
		if c.inFlight > 0 {
			s.Leased++
		}
	}
	s.Idle = s.Total - s.Leased
	return s
}
