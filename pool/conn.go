package pool

import (
	"crypto/tls"
	"net"
	"sync"
	"time"
)

// trackedConn is a net.Conn owned by a Manager. Its bookkeeping fields are
// guarded by the manager's mutex.
type trackedConn struct {
	net.Conn
	m *Manager

	// fresh is set until the first request is sent on the connection so a
	// just-dialed connection is never chosen to make room for another dial.
	fresh     bool
	inFlight  int
	idleSince time.Time
	expiresAt time.Time

	closeOnce sync.Once
}

// Close closes the socket and frees its slot exactly once.
func (c *trackedConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.Conn.Close()
		c.m.forget(c)
	})
	return err
}

func (c *trackedConn) expired(now time.Time) bool {
	return !c.expiresAt.IsZero() && !now.Before(c.expiresAt)
}

func (m *Manager) forget(c *trackedConn) {
	m.mu.Lock()
	_, ok := m.conns[c]
	delete(m.conns, c)
	m.mu.Unlock()
	if ok {
		m.slots.Release(1)
	}
}

// lookup maps a connection reported by the transport, possibly wrapped in
// TLS, back to the tracked connection underneath.
func (m *Manager) lookup(conn net.Conn) *trackedConn {
	for conn != nil {
		switch c := conn.(type) {
		case *trackedConn:
			if c.m == m {
				return c
			}
			return nil
		case *tls.Conn:
			conn = c.NetConn()
		default:
			return nil
		}
	}
	return nil
}

// lease marks one more request in flight on c.
func (m *Manager) lease(c *trackedConn) {
	m.mu.Lock()
	c.fresh = false
	c.inFlight++
	m.mu.Unlock()
}

// giveBack marks one request on c as finished. A connection that becomes
// idle past its keep-alive expiry is closed right away; otherwise dials
// waiting for a slot are woken so they can reclaim it.
func (m *Manager) giveBack(c *trackedConn) {
	now := m.now()

	m.mu.Lock()
	if c.inFlight > 0 {
		c.inFlight--
	}
	idle := c.inFlight == 0
	if idle {
		c.idleSince = now
	}
	expired := idle && c.expired(now)
	if idle && !expired {
		close(m.idled)
		m.idled = make(chan struct{})
	}
	m.mu.Unlock()

	if expired {
		_ = c.Close()
	}
}

// setExpiry records when c stops being reusable. A zero ttl with ok=false
// means the server gave no keep-alive hint.
func (m *Manager) setExpiry(c *trackedConn, ttl time.Duration, ok bool) {
	if !ok {
		ttl = m.cfg.KeepAliveDefault
		if ttl <= 0 {
			return
		}
	}
	expiresAt := m.now().Add(ttl)

	m.mu.Lock()
	c.expiresAt = expiresAt
	m.mu.Unlock()
}
