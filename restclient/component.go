package restclient

import (
	"context"
	"fmt"
	"sync"

	"github.com/kbukum/restkit/component"
	"github.com/kbukum/restkit/pool"
)

// Component adapts a Client to the component lifecycle: the client and
// its engine are built on Start and released on Stop.
type Component struct {
	cfg     Config
	factory EngineFactory
	opts    []Option

	mu     sync.RWMutex
	client *Client
}

var (
	_ component.Component   = (*Component)(nil)
	_ component.Describable = (*Component)(nil)
)

// NewComponent returns an unstarted component. cfg.Name is the component
// name.
func NewComponent(cfg Config, factory EngineFactory, opts ...Option) *Component {
	cfg.ApplyDefaults()
	return &Component{cfg: cfg, factory: factory, opts: opts}
}

// Client returns the running client, or nil before Start.
func (c *Component) Client() *Client {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.client
}

// Name returns the configured client name.
func (c *Component) Name() string { return c.cfg.Name }

// Start builds the client and its engine. Starting twice is a no-op.
func (c *Component) Start(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client != nil {
		return nil
	}
	client, err := New(c.cfg, c.factory, c.opts...)
	if err != nil {
		return fmt.Errorf("rest client %s start: %w", c.cfg.Name, err)
	}
	c.client = client
	c.client.log.Info("rest client started")
	return nil
}

// Stop shuts the client down.
func (c *Component) Stop(ctx context.Context) error {
	c.mu.RLock()
	client := c.client
	c.mu.RUnlock()
	if client == nil {
		return nil
	}
	return client.Stop(ctx)
}

// Health reports unhealthy until started and after stop, and degraded while
// every connection the pool may open is carrying a request.
func (c *Component) Health(_ context.Context) component.Health {
	report := func(status component.HealthStatus, msg string) component.Health {
		return component.Health{Name: c.Name(), Status: status, Message: msg}
	}
	client := c.Client()
	if client == nil {
		return report(component.StatusUnhealthy, "rest client not initialized")
	}
	if client.Stopped() {
		return report(component.StatusUnhealthy, "rest client stopped")
	}

	var mgr *pool.Manager
	if client.Unwrap(&mgr) {
		stats, max := mgr.Stats(), mgr.Config().MaxTotal
		if stats.Total >= max && stats.Idle == 0 {
			return report(component.StatusDegraded,
				fmt.Sprintf("connection pool exhausted (%d/%d leased)", stats.Leased, max))
		}
	}
	return report(component.StatusHealthy, "")
}

// Describe returns a summary for startup output.
func (c *Component) Describe() component.Description {
	engine := "unstarted"
	if client := c.Client(); client != nil {
		engine = client.EngineName()
	}
	return component.Description{
		Name: c.Name(),
		Type: "rest-client",
		Details: fmt.Sprintf("engine=%s pool=%d/%d timeout=%s",
			engine, c.cfg.Pool.MaxTotal, c.cfg.Pool.MaxPerRoute, c.cfg.Timeout),
	}
}
