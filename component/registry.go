package component

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kbukum/restkit/logger"
)

// DefaultStopTimeout bounds each component's Stop unless overridden.
const DefaultStopTimeout = 10 * time.Second

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithStopTimeout bounds each component's Stop. Non-positive values are
// ignored.
func WithStopTimeout(d time.Duration) RegistryOption {
	return func(r *Registry) {
		if d > 0 {
			r.stopTimeout = d
		}
	}
}

type slot struct {
	c       Component
	running bool
}

// Registry starts components in registration order and stops them in
// reverse. It is safe for concurrent use.
type Registry struct {
	mu          sync.RWMutex
	slots       []*slot
	byName      map[string]*slot
	stopTimeout time.Duration
	log         *logger.Logger
}

// NewRegistry returns an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		byName:      make(map[string]*slot),
		stopTimeout: DefaultStopTimeout,
		log:         logger.Get("component"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register appends c. Register dependencies before their dependents.
func (r *Registry) Register(c Component) error {
	if c == nil {
		return errors.New("component: nil component")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	name := c.Name()
	if _, dup := r.byName[name]; dup {
		return fmt.Errorf("component: %q already registered", name)
	}
	s := &slot{c: c}
	r.slots = append(r.slots, s)
	r.byName[name] = s
	r.log.Debug("component registered", logger.Fields(logger.FieldComponent, name))
	return nil
}

// StartAll starts every component that is not running. When one fails,
// the components this call started are stopped again, newest first.
func (r *Registry) StartAll(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var started []*slot
	for _, s := range r.slots {
		if s.running {
			continue
		}
		name := s.c.Name()
		if err := s.c.Start(ctx); err != nil {
			r.log.Error("component start failed", logger.Fields(logger.FieldComponent, name, logger.FieldError, err.Error()))
			if rbErr := r.stopSlots(ctx, started); rbErr != nil {
				err = errors.Join(err, rbErr)
			}
			return fmt.Errorf("component: start %s: %w", name, err)
		}
		s.running = true
		started = append(started, s)
		r.log.Debug("component started", logger.Fields(logger.FieldComponent, name))
	}
	r.log.Info("components started", logger.Fields("count", len(started)))
	return nil
}

// StopAll stops every running component in reverse registration order,
// giving each up to the stop timeout. All are attempted and the failures
// joined.
func (r *Registry) StopAll(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stopSlots(ctx, r.slots)
}

func (r *Registry) stopSlots(ctx context.Context, slots []*slot) error {
	var errs []error
	for i := len(slots) - 1; i >= 0; i-- {
		s := slots[i]
		if !s.running {
			continue
		}
		name := s.c.Name()
		stopCtx, cancel := context.WithTimeout(ctx, r.stopTimeout)
		err := s.c.Stop(stopCtx)
		cancel()
		s.running = false

		if err != nil {
			r.log.Error("component stop failed", logger.Fields(logger.FieldComponent, name, logger.FieldError, err.Error()))
			errs = append(errs, fmt.Errorf("stop %s: %w", name, err))
			continue
		}
		r.log.Debug("component stopped", logger.Fields(logger.FieldComponent, name))
	}
	if len(errs) > 0 {
		return fmt.Errorf("component: %w", errors.Join(errs...))
	}
	return nil
}

// HealthAll reports every component, in registration order.
func (r *Registry) HealthAll(ctx context.Context) []Health {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Health, len(r.slots))
	for i, s := range r.slots {
		out[i] = s.c.Health(ctx)
	}
	return out
}

// Get returns the component registered as name, or nil.
func (r *Registry) Get(name string) Component {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if s, ok := r.byName[name]; ok {
		return s.c
	}
	return nil
}

// Describe describes every component, in registration order. Components
// that are not Describable are described by name alone.
func (r *Registry) Describe() []Description {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Description, len(r.slots))
	for i, s := range r.slots {
		var d Description
		if desc, ok := s.c.(Describable); ok {
			d = desc.Describe()
		}
		if d.Name == "" {
			d.Name = s.c.Name()
		}
		out[i] = d
	}
	return out
}
