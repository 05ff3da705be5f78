package pool

import (
	"fmt"
	"time"

	"github.com/kbukum/restkit/validation"
)

const (
	defaultMaxTotal                = 100
	defaultMaxPerRoute             = 20
	defaultIdleTimeout             = 30 * time.Second
	defaultValidateAfterInactivity = 2 * time.Second
	defaultConnectTimeout          = 10 * time.Second
)

// Config sizes the connection pool and drives its eviction schedule.
type Config struct {
	// MaxTotal caps the number of open connections across all routes.
	MaxTotal int `yaml:"max_total" mapstructure:"max_total" validate:"gte=1"`

	// MaxPerRoute caps the number of connections to a single host.
	MaxPerRoute int `yaml:"max_per_route" mapstructure:"max_per_route" validate:"gte=1,ltefield=MaxTotal"`

	// IdleTimeout is how long a connection may sit idle before the evictor
	// closes it. It is also the evictor period.
	IdleTimeout time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout" validate:"gt=0"`

	// ValidateAfterInactivity is the TCP keep-alive probe interval for
	// pooled connections and the HTTP/2 ping interval on idle streams.
	ValidateAfterInactivity time.Duration `yaml:"validate_after_inactivity" mapstructure:"validate_after_inactivity" validate:"gte=0"`

	// KeepAliveDefault bounds the lifetime of a connection whose response
	// carried no Keep-Alive timeout. Zero keeps such connections until evicted.
	KeepAliveDefault time.Duration `yaml:"keep_alive_default" mapstructure:"keep_alive_default" validate:"gte=0"`

	// ConnectTimeout bounds establishing a TCP connection.
	ConnectTimeout time.Duration `yaml:"connect_timeout" mapstructure:"connect_timeout" validate:"gt=0"`
}

// ApplyDefaults fills in zero-value fields. KeepAliveDefault is left alone
// since zero is meaningful.
func (c *Config) ApplyDefaults() {
	if c.MaxTotal <= 0 {
		c.MaxTotal = defaultMaxTotal
	}
	if c.MaxPerRoute <= 0 {
		c.MaxPerRoute = min(defaultMaxPerRoute, c.MaxTotal)
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = defaultIdleTimeout
	}
	if c.ValidateAfterInactivity == 0 {
		c.ValidateAfterInactivity = defaultValidateAfterInactivity
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = defaultConnectTimeout
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if err := validation.Validate(c); err != nil {
		return fmt.Errorf("pool: %w", err)
	}
	return nil
}
