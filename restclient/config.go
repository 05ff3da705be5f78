package restclient

import (
	"fmt"
	"time"

	"golang.org/x/net/http/httpguts"

	"github.com/kbukum/restkit/pool"
	"github.com/kbukum/restkit/security"
	"github.com/kbukum/restkit/validation"
)

const (
	defaultName                 = "rest"
	defaultTimeout              = 30 * time.Second
	defaultCorrelationAttribute = "correlation_id"
)

// Config configures a REST client and its engine.
type Config struct {
	// Name identifies the client in logs, telemetry and the component registry.
	Name string `yaml:"name" mapstructure:"name"`

	// Timeout is the default per-request timeout. Defaults to 30s.
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout" validate:"gt=0"`

	// Pool sizes the engine's connection pool.
	Pool pool.Config `yaml:"pool" mapstructure:"pool"`

	// Diagnostics controls request/response logging.
	Diagnostics DiagnosticsConfig `yaml:"diagnostics" mapstructure:"diagnostics"`

	// TLS configures the engine's TLS client.
	TLS *security.TLSConfig `yaml:"tls" mapstructure:"tls"`

	// DisableRedirects returns 3xx responses instead of following them.
	DisableRedirects bool `yaml:"disable_redirects" mapstructure:"disable_redirects"`

	// EnableCookies keeps a cookie jar across calls.
	EnableCookies bool `yaml:"enable_cookies" mapstructure:"enable_cookies"`

	// Headers are sent on every request unless the request sets them.
	Headers map[string]string `yaml:"headers" mapstructure:"headers"`
}

// DiagnosticsConfig controls request/response logging.
type DiagnosticsConfig struct {
	// Enabled turns on one log line before and one after every call.
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`

	// CorrelationAttribute names the context slot holding the correlation ID.
	CorrelationAttribute string `yaml:"correlation_attribute" mapstructure:"correlation_attribute"`

	// CorrelationHeader, when set, sends the correlation ID upstream.
	CorrelationHeader string `yaml:"correlation_header" mapstructure:"correlation_header"`

	// RedactHeaders are masked in log output in addition to Authorization
	// and Proxy-Authorization, which are always masked.
	RedactHeaders []string `yaml:"redact_headers" mapstructure:"redact_headers"`
}

// ApplyDefaults fills in zero-value fields with sensible defaults.
func (c *Config) ApplyDefaults() {
	if c.Name == "" {
		c.Name = defaultName
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	c.Pool.ApplyDefaults()
	if c.Diagnostics.CorrelationAttribute == "" {
		c.Diagnostics.CorrelationAttribute = defaultCorrelationAttribute
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if err := validation.Validate(c); err != nil {
		return fmt.Errorf("restclient: %w", err)
	}
	if c.TLS != nil {
		if err := c.TLS.Validate(); err != nil {
			return err
		}
	}
	for k := range c.Headers {
		if !httpguts.ValidHeaderFieldName(k) {
			return fmt.Errorf("restclient: invalid default header name %q", k)
		}
	}
	return nil
}
