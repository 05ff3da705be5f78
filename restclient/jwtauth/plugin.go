// Package jwtauth provides an authorization plugin that mints signed JWTs
// for outbound requests.
//
// A token is minted on first use and reused until shortly before it
// expires, so signing cost is paid once per TTL rather than per request.
//
// Usage:
//
//	p, err := jwtauth.New(jwtauth.Config{
//	    Patterns: []string{"/internal/**"},
//	    Secret:   os.Getenv("SERVICE_JWT_SECRET"),
//	    Issuer:   "billing",
//	})
//	client.Plugins().Register(p)
package jwtauth

import (
	"fmt"
	"slices"
	"sync"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/kbukum/restkit/logger"
	"github.com/kbukum/restkit/restclient"
)

// Scheme is the authorization scheme sent with minted tokens.
const Scheme = "Bearer"

// Plugin is a restclient.AuthorizationHeaderPlugin carrying a cached,
// self-signed JWT.
type Plugin struct {
	cfg Config
	now func() time.Time
	log *logger.Logger

	mu        sync.Mutex
	token     string
	refreshAt time.Time
}

var _ restclient.AuthorizationHeaderPlugin = (*Plugin)(nil)

// Option customizes a Plugin.
type Option func(*Plugin)

// WithClock overrides the time source used for claims and caching.
func WithClock(now func() time.Time) Option {
	return func(p *Plugin) { p.now = now }
}

// WithLogger sets the logger used to report signing failures.
func WithLogger(l *logger.Logger) Option {
	return func(p *Plugin) { p.log = l }
}

// New validates cfg and creates a plugin. No token is minted until the
// first matching request.
func New(cfg Config, opts ...Option) (*Plugin, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	p := &Plugin{
		cfg: cfg,
		now: time.Now,
		log: logger.Get("jwtauth"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// PathPatterns implements restclient.AuthorizationHeaderPlugin.
func (p *Plugin) PathPatterns() []string { return slices.Clone(p.cfg.Patterns) }

// AuthorizationType implements restclient.AuthorizationHeaderPlugin.
func (p *Plugin) AuthorizationType() string { return Scheme }

// AuthorizationValue returns the cached token, minting a new one when the
// cache is empty or due for refresh. A signing failure yields an empty
// value, so no header is sent.
func (p *Plugin) AuthorizationValue() string {
	token, err := p.Token()
	if err != nil {
		p.log.Warn("failed to mint token", logger.Fields(logger.FieldError, err.Error()))
		return ""
	}
	return token
}

// Token returns the current token, minting one if needed.
func (p *Plugin) Token() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	if p.token != "" && now.Before(p.refreshAt) {
		return p.token, nil
	}

	expires := now.Add(p.cfg.TTL)
	claims := gojwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Issuer:    p.cfg.Issuer,
		Subject:   p.cfg.Subject,
		IssuedAt:  gojwt.NewNumericDate(now),
		NotBefore: gojwt.NewNumericDate(now),
		ExpiresAt: gojwt.NewNumericDate(expires),
	}
	if len(p.cfg.Audience) > 0 {
		claims.Audience = gojwt.ClaimStrings(slices.Clone(p.cfg.Audience))
	}

	alg, key := p.cfg.signer()
	signed, err := gojwt.NewWithClaims(alg, claims).SignedString(key)
	if err != nil {
		return "", fmt.Errorf("jwtauth: sign token: %w", err)
	}
	p.token = signed
	p.refreshAt = expires.Add(-p.cfg.RefreshBefore)
	return signed, nil
}

// Invalidate drops the cached token so the next request mints a new one.
func (p *Plugin) Invalidate() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.token = ""
	p.refreshAt = time.Time{}
}
