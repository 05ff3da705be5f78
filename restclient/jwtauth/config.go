package jwtauth

import (
	"crypto/ecdsa"
	"crypto/rsa"
	"errors"
	"fmt"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"
)

// SigningMethod is a JWS algorithm name.
type SigningMethod string

const (
	HS256 SigningMethod = "HS256"
	HS384 SigningMethod = "HS384"
	HS512 SigningMethod = "HS512"
	RS256 SigningMethod = "RS256"
	RS384 SigningMethod = "RS384"
	RS512 SigningMethod = "RS512"
	ES256 SigningMethod = "ES256"
	ES384 SigningMethod = "ES384"
	ES512 SigningMethod = "ES512"
)

type keyKind int

const (
	keyHMAC keyKind = iota
	keyRSA
	keyECDSA
)

var methods = map[SigningMethod]struct {
	alg  gojwt.SigningMethod
	kind keyKind
}{
	HS256: {gojwt.SigningMethodHS256, keyHMAC},
	HS384: {gojwt.SigningMethodHS384, keyHMAC},
	HS512: {gojwt.SigningMethodHS512, keyHMAC},
	RS256: {gojwt.SigningMethodRS256, keyRSA},
	RS384: {gojwt.SigningMethodRS384, keyRSA},
	RS512: {gojwt.SigningMethodRS512, keyRSA},
	ES256: {gojwt.SigningMethodES256, keyECDSA},
	ES384: {gojwt.SigningMethodES384, keyECDSA},
	ES512: {gojwt.SigningMethodES512, keyECDSA},
}

// Config describes the tokens a Plugin mints and the paths it sends them on.
type Config struct {
	// Patterns are the Ant-style request paths that carry the token.
	Patterns []string `yaml:"patterns" mapstructure:"patterns"`

	// Method defaults to HS256. HS* methods sign with Secret; RS* and ES*
	// sign with PrivateKey, an *rsa.PrivateKey or *ecdsa.PrivateKey.
	Method     SigningMethod `yaml:"method" mapstructure:"method"`
	Secret     string        `yaml:"secret" mapstructure:"secret"`
	PrivateKey any           `yaml:"-" mapstructure:"-"`

	// Registered claims. Empty values are left out of the token.
	Issuer   string   `yaml:"issuer" mapstructure:"issuer"`
	Subject  string   `yaml:"subject" mapstructure:"subject"`
	Audience []string `yaml:"audience" mapstructure:"audience"`

	// TTL is each token's lifetime, 5m by default. A cached token is
	// replaced RefreshBefore ahead of expiry, TTL/5 by default.
	TTL           time.Duration `yaml:"ttl" mapstructure:"ttl"`
	RefreshBefore time.Duration `yaml:"refresh_before" mapstructure:"refresh_before"`
}

// ApplyDefaults fills unset fields. A RefreshBefore that is not shorter
// than TTL is reset too.
func (c *Config) ApplyDefaults() {
	if c.Method == "" {
		c.Method = HS256
	}
	if c.TTL <= 0 {
		c.TTL = 5 * time.Minute
	}
	if c.RefreshBefore <= 0 || c.RefreshBefore >= c.TTL {
		c.RefreshBefore = c.TTL / 5
	}
}

// Validate checks that the key material matches the method.
func (c *Config) Validate() error {
	if len(c.Patterns) == 0 {
		return errors.New("jwtauth: at least one path pattern is required")
	}
	m, ok := methods[c.Method]
	if !ok {
		return fmt.Errorf("jwtauth: unsupported signing method: %s", c.Method)
	}
	switch m.kind {
	case keyHMAC:
		if c.Secret == "" {
			return fmt.Errorf("jwtauth: %s needs a secret", c.Method)
		}
	case keyRSA:
		if _, ok := c.PrivateKey.(*rsa.PrivateKey); !ok {
			return fmt.Errorf("jwtauth: %s needs a *rsa.PrivateKey, got %T", c.Method, c.PrivateKey)
		}
	case keyECDSA:
		key, ok := c.PrivateKey.(*ecdsa.PrivateKey)
		if !ok || key == nil {
			return fmt.Errorf("jwtauth: %s needs a *ecdsa.PrivateKey, got %T", c.Method, c.PrivateKey)
		}
		want := m.alg.(*gojwt.SigningMethodECDSA).CurveBits
		if got := key.Curve.Params().BitSize; got != want {
			return fmt.Errorf("jwtauth: %s needs a P-%d key, got P-%d", c.Method, want, got)
		}
	}
	return nil
}

// signer returns the algorithm and key for a validated config.
func (c *Config) signer() (gojwt.SigningMethod, any) {
	m := methods[c.Method]
	if m.kind == keyHMAC {
		return m.alg, []byte(c.Secret)
	}
	return m.alg, c.PrivateKey
}
