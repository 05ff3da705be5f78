package security

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
)

var tlsVersions = map[string]uint16{
	"1.2": tls.VersionTLS12,
	"1.3": tls.VersionTLS13,
}

// TLSConfig describes how an engine trusts upstream servers and, for
// mutual TLS, which certificate it presents. A nil or zero TLSConfig
// leaves the engine on Go's defaults.
type TLSConfig struct {
	// SkipVerify accepts any server certificate. Never enable it outside
	// of local development.
	SkipVerify bool `yaml:"skip_verify" mapstructure:"skip_verify"`

	// SkipHostnameVerify verifies the chain but not the host name.
	SkipHostnameVerify bool `yaml:"skip_hostname_verify" mapstructure:"skip_hostname_verify"`

	// CAFile is a PEM bundle trusted instead of the system roots.
	CAFile string `yaml:"ca_file" mapstructure:"ca_file"`

	// CertFile and KeyFile are the client certificate for mutual TLS.
	CertFile string `yaml:"cert_file" mapstructure:"cert_file"`
	KeyFile  string `yaml:"key_file" mapstructure:"key_file"`

	// ServerName is sent as SNI and checked against the certificate.
	ServerName string `yaml:"server_name" mapstructure:"server_name"`

	// MinVersion is "1.2" or "1.3". Empty means 1.2.
	MinVersion string `yaml:"min_version" mapstructure:"min_version"`
}

// Enabled reports whether any setting differs from the defaults.
func (c *TLSConfig) Enabled() bool {
	return c != nil && *c != TLSConfig{}
}

// Validate checks the settings without touching the file system.
func (c *TLSConfig) Validate() error {
	if c == nil {
		return nil
	}
	if (c.CertFile == "") != (c.KeyFile == "") {
		return errors.New("security/tls: cert_file and key_file must be set together")
	}
	if _, ok := tlsVersions[c.minVersion()]; !ok {
		return fmt.Errorf("security/tls: unsupported min_version %q (want 1.2 or 1.3)", c.MinVersion)
	}
	return nil
}

// Build returns the client tls.Config, or nil when TLS is not configured.
func (c *TLSConfig) Build() (*tls.Config, error) {
	if !c.Enabled() {
		return nil, nil
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}

	cfg := &tls.Config{
		MinVersion:         tlsVersions[c.minVersion()],
		ServerName:         c.ServerName,
		InsecureSkipVerify: c.SkipVerify,
	}
	if c.CAFile != "" {
		roots, err := readCertPool(c.CAFile)
		if err != nil {
			return nil, err
		}
		cfg.RootCAs = roots
	}
	if c.CertFile != "" {
		cert, err := tls.LoadX509KeyPair(c.CertFile, c.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("security/tls: load client certificate: %w", err)
		}
		cfg.Certificates = []tls.Certificate{cert}
	}
	if c.SkipHostnameVerify && !c.SkipVerify {
		// The standard check is turned off and replaced by a chain-only one.
		cfg.InsecureSkipVerify = true
		cfg.VerifyConnection = chainVerifier(cfg.RootCAs)
	}
	return cfg, nil
}

func (c *TLSConfig) minVersion() string {
	if c.MinVersion == "" {
		return "1.2"
	}
	return c.MinVersion
}

func readCertPool(path string) (*x509.CertPool, error) {
	pem, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("security/tls: read CA file: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("security/tls: no certificates in %s", path)
	}
	return pool, nil
}

// chainVerifier checks the peer chain against roots, or the system roots
// when roots is nil, ignoring the host name.
func chainVerifier(roots *x509.CertPool) func(tls.ConnectionState) error {
	return func(cs tls.ConnectionState) error {
		if len(cs.PeerCertificates) == 0 {
			return errors.New("security/tls: server presented no certificate")
		}
		intermediates := x509.NewCertPool()
		for _, cert := range cs.PeerCertificates[1:] {
			intermediates.AddCert(cert)
		}
		_, err := cs.PeerCertificates[0].Verify(x509.VerifyOptions{
			Roots:         roots,
			Intermediates: intermediates,
		})
		if err != nil {
			return fmt.Errorf("security/tls: verify server certificate: %w", err)
		}
		return nil
	}
}
