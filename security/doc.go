// Package security provides the TLS configuration shared by the restkit
// engines: CA and client certificate loading, minimum version, and the
// full or host-name-only verification toggles.
//
// # TLS Configuration
//
//	cfg := security.TLSConfig{
//	    CAFile:   "/path/to/ca.pem",
//	    CertFile: "/path/to/cert.pem",
//	    KeyFile:  "/path/to/key.pem",
//	}
//
//	tlsConfig, err := cfg.Build()
package security
