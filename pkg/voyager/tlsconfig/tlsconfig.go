// Package tlsconfig builds the *tls.Config a Connection dials with
// (spec.md §6 external interfaces): CA trust (a bool, a CA bundle path, or
// a caller-supplied *tls.Config), an optional client certificate bundle,
// and trust-environment variable handling.
//
// Grounded on original_source/httpcore/adapters/environment.py (which this
// package's semantics follow directly, since shockwave is server-side and
// never builds a client tls.Config) and
// shockwave/pkg/shockwave/client/pool.go's bare *tls.Config field, which we
// replace with this richer builder.
package tlsconfig

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"

	"golang.org/x/crypto/pkcs12"
)

// Cert is a client certificate bundle. Either PEM-encoded CertFile/KeyFile,
// or a password-protected PKCS#12 bundle (PKCS12File/Password).
type Cert struct {
	CertFile   string
	KeyFile    string
	PKCS12File string
	Password   string
}

func (c Cert) empty() bool {
	return c.CertFile == "" && c.PKCS12File == ""
}

func (c Cert) load() (tls.Certificate, error) {
	if c.PKCS12File != "" {
		data, err := os.ReadFile(c.PKCS12File)
		if err != nil {
			return tls.Certificate{}, fmt.Errorf("tlsconfig: reading pkcs12 bundle: %w", err)
		}
		key, cert, caCerts, err := pkcs12.DecodeChain(data, c.Password)
		if err != nil {
			return tls.Certificate{}, fmt.Errorf("tlsconfig: decoding pkcs12 bundle: %w", err)
		}
		chain := [][]byte{cert.Raw}
		for _, ca := range caCerts {
			chain = append(chain, ca.Raw)
		}
		return tls.Certificate{Certificate: chain, PrivateKey: key, Leaf: cert}, nil
	}
	return tls.LoadX509KeyPair(c.CertFile, c.KeyFile)
}

// Config is the caller-facing TLS configuration, resembling the source's
// `verify: bool | str | ssl.SSLContext` union typed out as Go fields.
type Config struct {
	// VerifyDisabled skips certificate verification entirely ("verify=False").
	VerifyDisabled bool
	// CAFile/CADir is a CA bundle or directory ("verify=<path>").
	CAFile string
	CADir  string
	// BaseConfig, if set, is cloned and layered with the fields above
	// instead of building from scratch ("verify=<ssl.SSLContext>").
	BaseConfig *tls.Config
	// ClientCert is an optional client certificate presented to the peer.
	ClientCert Cert
	// TrustEnv, when true, additionally honors SSL_CERT_FILE/SSL_CERT_DIR
	// from the environment (spec.md §6).
	TrustEnv bool
}

// Build constructs a *tls.Config for serverName (the connection's origin
// hostname, used for SNI/ALPN) from cfg.
func Build(cfg Config, serverName string) (*tls.Config, error) {
	var out *tls.Config
	if cfg.BaseConfig != nil {
		out = cfg.BaseConfig.Clone()
	} else {
		out = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	out.ServerName = serverName
	out.NextProtos = []string{"h2", "http/1.1"}

	if cfg.VerifyDisabled {
		out.InsecureSkipVerify = true
	}

	pool, err := trustPool(cfg)
	if err != nil {
		return nil, err
	}
	if pool != nil {
		out.RootCAs = pool
	}

	if !cfg.ClientCert.empty() {
		cert, err := cfg.ClientCert.load()
		if err != nil {
			return nil, err
		}
		out.Certificates = []tls.Certificate{cert}
	}

	return out, nil
}

// trustPool assembles the CA pool from cfg.CAFile/CADir and, if TrustEnv,
// SSL_CERT_FILE/SSL_CERT_DIR. Returns nil if nothing was configured (the
// system pool is used, matching Go's default *tls.Config behavior).
func trustPool(cfg Config) (*x509.CertPool, error) {
	var files, dirs []string
	if cfg.CAFile != "" {
		files = append(files, cfg.CAFile)
	}
	if cfg.CADir != "" {
		dirs = append(dirs, cfg.CADir)
	}
	if cfg.TrustEnv {
		if f := os.Getenv("SSL_CERT_FILE"); f != "" {
			files = append(files, f)
		}
		if d := os.Getenv("SSL_CERT_DIR"); d != "" {
			dirs = append(dirs, d)
		}
	}
	if len(files) == 0 && len(dirs) == 0 {
		return nil, nil
	}

	pool, err := x509.SystemCertPool()
	if err != nil || pool == nil {
		pool = x509.NewCertPool()
	}
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return nil, fmt.Errorf("tlsconfig: reading CA file %s: %w", f, err)
		}
		if !pool.AppendCertsFromPEM(data) {
			return nil, fmt.Errorf("tlsconfig: no certificates found in %s", f)
		}
	}
	for _, d := range dirs {
		entries, err := os.ReadDir(d)
		if err != nil {
			return nil, fmt.Errorf("tlsconfig: reading CA dir %s: %w", d, err)
		}
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			data, err := os.ReadFile(d + "/" + entry.Name())
			if err != nil {
				continue
			}
			pool.AppendCertsFromPEM(data)
		}
	}
	return pool, nil
}

// FromEnvironment builds trust-environment defaults (spec.md §6): TrustEnv
// enabled, with SSL_CERT_FILE/SSL_CERT_DIR picked up automatically. The
// returned Config still needs VerifyDisabled/ClientCert set explicitly by
// the caller if desired.
func FromEnvironment() Config {
	return Config{TrustEnv: true}
}

// KeyLogWriter opens SSLKEYLOGFILE, if set, for TLS session key logging —
// wire it into a *tls.Config's KeyLogWriter field to support packet
// capture debugging (spec.md §6). Returns (nil, nil) if unset.
func KeyLogWriter() (*os.File, error) {
	path := os.Getenv("SSLKEYLOGFILE")
	if path == "" {
		return nil, nil
	}
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
}
