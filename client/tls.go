package client

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"

	"github.com/otherjamesbrown/minutes-cli/config"
)

// LoadClientTLSConfig creates a tls.Config for https servers.
// Returns nil when the configuration needs nothing beyond system defaults.
func LoadClientTLSConfig(cfg *config.TLSConfig) (*tls.Config, error) {
	if cfg == nil || (cfg.CACert == "" && !cfg.SkipVerify) {
		return nil, nil
	}

	tlsConfig := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: cfg.SkipVerify,
	}

	// Load CA certificate for server verification (unless SkipVerify is set).
	if cfg.CACert != "" && !cfg.SkipVerify {
		path, err := config.ExpandPath(cfg.CACert)
		if err != nil {
			return nil, err
		}
		caCert, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read CA cert: %w", err)
		}

		caPool := x509.NewCertPool()
		if !caPool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("parse CA cert: invalid PEM")
		}

		tlsConfig.RootCAs = caPool
	}

	return tlsConfig, nil
}
