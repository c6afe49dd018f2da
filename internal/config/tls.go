package config

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
)

// PostgresTLS builds the *tls.Config used for connections to the database
// engine. Returns nil, nil when DB_SSLMODE is "disable".
//
// With "require" and no CA bundle the server certificate is not verified.
// Setting DB_TLS_CA_CERT (or DB_SSLMODE=verify-full) enables verification.
func (c *Config) PostgresTLS(serverName string) (*tls.Config, error) {
	switch c.DBSSLMode {
	case "disable":
		return nil, nil
	case "require", "verify-full", "":
	default:
		return nil, fmt.Errorf("unsupported DB_SSLMODE %q", c.DBSSLMode)
	}

	if c.DBTLSCACert == "" {
		if c.DBSSLMode == "verify-full" {
			return &tls.Config{ServerName: serverName, MinVersion: tls.VersionTLS12}, nil
		}
		return &tls.Config{InsecureSkipVerify: true, MinVersion: tls.VersionTLS12}, nil
	}

	caPEM, err := os.ReadFile(c.DBTLSCACert)
	if err != nil {
		return nil, fmt.Errorf("read database CA cert: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caPEM) {
		return nil, fmt.Errorf("failed to parse database CA cert")
	}

	return &tls.Config{
		RootCAs:    pool,
		ServerName: serverName,
		MinVersion: tls.VersionTLS12,
	}, nil
}
