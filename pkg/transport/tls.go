package transport

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
)

// TLS constants.
const (
	// ALPNProtocol is offered by both ends. It is not required, so peers
	// that do not speak ALPN still connect.
	ALPNProtocol = "ticker/1"

	// DefaultPort is the default ticker server port.
	DefaultPort = 8443

	// DefaultServerName is the SNI name the device firmware uses.
	DefaultServerName = "server.local"
)

// ParseTrustAnchor builds a certificate pool from PEM (one or more
// CERTIFICATE blocks) or a single DER certificate.
func ParseTrustAnchor(data []byte) (*x509.CertPool, error) {
	if len(data) == 0 {
		return nil, ErrInvalidTrust
	}

	pool := x509.NewCertPool()
	count := 0
	rest := data
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parse PEM certificate %d: %w", count+1, err)
		}
		pool.AddCert(cert)
		count++
	}

	if count == 0 {
		cert, err := x509.ParseCertificate(data)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidTrust, err)
		}
		pool.AddCert(cert)
	}
	return pool, nil
}

// LoadTrustAnchor reads and parses a trust anchor file.
func LoadTrustAnchor(path string) ([]byte, *x509.CertPool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read trust anchor: %w", err)
	}
	pool, err := ParseTrustAnchor(data)
	if err != nil {
		return nil, nil, err
	}
	return data, pool, nil
}

// NewClientTLSConfig creates the per-handle client configuration. A nil
// clientCert disables mutual TLS.
func NewClientTLSConfig(roots *x509.CertPool, serverName string, clientCert *tls.Certificate) *tls.Config {
	conf := &tls.Config{
		MinVersion: tls.VersionTLS12,
		RootCAs:    roots,
		ServerName: serverName,
		NextProtos: []string{ALPNProtocol},
		CurvePreferences: []tls.CurveID{
			tls.X25519,
			tls.CurveP256,
		},
	}
	if clientCert != nil {
		conf.Certificates = []tls.Certificate{*clientCert}
	}
	return conf
}

// NewServerTLSConfig creates the server configuration. A non-nil clientCAs
// requires and verifies client certificates.
func NewServerTLSConfig(cert tls.Certificate, clientCAs *x509.CertPool) (*tls.Config, error) {
	if len(cert.Certificate) == 0 {
		return nil, fmt.Errorf("server certificate is required")
	}
	conf := &tls.Config{
		MinVersion:   tls.VersionTLS12,
		Certificates: []tls.Certificate{cert},
		NextProtos:   []string{ALPNProtocol},
		CurvePreferences: []tls.CurveID{
			tls.X25519,
			tls.CurveP256,
		},
		ClientAuth: tls.NoClientCert,
	}
	if clientCAs != nil {
		conf.ClientCAs = clientCAs
		conf.ClientAuth = tls.RequireAndVerifyClientCert
	}
	return conf, nil
}
