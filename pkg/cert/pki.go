package cert

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"errors"
	"fmt"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"time"
)

// Validity periods.
const (
	CAValidity   = 10 * 365 * 24 * time.Hour
	LeafValidity = 2 * 365 * 24 * time.Hour
)

// File layout below a PKI directory.
const (
	CACertFile     = "ca/ca.crt"
	CAKeyFile      = "ca/ca.key"
	ServerCertFile = "server/server.crt"
	ServerKeyFile  = "server/server.key"
	ClientCertFile = "client/client.crt"
	ClientKeyFile  = "client/client.key"
)

// ErrNoHosts is returned when a server certificate names no host.
var ErrNoHosts = errors.New("server certificate needs at least one host")

// Identity is a certificate and its private key.
type Identity struct {
	Cert *x509.Certificate
	Key  *ecdsa.PrivateKey
}

// TLSCertificate returns the identity for use in a tls.Config.
func (id *Identity) TLSCertificate() tls.Certificate {
	return tls.Certificate{
		Certificate: [][]byte{id.Cert.Raw},
		PrivateKey:  id.Key,
		Leaf:        id.Cert,
	}
}

// CA signs server and client certificates.
type CA struct {
	Identity
}

// GenerateCA creates a self-signed CA.
func GenerateCA(commonName string) (*CA, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate CA key: %w", err)
	}
	tmpl := &x509.Certificate{
		SerialNumber:          newSerial(),
		Subject:               pkix.Name{CommonName: commonName},
		NotBefore:             time.Now().Add(-time.Minute),
		NotAfter:              time.Now().Add(CAValidity),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
		IsCA:                  true,
		BasicConstraintsValid: true,
		MaxPathLenZero:        true,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		return nil, fmt.Errorf("create CA certificate: %w", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, err
	}
	return &CA{Identity{Cert: cert, Key: key}}, nil
}

// Pool returns a pool holding only the CA certificate.
func (ca *CA) Pool() *x509.CertPool {
	pool := x509.NewCertPool()
	pool.AddCert(ca.Cert)
	return pool
}

// PEM returns the CA certificate as PEM, the form devices take as trust
// anchor.
func (ca *CA) PEM() []byte {
	return EncodeCertPEM(ca.Cert)
}

// IssueServer issues a server certificate for hosts. Entries that parse
// as IP addresses become IP SANs, the rest DNS SANs. The first host is the
// common name.
func (ca *CA) IssueServer(hosts ...string) (*Identity, error) {
	if len(hosts) == 0 {
		return nil, ErrNoHosts
	}
	tmpl := leafTemplate(hosts[0], x509.ExtKeyUsageServerAuth)
	for _, h := range hosts {
		if ip := net.ParseIP(h); ip != nil {
			tmpl.IPAddresses = append(tmpl.IPAddresses, ip)
		} else {
			tmpl.DNSNames = append(tmpl.DNSNames, h)
		}
	}
	return ca.issue(tmpl)
}

// IssueClient issues a client certificate.
func (ca *CA) IssueClient(commonName string) (*Identity, error) {
	return ca.issue(leafTemplate(commonName, x509.ExtKeyUsageClientAuth))
}

func (ca *CA) issue(tmpl *x509.Certificate) (*Identity, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, ca.Cert, &key.PublicKey, ca.Key)
	if err != nil {
		return nil, fmt.Errorf("sign %s: %w", tmpl.Subject.CommonName, err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, err
	}
	return &Identity{Cert: cert, Key: key}, nil
}

func leafTemplate(commonName string, usage x509.ExtKeyUsage) *x509.Certificate {
	return &x509.Certificate{
		SerialNumber:          newSerial(),
		Subject:               pkix.Name{CommonName: commonName},
		NotBefore:             time.Now().Add(-time.Minute),
		NotAfter:              time.Now().Add(LeafValidity),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{usage},
		BasicConstraintsValid: true,
	}
}

func newSerial() *big.Int {
	limit := new(big.Int).Lsh(big.NewInt(1), 127)
	n, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return big.NewInt(time.Now().UnixNano())
	}
	return n
}

// PKI is a CA with one server and one client identity.
type PKI struct {
	CA     *CA
	Server *Identity
	Client *Identity
}

// GeneratePKI creates a CA, a server certificate for hosts and a client
// certificate named clientName.
func GeneratePKI(hosts []string, clientName string) (*PKI, error) {
	ca, err := GenerateCA("Ticker CA")
	if err != nil {
		return nil, err
	}
	server, err := ca.IssueServer(hosts...)
	if err != nil {
		return nil, err
	}
	client, err := ca.IssueClient(clientName)
	if err != nil {
		return nil, err
	}
	return &PKI{CA: ca, Server: server, Client: client}, nil
}

// WriteDir writes every certificate and key below dir.
func (p *PKI) WriteDir(dir string) error {
	files := []struct {
		path string
		id   *Identity
		cert string
		key  string
	}{
		{dir, &p.CA.Identity, CACertFile, CAKeyFile},
		{dir, p.Server, ServerCertFile, ServerKeyFile},
		{dir, p.Client, ClientCertFile, ClientKeyFile},
	}
	for _, f := range files {
		certPath := filepath.Join(f.path, f.cert)
		if err := os.MkdirAll(filepath.Dir(certPath), 0755); err != nil {
			return err
		}
		if err := WriteCertFile(certPath, f.id.Cert); err != nil {
			return fmt.Errorf("write %s: %w", f.cert, err)
		}
		if err := WriteKeyFile(filepath.Join(f.path, f.key), f.id.Key); err != nil {
			return fmt.Errorf("write %s: %w", f.key, err)
		}
	}
	return nil
}

// LoadIdentity reads a certificate and key pair.
func LoadIdentity(certPath, keyPath string) (*Identity, error) {
	c, err := ReadCertFile(certPath)
	if err != nil {
		return nil, fmt.Errorf("read certificate: %w", err)
	}
	k, err := ReadKeyFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("read key: %w", err)
	}
	return &Identity{Cert: c, Key: k}, nil
}
