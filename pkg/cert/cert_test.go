package cert

import (
	"crypto/x509"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeneratePKIChains(t *testing.T) {
	pki, err := GeneratePKI([]string{"server.local", "127.0.0.1"}, "pico-ticker")
	require.NoError(t, err)

	assert.True(t, pki.CA.Cert.IsCA)
	assert.Equal(t, "server.local", pki.Server.Cert.Subject.CommonName)
	assert.Equal(t, []string{"server.local"}, pki.Server.Cert.DNSNames)
	require.Len(t, pki.Server.Cert.IPAddresses, 1)
	assert.True(t, pki.Server.Cert.IPAddresses[0].Equal(net.ParseIP("127.0.0.1")))

	_, err = pki.Server.Cert.Verify(x509.VerifyOptions{
		Roots:     pki.CA.Pool(),
		DNSName:   "server.local",
		KeyUsages: []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	})
	assert.NoError(t, err)

	_, err = pki.Client.Cert.Verify(x509.VerifyOptions{
		Roots:     pki.CA.Pool(),
		KeyUsages: []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
	})
	assert.NoError(t, err)

	_, err = pki.Client.Cert.Verify(x509.VerifyOptions{
		Roots:     pki.CA.Pool(),
		KeyUsages: []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	})
	assert.Error(t, err, "client certificates cannot serve")
}

func TestIssueServerNeedsHost(t *testing.T) {
	ca, err := GenerateCA("test")
	require.NoError(t, err)
	_, err = ca.IssueServer()
	assert.ErrorIs(t, err, ErrNoHosts)
}

func TestWriteDirAndLoad(t *testing.T) {
	pki, err := GeneratePKI([]string{"localhost"}, "client")
	require.NoError(t, err)

	dir := t.TempDir()
	require.NoError(t, pki.WriteDir(dir))

	caCert, err := ReadCertFile(filepath.Join(dir, CACertFile))
	require.NoError(t, err)
	assert.True(t, caCert.Equal(pki.CA.Cert))

	id, err := LoadIdentity(filepath.Join(dir, ServerCertFile), filepath.Join(dir, ServerKeyFile))
	require.NoError(t, err)
	assert.True(t, id.Cert.Equal(pki.Server.Cert))
	assert.True(t, id.Key.Equal(pki.Server.Key))

	info, err := os.Stat(filepath.Join(dir, ClientKeyFile))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	tlsCert := id.TLSCertificate()
	assert.Same(t, id.Cert, tlsCert.Leaf)
}

func TestDecodeErrors(t *testing.T) {
	_, err := DecodeCertPEM([]byte("nope"))
	assert.ErrorIs(t, err, ErrInvalidPEM)

	pki, err := GeneratePKI([]string{"localhost"}, "client")
	require.NoError(t, err)
	_, err = DecodeKeyPEM(pki.CA.PEM())
	assert.ErrorIs(t, err, ErrInvalidPEM)

	_, err = LoadIdentity("/nonexistent/c.crt", "/nonexistent/c.key")
	assert.Error(t, err)
}
