package transport

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"net"
	"testing"
	"time"

	"github.com/raakeshkamal/pico-stock-ticker/pkg/cert"
	"github.com/stretchr/testify/require"
)

// testPKI holds a CA and leaf certificates signed by it.
type testPKI struct {
	caDER      []byte
	caPEM      []byte
	caPool     *x509.CertPool
	serverCert tls.Certificate
	clientCert tls.Certificate
}

func generateTestPKI(t *testing.T) *testPKI {
	t.Helper()

	ca, err := cert.GenerateCA("Ticker Test CA")
	require.NoError(t, err)
	server, err := ca.IssueServer("server.local", "localhost", "test.local", "127.0.0.1")
	require.NoError(t, err)
	client, err := ca.IssueClient("pico-ticker")
	require.NoError(t, err)

	return &testPKI{
		caDER:      ca.Cert.Raw,
		caPEM:      ca.PEM(),
		caPool:     ca.Pool(),
		serverCert: server.TLSCertificate(),
		clientCert: client.TLSCertificate(),
	}
}

// localResolver maps every test hostname to the loopback address.
var localResolver = StaticResolver{
	"localhost":    {"127.0.0.1"},
	"test.local":   {"127.0.0.1"},
	"server.local": {"127.0.0.1"},
}

// startFrameServer runs a Server on loopback with the given message handler.
func startFrameServer(t *testing.T, pki *testPKI, clientCAs *x509.CertPool, onMessage func(*ServerConn, []byte)) (*Server, int) {
	t.Helper()

	tlsConf, err := NewServerTLSConfig(pki.serverCert, clientCAs)
	require.NoError(t, err)

	srv, err := NewServer(ServerConfig{
		TLSConfig: tlsConf,
		Address:   "127.0.0.1:0",
		OnMessage: onMessage,
		OnError:   func(*ServerConn, error) {},
	})
	require.NoError(t, err)
	require.NoError(t, srv.Start(context.Background()))
	t.Cleanup(func() { srv.Stop() })

	return srv, srv.Addr().(*net.TCPAddr).Port
}

func echoHandler(conn *ServerConn, msg []byte) {
	conn.Send(msg)
}

func silentHandler(*ServerConn, []byte) {}

// openLocal opens a handle to localhost:port trusting the test CA.
func openLocal(t *testing.T, pki *testPKI, port int, opts ...Option) *Handle {
	t.Helper()
	opts = append([]Option{WithResolver(localResolver), WithConnectTimeout(5 * time.Second)}, opts...)
	h, err := Open(context.Background(), "localhost", port, pki.caPEM, opts...)
	require.NoError(t, err)
	require.NotNil(t, h)
	t.Cleanup(func() { h.Close() })
	return h
}

func x509VerifyOptions(pool *x509.CertPool) x509.VerifyOptions {
	return x509.VerifyOptions{
		Roots:     pool,
		KeyUsages: []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}
}
