package transport

import (
	"context"
	"crypto/tls"
	"net"
	"time"
)

// Exchanger performs one request/response round trip. Implemented by Handle.
type Exchanger interface {
	SendAndReceive(request, response []byte, timeout time.Duration) (int, error)
}

// ClientConnection is the full client handle surface.
// Implemented by Handle.
type ClientConnection interface {
	Exchanger

	// ID returns the connection identifier.
	ID() string

	// Connected reports whether the connection is usable.
	Connected() bool

	// Close tears the connection down.
	Close() error
}

// ServerConnection represents a server-side connection to a client.
// Implemented by ServerConn.
type ServerConnection interface {
	RemoteAddr() net.Addr
	TLSState() tls.ConnectionState
	Send(data []byte) error
	Close() error
}

// TransportServer represents a ticker TLS server.
// Implemented by Server.
type TransportServer interface {
	Start(ctx context.Context) error
	Stop() error
	Addr() net.Addr
	ConnectionCount() int
}

// FrameReadWriter provides length-prefixed frame I/O.
// Implemented by Framer.
type FrameReadWriter interface {
	ReadFrame() ([]byte, error)
	WriteFrame(data []byte) error
}

// Compile-time interface satisfaction checks.
var (
	_ ClientConnection = (*Handle)(nil)
	_ ServerConnection = (*ServerConn)(nil)
	_ TransportServer  = (*Server)(nil)
	_ FrameReadWriter  = (*Framer)(nil)
)
