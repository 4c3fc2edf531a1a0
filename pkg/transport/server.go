package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/raakeshkamal/pico-stock-ticker/pkg/log"
)

// DefaultHandshakeTimeout bounds the server side TLS handshake.
const DefaultHandshakeTimeout = 10 * time.Second

// ServerConfig configures a Server.
type ServerConfig struct {
	// TLSConfig is the server TLS configuration (see NewServerTLSConfig).
	TLSConfig *tls.Config

	// Address to listen on (e.g. ":8443" or "127.0.0.1:0").
	Address string

	// MaxMessageSize is the maximum frame payload (default: 64KB).
	MaxMessageSize uint32

	// HandshakeTimeout bounds the TLS handshake (default: 10s).
	HandshakeTimeout time.Duration

	// Logger for operational logging. Nil discards.
	Logger *slog.Logger

	// ProtocolLogger records frames and state changes. Nil disables.
	ProtocolLogger log.Logger

	// OnConnect is called after the handshake of each connection.
	OnConnect func(conn *ServerConn)

	// OnDisconnect is called when a connection ends.
	OnDisconnect func(conn *ServerConn)

	// OnMessage is called once per inbound frame, on the connection's read
	// goroutine. Replies sent from inside OnMessage keep request order.
	OnMessage func(conn *ServerConn, msg []byte)

	// OnError is called for accept, handshake and read errors. conn is nil
	// when no connection exists yet.
	OnError func(conn *ServerConn, err error)
}

// Server accepts TLS connections and delivers frames to callbacks.
type Server struct {
	config   ServerConfig
	logger   *slog.Logger
	plog     log.Logger
	listener net.Listener

	conns   map[*ServerConn]struct{}
	connsMu sync.RWMutex

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewServer creates a server. It does not listen until Start.
func NewServer(config ServerConfig) (*Server, error) {
	if config.TLSConfig == nil {
		return nil, fmt.Errorf("TLSConfig is required")
	}
	if config.Address == "" {
		config.Address = fmt.Sprintf(":%d", DefaultPort)
	}
	if config.MaxMessageSize == 0 {
		config.MaxMessageSize = DefaultMaxMessageSize
	}
	if config.HandshakeTimeout == 0 {
		config.HandshakeTimeout = DefaultHandshakeTimeout
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Server{
		config: config,
		logger: logger,
		plog:   log.OrNoop(config.ProtocolLogger),
		conns:  make(map[*ServerConn]struct{}),
	}, nil
}

// Start listens and begins accepting connections.
func (s *Server) Start(ctx context.Context) error {
	if s.running.Load() {
		return fmt.Errorf("server already running")
	}

	listener, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	s.listener = listener
	s.running.Store(true)

	s.wg.Add(1)
	go s.acceptLoop()

	s.logger.Info("ticker transport listening", "addr", listener.Addr().String())
	return nil
}

// Stop closes the listener and every connection, then waits for their
// goroutines.
func (s *Server) Stop() error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}
	s.cancel()
	s.listener.Close()

	s.connsMu.Lock()
	for conn := range s.conns {
		conn.Close()
	}
	s.connsMu.Unlock()

	s.wg.Wait()
	return nil
}

// Addr returns the listen address, or nil before Start.
func (s *Server) Addr() net.Addr {
	if s.listener != nil {
		return s.listener.Addr()
	}
	return nil
}

// ConnectionCount returns the number of active connections.
func (s *Server) ConnectionCount() int {
	s.connsMu.RLock()
	defer s.connsMu.RUnlock()
	return len(s.conns)
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if !s.running.Load() || errors.Is(err, net.ErrClosed) {
				return
			}
			s.reportError(nil, fmt.Errorf("accept error: %w", err))
			continue
		}

		s.wg.Add(1)
		go s.handleConnection(conn)
	}
}

func (s *Server) handleConnection(conn net.Conn) {
	defer s.wg.Done()

	connID := uuid.New().String()
	remote := conn.RemoteAddr().String()

	hsCtx, cancel := context.WithTimeout(s.ctx, s.config.HandshakeTimeout)
	tlsConn := tls.Server(conn, s.config.TLSConfig)
	err := tlsConn.HandshakeContext(hsCtx)
	cancel()
	if err != nil {
		conn.Close()
		s.plog.Log(log.Failure(connID, log.LayerTransport, int(CodeConnection), "handshake", err))
		s.reportError(nil, fmt.Errorf("TLS handshake failed: %w", err))
		return
	}

	framer := NewFramer(tlsConn, s.config.MaxMessageSize)
	if s.config.ProtocolLogger != nil {
		framer.SetLogger(s.config.ProtocolLogger, connID)
	}

	sconn := &ServerConn{
		conn:       tlsConn,
		framer:     framer,
		tlsState:   tlsConn.ConnectionState(),
		server:     s,
		closeCh:    make(chan struct{}),
		remoteAddr: conn.RemoteAddr(),
		connID:     connID,
	}

	s.connsMu.Lock()
	if !s.running.Load() {
		s.connsMu.Unlock()
		tlsConn.Close()
		return
	}
	s.conns[sconn] = struct{}{}
	s.connsMu.Unlock()

	s.plog.Log(s.stateEvent(connID, remote, "", stateConnected))
	s.logger.Debug("client connected", "conn_id", connID, "remote", remote)

	if s.config.OnConnect != nil {
		s.config.OnConnect(sconn)
	}

	sconn.readLoop()
	sconn.Close()

	s.connsMu.Lock()
	delete(s.conns, sconn)
	s.connsMu.Unlock()

	s.plog.Log(s.stateEvent(connID, remote, stateConnected, stateDisconnected))
	s.logger.Debug("client disconnected", "conn_id", connID, "remote", remote)

	if s.config.OnDisconnect != nil {
		s.config.OnDisconnect(sconn)
	}
}

func (s *Server) reportError(conn *ServerConn, err error) {
	if s.config.OnError != nil {
		s.config.OnError(conn, err)
		return
	}
	s.logger.Warn("transport error", "error", err)
}

func (s *Server) stateEvent(connID, remote, oldState, newState string) log.Event {
	e := log.StateChange(connID, log.LayerTransport, log.StateEntityConnection, oldState, newState, "")
	e.LocalRole = log.RoleServer
	e.RemoteAddr = remote
	return e
}

// ServerConn is one accepted client connection.
type ServerConn struct {
	conn       *tls.Conn
	framer     *Framer
	tlsState   tls.ConnectionState
	server     *Server
	closeCh    chan struct{}
	closeOnce  sync.Once
	remoteAddr net.Addr
	connID     string
}

// RemoteAddr returns the client address.
func (c *ServerConn) RemoteAddr() net.Addr {
	return c.remoteAddr
}

// ConnID returns the connection identifier.
func (c *ServerConn) ConnID() string {
	return c.connID
}

// TLSState returns the negotiated TLS parameters.
func (c *ServerConn) TLSState() tls.ConnectionState {
	return c.tlsState
}

// Send writes one frame to the client.
func (c *ServerConn) Send(data []byte) error {
	select {
	case <-c.closeCh:
		return ErrConnectionClosed
	default:
	}
	return c.framer.WriteFrame(data)
}

// Close closes the connection. Safe to call more than once.
func (c *ServerConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closeCh)
		err = c.conn.Close()
	})
	return err
}

func (c *ServerConn) readLoop() {
	for {
		data, err := c.framer.ReadFrame()
		if err != nil {
			select {
			case <-c.closeCh:
				return
			default:
			}
			if err != io.EOF && c.server.running.Load() {
				c.server.reportError(c, err)
			}
			return
		}

		if c.server.config.OnMessage != nil {
			c.server.config.OnMessage(c, data)
		}
	}
}
