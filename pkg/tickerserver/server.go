package tickerserver

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/raakeshkamal/pico-stock-ticker/pkg/discovery"
	"github.com/raakeshkamal/pico-stock-ticker/pkg/interaction"
	"github.com/raakeshkamal/pico-stock-ticker/pkg/log"
	"github.com/raakeshkamal/pico-stock-ticker/pkg/market"
	"github.com/raakeshkamal/pico-stock-ticker/pkg/transport"
	"github.com/raakeshkamal/pico-stock-ticker/pkg/wire"
)

// DefaultInstanceName is the mDNS instance label.
const DefaultInstanceName = "ticker-server"

// Server errors.
var (
	ErrNoTLSConfig    = errors.New("TLS configuration is required")
	ErrAlreadyStarted = errors.New("server already started")
)

// Config configures a Server.
type Config struct {
	// TLSConfig is the server TLS configuration. ClientAuth set to
	// RequireAndVerifyClientCert enables mutual TLS.
	TLSConfig *tls.Config

	// Address to listen on (default ":8443").
	Address string

	// Token is the shared secret devices authenticate with. Empty accepts
	// every device.
	Token string

	// Source supplies get_stock_data series (default: synthetic).
	Source market.Source

	// Location is the zone get_time reports in (default: UTC).
	Location *time.Location

	// Now is the clock (default: time.Now).
	Now func() time.Time

	// Echo answers every request with {status: "received", echo} instead
	// of dispatching commands.
	Echo bool

	// MaxMessageSize bounds inbound frames (default: 64KB).
	MaxMessageSize uint32

	// Advertiser publishes the server over mDNS once it listens. Nil
	// disables advertising.
	Advertiser discovery.Advertiser

	// InstanceName is the advertised instance (default: ticker-server).
	InstanceName string

	// Logger for operational logging. Nil discards.
	Logger *slog.Logger

	// ProtocolLogger records frames and state changes. Nil disables.
	ProtocolLogger log.Logger
}

// Server serves ticker devices.
type Server struct {
	config    Config
	logger    *slog.Logger
	router    *interaction.Router
	transport *transport.Server

	mu       sync.Mutex
	sessions map[string]*interaction.Session
	ctx      context.Context
	started  bool
}

// New creates a server with the built-in handlers registered.
func New(config Config) (*Server, error) {
	if config.TLSConfig == nil {
		return nil, ErrNoTLSConfig
	}
	if config.Source == nil {
		config.Source = market.NewSynthetic(market.SyntheticConfig{Now: config.Now})
	}
	if config.Location == nil {
		config.Location = time.UTC
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	if config.InstanceName == "" {
		config.InstanceName = DefaultInstanceName
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	s := &Server{
		config:   config,
		logger:   logger,
		sessions: make(map[string]*interaction.Session),
		router: interaction.NewRouter(interaction.RouterConfig{
			Token:  config.Token,
			Logger: logger,
		}),
	}
	s.router.Handle(wire.CommandPing, handlePing)
	s.router.Handle(wire.CommandGetTime, timeHandler(config.Now, config.Location))
	s.router.Handle(wire.CommandGetStockData, stockHandler(config.Source))

	ts, err := transport.NewServer(transport.ServerConfig{
		TLSConfig:      config.TLSConfig,
		Address:        config.Address,
		MaxMessageSize: config.MaxMessageSize,
		Logger:         logger,
		ProtocolLogger: config.ProtocolLogger,
		OnConnect:      s.onConnect,
		OnDisconnect:   s.onDisconnect,
		OnMessage:      s.onMessage,
		OnError:        s.onError,
	})
	if err != nil {
		return nil, err
	}
	s.transport = ts
	return s, nil
}

// Router returns the command router so callers can add handlers.
func (s *Server) Router() *interaction.Router {
	return s.router
}

// Start listens and, when configured, advertises the service.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.started = true
	s.ctx = ctx
	s.mu.Unlock()

	if err := s.transport.Start(ctx); err != nil {
		return err
	}

	if s.config.Advertiser != nil {
		info := &discovery.ServiceInfo{
			InstanceName: s.config.InstanceName,
			Port:         s.Port(),
			Version:      discovery.ProtocolVersion,
			Commands:     s.router.Commands(),
			MutualTLS:    s.config.TLSConfig.ClientAuth == tls.RequireAndVerifyClientCert,
		}
		if err := s.config.Advertiser.Advertise(ctx, info); err != nil {
			s.transport.Stop()
			return fmt.Errorf("advertise: %w", err)
		}
	}

	s.logger.Info("ticker server started",
		"addr", s.Addr().String(),
		"mtls", s.config.TLSConfig.ClientAuth == tls.RequireAndVerifyClientCert,
		"echo", s.config.Echo)
	return nil
}

// Stop withdraws the advertisement and closes every connection.
func (s *Server) Stop() error {
	if s.config.Advertiser != nil {
		s.config.Advertiser.Stop()
	}
	return s.transport.Stop()
}

// Addr returns the listen address, or nil before Start.
func (s *Server) Addr() net.Addr {
	return s.transport.Addr()
}

// Port returns the listen port, or 0 before Start.
func (s *Server) Port() uint16 {
	if addr, ok := s.Addr().(*net.TCPAddr); ok {
		return uint16(addr.Port)
	}
	return 0
}

// Sessions returns the number of connected devices.
func (s *Server) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *Server) onConnect(conn *transport.ServerConn) {
	s.mu.Lock()
	s.sessions[conn.ConnID()] = &interaction.Session{}
	s.mu.Unlock()

	attrs := []any{"conn_id", conn.ConnID(), "remote", conn.RemoteAddr().String()}
	if peers := conn.TLSState().PeerCertificates; len(peers) > 0 {
		attrs = append(attrs, "client", peers[0].Subject.CommonName)
	}
	s.logger.Info("device connected", attrs...)
}

func (s *Server) onDisconnect(conn *transport.ServerConn) {
	s.mu.Lock()
	sess := s.sessions[conn.ConnID()]
	delete(s.sessions, conn.ConnID())
	s.mu.Unlock()

	commands := 0
	if sess != nil {
		commands = sess.Commands()
	}
	s.logger.Info("device disconnected", "conn_id", conn.ConnID(), "commands", commands)
}

func (s *Server) onMessage(conn *transport.ServerConn, msg []byte) {
	var (
		reply      wire.Document
		closeAfter bool
	)
	if s.config.Echo {
		reply = echoReply(msg)
	} else {
		s.mu.Lock()
		sess, ok := s.sessions[conn.ConnID()]
		ctx := s.ctx
		s.mu.Unlock()
		if !ok {
			return
		}
		reply, closeAfter = s.router.Dispatch(ctx, sess, msg)
	}

	data, err := wire.EncodeDocument(reply)
	if err != nil {
		s.logger.Error("encode reply", "conn_id", conn.ConnID(), "error", err)
		conn.Close()
		return
	}
	if err := conn.Send(data); err != nil {
		s.logger.Warn("send reply", "conn_id", conn.ConnID(), "error", err)
		conn.Close()
		return
	}
	if closeAfter {
		conn.Close()
	}
}

func (s *Server) onError(conn *transport.ServerConn, err error) {
	if conn != nil {
		s.logger.Warn("connection error", "conn_id", conn.ConnID(), "error", err)
		return
	}
	s.logger.Warn("transport error", "error", err)
}
