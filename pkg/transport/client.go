package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/raakeshkamal/pico-stock-ticker/pkg/log"
)

// Client defaults.
const (
	DefaultConnectTimeout = 10 * time.Second
	DefaultPollInterval   = 500 * time.Millisecond
	DefaultIdleTimeout    = 10 * time.Second
)

type options struct {
	connectTimeout time.Duration
	serverName     string
	clientCert     *tls.Certificate
	resolver       Resolver
	logger         *slog.Logger
	protocolLogger log.Logger
	maxMessageSize uint32
	pollInterval   time.Duration
	idleTimeout    time.Duration
}

// Option configures Open.
type Option func(*options)

// WithConnectTimeout bounds resolution, connect and handshake together.
func WithConnectTimeout(d time.Duration) Option {
	return func(o *options) { o.connectTimeout = d }
}

// WithServerName overrides the SNI and verification name, which otherwise
// is the hostname passed to Open.
func WithServerName(name string) Option {
	return func(o *options) { o.serverName = name }
}

// WithClientCertificate presents cert to servers that require mutual TLS.
func WithClientCertificate(cert tls.Certificate) Option {
	return func(o *options) { o.clientCert = &cert }
}

// WithResolver replaces net.DefaultResolver.
func WithResolver(r Resolver) Option {
	return func(o *options) { o.resolver = r }
}

// WithLogger sets the operational logger. Nil discards.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithProtocolLogger records frames and state changes. Nil disables.
func WithProtocolLogger(l log.Logger) Option {
	return func(o *options) { o.protocolLogger = l }
}

// WithMaxMessageSize sets the largest accepted frame payload.
func WithMaxMessageSize(n uint32) Option {
	return func(o *options) { o.maxMessageSize = n }
}

// WithPoll sets how often the idle watchdog runs and how long a handshake or
// response may stall before the connection is dropped with TIMEOUT.
func WithPoll(interval, idleTimeout time.Duration) Option {
	return func(o *options) {
		o.pollInterval = interval
		o.idleTimeout = idleTimeout
	}
}

func defaultOptions() options {
	return options{
		connectTimeout: DefaultConnectTimeout,
		resolver:       net.DefaultResolver,
		maxMessageSize: DefaultMaxMessageSize,
		pollInterval:   DefaultPollInterval,
		idleTimeout:    DefaultIdleTimeout,
	}
}

// Open connects to hostname:port over TLS, trusting only the certificates in
// trustAnchor (PEM or DER). It blocks until the handshake completes or the
// connect timeout fires. On failure it returns a nil handle and an *Error;
// every resource is released before returning.
func Open(ctx context.Context, hostname string, port int, trustAnchor []byte, opts ...Option) (*Handle, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.connectTimeout <= 0 || o.pollInterval <= 0 || o.idleTimeout <= 0 {
		return nil, newError(CodeGeneric, "open", ErrInvalidTimeout)
	}
	if o.resolver == nil {
		o.resolver = net.DefaultResolver
	}
	if hostname == "" || port <= 0 || port > 65535 {
		return nil, newError(CodeGeneric, "open", fmt.Errorf("invalid address %q:%d", hostname, port))
	}

	roots, err := ParseTrustAnchor(trustAnchor)
	if err != nil {
		return nil, newError(CodeGeneric, "open", err)
	}
	serverName := o.serverName
	if serverName == "" {
		serverName = hostname
	}

	h := &Handle{
		id:              uuid.New().String(),
		host:            hostname,
		port:            port,
		opts:            o,
		tlsConf:         NewClientTLSConfig(roots, serverName, o.clientCert),
		logger:          o.logger,
		plog:            log.OrNoop(o.protocolLogger),
		connectComplete: newSignal(),
		dataReceived:    newSignal(),
		done:            make(chan struct{}),
		lastProgress:    time.Now(),
	}
	if h.logger == nil {
		h.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	h.ctx, h.cancel = context.WithCancel(ctx)

	h.plog.Log(h.stateEvent(stateDisconnected, stateConnecting, ""))
	h.logger.Debug("opening connection", "conn_id", h.id, "host", hostname, "port", port, "sni", serverName)

	go h.pollLoop()
	go h.connect()

	if !h.connectComplete.Wait(o.connectTimeout) {
		h.fail(CodeTimeout, "open", fmt.Errorf("not connected within %s", o.connectTimeout))
	}

	h.mu.Lock()
	connected := h.connected
	lastErr := h.lastErr
	h.mu.Unlock()

	if !connected {
		h.teardown()
		if lastErr == nil {
			lastErr = newError(CodeConnection, "open", ErrConnectionClosed)
		}
		return nil, lastErr
	}
	return h, nil
}

// SendAndReceive writes request as one frame and waits up to timeout for the
// next inbound frame, which is copied into response. The request buffer may
// be reused as soon as the call returns.
//
// When the reply does not fit, the first len(response) bytes are kept and the
// call returns that count together with a TRUNCATED error. A timeout drops
// the connection, since a late reply would otherwise be matched to the next
// request.
func (h *Handle) SendAndReceive(request, response []byte, timeout time.Duration) (int, error) {
	if !h.busy.TryLock() {
		return 0, newError(CodeGeneric, "send", ErrBusy)
	}
	defer h.busy.Unlock()

	if timeout <= 0 {
		return 0, newError(CodeGeneric, "send", ErrInvalidTimeout)
	}
	if len(response) == 0 {
		return 0, newError(CodeGeneric, "send", ErrEmptyBuffer)
	}

	deadline := time.Now().Add(timeout)

	h.mu.Lock()
	if h.closed || !h.connected {
		err := h.errLocked("send")
		h.mu.Unlock()
		return 0, err
	}
	h.rxBuf = response
	h.rxLen, h.rxFull = 0, 0
	h.rxPending = true
	h.rxDelivered = false
	h.lastProgress = time.Now()
	framer, conn := h.framer, h.conn
	h.mu.Unlock()

	_ = conn.SetWriteDeadline(deadline)
	if err := framer.WriteFrame(request); err != nil {
		if isArgumentError(err) {
			h.clearSlot()
			return 0, newError(CodeGeneric, "send", err)
		}
		code := CodeConnection
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			code = CodeTimeout
		}
		h.fail(code, "send", err)
		return 0, h.lastError("send")
	}

	if !h.dataReceived.Wait(time.Until(deadline)) {
		h.fail(CodeTimeout, "receive", fmt.Errorf("no response within %s", timeout))
		return 0, h.lastError("receive")
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.rxDelivered {
		return 0, h.errLocked("receive")
	}
	n, full := h.rxLen, h.rxFull
	h.rxBuf = nil
	h.rxDelivered = false
	if n < full {
		return n, newError(CodeTruncated, "receive", fmt.Errorf("reply of %d bytes kept %d", full, n))
	}
	return n, nil
}

// Close tears the connection down and releases every waiter. It is safe on
// a handle that already failed, and later calls do nothing.
func (h *Handle) Close() error {
	h.teardown()
	return h.closeErr
}

// ID returns the connection identifier used in protocol log events.
func (h *Handle) ID() string {
	return h.id
}

// Connected reports whether the connection is usable.
func (h *Handle) Connected() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.connected
}

// Err returns the error that ended the connection, if any.
func (h *Handle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.lastErr == nil {
		return nil
	}
	return h.lastErr
}

// RemoteAddr returns the peer address, or nil before connect.
func (h *Handle) RemoteAddr() net.Addr {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.raw == nil {
		return nil
	}
	return h.raw.RemoteAddr()
}

// TLSState returns the negotiated TLS parameters.
func (h *Handle) TLSState() tls.ConnectionState {
	h.mu.Lock()
	conn := h.conn
	h.mu.Unlock()
	if conn == nil {
		return tls.ConnectionState{}
	}
	return conn.ConnectionState()
}

func (h *Handle) clearSlot() {
	h.mu.Lock()
	h.rxPending = false
	h.rxBuf = nil
	h.mu.Unlock()
}

func (h *Handle) lastError(op string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.errLocked(op)
}

func (h *Handle) errLocked(op string) error {
	if h.lastErr != nil {
		return h.lastErr
	}
	return newError(CodeConnection, op, ErrNotConnected)
}

func isArgumentError(err error) bool {
	return errors.Is(err, ErrMessageEmpty) || errors.Is(err, ErrMessageTooLarge)
}
