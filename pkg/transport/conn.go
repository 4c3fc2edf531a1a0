package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/raakeshkamal/pico-stock-ticker/pkg/log"
)

// closeGrace bounds the close_notify write during a graceful close.
const closeGrace = 500 * time.Millisecond

// Connection states reported in protocol log events.
const (
	stateConnecting   = "CONNECTING"
	stateConnected    = "CONNECTED"
	stateDisconnected = "DISCONNECTED"
)

// Handle is one client connection. It is owned by a single caller between
// Open and Close; SendAndReceive must not be called concurrently.
type Handle struct {
	id   string
	host string
	port int
	opts options

	tlsConf *tls.Config
	logger  *slog.Logger
	plog    log.Logger

	connectComplete *signal
	dataReceived    *signal

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	// Guarded by mu.
	mu           sync.Mutex
	raw          net.Conn
	conn         *tls.Conn
	framer       *Framer
	connected    bool
	closed       bool
	lastErr      *Error
	lastProgress time.Time

	// Receive slot for the exchange in flight. Guarded by mu.
	rxBuf       []byte
	rxLen       int
	rxFull      int
	rxPending   bool
	rxDelivered bool

	busy      sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

// connect resolves the host and dials it with TLS. It runs on its own
// goroutine and reports through onConnected.
func (h *Handle) connect() {
	addr, err := resolveFirst(h.ctx, h.opts.resolver, h.host)
	if err != nil {
		h.onConnected(err)
		return
	}
	h.markProgress()

	dialer := &net.Dialer{}
	raw, err := dialer.DialContext(h.ctx, "tcp", net.JoinHostPort(addr, strconv.Itoa(h.port)))
	if err != nil {
		h.onConnected(fmt.Errorf("dial failed: %w", err))
		return
	}

	tlsConn := tls.Client(raw, h.tlsConf)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		abortConn(raw)
		return
	}
	h.raw = raw
	h.conn = tlsConn
	h.lastProgress = time.Now()
	h.mu.Unlock()

	h.logger.Debug("tcp connected, starting handshake", "conn_id", h.id, "remote", raw.RemoteAddr().String())

	if err := tlsConn.HandshakeContext(h.ctx); err != nil {
		h.onConnected(fmt.Errorf("TLS handshake failed: %w", err))
		return
	}
	h.onConnected(nil)
}

// onConnected completes the connect phase.
func (h *Handle) onConnected(err error) {
	if err != nil {
		h.fail(CodeConnection, "connect", err)
		return
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.framer = NewFramer(h.conn, h.opts.maxMessageSize)
	if h.opts.protocolLogger != nil {
		h.framer.SetLogger(h.opts.protocolLogger, h.id)
	}
	h.connected = true
	h.lastProgress = time.Now()
	framer := h.framer
	remote := h.raw.RemoteAddr().String()
	h.mu.Unlock()

	go h.readLoop(framer)

	h.plog.Log(h.stateEvent(stateConnecting, stateConnected, remote))
	h.logger.Debug("connected", "conn_id", h.id, "host", h.host, "remote", remote)
	h.connectComplete.Release()
}

// readLoop delivers inbound frames until the connection ends.
func (h *Handle) readLoop(framer *Framer) {
	for {
		frame, err := framer.ReadFrame()
		if err != nil {
			if h.isClosed() {
				return
			}
			if errors.Is(err, ErrMessageTooLarge) || errors.Is(err, ErrMessageEmpty) {
				h.fail(CodeGeneric, "receive", err)
				return
			}
			h.onClosedByPeer(err)
			return
		}
		h.onReceived(frame)
	}
}

// onReceived copies an inbound frame into the caller's buffer. Frames that
// arrive with no exchange in flight are dropped.
func (h *Handle) onReceived(frame []byte) {
	h.mu.Lock()
	if h.closed || !h.rxPending {
		h.mu.Unlock()
		h.logger.Debug("dropping unsolicited frame", "conn_id", h.id, "size", len(frame))
		return
	}
	h.rxLen = copy(h.rxBuf, frame)
	h.rxFull = len(frame)
	h.rxPending = false
	h.rxDelivered = true
	h.lastProgress = time.Now()
	h.mu.Unlock()

	h.dataReceived.Release()
}

// pollLoop ticks onPoll until teardown.
func (h *Handle) pollLoop() {
	ticker := time.NewTicker(h.opts.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-h.done:
			return
		case <-ticker.C:
			h.onPoll()
		}
	}
}

// onPoll tears the connection down when a handshake or response has been
// outstanding without progress for the idle timeout.
func (h *Handle) onPoll() {
	h.mu.Lock()
	outstanding := !h.closed && (!h.connected || h.rxPending)
	idle := time.Since(h.lastProgress)
	h.mu.Unlock()

	if outstanding && idle >= h.opts.idleTimeout {
		h.fail(CodeTimeout, "poll", fmt.Errorf("no progress for %s", idle.Round(time.Millisecond)))
	}
}

// onClosedByPeer handles EOF or reset from the read loop.
func (h *Handle) onClosedByPeer(err error) {
	if err == io.EOF {
		err = ErrConnectionClosed
	}
	h.fail(CodeConnection, "receive", err)
}

// fail records the first error and tears down.
func (h *Handle) fail(code Code, op string, err error) {
	h.mu.Lock()
	first := h.lastErr == nil && !h.closed
	if first {
		h.lastErr = newError(code, op, err)
	}
	h.mu.Unlock()

	if first {
		h.plog.Log(log.Failure(h.id, log.LayerTransport, int(code), op, err))
		h.logger.Debug("connection failed", "conn_id", h.id, "code", code.String(), "op", op, "error", err)
	}
	h.teardown()
}

// teardown is the single exit path. It detaches the hooks, closes the socket
// (gracefully if possible, otherwise by abort) and wakes every waiter.
func (h *Handle) teardown() {
	h.closeOnce.Do(func() {
		h.mu.Lock()
		h.closed = true
		wasConnected := h.connected
		h.connected = false
		h.rxPending = false
		h.rxBuf = nil
		raw, conn := h.raw, h.conn
		h.mu.Unlock()

		close(h.done)
		h.cancel()

		switch {
		case conn != nil && wasConnected:
			_ = conn.SetWriteDeadline(time.Now().Add(closeGrace))
			if err := conn.Close(); err != nil {
				h.closeErr = err
				abortConn(raw)
			}
		case raw != nil:
			abortConn(raw)
		}

		h.connectComplete.Abort()
		h.dataReceived.Abort()

		old := stateConnecting
		if wasConnected {
			old = stateConnected
		}
		h.plog.Log(h.stateEvent(old, stateDisconnected, ""))
		h.logger.Debug("connection closed", "conn_id", h.id)
	})
}

// abortConn drops the socket with a reset instead of a FIN.
func abortConn(raw net.Conn) {
	if tcp, ok := raw.(*net.TCPConn); ok {
		_ = tcp.SetLinger(0)
	}
	_ = raw.Close()
}

func (h *Handle) markProgress() {
	h.mu.Lock()
	h.lastProgress = time.Now()
	h.mu.Unlock()
}

func (h *Handle) isClosed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

func (h *Handle) stateEvent(oldState, newState, remote string) log.Event {
	e := log.StateChange(h.id, log.LayerTransport, log.StateEntityConnection, oldState, newState, "")
	e.LocalRole = log.RoleClient
	e.Host = h.host
	e.RemoteAddr = remote
	return e
}
