package interaction

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/raakeshkamal/pico-stock-ticker/pkg/log"
	"github.com/raakeshkamal/pico-stock-ticker/pkg/wire"
)

// Client defaults.
const (
	DefaultTimeout    = 5 * time.Second
	DefaultBufferSize = 16 * 1024
)

// Status is the outcome of one command exchange.
type Status int

// Command statuses.
const (
	StatusSuccess          Status = 0
	StatusSendError        Status = -1
	StatusRecvError        Status = -2
	StatusDeserializeError Status = -3
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "SUCCESS"
	case StatusSendError:
		return "SEND_ERROR"
	case StatusRecvError:
		return "RECV_ERROR"
	case StatusDeserializeError:
		return "DESERIALIZE_ERROR"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Client errors.
var (
	ErrAuthRejected = errors.New("authentication rejected")
	ErrRemote       = errors.New("server reported an error")
)

// CommandError describes a failed command exchange.
type CommandError struct {
	Status  Status
	Command string
	Err     error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("command %q: %s: %v", e.Command, e.Status, e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// StatusOf returns the status carried by err: StatusSuccess for nil, the
// CommandError status when present, StatusRecvError otherwise.
func StatusOf(err error) Status {
	if err == nil {
		return StatusSuccess
	}
	var ce *CommandError
	if errors.As(err, &ce) {
		return ce.Status
	}
	return StatusRecvError
}

// RemoteError returns an error wrapping ErrRemote when doc is a
// {status: "error"} reply, nil otherwise.
func RemoteError(doc wire.Document) error {
	status, _ := doc.String(wire.KeyStatus)
	if status != wire.StatusError {
		return nil
	}
	msg, _ := doc.String(wire.KeyMessage)
	return fmt.Errorf("%w: %s", ErrRemote, msg)
}

// Exchanger performs one request/response round trip.
// *transport.Handle implements it.
type Exchanger interface {
	SendAndReceive(request, response []byte, timeout time.Duration) (int, error)
}

// ClientConfig configures a Client.
type ClientConfig struct {
	// Timeout per exchange (default: 5s).
	Timeout time.Duration

	// BufferSize is the receive buffer size (default: 16KB).
	BufferSize int

	// Logger for operational logging. Nil discards.
	Logger *slog.Logger

	// ProtocolLogger receives one command event per exchange. Nil disables.
	ProtocolLogger log.Logger

	// ConnectionID tags protocol events.
	ConnectionID string
}

// Client issues commands over an Exchanger, reusing one receive buffer.
// Like the Exchanger it wraps, a Client is not safe for concurrent use.
type Client struct {
	ex      Exchanger
	buf     []byte
	timeout time.Duration
	logger  *slog.Logger
	plog    log.Logger
	connID  string
}

// NewClient creates a Client.
func NewClient(ex Exchanger, config ClientConfig) *Client {
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	if config.BufferSize <= 0 {
		config.BufferSize = DefaultBufferSize
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Client{
		ex:      ex,
		buf:     make([]byte, config.BufferSize),
		timeout: config.Timeout,
		logger:  logger,
		plog:    log.OrNoop(config.ProtocolLogger),
		connID:  config.ConnectionID,
	}
}

// Authenticate sends {token} and checks the reply. Any well-formed reply
// other than {status: "error"} is accepted.
func (c *Client) Authenticate(ctx context.Context, token string) error {
	data, err := wire.BuildAuthRequest(token)
	if err != nil {
		return &CommandError{Status: StatusSendError, Command: "auth", Err: err}
	}
	doc, err := c.exchange(ctx, "auth", data, nil)
	if err != nil {
		return err
	}
	if status, _ := doc.String(wire.KeyStatus); status == wire.StatusError {
		msg, _ := doc.String(wire.KeyMessage)
		return fmt.Errorf("%w: %s", ErrAuthRejected, msg)
	}
	return nil
}

// Send issues one command and returns the decoded reply.
func (c *Client) Send(ctx context.Context, name string, payload any) (wire.Document, error) {
	data, err := wire.BuildCommandRequest(name, payload)
	if err != nil {
		c.logger.Warn("failed to encode command", "command", name, "error", err)
		return nil, &CommandError{Status: StatusSendError, Command: name, Err: err}
	}
	return c.exchange(ctx, name, data, payload)
}

// Ping sends the ping command.
func (c *Client) Ping(ctx context.Context) (wire.Document, error) {
	return c.Send(ctx, wire.CommandPing, nil)
}

func (c *Client) exchange(ctx context.Context, name string, request []byte, payload any) (wire.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, &CommandError{Status: StatusSendError, Command: name, Err: err}
	}

	c.logger.Debug("sending command", "command", name, "bytes", len(request))
	start := time.Now()

	n, err := c.ex.SendAndReceive(request, c.buf, c.timeout)
	if err != nil {
		c.logger.Warn("command exchange failed", "command", name, "error", err)
		c.logCommand(name, StatusRecvError, payload, time.Since(start))
		return nil, &CommandError{Status: StatusRecvError, Command: name, Err: err}
	}

	doc, err := wire.DecodeDocument(c.buf[:n])
	if err != nil {
		c.logger.Warn("malformed response", "command", name, "bytes", n, "error", err)
		c.logCommand(name, StatusDeserializeError, payload, time.Since(start))
		return nil, &CommandError{Status: StatusDeserializeError, Command: name, Err: err}
	}

	rtt := time.Since(start)
	c.logger.Debug("command completed", "command", name, "round_trip", rtt)
	c.logCommand(name, StatusSuccess, doc, rtt)
	return doc, nil
}

func (c *Client) logCommand(name string, status Status, payload any, rtt time.Duration) {
	c.plog.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: c.connID,
		Direction:    log.DirectionIn,
		Layer:        log.LayerWire,
		Category:     log.CategoryMessage,
		Command: &log.CommandEvent{
			Name:      name,
			Status:    int(status),
			Payload:   payload,
			RoundTrip: rtt,
		},
	})
}

// SendCommand issues one command over ex with a fresh buffer.
func SendCommand(ctx context.Context, ex Exchanger, name string, payload any, timeout time.Duration) (wire.Document, error) {
	return NewClient(ex, ClientConfig{Timeout: timeout}).Send(ctx, name, payload)
}

// Authenticate performs the auth exchange over ex.
func Authenticate(ctx context.Context, ex Exchanger, token string, timeout time.Duration) error {
	return NewClient(ex, ClientConfig{Timeout: timeout}).Authenticate(ctx, token)
}
