package session

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/raakeshkamal/pico-stock-ticker/pkg/connection"
	"github.com/raakeshkamal/pico-stock-ticker/pkg/log"
	"github.com/raakeshkamal/pico-stock-ticker/pkg/ticker"
	"github.com/raakeshkamal/pico-stock-ticker/pkg/transport"
	"github.com/raakeshkamal/pico-stock-ticker/pkg/wire"
)

// Driver defaults.
const (
	DefaultCommandTimeout = 5 * time.Second
	DefaultYieldDelay     = 100 * time.Millisecond
)

// Configuration errors.
var (
	ErrNoOpener   = errors.New("session: opener is required")
	ErrNoCommands = errors.New("session: command list is empty")
)

// State is a driver state.
type State uint8

// Driver states.
const (
	StateIdle State = iota
	StateConnecting
	StateAuthenticating
	StateCommandLoop
	StateClosing
	StateBackoff
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateConnecting:
		return "CONNECTING"
	case StateAuthenticating:
		return "AUTHENTICATING"
	case StateCommandLoop:
		return "COMMAND_LOOP"
	case StateClosing:
		return "CLOSING"
	case StateBackoff:
		return "BACKOFF"
	default:
		return "UNKNOWN"
	}
}

// Command is one entry of the command list.
type Command struct {
	Name    string
	Payload any
}

// DefaultCommands returns ping, get_time and get_stock_data for req.
func DefaultCommands(req wire.StockDataRequest) []Command {
	return []Command{
		{Name: wire.CommandPing},
		{Name: wire.CommandGetTime},
		{Name: wire.CommandGetStockData, Payload: req},
	}
}

// Conn is an open connection. *transport.Handle implements it.
type Conn interface {
	SendAndReceive(request, response []byte, timeout time.Duration) (int, error)
	ID() string
	Close() error
}

// Opener opens a connection for one cycle.
type Opener interface {
	Open(ctx context.Context) (Conn, error)
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(ctx context.Context) (Conn, error)

// Open calls f.
func (f OpenerFunc) Open(ctx context.Context) (Conn, error) {
	return f(ctx)
}

// TransportOpener opens TLS connections with transport.Open.
type TransportOpener struct {
	Host        string
	Port        int
	TrustAnchor []byte
	Options     []transport.Option
}

// Open dials the configured server.
func (o TransportOpener) Open(ctx context.Context) (Conn, error) {
	h, err := transport.Open(ctx, o.Host, o.Port, o.TrustAnchor, o.Options...)
	if err != nil {
		return nil, err
	}
	return h, nil
}

// LinkGate blocks until a network path is available.
type LinkGate interface {
	WaitLinkUp(ctx context.Context) error
}

// LinkGateFunc adapts a function to LinkGate.
type LinkGateFunc func(ctx context.Context) error

// WaitLinkUp calls f.
func (f LinkGateFunc) WaitLinkUp(ctx context.Context) error {
	return f(ctx)
}

// Renderer consumes each newly published record.
type Renderer interface {
	Render(*ticker.StockData)
}

// ResultFunc applies a successful command reply.
type ResultFunc func(ctx context.Context, reply wire.Document) error

// Config configures a Driver.
type Config struct {
	// Opener opens the connection of each cycle. Required.
	Opener Opener

	// Token is sent in the auth request.
	Token string

	// Commands are issued in order after authentication
	// (default: DefaultCommands for AAPL 1d/1h).
	Commands []Command

	// CommandTimeout bounds each exchange, auth included (default: 5s).
	CommandTimeout time.Duration

	// BufferSize is the response buffer size (default: 16KB).
	BufferSize int

	// YieldDelay is the pause between commands (default: 100ms, negative
	// disables).
	YieldDelay time.Duration

	// Backoff configures the pause between cycles (default: fixed 5s).
	Backoff connection.BackoffConfig

	// Gate is waited on once before the first cycle. Nil means the link
	// is always up.
	Gate LinkGate

	// RTC receives the time from get_time. Nil skips time sync.
	RTC ticker.RTC

	// Store receives records from get_stock_data. Nil creates one.
	Store *ticker.Store

	// Renderer is called with every published record. Optional.
	Renderer Renderer

	// Handlers add or replace reply handlers by command name.
	Handlers map[string]ResultFunc

	// Logger for operational logging. Nil discards.
	Logger *slog.Logger

	// ProtocolLogger receives state, command and error events. Nil disables.
	ProtocolLogger log.Logger

	// OnStateChange is called on every state transition.
	OnStateChange func(oldState, newState State)
}

// DefaultStockRequest is the get_stock_data payload of the default list.
var DefaultStockRequest = wire.StockDataRequest{Ticker: "AAPL", Duration: "1d", Interval: "1h"}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Opener == nil {
		return ErrNoOpener
	}
	if c.Commands != nil && len(c.Commands) == 0 {
		return ErrNoCommands
	}
	for _, cmd := range c.Commands {
		if cmd.Name == "" {
			return wire.ErrEmptyCommand
		}
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Commands == nil {
		c.Commands = DefaultCommands(DefaultStockRequest)
	}
	if c.CommandTimeout <= 0 {
		c.CommandTimeout = DefaultCommandTimeout
	}
	if c.YieldDelay < 0 {
		c.YieldDelay = 0
	} else if c.YieldDelay == 0 {
		c.YieldDelay = DefaultYieldDelay
	}
	if c.Store == nil {
		c.Store = ticker.NewStore()
	}
}
