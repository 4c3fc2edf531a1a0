package wire

import (
	"errors"
	"fmt"
)

// Request and response keys.
const (
	KeyToken     = "token"
	KeyCommand   = "command"
	KeyPayload   = "payload"
	KeyStatus    = "status"
	KeyMessage   = "message"
	KeyPong      = "pong"
	KeyTime      = "server_time"
	KeyStockData = "stock_data"
)

// Values of the "status" response key.
const (
	StatusAuthenticated = "authenticated"
	StatusError         = "error"
)

// Command names understood by the ticker server.
const (
	CommandPing         = "ping"
	CommandGetTime      = "get_time"
	CommandGetStockData = "get_stock_data"
)

// Decoding errors.
var (
	ErrEmptyMessage = errors.New("wire: empty message")
	ErrNotAMap      = errors.New("wire: message is not a map")
	ErrEmptyCommand = errors.New("wire: empty command name")
)

// AuthRequest is the first message of every session.
type AuthRequest struct {
	Token string `cbor:"token"`
}

// CommandRequest asks the server to run a named command.
type CommandRequest struct {
	Command string `cbor:"command"`
	Payload any    `cbor:"payload,omitempty"`
}

// BuildAuthRequest encodes {token}.
func BuildAuthRequest(token string) ([]byte, error) {
	return Marshal(AuthRequest{Token: token})
}

// BuildCommandRequest encodes {command, payload?}. A nil payload is omitted.
func BuildCommandRequest(name string, payload any) ([]byte, error) {
	if name == "" {
		return nil, ErrEmptyCommand
	}
	data, err := Marshal(CommandRequest{Command: name, Payload: payload})
	if err != nil {
		return nil, fmt.Errorf("encode command %q: %w", name, err)
	}
	return data, nil
}

// StockDataRequest is the payload of get_stock_data.
type StockDataRequest struct {
	Ticker   string `cbor:"ticker"`
	Duration string `cbor:"duration"`
	Interval string `cbor:"interval"`
}

// Document returns the payload as a document, the form used in command lists.
func (r StockDataRequest) Document() Document {
	return Document{
		"ticker":   r.Ticker,
		"duration": r.Duration,
		"interval": r.Interval,
	}
}

// Candle is one OHLC point as sent by the server.
type Candle struct {
	Date  string  `cbor:"Date"`
	Open  float64 `cbor:"Open"`
	High  float64 `cbor:"High"`
	Low   float64 `cbor:"Low"`
	Close float64 `cbor:"Close"`
}

// StockSeries is the value of the "stock_data" response key.
type StockSeries struct {
	Ticker   string   `cbor:"ticker"`
	Duration string   `cbor:"duration"`
	Data     []Candle `cbor:"data"`
}

// ErrorResponse builds {status: "error", message}.
func ErrorResponse(message string) Document {
	return Document{KeyStatus: StatusError, KeyMessage: message}
}
