package tickerserver

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/raakeshkamal/pico-stock-ticker/pkg/market"
	"github.com/raakeshkamal/pico-stock-ticker/pkg/wire"
)

// TimeLayout is the get_time reply format.
const TimeLayout = "2006-01-02 15:04:05 MST"

// Defaults for get_stock_data payload fields the device left out.
const (
	DefaultTicker   = "AAPL"
	DefaultDuration = "1d"
	DefaultInterval = "1h"
)

// Echo reply keys.
const (
	StatusReceived = "received"
	KeyEcho        = "echo"
)

func handlePing(context.Context, wire.Document) (wire.Document, error) {
	return wire.Document{wire.KeyPong: true}, nil
}

func timeHandler(now func() time.Time, loc *time.Location) func(context.Context, wire.Document) (wire.Document, error) {
	return func(context.Context, wire.Document) (wire.Document, error) {
		return wire.Document{wire.KeyTime: now().In(loc).Format(TimeLayout)}, nil
	}
}

func stockHandler(src market.Source) func(context.Context, wire.Document) (wire.Document, error) {
	return func(ctx context.Context, payload wire.Document) (wire.Document, error) {
		req := stockRequest(payload)
		series, err := src.Series(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("stock data for %s: %w", req.Ticker, err)
		}
		return wire.Document{wire.KeyStockData: series}, nil
	}
}

// stockRequest reads the get_stock_data payload, filling defaults.
func stockRequest(payload wire.Document) wire.StockDataRequest {
	req := wire.StockDataRequest{
		Ticker:   DefaultTicker,
		Duration: DefaultDuration,
		Interval: DefaultInterval,
	}
	if v, ok := payload.String("ticker"); ok && strings.TrimSpace(v) != "" {
		req.Ticker = v
	}
	if v, ok := payload.String("duration"); ok && v != "" {
		req.Duration = v
	}
	if v, ok := payload.String("interval"); ok && v != "" {
		req.Interval = v
	}
	return req
}

// echoReply answers a raw frame in echo mode.
func echoReply(frame []byte) wire.Document {
	req, err := wire.DecodeDocument(frame)
	if err != nil {
		return wire.ErrorResponse("invalid message format")
	}
	return wire.Document{wire.KeyStatus: StatusReceived, KeyEcho: map[string]any(req)}
}
