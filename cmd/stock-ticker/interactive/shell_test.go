package interactive

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/raakeshkamal/pico-stock-ticker/pkg/cert"
	"github.com/raakeshkamal/pico-stock-ticker/pkg/session"
	"github.com/raakeshkamal/pico-stock-ticker/pkg/ticker"
	"github.com/raakeshkamal/pico-stock-ticker/pkg/tickerserver"
	"github.com/raakeshkamal/pico-stock-ticker/pkg/transport"
	"github.com/raakeshkamal/pico-stock-ticker/pkg/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startServer(t *testing.T) session.Opener {
	t.Helper()
	pki, err := cert.GeneratePKI([]string{"localhost"}, "shell")
	require.NoError(t, err)
	tlsConf, err := transport.NewServerTLSConfig(pki.Server.TLSCertificate(), nil)
	require.NoError(t, err)

	srv, err := tickerserver.New(tickerserver.Config{
		TLSConfig: tlsConf,
		Address:   "127.0.0.1:0",
		Token:     "secret",
		Now:       func() time.Time { return time.Date(2025, 6, 6, 12, 30, 15, 0, time.UTC) },
	})
	require.NoError(t, err)
	require.NoError(t, srv.Start(context.Background()))
	t.Cleanup(func() { srv.Stop() })

	return session.TransportOpener{
		Host:        "localhost",
		Port:        int(srv.Port()),
		TrustAnchor: pki.CA.PEM(),
		Options:     []transport.Option{transport.WithResolver(transport.StaticResolver{"localhost": {"127.0.0.1"}})},
	}
}

func TestShellCommands(t *testing.T) {
	opener := startServer(t)
	driver, err := session.New(session.Config{Opener: opener, Token: "secret", YieldDelay: -1})
	require.NoError(t, err)

	var out bytes.Buffer
	s := newShell(Config{Opener: opener, Token: "secret", Driver: driver}, &out)
	defer s.disconnect()
	ctx := context.Background()

	assert.False(t, s.execute(ctx, "ping"))
	assert.Contains(t, out.String(), "Connected")
	assert.Contains(t, out.String(), "pong=true")

	out.Reset()
	s.execute(ctx, "time")
	assert.Contains(t, out.String(), "2025-06-06 12:30:15")
	assert.Contains(t, out.String(), "Friday")

	out.Reset()
	s.execute(ctx, "stock msft 1d 1h")
	assert.Contains(t, out.String(), "MSFT")
	assert.Contains(t, out.String(), "24 points")

	out.Reset()
	s.execute(ctx, "send nope")
	assert.Contains(t, out.String(), "message: unknown command: nope")

	out.Reset()
	s.execute(ctx, "show")
	assert.Contains(t, out.String(), "No data yet")

	out.Reset()
	s.execute(ctx, "cycle")
	assert.Contains(t, out.String(), "Cycle complete")
	assert.Contains(t, out.String(), "AAPL")

	out.Reset()
	s.execute(ctx, "state")
	assert.Contains(t, out.String(), "CLOSING")

	out.Reset()
	s.execute(ctx, "close")
	assert.Nil(t, s.client)

	assert.True(t, s.execute(ctx, "quit"))
}

func TestShellAuthFailure(t *testing.T) {
	opener := startServer(t)
	var out bytes.Buffer
	s := newShell(Config{Opener: opener, Token: "wrong"}, &out)

	s.execute(context.Background(), "ping")
	assert.Contains(t, out.String(), "Error: authenticate")
	assert.Nil(t, s.client)
}

func TestShellUnknownAndUsage(t *testing.T) {
	var out bytes.Buffer
	s := newShell(Config{}, &out)
	ctx := context.Background()

	s.execute(ctx, "frobnicate")
	assert.Contains(t, out.String(), "Unknown command: frobnicate")

	out.Reset()
	s.execute(ctx, "send")
	assert.Contains(t, out.String(), "usage: send")

	out.Reset()
	s.execute(ctx, "show")
	assert.Contains(t, out.String(), "No session driver")

	assert.False(t, s.execute(ctx, "   "))
}

func TestParseAssignments(t *testing.T) {
	doc, err := parseAssignments([]string{"ticker=MSFT", "count=3", "ratio=1.5", "live=true"})
	require.NoError(t, err)
	assert.Equal(t, wire.Document{
		"ticker": "MSFT",
		"count":  int64(3),
		"ratio":  1.5,
		"live":   true,
	}, doc)

	_, err = parseAssignments([]string{"novalue"})
	assert.Error(t, err)
	_, err = parseAssignments([]string{"=x"})
	assert.Error(t, err)
}

func TestPrintStockDefault(t *testing.T) {
	var out bytes.Buffer
	s := newShell(Config{}, &out)
	d := &ticker.StockData{Symbol: "AAPL", Timestamp: "2025-06-06 12:00:00"}
	d.Add(ticker.OHLC{Date: "2025-06-06 12:00:00", Open: 100, High: 101, Low: 99, Close: 101})
	s.printStock(d)
	assert.Contains(t, out.String(), "AAPL 101.00 +1.00 (+1.00%) 1 points")
}
