package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/raakeshkamal/pico-stock-ticker/internal/config"
	"github.com/raakeshkamal/pico-stock-ticker/pkg/ticker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlagsOverrideConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ticker.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  host: file.example.com
  port: 9000
token: from-file
stock:
  ticker: MSFT
`), 0644))

	opts, err := parseFlags([]string{"-config", path, "-port", "9443", "-ticker", "TSLA"})
	require.NoError(t, err)
	cfg, err := opts.clientConfig()
	require.NoError(t, err)

	assert.Equal(t, "file.example.com", cfg.Server.Host, "unset flag keeps file value")
	assert.Equal(t, 9443, cfg.Server.Port)
	assert.Equal(t, "from-file", cfg.Token)
	assert.Equal(t, "TSLA", cfg.Stock.Ticker)
	assert.Equal(t, "1d", cfg.Stock.Duration)
}

func TestFlagsWithoutConfigFile(t *testing.T) {
	opts, err := parseFlags([]string{"-host", "localhost", "-timeout", "2s", "-backoff", "1s", "-once"})
	require.NoError(t, err)
	cfg, err := opts.clientConfig()
	require.NoError(t, err)

	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, 2*time.Second, cfg.Timing.CommandTimeout.Std())
	assert.Equal(t, time.Second, cfg.BackoffConfig().Initial)
	assert.True(t, cfg.Once)

	_, err = parseFlags([]string{"-port", "notaport"})
	assert.Error(t, err)

	opts, err = parseFlags(nil)
	require.NoError(t, err)
	_, err = opts.clientConfig()
	assert.ErrorIs(t, err, config.ErrMissingHost)
}

func TestLinkGate(t *testing.T) {
	calls := 0
	g := newLinkGate(slog.New(slog.DiscardHandler))
	g.interval = time.Millisecond
	g.up = func() (bool, error) {
		calls++
		return calls >= 3, nil
	}
	require.NoError(t, g.WaitLinkUp(context.Background()))
	assert.Equal(t, 3, calls)

	g.up = func() (bool, error) { return false, errors.New("boom") }
	assert.ErrorContains(t, g.WaitLinkUp(context.Background()), "boom")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	g.up = func() (bool, error) { return false, nil }
	assert.ErrorIs(t, g.WaitLinkUp(ctx), context.Canceled)
}

func TestFormatStock(t *testing.T) {
	d := &ticker.StockData{Symbol: "AAPL", Duration: "1d"}
	for i, c := range []float64{100, 104, 97, 95} {
		d.Add(ticker.OHLC{
			Date:  fmt.Sprintf("2025-06-06 %02d:00:00", 10+i),
			Open:  100,
			High:  max(c, 100),
			Low:   min(c, 100),
			Close: c,
		})
	}
	now := time.Date(2025, 6, 6, 14, 5, 0, 0, time.UTC)

	out := formatStock(d, now)
	assert.Contains(t, out, "AAPL")
	assert.Contains(t, out, "14:05:00")
	assert.Contains(t, out, "95.00")
	assert.Contains(t, out, "-5.00 (-5.00%)")
	assert.Contains(t, out, "as of 2025-06-06 13:00:00")

	assert.Contains(t, formatStock(&ticker.StockData{}, now), "no data")
}

func TestSparkline(t *testing.T) {
	h := []ticker.OHLC{{Close: 1}, {Close: 2}, {Close: 3}}
	assert.Equal(t, "▁▄█", sparkline(h))
	assert.Equal(t, "▄▄", sparkline([]ticker.OHLC{{Close: 5}, {Close: 5}}))
	assert.Empty(t, sparkline(nil))
}
