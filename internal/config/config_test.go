package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadClient(t *testing.T) {
	path := writeFile(t, `
server:
  host: ticker.example.com
  port: 9443
  client_cert: certs/client/client.crt
  client_key: certs/client/client.key
token: s3cret
stock:
  ticker: MSFT
timing:
  command_timeout: 2s
  yield_delay: -1ms
  backoff:
    initial: 30
    max: 1m
    multiplier: 2
log:
  level: debug
`)
	c, err := LoadClient(path)
	require.NoError(t, err)

	assert.Equal(t, "ticker.example.com", c.Server.Host)
	assert.Equal(t, 9443, c.Server.Port)
	assert.Equal(t, "certs/ca/ca.crt", c.Server.TrustAnchor, "default kept")
	assert.True(t, c.MutualTLS())
	assert.Equal(t, "s3cret", c.Token)

	req := c.StockRequest()
	assert.Equal(t, "MSFT", req.Ticker)
	assert.Equal(t, "1d", req.Duration)
	assert.Equal(t, "1h", req.Interval)

	assert.Equal(t, 2*time.Second, c.Timing.CommandTimeout.Std())
	assert.Equal(t, 10*time.Second, c.Timing.ConnectTimeout.Std())
	assert.Equal(t, -time.Millisecond, c.Timing.YieldDelay.Std())

	b := c.BackoffConfig()
	assert.Equal(t, 30*time.Second, b.Initial)
	assert.Equal(t, time.Minute, b.Max)
	assert.Equal(t, 2.0, b.Multiplier)

	level, err := c.Log.SlogLevel()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)
}

func TestClientValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Client)
		want   error
	}{
		{"no host", func(c *Client) {}, ErrMissingHost},
		{"discover without host", func(c *Client) { c.Server.Discover = true }, nil},
		{"bad port", func(c *Client) { c.Server.Host = "h"; c.Server.Port = 70000 }, ErrInvalidPort},
		{"no anchor", func(c *Client) { c.Server.Host = "h"; c.Server.TrustAnchor = "" }, ErrMissingAnchor},
		{"cert without key", func(c *Client) { c.Server.Host = "h"; c.Server.ClientCert = "c.crt" }, ErrMissingKeyPair},
		{"zero timeout", func(c *Client) { c.Server.Host = "h"; c.Timing.CommandTimeout = 0 }, ErrInvalidTiming},
		{"bad level", func(c *Client) { c.Server.Host = "h"; c.Log.Level = "loud" }, ErrInvalidLogLevel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultClient()
			tt.modify(c)
			err := c.Validate()
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestLoadErrors(t *testing.T) {
	_, err := LoadClient(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = LoadClient(writeFile(t, "timing:\n  command_timeout: soon\n"))
	assert.ErrorContains(t, err, "invalid duration")

	_, err = LoadClient(writeFile(t, "server: [1, 2]\n"))
	assert.Error(t, err)
}

func TestLoadServer(t *testing.T) {
	path := writeFile(t, `
address: "127.0.0.1:9443"
token: s3cret
tls:
  client_ca: certs/ca/ca.crt
location: Europe/Berlin
advertise:
  enabled: true
market:
  seed: 42
`)
	c, err := LoadServer(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9443", c.Address)
	assert.Equal(t, "certs/server/server.crt", c.TLS.Cert)
	assert.Equal(t, "certs/ca/ca.crt", c.TLS.ClientCA)
	assert.True(t, c.Advertise.Enabled)
	assert.Equal(t, int64(42), c.Market.Seed)

	loc, err := c.TimeLocation()
	require.NoError(t, err)
	assert.Equal(t, "Europe/Berlin", loc.String())
}

func TestServerValidate(t *testing.T) {
	c := DefaultServer()
	assert.NoError(t, c.Validate())

	c.Location = "Mars/Olympus"
	assert.Error(t, c.Validate())

	c = DefaultServer()
	c.TLS.Key = ""
	assert.ErrorIs(t, c.Validate(), ErrMissingKeyPair)
}

func TestDurationMarshal(t *testing.T) {
	out, err := yaml.Marshal(Timing{CommandTimeout: Duration(1500 * time.Millisecond)})
	require.NoError(t, err)
	assert.Contains(t, string(out), "command_timeout: 1.5s")
}

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]slog.Level{
		"":        slog.LevelInfo,
		"DEBUG":   slog.LevelDebug,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
	} {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
}
