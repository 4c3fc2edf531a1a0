package config

import (
	"fmt"
	"time"

	"github.com/raakeshkamal/pico-stock-ticker/pkg/connection"
	"github.com/raakeshkamal/pico-stock-ticker/pkg/wire"
)

// Endpoint names the data server a device connects to.
type Endpoint struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	// ServerName overrides the name verified against the certificate.
	ServerName string `yaml:"server_name,omitempty"`

	// TrustAnchor is a PEM or DER CA certificate file.
	TrustAnchor string `yaml:"trust_anchor"`

	// ClientCert and ClientKey enable mutual TLS.
	ClientCert string `yaml:"client_cert,omitempty"`
	ClientKey  string `yaml:"client_key,omitempty"`

	// Discover looks the server up over mDNS when Host is empty.
	Discover bool `yaml:"discover,omitempty"`
}

// Stock is the get_stock_data request.
type Stock struct {
	Ticker   string `yaml:"ticker"`
	Duration string `yaml:"duration"`
	Interval string `yaml:"interval"`
}

// Backoff configures the delay between sessions.
type Backoff struct {
	Initial    Duration `yaml:"initial"`
	Max        Duration `yaml:"max,omitempty"`
	Multiplier float64  `yaml:"multiplier,omitempty"`
	Jitter     float64  `yaml:"jitter,omitempty"`
}

// Timing configures the session timeouts.
type Timing struct {
	ConnectTimeout Duration `yaml:"connect_timeout"`
	CommandTimeout Duration `yaml:"command_timeout"`

	// YieldDelay pauses between commands. Negative disables.
	YieldDelay Duration `yaml:"yield_delay"`

	Backoff Backoff `yaml:"backoff"`
}

// Client is the device configuration.
type Client struct {
	Server Endpoint `yaml:"server"`
	Token  string   `yaml:"token"`
	Stock  Stock    `yaml:"stock"`
	Timing Timing   `yaml:"timing"`
	Log    Log      `yaml:"log"`

	// Once runs a single session and exits.
	Once bool `yaml:"once,omitempty"`
}

// DefaultClient returns the device defaults.
func DefaultClient() *Client {
	return &Client{
		Server: Endpoint{
			Port:        8443,
			TrustAnchor: "certs/ca/ca.crt",
		},
		Stock: Stock{Ticker: "AAPL", Duration: "1d", Interval: "1h"},
		Timing: Timing{
			ConnectTimeout: Duration(10 * time.Second),
			CommandTimeout: Duration(5 * time.Second),
			YieldDelay:     Duration(100 * time.Millisecond),
			Backoff: Backoff{
				Initial:    Duration(connection.DefaultDelay),
				Multiplier: 1,
			},
		},
		Log: Log{Level: "info"},
	}
}

// LoadClient reads path over the defaults and validates the result.
func LoadClient(path string) (*Client, error) {
	c := DefaultClient()
	if err := load(path, c); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks the configuration.
func (c *Client) Validate() error {
	if c.Server.Host == "" && !c.Server.Discover {
		return ErrMissingHost
	}
	if !validPort(c.Server.Port) {
		return fmt.Errorf("%w: %d", ErrInvalidPort, c.Server.Port)
	}
	if c.Server.TrustAnchor == "" {
		return ErrMissingAnchor
	}
	if (c.Server.ClientCert == "") != (c.Server.ClientKey == "") {
		return ErrMissingKeyPair
	}
	if c.Timing.ConnectTimeout <= 0 || c.Timing.CommandTimeout <= 0 {
		return ErrInvalidTiming
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		return err
	}
	return nil
}

// MutualTLS reports whether a client certificate is configured.
func (c *Client) MutualTLS() bool {
	return c.Server.ClientCert != ""
}

// StockRequest returns the get_stock_data payload.
func (c *Client) StockRequest() wire.StockDataRequest {
	return wire.StockDataRequest{
		Ticker:   c.Stock.Ticker,
		Duration: c.Stock.Duration,
		Interval: c.Stock.Interval,
	}
}

// BackoffConfig returns the retry policy.
func (c *Client) BackoffConfig() connection.BackoffConfig {
	b := c.Timing.Backoff
	return connection.BackoffConfig{
		Initial:    b.Initial.Std(),
		Max:        b.Max.Std(),
		Multiplier: b.Multiplier,
		Jitter:     b.Jitter,
	}
}
