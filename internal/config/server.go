package config

import (
	"fmt"
	"time"
	_ "time/tzdata" // zones resolve on hosts without a zoneinfo database
)

// TLS names the server certificate files.
type TLS struct {
	Cert string `yaml:"cert"`
	Key  string `yaml:"key"`

	// ClientCA, when set, requires client certificates signed by it.
	ClientCA string `yaml:"client_ca,omitempty"`
}

// Advertise configures mDNS advertising.
type Advertise struct {
	Enabled   bool   `yaml:"enabled"`
	Instance  string `yaml:"instance,omitempty"`
	Interface string `yaml:"interface,omitempty"`
}

// Market configures the synthetic price source.
type Market struct {
	Seed       int64   `yaml:"seed"`
	Volatility float64 `yaml:"volatility,omitempty"`
	MaxPoints  int     `yaml:"max_points,omitempty"`
}

// ServerConfig is the reference server configuration.
type ServerConfig struct {
	Address string `yaml:"address"`
	Token   string `yaml:"token"`
	TLS     TLS    `yaml:"tls"`

	// Location is the IANA zone get_time reports in.
	Location string `yaml:"location"`

	// Echo answers every request with {status: "received", echo}.
	Echo bool `yaml:"echo,omitempty"`

	Advertise Advertise `yaml:"advertise"`
	Market    Market    `yaml:"market"`
	Log       Log       `yaml:"log"`
}

// DefaultServer returns the server defaults.
func DefaultServer() *ServerConfig {
	return &ServerConfig{
		Address: ":8443",
		TLS: TLS{
			Cert: "certs/server/server.crt",
			Key:  "certs/server/server.key",
		},
		Location: "UTC",
		Log:      Log{Level: "info"},
	}
}

// LoadServer reads path over the defaults and validates the result.
func LoadServer(path string) (*ServerConfig, error) {
	c := DefaultServer()
	if err := load(path, c); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks the configuration.
func (c *ServerConfig) Validate() error {
	if c.Address == "" {
		return fmt.Errorf("listen address is required")
	}
	if c.TLS.Cert == "" || c.TLS.Key == "" {
		return ErrMissingKeyPair
	}
	if _, err := c.TimeLocation(); err != nil {
		return err
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		return err
	}
	return nil
}

// TimeLocation loads Location.
func (c *ServerConfig) TimeLocation() (*time.Location, error) {
	if c.Location == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Location)
	if err != nil {
		return nil, fmt.Errorf("location %q: %w", c.Location, err)
	}
	return loc, nil
}
