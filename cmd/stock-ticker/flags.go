package main

import (
	"flag"
	"time"

	"github.com/raakeshkamal/pico-stock-ticker/internal/config"
)

// options holds the parsed command line.
type options struct {
	ConfigFile  string
	Host        string
	Port        int
	ServerName  string
	CA          string
	Cert        string
	Key         string
	Token       string
	Ticker      string
	Duration    string
	Interval    string
	Timeout     time.Duration
	Backoff     time.Duration
	LogLevel    string
	ProtocolLog string
	Discover    bool
	Once        bool
	Interactive bool

	set map[string]bool
}

func parseFlags(args []string) (*options, error) {
	o := &options{set: make(map[string]bool)}
	fs := flag.NewFlagSet("stock-ticker", flag.ContinueOnError)

	fs.StringVar(&o.ConfigFile, "config", "", "Configuration file path")
	fs.StringVar(&o.Host, "host", "", "Server host name (empty with -discover uses mDNS)")
	fs.IntVar(&o.Port, "port", 8443, "Server port")
	fs.StringVar(&o.ServerName, "server-name", "", "Name to verify in the server certificate")
	fs.StringVar(&o.CA, "ca", "certs/ca/ca.crt", "Trust anchor (PEM or DER)")
	fs.StringVar(&o.Cert, "cert", "", "Client certificate for mutual TLS")
	fs.StringVar(&o.Key, "key", "", "Client key for mutual TLS")
	fs.StringVar(&o.Token, "token", "", "Authentication token")
	fs.StringVar(&o.Ticker, "ticker", "AAPL", "Stock symbol")
	fs.StringVar(&o.Duration, "duration", "1d", "History duration")
	fs.StringVar(&o.Interval, "interval", "1h", "Candle interval")
	fs.DurationVar(&o.Timeout, "timeout", 5*time.Second, "Per-command timeout")
	fs.DurationVar(&o.Backoff, "backoff", 5*time.Second, "Delay between sessions")
	fs.StringVar(&o.LogLevel, "log-level", "info", "Log level: debug, info, warn, error")
	fs.StringVar(&o.ProtocolLog, "protocol-log", "", "Write CBOR protocol events to this file")
	fs.BoolVar(&o.Discover, "discover", false, "Find the server over mDNS")
	fs.BoolVar(&o.Once, "once", false, "Run one session and exit")
	fs.BoolVar(&o.Interactive, "interactive", false, "Start the interactive shell")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	fs.Visit(func(f *flag.Flag) { o.set[f.Name] = true })
	return o, nil
}

// clientConfig loads the configuration file, if any, and applies the flags
// given explicitly on the command line.
func (o *options) clientConfig() (*config.Client, error) {
	cfg := config.DefaultClient()
	if o.ConfigFile != "" {
		loaded, err := config.LoadClient(o.ConfigFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	overrides := map[string]func(){
		"host":         func() { cfg.Server.Host = o.Host },
		"port":         func() { cfg.Server.Port = o.Port },
		"server-name":  func() { cfg.Server.ServerName = o.ServerName },
		"ca":           func() { cfg.Server.TrustAnchor = o.CA },
		"cert":         func() { cfg.Server.ClientCert = o.Cert },
		"key":          func() { cfg.Server.ClientKey = o.Key },
		"discover":     func() { cfg.Server.Discover = o.Discover },
		"token":        func() { cfg.Token = o.Token },
		"ticker":       func() { cfg.Stock.Ticker = o.Ticker },
		"duration":     func() { cfg.Stock.Duration = o.Duration },
		"interval":     func() { cfg.Stock.Interval = o.Interval },
		"timeout":      func() { cfg.Timing.CommandTimeout = config.Duration(o.Timeout) },
		"backoff":      func() { cfg.Timing.Backoff.Initial = config.Duration(o.Backoff) },
		"log-level":    func() { cfg.Log.Level = o.LogLevel },
		"protocol-log": func() { cfg.Log.ProtocolFile = o.ProtocolLog },
		"once":         func() { cfg.Once = o.Once },
	}
	for name, apply := range overrides {
		if o.set[name] {
			apply()
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
