// Command stock-ticker is the ticker device.
//
// It connects to a ticker server over TLS, authenticates with a shared
// token and repeats a fixed command list: ping, get_time to set the clock
// and get_stock_data to refresh the displayed record. Failed sessions are
// retried after a backoff delay.
//
// Usage:
//
//	stock-ticker [flags]
//
// Flags:
//
//	-config string        Configuration file path
//	-host string          Server host name
//	-port int             Server port (default 8443)
//	-server-name string   Name to verify in the server certificate
//	-ca string            Trust anchor (default "certs/ca/ca.crt")
//	-cert, -key string    Client certificate and key for mutual TLS
//	-token string         Authentication token
//	-ticker string        Stock symbol (default "AAPL")
//	-duration string      History duration (default "1d")
//	-interval string      Candle interval (default "1h")
//	-timeout duration     Per-command timeout (default 5s)
//	-backoff duration     Delay between sessions (default 5s)
//	-log-level string     Log level: debug, info, warn, error (default "info")
//	-protocol-log string  Write CBOR protocol events to this file
//	-discover             Find the server over mDNS
//	-once                 Run one session and exit
//	-interactive          Start the interactive shell
//
// Examples:
//
//	# Connect to a server with mutual TLS
//	stock-ticker -host ticker.example.com -token s3cret \
//	    -cert certs/client/client.crt -key certs/client/client.key
//
//	# Find the server on the local network and show MSFT
//	stock-ticker -discover -ticker MSFT -token s3cret
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/raakeshkamal/pico-stock-ticker/cmd/stock-ticker/interactive"
	"github.com/raakeshkamal/pico-stock-ticker/internal/config"
	"github.com/raakeshkamal/pico-stock-ticker/pkg/cert"
	"github.com/raakeshkamal/pico-stock-ticker/pkg/discovery"
	"github.com/raakeshkamal/pico-stock-ticker/pkg/log"
	"github.com/raakeshkamal/pico-stock-ticker/pkg/session"
	"github.com/raakeshkamal/pico-stock-ticker/pkg/ticker"
	"github.com/raakeshkamal/pico-stock-ticker/pkg/transport"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "stock-ticker: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	opts, err := parseFlags(args)
	if err != nil {
		return err
	}
	cfg, err := opts.clientConfig()
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var shell *interactive.Shell
	logOut := io.Writer(os.Stderr)
	if opts.Interactive {
		// The shell is created first so logs go through readline.
		shell, err = interactive.New(interactive.Config{})
		if err != nil {
			return err
		}
		logOut = shell.Stderr()
	}

	level, _ := cfg.Log.SlogLevel()
	logger := slog.New(slog.NewTextHandler(logOut, &slog.HandlerOptions{Level: level}))

	plog, closeLog, err := protocolLogger(cfg.Log, logger, level)
	if err != nil {
		return err
	}
	defer closeLog()

	opener, err := newOpener(cfg, logger, plog)
	if err != nil {
		return err
	}

	clock := ticker.NewOffsetClock()
	out := io.Writer(os.Stdout)
	if shell != nil {
		out = shell.Stdout()
	}

	driver, err := session.New(session.Config{
		Opener:         opener,
		Token:          cfg.Token,
		Commands:       session.DefaultCommands(cfg.StockRequest()),
		CommandTimeout: cfg.Timing.CommandTimeout.Std(),
		YieldDelay:     cfg.Timing.YieldDelay.Std(),
		Backoff:        cfg.BackoffConfig(),
		Gate:           newLinkGate(logger),
		RTC:            clock,
		Renderer:       &consoleRenderer{out: out, clock: clock},
		Logger:         logger,
		ProtocolLogger: plog,
	})
	if err != nil {
		return err
	}

	logger.Info("stock ticker starting",
		"server", cfg.Server.Host,
		"discover", cfg.Server.Discover,
		"ticker", cfg.Stock.Ticker,
		"mtls", cfg.MutualTLS())

	switch {
	case shell != nil:
		shell.Configure(interactive.Config{
			Opener:         opener,
			Token:          cfg.Token,
			Timeout:        cfg.Timing.CommandTimeout.Std(),
			Stock:          cfg.StockRequest(),
			Driver:         driver,
			Format:         func(d *ticker.StockData) string { return formatStock(d, clock.Now()) },
			Logger:         logger,
			ProtocolLogger: plog,
		})
		shell.Run(ctx, cancel)
		return nil
	case cfg.Once:
		return driver.RunCycle(ctx)
	default:
		err := driver.Run(ctx)
		if errors.Is(err, context.Canceled) {
			logger.Info("stock ticker stopped")
			return nil
		}
		return err
	}
}

// newOpener builds the connection opener: a fixed host, or mDNS discovery
// when no host is configured.
func newOpener(cfg *config.Client, logger *slog.Logger, plog log.Logger) (session.Opener, error) {
	anchor, _, err := transport.LoadTrustAnchor(cfg.Server.TrustAnchor)
	if err != nil {
		return nil, err
	}

	topts := []transport.Option{
		transport.WithConnectTimeout(cfg.Timing.ConnectTimeout.Std()),
		transport.WithLogger(logger),
	}
	if plog != nil {
		topts = append(topts, transport.WithProtocolLogger(plog))
	}
	if cfg.Server.ServerName != "" {
		topts = append(topts, transport.WithServerName(cfg.Server.ServerName))
	}
	if cfg.MutualTLS() {
		id, err := cert.LoadIdentity(cfg.Server.ClientCert, cfg.Server.ClientKey)
		if err != nil {
			return nil, fmt.Errorf("client certificate: %w", err)
		}
		topts = append(topts, transport.WithClientCertificate(id.TLSCertificate()))
	}

	if cfg.Server.Host != "" {
		return session.TransportOpener{
			Host:        cfg.Server.Host,
			Port:        cfg.Server.Port,
			TrustAnchor: anchor,
			Options:     topts,
		}, nil
	}
	return &discoveryOpener{
		browser:     discovery.NewMDNSBrowser(discovery.BrowserConfig{}),
		trustAnchor: anchor,
		options:     topts,
		mutualTLS:   cfg.MutualTLS(),
		logger:      logger,
	}, nil
}

// protocolLogger opens the protocol event sinks. At debug level events are
// mirrored to the operational log.
func protocolLogger(c config.Log, logger *slog.Logger, level slog.Level) (log.Logger, func(), error) {
	var sinks []log.Logger
	closeFn := func() {}

	if c.ProtocolFile != "" {
		fl, err := log.NewFileLogger(c.ProtocolFile)
		if err != nil {
			return nil, nil, err
		}
		sinks = append(sinks, fl)
		closeFn = func() {
			if n := fl.Dropped(); n > 0 {
				logger.Warn("protocol events dropped", "count", n)
			}
			fl.Close()
		}
	}
	if level <= slog.LevelDebug {
		sinks = append(sinks, log.NewSlogAdapter(logger))
	}

	switch len(sinks) {
	case 0:
		return nil, closeFn, nil
	case 1:
		return sinks[0], closeFn, nil
	default:
		return log.NewMultiLogger(sinks...), closeFn, nil
	}
}
