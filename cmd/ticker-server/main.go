// Command ticker-server is the reference data server for ticker devices.
//
// It serves ping, get_time and get_stock_data over TLS with 4-byte
// length-prefixed CBOR frames. Prices come from a deterministic synthetic
// source. A client CA enables mutual TLS.
//
// Usage:
//
//	ticker-server [flags]
//
// Flags:
//
//	-config string        Configuration file path
//	-addr string          Listen address (default ":8443")
//	-token string         Token devices must present
//	-cert string          Server certificate (default "certs/server/server.crt")
//	-key string           Server key (default "certs/server/server.key")
//	-client-ca string     Require client certificates signed by this CA
//	-location string      Time zone reported by get_time (default "UTC")
//	-echo                 Answer every request with {status: "received", echo}
//	-advertise            Advertise the server over mDNS
//	-instance string      mDNS instance name (default "ticker-server")
//	-seed int             Seed of the synthetic price source
//	-log-level string     Log level: debug, info, warn, error (default "info")
//	-protocol-log string  Write CBOR protocol events to this file
//	-gen-certs string     Write a new CA, server and client certificate to this directory and exit
//	-hosts string         Comma-separated server certificate hosts for -gen-certs (default "localhost,127.0.0.1")
//
// Examples:
//
//	# Create certificates, then serve with mutual TLS
//	ticker-server -gen-certs certs -hosts ticker.local,192.168.1.10
//	ticker-server -token s3cret -client-ca certs/ca/ca.crt -advertise
package main

import (
	"context"
	"crypto/x509"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/raakeshkamal/pico-stock-ticker/internal/config"
	"github.com/raakeshkamal/pico-stock-ticker/pkg/cert"
	"github.com/raakeshkamal/pico-stock-ticker/pkg/discovery"
	"github.com/raakeshkamal/pico-stock-ticker/pkg/log"
	"github.com/raakeshkamal/pico-stock-ticker/pkg/market"
	"github.com/raakeshkamal/pico-stock-ticker/pkg/tickerserver"
	"github.com/raakeshkamal/pico-stock-ticker/pkg/transport"
)

type options struct {
	ConfigFile  string
	Addr        string
	Token       string
	Cert        string
	Key         string
	ClientCA    string
	Location    string
	Echo        bool
	Advertise   bool
	Instance    string
	Seed        int64
	LogLevel    string
	ProtocolLog string
	GenCerts    string
	Hosts       string

	set map[string]bool
}

func parseFlags(args []string) (*options, error) {
	o := &options{set: make(map[string]bool)}
	fs := flag.NewFlagSet("ticker-server", flag.ContinueOnError)

	fs.StringVar(&o.ConfigFile, "config", "", "Configuration file path")
	fs.StringVar(&o.Addr, "addr", ":8443", "Listen address")
	fs.StringVar(&o.Token, "token", "", "Token devices must present")
	fs.StringVar(&o.Cert, "cert", "certs/server/server.crt", "Server certificate")
	fs.StringVar(&o.Key, "key", "certs/server/server.key", "Server key")
	fs.StringVar(&o.ClientCA, "client-ca", "", "Require client certificates signed by this CA")
	fs.StringVar(&o.Location, "location", "UTC", "Time zone reported by get_time")
	fs.BoolVar(&o.Echo, "echo", false, "Answer every request with {status: received, echo}")
	fs.BoolVar(&o.Advertise, "advertise", false, "Advertise the server over mDNS")
	fs.StringVar(&o.Instance, "instance", tickerserver.DefaultInstanceName, "mDNS instance name")
	fs.Int64Var(&o.Seed, "seed", 0, "Seed of the synthetic price source")
	fs.StringVar(&o.LogLevel, "log-level", "info", "Log level: debug, info, warn, error")
	fs.StringVar(&o.ProtocolLog, "protocol-log", "", "Write CBOR protocol events to this file")
	fs.StringVar(&o.GenCerts, "gen-certs", "", "Write a new PKI to this directory and exit")
	fs.StringVar(&o.Hosts, "hosts", "localhost,127.0.0.1", "Server certificate hosts for -gen-certs")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	fs.Visit(func(f *flag.Flag) { o.set[f.Name] = true })
	return o, nil
}

func (o *options) serverConfig() (*config.ServerConfig, error) {
	cfg := config.DefaultServer()
	if o.ConfigFile != "" {
		loaded, err := config.LoadServer(o.ConfigFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	overrides := map[string]func(){
		"addr":         func() { cfg.Address = o.Addr },
		"token":        func() { cfg.Token = o.Token },
		"cert":         func() { cfg.TLS.Cert = o.Cert },
		"key":          func() { cfg.TLS.Key = o.Key },
		"client-ca":    func() { cfg.TLS.ClientCA = o.ClientCA },
		"location":     func() { cfg.Location = o.Location },
		"echo":         func() { cfg.Echo = o.Echo },
		"advertise":    func() { cfg.Advertise.Enabled = o.Advertise },
		"instance":     func() { cfg.Advertise.Instance = o.Instance },
		"seed":         func() { cfg.Market.Seed = o.Seed },
		"log-level":    func() { cfg.Log.Level = o.LogLevel },
		"protocol-log": func() { cfg.Log.ProtocolFile = o.ProtocolLog },
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

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "ticker-server: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	opts, err := parseFlags(args)
	if err != nil {
		return err
	}
	if opts.GenCerts != "" {
		return generateCerts(opts.GenCerts, opts.Hosts)
	}

	cfg, err := opts.serverConfig()
	if err != nil {
		return err
	}
	level, _ := cfg.Log.SlogLevel()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	srv, closeLog, err := newServer(cfg, logger)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := srv.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()

	logger.Info("shutting down", "sessions", srv.Sessions())
	return srv.Stop()
}

func newServer(cfg *config.ServerConfig, logger *slog.Logger) (*tickerserver.Server, func(), error) {
	id, err := cert.LoadIdentity(cfg.TLS.Cert, cfg.TLS.Key)
	if err != nil {
		return nil, nil, fmt.Errorf("server certificate: %w", err)
	}
	var clientCAs *x509.CertPool
	if cfg.TLS.ClientCA != "" {
		_, pool, err := transport.LoadTrustAnchor(cfg.TLS.ClientCA)
		if err != nil {
			return nil, nil, fmt.Errorf("client CA: %w", err)
		}
		clientCAs = pool
	}
	tlsConf, err := transport.NewServerTLSConfig(id.TLSCertificate(), clientCAs)
	if err != nil {
		return nil, nil, err
	}

	loc, err := cfg.TimeLocation()
	if err != nil {
		return nil, nil, err
	}

	closeLog := func() {}
	var plog log.Logger
	if cfg.Log.ProtocolFile != "" {
		fl, err := log.NewFileLogger(cfg.Log.ProtocolFile)
		if err != nil {
			return nil, nil, err
		}
		plog = fl
		closeLog = func() { fl.Close() }
	}

	var adv discovery.Advertiser
	if cfg.Advertise.Enabled {
		adv = discovery.NewMDNSAdvertiser(discovery.AdvertiserConfig{Interface: cfg.Advertise.Interface})
	}

	srv, err := tickerserver.New(tickerserver.Config{
		TLSConfig: tlsConf,
		Address:   cfg.Address,
		Token:     cfg.Token,
		Source: market.NewSynthetic(market.SyntheticConfig{
			Seed:       cfg.Market.Seed,
			MaxPoints:  cfg.Market.MaxPoints,
			Volatility: cfg.Market.Volatility,
		}),
		Location:       loc,
		Echo:           cfg.Echo,
		Advertiser:     adv,
		InstanceName:   cfg.Advertise.Instance,
		Logger:         logger,
		ProtocolLogger: plog,
	})
	if err != nil {
		closeLog()
		return nil, nil, err
	}
	if cfg.Token == "" && !cfg.Echo {
		logger.Warn("no token configured, every device is accepted")
	}
	return srv, closeLog, nil
}

func generateCerts(dir, hosts string) error {
	var list []string
	for _, h := range strings.Split(hosts, ",") {
		if h = strings.TrimSpace(h); h != "" {
			list = append(list, h)
		}
	}
	pki, err := cert.GeneratePKI(list, "pico-ticker")
	if err != nil {
		return err
	}
	if err := pki.WriteDir(dir); err != nil {
		return err
	}
	fmt.Printf("Wrote CA, server (%s) and client certificates to %s\n", strings.Join(list, ", "), dir)
	return nil
}
