package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/raakeshkamal/pico-stock-ticker/pkg/discovery"
	"github.com/raakeshkamal/pico-stock-ticker/pkg/session"
	"github.com/raakeshkamal/pico-stock-ticker/pkg/transport"
)

// linkGate waits until a non-loopback interface is up with an address.
type linkGate struct {
	interval time.Duration
	up       func() (bool, error)
	logger   *slog.Logger
}

func newLinkGate(logger *slog.Logger) *linkGate {
	return &linkGate{interval: time.Second, up: routableInterfaceUp, logger: logger}
}

// WaitLinkUp implements session.LinkGate.
func (g *linkGate) WaitLinkUp(ctx context.Context) error {
	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()

	logged := false
	for {
		ok, err := g.up()
		if err != nil {
			return fmt.Errorf("list interfaces: %w", err)
		}
		if ok {
			return nil
		}
		if !logged {
			g.logger.Debug("no usable network interface yet")
			logged = true
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func routableInterfaceUp() (bool, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return false, err
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err == nil && len(addrs) > 0 {
			return true, nil
		}
	}
	return false, nil
}

// discoveryOpener finds the server over mDNS before every connection, so a
// server that moves is picked up on the next cycle.
type discoveryOpener struct {
	browser     discovery.Browser
	trustAnchor []byte
	options     []transport.Option
	mutualTLS   bool
	logger      *slog.Logger
}

// Open implements session.Opener.
func (o *discoveryOpener) Open(ctx context.Context) (session.Conn, error) {
	svc, err := o.browser.FindFirst(ctx)
	if err != nil {
		return nil, fmt.Errorf("discover server: %w", err)
	}
	target, err := svc.Target()
	if err != nil {
		return nil, err
	}
	if svc.MutualTLS && !o.mutualTLS {
		o.logger.Warn("server requires a client certificate", "instance", svc.InstanceName)
	}

	// The advertised host name is what the certificate names. An explicit
	// -server-name later in the list still wins.
	opts := make([]transport.Option, 0, len(o.options)+1)
	if host := strings.TrimSuffix(svc.Host, "."); host != "" {
		opts = append(opts, transport.WithServerName(host))
	}
	opts = append(opts, o.options...)

	o.logger.Info("discovered server", "instance", svc.InstanceName, "target", target, "port", svc.Port)
	h, err := transport.Open(ctx, target, int(svc.Port), o.trustAnchor, opts...)
	if err != nil {
		return nil, err
	}
	return h, nil
}
