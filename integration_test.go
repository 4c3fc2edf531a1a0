package ticker_test

import (
	"context"
	"crypto/x509"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/raakeshkamal/pico-stock-ticker/pkg/cert"
	"github.com/raakeshkamal/pico-stock-ticker/pkg/connection"
	"github.com/raakeshkamal/pico-stock-ticker/pkg/discovery"
	"github.com/raakeshkamal/pico-stock-ticker/pkg/log"
	"github.com/raakeshkamal/pico-stock-ticker/pkg/session"
	"github.com/raakeshkamal/pico-stock-ticker/pkg/ticker"
	"github.com/raakeshkamal/pico-stock-ticker/pkg/tickerserver"
	"github.com/raakeshkamal/pico-stock-ticker/pkg/transport"
)

var serverNow = time.Date(2025, 6, 6, 12, 30, 15, 0, time.UTC)

var localResolver = transport.StaticResolver{
	"localhost":    {"127.0.0.1"},
	"server.local": {"127.0.0.1"},
}

// testRTC records the times the driver sets.
type testRTC struct {
	mu  sync.Mutex
	set []ticker.DateTime
}

func (r *testRTC) SetDateTime(d ticker.DateTime) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.set = append(r.set, d)
	return nil
}

func (r *testRTC) last() (ticker.DateTime, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.set) == 0 {
		return ticker.DateTime{}, false
	}
	return r.set[len(r.set)-1], true
}

type harness struct {
	pki    *cert.PKI
	server *tickerserver.Server
}

func startHarness(t *testing.T, mutual bool) *harness {
	t.Helper()

	pki, err := cert.GeneratePKI([]string{"server.local", "localhost", "127.0.0.1"}, "pico-ticker")
	if err != nil {
		t.Fatalf("Failed to generate PKI: %v", err)
	}
	var clientCAs *x509.CertPool
	if mutual {
		clientCAs = pki.CA.Pool()
	}
	tlsConf, err := transport.NewServerTLSConfig(pki.Server.TLSCertificate(), clientCAs)
	if err != nil {
		t.Fatalf("Failed to create TLS config: %v", err)
	}

	srv, err := tickerserver.New(tickerserver.Config{
		TLSConfig: tlsConf,
		Address:   "127.0.0.1:0",
		Token:     "s3cret",
		Now:       func() time.Time { return serverNow },
	})
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	t.Cleanup(func() { srv.Stop() })

	return &harness{pki: pki, server: srv}
}

func (h *harness) opener(opts ...transport.Option) session.TransportOpener {
	return session.TransportOpener{
		Host:        "server.local",
		Port:        int(h.server.Port()),
		TrustAnchor: h.pki.CA.PEM(),
		Options: append([]transport.Option{
			transport.WithResolver(localResolver),
			transport.WithConnectTimeout(5 * time.Second),
		}, opts...),
	}
}

// TestE2E_Session runs one full device session against the reference
// server with mutual TLS.
func TestE2E_Session(t *testing.T) {
	h := startHarness(t, true)
	rtc := &testRTC{}
	plog := &log.MemoryLogger{}

	var states []session.State
	driver, err := session.New(session.Config{
		Opener:         h.opener(transport.WithClientCertificate(h.pki.Client.TLSCertificate())),
		Token:          "s3cret",
		YieldDelay:     time.Millisecond,
		RTC:            rtc,
		ProtocolLogger: plog,
		OnStateChange: func(_, s session.State) {
			states = append(states, s)
		},
	})
	if err != nil {
		t.Fatalf("Failed to create driver: %v", err)
	}

	if err := driver.RunCycle(context.Background()); err != nil {
		t.Fatalf("Cycle failed: %v", err)
	}

	data := driver.Store().Load()
	if data == nil {
		t.Fatal("No record published")
	}
	if data.Symbol != "AAPL" {
		t.Errorf("Symbol mismatch: expected AAPL, got %s", data.Symbol)
	}
	if data.Len() != 24 {
		t.Errorf("History length: expected 24, got %d", data.Len())
	}
	if data.HighPrice < data.LowPrice {
		t.Errorf("High %v below low %v", data.HighPrice, data.LowPrice)
	}

	dt, ok := rtc.last()
	if !ok {
		t.Fatal("RTC was not set")
	}
	if !dt.Time().Equal(serverNow) {
		t.Errorf("RTC time: expected %v, got %v", serverNow, dt.Time())
	}

	want := []session.State{session.StateConnecting, session.StateAuthenticating, session.StateCommandLoop, session.StateClosing}
	if len(states) != len(want) {
		t.Fatalf("States: expected %v, got %v", want, states)
	}
	for i := range want {
		if states[i] != want[i] {
			t.Errorf("State %d: expected %s, got %s", i, want[i], states[i])
		}
	}

	var commands []string
	for _, e := range plog.Events() {
		if e.Command != nil {
			commands = append(commands, e.Command.Name)
			if e.Command.Status != 0 {
				t.Errorf("Command %s status %d", e.Command.Name, e.Command.Status)
			}
		}
	}
	wantCommands := []string{"auth", "ping", "get_time", "get_stock_data"}
	if len(commands) != len(wantCommands) {
		t.Fatalf("Commands: expected %v, got %v", wantCommands, commands)
	}
	for i := range wantCommands {
		if commands[i] != wantCommands[i] {
			t.Errorf("Command %d: expected %s, got %s", i, wantCommands[i], commands[i])
		}
	}
}

// TestE2E_WrongToken checks that a rejected device publishes nothing.
func TestE2E_WrongToken(t *testing.T) {
	h := startHarness(t, false)

	driver, err := session.New(session.Config{Opener: h.opener(), Token: "wrong"})
	if err != nil {
		t.Fatalf("Failed to create driver: %v", err)
	}
	err = driver.RunCycle(context.Background())
	if err == nil {
		t.Fatal("Expected authentication failure")
	}
	if driver.Store().Load() != nil {
		t.Error("Record published after failed authentication")
	}
}

// TestE2E_Reconnection checks that the driver keeps retrying until the
// server is reachable, then publishes.
func TestE2E_Reconnection(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	h := startHarness(t, false)
	direct := h.opener()

	var attempts atomic.Int32
	opener := session.OpenerFunc(func(ctx context.Context) (session.Conn, error) {
		if attempts.Add(1) <= 2 {
			return nil, &transport.Error{Code: transport.CodeConnection, Op: "connect", Err: errors.New("connection refused")}
		}
		return direct.Open(ctx)
	})

	driver, err := session.New(session.Config{
		Opener:     opener,
		Token:      "s3cret",
		YieldDelay: -1,
		Backoff:    connection.BackoffConfig{Initial: 10 * time.Millisecond},
	})
	if err != nil {
		t.Fatalf("Failed to create driver: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- driver.Run(ctx) }()

	select {
	case <-driver.Store().Updated():
	case <-ctx.Done():
		t.Fatalf("No record after %d attempts", attempts.Load())
	}
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Run returned %v, expected context.Canceled", err)
	}
	if n := attempts.Load(); n < 3 {
		t.Errorf("Expected at least 3 attempts, got %d", n)
	}
}

// TestE2E_ServerGoneKeepsRecord checks that a failed cycle leaves the last
// good record in place.
func TestE2E_ServerGoneKeepsRecord(t *testing.T) {
	h := startHarness(t, false)

	driver, err := session.New(session.Config{Opener: h.opener(), Token: "s3cret", YieldDelay: -1})
	if err != nil {
		t.Fatalf("Failed to create driver: %v", err)
	}
	if err := driver.RunCycle(context.Background()); err != nil {
		t.Fatalf("First cycle failed: %v", err)
	}
	first := driver.Store().Load()
	version := driver.Store().Version()

	h.server.Stop()

	if err := driver.RunCycle(context.Background()); err == nil {
		t.Fatal("Expected cycle against a stopped server to fail")
	}
	if driver.Store().Load() != first {
		t.Error("Record replaced by a failed cycle")
	}
	if driver.Store().Version() != version {
		t.Errorf("Version changed: %d -> %d", version, driver.Store().Version())
	}
}

// TestE2E_Discovery advertises the server over mDNS and finds it again.
func TestE2E_Discovery(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	advertiser := discovery.NewMDNSAdvertiser(discovery.AdvertiserConfig{})
	defer advertiser.Stop()

	info := &discovery.ServiceInfo{
		InstanceName: "ticker-e2e",
		Port:         18443,
		Commands:     []string{"get_stock_data", "get_time", "ping"},
	}
	if err := advertiser.Advertise(ctx, info); err != nil {
		t.Skipf("mDNS not available: %v", err)
	}

	// Give mDNS time to propagate
	time.Sleep(500 * time.Millisecond)

	browser := discovery.NewMDNSBrowser(discovery.BrowserConfig{BrowseTimeout: 5 * time.Second})
	defer browser.Stop()

	found, err := browser.FindFirst(ctx)
	if err != nil {
		t.Skipf("mDNS browse found nothing: %v", err)
	}
	if found.Port != 18443 {
		t.Errorf("Port mismatch: expected 18443, got %d", found.Port)
	}
	if !found.Supports("get_stock_data") {
		t.Errorf("Commands not advertised: %v", found.Commands)
	}
}
