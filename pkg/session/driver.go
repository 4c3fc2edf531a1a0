package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/raakeshkamal/pico-stock-ticker/pkg/connection"
	"github.com/raakeshkamal/pico-stock-ticker/pkg/interaction"
	"github.com/raakeshkamal/pico-stock-ticker/pkg/log"
	"github.com/raakeshkamal/pico-stock-ticker/pkg/ticker"
	"github.com/raakeshkamal/pico-stock-ticker/pkg/transport"
	"github.com/raakeshkamal/pico-stock-ticker/pkg/wire"
)

// Driver runs protocol sessions. It holds at most one connection at a time.
type Driver struct {
	config   Config
	logger   *slog.Logger
	plog     log.Logger
	backoff  *connection.Backoff
	handlers map[string]ResultFunc

	mu     sync.Mutex
	state  State
	connID string
}

// New creates a Driver.
func New(config Config) (*Driver, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	config.applyDefaults()

	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	d := &Driver{
		config:  config,
		logger:  logger,
		plog:    log.OrNoop(config.ProtocolLogger),
		backoff: connection.NewBackoffWithConfig(config.Backoff),
		state:   StateIdle,
	}
	d.handlers = map[string]ResultFunc{
		wire.CommandGetTime:      d.applyTime,
		wire.CommandGetStockData: d.applyStockData,
	}
	for name, fn := range config.Handlers {
		d.handlers[name] = fn
	}
	return d, nil
}

// State returns the current state.
func (d *Driver) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Store returns the store records are published to.
func (d *Driver) Store() *ticker.Store {
	return d.config.Store
}

// Run waits for the link gate, then runs cycles separated by the backoff
// until ctx is done. It returns ctx.Err(), or the gate's error.
func (d *Driver) Run(ctx context.Context) error {
	if d.config.Gate != nil {
		d.logger.Info("waiting for network link")
		if err := d.config.Gate.WaitLinkUp(ctx); err != nil {
			return fmt.Errorf("wait for link: %w", err)
		}
		d.logger.Info("network link up")
	}

	loop := connection.NewLoop(d.RunCycle, d.backoff)
	loop.OnStateChange(func(_, newState connection.State) {
		if newState == connection.StateWaiting {
			d.setState(StateBackoff, "")
		}
	})
	loop.OnCycleDone(func(cycle int, err error) {
		if err != nil {
			d.logger.Warn("session cycle failed", "cycle", cycle, "error", err)
			return
		}
		d.logger.Info("session cycle completed", "cycle", cycle)
	})
	return loop.Run(ctx)
}

// RunCycle runs one session: connect, authenticate, issue every command and
// close. It returns the first error; the connection is closed either way.
func (d *Driver) RunCycle(ctx context.Context) error {
	d.setState(StateConnecting, "")

	conn, err := d.config.Opener.Open(ctx)
	if err != nil {
		d.fail("open", int(transport.CodeOf(err)), err)
		d.setState(StateClosing, "connect failed")
		return fmt.Errorf("connect: %w", err)
	}

	d.mu.Lock()
	d.connID = conn.ID()
	d.mu.Unlock()

	err = d.converse(ctx, conn)

	reason := ""
	if err != nil {
		reason = err.Error()
	}
	d.setState(StateClosing, reason)
	if cerr := conn.Close(); cerr != nil {
		d.logger.Debug("close reported an error", "error", cerr)
	}

	d.mu.Lock()
	d.connID = ""
	d.mu.Unlock()
	return err
}

func (d *Driver) converse(ctx context.Context, conn Conn) error {
	client := interaction.NewClient(conn, interaction.ClientConfig{
		Timeout:        d.config.CommandTimeout,
		BufferSize:     d.config.BufferSize,
		Logger:         d.logger,
		ProtocolLogger: d.config.ProtocolLogger,
		ConnectionID:   conn.ID(),
	})

	d.setState(StateAuthenticating, "")
	if err := client.Authenticate(ctx, d.config.Token); err != nil {
		d.fail("auth", int(interaction.StatusOf(err)), err)
		return fmt.Errorf("authenticate: %w", err)
	}

	d.setState(StateCommandLoop, "")
	for i, cmd := range d.config.Commands {
		if i > 0 && d.config.YieldDelay > 0 {
			if err := sleep(ctx, d.config.YieldDelay); err != nil {
				return err
			}
		}

		reply, err := client.Send(ctx, cmd.Name, cmd.Payload)
		if err == nil {
			err = interaction.RemoteError(reply)
		}
		if err != nil {
			d.fail(cmd.Name, int(interaction.StatusOf(err)), err)
			return fmt.Errorf("command %s: %w", cmd.Name, err)
		}

		if h, ok := d.handlers[cmd.Name]; ok {
			if err := h(ctx, reply); err != nil {
				d.fail(cmd.Name, 0, err)
				return fmt.Errorf("apply %s: %w", cmd.Name, err)
			}
		}
	}
	return nil
}

// applyTime sets the RTC from a get_time reply. A missing or malformed time
// is logged and does not fail the cycle.
func (d *Driver) applyTime(_ context.Context, reply wire.Document) error {
	if d.config.RTC == nil {
		return nil
	}
	s, ok := reply.String(wire.KeyTime)
	if !ok {
		d.logger.Warn("no server_time in response")
		return nil
	}
	dt, err := ticker.ParseServerTime(s)
	if err != nil {
		d.logger.Warn("failed to parse server time", "error", err)
		return nil
	}
	if err := d.config.RTC.SetDateTime(dt); err != nil {
		d.logger.Warn("failed to set RTC time", "time", dt.String(), "error", err)
		return nil
	}
	d.logger.Info("RTC time set", "time", dt.String())
	return nil
}

// applyStockData parses a get_stock_data reply and publishes it.
func (d *Driver) applyStockData(_ context.Context, reply wire.Document) error {
	sd, err := ticker.ParseStockData(reply)
	if err != nil {
		return err
	}
	if err := d.config.Store.Publish(sd); err != nil {
		return err
	}
	d.logger.Info("stock data updated",
		"symbol", sd.Symbol,
		"points", sd.Len(),
		"price", sd.CurrentPrice,
		"change", sd.PriceChange,
		"percent", sd.PercentChange)

	if d.config.Renderer != nil {
		d.config.Renderer.Render(sd)
	}
	return nil
}

func (d *Driver) setState(s State, reason string) {
	d.mu.Lock()
	old := d.state
	d.state = s
	connID := d.connID
	d.mu.Unlock()

	if old == s {
		return
	}
	d.logger.Debug("session state", "from", old.String(), "to", s.String())
	d.plog.Log(log.StateChange(connID, log.LayerSession, log.StateEntitySession, old.String(), s.String(), reason))
	if d.config.OnStateChange != nil {
		d.config.OnStateChange(old, s)
	}
}

func (d *Driver) fail(op string, code int, err error) {
	if errors.Is(err, context.Canceled) {
		return
	}
	d.mu.Lock()
	connID := d.connID
	d.mu.Unlock()
	d.plog.Log(log.Failure(connID, log.LayerSession, code, op, err))
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
