// Package interactive provides the interactive shell of the stock-ticker
// device command.
//
// The shell keeps one authenticated connection open between commands so
// individual requests can be tried against a server by hand.
package interactive

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"github.com/raakeshkamal/pico-stock-ticker/pkg/interaction"
	"github.com/raakeshkamal/pico-stock-ticker/pkg/log"
	"github.com/raakeshkamal/pico-stock-ticker/pkg/session"
	"github.com/raakeshkamal/pico-stock-ticker/pkg/ticker"
	"github.com/raakeshkamal/pico-stock-ticker/pkg/wire"
)

// Config configures a Shell.
type Config struct {
	Opener  session.Opener
	Token   string
	Timeout time.Duration

	// Stock is the request used by "stock" when no arguments are given.
	Stock wire.StockDataRequest

	// Driver runs full sessions for "cycle". Optional.
	Driver *session.Driver

	// Format renders a record. Nil prints a one-line summary.
	Format func(*ticker.StockData) string

	Logger         *slog.Logger
	ProtocolLogger log.Logger
}

// Shell is the interactive command loop.
type Shell struct {
	config Config
	rl     *readline.Instance
	out    io.Writer

	conn   session.Conn
	client *interaction.Client
}

// New creates a shell reading from the terminal.
func New(config Config) (*Shell, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "ticker> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		AutoComplete: readline.NewPrefixCompleter(
			readline.PcItem("connect"),
			readline.PcItem("close"),
			readline.PcItem("ping"),
			readline.PcItem("time"),
			readline.PcItem("stock"),
			readline.PcItem("send"),
			readline.PcItem("cycle"),
			readline.PcItem("show"),
			readline.PcItem("state"),
			readline.PcItem("help"),
			readline.PcItem("quit"),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}
	s := newShell(config, rl.Stdout())
	s.rl = rl
	return s, nil
}

func newShell(config Config, out io.Writer) *Shell {
	if config.Timeout <= 0 {
		config.Timeout = session.DefaultCommandTimeout
	}
	if config.Stock.Ticker == "" {
		config.Stock = session.DefaultStockRequest
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Shell{config: config, out: out}
}

// Configure replaces the configuration of a shell created before the
// session it drives.
func (s *Shell) Configure(config Config) {
	s.config = newShell(config, s.out).config
}

// Stdout returns a writer that keeps log output off the prompt line.
func (s *Shell) Stdout() io.Writer {
	return s.rl.Stdout()
}

// Stderr returns a writer that keeps log output off the prompt line.
func (s *Shell) Stderr() io.Writer {
	return s.rl.Stderr()
}

// Run reads commands until quit, EOF or ctx ends.
func (s *Shell) Run(ctx context.Context, cancel context.CancelFunc) {
	defer s.rl.Close()
	defer s.disconnect()

	s.printHelp()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := s.rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			fmt.Fprintln(s.out, "Exiting...")
			cancel()
			return
		}
		if s.execute(ctx, line) {
			cancel()
			return
		}
	}
}

// execute runs one command line and reports whether the shell should exit.
func (s *Shell) execute(ctx context.Context, line string) bool {
	parts := strings.Fields(strings.TrimSpace(line))
	if len(parts) == 0 {
		return false
	}
	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	var err error
	switch cmd {
	case "help", "?":
		s.printHelp()
	case "connect", "c":
		err = s.connect(ctx)
	case "close":
		s.disconnect()
		fmt.Fprintln(s.out, "Closed")
	case "ping", "p":
		err = s.cmdPing(ctx)
	case "time", "t":
		err = s.cmdTime(ctx)
	case "stock", "s":
		err = s.cmdStock(ctx, args)
	case "send":
		err = s.cmdSend(ctx, args)
	case "cycle":
		err = s.cmdCycle(ctx)
	case "show":
		s.cmdShow()
	case "state":
		s.cmdState()
	case "quit", "exit", "q":
		fmt.Fprintln(s.out, "Exiting...")
		return true
	default:
		fmt.Fprintf(s.out, "Unknown command: %s (type 'help' for commands)\n", cmd)
	}
	if err != nil {
		fmt.Fprintf(s.out, "Error: %v\n", err)
	}
	return false
}

func (s *Shell) printHelp() {
	fmt.Fprintln(s.out, `
Ticker Commands:
  Connection:
    connect                     - Open and authenticate a connection
    close                       - Close the connection

  Requests (connect on demand):
    ping                        - Send ping
    time                        - Request and parse the server time
    stock [ticker [dur [int]]]  - Request stock data
    send <command> [k=v ...]    - Send any command with a flat payload

  Device:
    cycle                       - Run one full session
    show                        - Show the current record
    state                       - Show the session state

  General:
    help                        - Show this help
    quit                        - Exit`)
}

func (s *Shell) connect(ctx context.Context) error {
	s.disconnect()

	conn, err := s.config.Opener.Open(ctx)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	client := interaction.NewClient(conn, interaction.ClientConfig{
		Timeout:        s.config.Timeout,
		Logger:         s.config.Logger,
		ProtocolLogger: s.config.ProtocolLogger,
		ConnectionID:   conn.ID(),
	})
	if err := client.Authenticate(ctx, s.config.Token); err != nil {
		conn.Close()
		return fmt.Errorf("authenticate: %w", err)
	}
	s.conn, s.client = conn, client
	fmt.Fprintf(s.out, "Connected (%s)\n", conn.ID())
	return nil
}

func (s *Shell) disconnect() {
	if s.conn != nil {
		s.conn.Close()
		s.conn, s.client = nil, nil
	}
}

// send issues a command, connecting first when needed. A transport
// failure drops the connection so the next command reconnects.
func (s *Shell) send(ctx context.Context, name string, payload any) (wire.Document, error) {
	if s.client == nil {
		if err := s.connect(ctx); err != nil {
			return nil, err
		}
	}
	doc, err := s.client.Send(ctx, name, payload)
	if err != nil {
		s.disconnect()
		return nil, err
	}
	if err := interaction.RemoteError(doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func (s *Shell) cmdPing(ctx context.Context) error {
	start := time.Now()
	doc, err := s.send(ctx, wire.CommandPing, nil)
	if err != nil {
		return err
	}
	pong, _ := doc.Bool(wire.KeyPong)
	fmt.Fprintf(s.out, "pong=%t (%s)\n", pong, time.Since(start).Round(time.Millisecond))
	return nil
}

func (s *Shell) cmdTime(ctx context.Context) error {
	doc, err := s.send(ctx, wire.CommandGetTime, nil)
	if err != nil {
		return err
	}
	raw, ok := doc.String(wire.KeyTime)
	if !ok {
		return fmt.Errorf("reply has no %s", wire.KeyTime)
	}
	dt, err := ticker.ParseServerTime(raw)
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "%s (%s)\n", dt, dt.Weekday())
	return nil
}

func (s *Shell) cmdStock(ctx context.Context, args []string) error {
	req := s.config.Stock
	if len(args) > 0 {
		req.Ticker = strings.ToUpper(args[0])
	}
	if len(args) > 1 {
		req.Duration = args[1]
	}
	if len(args) > 2 {
		req.Interval = args[2]
	}
	doc, err := s.send(ctx, wire.CommandGetStockData, req.Document())
	if err != nil {
		return err
	}
	data, err := ticker.ParseStockData(doc)
	if err != nil {
		return err
	}
	s.printStock(data)
	return nil
}

func (s *Shell) cmdSend(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: send <command> [key=value ...]")
	}
	payload, err := parseAssignments(args[1:])
	if err != nil {
		return err
	}
	var p any
	if len(payload) > 0 {
		p = payload
	}
	if s.client == nil {
		if err := s.connect(ctx); err != nil {
			return err
		}
	}
	// Error replies are printed, not treated as failures.
	doc, err := s.client.Send(ctx, args[0], p)
	if err != nil {
		s.disconnect()
		return err
	}
	printDocument(s.out, doc, "")
	return nil
}

func (s *Shell) cmdCycle(ctx context.Context) error {
	if s.config.Driver == nil {
		return fmt.Errorf("no session driver")
	}
	start := time.Now()
	if err := s.config.Driver.RunCycle(ctx); err != nil {
		return err
	}
	fmt.Fprintf(s.out, "Cycle complete (%s)\n", time.Since(start).Round(time.Millisecond))
	s.cmdShow()
	return nil
}

func (s *Shell) cmdShow() {
	if s.config.Driver == nil {
		fmt.Fprintln(s.out, "No session driver")
		return
	}
	data := s.config.Driver.Store().Load()
	if data == nil {
		fmt.Fprintln(s.out, "No data yet")
		return
	}
	s.printStock(data)
}

func (s *Shell) cmdState() {
	if s.config.Driver == nil {
		fmt.Fprintln(s.out, "No session driver")
		return
	}
	connected := "no"
	if s.conn != nil {
		connected = s.conn.ID()
	}
	fmt.Fprintf(s.out, "Session:    %s\n", s.config.Driver.State())
	fmt.Fprintf(s.out, "Records:    %d\n", s.config.Driver.Store().Version())
	fmt.Fprintf(s.out, "Shell conn: %s\n", connected)
}

func (s *Shell) printStock(d *ticker.StockData) {
	if s.config.Format != nil {
		fmt.Fprintln(s.out, s.config.Format(d))
		return
	}
	fmt.Fprintf(s.out, "%s %.2f %+.2f (%+.2f%%) %d points, last %s\n",
		d.Symbol, d.CurrentPrice, d.PriceChange, d.PercentChange, d.Len(), d.Timestamp)
}

// parseAssignments turns key=value arguments into a payload. Values that
// parse as integers, floats or booleans keep that type.
func parseAssignments(args []string) (wire.Document, error) {
	doc := wire.Document{}
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid argument %q, want key=value", arg)
		}
		doc[key] = parseValue(value)
	}
	return doc, nil
}

func parseValue(s string) any {
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	return s
}

func printDocument(w io.Writer, doc wire.Document, indent string) {
	keys := make([]string, 0, len(doc))
	for k := range doc {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if nested, ok := wire.AsDocument(doc[k]); ok {
			fmt.Fprintf(w, "%s%s:\n", indent, k)
			printDocument(w, nested, indent+"  ")
			continue
		}
		if list, ok := doc[k].([]any); ok {
			fmt.Fprintf(w, "%s%s: [%d items]\n", indent, k, len(list))
			continue
		}
		fmt.Fprintf(w, "%s%s: %v\n", indent, k, doc[k])
	}
}
