package commands

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raakeshkamal/pico-stock-ticker/pkg/log"
)

var base = time.Date(2026, 1, 28, 10, 15, 32, 123456000, time.UTC)

func createTestLogFile(t *testing.T, events []log.Event) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.tlog")

	logger, err := log.NewFileLogger(path)
	require.NoError(t, err)
	for _, e := range events {
		logger.Log(e)
	}
	require.NoError(t, logger.Close())
	return path
}

func readAll(t *testing.T, path string) []log.Event {
	t.Helper()
	reader, err := log.NewReader(path)
	require.NoError(t, err)
	defer reader.Close()

	var out []log.Event
	for event, err := range reader.All() {
		require.NoError(t, err)
		out = append(out, event)
	}
	return out
}

func sessionEvents() []log.Event {
	code := -4
	return []log.Event{
		{
			Timestamp:    base,
			ConnectionID: "abc12345-6789-0123-4567-890abcdef012",
			Layer:        log.LayerSession,
			Category:     log.CategoryState,
			Host:         "ticker.local",
			StateChange: &log.StateChangeEvent{
				Entity:   log.StateEntitySession,
				OldState: "CONNECTING",
				NewState: "AUTHENTICATING",
			},
		},
		{
			Timestamp:    base.Add(10 * time.Millisecond),
			ConnectionID: "abc12345-6789-0123-4567-890abcdef012",
			Direction:    log.DirectionOut,
			Layer:        log.LayerTransport,
			Category:     log.CategoryMessage,
			Host:         "ticker.local",
			RemoteAddr:   "192.168.1.10:8443",
			Frame:        &log.FrameEvent{Size: 128, Data: []byte{0xa1, 0x01}, Truncated: true},
		},
		{
			Timestamp:    base.Add(20 * time.Millisecond),
			ConnectionID: "abc12345-6789-0123-4567-890abcdef012",
			Direction:    log.DirectionIn,
			Layer:        log.LayerWire,
			Category:     log.CategoryMessage,
			Host:         "ticker.local",
			Command: &log.CommandEvent{
				Name:      "get_time",
				Payload:   map[string]any{"time": "2026-01-28 10:15:32 UTC"},
				RoundTrip: 1500 * time.Microsecond,
			},
		},
		{
			Timestamp:    base.Add(30 * time.Millisecond),
			ConnectionID: "abc12345-6789-0123-4567-890abcdef012",
			Direction:    log.DirectionIn,
			Layer:        log.LayerWire,
			Category:     log.CategoryMessage,
			Host:         "ticker.local",
			Command:      &log.CommandEvent{Name: "get_stock_data", Status: -1},
		},
		{
			Timestamp:    base.Add(2 * time.Second),
			ConnectionID: "def67890",
			Layer:        log.LayerSession,
			Category:     log.CategoryError,
			Host:         "backup.local",
			Error: &log.ErrorEventData{
				Layer:   log.LayerTransport,
				Message: "connection refused",
				Code:    &code,
				Context: "connect",
			},
		},
	}
}

func TestFormatFrameEvent(t *testing.T) {
	var buf bytes.Buffer
	formatEvent(&buf, sessionEvents()[1])
	out := buf.String()

	assert.Contains(t, out, "2026-01-28T10:15:32.133456Z [conn:abc12345] OUT TRANSPORT Frame")
	assert.Contains(t, out, "CLIENT ticker.local (192.168.1.10:8443)")
	assert.Contains(t, out, "Size: 128 bytes")
	assert.Contains(t, out, "Data: a101 (truncated)")
}

func TestFormatCommandEvent(t *testing.T) {
	var buf bytes.Buffer
	formatEvent(&buf, sessionEvents()[2])
	out := buf.String()

	assert.Contains(t, out, "IN  WIRE Command")
	assert.Contains(t, out, "Command: get_time")
	assert.Contains(t, out, "Status: OK (0)")
	assert.Contains(t, out, "Duration: 1.500ms")
	assert.Contains(t, out, `Payload: {"time":"2026-01-28 10:15:32 UTC"}`)
}

func TestFormatStateAndErrorEvents(t *testing.T) {
	var buf bytes.Buffer
	events := sessionEvents()
	formatEvent(&buf, events[0])
	formatEvent(&buf, events[4])
	out := buf.String()

	assert.Contains(t, out, "Entity: SESSION")
	assert.Contains(t, out, "CONNECTING -> AUTHENTICATING")
	assert.Contains(t, out, "[conn:def67890]")
	assert.Contains(t, out, "Message: connection refused")
	assert.Contains(t, out, "Code: -4")
	assert.Contains(t, out, "Context: connect")
}

func TestJSONValueConvertsDecodedMaps(t *testing.T) {
	decoded := map[any]any{
		"stock_data": []any{map[any]any{"Open": 1.5, uint64(7): "x"}},
	}
	data, err := json.Marshal(jsonValue(decoded))
	require.NoError(t, err)
	assert.JSONEq(t, `{"stock_data":[{"Open":1.5,"7":"x"}]}`, string(data))
}

func TestStatusName(t *testing.T) {
	assert.Equal(t, "OK", statusName(0))
	assert.Equal(t, "TIMEOUT", statusName(-1))
	assert.Equal(t, "TRANSPORT", statusName(-2))
	assert.Equal(t, "REMOTE", statusName(-3))
	assert.Equal(t, "UNKNOWN", statusName(5))
}

func TestParseFlags(t *testing.T) {
	l, err := ParseLayerFlag("Session")
	require.NoError(t, err)
	assert.Equal(t, log.LayerSession, l)
	_, err = ParseLayerFlag("service")
	assert.Error(t, err)

	d, err := ParseDirectionFlag("OUT")
	require.NoError(t, err)
	assert.Equal(t, log.DirectionOut, d)
	_, err = ParseDirectionFlag("sideways")
	assert.Error(t, err)

	c, err := ParseCategoryFlag("error")
	require.NoError(t, err)
	assert.Equal(t, log.CategoryError, c)
	_, err = ParseCategoryFlag("control")
	assert.Error(t, err)
}

func TestRunViewFilters(t *testing.T) {
	path := createTestLogFile(t, sessionEvents())

	tests := []struct {
		name   string
		filter ViewFilter
		want   int
	}{
		{"all", ViewFilter{}, 5},
		{"layer", ViewFilter{Filter: log.Filter{Layer: ptr(log.LayerWire)}}, 2},
		{"direction", ViewFilter{Filter: log.Filter{Direction: ptr(log.DirectionOut)}}, 1},
		{"category", ViewFilter{Filter: log.Filter{Category: ptr(log.CategoryError)}}, 1},
		{"command", ViewFilter{Command: "get_stock_data"}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, RunView(path, tt.filter, &buf))
			assert.Equal(t, tt.want, strings.Count(buf.String(), "[conn:"))
		})
	}
}

func TestRunViewMissingFile(t *testing.T) {
	err := RunView(filepath.Join(t.TempDir(), "missing.tlog"), ViewFilter{}, io.Discard)
	assert.ErrorContains(t, err, "failed to open log file")
}

func TestExportToJSONL(t *testing.T) {
	path := createTestLogFile(t, sessionEvents())
	out := filepath.Join(t.TempDir(), "out.jsonl")

	require.NoError(t, RunExport(path, "jsonl", out))

	f, err := os.Open(out)
	require.NoError(t, err)
	defer f.Close()

	var lines []map[string]any
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var m map[string]any
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &m))
		lines = append(lines, m)
	}
	require.NoError(t, scanner.Err())
	require.Len(t, lines, 5)

	cmd, ok := lines[2]["Command"].(map[string]any)
	require.True(t, ok, "command event exported: %v", lines[2])
	assert.Equal(t, "get_time", cmd["Name"])
	assert.Equal(t, map[string]any{"time": "2026-01-28 10:15:32 UTC"}, cmd["Payload"])
}

func TestExportToCSV(t *testing.T) {
	path := createTestLogFile(t, sessionEvents())
	out := filepath.Join(t.TempDir(), "out.csv")

	require.NoError(t, RunExport(path, "csv", out))

	f, err := os.Open(out)
	require.NoError(t, err)
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 6)
	assert.Equal(t, []string{"timestamp", "connection_id", "direction", "layer", "category", "role", "host", "type", "command", "status"}, records[0])
	assert.Equal(t, []string{
		"2026-01-28T10:15:32.153456Z",
		"abc12345-6789-0123-4567-890abcdef012",
		"IN", "WIRE", "MESSAGE", "CLIENT", "ticker.local", "Command", "get_stock_data", "-1",
	}, records[4])
}

func TestExportUnknownFormat(t *testing.T) {
	path := createTestLogFile(t, sessionEvents())
	err := RunExport(path, "xml", "")
	assert.ErrorContains(t, err, "unknown format")
}

func TestRunFilter(t *testing.T) {
	path := createTestLogFile(t, sessionEvents())

	tests := []struct {
		name string
		opts FilterOptions
		want int
	}{
		{"connection", FilterOptions{ConnID: "def67890"}, 1},
		{"host", FilterOptions{Host: "ticker.local"}, 4},
		{"time range", FilterOptions{TimeStart: "2026-01-28T10:15:33Z"}, 1},
		{"time end", FilterOptions{TimeEnd: "2026-01-28T10:15:33Z"}, 4},
		{"layer and direction", FilterOptions{Layer: "wire", Direction: "in"}, 2},
		{"category", FilterOptions{Category: "state"}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.opts.Output = filepath.Join(t.TempDir(), "filtered.tlog")
			n, err := RunFilter(path, tt.opts)
			require.NoError(t, err)
			assert.Equal(t, tt.want, n)
			assert.Len(t, readAll(t, tt.opts.Output), tt.want)
		})
	}
}

func TestRunFilterInvalidOptions(t *testing.T) {
	path := createTestLogFile(t, sessionEvents())
	out := filepath.Join(t.TempDir(), "filtered.tlog")

	_, err := RunFilter(path, FilterOptions{Output: out, TimeStart: "yesterday"})
	assert.ErrorContains(t, err, "time-start")
	_, err = RunFilter(path, FilterOptions{Output: out, Layer: "service"})
	assert.ErrorContains(t, err, "invalid layer")
}

func TestRunStats(t *testing.T) {
	path := createTestLogFile(t, sessionEvents())

	var buf bytes.Buffer
	require.NoError(t, RunStats(path, &buf))
	out := buf.String()

	assert.Contains(t, out, "Total Events: 5")
	assert.Contains(t, out, "WIRE:        2")
	assert.Contains(t, out, "get_stock_data:  1 (failed 1)")
	assert.Contains(t, out, "get_time:        1 (failed 0), avg 1.500ms")
	assert.Contains(t, out, "Connections: 2")
	assert.Contains(t, out, "Host: ticker.local")
	assert.Contains(t, out, "Remote: 192.168.1.10:8443")
	assert.Contains(t, out, "Errors: 1")
	assert.Contains(t, out, "Duration:   2s")
}

func TestStatsEmptyLog(t *testing.T) {
	path := createTestLogFile(t, nil)

	var buf bytes.Buffer
	require.NoError(t, RunStats(path, &buf))
	assert.Contains(t, buf.String(), "Total Events: 0")
	assert.NotContains(t, buf.String(), "Time Range")
}

func ptr[T any](v T) *T { return &v }
