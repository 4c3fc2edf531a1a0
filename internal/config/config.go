// Package config loads the YAML configuration of the ticker commands.
//
// Both commands start from Default*(), overlay the file named by -config
// and then apply explicit flags. Durations are written as Go duration
// strings ("5s", "250ms").
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Validation errors.
var (
	ErrInvalidPort     = errors.New("port must be 1-65535")
	ErrMissingHost     = errors.New("server host is required unless discovery is enabled")
	ErrMissingAnchor   = errors.New("trust anchor is required")
	ErrMissingKeyPair  = errors.New("certificate and key must be set together")
	ErrInvalidTiming   = errors.New("timeouts must be positive")
	ErrInvalidLogLevel = errors.New("unknown log level")
)

// Duration is a time.Duration read from a YAML duration string.
type Duration time.Duration

// UnmarshalYAML accepts "5s" style strings and plain integers (seconds).
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	if v, err := time.ParseDuration(s); err == nil {
		*d = Duration(v)
		return nil
	}
	var secs int64
	if err := node.Decode(&secs); err != nil {
		return fmt.Errorf("line %d: invalid duration %q", node.Line, s)
	}
	*d = Duration(time.Duration(secs) * time.Second)
	return nil
}

// MarshalYAML writes the duration string.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Log configures operational and protocol logging.
type Log struct {
	// Level is debug, info, warn or error.
	Level string `yaml:"level"`

	// ProtocolFile, when set, receives CBOR protocol events.
	ProtocolFile string `yaml:"protocol_file,omitempty"`
}

// SlogLevel parses Level.
func (l Log) SlogLevel() (slog.Level, error) {
	return ParseLevel(l.Level)
}

// ParseLevel maps a level name to an slog.Level. Empty means info.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("%w: %q", ErrInvalidLogLevel, s)
	}
}

func load(path string, into any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, into); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func validPort(p int) bool {
	return p > 0 && p <= 65535
}
