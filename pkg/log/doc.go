// Package log provides structured protocol logging for the stock ticker
// client and server.
//
// This package defines the Logger interface and Event types for capturing
// protocol-level events at multiple layers (transport, wire, session).
// It is separate from operational logging (slog) - protocol capture provides
// a complete machine-readable event trace for debugging and analysis.
//
// # Basic Usage
//
// Applications configure logging by providing a Logger implementation:
//
//	// For development: log to console via slog
//	opts = append(opts, transport.WithLogger(log.NewSlogAdapter(slog.Default())))
//
//	// For the field: write to binary file
//	fl, _ := log.NewFileLogger("/var/log/ticker/device.tlog")
//
//	// Both: use MultiLogger
//	logger := log.NewMultiLogger(log.NewSlogAdapter(slog.Default()), fl)
//
// # Event Types
//
// Events are captured at multiple layers:
//   - Transport: Raw frame bytes (FrameEvent)
//   - Wire: Named commands and their outcome (CommandEvent)
//   - Session: Connection and session state changes (StateChangeEvent)
//
// Errors at any layer have a dedicated event type.
//
// # File Format
//
// Log files are a sequence of CBOR-encoded events. Reader streams them back
// with optional filtering.
package log
