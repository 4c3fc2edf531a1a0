package log

// Logger receives protocol events from transport handles, the command layer,
// the session driver and the reference server. Log is called inline on those
// paths and may be called from several goroutines at once, so implementations
// must be safe for concurrent use and should not block.
type Logger interface {
	Log(event Event)
}

// NoopLogger drops every event. The zero value is ready to use.
type NoopLogger struct{}

func (NoopLogger) Log(Event) {}

// OrNoop returns l, or NoopLogger when l is nil.
func OrNoop(l Logger) Logger {
	if l == nil {
		return NoopLogger{}
	}
	return l
}

var _ Logger = NoopLogger{}
