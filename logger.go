package cadence

// Logger receives engine events as a message plus alternating key/value pairs.
//
// The engine uses the keys "enrollment", "lead", "cadence", "step" and "err".
// internal/logging adapts zerolog to this interface.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	// Warn is used for failures the engine absorbs, such as side effects and dispatch.
	Warn(msg string, args ...any)
	// Error is used for dead enrollments and recovered panics.
	Error(msg string, args ...any)
}

// NopLogger discards everything. It is the default when no logger is configured.
type NopLogger struct{}

var _ Logger = NopLogger{}

func (NopLogger) Debug(string, ...any) {}
func (NopLogger) Info(string, ...any)  {}
func (NopLogger) Warn(string, ...any)  {}
func (NopLogger) Error(string, ...any) {}
