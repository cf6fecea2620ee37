// Package logging adapts zerolog to cadence.Logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/velmie/cadence"
)

const (
	FormatConsole = "console"
	FormatJSON    = "json"

	consoleTimeFormat = "2006-01-02T15:04:05.000Z07:00"
	badKey            = "!BADKEY"
)

// Config selects the level and output format.
type Config struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Logger implements cadence.Logger on top of zerolog.
// Arguments are alternating key/value pairs.
type Logger struct {
	zl zerolog.Logger
}

var _ cadence.Logger = (*Logger)(nil)

// New builds a logger writing to w, os.Stderr when w is nil.
func New(w io.Writer, cfg Config) (*Logger, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	if w == nil {
		w = os.Stderr
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Format)) {
	case "", FormatConsole:
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: consoleTimeFormat}
	case FormatJSON:
	default:
		return nil, fmt.Errorf("logging: unknown format %q", cfg.Format)
	}

	zl := zerolog.New(w).Level(level).With().Timestamp().Logger()

	return &Logger{zl: zl}, nil
}

// FromZerolog wraps an existing zerolog logger.
func FromZerolog(zl zerolog.Logger) *Logger {
	return &Logger{zl: zl}
}

// ParseLevel maps debug, info, warn and error to zerolog levels. Empty means info.
func ParseLevel(value string) (zerolog.Level, error) {
	switch strings.ToUpper(strings.TrimSpace(value)) {
	case "":
		return zerolog.InfoLevel, nil
	case "TRACE":
		return zerolog.TraceLevel, nil
	case "DEBUG":
		return zerolog.DebugLevel, nil
	case "INFO":
		return zerolog.InfoLevel, nil
	case "WARN", "WARNING":
		return zerolog.WarnLevel, nil
	case "ERROR":
		return zerolog.ErrorLevel, nil
	default:
		return zerolog.NoLevel, fmt.Errorf("logging: unknown level %q", value)
	}
}

// Zerolog returns the underlying logger.
func (l *Logger) Zerolog() zerolog.Logger {
	return l.zl
}

// With returns a logger that adds args to every entry.
func (l *Logger) With(args ...any) *Logger {
	ctx := l.zl.With()
	for i := 0; i < len(args); i += 2 {
		key, value := pair(args, i)
		ctx = ctx.Interface(key, value)
	}

	return &Logger{zl: ctx.Logger()}
}

func (l *Logger) Debug(msg string, args ...any) { l.log(zerolog.DebugLevel, msg, args) }
func (l *Logger) Info(msg string, args ...any)  { l.log(zerolog.InfoLevel, msg, args) }
func (l *Logger) Warn(msg string, args ...any)  { l.log(zerolog.WarnLevel, msg, args) }
func (l *Logger) Error(msg string, args ...any) { l.log(zerolog.ErrorLevel, msg, args) }

func (l *Logger) log(level zerolog.Level, msg string, args []any) {
	e := l.zl.WithLevel(level)
	if e == nil {
		return
	}
	for i := 0; i < len(args); i += 2 {
		key, value := pair(args, i)
		field(e, key, value)
	}
	e.Msg(msg)
}

// pair reads the key/value pair at i. A trailing value without a key, or a non-string key,
// is logged under !BADKEY.
func pair(args []any, i int) (string, any) {
	if i+1 >= len(args) {
		return badKey, args[i]
	}
	key, ok := args[i].(string)
	if !ok {
		return badKey, args[i]
	}

	return key, args[i+1]
}

func field(e *zerolog.Event, key string, value any) {
	switch v := value.(type) {
	case nil:
		e.Interface(key, nil)
	case error:
		e.AnErr(key, v)
	case string:
		e.Str(key, v)
	case int:
		e.Int(key, v)
	case int64:
		e.Int64(key, v)
	case bool:
		e.Bool(key, v)
	case float64:
		e.Float64(key, v)
	case time.Duration:
		e.Dur(key, v)
	case time.Time:
		e.Time(key, v)
	case fmt.Stringer:
		e.Stringer(key, v)
	default:
		e.Interface(key, v)
	}
}
