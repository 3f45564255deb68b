package logger

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Config controls the output of a Logger.
type Config struct {
	Level      string // debug, info, warn, error
	Format     string // json or console
	Output     string // stdout, stderr, or a file path
	TimeFormat string // timestamp layout, RFC3339Nano when empty
}

// Logger is a thin structured front over zerolog. Warn and error lines
// are mirrored to an attached collector when one is set.
type Logger struct {
	zl   zerolog.Logger
	sink atomic.Pointer[LogCollector]
}

func New(cfg *Config) (*Logger, error) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("parse log level %q: %w", cfg.Level, err)
	}

	out, err := openOutput(cfg.Output)
	if err != nil {
		return nil, err
	}

	tf := cfg.TimeFormat
	if tf == "" {
		tf = time.RFC3339Nano
	}
	zerolog.TimeFieldFormat = tf
	if cfg.Format == "console" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: tf}
	}

	zl := zerolog.New(out).Level(level).With().Timestamp().Logger()
	return &Logger{zl: zl}, nil
}

func openOutput(name string) (io.Writer, error) {
	switch name {
	case "", "stdout":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	}
	f, err := os.OpenFile(name, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log output: %w", err)
	}
	return f, nil
}

func (l *Logger) Debug(msg string, fields ...Field) { l.emit(l.zl.Debug(), "", msg, fields) }
func (l *Logger) Info(msg string, fields ...Field)  { l.emit(l.zl.Info(), "", msg, fields) }
func (l *Logger) Warn(msg string, fields ...Field)  { l.emit(l.zl.Warn(), "warn", msg, fields) }
func (l *Logger) Error(msg string, fields ...Field) { l.emit(l.zl.Error(), "error", msg, fields) }

// emit writes the event and, for warn and error lines, mirrors the entry
// to the collector. The callsite is resolved here so both the event and
// the mirror report the same location.
func (l *Logger) emit(e *zerolog.Event, mirror, msg string, fields []Field) {
	for _, f := range fields {
		f.apply(e)
	}
	if mirror == "" {
		e.Msg(msg)
		return
	}

	at := callsite()
	e.Str("caller", at)
	e.Msg(msg)

	if sink := l.sink.Load(); sink != nil {
		kv := make(map[string]interface{}, len(fields))
		for _, f := range fields {
			kv[f.Key] = f.Value
		}
		sink.Record(mirror, msg, kv, at)
	}
}

// callsite reports the file:line of the logging call, trimmed to the last
// two path elements.
func callsite() string {
	_, file, line, ok := runtime.Caller(3)
	if !ok {
		return "unknown"
	}
	if i := strings.LastIndexByte(file, '/'); i >= 0 {
		if j := strings.LastIndexByte(file[:i], '/'); j >= 0 {
			file = file[j+1:]
		}
	}
	return file + ":" + strconv.Itoa(line)
}

// AddCollector starts mirroring warn and error lines to an aggregating
// collector. An existing collector is closed first.
func (l *Logger) AddCollector(cfg *CollectionConfig) {
	old := l.sink.Swap(NewLogCollector(cfg))
	if old != nil {
		old.Close()
	}
}

// RemoveCollector detaches the collector and flushes whatever it holds.
func (l *Logger) RemoveCollector() {
	if old := l.sink.Swap(nil); old != nil {
		old.Close()
	}
}

// Field is one typed key/value pair attached to a log line. Key and Value
// feed the collector mirror; apply writes the native zerolog form.
type Field struct {
	Key   string
	Value interface{}

	apply func(*zerolog.Event)
}

func String(key, value string) Field {
	return Field{Key: key, Value: value, apply: func(e *zerolog.Event) { e.Str(key, value) }}
}

func Int(key string, value int) Field {
	return Field{Key: key, Value: value, apply: func(e *zerolog.Event) { e.Int(key, value) }}
}

func Int64(key string, value int64) Field {
	return Field{Key: key, Value: value, apply: func(e *zerolog.Event) { e.Int64(key, value) }}
}

func Float64(key string, value float64) Field {
	return Field{Key: key, Value: value, apply: func(e *zerolog.Event) { e.Float64(key, value) }}
}

func Error(err error) Field {
	val := ""
	if err != nil {
		val = err.Error()
	}
	return Field{Key: "error", Value: val, apply: func(e *zerolog.Event) { e.Err(err) }}
}

func Duration(key string, value time.Duration) Field {
	return Field{Key: key, Value: value.String(), apply: func(e *zerolog.Event) { e.Dur(key, value) }}
}

func Strings(key string, values []string) Field {
	return Field{Key: key, Value: values, apply: func(e *zerolog.Event) { e.Strs(key, values) }}
}

func Time(key string, value time.Time) Field {
	return String(key, value.Format(time.RFC3339))
}

func Any(key string, value interface{}) Field {
	return Field{Key: key, Value: value, apply: func(e *zerolog.Event) { e.Interface(key, value) }}
}
