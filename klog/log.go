// Package klog is the kernel's ambient structured logging facade. Its
// shape is a deliberately trimmed version of the teacher's logiface
// package (Logger/Builder/Level/AddField) running over a single concrete
// backend, github.com/rs/zerolog, the way logiface-zerolog wires the
// generic facade to zerolog's Event type. The kernel doesn't need
// logiface's pluggable-backend generics (it ships exactly one backend), so
// klog keeps the naming and level conventions but drops the type
// parameter.
package klog

import (
	"io"
	"os"
	"time"

	"github.com/joeycumines/go-catrate"
	"github.com/rs/zerolog"
)

// Logger wraps a zerolog.Logger with the level/field naming conventions of
// logiface (Str/Int/Uint64/Dur/Err), plus rate-limited Warn output so a
// spinning faulting thread cannot flood the log, grounded on logiface's
// own dependency on go-catrate.
type Logger struct {
	zl      zerolog.Logger
	minimum Level
	limiter *catrate.Limiter
}

// Option configures a Logger, following the teacher's LoggerOption/applyLoop
// closure-over-struct pattern (eventloop/options.go).
type Option interface {
	apply(*config)
}

type config struct {
	level  Level
	writer io.Writer
}

type optionFunc func(*config)

func (f optionFunc) apply(c *config) { f(c) }

// WithLevel sets the minimum level that will be emitted.
func WithLevel(l Level) Option {
	return optionFunc(func(c *config) { c.level = l })
}

// WithWriter overrides the destination writer (default os.Stderr).
func WithWriter(w io.Writer) Option {
	return optionFunc(func(c *config) { c.writer = w })
}

func resolve(opts []Option) *config {
	c := &config{level: LevelInfo, writer: os.Stderr}
	for _, o := range opts {
		if o == nil {
			continue
		}
		o.apply(c)
	}
	return c
}

// New creates a Logger. A nil *Logger is valid and discards all output,
// matching the teacher's "zero value must not panic" rule for Event
// implementations (logiface.Event doc comment).
func New(component string, opts ...Option) *Logger {
	c := resolve(opts)
	zl := zerolog.New(c.writer).With().Timestamp().Str("component", component).Logger()
	return &Logger{
		zl:      zl,
		minimum: c.level,
		limiter: catrate.NewLimiter(map[time.Duration]int{time.Second: 20}),
	}
}

func (l *Logger) enabled(lvl Level) bool {
	return l != nil && lvl <= l.minimum
}

// With returns a child Logger with an additional string field bound to
// every subsequent record, mirroring logiface.Context's builder chain.
func (l *Logger) With(key, value string) *Logger {
	if l == nil {
		return nil
	}
	return &Logger{zl: l.zl.With().Str(key, value).Logger(), minimum: l.minimum, limiter: l.limiter}
}

// WithUint64 is the uint64 analogue of With, used for handle/thread ids.
func (l *Logger) WithUint64(key string, value uint64) *Logger {
	if l == nil {
		return nil
	}
	return &Logger{zl: l.zl.With().Uint64(key, value).Logger(), minimum: l.minimum, limiter: l.limiter}
}

// Record is a single structured log line under construction, mirroring
// logiface.Builder's chained Add* methods.
type Record struct {
	ev *zerolog.Event
}

func (l *Logger) record(lvl Level, zlvl zerolog.Level) *Record {
	if !l.enabled(lvl) {
		return &Record{}
	}
	return &Record{ev: l.zl.WithLevel(zlvl)}
}

// Trace starts a trace-level record.
func (l *Logger) Trace() *Record {
	if l == nil {
		return &Record{}
	}
	return l.record(LevelTrace, zerolog.TraceLevel)
}

// Debug starts a debug-level record.
func (l *Logger) Debug() *Record {
	if l == nil {
		return &Record{}
	}
	return l.record(LevelDebug, zerolog.DebugLevel)
}

// Info starts an info-level record.
func (l *Logger) Info() *Record {
	if l == nil {
		return &Record{}
	}
	return l.record(LevelInfo, zerolog.InfoLevel)
}

// Warn starts a warn-level record, rate-limited to avoid log storms from a
// thread that is repeatedly contending or retrying.
func (l *Logger) Warn(key string) *Record {
	if l == nil || !l.enabled(LevelWarn) {
		return &Record{}
	}
	if _, ok := l.limiter.Allow(key); !ok {
		return &Record{}
	}
	return &Record{ev: l.zl.WithLevel(zerolog.WarnLevel)}
}

// Error starts an error-level record.
func (l *Logger) Error() *Record {
	if l == nil {
		return &Record{}
	}
	return l.record(LevelError, zerolog.ErrorLevel)
}

// Str adds a string field, following logiface.Builder.Str.
func (r *Record) Str(key, value string) *Record {
	if r.ev != nil {
		r.ev.Str(key, value)
	}
	return r
}

// Int adds an int field, following logiface.Builder.Int.
func (r *Record) Int(key string, value int) *Record {
	if r.ev != nil {
		r.ev.Int(key, value)
	}
	return r
}

// Uint64 adds a uint64 field.
func (r *Record) Uint64(key string, value uint64) *Record {
	if r.ev != nil {
		r.ev.Uint64(key, value)
	}
	return r
}

// Dur adds a time.Duration field, following logiface.Builder.Dur.
func (r *Record) Dur(key string, value time.Duration) *Record {
	if r.ev != nil {
		r.ev.Dur(key, value)
	}
	return r
}

// Err adds an error field, following logiface.Builder.Err.
func (r *Record) Err(err error) *Record {
	if r.ev != nil && err != nil {
		r.ev.Err(err)
	}
	return r
}

// Msg finalizes and emits the record, following logiface.Builder.Log-via-message.
func (r *Record) Msg(msg string) {
	if r.ev != nil {
		r.ev.Msg(msg)
	}
}
