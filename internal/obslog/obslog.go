// Package obslog provides the single logging capability threaded through
// the pipeline. Exactly one Logger is built in main and passed down by
// value/reference from there; nothing in this module reaches for a
// global logger.
package obslog

import (
	"os"

	"go.uber.org/zap"
)

// Logger is the leveled, structured logging capability passed through
// the Pipeline. fatal both logs and lets the caller return a terminal
// error — it never calls os.Exit itself.
type Logger interface {
	Debug(msg string, kv ...any)
	Info(msg string, kv ...any)
	Warn(msg string, kv ...any)
	Error(msg string, kv ...any)
	Fatal(msg string, kv ...any)
	With(kv ...any) Logger
}

type zapLogger struct {
	sugar *zap.SugaredLogger
}

// New builds a production Logger writing to stderr. debug enables
// debug-level output (mirrors IB_PARSER_DEBUG=1).
func New(debug bool) Logger {
	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	if debug {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	} else {
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	logger, err := cfg.Build()
	if err != nil {
		// Logging construction itself should never be fatal to the
		// tool; fall back to a no-op-safe minimal logger.
		logger = zap.NewNop()
	}
	return &zapLogger{sugar: logger.Sugar()}
}

func (l *zapLogger) Debug(msg string, kv ...any) { l.sugar.Debugw(msg, kv...) }
func (l *zapLogger) Info(msg string, kv ...any)  { l.sugar.Infow(msg, kv...) }
func (l *zapLogger) Warn(msg string, kv ...any)  { l.sugar.Warnw(msg, kv...) }
func (l *zapLogger) Error(msg string, kv ...any) { l.sugar.Errorw(msg, kv...) }
func (l *zapLogger) Fatal(msg string, kv ...any) { l.sugar.Errorw("fatal: "+msg, kv...) }
func (l *zapLogger) With(kv ...any) Logger {
	return &zapLogger{sugar: l.sugar.With(kv...)}
}

// Recorder is an in-memory Logger used by tests that want to assert on
// what was logged without touching stderr.
type Recorder struct {
	Entries []Entry
}

// Entry is one recorded log line.
type Entry struct {
	Level string
	Msg   string
	KV    []any
}

// NewRecorder builds a Logger that appends to an in-memory slice.
func NewRecorder() *Recorder { return &Recorder{} }

func (r *Recorder) Debug(msg string, kv ...any) { r.record("debug", msg, kv) }
func (r *Recorder) Info(msg string, kv ...any)  { r.record("info", msg, kv) }
func (r *Recorder) Warn(msg string, kv ...any)  { r.record("warn", msg, kv) }
func (r *Recorder) Error(msg string, kv ...any) { r.record("error", msg, kv) }
func (r *Recorder) Fatal(msg string, kv ...any) { r.record("fatal", msg, kv) }
func (r *Recorder) With(kv ...any) Logger       { return r }

func (r *Recorder) record(level, msg string, kv []any) {
	r.Entries = append(r.Entries, Entry{Level: level, Msg: msg, KV: kv})
}

var _ = os.Stderr // referenced for doc clarity only
