// Package logging builds the process zap logger.
//
// Logs go to stderr so stdout carries only the progress lines operators
// watch during a load.
package logging

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config configures the logger.
type Config struct {
	Level  string // debug|info|warn|error; empty means info
	Format string // json|console; anything else means json
	RunID  string

	// Out defaults to os.Stderr.
	Out io.Writer
}

// New builds a logger from cfg.
func New(cfg Config) (*zap.Logger, error) {
	level := strings.TrimSpace(cfg.Level)
	if level == "" {
		level = "info"
	}
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(strings.ToLower(level))); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var enc zapcore.Encoder
	if normalizeFormat(cfg.Format) == "console" {
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	} else {
		enc = zapcore.NewJSONEncoder(encCfg)
	}

	out := cfg.Out
	if out == nil {
		out = os.Stderr
	}

	core := zapcore.NewCore(enc, zapcore.Lock(zapcore.AddSync(out)), lvl)
	logger := zap.New(core, zap.AddStacktrace(zapcore.ErrorLevel))
	if id := strings.TrimSpace(cfg.RunID); id != "" {
		logger = logger.With(zap.String("run_id", id))
	}
	return logger, nil
}

func normalizeFormat(format string) string {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "console" {
		return "console"
	}
	return "json"
}

// WithContext adds trace and span ids from ctx, if it carries a valid span.
func WithContext(ctx context.Context, base *zap.Logger) *zap.Logger {
	if ctx == nil || base == nil {
		return base
	}
	sc := trace.SpanFromContext(ctx).SpanContext()
	if !sc.IsValid() {
		return base
	}
	return base.With(
		zap.String("trace_id", sc.TraceID().String()),
		zap.String("span_id", sc.SpanID().String()),
	)
}
