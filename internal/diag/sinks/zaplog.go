package sinks

import (
	"go.uber.org/zap"

	"github.com/forkbench/recipegrab/internal/diag"
)

// Zap adapts diagnostic records onto a structured zap logger, useful for
// development runs and for environments that already aggregate zap output.
type Zap struct {
	logger *zap.Logger
}

// NewZap wires a zap logger to the sink interface.
func NewZap(logger *zap.Logger) *Zap {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Zap{logger: logger}
}

// Write logs one record with structured fields.
func (z *Zap) Write(rec *diag.Record) error {
	fields := []zap.Field{
		zap.String("module", rec.Caller.Module),
		zap.String("function", rec.Caller.Function),
		zap.Int("line", rec.Caller.Line),
	}
	if f := rec.Failure; f != nil {
		fields = append(fields,
			zap.String("failure_id", f.ID.String()),
			zap.String("failure_kind", f.Kind),
			zap.String("url", f.URL),
			zap.Error(f.Err),
		)
	}
	msg := rec.Text()
	switch rec.Level {
	case diag.DebugLevel:
		z.logger.Debug(msg, fields...)
	case diag.InfoLevel:
		z.logger.Info(msg, fields...)
	case diag.WarnLevel:
		z.logger.Warn(msg, fields...)
	default:
		z.logger.Error(msg, fields...)
	}
	return nil
}

// Close flushes buffered zap output.
func (z *Zap) Close() error {
	// Sync fails harmlessly on stderr; the error is not actionable here.
	_ = z.logger.Sync()
	return nil
}
