package realmgate

import (
	"log"

	"github.com/rs/zerolog"
	"github.com/sirupsen/logrus"
	"go.uber.org/zap"
)

// Logger is the structured logging interface used across the gateway and the
// audit package. It is compatible with *slog.Logger, so a slog logger can be
// passed directly; adapters below cover logrus, zerolog and zap.
// Arguments are alternating key/value pairs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// DefaultLogger writes through the standard library log package. Used when no
// logger is configured.
type DefaultLogger struct{}

func (l *DefaultLogger) Debug(msg string, args ...any) { log.Println(append([]any{"DEBUG:", msg}, args...)...) }
func (l *DefaultLogger) Info(msg string, args ...any)  { log.Println(append([]any{"INFO:", msg}, args...)...) }
func (l *DefaultLogger) Warn(msg string, args ...any)  { log.Println(append([]any{"WARN:", msg}, args...)...) }
func (l *DefaultLogger) Error(msg string, args ...any) { log.Println(append([]any{"ERROR:", msg}, args...)...) }

// argsToFields converts alternating key/value pairs into a field map.
// A trailing key without a value is kept under "!BADKEY", mirroring slog.
func argsToFields(args []any) map[string]any {
	fields := make(map[string]any, len(args)/2)
	for i := 0; i < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			key = "!BADKEY"
		}
		if i+1 < len(args) {
			fields[key] = args[i+1]
		} else {
			fields[key] = "(MISSING)"
		}
	}
	return fields
}

// NewLogrusLogger adapts a logrus.FieldLogger.
func NewLogrusLogger(l logrus.FieldLogger) Logger {
	return &logrusAdapter{l}
}

type logrusAdapter struct{ l logrus.FieldLogger }

func (a *logrusAdapter) Debug(msg string, args ...any) { a.l.WithFields(argsToFields(args)).Debug(msg) }
func (a *logrusAdapter) Info(msg string, args ...any)  { a.l.WithFields(argsToFields(args)).Info(msg) }
func (a *logrusAdapter) Warn(msg string, args ...any)  { a.l.WithFields(argsToFields(args)).Warn(msg) }
func (a *logrusAdapter) Error(msg string, args ...any) { a.l.WithFields(argsToFields(args)).Error(msg) }

// NewZerologLogger adapts a zerolog.Logger.
func NewZerologLogger(l zerolog.Logger) Logger {
	return &zerologAdapter{l}
}

type zerologAdapter struct{ l zerolog.Logger }

func (a *zerologAdapter) Debug(msg string, args ...any) {
	a.l.Debug().Fields(argsToFields(args)).Msg(msg)
}
func (a *zerologAdapter) Info(msg string, args ...any) {
	a.l.Info().Fields(argsToFields(args)).Msg(msg)
}
func (a *zerologAdapter) Warn(msg string, args ...any) {
	a.l.Warn().Fields(argsToFields(args)).Msg(msg)
}
func (a *zerologAdapter) Error(msg string, args ...any) {
	a.l.Error().Fields(argsToFields(args)).Msg(msg)
}

// NewZapLogger adapts a zap.SugaredLogger.
func NewZapLogger(l *zap.SugaredLogger) Logger {
	return &zapAdapter{l}
}

type zapAdapter struct{ l *zap.SugaredLogger }

func (a *zapAdapter) Debug(msg string, args ...any) { a.l.Debugw(msg, args...) }
func (a *zapAdapter) Info(msg string, args ...any)  { a.l.Infow(msg, args...) }
func (a *zapAdapter) Warn(msg string, args ...any)  { a.l.Warnw(msg, args...) }
func (a *zapAdapter) Error(msg string, args ...any) { a.l.Errorw(msg, args...) }
