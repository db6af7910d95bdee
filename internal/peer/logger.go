package peer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pion/logging"
)

// slogFactory routes pion's internal loggers into slog. pion is chatty, so
// its info level is demoted to debug.
type slogFactory struct {
	base *slog.Logger
}

func newLoggerFactory(base *slog.Logger) logging.LoggerFactory {
	return &slogFactory{base: base}
}

func (f *slogFactory) NewLogger(scope string) logging.LeveledLogger {
	return &slogLogger{log: f.base.With("pion", scope)}
}

type slogLogger struct {
	log *slog.Logger
}

func (l *slogLogger) emit(level slog.Level, msg string) {
	l.log.Log(context.Background(), level, msg)
}

func (l *slogLogger) Trace(msg string) { l.emit(slog.LevelDebug-4, msg) }
func (l *slogLogger) Tracef(format string, args ...any) {
	l.emit(slog.LevelDebug-4, fmt.Sprintf(format, args...))
}

func (l *slogLogger) Debug(msg string) { l.emit(slog.LevelDebug-4, msg) }
func (l *slogLogger) Debugf(format string, args ...any) {
	l.emit(slog.LevelDebug-4, fmt.Sprintf(format, args...))
}

func (l *slogLogger) Info(msg string) { l.emit(slog.LevelDebug, msg) }
func (l *slogLogger) Infof(format string, args ...any) {
	l.emit(slog.LevelDebug, fmt.Sprintf(format, args...))
}

func (l *slogLogger) Warn(msg string) { l.emit(slog.LevelWarn, msg) }
func (l *slogLogger) Warnf(format string, args ...any) {
	l.emit(slog.LevelWarn, fmt.Sprintf(format, args...))
}

func (l *slogLogger) Error(msg string) { l.emit(slog.LevelError, msg) }
func (l *slogLogger) Errorf(format string, args ...any) {
	l.emit(slog.LevelError, fmt.Sprintf(format, args...))
}
