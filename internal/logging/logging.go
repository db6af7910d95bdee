package logging

import (
	"io"
	"log/slog"
	"os"
	"sync"
)

// output is the writer behind the default handler. Redirect swaps its target,
// so loggers derived from the default before a redirect follow it too.
var output = &switchWriter{w: os.Stderr}

var handler slog.Handler

func Init() {
	output.swap(os.Stderr)
	install()
}

func install() {
	handler = slog.NewTextHandler(output, &slog.HandlerOptions{
		Level: Level(),
	})
	slog.SetDefault(slog.New(handler))
}

// Redirect sends all log output to the file at path (or $WARPCALL_LOG_FILE)
// until the returned function is called. Used while a full-screen UI owns the
// terminal.
func Redirect(path string) (restore func(), err error) {
	if env, ok := os.LookupEnv("WARPCALL_LOG_FILE"); ok && env != "" {
		path = env
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}

	prevLogger := slog.Default()
	installed := false
	if handler == nil || prevLogger.Handler() != handler {
		install()
		installed = true
	}
	prev := output.swap(f)

	return func() {
		output.swap(prev)
		if installed {
			slog.SetDefault(prevLogger)
		}
		f.Close()
	}, nil
}

type switchWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *switchWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

func (s *switchWriter) swap(w io.Writer) io.Writer {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.w
	s.w = w
	return prev
}

// Level returns the level selected by LOG_LEVEL.
func Level() slog.Level {
	level := slog.LevelError // default: production only shows errors

	if l, ok := os.LookupEnv("LOG_LEVEL"); ok {
		switch l {
		case "dev", "development", "debug":
			level = slog.LevelDebug
		case "info":
			level = slog.LevelInfo
		case "warn", "warning":
			level = slog.LevelWarn
		case "error", "production", "prod":
			level = slog.LevelError
		}
	}

	return level
}
