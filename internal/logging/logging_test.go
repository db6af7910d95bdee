package logging

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// useTerminal points the default logger at buf for the duration of the test.
func useTerminal(t *testing.T, buf *bytes.Buffer) {
	t.Helper()
	prevLogger := slog.Default()
	prevOut := output.swap(buf)
	install()
	t.Cleanup(func() {
		output.swap(prevOut)
		slog.SetDefault(prevLogger)
	})
}

func TestRedirect_FollowsEarlierLoggers(t *testing.T) {
	t.Setenv("LOG_LEVEL", "info")
	t.Setenv("WARPCALL_LOG_FILE", "")

	var terminal bytes.Buffer
	useTerminal(t, &terminal)

	early := slog.Default().With("component", "peer")

	path := filepath.Join(t.TempDir(), "warpcall.log")
	restore, err := Redirect(path)
	if err != nil {
		t.Fatalf("Redirect() error = %v", err)
	}
	early.Info("connection state", "peer", "bob", "state", "closed")
	slog.Info("joined")
	restore()

	if terminal.Len() != 0 {
		t.Errorf("terminal got output while redirected: %q", terminal.String())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	for _, want := range []string{"component=peer", "connection state", "joined"} {
		if !strings.Contains(string(data), want) {
			t.Errorf("log file is missing %q:\n%s", want, data)
		}
	}

	early.Info("after restore")
	if !strings.Contains(terminal.String(), "after restore") {
		t.Errorf("terminal did not get output after restore: %q", terminal.String())
	}
}

func TestRedirect_EnvOverridesPath(t *testing.T) {
	var terminal bytes.Buffer
	useTerminal(t, &terminal)

	dir := t.TempDir()
	envPath := filepath.Join(dir, "from-env.log")
	t.Setenv("WARPCALL_LOG_FILE", envPath)
	t.Setenv("LOG_LEVEL", "error")

	restore, err := Redirect(filepath.Join(dir, "ignored.log"))
	if err != nil {
		t.Fatalf("Redirect() error = %v", err)
	}
	slog.Error("boom")
	restore()

	if _, err := os.Stat(filepath.Join(dir, "ignored.log")); !os.IsNotExist(err) {
		t.Errorf("argument path was created, err = %v", err)
	}
	data, _ := os.ReadFile(envPath)
	if !strings.Contains(string(data), "boom") {
		t.Errorf("env log file = %q", data)
	}
}

func TestLevel(t *testing.T) {
	tests := []struct {
		env  string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warning", slog.LevelWarn},
		{"prod", slog.LevelError},
		{"bogus", slog.LevelError},
	}
	for _, tt := range tests {
		t.Setenv("LOG_LEVEL", tt.env)
		if got := Level(); got != tt.want {
			t.Errorf("Level() with LOG_LEVEL=%q = %v, want %v", tt.env, got, tt.want)
		}
	}
}
