package config

import (
	"testing"
	"time"
)

func TestLoad_Priority(t *testing.T) {
	t.Setenv("DOMAIN", "env.example.com")
	t.Setenv("STUN_SERVER", "stun:env.example.com:3478")

	tests := []struct {
		name     string
		opts     Options
		wantURL  string
		wantSTUN string
	}{
		{"env over default", Options{}, "wss://env.example.com/ws", "stun:env.example.com:3478"},
		{"flag over env", Options{Domain: "flag.example.com", STUNServer: "stun:flag:1"}, "wss://flag.example.com/ws", "stun:flag:1"},
		{"insecure local relay", Options{Domain: "localhost:8080", Insecure: true}, "ws://localhost:8080/ws", "stun:env.example.com:3478"},
	}

	for _, tt := range tests {
		cfg, err := Load(tt.opts)
		if err != nil {
			t.Fatalf("%s: Load() error = %v", tt.name, err)
		}
		if cfg.WebSocketURL != tt.wantURL {
			t.Errorf("%s: WebSocketURL = %q, want %q", tt.name, cfg.WebSocketURL, tt.wantURL)
		}
		if cfg.STUNServer != tt.wantSTUN {
			t.Errorf("%s: STUNServer = %q, want %q", tt.name, cfg.STUNServer, tt.wantSTUN)
		}
	}
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DOMAIN", "")
	t.Setenv("PLATFORM_API", "")

	cfg, err := Load(Options{})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Domain != DefaultDomain {
		t.Errorf("Domain = %q, want %q", cfg.Domain, DefaultDomain)
	}
	if cfg.PlatformURL != "" {
		t.Errorf("PlatformURL = %q, want empty", cfg.PlatformURL)
	}
}

func TestLoad_RejectsPathInDomain(t *testing.T) {
	if _, err := Load(Options{Domain: "example.com/ws"}); err == nil {
		t.Fatal("Load() with a path in the domain should fail")
	}
}

func TestGetTURNServers(t *testing.T) {
	cfg := &Config{TURNServer: "turn:relay.example.com"}
	got := cfg.GetTURNServers()
	want := []string{
		"turn:relay.example.com:3478?transport=udp",
		"turn:relay.example.com:3478?transport=tcp",
		"turns:relay.example.com:5349?transport=tcp",
	}
	if len(got) != len(want) {
		t.Fatalf("GetTURNServers() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("GetTURNServers()[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	if (&Config{}).GetTURNServers() != nil {
		t.Error("GetTURNServers() without TURN server should be nil")
	}
}

func TestLoadRelay(t *testing.T) {
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example ,")
	t.Setenv("PRESENCE_TTL", "90m")
	t.Setenv("REDIS_DB", "2")

	cfg, err := LoadRelay(RelayOptions{Port: "9000"})
	if err != nil {
		t.Fatalf("LoadRelay() error = %v", err)
	}
	if cfg.Port != "9000" {
		t.Errorf("Port = %q, want 9000", cfg.Port)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "https://b.example" {
		t.Errorf("AllowedOrigins = %v", cfg.AllowedOrigins)
	}
	if cfg.PresenceTTL != 90*time.Minute {
		t.Errorf("PresenceTTL = %v, want 90m", cfg.PresenceTTL)
	}
	if cfg.RedisDB != 2 {
		t.Errorf("RedisDB = %d, want 2", cfg.RedisDB)
	}
}

func TestLoadRelay_InvalidEnv(t *testing.T) {
	t.Setenv("REDIS_DB", "zero")
	if _, err := LoadRelay(RelayOptions{}); err == nil {
		t.Fatal("LoadRelay() with invalid REDIS_DB should fail")
	}
}
