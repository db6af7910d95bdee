package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

// Default configuration values (production)
const (
	DefaultDomain   = "warpcall.qzz.io"
	DefaultSTUN     = "stun:stun.l.google.com:19302"
	DefaultTURN     = "turn:warpcall.qzz.io" // Optional, empty by default
	DefaultTURNUser = "warpcall"
	DefaultTURNPass = "warpcall-secret"
)

// Relay defaults
const (
	DefaultPort           = "8080"
	DefaultEnvironment    = "development"
	DefaultAllowedOrigins = "http://localhost:3000,http://localhost:5173"
	DefaultPresenceTTL    = 24 * time.Hour
)

// Config holds application configuration
type Config struct {
	// Domain is the relay server domain
	Domain string

	// WebSocketURL is constructed from domain
	WebSocketURL string

	// ICE servers for WebRTC
	STUNServer string
	TURNServer string
	TURNUser   string
	TURNPass   string
	ForceRelay bool

	// PlatformURL is the base URL of the session REST API. Empty disables it.
	PlatformURL   string
	PlatformToken string
}

// Options for loading config with CLI flag overrides
type Options struct {
	Domain        string
	Insecure      bool
	STUNServer    string
	TURNServer    string
	TURNUser      string
	TURNPass      string
	ForceRelay    bool
	PlatformURL   string
	PlatformToken string
}

// Load reads configuration with the following priority:
// 1. CLI flags (passed via Options) - highest priority
// 2. Environment variables
// 3. Hardcoded defaults - lowest priority
func Load(opts Options) (*Config, error) {
	loadDotEnv()
	domain := pick(opts.Domain, "DOMAIN", DefaultDomain)
	if strings.Contains(domain, "/") {
		return nil, fmt.Errorf("invalid domain %q: expected host[:port]", domain)
	}

	scheme := "wss"
	if opts.Insecure {
		scheme = "ws"
	}

	return &Config{
		Domain:        domain,
		WebSocketURL:  fmt.Sprintf("%s://%s/ws", scheme, domain),
		STUNServer:    pick(opts.STUNServer, "STUN_SERVER", DefaultSTUN),
		TURNServer:    pick(opts.TURNServer, "TURN_SERVER", DefaultTURN),
		TURNUser:      pick(opts.TURNUser, "TURN_USERNAME", DefaultTURNUser),
		TURNPass:      pick(opts.TURNPass, "TURN_PASSWORD", DefaultTURNPass),
		ForceRelay:    opts.ForceRelay,
		PlatformURL:   strings.TrimRight(pick(opts.PlatformURL, "PLATFORM_API", ""), "/"),
		PlatformToken: pick(opts.PlatformToken, "PLATFORM_TOKEN", ""),
	}, nil
}

// GetSessionLink returns the webapp URL for a session ID
func (c *Config) GetSessionLink(sessionID string) string {
	return fmt.Sprintf("https://%s/call/%s", c.Domain, sessionID)
}

// GetSTUNServers returns STUN server URLs as strings
func (c *Config) GetSTUNServers() []string {
	if c.STUNServer == "" {
		return nil
	}
	return []string{c.STUNServer}
}

// GetTURNServers returns TURN server URLs if configured
func (c *Config) GetTURNServers() []string {
	if c.TURNServer == "" {
		return nil
	}
	host := strings.TrimPrefix(c.TURNServer, "turn:")
	return []string{
		fmt.Sprintf("turn:%s:3478?transport=udp", host),
		fmt.Sprintf("turn:%s:3478?transport=tcp", host),
		fmt.Sprintf("turns:%s:5349?transport=tcp", host),
	}
}

// GetTURNCredentials returns TURN username and password
func (c *Config) GetTURNCredentials() (string, string) {
	return c.TURNUser, c.TURNPass
}

// RelayConfig holds the signaling relay server configuration.
type RelayConfig struct {
	Port           string
	Environment    string
	AllowedOrigins []string

	// Redis is optional; an empty address keeps presence in memory.
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	PresenceTTL   time.Duration
}

// RelayOptions carries CLI flag overrides for the relay.
type RelayOptions struct {
	Port           string
	RedisAddr      string
	AllowedOrigins string
}

// LoadRelay resolves relay configuration with the same flag > env > default order as Load.
func LoadRelay(opts RelayOptions) (*RelayConfig, error) {
	loadDotEnv()
	db := 0
	if v := os.Getenv("REDIS_DB"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_DB %q: %w", v, err)
		}
		db = n
	}

	ttl := DefaultPresenceTTL
	if v := os.Getenv("PRESENCE_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid PRESENCE_TTL %q: %w", v, err)
		}
		ttl = d
	}

	return &RelayConfig{
		Port:           pick(opts.Port, "PORT", DefaultPort),
		Environment:    pick("", "ENVIRONMENT", DefaultEnvironment),
		AllowedOrigins: splitList(pick(opts.AllowedOrigins, "ALLOWED_ORIGINS", DefaultAllowedOrigins)),
		RedisAddr:      pick(opts.RedisAddr, "REDIS_ADDR", ""),
		RedisPassword:  pick("", "REDIS_PASSWORD", ""),
		RedisDB:        db,
		PresenceTTL:    ttl,
	}, nil
}

// IsProduction reports whether the relay runs in production mode.
func (c *RelayConfig) IsProduction() bool {
	return c.Environment == "production"
}

var dotEnvOnce sync.Once

// loadDotEnv reads a .env file from the working directory, if present.
// Variables already set in the environment win.
func loadDotEnv() {
	dotEnvOnce.Do(func() { _ = godotenv.Load() })
}

// pick returns the flag value, then the env value, then the default.
func pick(flag, env, def string) string {
	if flag != "" {
		return flag
	}
	if env != "" {
		if v := os.Getenv(env); v != "" {
			return v
		}
	}
	return def
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
