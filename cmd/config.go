package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/BioHazard786/warpcall/internal/call"
	"github.com/BioHazard786/warpcall/internal/config"
	"github.com/BioHazard786/warpcall/internal/media"
	"github.com/BioHazard786/warpcall/internal/media/capture"
	"github.com/BioHazard786/warpcall/internal/signaling"
	"github.com/BioHazard786/warpcall/internal/ui"
)

func loadConfig(opts config.Options) (*config.Config, error) {
	cfg, err := config.Load(opts)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if cfg.ForceRelay && cfg.GetTURNServers() == nil {
		return nil, errors.New("cannot force relay mode without TURN server configured")
	}
	return cfg, nil
}

// newAcquirer returns device capture when this build supports it, and
// synthetic media otherwise or when asked to.
func newAcquirer(synthetic bool) (media.Acquirer, media.CodecRegistrar, error) {
	if synthetic || !capture.Available() {
		if !synthetic {
			ui.PrintWarning("Device capture is not available in this build; sending test media")
		}
		return media.NewSynthetic(), nil, nil
	}
	a, err := capture.New()
	if err != nil {
		return nil, nil, fmt.Errorf("prepare encoders: %w", err)
	}
	return a, a, nil
}

// newDialer connects calls to the relay at cfg.WebSocketURL.
func newDialer(cfg *config.Config, log *slog.Logger) call.Dialer {
	return func(ctx context.Context, addr signaling.Address) (call.Channel, error) {
		log.Debug("dialing relay", "url", cfg.WebSocketURL, "session", addr.SessionID)
		c, err := signaling.Dial(ctx, cfg.WebSocketURL, addr)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
}

// parseSessionInput accepts a bare session ID or a join link.
func parseSessionInput(input string) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", errors.New("session ID cannot be empty")
	}
	if !strings.Contains(input, "://") {
		return input, nil
	}

	u, err := url.Parse(input)
	if err != nil {
		return "", fmt.Errorf("parse session link: %w", err)
	}
	parts := strings.Split(strings.TrimSuffix(u.Path, "/"), "/")
	for i, part := range parts {
		if part == "call" && i+1 < len(parts) && parts[i+1] != "" {
			return parts[i+1], nil
		}
	}
	return "", fmt.Errorf("could not extract session ID from link: %s", input)
}
