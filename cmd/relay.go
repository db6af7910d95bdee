package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/BioHazard786/warpcall/internal/config"
	"github.com/BioHazard786/warpcall/internal/relay"
	"github.com/BioHazard786/warpcall/internal/ui"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

var (
	flagRelayPort    string
	flagRelayRedis   string
	flagRelayOrigins string
)

var relayCmd = &cobra.Command{
	Use:   "relay",
	Short: "Run the signaling relay server",
	Long: `Run the relay that introduces call participants to each other and
forwards their negotiation and chat messages. Media never passes through it.

Presence is kept in memory unless a Redis address is given.

Examples:
  warpcall relay
  warpcall relay --port 9000 --redis localhost:6379
  warpcall relay --origins https://app.example.com`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRelay(cmd.Context())
	},
}

func runRelay(ctx context.Context) error {
	cfg, err := config.LoadRelay(config.RelayOptions{
		Port:           flagRelayPort,
		RedisAddr:      flagRelayRedis,
		AllowedOrigins: flagRelayOrigins,
	})
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	log := slog.Default().With("component", "relay-server")

	var presence relay.Presence = relay.NewMemoryPresence()
	if cfg.RedisAddr != "" {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		rp, err := relay.NewRedisPresence(pingCtx, relay.RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			TTL:      cfg.PresenceTTL,
		})
		cancel()
		if err != nil {
			return err
		}
		defer rp.Close()
		presence = rp
		log.Info("presence stored in redis", "addr", cfg.RedisAddr)
	}

	hub := relay.NewHub(presence, slog.Default())
	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	go hub.Run(hubCtx)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           relay.NewRouter(hub, presence, cfg.AllowedOrigins, slog.Default()),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	ui.PrintSuccessf("Relay listening on :%s (%s)", cfg.Port, cfg.Environment)

	select {
	case err := <-errc:
		return fmt.Errorf("relay server: %w", err)
	case <-ctx.Done():
	}

	ui.PrintInfo("Shutting down relay...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	// Websockets are hijacked and untouched by Shutdown; stopping the hub
	// closes them.
	stopHub()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(relayCmd)

	relayCmd.Flags().StringVar(&flagRelayPort, "port", "", "Listen port (default 8080)")
	relayCmd.Flags().StringVar(&flagRelayRedis, "redis", "", "Redis address for shared presence")
	relayCmd.Flags().StringVar(&flagRelayOrigins, "origins", "", "Comma-separated allowed browser origins")
}
