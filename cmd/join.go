package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BioHazard786/warpcall/internal/call"
	"github.com/BioHazard786/warpcall/internal/config"
	"github.com/BioHazard786/warpcall/internal/logging"
	"github.com/BioHazard786/warpcall/internal/media"
	"github.com/BioHazard786/warpcall/internal/peer"
	"github.com/BioHazard786/warpcall/internal/platform"
	"github.com/BioHazard786/warpcall/internal/sessionid"
	"github.com/BioHazard786/warpcall/internal/ui"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

const (
	joinTimeout     = 45 * time.Second
	platformTimeout = 10 * time.Second
	logFile         = "warpcall.log"
)

var (
	flagName       string
	flagUser       string
	flagHost       bool
	flagDomain     string
	flagInsecure   bool
	flagSTUN       string
	flagTURN       string
	flagTURNUser   string
	flagTURNPass   string
	flagRelay      bool
	flagAudioOnly  bool
	flagVideoOnly  bool
	flagSynthetic  bool
	flagAPI        string
	flagAPIToken   string
	flagEndOnLeave bool
)

var joinCmd = &cobra.Command{
	Use:     "join [session-id | link]",
	Aliases: []string{"j"},
	Short:   "Join a video call, or start a new one",
	Long: `Join a mesh video call. Without a session ID a new session is created,
you become its host and the join link is printed for the others.

Examples:
  warpcall join
  warpcall join kitten-waffle-stardust-happy --name Ada
  warpcall join https://warpcall.qzz.io/call/kitten-waffle-stardust-happy
  warpcall join --audio-only --relay kitten-waffle-stardust-happy`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if flagAudioOnly && flagVideoOnly {
			return errors.New("--audio-only and --video-only are mutually exclusive")
		}
		input := ""
		if len(args) == 1 {
			input = args[0]
		}
		return joinCall(cmd.Context(), input)
	},
}

func joinCall(ctx context.Context, input string) error {
	cfg, err := loadConfig(config.Options{
		Domain:        flagDomain,
		Insecure:      flagInsecure,
		STUNServer:    flagSTUN,
		TURNServer:    flagTURN,
		TURNUser:      flagTURNUser,
		TURNPass:      flagTURNPass,
		ForceRelay:    flagRelay,
		PlatformURL:   flagAPI,
		PlatformToken: flagAPIToken,
	})
	if err != nil {
		return err
	}

	session, err := resolveSession(input, cfg)
	if err != nil {
		return err
	}

	var api *platform.Client
	if cfg.PlatformURL != "" {
		api = platform.NewClient(cfg.PlatformURL, cfg.PlatformToken)
		if err := checkSession(ctx, api, session.SessionID); err != nil {
			return err
		}
	}

	// Logs go to a file from here on; the call screen will own the terminal.
	restore, err := logging.Redirect(logFile)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer restore()

	acquirer, codecs, err := newAcquirer(flagSynthetic)
	if err != nil {
		return err
	}
	factory, err := peer.NewFactory(peer.Options{
		Configuration: peer.Configuration(cfg),
		Codecs:        codecs,
	})
	if err != nil {
		return err
	}

	constraints := media.DefaultConstraints()
	constraints.Audio = !flagVideoOnly
	constraints.Video = !flagAudioOnly

	c, err := call.New(call.Options{
		Session:     session,
		Constraints: constraints,
		Acquirer:    acquirer,
		Factory:     factory,
		Dial:        newDialer(cfg, slog.Default()),
	})
	if err != nil {
		return err
	}
	defer c.Close()

	fmt.Println()
	err = ui.RunConnectionSpinner("Joining call...", "Connected to "+session.SessionID, func() error {
		joinCtx, cancel := context.WithTimeout(ctx, joinTimeout)
		defer cancel()
		return c.Join(joinCtx)
	})
	if err != nil {
		if media.IsAccessError(err) {
			return fmt.Errorf("%w (try --synthetic, --audio-only or --video-only)", err)
		}
		return err
	}
	if api != nil {
		notifyPlatform(ctx, "record join", func(ctx context.Context) error {
			return api.MarkJoined(ctx, session.SessionID, session.UserID)
		})
	}

	states, unsubscribe := c.Subscribe()
	summary, screenErr := ui.RunCallScreen(ctx, c, states, session.SessionID, c.State())
	unsubscribe()

	if err := c.Leave(); err != nil && !errors.Is(err, call.ErrClosed) {
		slog.Warn("leaving call", "error", err)
	}
	if api != nil {
		notifyPlatform(context.Background(), "record leave", func(ctx context.Context) error {
			return api.MarkLeft(ctx, session.SessionID, session.UserID)
		})
		if flagEndOnLeave && session.IsHost {
			notifyPlatform(context.Background(), "end session", func(ctx context.Context) error {
				return api.UpdateStatus(ctx, session.SessionID, platform.StatusEnded)
			})
		}
	}

	fmt.Println()
	ui.RenderCallSummary(summary)
	return screenErr
}

// resolveSession builds the local identity. An empty input creates a new
// session hosted by us.
func resolveSession(input string, cfg *config.Config) (call.Session, error) {
	s := call.Session{UserID: flagUser, UserName: flagName, IsHost: flagHost}
	if s.UserID == "" {
		s.UserID = uuid.NewString()
	}

	if input == "" {
		id, err := sessionid.New()
		if err != nil {
			return call.Session{}, err
		}
		s.SessionID = id
		s.IsHost = true
		fmt.Println()
		fmt.Println(ui.SessionInfo{SessionID: id, Link: cfg.GetSessionLink(id)}.View())
		return s, nil
	}

	id, err := parseSessionInput(input)
	if err != nil {
		return call.Session{}, err
	}
	s.SessionID = id
	return s, nil
}

func checkSession(ctx context.Context, api *platform.Client, id string) error {
	ctx, cancel := context.WithTimeout(ctx, platformTimeout)
	defer cancel()

	info, err := api.GetSession(ctx, id)
	if err != nil {
		return fmt.Errorf("look up session: %w", err)
	}
	if info.Status == platform.StatusEnded {
		return fmt.Errorf("session %s has ended", id)
	}
	if info.Title != "" {
		ui.PrintInfof("%s", info.Title)
	}
	return nil
}

// notifyPlatform reports platform failures without failing the call.
func notifyPlatform(ctx context.Context, op string, fn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(ctx, platformTimeout)
	defer cancel()
	if err := fn(ctx); err != nil {
		slog.Warn("platform update failed", "op", op, "error", err)
		ui.PrintWarningf("Could not %s: %v", op, err)
	}
}

func init() {
	rootCmd.AddCommand(joinCmd)

	f := joinCmd.Flags()
	f.StringVarP(&flagName, "name", "n", "", "Display name (defaults to the user ID)")
	f.StringVar(&flagUser, "user", "", "User ID (random by default)")
	f.BoolVar(&flagHost, "host", false, "Join as the session host")
	f.StringVarP(&flagDomain, "domain", "d", "", "Custom relay domain")
	f.BoolVar(&flagInsecure, "insecure", false, "Use ws:// instead of wss://")
	f.StringVarP(&flagSTUN, "stun", "s", "", "Custom STUN server")
	f.StringVarP(&flagTURN, "turn", "t", "", "Custom TURN server")
	f.StringVarP(&flagTURNUser, "turn-user", "u", "", "TURN username")
	f.StringVarP(&flagTURNPass, "turn-pass", "p", "", "TURN password")
	f.BoolVarP(&flagRelay, "relay", "r", false, "Force relay mode through TURN")
	f.BoolVar(&flagAudioOnly, "audio-only", false, "Send the microphone only")
	f.BoolVar(&flagVideoOnly, "video-only", false, "Send the camera only")
	f.BoolVar(&flagSynthetic, "synthetic", false, "Send generated test media instead of devices")
	f.StringVar(&flagAPI, "api", "", "Platform session API base URL")
	f.StringVar(&flagAPIToken, "api-token", "", "Platform API bearer token")
	f.BoolVar(&flagEndOnLeave, "end-on-leave", false, "Mark the session ended when the host leaves")
}
