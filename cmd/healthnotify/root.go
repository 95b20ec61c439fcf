package main

import (
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/dukerupert/healthnotify/internal/classify"
	"github.com/dukerupert/healthnotify/internal/config"
	"github.com/dukerupert/healthnotify/internal/logging"
)

type app struct {
	cfg       config.Config
	logger    *slog.Logger
	now       func() time.Time
	serverLoc *time.Location
}

type rootFlags struct {
	envFile     string
	logLevel    string
	logFormat   string
	token       string
	pushURL     string
	apiURL      string
	destination string
	locale      string
	serverTZ    string
}

func newRootCmd() *cobra.Command {
	a := &app{now: time.Now}
	var flags rootFlags

	rootCmd := &cobra.Command{
		Use:           "healthnotify",
		Short:         "Real-time school-health notifications",
		Long:          "healthnotify keeps a push session to the school-health server, classifies incoming notifications and tracks their read state.",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			var files []string
			if flags.envFile != "" {
				files = append(files, flags.envFile)
			}
			cfg, err := config.Load(files...)
			if err != nil {
				return err
			}
			applyOverrides(cmd, &cfg, flags)
			if err := cfg.Validate(); err != nil {
				return err
			}
			loc, err := cfg.ServerLocation()
			if err != nil {
				return err
			}
			a.cfg = cfg
			a.serverLoc = loc
			a.logger = logging.Setup(cfg.LogLevel, cfg.LogFormat)
			return nil
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flags.envFile, "env-file", "", "load settings from this .env file")
	pf.StringVar(&flags.logLevel, "log-level", "", "log level: debug, info, warn, error")
	pf.StringVar(&flags.logFormat, "log-format", "", "log format: text or json")
	pf.StringVar(&flags.token, "token", "", "bearer credential")
	pf.StringVar(&flags.pushURL, "push-url", "", "WebSocket endpoint of the push server")
	pf.StringVar(&flags.apiURL, "api-url", "", "base URL of the notification REST API")
	pf.StringVar(&flags.destination, "destination", "", "personal notification destination")
	pf.StringVar(&flags.locale, "locale", "", "display locale: vi or en")
	pf.StringVar(&flags.serverTZ, "server-timezone", "", "zone of server timestamps without an offset, e.g. Asia/Ho_Chi_Minh")

	rootCmd.AddCommand(
		newListenCmd(a),
		newClassifyCmd(a),
		newSendCmd(a),
	)
	return rootCmd
}

// applyOverrides copies explicitly set flags over the environment config.
func applyOverrides(cmd *cobra.Command, cfg *config.Config, flags rootFlags) {
	set := func(name string, dst *string, v string) {
		if cmd.Flags().Changed(name) {
			*dst = v
		}
	}
	set("log-level", &cfg.LogLevel, flags.logLevel)
	set("log-format", &cfg.LogFormat, flags.logFormat)
	set("token", &cfg.Token, flags.token)
	set("push-url", &cfg.PushURL, flags.pushURL)
	set("api-url", &cfg.APIURL, flags.apiURL)
	set("destination", &cfg.Destination, flags.destination)
	set("locale", &cfg.Locale, flags.locale)
	set("server-timezone", &cfg.ServerTimezone, flags.serverTZ)
}

// newClassifier builds the classifier shared by every subcommand.
func newClassifier(a *app) *classify.Classifier {
	return classify.New(
		classify.WithLocale(a.cfg.Locale),
		classify.WithServerLocation(a.serverLoc),
		classify.WithLogger(a.logger),
		classify.WithClock(a.now),
	)
}
