package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// EnvPrefix is prepended to every variable name below.
const EnvPrefix = "HEALTHNOTIFY_"

// ErrParsingConfig is returned when environment variables cannot be parsed.
var ErrParsingConfig = errors.New("failed to parse environment variables into config")

// Config holds runtime configuration read from HEALTHNOTIFY_* environment variables.
type Config struct {
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`

	PushURL            string        `env:"PUSH_URL" envDefault:"ws://localhost:8080/ws"`
	StompHost          string        `env:"STOMP_HOST"`
	Destination        string        `env:"DESTINATION" envDefault:"/user/queue/notifications"`
	RestockDestination string        `env:"RESTOCK_DESTINATION" envDefault:"/topic/restock-requests"`
	HeartBeat          time.Duration `env:"HEARTBEAT" envDefault:"10s"`

	ReconnectDelay       time.Duration `env:"RECONNECT_DELAY" envDefault:"5s"`
	MaxReconnectAttempts int           `env:"MAX_RECONNECT_ATTEMPTS" envDefault:"5"`

	APIURL      string        `env:"API_URL" envDefault:"http://localhost:8080/api"`
	HTTPTimeout time.Duration `env:"HTTP_TIMEOUT" envDefault:"10s"`

	Token  string `env:"TOKEN"`
	Locale string `env:"LOCALE" envDefault:"vi"`
	// ServerTimezone names the zone of zone-less server timestamps, e.g.
	// Asia/Ho_Chi_Minh. Empty means the local zone.
	ServerTimezone string `env:"SERVER_TIMEZONE"`
}

// Load reads the named env files, or an optional .env from the working
// directory when none are named, and parses the environment into a Config.
func Load(files ...string) (Config, error) {
	if len(files) == 0 {
		// The default .env file is optional.
		_ = godotenv.Load()
	} else if err := godotenv.Load(files...); err != nil {
		return Config{}, fmt.Errorf("load env file: %w", err)
	}

	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return Config{}, errors.Join(ErrParsingConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks values the environment parser cannot express.
func (c Config) Validate() error {
	if c.ReconnectDelay <= 0 {
		return fmt.Errorf("reconnect delay must be positive, got %v", c.ReconnectDelay)
	}
	if c.MaxReconnectAttempts < 0 {
		return fmt.Errorf("max reconnect attempts must not be negative, got %d", c.MaxReconnectAttempts)
	}
	if c.Destination == "" {
		return errors.New("notification destination must not be empty")
	}
	switch c.Locale {
	case "vi", "en":
	default:
		return fmt.Errorf("unsupported locale %q", c.Locale)
	}
	if _, err := c.ServerLocation(); err != nil {
		return err
	}
	return nil
}

// ServerLocation resolves ServerTimezone.
func (c Config) ServerLocation() (*time.Location, error) {
	if c.ServerTimezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.ServerTimezone)
	if err != nil {
		return nil, fmt.Errorf("server timezone %q: %w", c.ServerTimezone, err)
	}
	return loc, nil
}
