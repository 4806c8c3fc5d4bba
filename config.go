package notifykit

import (
	"errors"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"github.com/wisebite/notifykit/pkg/notifications"
)

// Package-specific errors
var (
	// ErrParsingConfig is returned when environment variables cannot be parsed into the config struct
	ErrParsingConfig = errors.New("failed to parse environment variables into config")

	// ErrInvalidConfig is returned when the parsed configuration fails validation
	ErrInvalidConfig = errors.New("invalid configuration")
)

// Config holds everything the notification client needs. Zero values are
// filled from environment variables by LoadConfig; embedders may also build
// one directly and pass it to New.
type Config struct {
	// APIBaseURL is the REST backend root, e.g. https://api.wisebite.app/api/v1.
	APIBaseURL string `env:"NOTIFY_API_BASE_URL" validate:"required,url"`

	// RealtimeBaseURL is the websocket root, e.g. wss://api.wisebite.app.
	// The role-specific notification path is appended to it.
	RealtimeBaseURL string `env:"NOTIFY_WS_BASE_URL" validate:"required"`

	// Role selects the consumer or merchant app variant.
	Role notifications.Role `env:"NOTIFY_ROLE" envDefault:"consumer" validate:"oneof=consumer merchant"`

	// HTTPTimeout bounds every REST request.
	HTTPTimeout time.Duration `env:"NOTIFY_HTTP_TIMEOUT" envDefault:"30s" validate:"min=1s"`

	// ReconnectBase and ReconnectMax bound the exponential reconnect delays.
	ReconnectBase time.Duration `env:"NOTIFY_RECONNECT_BASE" envDefault:"1s" validate:"min=100ms"`
	ReconnectMax  time.Duration `env:"NOTIFY_RECONNECT_MAX" envDefault:"16s" validate:"gtefield=ReconnectBase"`

	// ReconnectRetries is the retry budget per outage before the client
	// degrades to polling.
	ReconnectRetries int `env:"NOTIFY_RECONNECT_RETRIES" envDefault:"5" validate:"min=1"`

	// PollInterval is the refresh cadence while the realtime channel is down.
	PollInterval time.Duration `env:"NOTIFY_POLL_INTERVAL" envDefault:"30s" validate:"min=1s"`

	// PageLimit is the REST page size for the initial load and refreshes.
	PageLimit int `env:"NOTIFY_PAGE_LIMIT" envDefault:"20" validate:"min=1,max=100"`

	// TokenPath and TokenKey enable the encrypted on-disk token store. Both
	// empty means tokens live in memory only. TokenKey must be 16, 24, or
	// 32 bytes.
	TokenPath string `env:"NOTIFY_TOKEN_PATH"`
	TokenKey  string `env:"NOTIFY_TOKEN_KEY" validate:"required_with=TokenPath,omitempty,len=16|len=24|len=32"`
}

// LoadConfig reads the configuration from the environment, loading a .env
// file first when one exists.
func LoadConfig() (Config, error) {
	// Ignore errors - the .env file might not exist and that's ok
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, errors.Join(ErrParsingConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the configuration invariants.
func (c Config) Validate() error {
	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(c); err != nil {
		return errors.Join(ErrInvalidConfig, err)
	}
	return nil
}
