package notifykit_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wisebite/notifykit"
	"github.com/wisebite/notifykit/pkg/notifications"
)

func validConfig() notifykit.Config {
	return notifykit.Config{
		APIBaseURL:       "https://api.wisebite.test/api/v1",
		RealtimeBaseURL:  "wss://api.wisebite.test",
		Role:             notifications.RoleConsumer,
		HTTPTimeout:      30 * time.Second,
		ReconnectBase:    time.Second,
		ReconnectMax:     16 * time.Second,
		ReconnectRetries: 5,
		PollInterval:     30 * time.Second,
		PageLimit:        20,
	}
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	require.NoError(t, validConfig().Validate())
}

func TestConfig_ValidateRejectsBadValues(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		mutate func(*notifykit.Config)
	}{
		{name: "missing api url", mutate: func(c *notifykit.Config) { c.APIBaseURL = "" }},
		{name: "api url not a url", mutate: func(c *notifykit.Config) { c.APIBaseURL = "not a url" }},
		{name: "missing ws url", mutate: func(c *notifykit.Config) { c.RealtimeBaseURL = "" }},
		{name: "unknown role", mutate: func(c *notifykit.Config) { c.Role = "admin" }},
		{name: "zero retries", mutate: func(c *notifykit.Config) { c.ReconnectRetries = 0 }},
		{name: "max below base", mutate: func(c *notifykit.Config) { c.ReconnectMax = 500 * time.Millisecond }},
		{name: "page limit too large", mutate: func(c *notifykit.Config) { c.PageLimit = 500 }},
		{name: "token path without key", mutate: func(c *notifykit.Config) { c.TokenPath = "/tmp/token.bin" }},
		{name: "short token key", mutate: func(c *notifykit.Config) {
			c.TokenPath = "/tmp/token.bin"
			c.TokenKey = "too-short"
		}},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := validConfig()
			tc.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), notifykit.ErrInvalidConfig)
		})
	}
}

func TestLoadConfig_FromEnvironment(t *testing.T) {
	t.Setenv("NOTIFY_API_BASE_URL", "https://api.wisebite.test/api/v1")
	t.Setenv("NOTIFY_WS_BASE_URL", "wss://api.wisebite.test")
	t.Setenv("NOTIFY_ROLE", "merchant")
	t.Setenv("NOTIFY_PAGE_LIMIT", "50")

	cfg, err := notifykit.LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, notifications.RoleMerchant, cfg.Role)
	assert.Equal(t, 50, cfg.PageLimit)

	// Defaults fill everything not set explicitly.
	assert.Equal(t, time.Second, cfg.ReconnectBase)
	assert.Equal(t, 16*time.Second, cfg.ReconnectMax)
	assert.Equal(t, 5, cfg.ReconnectRetries)
	assert.Equal(t, 30*time.Second, cfg.PollInterval)
}
