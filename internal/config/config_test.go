package config

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfig_Defaults(t *testing.T) {
	cfg := NewConfig()

	assert.Equal(t, 8080, cfg.HTTP.Port)
	assert.Equal(t, DefaultDatabaseURL, cfg.Database.URL)
	assert.Equal(t, DefaultAPIBaseURL, cfg.Congress.BaseURL)
	assert.Equal(t, 5000, cfg.Congress.HourlyLimit)
	assert.Equal(t, 3, cfg.Congress.MaxRetries)
	assert.Equal(t, 5*time.Second, cfg.Congress.RetryBackoff)
	assert.Equal(t, 60*time.Second, cfg.Congress.Timeout)
	assert.Equal(t, 250, cfg.Sync.PageSize)
	assert.Equal(t, []string{"hr", "s", "hjres", "sjres", "hconres", "sconres", "hres", "sres"}, cfg.Sync.BillTypes)
	assert.Equal(t, 24*time.Hour, cfg.Sync.StaleAfter)
	assert.Equal(t, 12*time.Hour, cfg.Sync.LockTTL)
	assert.Equal(t, DefaultSchedule, cfg.Sync.Schedule)
	assert.Empty(t, cfg.Redis.URL)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.NoError(t, cfg.Validate())
}

func TestNewConfig_FromEnvironment(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("CONGRESS_API_KEY", "secret")
	t.Setenv("CONGRESS_API_HOURLY_LIMIT", "3600")
	t.Setenv("CONGRESS_API_RETRY_BACKOFF", "250ms")
	t.Setenv("SYNC_BILL_TYPES", "HR, s")
	t.Setenv("SYNC_PAGE_SIZE", "100")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("LOG_FORMAT", "json")

	cfg := NewConfig()

	assert.Equal(t, 9090, cfg.HTTP.Port)
	assert.Equal(t, "secret", cfg.Congress.APIKey)
	assert.Equal(t, 3600, cfg.Congress.HourlyLimit)
	assert.Equal(t, 250*time.Millisecond, cfg.Congress.RetryBackoff)
	assert.Equal(t, []string{"hr", "s"}, cfg.Sync.BillTypes)
	assert.Equal(t, 100, cfg.Sync.PageSize)
	assert.Equal(t, "redis://localhost:6379/0", cfg.Redis.URL)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, time.Second, cfg.RequestDelay())
}

func TestRequestDelay(t *testing.T) {
	tests := []struct {
		limit int
		want  time.Duration
	}{
		{5000, 720 * time.Millisecond},
		{3600, time.Second},
		{7, 514286 * time.Millisecond},
		{0, 0},
	}

	for _, tt := range tests {
		cfg := &Config{Congress: Congress{HourlyLimit: tt.limit}}
		assert.Equal(t, tt.want, cfg.RequestDelay(), "limit %d", tt.limit)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"page size too large", func(c *Config) { c.Sync.PageSize = 500 }, "SYNC_PAGE_SIZE"},
		{"page size zero", func(c *Config) { c.Sync.PageSize = 0 }, "SYNC_PAGE_SIZE"},
		{"hourly limit", func(c *Config) { c.Congress.HourlyLimit = 0 }, "CONGRESS_API_HOURLY_LIMIT"},
		{"bill type", func(c *Config) { c.Sync.BillTypes = []string{"hr", "xx"} }, `unknown bill type "xx"`},
		{"log level", func(c *Config) { c.Log.Level = "loud" }, "LOG_LEVEL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	cfg := &Config{Log: Log{Level: "warn", Format: "json"}}

	logger, err := cfg.NewLogger(&buf)
	require.NoError(t, err)

	logger.Info("hidden")
	logger.Warn("shown", "bill", "1hr119")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)
	assert.Contains(t, buf.String(), `"bill":"1hr119"`)

	cfg.Log.Format = "xml"
	_, err = cfg.NewLogger(&buf)
	assert.Error(t, err)
}
