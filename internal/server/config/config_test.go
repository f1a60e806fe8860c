package config

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const goodSecret = "0123456789abcdef0123456789abcdef-prod"

func TestLoadDefaults(t *testing.T) {
	var c Config
	c.LoadDefaults()

	assert.Equal(t, "local", c.Env)
	assert.Equal(t, ":8080", c.EndpointAddrHTTP)
	assert.Equal(t, ":50051", c.EndpointAddrGRPC)
	assert.Equal(t, "localhost:6379", c.RedisAddr)
	assert.Empty(t, c.SecretKey)
	assert.Equal(t, 15*time.Minute, c.AccessTokenValidityDuration)
	assert.Equal(t, 7*24*time.Hour, c.RefreshTokenValidityDuration)
	assert.Equal(t, 24*time.Hour, c.BlacklistDefaultTTL)
	assert.Equal(t, 30*time.Second, c.TOTPPeriod)
	assert.Equal(t, uint(1), c.TOTPSkew)
	assert.Equal(t, 24*time.Hour, c.SweepInterval)
}

func TestLoadConfig_DefaultsWithoutSources(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })
	os.Args = []string{"testbin"}

	c := LoadConfig()
	require.NotNil(t, c)
	assert.Equal(t, ":8080", c.EndpointAddrHTTP)
	assert.Equal(t, 15*time.Minute, c.AccessTokenValidityDuration)
}

func validConfig() *Config {
	c := &Config{}
	c.LoadDefaults()
	c.SecretKey = goodSecret
	return c
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "ok", mutate: func(c *Config) {}},
		{name: "missing secret", mutate: func(c *Config) { c.SecretKey = "" }, wantErr: true},
		{name: "16 byte secret", mutate: func(c *Config) { c.SecretKey = "0123456789abcdef" }, wantErr: true},
		{name: "placeholder secret", mutate: func(c *Config) { c.SecretKey = "your-256-bit-secret-change-me-in-production" }, wantErr: true},
		{name: "placeholder secret other case", mutate: func(c *Config) {
			c.SecretKey = strings.ToUpper("change-this-to-a-long-random-secret-value")
		}, wantErr: true},
		{name: "zero access ttl", mutate: func(c *Config) { c.AccessTokenValidityDuration = 0 }, wantErr: true},
		{name: "negative refresh ttl", mutate: func(c *Config) { c.RefreshTokenValidityDuration = -time.Hour }, wantErr: true},
		{name: "fractional totp period", mutate: func(c *Config) { c.TOTPPeriod = 1500 * time.Millisecond }, wantErr: true},
		{name: "no dsn", mutate: func(c *Config) { c.DatabaseDSN = "" }, wantErr: true},
		{name: "no redis", mutate: func(c *Config) { c.RedisAddr = "" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr {
				require.ErrorIs(t, err, common.ErrConfiguration)
				return
			}
			require.NoError(t, err)
		})
	}
}
