package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/flagx"
	"github.com/dmitrijs2005/authkeeper/internal/timex"
)

// JsonConfig is the on-disk representation of Config. Durations accept
// strings such as "15m" or integer nanoseconds. Absent fields keep the
// value already present in Config.
type JsonConfig struct {
	Env                          *string         `json:"env"`
	EndpointAddrHTTP             *string         `json:"endpoint_addr_http"`
	EndpointAddrGRPC             *string         `json:"endpoint_addr_grpc"`
	DatabaseDSN                  *string         `json:"database_dsn"`
	RedisAddr                    *string         `json:"redis_addr"`
	RedisPassword                *string         `json:"redis_password"`
	RedisDB                      *int            `json:"redis_db"`
	BlacklistKeyPrefix           *string         `json:"blacklist_key_prefix"`
	SecretKey                    *string         `json:"secret_key"`
	Issuer                       *string         `json:"issuer"`
	AccessTokenValidityDuration  *timex.Duration `json:"access_token_validity_duration"`
	RefreshTokenValidityDuration *timex.Duration `json:"refresh_token_validity_duration"`
	BlacklistDefaultTTL          *timex.Duration `json:"blacklist_default_ttl"`
	TOTPIssuer                   *string         `json:"totp_issuer"`
	TOTPPeriod                   *timex.Duration `json:"totp_period"`
	TOTPSkew                     *uint           `json:"totp_skew"`
	SweepInterval                *timex.Duration `json:"sweep_interval"`
	StoreTimeout                 *timex.Duration `json:"store_timeout"`
	StoreRetryAttempts           *uint64         `json:"store_retry_attempts"`
	StoreRetryBaseDelay          *timex.Duration `json:"store_retry_base_delay"`
}

// parseJson overlays values from the JSON file named by -c/-config (or the
// AUTHKEEPER_CONFIG environment variable). A missing path is a no-op; an
// unreadable or malformed file panics, which aborts startup.
func parseJson(config *Config) {
	path := flagx.ConfigPath(os.Args[1:], envPrefix+"CONFIG")
	if path == "" {
		return
	}

	file, err := os.ReadFile(path)
	if err != nil {
		panic(err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	c.apply(config)
}

func (c *JsonConfig) apply(config *Config) {
	setString(&config.Env, c.Env)
	setString(&config.EndpointAddrHTTP, c.EndpointAddrHTTP)
	setString(&config.EndpointAddrGRPC, c.EndpointAddrGRPC)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.RedisAddr, c.RedisAddr)
	setString(&config.RedisPassword, c.RedisPassword)
	if c.RedisDB != nil {
		config.RedisDB = *c.RedisDB
	}
	setString(&config.BlacklistKeyPrefix, c.BlacklistKeyPrefix)
	setString(&config.SecretKey, c.SecretKey)
	setString(&config.Issuer, c.Issuer)
	setDuration(&config.AccessTokenValidityDuration, c.AccessTokenValidityDuration)
	setDuration(&config.RefreshTokenValidityDuration, c.RefreshTokenValidityDuration)
	setDuration(&config.BlacklistDefaultTTL, c.BlacklistDefaultTTL)
	setString(&config.TOTPIssuer, c.TOTPIssuer)
	setDuration(&config.TOTPPeriod, c.TOTPPeriod)
	if c.TOTPSkew != nil {
		config.TOTPSkew = *c.TOTPSkew
	}
	setDuration(&config.SweepInterval, c.SweepInterval)
	setDuration(&config.StoreTimeout, c.StoreTimeout)
	if c.StoreRetryAttempts != nil {
		config.StoreRetryAttempts = *c.StoreRetryAttempts
	}
	setDuration(&config.StoreRetryBaseDelay, c.StoreRetryBaseDelay)
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setDuration(dst *time.Duration, v *timex.Duration) {
	if v != nil {
		*dst = v.Duration
	}
}
