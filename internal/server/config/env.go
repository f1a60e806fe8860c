package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const envPrefix = "AUTHKEEPER_"

// dotenvFiles are loaded, if present, before the environment is read.
// Variables already set in the process environment are never overwritten.
var dotenvFiles = []string{".env"}

// parseEnv overlays AUTHKEEPER_* environment variables. Malformed numeric or
// duration values panic, like a malformed JSON file does.
func parseEnv(config *Config) {
	for _, f := range dotenvFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			panic(err)
		}
	}

	envString(&config.Env, "ENV")
	envString(&config.EndpointAddrHTTP, "HTTP_ADDR")
	envString(&config.EndpointAddrGRPC, "GRPC_ADDR")
	envString(&config.DatabaseDSN, "DATABASE_DSN")
	envString(&config.RedisAddr, "REDIS_ADDR")
	envString(&config.RedisPassword, "REDIS_PASSWORD")
	envInt(&config.RedisDB, "REDIS_DB")
	envString(&config.BlacklistKeyPrefix, "BLACKLIST_KEY_PREFIX")
	envString(&config.SecretKey, "SECRET_KEY")
	envString(&config.Issuer, "ISSUER")
	envDuration(&config.AccessTokenValidityDuration, "ACCESS_TOKEN_TTL")
	envDuration(&config.RefreshTokenValidityDuration, "REFRESH_TOKEN_TTL")
	envDuration(&config.BlacklistDefaultTTL, "BLACKLIST_DEFAULT_TTL")
	envString(&config.TOTPIssuer, "TOTP_ISSUER")
	envDuration(&config.TOTPPeriod, "TOTP_PERIOD")
	if v, ok := lookup("TOTP_SKEW"); ok {
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			panic(err)
		}
		config.TOTPSkew = uint(n)
	}
	envDuration(&config.SweepInterval, "SWEEP_INTERVAL")
	envDuration(&config.StoreTimeout, "STORE_TIMEOUT")
	if v, ok := lookup("STORE_RETRY_ATTEMPTS"); ok {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			panic(err)
		}
		config.StoreRetryAttempts = n
	}
	envDuration(&config.StoreRetryBaseDelay, "STORE_RETRY_BASE_DELAY")
}

func lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(envPrefix + key)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

func envString(dst *string, key string) {
	if v, ok := lookup(key); ok {
		*dst = v
	}
}

func envInt(dst *int, key string) {
	if v, ok := lookup(key); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			panic(err)
		}
		*dst = n
	}
}

func envDuration(dst *time.Duration, key string) {
	if v, ok := lookup(key); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			panic(err)
		}
		*dst = d
	}
}
