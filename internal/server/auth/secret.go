package auth

import (
	"fmt"
	"strings"

	"github.com/dmitrijs2005/authkeeper/internal/common"
)

// MinSecretKeyLength is the minimum HS256 signing key size in bytes.
const MinSecretKeyLength = 32

// knownPlaceholderSecrets are values copied from docs, samples and tutorials.
// Matching is case-insensitive.
var knownPlaceholderSecrets = []string{
	"secret",
	"secretkey",
	"changeme",
	"change-me",
	"qwerty1234",
	"jwt-secret",
	"your-secret-key",
	"your-256-bit-secret",
	"your-256-bit-secret-change-me-in-production",
	"your-super-secret-jwt-key-change-in-production",
	"change-this-to-a-long-random-secret-value",
	"please-change-this-secret-key-in-production",
	"0123456789abcdef0123456789abcdef",
}

// ValidateSecretKey rejects a signing key that is missing, too short or a
// well-known placeholder. The error wraps common.ErrConfiguration and never
// contains the key itself.
func ValidateSecretKey(secret []byte) error {
	if len(secret) == 0 {
		return fmt.Errorf("%w: signing secret is not set", common.ErrConfiguration)
	}
	if len(secret) < MinSecretKeyLength {
		return fmt.Errorf("%w: signing secret must be at least %d bytes, got %d", common.ErrConfiguration, MinSecretKeyLength, len(secret))
	}

	s := strings.TrimSpace(string(secret))
	for _, p := range knownPlaceholderSecrets {
		if strings.EqualFold(s, p) {
			return fmt.Errorf("%w: signing secret is a known placeholder value", common.ErrConfiguration)
		}
	}
	return nil
}
