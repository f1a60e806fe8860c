package auth

import (
	"fmt"
	"sync"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"golang.org/x/crypto/bcrypt"
)

// HashPassword returns a bcrypt hash of password at the default cost.
func HashPassword(password []byte) (string, error) {
	if len(password) == 0 {
		return "", fmt.Errorf("%w: empty password", common.ErrInvalidArgument)
	}
	hash, err := bcrypt.GenerateFromPassword(password, bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("%w: %v", common.ErrInvalidArgument, err)
	}
	return string(hash), nil
}

// VerifyPassword compares a presented password with a stored bcrypt hash.
// Any mismatch or malformed hash is simply false.
func VerifyPassword(presented, storedHash string) bool {
	if storedHash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(storedHash), []byte(presented)) == nil
}

var (
	dummyHashOnce sync.Once
	dummyHash     string
)

// SpendVerifyTime runs a bcrypt comparison that always fails, so logins for
// unknown accounts take as long as logins with a wrong password.
func SpendVerifyTime(presented string) {
	dummyHashOnce.Do(func() {
		h, err := bcrypt.GenerateFromPassword([]byte("authkeeper-timing-equalizer"), bcrypt.DefaultCost)
		if err == nil {
			dummyHash = string(h)
		}
	})
	_ = VerifyPassword(presented, dummyHash)
}
