package models

import (
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/server/roles"
)

// User is the credential record the pipeline authenticates against.
// TOTPSecret may be set while TOTPEnabled is still false: that is a pending
// enrollment which does not yet gate logins.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	Role         roles.Role
	IsActive     bool
	TOTPSecret   string
	TOTPEnabled  bool
	CreatedAt    time.Time
}

// SecondFactorRequired reports whether login must present a TOTP code.
func (u *User) SecondFactorRequired() bool {
	return u.TOTPEnabled && u.TOTPSecret != ""
}
