package services

import (
	"fmt"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/server/auth"
	"github.com/dmitrijs2005/authkeeper/internal/server/roles"
)

// principalFromClaims trusts the claims only after signature verification.
// A token carrying an unknown role is treated as invalid.
func principalFromClaims(c *auth.Claims) (auth.Principal, error) {
	role, err := roles.Parse(c.Role)
	if err != nil || c.UserID == "" {
		return auth.Principal{}, fmt.Errorf("%w: bad principal claims", common.ErrInvalidToken)
	}
	email := c.Email
	if email == "" {
		email = c.Subject
	}
	return auth.Principal{UserID: c.UserID, Email: email, Role: role}, nil
}
