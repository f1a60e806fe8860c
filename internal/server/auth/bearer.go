package auth

import (
	"strings"

	"github.com/dmitrijs2005/authkeeper/internal/common"
)

// BearerToken extracts the token from an "Authorization: Bearer ..." value.
// The scheme is matched case-insensitively.
func BearerToken(header string) (string, bool) {
	if len(header) < len(common.BearerPrefix) || !strings.EqualFold(header[:len(common.BearerPrefix)], common.BearerPrefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(common.BearerPrefix):])
	return token, token != ""
}
