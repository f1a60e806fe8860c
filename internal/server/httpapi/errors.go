package httpapi

import (
	"errors"
	"net/http"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/gin-gonic/gin"
)

type errorMapping struct {
	target  error
	status  int
	message string
}

// first match wins; messages are fixed so store and token details never leak
var errorTable = []errorMapping{
	{common.ErrInvalidArgument, http.StatusBadRequest, "invalid request"},
	{common.ErrInvalidCredentials, http.StatusUnauthorized, "invalid credentials"},
	{common.ErrSecondFactorRequired, http.StatusUnauthorized, "second factor required"},
	{common.ErrInvalidSecondFactorCode, http.StatusUnauthorized, "invalid second factor code"},
	{common.ErrTokenExpired, http.StatusUnauthorized, "token expired"},
	{common.ErrRevokedToken, http.StatusUnauthorized, "token revoked"},
	{common.ErrInvalidToken, http.StatusUnauthorized, "invalid token"},
	{common.ErrAccountDisabled, http.StatusForbidden, "account disabled"},
	{common.ErrStoreUnavailable, http.StatusServiceUnavailable, "service unavailable"},
}

func statusFor(err error) (int, string) {
	for _, m := range errorTable {
		if errors.Is(err, m.target) {
			return m.status, m.message
		}
	}
	return http.StatusInternalServerError, "server error"
}

func writeError(c *gin.Context, err error) {
	code, msg := statusFor(err)
	c.AbortWithStatusJSON(code, gin.H{"error": msg})
}
