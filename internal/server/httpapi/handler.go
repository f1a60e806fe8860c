// Package httpapi is the gin HTTP transport of the authentication core.
package httpapi

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/dmitrijs2005/authkeeper/internal/server/auth"
	"github.com/dmitrijs2005/authkeeper/internal/server/services"
	"github.com/gin-gonic/gin"
)

// AuthService is what the handlers need from services.AuthService.
type AuthService interface {
	TokenAuthenticator
	Login(ctx context.Context, req services.LoginRequest) (*services.TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (*services.AccessGrant, error)
	Logout(ctx context.Context, accessToken, refreshToken string) error
	LogoutEverywhere(ctx context.Context, accessToken string, p auth.Principal) error
	SetupTOTP(ctx context.Context, p auth.Principal) (*services.TOTPEnrollment, error)
	EnableTOTP(ctx context.Context, p auth.Principal, code string) error
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
	TOTPCode string `json:"totp_code"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

type logoutRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type enableTOTPRequest struct {
	Code string `json:"code" binding:"required"`
}

type userResponse struct {
	ID          string   `json:"id"`
	Email       string   `json:"email"`
	Role        string   `json:"role"`
	Permissions []string `json:"permissions,omitempty"`
}

type loginResponse struct {
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
	TokenType    string       `json:"token_type"`
	ExpiresIn    int64        `json:"expires_in"`
	User         userResponse `json:"user"`
}

type refreshResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

type totpSetupResponse struct {
	Secret          string `json:"secret"`
	ProvisioningURI string `json:"provisioning_uri"`
	QRImage         string `json:"qr_image"`
}

const tokenType = "Bearer"

type AuthHandler struct {
	svc AuthService
}

func NewAuthHandler(svc AuthService) *AuthHandler {
	return &AuthHandler{svc: svc}
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	pair, err := h.svc.Login(c.Request.Context(), services.LoginRequest{
		Email:    req.Email,
		Password: req.Password,
		TOTPCode: req.TOTPCode,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, loginResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    tokenType,
		ExpiresIn:    int64(pair.ExpiresIn.Seconds()),
		User:         toUserResponse(pair.Principal, false),
	})
}

func (h *AuthHandler) Refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	grant, err := h.svc.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, refreshResponse{
		AccessToken: grant.AccessToken,
		TokenType:   tokenType,
		ExpiresIn:   int64(grant.ExpiresIn.Seconds()),
	})
}

// Logout accepts an empty body; the refresh token is optional.
func (h *AuthHandler) Logout(c *gin.Context) {
	var req logoutRequest
	if c.Request.Body != nil {
		// chunked bodies report ContentLength -1, so decode and treat EOF as empty
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
	}

	if err := h.svc.Logout(c.Request.Context(), accessToken(c), req.RefreshToken); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "logged_out"})
}

func (h *AuthHandler) LogoutAll(c *gin.Context) {
	p, _ := GetPrincipal(c)
	if err := h.svc.LogoutEverywhere(c.Request.Context(), accessToken(c), p); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "logged_out"})
}

func (h *AuthHandler) SetupTOTP(c *gin.Context) {
	p, _ := GetPrincipal(c)
	enr, err := h.svc.SetupTOTP(c.Request.Context(), p)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, totpSetupResponse{
		Secret:          enr.Secret,
		ProvisioningURI: enr.ProvisioningURI,
		QRImage:         enr.QRImage,
	})
}

func (h *AuthHandler) EnableTOTP(c *gin.Context) {
	var req enableTOTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	p, _ := GetPrincipal(c)
	if err := h.svc.EnableTOTP(c.Request.Context(), p, req.Code); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "enabled"})
}

func (h *AuthHandler) Me(c *gin.Context) {
	p, ok := GetPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.JSON(http.StatusOK, toUserResponse(p, true))
}

func toUserResponse(p auth.Principal, withPermissions bool) userResponse {
	r := userResponse{ID: p.UserID, Email: p.Email, Role: p.Role.String()}
	if withPermissions {
		r.Permissions = p.Role.PermissionNames()
	}
	return r
}
