// Package services contains server-side business logic: the authentication
// pipeline, the refresh token store and its background sweeper.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/dbx"
	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/dmitrijs2005/authkeeper/internal/retryx"
	"github.com/dmitrijs2005/authkeeper/internal/server/auth"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/repomanager"
)

// Blacklist is the revocation overlay for access tokens.
type Blacklist interface {
	Blacklist(ctx context.Context, token string, ttl time.Duration) error
	IsBlacklisted(ctx context.Context, token string) (bool, error)
}

// SecretSealer encrypts TOTP seeds before they reach the users table.
type SecretSealer interface {
	Seal(plaintext string) (string, error)
	Open(sealed string) (string, error)
}

// RefreshStore is the subset of RefreshTokenStore the pipeline needs.
type RefreshStore interface {
	Create(ctx context.Context, userID string) (string, error)
	Validate(ctx context.Context, token string) (string, bool, error)
	Revoke(ctx context.Context, token string) error
	RevokeAll(ctx context.Context, userID string) (int64, error)
}

// LoginRequest carries presented credentials. TOTPCode is only consulted for
// accounts with a second factor enabled.
type LoginRequest struct {
	Email    string
	Password string
	TOTPCode string
}

// TokenPair is returned by a successful login.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    time.Duration
	Principal    auth.Principal
}

// AccessGrant is returned by a successful refresh. The refresh token itself
// stays valid; it is not rotated.
type AccessGrant struct {
	AccessToken string
	ExpiresIn   time.Duration
}

// TOTPEnrollment is the material a user scans into an authenticator app.
type TOTPEnrollment struct {
	Secret          string
	ProvisioningURI string
	QRImage         string
}

// AuthService orchestrates login, per-request authentication, refresh,
// logout and second-factor enrollment.
type AuthService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	codec       *auth.Codec
	totp        *auth.TOTPGate
	sealer      SecretSealer
	blacklist   Blacklist
	refresh     RefreshStore
	accessTTL   time.Duration
	policy      retryx.Policy
	logger      logging.Logger
}

func NewAuthService(
	db *sql.DB,
	m repomanager.RepositoryManager,
	codec *auth.Codec,
	totp *auth.TOTPGate,
	sealer SecretSealer,
	blacklist Blacklist,
	refresh RefreshStore,
	accessTTL time.Duration,
	policy retryx.Policy,
	logger logging.Logger,
) *AuthService {
	if logger == nil {
		logger = logging.Nop{}
	}
	return &AuthService{
		db:          db,
		repomanager: m,
		codec:       codec,
		totp:        totp,
		sealer:      sealer,
		blacklist:   blacklist,
		refresh:     refresh,
		accessTTL:   accessTTL,
		policy:      policy,
		logger:      logger.With("module", "auth"),
	}
}

// Login verifies the password and, when enabled, the TOTP code, then mints
// an access token and a refresh token. Unknown accounts and wrong passwords
// are indistinguishable to the caller.
func (s *AuthService) Login(ctx context.Context, req LoginRequest) (*TokenPair, error) {
	email := strings.TrimSpace(req.Email)
	if email == "" || req.Password == "" {
		return nil, common.ErrInvalidCredentials
	}

	user, err := s.userByLogin(ctx, email)
	if errors.Is(err, common.ErrorNotFound) {
		auth.SpendVerifyTime(req.Password)
		s.logger.Info(ctx, "login rejected", "reason", "invalid_credentials")
		return nil, common.ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	if !auth.VerifyPassword(req.Password, user.PasswordHash) {
		s.logger.Info(ctx, "login rejected", "reason", "invalid_credentials")
		return nil, common.ErrInvalidCredentials
	}
	if !user.IsActive {
		s.logger.Info(ctx, "login rejected", "user_id", user.ID, "reason", "account_disabled")
		return nil, common.ErrAccountDisabled
	}

	if user.SecondFactorRequired() {
		if strings.TrimSpace(req.TOTPCode) == "" {
			return nil, common.ErrSecondFactorRequired
		}
		ok, err := s.verifySecondFactor(user.TOTPSecret, req.TOTPCode)
		if err != nil {
			s.logger.Error(ctx, "cannot open totp secret", "user_id", user.ID, "error", err)
			return nil, common.ErrorInternal
		}
		if !ok {
			s.logger.Info(ctx, "login rejected", "user_id", user.ID, "reason", "invalid_second_factor")
			return nil, common.ErrInvalidSecondFactorCode
		}
	}

	principal := principalOf(user)
	access, err := s.issueAccess(principal)
	if err != nil {
		return nil, err
	}

	refresh, err := s.refresh.Create(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "login succeeded", "user_id", user.ID, "role", principal.Role.String())
	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    s.accessTTL,
		Principal:    principal,
	}, nil
}

// Authenticate turns a bearer access token into a Principal. The blacklist
// is consulted before expiry, and a store outage is reported as such rather
// than as a rejected token.
func (s *AuthService) Authenticate(ctx context.Context, accessToken string) (auth.Principal, error) {
	if accessToken == "" {
		return auth.Principal{}, common.ErrInvalidToken
	}

	claims, err := s.codec.Parse(accessToken)
	if err != nil {
		return auth.Principal{}, common.ErrInvalidToken
	}

	revoked, err := s.blacklist.IsBlacklisted(ctx, accessToken)
	if err != nil {
		return auth.Principal{}, storeUnavailable(err)
	}
	if revoked {
		return auth.Principal{}, common.ErrRevokedToken
	}

	if s.codec.Expired(claims) {
		return auth.Principal{}, common.ErrTokenExpired
	}

	return principalFromClaims(claims)
}

// Refresh exchanges a refresh token for a new access token. Unknown,
// revoked and expired refresh tokens all yield ErrRevokedToken.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*AccessGrant, error) {
	userID, ok, err := s.refresh.Validate(ctx, refreshToken)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, common.ErrRevokedToken
	}

	user, err := s.userByID(ctx, userID)
	if errors.Is(err, common.ErrorNotFound) {
		return nil, common.ErrRevokedToken
	}
	if err != nil {
		return nil, err
	}
	if !user.IsActive {
		return nil, common.ErrAccountDisabled
	}

	access, err := s.issueAccess(principalOf(user))
	if err != nil {
		return nil, err
	}
	return &AccessGrant{AccessToken: access, ExpiresIn: s.accessTTL}, nil
}

// Logout blacklists the access token for the rest of its lifetime and
// revokes refreshToken when given. A refresh token is a bearer capability,
// so whoever presents it may revoke it regardless of owner. Repeating it is
// harmless.
func (s *AuthService) Logout(ctx context.Context, accessToken, refreshToken string) error {
	if err := s.blacklistAccess(ctx, accessToken); err != nil {
		return err
	}
	if refreshToken != "" {
		if err := s.refresh.Revoke(ctx, refreshToken); err != nil {
			return err
		}
	}
	return nil
}

// LogoutEverywhere blacklists the current access token and revokes every
// refresh token of the principal.
func (s *AuthService) LogoutEverywhere(ctx context.Context, accessToken string, p auth.Principal) error {
	if err := s.blacklistAccess(ctx, accessToken); err != nil {
		return err
	}
	if _, err := s.refresh.RevokeAll(ctx, p.UserID); err != nil {
		return err
	}
	return nil
}

// SetupTOTP generates and stores a pending secret for p. The second factor
// is not enforced until EnableTOTP confirms a code.
func (s *AuthService) SetupTOTP(ctx context.Context, p auth.Principal) (*TOTPEnrollment, error) {
	user, err := s.userByID(ctx, p.UserID)
	if err != nil {
		return nil, notFoundAsInvalidToken(err)
	}
	if user.TOTPEnabled {
		return nil, fmt.Errorf("%w: second factor already enabled", common.ErrInvalidArgument)
	}

	secret, err := s.totp.GenerateSecret()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrorInternal, err)
	}
	uri, err := s.totp.ProvisioningURI(user.Email, secret)
	if err != nil {
		return nil, err
	}
	qr, err := s.totp.GenerateQRImage(uri)
	if err != nil {
		return nil, err
	}

	sealed, err := s.sealer.Seal(secret)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrorInternal, err)
	}

	repo := s.repomanager.Users(s.db)
	if err := s.do(ctx, func(ctx context.Context) error {
		return repo.SetTOTPSecret(ctx, user.ID, sealed)
	}); err != nil {
		return nil, notFoundAsInvalidToken(storeOrNotFound(err))
	}

	s.logger.Info(ctx, "totp enrollment started", "user_id", user.ID)
	return &TOTPEnrollment{Secret: secret, ProvisioningURI: uri, QRImage: qr}, nil
}

// EnableTOTP confirms the pending secret with a code and turns the second
// factor on. The flip only happens while the stored secret is still the one
// the code was checked against.
func (s *AuthService) EnableTOTP(ctx context.Context, p auth.Principal, code string) error {
	err := s.do(ctx, func(ctx context.Context) error {
		return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
			repo := s.repomanager.Users(tx)

			user, err := repo.GetUserByID(ctx, p.UserID)
			if err != nil {
				return err
			}
			if user.TOTPEnabled {
				return nil
			}
			if user.TOTPSecret == "" {
				return retryx.Permanent(fmt.Errorf("%w: no pending second factor", common.ErrInvalidArgument))
			}
			ok, err := s.verifySecondFactor(user.TOTPSecret, code)
			if err != nil {
				return retryx.Permanent(fmt.Errorf("%w: %v", common.ErrorInternal, err))
			}
			if !ok {
				return retryx.Permanent(common.ErrInvalidSecondFactorCode)
			}

			err = repo.EnableTOTP(ctx, user.ID, user.TOTPSecret)
			if errors.Is(err, common.ErrorNotFound) {
				// a concurrent SetupTOTP replaced the secret the code was checked against
				return retryx.Permanent(fmt.Errorf("%w: pending secret changed", common.ErrInvalidSecondFactorCode))
			}
			return err
		})
	})
	switch {
	case err == nil:
		s.logger.Info(ctx, "totp enabled", "user_id", p.UserID)
		return nil
	case errors.Is(err, common.ErrInvalidArgument), errors.Is(err, common.ErrInvalidSecondFactorCode):
		return err
	case errors.Is(err, common.ErrorInternal):
		s.logger.Error(ctx, "totp enable failed", "user_id", p.UserID, "error", err)
		return common.ErrorInternal
	default:
		return notFoundAsInvalidToken(storeOrNotFound(err))
	}
}

func (s *AuthService) verifySecondFactor(sealed, code string) (bool, error) {
	secret, err := s.sealer.Open(sealed)
	if err != nil {
		return false, err
	}
	return s.totp.VerifyCode(secret, code), nil
}

func (s *AuthService) blacklistAccess(ctx context.Context, accessToken string) error {
	claims, err := s.codec.Parse(accessToken)
	if err != nil {
		return common.ErrInvalidToken
	}

	ttl := s.codec.RemainingTTL(claims)
	if ttl <= 0 {
		return nil
	}
	if err := s.blacklist.Blacklist(ctx, accessToken, ttl); err != nil {
		return storeUnavailable(err)
	}
	return nil
}

func (s *AuthService) issueAccess(p auth.Principal) (string, error) {
	token, err := s.codec.Issue(p.Email, auth.Claims{
		UserID: p.UserID,
		Email:  p.Email,
		Role:   p.Role.String(),
	}, s.accessTTL)
	if err != nil {
		return "", fmt.Errorf("%w: %v", common.ErrorInternal, err)
	}
	return token, nil
}

func (s *AuthService) userByLogin(ctx context.Context, email string) (*models.User, error) {
	repo := s.repomanager.Users(s.db)
	var user *models.User
	err := s.do(ctx, func(ctx context.Context) error {
		var err error
		user, err = repo.GetCredentialsByLogin(ctx, email)
		return err
	})
	if err != nil {
		return nil, storeOrNotFound(err)
	}
	return user, nil
}

func (s *AuthService) userByID(ctx context.Context, id string) (*models.User, error) {
	repo := s.repomanager.Users(s.db)
	var user *models.User
	err := s.do(ctx, func(ctx context.Context) error {
		var err error
		user, err = repo.GetUserByID(ctx, id)
		return err
	})
	if err != nil {
		return nil, storeOrNotFound(err)
	}
	return user, nil
}

func (s *AuthService) do(ctx context.Context, fn func(ctx context.Context) error) error {
	return retryx.Do(ctx, s.policy, func(ctx context.Context) error {
		err := fn(ctx)
		switch {
		case errors.Is(err, common.ErrorNotFound),
			errors.Is(err, common.ErrInvalidArgument),
			errors.Is(err, common.ErrorInternal):
			return retryx.Permanent(err)
		}
		return err
	})
}

func principalOf(u *models.User) auth.Principal {
	return auth.Principal{UserID: u.ID, Email: u.Email, Role: u.Role}
}

// storeOrNotFound keeps not-found and corrupt-row errors apart from outages.
func storeOrNotFound(err error) error {
	switch {
	case errors.Is(err, common.ErrorNotFound):
		return common.ErrorNotFound
	case errors.Is(err, common.ErrorInternal):
		return common.ErrorInternal
	}
	return storeUnavailable(err)
}

// notFoundAsInvalidToken covers a principal whose user row has gone away.
func notFoundAsInvalidToken(err error) error {
	if errors.Is(err, common.ErrorNotFound) {
		return common.ErrInvalidToken
	}
	return err
}
