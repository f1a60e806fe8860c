package services

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/dmitrijs2005/authkeeper/internal/retryx"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/repomanager"
)

// DefaultSweepBatchSize bounds a single delete statement of the sweep.
const DefaultSweepBatchSize = 1000

// HashRefreshToken is the at-rest form of a refresh token.
func HashRefreshToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// RefreshTokenStore issues and checks long-lived refresh tokens.
// Rows move ACTIVE -> REVOKED only; expired rows are removed by SweepExpired.
type RefreshTokenStore struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	validity    time.Duration
	policy      retryx.Policy
	batchSize   int
	now         func() time.Time
	logger      logging.Logger
}

func NewRefreshTokenStore(db *sql.DB, m repomanager.RepositoryManager, validity time.Duration, policy retryx.Policy, logger logging.Logger) *RefreshTokenStore {
	if logger == nil {
		logger = logging.Nop{}
	}
	return &RefreshTokenStore{
		db:          db,
		repomanager: m,
		validity:    validity,
		policy:      policy,
		batchSize:   DefaultSweepBatchSize,
		now:         time.Now,
		logger:      logger.With("module", "refreshtokens"),
	}
}

// Create persists a new ACTIVE token for userID and returns the raw token.
// The raw value is never stored.
func (s *RefreshTokenStore) Create(ctx context.Context, userID string) (string, error) {
	if userID == "" {
		return "", fmt.Errorf("%w: empty user id", common.ErrInvalidArgument)
	}

	token, err := common.NewOpaqueToken()
	if err != nil {
		return "", fmt.Errorf("%w: %v", common.ErrorInternal, err)
	}

	repo := s.repomanager.RefreshTokens(s.db)
	hash := HashRefreshToken(token)
	expiresAt := s.now().Add(s.validity)

	if err := s.do(ctx, func(ctx context.Context) error {
		return repo.Create(ctx, userID, hash, expiresAt)
	}); err != nil {
		s.logger.Error(ctx, "refresh token create failed", "user_id", userID, "error", err)
		return "", storeUnavailable(err)
	}
	return token, nil
}

// Validate returns the owning user id of an ACTIVE token. Unknown, revoked
// and expired tokens all answer ok=false without telling which.
func (s *RefreshTokenStore) Validate(ctx context.Context, token string) (string, bool, error) {
	if token == "" {
		return "", false, nil
	}

	repo := s.repomanager.RefreshTokens(s.db)
	hash := HashRefreshToken(token)

	var userID string
	var active bool
	err := s.do(ctx, func(ctx context.Context) error {
		row, err := repo.Find(ctx, hash)
		if err != nil {
			return err
		}
		userID, active = row.UserID, row.Active(s.now())
		return nil
	})
	if errors.Is(err, common.ErrorNotFound) {
		return "", false, nil
	}
	if err != nil {
		s.logger.Error(ctx, "refresh token lookup failed", "error", err)
		return "", false, storeUnavailable(err)
	}
	if !active {
		return "", false, nil
	}
	return userID, true, nil
}

// Revoke moves the token to REVOKED. Unknown tokens are a no-op.
func (s *RefreshTokenStore) Revoke(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}

	repo := s.repomanager.RefreshTokens(s.db)
	hash := HashRefreshToken(token)

	if err := s.do(ctx, func(ctx context.Context) error {
		return repo.Revoke(ctx, hash)
	}); err != nil {
		s.logger.Error(ctx, "refresh token revoke failed", "error", err)
		return storeUnavailable(err)
	}
	return nil
}

// RevokeAll revokes every token owned by userID.
func (s *RefreshTokenStore) RevokeAll(ctx context.Context, userID string) (int64, error) {
	repo := s.repomanager.RefreshTokens(s.db)

	var n int64
	if err := s.do(ctx, func(ctx context.Context) error {
		var err error
		n, err = repo.RevokeAllForUser(ctx, userID)
		return err
	}); err != nil {
		s.logger.Error(ctx, "refresh token revoke-all failed", "user_id", userID, "error", err)
		return 0, storeUnavailable(err)
	}
	s.logger.Info(ctx, "refresh tokens revoked", "user_id", userID, "count", n)
	return n, nil
}

// SweepExpired deletes rows with expiry strictly before now, revoked or not,
// in batches so no single statement holds locks for long.
func (s *RefreshTokenStore) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	repo := s.repomanager.RefreshTokens(s.db)

	var total int64
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		var n int64
		if err := s.do(ctx, func(ctx context.Context) error {
			var err error
			n, err = repo.DeleteExpiredBatch(ctx, now, s.batchSize)
			return err
		}); err != nil {
			return total, storeUnavailable(err)
		}

		total += n
		if n < int64(s.batchSize) {
			return total, nil
		}
	}
}

func (s *RefreshTokenStore) do(ctx context.Context, fn func(ctx context.Context) error) error {
	return retryx.Do(ctx, s.policy, func(ctx context.Context) error {
		err := fn(ctx)
		if errors.Is(err, common.ErrorNotFound) || errors.Is(err, common.ErrInvalidArgument) {
			return retryx.Permanent(err)
		}
		return err
	})
}

func storeUnavailable(err error) error {
	if errors.Is(err, common.ErrStoreUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", common.ErrStoreUnavailable, err)
}
