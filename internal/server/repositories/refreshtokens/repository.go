// Package refreshtokens declares the server-side repository contract for
// refresh tokens kept in persistent storage.
package refreshtokens

import (
	"context"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/server/models"
)

// Repository stores refresh tokens by digest. Callers never pass raw tokens.
type Repository interface {
	// Create stores a new active token for userID expiring at expiresAt.
	Create(ctx context.Context, userID string, tokenHash string, expiresAt time.Time) error

	// Find returns the row for tokenHash or common.ErrorNotFound.
	Find(ctx context.Context, tokenHash string) (*models.RefreshToken, error)

	// Revoke flips revoked to true. A missing or already revoked token is not an error.
	Revoke(ctx context.Context, tokenHash string) error

	// RevokeAllForUser revokes every active token owned by userID and
	// returns how many rows changed.
	RevokeAllForUser(ctx context.Context, userID string) (int64, error)

	// DeleteExpiredBatch removes at most limit rows with expires_at strictly
	// before now and returns the number removed.
	DeleteExpiredBatch(ctx context.Context, now time.Time, limit int) (int64, error)
}
