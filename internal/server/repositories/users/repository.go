package users

import (
	"context"

	"github.com/dmitrijs2005/authkeeper/internal/server/models"
)

// Repository is the credential store the login pipeline reads from.
// Lookups return common.ErrorNotFound for unknown users.
type Repository interface {
	Create(ctx context.Context, user *models.User) (*models.User, error)
	GetCredentialsByLogin(ctx context.Context, email string) (*models.User, error)
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	// SetTOTPSecret stores a pending secret and clears the enabled flag.
	SetTOTPSecret(ctx context.Context, id string, secret string) error
	// EnableTOTP confirms the pending secret. It reports common.ErrorNotFound
	// when the stored secret no longer equals secret.
	EnableTOTP(ctx context.Context, id string, secret string) error
}
