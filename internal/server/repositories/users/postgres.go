package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/dbx"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/dmitrijs2005/authkeeper/internal/server/roles"
)

const selectUser = `SELECT id, email, password_hash, role, is_active, totp_secret, totp_enabled, created_at FROM users`

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	query :=
		`INSERT INTO users (email, password_hash, role, is_active)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, created_at
		 `

	err := r.db.QueryRowContext(ctx, query,
		normalizeEmail(user.Email), user.PasswordHash, user.Role.String(), user.IsActive).Scan(&user.ID, &user.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	user.Email = normalizeEmail(user.Email)
	return user, nil
}

func (r *PostgresRepository) GetCredentialsByLogin(ctx context.Context, email string) (*models.User, error) {
	return r.getOne(ctx, selectUser+` WHERE email = $1`, normalizeEmail(email))
}

func (r *PostgresRepository) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	return r.getOne(ctx, selectUser+` WHERE id = $1`, id)
}

func (r *PostgresRepository) SetTOTPSecret(ctx context.Context, id string, secret string) error {
	query :=
		`UPDATE users SET totp_secret = $2, totp_enabled = FALSE
		 WHERE id = $1
		 `
	return r.execOne(ctx, query, id, secret)
}

// EnableTOTP only flips the flag while the stored secret is still secret,
// so a concurrent SetTOTPSecret makes it fail with common.ErrorNotFound.
func (r *PostgresRepository) EnableTOTP(ctx context.Context, id string, secret string) error {
	query :=
		`UPDATE users SET totp_enabled = TRUE
		 WHERE id = $1 AND totp_secret = $2
		 `
	return r.execOne(ctx, query, id, secret)
}

func (r *PostgresRepository) getOne(ctx context.Context, query string, arg string) (*models.User, error) {
	var (
		user   models.User
		role   string
		secret sql.NullString
	)
	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&user.ID, &user.Email, &user.PasswordHash, &role, &user.IsActive, &secret, &user.TOTPEnabled, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	user.Role, err = roles.Parse(role)
	if err != nil {
		return nil, fmt.Errorf("%w: user %s has unknown role %q", common.ErrorInternal, user.ID, role)
	}
	user.TOTPSecret = secret.String
	return &user, nil
}

func (r *PostgresRepository) execOne(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
