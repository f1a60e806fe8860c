package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/dbx"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	refreshtokensrepo "github.com/dmitrijs2005/authkeeper/internal/server/repositories/refreshtokens"
	usersrepo "github.com/dmitrijs2005/authkeeper/internal/server/repositories/users"
)

// --- in-memory repositories ---

type memUsers struct {
	mu   sync.Mutex
	rows map[string]models.User
	seq     int
	err     error
	lookups int

	// beforeEnable runs at the start of EnableTOTP, outside the lock.
	beforeEnable func()
}

func newMemUsers() *memUsers { return &memUsers{rows: map[string]models.User{}} }

func (m *memUsers) Create(_ context.Context, u *models.User) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	m.seq++
	u.ID = fmt.Sprintf("u-%d", m.seq)
	u.Email = strings.ToLower(u.Email)
	u.CreatedAt = time.Now()
	m.rows[u.ID] = *u
	return u, nil
}

func (m *memUsers) GetCredentialsByLogin(_ context.Context, email string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lookups++
	if m.err != nil {
		return nil, m.err
	}
	for _, u := range m.rows {
		if u.Email == strings.ToLower(email) {
			c := u
			return &c, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (m *memUsers) GetUserByID(_ context.Context, id string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	u, ok := m.rows[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &u, nil
}

func (m *memUsers) SetTOTPSecret(_ context.Context, id string, secret string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	u, ok := m.rows[id]
	if !ok {
		return common.ErrorNotFound
	}
	u.TOTPSecret, u.TOTPEnabled = secret, false
	m.rows[id] = u
	return nil
}

func (m *memUsers) EnableTOTP(_ context.Context, id string, secret string) error {
	if m.beforeEnable != nil {
		m.beforeEnable()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	u, ok := m.rows[id]
	if !ok || u.TOTPSecret == "" || u.TOTPSecret != secret {
		return common.ErrorNotFound
	}
	u.TOTPEnabled = true
	m.rows[id] = u
	return nil
}

type memRefresh struct {
	mu         sync.Mutex
	rows       map[string]models.RefreshToken
	err        error
	calls      int
	sweepCalls int
}

func newMemRefresh() *memRefresh { return &memRefresh{rows: map[string]models.RefreshToken{}} }

func (m *memRefresh) fail() error {
	m.calls++
	return m.err
}

func (m *memRefresh) Create(_ context.Context, userID, hash string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(); err != nil {
		return err
	}
	if _, dup := m.rows[hash]; dup {
		return errors.New("duplicate token_hash")
	}
	m.rows[hash] = models.RefreshToken{ID: hash[:8], UserID: userID, TokenHash: hash, ExpiresAt: expiresAt, CreatedAt: time.Now()}
	return nil
}

func (m *memRefresh) Find(_ context.Context, hash string) (*models.RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(); err != nil {
		return nil, err
	}
	r, ok := m.rows[hash]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &r, nil
}

func (m *memRefresh) Revoke(_ context.Context, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(); err != nil {
		return err
	}
	if r, ok := m.rows[hash]; ok {
		r.Revoked = true
		m.rows[hash] = r
	}
	return nil
}

func (m *memRefresh) RevokeAllForUser(_ context.Context, userID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(); err != nil {
		return 0, err
	}
	var n int64
	for h, r := range m.rows {
		if r.UserID == userID && !r.Revoked {
			r.Revoked = true
			m.rows[h] = r
			n++
		}
	}
	return n, nil
}

func (m *memRefresh) DeleteExpiredBatch(_ context.Context, now time.Time, limit int) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweepCalls++
	if err := m.fail(); err != nil {
		return 0, err
	}
	var n int64
	for h, r := range m.rows {
		if int(n) == limit {
			break
		}
		if r.ExpiresAt.Before(now) {
			delete(m.rows, h)
			n++
		}
	}
	return n, nil
}

func (m *memRefresh) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

type fakeRepoManager struct {
	u *memUsers
	r *memRefresh
}

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error           { return nil }
func (m *fakeRepoManager) Users(db dbx.DBTX) usersrepo.Repository                 { return m.u }
func (m *fakeRepoManager) RefreshTokens(db dbx.DBTX) refreshtokensrepo.Repository { return m.r }
