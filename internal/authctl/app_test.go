package authctl

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/authkeeper/internal/dbx"
	"github.com/dmitrijs2005/authkeeper/internal/server/auth"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/users"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRepoManager struct {
	migrateErr error
	migrated   bool
}

func (f *fakeRepoManager) RunMigrations(ctx context.Context, db *sql.DB) error {
	f.migrated = true
	return f.migrateErr
}

func (f *fakeRepoManager) Users(db dbx.DBTX) users.Repository {
	return users.NewPostgresRepository(db)
}

func (f *fakeRepoManager) RefreshTokens(db dbx.DBTX) refreshtokens.Repository {
	return refreshtokens.NewPostgresRepository(db)
}

func newTestApp(t *testing.T, db *sql.DB, rm *fakeRepoManager) (*App, *bytes.Buffer, *bytes.Buffer) {
	return newTestAppWithInput(t, "", db, rm)
}

func newTestAppWithInput(t *testing.T, input string, db *sql.DB, rm *fakeRepoManager) (*App, *bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	var out, errOut bytes.Buffer
	app := NewApp(strings.NewReader(input), &out, &errOut)
	app.repomanager = rm
	app.openDB = func(ctx context.Context, dsn string) (*sql.DB, error) {
		if db == nil {
			return nil, errors.New("no database")
		}
		return db, nil
	}
	return app, &out, &errOut
}

func TestRun_Usage(t *testing.T) {
	app, _, errOut := newTestApp(t, nil, &fakeRepoManager{})
	assert.Equal(t, 2, app.Run(context.Background(), nil))
	assert.Contains(t, errOut.String(), "usage:")

	errOut.Reset()
	assert.Equal(t, 2, app.Run(context.Background(), []string{"bogus"}))
	assert.Contains(t, errOut.String(), `unknown command "bogus"`)
}

func TestRun_Help(t *testing.T) {
	app, out, _ := newTestApp(t, nil, &fakeRepoManager{})
	assert.Equal(t, 0, app.Run(context.Background(), []string{"help"}))
	assert.Contains(t, out.String(), "seed-user")
}

func TestHash(t *testing.T) {
	stubPasswords(t, "correct horse", "correct horse")
	app, out, _ := newTestApp(t, nil, &fakeRepoManager{})

	require.Equal(t, 0, app.Run(context.Background(), []string{"hash"}))

	hash := strings.TrimSpace(out.String())
	assert.True(t, auth.VerifyPassword("correct horse", hash))
}

func TestHash_Mismatch(t *testing.T) {
	stubPasswords(t, "a", "b")
	app, out, errOut := newTestApp(t, nil, &fakeRepoManager{})

	assert.Equal(t, 1, app.Run(context.Background(), []string{"hash"}))
	assert.Empty(t, out.String())
	assert.Contains(t, errOut.String(), "passwords do not match")
}

func TestSeedUser_Success(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	mock.ExpectQuery(`(?s)^INSERT\s+INTO\s+users.*RETURNING\s+id,\s*created_at\s*$`).
		WithArgs("admin@example.com", sqlmock.AnyArg(), "admin", true).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow("u-1", time.Now()))
	mock.ExpectClose()

	stubPasswords(t, "pw", "pw")
	rm := &fakeRepoManager{}
	app, out, errOut := newTestApp(t, db, rm)

	code := app.Run(context.Background(), []string{"seed-user", "-email", " Admin@Example.com ", "-role", "admin"})
	require.Equal(t, 0, code, errOut.String())
	assert.True(t, rm.migrated)
	assert.Contains(t, out.String(), "created user u-1 (admin@example.com, admin)")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSeedUser_Inactive(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	mock.ExpectQuery(`(?s)^INSERT\s+INTO\s+users.*$`).
		WithArgs("bob@example.com", sqlmock.AnyArg(), "user", false).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow("u-2", time.Now()))
	mock.ExpectClose()

	stubPasswords(t, "pw", "pw")
	app, _, errOut := newTestApp(t, db, &fakeRepoManager{})

	code := app.Run(context.Background(), []string{"seed-user", "-email", "bob@example.com", "-inactive"})
	require.Equal(t, 0, code, errOut.String())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSeedUser_PromptsForEmail(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	mock.ExpectQuery(`(?s)^INSERT\s+INTO\s+users.*$`).
		WithArgs("carol@example.com", sqlmock.AnyArg(), "manager", true).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow("u-3", time.Now()))
	mock.ExpectClose()

	stubPasswords(t, "pw", "pw")
	app, out, errOut := newTestAppWithInput(t, "carol@example.com\n", db, &fakeRepoManager{})

	code := app.Run(context.Background(), []string{"seed-user", "-role", "manager"})
	require.Equal(t, 0, code, errOut.String())
	assert.Contains(t, errOut.String(), "E-mail:")
	assert.Contains(t, out.String(), "created user u-3")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSeedUser_Validation(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{name: "missing email", args: []string{"seed-user"}, want: "-email is required"},
		{name: "bad role", args: []string{"seed-user", "-email", "a@b.c", "-role", "root"}, want: "root"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			app, _, errOut := newTestApp(t, nil, &fakeRepoManager{})
			assert.Equal(t, 1, app.Run(context.Background(), tc.args))
			assert.Contains(t, errOut.String(), tc.want)
		})
	}
}

func TestSeedUser_MigrationError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	mock.ExpectClose()

	stubPasswords(t, "pw", "pw")
	app, _, errOut := newTestApp(t, db, &fakeRepoManager{migrateErr: errors.New("boom")})

	assert.Equal(t, 1, app.Run(context.Background(), []string{"seed-user", "-email", "a@b.c"}))
	assert.Contains(t, errOut.String(), "migrations: boom")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSeedUser_OpenError(t *testing.T) {
	stubPasswords(t, "pw", "pw")
	app, _, errOut := newTestApp(t, nil, &fakeRepoManager{})

	assert.Equal(t, 1, app.Run(context.Background(), []string{"seed-user", "-email", "a@b.c"}))
	assert.Contains(t, errOut.String(), "no database")
}

func TestTOTPSecret_PrintsURI(t *testing.T) {
	app, out, errOut := newTestApp(t, nil, &fakeRepoManager{})

	code := app.Run(context.Background(), []string{"totp-secret", "-account", "alice@example.com", "-issuer", "Acme"})
	require.Equal(t, 0, code, errOut.String())

	s := out.String()
	assert.Contains(t, s, "secret: ")
	assert.Contains(t, s, "otpauth://totp/Acme:alice@example.com?")
	assert.NotContains(t, s, "qr:")
}

func TestTOTPSecret_WritesPNG(t *testing.T) {
	path := filepath.Join(t.TempDir(), "qr.png")
	app, out, errOut := newTestApp(t, nil, &fakeRepoManager{})

	code := app.Run(context.Background(), []string{"totp-secret", "-account", "alice@example.com", "-out", path})
	require.Equal(t, 0, code, errOut.String())
	assert.Contains(t, out.String(), "qr:     "+path)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	img, err := png.Decode(f)
	require.NoError(t, err)
	assert.Equal(t, 256, img.Bounds().Dx())
}

func TestTOTPSecret_MissingAccount(t *testing.T) {
	app, _, errOut := newTestApp(t, nil, &fakeRepoManager{})
	assert.Equal(t, 1, app.Run(context.Background(), []string{"totp-secret"}))
	assert.NotEmpty(t, errOut.String())
}
