package authctl

import (
	"context"
	"encoding/base64"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/server/auth"
	"github.com/dmitrijs2005/authkeeper/internal/server/config"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/dmitrijs2005/authkeeper/internal/server/roles"
)

// Hash prompts for a password and prints its bcrypt hash.
func (a *App) Hash() error {
	pw, err := GetNewPassword(a.errOut)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(pw)

	hash, err := auth.HashPassword(pw)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, hash)
	return nil
}

// SeedUser migrates the schema and inserts one user.
func (a *App) SeedUser(ctx context.Context, args []string) error {
	defaults := &config.Config{}
	defaults.LoadDefaults()

	fs := flag.NewFlagSet("seed-user", flag.ContinueOnError)
	fs.SetOutput(a.errOut)
	email := fs.String("email", "", "login e-mail")
	roleLabel := fs.String("role", roles.RoleUser.String(), "user, manager or admin")
	inactive := fs.Bool("inactive", false, "create the account disabled")
	dsn := fs.String("d", envOr("AUTHKEEPER_DATABASE_DSN", defaults.DatabaseDSN), "database DSN")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if strings.TrimSpace(*email) == "" {
		*email, _ = GetSimpleText(a.in, "E-mail:", a.errOut)
	}
	if strings.TrimSpace(*email) == "" {
		return fmt.Errorf("%w: -email is required", common.ErrInvalidArgument)
	}
	role, err := roles.Parse(*roleLabel)
	if err != nil {
		return err
	}

	pw, err := GetNewPassword(a.errOut)
	if err != nil {
		return err
	}
	hash, err := auth.HashPassword(pw)
	common.WipeByteArray(pw)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	db, err := a.openDB(ctx, *dsn)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := a.repomanager.RunMigrations(ctx, db); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}

	u, err := a.repomanager.Users(db).Create(ctx, &models.User{
		Email:        *email,
		PasswordHash: hash,
		Role:         role,
		IsActive:     !*inactive,
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "created user %s (%s, %s)\n", u.ID, u.Email, u.Role)
	return nil
}

// TOTPSecret prints a fresh secret and its provisioning URI and optionally
// writes the QR code PNG to a file.
func (a *App) TOTPSecret(args []string) error {
	defaults := &config.Config{}
	defaults.LoadDefaults()

	fs := flag.NewFlagSet("totp-secret", flag.ContinueOnError)
	fs.SetOutput(a.errOut)
	account := fs.String("account", "", "account label, usually the e-mail")
	issuer := fs.String("issuer", defaults.TOTPIssuer, "issuer shown in the authenticator app")
	out := fs.String("out", "", "write the QR code PNG here")
	if err := fs.Parse(args); err != nil {
		return err
	}

	gate := auth.NewTOTPGate(*issuer, defaults.TOTPPeriod, defaults.TOTPSkew)

	secret, err := gate.GenerateSecret()
	if err != nil {
		return err
	}
	uri, err := gate.ProvisioningURI(*account, secret)
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "secret: %s\nuri:    %s\n", secret, uri)

	if *out == "" {
		return nil
	}
	img, err := gate.GenerateQRImage(uri)
	if err != nil {
		return err
	}
	raw, err := base64.StdEncoding.DecodeString(img)
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrEncoding, err)
	}
	if err := os.WriteFile(*out, raw, 0o600); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "qr:     %s\n", *out)
	return nil
}
