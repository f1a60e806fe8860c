// Package authctl implements the operator command line: hashing passwords,
// seeding user rows and generating TOTP enrollment material.
package authctl

import (
	"bufio"
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"

	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/repomanager"
)

const usage = `usage: authctl <command> [flags]

commands:
  hash                                    read a password and print its bcrypt hash
  seed-user -email E [-role R] [-d DSN]   create a user with a prompted password
  totp-secret -account A [-out file.png]  generate a TOTP secret and QR code
`

type App struct {
	in     *bufio.Reader
	out    io.Writer
	errOut io.Writer

	openDB      func(ctx context.Context, dsn string) (*sql.DB, error)
	repomanager repomanager.RepositoryManager
}

func NewApp(in io.Reader, out, errOut io.Writer) *App {
	return &App{
		in:          bufio.NewReader(in),
		out:         out,
		errOut:      errOut,
		openDB:      repomanager.Open,
		repomanager: repomanager.NewPostgresRepositoryManager(),
	}
}

// Run executes one command and returns the process exit code.
func (a *App) Run(ctx context.Context, args []string) int {
	if len(args) == 0 {
		fmt.Fprint(a.errOut, usage)
		return 2
	}

	var err error
	switch args[0] {
	case "hash":
		err = a.Hash()
	case "seed-user":
		err = a.SeedUser(ctx, args[1:])
	case "totp-secret":
		err = a.TOTPSecret(args[1:])
	case "help", "-h", "--help":
		fmt.Fprint(a.out, usage)
		return 0
	default:
		fmt.Fprintf(a.errOut, "unknown command %q\n\n%s", args[0], usage)
		return 2
	}

	if err != nil {
		fmt.Fprintf(a.errOut, "error: %v\n", err)
		return 1
	}
	return 0
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
