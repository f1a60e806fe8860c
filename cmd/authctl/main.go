package main

import (
	"context"
	"os"

	"github.com/dmitrijs2005/authkeeper/internal/authctl"
)

func main() {
	app := authctl.NewApp(os.Stdin, os.Stdout, os.Stderr)
	os.Exit(app.Run(context.Background(), os.Args[1:]))
}
