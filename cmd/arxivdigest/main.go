package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"ArxivDigest/internal/app"
)

// version is set at build time via ldflags.
var version = "dev"

func main() {
	// A missing .env is normal in production.
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCmd(os.Stdout, os.Stderr)
	err := root.ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error: "+err.Error())
	}
	stop()
	os.Exit(app.ExitCode(err))
}
