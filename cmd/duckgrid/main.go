package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/duckgrid/duckgrid/internal/cli/duckgrid"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := duckgrid.Execute(ctx, os.Args[1:], duckgrid.Options{
		Lookup: os.LookupEnv,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	})
	stop()
	os.Exit(code)
}
