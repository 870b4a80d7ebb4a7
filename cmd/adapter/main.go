package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	// logs go to stderr so command output on stdout stays machine readable
	rootLogHandler := slog.NewJSONHandler(os.Stderr, nil)
	rootLogger := slog.New(rootLogHandler)

	// Create a context that cancels when the OS sends an interrupt (Ctrl+C) or termination signal.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCmd(rootLogger, prometheus.DefaultRegisterer, dialApp)
	if err := root.ExecuteContext(ctx); err != nil {
		rootLogger.Error("Command failed", "command", root.Name(), "error", err)
		stop()
		os.Exit(1)
	}
}
