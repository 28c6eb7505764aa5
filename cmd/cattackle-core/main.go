// Package main is the entry point for cattackle-core, the chat-bot core
// that mediates between the messaging platform and the cattackle plugins.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/cattackle-hq/cattackle-core/internal/config"
	"github.com/cattackle-hq/cattackle-core/internal/lifecycle"
	"github.com/cattackle-hq/cattackle-core/internal/logging"
	"github.com/cattackle-hq/cattackle-core/internal/panichandler"
	"github.com/cattackle-hq/cattackle-core/pkg/version"
)

func main() {
	code := run()
	if code != 0 {
		os.Exit(code)
	}
}

func run() int {
	defer panichandler.Handle()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	panichandler.SetCancel(cancel)

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)

	handlePanic := panichandler.WithStackTrace()
	go func() {
		defer handlePanic()
		<-sigc
		cancel()
	}()

	if err := logging.InitBootstrap(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)

		return 1
	}

	slog.DebugContext(ctx, "bootstrap logger initialized")
	slog.InfoContext(ctx, "bootstrapping cattackle-core", "version", version.Version())

	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)

		return 1
	}

	if err := logging.Init(cfg.Logging); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)

		return 1
	}

	app, err := lifecycle.New(cfg, slog.Default())
	if err != nil {
		slog.ErrorContext(ctx, "failed to initialize application", "err", err)

		return 1
	}

	if err := app.Run(ctx); err != nil {
		slog.ErrorContext(ctx, "application exited with error", "err", err)

		return 1
	}

	return 0
}
