package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ArionMiles/cardtx/internal/runner"
	"github.com/ArionMiles/cardtx/pkg/pipeline"
)

// Exit codes.
const (
	exitFailure = 1
	// exitMailbox signals the mailbox could not be reached or searched.
	exitMailbox = 2
	// exitCanceled follows the shell convention for a SIGINT exit.
	exitCanceled = 130
)

func exitCode(err error) int {
	if errors.Is(err, context.Canceled) {
		return exitCanceled
	}
	if pipeline.IsConnectError(err) {
		return exitMailbox
	}
	return exitFailure
}

// runCmd extracts the target month's transactions.
func runCmd(logger *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", "", "path to a JSON config file (default $CARDTX_CONFIG)")
	month := fs.String("month", "", "target month as YYYY-MM (default: current month)")
	reader := fs.String("reader", "", "reader plugin override (imap, gmail, mbox)")
	writer := fs.String("writer", "", "writer plugin override (csv, json, sheets, postgres)")
	noReport := fs.Bool("no-report", false, "skip the summary report")
	_ = fs.Parse(args)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	if *month != "" {
		cfg.Month = *month
	}
	if *noReport {
		cfg.Report = false
	}
	cfg.Select(*reader, *writer)

	logger.Info("configuration loaded",
		"reader", cfg.Reader,
		"writer", cfg.Writer,
		"month", cfg.Month,
		"categories", len(cfg.Categories),
	)

	registry, err := newRegistry()
	if err != nil {
		return err
	}

	// Setup context with cancellation on SIGINT/SIGTERM
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	r := runner.New(registry, oauthClient(cfg, logger), logger)
	if _, err := r.Run(ctx, cfg); err != nil {
		if errors.Is(err, context.Canceled) {
			return fmt.Errorf("run canceled before output was written: %w", err)
		}
		return err
	}
	return nil
}
