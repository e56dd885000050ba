// Package runner executes one extraction run: dial, extract, write, report.
package runner

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/ArionMiles/cardtx/internal/plugins"
	"github.com/ArionMiles/cardtx/pkg/config"
	"github.com/ArionMiles/cardtx/pkg/filter"
	"github.com/ArionMiles/cardtx/pkg/pipeline"
	"github.com/ArionMiles/cardtx/pkg/report"
)

// ClientFunc returns an HTTP client authorized for scopes.
type ClientFunc func(ctx context.Context, scopes []string) (*http.Client, error)

// Runner manages a single batch run.
type Runner struct {
	registry  *plugins.Registry
	newClient ClientFunc
	logger    *slog.Logger

	// Now supplies the reference date for the default target month.
	Now func() time.Time
	// Out receives the report. Defaults to os.Stdout.
	Out io.Writer
}

// New creates a new runner. newClient is only called when the selected
// plugins require OAuth scopes.
func New(registry *plugins.Registry, newClient ClientFunc, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}

	return &Runner{
		registry:  registry,
		newClient: newClient,
		logger:    logger,
		Now:       time.Now,
		Out:       os.Stdout,
	}
}

// Run extracts the target month's transactions and hands them to the writer.
// Mailbox failures are returned as *pipeline.ConnectError.
func (r *Runner) Run(ctx context.Context, cfg *config.Config) (*pipeline.Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	p, err := r.pipeline(cfg)
	if err != nil {
		return nil, err
	}

	httpClient, err := r.client(ctx, cfg)
	if err != nil {
		return nil, err
	}

	dialer, err := r.registry.CreateReader(
		cfg.Reader,
		httpClient,
		cfg.ReaderConfig,
		r.logger.With("component", "reader", "plugin", cfg.Reader),
	)
	if err != nil {
		return nil, fmt.Errorf("creating reader: %w", err)
	}

	writer, err := r.registry.CreateWriter(
		cfg.Writer,
		httpClient,
		cfg.WriterConfig,
		r.logger.With("component", "writer", "plugin", cfg.Writer),
	)
	if err != nil {
		return nil, fmt.Errorf("creating writer: %w", err)
	}
	if c, ok := writer.(io.Closer); ok {
		defer func() {
			if err := c.Close(); err != nil {
				r.logger.Warn("closing writer", "error", err)
			}
		}()
	}

	r.logger.Info("starting run", "reader", cfg.Reader, "writer", cfg.Writer)

	res, err := p.Run(ctx, dialer)
	if err != nil {
		return nil, err
	}

	if err := writer.Write(ctx, res.Transactions); err != nil {
		return res, fmt.Errorf("writing transactions: %w", err)
	}

	r.logger.Info("run complete",
		"month", res.Month.String(),
		"messages", res.Stats.Messages,
		"filtered", res.Stats.Filtered,
		"transactions", res.Stats.Transactions,
	)

	if cfg.Report {
		if err := report.Render(r.Out, report.Summarize(res.Month, res.Transactions)); err != nil {
			return res, fmt.Errorf("rendering report: %w", err)
		}
	} else if len(res.Transactions) == 0 {
		fmt.Fprintln(r.Out, report.EmptyNotice(res.Month))
	}

	return res, nil
}

// Check dials the configured mailbox once and logs out.
func (r *Runner) Check(ctx context.Context, cfg *config.Config) error {
	httpClient, err := r.client(ctx, cfg)
	if err != nil {
		return err
	}

	dialer, err := r.registry.CreateReader(cfg.Reader, httpClient, cfg.ReaderConfig, r.logger.With("component", "reader", "plugin", cfg.Reader))
	if err != nil {
		return fmt.Errorf("creating reader: %w", err)
	}

	mbox, err := dialer.Dial(ctx)
	if err != nil {
		return &pipeline.ConnectError{Op: "dial", Err: err}
	}
	return mbox.Logout()
}

func (r *Runner) pipeline(cfg *config.Config) (*pipeline.Pipeline, error) {
	month, err := cfg.TargetMonth(r.Now())
	if err != nil {
		return nil, err
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	bounds, err := cfg.Bounds()
	if err != nil {
		return nil, err
	}
	parser, err := cfg.Parser()
	if err != nil {
		return nil, fmt.Errorf("building parser: %w", err)
	}

	return pipeline.New(pipeline.Config{
		Filter:      filter.New(cfg.FilterConfig()),
		Parser:      parser,
		Bounds:      bounds,
		Month:       month,
		Categorizer: cfg.Categorizer(),
		Location:    loc,
	}, r.logger.With("component", "pipeline"))
}

func (r *Runner) client(ctx context.Context, cfg *config.Config) (*http.Client, error) {
	scopes, err := r.registry.GetAllScopes(cfg.Reader, cfg.Writer)
	if err != nil {
		return nil, err
	}
	if len(scopes) == 0 || r.newClient == nil {
		return nil, nil
	}

	r.logger.Info("OAuth scopes required", "scopes", scopes)
	httpClient, err := r.newClient(ctx, scopes)
	if err != nil {
		return nil, fmt.Errorf("creating http client: %w", err)
	}
	return httpClient, nil
}
