// Package buffered splits transaction lists into batches for sinks that
// write in chunks.
package buffered

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ArionMiles/cardtx/pkg/api"
)

// DefaultBatchSize is the default number of transactions per flush.
const DefaultBatchSize = 100

// Flusher writes one batch to the destination.
type Flusher func(ctx context.Context, batch []api.Transaction) error

// Config holds configuration for batched writing.
type Config struct {
	// BatchSize is the number of transactions per flush.
	// Defaults to DefaultBatchSize.
	BatchSize int
}

// Writer hands transactions to a Flusher in order, BatchSize at a time.
type Writer struct {
	flusher Flusher
	config  Config
	logger  *slog.Logger
	written int
}

// New creates a new batching writer with the given flusher function.
func New(flusher Flusher, cfg Config, logger *slog.Logger) *Writer {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Writer{
		flusher: flusher,
		config:  cfg,
		logger:  logger,
	}
}

// Write flushes txns in batches. It stops at the first failed batch;
// batches flushed before the failure stay written.
func (w *Writer) Write(ctx context.Context, txns []api.Transaction) error {
	for start := 0; start < len(txns); start += w.config.BatchSize {
		if err := ctx.Err(); err != nil {
			return err
		}

		end := min(start+w.config.BatchSize, len(txns))
		batch := txns[start:end]

		w.logger.Debug("flushing batch", "count", len(batch))
		if err := w.flusher(ctx, batch); err != nil {
			return fmt.Errorf("flushing batch at %d: %w", start, err)
		}
		w.written += len(batch)
	}

	w.logger.Info("flushed transactions", "count", len(txns))
	return nil
}

// Written returns the number of transactions flushed so far.
func (w *Writer) Written() int {
	return w.written
}
