// Package csv implements a Writer that writes transactions to a CSV file.
package csv

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/ArionMiles/cardtx/pkg/api"
	"github.com/ArionMiles/cardtx/pkg/writer/buffered"
)

// Writer writes the transactions of a run to a CSV file, replacing
// previous contents.
type Writer struct {
	filePath  string
	batchSize int
	logger    *slog.Logger
}

// Config holds configuration for the CSV writer.
type Config struct {
	// FilePath is the path to the CSV output file.
	FilePath string
	// BatchSize is the number of records written between flushes.
	BatchSize int
}

// New creates a new CSV writer.
func New(cfg Config, logger *slog.Logger) (*Writer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.FilePath == "" {
		return nil, errors.New("csv file path is required")
	}

	logger.Info("csv writer initialized", "file", cfg.FilePath)
	return &Writer{filePath: cfg.FilePath, batchSize: cfg.BatchSize, logger: logger}, nil
}

// Write writes a header row followed by one record per transaction.
func (w *Writer) Write(ctx context.Context, txns []api.Transaction) (err error) {
	file, err := os.OpenFile(w.filePath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("opening csv file: %w", err)
	}
	defer func() {
		if closeErr := file.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("closing csv file: %w", closeErr)
		}
	}()

	cw := csv.NewWriter(file)
	if err := cw.Write(api.RecordHeader); err != nil {
		return fmt.Errorf("writing headers: %w", err)
	}

	flush := func(_ context.Context, batch []api.Transaction) error {
		for _, t := range batch {
			if err := cw.Write(t.Record()); err != nil {
				return fmt.Errorf("writing csv record: %w", err)
			}
		}
		cw.Flush()
		return cw.Error()
	}

	bw := buffered.New(flush, buffered.Config{BatchSize: w.batchSize}, w.logger.With("component", "csv_buffer"))
	if err := bw.Write(ctx, txns); err != nil {
		return err
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flushing csv: %w", err)
	}

	w.logger.Info("wrote transactions to csv", "file", w.filePath, "count", len(txns))
	return nil
}
