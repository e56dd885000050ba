// Package sheets implements a Writer that writes transactions to Google Sheets.
package sheets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/avast/retry-go"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/ArionMiles/cardtx/pkg/api"
	"github.com/ArionMiles/cardtx/pkg/writer/buffered"
)

// Default configuration values.
const (
	DefaultSheetName  = "Transactions"
	DefaultBatchSize  = 50
	DefaultRetryDelay = 60 * time.Second
)

// Writer replaces the contents of a sheet with the transactions of a run.
type Writer struct {
	client      *sheets.Service
	spreadsheet *sheets.Spreadsheet
	sheetName   string
	batchSize   int
	retryDelay  time.Duration
	logger      *slog.Logger
}

// Config holds configuration for the Sheets writer.
type Config struct {
	// SheetTitle is the title for a new spreadsheet (if SheetID is empty).
	SheetTitle string
	// SheetID is the ID of an existing spreadsheet to use.
	SheetID string
	// SheetName is the name of the sheet within the spreadsheet.
	SheetName string
	// BatchSize is the number of rows per append call.
	BatchSize int
	// RetryDelay is the wait after a rate-limited call.
	RetryDelay time.Duration
	// Endpoint overrides the API endpoint.
	Endpoint string
}

// New creates a new Sheets writer, creating the spreadsheet if needed.
func New(httpClient *http.Client, cfg Config, logger *slog.Logger) (*Writer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if httpClient == nil {
		return nil, errors.New("sheets writer requires an authorized http client")
	}
	if cfg.SheetName == "" {
		cfg.SheetName = DefaultSheetName
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}

	opts := []option.ClientOption{option.WithHTTPClient(httpClient)}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}
	client, err := sheets.NewService(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("creating sheets service: %w", err)
	}

	w := &Writer{
		client:     client,
		sheetName:  cfg.SheetName,
		batchSize:  cfg.BatchSize,
		retryDelay: cfg.RetryDelay,
		logger:     logger,
	}

	spreadsheet, err := w.initSpreadsheet(context.Background(), cfg)
	if err != nil {
		return nil, fmt.Errorf("initializing spreadsheet: %w", err)
	}
	w.spreadsheet = spreadsheet

	logger.Info("sheets writer initialized",
		"spreadsheet_id", spreadsheet.SpreadsheetId,
		"sheet", cfg.SheetName,
	)
	return w, nil
}

func (w *Writer) initSpreadsheet(ctx context.Context, cfg Config) (*sheets.Spreadsheet, error) {
	if cfg.SheetID != "" {
		spreadsheet, err := w.client.Spreadsheets.Get(cfg.SheetID).Context(ctx).Do()
		if err == nil {
			w.logger.Info("using existing spreadsheet", "id", cfg.SheetID)
			return spreadsheet, nil
		}
		w.logger.Warn("failed to get spreadsheet, will create new one", "id", cfg.SheetID, "error", err)
	}

	spreadsheet, err := w.client.Spreadsheets.Create(&sheets.Spreadsheet{
		Properties: &sheets.SpreadsheetProperties{Title: cfg.SheetTitle},
		Sheets: []*sheets.Sheet{{
			Properties: &sheets.SheetProperties{Title: cfg.SheetName},
		}},
	}).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("creating spreadsheet: %w", err)
	}

	w.logger.Info("created new spreadsheet", "title", cfg.SheetTitle, "id", spreadsheet.SpreadsheetId)
	return spreadsheet, nil
}

// Write clears the sheet, writes the header row and appends txns in batches.
func (w *Writer) Write(ctx context.Context, txns []api.Transaction) error {
	id := w.spreadsheet.SpreadsheetId

	err := w.call(ctx, func() error {
		_, err := w.client.Spreadsheets.Values.Clear(id, w.sheetName+"!A:H", &sheets.ClearValuesRequest{}).
			Context(ctx).Do()
		return err
	})
	if err != nil {
		return fmt.Errorf("clearing sheet: %w", err)
	}

	header := &sheets.ValueRange{Values: [][]any{toRow(api.RecordHeader)}}
	err = w.call(ctx, func() error {
		_, err := w.client.Spreadsheets.Values.Update(id, w.sheetName+"!A1:H1", header).
			ValueInputOption("RAW").Context(ctx).Do()
		return err
	})
	if err != nil {
		return fmt.Errorf("writing headers: %w", err)
	}

	bw := buffered.New(w.appendBatch, buffered.Config{BatchSize: w.batchSize}, w.logger.With("component", "sheets_buffer"))
	return bw.Write(ctx, txns)
}

func (w *Writer) appendBatch(ctx context.Context, batch []api.Transaction) error {
	values := make([][]any, 0, len(batch))
	for _, t := range batch {
		values = append(values, toRow(t.Record()))
	}

	req := &sheets.ValueRange{Values: values}
	err := w.call(ctx, func() error {
		_, err := w.client.Spreadsheets.Values.Append(w.spreadsheet.SpreadsheetId, w.sheetName+"!A2:H2", req).
			ValueInputOption("USER_ENTERED").
			InsertDataOption("INSERT_ROWS").
			Context(ctx).
			Do()
		return err
	})
	if err != nil {
		return fmt.Errorf("appending batch to sheet: %w", err)
	}

	w.logger.Info("wrote transaction batch", "count", len(batch))
	return nil
}

// call runs fn, retrying when the API rate limits the request.
func (w *Writer) call(ctx context.Context, fn func() error) error {
	return retry.Do(
		fn,
		retry.RetryIf(func(err error) bool {
			var apiErr *googleapi.Error
			if errors.As(err, &apiErr) && apiErr.Code == http.StatusTooManyRequests {
				w.logger.Warn("rate limited, will retry", "error", err)
				return true
			}
			return false
		}),
		retry.Context(ctx),
		retry.Attempts(3),
		retry.Delay(w.retryDelay),
		retry.LastErrorOnly(true),
	)
}

func toRow(cells []string) []any {
	row := make([]any, len(cells))
	for i, c := range cells {
		row[i] = c
	}
	return row
}

// SpreadsheetID returns the ID of the spreadsheet being written to.
func (w *Writer) SpreadsheetID() string {
	if w.spreadsheet == nil {
		return ""
	}
	return w.spreadsheet.SpreadsheetId
}
