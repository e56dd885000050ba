// Package postgres provides a PostgreSQL writer for transaction storage.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ArionMiles/cardtx/pkg/api"
	"github.com/ArionMiles/cardtx/pkg/writer/buffered"
)

//go:embed 001_create_transactions.sql
var migrationSQL string

const upsertSQL = `
	INSERT INTO card_transactions (
		message_id, seq, txn_date, txn_time, amount, currency, description, category, source
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	ON CONFLICT (message_id, seq) DO UPDATE SET
		txn_date = EXCLUDED.txn_date,
		txn_time = EXCLUDED.txn_time,
		amount = EXCLUDED.amount,
		currency = EXCLUDED.currency,
		description = EXCLUDED.description,
		category = EXCLUDED.category,
		source = EXCLUDED.source,
		updated_at = NOW()`

// Config holds the PostgreSQL writer configuration.
type Config struct {
	// DSN, when set, is used instead of the individual fields.
	DSN      string
	Host     string
	Port     int
	Database string
	User     string
	Password string
	SSLMode  string

	// BatchSize is the number of rows per database transaction.
	BatchSize int
	// MaxPoolSize is the maximum number of connections in the pool.
	MaxPoolSize int
}

// Writer upserts transactions into PostgreSQL keyed by message and position.
type Writer struct {
	pool      *pgxpool.Pool
	logger    *slog.Logger
	batchSize int
}

// New connects, verifies the connection and applies the schema.
func New(cfg Config, logger *slog.Logger) (*Writer, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.Port == 0 {
		cfg.Port = 5432
	}
	if cfg.SSLMode == "" {
		cfg.SSLMode = "disable"
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 50
	}
	if cfg.MaxPoolSize == 0 {
		cfg.MaxPoolSize = 4
	}

	connStr := cfg.DSN
	if connStr == "" {
		if cfg.Host == "" {
			return nil, errors.New("postgres host or dsn is required")
		}
		connStr = fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
		)
	}

	poolConfig, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}
	poolConfig.MaxConns = int32(cfg.MaxPoolSize)
	poolConfig.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	logger.Info("connected to PostgreSQL", "host", poolConfig.ConnConfig.Host, "database", poolConfig.ConnConfig.Database)

	w := &Writer{pool: pool, logger: logger, batchSize: cfg.BatchSize}
	if err := w.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return w, nil
}

func (w *Writer) runMigrations(ctx context.Context) error {
	if _, err := w.pool.Exec(ctx, migrationSQL); err != nil {
		return fmt.Errorf("executing migration: %w", err)
	}
	w.logger.Debug("migrations completed")
	return nil
}

// Write upserts txns in batches, one database transaction per batch.
func (w *Writer) Write(ctx context.Context, txns []api.Transaction) error {
	bw := buffered.New(w.writeBatch, buffered.Config{BatchSize: w.batchSize}, w.logger.With("component", "postgres_buffer"))
	return bw.Write(ctx, txns)
}

func (w *Writer) writeBatch(ctx context.Context, txns []api.Transaction) error {
	tx, err := w.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	batch := &pgx.Batch{}
	for _, t := range txns {
		var clock *string
		if t.Time != nil {
			s := t.Time.String()
			clock = &s
		}
		batch.Queue(upsertSQL,
			t.MessageID,
			t.Seq,
			t.Date.In(time.UTC),
			clock,
			t.Amount,
			string(t.Currency),
			t.Description,
			t.Category,
			t.Source,
		)
	}

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("upserting transactions: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	w.logger.Info("wrote transaction batch", "count", len(txns))
	return nil
}

// Count returns the number of stored transactions.
func (w *Writer) Count(ctx context.Context) (int, error) {
	var n int
	if err := w.pool.QueryRow(ctx, "SELECT COUNT(*) FROM card_transactions").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting transactions: %w", err)
	}
	return n, nil
}

// Close closes the database connection pool.
func (w *Writer) Close() error {
	w.pool.Close()
	return nil
}
