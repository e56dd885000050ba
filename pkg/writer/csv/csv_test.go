package csv

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"github.com/ArionMiles/cardtx/pkg/api"
)

func sample() []api.Transaction {
	return []api.Transaction{
		{
			Date:        civil.Date{Year: 2024, Month: time.March, Day: 5},
			Amount:      decimal.RequireFromString("1250"),
			Currency:    "CRC",
			Description: "STORE, X",
			Category:    "Otros",
			Source:      "structured",
			MessageID:   "1",
		},
		{
			Date:        civil.Date{Year: 2024, Month: time.March, Day: 10},
			Amount:      decimal.RequireFromString("45.9"),
			Currency:    "USD",
			Description: "Compra USD $45.90 en TIENDA",
			Category:    "Otros",
			Source:      "generic",
			MessageID:   "2",
		},
	}
}

func TestWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	if err := os.WriteFile(path, []byte("stale,content\n"), 0o600); err != nil {
		t.Fatalf("seeding file: %v", err)
	}

	w, err := New(Config{FilePath: path, BatchSize: 1}, nil)
	if err != nil {
		t.Fatalf("creating writer: %v", err)
	}
	if err := w.Write(context.Background(), sample()); err != nil {
		t.Fatalf("write: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("opening output: %v", err)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("reading output: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("records: got %d, want 3", len(records))
	}
	if records[0][0] != "Date" {
		t.Errorf("header: got %v", records[0])
	}
	if records[1][2] != "STORE, X" || records[1][3] != "1250.00" {
		t.Errorf("first record: got %v", records[1])
	}
	if records[2][4] != "USD" || records[2][3] != "45.90" {
		t.Errorf("second record: got %v", records[2])
	}
}

func TestWrite_Empty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	w, err := New(Config{FilePath: path}, nil)
	if err != nil {
		t.Fatalf("creating writer: %v", err)
	}
	if err := w.Write(context.Background(), nil); err != nil {
		t.Fatalf("write: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading output: %v", err)
	}
	if string(data) != "Date,Time,Description,Amount,Currency,Category,Source,Message ID\n" {
		t.Errorf("output: got %q", data)
	}
}

func TestNew_RequiresPath(t *testing.T) {
	if _, err := New(Config{}, nil); err == nil {
		t.Error("expected error without file path")
	}
}
