package runner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/emersion/go-mbox"

	"github.com/ArionMiles/cardtx/internal/plugins"
	"github.com/ArionMiles/cardtx/pkg/api"
	"github.com/ArionMiles/cardtx/pkg/config"
	"github.com/ArionMiles/cardtx/pkg/pipeline"
	mboxplugin "github.com/ArionMiles/cardtx/pkg/plugins/readers/mbox"
	jsonplugin "github.com/ArionMiles/cardtx/pkg/plugins/writers/json"
)

func alert(date, txDate, merchant, amountLit string) string {
	return fmt.Sprintf("From: DAVIbank <alertas@davibank.cr>\r\n"+
		"Subject: Alerta Transacción Tarjeta\r\n"+
		"Date: %s\r\n"+
		"Content-Type: text/plain; charset=utf-8\r\n"+
		"\r\n"+
		"DAVIbank le notifica que la transacción realizada en %s, el día %s a 02:30 PM\r\n"+
		"con su tarjeta terminada en 1234, por CRC %s fue aprobada.\r\n", date, merchant, txDate, amountLit)
}

func writeMbox(t *testing.T, messages ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "alerts.mbox")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("creating mbox: %v", err)
	}
	defer f.Close()

	w := mbox.NewWriter(f)
	for _, m := range messages {
		mw, err := w.CreateMessage("alertas@davibank.cr", time.Date(2024, time.March, 5, 14, 35, 0, 0, time.UTC))
		if err != nil {
			t.Fatalf("creating message: %v", err)
		}
		if _, err := io.WriteString(mw, m); err != nil {
			t.Fatalf("writing message: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("closing mbox: %v", err)
	}
	return path
}

func newRunner(t *testing.T, out io.Writer) *Runner {
	t.Helper()
	registry := plugins.NewRegistry()
	if err := registry.RegisterReader(&mboxplugin.Plugin{}); err != nil {
		t.Fatal(err)
	}
	if err := registry.RegisterWriter(&jsonplugin.Plugin{}); err != nil {
		t.Fatal(err)
	}

	clientFunc := func(context.Context, []string) (*http.Client, error) {
		t.Error("http client requested for plugins without scopes")
		return nil, nil
	}

	r := New(registry, clientFunc, slog.New(slog.NewTextHandler(io.Discard, nil)))
	r.Now = func() time.Time { return time.Date(2024, time.March, 20, 9, 0, 0, 0, time.UTC) }
	r.Out = out
	return r
}

func loadConfig(t *testing.T, mboxPath, outPath string) *config.Config {
	t.Helper()
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("loading config: %v", err)
	}
	cfg.Reader = "mbox"
	cfg.Writer = "json"
	cfg.ReaderConfig = json.RawMessage(fmt.Sprintf(`{"path":%q}`, mboxPath))
	cfg.WriterConfig = json.RawMessage(fmt.Sprintf(`{"file_path":%q}`, outPath))
	return cfg
}

func TestRun(t *testing.T) {
	mboxPath := writeMbox(t,
		alert("Tue, 05 Mar 2024 14:35:00 -0600", "05/03/2024", "SUPER LA CANASTA", "1,250.00"),
		alert("Wed, 28 Feb 2024 10:00:00 -0600", "28/02/2024", "FARMACIA CENTRAL", "3,000.00"),
		"From: Promos <promos@tienda.example>\r\nSubject: Oferta\r\n\r\nCompra por CRC 10.00\r\n",
	)
	outPath := filepath.Join(t.TempDir(), "transactions.json")

	var out bytes.Buffer
	r := newRunner(t, &out)
	cfg := loadConfig(t, mboxPath, outPath)

	res, err := r.Run(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if res.Month.String() != "2024-03" {
		t.Errorf("Month: got %s, want 2024-03", res.Month)
	}
	if res.Stats.Messages != 3 || res.Stats.Filtered != 1 || res.Stats.OutOfWindow != 1 {
		t.Errorf("Stats: got %+v", res.Stats)
	}

	data, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("reading output: %v", err)
	}
	var written []api.Transaction
	if err := json.Unmarshal(data, &written); err != nil {
		t.Fatalf("decoding output: %v", err)
	}
	if len(written) != 1 {
		t.Fatalf("written: got %d transactions, want 1", len(written))
	}
	if got := written[0]; got.Category != "Supermercado" || got.Amount.String() != "1250" || got.Description != "SUPER LA CANASTA" {
		t.Errorf("written[0]: got %+v", got)
	}

	for _, want := range []string{"2024-03", "Supermercado", "1250.00", "CRC"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("report missing %q:\n%s", want, out.String())
		}
	}
}

func TestRun_EmptyMonth(t *testing.T) {
	mboxPath := writeMbox(t,
		alert("Tue, 05 Mar 2024 14:35:00 -0600", "05/03/2024", "STORE X", "1,250.00"),
	)
	outPath := filepath.Join(t.TempDir(), "transactions.json")

	var out bytes.Buffer
	r := newRunner(t, &out)
	cfg := loadConfig(t, mboxPath, outPath)
	cfg.Month = "2024-05"
	cfg.Report = false

	res, err := r.Run(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Transactions) != 0 {
		t.Errorf("transactions: got %d, want 0", len(res.Transactions))
	}
	if got, want := out.String(), "no transactions found for 2024-05\n"; got != want {
		t.Errorf("output: got %q, want %q", got, want)
	}

	data, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("reading output: %v", err)
	}
	if strings.TrimSpace(string(data)) != "[]" {
		t.Errorf("output file: got %q, want []", data)
	}
}

func TestRun_Errors(t *testing.T) {
	outPath := filepath.Join(t.TempDir(), "transactions.json")

	t.Run("missing mailbox", func(t *testing.T) {
		r := newRunner(t, io.Discard)
		cfg := loadConfig(t, filepath.Join(t.TempDir(), "missing.mbox"), outPath)
		_, err := r.Run(context.Background(), cfg)
		if !pipeline.IsConnectError(err) {
			t.Errorf("got %v, want connect error", err)
		}
		if _, statErr := os.Stat(outPath); statErr == nil {
			t.Error("writer ran after a connect error")
		}
	})

	t.Run("invalid config", func(t *testing.T) {
		r := newRunner(t, io.Discard)
		cfg := loadConfig(t, "unused.mbox", outPath)
		cfg.Month = "marzo"
		if _, err := r.Run(context.Background(), cfg); err == nil {
			t.Error("expected validation error")
		}
	})

	t.Run("unknown writer", func(t *testing.T) {
		r := newRunner(t, io.Discard)
		cfg := loadConfig(t, "unused.mbox", outPath)
		cfg.Writer = "parquet"
		if _, err := r.Run(context.Background(), cfg); err == nil {
			t.Error("expected error for unknown writer")
		}
	})
}

func TestCheck(t *testing.T) {
	r := newRunner(t, io.Discard)

	cfg := loadConfig(t, writeMbox(t, alert("Tue, 05 Mar 2024 14:35:00 -0600", "05/03/2024", "STORE X", "1,250.00")), "unused.json")
	if err := r.Check(context.Background(), cfg); err != nil {
		t.Errorf("Check: %v", err)
	}

	cfg = loadConfig(t, filepath.Join(t.TempDir(), "missing.mbox"), "unused.json")
	if err := r.Check(context.Background(), cfg); !pipeline.IsConnectError(err) {
		t.Errorf("Check missing mailbox: got %v, want connect error", err)
	}
}
