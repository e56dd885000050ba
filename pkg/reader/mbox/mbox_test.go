package mbox

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/emersion/go-mbox"

	"github.com/ArionMiles/cardtx/pkg/api"
)

func writeFixture(t *testing.T, messages ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "alerts.mbox")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("creating fixture: %v", err)
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
		t.Fatalf("closing writer: %v", err)
	}
	return path
}

func TestReader(t *testing.T) {
	path := writeFixture(t,
		"From: alertas@davibank.cr\r\nSubject: uno\r\n\r\nprimero\r\n",
		"From: alertas@davibank.cr\r\nSubject: dos\r\n\r\nsegundo\r\n",
	)

	r, err := New(Config{Path: path}, nil)
	if err != nil {
		t.Fatalf("creating reader: %v", err)
	}

	ctx := context.Background()
	mb, err := r.Dial(ctx)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer mb.Logout()

	ids, err := mb.Search(ctx, api.SearchCriteria{From: "ignored@example.com"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if strings.Join(ids, ",") != "1,2" {
		t.Fatalf("ids: got %v, want [1 2]", ids)
	}

	raw, err := mb.Fetch(ctx, "2")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if !strings.Contains(string(raw), "Subject: dos") || !strings.Contains(string(raw), "segundo") {
		t.Errorf("raw: got %q", raw)
	}

	for _, id := range []string{"0", "3", "x"} {
		if _, err := mb.Fetch(ctx, id); err == nil {
			t.Errorf("expected error for id %q", id)
		}
	}
}

func TestDial_MissingFile(t *testing.T) {
	r, err := New(Config{Path: filepath.Join(t.TempDir(), "missing.mbox")}, nil)
	if err != nil {
		t.Fatalf("creating reader: %v", err)
	}
	if _, err := r.Dial(context.Background()); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestNew_RequiresPath(t *testing.T) {
	if _, err := New(Config{}, nil); err == nil {
		t.Error("expected error without path")
	}
}
