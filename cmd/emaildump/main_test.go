package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/emersion/go-mbox"

	"github.com/ArionMiles/cardtx/pkg/api"
	"github.com/ArionMiles/cardtx/pkg/filter"
)

type memMailbox struct {
	messages map[string]string
	order    []string
}

func (m *memMailbox) Search(context.Context, api.SearchCriteria) ([]string, error) {
	return m.order, nil
}

func (m *memMailbox) Fetch(_ context.Context, id string) ([]byte, error) {
	raw, ok := m.messages[id]
	if !ok {
		return nil, fmt.Errorf("no message %s", id)
	}
	return []byte(raw), nil
}

func (m *memMailbox) Logout() error { return nil }

func newMailbox() *memMailbox {
	return &memMailbox{
		order: []string{"1", "2", "3"},
		messages: map[string]string{
			"1": "From: alertas@davibank.cr\r\nSubject: Alerta transaccion tarjeta\r\nDate: Tue, 05 Mar 2024 14:35:00 -0600\r\n\r\nuno\r\n",
			"2": "From: promos@tienda.example\r\nSubject: Oferta\r\nDate: Tue, 05 Mar 2024 15:00:00 -0600\r\n\r\ndos\r\n",
			"3": "From: alertas@davibank.cr\r\nSubject: Alerta transaccion tarjeta\r\nDate: Wed, 06 Mar 2024 09:00:00 -0600\r\n\r\ntres\r\n",
		},
	}
}

func countMessages(t *testing.T, data []byte) int {
	t.Helper()
	r := mbox.NewReader(bytes.NewReader(data))
	n := 0
	for {
		msg, err := r.NextMessage()
		if err == io.EOF {
			return n
		}
		if err != nil {
			t.Fatalf("reading mbox: %v", err)
		}
		if _, err := io.ReadAll(msg); err != nil {
			t.Fatalf("reading message: %v", err)
		}
		n++
	}
}

func TestDump(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f := filter.New(filter.Config{
		Senders:        []string{"alertas@davibank.cr"},
		SubjectPhrases: []string{"alerta transaccion tarjeta"},
	})

	tests := []struct {
		name   string
		filter *filter.Filter
		limit  int
		want   int
	}{
		{"filtered", f, 0, 2},
		{"unfiltered", nil, 0, 3},
		{"limited", f, 1, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			n, err := dump(context.Background(), newMailbox(), api.SearchCriteria{}, tt.filter, &buf, tt.limit, logger)
			if err != nil {
				t.Fatalf("dump: %v", err)
			}
			if n != tt.want {
				t.Errorf("count: got %d, want %d", n, tt.want)
			}
			if got := countMessages(t, buf.Bytes()); got != tt.want {
				t.Errorf("mbox entries: got %d, want %d", got, tt.want)
			}
		})
	}
}

func TestDump_FetchError(t *testing.T) {
	mb := newMailbox()
	mb.order = append(mb.order, "404")

	var buf bytes.Buffer
	n, err := dump(context.Background(), mb, api.SearchCriteria{}, nil, &buf, 0, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err == nil {
		t.Fatal("expected fetch error")
	}
	if n != 3 {
		t.Errorf("count before error: got %d, want 3", n)
	}
}
