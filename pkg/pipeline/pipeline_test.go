package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"github.com/ArionMiles/cardtx/pkg/amount"
	"github.com/ArionMiles/cardtx/pkg/api"
	"github.com/ArionMiles/cardtx/pkg/categorize"
	"github.com/ArionMiles/cardtx/pkg/extract"
	"github.com/ArionMiles/cardtx/pkg/filter"
	"github.com/ArionMiles/cardtx/pkg/window"
)

// fakeMailbox serves messages from memory in insertion order.
type fakeMailbox struct {
	ids       []string
	msgs      map[string]string
	searchErr error
	fetchErr  error
	criteria  api.SearchCriteria
	loggedOut bool
}

func (m *fakeMailbox) add(raw string) {
	if m.msgs == nil {
		m.msgs = make(map[string]string)
	}
	id := fmt.Sprint(len(m.ids) + 1)
	m.ids = append(m.ids, id)
	m.msgs[id] = strings.ReplaceAll(raw, "\n", "\r\n")
}

func (m *fakeMailbox) Search(_ context.Context, c api.SearchCriteria) ([]string, error) {
	m.criteria = c
	if m.searchErr != nil {
		return nil, m.searchErr
	}
	return m.ids, nil
}

func (m *fakeMailbox) Fetch(_ context.Context, id string) ([]byte, error) {
	if m.fetchErr != nil {
		return nil, m.fetchErr
	}
	return []byte(m.msgs[id]), nil
}

func (m *fakeMailbox) Logout() error {
	m.loggedOut = true
	return nil
}

type fakeDialer struct {
	mbox *fakeMailbox
	err  error
}

func (d fakeDialer) Dial(context.Context) (api.Mailbox, error) {
	if d.err != nil {
		return nil, d.err
	}
	return d.mbox, nil
}

var march2024 = window.Month{Year: 2024, Month: time.March}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newPipeline(t *testing.T, fcfg filter.Config, strategies ...string) *Pipeline {
	t.Helper()
	parser, err := extract.New(extract.Config{
		Strategies:     strategies,
		Policy:         amount.Heuristic,
		Local:          extract.CurrencyMarkers{Code: "CRC", Markers: []string{"CRC", "₡"}},
		Foreign:        extract.CurrencyMarkers{Code: "USD", Markers: []string{"USD", "US$", "$"}},
		TemplatePhrase: "davibank le notifica que la transaccion realizada",
		ApprovalPhrase: "fue aprobada",
	})
	if err != nil {
		t.Fatalf("building parser: %v", err)
	}

	p, err := New(Config{
		Filter: filter.New(fcfg),
		Parser: parser,
		Month:  march2024,
		Categorizer: categorize.New([]categorize.Rule{
			{Label: "Amazon", Keywords: []string{"amazon", "prime"}},
			{Label: "Supermercado", Keywords: []string{"super", "market"}},
		}, "Otros"),
		Location: time.UTC,
	}, discardLogger())
	if err != nil {
		t.Fatalf("building pipeline: %v", err)
	}
	return p
}

func davibankFilter() filter.Config {
	return filter.Config{
		Senders:        []string{"alertas@davibank.cr"},
		SubjectPhrases: []string{"alerta transaccion tarjeta"},
		SpamKeywords:   []string{"promocion"},
	}
}

func alert(date, merchant, txDate, amountLit, tail string) string {
	return fmt.Sprintf(`From: DAVIbank <alertas@davibank.cr>
Subject: Alerta Transacción Tarjeta
Date: %s
Content-Type: text/plain; charset=utf-8

Estimado cliente:
DAVIbank le notifica que la transacción realizada en %s, el día %s a 02:30 PM
con su tarjeta terminada en 1234, por CRC %s %s
`, date, merchant, txDate, amountLit, tail)
}

func TestRun_StructuredAlert(t *testing.T) {
	mbox := &fakeMailbox{}
	mbox.add(alert("Tue, 05 Mar 2024 14:35:00 -0600", "STORE X", "05/03/2024", "1,250.00", "fue aprobada."))

	p := newPipeline(t, davibankFilter(), extract.StrategyStructured, extract.StrategyGeneric)
	res, err := p.Run(context.Background(), fakeDialer{mbox: mbox})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !mbox.loggedOut {
		t.Error("expected logout")
	}
	if len(res.Transactions) != 1 {
		t.Fatalf("transactions: got %d, want 1", len(res.Transactions))
	}

	txn := res.Transactions[0]
	if txn.Date != (civil.Date{Year: 2024, Month: time.March, Day: 5}) {
		t.Errorf("date: got %s", txn.Date)
	}
	if !txn.Amount.Equal(decimal.RequireFromString("1250.00")) {
		t.Errorf("amount: got %s", txn.Amount)
	}
	if txn.Currency != "CRC" {
		t.Errorf("currency: got %q", txn.Currency)
	}
	if txn.Description != "STORE X" {
		t.Errorf("description: got %q", txn.Description)
	}
	if txn.Category != "Otros" {
		t.Errorf("category: got %q", txn.Category)
	}
	if txn.MessageID != "1" || txn.Source != extract.StrategyStructured {
		t.Errorf("provenance: got %q/%q", txn.MessageID, txn.Source)
	}
}

func TestRun_NotApproved(t *testing.T) {
	mbox := &fakeMailbox{}
	mbox.add(alert("Tue, 05 Mar 2024 14:35:00 -0600", "STORE X", "05/03/2024", "1,250.00", "fue rechazada."))

	p := newPipeline(t, davibankFilter(), extract.StrategyStructured, extract.StrategyGeneric)
	res, err := p.Run(context.Background(), fakeDialer{mbox: mbox})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Transactions) != 0 {
		t.Errorf("transactions: got %d, want 0", len(res.Transactions))
	}
	if res.Stats.NotApproved != 1 {
		t.Errorf("not approved: got %d, want 1", res.Stats.NotApproved)
	}
}

func TestRun_NotApprovedWithoutGreeting(t *testing.T) {
	mbox := &fakeMailbox{}
	mbox.add(`From: DAVIbank <alertas@davibank.cr>
Subject: Alerta Transacción Tarjeta
Date: Tue, 05 Mar 2024 14:35:00 -0600
Content-Type: text/plain; charset=utf-8

La transacción realizada en STORE X, el día 05/03/2024 a 02:30 PM con su tarjeta, por CRC 1,250.00 fue rechazada.
`)

	p := newPipeline(t, davibankFilter(), extract.StrategyStructured, extract.StrategyGeneric)
	res, err := p.Run(context.Background(), fakeDialer{mbox: mbox})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Transactions) != 0 {
		t.Errorf("transactions: got %+v, want none", res.Transactions)
	}
	if res.Stats.NotApproved != 1 {
		t.Errorf("not approved: got %d, want 1", res.Stats.NotApproved)
	}
}

func TestRun_SeqStableAcrossMonths(t *testing.T) {
	raw := `From: Banco <notificaciones@banco.example>
Subject: Movimientos
Date: Fri, 01 Mar 2024 09:00:00 +0000
Content-Type: text/plain

Compra 28/02/2024 por $10.00
Compra 01/03/2024 por $20.00
`
	tests := []struct {
		month   window.Month
		wantSeq int
		want    string
	}{
		{window.Month{Year: 2024, Month: time.February}, 0, "10"},
		{march2024, 1, "20"},
	}

	for _, tc := range tests {
		t.Run(tc.month.String(), func(t *testing.T) {
			mbox := &fakeMailbox{}
			mbox.add(raw)

			p := newPipeline(t, filter.Config{}, extract.StrategyGeneric)
			p.month = tc.month
			res, err := p.Run(context.Background(), fakeDialer{mbox: mbox})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(res.Transactions) != 1 {
				t.Fatalf("transactions: got %d, want 1", len(res.Transactions))
			}
			txn := res.Transactions[0]
			if txn.Seq != tc.wantSeq {
				t.Errorf("seq: got %d, want %d", txn.Seq, tc.wantSeq)
			}
			if !txn.Amount.Equal(decimal.RequireFromString(tc.want)) {
				t.Errorf("amount: got %s, want %s", txn.Amount, tc.want)
			}
		})
	}
}

func TestRun_GenericAlert(t *testing.T) {
	mbox := &fakeMailbox{}
	mbox.add(`From: Banco <notificaciones@banco.example>
Subject: Aviso de compra
Date: Sun, 10 Mar 2024 09:00:00 +0000
Content-Type: text/plain

Compra USD $45.90 en TIENDA
`)

	p := newPipeline(t, filter.Config{}, extract.StrategyStructured, extract.StrategyGeneric)
	res, err := p.Run(context.Background(), fakeDialer{mbox: mbox})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Transactions) != 1 {
		t.Fatalf("transactions: got %d, want 1", len(res.Transactions))
	}

	txn := res.Transactions[0]
	if txn.Date != (civil.Date{Year: 2024, Month: time.March, Day: 10}) {
		t.Errorf("date: got %s, want received date 2024-03-10", txn.Date)
	}
	if !txn.Amount.Equal(decimal.RequireFromString("45.90")) || txn.Currency != "USD" {
		t.Errorf("amount: got %s %s, want 45.90 USD", txn.Amount, txn.Currency)
	}
}

func TestRun_SkipsAndDrops(t *testing.T) {
	mbox := &fakeMailbox{}
	// 1: accepted, categorized.
	mbox.add(alert("Tue, 05 Mar 2024 14:35:00 -0600", "AMAZON MKTPLACE", "05/03/2024", "25,000.00", "fue aprobada."))
	// 2: unknown sender.
	mbox.add(strings.Replace(alert("Tue, 05 Mar 2024 14:35:00 -0600", "STORE Y", "05/03/2024", "10.00", "fue aprobada."),
		"alertas@davibank.cr", "alertas@phish.example", 1))
	// 3: previous month.
	mbox.add(alert("Thu, 29 Feb 2024 10:00:00 -0600", "STORE Z", "29/02/2024", "10.00", "fue aprobada."))
	// 4: above the ceiling.
	mbox.add(alert("Wed, 06 Mar 2024 10:00:00 -0600", "CAR DEALER", "06/03/2024", "12,000,000.00", "fue aprobada."))
	// 5: promotional.
	mbox.add(alert("Wed, 06 Mar 2024 10:00:00 -0600", "STORE P", "06/03/2024", "10.00", "fue aprobada. Gran PROMOCIÓN."))
	// 6: not a message.
	mbox.msgs["6"] = "garbage without headers\r\n\r\n"
	mbox.ids = append(mbox.ids, "6")
	// 7: accepted, mailbox order kept.
	mbox.add(alert("Thu, 07 Mar 2024 10:00:00 -0600", "AUTO SUPER", "07/03/2024", "8,500.00", "fue aprobada."))

	p := newPipeline(t, davibankFilter(), extract.StrategyStructured)
	res, err := p.Run(context.Background(), fakeDialer{mbox: mbox})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(res.Transactions) != 2 {
		t.Fatalf("transactions: got %d (%+v), want 2", len(res.Transactions), res.Transactions)
	}
	if res.Transactions[0].Category != "Amazon" {
		t.Errorf("first category: got %q, want Amazon", res.Transactions[0].Category)
	}
	if res.Transactions[1].Description != "AUTO SUPER" {
		t.Errorf("second description: got %q", res.Transactions[1].Description)
	}

	want := Stats{
		Messages:     7,
		Malformed:    1,
		Filtered:     2,
		Candidates:   4,
		OutOfBounds:  1,
		OutOfWindow:  1,
		Transactions: 2,
	}
	if res.Stats != want {
		t.Errorf("stats: got %+v, want %+v", res.Stats, want)
	}
}

func TestRun_Empty(t *testing.T) {
	mbox := &fakeMailbox{}
	p := newPipeline(t, davibankFilter(), extract.StrategyStructured)

	res, err := p.Run(context.Background(), fakeDialer{mbox: mbox})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Transactions) != 0 {
		t.Errorf("transactions: got %d, want 0", len(res.Transactions))
	}
	if !mbox.loggedOut {
		t.Error("expected logout on empty result")
	}
}

func TestRun_ConnectErrors(t *testing.T) {
	boom := errors.New("boom")

	tests := []struct {
		name       string
		dialer     fakeDialer
		wantOp     string
		wantLogout bool
	}{
		{"dial", fakeDialer{err: boom}, "dial", false},
		{"search", fakeDialer{mbox: &fakeMailbox{searchErr: boom}}, "search", true},
		{"fetch", fakeDialer{mbox: &fakeMailbox{ids: []string{"1"}, fetchErr: boom}}, "fetch", true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p := newPipeline(t, davibankFilter(), extract.StrategyStructured)
			_, err := p.Run(context.Background(), tc.dialer)

			var ce *ConnectError
			if !errors.As(err, &ce) {
				t.Fatalf("error: got %v, want ConnectError", err)
			}
			if ce.Op != tc.wantOp {
				t.Errorf("op: got %q, want %q", ce.Op, tc.wantOp)
			}
			if !errors.Is(err, boom) || !IsConnectError(err) {
				t.Errorf("expected wrapped cause, got %v", err)
			}
			if tc.dialer.mbox != nil && tc.dialer.mbox.loggedOut != tc.wantLogout {
				t.Errorf("logged out: got %v, want %v", tc.dialer.mbox.loggedOut, tc.wantLogout)
			}
		})
	}
}

func TestRun_Canceled(t *testing.T) {
	mbox := &fakeMailbox{}
	mbox.add(alert("Tue, 05 Mar 2024 14:35:00 -0600", "STORE X", "05/03/2024", "1,250.00", "fue aprobada."))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := newPipeline(t, davibankFilter(), extract.StrategyStructured)
	if _, err := p.Run(ctx, fakeDialer{mbox: mbox}); !errors.Is(err, context.Canceled) {
		t.Errorf("error: got %v, want context.Canceled", err)
	}
	if !mbox.loggedOut {
		t.Error("expected logout after cancellation")
	}
}

func TestCriteria(t *testing.T) {
	p := newPipeline(t, davibankFilter(), extract.StrategyStructured)
	c := p.Criteria()

	if !c.Since.Equal(time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("since: got %v", c.Since)
	}
	if c.From != "alertas@davibank.cr" {
		t.Errorf("from: got %q", c.From)
	}

	open := newPipeline(t, filter.Config{}, extract.StrategyGeneric)
	if got := open.Criteria().From; got != "" {
		t.Errorf("from without sender filter: got %q, want empty", got)
	}
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(Config{Month: march2024}, nil); err == nil {
		t.Error("expected error without parser")
	}

	parser, err := extract.New(extract.Config{
		Strategies: []string{extract.StrategyGeneric},
		Local:      extract.CurrencyMarkers{Code: "CRC", Markers: []string{"CRC"}},
	})
	if err != nil {
		t.Fatalf("building parser: %v", err)
	}
	if _, err := New(Config{Parser: parser}, nil); err == nil {
		t.Error("expected error without month")
	}
}
