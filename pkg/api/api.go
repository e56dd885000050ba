// Package api defines the core interfaces and data structures for cardtx.
package api

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

// Currency is an ISO-style currency code such as "CRC" or "USD".
type Currency string

// Part is one decoded body part of a message.
type Part struct {
	// ContentType is the lower-cased media type, e.g. "text/plain".
	ContentType string
	// Body holds the transfer- and charset-decoded content.
	Body []byte
}

// RawMessage is a fetched message with its headers parsed.
// It is created once per fetch and consumed once by the pipeline.
type RawMessage struct {
	ID      string
	From    string // raw From header
	Address string // first mailbox address of the From header, lower-cased
	Subject string
	Date    time.Time
	Parts   []Part
}

// Candidate is a possible transaction found in a message body.
type Candidate struct {
	Date        civil.Date
	Time        *civil.Time
	Amount      decimal.Decimal
	Currency    Currency
	Description string
	// Strategy names the parser that produced the candidate.
	Strategy string
}

// Transaction is a candidate that passed sanity and date-window checks
// and has been assigned a category.
type Transaction struct {
	Date        civil.Date      `json:"date"`
	Time        *civil.Time     `json:"time,omitempty"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    Currency        `json:"currency"`
	Description string          `json:"description"`
	Category    string          `json:"category"`
	Source      string          `json:"source"`
	MessageID   string          `json:"message_id"`
	// Seq is the position of the candidate within its message, counted before
	// any candidate is dropped.
	Seq int `json:"seq"`
}

// SearchCriteria narrows a mailbox search on the server side.
// Zero values disable the corresponding criterion.
type SearchCriteria struct {
	Since time.Time
	From  string
}

// Mailbox is an authenticated session on a mail store with a folder selected.
// Logout must be called on every exit path once Dial succeeded.
type Mailbox interface {
	Search(ctx context.Context, criteria SearchCriteria) ([]string, error)
	Fetch(ctx context.Context, id string) ([]byte, error)
	Logout() error
}

// Dialer opens Mailbox sessions.
type Dialer interface {
	Dial(ctx context.Context) (Mailbox, error)
}

// Writer persists an ordered batch of transactions to a destination.
type Writer interface {
	Write(ctx context.Context, txns []Transaction) error
}

// RecordHeader names the columns of Transaction.Record.
var RecordHeader = []string{"Date", "Time", "Description", "Amount", "Currency", "Category", "Source", "Message ID"}

// Record renders the transaction as a row of strings for tabular sinks.
func (t Transaction) Record() []string {
	var clock string
	if t.Time != nil {
		clock = fmt.Sprintf("%02d:%02d", t.Time.Hour, t.Time.Minute)
	}
	return []string{
		t.Date.String(),
		clock,
		t.Description,
		t.Amount.StringFixed(2),
		string(t.Currency),
		t.Category,
		t.Source,
		t.MessageID,
	}
}
