// Package report summarizes extracted transactions and renders them as tables.
package report

import (
	"fmt"
	"io"
	"sort"

	"cloud.google.com/go/civil"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/shopspring/decimal"

	"github.com/ArionMiles/cardtx/pkg/api"
	"github.com/ArionMiles/cardtx/pkg/window"
)

// DayTotal is the spend of one currency on one day.
type DayTotal struct {
	Date     civil.Date
	Currency api.Currency
	Amount   decimal.Decimal
}

// CurrencyTotal is the spend of one currency over the month.
type CurrencyTotal struct {
	Currency api.Currency
	Amount   decimal.Decimal
	Count    int
}

// CategoryTotal is the spend of one currency in one category.
type CategoryTotal struct {
	Category string
	Currency api.Currency
	Amount   decimal.Decimal
}

// Summary aggregates a month of transactions. Amounts are never summed
// across currencies.
type Summary struct {
	Month      window.Month
	Count      int
	Daily      []DayTotal
	Totals     []CurrencyTotal
	Categories []CategoryTotal
	// TopDays holds the highest-spend day of each currency.
	TopDays []DayTotal
}

type dayKey struct {
	date     civil.Date
	currency api.Currency
}

type categoryKey struct {
	category string
	currency api.Currency
}

// Summarize computes per-currency sums for the given month's transactions.
func Summarize(month window.Month, txns []api.Transaction) Summary {
	s := Summary{Month: month, Count: len(txns)}

	daily := make(map[dayKey]decimal.Decimal)
	totals := make(map[api.Currency]*CurrencyTotal)
	categories := make(map[categoryKey]decimal.Decimal)

	for _, t := range txns {
		dk := dayKey{t.Date, t.Currency}
		daily[dk] = daily[dk].Add(t.Amount)

		ct, ok := totals[t.Currency]
		if !ok {
			ct = &CurrencyTotal{Currency: t.Currency}
			totals[t.Currency] = ct
		}
		ct.Amount = ct.Amount.Add(t.Amount)
		ct.Count++

		ck := categoryKey{t.Category, t.Currency}
		categories[ck] = categories[ck].Add(t.Amount)
	}

	for k, v := range daily {
		s.Daily = append(s.Daily, DayTotal{Date: k.date, Currency: k.currency, Amount: v})
	}
	sort.Slice(s.Daily, func(i, j int) bool {
		a, b := s.Daily[i], s.Daily[j]
		if a.Date != b.Date {
			return a.Date.Before(b.Date)
		}
		return a.Currency < b.Currency
	})

	for _, v := range totals {
		s.Totals = append(s.Totals, *v)
	}
	sort.Slice(s.Totals, func(i, j int) bool { return s.Totals[i].Currency < s.Totals[j].Currency })

	for k, v := range categories {
		s.Categories = append(s.Categories, CategoryTotal{Category: k.category, Currency: k.currency, Amount: v})
	}
	sort.Slice(s.Categories, func(i, j int) bool {
		a, b := s.Categories[i], s.Categories[j]
		if a.Currency != b.Currency {
			return a.Currency < b.Currency
		}
		if !a.Amount.Equal(b.Amount) {
			return a.Amount.GreaterThan(b.Amount)
		}
		return a.Category < b.Category
	})

	// Daily is date-ordered, so ties resolve to the earliest day.
	top := make(map[api.Currency]DayTotal)
	for _, d := range s.Daily {
		cur, ok := top[d.Currency]
		if !ok || d.Amount.GreaterThan(cur.Amount) {
			top[d.Currency] = d
		}
	}
	for _, ct := range s.Totals {
		s.TopDays = append(s.TopDays, top[ct.Currency])
	}

	return s
}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).MarginTop(1)
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	amountStyle = cellStyle.Align(lipgloss.Right)
	borderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

// EmptyNotice is the message rendered when a month has no transactions.
func EmptyNotice(month window.Month) string {
	return fmt.Sprintf("no transactions found for %s", month)
}

// Render writes the summary as a set of tables.
func Render(w io.Writer, s Summary) error {
	if s.Count == 0 {
		_, err := fmt.Fprintln(w, EmptyNotice(s.Month))
		return err
	}

	totals := make([][]string, 0, len(s.Totals))
	for _, t := range s.Totals {
		totals = append(totals, []string{string(t.Currency), fmt.Sprint(t.Count), t.Amount.StringFixed(2)})
	}

	daily := make([][]string, 0, len(s.Daily))
	for _, d := range s.Daily {
		daily = append(daily, []string{d.Date.String(), string(d.Currency), d.Amount.StringFixed(2)})
	}

	categories := make([][]string, 0, len(s.Categories))
	for _, c := range s.Categories {
		categories = append(categories, []string{c.Category, string(c.Currency), c.Amount.StringFixed(2)})
	}

	top := make([][]string, 0, len(s.TopDays))
	for _, d := range s.TopDays {
		top = append(top, []string{string(d.Currency), d.Date.String(), d.Amount.StringFixed(2)})
	}

	sections := []string{
		section(fmt.Sprintf("Month %s", s.Month), []string{"Currency", "Count", "Total"}, totals, 2),
		section("By category", []string{"Category", "Currency", "Total"}, categories, 2),
		section("By day", []string{"Date", "Currency", "Total"}, daily, 2),
		section("Highest-spend day", []string{"Currency", "Date", "Total"}, top, 2),
	}

	_, err := fmt.Fprintln(w, lipgloss.JoinVertical(lipgloss.Left, sections...))
	return err
}

func section(title string, headers []string, rows [][]string, amountCol int) string {
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(borderStyle).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case col == amountCol:
				return amountStyle
			default:
				return cellStyle
			}
		})
	return lipgloss.JoinVertical(lipgloss.Left, titleStyle.Render(title), t.Render())
}
