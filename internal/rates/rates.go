package rates

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"scadenze/internal/core"
)

var ErrUnknownCurrency = errors.New("unknown currency")

// Table quotes every known currency against a single base currency.
// Rates[code] is how many units of code one base unit buys, so the
// base itself always carries a rate of 1.
type Table struct {
	Base  string
	Rates map[string]decimal.Decimal
	AsOf  core.Date
}

// Rate returns the cross rate from one currency to another. Both legs
// go through the base, so any pair of known currencies works.
func (t Table) Rate(from, to string) (decimal.Decimal, error) {
	rf, ok := t.Rates[from]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrUnknownCurrency, from)
	}
	rt, ok := t.Rates[to]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrUnknownCurrency, to)
	}
	if rf.IsZero() {
		return decimal.Zero, fmt.Errorf("rate for %s is zero", from)
	}
	return rt.Div(rf), nil
}

// Provider supplies a rate table on demand
type Provider interface {
	FetchRates(ctx context.Context) (Table, error)
}

// Built-in USD-based table used when no feed is configured or the feed
// is unreachable.
var mockRates = map[string]string{
	"USD": "1.0",
	"EUR": "0.92",
	"JPY": "150.0",
	"VND": "25350.0",
}

// StaticProvider serves the built-in table
type StaticProvider struct {
	table Table
}

// NewStaticProvider creates a provider over the built-in table
func NewStaticProvider() *StaticProvider {
	rates := make(map[string]decimal.Decimal, len(mockRates))
	for code, rate := range mockRates {
		rates[code] = decimal.RequireFromString(rate)
	}
	return &StaticProvider{table: Table{Base: "USD", Rates: rates}}
}

func (p *StaticProvider) FetchRates(_ context.Context) (Table, error) {
	return p.table, nil
}
