package rates

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"scadenze/internal/cache"
)

const tableCacheKey = "rates"

// Conversion is the result of converting an amount between currencies
type Conversion struct {
	OriginalAmount  decimal.Decimal
	FromCurrency    string
	ToCurrency      string
	ConvertedAmount decimal.Decimal
	Rate            decimal.Decimal
}

// Service converts amounts between currencies. Fetched tables are
// cached for the configured TTL; when the feed fails or no provider is
// configured the built-in table answers instead.
type Service struct {
	provider Provider
	fallback Provider
	cache    cache.Cache[Table]
}

// NewService creates a conversion service. provider may be nil, in
// which case only the built-in table is used.
func NewService(provider Provider, ttl time.Duration) *Service {
	return &Service{
		provider: provider,
		fallback: NewStaticProvider(),
		cache:    cache.NewLRUCache[Table](1, ttl),
	}
}

// Convert converts amount from one currency to another. The rate is
// rounded to 6 decimal places and the converted amount to 2.
func (s *Service) Convert(ctx context.Context, amount decimal.Decimal, from, to string) (Conversion, error) {
	from = strings.ToUpper(strings.TrimSpace(from))
	to = strings.ToUpper(strings.TrimSpace(to))

	conv := Conversion{
		OriginalAmount: amount,
		FromCurrency:   from,
		ToCurrency:     to,
	}

	if from == to {
		conv.Rate = decimal.NewFromInt(1)
		conv.ConvertedAmount = amount
		return conv, nil
	}

	table, err := s.table(ctx)
	if err != nil {
		return Conversion{}, err
	}

	rate, err := table.Rate(from, to)
	if err != nil {
		return Conversion{}, err
	}

	conv.Rate = rate.Round(6)
	conv.ConvertedAmount = amount.Mul(rate).Round(2)
	return conv, nil
}

func (s *Service) table(ctx context.Context) (Table, error) {
	if table, ok := s.cache.Get(tableCacheKey); ok {
		return table, nil
	}

	if s.provider == nil {
		return s.fallback.FetchRates(ctx)
	}

	table, err := s.provider.FetchRates(ctx)
	if err != nil {
		slog.WarnContext(ctx, "Rates feed unavailable, using built-in table", "error", err)
		return s.fallback.FetchRates(ctx)
	}

	s.cache.Set(tableCacheKey, table)
	slog.InfoContext(ctx, "Exchange rates refreshed",
		"base", table.Base,
		"currencies", len(table.Rates),
		"as_of", table.AsOf)
	return table, nil
}
