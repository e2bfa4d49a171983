package rates

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/beevik/etree"
	"github.com/shopspring/decimal"

	"scadenze/internal/core"
)

// FeedProvider fetches rates from an ECB style daily reference XML
// feed, which quotes every currency against one euro.
type FeedProvider struct {
	url    string
	client *http.Client
}

// NewFeedProvider creates a provider for the given feed URL
func NewFeedProvider(url string) *FeedProvider {
	return &FeedProvider{
		url: url,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (p *FeedProvider) FetchRates(ctx context.Context) (Table, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return Table{}, fmt.Errorf("create feed request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return Table{}, fmt.Errorf("fetch rates feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Table{}, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Table{}, fmt.Errorf("read feed response: %w", err)
	}

	return parseFeed(body)
}

func parseFeed(raw []byte) (Table, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(raw); err != nil {
		return Table{}, fmt.Errorf("parse rates XML: %w", err)
	}

	cubes := doc.FindElements("//Cube[@currency]")
	if len(cubes) == 0 {
		return Table{}, fmt.Errorf("no rates found in feed")
	}

	rates := map[string]decimal.Decimal{
		"EUR": decimal.NewFromInt(1),
	}
	for _, cube := range cubes {
		code := cube.SelectAttrValue("currency", "")
		rate, err := decimal.NewFromString(cube.SelectAttrValue("rate", ""))
		if err != nil {
			return Table{}, fmt.Errorf("parse rate for %s: %w", code, err)
		}
		rates[code] = rate
	}

	table := Table{Base: "EUR", Rates: rates}
	if day := doc.FindElement("//Cube[@time]"); day != nil {
		if asOf, err := core.ParseDate(day.SelectAttrValue("time", "")); err == nil {
			table.AsOf = asOf
		}
	}

	return table, nil
}
