// Package pricing provides USD spot prices for tracked tokens.
package pricing

//go:generate mockgen -source=feed.go -destination=mocks/mock_pricing.go -package=mock_pricing

import (
	"context"

	"github.com/shopspring/decimal"
)

// Feed returns spot prices keyed by price identifier. Identifiers the
// upstream does not know are absent from the result rather than an error;
// an error means the whole batch is unusable.
type Feed interface {
	SpotPrices(ctx context.Context, ids []string) (map[string]decimal.Decimal, error)
}

// StaticFeed serves fixed prices. It backs the CLI's offline mode and tests.
type StaticFeed map[string]decimal.Decimal

// SpotPrices implements Feed.
func (f StaticFeed) SpotPrices(_ context.Context, ids []string) (map[string]decimal.Decimal, error) {
	out := make(map[string]decimal.Decimal, len(ids))
	for _, id := range ids {
		if price, ok := f[id]; ok {
			out[id] = price
		}
	}
	return out, nil
}
