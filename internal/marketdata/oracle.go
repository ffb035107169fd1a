package marketdata

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ErrNoQuote is returned when a provider has no price data for a symbol.
// Callers must treat it the same as a transport failure: no price, no trade.
var ErrNoQuote = errors.New("no quote available")

// Quote is the latest known close price for a symbol.
type Quote struct {
	Symbol string
	Price  decimal.Decimal
	AsOf   time.Time
}

// Oracle supplies the current tradable price for a symbol.
type Oracle interface {
	LatestClose(ctx context.Context, symbol string) (*Quote, error)
}

// Static is a fixed price table, used for offline runs and tests.
type Static struct {
	prices map[string]decimal.Decimal
}

// NewStatic builds a Static oracle from a symbol->price table.
// Symbols are matched case-insensitively.
func NewStatic(prices map[string]float64) *Static {
	table := make(map[string]decimal.Decimal, len(prices))
	for symbol, price := range prices {
		table[strings.ToUpper(symbol)] = decimal.NewFromFloat(price)
	}
	return &Static{prices: table}
}

// LatestClose returns the configured price, or ErrNoQuote for unknown symbols.
func (s *Static) LatestClose(_ context.Context, symbol string) (*Quote, error) {
	price, ok := s.prices[strings.ToUpper(symbol)]
	if !ok {
		return nil, ErrNoQuote
	}
	return &Quote{Symbol: strings.ToUpper(symbol), Price: price, AsOf: time.Now()}, nil
}
