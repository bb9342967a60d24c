// Package currency converts money between ISO 4217 currencies. Rate lookups
// are remote calls that may fail; callers that must not fail use TryConvert
// and decide what to do with an unconverted Conversion.
package currency

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"pennywise/internal/logger"
)

// Converter looks up exchange rates and converts amounts.
type Converter interface {
	// GetRate returns the multiplier that turns an amount in from into to.
	GetRate(ctx context.Context, from, to string) (decimal.Decimal, error)
	// Convert returns amount × GetRate(from, to).
	Convert(ctx context.Context, from, to string, amount decimal.Decimal) (decimal.Decimal, error)
	// TryConvert never fails; a failed lookup yields an unconverted result.
	TryConvert(ctx context.Context, from, to string, amount decimal.Decimal) Conversion
}

// Conversion is the outcome of converting one amount. When Converted is
// false, Amount still holds the original value in Currency and Err says why.
type Conversion struct {
	Amount    decimal.Decimal
	Rate      decimal.Decimal
	Currency  string
	Converted bool
	Err       error
}

// Total is a sum of conversions into one currency.
type Total struct {
	Amount      decimal.Decimal `json:"amount" swaggertype:"string"`
	Unconverted []string        `json:"unconverted_currencies,omitempty"`
}

// Sum adds the converted contributions and lists the source currencies
// that could not be converted. Unconverted amounts are left out.
func Sum(conversions []Conversion) Total {
	total := Total{Amount: decimal.Zero}
	seen := make(map[string]bool)
	for _, c := range conversions {
		if c.Converted {
			total.Amount = total.Amount.Add(c.Amount)
			continue
		}
		if !seen[c.Currency] {
			seen[c.Currency] = true
			total.Unconverted = append(total.Unconverted, c.Currency)
		}
	}
	sort.Strings(total.Unconverted)
	return total
}

// RateConverter is the Converter backed by a RateProvider and a RateCache.
// Concurrent misses for the same pair share one provider call.
type RateConverter struct {
	provider RateProvider
	cache    RateCache
	group    singleflight.Group
}

// NewConverter creates a RateConverter. cache may be nil to disable caching.
func NewConverter(provider RateProvider, cache RateCache) *RateConverter {
	return &RateConverter{provider: provider, cache: cache}
}

// GetRate returns the exchange rate from one currency to another. Identical
// codes return 1 without a lookup.
func (c *RateConverter) GetRate(ctx context.Context, from, to string) (decimal.Decimal, error) {
	from = strings.ToUpper(strings.TrimSpace(from))
	to = strings.ToUpper(strings.TrimSpace(to))
	if from == "" || to == "" {
		return decimal.Zero, fmt.Errorf("%w: empty currency code", ErrRateUnavailable)
	}
	if from == to {
		return decimal.NewFromInt(1), nil
	}

	if c.cache != nil {
		rate, ok, err := c.cache.Get(ctx, from, to)
		if err != nil {
			logger.Get().Warnw("rate cache read failed", "from", from, "to", to, "error", err)
		} else if ok {
			return rate, nil
		}
	}

	v, err, _ := c.group.Do(pairKey(from, to), func() (interface{}, error) {
		return c.provider.FetchRate(ctx, from, to)
	})
	if err != nil {
		return decimal.Zero, err
	}
	rate := v.(decimal.Decimal)

	if c.cache != nil {
		if err := c.cache.Set(ctx, from, to, rate); err != nil {
			logger.Get().Warnw("rate cache write failed", "from", from, "to", to, "error", err)
		}
	}
	return rate, nil
}

// Convert converts amount from one currency to another.
func (c *RateConverter) Convert(ctx context.Context, from, to string, amount decimal.Decimal) (decimal.Decimal, error) {
	rate, err := c.GetRate(ctx, from, to)
	if err != nil {
		return decimal.Zero, err
	}
	return amount.Mul(rate), nil
}

// TryConvert converts amount, reporting failure in the result instead of an error.
func (c *RateConverter) TryConvert(ctx context.Context, from, to string, amount decimal.Decimal) Conversion {
	return tryConvert(ctx, c, from, to, amount)
}

func tryConvert(ctx context.Context, c Converter, from, to string, amount decimal.Decimal) Conversion {
	rate, err := c.GetRate(ctx, from, to)
	if err != nil {
		return Conversion{Amount: amount, Currency: strings.ToUpper(from), Err: err}
	}
	return Conversion{
		Amount:    amount.Mul(rate),
		Rate:      rate,
		Currency:  strings.ToUpper(to),
		Converted: true,
	}
}
