package currency

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// StaticConverter serves a fixed rate table. Inverse pairs are derived when
// only one direction is listed. It is used by tests and offline runs.
type StaticConverter struct {
	rates map[string]decimal.Decimal
}

// NewStaticConverter builds a converter from "FROM:TO" keyed rates.
func NewStaticConverter(rates map[string]decimal.Decimal) *StaticConverter {
	normalized := make(map[string]decimal.Decimal, len(rates))
	for k, v := range rates {
		normalized[strings.ToUpper(k)] = v
	}
	return &StaticConverter{rates: normalized}
}

// GetRate implements Converter.
func (s *StaticConverter) GetRate(_ context.Context, from, to string) (decimal.Decimal, error) {
	from, to = strings.ToUpper(from), strings.ToUpper(to)
	if from == to {
		return decimal.NewFromInt(1), nil
	}
	if rate, ok := s.rates[pairKey(from, to)]; ok {
		return rate, nil
	}
	if inverse, ok := s.rates[pairKey(to, from)]; ok && !inverse.IsZero() {
		return decimal.NewFromInt(1).DivRound(inverse, 8), nil
	}
	return decimal.Zero, fmt.Errorf("%w: %s to %s", ErrRateUnavailable, from, to)
}

// Convert implements Converter.
func (s *StaticConverter) Convert(ctx context.Context, from, to string, amount decimal.Decimal) (decimal.Decimal, error) {
	rate, err := s.GetRate(ctx, from, to)
	if err != nil {
		return decimal.Zero, err
	}
	return amount.Mul(rate), nil
}

// TryConvert implements Converter.
func (s *StaticConverter) TryConvert(ctx context.Context, from, to string, amount decimal.Decimal) Conversion {
	return tryConvert(ctx, s, from, to, amount)
}
