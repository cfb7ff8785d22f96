package currency

import (
	"github.com/shopspring/decimal"
)

// Pair is a directed conversion from one currency to another.
type Pair struct {
	From Code
	To   Code
}

// Rates maps a currency pair to the multiplier applied to amounts in Pair.From.
type Rates map[Pair]decimal.Decimal

// DefaultRates are the fixed rates used when none are configured.
func DefaultRates() Rates {
	return Rates{
		{From: USD, To: EUR}: decimal.RequireFromString("0.86"),
		{From: EUR, To: USD}: decimal.RequireFromString("1.16"),
	}
}

// Converter converts amounts between currencies using fixed rates.
// It is safe for concurrent use; rates are never mutated after construction.
type Converter struct {
	rates Rates
}

// NewConverter creates a Converter. A nil map falls back to DefaultRates.
func NewConverter(rates Rates) *Converter {
	if rates == nil {
		rates = DefaultRates()
	}
	copied := make(Rates, len(rates))
	for pair, rate := range rates {
		copied[pair] = rate
	}
	return &Converter{rates: copied}
}

// Convert returns amount expressed in currency to.
//
// Same-currency conversion is the identity. A pair without a configured rate
// returns amount unchanged; callers that need to detect that case use Rate.
func (c *Converter) Convert(amount decimal.Decimal, from, to Code) decimal.Decimal {
	if from == to {
		return amount
	}
	rate, ok := c.rates[Pair{From: from, To: to}]
	if !ok {
		return amount
	}
	return amount.Mul(rate)
}

// Rate returns the configured rate for a pair and whether it exists.
func (c *Converter) Rate(from, to Code) (decimal.Decimal, bool) {
	if from == to {
		return decimal.NewFromInt(1), true
	}
	rate, ok := c.rates[Pair{From: from, To: to}]
	return rate, ok
}
