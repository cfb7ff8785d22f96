// Package currency defines the currency codes a ledger accepts and the fixed-rate
// converter applied when a transaction's currency differs from its account's.
package currency

import (
	"fmt"
	"strings"

	"github.com/amirasaad/ledgersync/pkg/domain"
)

// Code represents an ISO 4217 currency code (e.g., "USD", "EUR").
type Code string

const (
	// USD represents US Dollar.
	USD Code = "USD"
	// EUR represents Euro.
	EUR Code = "EUR"
)

// DefaultCurrency is used when a request does not name a currency.
const DefaultCurrency = USD

var supported = map[Code]struct{}{
	USD: {},
	EUR: {},
}

// String returns the code as a string.
func (c Code) String() string {
	return string(c)
}

// IsValid reports whether c is a currency the ledgers accept.
func (c Code) IsValid() bool {
	_, ok := supported[c]
	return ok
}

// Parse normalizes s (trimmed, upper-cased) and validates it.
// Unknown codes are rejected with domain.ErrValidation.
func Parse(s string) (Code, error) {
	code := Code(strings.ToUpper(strings.TrimSpace(s)))
	if !code.IsValid() {
		return "", fmt.Errorf("%w: unsupported currency %q", domain.ErrValidation, s)
	}
	return code, nil
}

// Supported returns every accepted currency code.
func Supported() []Code {
	return []Code{USD, EUR}
}
