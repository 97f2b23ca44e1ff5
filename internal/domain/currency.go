package domain

import (
	"fmt"
	"strings"
)

type CurrencyKind string

const (
	CurrencyFiat   CurrencyKind = "fiat"
	CurrencyCrypto CurrencyKind = "crypto"
)

type Currency struct {
	Code string
	Name string
	Kind CurrencyKind
}

// SupportedCurrencies is the union of every source universe plus the USD base.
var SupportedCurrencies = map[string]Currency{
	"USD": {Code: "USD", Name: "US Dollar", Kind: CurrencyFiat},
	"EUR": {Code: "EUR", Name: "Euro", Kind: CurrencyFiat},
	"GBP": {Code: "GBP", Name: "Pound Sterling", Kind: CurrencyFiat},
	"RUB": {Code: "RUB", Name: "Russian Ruble", Kind: CurrencyFiat},
	"BTC": {Code: "BTC", Name: "Bitcoin", Kind: CurrencyCrypto},
	"ETH": {Code: "ETH", Name: "Ethereum", Kind: CurrencyCrypto},
	"SOL": {Code: "SOL", Name: "Solana", Kind: CurrencyCrypto},
}

// NormalizeCode upper-cases and trims a currency code and checks its shape
// (2 to 5 characters, no whitespace). It does not consult the registry.
func NormalizeCode(code string) (string, bool) {
	c := strings.ToUpper(strings.TrimSpace(code))
	if len(c) < 2 || len(c) > 5 || strings.ContainsAny(c, " \t_") {
		return "", false
	}
	return c, true
}

func ParseCurrency(code string) (Currency, error) {
	c, ok := NormalizeCode(code)
	if !ok {
		return Currency{}, fmt.Errorf("%w: %q", ErrUnsupportedCurrency, code)
	}
	cur, ok := SupportedCurrencies[c]
	if !ok {
		return Currency{}, fmt.Errorf("%w: %q", ErrUnsupportedCurrency, c)
	}
	return cur, nil
}
