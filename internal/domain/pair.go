package domain

import (
	"fmt"
	"regexp"
)

// PairKey is an ordered currency pair. BTC_USD and USD_BTC are distinct keys.
type PairKey struct {
	From string
	To   string
}

var pairRe = regexp.MustCompile(`^([A-Z]{2,5})_([A-Z]{2,5})$`)

func NewPairKey(from, to string) PairKey { return PairKey{From: from, To: to} }

func (p PairKey) String() string { return p.From + "_" + p.To }

func (p PairKey) Reverse() PairKey { return PairKey{From: p.To, To: p.From} }

func (p PairKey) IsZero() bool { return p.From == "" && p.To == "" }

// ParsePairKey parses the "FROM_TO" serialized form.
func ParsePairKey(s string) (PairKey, error) {
	m := pairRe.FindStringSubmatch(s)
	if m == nil {
		return PairKey{}, fmt.Errorf("%w: %q", ErrInvalidPair, s)
	}
	if m[1] == m[2] {
		return PairKey{}, fmt.Errorf("%w: identical currencies in %q", ErrInvalidPair, s)
	}
	return PairKey{From: m[1], To: m[2]}, nil
}

// ValidatePair checks both codes against the registry and disallows identical from/to.
func ValidatePair(from, to string) (PairKey, error) {
	f, err := ParseCurrency(from)
	if err != nil {
		return PairKey{}, err
	}
	t, err := ParseCurrency(to)
	if err != nil {
		return PairKey{}, err
	}
	if f.Code == t.Code {
		return PairKey{}, fmt.Errorf("%w: %s_%s", ErrInvalidPair, f.Code, t.Code)
	}
	return PairKey{From: f.Code, To: t.Code}, nil
}

func (p PairKey) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

func (p *PairKey) UnmarshalText(b []byte) error {
	k, err := ParsePairKey(string(b))
	if err != nil {
		return err
	}
	*p = k
	return nil
}
