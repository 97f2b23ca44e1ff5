package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type SourceID string

// RateRecord is one observation of a pair. DerivedFrom is set when the rate was
// computed by inverting the reverse pair; derived records are never inverted again.
type RateRecord struct {
	Pair        PairKey
	Rate        Price
	ObservedAt  time.Time
	Source      SourceID
	DerivedFrom *PairKey
}

func (r RateRecord) IsDerived() bool { return r.DerivedFrom != nil }

func (r RateRecord) FreshAt(now time.Time, ttl time.Duration) bool {
	return now.Sub(r.ObservedAt) <= ttl
}

// DeriveReverse builds the record for r.Pair.Reverse() by inversion, keeping
// the source observation time and source id.
func (r RateRecord) DeriveReverse() (RateRecord, error) {
	inv, err := Invert(r.Rate)
	if err != nil {
		return RateRecord{}, err
	}
	src := r.Pair
	return RateRecord{
		Pair:        r.Pair.Reverse(),
		Rate:        inv,
		ObservedAt:  r.ObservedAt,
		Source:      r.Source,
		DerivedFrom: &src,
	}, nil
}

type ResolvePath string

const (
	PathCache        ResolvePath = "cache"
	PathFetch        ResolvePath = "fetch"
	PathReverseCache ResolvePath = "reverse_cache"
	PathReverseFetch ResolvePath = "reverse_fetch"
)

// ResolvedRate is the answer to a pair lookup. ReverseRate is whatever inverse
// happened to be cached, if any.
type ResolvedRate struct {
	From        string
	To          string
	Rate        Price
	ReverseRate *decimal.Decimal
	UpdatedAt   time.Time
	Source      SourceID
	Path        ResolvePath
}
