package provider

import (
	"context"

	"ratehub/internal/application"
	"ratehub/internal/domain"

	"github.com/shopspring/decimal"
)

const StaticID domain.SourceID = "static"

// Static serves a fixed table. Used with PROVIDER=fake and in tests.
type Static struct {
	id     domain.SourceID
	prices map[domain.PairKey]domain.Price
}

var _ application.SourceClient = (*Static)(nil)

func NewStatic(id domain.SourceID, prices map[domain.PairKey]domain.Price) *Static {
	cp := make(map[domain.PairKey]domain.Price, len(prices))
	for k, v := range prices {
		cp[k] = v
	}
	return &Static{id: id, prices: cp}
}

// NewFake returns the development table.
func NewFake() *Static {
	return NewStatic(StaticID, map[domain.PairKey]domain.Price{
		domain.NewPairKey("BTC", "USD"): decimal.RequireFromString("59337.21"),
		domain.NewPairKey("EUR", "USD"): decimal.RequireFromString("1.0786"),
		domain.NewPairKey("USD", "EUR"): decimal.RequireFromString("0.9271"),
	})
}

func (s *Static) ID() domain.SourceID { return s.id }

func (s *Static) Supports(p domain.PairKey) bool {
	_, ok := s.prices[p]
	return ok
}

func (s *Static) Fetch(ctx context.Context) (map[domain.PairKey]domain.Price, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.SourceUnavailable(s.id, "canceled", err)
	}
	out := make(map[domain.PairKey]domain.Price, len(s.prices))
	for k, v := range s.prices {
		out[k] = v
	}
	return out, nil
}
