package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// MetaDerivedFrom is the history meta key naming the pair a derived rate was inverted from.
const MetaDerivedFrom = "derived_from"

type HistoryRecord struct {
	ID        string
	Seq       int64
	From      string
	To        string
	Rate      decimal.Decimal
	Timestamp time.Time
	Source    SourceID
	Meta      map[string]string
}

// HistoryID is unique per journal: the sequence number disambiguates
// observations of the same pair with equal timestamps.
func HistoryID(p PairKey, ts time.Time, seq int64) string {
	return fmt.Sprintf("%s_%s_%d", p.String(), ts.UTC().Format(time.RFC3339Nano), seq)
}

func NewHistoryRecord(r RateRecord, seq int64) HistoryRecord {
	h := HistoryRecord{
		ID:        HistoryID(r.Pair, r.ObservedAt, seq),
		Seq:       seq,
		From:      r.Pair.From,
		To:        r.Pair.To,
		Rate:      r.Rate,
		Timestamp: r.ObservedAt.UTC(),
		Source:    r.Source,
		Meta:      map[string]string{},
	}
	if r.DerivedFrom != nil {
		h.Meta[MetaDerivedFrom] = r.DerivedFrom.String()
	}
	return h
}

func (h HistoryRecord) Pair() PairKey { return PairKey{From: h.From, To: h.To} }
