package domain

import "time"

// Snapshot is the current view of all known rates. It is replaced as a whole.
type Snapshot struct {
	Pairs       map[PairKey]RateRecord
	LastRefresh time.Time
}

func NewSnapshot(records ...RateRecord) Snapshot {
	s := Snapshot{Pairs: make(map[PairKey]RateRecord, len(records))}
	return s.With(records...)
}

func (s Snapshot) Get(p PairKey) (RateRecord, bool) {
	r, ok := s.Pairs[p]
	return r, ok
}

func (s Snapshot) Len() int { return len(s.Pairs) }

func (s Snapshot) Clone() Snapshot { return s.With() }

// With returns a copy of s with records added or replaced. LastRefresh of the
// copy is the maximum ObservedAt across all of its records.
func (s Snapshot) With(records ...RateRecord) Snapshot {
	out := Snapshot{Pairs: make(map[PairKey]RateRecord, len(s.Pairs)+len(records))}
	for k, v := range s.Pairs {
		out.Pairs[k] = v
	}
	for _, r := range records {
		out.Pairs[r.Pair] = r
	}
	for _, r := range out.Pairs {
		if r.ObservedAt.After(out.LastRefresh) {
			out.LastRefresh = r.ObservedAt
		}
	}
	return out
}
