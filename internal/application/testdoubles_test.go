package application

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"ratehub/internal/domain"

	"github.com/shopspring/decimal"
)

var (
	ErrRepo = errors.New("repo error")
)

type memSnapshots struct {
	mu       sync.Mutex
	snap     domain.Snapshot
	ok       bool
	writes   int
	readErr  error
	writeErr error

	reads int
	// afterRead runs once the n-th read has taken its copy, before it returns.
	afterRead func(n int)
}

func (m *memSnapshots) Read(context.Context) (domain.Snapshot, bool, error) {
	m.mu.Lock()
	m.reads++
	n, hook := m.reads, m.afterRead
	snap, ok, err := m.snap.With(), m.ok, m.readErr
	m.mu.Unlock()

	if hook != nil {
		hook(n)
	}
	if err != nil {
		return domain.Snapshot{}, false, err
	}
	if !ok {
		return domain.Snapshot{}, false, nil
	}
	return snap, true, nil
}

func (m *memSnapshots) Write(_ context.Context, s domain.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.writeErr != nil {
		return m.writeErr
	}
	m.snap, m.ok = s, true
	m.writes++
	return nil
}

func (m *memSnapshots) current() domain.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snap
}

func (m *memSnapshots) writeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

type memJournal struct {
	mu      sync.Mutex
	records []domain.HistoryRecord
	err     error
}

func (m *memJournal) Append(ctx context.Context, r domain.RateRecord) (domain.HistoryRecord, error) {
	out, err := m.AppendBatch(ctx, []domain.RateRecord{r})
	if err != nil {
		return domain.HistoryRecord{}, err
	}
	return out[0], nil
}

func (m *memJournal) AppendBatch(_ context.Context, rs []domain.RateRecord) ([]domain.HistoryRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	out := make([]domain.HistoryRecord, 0, len(rs))
	for _, r := range rs {
		h := domain.NewHistoryRecord(r, int64(len(m.records))+1)
		m.records = append(m.records, h)
		out = append(out, h)
	}
	return out, nil
}

func (m *memJournal) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

func (m *memJournal) all() []domain.HistoryRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.HistoryRecord(nil), m.records...)
}

// fakeSource quotes every pair in prices unless only is set.
type fakeSource struct {
	id     domain.SourceID
	prices map[domain.PairKey]domain.Price
	only   map[domain.PairKey]bool
	err    error
	delay  time.Duration
	panics string
	calls  atomic.Int32
	before func()
}

func (f *fakeSource) ID() domain.SourceID { return f.id }

func (f *fakeSource) Supports(p domain.PairKey) bool {
	if f.only != nil {
		return f.only[p]
	}
	_, ok := f.prices[p]
	return ok
}

func (f *fakeSource) Fetch(ctx context.Context) (map[domain.PairKey]domain.Price, error) {
	f.calls.Add(1)
	if f.before != nil {
		f.before()
	}
	if f.panics != "" {
		panic(f.panics)
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.err != nil {
		return nil, domain.SourceUnavailable(f.id, "request failed", f.err)
	}
	out := make(map[domain.PairKey]domain.Price, len(f.prices))
	for k, v := range f.prices {
		out[k] = v
	}
	return out, nil
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock(t time.Time) *fakeClock { return &fakeClock{t: t} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type countingObserver struct {
	mu       sync.Mutex
	paths    map[domain.ResolvePath]int
	fetches  int
	failures int
	reports  []domain.RefreshReport
}

func (o *countingObserver) Resolved(p domain.ResolvePath) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.paths == nil {
		o.paths = map[domain.ResolvePath]int{}
	}
	o.paths[p]++
}

func (o *countingObserver) ResolveFailed(string) {
	o.mu.Lock()
	o.failures++
	o.mu.Unlock()
}

func (o *countingObserver) SourceFetched(domain.SourceID, time.Duration, error) {
	o.mu.Lock()
	o.fetches++
	o.mu.Unlock()
}

func (o *countingObserver) Refreshed(r domain.RefreshReport) {
	o.mu.Lock()
	o.reports = append(o.reports, r)
	o.mu.Unlock()
}

func pk(s string) domain.PairKey {
	p, err := domain.ParsePairKey(s)
	if err != nil {
		panic(err)
	}
	return p
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func rec(pair string, rate string, at time.Time, src domain.SourceID) domain.RateRecord {
	return domain.RateRecord{Pair: pk(pair), Rate: dec(rate), ObservedAt: at, Source: src}
}

func seeded(records ...domain.RateRecord) *memSnapshots {
	return &memSnapshots{snap: domain.NewSnapshot(records...), ok: true}
}

var t0 = time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
