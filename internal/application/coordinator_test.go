package application

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"ratehub/internal/domain"

	"github.com/stretchr/testify/require"
)

func prices(kv ...string) map[domain.PairKey]domain.Price {
	out := make(map[domain.PairKey]domain.Price, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		out[pk(kv[i])] = dec(kv[i+1])
	}
	return out
}

func TestRefresh_PartialFailure(t *testing.T) {
	t.Parallel()
	clock := newFakeClock(t0)
	store := &memSnapshots{}
	journal := &memJournal{}
	crypto := &fakeSource{id: "CoinGecko", prices: prices("BTC_USD", "59337.21", "ETH_USD", "3100.5", "SOL_USD", "140.25")}
	fiat := &fakeSource{id: "ExchangeRate-API", err: errors.New("connection refused")}
	c := NewCoordinator([]SourceClient{crypto, fiat}, store, journal, WithClock(clock))

	rep, err := c.Refresh(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, rep.PairsUpdated)
	require.Equal(t, []domain.SourceID{"CoinGecko"}, rep.SourcesOK)
	require.Len(t, rep.Errors, 1)
	require.Equal(t, domain.SourceID("ExchangeRate-API"), rep.Errors[0].Source)
	require.Contains(t, rep.Errors[0].Reason, "connection refused")
	require.Equal(t, t0, rep.LastRefresh)

	snap := store.current()
	require.Equal(t, 3, snap.Len())
	require.Equal(t, t0, snap.LastRefresh)
	for _, r := range snap.Pairs {
		require.Equal(t, t0, r.ObservedAt)
		require.Equal(t, domain.SourceID("CoinGecko"), r.Source)
	}
	require.Equal(t, 3, journal.len())
}

func TestRefresh_TotalFailureLeavesStorageUntouched(t *testing.T) {
	t.Parallel()
	store := seeded(rec("BTC_USD", "50000", t0.Add(-time.Hour), "CoinGecko"))
	journal := &memJournal{}
	a := &fakeSource{id: "a", err: errors.New("down")}
	b := &fakeSource{id: "b", err: errors.New("down")}
	c := NewCoordinator([]SourceClient{a, b}, store, journal, WithClock(newFakeClock(t0)))

	rep, err := c.Refresh(context.Background())
	require.NoError(t, err)
	require.Zero(t, rep.PairsUpdated)
	require.Empty(t, rep.SourcesOK)
	require.Len(t, rep.Errors, 2)
	require.True(t, rep.LastRefresh.IsZero())

	require.Equal(t, 0, store.writeCount())
	require.Equal(t, 0, journal.len())
	old, ok := store.current().Get(pk("BTC_USD"))
	require.True(t, ok)
	require.True(t, dec("50000").Equal(old.Rate))
}

func TestRefresh_ReplacesSnapshotAndAppendsHistoryEveryRun(t *testing.T) {
	t.Parallel()
	clock := newFakeClock(t0)
	store := seeded(rec("GBP_USD", "1.3", t0.Add(-time.Hour), "old"))
	journal := &memJournal{}
	src := &fakeSource{id: "CoinGecko", prices: prices("BTC_USD", "1", "ETH_USD", "2", "SOL_USD", "3")}
	c := NewCoordinator([]SourceClient{src}, store, journal, WithClock(clock))

	first, err := c.Refresh(context.Background())
	require.NoError(t, err)
	clock.Advance(time.Minute)
	second, err := c.Refresh(context.Background())
	require.NoError(t, err)

	require.Equal(t, 3, first.PairsUpdated)
	require.Equal(t, 3, second.PairsUpdated)
	require.Equal(t, 3, store.current().Len())
	_, ok := store.current().Get(pk("GBP_USD"))
	require.False(t, ok, "refresh replaces the snapshot with the merged pairs only")
	require.Equal(t, t0.Add(time.Minute), store.current().LastRefresh)

	hist := journal.all()
	require.Len(t, hist, 6)
	seen := map[string]bool{}
	for _, h := range hist {
		require.False(t, seen[h.ID], "duplicate history id %s", h.ID)
		seen[h.ID] = true
	}
}

func TestRefresh_FirstRegisteredSourceWinsOnOverlap(t *testing.T) {
	t.Parallel()
	store := &memSnapshots{}
	first := &fakeSource{id: "first", prices: prices("EUR_USD", "1.10")}
	second := &fakeSource{id: "second", prices: prices("EUR_USD", "1.20", "GBP_USD", "1.30")}
	c := NewCoordinator([]SourceClient{first, second}, store, &memJournal{})

	rep, err := c.Refresh(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, rep.PairsUpdated)
	require.Equal(t, []domain.SourceID{"first", "second"}, rep.SourcesOK)

	eur, _ := store.current().Get(pk("EUR_USD"))
	require.Equal(t, domain.SourceID("first"), eur.Source)
	require.True(t, dec("1.10").Equal(eur.Rate))
	gbp, _ := store.current().Get(pk("GBP_USD"))
	require.Equal(t, domain.SourceID("second"), gbp.Source)
}

func TestRefresh_SlowSourceTimesOut(t *testing.T) {
	t.Parallel()
	store := &memSnapshots{}
	fast := &fakeSource{id: "fast", prices: prices("BTC_USD", "1")}
	slow := &fakeSource{id: "slow", prices: prices("EUR_USD", "1"), delay: 2 * time.Second}
	c := NewCoordinator([]SourceClient{fast, slow}, store, &memJournal{}, WithSourceTimeout(50*time.Millisecond))

	start := time.Now()
	rep, err := c.Refresh(context.Background())
	require.NoError(t, err)
	require.Less(t, time.Since(start), time.Second)
	require.Equal(t, []domain.SourceID{"fast"}, rep.SourcesOK)
	require.Len(t, rep.Errors, 1)
	require.Equal(t, domain.SourceID("slow"), rep.Errors[0].Source)
	require.Contains(t, rep.Errors[0].Reason, "timeout")
	require.Equal(t, 1, store.current().Len())
}

func TestRefresh_PanickingSourceIsReportedAsError(t *testing.T) {
	t.Parallel()
	store := &memSnapshots{}
	bad := &fakeSource{id: "bad", panics: "nil map"}
	good := &fakeSource{id: "good", prices: prices("BTC_USD", "1")}
	c := NewCoordinator([]SourceClient{bad, good}, store, &memJournal{})

	rep, err := c.Refresh(context.Background())
	require.NoError(t, err)
	require.Equal(t, []domain.SourceID{"good"}, rep.SourcesOK)
	require.Len(t, rep.Errors, 1)
	require.Contains(t, rep.Errors[0].Reason, "panic")
}

func TestRefresh_DropsNonPositivePrices(t *testing.T) {
	t.Parallel()
	store := &memSnapshots{}
	src := &fakeSource{id: "src", prices: prices("BTC_USD", "0", "ETH_USD", "-1", "SOL_USD", "140")}
	c := NewCoordinator([]SourceClient{src}, store, &memJournal{})

	rep, err := c.Refresh(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, rep.PairsUpdated)
	_, ok := store.current().Get(pk("BTC_USD"))
	require.False(t, ok)
}

func TestRefresh_EmptySourceIsNeitherOkNorError(t *testing.T) {
	t.Parallel()
	empty := &fakeSource{id: "empty", prices: map[domain.PairKey]domain.Price{}}
	full := &fakeSource{id: "full", prices: prices("BTC_USD", "1")}
	c := NewCoordinator([]SourceClient{empty, full}, &memSnapshots{}, &memJournal{})

	rep, err := c.Refresh(context.Background())
	require.NoError(t, err)
	require.Equal(t, []domain.SourceID{"full"}, rep.SourcesOK)
	require.Empty(t, rep.Errors)
}

func TestRefresh_StorageFailureIsReturned(t *testing.T) {
	t.Parallel()
	src := &fakeSource{id: "src", prices: prices("BTC_USD", "1")}

	c := NewCoordinator([]SourceClient{src}, &memSnapshots{writeErr: ErrRepo}, &memJournal{})
	rep, err := c.Refresh(context.Background())
	require.ErrorIs(t, err, domain.ErrStorage)
	require.ErrorIs(t, err, ErrRepo)
	require.Zero(t, rep.PairsUpdated)

	store := &memSnapshots{}
	c = NewCoordinator([]SourceClient{src}, store, &memJournal{err: ErrRepo})
	_, err = c.Refresh(context.Background())
	require.ErrorIs(t, err, domain.ErrStorage)
	require.Equal(t, 0, store.writeCount(), "snapshot must not be written when history append fails")
}

func TestRefresh_FetchesRunConcurrently(t *testing.T) {
	t.Parallel()
	var barrier sync.WaitGroup
	barrier.Add(2)
	wait := func() {
		barrier.Done()
		barrier.Wait()
	}
	a := &fakeSource{id: "a", prices: prices("BTC_USD", "1"), before: wait}
	b := &fakeSource{id: "b", prices: prices("EUR_USD", "1"), before: wait}
	c := NewCoordinator([]SourceClient{a, b}, &memSnapshots{}, &memJournal{}, WithSourceTimeout(2*time.Second))

	rep, err := c.Refresh(context.Background())
	require.NoError(t, err)
	require.Len(t, rep.SourcesOK, 2, "sequential fetches would deadlock on the barrier and time out")
}

func TestRefresh_NotifiesObserver(t *testing.T) {
	t.Parallel()
	obs := &countingObserver{}
	a := &fakeSource{id: "a", prices: prices("BTC_USD", "1")}
	b := &fakeSource{id: "b", err: errors.New("x")}
	c := NewCoordinator([]SourceClient{a, b}, &memSnapshots{}, &memJournal{}, WithObserver(obs))

	_, err := c.Refresh(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, obs.fetches)
	require.Len(t, obs.reports, 1)
	require.Equal(t, 1, obs.reports[0].PairsUpdated)
}

func TestRefresh_DuringResolvePersistIsNotLost(t *testing.T) {
	t.Parallel()
	var writeMu sync.Mutex
	store := &memSnapshots{}
	journal := &memJournal{}
	crypto := &fakeSource{id: "CoinGecko", prices: prices("BTC_USD", "59337.21")}
	fiat := &fakeSource{id: "ExchangeRate-API", prices: prices("EUR_USD", "1.0786")}
	coord := NewCoordinator([]SourceClient{fiat}, store, journal, WithWriteLock(&writeMu))
	resolver := NewRateResolver(store, journal, []SourceClient{crypto}, 300*time.Second, WithWriteLock(&writeMu))

	refreshed := make(chan domain.RefreshReport, 1)
	// The second read is the one inside persist. Start a refresh there and give
	// it the chance to write before persist writes its own copy back.
	store.afterRead = func(n int) {
		if n != 2 {
			return
		}
		done := make(chan struct{})
		go func() {
			rep, _ := coord.Refresh(context.Background())
			refreshed <- rep
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(100 * time.Millisecond):
		}
	}

	got, err := resolver.Resolve(context.Background(), "BTC", "USD")
	require.NoError(t, err)
	require.Equal(t, domain.PathFetch, got.Path)

	rep := <-refreshed
	require.Equal(t, 1, rep.PairsUpdated)

	eur, ok := store.current().Get(pk("EUR_USD"))
	require.True(t, ok, "refresh reported success, so its rates must be in the snapshot")
	require.Equal(t, domain.SourceID("ExchangeRate-API"), eur.Source)
	require.Equal(t, 2, journal.len())
}
