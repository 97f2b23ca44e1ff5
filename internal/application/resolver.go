package application

import (
	"context"
	"errors"
	"time"

	"ratehub/internal/domain"

	"go.uber.org/zap"
)

// RateResolver answers pair lookups from the snapshot, falling back to
// on-demand fetches and to one inversion of the reverse pair.
type RateResolver struct {
	store   SnapshotStore
	journal HistoryJournal
	sources []SourceClient
	ttl     time.Duration
	deps
}

func NewRateResolver(store SnapshotStore, journal HistoryJournal, sources []SourceClient, ttl time.Duration, opts ...Option) *RateResolver {
	return &RateResolver{
		store:   store,
		journal: journal,
		sources: sources,
		ttl:     ttl,
		deps:    newDeps(opts),
	}
}

type resolveResult struct {
	rate domain.ResolvedRate
	err  error
}

// Resolve returns the rate for from->to. A caller whose ctx ends stops waiting,
// but a fetch already in flight still completes and populates the snapshot.
func (r *RateResolver) Resolve(ctx context.Context, from, to string) (domain.ResolvedRate, error) {
	pair, err := domain.ValidatePair(from, to)
	if err != nil {
		return domain.ResolvedRate{}, err
	}

	ch := make(chan resolveResult, 1)
	go func() {
		rate, err := r.resolve(context.WithoutCancel(ctx), pair)
		ch <- resolveResult{rate: rate, err: err}
	}()

	select {
	case res := <-ch:
		return res.rate, res.err
	case <-ctx.Done():
		return domain.ResolvedRate{}, ctx.Err()
	}
}

func (r *RateResolver) resolve(ctx context.Context, pair domain.PairKey) (domain.ResolvedRate, error) {
	log := r.log.With(zap.String("pair", pair.String()))

	snap, _, err := r.store.Read(ctx)
	if err != nil {
		return domain.ResolvedRate{}, asStorageError("read snapshot", err)
	}
	now := r.clock.Now()

	if rec, ok := snap.Get(pair); ok && rec.FreshAt(now, r.ttl) {
		log.Debug("resolve.cache_hit")
		return r.answer(snap, rec, domain.PathCache), nil
	}

	if rec, ok := r.fetch(ctx, pair, log); ok {
		snap, err = r.persist(ctx, rec)
		if err != nil {
			return domain.ResolvedRate{}, err
		}
		log.Info("resolve.fetched", zap.String("source", string(rec.Source)))
		return r.answer(snap, rec, domain.PathFetch), nil
	}

	rev := pair.Reverse()
	if rec, ok := snap.Get(rev); ok && !rec.IsDerived() && rec.FreshAt(now, r.ttl) {
		derived, err := rec.DeriveReverse()
		if err == nil {
			snap, err = r.persist(ctx, derived)
			if err != nil {
				return domain.ResolvedRate{}, err
			}
			log.Info("resolve.derived_from_cache", zap.String("reverse", rev.String()))
			return r.answer(snap, derived, domain.PathReverseCache), nil
		}
		log.Warn("resolve.invert_failed", zap.String("reverse", rev.String()), zap.Error(err))
	}

	if rec, ok := r.fetch(ctx, rev, log); ok {
		derived, err := rec.DeriveReverse()
		if err == nil {
			snap, err = r.persist(ctx, rec, derived)
			if err != nil {
				return domain.ResolvedRate{}, err
			}
			log.Info("resolve.derived_from_fetch", zap.String("reverse", rev.String()), zap.String("source", string(rec.Source)))
			return r.answer(snap, derived, domain.PathReverseFetch), nil
		}
		log.Warn("resolve.invert_failed", zap.String("reverse", rev.String()), zap.Error(err))
	}

	log.Info("resolve.exhausted")
	r.obs.ResolveFailed("exhausted")
	return domain.ResolvedRate{}, &domain.RateUnavailableError{From: pair.From, To: pair.To}
}

// fetch asks every source that quotes pair, in registration order, and returns
// the first valid price. Failures are logged and skipped.
func (r *RateResolver) fetch(ctx context.Context, pair domain.PairKey, log *zap.Logger) (domain.RateRecord, bool) {
	for _, src := range r.sources {
		if !src.Supports(pair) {
			continue
		}
		id := src.ID()
		fctx, cancel := context.WithTimeout(ctx, r.timeout)
		start := time.Now()
		prices, err := src.Fetch(fctx)
		cancel()
		r.obs.SourceFetched(id, time.Since(start), err)
		if err != nil {
			log.Warn("resolve.fetch_failed", zap.String("source", string(id)), zap.Error(err))
			continue
		}
		p, ok := prices[pair]
		if !ok || domain.ValidatePrice(p) != nil {
			log.Info("resolve.fetch_missing_pair", zap.String("source", string(id)))
			continue
		}
		return domain.RateRecord{Pair: pair, Rate: p, ObservedAt: r.clock.Now(), Source: id}, true
	}
	return domain.RateRecord{}, false
}

// persist appends records to the journal, then replaces the snapshot with
// the current one plus records. The journal goes first so every snapshot
// record is always present in history.
func (r *RateResolver) persist(ctx context.Context, records ...domain.RateRecord) (domain.Snapshot, error) {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	var out domain.Snapshot
	err := r.uow.Do(ctx, func(ctx context.Context) error {
		snap, _, err := r.store.Read(ctx)
		if err != nil {
			return err
		}
		if _, err := r.journal.AppendBatch(ctx, records); err != nil {
			return err
		}
		out = snap.With(records...)
		return r.store.Write(ctx, out)
	})
	if err != nil {
		r.log.Error("resolve.persist_failed", zap.Error(err))
		return domain.Snapshot{}, asStorageError("persist rate", err)
	}
	return out, nil
}

func (r *RateResolver) answer(snap domain.Snapshot, rec domain.RateRecord, path domain.ResolvePath) domain.ResolvedRate {
	res := domain.ResolvedRate{
		From:      rec.Pair.From,
		To:        rec.Pair.To,
		Rate:      rec.Rate,
		UpdatedAt: rec.ObservedAt,
		Source:    rec.Source,
		Path:      path,
	}
	if rev, ok := snap.Get(rec.Pair.Reverse()); ok {
		v := rev.Rate
		res.ReverseRate = &v
	}
	r.obs.Resolved(path)
	return res
}

func asStorageError(op string, err error) error {
	if errors.Is(err, domain.ErrStorage) {
		return err
	}
	return domain.StorageError(op, err)
}
