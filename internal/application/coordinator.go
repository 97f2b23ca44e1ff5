package application

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"ratehub/internal/domain"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Coordinator fans a refresh out to every registered source and writes the
// merged result as a brand-new snapshot plus one journal entry per pair.
type Coordinator struct {
	sources []SourceClient
	store   SnapshotStore
	journal HistoryJournal
	deps

	// one refresh at a time
	mu sync.Mutex
}

func NewCoordinator(sources []SourceClient, store SnapshotStore, journal HistoryJournal, opts ...Option) *Coordinator {
	return &Coordinator{
		sources: sources,
		store:   store,
		journal: journal,
		deps:    newDeps(opts),
	}
}

type fetchResult struct {
	prices map[domain.PairKey]domain.Price
	err    error
}

// Refresh never fails because of a source; the returned error is non-nil only
// when persisting the merged rates failed (errors.Is(err, domain.ErrStorage)).
func (c *Coordinator) Refresh(ctx context.Context) (domain.RefreshReport, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	log := c.log.With(zap.String("op", "refresh"))
	log.Info("refresh.start", zap.Int("sources", len(c.sources)))

	results := make([]fetchResult, len(c.sources))
	var g errgroup.Group
	for i, src := range c.sources {
		g.Go(func() error {
			results[i] = c.fetchOne(ctx, src)
			return nil
		})
	}
	_ = g.Wait()

	var report domain.RefreshReport
	merged := make(map[domain.PairKey]domain.RateRecord)
	var order []domain.PairKey

	for i, src := range c.sources {
		id := src.ID()
		res := results[i]
		if res.err != nil {
			report.Errors = append(report.Errors, domain.SourceError{Source: id, Reason: reasonOf(res.err)})
			log.Error("refresh.source_failed", zap.String("source", string(id)), zap.Error(res.err))
			continue
		}
		if len(res.prices) == 0 {
			log.Warn("refresh.source_empty", zap.String("source", string(id)))
			continue
		}

		keys := make([]domain.PairKey, 0, len(res.prices))
		for k := range res.prices {
			keys = append(keys, k)
		}
		slices.SortFunc(keys, func(a, b domain.PairKey) int { return strings.Compare(a.String(), b.String()) })

		added := 0
		for _, k := range keys {
			p := res.prices[k]
			if err := domain.ValidatePrice(p); err != nil {
				log.Warn("refresh.invalid_price", zap.String("source", string(id)), zap.String("pair", k.String()), zap.Error(err))
				continue
			}
			if _, dup := merged[k]; dup {
				continue
			}
			merged[k] = domain.RateRecord{Pair: k, Rate: p, Source: id}
			order = append(order, k)
			added++
		}
		if !slices.Contains(report.SourcesOK, id) {
			report.SourcesOK = append(report.SourcesOK, id)
		}
		log.Info("refresh.source_ok", zap.String("source", string(id)), zap.Int("pairs", len(res.prices)), zap.Int("merged", added))
	}

	if len(merged) == 0 {
		log.Warn("refresh.nothing_collected", zap.Int("errors", len(report.Errors)))
		c.obs.Refreshed(report)
		return report, nil
	}

	now := c.clock.Now()
	records := make([]domain.RateRecord, 0, len(order))
	for _, k := range order {
		rec := merged[k]
		rec.ObservedAt = now
		records = append(records, rec)
	}
	snap := domain.NewSnapshot(records...)

	c.writeMu.Lock()
	err := c.uow.Do(ctx, func(ctx context.Context) error {
		if _, err := c.journal.AppendBatch(ctx, records); err != nil {
			return err
		}
		return c.store.Write(ctx, snap)
	})
	c.writeMu.Unlock()
	if err != nil {
		log.Error("refresh.persist_failed", zap.Error(err))
		return report, asStorageError("save snapshot", err)
	}

	report.PairsUpdated = len(records)
	report.LastRefresh = now
	c.obs.Refreshed(report)
	log.Info("refresh.done",
		zap.Int("pairs", report.PairsUpdated),
		zap.Int("sources_ok", len(report.SourcesOK)),
		zap.Int("errors", len(report.Errors)),
	)
	return report, nil
}

// fetchOne calls a single source under its own timeout. A source that panics
// or ignores ctx is reported as unavailable.
func (c *Coordinator) fetchOne(ctx context.Context, src SourceClient) fetchResult {
	id := src.ID()
	fctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	ch := make(chan fetchResult, 1)
	start := time.Now()
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				ch <- fetchResult{err: domain.SourceUnavailable(id, fmt.Sprintf("panic: %v", rec), nil)}
			}
		}()
		prices, err := src.Fetch(fctx)
		ch <- fetchResult{prices: prices, err: err}
	}()

	var res fetchResult
	select {
	case res = <-ch:
	case <-fctx.Done():
		res = fetchResult{err: domain.SourceUnavailable(id, "timeout", fctx.Err())}
	}
	c.obs.SourceFetched(id, time.Since(start), res.err)
	return res
}

func reasonOf(err error) string {
	var sue *domain.SourceUnavailableError
	if errors.As(err, &sue) {
		if sue.Err != nil {
			return sue.Reason + ": " + sue.Err.Error()
		}
		return sue.Reason
	}
	return err.Error()
}
