package filestore_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"ratehub/internal/application"
	"ratehub/internal/domain"
	"ratehub/internal/infrastructure/filestore"
	"ratehub/internal/infrastructure/provider"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type downSource struct{ id domain.SourceID }

func (d downSource) ID() domain.SourceID          { return d.id }
func (d downSource) Supports(domain.PairKey) bool { return true }
func (d downSource) Fetch(context.Context) (map[domain.PairKey]domain.Price, error) {
	return nil, domain.SourceUnavailable(d.id, "request failed", errors.New("connection refused"))
}

func TestRefresh_TotalFailureLeavesFilesByteForByte(t *testing.T) {
	dir := t.TempDir()
	snaps := filestore.NewSnapshotStore(filepath.Join(dir, "rates.json"), nil)
	journal := filestore.NewJournal(filepath.Join(dir, "history.json"), nil)
	ctx := context.Background()

	ok := application.NewCoordinator([]application.SourceClient{provider.NewFake()}, snaps, journal)
	_, err := ok.Refresh(ctx)
	require.NoError(t, err)

	beforeSnap, err := os.ReadFile(snaps.Path())
	require.NoError(t, err)
	beforeHist, err := os.ReadFile(filepath.Join(dir, "history.json"))
	require.NoError(t, err)

	failing := application.NewCoordinator([]application.SourceClient{downSource{"a"}, downSource{"b"}}, snaps, journal)
	rep, err := failing.Refresh(ctx)
	require.NoError(t, err)
	require.Zero(t, rep.PairsUpdated)
	require.Len(t, rep.Errors, 2)

	afterSnap, err := os.ReadFile(snaps.Path())
	require.NoError(t, err)
	afterHist, err := os.ReadFile(filepath.Join(dir, "history.json"))
	require.NoError(t, err)
	require.Equal(t, beforeSnap, afterSnap)
	require.Equal(t, beforeHist, afterHist)
}

func TestResolve_SurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	open := func() (*filestore.SnapshotStore, *filestore.Journal) {
		return filestore.NewSnapshotStore(filepath.Join(dir, "rates.json"), nil),
			filestore.NewJournal(filepath.Join(dir, "history.json"), nil)
	}

	snaps, journal := open()
	r := application.NewRateResolver(snaps, journal, []application.SourceClient{provider.NewFake()}, 5*time.Minute)
	got, err := r.Resolve(ctx, "BTC", "USD")
	require.NoError(t, err)
	require.Equal(t, domain.PathFetch, got.Path)

	snaps, journal = open()
	r = application.NewRateResolver(snaps, journal, nil, 5*time.Minute)
	again, err := r.Resolve(ctx, "BTC", "USD")
	require.NoError(t, err)
	require.Equal(t, domain.PathCache, again.Path)
	require.True(t, decimal.RequireFromString("59337.21").Equal(again.Rate))

	hist, err := journal.Records(ctx)
	require.NoError(t, err)
	require.Len(t, hist, 1)
}
