package application

import (
	"context"
	"time"

	"ratehub/internal/domain"
)

// SourceClient is one upstream price feed. Fetch is all-or-nothing: it returns
// either a (possibly partial) pair map or a *domain.SourceUnavailableError.
type SourceClient interface {
	ID() domain.SourceID
	Supports(pair domain.PairKey) bool
	Fetch(ctx context.Context) (map[domain.PairKey]domain.Price, error)
}

// SnapshotStore reads and atomically replaces the current snapshot.
// Read reports ok=false when nothing has been written yet.
type SnapshotStore interface {
	Read(ctx context.Context) (snap domain.Snapshot, ok bool, err error)
	Write(ctx context.Context, snap domain.Snapshot) error
}

// HistoryJournal is append-only.
type HistoryJournal interface {
	Append(ctx context.Context, r domain.RateRecord) (domain.HistoryRecord, error)
	AppendBatch(ctx context.Context, rs []domain.RateRecord) ([]domain.HistoryRecord, error)
}

type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now().UTC() }

// Observer receives counters about resolutions and refreshes.
type Observer interface {
	Resolved(path domain.ResolvePath)
	ResolveFailed(reason string)
	SourceFetched(src domain.SourceID, took time.Duration, err error)
	Refreshed(report domain.RefreshReport)
}

type nopObserver struct{}

func (nopObserver) Resolved(domain.ResolvePath)                         {}
func (nopObserver) ResolveFailed(string)                                {}
func (nopObserver) SourceFetched(domain.SourceID, time.Duration, error) {}
func (nopObserver) Refreshed(domain.RefreshReport)                      {}
