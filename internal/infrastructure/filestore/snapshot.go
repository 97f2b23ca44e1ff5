package filestore

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"ratehub/internal/application"
	"ratehub/internal/domain"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type pairDoc struct {
	Rate        json.Number `json:"rate"`
	UpdatedAt   time.Time   `json:"updated_at"`
	Source      string      `json:"source"`
	DerivedFrom string      `json:"derived_from,omitempty"`
}

type snapshotDoc struct {
	Pairs       map[string]pairDoc `json:"pairs"`
	LastRefresh *time.Time         `json:"last_refresh"`
}

// SnapshotStore keeps the current snapshot in a single JSON document.
type SnapshotStore struct {
	path string
	log  *zap.Logger
	mu   sync.RWMutex
}

var _ application.SnapshotStore = (*SnapshotStore)(nil)

func NewSnapshotStore(path string, log *zap.Logger) *SnapshotStore {
	if log == nil {
		log = zap.NewNop()
	}
	return &SnapshotStore{path: path, log: log}
}

func (s *SnapshotStore) Path() string { return s.path }

func (s *SnapshotStore) Read(ctx context.Context) (domain.Snapshot, bool, error) {
	if err := ctx.Err(); err != nil {
		return domain.Snapshot{}, false, err
	}
	s.mu.RLock()
	b, ok, err := readFile(s.path)
	s.mu.RUnlock()
	if err != nil {
		return domain.Snapshot{}, false, domain.StorageError("read snapshot", err)
	}
	if !ok {
		return domain.NewSnapshot(), false, nil
	}

	snap, err := decodeSnapshot(b)
	if err != nil {
		s.log.Error("snapshot.decode_failed", zap.String("path", s.path), zap.Error(err))
		return domain.Snapshot{}, false, domain.StorageError("decode snapshot", err)
	}
	return snap, true, nil
}

func (s *SnapshotStore) Write(ctx context.Context, snap domain.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b, err := encodeSnapshot(snap)
	if err != nil {
		return domain.StorageError("encode snapshot", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := writeFileAtomic(s.path, b, 0o644); err != nil {
		s.log.Error("snapshot.write_failed", zap.String("path", s.path), zap.Error(err))
		return domain.StorageError("write snapshot", err)
	}
	s.log.Debug("snapshot.written", zap.Int("pairs", snap.Len()))
	return nil
}

func encodeSnapshot(snap domain.Snapshot) ([]byte, error) {
	doc := snapshotDoc{Pairs: make(map[string]pairDoc, snap.Len())}
	for k, r := range snap.Pairs {
		d := pairDoc{
			Rate:      json.Number(r.Rate.String()),
			UpdatedAt: r.ObservedAt.UTC(),
			Source:    string(r.Source),
		}
		if r.DerivedFrom != nil {
			d.DerivedFrom = r.DerivedFrom.String()
		}
		doc.Pairs[k.String()] = d
	}
	if !snap.LastRefresh.IsZero() {
		lr := snap.LastRefresh.UTC()
		doc.LastRefresh = &lr
	}
	return json.MarshalIndent(doc, "", "  ")
}

func decodeSnapshot(b []byte) (domain.Snapshot, error) {
	var doc snapshotDoc
	if err := json.Unmarshal(b, &doc); err != nil {
		return domain.Snapshot{}, err
	}
	records := make([]domain.RateRecord, 0, len(doc.Pairs))
	for key, d := range doc.Pairs {
		pair, err := domain.ParsePairKey(key)
		if err != nil {
			return domain.Snapshot{}, err
		}
		rate, err := decimal.NewFromString(d.Rate.String())
		if err != nil {
			return domain.Snapshot{}, fmt.Errorf("pair %s: %w", key, err)
		}
		if err := domain.ValidatePrice(rate); err != nil {
			return domain.Snapshot{}, fmt.Errorf("pair %s: %w", key, err)
		}
		r := domain.RateRecord{Pair: pair, Rate: rate, ObservedAt: d.UpdatedAt.UTC(), Source: domain.SourceID(d.Source)}
		if d.DerivedFrom != "" {
			from, err := domain.ParsePairKey(d.DerivedFrom)
			if err != nil {
				return domain.Snapshot{}, err
			}
			r.DerivedFrom = &from
		}
		records = append(records, r)
	}
	snap := domain.NewSnapshot(records...)
	// documents written by older tools may carry a last_refresh with no pairs
	if snap.Len() == 0 && doc.LastRefresh != nil {
		snap.LastRefresh = doc.LastRefresh.UTC()
	}
	return snap, nil
}
