package pg

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ratehub/internal/application"
	"ratehub/internal/domain"
	"ratehub/internal/infrastructure/logx"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// SnapshotRepo stores the snapshot as one row per pair plus a meta row.
// Write replaces every row in a single transaction.
type SnapshotRepo struct{ db *DB }

var _ application.SnapshotStore = (*SnapshotRepo)(nil)

func NewSnapshotRepo(db *DB) *SnapshotRepo { return &SnapshotRepo{db: db} }

func (r *SnapshotRepo) Read(ctx context.Context) (domain.Snapshot, bool, error) {
	const meta = `SELECT last_refresh FROM rate_snapshot_meta WHERE id`
	const q = `SELECT pair, rate::text, updated_at, source, derived_from FROM rate_snapshot`
	log := logx.L().With(zap.String("repo", "snapshot"), zap.String("operation", "Read"))
	db := r.db.q(ctx)

	var last *time.Time
	err := db.QueryRow(ctx, meta).Scan(&last)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.NewSnapshot(), false, nil
	}
	if err != nil {
		log.Error("sql.query_failed", zap.String("sql", meta), zap.Error(err))
		return domain.Snapshot{}, false, domain.StorageError("read snapshot meta", err)
	}

	rows, err := db.Query(ctx, q)
	if err != nil {
		log.Error("sql.query_failed", zap.String("sql", q), zap.Error(err))
		return domain.Snapshot{}, false, domain.StorageError("read snapshot", err)
	}
	defer rows.Close()

	var records []domain.RateRecord
	for rows.Next() {
		var (
			key, rate, source string
			updated           time.Time
			derived           *string
		)
		if err := rows.Scan(&key, &rate, &updated, &source, &derived); err != nil {
			return domain.Snapshot{}, false, domain.StorageError("scan snapshot", err)
		}
		rec, err := toRecord(key, rate, updated, source, derived)
		if err != nil {
			return domain.Snapshot{}, false, domain.StorageError("decode snapshot", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return domain.Snapshot{}, false, domain.StorageError("read snapshot", err)
	}

	snap := domain.NewSnapshot(records...)
	if snap.Len() == 0 && last != nil {
		snap.LastRefresh = last.UTC()
	}
	log.Debug("sql.query_success", zap.Int("pairs", snap.Len()))
	return snap, true, nil
}

func (r *SnapshotRepo) Write(ctx context.Context, snap domain.Snapshot) error {
	const del = `DELETE FROM rate_snapshot`
	const ins = `
        INSERT INTO rate_snapshot(pair, from_currency, to_currency, rate, updated_at, source, derived_from)
        VALUES ($1, $2, $3, $4::numeric, $5, $6, $7)`
	const up = `
        INSERT INTO rate_snapshot_meta(id, last_refresh) VALUES (TRUE, $1)
        ON CONFLICT (id) DO UPDATE SET last_refresh = EXCLUDED.last_refresh`
	log := logx.L().With(zap.String("repo", "snapshot"), zap.String("operation", "Write"), zap.Int("pairs", snap.Len()))

	err := r.db.inTx(ctx, func(q querier) error {
		if _, err := q.Exec(ctx, del); err != nil {
			return fmt.Errorf("clear: %w", err)
		}
		b := &pgx.Batch{}
		for k, rec := range snap.Pairs {
			var derived *string
			if rec.DerivedFrom != nil {
				s := rec.DerivedFrom.String()
				derived = &s
			}
			b.Queue(ins, k.String(), k.From, k.To, rec.Rate.String(), rec.ObservedAt.UTC(), string(rec.Source), derived)
		}
		if b.Len() > 0 {
			if err := q.SendBatch(ctx, b).Close(); err != nil {
				return fmt.Errorf("insert: %w", err)
			}
		}
		var last *time.Time
		if !snap.LastRefresh.IsZero() {
			lr := snap.LastRefresh.UTC()
			last = &lr
		}
		if _, err := q.Exec(ctx, up, last); err != nil {
			return fmt.Errorf("meta: %w", err)
		}
		return nil
	})
	if err != nil {
		log.Error("sql.exec_failed", zap.Error(err))
		return domain.StorageError("write snapshot", err)
	}
	log.Info("sql.exec_success")
	return nil
}

func toRecord(key, rate string, updated time.Time, source string, derived *string) (domain.RateRecord, error) {
	pair, err := domain.ParsePairKey(key)
	if err != nil {
		return domain.RateRecord{}, err
	}
	p, err := decimal.NewFromString(rate)
	if err != nil {
		return domain.RateRecord{}, err
	}
	rec := domain.RateRecord{Pair: pair, Rate: p, ObservedAt: updated.UTC(), Source: domain.SourceID(source)}
	if derived != nil {
		from, err := domain.ParsePairKey(*derived)
		if err != nil {
			return domain.RateRecord{}, err
		}
		rec.DerivedFrom = &from
	}
	return rec, nil
}
