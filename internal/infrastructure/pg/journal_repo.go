package pg

import (
	"context"
	"fmt"
	"time"

	"ratehub/internal/application"
	"ratehub/internal/domain"
	"ratehub/internal/infrastructure/logx"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// JournalRepo appends to rate_history. Seq comes from the bigserial
// sequence so it is strictly increasing across processes.
type JournalRepo struct{ db *DB }

var _ application.HistoryJournal = (*JournalRepo)(nil)

func NewJournalRepo(db *DB) *JournalRepo { return &JournalRepo{db: db} }

func (r *JournalRepo) Append(ctx context.Context, rec domain.RateRecord) (domain.HistoryRecord, error) {
	out, err := r.AppendBatch(ctx, []domain.RateRecord{rec})
	if err != nil {
		return domain.HistoryRecord{}, err
	}
	return out[0], nil
}

func (r *JournalRepo) AppendBatch(ctx context.Context, rs []domain.RateRecord) ([]domain.HistoryRecord, error) {
	const next = `SELECT nextval(pg_get_serial_sequence('rate_history', 'seq'))`
	const ins = `
        INSERT INTO rate_history(seq, id, from_currency, to_currency, rate, ts, source, meta)
        VALUES ($1, $2, $3, $4, $5::numeric, $6, $7, $8)`
	if len(rs) == 0 {
		return nil, nil
	}
	log := logx.L().With(zap.String("repo", "journal"), zap.String("operation", "AppendBatch"), zap.Int("records", len(rs)))

	out := make([]domain.HistoryRecord, 0, len(rs))
	err := r.db.inTx(ctx, func(q querier) error {
		for _, rec := range rs {
			var seq int64
			if err := q.QueryRow(ctx, next).Scan(&seq); err != nil {
				return fmt.Errorf("nextval: %w", err)
			}
			h := domain.NewHistoryRecord(rec, seq)
			if _, err := q.Exec(ctx, ins, h.Seq, h.ID, h.From, h.To, h.Rate.String(), h.Timestamp, string(h.Source), h.Meta); err != nil {
				return fmt.Errorf("insert %s: %w", h.ID, err)
			}
			out = append(out, h)
		}
		return nil
	})
	if err != nil {
		log.Error("sql.exec_failed", zap.Error(err))
		return nil, domain.StorageError("append history", err)
	}
	log.Info("sql.exec_success")
	return out, nil
}

// Records returns the whole journal in seq order.
func (r *JournalRepo) Records(ctx context.Context) ([]domain.HistoryRecord, error) {
	const q = `
        SELECT seq, id, from_currency, to_currency, rate::text, ts, source, meta
        FROM rate_history ORDER BY seq`
	rows, err := r.db.q(ctx).Query(ctx, q)
	if err != nil {
		logx.L().Error("sql.query_failed", zap.String("repo", "journal"), zap.Error(err))
		return nil, domain.StorageError("read history", err)
	}
	defer rows.Close()

	var out []domain.HistoryRecord
	for rows.Next() {
		var (
			h      domain.HistoryRecord
			rate   string
			source string
			ts     time.Time
		)
		if err := rows.Scan(&h.Seq, &h.ID, &h.From, &h.To, &rate, &ts, &source, &h.Meta); err != nil {
			return nil, domain.StorageError("scan history", err)
		}
		if h.Rate, err = decimal.NewFromString(rate); err != nil {
			return nil, domain.StorageError("decode history", err)
		}
		h.Timestamp = ts.UTC()
		h.Source = domain.SourceID(source)
		out = append(out, h)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.StorageError("read history", err)
	}
	return out, nil
}
