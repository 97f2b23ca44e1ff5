package filestore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"ratehub/internal/application"
	"ratehub/internal/domain"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type historyDoc struct {
	ID           string            `json:"id"`
	Seq          int64             `json:"seq"`
	FromCurrency string            `json:"from_currency"`
	ToCurrency   string            `json:"to_currency"`
	Rate         json.Number       `json:"rate"`
	Timestamp    time.Time         `json:"timestamp"`
	Source       string            `json:"source"`
	Meta         map[string]string `json:"meta"`
}

// Journal is the append-only history kept as one JSON array. Every append
// loads the whole file and rewrites it atomically; fine for this volume.
type Journal struct {
	path string
	log  *zap.Logger
	mu   sync.Mutex
	now  func() time.Time
}

var _ application.HistoryJournal = (*Journal)(nil)

func NewJournal(path string, log *zap.Logger) *Journal {
	if log == nil {
		log = zap.NewNop()
	}
	return &Journal{path: path, log: log, now: time.Now}
}

func (j *Journal) Append(ctx context.Context, r domain.RateRecord) (domain.HistoryRecord, error) {
	out, err := j.AppendBatch(ctx, []domain.RateRecord{r})
	if err != nil {
		return domain.HistoryRecord{}, err
	}
	return out[0], nil
}

func (j *Journal) AppendBatch(ctx context.Context, rs []domain.RateRecord) ([]domain.HistoryRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(rs) == 0 {
		return nil, nil
	}
	j.mu.Lock()
	defer j.mu.Unlock()

	docs, err := j.load()
	if err != nil {
		return nil, domain.StorageError("read journal", err)
	}
	var seq int64
	for _, d := range docs {
		seq = max(seq, d.Seq)
	}

	out := make([]domain.HistoryRecord, 0, len(rs))
	for _, r := range rs {
		seq++
		h := domain.NewHistoryRecord(r, seq)
		docs = append(docs, toHistoryDoc(h))
		out = append(out, h)
	}

	b, err := json.MarshalIndent(docs, "", "  ")
	if err != nil {
		return nil, domain.StorageError("encode journal", err)
	}
	if err := writeFileAtomic(j.path, b, 0o644); err != nil {
		j.log.Error("journal.write_failed", zap.String("path", j.path), zap.Error(err))
		return nil, domain.StorageError("write journal", err)
	}
	return out, nil
}

// Records returns every journal entry in append order.
func (j *Journal) Records(ctx context.Context) ([]domain.HistoryRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	j.mu.Lock()
	docs, err := j.load()
	j.mu.Unlock()
	if err != nil {
		return nil, domain.StorageError("read journal", err)
	}
	out := make([]domain.HistoryRecord, 0, len(docs))
	for _, d := range docs {
		h, err := fromHistoryDoc(d)
		if err != nil {
			return nil, domain.StorageError("decode journal", err)
		}
		out = append(out, h)
	}
	return out, nil
}

// load returns the current entries. An empty or undecodable file counts as
// an empty journal; its bytes are kept aside so nothing is silently lost.
func (j *Journal) load() ([]historyDoc, error) {
	b, ok, err := readFile(j.path)
	if err != nil || !ok {
		return nil, err
	}
	if len(b) == 0 {
		return nil, nil
	}
	var docs []historyDoc
	if err := json.Unmarshal(b, &docs); err != nil {
		backup := fmt.Sprintf("%s.corrupt-%d", j.path, j.now().UnixNano())
		if werr := os.WriteFile(backup, b, 0o644); werr != nil {
			return nil, fmt.Errorf("preserve corrupt journal: %w", werr)
		}
		j.log.Warn("journal.corrupt", zap.String("path", j.path), zap.String("backup", backup), zap.Error(err))
		return nil, nil
	}
	backfillSeq(docs)
	return docs, nil
}

// backfillSeq numbers entries written without a seq by their position.
func backfillSeq(docs []historyDoc) {
	var last int64
	for i := range docs {
		if docs[i].Seq <= last {
			docs[i].Seq = last + 1
		}
		last = docs[i].Seq
	}
}

func toHistoryDoc(h domain.HistoryRecord) historyDoc {
	meta := h.Meta
	if meta == nil {
		meta = map[string]string{}
	}
	return historyDoc{
		ID:           h.ID,
		Seq:          h.Seq,
		FromCurrency: h.From,
		ToCurrency:   h.To,
		Rate:         json.Number(h.Rate.String()),
		Timestamp:    h.Timestamp.UTC(),
		Source:       string(h.Source),
		Meta:         meta,
	}
}

func fromHistoryDoc(d historyDoc) (domain.HistoryRecord, error) {
	rate, err := decimal.NewFromString(d.Rate.String())
	if err != nil {
		return domain.HistoryRecord{}, fmt.Errorf("entry %s: %w", d.ID, err)
	}
	return domain.HistoryRecord{
		ID:        d.ID,
		Seq:       d.Seq,
		From:      d.FromCurrency,
		To:        d.ToCurrency,
		Rate:      rate,
		Timestamp: d.Timestamp.UTC(),
		Source:    domain.SourceID(d.Source),
		Meta:      d.Meta,
	}, nil
}
