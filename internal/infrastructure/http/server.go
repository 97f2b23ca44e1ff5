package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"time"

	"ratehub/internal/application"
	"ratehub/internal/domain"
	"ratehub/internal/infrastructure/logx"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type Resolver interface {
	Resolve(ctx context.Context, from, to string) (domain.ResolvedRate, error)
}

type Refresher interface {
	Refresh(ctx context.Context) (domain.RefreshReport, error)
}

type SnapshotReader interface {
	Read(ctx context.Context) (domain.Snapshot, bool, error)
}

type Server struct {
	resolver  Resolver
	refresher Refresher
	snapshots SnapshotReader
	idem      application.IdempotencyStore
	ping      func(ctx context.Context) error
	metrics   http.Handler
}

func NewServer(resolver Resolver, refresher Refresher, snapshots SnapshotReader) *Server {
	return &Server{
		resolver:  resolver,
		refresher: refresher,
		snapshots: snapshots,
		idem:      application.NoopIdempotency{},
	}
}

func (s *Server) SetReadyCheck(fn func(ctx context.Context) error) { s.ping = fn }

func (s *Server) SetIdempotency(store application.IdempotencyStore) {
	if store != nil {
		s.idem = store
	}
}

func (s *Server) SetMetrics(h http.Handler) { s.metrics = h }

type rateResponse struct {
	From        string       `json:"from"`
	To          string       `json:"to"`
	Rate        json.Number  `json:"rate"`
	ReverseRate *json.Number `json:"reverse_rate"`
	UpdatedAt   time.Time    `json:"updated_at"`
	Source      string       `json:"source"`
}

func (s *Server) GetRate(w http.ResponseWriter, r *http.Request) {
	from, to := chi.URLParam(r, "from"), chi.URLParam(r, "to")
	res, err := s.resolver.Resolve(r.Context(), from, to)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	resp := rateResponse{
		From:      res.From,
		To:        res.To,
		Rate:      json.Number(res.Rate.String()),
		UpdatedAt: res.UpdatedAt.UTC(),
		Source:    string(res.Source),
	}
	if res.ReverseRate != nil {
		n := json.Number(res.ReverseRate.String())
		resp.ReverseRate = &n
	}
	writeJSON(w, http.StatusOK, resp)
}

type sourceErrorJSON struct {
	Source string `json:"source"`
	Reason string `json:"reason"`
}

type refreshResponse struct {
	Count       int               `json:"count"`
	LastRefresh *time.Time        `json:"last_refresh"`
	Sources     []string          `json:"sources"`
	Errors      []sourceErrorJSON `json:"errors"`
}

func (s *Server) Refresh(w http.ResponseWriter, r *http.Request) {
	log := logx.WithFields(r.Context())
	if key := r.Header.Get("X-Idempotency-Key"); key != "" {
		ok, err := s.idem.TryReserve(r.Context(), key)
		if err != nil {
			log.Error("refresh.idempotency_failed", zap.Error(err))
			writeError(w, http.StatusServiceUnavailable, "idempotency store unavailable")
			return
		}
		if !ok {
			writeError(w, http.StatusConflict, "duplicate refresh request")
			return
		}
	}

	// A client hanging up must not abort the fetches; each source is still
	// bounded by the coordinator's per-source timeout.
	rep, err := s.refresher.Refresh(context.WithoutCancel(r.Context()))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	resp := refreshResponse{
		Count:   rep.PairsUpdated,
		Sources: make([]string, 0, len(rep.SourcesOK)),
		Errors:  make([]sourceErrorJSON, 0, len(rep.Errors)),
	}
	if !rep.LastRefresh.IsZero() {
		lr := rep.LastRefresh.UTC()
		resp.LastRefresh = &lr
	}
	for _, id := range rep.SourcesOK {
		resp.Sources = append(resp.Sources, string(id))
	}
	for _, e := range rep.Errors {
		resp.Errors = append(resp.Errors, sourceErrorJSON{Source: string(e.Source), Reason: e.Reason})
	}
	writeJSON(w, http.StatusOK, resp)
}

type pairJSON struct {
	Pair        string      `json:"pair"`
	Rate        json.Number `json:"rate"`
	UpdatedAt   time.Time   `json:"updated_at"`
	Source      string      `json:"source"`
	DerivedFrom string      `json:"derived_from,omitempty"`
}

type snapshotResponse struct {
	Pairs       []pairJSON `json:"pairs"`
	LastRefresh *time.Time `json:"last_refresh"`
}

func (s *Server) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, _, err := s.snapshots.Read(r.Context())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	resp := snapshotResponse{Pairs: make([]pairJSON, 0, snap.Len())}
	for k, rec := range snap.Pairs {
		p := pairJSON{
			Pair:      k.String(),
			Rate:      json.Number(rec.Rate.String()),
			UpdatedAt: rec.ObservedAt.UTC(),
			Source:    string(rec.Source),
		}
		if rec.DerivedFrom != nil {
			p.DerivedFrom = rec.DerivedFrom.String()
		}
		resp.Pairs = append(resp.Pairs, p)
	}
	sort.Slice(resp.Pairs, func(i, j int) bool { return resp.Pairs[i].Pair < resp.Pairs[j].Pair })
	if !snap.LastRefresh.IsZero() {
		lr := snap.LastRefresh.UTC()
		resp.LastRefresh = &lr
	}
	writeJSON(w, http.StatusOK, resp)
}

type errorEnvelope struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorEnvelope{Code: status, Message: msg})
}

// writeDomainError is the single place errors become status codes.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	log := logx.WithFields(r.Context())
	switch {
	case errors.Is(err, domain.ErrRateUnavailable):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrUnsupportedCurrency), errors.Is(err, domain.ErrInvalidPair):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, "request timed out")
	case errors.Is(err, context.Canceled):
		// client went away; nothing useful to send
		log.Info("request.canceled")
	case errors.Is(err, domain.ErrStorage):
		log.Error("request.storage_failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "storage failure")
	default:
		log.Error("request.failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
	}
}
