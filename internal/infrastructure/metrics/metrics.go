package metrics

import (
	"net/http"
	"time"

	"ratehub/internal/application"
	"ratehub/internal/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RateMetrics records resolver and refresh activity. Each instance owns its
// registry so tests can build as many as they like.
type RateMetrics struct {
	Registry *prometheus.Registry

	ResolvedTotal       *prometheus.CounterVec
	ResolveFailedTotal  *prometheus.CounterVec
	SourceFetchDuration *prometheus.HistogramVec
	SourceErrorsTotal   *prometheus.CounterVec
	RefreshTotal        prometheus.Counter
	RefreshPairsUpdated prometheus.Gauge
	LastRefreshSeconds  prometheus.Gauge
}

var _ application.Observer = (*RateMetrics)(nil)

func New() *RateMetrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &RateMetrics{
		Registry: reg,
		ResolvedTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ratehub_resolve_total",
				Help: "Successful rate resolutions by path",
			},
			[]string{"path"},
		),
		ResolveFailedTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ratehub_resolve_failed_total",
				Help: "Rate resolutions that exhausted every path",
			},
			[]string{"reason"},
		),
		SourceFetchDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ratehub_source_fetch_duration_seconds",
				Help:    "Upstream fetch latency",
				Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms .. ~20s
			},
			[]string{"source", "result"},
		),
		SourceErrorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ratehub_source_errors_total",
				Help: "Failed upstream fetches",
			},
			[]string{"source"},
		),
		RefreshTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "ratehub_refresh_total",
			Help: "Completed refresh runs",
		}),
		RefreshPairsUpdated: f.NewGauge(prometheus.GaugeOpts{
			Name: "ratehub_refresh_pairs_updated",
			Help: "Pairs written by the last refresh",
		}),
		LastRefreshSeconds: f.NewGauge(prometheus.GaugeOpts{
			Name: "ratehub_last_refresh_timestamp_seconds",
			Help: "Unix time of the last refresh that wrote rates",
		}),
	}
}

func (m *RateMetrics) Resolved(path domain.ResolvePath) {
	m.ResolvedTotal.WithLabelValues(string(path)).Inc()
}

func (m *RateMetrics) ResolveFailed(reason string) {
	m.ResolveFailedTotal.WithLabelValues(reason).Inc()
}

func (m *RateMetrics) SourceFetched(src domain.SourceID, took time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
		m.SourceErrorsTotal.WithLabelValues(string(src)).Inc()
	}
	m.SourceFetchDuration.WithLabelValues(string(src), result).Observe(took.Seconds())
}

func (m *RateMetrics) Refreshed(r domain.RefreshReport) {
	m.RefreshTotal.Inc()
	m.RefreshPairsUpdated.Set(float64(r.PairsUpdated))
	if !r.LastRefresh.IsZero() {
		m.LastRefreshSeconds.Set(float64(r.LastRefresh.Unix()))
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *RateMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}
