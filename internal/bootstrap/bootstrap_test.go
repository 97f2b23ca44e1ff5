package bootstrap

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"ratehub/internal/application"
	"ratehub/internal/config"
	httpserver "ratehub/internal/infrastructure/http"
	"ratehub/internal/infrastructure/provider"
	redisstore "ratehub/internal/infrastructure/redis"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	return config.Config{
		Storage:            "file",
		DataDir:            filepath.Join(t.TempDir(), "data"),
		RatesFile:          "rates.json",
		HistoryFile:        "exchange_rates.json",
		RatesTTL:           300 * time.Second,
		SourceTimeout:      time.Second,
		RefreshInterval:    time.Minute,
		Provider:           "fake",
		IdempotencyBackend: "none",
	}
}

func TestBuild_FileStorageFakeProvider(t *testing.T) {
	cfg := testConfig(t)
	app, cleanup, err := Build(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	defer cleanup()

	require.Len(t, app.Sources, 1)
	require.Equal(t, provider.StaticID, app.Sources[0].ID())
	require.IsType(t, application.NoopIdempotency{}, app.Idem)
	require.DirExists(t, cfg.DataDir)

	rep, err := app.Worker(nil).RunOnce(context.Background(), zap.NewNop(), "test")
	require.NoError(t, err)
	require.Equal(t, 3, rep.PairsUpdated)
	require.FileExists(t, cfg.RatesPath())
	require.FileExists(t, cfg.HistoryPath())

	h := httpserver.NewRouter(app.HTTPServer())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/rates/EUR/USD", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"source":"static"`)
}

func TestBuildSources_LiveOrder(t *testing.T) {
	cfg := testConfig(t)
	cfg.Provider = "live"
	srcs := BuildSources(cfg, zap.NewNop())
	require.Len(t, srcs, 2)
	require.Equal(t, provider.CoinGeckoID, srcs[0].ID())
	require.Equal(t, provider.ExchangeRateID, srcs[1].ID())
}

func TestBuildStorage_Unknown(t *testing.T) {
	cfg := testConfig(t)
	cfg.Storage = "s3"
	_, cleanup, err := BuildStorage(context.Background(), cfg, zap.NewNop())
	cleanup()
	require.Error(t, err)
}

func TestBuildIdempotency_Redis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(t)
	cfg.IdempotencyBackend = "redis"
	cfg.RedisAddr = mr.Addr()
	cfg.IdempotencyTTL = time.Hour

	idem, cleanup := BuildIdempotency(cfg, zap.NewNop())
	defer cleanup()
	require.IsType(t, &redisstore.Store{}, idem)

	ok, err := idem.TryReserve(context.Background(), "k")
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = idem.TryReserve(context.Background(), "k")
	require.NoError(t, err)
	require.False(t, ok)
}
