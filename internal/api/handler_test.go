package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kurihiro0119/commit-streaks/internal/achievement"
	"github.com/kurihiro0119/commit-streaks/internal/aggregator"
	"github.com/kurihiro0119/commit-streaks/internal/backfill"
	"github.com/kurihiro0119/commit-streaks/internal/domain"
	apperrors "github.com/kurihiro0119/commit-streaks/internal/errors"
	"github.com/kurihiro0119/commit-streaks/internal/metrics"
	"github.com/kurihiro0119/commit-streaks/internal/storage"
	"github.com/kurihiro0119/commit-streaks/internal/storage/sqlite"
	"github.com/kurihiro0119/commit-streaks/internal/streak"
	"github.com/kurihiro0119/commit-streaks/internal/tracker"
)

type stubCollector struct {
	listErr error
}

func (s *stubCollector) ListRepositories(ctx context.Context, scope []string) ([]*domain.Repository, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	return []*domain.Repository{{Name: "api"}}, nil
}

func (s *stubCollector) ListActivity(ctx context.Context, repo *domain.Repository, date time.Time) (*domain.CommitFact, error) {
	return &domain.CommitFact{Repo: repo.Key(), Date: date, Commits: 1}, nil
}

type testServer struct {
	router    *gin.Engine
	store     storage.Storage
	collector *stubCollector
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store, err := sqlite.NewSQLiteStorage(filepath.Join(t.TempDir(), "commits.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	m := metrics.New()
	c := &stubCollector{}
	engine := streak.NewEngine(store, streak.Options{Threshold: 1}, achievement.DefaultThresholds(), m, nil)
	agg := aggregator.NewAggregator(store, m, nil)
	tr := tracker.NewTracker(c, store, engine, nil, m, nil)
	reconciler := backfill.NewReconciler(c, store, m, nil)
	defaults := backfill.Options{BatchSize: 2, Today: day(t, "2025-01-10")}

	handler := NewHandler(agg, store, engine, tr, reconciler, defaults)
	return &testServer{router: SetupRoutes(handler, m, nil), store: store, collector: c}
}

func day(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := domain.ParseDay(s)
	require.NoError(t, err)
	return d
}

func (s *testServer) seed(t *testing.T, start string, counts ...int) {
	t.Helper()
	d := day(t, start)
	for i, n := range counts {
		_, err := s.store.Upsert(context.Background(), &domain.CommitFact{Repo: "api", Date: d.AddDate(0, 0, i), Commits: n})
		require.NoError(t, err)
	}
}

func (s *testServer) do(t *testing.T, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var decoded map[string]any
	if w.Header().Get("Content-Type") == "application/json; charset=utf-8" {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &decoded))
	}
	return w, decoded
}

func TestHealthCheck(t *testing.T) {
	s := newTestServer(t)
	w, body := s.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", body["status"])
}

func TestStreaksAfterRefresh(t *testing.T) {
	s := newTestServer(t)
	s.seed(t, "2025-01-01", 1, 2, 1, 3, 1)

	w, _ := s.do(t, http.MethodPost, "/api/v1/streaks/refresh", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w, body := s.do(t, http.MethodGet, "/api/v1/streaks", nil)
	require.Equal(t, http.StatusOK, w.Code)
	data := body["data"].(map[string]any)
	summary := data["summary"].(map[string]any)
	assert.Equal(t, float64(5), summary["current"])
	assert.Equal(t, float64(5), summary["longest"])
	assert.Equal(t, float64(7), summary["next_milestone"])

	daily := data["daily"].([]any)
	require.Len(t, daily, 1)
	assert.Equal(t, true, daily[0].(map[string]any)["active"])

	w, body = s.do(t, http.MethodGet, "/api/v1/achievements", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, body["data"])

	w, body = s.do(t, http.MethodGet, "/api/v1/achievements/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Greater(t, body["data"].(map[string]any)["total"], float64(0))
}

func TestHistory(t *testing.T) {
	s := newTestServer(t)
	s.seed(t, "2025-01-01", 1, 2, 0, 4, 8)

	w, body := s.do(t, http.MethodGet, "/api/v1/history?granularity=day&periods=5&reference=2025-01-05&height=8", nil)
	require.Equal(t, http.StatusOK, w.Code)

	data := body["data"].(map[string]any)
	points := data["points"].([]any)
	require.Len(t, points, 5)
	assert.Equal(t, "Jan 05", points[4].(map[string]any)["period_label"])
	assert.Equal(t, float64(8), points[4].(map[string]any)["total"])

	bars := data["bars"].([]any)
	require.Len(t, bars, 5)
	assert.Equal(t, float64(8), bars[4].(map[string]any)["height"])
	assert.Equal(t, float64(15), data["summary"].(map[string]any)["total"])
}

func TestBucket(t *testing.T) {
	s := newTestServer(t)
	s.seed(t, "2025-01-01", 1, 2, 3)

	w, body := s.do(t, http.MethodGet, "/api/v1/buckets?granularity=week&start=2025-01-01&end=2025-01-07", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(6), body["data"].(map[string]any)["total_commits"])
}

func TestValidationErrors(t *testing.T) {
	s := newTestServer(t)

	for _, path := range []string{
		"/api/v1/history?granularity=year",
		"/api/v1/buckets?start=2025-01-10&end=2025-01-01",
		"/api/v1/achievements?since=yesterday",
		"/api/v1/heatmap?days=1000",
	} {
		w, body := s.do(t, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, path)
		assert.Equal(t, string(apperrors.ErrCodeValidation), body["error"].(map[string]any)["code"], path)
	}
}

func TestBackfillEndpoint(t *testing.T) {
	s := newTestServer(t)

	w, body := s.do(t, http.MethodPost, "/api/v1/backfill", BackfillRequest{Days: 3, DryRun: true})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(3), body["data"].(map[string]any)["created"])

	w, body = s.do(t, http.MethodPost, "/api/v1/backfill", BackfillRequest{Days: 3})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(3), body["data"].(map[string]any)["created"])

	// the refresh after a real backfill persisted the streak
	records, err := s.store.ListStreaks(context.Background(), domain.StreakDaily)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 3, records[0].Length)

	w, _ = s.do(t, http.MethodPost, "/api/v1/backfill", BackfillRequest{Days: 400})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTrackEndpoint(t *testing.T) {
	s := newTestServer(t)

	w, body := s.do(t, http.MethodPost, "/api/v1/track?date=2025-01-02", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), body["data"].(map[string]any)["total_commits"])

	s.collector.listErr = apperrors.NewSourceUnavailableError("no search path accessible", nil)
	w, body = s.do(t, http.MethodPost, "/api/v1/track?date=2025-01-02", nil)
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, string(apperrors.ErrCodeSourceUnavailable), body["error"].(map[string]any)["code"])
}

func TestRepositoriesAndRecommend(t *testing.T) {
	s := newTestServer(t)
	s.seed(t, "2025-01-01", 1, 1)

	w, body := s.do(t, http.MethodGet, "/api/v1/repositories", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []any{"api"}, body["data"])

	w, body = s.do(t, http.MethodGet, "/api/v1/recommend", nil)
	require.Equal(t, http.StatusOK, w.Code)
	data := body["data"].(map[string]any)
	assert.Equal(t, "day", data["granularity"])
	assert.Equal(t, float64(2), data["days_with_data"])
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t)
	s.do(t, http.MethodGet, "/api/v1/hall-of-fame", nil)

	w, _ := s.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}
