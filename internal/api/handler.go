package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kurihiro0119/commit-streaks/internal/aggregator"
	"github.com/kurihiro0119/commit-streaks/internal/backfill"
	"github.com/kurihiro0119/commit-streaks/internal/domain"
	apperrors "github.com/kurihiro0119/commit-streaks/internal/errors"
	"github.com/kurihiro0119/commit-streaks/internal/storage"
	"github.com/kurihiro0119/commit-streaks/internal/streak"
	"github.com/kurihiro0119/commit-streaks/internal/tracker"
)

// defaultChartHeight is the bar height used when the caller does not pass one
const defaultChartHeight = 10

// Handler handles API requests
type Handler struct {
	aggregator aggregator.Aggregator
	store      storage.Storage
	streaks    *streak.Engine
	tracker    *tracker.Tracker
	backfiller *backfill.Reconciler
	// backfillDefaults fills fields a backfill request leaves empty
	backfillDefaults backfill.Options
	now              func() time.Time
}

// NewHandler creates a new API handler. tracker and backfiller may be nil,
// in which case the write endpoints are not registered.
func NewHandler(agg aggregator.Aggregator, store storage.Storage, streaks *streak.Engine, tr *tracker.Tracker, backfiller *backfill.Reconciler, backfillDefaults backfill.Options) *Handler {
	return &Handler{
		aggregator:       agg,
		store:            store,
		streaks:          streaks,
		tracker:          tr,
		backfiller:       backfiller,
		backfillDefaults: backfillDefaults,
		now:              time.Now,
	}
}

// GetStreaks returns the streak summary and the stored records
// GET /api/v1/streaks
func (h *Handler) GetStreaks(c *gin.Context) {
	ctx := c.Request.Context()

	summary, err := h.streaks.Summary(ctx)
	if err != nil {
		respondError(c, err)
		return
	}
	daily, err := h.store.ListStreaks(ctx, domain.StreakDaily)
	if err != nil {
		respondError(c, err)
		return
	}
	weekly, err := h.store.ListStreaks(ctx, domain.StreakWeekly)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": gin.H{
			"summary": summary,
			"daily":   daily,
			"weekly":  weekly,
		},
	})
}

// RefreshStreaks replays the ledger and persists streaks and achievements
// POST /api/v1/streaks/refresh
func (h *Handler) RefreshStreaks(c *gin.Context) {
	result, err := h.streaks.Refresh(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": result,
	})
}

// GetAchievements returns the achievement log, optionally since a date
// GET /api/v1/achievements
func (h *Handler) GetAchievements(c *gin.Context) {
	since, err := parseDateQuery(c, "since", time.Time{})
	if err != nil {
		respondError(c, err)
		return
	}

	events, err := h.store.ListAchievements(c.Request.Context(), since)
	if err != nil {
		respondError(c, err)
		return
	}
	if events == nil {
		events = []*domain.AchievementEvent{}
	}

	c.JSON(http.StatusOK, gin.H{
		"data": events,
	})
}

// GetAchievementStats returns achievement counts
// GET /api/v1/achievements/stats
func (h *Handler) GetAchievementStats(c *gin.Context) {
	stats, err := h.store.AchievementStats(c.Request.Context(), h.now())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": stats,
	})
}

// GetHistory returns a chart-ready series with scaled bars
// GET /api/v1/history
func (h *Handler) GetHistory(c *gin.Context) {
	g, err := parseGranularity(c)
	if err != nil {
		respondError(c, err)
		return
	}
	opts, err := parseSeriesOptions(c)
	if err != nil {
		respondError(c, err)
		return
	}
	periods := parseIntQuery(c, "periods", 0)

	history, err := h.aggregator.History(c.Request.Context(), g, periods, opts)
	if err != nil {
		respondError(c, err)
		return
	}

	values := make([]int64, len(history.Points))
	labels := make([]string, len(history.Points))
	for i, p := range history.Points {
		values[i] = p.Total
		labels[i] = p.Label
	}
	bars, err := aggregator.RenderSeries(values, labels, parseIntQuery(c, "height", defaultChartHeight))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": gin.H{
			"points":  history.Points,
			"summary": history.Summary,
			"bars":    bars,
		},
	})
}

// GetBucket returns the aggregate over an explicit range
// GET /api/v1/buckets?start=YYYY-MM-DD&end=YYYY-MM-DD
func (h *Handler) GetBucket(c *gin.Context) {
	g, err := parseGranularity(c)
	if err != nil {
		respondError(c, err)
		return
	}
	today := domain.Day(h.now())
	end, err := parseDateQuery(c, "end", today)
	if err != nil {
		respondError(c, err)
		return
	}
	start, err := parseDateQuery(c, "start", end.AddDate(0, 0, -6))
	if err != nil {
		respondError(c, err)
		return
	}

	bucket, err := h.aggregator.GetBucket(c.Request.Context(), g, start, end)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": bucket,
	})
}

// GetHeatmap returns zero-filled daily totals
// GET /api/v1/heatmap?days=30
func (h *Handler) GetHeatmap(c *gin.Context) {
	ref, err := parseDateQuery(c, "reference", h.now())
	if err != nil {
		respondError(c, err)
		return
	}

	days, err := h.aggregator.Heatmap(c.Request.Context(), ref, parseIntQuery(c, "days", 30))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": days,
	})
}

// GetMomentum compares this week with last week
// GET /api/v1/momentum
func (h *Handler) GetMomentum(c *gin.Context) {
	ref, err := parseDateQuery(c, "reference", h.now())
	if err != nil {
		respondError(c, err)
		return
	}

	momentum, err := h.aggregator.Momentum(c.Request.Context(), ref)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": momentum,
	})
}

// GetHallOfFame returns personal records
// GET /api/v1/hall-of-fame
func (h *Handler) GetHallOfFame(c *gin.Context) {
	records, err := h.aggregator.HallOfFame(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": records,
	})
}

// GetRecommendation returns the suggested chart granularity
// GET /api/v1/recommend
func (h *Handler) GetRecommendation(c *gin.Context) {
	g, days, err := h.aggregator.Recommend(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": gin.H{
			"granularity":    g,
			"days_with_data": days,
		},
	})
}

// GetRepositories lists repositories present in the ledger
// GET /api/v1/repositories
func (h *Handler) GetRepositories(c *gin.Context) {
	repos, err := h.store.Repositories(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	if repos == nil {
		repos = []string{}
	}

	c.JSON(http.StatusOK, gin.H{
		"data": repos,
	})
}

// Track collects one day from every repository
// POST /api/v1/track?date=YYYY-MM-DD
func (h *Handler) Track(c *gin.Context) {
	date, err := parseDateQuery(c, "date", h.now())
	if err != nil {
		respondError(c, err)
		return
	}

	result, err := h.tracker.TrackDate(c.Request.Context(), date)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": result,
	})
}

// BackfillRequest is the body of POST /api/v1/backfill
type BackfillRequest struct {
	Days      int      `json:"days"`
	Scope     []string `json:"scope"`
	DryRun    bool     `json:"dry_run"`
	Force     bool     `json:"force"`
	BatchSize int      `json:"batch_size"`
}

// Backfill replays history into the ledger and refreshes streaks
// POST /api/v1/backfill
func (h *Handler) Backfill(c *gin.Context) {
	var req BackfillRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperrors.NewValidationError("invalid request body: %v", err))
		return
	}

	opts := h.backfillDefaults
	opts.Days = req.Days
	opts.DryRun = req.DryRun
	opts.Force = req.Force
	if len(req.Scope) > 0 {
		opts.SearchScope = req.Scope
	}
	if req.BatchSize != 0 {
		opts.BatchSize = req.BatchSize
	}

	ctx := c.Request.Context()
	report, err := h.backfiller.Backfill(ctx, opts)
	if err != nil {
		respondError(c, err)
		return
	}

	if !opts.DryRun && report.Created+report.Replaced > 0 {
		if _, err := h.streaks.Refresh(ctx); err != nil {
			respondError(c, err)
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"data": report,
	})
}

// parseIntQuery parses an integer query parameter with a default value
func parseIntQuery(c *gin.Context, key string, defaultValue int) int {
	valueStr := c.Query(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil || value <= 0 {
		return defaultValue
	}
	return value
}

// parseDateQuery parses a YYYY-MM-DD query parameter
func parseDateQuery(c *gin.Context, key string, defaultValue time.Time) (time.Time, error) {
	valueStr := c.Query(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	d, err := domain.ParseDay(valueStr)
	if err != nil {
		return time.Time{}, apperrors.NewValidationError("%s must be a YYYY-MM-DD date, got %q", key, valueStr)
	}
	return d, nil
}

func parseGranularity(c *gin.Context) (domain.Granularity, error) {
	g := domain.Granularity(c.DefaultQuery("granularity", string(domain.GranularityDay)))
	if !g.Valid() {
		return "", apperrors.NewValidationError("granularity must be day, week or month, got %q", g)
	}
	return g, nil
}

func parseSeriesOptions(c *gin.Context) (aggregator.SeriesOptions, error) {
	ref, err := parseDateQuery(c, "reference", time.Time{})
	if err != nil {
		return aggregator.SeriesOptions{}, err
	}
	return aggregator.SeriesOptions{
		Reference:     ref,
		CalendarWeeks: c.Query("calendar_weeks") == "true",
	}, nil
}

// HealthCheck returns the health status of the API
// GET /health
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

// respondError sends an error response
func respondError(c *gin.Context, err error) {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		status := http.StatusInternalServerError
		switch appErr.Code {
		case apperrors.ErrCodeValidation:
			status = http.StatusBadRequest
		case apperrors.ErrCodeNotFound:
			status = http.StatusNotFound
		case apperrors.ErrCodeSourceUnavailable:
			status = http.StatusBadGateway
		}
		c.JSON(status, gin.H{
			"error": gin.H{
				"code":    appErr.Code,
				"message": appErr.Message,
			},
		})
		return
	}

	c.JSON(http.StatusInternalServerError, gin.H{
		"error": gin.H{
			"code":    apperrors.ErrCodeInternal,
			"message": err.Error(),
		},
	})
}
