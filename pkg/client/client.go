package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/kurihiro0119/commit-streaks/internal/domain"
)

// Client is the API client for commit-streaks
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new API client
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// APIError is a non-200 response from the server
type APIError struct {
	StatusCode int
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error %d: %s: %s", e.StatusCode, e.Code, e.Message)
}

// StreakView is the payload of GET /api/v1/streaks
type StreakView struct {
	Summary domain.StreakSummary  `json:"summary"`
	Daily   []domain.StreakRecord `json:"daily"`
	Weekly  []domain.StreakRecord `json:"weekly"`
}

// HistoryView is the payload of GET /api/v1/history
type HistoryView struct {
	Points  []domain.SeriesPoint `json:"points"`
	Summary domain.SeriesSummary `json:"summary"`
	Bars    []domain.Bar         `json:"bars"`
}

// HistoryQuery selects the series returned by History
type HistoryQuery struct {
	Granularity   domain.Granularity
	Periods       int
	Reference     time.Time
	CalendarWeeks bool
	Height        int
}

// BackfillRequest mirrors the server's backfill body
type BackfillRequest struct {
	Days      int      `json:"days"`
	Scope     []string `json:"scope,omitempty"`
	DryRun    bool     `json:"dry_run"`
	Force     bool     `json:"force"`
	BatchSize int      `json:"batch_size,omitempty"`
}

// GetStreaks retrieves the streak summary and records
func (c *Client) GetStreaks(ctx context.Context) (*StreakView, error) {
	var response struct {
		Data *StreakView `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/streaks", nil, nil, &response); err != nil {
		return nil, err
	}
	return response.Data, nil
}

// GetAchievements retrieves achievements triggered on or after since; zero means all
func (c *Client) GetAchievements(ctx context.Context, since time.Time) ([]*domain.AchievementEvent, error) {
	params := url.Values{}
	if !since.IsZero() {
		params.Set("since", domain.FormatDay(since))
	}

	var response struct {
		Data []*domain.AchievementEvent `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/achievements", params, nil, &response); err != nil {
		return nil, err
	}
	return response.Data, nil
}

// GetAchievementStats retrieves achievement counts
func (c *Client) GetAchievementStats(ctx context.Context) (*domain.AchievementStats, error) {
	var response struct {
		Data *domain.AchievementStats `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/achievements/stats", nil, nil, &response); err != nil {
		return nil, err
	}
	return response.Data, nil
}

// History retrieves a chart-ready series
func (c *Client) History(ctx context.Context, q HistoryQuery) (*HistoryView, error) {
	params := url.Values{}
	if q.Granularity != "" {
		params.Set("granularity", string(q.Granularity))
	}
	if q.Periods > 0 {
		params.Set("periods", strconv.Itoa(q.Periods))
	}
	if !q.Reference.IsZero() {
		params.Set("reference", domain.FormatDay(q.Reference))
	}
	if q.CalendarWeeks {
		params.Set("calendar_weeks", "true")
	}
	if q.Height > 0 {
		params.Set("height", strconv.Itoa(q.Height))
	}

	var response struct {
		Data *HistoryView `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/history", params, nil, &response); err != nil {
		return nil, err
	}
	return response.Data, nil
}

// GetMomentum retrieves the week-over-week comparison
func (c *Client) GetMomentum(ctx context.Context) (*domain.Momentum, error) {
	var response struct {
		Data *domain.Momentum `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/momentum", nil, nil, &response); err != nil {
		return nil, err
	}
	return response.Data, nil
}

// GetHallOfFame retrieves personal records
func (c *Client) GetHallOfFame(ctx context.Context) (*domain.HallOfFame, error) {
	var response struct {
		Data *domain.HallOfFame `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/hall-of-fame", nil, nil, &response); err != nil {
		return nil, err
	}
	return response.Data, nil
}

// Track asks the server to track one day
func (c *Client) Track(ctx context.Context, date time.Time) (*domain.TrackResult, error) {
	params := url.Values{}
	if !date.IsZero() {
		params.Set("date", domain.FormatDay(date))
	}

	var response struct {
		Data *domain.TrackResult `json:"data"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/v1/track", params, nil, &response); err != nil {
		return nil, err
	}
	return response.Data, nil
}

// Backfill asks the server to run a backfill
func (c *Client) Backfill(ctx context.Context, req BackfillRequest) (*domain.BackfillReport, error) {
	var response struct {
		Data *domain.BackfillReport `json:"data"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/v1/backfill", nil, req, &response); err != nil {
		return nil, err
	}
	return response.Data, nil
}

// HealthCheck checks if the API is healthy
func (c *Client) HealthCheck(ctx context.Context) error {
	var response struct {
		Status string `json:"status"`
	}
	if err := c.do(ctx, http.MethodGet, "/health", nil, nil, &response); err != nil {
		return err
	}
	if response.Status != "ok" {
		return fmt.Errorf("unhealthy status: %s", response.Status)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, params url.Values, body, result any) error {
	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		return err
	}
	if params != nil {
		u.RawQuery = params.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		var envelope struct {
			Error *APIError `json:"error"`
		}
		if json.Unmarshal(raw, &envelope) == nil && envelope.Error != nil {
			envelope.Error.StatusCode = resp.StatusCode
			return envelope.Error
		}
		return &APIError{StatusCode: resp.StatusCode, Message: string(raw)}
	}

	return json.NewDecoder(resp.Body).Decode(result)
}
