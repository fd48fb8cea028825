package collector

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/google/go-github/v55/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kurihiro0119/commit-streaks/internal/domain"
	apperrors "github.com/kurihiro0119/commit-streaks/internal/errors"
)

func newTestGitHubCollector(t *testing.T, mux *http.ServeMux) *githubCollector {
	t.Helper()
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	client := github.NewClient(nil)
	base, err := url.Parse(server.URL + "/")
	require.NoError(t, err)
	client.BaseURL = base

	c := newGitHubCollector(client, nil)
	c.rateLimiter = NewRateLimiter(0, nil)
	return c
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func TestGitHubListActivity(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /user", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"login": "me"})
	})
	mux.HandleFunc("GET /repos/acme/api/commits", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "me", r.URL.Query().Get("author"))
		assert.Equal(t, "2025-01-02T00:00:00Z", r.URL.Query().Get("since"))
		writeJSON(w, []map[string]any{{"sha": "a"}, {"sha": "b"}})
	})
	mux.HandleFunc("GET /repos/acme/api/commits/{sha}", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"sha": r.PathValue("sha"), "stats": map[string]int{"additions": 3, "deletions": 1}})
	})

	c := newTestGitHubCollector(t, mux)
	date := time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)
	fact, err := c.ListActivity(context.Background(), &domain.Repository{Name: "api", FullName: "acme/api"}, date)
	require.NoError(t, err)
	assert.Equal(t, "acme/api", fact.Repo)
	assert.Equal(t, 2, fact.Commits)
	assert.Equal(t, 6, fact.LinesAdded)
	assert.Equal(t, 2, fact.LinesDeleted)
}

func TestGitHubEmptyRepositoryIsNoActivity(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /user", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"login": "me"})
	})
	mux.HandleFunc("GET /repos/acme/empty/commits", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		writeJSON(w, map[string]any{"message": "Git Repository is empty."})
	})

	c := newTestGitHubCollector(t, mux)
	_, err := c.ListActivity(context.Background(), &domain.Repository{Name: "empty", FullName: "acme/empty"}, time.Now())
	assert.True(t, apperrors.IsNoActivity(err))
}

func TestGitHubListRepositoriesResolvesScope(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/acme/api", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"name": "api", "full_name": "acme/api"})
	})
	mux.HandleFunc("GET /orgs/tools/repos", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, []map[string]any{
			{"name": "cli", "full_name": "tools/cli"},
			{"name": "lint", "full_name": "tools/lint"},
		})
	})

	c := newTestGitHubCollector(t, mux)
	repos, err := c.ListRepositories(context.Background(), []string{"acme/api", "tools", "acme/api"})
	require.NoError(t, err)
	require.Len(t, repos, 3)
	assert.Equal(t, "acme/api", repos[0].Key())
	assert.Equal(t, "tools/lint", repos[2].Key())
}

func TestGitHubListRepositoriesUnknownOrg(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /orgs/ghost/repos", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		writeJSON(w, map[string]any{"message": "Not Found"})
	})

	c := newTestGitHubCollector(t, mux)
	_, err := c.ListRepositories(context.Background(), []string{"ghost"})
	assert.True(t, apperrors.IsSourceUnavailable(err))
}

func TestRateLimiterTracksBudget(t *testing.T) {
	rl := NewRateLimiter(0, nil)
	require.NoError(t, rl.Wait(context.Background()))
	remaining, _ := rl.CheckLimit()
	assert.Equal(t, defaultHourlyLimit-1, remaining)

	reset := time.Now().Add(time.Hour)
	rl.UpdateLimit(5, reset)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, rl.Wait(ctx), context.Canceled)
}
