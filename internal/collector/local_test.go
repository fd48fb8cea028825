package collector

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kurihiro0119/commit-streaks/internal/domain"
	apperrors "github.com/kurihiro0119/commit-streaks/internal/errors"
)

const sampleLog = `@@1111111111111111111111111111111111111111	me@example.com

10	2	main.go
-	-	logo.png
@@2222222222222222222222222222222222222222	someone@else.org

100	100	vendor.go
@@3333333333333333333333333333333333333333	Me@Example.com

1	0	README.md
`

func TestParseLogFiltersAuthors(t *testing.T) {
	commits, added, deleted := parseLog(sampleLog, map[string]bool{"me@example.com": true})
	assert.Equal(t, 2, commits)
	assert.Equal(t, 11, added)
	assert.Equal(t, 2, deleted)

	commits, added, deleted = parseLog(sampleLog, nil)
	assert.Equal(t, 3, commits)
	assert.Equal(t, 111, added)
	assert.Equal(t, 102, deleted)

	commits, _, _ = parseLog("", nil)
	assert.Zero(t, commits)
}

func mkRepo(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Join(path, ".git"), 0o755))
}

func TestListRepositoriesMergesBaseNames(t *testing.T) {
	root := t.TempDir()
	mkRepo(t, filepath.Join(root, "work", "api"))
	mkRepo(t, filepath.Join(root, "personal", "api"))
	mkRepo(t, filepath.Join(root, "cli"))
	mkRepo(t, filepath.Join(root, "cli", "node_modules", "dep"))

	c := NewLocalCollector(newMockExecutor(), nil, nil)
	repos, err := c.ListRepositories(context.Background(), []string{root, filepath.Join(root, "missing")})
	require.NoError(t, err)
	require.Len(t, repos, 2)

	assert.Equal(t, "api", repos[0].Name)
	assert.Len(t, repos[0].Locations, 2)
	assert.Equal(t, "cli", repos[1].Name)
	assert.Len(t, repos[1].Locations, 1)
}

func TestListRepositoriesWithoutAnyAccessiblePath(t *testing.T) {
	c := NewLocalCollector(newMockExecutor(), nil, nil)
	_, err := c.ListRepositories(context.Background(), []string{filepath.Join(t.TempDir(), "nope")})
	assert.True(t, apperrors.IsSourceUnavailable(err))
}

func TestLocalListActivitySumsCheckouts(t *testing.T) {
	exec := newMockExecutor()
	exec.outputs["git -C /a log"] = sampleLog
	exec.outputs["git -C /b log"] = "@@4444\tme@example.com\n\n5\t5\tx.go\n"

	c := NewLocalCollector(exec, []string{"me@example.com"}, nil)
	repo := &domain.Repository{Name: "api", Locations: []string{"/a", "/b"}}
	date := time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)

	fact, err := c.ListActivity(context.Background(), repo, date)
	require.NoError(t, err)
	assert.Equal(t, "api", fact.Repo)
	assert.Equal(t, date, fact.Date)
	assert.Equal(t, 3, fact.Commits)
	assert.Equal(t, 16, fact.LinesAdded)
	assert.Equal(t, 7, fact.LinesDeleted)

	assert.Contains(t, exec.commands[0], "--since=2025-01-02 00:00:00")
	assert.Contains(t, exec.commands[0], "--until=2025-01-02 23:59:59")
}

func TestLocalListActivityUsesConfiguredUserEmail(t *testing.T) {
	exec := newMockExecutor()
	exec.outputs["git -C /a log"] = sampleLog
	exec.outputs["git -C /a config user.email"] = "someone@else.org\n"

	c := NewLocalCollector(exec, nil, nil)
	fact, err := c.ListActivity(context.Background(), &domain.Repository{Name: "api", Locations: []string{"/a"}}, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, fact.Commits)
	assert.Equal(t, 100, fact.LinesAdded)
}

func TestLocalListActivityNoCommits(t *testing.T) {
	c := NewLocalCollector(newMockExecutor(), []string{"me@example.com"}, nil)
	_, err := c.ListActivity(context.Background(), &domain.Repository{Name: "api", Locations: []string{"/a"}}, time.Now())
	assert.True(t, apperrors.IsNoActivity(err))
}

func TestLocalListActivityGitFailure(t *testing.T) {
	exec := newMockExecutor()
	exec.errs["git -C /a log"] = errors.New("not a git repository")
	c := NewLocalCollector(exec, []string{"me@example.com"}, nil)
	_, err := c.ListActivity(context.Background(), &domain.Repository{Name: "api", Locations: []string{"/a"}}, time.Now())
	assert.True(t, apperrors.IsSourceUnavailable(err))
}
