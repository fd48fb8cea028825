package collector

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/kurihiro0119/commit-streaks/internal/domain"
	apperrors "github.com/kurihiro0119/commit-streaks/internal/errors"
)

// commitMarker prefixes the header line of each commit in git log output
const commitMarker = "@@"

// directories never worth descending into while looking for checkouts
var skipDirs = map[string]bool{
	"node_modules": true,
	"vendor":       true,
	".cache":       true,
}

// localCollector implements Collector by inspecting git checkouts on disk
type localCollector struct {
	executor     CommandExecutor
	authorEmails []string
	logger       *slog.Logger

	mu     sync.Mutex
	emails map[string][]string // per checkout, when no emails are configured
}

// NewLocalCollector creates a collector over local git repositories. When
// authorEmails is empty each checkout's configured user.email is used.
func NewLocalCollector(executor CommandExecutor, authorEmails []string, logger *slog.Logger) Collector {
	if logger == nil {
		logger = slog.Default()
	}
	return &localCollector{
		executor:     executor,
		authorEmails: authorEmails,
		logger:       logger.With("component", "collector", "source", "local"),
		emails:       make(map[string][]string),
	}
}

// ListRepositories walks the search paths for .git directories. Checkouts
// sharing a base name are reported as one repository.
func (c *localCollector) ListRepositories(ctx context.Context, scope []string) ([]*domain.Repository, error) {
	byName := make(map[string]*domain.Repository)
	searched := 0

	for _, root := range scope {
		if _, err := os.Stat(root); err != nil {
			c.logger.Warn("search path not accessible", "path", root, "error", err)
			continue
		}
		searched++

		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				// unreadable subtrees are skipped, not fatal
				if d != nil && d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			if !d.IsDir() {
				return nil
			}
			if skipDirs[d.Name()] {
				return filepath.SkipDir
			}
			if d.Name() != ".git" {
				return nil
			}

			checkout := filepath.Dir(path)
			name := filepath.Base(checkout)
			repo, ok := byName[name]
			if !ok {
				repo = &domain.Repository{Name: name}
				byName[name] = repo
			}
			repo.Locations = append(repo.Locations, checkout)
			return filepath.SkipDir
		})
		if err != nil {
			return nil, apperrors.NewSourceUnavailableError("failed to scan "+root, err)
		}
	}

	if searched == 0 && len(scope) > 0 {
		return nil, apperrors.NewSourceUnavailableError("no search path is accessible", errors.New(strings.Join(scope, ", ")))
	}

	repos := make([]*domain.Repository, 0, len(byName))
	for _, r := range byName {
		repos = append(repos, r)
	}
	sort.Slice(repos, func(i, j int) bool { return repos[i].Name < repos[j].Name })

	return repos, nil
}

// ListActivity sums the day's commits by the configured authors over every checkout
func (c *localCollector) ListActivity(ctx context.Context, repo *domain.Repository, date time.Time) (*domain.CommitFact, error) {
	if len(repo.Locations) == 0 {
		return nil, apperrors.NewValidationError("repository %s has no local checkout", repo.Name)
	}
	start, end := dayWindow(date)

	fact := &domain.CommitFact{Repo: repo.Key(), Date: start}
	for _, loc := range repo.Locations {
		out, err := c.executor.ExecuteWithOutput(ctx, "git", "-C", loc, "log",
			"--since="+start.Format("2006-01-02 15:04:05"),
			"--until="+end.Format("2006-01-02 15:04:05"),
			"--format="+commitMarker+"%H%x09%ae",
			"--numstat",
		)
		if err != nil {
			return nil, apperrors.NewSourceUnavailableError("git log failed for "+loc, err)
		}

		commits, added, deleted := parseLog(out, c.authorFilter(ctx, loc))
		fact.Commits += commits
		fact.LinesAdded += added
		fact.LinesDeleted += deleted
	}

	if fact.Commits == 0 {
		return nil, apperrors.ErrNoActivity
	}
	fact.CollectedAt = time.Now().UTC()
	return fact, nil
}

// authorFilter returns the emails to count for a checkout; nil counts everyone
func (c *localCollector) authorFilter(ctx context.Context, loc string) map[string]bool {
	emails := c.authorEmails
	if len(emails) == 0 {
		c.mu.Lock()
		cached, ok := c.emails[loc]
		c.mu.Unlock()
		if !ok {
			out, err := c.executor.ExecuteWithOutput(ctx, "git", "-C", loc, "config", "user.email")
			if err == nil && strings.TrimSpace(out) != "" {
				cached = []string{strings.TrimSpace(out)}
			}
			c.mu.Lock()
			c.emails[loc] = cached
			c.mu.Unlock()
		}
		emails = cached
	}
	if len(emails) == 0 {
		return nil
	}

	filter := make(map[string]bool, len(emails))
	for _, e := range emails {
		filter[strings.ToLower(e)] = true
	}
	return filter
}

// parseLog reads `git log --numstat` output produced with the commit marker format.
// Binary files report "-" and count as zero lines.
func parseLog(out string, authors map[string]bool) (commits, added, deleted int) {
	counting := false
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, commitMarker) {
			header := strings.TrimPrefix(line, commitMarker)
			_, email, _ := strings.Cut(header, "\t")
			counting = authors == nil || authors[strings.ToLower(strings.TrimSpace(email))]
			if counting {
				commits++
			}
			continue
		}
		if !counting {
			continue
		}

		fields := strings.SplitN(line, "\t", 3)
		if len(fields) < 3 {
			continue
		}
		if n, err := strconv.Atoi(fields[0]); err == nil {
			added += n
		}
		if n, err := strconv.Atoi(fields[1]); err == nil {
			deleted += n
		}
	}
	return commits, added, deleted
}
