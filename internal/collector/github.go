package collector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/go-github/v55/github"
	"golang.org/x/oauth2"

	"github.com/kurihiro0119/commit-streaks/internal/domain"
	apperrors "github.com/kurihiro0119/commit-streaks/internal/errors"
)

// githubCollector implements Collector using GitHub API.
// Only commits authored by the authenticated user are counted.
type githubCollector struct {
	client      *github.Client
	rateLimiter RateLimiter
	logger      *slog.Logger

	loginMu sync.Mutex
	login   string
}

// NewGitHubCollector creates a new GitHub collector
func NewGitHubCollector(token string, logger *slog.Logger) Collector {
	ctx := context.Background()
	ts := oauth2.StaticTokenSource(
		&oauth2.Token{AccessToken: token},
	)
	tc := oauth2.NewClient(ctx, ts)
	return newGitHubCollector(github.NewClient(tc), logger)
}

func newGitHubCollector(client *github.Client, logger *slog.Logger) *githubCollector {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "collector", "source", "github")
	return &githubCollector{
		client:      client,
		rateLimiter: NewRateLimiter(100*time.Millisecond, logger),
		logger:      logger,
	}
}

// ListRepositories resolves scope entries: "owner/repo" names one repository,
// anything else is an organization whose repositories are all listed. An empty
// scope lists the authenticated user's repositories.
func (c *githubCollector) ListRepositories(ctx context.Context, scope []string) ([]*domain.Repository, error) {
	if len(scope) == 0 {
		return c.listUserRepositories(ctx)
	}

	seen := make(map[string]bool)
	var repos []*domain.Repository
	add := func(r *github.Repository) {
		if seen[r.GetFullName()] {
			return
		}
		seen[r.GetFullName()] = true
		repos = append(repos, &domain.Repository{Name: r.GetName(), FullName: r.GetFullName()})
	}

	for _, entry := range scope {
		if owner, name, ok := strings.Cut(entry, "/"); ok {
			if err := c.rateLimiter.Wait(ctx); err != nil {
				return nil, err
			}
			repo, resp, err := c.client.Repositories.Get(ctx, owner, name)
			if err != nil {
				return nil, apperrors.NewSourceUnavailableError("failed to get repository "+entry, err)
			}
			c.updateRateLimitFromResponse(resp)
			add(repo)
			continue
		}

		orgRepos, err := c.listOrgRepositories(ctx, entry)
		if err != nil {
			return nil, err
		}
		for _, r := range orgRepos {
			add(r)
		}
	}

	return repos, nil
}

func (c *githubCollector) listOrgRepositories(ctx context.Context, org string) ([]*github.Repository, error) {
	var all []*github.Repository
	opts := &github.RepositoryListByOrgOptions{
		ListOptions: github.ListOptions{PerPage: 100},
	}

	for {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return nil, err
		}
		repos, resp, err := c.client.Repositories.ListByOrg(ctx, org, opts)
		if err != nil {
			return nil, apperrors.NewSourceUnavailableError("failed to list repositories for "+org, err)
		}
		c.updateRateLimitFromResponse(resp)
		all = append(all, repos...)

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	return all, nil
}

func (c *githubCollector) listUserRepositories(ctx context.Context) ([]*domain.Repository, error) {
	var repos []*domain.Repository
	opts := &github.RepositoryListOptions{
		Affiliation: "owner,collaborator,organization_member",
		ListOptions: github.ListOptions{PerPage: 100},
	}

	for {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return nil, err
		}
		page, resp, err := c.client.Repositories.List(ctx, "", opts)
		if err != nil {
			return nil, apperrors.NewSourceUnavailableError("failed to list repositories", err)
		}
		c.updateRateLimitFromResponse(resp)

		for _, r := range page {
			repos = append(repos, &domain.Repository{Name: r.GetName(), FullName: r.GetFullName()})
		}

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	return repos, nil
}

// ListActivity counts the authenticated user's commits on the day, with line stats per commit
func (c *githubCollector) ListActivity(ctx context.Context, repo *domain.Repository, date time.Time) (*domain.CommitFact, error) {
	owner, name, ok := strings.Cut(repo.FullName, "/")
	if !ok {
		return nil, apperrors.NewValidationError("repository %q is not in owner/name form", repo.FullName)
	}
	login, err := c.authenticatedLogin(ctx)
	if err != nil {
		return nil, err
	}

	since, until := dayWindow(date)
	fact := &domain.CommitFact{Repo: repo.Key(), Date: since}
	opts := &github.CommitsListOptions{
		Author:      login,
		Since:       since,
		Until:       until,
		ListOptions: github.ListOptions{PerPage: 100},
	}

	for {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return nil, err
		}
		commits, resp, err := c.client.Repositories.ListCommits(ctx, owner, name, opts)
		if err != nil {
			// empty repositories answer 409
			if resp != nil && resp.StatusCode == http.StatusConflict {
				return nil, apperrors.ErrNoActivity
			}
			return nil, apperrors.NewSourceUnavailableError(fmt.Sprintf("failed to list commits for %s", repo.FullName), err)
		}
		c.updateRateLimitFromResponse(resp)

		for _, commit := range commits {
			fact.Commits++

			if err := c.rateLimiter.Wait(ctx); err != nil {
				return nil, err
			}
			detail, detailResp, err := c.client.Repositories.GetCommit(ctx, owner, name, commit.GetSHA(), nil)
			if err != nil {
				// the commit still counts without stats
				c.logger.Debug("commit stats unavailable", "repo", repo.FullName, "sha", commit.GetSHA(), "error", err)
				continue
			}
			c.updateRateLimitFromResponse(detailResp)
			if detail.Stats != nil {
				fact.LinesAdded += detail.Stats.GetAdditions()
				fact.LinesDeleted += detail.Stats.GetDeletions()
			}
		}

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	if fact.Commits == 0 {
		return nil, apperrors.ErrNoActivity
	}
	fact.CollectedAt = time.Now().UTC()
	return fact, nil
}

// authenticatedLogin resolves and caches the token owner's login
func (c *githubCollector) authenticatedLogin(ctx context.Context) (string, error) {
	c.loginMu.Lock()
	defer c.loginMu.Unlock()
	if c.login != "" {
		return c.login, nil
	}

	if err := c.rateLimiter.Wait(ctx); err != nil {
		return "", err
	}
	user, resp, err := c.client.Users.Get(ctx, "")
	if err != nil {
		return "", apperrors.NewSourceUnavailableError("failed to resolve authenticated user", err)
	}
	c.updateRateLimitFromResponse(resp)
	if user.GetLogin() == "" {
		return "", apperrors.NewSourceUnavailableError("failed to resolve authenticated user", errors.New("empty login"))
	}
	c.login = user.GetLogin()
	return c.login, nil
}

// updateRateLimitFromResponse updates the rate limiter from API response
func (c *githubCollector) updateRateLimitFromResponse(resp *github.Response) {
	if resp != nil && resp.Rate.Limit > 0 {
		c.rateLimiter.UpdateLimit(resp.Rate.Remaining, resp.Rate.Reset.Time)
	}
}
