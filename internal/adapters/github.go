package adapters

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ZanzyTHEbar/readiness-o-meter/internal/monitoring"
	"github.com/ZanzyTHEbar/readiness-o-meter/internal/resilience"
	"github.com/ZanzyTHEbar/readiness-o-meter/internal/types"
)

// DefaultGitHubBaseURL is the public GitHub REST endpoint
const DefaultGitHubBaseURL = "https://api.github.com"

// GitHubRepo is the subset of the repository resource we merge into metadata
type GitHubRepo struct {
	Name            string   `json:"name"`
	FullName        string   `json:"full_name"`
	Description     string   `json:"description"`
	DefaultBranch   string   `json:"default_branch"`
	StargazersCount int      `json:"stargazers_count"`
	ForksCount      int      `json:"forks_count"`
	OpenIssuesCount int      `json:"open_issues_count"`
	Language        string   `json:"language"`
	Archived        bool     `json:"archived"`
	Topics          []string `json:"topics"`
	PushedAt        string   `json:"pushed_at"`
}

// GitHubAdapter fetches repository metadata from the GitHub API
type GitHubAdapter struct {
	token   string
	baseURL string
	pool    *resilience.ConnectionPool
	retry   resilience.RetryConfig
	logger  *monitoring.Logger
	metrics *monitoring.Metrics
}

// NewGitHubAdapter creates an adapter. An empty baseURL means api.github.com.
func NewGitHubAdapter(token, baseURL string, logger *monitoring.Logger, metrics *monitoring.Metrics) *GitHubAdapter {
	if baseURL == "" {
		baseURL = DefaultGitHubBaseURL
	}
	if logger == nil {
		logger = monitoring.NewLogger("info")
	}

	cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		Name:             "github",
		FailureThreshold: 5,
		RecoveryTimeout:  30 * time.Second,
		SuccessThreshold: 2,
		OnStateChange: func(name string, to resilience.CircuitBreakerState) {
			metrics.RecordCircuitBreakerTransition(name, to.String())
			logger.Warn("Circuit breaker state changed", "breaker", name, "state", to.String())
		},
	})

	return &GitHubAdapter{
		token:   token,
		baseURL: strings.TrimRight(baseURL, "/"),
		pool:    resilience.NewConnectionPool(10, 20, 30*time.Second, cb),
		retry:   resilience.DefaultRetryConfig(),
		logger:  logger,
		metrics: metrics,
	}
}

// ParseGitHubURL extracts owner and repo from an https, ssh or scp-style
// github.com remote
func ParseGitHubURL(remote string) (owner, repo string, ok bool) {
	remote = strings.TrimSpace(remote)
	var path string
	switch {
	case strings.HasPrefix(remote, "git@github.com:"):
		path = strings.TrimPrefix(remote, "git@github.com:")
	default:
		u, err := url.Parse(remote)
		if err != nil || !strings.EqualFold(u.Hostname(), "github.com") {
			return "", "", false
		}
		path = u.Path
	}

	path = strings.Trim(strings.TrimSuffix(strings.TrimSuffix(path, "/"), ".git"), "/")
	parts := strings.Split(path, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

// FetchRepo fetches the repository resource
func (g *GitHubAdapter) FetchRepo(ctx context.Context, owner, repo string) (GitHubRepo, error) {
	var out GitHubRepo
	err := g.getJSON(ctx, fmt.Sprintf("/repos/%s/%s", url.PathEscape(owner), url.PathEscape(repo)), &out)
	if err != nil {
		return GitHubRepo{}, fmt.Errorf("failed to fetch repo data: %w", err)
	}
	return out, nil
}

// FetchLanguages returns language names ordered by bytes, largest first
func (g *GitHubAdapter) FetchLanguages(ctx context.Context, owner, repo string) ([]string, error) {
	var bytesByLang map[string]int64
	err := g.getJSON(ctx, fmt.Sprintf("/repos/%s/%s/languages", url.PathEscape(owner), url.PathEscape(repo)), &bytesByLang)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch languages: %w", err)
	}
	langs := make([]string, 0, len(bytesByLang))
	for l := range bytesByLang {
		langs = append(langs, l)
	}
	sort.Slice(langs, func(i, j int) bool {
		if bytesByLang[langs[i]] != bytesByLang[langs[j]] {
			return bytesByLang[langs[i]] > bytesByLang[langs[j]]
		}
		return langs[i] < langs[j]
	})
	return langs, nil
}

// EnrichRepository merges GitHub metadata into repo when its URL points at
// github.com. Local scan results win over upstream values.
func (g *GitHubAdapter) EnrichRepository(ctx context.Context, repo *types.Repository) error {
	owner, name, ok := ParseGitHubURL(repo.URL)
	if !ok {
		return nil
	}

	info, err := g.FetchRepo(ctx, owner, name)
	if err != nil {
		return err
	}
	langs, err := g.FetchLanguages(ctx, owner, name)
	if err != nil {
		return err
	}

	if repo.Metadata == nil {
		repo.Metadata = make(map[string]string)
	}
	set := func(k, v string) {
		if v == "" {
			return
		}
		if _, exists := repo.Metadata[k]; !exists {
			repo.Metadata[k] = v
		}
	}
	set("github_full_name", info.FullName)
	set("github_description", info.Description)
	set("github_default_branch", info.DefaultBranch)
	set("github_stars", strconv.Itoa(info.StargazersCount))
	set("github_forks", strconv.Itoa(info.ForksCount))
	set("github_open_issues", strconv.Itoa(info.OpenIssuesCount))
	set("github_archived", strconv.FormatBool(info.Archived))
	set("github_pushed_at", info.PushedAt)
	if len(info.Topics) > 0 {
		set("github_topics", strings.Join(info.Topics, ","))
	}
	if len(langs) > 0 {
		set("github_languages", strings.Join(langs, ","))
	}
	if repo.PrimaryLanguage == "" {
		repo.PrimaryLanguage = info.Language
	}
	return nil
}

func (g *GitHubAdapter) getJSON(ctx context.Context, path string, into interface{}) error {
	endpoint := g.baseURL + path
	start := time.Now()

	err := resilience.RetryWithConfig(ctx, g.retry, func() error {
		resp, err := g.pool.DoRequest(ctx, http.MethodGet, endpoint, g.headers())
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if err := json.NewDecoder(resp.Body).Decode(into); err != nil {
			return fmt.Errorf("decode %s: %w", path, err)
		}
		return nil
	})

	status := http.StatusOK
	if err != nil {
		status = 0
		var httpErr *resilience.HTTPError
		if errors.As(err, &httpErr) {
			status = httpErr.StatusCode
		}
	}
	g.logger.ExternalAPILogger("github", http.MethodGet, path, status, time.Since(start), err == nil)
	g.metrics.RecordExternalAPIRequest("github", err == nil)
	return err
}

func (g *GitHubAdapter) headers() map[string]string {
	h := map[string]string{
		"Accept":               "application/vnd.github+json",
		"X-GitHub-Api-Version": "2022-11-28",
		"User-Agent":           "readiness-o-meter/1.0",
	}
	if g.token != "" {
		h["Authorization"] = "Bearer " + g.token
	}
	return h
}

// GetPoolStats returns connection pool statistics
func (g *GitHubAdapter) GetPoolStats() map[string]interface{} {
	return g.pool.GetStats()
}

// Close closes the connection pool
func (g *GitHubAdapter) Close() error {
	return g.pool.Close()
}
