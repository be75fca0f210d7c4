package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"seed-ingest/internal/config"
	"seed-ingest/internal/version"
)

const defaultGitHubAPI = "https://api.github.com"

// GitHubCommenter posts reports as comments on a pull request.
type GitHubCommenter struct {
	client     *resty.Client
	repository string
	pr         int
	logger     zerolog.Logger
}

// NewGitHubCommenter builds a commenter for pull request pr.
func NewGitHubCommenter(cfg config.GitHubConfig, pr int, logger zerolog.Logger) *GitHubCommenter {
	base := cfg.APIBase
	if base == "" {
		base = defaultGitHubAPI
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	client := resty.New()
	client.SetBaseURL(strings.TrimRight(base, "/"))
	client.SetTimeout(timeout)
	client.SetAuthToken(cfg.Token)
	client.SetHeader("Accept", "application/vnd.github+json")
	client.SetHeader("User-Agent", version.UserAgent())

	return &GitHubCommenter{
		client:     client,
		repository: cfg.Repository,
		pr:         pr,
		logger:     logger.With().Str("component", "notify_github").Logger(),
	}
}

// Report posts r as a markdown comment.
func (g *GitHubCommenter) Report(ctx context.Context, r Report) error {
	owner, repo, ok := strings.Cut(g.repository, "/")
	if !ok || g.pr <= 0 {
		return fmt.Errorf("github comment target incomplete: repository=%q pr=%d", g.repository, g.pr)
	}

	resp, err := g.client.R().
		SetContext(ctx).
		SetPathParams(map[string]string{
			"owner": owner,
			"repo":  repo,
			"pr":    fmt.Sprint(g.pr),
		}).
		SetBody(map[string]string{"body": r.Markdown()}).
		Post("/repos/{owner}/{repo}/issues/{pr}/comments")
	if err != nil {
		return fmt.Errorf("post github comment: %w", err)
	}
	if resp.StatusCode() != 201 && resp.StatusCode() != 200 {
		return fmt.Errorf("github API error %d: %s", resp.StatusCode(), resp.String())
	}

	g.logger.Info().
		Str("repository", g.repository).
		Int("pr", g.pr).
		Bool("accepted", r.Accepted).
		Int("violations", len(r.Violations)).
		Msg("report posted")
	return nil
}

var _ Reporter = (*GitHubCommenter)(nil)
