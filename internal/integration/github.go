package integration

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/google/go-github/v66/github"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/valter-silva-au/sectriage/internal/core"
	"github.com/valter-silva-au/sectriage/pkg/models"
)

const (
	labelColor  = "b60205"
	pageSize    = 100
	maxPages    = 10
	defaultRate = 5

	// GitHub rejects search queries longer than this with 422.
	maxSearchQuery = 256
)

// GitHubTracker implements core.IssueTracker against one GitHub repository.
// Every API call waits on a shared rate limiter.
type GitHubTracker struct {
	client  *github.Client
	owner   string
	repo    string
	limiter *rate.Limiter
	logger  *zap.Logger
}

// ParseRepo splits an owner/name slug. It returns core.ErrNoRepository for an
// empty or malformed slug.
func ParseRepo(slug string) (owner, repo string, err error) {
	owner, repo, ok := strings.Cut(strings.TrimSpace(slug), "/")
	if !ok || owner == "" || repo == "" || strings.Contains(repo, "/") {
		return "", "", core.ErrNoRepository
	}
	return owner, repo, nil
}

// NewGitHubTracker creates a tracker for cfg.Repo. httpClient may be nil.
func NewGitHubTracker(cfg models.PublisherConfig, httpClient *http.Client, logger *zap.Logger) (*GitHubTracker, error) {
	owner, repo, err := ParseRepo(cfg.Repo)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	client := github.NewClient(httpClient)
	if cfg.Token != "" {
		client = client.WithAuthToken(cfg.Token)
	}
	if cfg.APIURL != "" {
		base, err := url.Parse(strings.TrimSuffix(cfg.APIURL, "/") + "/")
		if err != nil {
			return nil, fmt.Errorf("parsing github api url: %w", err)
		}
		client.BaseURL = base
	}

	limit := rate.Limit(cfg.RateLimit)
	if cfg.RateLimit <= 0 {
		limit = rate.Limit(defaultRate)
	}

	return &GitHubTracker{
		client:  client,
		owner:   owner,
		repo:    repo,
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger,
	}, nil
}

// Repo returns the owner/name slug the tracker writes to.
func (g *GitHubTracker) Repo() string {
	return g.owner + "/" + g.repo
}

func (g *GitHubTracker) wait(ctx context.Context) error {
	if err := g.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("github rate limiter: %w", err)
	}
	return nil
}

// FindOpenIssue searches open issues by title and returns the first whose
// title matches exactly. The search phrase is the artifact path when the
// title carries one, so long subjects stay under the query length limit.
func (g *GitHubTracker) FindOpenIssue(ctx context.Context, title string) (*core.Issue, error) {
	query := searchQuery(g.owner+"/"+g.repo, title)
	opts := &github.SearchOptions{ListOptions: github.ListOptions{PerPage: pageSize}}

	for page := 0; page < maxPages; page++ {
		if err := g.wait(ctx); err != nil {
			return nil, err
		}
		res, resp, err := g.client.Search.Issues(ctx, query, opts)
		if err != nil {
			return nil, fmt.Errorf("searching issues: %w", err)
		}
		for _, is := range res.Issues {
			if is.GetTitle() == title && is.GetState() != "closed" {
				return toIssue(is), nil
			}
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return nil, nil
}

// ListOpenIssues lists the repository's open issues whose title contains
// prefix. Pull requests are excluded.
func (g *GitHubTracker) ListOpenIssues(ctx context.Context, prefix string) ([]core.Issue, error) {
	opts := &github.IssueListByRepoOptions{
		State:       "open",
		ListOptions: github.ListOptions{PerPage: pageSize},
	}

	var out []core.Issue
	for page := 0; page < maxPages; page++ {
		if err := g.wait(ctx); err != nil {
			return nil, err
		}
		issues, resp, err := g.client.Issues.ListByRepo(ctx, g.owner, g.repo, opts)
		if err != nil {
			return nil, fmt.Errorf("listing open issues: %w", err)
		}
		for _, is := range issues {
			if is.IsPullRequest() || !strings.Contains(is.GetTitle(), prefix) {
				continue
			}
			out = append(out, *toIssue(is))
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return out, nil
}

// EnsureLabel creates the label if the repository does not have it.
func (g *GitHubTracker) EnsureLabel(ctx context.Context, name string) error {
	if err := g.wait(ctx); err != nil {
		return err
	}
	_, _, err := g.client.Issues.GetLabel(ctx, g.owner, g.repo, name)
	if err == nil {
		return nil
	}
	if !isNotFound(err) {
		return fmt.Errorf("getting label %q: %w", name, err)
	}

	if err := g.wait(ctx); err != nil {
		return err
	}
	_, _, err = g.client.Issues.CreateLabel(ctx, g.owner, g.repo, &github.Label{
		Name:  github.String(name),
		Color: github.String(labelColor),
	})
	if err != nil {
		return fmt.Errorf("creating label %q: %w", name, err)
	}
	g.logger.Debug("created label", zap.String("label", name))
	return nil
}

// CreateIssue opens a new issue.
func (g *GitHubTracker) CreateIssue(ctx context.Context, req core.IssueRequest) (*core.Issue, error) {
	if err := g.wait(ctx); err != nil {
		return nil, err
	}
	ir := &github.IssueRequest{
		Title: github.String(req.Title),
		Body:  github.String(req.Body),
	}
	if len(req.Labels) > 0 {
		labels := append([]string(nil), req.Labels...)
		ir.Labels = &labels
	}
	if len(req.Assignees) > 0 {
		assignees := append([]string(nil), req.Assignees...)
		ir.Assignees = &assignees
	}

	is, _, err := g.client.Issues.Create(ctx, g.owner, g.repo, ir)
	if err != nil {
		return nil, fmt.Errorf("creating issue: %w", err)
	}
	return toIssue(is), nil
}

// Comment posts a comment on an issue.
func (g *GitHubTracker) Comment(ctx context.Context, number int, body string) error {
	if err := g.wait(ctx); err != nil {
		return err
	}
	if _, _, err := g.client.Issues.CreateComment(ctx, g.owner, g.repo, number, &github.IssueComment{Body: github.String(body)}); err != nil {
		return fmt.Errorf("commenting on issue #%d: %w", number, err)
	}
	return nil
}

// CloseIssue sets an issue's state to closed.
func (g *GitHubTracker) CloseIssue(ctx context.Context, number int) error {
	if err := g.wait(ctx); err != nil {
		return err
	}
	if _, _, err := g.client.Issues.Edit(ctx, g.owner, g.repo, number, &github.IssueRequest{State: github.String("closed")}); err != nil {
		return fmt.Errorf("closing issue #%d: %w", number, err)
	}
	return nil
}

// searchQuery builds the title search for an issue. The phrase is cut to the
// bytes left under maxSearchQuery; matching is exact on the client side.
func searchQuery(slug, title string) string {
	phrase := title
	if rel, ok := core.PathFromTitle(title); ok {
		phrase = rel
	}
	phrase = strings.TrimSpace(strings.ReplaceAll(phrase, `"`, " "))
	base := fmt.Sprintf(`repo:%s is:issue is:open in:title ""`, slug)
	if room := maxSearchQuery - len(base); len(phrase) > room {
		if room < 0 {
			room = 0
		}
		phrase = truncateBytes(phrase, room)
	}
	return fmt.Sprintf(`repo:%s is:issue is:open in:title "%s"`, slug, phrase)
}

// truncateBytes cuts s to at most n bytes without splitting a rune.
func truncateBytes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func toIssue(is *github.Issue) *core.Issue {
	return &core.Issue{Number: is.GetNumber(), Title: is.GetTitle(), URL: is.GetHTMLURL()}
}

func isNotFound(err error) bool {
	var ghErr *github.ErrorResponse
	return errors.As(err, &ghErr) && ghErr.Response != nil && ghErr.Response.StatusCode == http.StatusNotFound
}

// DryRunTracker logs every write instead of performing it. Reads are served
// by the wrapped tracker when one is given, and are empty otherwise.
type DryRunTracker struct {
	read   core.IssueTracker
	logger *zap.Logger

	mu      sync.Mutex
	next    int
	actions []string
}

// NewDryRunTracker creates a DryRunTracker. read may be nil.
func NewDryRunTracker(read core.IssueTracker, logger *zap.Logger) *DryRunTracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DryRunTracker{read: read, logger: logger}
}

func (d *DryRunTracker) record(action string) {
	d.mu.Lock()
	d.actions = append(d.actions, action)
	d.mu.Unlock()
	d.logger.Info("dry run", zap.String("action", action))
}

// Actions returns the writes that would have been made, in order.
func (d *DryRunTracker) Actions() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.actions...)
}

func (d *DryRunTracker) FindOpenIssue(ctx context.Context, title string) (*core.Issue, error) {
	if d.read == nil {
		return nil, nil
	}
	return d.read.FindOpenIssue(ctx, title)
}

func (d *DryRunTracker) ListOpenIssues(ctx context.Context, prefix string) ([]core.Issue, error) {
	if d.read == nil {
		return nil, nil
	}
	return d.read.ListOpenIssues(ctx, prefix)
}

func (d *DryRunTracker) EnsureLabel(_ context.Context, name string) error {
	d.record("ensure label " + name)
	return nil
}

func (d *DryRunTracker) CreateIssue(_ context.Context, req core.IssueRequest) (*core.Issue, error) {
	d.mu.Lock()
	d.next++
	n := d.next
	d.mu.Unlock()
	d.record("create issue " + req.Title)
	return &core.Issue{Number: -n, Title: req.Title}, nil
}

func (d *DryRunTracker) Comment(_ context.Context, number int, _ string) error {
	d.record(fmt.Sprintf("comment on #%d", number))
	return nil
}

func (d *DryRunTracker) CloseIssue(_ context.Context, number int) error {
	d.record(fmt.Sprintf("close #%d", number))
	return nil
}
