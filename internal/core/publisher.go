package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync/atomic"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/valter-silva-au/sectriage/internal/storage"
	"github.com/valter-silva-au/sectriage/pkg/models"
)

// ErrNoRepository is returned when no issue tracker repository can be
// identified. Publishing cannot proceed without one.
var ErrNoRepository = errors.New("no repository configured: set publisher.repo or GITHUB_REPOSITORY")

// IssueTitlePrefix marks every issue created by the publisher.
const IssueTitlePrefix = "[security-routing]"

const maxTitleSubject = 60

// titlePathPattern extracts the artifact path from the end of an issue title.
var titlePathPattern = regexp.MustCompile(`\(([^()\s]+\.json)\)$`)

// Issue is an issue in the external tracker.
type Issue struct {
	Number int    `json:"number"`
	Title  string `json:"title"`
	URL    string `json:"url,omitempty"`
}

// IssueRequest describes an issue to create.
type IssueRequest struct {
	Title     string
	Body      string
	Labels    []string
	Assignees []string
}

// IssueTracker is the external issue tracker the publisher mirrors routed
// artifacts into.
type IssueTracker interface {
	// FindOpenIssue returns the open issue with exactly this title, or nil.
	FindOpenIssue(ctx context.Context, title string) (*Issue, error)
	// ListOpenIssues returns open issues whose title contains prefix.
	ListOpenIssues(ctx context.Context, prefix string) ([]Issue, error)
	EnsureLabel(ctx context.Context, name string) error
	CreateIssue(ctx context.Context, req IssueRequest) (*Issue, error)
	Comment(ctx context.Context, number int, body string) error
	CloseIssue(ctx context.Context, number int) error
}

// PublisherConfig holds the dependencies of a Publisher. Owners, Resolved,
// Logger and Events are optional.
type PublisherConfig struct {
	Tracker   IssueTracker
	Artifacts *storage.ArtifactStore
	Owners    models.OwnersConfig
	Resolved  models.ResolvedConfig
	Logger    *zap.Logger
	Events    EventLogger
}

// PublishResult summarises one publisher pass.
type PublishResult struct {
	Processed int      `json:"processed"`
	Created   int      `json:"created"`
	Existing  int      `json:"existing"`
	Resolved  int      `json:"resolved"`
	Closed    int      `json:"closed"`
	Failed    int      `json:"failed"`
	Errors    []string `json:"errors,omitempty"`
}

func (r *PublishResult) fail(format string, args ...any) {
	r.Failed++
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

// Publisher reflects routed artifacts into tracker issues and closes issues
// whose artifacts are gone or resolved.
type Publisher struct {
	tracker   IssueTracker
	artifacts *storage.ArtifactStore
	owners    models.OwnersConfig
	resolved  models.ResolvedConfig
	logger    *zap.Logger
	events    EventLogger
}

// NewPublisher creates a Publisher.
func NewPublisher(cfg PublisherConfig) *Publisher {
	p := &Publisher{
		tracker:   cfg.Tracker,
		artifacts: cfg.Artifacts,
		owners:    cfg.Owners,
		resolved:  cfg.Resolved,
		logger:    cfg.Logger,
		events:    cfg.Events,
	}
	if p.logger == nil {
		p.logger = zap.NewNop()
	}
	return p
}

// IssueTitle builds the deterministic title for an artifact: the same
// artifact always yields the same title, and the title ends with the
// artifact's relative path so it can be mapped back.
func IssueTitle(a storage.Artifact, subject string) string {
	return fmt.Sprintf("%s %s/%s: %s (%s)", IssueTitlePrefix, a.Channel, a.Category, truncateSubject(subject), a.RelPath)
}

// PathFromTitle recovers the artifact path from a publisher-created title.
func PathFromTitle(title string) (string, bool) {
	if !strings.HasPrefix(title, IssueTitlePrefix) {
		return "", false
	}
	m := titlePathPattern.FindStringSubmatch(strings.TrimSpace(title))
	if m == nil {
		return "", false
	}
	return m[1], true
}

func truncateSubject(subject string) string {
	subject = strings.Join(strings.Fields(subject), " ")
	if subject == "" {
		return "(no subject)"
	}
	if utf8.RuneCountInString(subject) <= maxTitleSubject {
		return subject
	}
	runes := []rune(subject)
	return strings.TrimSpace(string(runes[:maxTitleSubject-3])) + "..."
}

// Run creates missing issues for every artifact, then runs the auto-close
// pass. Per-artifact and per-issue failures are counted, not returned. The
// returned error is set only when a whole step could not run; the result is
// still valid in that case.
func (p *Publisher) Run(ctx context.Context) (*PublishResult, error) {
	if p.tracker == nil {
		return nil, ErrNoRepository
	}
	result := &PublishResult{}

	artifacts, err := p.artifacts.List()
	if err != nil {
		return result, fmt.Errorf("listing routed artifacts: %w", err)
	}

	open := p.openIssuesByTitle(ctx)
	for _, a := range artifacts {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		result.Processed++
		if err := p.publish(ctx, a, open, result); err != nil {
			result.fail("%s: %v", a.RelPath, err)
			p.logger.Error("publishing artifact", zap.String("path", a.RelPath), zap.Error(err))
			logEvent(p.events, "issue.failed", map[string]any{"path": a.RelPath, "error": err.Error()})
		}
	}

	if err := p.closeResolved(ctx, result); err != nil {
		return result, fmt.Errorf("auto-close pass: %w", err)
	}
	return result, nil
}

// openIssuesByTitle lists the open routing issues once per pass, keyed by
// exact title. It returns nil when the listing fails, and publish then falls
// back to a title search per artifact.
func (p *Publisher) openIssuesByTitle(ctx context.Context) map[string]Issue {
	issues, err := p.tracker.ListOpenIssues(ctx, IssueTitlePrefix)
	if err != nil {
		p.logger.Warn("listing open routing issues, falling back to search", zap.Error(err))
		return nil
	}
	open := make(map[string]Issue, len(issues))
	for _, is := range issues {
		open[is.Title] = is
	}
	return open
}

func (p *Publisher) findExisting(ctx context.Context, title string, open map[string]Issue) (*Issue, error) {
	if open != nil {
		if is, ok := open[title]; ok {
			return &is, nil
		}
		return nil, nil
	}
	return p.tracker.FindOpenIssue(ctx, title)
}

func (p *Publisher) publish(ctx context.Context, a storage.Artifact, open map[string]Issue, result *PublishResult) error {
	report, err := p.readReport(a.RelPath)
	if err != nil {
		return err
	}
	if report.Resolved() || p.resolved.Contains(a.RelPath, a.ID) {
		// Creating an issue here would only be closed again by the close pass.
		result.Resolved++
		return nil
	}

	title := IssueTitle(a, report.Subject)
	existing, err := p.findExisting(ctx, title, open)
	if err != nil {
		return fmt.Errorf("searching for existing issue: %w", err)
	}
	if existing != nil {
		result.Existing++
		logEvent(p.events, "issue.skipped", map[string]any{"path": a.RelPath, "number": existing.Number})
		return nil
	}

	sev := Classify(report.Text())
	labels := []string{"security", "channel:" + a.Channel, "category:" + a.Category}
	if sev != models.SeverityUnknown {
		labels = append(labels, "severity:"+string(sev))
	}
	p.ensureLabels(ctx, labels)

	owner, _ := p.owners.Resolve(a.Channel, a.Category)
	issue, err := p.tracker.CreateIssue(ctx, IssueRequest{
		Title:     title,
		Body:      issueBody(a, report, sev),
		Labels:    labels,
		Assignees: owner.Assignees,
	})
	if err != nil {
		return fmt.Errorf("creating issue: %w", err)
	}
	result.Created++
	p.logger.Info("created issue", zap.Int("number", issue.Number), zap.String("path", a.RelPath))
	logEvent(p.events, "issue.created", map[string]any{
		"path": a.RelPath, "number": issue.Number, "channel": a.Channel, "category": a.Category,
	})

	if team := strings.TrimPrefix(owner.Team, "@"); team != "" {
		mention := fmt.Sprintf("@%s please triage this routed security report.", team)
		if err := p.tracker.Comment(ctx, issue.Number, mention); err != nil {
			p.logger.Warn("posting team mention", zap.Int("number", issue.Number), zap.Error(err))
		}
	}
	return nil
}

// ensureLabels creates any missing labels concurrently. Failures are logged;
// the issue is still created.
func (p *Publisher) ensureLabels(ctx context.Context, labels []string) {
	var failed atomic.Int32
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, l := range labels {
		g.Go(func() error {
			if err := p.tracker.EnsureLabel(gctx, l); err != nil {
				failed.Add(1)
				p.logger.Warn("ensuring label", zap.String("label", l), zap.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()
	if n := failed.Load(); n > 0 {
		p.logger.Warn("some labels could not be ensured", zap.Int32("failed", n))
	}
}

func (p *Publisher) closeResolved(ctx context.Context, result *PublishResult) error {
	issues, err := p.tracker.ListOpenIssues(ctx, IssueTitlePrefix)
	if err != nil {
		return fmt.Errorf("listing open routing issues: %w", err)
	}

	for _, issue := range issues {
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, ok := PathFromTitle(issue.Title)
		if !ok {
			continue
		}
		reason, err := p.closeReason(rel)
		if err != nil {
			result.fail("issue #%d: %v", issue.Number, err)
			p.logger.Error("checking artifact for close", zap.Int("number", issue.Number), zap.Error(err))
			continue
		}
		if reason == "" {
			continue
		}

		comment := fmt.Sprintf("Closing automatically: %s (`%s`).", reason, rel)
		if err := p.tracker.Comment(ctx, issue.Number, comment); err != nil {
			result.fail("issue #%d: commenting: %v", issue.Number, err)
			p.logger.Error("commenting before close", zap.Int("number", issue.Number), zap.Error(err))
			continue
		}
		if err := p.tracker.CloseIssue(ctx, issue.Number); err != nil {
			result.fail("issue #%d: closing: %v", issue.Number, err)
			p.logger.Error("closing issue", zap.Int("number", issue.Number), zap.Error(err))
			continue
		}
		result.Closed++
		p.logger.Info("closed issue", zap.Int("number", issue.Number), zap.String("reason", reason))
		logEvent(p.events, "issue.closed", map[string]any{"number": issue.Number, "path": rel, "reason": reason})
	}
	return nil
}

// closeReason returns why the issue for rel should be closed, or "".
func (p *Publisher) closeReason(rel string) (string, error) {
	exists, err := p.artifacts.Exists(rel)
	if err != nil {
		return "", err
	}
	if !exists {
		return "the routed artifact was removed", nil
	}

	var id string
	if a, err := storage.ParseArtifactPath(rel); err == nil {
		id = a.ID
	}
	if p.resolved.Contains(rel, id) {
		return "the artifact is listed as resolved", nil
	}

	report, err := p.readReport(rel)
	if err != nil {
		return "", err
	}
	if report.Resolved() {
		return "the artifact was marked resolved", nil
	}
	return "", nil
}

func (p *Publisher) readReport(rel string) (models.Report, error) {
	data, err := p.artifacts.Read(rel)
	if err != nil {
		return models.Report{}, err
	}
	var r models.Report
	if err := json.Unmarshal(data, &r); err != nil {
		return models.Report{}, fmt.Errorf("parsing artifact %s: %w", rel, err)
	}
	return r, nil
}

func issueBody(a storage.Artifact, r models.Report, sev models.Severity) string {
	reporter := r.From
	if reporter == "" {
		reporter = "(unknown)"
	}
	var b strings.Builder
	b.WriteString("A security report was routed by the triage pipeline.\n\n")
	fmt.Fprintf(&b, "- **Channel:** %s\n", a.Channel)
	fmt.Fprintf(&b, "- **Category:** %s\n", a.Category)
	fmt.Fprintf(&b, "- **Severity (preliminary):** %s, SLA %dh\n", sev, SLAHours(sev))
	fmt.Fprintf(&b, "- **Artifact:** `%s`\n", a.RelPath)
	fmt.Fprintf(&b, "- **Reporter:** %s\n", reporter)
	fmt.Fprintf(&b, "- **Subject:** %s\n\n", truncateSubject(r.Subject))
	b.WriteString("> Do not paste PHI, PII, patient data, credentials, or other secrets into this issue. ")
	b.WriteString("Reference the artifact path instead.\n\n")
	b.WriteString("To close: delete the artifact, set its `status` to `resolved`, or list it in `resolved.json`.\n")
	return b.String()
}
