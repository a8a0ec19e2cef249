package core

import (
	"context"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/valter-silva-au/sectriage/internal/storage"
	"github.com/valter-silva-au/sectriage/pkg/models"
)

// InboxSource yields the reports waiting in the inbox. Files that cannot be
// parsed are returned as failures, not as an error.
type InboxSource interface {
	Fetch() ([]models.InboxItem, []models.InboxFailure, error)
}

// channelGroups maps configured channel names to the output channel and the
// detector that nests their artifacts by sub-category.
var channelGroups = map[string]string{
	"nphies":   models.ChannelNPHIES,
	"payments": models.ChannelBanking,
	"payers":   models.ChannelBanking,
	"banking":  models.ChannelBanking,
	"billing":  models.ChannelRCM,
	"claims":   models.ChannelRCM,
	"denials":  models.ChannelRCM,
	"rcm":      models.ChannelRCM,
}

// RouterConfig holds the dependencies of a Router. Threads, Logger, Events
// and Now are optional.
type RouterConfig struct {
	Inbox     InboxSource
	Artifacts *storage.ArtifactStore
	Channels  models.ChannelMap
	// Threads, when set, receives a follow-up thread for every routed report.
	Threads storage.ThreadRepository
	Logger  *zap.Logger
	Events  EventLogger
	Now     func() time.Time
}

// RoutedReport is the router outcome for one inbox file.
type RoutedReport struct {
	File     string          `json:"file"`
	ID       string          `json:"id"`
	Severity models.Severity `json:"severity"`
	Paths    []string        `json:"paths"`
}

// RouteResult summarises one router pass.
type RouteResult struct {
	Processed         int                   `json:"processed"`
	Artifacts         int                   `json:"artifacts"`
	ThreadsRegistered int                   `json:"threadsRegistered"`
	Routed            []RoutedReport        `json:"routed"`
	Skipped           []models.InboxFailure `json:"skipped"`
}

// Router files inbox reports into channel/category/date directories.
type Router struct {
	inbox     InboxSource
	artifacts *storage.ArtifactStore
	channels  []channelRule
	threads   storage.ThreadRepository
	logger    *zap.Logger
	events    EventLogger
	now       func() time.Time
}

type channelRule struct {
	name     string
	keywords []string
}

// NewRouter creates a Router. Channel keywords are copied and matched in
// channel-name order so routing is deterministic.
func NewRouter(cfg RouterConfig) *Router {
	rules := make([]channelRule, 0, len(cfg.Channels))
	for name, kws := range cfg.Channels {
		name = SanitizeID(strings.ToLower(name))
		if name == "" {
			continue
		}
		lowered := make([]string, 0, len(kws))
		for _, kw := range kws {
			if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" {
				lowered = append(lowered, kw)
			}
		}
		rules = append(rules, channelRule{name: name, keywords: lowered})
	}
	sort.Slice(rules, func(i, j int) bool { return rules[i].name < rules[j].name })

	r := &Router{
		inbox:     cfg.Inbox,
		artifacts: cfg.Artifacts,
		channels:  rules,
		threads:   cfg.Threads,
		logger:    cfg.Logger,
		events:    cfg.Events,
		now:       cfg.Now,
	}
	if r.logger == nil {
		r.logger = zap.NewNop()
	}
	if r.now == nil {
		r.now = time.Now
	}
	return r
}

// MatchChannels returns the configured channels whose keywords appear in
// text, in channel-name order.
func (r *Router) MatchChannels(text string) []string {
	lower := strings.ToLower(text)
	var matched []string
	for _, ch := range r.channels {
		if containsAny(lower, ch.keywords) {
			matched = append(matched, ch.name)
		}
	}
	return matched
}

// Destinations returns the relative artifact paths for a report. A report
// matching no channel goes to the unclassified channel. Grouped channels
// whose detector finds a sub-category are nested under the group's output
// channel instead of their own.
func (r *Router) Destinations(report models.Report, id, date string) []string {
	text := report.Text()
	channels := r.MatchChannels(text)
	if len(channels) == 0 {
		channels = []string{models.ChannelUnclassified}
	}

	seen := make(map[string]bool, len(channels))
	var paths []string
	for _, ch := range channels {
		p := routePath(ch, text, date, id)
		if seen[p] {
			continue
		}
		seen[p] = true
		paths = append(paths, p)
	}
	return paths
}

func routePath(channel, text, date, id string) string {
	if out, ok := channelGroups[channel]; ok {
		if det, ok := DetectorByName(out); ok {
			if cat := det.Detect(text); cat != models.CategoryOther {
				return storage.ArtifactPath(out, cat, date, id)
			}
		}
	}
	return storage.ArtifactPath(channel, "", date, id)
}

// Run processes every inbox file. Unparseable files and failed writes are
// recorded in the result and do not stop the pass. Re-running on an
// unchanged inbox on the same day rewrites identical files at identical
// paths.
func (r *Router) Run(ctx context.Context) (*RouteResult, error) {
	items, failures, err := r.inbox.Fetch()
	if err != nil {
		return nil, err
	}

	result := &RouteResult{Routed: []RoutedReport{}, Skipped: []models.InboxFailure{}}
	for _, f := range failures {
		r.logger.Warn("skipping malformed inbox file", zap.String("file", f.File), zap.String("error", f.Error))
		logEvent(r.events, "report.skipped", map[string]any{"file": f.File, "error": f.Error})
		result.Skipped = append(result.Skipped, f)
	}

	now := r.now()
	date := now.UTC().Format("2006-01-02")
	var toRegister []models.Thread

	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		id := ReportID(item.Report, item.Raw)
		sev := Classify(item.Report.Text())
		routed := RoutedReport{File: item.File, ID: id, Severity: sev}

		writeFailed := false
		for _, p := range r.Destinations(item.Report, id, date) {
			if err := r.artifacts.Write(p, item.Raw); err != nil {
				r.logger.Error("writing routed artifact", zap.String("file", item.File), zap.String("path", p), zap.Error(err))
				writeFailed = true
				continue
			}
			routed.Paths = append(routed.Paths, p)
		}
		if writeFailed && len(routed.Paths) == 0 {
			result.Skipped = append(result.Skipped, models.InboxFailure{File: item.File, Error: "no destination could be written"})
			continue
		}

		result.Processed++
		result.Artifacts += len(routed.Paths)
		result.Routed = append(result.Routed, routed)
		r.logger.Info("routed report",
			zap.String("id", id),
			zap.String("severity", string(sev)),
			zap.Strings("paths", routed.Paths))
		logEvent(r.events, "report.routed", map[string]any{
			"id":       id,
			"severity": string(sev),
			"paths":    routed.Paths,
		})

		if r.threads != nil {
			toRegister = append(toRegister, NewThread(id, item.Report, now))
		}
	}

	if len(toRegister) > 0 {
		n, err := RegisterThreads(r.threads, toRegister)
		if err != nil {
			r.logger.Error("registering follow-up threads", zap.Error(err))
		} else {
			result.ThreadsRegistered = n
			logEvent(r.events, "thread.registered", map[string]any{"count": n})
		}
	}

	return result, nil
}
