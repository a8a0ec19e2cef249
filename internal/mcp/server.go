// Package mcp provides an MCP (Model Context Protocol) server that exposes
// sectriage classification and follow-up state as tools for AI assistants.
// The tools are read-only: nothing here routes, sends or publishes.
package mcp

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	gomcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/valter-silva-au/sectriage/internal/core"
	"github.com/valter-silva-au/sectriage/internal/observability"
	"github.com/valter-silva-au/sectriage/internal/storage"
	"github.com/valter-silva-au/sectriage/pkg/models"
)

// Deps are the services the MCP tools read from. Threads, Scheduler, Metrics
// and Alerts may be nil; the tools that need them then return an error
// result.
type Deps struct {
	Responder *core.AutoResponder
	Threads   storage.ThreadRepository
	Scheduler *core.Scheduler
	Metrics   observability.MetricsCalculator
	Alerts    observability.AlertEngine
}

// Server wraps sectriage services and exposes them as MCP tools.
type Server struct {
	server *gomcp.Server
	deps   Deps
}

// NewServer creates a new MCP server.
func NewServer(deps Deps, version string) *Server {
	if version == "" {
		version = "dev"
	}
	if deps.Responder == nil {
		deps.Responder = core.NewAutoResponder(nil)
	}

	s := &Server{deps: deps}
	s.server = gomcp.NewServer(
		&gomcp.Implementation{Name: "sectriage", Version: version},
		nil,
	)
	s.registerTools()
	return s
}

// Run serves on stdio until the client disconnects or ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &gomcp.StdioTransport{})
}

// MCPServer returns the underlying mcp.Server for testing purposes.
func (s *Server) MCPServer() *gomcp.Server {
	return s.server
}

// --- Tool input/output types ---

type classifyInput struct {
	Subject string `json:"subject" jsonschema:"the report subject line"`
	Body    string `json:"body,omitempty" jsonschema:"the report body text"`
}

type classifyOutput struct {
	Severity   string            `json:"severity"`
	SLAHours   int               `json:"sla_hours"`
	Escalate   bool              `json:"escalate"`
	Categories map[string]string `json:"categories"`
}

type autoReplyInput struct {
	Subject   string `json:"subject" jsonschema:"the report subject line"`
	Body      string `json:"body,omitempty" jsonschema:"the report body text"`
	From      string `json:"from,omitempty" jsonschema:"the reporter's email address"`
	MessageID string `json:"message_id,omitempty" jsonschema:"the inbound message identifier, if known"`
}

type listThreadsInput struct {
	Severity string `json:"severity,omitempty" jsonschema:"filter by severity (critical, high, medium, low, unknown)"`
}

type threadOutput struct {
	ID            string            `json:"id"`
	CreatedAt     string            `json:"created_at"`
	Severity      string            `json:"severity"`
	Subject       string            `json:"subject"`
	Categories    map[string]string `json:"categories,omitempty"`
	FollowUpsSent []int             `json:"follow_ups_sent"`
	PlanSteps     int               `json:"plan_steps"`
}

type listThreadsOutput struct {
	Threads []threadOutput `json:"threads"`
	Count   int            `json:"count"`
}

type dueFollowUpsInput struct{}

type dueFollowUpOutput struct {
	ThreadID string `json:"thread_id"`
	Step     int    `json:"step"`
	Reason   string `json:"reason"`
	DueAt    string `json:"due_at"`
	To       string `json:"to"`
	Subject  string `json:"subject"`
}

type dueFollowUpsOutput struct {
	Due   []dueFollowUpOutput `json:"due"`
	Count int                 `json:"count"`
}

type getMetricsInput struct {
	Since string `json:"since,omitempty" jsonschema:"time window for metrics (e.g. 7d, 30d, 24h). Defaults to 7d."`
}

type metricsOutput struct {
	ReportsRouted     int            `json:"reports_routed"`
	ReportsSkipped    int            `json:"reports_skipped"`
	ReportsBySeverity map[string]int `json:"reports_by_severity"`
	FollowUpsRecorded int            `json:"followups_recorded"`
	FollowUpsSent     int            `json:"followups_sent"`
	FollowUpsFailed   int            `json:"followups_failed"`
	IssuesCreated     int            `json:"issues_created"`
	IssuesClosed      int            `json:"issues_closed"`
	IssuesFailed      int            `json:"issues_failed"`
	EventCount        int            `json:"event_count"`
	OldestEvent       string         `json:"oldest_event,omitempty"`
	NewestEvent       string         `json:"newest_event,omitempty"`
}

type getAlertsInput struct{}

type alertOutput struct {
	ID          string `json:"id"`
	Condition   string `json:"condition"`
	Severity    string `json:"severity"`
	Message     string `json:"message"`
	TriggeredAt string `json:"triggered_at"`
}

type getAlertsOutput struct {
	Alerts []alertOutput `json:"alerts"`
	Count  int           `json:"count"`
}

// --- Tool registration ---

func (s *Server) registerTools() {
	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "classify_report",
		Description: "Classify a security report: severity, SLA hours, escalation flag, and NPHIES/banking/RCM sub-categories.",
	}, s.handleClassify)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "auto_reply",
		Description: "Compose the initial acknowledgement and follow-up plan for a security report. Nothing is sent.",
	}, s.handleAutoReply)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "list_threads",
		Description: "List registered follow-up threads with their recorded steps. Report bodies are not returned.",
	}, s.handleListThreads)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "due_followups",
		Description: "List follow-up steps that are due now and not yet recorded. Nothing is recorded or sent.",
	}, s.handleDueFollowUps)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "get_metrics",
		Description: "Get pipeline metrics from the event log: routed reports, follow-ups, and issue activity.",
	}, s.handleGetMetrics)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "get_alerts",
		Description: "Evaluate SLA and pipeline-health alerts (SLA breaches, stalled follow-ups, recent failures).",
	}, s.handleGetAlerts)
}

// --- Tool handlers ---

func (s *Server) handleClassify(_ context.Context, _ *gomcp.CallToolRequest, input classifyInput) (*gomcp.CallToolResult, classifyOutput, error) {
	r := models.Report{Subject: input.Subject, Body: input.Body}
	sev := core.Classify(r.Text())
	return nil, classifyOutput{
		Severity:   string(sev),
		SLAHours:   core.SLAHours(sev),
		Escalate:   core.Escalates(sev),
		Categories: core.DetectAll(r.Text()),
	}, nil
}

func (s *Server) handleAutoReply(_ context.Context, _ *gomcp.CallToolRequest, input autoReplyInput) (*gomcp.CallToolResult, core.AutoReply, error) {
	r := models.Report{
		Subject:   input.Subject,
		Body:      input.Body,
		From:      input.From,
		MessageID: input.MessageID,
	}
	return nil, s.deps.Responder.Reply(r), nil
}

func (s *Server) handleListThreads(_ context.Context, _ *gomcp.CallToolRequest, input listThreadsInput) (*gomcp.CallToolResult, listThreadsOutput, error) {
	if s.deps.Threads == nil {
		return errorResult("follow-up store not available"), listThreadsOutput{Threads: []threadOutput{}}, nil
	}

	threads, err := s.deps.Threads.Load()
	if err != nil {
		return errorResult(fmt.Sprintf("loading threads: %s", err)), listThreadsOutput{Threads: []threadOutput{}}, nil
	}

	filter := strings.ToLower(strings.TrimSpace(input.Severity))
	out := listThreadsOutput{Threads: []threadOutput{}}
	for _, t := range threads {
		if filter != "" && string(t.Severity) != filter {
			continue
		}
		out.Threads = append(out.Threads, threadOutput{
			ID:            t.ID,
			CreatedAt:     t.CreatedAt,
			Severity:      string(t.Severity),
			Subject:       t.Event.Subject,
			Categories:    t.Categories,
			FollowUpsSent: append([]int{}, t.FollowUpsSent...),
			PlanSteps:     len(core.FollowUpPlan(t.Severity)),
		})
	}
	sort.Slice(out.Threads, func(i, j int) bool { return out.Threads[i].CreatedAt < out.Threads[j].CreatedAt })
	out.Count = len(out.Threads)
	return nil, out, nil
}

func (s *Server) handleDueFollowUps(_ context.Context, _ *gomcp.CallToolRequest, _ dueFollowUpsInput) (*gomcp.CallToolResult, dueFollowUpsOutput, error) {
	if s.deps.Scheduler == nil {
		return errorResult("follow-up scheduler not available"), dueFollowUpsOutput{Due: []dueFollowUpOutput{}}, nil
	}

	due, err := s.deps.Scheduler.Pending()
	if err != nil {
		return errorResult(fmt.Sprintf("computing due follow-ups: %s", err)), dueFollowUpsOutput{Due: []dueFollowUpOutput{}}, nil
	}

	out := dueFollowUpsOutput{Due: make([]dueFollowUpOutput, len(due)), Count: len(due)}
	for i, d := range due {
		out.Due[i] = dueFollowUpOutput{
			ThreadID: d.ThreadID,
			Step:     d.Step,
			Reason:   d.Reason,
			DueAt:    d.DueAt.UTC().Format(time.RFC3339),
			To:       d.Message.To,
			Subject:  d.Message.Subject,
		}
	}
	return nil, out, nil
}

func (s *Server) handleGetMetrics(_ context.Context, _ *gomcp.CallToolRequest, input getMetricsInput) (*gomcp.CallToolResult, metricsOutput, error) {
	if s.deps.Metrics == nil {
		return errorResult("metrics calculator not available (no event log)"), emptyMetrics(), nil
	}

	sinceStr := input.Since
	if sinceStr == "" {
		sinceStr = "7d"
	}
	sinceTime, err := parseSince(sinceStr)
	if err != nil {
		return errorResult(fmt.Sprintf("parsing since duration: %s", err)), emptyMetrics(), nil
	}

	metrics, err := s.deps.Metrics.Calculate(sinceTime)
	if err != nil {
		return errorResult(fmt.Sprintf("calculating metrics: %s", err)), emptyMetrics(), nil
	}
	out := metricsOutput{
		ReportsRouted:     metrics.ReportsRouted,
		ReportsSkipped:    metrics.ReportsSkipped,
		ReportsBySeverity: metrics.ReportsBySeverity,
		FollowUpsRecorded: metrics.FollowUpsRecorded,
		FollowUpsSent:     metrics.FollowUpsSent,
		FollowUpsFailed:   metrics.FollowUpsFailed,
		IssuesCreated:     metrics.IssuesCreated,
		IssuesClosed:      metrics.IssuesClosed,
		IssuesFailed:      metrics.IssuesFailed,
		EventCount:        metrics.EventCount,
	}
	if out.ReportsBySeverity == nil {
		out.ReportsBySeverity = make(map[string]int)
	}
	if metrics.OldestEvent != nil {
		out.OldestEvent = metrics.OldestEvent.Format(time.RFC3339)
	}
	if metrics.NewestEvent != nil {
		out.NewestEvent = metrics.NewestEvent.Format(time.RFC3339)
	}
	return nil, out, nil
}

func (s *Server) handleGetAlerts(_ context.Context, _ *gomcp.CallToolRequest, _ getAlertsInput) (*gomcp.CallToolResult, getAlertsOutput, error) {
	if s.deps.Alerts == nil {
		return errorResult("alert engine not available"), getAlertsOutput{Alerts: []alertOutput{}}, nil
	}

	alerts, err := s.deps.Alerts.Evaluate()
	if err != nil {
		return errorResult(fmt.Sprintf("evaluating alerts: %s", err)), getAlertsOutput{Alerts: []alertOutput{}}, nil
	}

	out := getAlertsOutput{
		Alerts: make([]alertOutput, len(alerts)),
		Count:  len(alerts),
	}
	for i, a := range alerts {
		out.Alerts[i] = alertOutput{
			ID:          a.ID,
			Condition:   a.Condition,
			Severity:    string(a.Severity),
			Message:     a.Message,
			TriggeredAt: a.TriggeredAt.Format(time.RFC3339),
		}
	}
	return nil, out, nil
}

// --- Helpers ---

func emptyMetrics() metricsOutput {
	return metricsOutput{ReportsBySeverity: make(map[string]int)}
}

func errorResult(msg string) *gomcp.CallToolResult {
	return &gomcp.CallToolResult{
		Content: []gomcp.Content{&gomcp.TextContent{Text: msg}},
		IsError: true,
	}
}

// parseSince parses a duration such as "7d", "30d" or "24h" into the
// corresponding time in the past.
func parseSince(s string) (time.Time, error) {
	now := time.Now().UTC()

	if len(s) < 2 {
		return time.Time{}, fmt.Errorf("invalid duration %q", s)
	}

	suffix := s[len(s)-1]
	numStr := s[:len(s)-1]
	var num int
	if _, err := fmt.Sscanf(numStr, "%d", &num); err != nil {
		return time.Time{}, fmt.Errorf("invalid duration %q: %w", s, err)
	}

	switch suffix {
	case 'd':
		return now.AddDate(0, 0, -num), nil
	case 'h':
		return now.Add(-time.Duration(num) * time.Hour), nil
	default:
		return time.Time{}, fmt.Errorf("unsupported duration suffix %q (use d or h)", string(suffix))
	}
}
