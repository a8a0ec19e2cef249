// Package core contains the triage pipeline's business logic: severity
// classification, category detection, auto-replies, routing, follow-up
// scheduling, issue publishing, and configuration loading.
package core

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/spf13/viper"

	"github.com/valter-silva-au/sectriage/pkg/models"
)

// ConfigFileName is the YAML config file looked up in the base path.
const ConfigFileName = ".sectriage"

var repoSlugPattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+/[A-Za-z0-9_.-]+$`)

// ConfigurationManager loads and validates sectriage configuration.
type ConfigurationManager interface {
	Load() (*models.Config, error)
	ValidateConfig(cfg *models.Config) error
}

// viperConfigManager reads .sectriage.yaml with Viper and overlays the
// environment variables the pipeline scripts have always honoured.
type viperConfigManager struct {
	basePath string
}

// NewConfigurationManager creates a ConfigurationManager rooted at basePath.
func NewConfigurationManager(basePath string) ConfigurationManager {
	return &viperConfigManager{basePath: basePath}
}

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() *models.Config {
	return &models.Config{
		Paths: models.PathsConfig{
			Inbox:     ".security/inbox",
			Pipelines: ".security/pipelines",
			FollowUps: ".security/followups.json",
			Channels:  ".security/channels.json",
			Owners:    ".security/owners.json",
			Resolved:  ".security/resolved.json",
			EventLog:  ".security/events.jsonl",
		},
		Mail: models.MailConfig{
			From:        "security@example.com",
			Provider:    "none",
			GmailAPIURL: "https://gmail.googleapis.com",
		},
		Store: models.StoreConfig{
			Backend:    "json",
			PebblePath: ".security/followups.db",
		},
		Publisher: models.PublisherConfig{
			RateLimit: 5,
		},
		Alerts:   models.AlertsConfig{GraceHours: 0},
		LogLevel: "info",
	}
}

// envBindings maps config keys to the environment variables that override them.
var envBindings = map[string][]string{
	"mail.from":            {"SECURITY_FROM"},
	"mail.escalation_cc":   {"SECURITY_ESCALATION_CC"},
	"mail.send":            {"SECURITY_SEND"},
	"mail.provider":        {"SECURITY_EMAIL_PROVIDER"},
	"mail.gmail_token":     {"GMAIL_ACCESS_TOKEN"},
	"mail.ses_region":      {"SES_REGION", "AWS_REGION"},
	"publisher.repo":       {"GITHUB_REPOSITORY"},
	"publisher.token":      {"GITHUB_TOKEN"},
	"publisher.api_url":    {"GITHUB_API_URL"},
	"alerts.slack_webhook": {"SLACK_WEBHOOK_URL"},
	"log_level":            {"SECTRIAGE_LOG_LEVEL"},
	"cron":                 {"SECTRIAGE_CRON"},
	"metrics_textfile":     {"SECTRIAGE_METRICS_TEXTFILE"},
	"store.backend":        {"SECTRIAGE_STORE"},
	"paths.followups":      {"SECURITY_FOLLOWUPS"},
	"paths.channels":       {"SECURITY_CHANNELS"},
	"paths.owners":         {"SECURITY_OWNERS"},
	"paths.resolved":       {"SECURITY_RESOLVED"},
	"paths.inbox":          {"SECURITY_INBOX"},
	"paths.pipelines":      {"SECURITY_PIPELINES"},
	"publisher.rate_limit": {"SECTRIAGE_GITHUB_RPS"},
	"mail.gmail_api_url":   {"GMAIL_API_URL"},
	"alerts.grace_hours":   {"SECTRIAGE_ALERT_GRACE_HOURS"},
	"store.pebble_path":    {"SECTRIAGE_PEBBLE_PATH"},
	"paths.event_log":      {"SECTRIAGE_EVENT_LOG"},
}

// Load reads .sectriage.yaml from the base path, applies environment
// overrides, and resolves relative paths against the base path. A missing
// file yields defaults plus environment overrides.
func (cm *viperConfigManager) Load() (*models.Config, error) {
	def := DefaultConfig()

	v := viper.New()
	v.SetConfigName(ConfigFileName)
	v.SetConfigType("yaml")
	v.AddConfigPath(cm.basePath)

	v.SetDefault("paths.inbox", def.Paths.Inbox)
	v.SetDefault("paths.pipelines", def.Paths.Pipelines)
	v.SetDefault("paths.followups", def.Paths.FollowUps)
	v.SetDefault("paths.channels", def.Paths.Channels)
	v.SetDefault("paths.owners", def.Paths.Owners)
	v.SetDefault("paths.resolved", def.Paths.Resolved)
	v.SetDefault("paths.event_log", def.Paths.EventLog)
	v.SetDefault("mail.from", def.Mail.From)
	v.SetDefault("mail.provider", def.Mail.Provider)
	v.SetDefault("mail.send", false)
	v.SetDefault("mail.gmail_api_url", def.Mail.GmailAPIURL)
	v.SetDefault("store.backend", def.Store.Backend)
	v.SetDefault("store.pebble_path", def.Store.PebblePath)
	v.SetDefault("publisher.rate_limit", def.Publisher.RateLimit)
	v.SetDefault("alerts.grace_hours", def.Alerts.GraceHours)
	v.SetDefault("log_level", def.LogLevel)

	for key, envs := range envBindings {
		args := append([]string{key}, envs...)
		if err := v.BindEnv(args...); err != nil {
			return nil, fmt.Errorf("binding environment for %s: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading %s.yaml: %w", ConfigFileName, err)
		}
	}

	cfg := &models.Config{
		Paths: models.PathsConfig{
			Inbox:     cm.resolve(v.GetString("paths.inbox")),
			Pipelines: cm.resolve(v.GetString("paths.pipelines")),
			FollowUps: cm.resolve(v.GetString("paths.followups")),
			Channels:  cm.resolve(v.GetString("paths.channels")),
			Owners:    cm.resolve(v.GetString("paths.owners")),
			Resolved:  cm.resolve(v.GetString("paths.resolved")),
			EventLog:  cm.resolve(v.GetString("paths.event_log")),
		},
		Mail: models.MailConfig{
			From:         v.GetString("mail.from"),
			EscalationCC: splitList(v.Get("mail.escalation_cc")),
			Send:         v.GetBool("mail.send"),
			Provider:     strings.ToLower(v.GetString("mail.provider")),
			GmailToken:   v.GetString("mail.gmail_token"),
			GmailAPIURL:  v.GetString("mail.gmail_api_url"),
			SESRegion:    v.GetString("mail.ses_region"),
		},
		Store: models.StoreConfig{
			Backend:    strings.ToLower(v.GetString("store.backend")),
			PebblePath: cm.resolve(v.GetString("store.pebble_path")),
		},
		Publisher: models.PublisherConfig{
			Repo:      v.GetString("publisher.repo"),
			Token:     v.GetString("publisher.token"),
			APIURL:    v.GetString("publisher.api_url"),
			RateLimit: v.GetFloat64("publisher.rate_limit"),
		},
		Alerts: models.AlertsConfig{
			SlackWebhook: v.GetString("alerts.slack_webhook"),
			GraceHours:   v.GetInt("alerts.grace_hours"),
		},
		Cron:     v.GetString("cron"),
		Textfile: v.GetString("metrics_textfile"),
		LogLevel: v.GetString("log_level"),
	}
	if cfg.Textfile != "" {
		cfg.Textfile = cm.resolve(cfg.Textfile)
	}
	if cfg.Mail.Provider == "" {
		cfg.Mail.Provider = "none"
	}

	return cfg, nil
}

func (cm *viperConfigManager) resolve(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(cm.basePath, p)
}

// splitList accepts either a YAML list or a comma-separated string, as the
// escalation CC list arrives both ways.
func splitList(raw any) []string {
	var parts []string
	switch val := raw.(type) {
	case nil:
		return nil
	case string:
		parts = strings.Split(val, ",")
	case []string:
		parts = val
	case []any:
		for _, item := range val {
			if s, ok := item.(string); ok {
				parts = append(parts, s)
			}
		}
	default:
		parts = strings.Split(fmt.Sprint(val), ",")
	}
	var out []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

var (
	validBackends  = map[string]bool{"json": true, "pebble": true}
	validProviders = map[string]bool{"ses": true, "gmail": true, "none": true}
)

// ValidateConfig checks for values no stage can work with.
func (cm *viperConfigManager) ValidateConfig(cfg *models.Config) error {
	if cfg == nil {
		return fmt.Errorf("configuration is nil")
	}

	var errs []string
	if !validBackends[cfg.Store.Backend] {
		errs = append(errs, fmt.Sprintf("store.backend must be json or pebble, got %q", cfg.Store.Backend))
	}
	if !validProviders[cfg.Mail.Provider] {
		errs = append(errs, fmt.Sprintf("mail.provider must be ses, gmail or none, got %q", cfg.Mail.Provider))
	}
	if cfg.Publisher.Repo != "" && !repoSlugPattern.MatchString(cfg.Publisher.Repo) {
		errs = append(errs, fmt.Sprintf("publisher.repo must look like owner/name, got %q", cfg.Publisher.Repo))
	}
	if cfg.Publisher.RateLimit < 0 {
		errs = append(errs, "publisher.rate_limit must not be negative")
	}
	if cfg.Paths.Inbox == "" || cfg.Paths.Pipelines == "" || cfg.Paths.FollowUps == "" {
		errs = append(errs, "paths.inbox, paths.pipelines and paths.followups must be set")
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(errs, "; "))
	}
	return nil
}
