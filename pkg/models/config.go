package models

// PathsConfig holds the filesystem layout of the triage pipeline. Relative
// paths are resolved against the base path.
type PathsConfig struct {
	Inbox     string `yaml:"inbox" mapstructure:"inbox"`
	Pipelines string `yaml:"pipelines" mapstructure:"pipelines"`
	FollowUps string `yaml:"followups" mapstructure:"followups"`
	Channels  string `yaml:"channels" mapstructure:"channels"`
	Owners    string `yaml:"owners" mapstructure:"owners"`
	Resolved  string `yaml:"resolved" mapstructure:"resolved"`
	EventLog  string `yaml:"event_log" mapstructure:"event_log"`
}

// MailConfig configures reply composition and dispatch.
type MailConfig struct {
	From         string   `yaml:"from" mapstructure:"from"`
	EscalationCC []string `yaml:"escalation_cc,omitempty" mapstructure:"escalation_cc"`
	Send         bool     `yaml:"send" mapstructure:"send"`
	Provider     string   `yaml:"provider" mapstructure:"provider"` // ses, gmail, or none
	GmailToken   string   `yaml:"-" mapstructure:"gmail_token"`
	GmailAPIURL  string   `yaml:"gmail_api_url,omitempty" mapstructure:"gmail_api_url"`
	SESRegion    string   `yaml:"ses_region,omitempty" mapstructure:"ses_region"`
}

// StoreConfig selects the follow-up thread repository backend.
type StoreConfig struct {
	Backend    string `yaml:"backend" mapstructure:"backend"` // json or pebble
	PebblePath string `yaml:"pebble_path,omitempty" mapstructure:"pebble_path"`
}

// PublisherConfig configures the issue publisher.
type PublisherConfig struct {
	Repo      string  `yaml:"repo" mapstructure:"repo"` // owner/name
	Token     string  `yaml:"-" mapstructure:"token"`
	APIURL    string  `yaml:"api_url,omitempty" mapstructure:"api_url"`
	RateLimit float64 `yaml:"rate_limit" mapstructure:"rate_limit"` // requests per second
}

// AlertsConfig configures the SLA alert engine.
type AlertsConfig struct {
	SlackWebhook string `yaml:"-" mapstructure:"slack_webhook"`
	GraceHours   int    `yaml:"grace_hours" mapstructure:"grace_hours"`
}

// Config is the complete sectriage configuration, read from .sectriage.yaml
// and environment overrides.
type Config struct {
	Paths     PathsConfig     `yaml:"paths" mapstructure:"paths"`
	Mail      MailConfig      `yaml:"mail" mapstructure:"mail"`
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Publisher PublisherConfig `yaml:"publisher" mapstructure:"publisher"`
	Alerts    AlertsConfig    `yaml:"alerts" mapstructure:"alerts"`
	Cron      string          `yaml:"cron,omitempty" mapstructure:"cron"`
	Textfile  string          `yaml:"metrics_textfile,omitempty" mapstructure:"metrics_textfile"`
	LogLevel  string          `yaml:"log_level" mapstructure:"log_level"`
}
