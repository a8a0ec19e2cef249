// Package observability provides logging, event recording, metrics and SLA
// alerting for sectriage. Pipeline events are persisted as JSON Lines and
// metrics are derived from the event log on demand.
package observability
