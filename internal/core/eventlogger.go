package core

// EventLogger records pipeline events. It is the slice of the observability
// event log the core stages need, so core does not import observability.
// A nil EventLogger disables event recording.
type EventLogger interface {
	LogEvent(eventType string, data map[string]any) error
}

func logEvent(l EventLogger, eventType string, data map[string]any) {
	if l == nil {
		return
	}
	_ = l.LogEvent(eventType, data)
}
