package models

import "time"

// TimestampLayout matches the ISO-8601 form used in the transcript (UTC, milliseconds).
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// LogEntry is one line of the panel transcript
type LogEntry struct {
	Timestamp string `json:"timestamp"`
	Message   string `json:"message"`
}

// NewLogEntry stamps message with t in TimestampLayout.
func NewLogEntry(t time.Time, message string) LogEntry {
	return LogEntry{
		Timestamp: t.UTC().Format(TimestampLayout),
		Message:   message,
	}
}

// String renders the entry the way the transcript displays it.
func (e LogEntry) String() string {
	return e.Timestamp + " " + e.Message
}
