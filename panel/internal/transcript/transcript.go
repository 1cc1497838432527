package transcript

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/Afeter8/Fed.80/pkg/logger"
	"github.com/Afeter8/Fed.80/pkg/models"
)

const sinkTimeout = 2 * time.Second

// Sink receives every appended entry. A failing sink never fails the append.
type Sink interface {
	Write(ctx context.Context, entry models.LogEntry) error
}

// History yields previously persisted entries, newest first.
type History interface {
	Recent(ctx context.Context, n int) ([]models.LogEntry, error)
}

// Transcript is the user-visible panel log: capped, newest entry first.
type Transcript struct {
	mu      sync.RWMutex
	max     int
	entries []models.LogEntry

	// appendMu serialises stamping, insertion and sink writes so that every
	// sink sees entries in transcript order.
	appendMu sync.Mutex
	sinks    []Sink

	now func() time.Time
}

func New(max int, sinks ...Sink) *Transcript {
	if max <= 0 {
		max = 1
	}
	return &Transcript{
		max:   max,
		sinks: sinks,
		now:   time.Now,
	}
}

// AddSink attaches a sink for subsequent appends
func (t *Transcript) AddSink(s Sink) {
	t.appendMu.Lock()
	t.sinks = append(t.sinks, s)
	t.appendMu.Unlock()
}

// Append stamps message, puts it first and evicts the oldest entries beyond capacity.
func (t *Transcript) Append(message string) models.LogEntry {
	t.appendMu.Lock()
	defer t.appendMu.Unlock()

	entry := models.NewLogEntry(t.now(), message)

	t.mu.Lock()
	t.entries = append(t.entries, models.LogEntry{})
	copy(t.entries[1:], t.entries)
	t.entries[0] = entry
	if len(t.entries) > t.max {
		t.entries = t.entries[:t.max]
	}
	t.mu.Unlock()

	t.fanOut(entry)
	return entry
}

// fanOut runs with appendMu held
func (t *Transcript) fanOut(entry models.LogEntry) {
	for _, s := range t.sinks {
		ctx, cancel := context.WithTimeout(context.Background(), sinkTimeout)
		if err := s.Write(ctx, entry); err != nil {
			logger.Log.Warnf("Transcript sink %T failed: %v", s, err)
		}
		cancel()
	}
}

// Restore seeds the transcript with persisted entries (newest first) without
// writing them back to the sinks. Existing entries stay in front.
func (t *Transcript) Restore(entries []models.LogEntry) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.entries = append(t.entries, entries...)
	if len(t.entries) > t.max {
		t.entries = t.entries[:t.max]
	}
}

// Load restores from h, logging and ignoring failures.
func (t *Transcript) Load(ctx context.Context, h History) {
	entries, err := h.Recent(ctx, t.max)
	if err != nil {
		logger.Log.Warnf("Failed to load transcript history: %v", err)
		return
	}
	t.Restore(entries)
	logger.Log.Infof("Restored %d transcript entries", len(entries))
}

// Entries returns a copy, newest first
func (t *Transcript) Entries() []models.LogEntry {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]models.LogEntry, len(t.entries))
	copy(out, t.entries)
	return out
}

func (t *Transcript) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// Text renders one "<timestamp> <message>" line per entry, newest first.
func (t *Transcript) Text() string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var b strings.Builder
	for _, e := range t.entries {
		b.WriteString(e.String())
		b.WriteByte('\n')
	}
	return b.String()
}
