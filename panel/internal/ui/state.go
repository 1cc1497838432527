// Package ui holds everything the panel shows: summary text, agent table,
// repository result area and the transcript. Front ends only read it.
package ui

import (
	"bytes"
	"encoding/json"
	"sync"
	"time"

	"github.com/Afeter8/Fed.80/pkg/models"
)

const (
	SummaryPending = "Consultando agentes..."
	SummaryError   = "Error al consultar estado."
)

// LogSource supplies transcript entries, newest first
type LogSource interface {
	Entries() []models.LogEntry
}

// View is an immutable copy of the panel state
type View struct {
	Summary   string            `json:"summary"`
	Agents    []models.Agent    `json:"agents"`
	Repos     string            `json:"repos"`
	Log       []models.LogEntry `json:"log"`
	UpdatedAt time.Time         `json:"updated_at,omitempty"`
}

// Rows returns the agent table cells: host, os, last seen, state.
func (v View) Rows() [][]string {
	rows := make([][]string, 0, len(v.Agents))
	for _, a := range v.Agents {
		rows = append(rows, []string{a.Host, a.OS, a.LastSeen, a.State})
	}
	return rows
}

type State struct {
	mu        sync.RWMutex
	summary   string
	agents    []models.Agent
	repos     string
	updatedAt time.Time
	log       LogSource
}

func NewState(log LogSource) *State {
	return &State{log: log}
}

// SetSummary replaces the summary text verbatim
func (s *State) SetSummary(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.summary = text
}

// ApplySnapshot renders a successful status poll. The table is replaced as a
// whole; a snapshot without agents empties it.
func (s *State) ApplySnapshot(snapshot models.StatusSnapshot) {
	agents := make([]models.Agent, len(snapshot.Agents))
	copy(agents, snapshot.Agents)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.summary = FormatSummary(snapshot.Summary)
	s.agents = agents
	s.updatedAt = time.Now()
}

// SetRepos renders the repository list of a sync
func (s *State) SetRepos(raw json.RawMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.repos = FormatRepos(raw)
}

func (s *State) Summary() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.summary
}

// Agents returns a copy of the current table
func (s *State) Agents() []models.Agent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Agent, len(s.agents))
	copy(out, s.agents)
	return out
}

func (s *State) View() View {
	s.mu.RLock()
	v := View{
		Summary:   s.summary,
		Agents:    make([]models.Agent, len(s.agents)),
		Repos:     s.repos,
		UpdatedAt: s.updatedAt,
	}
	copy(v.Agents, s.agents)
	s.mu.RUnlock()

	if s.log != nil {
		v.Log = s.log.Entries()
	}
	if v.Log == nil {
		v.Log = []models.LogEntry{}
	}
	return v
}

// FormatSummary pretty-prints the opaque summary with 2-space indentation.
func FormatSummary(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return ""
	}
	return indent(raw)
}

// FormatRepos pretty-prints a repository list, "[]" when absent or null.
func FormatRepos(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "[]"
	}
	return indent(raw)
}

func indent(raw []byte) string {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return string(raw)
	}
	return buf.String()
}
