package models

import (
	"bytes"
	"encoding/json"
	"time"
)

// Agent is one host row reported by the backend status endpoint
type Agent struct {
	Host     string `json:"host"`
	OS       string `json:"os"`
	LastSeen string `json:"last_seen"`
	State    string `json:"state"`
}

// StatusSnapshot is one GET /api/status response. Summary is opaque and rendered verbatim.
type StatusSnapshot struct {
	Summary json.RawMessage `json:"summary,omitempty"`
	Agents  []Agent         `json:"agents"`
}

// SnapshotRecord is an archived status poll
type SnapshotRecord struct {
	ID         int64          `json:"id"`
	TakenAt    time.Time      `json:"taken_at"`
	AgentCount int            `json:"agent_count"`
	Snapshot   StatusSnapshot `json:"snapshot"`
}

// ActionRequest is the body of POST /api/agent/action
type ActionRequest struct {
	Host   string `json:"host"`
	Action string `json:"action"`
}

// ActionResponse is returned by the action and bulk endpoints
type ActionResponse struct {
	Result json.RawMessage `json:"result"`
}

// ResultText renders the server-reported result for the transcript.
func (r ActionResponse) ResultText() string {
	return rawText(r.Result)
}

// SyncReposRequest is the body of POST /api/syncrepos
type SyncReposRequest struct {
	User string `json:"user"`
}

// SyncReposResponse is returned by POST /api/syncrepos
type SyncReposResponse struct {
	Result json.RawMessage `json:"result"`
	Repos  json.RawMessage `json:"repos,omitempty"`
}

func (r SyncReposResponse) ResultText() string {
	return rawText(r.Result)
}

// rawText shows a JSON string unquoted and any other value as compact JSON.
func rawText(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}
