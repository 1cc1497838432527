package panel

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Afeter8/Fed.80/panel/internal/backend"
	"github.com/Afeter8/Fed.80/panel/internal/inflight"
	"github.com/Afeter8/Fed.80/panel/internal/ui"
	"github.com/Afeter8/Fed.80/pkg/logger"
	"github.com/Afeter8/Fed.80/pkg/models"
)

const (
	MsgActionSent    = "Acción enviada: %s"
	MsgSyncUserEmpty = "Escribe usuario/org de GitHub"

	snapshotSinkTimeout = 5 * time.Second
)

// Backend is the subset of the fleet API the panel drives
type Backend interface {
	Status(ctx context.Context) (*models.StatusSnapshot, error)
	Action(ctx context.Context, host, action string) (*models.ActionResponse, error)
	Bulk(ctx context.Context, path string) (*models.ActionResponse, error)
	SyncRepos(ctx context.Context, user string) (*models.SyncReposResponse, error)
}

// Transcript is where user-visible entries go
type Transcript interface {
	Append(message string) models.LogEntry
}

// SnapshotSink archives or broadcasts every applied status snapshot
type SnapshotSink interface {
	SaveSnapshot(ctx context.Context, snapshot models.StatusSnapshot) error
}

// BulkOp is a fleet-wide operation
type BulkOp struct {
	Name string
	Path string
}

var (
	OpScanAll   = BulkOp{Name: "ScanAll", Path: backend.PathScanAll}
	OpRepairAll = BulkOp{Name: "RepairAll", Path: backend.PathRepairAll}
	OpRotate    = BulkOp{Name: "Rotate", Path: backend.PathRotate}
)

// Panel is the control panel core shared by every front end
type Panel struct {
	backend    Backend
	state      *ui.State
	transcript Transcript
	tracker    *inflight.Tracker
	sinks      []SnapshotSink
}

func New(b Backend, state *ui.State, transcript Transcript, sinks ...SnapshotSink) *Panel {
	return &Panel{
		backend:    b,
		state:      state,
		transcript: transcript,
		tracker:    inflight.NewTracker(),
		sinks:      sinks,
	}
}

func (p *Panel) State() *ui.State {
	return p.state
}

// Busy reports whether any request is outstanding
func (p *Panel) Busy() bool {
	return p.tracker.InFlight() > 0
}

// RefreshStatus polls the fleet and renders the result. A newer refresh
// cancels this one; a superseded refresh leaves the UI alone and returns
// inflight.ErrSuperseded. Any other failure, the caller giving up included,
// shows the error summary.
func (p *Panel) RefreshStatus(ctx context.Context) error {
	ctx, ticket := p.tracker.Supersede(ctx, backend.PathStatus)
	defer ticket.Finish()

	p.state.SetSummary(ui.SummaryPending)

	snapshot, err := p.backend.Status(ctx)
	if err != nil {
		if !ticket.Apply(func() { p.state.SetSummary(ui.SummaryError) }) {
			return inflight.ErrSuperseded
		}
		if errors.Is(err, context.Canceled) {
			return err
		}
		return fmt.Errorf("failed to refresh status: %w", err)
	}

	if !ticket.Apply(func() { p.state.ApplySnapshot(*snapshot) }) {
		return inflight.ErrSuperseded
	}
	logger.Log.Debugf("Status refreshed: %d agents", len(snapshot.Agents))
	p.archive(*snapshot)
	return nil
}

func (p *Panel) archive(snapshot models.StatusSnapshot) {
	for _, sink := range p.sinks {
		ctx, cancel := context.WithTimeout(context.Background(), snapshotSinkTimeout)
		if err := sink.SaveSnapshot(ctx, snapshot); err != nil {
			logger.Log.Warnf("Snapshot sink %T failed: %v", sink, err)
		}
		cancel()
	}
}

// DoAction asks host to run action, then refreshes the status on success.
func (p *Panel) DoAction(ctx context.Context, host, action string) error {
	host = strings.TrimSpace(host)
	action = strings.TrimSpace(action)
	if host == "" || action == "" {
		err := &ValidationError{Field: "action", Message: "host and action are required"}
		p.transcript.Append(fmt.Sprintf("Error acción: %v", err))
		return err
	}

	logger.Log.Debugf("Solicitando %s al agente %s", action, host)

	resp, err := p.backend.Action(ctx, host, action)
	if err != nil {
		return fmt.Errorf("failed to send %s to %s: %w", action, host, err)
	}
	p.transcript.Append(fmt.Sprintf(MsgActionSent, resp.ResultText()))

	if err := p.RefreshStatus(ctx); err != nil {
		logger.Log.Debugf("Refresh after action: %v", err)
	}
	return nil
}

func (p *Panel) ScanAll(ctx context.Context) error   { return p.Bulk(ctx, OpScanAll) }
func (p *Panel) RepairAll(ctx context.Context) error { return p.Bulk(ctx, OpRepairAll) }
func (p *Panel) Rotate(ctx context.Context) error    { return p.Bulk(ctx, OpRotate) }

// Bulk runs a fleet-wide operation and records its result. It does not refresh.
func (p *Panel) Bulk(ctx context.Context, op BulkOp) error {
	resp, err := p.backend.Bulk(ctx, op.Path)
	if err != nil {
		return fmt.Errorf("%s failed: %w", op.Name, err)
	}
	p.transcript.Append(fmt.Sprintf("%s: %s", op.Name, resp.ResultText()))
	return nil
}

// SyncRepos imports the repositories of a GitHub user or organisation. Only the
// newest sync renders its repository list.
func (p *Panel) SyncRepos(ctx context.Context, user string) error {
	user = strings.TrimSpace(user)
	if user == "" {
		p.transcript.Append(MsgSyncUserEmpty)
		return &ValidationError{Field: "user", Message: "empty"}
	}

	ctx, ticket := p.tracker.Track(ctx, backend.PathSyncRepos)
	defer ticket.Finish()

	resp, err := p.backend.SyncRepos(ctx, user)
	if err != nil {
		return fmt.Errorf("failed to sync repos of %s: %w", user, err)
	}
	p.transcript.Append(fmt.Sprintf("Sync: %s", resp.ResultText()))

	if !ticket.Apply(func() { p.state.SetRepos(resp.Repos) }) {
		return inflight.ErrSuperseded
	}

	if err := p.RefreshStatus(ctx); err != nil {
		logger.Log.Debugf("Refresh after sync: %v", err)
	}
	return nil
}
