package web

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/Afeter8/Fed.80/panel/internal/inflight"
	"github.com/Afeter8/Fed.80/panel/internal/ui"
	"github.com/Afeter8/Fed.80/pkg/logger"
	"github.com/Afeter8/Fed.80/pkg/models"
	"github.com/gin-gonic/gin"
)

const defaultSnapshotLimit = 20

// Operations is the panel as seen from the web front end
type Operations interface {
	RefreshStatus(ctx context.Context) error
	DoAction(ctx context.Context, host, action string) error
	ScanAll(ctx context.Context) error
	RepairAll(ctx context.Context) error
	Rotate(ctx context.Context) error
	SyncRepos(ctx context.Context, user string) error
	State() *ui.State
}

// SnapshotHistory lists archived status polls
type SnapshotHistory interface {
	ListSnapshots(ctx context.Context, limit int) ([]models.SnapshotRecord, error)
	LatestSnapshot(ctx context.Context) (*models.SnapshotRecord, error)
}

// Probe reports whether an optional dependency is usable
type Probe func(ctx context.Context) bool

type Handler struct {
	ops     Operations
	history SnapshotHistory
	checks  map[string]Probe
}

func NewHandler(ops Operations, history SnapshotHistory) *Handler {
	return &Handler{
		ops:     ops,
		history: history,
		checks:  make(map[string]Probe),
	}
}

// AddHealthCheck registers a named dependency shown by /health
func (h *Handler) AddHealthCheck(name string, check Probe) {
	h.checks[name] = check
}

// HealthCheck reports liveness and the state of optional dependencies
func (h *Handler) HealthCheck(c *gin.Context) {
	deps := gin.H{}
	for name, check := range h.checks {
		deps[name] = check(c.Request.Context())
	}
	c.JSON(http.StatusOK, gin.H{
		"status":       "ok",
		"dependencies": deps,
	})
}

// Index renders the panel page
func (h *Handler) Index(c *gin.Context) {
	c.HTML(http.StatusOK, "panel.html", h.ops.State().View())
}

// GetState returns the panel state as JSON
func (h *Handler) GetState(c *gin.Context) {
	c.JSON(http.StatusOK, h.ops.State().View())
}

// GetSnapshots returns archived status polls, newest first
func (h *Handler) GetSnapshots(c *gin.Context) {
	if h.history == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Snapshot archive disabled"})
		return
	}

	limit := defaultSnapshotLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit"})
			return
		}
		limit = n
	}

	records, err := h.history.ListSnapshots(c.Request.Context(), limit)
	if err != nil {
		logger.Log.Errorf("Failed to list snapshots: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list snapshots"})
		return
	}
	if records == nil {
		records = []models.SnapshotRecord{}
	}
	c.JSON(http.StatusOK, records)
}

// GetLatestSnapshot returns the newest archived status poll
func (h *Handler) GetLatestSnapshot(c *gin.Context) {
	if h.history == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Snapshot archive disabled"})
		return
	}

	record, err := h.history.LatestSnapshot(c.Request.Context())
	if err != nil {
		logger.Log.Errorf("Failed to get latest snapshot: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get latest snapshot"})
		return
	}
	if record == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "No snapshot archived yet"})
		return
	}
	c.JSON(http.StatusOK, record)
}

func (h *Handler) Refresh(c *gin.Context) {
	h.finish(c, "refresh", h.ops.RefreshStatus(c.Request.Context()))
}

func (h *Handler) Action(c *gin.Context) {
	err := h.ops.DoAction(c.Request.Context(), c.PostForm("host"), c.PostForm("action"))
	h.finish(c, "action", err)
}

func (h *Handler) ScanAll(c *gin.Context) {
	h.finish(c, "scanall", h.ops.ScanAll(c.Request.Context()))
}

func (h *Handler) RepairAll(c *gin.Context) {
	h.finish(c, "repairall", h.ops.RepairAll(c.Request.Context()))
}

func (h *Handler) Rotate(c *gin.Context) {
	h.finish(c, "rotate", h.ops.Rotate(c.Request.Context()))
}

func (h *Handler) SyncRepos(c *gin.Context) {
	h.finish(c, "syncrepos", h.ops.SyncRepos(c.Request.Context(), c.PostForm("user")))
}

// finish sends the browser back to the panel. Failures are already in the
// transcript the page shows.
func (h *Handler) finish(c *gin.Context, op string, err error) {
	if err != nil && !errors.Is(err, inflight.ErrSuperseded) {
		logger.Log.Debugf("Web %s: %v", op, err)
	}
	c.Redirect(http.StatusSeeOther, "/")
}
