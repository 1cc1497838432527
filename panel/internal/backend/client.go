package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Afeter8/Fed.80/pkg/logger"
	"github.com/Afeter8/Fed.80/pkg/models"
	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Backend endpoints
const (
	PathStatus    = "/api/status"
	PathAction    = "/api/agent/action"
	PathScanAll   = "/api/scanall"
	PathRepairAll = "/api/repairall"
	PathRotate    = "/api/rotate"
	PathSyncRepos = "/api/syncrepos"
)

// Recorder receives the user-visible failure entries
type Recorder interface {
	Append(message string) models.LogEntry
}

// Client talks to the agent fleet backend. Every failed call leaves exactly one
// "API error <path>: <err>" entry on the recorder, except calls whose context
// was cancelled by the caller.
type Client struct {
	http     *resty.Client
	recorder Recorder
}

func New(baseURL string, timeout time.Duration, recorder Recorder) *Client {
	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json").
		SetLogger(logger.Log)

	return &Client{
		http:     client,
		recorder: recorder,
	}
}

// BaseURL returns the backend root all paths are appended to
func (c *Client) BaseURL() string {
	return c.http.BaseURL
}

// Status fetches the fleet snapshot
func (c *Client) Status(ctx context.Context) (*models.StatusSnapshot, error) {
	var snapshot models.StatusSnapshot
	if err := c.do(ctx, http.MethodGet, PathStatus, nil, &snapshot); err != nil {
		return nil, err
	}
	return &snapshot, nil
}

// Action asks one agent to perform action
func (c *Client) Action(ctx context.Context, host, action string) (*models.ActionResponse, error) {
	var resp models.ActionResponse
	body := models.ActionRequest{Host: host, Action: action}
	if err := c.do(ctx, http.MethodPost, PathAction, body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Bulk triggers a fleet-wide operation at path (scanall, repairall, rotate)
func (c *Client) Bulk(ctx context.Context, path string) (*models.ActionResponse, error) {
	var resp models.ActionResponse
	if err := c.do(ctx, http.MethodPost, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) SyncRepos(ctx context.Context, user string) (*models.SyncReposResponse, error) {
	var resp models.SyncReposResponse
	body := models.SyncReposRequest{User: user}
	if err := c.do(ctx, http.MethodPost, PathSyncRepos, body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	requestID := uuid.NewString()
	req := c.http.R().
		SetContext(ctx).
		SetHeader("X-Request-ID", requestID)
	if body != nil {
		req.SetHeader("Content-Type", "application/json").SetBody(body)
	}

	start := time.Now()
	resp, err := req.Execute(method, path)
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			logger.Log.Debugf("%s %s cancelled (request %s)", method, path, requestID)
			return ctx.Err()
		}
		return c.fail(&RequestError{Path: path, Err: err})
	}

	logger.Log.WithFields(logrus.Fields{
		"method":     method,
		"path":       path,
		"status":     resp.StatusCode(),
		"duration":   time.Since(start).String(),
		"request_id": requestID,
	}).Debug("Backend request completed")

	if !resp.IsSuccess() {
		return c.fail(&RequestError{
			Path:       path,
			StatusCode: resp.StatusCode(),
			Status:     statusText(resp),
		})
	}

	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return c.fail(&RequestError{
			Path:       path,
			StatusCode: resp.StatusCode(),
			Status:     resp.Status(),
			Err:        fmt.Errorf("invalid JSON response: %w", err),
		})
	}
	return nil
}

func (c *Client) fail(err *RequestError) error {
	if c.recorder != nil {
		c.recorder.Append(fmt.Sprintf("API error %s: %v", err.Path, err))
	}
	logger.Log.Warnf("Backend request %s failed: %v", err.Path, err)
	return err
}

// statusText renders "<code> <reason>" whatever the server sent as reason phrase.
func statusText(resp *resty.Response) string {
	code := resp.StatusCode()
	if reason := http.StatusText(code); reason != "" {
		return fmt.Sprintf("%d %s", code, reason)
	}
	if s := strings.TrimSpace(resp.Status()); s != "" {
		return s
	}
	return fmt.Sprintf("%d", code)
}
