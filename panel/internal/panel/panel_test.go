package panel

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Afeter8/Fed.80/panel/internal/backend"
	"github.com/Afeter8/Fed.80/panel/internal/inflight"
	"github.com/Afeter8/Fed.80/panel/internal/transcript"
	"github.com/Afeter8/Fed.80/panel/internal/ui"
	"github.com/Afeter8/Fed.80/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const statusBody = `{"summary":{"total":1},"agents":[{"host":"h1","os":"linux","last_seen":"2024-01-01T00:00:00Z","state":"up"}]}`

type fakeBackend struct {
	mux   *http.ServeMux
	mu    sync.Mutex
	calls map[string]int
}

func newFakeBackend() *fakeBackend {
	fb := &fakeBackend{mux: http.NewServeMux(), calls: make(map[string]int)}
	fb.handle(backend.PathStatus, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, statusBody)
	})
	return fb
}

func (fb *fakeBackend) handle(path string, h http.HandlerFunc) {
	fb.mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		fb.mu.Lock()
		fb.calls[path]++
		fb.mu.Unlock()
		h(w, r)
	})
}

func (fb *fakeBackend) count(path string) int {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return fb.calls[path]
}

func (fb *fakeBackend) total() int {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	n := 0
	for _, c := range fb.calls {
		n += c
	}
	return n
}

type memSink struct {
	mu        sync.Mutex
	snapshots []models.StatusSnapshot
}

func (s *memSink) SaveSnapshot(_ context.Context, snapshot models.StatusSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots = append(s.snapshots, snapshot)
	return nil
}

type failingSink struct{}

func (failingSink) SaveSnapshot(context.Context, models.StatusSnapshot) error {
	return errors.New("archive down")
}

func setupTestPanel(t *testing.T, fb *fakeBackend, sinks ...SnapshotSink) (*Panel, *transcript.Transcript) {
	srv := httptest.NewServer(fb.mux)
	t.Cleanup(srv.Close)

	log := transcript.New(100)
	client := backend.New(srv.URL, 5*time.Second, log)
	return New(client, ui.NewState(log), log, sinks...), log
}

func messages(log *transcript.Transcript) []string {
	var out []string
	for _, e := range log.Entries() {
		out = append(out, e.Message)
	}
	return out
}

func TestRefreshStatus(t *testing.T) {
	fb := newFakeBackend()
	sink := &memSink{}
	p, log := setupTestPanel(t, fb, sink, failingSink{})

	require.NoError(t, p.RefreshStatus(context.Background()))

	view := p.State().View()
	assert.Equal(t, [][]string{{"h1", "linux", "2024-01-01T00:00:00Z", "up"}}, view.Rows())
	assert.Equal(t, "{\n  \"total\": 1\n}", view.Summary)
	assert.Equal(t, 0, log.Len())
	assert.Len(t, sink.snapshots, 1)
	assert.False(t, p.Busy())
}

func TestRefreshStatusSingleAgentScenario(t *testing.T) {
	fb := &fakeBackend{mux: http.NewServeMux(), calls: make(map[string]int)}
	fb.handle(backend.PathStatus, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"summary":{"ok":true},"agents":[{"host":"h1","os":"linux","last_seen":"2024-01-01T00:00:00Z","state":"up"}]}`)
	})
	p, _ := setupTestPanel(t, fb)

	require.NoError(t, p.RefreshStatus(context.Background()))

	rows := p.State().View().Rows()
	require.Len(t, rows, 1)
	assert.Equal(t, "h1 / linux / 2024-01-01T00:00:00Z / up", strings.Join(rows[0], " / "))
	assert.Equal(t, "{\n  \"ok\": true\n}", p.State().Summary())
}

func TestRefreshStatusRowCountMatchesAgents(t *testing.T) {
	fb := &fakeBackend{mux: http.NewServeMux(), calls: make(map[string]int)}
	fb.handle(backend.PathStatus, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"summary":null,"agents":[{"host":"a"},{"host":"a"},{"host":"b"}]}`)
	})
	p, _ := setupTestPanel(t, fb)

	require.NoError(t, p.RefreshStatus(context.Background()))
	assert.Len(t, p.State().View().Rows(), 3)
}

func TestRefreshStatusMissingAgents(t *testing.T) {
	fb := &fakeBackend{mux: http.NewServeMux(), calls: make(map[string]int)}
	fb.handle(backend.PathStatus, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"summary":{"total":0}}`)
	})
	p, _ := setupTestPanel(t, fb)

	require.NoError(t, p.RefreshStatus(context.Background()))
	assert.Empty(t, p.State().View().Rows())
}

func TestRefreshStatusServerError(t *testing.T) {
	fb := &fakeBackend{mux: http.NewServeMux(), calls: make(map[string]int)}
	fb.handle(backend.PathStatus, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	sink := &memSink{}
	p, log := setupTestPanel(t, fb, sink)

	err := p.RefreshStatus(context.Background())
	require.Error(t, err)

	var reqErr *backend.RequestError
	assert.True(t, errors.As(err, &reqErr))
	assert.Equal(t, ui.SummaryError, p.State().Summary())

	msgs := messages(log)
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0], backend.PathStatus)
	assert.Contains(t, msgs[0], "500")
	assert.Empty(t, sink.snapshots)
}

func TestRefreshStatusSupersededIsNotApplied(t *testing.T) {
	release := make(chan struct{})
	var n int32
	fb := &fakeBackend{mux: http.NewServeMux(), calls: make(map[string]int)}
	fb.handle(backend.PathStatus, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&n, 1) == 1 {
			select {
			case <-release:
			case <-r.Context().Done():
				return
			}
			io.WriteString(w, `{"summary":"stale","agents":[{"host":"old"}]}`)
			return
		}
		io.WriteString(w, statusBody)
	})
	p, log := setupTestPanel(t, fb)
	defer close(release)

	first := make(chan error, 1)
	go func() { first <- p.RefreshStatus(context.Background()) }()

	require.Eventually(t, func() bool { return fb.count(backend.PathStatus) == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, p.RefreshStatus(context.Background()))

	select {
	case err := <-first:
		assert.ErrorIs(t, err, inflight.ErrSuperseded)
	case <-time.After(2 * time.Second):
		t.Fatal("superseded refresh did not return")
	}

	view := p.State().View()
	require.Len(t, view.Agents, 1)
	assert.Equal(t, "h1", view.Agents[0].Host)
	assert.Equal(t, 0, log.Len())
}

func TestRefreshStatusCallerCancelShowsError(t *testing.T) {
	fb := &fakeBackend{mux: http.NewServeMux(), calls: make(map[string]int)}
	fb.handle(backend.PathStatus, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})
	p, log := setupTestPanel(t, fb)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.RefreshStatus(ctx) }()

	require.Eventually(t, func() bool { return fb.count(backend.PathStatus) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, ui.SummaryPending, p.State().Summary())
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
		assert.NotErrorIs(t, err, inflight.ErrSuperseded)
	case <-time.After(2 * time.Second):
		t.Fatal("cancelled refresh did not return")
	}

	assert.Equal(t, ui.SummaryError, p.State().Summary())
	assert.Equal(t, 0, log.Len())
	assert.False(t, p.Busy())
}

func TestDoAction(t *testing.T) {
	fb := newFakeBackend()
	fb.handle(backend.PathAction, func(w http.ResponseWriter, r *http.Request) {
		var req models.ActionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "h1", req.Host)
		assert.Equal(t, "scan", req.Action)
		io.WriteString(w, `{"result":"queued"}`)
	})
	p, log := setupTestPanel(t, fb)

	require.NoError(t, p.DoAction(context.Background(), "h1", "scan"))

	assert.Equal(t, []string{"Acción enviada: queued"}, messages(log))
	assert.Equal(t, 1, fb.count(backend.PathAction))
	assert.Equal(t, 1, fb.count(backend.PathStatus), "a status refresh follows the action")
	assert.Len(t, p.State().View().Rows(), 1)
}

func TestDoActionEntryPrecedesRefreshEntries(t *testing.T) {
	fb := &fakeBackend{mux: http.NewServeMux(), calls: make(map[string]int)}
	fb.handle(backend.PathAction, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"result":"queued"}`)
	})
	fb.handle(backend.PathStatus, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	p, log := setupTestPanel(t, fb)

	require.NoError(t, p.DoAction(context.Background(), "h1", "repair"))

	msgs := messages(log)
	require.Len(t, msgs, 2)
	assert.Equal(t, "Acción enviada: queued", msgs[1], "older entry")
	assert.Equal(t, "API error /api/status: 502 Bad Gateway", msgs[0])
	assert.Equal(t, ui.SummaryError, p.State().Summary())
}

func TestDoActionFailureSkipsRefresh(t *testing.T) {
	fb := newFakeBackend()
	fb.handle(backend.PathAction, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	p, log := setupTestPanel(t, fb)

	err := p.DoAction(context.Background(), "ghost", "scan")
	require.Error(t, err)

	assert.Equal(t, []string{"API error /api/agent/action: 404 Not Found"}, messages(log))
	assert.Equal(t, 0, fb.count(backend.PathStatus))
}

func TestDoActionValidation(t *testing.T) {
	fb := newFakeBackend()
	p, log := setupTestPanel(t, fb)

	err := p.DoAction(context.Background(), "  ", "scan")

	var vErr *ValidationError
	require.True(t, errors.As(err, &vErr))
	assert.Equal(t, 1, log.Len())
	assert.Equal(t, 0, fb.total())
}

func TestBulkOperations(t *testing.T) {
	fb := newFakeBackend()
	fb.handle(backend.PathScanAll, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"result":"scanning 3"}`)
	})
	fb.handle(backend.PathRepairAll, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"result":"repairing"}`)
	})
	fb.handle(backend.PathRotate, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"result":{"rotated":2}}`)
	})
	p, log := setupTestPanel(t, fb)
	ctx := context.Background()

	require.NoError(t, p.ScanAll(ctx))
	require.NoError(t, p.RepairAll(ctx))
	require.NoError(t, p.Rotate(ctx))

	assert.Equal(t, []string{
		`Rotate: {"rotated":2}`,
		"RepairAll: repairing",
		"ScanAll: scanning 3",
	}, messages(log))
	assert.Equal(t, 0, fb.count(backend.PathStatus), "bulk operations do not refresh")
}

func TestBulkFailureLogsOnce(t *testing.T) {
	fb := newFakeBackend()
	fb.handle(backend.PathScanAll, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	p, log := setupTestPanel(t, fb)

	require.Error(t, p.ScanAll(context.Background()))
	assert.Equal(t, []string{"API error /api/scanall: 503 Service Unavailable"}, messages(log))
}

func TestSyncReposEmptyInput(t *testing.T) {
	for _, input := range []string{"", "   ", "\t\n"} {
		fb := newFakeBackend()
		p, log := setupTestPanel(t, fb)

		err := p.SyncRepos(context.Background(), input)

		var vErr *ValidationError
		assert.True(t, errors.As(err, &vErr))
		assert.Equal(t, []string{MsgSyncUserEmpty}, messages(log))
		assert.Equal(t, 0, fb.total())
	}
}

func TestSyncRepos(t *testing.T) {
	fb := newFakeBackend()
	fb.handle(backend.PathSyncRepos, func(w http.ResponseWriter, r *http.Request) {
		var req models.SyncReposRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "octocat", req.User)
		io.WriteString(w, `{"result":"2 repos","repos":[{"name":"a"},{"name":"b"}]}`)
	})
	p, log := setupTestPanel(t, fb)

	require.NoError(t, p.SyncRepos(context.Background(), "  octocat "))

	assert.Equal(t, []string{"Sync: 2 repos"}, messages(log))
	repos := p.State().View().Repos
	assert.True(t, strings.HasPrefix(repos, "[\n  {"))
	assert.JSONEq(t, `[{"name":"a"},{"name":"b"}]`, repos)
	assert.Equal(t, 1, fb.count(backend.PathStatus))
}

func TestSyncReposWithoutRepos(t *testing.T) {
	fb := newFakeBackend()
	fb.handle(backend.PathSyncRepos, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"result":"nothing"}`)
	})
	p, _ := setupTestPanel(t, fb)

	require.NoError(t, p.SyncRepos(context.Background(), "nobody"))
	assert.Equal(t, "[]", p.State().View().Repos)
}

func TestSyncReposStaleResponseNotRendered(t *testing.T) {
	release := make(chan struct{})
	fb := newFakeBackend()
	fb.handle(backend.PathSyncRepos, func(w http.ResponseWriter, r *http.Request) {
		var req models.SyncReposRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.User == "slow" {
			<-release
			io.WriteString(w, `{"result":"slow done","repos":["old"]}`)
			return
		}
		io.WriteString(w, `{"result":"fast done","repos":["new"]}`)
	})
	p, log := setupTestPanel(t, fb)

	first := make(chan error, 1)
	go func() { first <- p.SyncRepos(context.Background(), "slow") }()
	require.Eventually(t, func() bool { return fb.count(backend.PathSyncRepos) == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, p.SyncRepos(context.Background(), "fast"))
	close(release)

	select {
	case err := <-first:
		assert.ErrorIs(t, err, inflight.ErrSuperseded)
	case <-time.After(2 * time.Second):
		t.Fatal("stale sync did not return")
	}

	assert.JSONEq(t, `["new"]`, p.State().View().Repos)
	assert.Contains(t, messages(log), "Sync: slow done")
	assert.Equal(t, 2, fb.count(backend.PathSyncRepos))
}
