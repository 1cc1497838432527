package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/Afeter8/Fed.80/panel/internal/config"
	"github.com/Afeter8/Fed.80/panel/internal/inflight"
	"github.com/Afeter8/Fed.80/panel/internal/tui"
	"github.com/Afeter8/Fed.80/panel/internal/ui"
	"github.com/Afeter8/Fed.80/panel/internal/watch"
	"github.com/Afeter8/Fed.80/panel/internal/web"
	"github.com/Afeter8/Fed.80/pkg/logger"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/gin-gonic/gin"
)

const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2

	defaultWatchInterval = 10 * time.Second
)

const usage = `Usage: panel [command] [args]

Commands:
  tui                      interactive terminal panel (default)
  serve                    web panel on WEB_ADDR
  status                   refresh and print the fleet status
  action <host> <action>   send an action to one agent, e.g. scan or repair
  scanall                  scan every agent
  repairall                repair every agent
  rotate                   rotate credentials now
  syncrepos <user>         sync repositories of a GitHub user or org
  watch [-interval 10s]    poll the status until interrupted
  history [-n 20]          print the persisted transcript and archived snapshots
`

type command func(ctx context.Context, a *app, args []string, out io.Writer) int

var commands = map[string]command{
	"tui":       runTUI,
	"serve":     runServe,
	"status":    runStatus,
	"action":    runAction,
	"scanall":   runBulk(func(ctx context.Context, a *app) error { return a.panel.ScanAll(ctx) }),
	"repairall": runBulk(func(ctx context.Context, a *app) error { return a.panel.RepairAll(ctx) }),
	"rotate":    runBulk(func(ctx context.Context, a *app) error { return a.panel.Rotate(ctx) }),
	"syncrepos": runSyncRepos,
	"watch":     runWatch,
	"history":   runHistory,
}

// lookup resolves the subcommand; no argument means the TUI.
func lookup(args []string) (command, []string, bool) {
	if len(args) == 0 {
		return runTUI, nil, true
	}
	cmd, ok := commands[args[0]]
	return cmd, args[1:], ok
}

// finish renders the panel state and maps the operation result to an exit code.
func finish(a *app, out io.Writer, err error) int {
	if renderErr := ui.Render(out, a.panel.State().View()); renderErr != nil {
		logger.Log.Errorf("Failed to render panel: %v", renderErr)
	}
	if err != nil && !errors.Is(err, inflight.ErrSuperseded) {
		return exitError
	}
	return exitOK
}

func runStatus(ctx context.Context, a *app, args []string, out io.Writer) int {
	return finish(a, out, a.panel.RefreshStatus(ctx))
}

func runAction(ctx context.Context, a *app, args []string, out io.Writer) int {
	if len(args) != 2 {
		fmt.Fprint(out, usage)
		return exitUsage
	}
	return finish(a, out, a.panel.DoAction(ctx, args[0], args[1]))
}

func runBulk(op func(ctx context.Context, a *app) error) command {
	return func(ctx context.Context, a *app, args []string, out io.Writer) int {
		return finish(a, out, op(ctx, a))
	}
}

func runSyncRepos(ctx context.Context, a *app, args []string, out io.Writer) int {
	user := ""
	if len(args) > 0 {
		user = args[0]
	}
	return finish(a, out, a.panel.SyncRepos(ctx, user))
}

func runWatch(ctx context.Context, a *app, args []string, out io.Writer) int {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	fs.SetOutput(out)
	interval := fs.Duration("interval", a.cfg.RefreshInterval, "poll interval")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if *interval <= 0 {
		*interval = defaultWatchInterval
	}

	w := watch.New(a.panel.RefreshStatus, *interval, func(c watch.Cycle) {
		fmt.Fprintf(out, "--- poll %d (next in %v) ---\n", c.N, c.Next.Round(time.Millisecond))
		if err := ui.Render(out, a.panel.State().View()); err != nil {
			logger.Log.Errorf("Failed to render panel: %v", err)
		}
	})
	if err := w.Start(ctx); err != nil {
		logger.Log.Errorf("Watch failed: %v", err)
		return exitError
	}
	return exitOK
}

func runHistory(ctx context.Context, a *app, args []string, out io.Writer) int {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	fs.SetOutput(out)
	n := fs.Int("n", 20, "number of entries and snapshots to show")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	entries := a.transcript.Entries()
	if len(entries) > *n {
		entries = entries[:*n]
	}
	fmt.Fprintln(out, ui.Section("Log", ui.LogText(entries)))

	if a.redis != nil {
		latest, err := a.redis.LatestSnapshot(ctx)
		if err != nil {
			logger.Log.Warnf("Failed to read latest status from Redis: %v", err)
		} else if latest != nil {
			fmt.Fprintf(out, "Latest published status: %s, %d agents\n\n",
				latest.Timestamp.Format(time.RFC3339), len(latest.Snapshot.Agents))
		}
	}

	if a.db == nil {
		return exitOK
	}
	records, err := a.db.ListSnapshots(ctx, *n)
	if err != nil {
		logger.Log.Errorf("Failed to list snapshots: %v", err)
		return exitError
	}
	fmt.Fprintln(out, ui.Section("Snapshots", ""))
	for _, r := range records {
		fmt.Fprintf(out, "#%d  %s  %d agents\n", r.ID, r.TakenAt.UTC().Format(time.RFC3339), r.AgentCount)
	}
	return exitOK
}

// startWatch polls in the background when REFRESH_INTERVAL is set. Edits to
// REFRESH_INTERVAL in config.yaml take effect without a restart.
func startWatch(ctx context.Context, a *app, onCycle func(watch.Cycle)) *watch.Watcher {
	if a.cfg.RefreshInterval <= 0 {
		return nil
	}
	w := watch.New(a.panel.RefreshStatus, a.cfg.RefreshInterval, onCycle)
	a.cfg.OnChange(func(next *config.Config) {
		w.SetInterval(next.RefreshInterval)
	})
	go func() {
		if err := w.Start(ctx); err != nil {
			logger.Log.Errorf("Watch failed: %v", err)
		}
	}()
	return w
}

func runTUI(ctx context.Context, a *app, args []string, out io.Writer) int {
	if a.cfg.LogFile == "" {
		logger.SetOutput(io.Discard)
	}

	prog := tea.NewProgram(tui.NewModel(ctx, a.panel), tea.WithAltScreen(), tea.WithContext(ctx))

	if a.cfg.RefreshInterval > 0 {
		// the TUI issues its own first refresh
		startWatch(ctx, a, func(c watch.Cycle) {
			prog.Send(tui.RefreshedMsg{Err: c.Err})
		})
	}

	if _, err := prog.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitError
	}
	return exitOK
}

func runServe(ctx context.Context, a *app, args []string, out io.Writer) int {
	gin.SetMode(gin.ReleaseMode)

	var history web.SnapshotHistory
	if a.db != nil {
		history = a.db
	}
	handler := web.NewHandler(a.panel, history)
	if a.redis != nil {
		handler.AddHealthCheck("redis", a.redis.IsConnected)
	}
	if a.nats != nil {
		handler.AddHealthCheck("nats", func(context.Context) bool { return a.nats.IsConnected() })
	}
	router := web.SetupRouter(handler)

	if err := a.panel.RefreshStatus(ctx); err != nil {
		logger.Log.Warnf("Initial status refresh failed: %v", err)
	}
	startWatch(ctx, a, nil)

	srv := &http.Server{
		Addr:    a.cfg.WebAddr,
		Handler: router,
	}

	go func() {
		logger.Log.Infof("Panel listening on %s", a.cfg.WebAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// ctx is cancelled on SIGINT/SIGTERM
	<-ctx.Done()

	logger.Log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Log.Errorf("Server forced to shutdown: %v", err)
	}

	logger.Log.Info("Server exited")
	return exitOK
}
