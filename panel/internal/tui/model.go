// Package tui is the terminal front end of the panel.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Afeter8/Fed.80/panel/internal/inflight"
	"github.com/Afeter8/Fed.80/panel/internal/ui"
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	colorTitle  = lipgloss.Color("#7aa2f7")
	colorBorder = lipgloss.Color("#3b4261")
	colorDim    = lipgloss.Color("#565f89")
	colorError  = lipgloss.Color("#f7768e")
)

// Operations is what the TUI can ask of the panel
type Operations interface {
	RefreshStatus(ctx context.Context) error
	DoAction(ctx context.Context, host, action string) error
	ScanAll(ctx context.Context) error
	RepairAll(ctx context.Context) error
	Rotate(ctx context.Context) error
	SyncRepos(ctx context.Context, user string) error
	State() *ui.State
}

// OpDoneMsg reports a finished panel operation
type OpDoneMsg struct {
	Op  string
	Err error
}

// RefreshedMsg is sent from outside the program when a background poll finished
type RefreshedMsg struct {
	Err error
}

type handler func(m *Model) tea.Cmd

type binding struct {
	key key.Binding
	fn  handler
}

type Model struct {
	ctx      context.Context
	ops      Operations
	bindings []binding

	cursor    int
	busy      int
	lastErr   string
	inputting bool

	input   textinput.Model
	spinner spinner.Model
	help    help.Model

	width  int
	height int
}

func NewModel(ctx context.Context, ops Operations) Model {
	sp := spinner.New()
	sp.Spinner = spinner.MiniDot
	sp.Style = lipgloss.NewStyle().Foreground(colorTitle)

	in := textinput.New()
	in.Placeholder = "usuario u org de GitHub"
	in.Prompt = "GitHub> "
	in.CharLimit = 100

	m := Model{
		ctx:     ctx,
		ops:     ops,
		input:   in,
		spinner: sp,
		help:    help.New(),
		busy:    1, // initial refresh from Init
	}

	m.register(keys.Quit, (*Model).quit)
	m.register(keys.Up, (*Model).up)
	m.register(keys.Down, (*Model).down)
	m.register(keys.Help, (*Model).toggleHelp)
	m.register(keys.Refresh, (*Model).refresh)
	m.register(keys.Scan, func(m *Model) tea.Cmd { return m.hostAction("scan") })
	m.register(keys.Repair, func(m *Model) tea.Cmd { return m.hostAction("repair") })
	m.register(keys.ScanAll, func(m *Model) tea.Cmd { return m.run("ScanAll", m.ops.ScanAll) })
	m.register(keys.RepairAll, func(m *Model) tea.Cmd { return m.run("RepairAll", m.ops.RepairAll) })
	m.register(keys.Rotate, func(m *Model) tea.Cmd { return m.run("Rotate", m.ops.Rotate) })
	m.register(keys.Sync, (*Model).openSync)
	return m
}

func (m *Model) register(k key.Binding, fn handler) {
	m.bindings = append(m.bindings, binding{key: k, fn: fn})
}

func (m Model) Init() tea.Cmd {
	ops, ctx := m.ops, m.ctx
	return tea.Batch(m.spinner.Tick, func() tea.Msg {
		return OpDoneMsg{Op: "Refresh", Err: ops.RefreshStatus(ctx)}
	})
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case OpDoneMsg:
		if m.busy > 0 {
			m.busy--
		}
		m.lastErr = describe(msg.Op, msg.Err)
		m.clampCursor()
		return m, nil

	case RefreshedMsg:
		m.lastErr = describe("Refresh", msg.Err)
		m.clampCursor()
		return m, nil

	case tea.KeyMsg:
		if m.inputting {
			return m.updateInput(msg)
		}
		for _, b := range m.bindings {
			if key.Matches(msg, b.key) {
				cmd := b.fn(&m)
				return m, cmd
			}
		}
	}
	return m, nil
}

func (m Model) updateInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Submit):
		user, ops := m.input.Value(), m.ops
		m.closeSync()
		cmd := m.run("Sync", func(ctx context.Context) error {
			return ops.SyncRepos(ctx, user)
		})
		return m, cmd
	case key.Matches(msg, keys.Cancel):
		m.closeSync()
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// run executes op off the UI loop and reports back with OpDoneMsg.
func (m *Model) run(name string, op func(ctx context.Context) error) tea.Cmd {
	m.busy++
	ctx := m.ctx
	return func() tea.Msg {
		return OpDoneMsg{Op: name, Err: op(ctx)}
	}
}

func (m *Model) quit() tea.Cmd {
	return tea.Quit
}

func (m *Model) up() tea.Cmd {
	if m.cursor > 0 {
		m.cursor--
	}
	return nil
}

func (m *Model) down() tea.Cmd {
	if m.cursor < len(m.ops.State().Agents())-1 {
		m.cursor++
	}
	return nil
}

func (m *Model) toggleHelp() tea.Cmd {
	m.help.ShowAll = !m.help.ShowAll
	return nil
}

func (m *Model) refresh() tea.Cmd {
	return m.run("Refresh", m.ops.RefreshStatus)
}

func (m *Model) hostAction(action string) tea.Cmd {
	agents := m.ops.State().Agents()
	if m.cursor < 0 || m.cursor >= len(agents) {
		return nil
	}
	host, ops := agents[m.cursor].Host, m.ops
	return m.run(action+" "+host, func(ctx context.Context) error {
		return ops.DoAction(ctx, host, action)
	})
}

func (m *Model) openSync() tea.Cmd {
	m.inputting = true
	m.input.Reset()
	return m.input.Focus()
}

func (m *Model) closeSync() {
	m.inputting = false
	m.input.Blur()
}

func (m *Model) clampCursor() {
	n := len(m.ops.State().Agents())
	if m.cursor >= n {
		m.cursor = n - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}

// Busy reports whether operations started from the TUI are still running
func (m Model) Busy() bool {
	return m.busy > 0
}

// describe turns an operation error into a status line. Failures already in
// the transcript are summarised; superseded requests are not failures.
func describe(op string, err error) string {
	if err == nil || errors.Is(err, inflight.ErrSuperseded) || errors.Is(err, context.Canceled) {
		return ""
	}
	return fmt.Sprintf("%s failed: %v", op, err)
}

func (m Model) View() string {
	w := m.width
	if w == 0 {
		w = 100
	}
	view := m.ops.State().View()

	var sections []string

	titleStyle := lipgloss.NewStyle().
		Bold(true).Foreground(colorTitle).
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(colorBorder).
		Padding(0, 2).Width(w - 2).
		Align(lipgloss.Center)
	title := fmt.Sprintf("Agent Panel  │  %d agents", len(view.Agents))
	if !view.UpdatedAt.IsZero() {
		title += "  │  " + view.UpdatedAt.Format("15:04:05")
	}
	sections = append(sections, titleStyle.Render(title))

	sections = append(sections, ui.Section("Estado global", view.Summary))
	sections = append(sections, ui.AgentTable(view.Agents, m.cursor))
	if view.Repos != "" {
		sections = append(sections, ui.Section("Repositorios", view.Repos))
	}

	logLines := strings.Split(strings.TrimRight(ui.LogText(view.Log), "\n"), "\n")
	if limit := m.logLines(); len(logLines) > limit {
		logLines = logLines[:limit]
	}
	sections = append(sections, ui.Section("Log", strings.Join(logLines, "\n")))

	sections = append(sections, m.statusBar())

	helpStyle := lipgloss.NewStyle().Foreground(colorDim).Width(w)
	if m.inputting {
		sections = append(sections, m.input.View(), helpStyle.Render(m.help.View(inputKeys)))
	} else {
		sections = append(sections, helpStyle.Render(m.help.View(keys)))
	}

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) logLines() int {
	if m.height <= 0 {
		return 10
	}
	n := m.height / 4
	if n < 3 {
		n = 3
	}
	return n
}

func (m Model) statusBar() string {
	switch {
	case m.busy > 0:
		return m.spinner.View() + " working..."
	case m.lastErr != "":
		return lipgloss.NewStyle().Foreground(colorError).Render(m.lastErr)
	default:
		return lipgloss.NewStyle().Foreground(colorDim).Render("ready  " + time.Now().Format("15:04:05"))
	}
}
