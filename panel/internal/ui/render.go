package ui

import (
	"fmt"
	"io"
	"strings"

	"github.com/Afeter8/Fed.80/pkg/models"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

var (
	colorTitle  = lipgloss.Color("#7aa2f7")
	colorBorder = lipgloss.Color("#3b4261")
	colorDim    = lipgloss.Color("#565f89")
	colorSelBg  = lipgloss.Color("#283457")
	colorUp     = lipgloss.Color("#9ece6a")
	colorDown   = lipgloss.Color("#f7768e")

	sectionStyle = lipgloss.NewStyle().Bold(true).Foreground(colorTitle)
	headerStyle  = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle    = lipgloss.NewStyle().Padding(0, 1)
	dimStyle     = lipgloss.NewStyle().Foreground(colorDim)
)

// TableHeaders are the agent table columns
var TableHeaders = []string{"Host", "OS", "Last seen", "State"}

// AgentTable draws the agents; selected is the highlighted row, -1 for none.
func AgentTable(agents []models.Agent, selected int) string {
	rows := View{Agents: agents}.Rows()

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorBorder)).
		Headers(TableHeaders...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			style := cellStyle
			if row == selected {
				style = style.Background(colorSelBg)
			}
			if col == 3 && row >= 0 && row < len(rows) {
				style = style.Foreground(StateColor(rows[row][3]))
			}
			return style
		})

	return t.String()
}

// StateColor picks a foreground for an agent state
func StateColor(state string) lipgloss.Color {
	switch strings.ToLower(state) {
	case "up", "online", "ok", "healthy", "active":
		return colorUp
	case "down", "offline", "error", "failed", "compromised":
		return colorDown
	default:
		return colorDim
	}
}

// Section renders a titled block
func Section(title, body string) string {
	if body == "" {
		body = dimStyle.Render("(empty)")
	}
	return sectionStyle.Render(title) + "\n" + body
}

// LogText renders entries as "<timestamp> <message>" lines, newest first.
func LogText(entries []models.LogEntry) string {
	var b strings.Builder
	for _, e := range entries {
		b.WriteString(e.String())
		b.WriteByte('\n')
	}
	return b.String()
}

// Render writes the whole view for one-shot CLI output.
func Render(w io.Writer, v View) error {
	sections := []string{
		Section("Estado global", v.Summary),
		Section(fmt.Sprintf("Agentes (%d)", len(v.Agents)), AgentTable(v.Agents, -1)),
	}
	if v.Repos != "" {
		sections = append(sections, Section("Repositorios", v.Repos))
	}
	sections = append(sections, Section("Log", strings.TrimRight(LogText(v.Log), "\n")))

	_, err := fmt.Fprintln(w, strings.Join(sections, "\n\n"))
	return err
}
