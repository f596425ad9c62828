// Package tui implements the optional --tui live dashboard: one row per
// target showing sent/received/loss/last-RTT/avg-RTT, refreshed on a
// timer off the same stats.Target snapshots the plain printer reads.
package tui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/pcekm/pingx/internal/session"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	footerStyle = lipgloss.NewStyle().Faint(true).Padding(1, 1, 0)
)

type tickMsg time.Time

// Model is the bubbletea model driving the dashboard. It owns no network
// state of its own: it only reads the stats.Target snapshots already being
// updated by the session scheduler in another goroutine.
type Model struct {
	targets  []session.Target
	table    table.Model
	interval time.Duration
}

// New builds a dashboard model over targets, refreshing every interval.
func New(targets []session.Target, interval time.Duration) *Model {
	cols := []table.Column{
		{Title: "Target", Width: 24},
		{Title: "Sent", Width: 6},
		{Title: "Recv", Width: 6},
		{Title: "Loss", Width: 6},
		{Title: "Last", Width: 10},
		{Title: "Avg", Width: 10},
	}
	t := table.New(
		table.WithColumns(cols),
		table.WithRows(rowsFor(targets)),
		table.WithFocused(false),
		table.WithHeight(len(targets)+1),
	)
	return &Model{targets: targets, table: t, interval: interval}
}

func rowsFor(targets []session.Target) []table.Row {
	rows := make([]table.Row, len(targets))
	for i, t := range targets {
		s := t.Stats.Snapshot()
		last, avg := "-", "-"
		if s.Received > 0 {
			last = formatMillis(s.Last)
			avg = formatMillis(s.Avg)
		}
		rows[i] = table.Row{
			t.Input,
			fmt.Sprint(s.Transmitted),
			fmt.Sprint(s.Received),
			fmt.Sprintf("%.0f%%", s.LossPercent),
			last,
			avg,
		}
	}
	return rows
}

func formatMillis(d time.Duration) string {
	return fmt.Sprintf("%.1f ms", float64(d)/float64(time.Millisecond))
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return tickCmd(m.interval)
}

func tickCmd(interval time.Duration) tea.Cmd {
	return tea.Tick(interval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.table.SetWidth(msg.Width)
	case tickMsg:
		m.table.SetRows(rowsFor(m.targets))
		return m, tickCmd(m.interval)
	}
	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

// View implements tea.Model.
func (m *Model) View() string {
	return headerStyle.Render("pingx") + "\n" + m.table.View() + "\n" + footerStyle.Render("q to quit")
}
