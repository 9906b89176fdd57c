package main

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/docuchat/ingest/internal/db"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205")).Padding(0, 1)
	labelStyle = lipgloss.NewStyle().Width(22)
	countStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("220"))
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	helpStyle  = lipgloss.NewStyle().Faint(true)
)

type tickMsg time.Time

type countsMsg struct {
	counts *db.StatusCounts
	err    error
}

type dashboardModel struct {
	database *db.DB
	counts   *db.StatusCounts
	err      error
}

func runDashboard(database *db.DB) error {
	m := dashboardModel{database: database}
	_, err := tea.NewProgram(m).Run()
	return err
}

func (m dashboardModel) Init() tea.Cmd {
	return tea.Batch(m.fetchCounts, tick())
}

func tick() tea.Cmd {
	return tea.Tick(2*time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m dashboardModel) fetchCounts() tea.Msg {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	counts, err := m.database.QueueCounts(ctx)
	return countsMsg{counts: counts, err: err}
}

func (m dashboardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}
	case tickMsg:
		return m, tea.Batch(m.fetchCounts, tick())
	case countsMsg:
		m.counts = msg.counts
		m.err = msg.err
	}
	return m, nil
}

func (m dashboardModel) View() string {
	s := titleStyle.Render("Ingestion queue") + "\n\n"

	if m.err != nil {
		s += errStyle.Render(fmt.Sprintf("error: %v", m.err)) + "\n"
	} else if m.counts == nil {
		s += "loading...\n"
	} else {
		s += row("Awaiting conversion", m.counts.Pending)
		s += row("Awaiting indexing", m.counts.AwaitingIndex)
		s += row("Indexed", m.counts.Indexed)
		s += row("Failed", m.counts.Failed)
	}

	s += "\n" + helpStyle.Render("q to quit")
	return s
}

func row(label string, count int64) string {
	return labelStyle.Render(label) + countStyle.Render(fmt.Sprintf("%d", count)) + "\n"
}
