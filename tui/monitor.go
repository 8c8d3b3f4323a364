package tui

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/trailops/camwatch/database"
)

// tickMsg drives the periodic refresh.
type tickMsg time.Time

// fleetMsg carries one refresh's worth of registry state.
type fleetMsg struct {
	deployments []*database.Deployment
	reports     []*database.StatusReport
	err         error
}

// MonitorConfig holds configuration for the fleet monitor.
type MonitorConfig struct {
	DB              *database.DB
	RefreshInterval time.Duration
}

// MonitorModel is the live fleet dashboard: a table of active deployments
// with their seen/missing state, refreshed from the registry.
type MonitorModel struct {
	cfg    MonitorConfig
	styles *Styles
	table  table.Model

	total       int
	missing     int
	attention   int
	lastRefresh time.Time
	err         error
	quitting    bool
}

// NewMonitor creates the fleet monitor model.
func NewMonitor(cfg MonitorConfig) *MonitorModel {
	if cfg.RefreshInterval == 0 {
		cfg.RefreshInterval = 5 * time.Second
	}

	columns := []table.Column{
		{Title: "", Width: 2},
		{Title: "Device", Width: 12},
		{Title: "Location", Width: 24},
		{Title: "Last seen", Width: 12},
		{Title: "Days missing", Width: 12},
		{Title: "Battery", Width: 9},
		{Title: "Signal", Width: 7},
		{Title: "Alert", Width: 42},
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(true),
		table.WithHeight(16),
	)
	st := table.DefaultStyles()
	st.Header = st.Header.
		Bold(true).
		Foreground(ColorPrimary).
		BorderStyle(lipgloss.NormalBorder()).
		BorderBottom(true).
		BorderForeground(ColorSecondary)
	st.Selected = st.Selected.
		Foreground(ColorForeground).
		Background(ColorSecondary)
	t.SetStyles(st)

	return &MonitorModel{
		cfg:    cfg,
		styles: DefaultStyles(),
		table:  t,
	}
}

// Init implements tea.Model.
func (m *MonitorModel) Init() tea.Cmd {
	return tea.Batch(m.fetch, m.tick())
}

func (m *MonitorModel) tick() tea.Cmd {
	return tea.Tick(m.cfg.RefreshInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// fetch reads the registry state for one refresh.
func (m *MonitorModel) fetch() tea.Msg {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	deployments, err := m.cfg.DB.ListActiveDeployments(ctx)
	if err != nil {
		return fleetMsg{err: err}
	}
	reports, err := m.cfg.DB.LatestStatusReports(ctx)
	if err != nil {
		return fleetMsg{err: err}
	}
	return fleetMsg{deployments: deployments, reports: reports}
}

// Update implements tea.Model.
func (m *MonitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		case "r":
			return m, m.fetch
		}

	case tea.WindowSizeMsg:
		m.table.SetHeight(msg.Height - 8)

	case tickMsg:
		return m, tea.Batch(m.fetch, m.tick())

	case fleetMsg:
		m.err = msg.err
		if msg.err == nil {
			m.apply(msg)
			m.lastRefresh = time.Now()
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

// apply folds one refresh into the table.
func (m *MonitorModel) apply(msg fleetMsg) {
	latest := make(map[int64]*database.StatusReport, len(msg.reports))
	for _, r := range msg.reports {
		latest[r.DeploymentID] = r
	}

	m.total = len(msg.deployments)
	m.missing = 0
	m.attention = 0

	rows := make([]table.Row, 0, len(msg.deployments))
	for _, dep := range msg.deployments {
		battery, signal, reason := "-", "-", ""
		needsAttention := false
		if r := latest[dep.ID]; r != nil {
			battery = string(r.BatteryStatus)
			if r.SignalLevel != nil {
				signal = strconv.Itoa(*r.SignalLevel)
			}
			needsAttention = r.NeedsAttention
			reason = r.AlertReason
		}
		if dep.IsMissing {
			m.missing++
			reason = fmt.Sprintf("missing for %d days", dep.ConsecutiveMissingDays)
		}
		if needsAttention {
			m.attention++
		}

		rows = append(rows, table.Row{
			m.styles.DeploymentIcon(dep.IsMissing, needsAttention),
			dep.HardwareID,
			dep.LocationName,
			dateOrDash(dep.LastSeenDate),
			strconv.Itoa(dep.ConsecutiveMissingDays),
			battery,
			signal,
			reason,
		})
	}
	m.table.SetRows(rows)
}

// View implements tea.Model.
func (m *MonitorModel) View() string {
	if m.quitting {
		return ""
	}

	header := m.styles.Title.Render("camwatch fleet monitor") + "\n"
	header += fmt.Sprintf("%s %d deployments  %s %d missing  %s %d need attention\n",
		m.styles.Muted.Render("Fleet:"), m.total,
		m.styles.Error.Render(SymbolError), m.missing,
		m.styles.Warning.Render(SymbolWarning), m.attention)

	if m.err != nil {
		header += m.styles.Error.Render(fmt.Sprintf("refresh failed: %v", m.err)) + "\n"
	} else if !m.lastRefresh.IsZero() {
		header += m.styles.Muted.Render("refreshed "+m.lastRefresh.Format("15:04:05")) + "\n"
	}

	help := m.styles.Help.Render("r refresh  ↑/↓ scroll  q quit")

	return header + "\n" + m.table.View() + "\n" + help + "\n"
}

// RunMonitor runs the monitor until the user quits.
func RunMonitor(cfg MonitorConfig) error {
	p := tea.NewProgram(NewMonitor(cfg), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("monitor failed: %w", err)
	}
	return nil
}
