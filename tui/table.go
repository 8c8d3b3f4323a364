package tui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"

	camwatch "github.com/trailops/camwatch"
	"github.com/trailops/camwatch/database"
)

// Column represents a table column
type Column struct {
	Title string
	Width int
}

func renderHeader(b *strings.Builder, styles *Styles, columns []Column) {
	var headerLine string
	for _, col := range columns {
		headerLine += styles.TableHeader.Width(col.Width).Render(col.Title) + " "
	}
	b.WriteString(headerLine + "\n")
	for _, col := range columns {
		b.WriteString(styles.Muted.Render(strings.Repeat("─", col.Width)) + " ")
	}
	b.WriteString("\n")
}

func renderCells(b *strings.Builder, columns []Column, cells []string) {
	for i, col := range columns {
		var cell string
		if i < len(cells) {
			cell = cells[i]
		}
		b.WriteString(lipgloss.NewStyle().Width(col.Width).Render(cell) + " ")
	}
	b.WriteString("\n")
}

func truncate(s string, max int) string {
	if len(s) > max {
		return s[:max-2] + ".."
	}
	return s
}

func dateOrDash(d camwatch.Date) string {
	if d.IsZero() {
		return "-"
	}
	return d.String()
}

// RenderDeploymentsTable renders the fleet listing for list-deployments.
func RenderDeploymentsTable(deployments []*database.Deployment) string {
	styles := DefaultStyles()
	var b strings.Builder

	b.WriteString(styles.Title.Render("Active Deployments") + "\n\n")

	if len(deployments) == 0 {
		b.WriteString(styles.Muted.Render("  No active deployments\n"))
		return b.String()
	}

	columns := []Column{
		{Title: "", Width: 2},
		{Title: "DEVICE", Width: 12},
		{Title: "LOCATION", Width: 24},
		{Title: "LAST SEEN", Width: 12},
		{Title: "MISSING", Width: 8},
		{Title: "DAYS", Width: 5},
	}
	renderHeader(&b, styles, columns)

	missing := 0
	for _, dep := range deployments {
		if dep.IsMissing {
			missing++
		}
		renderCells(&b, columns, []string{
			styles.DeploymentIcon(dep.IsMissing, false),
			truncate(dep.HardwareID, 12),
			truncate(dep.LocationName, 24),
			dateOrDash(dep.LastSeenDate),
			strconv.FormatBool(dep.IsMissing),
			strconv.Itoa(dep.ConsecutiveMissingDays),
		})
	}

	b.WriteString(fmt.Sprintf("\n%s %d deployments, %d missing\n",
		styles.Muted.Render("Total:"), len(deployments), missing))

	return b.String()
}

// AlertRow is one row of the list-alerts output: either a missing deployment
// or a latest status report that needs attention.
type AlertRow struct {
	HardwareID string
	Location   string
	Reason     string
	Since      string
}

// RenderAlertsTable renders the attention listing for list-alerts.
func RenderAlertsTable(alerts []AlertRow) string {
	styles := DefaultStyles()
	var b strings.Builder

	b.WriteString(styles.Title.Render("Deployments Needing Attention") + "\n\n")

	if len(alerts) == 0 {
		b.WriteString(styles.Success.Render(SymbolSuccess+" All clear") + "\n")
		return b.String()
	}

	columns := []Column{
		{Title: "", Width: 2},
		{Title: "DEVICE", Width: 12},
		{Title: "LOCATION", Width: 24},
		{Title: "REASON", Width: 48},
		{Title: "SINCE", Width: 12},
	}
	renderHeader(&b, styles, columns)

	for _, a := range alerts {
		renderCells(&b, columns, []string{
			styles.Warning.Render(SymbolWarning),
			truncate(a.HardwareID, 12),
			truncate(a.Location, 24),
			truncate(a.Reason, 48),
			a.Since,
		})
	}

	b.WriteString(fmt.Sprintf("\n%s %d alerts\n", styles.Muted.Render("Total:"), len(alerts)))

	return b.String()
}

// RunRow is one run-log entry for list-runs display.
type RunRow struct {
	RunID         string
	EffectiveDate string
	Matched       int
	Orphans       int
	Unseen        int
	Created       int
	Failures      int
}

// RenderRunsTable renders the run history for list-runs.
func RenderRunsTable(runs []RunRow) string {
	styles := DefaultStyles()
	var b strings.Builder

	b.WriteString(styles.Title.Render("Reconciliation Runs") + "\n\n")

	if len(runs) == 0 {
		b.WriteString(styles.Muted.Render("  No recorded runs\n"))
		return b.String()
	}

	columns := []Column{
		{Title: "", Width: 2},
		{Title: "RUN", Width: 32},
		{Title: "DATE", Width: 12},
		{Title: "MATCHED", Width: 8},
		{Title: "ORPHANS", Width: 8},
		{Title: "UNSEEN", Width: 7},
		{Title: "CREATED", Width: 8},
		{Title: "FAILED", Width: 7},
	}
	renderHeader(&b, styles, columns)

	for _, r := range runs {
		icon := styles.Success.Render(SymbolSuccess)
		if r.Failures > 0 {
			icon = styles.Warning.Render(SymbolWarning)
		}
		renderCells(&b, columns, []string{
			icon,
			truncate(r.RunID, 32),
			r.EffectiveDate,
			strconv.Itoa(r.Matched),
			strconv.Itoa(r.Orphans),
			strconv.Itoa(r.Unseen),
			strconv.Itoa(r.Created),
			strconv.Itoa(r.Failures),
		})
	}

	b.WriteString(fmt.Sprintf("\n%s %d runs\n", styles.Muted.Render("Total:"), len(runs)))

	return b.String()
}
