package tui

import (
	"fmt"
	"io"
	"os"

	"github.com/trailops/camwatch/reconcile"
)

// Summary prints the human-readable end-of-run summary. It is printed for
// every run outcome: a partial-failure or aborted run must never end in
// silence that looks like success.
type Summary struct {
	w      io.Writer
	styles *Styles
}

// NewSummary creates a summary printer for stdout.
func NewSummary(noColor bool) *Summary {
	styles := DefaultStyles()
	if noColor {
		styles = PlainStyles()
	}
	return &Summary{w: os.Stdout, styles: styles}
}

// SetWriter redirects the summary output, mainly for tests.
func (s *Summary) SetWriter(w io.Writer) {
	s.w = w
}

// PrintRun renders one run report.
func (s *Summary) PrintRun(report *reconcile.RunReport) {
	fmt.Fprintln(s.w)
	if report.Failed() {
		fmt.Fprintf(s.w, "%s Run %s finished with %d write failures\n",
			s.styles.Warning.Render(SymbolWarning),
			report.RunID,
			len(report.WriteFailures))
	} else {
		fmt.Fprintf(s.w, "%s Run %s completed\n",
			s.styles.Success.Render(SymbolSuccess),
			report.RunID)
	}
	fmt.Fprintln(s.w)

	fmt.Fprintf(s.w, "  %-18s %s\n", "Effective date:", report.EffectiveDate)
	fmt.Fprintf(s.w, "  %-18s %s\n", "Source:", report.Source)
	fmt.Fprintf(s.w, "  %-18s %d matched, %d orphans, %d unseen (of %d rows)\n",
		"Fleet:", report.MatchedCount, report.OrphanCount, report.UnseenCount, report.RowCount)
	fmt.Fprintf(s.w, "  %-18s %d created, %d replayed\n",
		"Status reports:", report.ReportsCreated, report.ReportsReplayed)
	fmt.Fprintf(s.w, "  %-18s %d\n", "Version updates:", report.VersionUpdates)
	fmt.Fprintf(s.w, "  %-18s %d\n", "Alerts:", report.AlertCount)
	fmt.Fprintf(s.w, "  %-18s %s\n", "Duration:", FormatDuration(report.FinishedAt.Sub(report.StartedAt)))

	if len(report.Orphans) > 0 {
		fmt.Fprintln(s.w)
		fmt.Fprintln(s.w, s.styles.Subtitle.Render("  Orphan rows:"))
		for _, o := range report.Orphans {
			fmt.Fprintf(s.w, "  %s %s: %s\n", s.styles.Muted.Render(SymbolBullet), o.LocationID, o.Reason)
		}
	}

	if len(report.ParseNotes) > 0 {
		fmt.Fprintln(s.w)
		fmt.Fprintf(s.w, "  %s\n", s.styles.Subtitle.Render(fmt.Sprintf("Parse notes (%d):", len(report.ParseNotes))))
		for _, n := range report.ParseNotes {
			fmt.Fprintf(s.w, "  %s %s\n", s.styles.Muted.Render(SymbolBullet), n)
		}
	}

	if len(report.WriteFailures) > 0 {
		fmt.Fprintln(s.w)
		fmt.Fprintln(s.w, s.styles.Error.Render("  Write failures:"))
		for _, f := range report.WriteFailures {
			fmt.Fprintf(s.w, "  %s deployment %d (%s): %s\n",
				s.styles.Error.Render(SymbolError), f.DeploymentID, f.HardwareID, f.Error)
		}
	}

	fmt.Fprintln(s.w)
}

// PrintFatal renders a run that aborted before reconciliation.
func (s *Summary) PrintFatal(err error) {
	fmt.Fprintln(s.w)
	fmt.Fprintf(s.w, "%s Run aborted: %v\n", s.styles.Error.Render(SymbolError), err)
	fmt.Fprintln(s.w)
}
