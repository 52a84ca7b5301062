package handlers

import (
	"altwriter/internal/llm"
	"altwriter/internal/pipeline"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

var (
	accentStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	labelStyle  = lipgloss.NewStyle().Width(14).Foreground(lipgloss.Color("8"))
	boxStyle    = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

// progressLine renders one line per finished product
func progressLine(done, total int, res pipeline.EntityResult) string {
	status := okStyle.Render("ok")
	if res.Errored() {
		status = errStyle.Render(res.Outcome.Kind.String())
	} else if res.ShapeStats.Fallback > 0 {
		status = warnStyle.Render("partial")
	}
	percent := float64(done) / float64(total) * 100
	return fmt.Sprintf("[%d/%d] %3.0f%% %-7s %s (ai %d, backfill %d, fallback %d, %s)",
		done, total, percent, status, res.Output.EntityID,
		res.ShapeStats.AI, res.ShapeStats.Backfill, res.ShapeStats.Fallback,
		res.Duration.Round(time.Millisecond))
}

// renderSummary renders the end-of-run summary box
func renderSummary(report *pipeline.Report, stats llm.CallStats) string {
	s := report.Summary
	var b strings.Builder

	title := okStyle.Render("Run complete")
	if report.Cancelled {
		title = warnStyle.Render("Run cancelled")
	}
	b.WriteString(accentStyle.Render("altwriter") + " " + title + "\n\n")

	row := func(label, value string) {
		b.WriteString(labelStyle.Render(label) + value + "\n")
	}
	row("run", s.RunID)
	row("products", fmt.Sprintf("%d completed / %d total", s.Completed, s.Entities))
	if s.Skipped > 0 {
		row("skipped", warnStyle.Render(fmt.Sprint(s.Skipped)))
	}
	if s.Errored > 0 {
		row("errored", errStyle.Render(fmt.Sprint(s.Errored)))
	}
	row("texts", fmt.Sprintf("ai %d · backfill %d · fallback %d", s.AI, s.Backfill, s.Fallback))
	row("calls", fmt.Sprintf("%d (%d failed, ~%d tokens)", stats.Calls, stats.Failures, stats.EstimatedTokens))
	if stats.Calls > 0 {
		row("avg latency", (stats.TotalLatency / time.Duration(stats.Calls)).Round(time.Millisecond).String())
	}
	row("duration", s.Duration.Round(time.Millisecond).String())
	for i, f := range s.Files {
		label := ""
		if i == 0 {
			label = "files"
		}
		row(label, f)
	}

	return boxStyle.Render(strings.TrimRight(b.String(), "\n"))
}
