package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/brensch/climatepart/internal/pipeline"
)

var (
	summaryBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("62")).Padding(0, 1)
	labelStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("244")).Width(18)
	okStyle         = lipgloss.NewStyle().Foreground(lipgloss.Color("46"))
	warnStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
)

// RenderSummary renders the end-of-run report. runErr is the fatal error returned by the run, if any.
func RenderSummary(res pipeline.Result, runErr error) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf("Run %s, input year %d", shortID(res.RunID), res.InputYear)))
	b.WriteString("\n")

	row := func(label, value string) {
		b.WriteString(labelStyle.Render(label))
		b.WriteString(value)
		b.WriteString("\n")
	}

	for _, y := range res.Fetch.Years {
		if y.Err != nil {
			row(fmt.Sprintf("Year %d", y.Year), errorStyle.Render("failed: "+y.Err.Error()))
			continue
		}
		row(fmt.Sprintf("Year %d", y.Year), okStyle.Render(fmt.Sprintf("%d rows kept of %d", y.Rows, y.RawRows)))
	}
	if runErr != nil {
		row("Result", errorStyle.Render("failed: "+runErr.Error()))
		return summaryBoxStyle.Render(strings.TrimRight(b.String(), "\n"))
	}

	row("Stations", fmt.Sprintf("%d", res.Stations))
	joinText := fmt.Sprintf("%d of %d rows", res.Join.Joined, res.Join.Input)
	if res.Join.Unmatched > 0 {
		joinText += warnStyle.Render(fmt.Sprintf(" (%d unmatched, %d Climate IDs)", res.Join.Unmatched, len(res.Join.UnmatchedIDs)))
	}
	row("Joined", joinText)
	row("Partitions", fmt.Sprintf("%d", res.Partitions))

	switch {
	case res.UploadSkipped:
		row("Upload", warnStyle.Render(fmt.Sprintf("skipped, %d files written locally", res.Upload.Written())))
	case res.Upload.Failed() > 0:
		row("Upload", errorStyle.Render(fmt.Sprintf("%d uploaded, %d failed", res.Upload.Uploaded(), res.Upload.Failed())))
		for _, p := range res.Upload.Results {
			if p.Err != nil {
				row("", errorStyle.Render(p.ObjectKey+": "+p.Err.Error()))
			}
		}
	default:
		row("Upload", okStyle.Render(fmt.Sprintf("%d uploaded", res.Upload.Uploaded())))
	}

	if res.WorkbookErr != nil {
		row("Workbook", errorStyle.Render("failed: "+res.WorkbookErr.Error()))
	} else {
		row("Workbook", fmt.Sprintf("%s (%d sheets)", res.Workbook.Path, len(res.Workbook.Sheets)))
	}
	if res.ArtifactErr != nil {
		row("Artifacts", errorStyle.Render(res.ArtifactErr.Error()))
	} else if res.CSVPath != "" || res.ParquetPath != "" {
		row("Artifacts", strings.TrimSpace(res.CSVPath+" "+res.ParquetPath))
	}
	row("Duration", res.Duration.Round(time.Millisecond).String())
	return summaryBoxStyle.Render(strings.TrimRight(b.String(), "\n"))
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
