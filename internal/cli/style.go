package cli

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/rbright/timetree-digest/internal/report"
	"github.com/rbright/timetree-digest/internal/timetree"
)

var (
	colorAccent = lipgloss.Color("#5865F2")
	colorGreen  = lipgloss.Color("#57F287")
	colorDim    = lipgloss.Color("#928374")

	styleHeader = lipgloss.NewStyle().Foreground(colorAccent).Bold(true)
	styleEmpty  = lipgloss.NewStyle().Foreground(colorGreen)
	styleDim    = lipgloss.NewStyle().Foreground(colorDim)
)

func renderCalendars(calendars []timetree.Calendar, selectedID string) string {
	var b strings.Builder
	b.WriteString(styleHeader.Render("TimeTree calendars"))
	b.WriteString("\n")
	if len(calendars) == 0 {
		b.WriteString(styleDim.Render("no calendars"))
		b.WriteString("\n")
		return b.String()
	}
	for idx, calendar := range calendars {
		line := fmt.Sprintf("%d. %s (ID: %s)", idx+1, calendar.Name, calendar.ID)
		if selectedID != "" && calendar.ID == selectedID {
			line += " " + styleEmpty.Render("*")
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String()
}

func renderReport(r report.Report) string {
	var b strings.Builder
	if r.Title != "" {
		b.WriteString(styleHeader.Render(r.Title))
		b.WriteString("\n")
		if len(r.Buckets) == 0 {
			b.WriteString(styleEmpty.Render(report.WeekEmptyMarker))
			return b.String()
		}
		b.WriteString("\n")
	}

	for idx, bucket := range r.Buckets {
		if idx > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(styleHeader.Render(bucket.Heading))
		b.WriteString("\n")
		if bucket.Empty() {
			b.WriteString(styleEmpty.Render(report.EmptyMarker))
			continue
		}
		b.WriteString(bucket.Body())
	}
	return b.String()
}
