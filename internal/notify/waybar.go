package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/rbright/timetree-digest/internal/report"
)

const waybarIcon = "📅"

// WaybarOutput is the JSON line a Waybar custom module reads.
type WaybarOutput struct {
	Text    string `json:"text"`
	Tooltip string `json:"tooltip"`
	Class   string `json:"class"`
}

// Waybar writes the daily report as a Waybar status line. Weekly reports
// are ignored; the bar only shows today and tomorrow.
type Waybar struct {
	Out io.Writer
}

func (w Waybar) Name() string {
	return "waybar"
}

func (w Waybar) Send(ctx context.Context, r report.Report) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if r.Kind == report.KindWeekly {
		return nil
	}
	return writeWaybar(w.Out, RenderWaybar(r))
}

// RenderWaybar shows today's count in the bar and the full report in the
// tooltip.
func RenderWaybar(r report.Report) WaybarOutput {
	today, tomorrow := 0, 0
	for _, bucket := range r.Buckets {
		switch bucket.Label {
		case report.LabelToday:
			today = len(bucket.Events)
		case report.LabelTomorrow:
			tomorrow = len(bucket.Events)
		}
	}

	classes := []string{"timetree"}
	switch {
	case today > 0:
		classes = append(classes, "today")
	case tomorrow > 0:
		classes = append(classes, "tomorrow")
	default:
		classes = append(classes, "empty")
	}

	return WaybarOutput{
		Text:    fmt.Sprintf("%s %d", waybarIcon, today),
		Tooltip: r.Text(),
		Class:   strings.Join(classes, " "),
	}
}

// WaybarError writes the failure state so the bar shows that the last
// refresh failed instead of an empty day.
func WaybarError(out io.Writer, message string) error {
	return writeWaybar(out, WaybarOutput{
		Text:    waybarIcon + " --",
		Tooltip: strings.TrimSpace(message),
		Class:   "timetree error",
	})
}

func writeWaybar(out io.Writer, output WaybarOutput) error {
	payload, err := json.Marshal(output)
	if err != nil {
		return fmt.Errorf("marshal waybar output: %w", err)
	}
	if _, err := out.Write(append(payload, '\n')); err != nil {
		return fmt.Errorf("write waybar output: %w", err)
	}
	return nil
}
