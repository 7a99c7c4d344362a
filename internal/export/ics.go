package export

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	ics "github.com/arran4/golang-ical"

	"github.com/rbright/timetree-digest/internal/timetree"
)

const productID = "-//rbright//timetree-digest//JA"

// ICS renders events as an iCalendar document. All-day events get DATE
// values with an exclusive DTEND; timed events are written in UTC.
func ICS(calendar timetree.Calendar, events []timetree.Event, stamp time.Time) string {
	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId(productID)
	if name := strings.TrimSpace(calendar.Name); name != "" {
		cal.SetXWRCalName(name)
	}

	for idx, item := range events {
		event := cal.AddEvent(eventUID(calendar, item, idx))
		event.SetDtStampTime(stamp.UTC())
		event.SetSummary(item.Title)
		if strings.TrimSpace(item.Location) != "" {
			event.SetLocation(item.Location)
		}

		if item.AllDay {
			event.SetAllDayStartAt(item.Start)
			event.SetAllDayEndAt(item.LastDay().AddDate(0, 0, 1))
			continue
		}

		event.SetStartAt(item.Start)
		if item.End != nil {
			event.SetEndAt(*item.End)
		}
	}

	return cal.Serialize()
}

func eventUID(calendar timetree.Calendar, event timetree.Event, idx int) string {
	if id := strings.TrimSpace(event.ID); id != "" {
		return id + "@timetreeapp.com"
	}
	return fmt.Sprintf("%s-%d-%d@timetree-digest", calendar.ID, event.Start.Unix(), idx)
}

// WriteFile replaces path atomically with content.
func WriteFile(path string, content []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create export dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(content); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
