package report

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rbright/timetree-digest/internal/timetree"
)

const (
	LabelToday    = "today"
	LabelTomorrow = "tomorrow"

	EmptyMarker     = "予定はありません"
	WeekEmptyMarker = "予定はありません 🎉"

	allDayMarker   = "終日"
	locationMarker = "📍"
	bullet         = "•"
	timeLayout     = "15:04"
)

var weekdays = [...]string{"日", "月", "火", "水", "木", "金", "土"}

type Kind string

const (
	KindDaily  Kind = "daily"
	KindWeekly Kind = "weekly"
)

// Bucket is the events of one calendar date, already in display order.
type Bucket struct {
	Label   string
	Heading string
	Date    time.Time
	Events  []timetree.Event
}

func (b Bucket) Empty() bool {
	return len(b.Events) == 0
}

// Lines renders the bucket body. An empty bucket renders EmptyMarker.
func (b Bucket) Lines() []string {
	if b.Empty() {
		return []string{EmptyMarker}
	}
	lines := make([]string, 0, len(b.Events))
	for _, event := range b.Events {
		lines = append(lines, FormatEvent(event)...)
	}
	return lines
}

func (b Bucket) Body() string {
	return strings.Join(b.Lines(), "\n")
}

func (b Bucket) Text() string {
	return b.Heading + "\n" + b.Body()
}

type Report struct {
	Kind        Kind
	Title       string
	GeneratedAt time.Time
	Buckets     []Bucket
}

func (r Report) Text() string {
	if r.Kind != KindWeekly {
		return Render(r.Buckets)
	}
	if len(r.Buckets) == 0 {
		return r.Title + "\n" + WeekEmptyMarker
	}
	return r.Title + "\n\n" + Render(r.Buckets)
}

// Daily builds the today/tomorrow report relative to now.
func Daily(events []timetree.Event, now time.Time) Report {
	today := dayStart(now)
	return Report{
		Kind:        KindDaily,
		GeneratedAt: now,
		Buckets:     Build(events, today, today.AddDate(0, 0, 1)),
	}
}

// Build returns the today and tomorrow buckets, in that order. It never
// drops a bucket; an empty one carries no events.
func Build(events []timetree.Event, today, tomorrow time.Time) []Bucket {
	return []Bucket{
		newBucket(LabelToday, "📅 今日の予定 - "+FormatDate(today), today, events),
		newBucket(LabelTomorrow, "📅 明日の予定 - "+FormatDate(tomorrow), tomorrow, events),
	}
}

// Weekly groups events over days consecutive dates from start. Dates
// without events are left out.
func Weekly(events []timetree.Event, start time.Time, days int, now time.Time) Report {
	first := dayStart(start)
	last := first.AddDate(0, 0, max(days, 1)-1)

	buckets := make([]Bucket, 0, days)
	for i := 0; i < days; i++ {
		date := first.AddDate(0, 0, i)
		bucket := newBucket(date.Format(time.DateOnly), "🗓️ "+FormatDate(date), date, events)
		if bucket.Empty() {
			continue
		}
		buckets = append(buckets, bucket)
	}

	return Report{
		Kind:        KindWeekly,
		Title:       fmt.Sprintf("📅 今週の予定 (%d/%d 〜 %d/%d)", first.Month(), first.Day(), last.Month(), last.Day()),
		GeneratedAt: now,
		Buckets:     buckets,
	}
}

func newBucket(label, heading string, date time.Time, events []timetree.Event) Bucket {
	day := civil(date)
	selected := make([]timetree.Event, 0)
	for _, event := range events {
		if occursOn(event, day) {
			selected = append(selected, event)
		}
	}
	SortEvents(selected)

	return Bucket{
		Label:   label,
		Heading: heading,
		Date:    dayStart(date),
		Events:  selected,
	}
}

// SortEvents puts all-day events first in their existing order, then timed
// events by start time, breaking ties by title.
func SortEvents(events []timetree.Event) {
	sort.SliceStable(events, func(i, j int) bool {
		a, b := events[i], events[j]
		if a.AllDay != b.AllDay {
			return a.AllDay
		}
		if a.AllDay {
			return false
		}
		if !a.Start.Equal(b.Start) {
			return a.Start.Before(b.Start)
		}
		return a.Title < b.Title
	})
}

func occursOn(event timetree.Event, day int) bool {
	if !event.AllDay {
		return civil(event.Start) == day
	}
	return civil(event.Start) <= day && day <= civil(event.LastDay())
}

// FormatEvent returns the display lines of one event: the event line and,
// when a location is set, an indented location line.
func FormatEvent(event timetree.Event) []string {
	var line string
	switch {
	case event.AllDay:
		line = fmt.Sprintf("%s %s %s", bullet, allDayMarker, event.Title)
	case event.End != nil:
		line = fmt.Sprintf("%s %s–%s %s", bullet, event.Start.Format(timeLayout), event.End.Format(timeLayout), event.Title)
	default:
		line = fmt.Sprintf("%s %s %s", bullet, event.Start.Format(timeLayout), event.Title)
	}

	if strings.TrimSpace(event.Location) == "" {
		return []string{line}
	}
	return []string{line, fmt.Sprintf("  %s %s", locationMarker, event.Location)}
}

// FormatDate renders a date as e.g. "10月18日 (日)".
func FormatDate(t time.Time) string {
	return fmt.Sprintf("%d月%d日 (%s)", t.Month(), t.Day(), weekdays[t.Weekday()])
}

// Render joins bucket texts with a blank line between buckets.
func Render(buckets []Bucket) string {
	parts := make([]string, 0, len(buckets))
	for _, bucket := range buckets {
		parts = append(parts, bucket.Text())
	}
	return strings.Join(parts, "\n\n")
}

func civil(t time.Time) int {
	y, m, d := t.Date()
	return y*10000 + int(m)*100 + d
}

func dayStart(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
