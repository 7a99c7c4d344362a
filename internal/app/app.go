package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/rbright/timetree-digest/internal/notify"
	"github.com/rbright/timetree-digest/internal/report"
	"github.com/rbright/timetree-digest/internal/timetree"
)

const (
	dailyDays  = 2
	weeklyDays = 7
)

type Request struct {
	Credentials    timetree.Credentials
	CalendarID     string
	WeeklyOnMonday bool
}

type Result struct {
	Calendar timetree.Calendar
	Reports  []report.Report
	Skipped  int
}

// Runner drives one sequential pass: authenticate, resolve the calendar,
// fetch, build. It holds no session between calls.
type Runner struct {
	backend  timetree.Backend
	logger   *slog.Logger
	location *time.Location
	now      func() time.Time
}

func New(backend timetree.Backend, logger *slog.Logger, location *time.Location) *Runner {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if location == nil {
		location = time.Local
	}
	return &Runner{
		backend:  backend,
		logger:   logger,
		location: location,
		now:      time.Now,
	}
}

// ListCalendars authenticates and lists calendars without fetching events.
func (r *Runner) ListCalendars(ctx context.Context, creds timetree.Credentials) ([]timetree.Calendar, error) {
	session, err := r.backend.Authenticate(ctx, creds)
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}

	calendars, err := r.backend.ListCalendars(ctx, session)
	if err != nil {
		return nil, fmt.Errorf("list calendars: %w", err)
	}
	return calendars, nil
}

// Events fetches days consecutive dates starting today from the selected
// calendar.
func (r *Runner) Events(ctx context.Context, creds timetree.Credentials, calendarID string, days int) (timetree.Calendar, timetree.EventBatch, error) {
	return r.events(ctx, creds, calendarID, r.now(), days)
}

// events fetches days dates starting at the local date of from. Callers read
// the clock once so the fetch window and the report buckets agree.
func (r *Runner) events(ctx context.Context, creds timetree.Credentials, calendarID string, from time.Time, days int) (timetree.Calendar, timetree.EventBatch, error) {
	if days < 1 {
		days = 1
	}

	session, err := r.backend.Authenticate(ctx, creds)
	if err != nil {
		return timetree.Calendar{}, timetree.EventBatch{}, fmt.Errorf("login: %w", err)
	}

	calendars, err := r.backend.ListCalendars(ctx, session)
	if err != nil {
		return timetree.Calendar{}, timetree.EventBatch{}, fmt.Errorf("list calendars: %w", err)
	}

	calendar, err := timetree.SelectCalendar(calendars, calendarID)
	if err != nil {
		return timetree.Calendar{}, timetree.EventBatch{}, fmt.Errorf("select calendar: %w", err)
	}
	r.logger.InfoContext(ctx, "using calendar", "calendar_id", calendar.ID, "calendar_name", calendar.Name, "configured", calendarID != "")

	today := r.dayStart(from)
	batch, err := r.backend.FetchEvents(ctx, session, calendar, today, today.AddDate(0, 0, days-1))
	if err != nil {
		return timetree.Calendar{}, timetree.EventBatch{}, fmt.Errorf("fetch events: %w", err)
	}

	for _, skipped := range batch.Skipped {
		r.logger.WarnContext(ctx, "skipped malformed event", "calendar_id", calendar.ID, "index", skipped.Index, "record_id", skipped.RecordID, "reason", skipped.Error())
	}

	return calendar, batch, nil
}

// Build produces the reports for this run without delivering them. On
// Mondays with WeeklyOnMonday set, a weekly report follows the daily one.
func (r *Runner) Build(ctx context.Context, req Request) (Result, error) {
	now := r.now().In(r.location)
	weekly := req.WeeklyOnMonday && now.Weekday() == time.Monday

	days := dailyDays
	if weekly {
		days = weeklyDays
	}

	calendar, batch, err := r.events(ctx, req.Credentials, req.CalendarID, now, days)
	if err != nil {
		return Result{}, err
	}

	reports := []report.Report{report.Daily(batch.Events, now)}
	if weekly {
		reports = append(reports, report.Weekly(batch.Events, now, weeklyDays, now))
	}

	today, tomorrow := len(reports[0].Buckets[0].Events), len(reports[0].Buckets[1].Events)
	r.logger.InfoContext(ctx, "report built", "today", today, "tomorrow", tomorrow, "weekly", weekly, "skipped", len(batch.Skipped))

	return Result{Calendar: calendar, Reports: reports, Skipped: len(batch.Skipped)}, nil
}

// Run builds the reports and hands each one to sink.
func (r *Runner) Run(ctx context.Context, req Request, sink notify.Sink) (Result, error) {
	result, err := r.Build(ctx, req)
	if err != nil {
		return Result{}, err
	}

	for _, rep := range result.Reports {
		if err := sink.Send(ctx, rep); err != nil {
			return result, fmt.Errorf("deliver %s report: %w", rep.Kind, err)
		}
		r.logger.InfoContext(ctx, "report delivered", "kind", rep.Kind, "sink", sink.Name())
	}
	return result, nil
}

func (r *Runner) dayStart(t time.Time) time.Time {
	y, m, d := t.In(r.location).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, r.location)
}
