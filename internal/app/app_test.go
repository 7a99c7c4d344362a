package app

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rbright/timetree-digest/internal/report"
	"github.com/rbright/timetree-digest/internal/timetree"
)

var jst = time.FixedZone("JST", 9*60*60)

type fakeBackend struct {
	authErr   error
	calendars []timetree.Calendar
	listErr   error
	batch     timetree.EventBatch
	fetchErr  error

	calls     []string
	fetchedID string
	from, to  time.Time
}

func (f *fakeBackend) Authenticate(_ context.Context, _ timetree.Credentials) (timetree.Session, error) {
	f.calls = append(f.calls, "auth")
	if f.authErr != nil {
		return timetree.Session{}, f.authErr
	}
	return timetree.NewSession("token", time.Now()), nil
}

func (f *fakeBackend) ListCalendars(_ context.Context, _ timetree.Session) ([]timetree.Calendar, error) {
	f.calls = append(f.calls, "list")
	return f.calendars, f.listErr
}

func (f *fakeBackend) FetchEvents(_ context.Context, _ timetree.Session, calendar timetree.Calendar, from, to time.Time) (timetree.EventBatch, error) {
	f.calls = append(f.calls, "fetch")
	f.fetchedID = calendar.ID
	f.from, f.to = from, to
	return f.batch, f.fetchErr
}

type recordingSink struct {
	reports []report.Report
	err     error
}

func (s *recordingSink) Name() string { return "recording" }

func (s *recordingSink) Send(_ context.Context, r report.Report) error {
	if s.err != nil {
		return s.err
	}
	s.reports = append(s.reports, r)
	return nil
}

func newTestRunner(backend timetree.Backend, now time.Time, logs *bytes.Buffer) *Runner {
	var logger *slog.Logger
	if logs != nil {
		logger = slog.New(slog.NewTextHandler(logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	runner := New(backend, logger, jst)
	runner.now = func() time.Time { return now }
	return runner
}

var creds = timetree.Credentials{Email: "user@example.com", Password: "hunter2"}

func TestRun_DeliversDailyReport(t *testing.T) {
	t.Parallel()

	dentistStart := time.Date(2026, 10, 18, 10, 30, 0, 0, jst)
	dentistEnd := dentistStart.Add(30 * time.Minute)
	backend := &fakeBackend{
		calendars: []timetree.Calendar{{ID: "c1", Name: "Family"}, {ID: "c2", Name: "Work"}},
		batch: timetree.EventBatch{Events: []timetree.Event{
			{ID: "e1", CalendarID: "c2", Title: "Dentist", Start: dentistStart, End: &dentistEnd},
		}},
	}
	sink := &recordingSink{}
	var logs bytes.Buffer
	now := time.Date(2026, 10, 18, 7, 0, 0, 0, jst) // Sunday

	result, err := newTestRunner(backend, now, &logs).Run(context.Background(), Request{Credentials: creds, CalendarID: "c2", WeeklyOnMonday: true}, sink)
	require.NoError(t, err)

	assert.Equal(t, []string{"auth", "list", "fetch"}, backend.calls)
	assert.Equal(t, "c2", backend.fetchedID)
	assert.True(t, backend.from.Equal(time.Date(2026, 10, 18, 0, 0, 0, 0, jst)))
	assert.True(t, backend.to.Equal(time.Date(2026, 10, 19, 0, 0, 0, 0, jst)))

	assert.Equal(t, "Work", result.Calendar.Name)
	require.Len(t, sink.reports, 1)
	daily := sink.reports[0]
	assert.Equal(t, report.KindDaily, daily.Kind)
	require.Len(t, daily.Buckets, 2)
	assert.Len(t, daily.Buckets[0].Events, 1)
	assert.True(t, daily.Buckets[1].Empty())

	assert.NotContains(t, logs.String(), "hunter2")
	assert.NotContains(t, logs.String(), "user@example.com")
}

func TestRun_MondayAddsWeeklyReport(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{
		calendars: []timetree.Calendar{{ID: "c1", Name: "Family"}},
		batch: timetree.EventBatch{Events: []timetree.Event{
			{ID: "e1", Title: "Trash day", Start: time.Date(2026, 10, 21, 0, 0, 0, 0, jst), AllDay: true},
		}},
	}
	sink := &recordingSink{}
	now := time.Date(2026, 10, 19, 7, 0, 0, 0, jst) // Monday

	result, err := newTestRunner(backend, now, nil).Run(context.Background(), Request{Credentials: creds, WeeklyOnMonday: true}, sink)
	require.NoError(t, err)

	assert.True(t, backend.to.Equal(time.Date(2026, 10, 25, 0, 0, 0, 0, jst)))
	require.Len(t, result.Reports, 2)
	require.Len(t, sink.reports, 2)
	weekly := sink.reports[1]
	assert.Equal(t, report.KindWeekly, weekly.Kind)
	assert.Equal(t, "📅 今週の予定 (10/19 〜 10/25)", weekly.Title)
	require.Len(t, weekly.Buckets, 1)
	assert.Equal(t, "2026-10-21", weekly.Buckets[0].Label)
}

func TestRun_MondayWithoutWeeklyFlag(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{calendars: []timetree.Calendar{{ID: "c1"}}}
	sink := &recordingSink{}
	now := time.Date(2026, 10, 19, 7, 0, 0, 0, jst)

	_, err := newTestRunner(backend, now, nil).Run(context.Background(), Request{Credentials: creds}, sink)
	require.NoError(t, err)
	require.Len(t, sink.reports, 1)
	assert.True(t, backend.to.Equal(time.Date(2026, 10, 20, 0, 0, 0, 0, jst)))
}

func TestRun_FailuresNeverDeliver(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		backend *fakeBackend
		calls   []string
		check   func(error) bool
	}{
		{
			name:    "login_rejected",
			backend: &fakeBackend{authErr: &timetree.AuthError{Status: 401}},
			calls:   []string{"auth"},
			check:   timetree.IsAuth,
		},
		{
			name:    "list_unreachable",
			backend: &fakeBackend{listErr: &timetree.NetworkError{Op: "list calendars", Status: 503}},
			calls:   []string{"auth", "list"},
			check:   timetree.IsNetwork,
		},
		{
			name:    "calendar_missing",
			backend: &fakeBackend{calendars: []timetree.Calendar{{ID: "c1"}}},
			calls:   []string{"auth", "list"},
			check:   timetree.IsNotFound,
		},
		{
			name: "fetch_malformed",
			backend: &fakeBackend{
				calendars: []timetree.Calendar{{ID: "missing"}},
				fetchErr:  &timetree.ParseError{Index: -1, Reason: "invalid JSON"},
			},
			calls: []string{"auth", "list", "fetch"},
			check: timetree.IsParse,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			sink := &recordingSink{}
			now := time.Date(2026, 10, 18, 7, 0, 0, 0, jst)
			_, err := newTestRunner(tc.backend, now, nil).Run(context.Background(), Request{Credentials: creds, CalendarID: "missing"}, sink)
			require.Error(t, err)
			assert.True(t, tc.check(err), "unexpected error kind: %v", err)
			assert.Equal(t, tc.calls, tc.backend.calls)
			assert.Empty(t, sink.reports)
		})
	}
}

func TestRun_SkippedRecordsAreLogged(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{
		calendars: []timetree.Calendar{{ID: "c1"}},
		batch: timetree.EventBatch{
			Events:  []timetree.Event{{ID: "ok", Title: "Fine", Start: time.Date(2026, 10, 18, 0, 0, 0, 0, jst), AllDay: true}},
			Skipped: []*timetree.ParseError{{Index: 1, RecordID: "bad", Reason: "missing start_at"}},
		},
	}
	sink := &recordingSink{}
	var logs bytes.Buffer

	result, err := newTestRunner(backend, time.Date(2026, 10, 18, 7, 0, 0, 0, jst), &logs).Run(context.Background(), Request{Credentials: creds}, sink)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Skipped)
	assert.Len(t, sink.reports[0].Buckets[0].Events, 1)
	assert.Contains(t, logs.String(), "skipped malformed event")
	assert.Contains(t, logs.String(), "record_id=bad")
}

func TestRun_SinkFailure(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{calendars: []timetree.Calendar{{ID: "c1"}}}
	sink := &recordingSink{err: errors.New("webhook returned 429")}

	_, err := newTestRunner(backend, time.Date(2026, 10, 18, 7, 0, 0, 0, jst), nil).Run(context.Background(), Request{Credentials: creds}, sink)
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "deliver daily report"))
}

func TestListCalendars_SkipsEventFetch(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{calendars: []timetree.Calendar{{ID: "c1", Name: "Family"}, {ID: "c2", Name: "Work"}}}

	calendars, err := newTestRunner(backend, time.Now(), nil).ListCalendars(context.Background(), creds)
	require.NoError(t, err)
	assert.Len(t, calendars, 2)
	assert.Equal(t, []string{"auth", "list"}, backend.calls)
}

func TestEvents_ClampsDays(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{calendars: []timetree.Calendar{{ID: "c1"}}}
	now := time.Date(2026, 10, 18, 23, 59, 0, 0, jst)

	_, _, err := newTestRunner(backend, now, nil).Events(context.Background(), creds, "", 0)
	require.NoError(t, err)
	assert.True(t, backend.from.Equal(backend.to))
	assert.True(t, backend.from.Equal(time.Date(2026, 10, 18, 0, 0, 0, 0, jst)))
}

func TestBuild_ClockReadOnceAcrossMidnight(t *testing.T) {
	t.Parallel()

	lateStart := time.Date(2026, 10, 20, 23, 0, 0, 0, jst)
	lateEnd := lateStart.Add(30 * time.Minute)
	backend := &fakeBackend{
		calendars: []timetree.Calendar{{ID: "c1"}},
		batch: timetree.EventBatch{Events: []timetree.Event{
			{ID: "late", Title: "Late call", Start: lateStart, End: &lateEnd},
		}},
	}

	runner := newTestRunner(backend, time.Time{}, nil)
	ticks := []time.Time{
		time.Date(2026, 10, 20, 23, 59, 59, 900_000_000, jst),
		time.Date(2026, 10, 21, 0, 0, 0, 100_000_000, jst),
	}
	calls := 0
	runner.now = func() time.Time {
		tick := ticks[min(calls, len(ticks)-1)]
		calls++
		return tick
	}

	result, err := runner.Build(context.Background(), Request{Credentials: creds})
	require.NoError(t, err)

	assert.True(t, backend.from.Equal(time.Date(2026, 10, 20, 0, 0, 0, 0, jst)), "fetch started at %s", backend.from)
	assert.True(t, backend.to.Equal(time.Date(2026, 10, 21, 0, 0, 0, 0, jst)), "fetch ended at %s", backend.to)
	daily := result.Reports[0]
	require.Len(t, daily.Buckets[0].Events, 1)
	assert.Equal(t, "Late call", daily.Buckets[0].Events[0].Title)
}
