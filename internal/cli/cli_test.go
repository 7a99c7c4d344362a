package cli

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rbright/timetree-digest/internal/config"
	"github.com/rbright/timetree-digest/internal/report"
	"github.com/rbright/timetree-digest/internal/timetree"
)

type fakeBackend struct {
	authErr   error
	calendars []timetree.Calendar
	events    []timetree.Event

	creds   timetree.Credentials
	fetched bool
}

func (f *fakeBackend) Authenticate(_ context.Context, creds timetree.Credentials) (timetree.Session, error) {
	f.creds = creds
	if f.authErr != nil {
		return timetree.Session{}, f.authErr
	}
	return timetree.NewSession("token", time.Now()), nil
}

func (f *fakeBackend) ListCalendars(context.Context, timetree.Session) ([]timetree.Calendar, error) {
	return f.calendars, nil
}

func (f *fakeBackend) FetchEvents(context.Context, timetree.Session, timetree.Calendar, time.Time, time.Time) (timetree.EventBatch, error) {
	f.fetched = true
	return timetree.EventBatch{Events: f.events}, nil
}

type harness struct {
	app     *App
	backend *fakeBackend
	stdout  *bytes.Buffer
	stderr  *bytes.Buffer
	cfg     config.Runtime
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		backend: &fakeBackend{calendars: []timetree.Calendar{{ID: "c1", Name: "Family"}, {ID: "c2", Name: "Work"}}},
		stdout:  &bytes.Buffer{},
		stderr:  &bytes.Buffer{},
		cfg: config.Runtime{
			Email:          "user@example.com",
			Password:       "hunter2",
			WebhookURL:     "https://discord.example/webhook",
			Timeout:        time.Second,
			Location:       time.UTC,
			Sinks:          []string{config.SinkDiscord},
			WeeklyOnMonday: false,
			LogLevel:       "info",
		},
	}
	h.app = &App{
		LoadConfig: func() (config.Runtime, error) { return h.cfg, nil },
		NewBackend: func(config.Runtime, *slog.Logger) timetree.Backend { return h.backend },
		Stdout:     h.stdout,
		Stderr:     h.stderr,
		IsInteractive: func() bool {
			return false
		},
		ReadPassword: func() (string, error) {
			return "", errors.New("no terminal")
		},
	}
	return h
}

func (h *harness) execute(args ...string) int {
	return Execute(context.Background(), h.app, args)
}

func TestCalendars_ListsNumberedCalendars(t *testing.T) {
	t.Parallel()

	for _, args := range [][]string{{"calendars"}, {"list"}, {"--list"}, {"-l"}} {
		args := args
		t.Run(strings.Join(args, " "), func(t *testing.T) {
			t.Parallel()

			h := newHarness(t)
			h.cfg.WebhookURL = ""
			code := h.execute(args...)

			require.Equal(t, ExitOK, code, h.stderr.String())
			assert.Contains(t, h.stdout.String(), "1. Family (ID: c1)")
			assert.Contains(t, h.stdout.String(), "2. Work (ID: c2)")
			assert.False(t, h.backend.fetched)
		})
	}
}

func TestRun_StdoutSink(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.backend.events = []timetree.Event{
		{ID: "e1", Title: "Dentist", Start: time.Now().UTC().Truncate(24 * time.Hour), AllDay: true},
	}

	code := h.execute("run", "--sink", "stdout", "--calendar", "c2")

	require.Equal(t, ExitOK, code, h.stderr.String())
	out := h.stdout.String()
	assert.Contains(t, out, "📅 今日の予定")
	assert.Contains(t, out, "• 終日 Dentist")
	assert.Contains(t, out, "📅 明日の予定")
	assert.Contains(t, out, report.EmptyMarker)
	assert.NotContains(t, h.stderr.String(), "hunter2")
}

func TestRun_DefaultsToRunWithoutSubcommand(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	code := h.execute("--sink", "stdout")

	require.Equal(t, ExitOK, code, h.stderr.String())
	assert.True(t, h.backend.fetched)
	assert.Contains(t, h.stdout.String(), "📅 今日の予定")
}

func TestPreview_PrintsWithoutWebhook(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.cfg.WebhookURL = ""

	code := h.execute("preview")

	require.Equal(t, ExitOK, code, h.stderr.String())
	assert.Contains(t, h.stdout.String(), "Family (ID: c1)")
	assert.Contains(t, h.stdout.String(), "📅 明日の予定")
}

func TestExecute_FailureHints(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		args []string
		prep func(*harness)
		code int
		hint string
	}{
		{
			name: "auth",
			args: []string{"run"},
			prep: func(h *harness) { h.backend.authErr = &timetree.AuthError{Status: 401, Message: "invalid"} },
			code: ExitFailure,
			hint: "check TIMETREE_EMAIL and TIMETREE_PASSWORD",
		},
		{
			name: "calendar_not_found",
			args: []string{"preview", "--calendar", "nope"},
			code: ExitFailure,
			hint: "run 'timetree-digest calendars'",
		},
		{
			name: "network",
			args: []string{"calendars"},
			prep: func(h *harness) {
				h.backend.authErr = &timetree.NetworkError{Op: "login", Err: errors.New("connection refused")}
			},
			code: ExitFailure,
			hint: "check the network connection",
		},
		{
			name: "missing_settings",
			args: []string{"run"},
			prep: func(h *harness) {
				h.cfg.Email = ""
				h.cfg.Password = ""
				h.cfg.WebhookURL = ""
			},
			code: ExitConfig,
			hint: "TIMETREE_EMAIL, TIMETREE_PASSWORD, DISCORD_WEBHOOK_URL",
		},
		{
			name: "bad_sink",
			args: []string{"run", "--sink", "slack"},
			code: ExitConfig,
		},
		{
			name: "unknown_flag",
			args: []string{"run", "--nope"},
			code: ExitConfig,
		},
		{
			name: "bad_export_days",
			args: []string{"export", "--days", "0"},
			code: ExitConfig,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			h := newHarness(t)
			if tc.prep != nil {
				tc.prep(h)
			}

			code := h.execute(tc.args...)

			assert.Equal(t, tc.code, code, h.stderr.String())
			assert.Contains(t, h.stderr.String(), "Error:")
			if tc.hint != "" {
				assert.Contains(t, h.stderr.String(), tc.hint)
			}
			assert.NotContains(t, h.stdout.String(), report.EmptyMarker)
		})
	}
}

func TestPrepare_PromptsForPassword(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.cfg.Password = ""
	h.app.IsInteractive = func() bool { return true }
	h.app.ReadPassword = func() (string, error) { return "typed-secret", nil }

	code := h.execute("calendars")

	require.Equal(t, ExitOK, code, h.stderr.String())
	assert.Equal(t, "typed-secret", h.backend.creds.Password)
	assert.Contains(t, h.stderr.String(), "TimeTree password:")
	assert.NotContains(t, h.stderr.String(), "typed-secret")
}

func TestPrepare_NoPromptWithoutTerminal(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.cfg.Password = ""

	code := h.execute("calendars")

	assert.Equal(t, ExitConfig, code)
	assert.NotContains(t, h.stderr.String(), "TimeTree password:")
	assert.Empty(t, h.backend.creds.Email)
}

func TestExport_WritesICSFile(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.backend.events = []timetree.Event{
		{ID: "e1", Title: "Dentist", Start: time.Date(2026, 10, 18, 0, 0, 0, 0, time.UTC), AllDay: true},
	}
	path := filepath.Join(t.TempDir(), "family.ics")

	code := h.execute("export", "--days", "3", "--out", path)

	require.Equal(t, ExitOK, code, h.stderr.String())
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "BEGIN:VCALENDAR")
	assert.Contains(t, string(raw), "SUMMARY:Dentist")
	assert.Empty(t, h.stdout.String())
}

func TestRunTimeout(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 15*time.Second, runTimeout(time.Second))
	assert.Equal(t, 35*time.Second, runTimeout(10*time.Second))
}

func TestRun_WaybarSink(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	code := h.execute("--sink", "waybar")
	require.Equal(t, ExitOK, code, h.stderr.String())
	assert.Contains(t, h.stdout.String(), `"text":"📅 0"`)
	assert.Contains(t, h.stdout.String(), `"class":"timetree empty"`)

	failing := newHarness(t)
	failing.backend.authErr = &timetree.AuthError{Status: 401}
	code = failing.execute("run", "--sink", "waybar")
	assert.Equal(t, ExitFailure, code)
	assert.Contains(t, failing.stdout.String(), `"class":"timetree error"`)
}

func TestRun_WaybarWithFailingDiscordWritesOnlyErrorLine(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	t.Cleanup(server.Close)

	h := newHarness(t)
	h.cfg.WebhookURL = server.URL

	code := h.execute("run", "--sink", "waybar,discord")

	assert.Equal(t, ExitFailure, code)
	lines := strings.Split(strings.TrimSpace(h.stdout.String()), "\n")
	require.Len(t, lines, 1, h.stdout.String())
	assert.Contains(t, lines[0], `"class":"timetree error"`)
	assert.NotContains(t, lines[0], `"class":"timetree empty"`)
}
