package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/rbright/timetree-digest/internal/app"
	"github.com/rbright/timetree-digest/internal/config"
	"github.com/rbright/timetree-digest/internal/notify"
)

// session is everything one command needs after config and flags are
// resolved.
type session struct {
	cfg    config.Runtime
	logger *slog.Logger
	runner *app.Runner
}

func (a *App) prepare(ctx context.Context, opts *options, deliver bool) (session, error) {
	cfg, err := a.LoadConfig()
	if err != nil {
		return session{}, &configError{err: err}
	}

	if opts.calendarID != "" {
		cfg.CalendarID = opts.calendarID
	}
	if opts.sinks != "" {
		sinks, err := config.ParseSinks(opts.sinks)
		if err != nil {
			return session{}, &configError{err: err}
		}
		cfg.Sinks = sinks
	}

	if cfg.Password == "" && cfg.Email != "" && a.IsInteractive != nil && a.IsInteractive() {
		password, err := a.promptPassword(ctx)
		if err != nil {
			return session{}, err
		}
		cfg.Password = password
	}

	if err := cfg.Validate(deliver); err != nil {
		return session{}, &configError{err: err}
	}

	logger := newLogger(a.Stderr, cfg.LogLevel, opts.verbose)
	backend := a.NewBackend(cfg, logger)

	return session{
		cfg:    cfg,
		logger: logger,
		runner: app.New(backend, logger, cfg.Location),
	}, nil
}

func (a *App) promptPassword(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	fmt.Fprint(a.Stderr, "TimeTree password: ")
	password, err := a.ReadPassword()
	fmt.Fprintln(a.Stderr)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return password, nil
}

func newLogger(w io.Writer, level string, verbose bool) *slog.Logger {
	lvl := slog.LevelInfo
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	}
	if verbose {
		lvl = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
}

// runTimeout bounds a whole command: login, calendar listing and the event
// fetch each get one request timeout, plus slack for delivery.
func runTimeout(requestTimeout time.Duration) time.Duration {
	timeout := 3*requestTimeout + 5*time.Second
	if timeout < 15*time.Second {
		timeout = 15 * time.Second
	}
	return timeout
}

// buildSink maps the configured sink names to sinks. Waybar output goes to
// waybarOut so the caller decides whether it is shown.
func (a *App) buildSink(cfg config.Runtime, waybarOut io.Writer) notify.Sink {
	sinks := make(notify.Multi, 0, len(cfg.Sinks))
	for _, name := range cfg.Sinks {
		switch name {
		case config.SinkDiscord:
			sinks = append(sinks, notify.Discord{
				WebhookURL: cfg.WebhookURL,
				Username:   cfg.DiscordUsername,
				Timeout:    cfg.Timeout,
			})
		case config.SinkDesktop:
			sinks = append(sinks, notify.Desktop{ExpireTimeout: -1})
		case config.SinkStdout:
			sinks = append(sinks, notify.Writer{Out: a.Stdout})
		case config.SinkWaybar:
			sinks = append(sinks, notify.Waybar{Out: waybarOut})
		}
	}
	if len(sinks) == 1 {
		return sinks[0]
	}
	return sinks
}
