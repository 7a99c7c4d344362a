package cli

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/rbright/timetree-digest/internal/app"
	"github.com/rbright/timetree-digest/internal/config"
	"github.com/rbright/timetree-digest/internal/export"
	"github.com/rbright/timetree-digest/internal/notify"
)

const (
	defaultExportDays = 7
	maxExportDays     = 62
)

func newRunCmd(a *App, opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Fetch events and deliver the digest to the configured sinks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDigest(cmd.Context(), a, opts)
		},
	}
}

func newCalendarsCmd(a *App, opts *options) *cobra.Command {
	return &cobra.Command{
		Use:     "calendars",
		Aliases: []string{"list"},
		Short:   "List the account's calendars and their IDs",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return listCalendars(cmd.Context(), a, opts)
		},
	}
}

func newPreviewCmd(a *App, opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "preview",
		Short: "Print the digest without delivering it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.prepare(cmd.Context(), opts, false)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), runTimeout(s.cfg.Timeout))
			defer cancel()

			result, err := s.runner.Build(ctx, request(s.cfg))
			if err != nil {
				return err
			}

			fmt.Fprintln(a.Stdout, styleDim.Render(fmt.Sprintf("%s (ID: %s)", result.Calendar.Name, result.Calendar.ID)))
			for _, rep := range result.Reports {
				fmt.Fprintln(a.Stdout)
				fmt.Fprintln(a.Stdout, renderReport(rep))
			}
			return nil
		},
	}
}

func newExportCmd(a *App, opts *options) *cobra.Command {
	var days int
	var out string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write upcoming events as an iCalendar file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if days < 1 || days > maxExportDays {
				return &usageError{err: fmt.Errorf("--days must be between 1 and %d", maxExportDays)}
			}

			s, err := a.prepare(cmd.Context(), opts, false)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), runTimeout(s.cfg.Timeout))
			defer cancel()

			calendar, batch, err := s.runner.Events(ctx, s.cfg.Credentials(), s.cfg.CalendarID, days)
			if err != nil {
				return err
			}

			content := export.ICS(calendar, batch.Events, time.Now())
			if out == "" {
				_, err := fmt.Fprint(a.Stdout, content)
				return err
			}
			if err := export.WriteFile(out, []byte(content)); err != nil {
				return err
			}
			s.logger.InfoContext(ctx, "calendar exported", "path", out, "events", len(batch.Events))
			return nil
		},
	}

	cmd.Flags().IntVar(&days, "days", defaultExportDays, "Number of days to export, starting today")
	cmd.Flags().StringVarP(&out, "out", "o", "", "Output file (defaults to stdout)")

	return cmd
}

func runDigest(ctx context.Context, a *App, opts *options) error {
	s, err := a.prepare(ctx, opts, true)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, runTimeout(s.cfg.Timeout))
	defer cancel()

	// Waybar reads one line per run, so the status line is held back until
	// every sink has finished.
	var waybar bytes.Buffer
	_, err = s.runner.Run(ctx, request(s.cfg), a.buildSink(s.cfg, &waybar))
	if !s.cfg.HasSink(config.SinkWaybar) {
		return err
	}
	if err != nil {
		_ = notify.WaybarError(a.Stdout, err.Error())
		return err
	}
	_, err = waybar.WriteTo(a.Stdout)
	return err
}

func listCalendars(ctx context.Context, a *App, opts *options) error {
	s, err := a.prepare(ctx, opts, false)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, runTimeout(s.cfg.Timeout))
	defer cancel()

	calendars, err := s.runner.ListCalendars(ctx, s.cfg.Credentials())
	if err != nil {
		return err
	}

	fmt.Fprint(a.Stdout, renderCalendars(calendars, s.cfg.CalendarID))
	return nil
}

func request(cfg config.Runtime) app.Request {
	return app.Request{
		Credentials:    cfg.Credentials(),
		CalendarID:     cfg.CalendarID,
		WeeklyOnMonday: cfg.WeeklyOnMonday,
	}
}
