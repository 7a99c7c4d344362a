package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/rbright/timetree-digest/internal/config"
	"github.com/rbright/timetree-digest/internal/timetree"
)

const (
	ExitOK      = 0
	ExitFailure = 1
	ExitConfig  = 2
)

// App holds the process edges the commands depend on, so tests can swap
// them out.
type App struct {
	LoadConfig    func() (config.Runtime, error)
	NewBackend    func(cfg config.Runtime, logger *slog.Logger) timetree.Backend
	Stdout        io.Writer
	Stderr        io.Writer
	IsInteractive func() bool
	ReadPassword  func() (string, error)
}

// DefaultApp wires the real config loader, TimeTree client and terminal.
func DefaultApp() *App {
	return &App{
		LoadConfig: config.Load,
		NewBackend: func(cfg config.Runtime, logger *slog.Logger) timetree.Backend {
			return timetree.New(timetree.Options{
				BaseURL:  cfg.BaseURL,
				Timeout:  cfg.Timeout,
				Location: cfg.Location,
				Logger:   logger,
			})
		},
		Stdout: os.Stdout,
		Stderr: os.Stderr,
		IsInteractive: func() bool {
			return isatty.IsTerminal(os.Stdin.Fd()) || isatty.IsCygwinTerminal(os.Stdin.Fd())
		},
		ReadPassword: func() (string, error) {
			raw, err := term.ReadPassword(int(os.Stdin.Fd()))
			if err != nil {
				return "", err
			}
			return string(raw), nil
		},
	}
}

type options struct {
	calendarID string
	sinks      string
	verbose    bool
	list       bool
}

// NewRootCmd creates the "timetree-digest" command. Without a subcommand it
// behaves like "run".
func NewRootCmd(app *App) *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "timetree-digest",
		Short:         "Post today's and tomorrow's TimeTree events to Discord",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.list {
				return listCalendars(cmd.Context(), app, opts)
			}
			return runDigest(cmd.Context(), app, opts)
		},
	}
	root.SetOut(app.Stdout)
	root.SetErr(app.Stderr)
	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return &usageError{err: err}
	})

	root.PersistentFlags().StringVar(&opts.calendarID, "calendar", "", "Calendar ID to read (defaults to TIMETREE_CALENDAR_ID, then the first calendar)")
	root.PersistentFlags().StringVar(&opts.sinks, "sink", "", "Comma separated sinks: discord, desktop, stdout, waybar")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Enable debug logging")
	root.Flags().BoolVarP(&opts.list, "list", "l", false, "List calendars and exit")

	root.AddCommand(
		newRunCmd(app, opts),
		newCalendarsCmd(app, opts),
		newPreviewCmd(app, opts),
		newExportCmd(app, opts),
	)

	return root
}

// Execute runs the command tree and maps the outcome to an exit code,
// printing an operator hint for known failure kinds.
func Execute(ctx context.Context, app *App, args []string) int {
	root := NewRootCmd(app)
	root.SetArgs(args)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return ExitOK
	}

	fmt.Fprintf(app.Stderr, "Error: %v\n", err)
	if hint := hintFor(err); hint != "" {
		fmt.Fprintf(app.Stderr, "Hint: %s\n", hint)
	}

	var usage *usageError
	var cfgErr *configError
	if errors.As(err, &usage) || errors.As(err, &cfgErr) {
		return ExitConfig
	}
	return ExitFailure
}

type configError struct {
	err error
}

func (e *configError) Error() string {
	return "config: " + e.err.Error()
}

func (e *configError) Unwrap() error {
	return e.err
}

type usageError struct {
	err error
}

func (e *usageError) Error() string {
	return e.err.Error()
}

func (e *usageError) Unwrap() error {
	return e.err
}

func hintFor(err error) string {
	var missing *config.MissingError
	switch {
	case errors.As(err, &missing):
		return "set " + strings.Join(missing.Keys, ", ") + " in the environment or " + configHintPath()
	case timetree.IsAuth(err):
		return "check TIMETREE_EMAIL and TIMETREE_PASSWORD"
	case timetree.IsNotFound(err):
		return "check TIMETREE_CALENDAR_ID; run 'timetree-digest calendars' to see valid IDs"
	case timetree.IsNetwork(err):
		return "check the network connection to timetreeapp.com"
	case timetree.IsParse(err):
		return "the TimeTree API response was not understood; rerun with --verbose"
	default:
		return ""
	}
}

func configHintPath() string {
	if path := strings.TrimSpace(os.Getenv("TIMETREE_DIGEST_CONFIG_FILE")); path != "" {
		return path
	}
	return "the timetree-digest.env config file"
}
