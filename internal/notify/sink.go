package notify

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/rbright/timetree-digest/internal/report"
)

// Sink delivers a finished report. Delivery policy (retries, rate limits)
// belongs to the sink.
type Sink interface {
	Name() string
	Send(ctx context.Context, r report.Report) error
}

// Writer prints the rendered report text.
type Writer struct {
	Out io.Writer
}

func (w Writer) Name() string {
	return "stdout"
}

func (w Writer) Send(ctx context.Context, r report.Report) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := io.WriteString(w.Out, r.Text()+"\n"); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

// Multi sends to every sink in order and joins the failures. One failing
// sink does not stop the others.
type Multi []Sink

func (m Multi) Name() string {
	return "multi"
}

func (m Multi) Send(ctx context.Context, r report.Report) error {
	var errs []error
	for _, sink := range m {
		if err := sink.Send(ctx, r); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", sink.Name(), err))
		}
	}
	return errors.Join(errs...)
}
