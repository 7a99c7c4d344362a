package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/godbus/dbus/v5"

	"github.com/rbright/timetree-digest/internal/report"
)

const (
	notificationsService   = "org.freedesktop.Notifications"
	notificationsPath      = "/org/freedesktop/Notifications"
	notificationsInterface = "org.freedesktop.Notifications"

	defaultAppName = "TimeTree Digest"
)

// Desktop shows the report as a freedesktop notification on the session
// bus.
type Desktop struct {
	AppName string
	// ExpireTimeout is in milliseconds; -1 lets the server decide.
	ExpireTimeout int32
}

func (d Desktop) Name() string {
	return "desktop"
}

func (d Desktop) Send(ctx context.Context, r report.Report) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return fmt.Errorf("connect session bus: %w", err)
	}
	defer func() {
		_ = conn.Close()
	}()

	appName := strings.TrimSpace(d.AppName)
	if appName == "" {
		appName = defaultAppName
	}
	expire := d.ExpireTimeout
	if expire == 0 {
		expire = -1
	}

	summary, body := desktopText(r)
	obj := conn.Object(notificationsService, dbus.ObjectPath(notificationsPath))
	call := obj.CallWithContext(ctx, notificationsInterface+".Notify", 0,
		appName,
		uint32(0),
		"x-office-calendar",
		summary,
		body,
		[]string{},
		map[string]dbus.Variant{},
		expire,
	)
	if call.Err != nil {
		return fmt.Errorf("send desktop notification: %w", call.Err)
	}
	return nil
}

// desktopText splits the report into a notification summary and body.
func desktopText(r report.Report) (string, string) {
	if r.Kind == report.KindWeekly {
		text := r.Text()
		summary, body, _ := strings.Cut(text, "\n")
		return summary, strings.TrimSpace(body)
	}

	var counts []string
	for _, bucket := range r.Buckets {
		counts = append(counts, fmt.Sprintf("%s %d件", bucketShortLabel(bucket), len(bucket.Events)))
	}
	summary := "TimeTree: " + strings.Join(counts, " / ")
	return summary, r.Text()
}

func bucketShortLabel(bucket report.Bucket) string {
	switch bucket.Label {
	case report.LabelToday:
		return "今日"
	case report.LabelTomorrow:
		return "明日"
	default:
		return report.FormatDate(bucket.Date)
	}
}
