package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rbright/timetree-digest/internal/report"
	"github.com/rbright/timetree-digest/internal/timetree"
)

const (
	colorBlurple = 0x5865F2
	colorGreen   = 0x57F287

	maxFieldValue = 1024
	// maxEmbedTotal is Discord's limit on the summed title, field and footer
	// text of one message.
	maxEmbedTotal = 6000
	fieldName     = "予定"
)

type discordPayload struct {
	Username string         `json:"username,omitempty"`
	Embeds   []discordEmbed `json:"embeds"`
}

type discordEmbed struct {
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	Color       int            `json:"color"`
	Fields      []discordField `json:"fields,omitempty"`
	Footer      *discordFooter `json:"footer,omitempty"`
}

type discordField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type discordFooter struct {
	Text string `json:"text"`
}

// Discord posts reports to a Discord webhook as one embed per bucket.
type Discord struct {
	WebhookURL string
	Username   string
	Timeout    time.Duration
	HTTPClient *http.Client
}

func (d Discord) Name() string {
	return "discord"
}

func (d Discord) Send(ctx context.Context, r report.Report) error {
	url := strings.TrimSpace(d.WebhookURL)
	if url == "" {
		return fmt.Errorf("discord webhook url is required")
	}

	body, err := json.Marshal(discordPayload{Username: d.Username, Embeds: embeds(r)})
	if err != nil {
		return fmt.Errorf("marshal discord payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create discord request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := d.HTTPClient
	if client == nil {
		timeout := d.Timeout
		if timeout <= 0 {
			timeout = timetree.DefaultTimeout
		}
		client = &http.Client{Timeout: timeout}
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("post discord webhook: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		responseBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("discord webhook status %d: %s", resp.StatusCode, strings.TrimSpace(string(responseBody)))
	}
	return nil
}

func embeds(r report.Report) []discordEmbed {
	footer := &discordFooter{Text: r.GeneratedAt.Format("2006/01/02 15:04") + " 更新"}

	if r.Kind == report.KindWeekly {
		return []discordEmbed{weeklyEmbed(r, footer)}
	}

	out := make([]discordEmbed, 0, len(r.Buckets))
	for _, bucket := range r.Buckets {
		if bucket.Empty() {
			out = append(out, discordEmbed{
				Title:       bucket.Heading,
				Description: "**" + report.EmptyMarker + "**",
				Color:       colorGreen,
				Footer:      footer,
			})
			continue
		}
		out = append(out, discordEmbed{
			Title:  bucket.Heading,
			Color:  colorBlurple,
			Fields: []discordField{{Name: fieldName, Value: fieldValue(bucket.Body())}},
			Footer: footer,
		})
	}
	return out
}

func weeklyEmbed(r report.Report, footer *discordFooter) discordEmbed {
	if len(r.Buckets) == 0 {
		return discordEmbed{
			Title:       r.Title,
			Description: report.WeekEmptyMarker,
			Color:       colorGreen,
			Footer:      footer,
		}
	}

	budget := maxEmbedTotal - runeLen(r.Title) - runeLen(footer.Text)
	fields := make([]discordField, 0, len(r.Buckets))
	for _, bucket := range r.Buckets {
		room := min(maxFieldValue, budget-runeLen(bucket.Heading))
		if room < len(ellipsis)+1 {
			break
		}
		value := limitRunes(bucket.Body(), room)
		fields = append(fields, discordField{Name: bucket.Heading, Value: value})
		budget -= runeLen(bucket.Heading) + runeLen(value)
	}
	return discordEmbed{
		Title:  r.Title,
		Color:  colorBlurple,
		Fields: fields,
		Footer: footer,
	}
}

// fieldValue enforces Discord's embed field limit, counted in characters.
func fieldValue(value string) string {
	return limitRunes(value, maxFieldValue)
}

const ellipsis = "..."

// limitRunes cuts value so the result, marker included, stays under limit.
func limitRunes(value string, limit int) string {
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return string(runes[:max(limit-len(ellipsis)-1, 0)]) + ellipsis
}

func runeLen(value string) int {
	return utf8.RuneCountInString(value)
}
