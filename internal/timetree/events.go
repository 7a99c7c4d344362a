package timetree

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// maxSyncChunks bounds how many chunks one listing may span. A listing that
// is still unfinished after that many requests fails the fetch.
const maxSyncChunks = 50

// Event is one occurrence as returned by the backend, with instants in the
// client's location. For all-day events Start is local midnight of the
// first day and End, when set, is the exclusive local midnight after the
// last day. A nil End on an all-day event means a single day.
type Event struct {
	ID         string
	CalendarID string
	Title      string
	Start      time.Time
	End        *time.Time
	Location   string
	AllDay     bool
}

// LastDay returns the local midnight of the final day the event covers.
func (e Event) LastDay() time.Time {
	first := dayStart(e.Start)
	if e.End == nil {
		return first
	}
	if e.AllDay {
		last := dayStart(e.End.Add(-time.Nanosecond))
		if last.Before(first) {
			return first
		}
		return last
	}
	return dayStart(*e.End)
}

// EventBatch is the result of one fetch. Skipped holds the records that
// could not be parsed; they do not fail the fetch.
type EventBatch struct {
	Events  []Event
	Skipped []*ParseError
}

type syncResponse struct {
	Events *[]json.RawMessage `json:"events"`
	Chunk  bool               `json:"chunk"`
	Since  *int64             `json:"since"`
}

type eventRecord struct {
	ID            json.RawMessage `json:"id"`
	Title         *string         `json:"title"`
	AllDay        bool            `json:"all_day"`
	StartAt       *int64          `json:"start_at"`
	EndAt         *int64          `json:"end_at"`
	Location      *string         `json:"location"`
	DeactivatedAt json.RawMessage `json:"deactivated_at"`
}

// FetchEvents returns the events of calendar that touch the local dates
// startDate through endDate, both inclusive.
func (c *Client) FetchEvents(ctx context.Context, session Session, calendar Calendar, startDate, endDate time.Time) (EventBatch, error) {
	if !session.Authenticated() {
		return EventBatch{}, &AuthError{Message: "session is not authenticated"}
	}
	if calendar.ID == "" {
		return EventBatch{}, &NotFoundError{What: "calendar"}
	}

	from := dayStart(startDate.In(c.location))
	to := dayStart(endDate.In(c.location)).AddDate(0, 0, 1)
	if !to.After(from) {
		return EventBatch{}, fmt.Errorf("invalid date range %s..%s", startDate.Format(time.DateOnly), endDate.Format(time.DateOnly))
	}

	basePath := "/calendar/" + url.PathEscape(calendar.ID) + "/events/sync"
	path := basePath

	var batch EventBatch
	index := 0
	for chunk := 0; ; chunk++ {
		if chunk == maxSyncChunks {
			return EventBatch{}, &ParseError{Index: -1, Reason: fmt.Sprintf("event sync exceeded %d chunks", maxSyncChunks)}
		}

		resp, err := c.do(ctx, "fetch events", http.MethodGet, path, &session, nil)
		if err != nil {
			return EventBatch{}, err
		}
		if !isSuccess(resp.status) {
			return EventBatch{}, statusError("fetch events", resp)
		}

		var decoded syncResponse
		if err := json.Unmarshal(resp.body, &decoded); err != nil {
			return EventBatch{}, &ParseError{Index: -1, Reason: "decode events response", Err: err}
		}
		if decoded.Events == nil {
			return EventBatch{}, &ParseError{Index: -1, Reason: "events list missing from response"}
		}

		for _, raw := range *decoded.Events {
			event, keep, parseErr := c.normalizeEvent(calendar.ID, index, raw)
			index++
			if parseErr != nil {
				batch.Skipped = append(batch.Skipped, parseErr)
				continue
			}
			if keep && overlaps(event, from, to) {
				batch.Events = append(batch.Events, event)
			}
		}

		if !decoded.Chunk || decoded.Since == nil {
			break
		}
		path = basePath + "?since=" + strconv.FormatInt(*decoded.Since, 10)
	}

	c.logger.DebugContext(ctx, "timetree events fetched",
		"calendar_id", calendar.ID,
		"from", from.Format(time.DateOnly),
		"to", to.AddDate(0, 0, -1).Format(time.DateOnly),
		"records", index,
		"events", len(batch.Events),
		"skipped", len(batch.Skipped),
	)
	return batch, nil
}

// normalizeEvent maps one raw record. keep is false for records that are
// valid but deleted on the backend.
func (c *Client) normalizeEvent(calendarID string, index int, raw json.RawMessage) (Event, bool, *ParseError) {
	var record eventRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		var probe struct {
			ID json.RawMessage `json:"id"`
		}
		_ = json.Unmarshal(raw, &probe)
		return Event{}, false, &ParseError{Index: index, RecordID: rawID(probe.ID), Reason: "decode event", Err: err}
	}

	id := rawID(record.ID)
	if isPresent(record.DeactivatedAt) {
		return Event{}, false, nil
	}
	if record.Title == nil || sanitize(*record.Title) == "" {
		return Event{}, false, &ParseError{Index: index, RecordID: id, Reason: "missing title"}
	}
	if record.StartAt == nil {
		return Event{}, false, &ParseError{Index: index, RecordID: id, Reason: "missing start_at"}
	}

	event := Event{
		ID:         id,
		CalendarID: calendarID,
		Title:      sanitize(*record.Title),
	}
	if record.Location != nil {
		event.Location = sanitize(*record.Location)
	}

	if record.AllDay {
		// All-day bounds are UTC midnights of the first and the last
		// (inclusive) day.
		first := c.utcDate(*record.StartAt)
		event.AllDay = true
		event.Start = first
		if record.EndAt != nil {
			last := c.utcDate(*record.EndAt)
			if last.Before(first) {
				return Event{}, false, &ParseError{Index: index, RecordID: id, Reason: "end_at before start_at"}
			}
			if last.After(first) {
				end := last.AddDate(0, 0, 1)
				event.End = &end
			}
		}
		return event, true, nil
	}

	start := time.UnixMilli(*record.StartAt).In(c.location)
	if record.EndAt == nil {
		event.AllDay = true
		event.Start = dayStart(start)
		return event, true, nil
	}

	end := time.UnixMilli(*record.EndAt).In(c.location)
	if end.Before(start) {
		return Event{}, false, &ParseError{Index: index, RecordID: id, Reason: "end_at before start_at"}
	}
	event.Start = start
	event.End = &end
	return event, true, nil
}

// utcDate maps an epoch-millisecond UTC midnight to the same calendar date
// at local midnight.
func (c *Client) utcDate(ms int64) time.Time {
	t := time.UnixMilli(ms).UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, c.location)
}

func overlaps(event Event, from, to time.Time) bool {
	if event.AllDay {
		last := event.LastDay()
		return event.Start.Before(to) && !last.Before(from)
	}
	if !event.Start.Before(to) {
		return false
	}
	if event.End == nil {
		return !event.Start.Before(from)
	}
	return event.End.After(from) || !event.Start.Before(from)
}

func dayStart(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
