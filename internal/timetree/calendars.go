package timetree

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
)

type Calendar struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type calendarsResponse struct {
	Calendars *[]calendarRecord `json:"calendars"`
}

type calendarRecord struct {
	ID            json.RawMessage `json:"id"`
	Name          string          `json:"name"`
	DeactivatedAt json.RawMessage `json:"deactivated_at"`
}

// ListCalendars returns the calendars visible to the session in the order
// the backend lists them. Deactivated calendars are left out.
func (c *Client) ListCalendars(ctx context.Context, session Session) ([]Calendar, error) {
	if !session.Authenticated() {
		return nil, &AuthError{Message: "session is not authenticated"}
	}

	resp, err := c.do(ctx, "list calendars", http.MethodGet, "/calendars?since=0", &session, nil)
	if err != nil {
		return nil, err
	}
	if !isSuccess(resp.status) {
		return nil, statusError("list calendars", resp)
	}

	var decoded calendarsResponse
	if err := json.Unmarshal(resp.body, &decoded); err != nil {
		return nil, &ParseError{Index: -1, Reason: "decode calendars response", Err: err}
	}
	if decoded.Calendars == nil {
		return nil, &ParseError{Index: -1, Reason: "calendars list missing from response"}
	}

	calendars := make([]Calendar, 0, len(*decoded.Calendars))
	for _, record := range *decoded.Calendars {
		if isPresent(record.DeactivatedAt) {
			continue
		}
		id := rawID(record.ID)
		if id == "" {
			continue
		}
		calendars = append(calendars, Calendar{ID: id, Name: sanitize(record.Name)})
	}

	c.logger.DebugContext(ctx, "timetree calendars listed", "count", len(calendars))
	return calendars, nil
}

// SelectCalendar picks the calendar to report on. An empty requestedID
// selects the first calendar in backend order; a non-empty one must match
// exactly and never falls back to the first.
func SelectCalendar(calendars []Calendar, requestedID string) (Calendar, error) {
	if len(calendars) == 0 {
		return Calendar{}, &NotFoundError{What: "calendar"}
	}

	requested := strings.TrimSpace(requestedID)
	if requested == "" {
		return calendars[0], nil
	}

	for _, calendar := range calendars {
		if calendar.ID == requested {
			return calendar, nil
		}
	}
	return Calendar{}, &NotFoundError{What: "calendar", ID: requested}
}

// rawID accepts both string and numeric JSON identifiers.
func rawID(raw json.RawMessage) string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return ""
	}
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return ""
		}
		return strings.TrimSpace(s)
	}

	var n json.Number
	if err := json.Unmarshal(trimmed, &n); err != nil {
		return ""
	}
	return n.String()
}

func isPresent(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null"))
}
