package api

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// TimeInput is the single normalization point for caller-supplied times.
// Callers historically sent a plain RFC 3339 string, a nested
// {"dateTime": ...} object, or a JSON-encoded string of either; all of them
// decode through UnmarshalJSON so nothing downstream re-parses.
type TimeInput struct {
	time.Time
}

// accepted layouts for bare strings, tried in order.
var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04",
	"2006-01-02 15:04",
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *TimeInput) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		// A JSON-encoded string may itself wrap a quoted value.
		s = strings.TrimSpace(s)
		if strings.HasPrefix(s, `"`) {
			if err := json.Unmarshal([]byte(s), &s); err != nil {
				return fmt.Errorf("invalid time input %q", s)
			}
		}
		parsed, err := parseTimeString(s)
		if err != nil {
			return err
		}
		t.Time = parsed
		return nil
	}

	var nested struct {
		DateTime string `json:"dateTime"`
	}
	if err := json.Unmarshal(data, &nested); err == nil && nested.DateTime != "" {
		parsed, err := parseTimeString(nested.DateTime)
		if err != nil {
			return err
		}
		t.Time = parsed
		return nil
	}

	return fmt.Errorf("invalid time input: %s", string(data))
}

func parseTimeString(s string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			return parsed, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time format %q", s)
}

// parseClockOnDate combines a YYYY-MM-DD date with an HH:MM clock, both in
// the given location. Used for the availability query parameters.
func parseClockOnDate(date, clock string, loc *time.Location) (time.Time, error) {
	day, err := time.ParseInLocation("2006-01-02", date, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q", date)
	}
	c, err := time.Parse("15:04", clock)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q", clock)
	}
	return time.Date(day.Year(), day.Month(), day.Day(), c.Hour(), c.Minute(), 0, 0, loc), nil
}
