package api

import (
	"encoding/json"
	"testing"
	"time"
)

func TestTimeInput_AcceptedFormats(t *testing.T) {
	want := time.Date(2026, 9, 1, 14, 30, 0, 0, time.UTC)

	tests := []struct {
		name string
		body string
	}{
		{name: "rfc3339 string", body: `"2026-09-01T14:30:00Z"`},
		{name: "bare datetime", body: `"2026-09-01T14:30"`},
		{name: "spaced datetime", body: `"2026-09-01 14:30"`},
		{name: "nested object", body: `{"dateTime":"2026-09-01T14:30:00Z"}`},
		{name: "json-encoded string", body: `"\"2026-09-01T14:30:00Z\""`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var in TimeInput
			if err := json.Unmarshal([]byte(tt.body), &in); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if !in.Time.Equal(want) {
				t.Fatalf("got %v, want %v", in.Time, want)
			}
		})
	}
}

func TestTimeInput_Rejected(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "number", body: `1234567890`},
		{name: "garbage string", body: `"next tuesday"`},
		{name: "empty object", body: `{}`},
		{name: "empty string", body: `""`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var in TimeInput
			if err := json.Unmarshal([]byte(tt.body), &in); err == nil {
				t.Fatalf("expected error for %s", tt.body)
			}
		})
	}
}

func TestParseClockOnDate(t *testing.T) {
	got, err := parseClockOnDate("2026-09-01", "09:15", time.UTC)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	want := time.Date(2026, 9, 1, 9, 15, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("got %v, want %v", got, want)
	}

	if _, err := parseClockOnDate("01/09/2026", "09:15", time.UTC); err == nil {
		t.Fatalf("expected error for bad date format")
	}
	if _, err := parseClockOnDate("2026-09-01", "9am", time.UTC); err == nil {
		t.Fatalf("expected error for bad clock format")
	}
}
