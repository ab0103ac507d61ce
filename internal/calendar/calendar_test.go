package calendar

import (
	"testing"
	"time"

	apperrors "github.com/spec-kit/helpdesk-sla/pkg/util"
)

func weekdayCalendar(t *testing.T) *Calendar {
	t.Helper()
	cal, err := New(Config{
		Timezone:   "UTC",
		WorkDays:   []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday},
		DailyStart: "09:00",
		DailyEnd:   "18:00",
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return cal
}

// 2024-03-01 is a Friday; 2024-03-04 the following Monday.
func utc(t *testing.T, value string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, value)
	if err != nil {
		t.Fatalf("parse %q: %v", value, err)
	}
	return ts
}

func TestNewRejectsBadConfig(t *testing.T) {
	weekdays := []time.Weekday{time.Monday}
	tests := []struct {
		name string
		cfg  Config
	}{
		{"unknown timezone", Config{Timezone: "Mars/Olympus", WorkDays: weekdays, DailyStart: "09:00", DailyEnd: "18:00"}},
		{"empty work days", Config{Timezone: "UTC", DailyStart: "09:00", DailyEnd: "18:00"}},
		{"malformed start", Config{Timezone: "UTC", WorkDays: weekdays, DailyStart: "nine", DailyEnd: "18:00"}},
		{"out of range start", Config{Timezone: "UTC", WorkDays: weekdays, DailyStart: "25:00", DailyEnd: "18:00"}},
		{"end before start", Config{Timezone: "UTC", WorkDays: weekdays, DailyStart: "18:00", DailyEnd: "09:00"}},
		{"end equals start", Config{Timezone: "UTC", WorkDays: weekdays, DailyStart: "09:00", DailyEnd: "09:00"}},
		{"invalid weekday", Config{Timezone: "UTC", WorkDays: []time.Weekday{time.Weekday(9)}, DailyStart: "09:00", DailyEnd: "18:00"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := New(tc.cfg); err == nil {
				t.Fatal("expected error")
			} else if !apperrors.IsCode(err, "CALENDAR_INVALID") {
				t.Fatalf("expected CALENDAR_INVALID, got %v", err)
			}
		})
	}
}

func TestAddBusinessTimeZeroAndNegative(t *testing.T) {
	cal := weekdayCalendar(t)
	// Saturday, well outside business hours: still returned unchanged.
	start := utc(t, "2024-03-02T03:15:00Z")
	if got := cal.AddBusinessTime(start, 0); !got.Equal(start) {
		t.Fatalf("zero add moved start: %v", got)
	}
	if got := cal.AddBusinessTime(start, -time.Hour); !got.Equal(start) {
		t.Fatalf("negative add moved start: %v", got)
	}
}

func TestAddBusinessTime(t *testing.T) {
	cal := weekdayCalendar(t)
	tests := []struct {
		name  string
		start string
		d     time.Duration
		want  string
	}{
		{"within one day", "2024-03-04T09:00:00Z", 4 * time.Hour, "2024-03-04T13:00:00Z"},
		{"exactly fills the day", "2024-03-04T09:00:00Z", 9 * time.Hour, "2024-03-04T18:00:00Z"},
		{"friday evening skips weekend", "2024-03-01T17:00:00Z", 2 * time.Hour, "2024-03-04T10:00:00Z"},
		{"start on weekend", "2024-03-02T12:00:00Z", time.Hour, "2024-03-04T10:00:00Z"},
		{"start before opening", "2024-03-04T07:00:00Z", time.Hour, "2024-03-04T10:00:00Z"},
		{"start after closing", "2024-03-04T19:30:00Z", 30 * time.Minute, "2024-03-05T09:30:00Z"},
		{"multi day resolution target", "2024-03-04T09:00:00Z", 24 * time.Hour, "2024-03-06T15:00:00Z"},
		{"sub minute precision", "2024-03-04T09:00:00Z", 90 * time.Second, "2024-03-04T09:01:30Z"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := cal.AddBusinessTime(utc(t, tc.start), tc.d)
			if want := utc(t, tc.want); !got.Equal(want) {
				t.Fatalf("got %v, want %v", got, want)
			}
		})
	}
}

func TestBusinessTimeBetween(t *testing.T) {
	cal := weekdayCalendar(t)
	tests := []struct {
		name string
		from string
		to   string
		want time.Duration
	}{
		{"same instant", "2024-03-04T12:00:00Z", "2024-03-04T12:00:00Z", 0},
		{"to before from", "2024-03-04T12:00:00Z", "2024-03-04T09:00:00Z", 0},
		{"within one day", "2024-03-04T09:00:00Z", "2024-03-04T13:00:00Z", 4 * time.Hour},
		{"entire weekend", "2024-03-02T00:00:00Z", "2024-03-04T00:00:00Z", 0},
		{"across weekend", "2024-03-01T17:00:00Z", "2024-03-04T10:00:00Z", 2 * time.Hour},
		{"overnight split", "2024-03-04T16:00:00Z", "2024-03-05T11:00:00Z", 4 * time.Hour},
		{"clamped to window", "2024-03-04T06:00:00Z", "2024-03-04T23:00:00Z", 9 * time.Hour},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := cal.BusinessTimeBetween(utc(t, tc.from), utc(t, tc.to))
			if got != tc.want {
				t.Fatalf("got %v, want %v", got, tc.want)
			}
		})
	}
}

// BusinessTimeBetween(start, AddBusinessTime(start, d)) must return d for
// every start inside business hours.
func TestAddBetweenConsistency(t *testing.T) {
	cal := weekdayCalendar(t)
	starts := []string{
		"2024-03-04T09:00:00Z",
		"2024-03-04T13:30:00Z",
		"2024-03-01T17:59:00Z",
		"2024-03-05T10:45:00Z",
	}
	durations := []time.Duration{
		time.Minute,
		time.Hour,
		9 * time.Hour,
		24 * time.Hour,
		100 * time.Hour,
	}
	for _, start := range starts {
		for _, d := range durations {
			from := utc(t, start)
			to := cal.AddBusinessTime(from, d)
			if got := cal.BusinessTimeBetween(from, to); got != d {
				t.Errorf("between(%s, add(%s, %v)) = %v, want %v", start, start, d, got, d)
			}
		}
	}
}

func TestCalendarTimezone(t *testing.T) {
	cal, err := New(Config{
		Timezone:   "America/New_York",
		WorkDays:   []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday},
		DailyStart: "09:00",
		DailyEnd:   "17:00",
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if cal.Location().String() != "America/New_York" {
		t.Fatalf("unexpected location %v", cal.Location())
	}

	// 14:00 UTC on 2024-03-04 is 09:00 in New York; two business hours
	// later is 11:00 local, 16:00 UTC.
	start := utc(t, "2024-03-04T14:00:00Z")
	got := cal.AddBusinessTime(start, 2*time.Hour)
	if want := utc(t, "2024-03-04T16:00:00Z"); !got.Equal(want) {
		t.Fatalf("got %v, want %v", got.UTC(), want)
	}
}
