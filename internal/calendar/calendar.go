package calendar

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/spec-kit/helpdesk-sla/pkg/util"
)

// Config is a tenant's business-hours definition: an IANA timezone, the set
// of working weekdays and the daily working window in local HH:MM.
type Config struct {
	Timezone   string         `json:"timezone"`
	WorkDays   []time.Weekday `json:"work_days"`
	DailyStart string         `json:"daily_start"`
	DailyEnd   string         `json:"daily_end"`
}

// Calendar performs business-time arithmetic for one validated Config.
// All methods are pure; a Calendar is immutable after construction.
type Calendar struct {
	loc      *time.Location
	workDays map[time.Weekday]struct{}
	startMin int
	endMin   int
}

// New validates cfg and builds a Calendar. Misconfiguration is rejected
// here so that per-ticket arithmetic never has to fail.
func New(cfg Config) (*Calendar, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, apperrors.NewCalendarInvalid(fmt.Sprintf("unknown timezone %q", cfg.Timezone), err)
	}
	if len(cfg.WorkDays) == 0 {
		return nil, apperrors.NewCalendarInvalid("work days must not be empty", nil)
	}
	startMin, err := parseClock(cfg.DailyStart)
	if err != nil {
		return nil, apperrors.NewCalendarInvalid(fmt.Sprintf("invalid daily start %q", cfg.DailyStart), err)
	}
	endMin, err := parseClock(cfg.DailyEnd)
	if err != nil {
		return nil, apperrors.NewCalendarInvalid(fmt.Sprintf("invalid daily end %q", cfg.DailyEnd), err)
	}
	if endMin <= startMin {
		return nil, apperrors.NewCalendarInvalid("daily end must be after daily start", nil)
	}

	workDays := make(map[time.Weekday]struct{}, len(cfg.WorkDays))
	for _, day := range cfg.WorkDays {
		if day < time.Sunday || day > time.Saturday {
			return nil, apperrors.NewCalendarInvalid(fmt.Sprintf("invalid weekday %d", day), nil)
		}
		workDays[day] = struct{}{}
	}

	return &Calendar{
		loc:      loc,
		workDays: workDays,
		startMin: startMin,
		endMin:   endMin,
	}, nil
}

// AddBusinessTime advances start by d of business time. Minutes outside the
// working window contribute nothing and are skipped entirely. d <= 0 returns
// start unchanged, even when start itself lies outside business hours.
func (c *Calendar) AddBusinessTime(start time.Time, d time.Duration) time.Time {
	if d <= 0 {
		return start
	}

	remaining := d
	cur := start.In(c.loc)
	for {
		year, month, day := cur.Date()
		dayEnd := time.Date(year, month, day, c.endMin/60, c.endMin%60, 0, 0, c.loc)

		if c.isWorkDay(cur.Weekday()) && cur.Before(dayEnd) {
			eff := cur
			dayStart := time.Date(year, month, day, c.startMin/60, c.startMin%60, 0, 0, c.loc)
			if eff.Before(dayStart) {
				eff = dayStart
			}
			if window := dayEnd.Sub(eff); remaining <= window {
				return eff.Add(remaining)
			} else {
				remaining -= window
			}
		}
		cur = time.Date(year, month, day+1, c.startMin/60, c.startMin%60, 0, 0, c.loc)
	}
}

// BusinessTimeBetween returns the business time contained in [from, to).
// Returns 0 when to does not lie after from.
func (c *Calendar) BusinessTimeBetween(from, to time.Time) time.Duration {
	if !to.After(from) {
		return 0
	}

	var total time.Duration
	cur := from.In(c.loc)
	end := to.In(c.loc)
	for cur.Before(end) {
		year, month, day := cur.Date()
		if c.isWorkDay(cur.Weekday()) {
			lo := time.Date(year, month, day, c.startMin/60, c.startMin%60, 0, 0, c.loc)
			if cur.After(lo) {
				lo = cur
			}
			hi := time.Date(year, month, day, c.endMin/60, c.endMin%60, 0, 0, c.loc)
			if end.Before(hi) {
				hi = end
			}
			if hi.After(lo) {
				total += hi.Sub(lo)
			}
		}
		cur = time.Date(year, month, day+1, 0, 0, 0, 0, c.loc)
	}
	return total
}

// Location exposes the calendar's timezone.
func (c *Calendar) Location() *time.Location {
	return c.loc
}

func (c *Calendar) isWorkDay(day time.Weekday) bool {
	_, ok := c.workDays[day]
	return ok
}

func parseClock(val string) (int, error) {
	parts := strings.SplitN(val, ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("expected HH:MM, got %q", val)
	}
	hours, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, err
	}
	minutes, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, err
	}
	if hours < 0 || hours > 23 || minutes < 0 || minutes > 59 {
		return 0, fmt.Errorf("out of range clock value %q", val)
	}
	return hours*60 + minutes, nil
}
