package scheduler

import (
	"errors"
	"time"

	"remindbot/internal/reminder"
)

// Weekly fires at a fixed wall-clock time on a set of weekdays.
// It implements cron.Schedule.
type Weekly struct {
	Time     reminder.TimeOfDay
	Days     reminder.DaySet
	Location *time.Location
}

func NewWeekly(at reminder.TimeOfDay, days reminder.DaySet, loc *time.Location) (Weekly, error) {
	if at.Hour < 0 || at.Hour > 23 || at.Minute < 0 || at.Minute > 59 {
		return Weekly{}, errors.New("weekly: time out of range")
	}
	if len(days) == 0 {
		return Weekly{}, errors.New("weekly: empty day set")
	}
	for _, d := range days {
		if !d.Valid() {
			return Weekly{}, errors.New("weekly: weekday out of range")
		}
	}
	return Weekly{Time: at, Days: days, Location: loc}, nil
}

// Next returns the earliest instant strictly after t whose local wall clock
// equals the configured time and whose weekday is in the set. It returns the
// zero time when the set is empty.
func (w Weekly) Next(t time.Time) time.Time {
	loc := w.Location
	if loc == nil {
		loc = t.Location()
	}
	t = t.In(loc)
	y, m, d := t.Date()
	// Day offset 7 covers "today's slot already passed and today is the only day".
	for i := 0; i <= 7; i++ {
		cand := time.Date(y, m, d+i, w.Time.Hour, w.Time.Minute, 0, 0, loc)
		if !cand.After(t) {
			continue
		}
		if !w.Days.ContainsStd(cand.Weekday()) {
			continue
		}
		return cand
	}
	return time.Time{}
}

// Equal reports whether o fires at the same wall-clock slots as w.
func (w Weekly) Equal(o Weekly) bool {
	return w.Time == o.Time && w.Days.Equal(o.Days) && w.Location.String() == o.Location.String()
}

func (w Weekly) String() string { return w.Days.String() + " " + w.Time.String() }
