package scheduler

import (
	"fmt"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"remindbot/internal/reminder"
)

// 2024-01-01 is a Monday.
func mon(hour, min, sec int) time.Time {
	return time.Date(2024, 1, 1, hour, min, sec, 0, time.UTC)
}

func TestWeeklyNextBasics(t *testing.T) {
	t.Parallel()
	at := reminder.TimeOfDay{Hour: 14, Minute: 30}
	tests := []struct {
		name string
		days reminder.DaySet
		from time.Time
		want time.Time
	}{
		{"later today", reminder.MustDaySet(reminder.Monday), mon(9, 0, 0), mon(14, 30, 0)},
		{"passed today rolls a week", reminder.MustDaySet(reminder.Monday), mon(15, 0, 0), mon(14, 30, 0).AddDate(0, 0, 7)},
		{"exact instant is exclusive", reminder.MustDaySet(reminder.Monday), mon(14, 30, 0), mon(14, 30, 0).AddDate(0, 0, 7)},
		{"one second before", reminder.MustDaySet(reminder.Monday), mon(14, 29, 59), mon(14, 30, 0)},
		{"next listed day", reminder.MustDaySet(reminder.Wednesday, reminder.Friday), mon(9, 0, 0), mon(14, 30, 0).AddDate(0, 0, 2)},
		{"sunday wraps", reminder.MustDaySet(reminder.Sunday), mon(9, 0, 0), mon(14, 30, 0).AddDate(0, 0, 6)},
		{"sat after sat slot", reminder.MustDaySet(reminder.Saturday), mon(14, 30, 0).AddDate(0, 0, 5), mon(14, 30, 0).AddDate(0, 0, 12)},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			w, err := NewWeekly(at, tt.days, time.UTC)
			require.NoError(t, err)
			assert.Equal(t, tt.want, w.Next(tt.from))
		})
	}
}

func TestWeeklyMidnight(t *testing.T) {
	t.Parallel()
	w, err := NewWeekly(reminder.TimeOfDay{}, reminder.MustDaySet(reminder.Tuesday), time.UTC)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), w.Next(mon(23, 59, 0)))
}

func TestWeeklyUsesLocation(t *testing.T) {
	t.Parallel()
	loc := time.FixedZone("UTC+7", 7*3600)
	w, err := NewWeekly(reminder.TimeOfDay{Hour: 7}, reminder.MustDaySet(reminder.Monday), loc)
	require.NoError(t, err)
	// Sunday 23:30 UTC is already Monday 06:30 in UTC+7.
	from := time.Date(2023, 12, 31, 23, 30, 0, 0, time.UTC)
	got := w.Next(from)
	assert.Equal(t, time.Date(2024, 1, 1, 7, 0, 0, 0, loc), got)
	assert.Equal(t, 30*time.Minute, got.Sub(from))
}

func TestNewWeeklyRejects(t *testing.T) {
	t.Parallel()
	_, err := NewWeekly(reminder.TimeOfDay{Hour: 24}, reminder.MustDaySet(reminder.Monday), time.UTC)
	assert.Error(t, err)
	_, err = NewWeekly(reminder.TimeOfDay{Hour: 1}, nil, time.UTC)
	assert.Error(t, err)
	assert.True(t, Weekly{}.Next(mon(1, 0, 0)).IsZero())
}

// For every non-empty day set, Weekly agrees with robfig/cron's own
// "M H * * dow" schedule on a spread of starting instants.
func TestWeeklyMatchesCronForAllDaySets(t *testing.T) {
	t.Parallel()
	times := []reminder.TimeOfDay{{Hour: 0}, {Hour: 7}, {Hour: 14, Minute: 30}, {Hour: 23, Minute: 59}}
	var starts []time.Time
	for day := 0; day < 7; day++ {
		for _, h := range []int{0, 7, 14, 23} {
			base := mon(h, 30, 0).AddDate(0, 0, day)
			starts = append(starts, base, base.Add(-time.Second), base.Add(time.Second))
		}
	}

	for mask := 1; mask < 1<<7; mask++ {
		var days []reminder.Weekday
		for d := 0; d < 7; d++ {
			if mask&(1<<d) != 0 {
				days = append(days, reminder.Weekday(d))
			}
		}
		set := reminder.MustDaySet(days...)
		dow := make([]string, 0, len(set))
		for _, d := range set {
			dow = append(dow, strconv.Itoa(int(d.Std())))
		}

		for _, at := range times {
			w, err := NewWeekly(at, set, time.UTC)
			require.NoError(t, err)
			ref, err := cron.ParseStandard(fmt.Sprintf("%d %d * * %s", at.Minute, at.Hour, strings.Join(dow, ",")))
			require.NoError(t, err)

			for _, from := range starts {
				got := w.Next(from)
				want := ref.Next(from)
				if !got.Equal(want) {
					t.Fatalf("days=%v at=%s from=%s: got %s want %s", set, at, from, got, want)
				}
				if !got.After(from) {
					t.Fatalf("next %s not after %s", got, from)
				}
				if !set.ContainsStd(got.Weekday()) || got.Hour() != at.Hour || got.Minute() != at.Minute {
					t.Fatalf("next %s does not match days=%v at=%s", got, set, at)
				}
			}
		}
	}
}
