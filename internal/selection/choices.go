package selection

import (
	"fmt"

	"remindbot/internal/reminder"
)

// DayGroup is one day-set button of the first screen.
type DayGroup struct {
	Key   string
	Label string
	Days  reminder.DaySet
	Row   int
}

// Period narrows the hour screen to at most eight candidates.
type Period struct {
	Key   string
	Label string
	Hours []string
	Row   int
}

var dayGroups = []DayGroup{
	{Key: "all_days", Label: "🗓️ Every Day", Days: reminder.MustDaySet(0, 1, 2, 3, 4, 5, 6), Row: 0},
	{Key: "weekdays", Label: "M-F", Days: reminder.MustDaySet(0, 1, 2, 3, 4), Row: 1},
	{Key: "mon_thu", Label: "M-Th", Days: reminder.MustDaySet(0, 1, 2, 3), Row: 1},
	{Key: "sat", Label: "Sat", Days: reminder.MustDaySet(reminder.Saturday), Row: 2},
	{Key: "sun", Label: "Sun", Days: reminder.MustDaySet(reminder.Sunday), Row: 2},
	{Key: "weekend", Label: "Sat & Sun", Days: reminder.MustDaySet(reminder.Saturday, reminder.Sunday), Row: 2},
}

var periods = []Period{
	{Key: "morning", Label: "☀️ Morning", Hours: hourLabels("AM", 4, 5, 6, 7, 8, 9, 10, 11), Row: 0},
	{Key: "afternoon", Label: "🌤️ Afternoon", Hours: hourLabels("PM", 12, 1, 2, 3, 4), Row: 0},
	{Key: "evening", Label: "🌆 Evening", Hours: hourLabels("PM", 5, 6, 7, 8), Row: 1},
	{Key: "night", Label: "🌙 Night", Hours: append(hourLabels("PM", 9, 10, 11), "12:00 AM"), Row: 1},
}

func hourLabels(suffix string, hours ...int) []string {
	out := make([]string, 0, len(hours))
	for _, h := range hours {
		out = append(out, fmt.Sprintf("%d:00 %s", h, suffix))
	}
	return out
}

// DayGroups returns the day-set choices in display order.
func DayGroups() []DayGroup {
	out := make([]DayGroup, len(dayGroups))
	copy(out, dayGroups)
	return out
}

// Periods returns the period choices in display order.
func Periods() []Period {
	out := make([]Period, len(periods))
	for i, p := range periods {
		p.Hours = append([]string(nil), p.Hours...)
		out[i] = p
	}
	return out
}

func dayGroup(key string) (DayGroup, bool) {
	for _, g := range dayGroups {
		if g.Key == key {
			return g, true
		}
	}
	return DayGroup{}, false
}

func period(key string) (Period, bool) {
	for _, p := range periods {
		if p.Key == key {
			return p, true
		}
	}
	return Period{}, false
}
