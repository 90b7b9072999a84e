package reminder

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// DefaultMessage is sent when a reminder carries no custom message.
const DefaultMessage = "Default message"

// ID is the opaque identifier assigned by the store when a reminder is persisted.
// The scheduler keys its jobs by the same value.
type ID string

func (id ID) String() string { return string(id) }

// JobName is the scheduler job name used for a reminder id.
func (id ID) JobName() string { return "reminder_" + string(id) }

// Weekday numbers days with 0 = Monday .. 6 = Sunday.
// This is the numbering persisted in the days column.
type Weekday int

const (
	Monday Weekday = iota
	Tuesday
	Wednesday
	Thursday
	Friday
	Saturday
	Sunday
)

var shortDayNames = [...]string{"Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun"}

func (d Weekday) Valid() bool { return d >= Monday && d <= Sunday }

// Std converts to time.Weekday (Sunday = 0).
func (d Weekday) Std() time.Weekday { return time.Weekday((int(d) + 1) % 7) }

// FromStd converts a time.Weekday into the Monday-first numbering.
func FromStd(w time.Weekday) Weekday { return Weekday((int(w) + 6) % 7) }

func (d Weekday) String() string {
	if !d.Valid() {
		return "Weekday(" + strconv.Itoa(int(d)) + ")"
	}
	return shortDayNames[d]
}

// DaySet is a sorted, de-duplicated set of weekdays.
type DaySet []Weekday

// NewDaySet normalizes days into a DaySet. It rejects an empty set and
// out-of-range values.
func NewDaySet(days ...Weekday) (DaySet, error) {
	if len(days) == 0 {
		return nil, newError(KindValidation, "day set", fmt.Errorf("%w: at least one day is required", ErrInvalidChoice))
	}
	var seen [7]bool
	out := make(DaySet, 0, len(days))
	for _, d := range days {
		if !d.Valid() {
			return nil, newError(KindValidation, "day set", fmt.Errorf("%w: weekday %d out of range", ErrInvalidChoice, int(d)))
		}
		if seen[d] {
			continue
		}
		seen[d] = true
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// MustDaySet is NewDaySet for constant tables.
func MustDaySet(days ...Weekday) DaySet {
	s, err := NewDaySet(days...)
	if err != nil {
		panic(err)
	}
	return s
}

func (s DaySet) Contains(d Weekday) bool {
	for _, x := range s {
		if x == d {
			return true
		}
	}
	return false
}

// ContainsStd reports whether the set includes the given time.Weekday.
func (s DaySet) ContainsStd(w time.Weekday) bool { return s.Contains(FromStd(w)) }

// Strings renders the persisted form: decimal weekday numbers.
func (s DaySet) Strings() []string {
	out := make([]string, 0, len(s))
	for _, d := range s {
		out = append(out, strconv.Itoa(int(d)))
	}
	return out
}

// String renders "Mon, Wed, Fri".
func (s DaySet) String() string {
	names := make([]string, 0, len(s))
	for _, d := range s {
		names = append(names, d.String())
	}
	return strings.Join(names, ", ")
}

func (s DaySet) Equal(o DaySet) bool {
	if len(s) != len(o) {
		return false
	}
	for i := range s {
		if s[i] != o[i] {
			return false
		}
	}
	return true
}

// TimeOfDay is a wall-clock time with minute precision.
type TimeOfDay struct {
	Hour   int `json:"hour" validate:"min=0,max=23"`
	Minute int `json:"minute" validate:"min=0,max=59"`
}

// ParseTimeOfDay accepts "HH:MM" or "HH:MM:SS" (seconds are ignored).
func ParseTimeOfDay(raw string) (TimeOfDay, error) {
	s := strings.TrimSpace(raw)
	parts := strings.Split(s, ":")
	if len(parts) != 2 && len(parts) != 3 {
		return TimeOfDay{}, fmt.Errorf("invalid time %q", raw)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return TimeOfDay{}, fmt.Errorf("invalid hour in %q", raw)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return TimeOfDay{}, fmt.Errorf("invalid minute in %q", raw)
	}
	if len(parts) == 3 {
		sec, err := strconv.Atoi(parts[2])
		if err != nil || sec < 0 || sec > 59 {
			return TimeOfDay{}, fmt.Errorf("invalid second in %q", raw)
		}
	}
	return TimeOfDay{Hour: h, Minute: m}, nil
}

// ParseClockLabel parses a 12-hour label such as "7:00 AM" or "12:00 PM".
// 12 AM is midnight and 12 PM is noon.
func ParseClockLabel(label string) (TimeOfDay, error) {
	s := strings.ToUpper(strings.TrimSpace(label))
	clock, suffix, ok := strings.Cut(s, " ")
	if !ok || (suffix != "AM" && suffix != "PM") {
		return TimeOfDay{}, fmt.Errorf("invalid clock label %q", label)
	}
	hs, ms, ok := strings.Cut(clock, ":")
	if !ok {
		return TimeOfDay{}, fmt.Errorf("invalid clock label %q", label)
	}
	h, err := strconv.Atoi(hs)
	if err != nil || h < 1 || h > 12 {
		return TimeOfDay{}, fmt.Errorf("invalid hour in %q", label)
	}
	m, err := strconv.Atoi(ms)
	if err != nil || m < 0 || m > 59 {
		return TimeOfDay{}, fmt.Errorf("invalid minute in %q", label)
	}
	switch {
	case suffix == "AM" && h == 12:
		h = 0
	case suffix == "PM" && h != 12:
		h += 12
	}
	return TimeOfDay{Hour: h, Minute: m}, nil
}

// String renders the persisted "HH:MM:SS" form.
func (t TimeOfDay) String() string { return fmt.Sprintf("%02d:%02d:00", t.Hour, t.Minute) }

// Label renders "02:30 PM".
func (t TimeOfDay) Label() string {
	h := t.Hour % 12
	if h == 0 {
		h = 12
	}
	suffix := "AM"
	if t.Hour >= 12 {
		suffix = "PM"
	}
	return fmt.Sprintf("%02d:%02d %s", h, t.Minute, suffix)
}

// Spec is the durable description of a reminder.
type Spec struct {
	ID        ID        `json:"id"`
	OwnerChat int64     `json:"chat_id" validate:"required"`
	UserID    int64     `json:"user_id"`
	Time      TimeOfDay `json:"time"`
	Days      DaySet    `json:"days" validate:"min=1,max=7,dive,min=0,max=6"`
	Message   string    `json:"message,omitempty" validate:"max=4096"`
}

// MessageOr returns the custom message or def when none is set.
func (s Spec) MessageOr(def string) string {
	if strings.TrimSpace(s.Message) != "" {
		return s.Message
	}
	if def != "" {
		return def
	}
	return DefaultMessage
}

// Describe renders "Mon, Wed, Fri at 02:30 PM".
func (s Spec) Describe() string { return s.Days.String() + " at " + s.Time.Label() }
