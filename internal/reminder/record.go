package reminder

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
)

// Record is the row shape shared by every storage driver.
//
// Column names follow the reminders table: reminder_time is "HH:MM:SS",
// days is a list of decimal weekday numbers (0 = Monday) and
// custom_message is empty when unset.
type Record struct {
	ID           ID        `json:"id"`
	UserID       int64     `json:"user_id"`
	ChatID       int64     `json:"chat_id"`
	ReminderTime string    `json:"reminder_time"`
	Days         []string  `json:"days"`
	Message      string    `json:"custom_message,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func structValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
	})
	return validate
}

// Validate checks field ranges. Failures are KindValidation.
func (s Spec) Validate() error {
	if err := structValidator().Struct(s); err != nil {
		return newError(KindValidation, "validate reminder", fmt.Errorf("%w: %v", ErrInvalidChoice, err))
	}
	return nil
}

// Record converts the spec into its durable row.
func (s Spec) Record() Record {
	return Record{
		ID:           s.ID,
		UserID:       s.UserID,
		ChatID:       s.OwnerChat,
		ReminderTime: s.Time.String(),
		Days:         s.Days.Strings(),
		Message:      s.Message,
	}
}

// ParseRecord validates a stored row. Any malformed field yields an error
// wrapping ErrCorruptRecord so reload can skip the row and keep going.
func ParseRecord(r Record) (Spec, error) {
	if strings.TrimSpace(string(r.ID)) == "" {
		return Spec{}, corrupt(r.ID, "missing id")
	}
	tod, err := ParseTimeOfDay(r.ReminderTime)
	if err != nil {
		return Spec{}, corrupt(r.ID, err.Error())
	}
	days := make([]Weekday, 0, len(r.Days))
	for _, raw := range r.Days {
		n, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return Spec{}, corrupt(r.ID, fmt.Sprintf("bad weekday %q", raw))
		}
		days = append(days, Weekday(n))
	}
	ds, err := NewDaySet(days...)
	if err != nil {
		return Spec{}, corrupt(r.ID, err.Error())
	}
	sp := Spec{
		ID:        r.ID,
		OwnerChat: r.ChatID,
		UserID:    r.UserID,
		Time:      tod,
		Days:      ds,
		Message:   r.Message,
	}
	if err := sp.Validate(); err != nil {
		return Spec{}, corrupt(r.ID, err.Error())
	}
	return sp, nil
}

func corrupt(id ID, detail string) error {
	return EID(KindValidation, "parse record", id, fmt.Errorf("%w: %s", ErrCorruptRecord, detail))
}
