package selection

import (
	"fmt"
	"sync"

	"remindbot/internal/reminder"
)

type Stage uint8

const (
	StageDays Stage = iota + 1
	StagePeriod
	StageHour
	StageComplete
	StageCancelled
)

func (s Stage) String() string {
	switch s {
	case StageDays:
		return "selecting_days"
	case StagePeriod:
		return "selecting_period"
	case StageHour:
		return "selecting_hour"
	case StageComplete:
		return "complete"
	case StageCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further input is accepted.
func (s Stage) Terminal() bool { return s == StageComplete || s == StageCancelled }

type InputKind uint8

const (
	InputDays InputKind = iota + 1
	InputPeriod
	InputHour
	InputCancel
)

func (k InputKind) String() string {
	switch k {
	case InputDays:
		return "days"
	case InputPeriod:
		return "period"
	case InputHour:
		return "hour"
	case InputCancel:
		return "cancel"
	default:
		return "unknown"
	}
}

// Input is one answer from the user.
type Input struct {
	Kind  InputKind
	Value string
}

func Days(key string) Input     { return Input{Kind: InputDays, Value: key} }
func PeriodOf(key string) Input { return Input{Kind: InputPeriod, Value: key} }
func Hour(label string) Input   { return Input{Kind: InputHour, Value: label} }
func Cancel() Input             { return Input{Kind: InputCancel} }

// Result is a completed selection, ready for lifecycle.Create.
type Result struct {
	Chat int64
	User int64
	Time reminder.TimeOfDay
	Days reminder.DaySet
}

// Step is what a successful transition produced.
type Step struct {
	Stage      Stage
	Candidates []string // hour labels after a period choice
	Result     *Result  // set on StageComplete
}

// Session is one reminder-setup dialogue. It is safe for concurrent use;
// inputs are applied one at a time.
type Session struct {
	Chat int64
	User int64

	mu         sync.Mutex
	stage      Stage
	days       reminder.DaySet
	candidates []string
}

func NewSession(chat, user int64) *Session {
	return &Session{Chat: chat, User: user, stage: StageDays}
}

type transition func(s *Session, value string) (Step, error)

// transitions is the closed table: any (stage, input) pair absent here is
// rejected without changing state.
var transitions = map[Stage]map[InputKind]transition{
	StageDays: {
		InputDays:   (*Session).chooseDays,
		InputCancel: (*Session).cancel,
	},
	StagePeriod: {
		InputPeriod: (*Session).choosePeriod,
		InputCancel: (*Session).cancel,
	},
	StageHour: {
		InputHour:   (*Session).chooseHour,
		InputCancel: (*Session).cancel,
	},
}

// Apply feeds one input. A rejected input leaves the session where it was.
func (s *Session) Apply(in Input) (Step, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := transitions[s.stage][in.Kind]
	if !ok {
		return Step{Stage: s.stage}, reminder.E(reminder.KindValidation, "select "+in.Kind.String(),
			fmt.Errorf("%w: %s while %s", reminder.ErrWrongStage, in.Kind, s.stage))
	}
	return t(s, in.Value)
}

func (s *Session) Stage() Stage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stage
}

// Selected returns the days chosen so far (nil before the first step).
func (s *Session) Selected() reminder.DaySet {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append(reminder.DaySet(nil), s.days...)
}

// Candidates returns the hour labels currently on offer.
func (s *Session) Candidates() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.candidates...)
}

func (s *Session) chooseDays(key string) (Step, error) {
	g, ok := dayGroup(key)
	if !ok {
		return Step{Stage: s.stage}, invalid("select days", key)
	}
	s.days = g.Days
	s.stage = StagePeriod
	return Step{Stage: s.stage}, nil
}

func (s *Session) choosePeriod(key string) (Step, error) {
	p, ok := period(key)
	if !ok {
		return Step{Stage: s.stage}, invalid("select period", key)
	}
	s.candidates = append([]string(nil), p.Hours...)
	s.stage = StageHour
	return Step{Stage: s.stage, Candidates: append([]string(nil), s.candidates...)}, nil
}

func (s *Session) chooseHour(label string) (Step, error) {
	offered := false
	for _, c := range s.candidates {
		if c == label {
			offered = true
			break
		}
	}
	if !offered {
		return Step{Stage: s.stage}, invalid("select hour", label)
	}
	tod, err := reminder.ParseClockLabel(label)
	if err != nil {
		return Step{Stage: s.stage}, err
	}
	s.stage = StageComplete
	return Step{Stage: s.stage, Result: &Result{Chat: s.Chat, User: s.User, Time: tod, Days: s.days}}, nil
}

func (s *Session) cancel(string) (Step, error) {
	s.stage = StageCancelled
	s.days = nil
	s.candidates = nil
	return Step{Stage: s.stage}, nil
}

func invalid(op, value string) error {
	return reminder.E(reminder.KindValidation, op, fmt.Errorf("%w: %q", reminder.ErrInvalidChoice, value))
}
