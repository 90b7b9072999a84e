package reminder

import (
	"errors"
	"strings"
)

// Kind classifies failures so callers can decide how to react without
// matching on strings.
type Kind uint8

const (
	KindUnknown Kind = iota
	// KindValidation: bad user input. The interaction stays where it was.
	KindValidation
	// KindPersistence: the store rejected a read or write.
	KindPersistence
	// KindScheduling: a record exists but its job could not be armed.
	KindScheduling
	// KindDelivery: the message transport failed for one occurrence.
	KindDelivery
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindPersistence:
		return "persistence"
	case KindScheduling:
		return "scheduling"
	case KindDelivery:
		return "delivery"
	default:
		return "unknown"
	}
}

var (
	ErrInvalidChoice = errors.New("invalid choice")
	ErrWrongStage    = errors.New("input not expected at this step")
	ErrNoSession     = errors.New("no active session")
	ErrNotFound      = errors.New("reminder not found")
	ErrNotReady      = errors.New("reminders are still loading")
	ErrStopped       = errors.New("reminders are stopped")
	ErrCorruptRecord = errors.New("corrupt reminder record")
)

// Error carries a Kind alongside the failing operation.
type Error struct {
	Kind Kind
	Op   string
	ID   ID
	Err  error
}

func newError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// E wraps err with a kind and operation name. A nil err stays nil.
func E(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return newError(kind, op, err)
}

// EID is E with the affected reminder id attached.
func EID(kind Kind, op string, id ID, err error) error {
	if err == nil {
		return nil
	}
	e := newError(kind, op, err)
	e.ID = id
	return e
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	if e.Op != "" {
		b.WriteString(": ")
		b.WriteString(e.Op)
	}
	if e.ID != "" {
		b.WriteString(" [")
		b.WriteString(string(e.ID))
		b.WriteString("]")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the Kind of the outermost *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

func IsKind(err error, k Kind) bool { return err != nil && KindOf(err) == k }
