package engine

import (
	"errors"
	"fmt"
)

// Precondition failures.
var (
	ErrNotJoined        = errors.New("not joined to a room")
	ErrRollInProgress   = errors.New("roll already in progress for section")
	ErrRollNotFound     = errors.New("roll not found")
	ErrNotOwner         = errors.New("only the roller can reveal")
	ErrAlreadyCompleted = errors.New("roll already completed")
)

// Validation failures.
var (
	ErrMissingIdentity   = errors.New("room code and player name are required")
	ErrUnknownSection    = errors.New("unknown section")
	ErrInvalidDiceCounts = errors.New("dice counts must be 0 or higher")
	ErrInvalidAction     = errors.New("invalid action type")
	ErrActionDiceRange   = errors.New("action rolls must use 1 to 3 dice")
	ErrCorpDiceCount     = errors.New("corp rolls must use 2 or 3 yellow dice")
	ErrTaskDiceRange     = errors.New("task rolls must use 1 to 6 dice")
	ErrInvalidSelection  = errors.New("invalid dice selection")
	ErrSingleDieReveal   = fmt.Errorf("%w: exactly one die must be revealed", ErrInvalidSelection)
)

var ErrUnsupportedCommand = errors.New("unsupported command")

var preconditionErrs = []error{
	ErrNotJoined, ErrRollInProgress, ErrRollNotFound, ErrNotOwner, ErrAlreadyCompleted,
}

var validationErrs = []error{
	ErrMissingIdentity, ErrUnknownSection, ErrInvalidDiceCounts, ErrInvalidAction,
	ErrActionDiceRange, ErrCorpDiceCount, ErrTaskDiceRange, ErrInvalidSelection,
}

// SectionError tags a rejected request with the section it concerns. Section
// is the raw value the client sent when the roll could not be resolved.
type SectionError struct {
	Section Section
	Err     error
}

func (e *SectionError) Error() string {
	if e.Section == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Section, e.Err)
}

func (e *SectionError) Unwrap() error { return e.Err }

func sectionErr(section Section, err error) error {
	return &SectionError{Section: section, Err: err}
}

// SectionOf returns the section a rejection was tagged with, or "".
func SectionOf(err error) Section {
	var se *SectionError
	if errors.As(err, &se) {
		return se.Section
	}
	return ""
}

func IsPrecondition(err error) bool { return isAny(err, preconditionErrs) }

func IsValidation(err error) bool { return isAny(err, validationErrs) }

func isAny(err error, targets []error) bool {
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
