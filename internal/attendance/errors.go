package attendance

import "errors"

// PreconditionError reports a transition that is not allowed from the current
// state. Nothing is changed when one is returned.
type PreconditionError struct {
	Code    string
	message string
}

func (e *PreconditionError) Error() string {
	return "attendance: " + e.message
}

var (
	// ErrAlreadyCheckedIn indicates a check-in into the zone the registrant is already in.
	ErrAlreadyCheckedIn = &PreconditionError{Code: "already_checked_in", message: "already checked in"}
	// ErrNotCheckedIn indicates a check-out or switch while outside.
	ErrNotCheckedIn = &PreconditionError{Code: "not_checked_in", message: "not checked in"}
	// ErrAlreadyInZone indicates a switch into the current zone.
	ErrAlreadyInZone = &PreconditionError{Code: "already_in_zone", message: "already in zone"}
	// ErrInsideAnotherZone indicates a check-in while inside a different zone.
	ErrInsideAnotherZone = &PreconditionError{Code: "inside_another_zone", message: "inside another zone"}
	// ErrUnknownZone indicates the zone is not configured for the day.
	ErrUnknownZone = &PreconditionError{Code: "unknown_zone", message: "unknown zone"}
)

// AsPrecondition extracts the PreconditionError from err.
func AsPrecondition(err error) (*PreconditionError, bool) {
	var pe *PreconditionError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}
