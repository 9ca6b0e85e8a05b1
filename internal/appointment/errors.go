package appointment

import "errors"

// Error kinds. Every error returned by Service for a rejected request wraps
// exactly one of these, so callers can classify it with errors.Is.
var (
	ErrNotFound          = errors.New("not found")
	ErrForbidden         = errors.New("forbidden")
	ErrConflict          = errors.New("conflict")
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrInvalidTransition = errors.New("invalid transition")
)

// Error carries a human-readable message and the kind it belongs to.
type Error struct {
	Kind error
	Msg  string
}

func (e *Error) Error() string { return e.Msg }

func (e *Error) Unwrap() error { return e.Kind }

func newError(kind error, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

var (
	ErrPatientNotFound      = newError(ErrNotFound, "patient not found")
	ErrDoctorNotFound       = newError(ErrNotFound, "doctor not found")
	ErrSlotNotFound         = newError(ErrNotFound, "schedule slot not found")
	ErrAppointmentNotFound  = newError(ErrNotFound, "appointment not found")
	ErrNotificationNotFound = newError(ErrNotFound, "notification not found")

	ErrOnlyPatientsBook    = newError(ErrForbidden, "only patients can book appointments")
	ErrNotAppointmentOwner = newError(ErrForbidden, "you are not a party to this appointment")
	ErrActorNotAllowed     = newError(ErrForbidden, "your role may not perform this status change")
	ErrNotSlotOwner        = newError(ErrForbidden, "doctors may only manage their own schedule")
	ErrScheduleAccess      = newError(ErrForbidden, "only doctors and admins manage schedules")

	ErrSlotAlreadyBooked = newError(ErrConflict, "this time slot is no longer available")
	ErrSlotBeingBooked   = newError(ErrConflict, "slot is currently being booked, please retry")
	ErrSlotOverlap       = newError(ErrConflict, "slot overlaps an existing slot for this doctor")
	ErrSlotHasBooking    = newError(ErrConflict, "slot has an active appointment and cannot be deleted")

	ErrInvalidInterval = newError(ErrInvalidArgument, "start time must be before end time")
	ErrDoctorRequired  = newError(ErrInvalidArgument, "doctor is required for admin users")
	ErrUnknownStatus   = newError(ErrInvalidArgument, "unknown appointment status")

	ErrTerminalStatus      = newError(ErrInvalidTransition, "appointment is no longer pending")
	ErrInvalidStatusTarget = newError(ErrInvalidTransition, "appointment can only be confirmed or cancelled")
)
