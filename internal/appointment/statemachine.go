package appointment

import (
	"strings"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-booking/internal/auth"
)

// party is the relation of an actor to a particular appointment.
type party int

const (
	partyNone party = iota
	partyPatient
	partyDoctor
	partyAdmin
)

// transitions lists, per source status, the reachable targets and the parties allowed to
// request each. Statuses without an entry are terminal.
var transitions = map[AppointmentStatus]map[AppointmentStatus][]party{
	StatusPending: {
		StatusConfirmed: {partyDoctor, partyAdmin},
		StatusCancelled: {partyDoctor, partyPatient, partyAdmin},
	},
}

// ParseStatus accepts any casing of a known status name.
func ParseStatus(s string) (AppointmentStatus, error) {
	switch st := AppointmentStatus(strings.ToUpper(strings.TrimSpace(s))); st {
	case StatusPending, StatusConfirmed, StatusCancelled:
		return st, nil
	}
	return "", ErrUnknownStatus
}

// IsTerminal reports whether no transition leaves status.
func IsTerminal(status AppointmentStatus) bool {
	return len(transitions[status]) == 0
}

func partyOf(actor auth.Actor, patientID, doctorID uuid.UUID) party {
	switch actor.Role {
	case auth.RoleAdmin:
		return partyAdmin
	case auth.RoleDoctor:
		if actor.ID == doctorID {
			return partyDoctor
		}
	case auth.RolePatient:
		if actor.ID == patientID {
			return partyPatient
		}
	}
	return partyNone
}

// checkTransition validates moving an appointment from one status to another on behalf of
// actor. doctorID is the owner of the appointment's slot.
func checkTransition(actor auth.Actor, appt Appointment, doctorID uuid.UUID, to AppointmentStatus) error {
	p := partyOf(actor, appt.PatientID, doctorID)
	if p == partyNone {
		return ErrNotAppointmentOwner
	}

	targets, ok := transitions[appt.Status]
	if !ok {
		return ErrTerminalStatus
	}
	allowed, ok := targets[to]
	if !ok {
		return ErrInvalidStatusTarget
	}
	for _, a := range allowed {
		if a == p {
			return nil
		}
	}
	return ErrActorNotAllowed
}
