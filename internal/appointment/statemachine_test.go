package appointment

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-booking/internal/auth"
)

func TestCheckTransition(t *testing.T) {
	patientID := uuid.New()
	doctorID := uuid.New()

	owner := auth.Actor{ID: patientID, Role: auth.RolePatient}
	otherPatient := auth.Actor{ID: uuid.New(), Role: auth.RolePatient}
	doctor := auth.Actor{ID: doctorID, Role: auth.RoleDoctor}
	otherDoctor := auth.Actor{ID: uuid.New(), Role: auth.RoleDoctor}
	admin := auth.Actor{ID: uuid.New(), Role: auth.RoleAdmin}

	tests := []struct {
		name  string
		actor auth.Actor
		from  AppointmentStatus
		to    AppointmentStatus
		want  error
	}{
		{"doctor confirms", doctor, StatusPending, StatusConfirmed, nil},
		{"admin confirms", admin, StatusPending, StatusConfirmed, nil},
		{"patient confirms", owner, StatusPending, StatusConfirmed, ErrForbidden},
		{"doctor cancels", doctor, StatusPending, StatusCancelled, nil},
		{"patient cancels", owner, StatusPending, StatusCancelled, nil},
		{"admin cancels", admin, StatusPending, StatusCancelled, nil},
		{"other patient cancels", otherPatient, StatusPending, StatusCancelled, ErrForbidden},
		{"other doctor confirms", otherDoctor, StatusPending, StatusConfirmed, ErrForbidden},
		{"pending to pending", doctor, StatusPending, StatusPending, ErrInvalidTransition},
		{"confirmed is terminal", admin, StatusConfirmed, StatusCancelled, ErrInvalidTransition},
		{"cancelled is terminal", doctor, StatusCancelled, StatusConfirmed, ErrInvalidTransition},
		{"cancelled to cancelled", owner, StatusCancelled, StatusCancelled, ErrInvalidTransition},
		{"stranger on terminal", otherPatient, StatusConfirmed, StatusCancelled, ErrForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			appt := Appointment{ID: uuid.New(), PatientID: patientID, Status: tt.from}
			err := checkTransition(tt.actor, appt, doctorID, tt.to)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestParseStatus(t *testing.T) {
	st, err := ParseStatus("confirmed")
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, st)

	_, err = ParseStatus("done")
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestIsTerminal(t *testing.T) {
	assert.False(t, IsTerminal(StatusPending))
	assert.True(t, IsTerminal(StatusConfirmed))
	assert.True(t, IsTerminal(StatusCancelled))
}
