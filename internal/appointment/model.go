package appointment

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-booking/internal/civil"
)

type AppointmentStatus string

const (
	StatusPending   AppointmentStatus = "PENDING"
	StatusConfirmed AppointmentStatus = "CONFIRMED"
	StatusCancelled AppointmentStatus = "CANCELLED"
)

type NotificationType string

const (
	NotificationBooked    NotificationType = "APPOINTMENT_BOOKED"
	NotificationConfirmed NotificationType = "APPOINTMENT_CONFIRMED"
	NotificationCancelled NotificationType = "APPOINTMENT_CANCELLED"
)

type Patient struct {
	ID          uuid.UUID
	Name        string
	Email       *string
	DateOfBirth *civil.Date
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Doctor struct {
	ID            uuid.UUID
	Name          string
	Specialty     string
	LicenseNumber string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ScheduleSlot is an interval a doctor offers on one date. Whether it is
// booked is derived from the appointments referencing it, never stored.
type ScheduleSlot struct {
	ID        uuid.UUID
	DoctorID  uuid.UUID
	Date      civil.Date
	StartTime civil.TimeOfDay
	EndTime   civil.TimeOfDay
	CreatedAt time.Time
}

// Overlaps reports whether two slots of the same doctor collide on the same date.
func (s ScheduleSlot) Overlaps(o ScheduleSlot) bool {
	return s.DoctorID == o.DoctorID &&
		s.Date == o.Date &&
		civil.Overlaps(s.StartTime, s.EndTime, o.StartTime, o.EndTime)
}

// EndsAt is the UTC instant at which the slot is over.
func (s ScheduleSlot) EndsAt() time.Time {
	return s.EndTime.On(s.Date)
}

type Appointment struct {
	ID        uuid.UUID
	SlotID    uuid.UUID
	PatientID uuid.UUID
	Status    AppointmentStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Active reports whether the appointment still holds its slot.
func (a Appointment) Active() bool {
	return a.Status != StatusCancelled
}

type AppointmentDetail struct {
	Appointment
	Slot        ScheduleSlot
	DoctorName  string
	PatientName string
}

type Notification struct {
	ID            uuid.UUID
	UserID        uuid.UUID
	AppointmentID *uuid.UUID
	Type          NotificationType
	Message       string
	IsRead        bool
	CreatedAt     time.Time
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}

// AppointmentFilter scopes appointment listings. Nil fields are not applied.
type AppointmentFilter struct {
	PatientID *uuid.UUID
	DoctorID  *uuid.UUID
	Date      *civil.Date
}
