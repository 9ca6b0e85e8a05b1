package appointment

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-booking/internal/civil"
)

// Repository contains all storage interactions needed by the service.
//
// Implementations must enforce two invariants themselves rather than trust the
// service's pre-checks: at most one non-cancelled appointment per slot
// (CreatePendingAppointment returns ErrSlotAlreadyBooked), and no overlapping
// slots per doctor and date (CreateSlot returns ErrSlotOverlap).
type Repository interface {
	GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error)
	SearchDoctors(ctx context.Context, specialty string) ([]Doctor, error)

	// Slots
	GetSlotByID(ctx context.Context, id uuid.UUID) (*ScheduleSlot, error)
	ListSlots(ctx context.Context, doctorID *uuid.UUID) ([]ScheduleSlot, error)
	ListOpenSlots(ctx context.Context, doctorID uuid.UUID, date civil.Date) ([]ScheduleSlot, error)
	HasOverlappingSlot(ctx context.Context, slot ScheduleSlot) (bool, error)
	CreateSlot(ctx context.Context, slot ScheduleSlot) (*ScheduleSlot, error)
	// DeleteSlot removes a slot and any cancelled appointments referencing it. It returns
	// ErrSlotHasBooking if a non-cancelled appointment still holds the slot.
	DeleteSlot(ctx context.Context, id uuid.UUID) error

	// Appointments
	GetActiveAppointmentForSlot(ctx context.Context, slotID uuid.UUID) (*Appointment, error)
	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	GetAppointmentDetail(ctx context.Context, id uuid.UUID) (*AppointmentDetail, error)
	ListAppointments(ctx context.Context, filter AppointmentFilter) ([]AppointmentDetail, error)
	CreatePendingAppointment(ctx context.Context, slotID, patientID uuid.UUID) (*Appointment, error)
	// UpdateAppointmentStatus is a compare-and-set on the current status. It returns
	// ErrAppointmentNotFound when no appointment with id has status from.
	UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error)
	// FindStalePending returns pending appointments whose slot ended before now.
	FindStalePending(ctx context.Context, now time.Time) ([]AppointmentDetail, error)

	// Notifications
	CreateNotification(ctx context.Context, n Notification) error
	ListNotifications(ctx context.Context, userID uuid.UUID) ([]Notification, error)
	MarkNotificationRead(ctx context.Context, id, userID uuid.UUID) (*Notification, error)

	// Event logging
	InsertEvent(ctx context.Context, ev EventLog) error
}
