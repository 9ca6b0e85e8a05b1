package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-booking/internal/auth"
	"github.com/hackgods/clinic-booking/internal/civil"
	redisclient "github.com/hackgods/clinic-booking/internal/redis"
)

const (
	EventAppointmentCreated   = "APPOINTMENT_CREATED"
	EventAppointmentConfirmed = "APPOINTMENT_CONFIRMED"
	EventAppointmentCancelled = "APPOINTMENT_CANCELLED"
	EventSlotCreated          = "SLOT_CREATED"
	EventSlotDeleted          = "SLOT_DELETED"
)

type Service struct {
	repo   Repository
	locker redisclient.Locker
	logger *zap.Logger
	now    func() time.Time
}

func NewService(repo Repository, locker redisclient.Locker, logger *zap.Logger) *Service {
	return &Service{
		repo:   repo,
		locker: locker,
		logger: logger,
		now:    time.Now,
	}
}

// wrap adds context to storage failures but leaves classified errors untouched so
// their message reaches the caller as-is.
func wrap(err error, op string) error {
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return fmt.Errorf("%s: %w", op, err)
}

// -- Doctors --

func (s *Service) GetDoctor(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	d, err := s.repo.GetDoctorByID(ctx, id)
	if err != nil {
		return nil, wrap(err, "load doctor")
	}
	return d, nil
}

// SearchDoctors matches specialty case-insensitively as a substring; empty matches all.
func (s *Service) SearchDoctors(ctx context.Context, specialty string) ([]Doctor, error) {
	doctors, err := s.repo.SearchDoctors(ctx, specialty)
	if err != nil {
		return nil, wrap(err, "search doctors")
	}
	if doctors == nil {
		doctors = []Doctor{}
	}
	return doctors, nil
}

// -- Availability --

// ListOpenSlots returns the doctor's slots on date that no active appointment holds,
// ordered by start time. An empty result means the day is fully booked or unoffered.
func (s *Service) ListOpenSlots(ctx context.Context, doctorID uuid.UUID, date civil.Date) ([]ScheduleSlot, error) {
	if _, err := s.repo.GetDoctorByID(ctx, doctorID); err != nil {
		return nil, wrap(err, "load doctor")
	}

	slots, err := s.repo.ListOpenSlots(ctx, doctorID, date)
	if err != nil {
		return nil, wrap(err, "list open slots")
	}
	if slots == nil {
		slots = []ScheduleSlot{}
	}
	return slots, nil
}

// -- Booking --

// BookSlot creates a pending appointment for the calling patient.
// A per-slot lock keeps concurrent attempts from racing into the store; the store's
// uniqueness constraint remains the final arbiter.
func (s *Service) BookSlot(ctx context.Context, actor auth.Actor, slotID uuid.UUID) (*Appointment, error) {
	if !actor.Is(auth.RolePatient) {
		return nil, ErrOnlyPatientsBook
	}

	patient, err := s.repo.GetPatientByID(ctx, actor.ID)
	if err != nil {
		return nil, wrap(err, "load patient")
	}

	slot, err := s.repo.GetSlotByID(ctx, slotID)
	if err != nil {
		return nil, wrap(err, "load slot")
	}

	if err := s.ensureSlotOpen(ctx, slotID); err != nil {
		return nil, err
	}

	var created *Appointment

	err = s.locker.WithSlotLock(ctx, slotID, func(lockCtx context.Context) error {
		// Re-check inside the critical section
		if err := s.ensureSlotOpen(lockCtx, slotID); err != nil {
			return err
		}

		appt, err := s.repo.CreatePendingAppointment(lockCtx, slotID, patient.ID)
		if err != nil {
			return wrap(err, "create pending appointment")
		}
		created = appt
		return nil
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrSlotBeingBooked
		}
		return nil, err
	}

	s.logger.Info("appointment booked",
		zap.String("appointment_id", created.ID.String()),
		zap.String("slot_id", slotID.String()),
		zap.String("patient_id", patient.ID.String()))

	s.logEvent(ctx, created.ID, EventAppointmentCreated, map[string]any{
		"slot_id":    slotID.String(),
		"patient_id": patient.ID.String(),
	})

	doctorName := "your doctor"
	if d, err := s.repo.GetDoctorByID(ctx, slot.DoctorID); err == nil {
		doctorName = "Dr. " + d.Name
	} else {
		s.logger.Warn("doctor lookup for notification failed", zap.Error(err))
	}
	when := fmt.Sprintf("%s at %s", slot.Date, slot.StartTime)
	s.notify(ctx, patient.ID, created.ID, NotificationBooked,
		fmt.Sprintf("Your appointment with %s on %s has been booked.", doctorName, when))
	s.notify(ctx, slot.DoctorID, created.ID, NotificationBooked,
		fmt.Sprintf("New appointment booked by %s on %s.", patient.Name, when))

	return created, nil
}

func (s *Service) ensureSlotOpen(ctx context.Context, slotID uuid.UUID) error {
	existing, err := s.repo.GetActiveAppointmentForSlot(ctx, slotID)
	if err != nil && !errors.Is(err, ErrAppointmentNotFound) {
		return fmt.Errorf("check active appointment: %w", err)
	}
	if existing != nil {
		return ErrSlotAlreadyBooked
	}
	return nil
}

// -- Status transitions --

// Transition moves an appointment to status to on behalf of actor. Only parties to the
// appointment (its patient, the doctor owning its slot) and admins may request changes.
func (s *Service) Transition(ctx context.Context, actor auth.Actor, id uuid.UUID, to AppointmentStatus) (*Appointment, error) {
	detail, err := s.repo.GetAppointmentDetail(ctx, id)
	if err != nil {
		return nil, wrap(err, "load appointment")
	}

	if err := checkTransition(actor, detail.Appointment, detail.Slot.DoctorID, to); err != nil {
		return nil, err
	}

	updated, err := s.repo.UpdateAppointmentStatus(ctx, id, detail.Status, to)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			// Someone else moved it first
			return nil, ErrTerminalStatus
		}
		return nil, wrap(err, "update appointment status")
	}

	s.logger.Info("appointment status changed",
		zap.String("appointment_id", id.String()),
		zap.String("from", string(detail.Status)),
		zap.String("to", string(to)),
		zap.String("actor_role", string(actor.Role)))

	when := fmt.Sprintf("%s at %s", detail.Slot.Date, detail.Slot.StartTime)
	switch to {
	case StatusConfirmed:
		s.logEvent(ctx, id, EventAppointmentConfirmed, map[string]any{"actor_role": actor.Role})
		s.notify(ctx, detail.PatientID, id, NotificationConfirmed,
			fmt.Sprintf("Your appointment with Dr. %s on %s has been confirmed.", detail.DoctorName, when))
	case StatusCancelled:
		s.logEvent(ctx, id, EventAppointmentCancelled, map[string]any{"actor_role": actor.Role})
		s.notify(ctx, detail.PatientID, id, NotificationCancelled,
			fmt.Sprintf("Your appointment with Dr. %s on %s has been cancelled.", detail.DoctorName, when))
		s.notify(ctx, detail.Slot.DoctorID, id, NotificationCancelled,
			fmt.Sprintf("Appointment with %s on %s has been cancelled.", detail.PatientName, when))
	}

	return updated, nil
}

func (s *Service) ConfirmAppointment(ctx context.Context, actor auth.Actor, id uuid.UUID) (*Appointment, error) {
	return s.Transition(ctx, actor, id, StatusConfirmed)
}

func (s *Service) CancelAppointment(ctx context.Context, actor auth.Actor, id uuid.UUID) (*Appointment, error) {
	return s.Transition(ctx, actor, id, StatusCancelled)
}

// CancelStalePending cancels pending appointments whose slot is already over. It is
// called periodically by the sweeper and returns how many were cancelled.
func (s *Service) CancelStalePending(ctx context.Context) (int, error) {
	stale, err := s.repo.FindStalePending(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("find stale pending appointments: %w", err)
	}

	cancelled := 0
	for _, d := range stale {
		_, err := s.Transition(ctx, auth.SystemActor, d.ID, StatusCancelled)
		if err != nil {
			if !errors.Is(err, ErrInvalidTransition) {
				s.logger.Error("failed to cancel stale appointment",
					zap.String("appointment_id", d.ID.String()), zap.Error(err))
			}
			continue
		}
		cancelled++
	}
	return cancelled, nil
}

// -- Listings --

// ListAppointments returns the appointments visible to actor, optionally restricted to
// slots on date.
func (s *Service) ListAppointments(ctx context.Context, actor auth.Actor, date *civil.Date) ([]AppointmentDetail, error) {
	filter := AppointmentFilter{Date: date}
	switch actor.Role {
	case auth.RolePatient:
		filter.PatientID = &actor.ID
	case auth.RoleDoctor:
		filter.DoctorID = &actor.ID
	case auth.RoleAdmin:
	default:
		return []AppointmentDetail{}, nil
	}

	list, err := s.repo.ListAppointments(ctx, filter)
	if err != nil {
		return nil, wrap(err, "list appointments")
	}
	if list == nil {
		list = []AppointmentDetail{}
	}
	return list, nil
}

// GetAppointment returns an appointment if actor is a party to it. Others get
// ErrAppointmentNotFound so they cannot probe for ids.
func (s *Service) GetAppointment(ctx context.Context, actor auth.Actor, id uuid.UUID) (*AppointmentDetail, error) {
	detail, err := s.repo.GetAppointmentDetail(ctx, id)
	if err != nil {
		return nil, wrap(err, "load appointment")
	}
	if partyOf(actor, detail.PatientID, detail.Slot.DoctorID) == partyNone {
		return nil, ErrAppointmentNotFound
	}
	return detail, nil
}

// -- Schedule ownership --

// ListSlots returns every slot the actor manages: a doctor's own, or all for admins.
func (s *Service) ListSlots(ctx context.Context, actor auth.Actor) ([]ScheduleSlot, error) {
	var doctorID *uuid.UUID
	switch actor.Role {
	case auth.RoleDoctor:
		doctorID = &actor.ID
	case auth.RoleAdmin:
	default:
		return nil, ErrScheduleAccess
	}

	slots, err := s.repo.ListSlots(ctx, doctorID)
	if err != nil {
		return nil, wrap(err, "list slots")
	}
	if slots == nil {
		slots = []ScheduleSlot{}
	}
	return slots, nil
}

// CreateSlot adds availability for a doctor. Doctors create for themselves (doctorID may
// be uuid.Nil); admins must name the doctor.
func (s *Service) CreateSlot(ctx context.Context, actor auth.Actor, doctorID uuid.UUID, date civil.Date, start, end civil.TimeOfDay) (*ScheduleSlot, error) {
	switch actor.Role {
	case auth.RoleDoctor:
		if doctorID == uuid.Nil {
			doctorID = actor.ID
		}
		if doctorID != actor.ID {
			return nil, ErrNotSlotOwner
		}
	case auth.RoleAdmin:
		if doctorID == uuid.Nil {
			return nil, ErrDoctorRequired
		}
	default:
		return nil, ErrScheduleAccess
	}

	if start >= end {
		return nil, ErrInvalidInterval
	}

	if _, err := s.repo.GetDoctorByID(ctx, doctorID); err != nil {
		return nil, wrap(err, "load doctor")
	}

	slot := ScheduleSlot{
		ID:        uuid.New(),
		DoctorID:  doctorID,
		Date:      date,
		StartTime: start,
		EndTime:   end,
	}

	overlaps, err := s.repo.HasOverlappingSlot(ctx, slot)
	if err != nil {
		return nil, wrap(err, "check overlapping slots")
	}
	if overlaps {
		return nil, ErrSlotOverlap
	}

	created, err := s.repo.CreateSlot(ctx, slot)
	if err != nil {
		return nil, wrap(err, "create slot")
	}

	s.logger.Info("slot created",
		zap.String("slot_id", created.ID.String()),
		zap.String("doctor_id", doctorID.String()),
		zap.Stringer("date", created.Date),
		zap.Stringer("start", created.StartTime),
		zap.Stringer("end", created.EndTime))
	s.logEvent(ctx, uuid.Nil, EventSlotCreated, map[string]any{
		"slot_id":   created.ID.String(),
		"doctor_id": doctorID.String(),
	})

	return created, nil
}

// DeleteSlot removes a slot. A doctor can only see, and therefore delete, their own
// slots; a slot still held by an active appointment is refused with a conflict.
func (s *Service) DeleteSlot(ctx context.Context, actor auth.Actor, slotID uuid.UUID) error {
	if !actor.Is(auth.RoleDoctor) && !actor.Is(auth.RoleAdmin) {
		return ErrScheduleAccess
	}

	slot, err := s.repo.GetSlotByID(ctx, slotID)
	if err != nil {
		return wrap(err, "load slot")
	}
	if actor.Is(auth.RoleDoctor) && slot.DoctorID != actor.ID {
		return ErrSlotNotFound
	}

	if err := s.repo.DeleteSlot(ctx, slotID); err != nil {
		return wrap(err, "delete slot")
	}

	s.logger.Info("slot deleted", zap.String("slot_id", slotID.String()))
	s.logEvent(ctx, uuid.Nil, EventSlotDeleted, map[string]any{
		"slot_id":   slotID.String(),
		"doctor_id": slot.DoctorID.String(),
	})
	return nil
}

// -- Notifications --

func (s *Service) ListNotifications(ctx context.Context, actor auth.Actor) ([]Notification, error) {
	list, err := s.repo.ListNotifications(ctx, actor.ID)
	if err != nil {
		return nil, wrap(err, "list notifications")
	}
	if list == nil {
		list = []Notification{}
	}
	return list, nil
}

func (s *Service) MarkNotificationRead(ctx context.Context, actor auth.Actor, id uuid.UUID) (*Notification, error) {
	n, err := s.repo.MarkNotificationRead(ctx, id, actor.ID)
	if err != nil {
		return nil, wrap(err, "mark notification read")
	}
	return n, nil
}

func (s *Service) notify(ctx context.Context, userID, appointmentID uuid.UUID, typ NotificationType, msg string) {
	apptID := appointmentID
	n := Notification{
		ID:            uuid.New(),
		UserID:        userID,
		AppointmentID: &apptID,
		Type:          typ,
		Message:       msg,
		CreatedAt:     s.now(),
	}
	if err := s.repo.CreateNotification(ctx, n); err != nil {
		s.logger.Warn("failed to create notification",
			zap.String("type", string(typ)),
			zap.String("user_id", userID.String()),
			zap.Error(err))
	}
}

func (s *Service) logEvent(ctx context.Context, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Warn("failed to marshal event payload", zap.String("event", eventType), zap.Error(err))
		data = nil
	}

	ev := EventLog{
		EventType: eventType,
		Payload:   data,
		CreatedAt: s.now(),
	}
	if appointmentID != uuid.Nil {
		apptID := appointmentID
		ev.AppointmentID = &apptID
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.logger.Warn("failed to insert event log",
			zap.String("event", eventType),
			zap.String("appointment_id", appointmentID.String()),
			zap.Error(err))
	}
}
