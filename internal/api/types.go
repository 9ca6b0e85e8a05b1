package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-booking/internal/appointment"
	"github.com/hackgods/clinic-booking/internal/civil"
)

type BookRequest struct {
	Schedule string `json:"schedule" validate:"required,uuid"`
}

type CreateSlotRequest struct {
	Doctor    string `json:"doctor" validate:"omitempty,uuid"`
	Date      string `json:"date" validate:"required,datetime=2006-01-02"`
	StartTime string `json:"start_time" validate:"required"`
	EndTime   string `json:"end_time" validate:"required"`
}

type UpdateAppointmentRequest struct {
	Status string `json:"status" validate:"required"`
}

type DoctorResponse struct {
	ID            uuid.UUID `json:"id"`
	Name          string    `json:"name"`
	Specialty     string    `json:"specialty"`
	LicenseNumber string    `json:"license_number"`
}

type SlotResponse struct {
	ID        uuid.UUID       `json:"id"`
	DoctorID  uuid.UUID       `json:"doctor"`
	Date      civil.Date      `json:"date"`
	StartTime civil.TimeOfDay `json:"start_time"`
	EndTime   civil.TimeOfDay `json:"end_time"`
}

type AppointmentResponse struct {
	ID        uuid.UUID `json:"id"`
	SlotID    uuid.UUID `json:"schedule"`
	PatientID uuid.UUID `json:"patient"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type AppointmentDetailResponse struct {
	AppointmentResponse
	Doctor      uuid.UUID       `json:"doctor"`
	DoctorName  string          `json:"doctor_name"`
	PatientName string          `json:"patient_name"`
	Date        civil.Date      `json:"date"`
	StartTime   civil.TimeOfDay `json:"start_time"`
	EndTime     civil.TimeOfDay `json:"end_time"`
}

type NotificationResponse struct {
	ID            uuid.UUID  `json:"id"`
	AppointmentID *uuid.UUID `json:"appointment,omitempty"`
	Type          string     `json:"type"`
	Message       string     `json:"message"`
	IsRead        bool       `json:"is_read"`
	CreatedAt     time.Time  `json:"created_at"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func toDoctorResponse(d appointment.Doctor) DoctorResponse {
	return DoctorResponse{
		ID:            d.ID,
		Name:          d.Name,
		Specialty:     d.Specialty,
		LicenseNumber: d.LicenseNumber,
	}
}

func toSlotResponse(s appointment.ScheduleSlot) SlotResponse {
	return SlotResponse{
		ID:        s.ID,
		DoctorID:  s.DoctorID,
		Date:      s.Date,
		StartTime: s.StartTime,
		EndTime:   s.EndTime,
	}
}

func toAppointmentResponse(a appointment.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:        a.ID,
		SlotID:    a.SlotID,
		PatientID: a.PatientID,
		Status:    string(a.Status),
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
}

func toDetailResponse(d appointment.AppointmentDetail) AppointmentDetailResponse {
	return AppointmentDetailResponse{
		AppointmentResponse: toAppointmentResponse(d.Appointment),
		Doctor:              d.Slot.DoctorID,
		DoctorName:          d.DoctorName,
		PatientName:         d.PatientName,
		Date:                d.Slot.Date,
		StartTime:           d.Slot.StartTime,
		EndTime:             d.Slot.EndTime,
	}
}

func toNotificationResponse(n appointment.Notification) NotificationResponse {
	return NotificationResponse{
		ID:            n.ID,
		AppointmentID: n.AppointmentID,
		Type:          string(n.Type),
		Message:       n.Message,
		IsRead:        n.IsRead,
		CreatedAt:     n.CreatedAt,
	}
}

func mapSlice[T, R any](in []T, fn func(T) R) []R {
	out := make([]R, 0, len(in))
	for _, v := range in {
		out = append(out, fn(v))
	}
	return out
}
