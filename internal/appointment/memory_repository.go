package appointment

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-booking/internal/civil"
)

// MemoryRepository is a process-local Repository. A single mutex serializes every
// operation, which gives it the same uniqueness guarantees the Postgres schema enforces.
type MemoryRepository struct {
	mu            sync.RWMutex
	patients      map[uuid.UUID]Patient
	doctors       map[uuid.UUID]Doctor
	slots         map[uuid.UUID]ScheduleSlot
	appointments  map[uuid.UUID]Appointment
	notifications map[uuid.UUID]Notification
	events        []EventLog
	now           func() time.Time
}

var _ Repository = (*MemoryRepository)(nil)

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		patients:      make(map[uuid.UUID]Patient),
		doctors:       make(map[uuid.UUID]Doctor),
		slots:         make(map[uuid.UUID]ScheduleSlot),
		appointments:  make(map[uuid.UUID]Appointment),
		notifications: make(map[uuid.UUID]Notification),
		now:           time.Now,
	}
}

func (r *MemoryRepository) CreatePatient(_ context.Context, p Patient) (*Patient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	now := r.now()
	p.CreatedAt, p.UpdatedAt = now, now
	r.patients[p.ID] = p
	return &p, nil
}

func (r *MemoryRepository) CreateDoctor(_ context.Context, d Doctor) (*Doctor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.doctors {
		if existing.LicenseNumber == d.LicenseNumber {
			return nil, newError(ErrConflict, "license number already registered")
		}
	}
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	now := r.now()
	d.CreatedAt, d.UpdatedAt = now, now
	r.doctors[d.ID] = d
	return &d, nil
}

func (r *MemoryRepository) GetPatientByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.patients[id]
	if !ok {
		return nil, ErrPatientNotFound
	}
	return &p, nil
}

func (r *MemoryRepository) GetDoctorByID(_ context.Context, id uuid.UUID) (*Doctor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.doctors[id]
	if !ok {
		return nil, ErrDoctorNotFound
	}
	return &d, nil
}

func (r *MemoryRepository) SearchDoctors(_ context.Context, specialty string) ([]Doctor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	needle := strings.ToLower(specialty)
	var result []Doctor
	for _, d := range r.doctors {
		if strings.Contains(strings.ToLower(d.Specialty), needle) {
			result = append(result, d)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

func (r *MemoryRepository) GetSlotByID(_ context.Context, id uuid.UUID) (*ScheduleSlot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.slots[id]
	if !ok {
		return nil, ErrSlotNotFound
	}
	return &s, nil
}

func (r *MemoryRepository) ListSlots(_ context.Context, doctorID *uuid.UUID) ([]ScheduleSlot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []ScheduleSlot
	for _, s := range r.slots {
		if doctorID == nil || s.DoctorID == *doctorID {
			result = append(result, s)
		}
	}
	sortSlots(result)
	return result, nil
}

func (r *MemoryRepository) ListOpenSlots(_ context.Context, doctorID uuid.UUID, date civil.Date) ([]ScheduleSlot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []ScheduleSlot
	for _, s := range r.slots {
		if s.DoctorID != doctorID || s.Date != date {
			continue
		}
		if _, booked := r.activeForSlotLocked(s.ID); booked {
			continue
		}
		result = append(result, s)
	}
	sortSlots(result)
	return result, nil
}

func (r *MemoryRepository) HasOverlappingSlot(_ context.Context, slot ScheduleSlot) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.overlapsLocked(slot), nil
}

func (r *MemoryRepository) CreateSlot(_ context.Context, slot ScheduleSlot) (*ScheduleSlot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.overlapsLocked(slot) {
		return nil, ErrSlotOverlap
	}
	if slot.ID == uuid.Nil {
		slot.ID = uuid.New()
	}
	slot.CreatedAt = r.now()
	r.slots[slot.ID] = slot
	return &slot, nil
}

func (r *MemoryRepository) DeleteSlot(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.slots[id]; !ok {
		return ErrSlotNotFound
	}
	if _, booked := r.activeForSlotLocked(id); booked {
		return ErrSlotHasBooking
	}
	for apptID, a := range r.appointments {
		if a.SlotID == id {
			delete(r.appointments, apptID)
		}
	}
	delete(r.slots, id)
	return nil
}

func (r *MemoryRepository) GetActiveAppointmentForSlot(_ context.Context, slotID uuid.UUID) (*Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.activeForSlotLocked(slotID)
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return &a, nil
}

func (r *MemoryRepository) GetAppointmentByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return &a, nil
}

func (r *MemoryRepository) GetAppointmentDetail(_ context.Context, id uuid.UUID) (*AppointmentDetail, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	d := r.detailLocked(a)
	return &d, nil
}

func (r *MemoryRepository) ListAppointments(_ context.Context, filter AppointmentFilter) ([]AppointmentDetail, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []AppointmentDetail
	for _, a := range r.appointments {
		d := r.detailLocked(a)
		if filter.PatientID != nil && a.PatientID != *filter.PatientID {
			continue
		}
		if filter.DoctorID != nil && d.Slot.DoctorID != *filter.DoctorID {
			continue
		}
		if filter.Date != nil && d.Slot.Date != *filter.Date {
			continue
		}
		result = append(result, d)
	}
	sort.Slice(result, func(i, j int) bool {
		a, b := result[i], result[j]
		if a.Slot.Date != b.Slot.Date {
			return a.Slot.Date.Before(b.Slot.Date)
		}
		if a.Slot.StartTime != b.Slot.StartTime {
			return a.Slot.StartTime < b.Slot.StartTime
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})
	return result, nil
}

func (r *MemoryRepository) CreatePendingAppointment(_ context.Context, slotID, patientID uuid.UUID) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.slots[slotID]; !ok {
		return nil, ErrSlotNotFound
	}
	if _, booked := r.activeForSlotLocked(slotID); booked {
		return nil, ErrSlotAlreadyBooked
	}

	now := r.now()
	a := Appointment{
		ID:        uuid.New(),
		SlotID:    slotID,
		PatientID: patientID,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	r.appointments[a.ID] = a
	return &a, nil
}

func (r *MemoryRepository) UpdateAppointmentStatus(_ context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.appointments[id]
	if !ok || a.Status != from {
		return nil, ErrAppointmentNotFound
	}
	a.Status = to
	a.UpdatedAt = r.now()
	r.appointments[id] = a
	return &a, nil
}

func (r *MemoryRepository) FindStalePending(_ context.Context, now time.Time) ([]AppointmentDetail, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []AppointmentDetail
	for _, a := range r.appointments {
		if a.Status != StatusPending {
			continue
		}
		d := r.detailLocked(a)
		if d.Slot.EndsAt().Before(now) {
			result = append(result, d)
		}
	}
	return result, nil
}

func (r *MemoryRepository) CreateNotification(_ context.Context, n Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = r.now()
	}
	r.notifications[n.ID] = n
	return nil
}

func (r *MemoryRepository) ListNotifications(_ context.Context, userID uuid.UUID) ([]Notification, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []Notification
	for _, n := range r.notifications {
		if n.UserID == userID {
			result = append(result, n)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return result, nil
}

func (r *MemoryRepository) MarkNotificationRead(_ context.Context, id, userID uuid.UUID) (*Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n, ok := r.notifications[id]
	if !ok || n.UserID != userID {
		return nil, ErrNotificationNotFound
	}
	n.IsRead = true
	r.notifications[id] = n
	return &n, nil
}

func (r *MemoryRepository) InsertEvent(_ context.Context, ev EventLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ev.ID = int64(len(r.events) + 1)
	r.events = append(r.events, ev)
	return nil
}

// Events returns a copy of the event log.
func (r *MemoryRepository) Events() []EventLog {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]EventLog, len(r.events))
	copy(out, r.events)
	return out
}

func (r *MemoryRepository) activeForSlotLocked(slotID uuid.UUID) (Appointment, bool) {
	for _, a := range r.appointments {
		if a.SlotID == slotID && a.Active() {
			return a, true
		}
	}
	return Appointment{}, false
}

func (r *MemoryRepository) overlapsLocked(slot ScheduleSlot) bool {
	for _, existing := range r.slots {
		if existing.ID != slot.ID && existing.Overlaps(slot) {
			return true
		}
	}
	return false
}

func (r *MemoryRepository) detailLocked(a Appointment) AppointmentDetail {
	slot := r.slots[a.SlotID]
	return AppointmentDetail{
		Appointment: a,
		Slot:        slot,
		DoctorName:  r.doctors[slot.DoctorID].Name,
		PatientName: r.patients[a.PatientID].Name,
	}
}

func sortSlots(slots []ScheduleSlot) {
	sort.Slice(slots, func(i, j int) bool {
		a, b := slots[i], slots[j]
		if a.Date != b.Date {
			return a.Date.Before(b.Date)
		}
		return a.StartTime < b.StartTime
	})
}
