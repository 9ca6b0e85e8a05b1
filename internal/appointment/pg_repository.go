package appointment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/clinic-booking/internal/civil"
)

// Postgres error codes the repository translates into domain errors.
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgCheckViolation      = "23514"
	pgExclusionViolation  = "23P01"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

var _ Repository = (*PgRepository)(nil)

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Helpers

const (
	slotColumns = `s.id, s.doctor_id, s.date, s.start_time, s.end_time, s.created_at`

	appointmentColumns = `a.id, a.slot_id, a.patient_id, a.status, a.created_at, a.updated_at`

	detailSelect = `
		SELECT ` + appointmentColumns + `, ` + slotColumns + `, d.name, p.name
		FROM appointments a
		JOIN schedule_slots s ON s.id = a.slot_id
		JOIN doctors d ON d.id = s.doctor_id
		JOIN patients p ON p.id = a.patient_id`

	notificationColumns = `id, user_id, appointment_id, type, message, is_read, created_at`
)

func pgErrCode(err error) (string, string) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code, pgErr.ConstraintName
	}
	return "", ""
}

func toPgTime(t civil.TimeOfDay) pgtype.Time {
	return pgtype.Time{Microseconds: int64(t.Duration() / time.Microsecond), Valid: true}
}

func fromPgTime(t pgtype.Time) (civil.TimeOfDay, error) {
	if !t.Valid {
		return 0, errors.New("null time of day")
	}
	return civil.TimeOfDayFromDuration(time.Duration(t.Microseconds) * time.Microsecond)
}

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	var dob pgtype.Date

	err := row.Scan(
		&p.ID,
		&p.Name,
		&p.Email,
		&dob,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}

	if dob.Valid {
		d := civil.DateOf(dob.Time)
		p.DateOfBirth = &d
	}
	return &p, nil
}

func scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor

	err := row.Scan(
		&d.ID,
		&d.Name,
		&d.Specialty,
		&d.LicenseNumber,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDoctorNotFound
		}
		return nil, err
	}
	return &d, nil
}

// slotDest collects the raw column values of a slot so it can be scanned as part of a
// wider row.
type slotDest struct {
	slot       ScheduleSlot
	date       pgtype.Date
	start, end pgtype.Time
}

func (sd *slotDest) targets() []any {
	return []any{&sd.slot.ID, &sd.slot.DoctorID, &sd.date, &sd.start, &sd.end, &sd.slot.CreatedAt}
}

func (sd *slotDest) finish() (ScheduleSlot, error) {
	var err error
	sd.slot.Date = civil.DateOf(sd.date.Time)
	if sd.slot.StartTime, err = fromPgTime(sd.start); err != nil {
		return ScheduleSlot{}, fmt.Errorf("slot start_time: %w", err)
	}
	if sd.slot.EndTime, err = fromPgTime(sd.end); err != nil {
		return ScheduleSlot{}, fmt.Errorf("slot end_time: %w", err)
	}
	return sd.slot, nil
}

func scanSlot(row pgx.Row) (*ScheduleSlot, error) {
	var sd slotDest
	if err := row.Scan(sd.targets()...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSlotNotFound
		}
		return nil, err
	}
	s, err := sd.finish()
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment

	err := row.Scan(
		&a.ID,
		&a.SlotID,
		&a.PatientID,
		&a.Status,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}
	return &a, nil
}

func scanDetail(row pgx.Row) (*AppointmentDetail, error) {
	var d AppointmentDetail
	var sd slotDest

	targets := []any{
		&d.ID,
		&d.SlotID,
		&d.PatientID,
		&d.Status,
		&d.CreatedAt,
		&d.UpdatedAt,
	}
	targets = append(targets, sd.targets()...)
	targets = append(targets, &d.DoctorName, &d.PatientName)

	if err := row.Scan(targets...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	slot, err := sd.finish()
	if err != nil {
		return nil, err
	}
	d.Slot = slot
	return &d, nil
}

func scanNotification(row pgx.Row) (*Notification, error) {
	var n Notification

	err := row.Scan(
		&n.ID,
		&n.UserID,
		&n.AppointmentID,
		&n.Type,
		&n.Message,
		&n.IsRead,
		&n.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotificationNotFound
		}
		return nil, err
	}
	return &n, nil
}

func collect[T any](rows pgx.Rows, scan func(pgx.Row) (*T, error)) ([]T, error) {
	defer rows.Close()

	var result []T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Patients and doctors

func (r *PgRepository) CreatePatient(ctx context.Context, p Patient) (*Patient, error) {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	var dob *time.Time
	if p.DateOfBirth != nil {
		t := p.DateOfBirth.Time()
		dob = &t
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO patients (id, name, email, date_of_birth, created_at, updated_at)
		VALUES ($1, $2, $3, $4, now(), now())
		RETURNING id, name, email, date_of_birth, created_at, updated_at
	`, p.ID, p.Name, p.Email, dob)
	return scanPatient(row)
}

func (r *PgRepository) CreateDoctor(ctx context.Context, d Doctor) (*Doctor, error) {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO doctors (id, name, specialty, license_number, created_at, updated_at)
		VALUES ($1, $2, $3, $4, now(), now())
		RETURNING id, name, specialty, license_number, created_at, updated_at
	`, d.ID, d.Name, d.Specialty, d.LicenseNumber)

	created, err := scanDoctor(row)
	if err != nil {
		if code, _ := pgErrCode(err); code == pgUniqueViolation {
			return nil, newError(ErrConflict, "license number already registered")
		}
		return nil, fmt.Errorf("insert doctor: %w", err)
	}
	return created, nil
}

func (r *PgRepository) GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, email, date_of_birth, created_at, updated_at
		FROM patients
		WHERE id = $1
	`, id)
	return scanPatient(row)
}

func (r *PgRepository) GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, specialty, license_number, created_at, updated_at
		FROM doctors
		WHERE id = $1
	`, id)
	return scanDoctor(row)
}

func (r *PgRepository) SearchDoctors(ctx context.Context, specialty string) ([]Doctor, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, specialty, license_number, created_at, updated_at
		FROM doctors
		WHERE specialty ILIKE '%' || $1 || '%'
		ORDER BY name
	`, specialty)
	if err != nil {
		return nil, fmt.Errorf("query doctors: %w", err)
	}
	return collect(rows, scanDoctor)
}

// Slots

func (r *PgRepository) GetSlotByID(ctx context.Context, id uuid.UUID) (*ScheduleSlot, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+slotColumns+`
		FROM schedule_slots s
		WHERE s.id = $1
	`, id)
	return scanSlot(row)
}

func (r *PgRepository) ListSlots(ctx context.Context, doctorID *uuid.UUID) ([]ScheduleSlot, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+slotColumns+`
		FROM schedule_slots s
		WHERE $1::uuid IS NULL OR s.doctor_id = $1
		ORDER BY s.date, s.start_time
	`, doctorID)
	if err != nil {
		return nil, fmt.Errorf("query slots: %w", err)
	}
	return collect(rows, scanSlot)
}

func (r *PgRepository) ListOpenSlots(ctx context.Context, doctorID uuid.UUID, date civil.Date) ([]ScheduleSlot, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+slotColumns+`
		FROM schedule_slots s
		WHERE s.doctor_id = $1
		  AND s.date = $2
		  AND NOT EXISTS (
			SELECT 1 FROM appointments a
			WHERE a.slot_id = s.id AND a.status <> 'CANCELLED'
		  )
		ORDER BY s.start_time
	`, doctorID, date.Time())
	if err != nil {
		return nil, fmt.Errorf("query open slots: %w", err)
	}
	return collect(rows, scanSlot)
}

func (r *PgRepository) HasOverlappingSlot(ctx context.Context, slot ScheduleSlot) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM schedule_slots
			WHERE doctor_id = $1
			  AND date = $2
			  AND start_time < $4
			  AND $3 < end_time
			  AND id <> $5
		)
	`, slot.DoctorID, slot.Date.Time(), toPgTime(slot.StartTime), toPgTime(slot.EndTime), slot.ID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("query overlapping slots: %w", err)
	}
	return exists, nil
}

func (r *PgRepository) CreateSlot(ctx context.Context, slot ScheduleSlot) (*ScheduleSlot, error) {
	if slot.ID == uuid.Nil {
		slot.ID = uuid.New()
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO schedule_slots AS s (id, doctor_id, date, start_time, end_time, created_at)
		VALUES ($1, $2, $3, $4, $5, now())
		RETURNING `+slotColumns+`
	`, slot.ID, slot.DoctorID, slot.Date.Time(), toPgTime(slot.StartTime), toPgTime(slot.EndTime))

	created, err := scanSlot(row)
	if err != nil {
		switch code, _ := pgErrCode(err); code {
		case pgExclusionViolation:
			return nil, ErrSlotOverlap
		case pgForeignKeyViolation:
			return nil, ErrDoctorNotFound
		case pgCheckViolation:
			return nil, ErrInvalidInterval
		}
		return nil, fmt.Errorf("insert slot: %w", err)
	}
	return created, nil
}

func (r *PgRepository) DeleteSlot(ctx context.Context, id uuid.UUID) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// Locking the slot row blocks concurrent bookings, whose foreign key check needs a
	// share lock on it.
	var locked uuid.UUID
	err = tx.QueryRow(ctx, `SELECT id FROM schedule_slots WHERE id = $1 FOR UPDATE`, id).Scan(&locked)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrSlotNotFound
		}
		return fmt.Errorf("lock slot: %w", err)
	}

	var booked bool
	err = tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM appointments
			WHERE slot_id = $1 AND status <> 'CANCELLED'
		)
	`, id).Scan(&booked)
	if err != nil {
		return fmt.Errorf("check slot bookings: %w", err)
	}
	if booked {
		return ErrSlotHasBooking
	}

	if _, err := tx.Exec(ctx, `DELETE FROM appointments WHERE slot_id = $1`, id); err != nil {
		return fmt.Errorf("delete cancelled appointments: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM schedule_slots WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete slot: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Appointments

func (r *PgRepository) GetActiveAppointmentForSlot(ctx context.Context, slotID uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments a
		WHERE a.slot_id = $1 AND a.status <> 'CANCELLED'
	`, slotID)
	return scanAppointment(row)
}

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments a
		WHERE a.id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) GetAppointmentDetail(ctx context.Context, id uuid.UUID) (*AppointmentDetail, error) {
	row := r.pool.QueryRow(ctx, detailSelect+` WHERE a.id = $1`, id)
	return scanDetail(row)
}

func (r *PgRepository) ListAppointments(ctx context.Context, filter AppointmentFilter) ([]AppointmentDetail, error) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if filter.PatientID != nil {
		add("a.patient_id = $%d", *filter.PatientID)
	}
	if filter.DoctorID != nil {
		add("s.doctor_id = $%d", *filter.DoctorID)
	}
	if filter.Date != nil {
		add("s.date = $%d", filter.Date.Time())
	}

	query := detailSelect
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY s.date, s.start_time, a.created_at"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query appointments: %w", err)
	}
	return collect(rows, scanDetail)
}

func (r *PgRepository) CreatePendingAppointment(ctx context.Context, slotID, patientID uuid.UUID) (*Appointment, error) {
	id := uuid.New()

	row := r.pool.QueryRow(ctx, `
		INSERT INTO appointments AS a (id, slot_id, patient_id, status, created_at, updated_at)
		VALUES ($1, $2, $3, 'PENDING', now(), now())
		RETURNING `+appointmentColumns+`
	`, id, slotID, patientID)

	appt, err := scanAppointment(row)
	if err != nil {
		switch code, constraint := pgErrCode(err); code {
		case pgUniqueViolation:
			return nil, ErrSlotAlreadyBooked
		case pgForeignKeyViolation:
			if strings.Contains(constraint, "patient") {
				return nil, ErrPatientNotFound
			}
			return nil, ErrSlotNotFound
		}
		return nil, fmt.Errorf("insert appointment: %w", err)
	}
	return appt, nil
}

func (r *PgRepository) UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments AS a
		SET status = $2,
		    updated_at = now()
		WHERE a.id = $1
		  AND a.status = $3
		RETURNING `+appointmentColumns+`
	`, id, to, from)

	return scanAppointment(row)
}

func (r *PgRepository) FindStalePending(ctx context.Context, now time.Time) ([]AppointmentDetail, error) {
	rows, err := r.pool.Query(ctx, detailSelect+`
		WHERE a.status = 'PENDING'
		  AND (s.date + s.end_time) < ($1::timestamptz AT TIME ZONE 'UTC')
		ORDER BY s.date, s.start_time
	`, now)
	if err != nil {
		return nil, fmt.Errorf("query stale pending appointments: %w", err)
	}
	return collect(rows, scanDetail)
}

// Notifications

func (r *PgRepository) CreateNotification(ctx context.Context, n Notification) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO notifications (id, user_id, appointment_id, type, message, is_read, created_at)
		VALUES ($1, $2, $3, $4, $5, false, COALESCE($6, now()))
	`, n.ID, n.UserID, n.AppointmentID, n.Type, n.Message, nullableTime(n.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

func (r *PgRepository) ListNotifications(ctx context.Context, userID uuid.UUID) ([]Notification, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+notificationColumns+`
		FROM notifications
		WHERE user_id = $1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("query notifications: %w", err)
	}
	return collect(rows, scanNotification)
}

func (r *PgRepository) MarkNotificationRead(ctx context.Context, id, userID uuid.UUID) (*Notification, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE notifications
		SET is_read = true
		WHERE id = $1 AND user_id = $2
		RETURNING `+notificationColumns, id, userID)
	return scanNotification(row)
}

// Event logging

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
