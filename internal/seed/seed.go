package seed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-booking/internal/appointment"
	"github.com/hackgods/clinic-booking/internal/civil"
)

// Store is the write side both repositories expose for seeding.
type Store interface {
	CreateDoctor(ctx context.Context, d appointment.Doctor) (*appointment.Doctor, error)
	CreatePatient(ctx context.Context, p appointment.Patient) (*appointment.Patient, error)
	CreateSlot(ctx context.Context, s appointment.ScheduleSlot) (*appointment.ScheduleSlot, error)
}

var specialties = []string{
	"Dermatology",
	"Cardiology",
	"General Practice",
	"Orthopedics",
	"Endocrinology",
	"Neurology",
	"Pediatrics",
	"Psychiatry",
	"Ophthalmology",
	"ENT",
}

type Options struct {
	Doctors  int
	Patients int
	// Days of availability generated per doctor, starting at StartDate.
	Days        int
	StartDate   civil.Date
	DayStart    civil.TimeOfDay
	DayEnd      civil.TimeOfDay
	SlotMinutes int
}

func DefaultOptions() Options {
	return Options{
		Doctors:     10,
		Patients:    50,
		Days:        5,
		StartDate:   civil.Today(),
		DayStart:    civil.TimeOfDay(9 * 3600),
		DayEnd:      civil.TimeOfDay(12 * 3600),
		SlotMinutes: 30,
	}
}

type Result struct {
	Doctors  []appointment.Doctor
	Patients []appointment.Patient
	Slots    int
}

func Run(ctx context.Context, store Store, opts Options, logger *zap.Logger) (*Result, error) {
	if opts.SlotMinutes <= 0 {
		return nil, errors.New("slot length must be positive")
	}
	if opts.DayStart >= opts.DayEnd {
		return nil, errors.New("day start must be before day end")
	}

	res := &Result{}

	logger.Info("seeding doctors", zap.Int("count", opts.Doctors))
	for i := 0; i < opts.Doctors; i++ {
		d, err := store.CreateDoctor(ctx, appointment.Doctor{
			Name:          gofakeit.Name(),
			Specialty:     specialties[gofakeit.Number(0, len(specialties)-1)],
			LicenseNumber: fmt.Sprintf("LIC-%05d-%s", i+1, gofakeit.Numerify("####")),
		})
		if err != nil {
			return nil, fmt.Errorf("create doctor: %w", err)
		}
		res.Doctors = append(res.Doctors, *d)
	}

	logger.Info("seeding patients", zap.Int("count", opts.Patients))
	for i := 0; i < opts.Patients; i++ {
		email := gofakeit.Email()
		dob := civil.DateOf(gofakeit.DateRange(
			time.Date(1940, 1, 1, 0, 0, 0, 0, time.UTC),
			time.Date(2015, 12, 31, 0, 0, 0, 0, time.UTC),
		))
		p, err := store.CreatePatient(ctx, appointment.Patient{
			Name:        gofakeit.Name(),
			Email:       &email,
			DateOfBirth: &dob,
		})
		if err != nil {
			return nil, fmt.Errorf("create patient: %w", err)
		}
		res.Patients = append(res.Patients, *p)
	}

	step := civil.TimeOfDay(opts.SlotMinutes * 60)
	for _, d := range res.Doctors {
		for day := 0; day < opts.Days; day++ {
			date := civil.DateOf(opts.StartDate.Time().AddDate(0, 0, day))
			for start := opts.DayStart; start+step <= opts.DayEnd; start += step {
				_, err := store.CreateSlot(ctx, appointment.ScheduleSlot{
					DoctorID:  d.ID,
					Date:      date,
					StartTime: start,
					EndTime:   start + step,
				})
				if err != nil {
					return nil, fmt.Errorf("create slot: %w", err)
				}
				res.Slots++
			}
		}
	}
	logger.Info("slots seeded", zap.Int("count", res.Slots))

	return res, nil
}
