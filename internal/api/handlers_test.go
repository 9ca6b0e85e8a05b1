package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-booking/internal/appointment"
	"github.com/hackgods/clinic-booking/internal/auth"
	"github.com/hackgods/clinic-booking/internal/civil"
	redisclient "github.com/hackgods/clinic-booking/internal/redis"
)

type testServer struct {
	handler  http.Handler
	repo     *appointment.MemoryRepository
	verifier *auth.TokenVerifier
	patient  auth.Actor
	doctor   auth.Actor
	admin    auth.Actor
	slot     *appointment.ScheduleSlot
}

func newTestServer(t *testing.T, checks ...HealthCheck) *testServer {
	t.Helper()
	ctx := context.Background()

	repo := appointment.NewMemoryRepository()
	svc := appointment.NewService(repo, redisclient.NewLocalSlotLocker(), zap.NewNop())
	verifier := auth.NewTokenVerifier([]byte("test-secret"), "clinic-test")

	p, err := repo.CreatePatient(ctx, appointment.Patient{Name: "Ada"})
	require.NoError(t, err)
	d, err := repo.CreateDoctor(ctx, appointment.Doctor{Name: "Grey", Specialty: "Dermatology", LicenseNumber: "LIC-1"})
	require.NoError(t, err)
	slot, err := repo.CreateSlot(ctx, appointment.ScheduleSlot{
		DoctorID:  d.ID,
		Date:      civil.Date{Year: 2030, Month: 1, Day: 15},
		StartTime: civil.TimeOfDay(9 * 3600),
		EndTime:   civil.TimeOfDay(10 * 3600),
	})
	require.NoError(t, err)

	return &testServer{
		handler: NewRouter(RouterConfig{
			Service:  svc,
			Verifier: verifier,
			Logger:   zap.NewNop(),
			Checks:   checks,
			Env:      "test",
			Version:  "test",
		}),
		repo:     repo,
		verifier: verifier,
		patient:  auth.Actor{ID: p.ID, Role: auth.RolePatient},
		doctor:   auth.Actor{ID: d.ID, Role: auth.RoleDoctor},
		admin:    auth.Actor{ID: uuid.New(), Role: auth.RoleAdmin},
		slot:     slot,
	}
}

func (s *testServer) do(t *testing.T, method, path string, actor *auth.Actor, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if actor != nil {
		token, err := s.verifier.Issue(*actor, time.Hour)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestAvailabilityIsPublic(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/doctors/availability/"+s.doctor.ID.String()+"?date=2030-01-15", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var raw []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &raw))
	require.Len(t, raw, 1)
	assert.Equal(t, "2030-01-15", raw[0]["date"])
	assert.Equal(t, "09:00:00", raw[0]["start_time"])
	assert.Equal(t, "10:00:00", raw[0]["end_time"])

	rec = s.do(t, http.MethodGet, "/doctors/availability/"+s.doctor.ID.String()+"?date=15-01-2030", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodGet, "/doctors/availability/"+uuid.NewString(), nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decode[ErrorResponse](t, rec).Error)
}

func TestDoctorsEndpoints(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/doctors?specialty=derm", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	doctors := decode[[]DoctorResponse](t, rec)
	require.Len(t, doctors, 1)
	assert.Equal(t, s.doctor.ID, doctors[0].ID)

	rec = s.do(t, http.MethodGet, "/doctors/"+s.doctor.ID.String(), nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Grey", decode[DoctorResponse](t, rec).Name)

	rec = s.do(t, http.MethodGet, "/doctors/not-a-uuid", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAuthentication(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/appointments", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/appointments", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	rec = httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// A bad token is rejected even on public routes
	req = httptest.NewRequest(http.MethodGet, "/doctors", nil)
	req.Header.Set("Authorization", "Token abc")
	rec = httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestBookingFlow(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/appointments/create", &s.patient, BookRequest{Schedule: s.slot.ID.String()})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	appt := decode[AppointmentResponse](t, rec)
	assert.Equal(t, "PENDING", appt.Status)
	assert.Equal(t, s.slot.ID, appt.SlotID)

	rec = s.do(t, http.MethodPost, "/appointments/create", &s.patient, BookRequest{Schedule: s.slot.ID.String()})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "conflict", decode[ErrorResponse](t, rec).Error)

	rec = s.do(t, http.MethodGet, "/doctors/availability/"+s.doctor.ID.String()+"?date=2030-01-15", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]SlotResponse](t, rec))

	path := "/appointments/" + appt.ID.String()

	rec = s.do(t, http.MethodPatch, path, &s.patient, UpdateAppointmentRequest{Status: "CONFIRMED"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, http.MethodPatch, path, &s.doctor, UpdateAppointmentRequest{Status: "ARCHIVED"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPatch, path, &s.doctor, UpdateAppointmentRequest{Status: "confirmed"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "CONFIRMED", decode[AppointmentResponse](t, rec).Status)

	rec = s.do(t, http.MethodPatch, path, &s.patient, UpdateAppointmentRequest{Status: "CANCELLED"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "invalid_transition", decode[ErrorResponse](t, rec).Error)

	rec = s.do(t, http.MethodGet, path, &s.patient, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	detail := decode[AppointmentDetailResponse](t, rec)
	assert.Equal(t, "Grey", detail.DoctorName)
	assert.Equal(t, s.doctor.ID, detail.Doctor)

	rec = s.do(t, http.MethodGet, "/appointments?date=2030-01-15", &s.doctor, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]AppointmentDetailResponse](t, rec), 1)

	rec = s.do(t, http.MethodGet, "/notifications", &s.patient, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	inbox := decode[[]NotificationResponse](t, rec)
	require.Len(t, inbox, 2)

	rec = s.do(t, http.MethodPatch, "/notifications/"+inbox[0].ID.String(), &s.patient, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[NotificationResponse](t, rec).IsRead)
}

func TestBookRequestValidation(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/appointments/create", &s.patient, map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode[ErrorResponse](t, rec).Details, "schedule is required")

	rec = s.do(t, http.MethodPost, "/appointments/create", &s.patient, BookRequest{Schedule: "nope"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/appointments/create", &s.doctor, BookRequest{Schedule: s.slot.ID.String()})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, http.MethodPost, "/appointments/create", &s.patient, BookRequest{Schedule: uuid.NewString()})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestScheduleManagement(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/schedules", &s.doctor, CreateSlotRequest{
		Date: "2030-01-15", StartTime: "09:30", EndTime: "10:30",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(t, http.MethodPost, "/schedules", &s.doctor, CreateSlotRequest{
		Date: "2030-01-15", StartTime: "11:00", EndTime: "10:00",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/schedules", &s.doctor, CreateSlotRequest{
		Date: "2030-01-15", StartTime: "25:00", EndTime: "26:00",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/schedules", &s.patient, CreateSlotRequest{
		Date: "2030-01-15", StartTime: "11:00", EndTime: "12:00",
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, http.MethodPost, "/schedules", &s.admin, CreateSlotRequest{
		Date: "2030-01-15", StartTime: "11:00", EndTime: "12:00",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/schedules", &s.admin, CreateSlotRequest{
		Doctor: s.doctor.ID.String(), Date: "2030-01-15", StartTime: "11:00", EndTime: "12:00:00",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[SlotResponse](t, rec)
	assert.Equal(t, s.doctor.ID, created.DoctorID)
	assert.Equal(t, "12:00:00", created.EndTime.String())

	rec = s.do(t, http.MethodGet, "/schedules", &s.doctor, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]SlotResponse](t, rec), 2)

	// Booked slot cannot be deleted
	rec = s.do(t, http.MethodPost, "/appointments/create", &s.patient, BookRequest{Schedule: s.slot.ID.String()})
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = s.do(t, http.MethodDelete, "/schedules/"+s.slot.ID.String(), &s.doctor, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(t, http.MethodDelete, "/schedules/"+created.ID.String(), &s.doctor, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = s.do(t, http.MethodDelete, "/schedules/"+created.ID.String(), &s.doctor, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealth(t *testing.T) {
	s := newTestServer(t,
		HealthCheck{Name: "postgres", Critical: true, Ping: func(context.Context) error { return nil }},
		HealthCheck{Name: "redis", Ping: func(context.Context) error { return errors.New("down") }},
	)

	rec := s.do(t, http.MethodGet, "/health/live", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = s.do(t, http.MethodGet, "/health/ready", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	ready := decode[ReadinessResponse](t, rec)
	assert.Equal(t, "degraded", ready.Status)
	assert.Equal(t, "down", ready.Dependencies["redis"])

	s = newTestServer(t,
		HealthCheck{Name: "postgres", Critical: true, Ping: func(context.Context) error { return errors.New("down") }},
	)
	rec = s.do(t, http.MethodGet, "/health/ready", nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestUnknownRoute(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodGet, "/nowhere", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
