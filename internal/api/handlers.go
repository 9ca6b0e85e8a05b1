package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-booking/internal/appointment"
	"github.com/hackgods/clinic-booking/internal/auth"
	"github.com/hackgods/clinic-booking/internal/civil"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report fields by their JSON names
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// -- Doctors --

func listDoctorsHandler(svc *appointment.Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctors, err := svc.SearchDoctors(r.Context(), r.URL.Query().Get("specialty"))
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, mapSlice(doctors, toDoctorResponse))
	}
}

func getDoctorHandler(svc *appointment.Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}

		d, err := svc.GetDoctor(r.Context(), id)
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, toDoctorResponse(*d))
	}
}

// availabilityHandler lists a doctor's open slots on ?date=, today (UTC) by default.
func availabilityHandler(svc *appointment.Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}

		date := civil.Today()
		if raw := r.URL.Query().Get("date"); raw != "" {
			d, err := civil.ParseDate(raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_argument", "date must be YYYY-MM-DD")
				return
			}
			date = d
		}

		slots, err := svc.ListOpenSlots(r.Context(), id, date)
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, mapSlice(slots, toSlotResponse))
	}
}

// -- Appointments --

func bookSlotHandler(svc *appointment.Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req BookRequest
		if !decodeAndValidate(w, r, &req) {
			return
		}

		slotID, err := uuid.Parse(req.Schedule)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_argument", "schedule must be a valid UUID")
			return
		}

		appt, err := svc.BookSlot(r.Context(), actorFrom(r), slotID)
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusCreated, toAppointmentResponse(*appt))
	}
}

func listAppointmentsHandler(svc *appointment.Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var date *civil.Date
		if raw := r.URL.Query().Get("date"); raw != "" {
			d, err := civil.ParseDate(raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_argument", "date must be YYYY-MM-DD")
				return
			}
			date = &d
		}

		list, err := svc.ListAppointments(r.Context(), actorFrom(r), date)
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, mapSlice(list, toDetailResponse))
	}
}

func getAppointmentHandler(svc *appointment.Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}

		detail, err := svc.GetAppointment(r.Context(), actorFrom(r), id)
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, toDetailResponse(*detail))
	}
}

func updateAppointmentHandler(svc *appointment.Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}

		var req UpdateAppointmentRequest
		if !decodeAndValidate(w, r, &req) {
			return
		}

		to, err := appointment.ParseStatus(req.Status)
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}

		appt, err := svc.Transition(r.Context(), actorFrom(r), id, to)
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(*appt))
	}
}

// -- Schedules --

func listSlotsHandler(svc *appointment.Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		slots, err := svc.ListSlots(r.Context(), actorFrom(r))
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, mapSlice(slots, toSlotResponse))
	}
}

func createSlotHandler(svc *appointment.Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateSlotRequest
		if !decodeAndValidate(w, r, &req) {
			return
		}

		doctorID := uuid.Nil
		if req.Doctor != "" {
			id, err := uuid.Parse(req.Doctor)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_argument", "doctor must be a valid UUID")
				return
			}
			doctorID = id
		}

		date, err := civil.ParseDate(req.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_argument", "date must be YYYY-MM-DD")
			return
		}
		start, err := civil.ParseTimeOfDay(req.StartTime)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_argument", "start_time must be HH:MM or HH:MM:SS")
			return
		}
		end, err := civil.ParseTimeOfDay(req.EndTime)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_argument", "end_time must be HH:MM or HH:MM:SS")
			return
		}

		slot, err := svc.CreateSlot(r.Context(), actorFrom(r), doctorID, date, start, end)
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusCreated, toSlotResponse(*slot))
	}
}

func deleteSlotHandler(svc *appointment.Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}

		if err := svc.DeleteSlot(r.Context(), actorFrom(r), id); err != nil {
			writeServiceError(w, r, logger, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// -- Notifications --

func listNotificationsHandler(svc *appointment.Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := svc.ListNotifications(r.Context(), actorFrom(r))
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, mapSlice(list, toNotificationResponse))
	}
}

func markNotificationReadHandler(svc *appointment.Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}

		n, err := svc.MarkNotificationRead(r.Context(), actorFrom(r), id)
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, toNotificationResponse(*n))
	}
}

// -- Helpers --

// actorFrom returns the caller; routes behind RequireActor always have one.
func actorFrom(r *http.Request) auth.Actor {
	actor, _ := auth.ActorFromContext(r.Context())
	return actor
}

func uuidParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_argument", name+" must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return false
	}

	if err := validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_argument", validationDetails(err))
		return false
	}
	return true
}

func validationDetails(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fe.Field()+" is required")
		case "uuid":
			msgs = append(msgs, fe.Field()+" must be a valid UUID")
		case "datetime":
			msgs = append(msgs, fmt.Sprintf("%s must match %s", fe.Field(), fe.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
		}
	}
	return strings.Join(msgs, "; ")
}

// writeServiceError maps an error kind to its HTTP status. Anything unclassified is a 500
// whose cause is logged but not echoed to the client.
func writeServiceError(w http.ResponseWriter, r *http.Request, logger *zap.Logger, err error) {
	switch {
	case errors.Is(err, appointment.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, appointment.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden", err.Error())
	case errors.Is(err, appointment.ErrConflict):
		writeError(w, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, appointment.ErrInvalidArgument):
		writeError(w, http.StatusBadRequest, "invalid_argument", err.Error())
	case errors.Is(err, appointment.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "invalid_transition", err.Error())
	default:
		logger.Error("request failed",
			zap.String("request_id", GetRequestID(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}
