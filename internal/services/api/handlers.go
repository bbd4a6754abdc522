// Package api is the CRUD surface for registrations and schedules. The core
// pipeline only ever reads what this service writes. Schedule times cross
// this boundary in the user's local clock; they are stored normalized to
// UTC and converted back on reads.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/hydronet/hydronet/internal/model"
	"github.com/hydronet/hydronet/internal/schedule"
	"github.com/hydronet/hydronet/internal/storage"
)

// Store is the slice of the persistence layer the API consumes.
type Store interface {
	CreateRegistration(ctx context.Context, reg *model.Registration) error
	ListRegistrations(ctx context.Context) ([]model.Registration, error)
	FindRegistrationBySerial(ctx context.Context, serial string) (model.Registration, error)
	ParameterValuesFor(ctx context.Context, registrationID string) ([]storage.ParameterReading, error)

	CreateSchedule(ctx context.Context, sched *model.Schedule) error
	UpdateSchedule(ctx context.Context, sched *model.Schedule) error
	DeleteSchedule(ctx context.Context, id string) error
	SetScheduleActive(ctx context.Context, id string, active bool) error
	SchedulesForSerial(ctx context.Context, serial string) ([]model.Schedule, error)
}

type Service struct {
	store Store
	log   *logrus.Entry
}

func NewService(store Store, log *logrus.Entry) *Service {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Service{store: store, log: log}
}

// Router mounts all routes.
func (s *Service) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/registrations", s.createRegistration).Methods(http.MethodPost)
	r.HandleFunc("/registrations", s.listRegistrations).Methods(http.MethodGet)
	r.HandleFunc("/registrations/{serial}/values", s.listValues).Methods(http.MethodGet)
	r.HandleFunc("/registrations/{serial}/schedules", s.listSchedules).Methods(http.MethodGet)
	r.HandleFunc("/schedules", s.createSchedule).Methods(http.MethodPost)
	r.HandleFunc("/schedules/{id}", s.updateSchedule).Methods(http.MethodPut)
	r.HandleFunc("/schedules/{id}", s.deleteSchedule).Methods(http.MethodDelete)
	r.HandleFunc("/schedules/{id}/active", s.setActive).Methods(http.MethodPut)
	return r
}

/************* registrations *************/

type registrationRequest struct {
	OwnerID          string `json:"owner_id"`
	DeviceTemplateID string `json:"device_template_id"`
	Topic            string `json:"topic"`
	SerialNumber     string `json:"serial_number"`
	Name             string `json:"name"`
}

func (s *Service) createRegistration(w http.ResponseWriter, r *http.Request) {
	var req registrationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.SerialNumber == "" || req.Topic == "" || req.DeviceTemplateID == "" {
		writeError(w, http.StatusBadRequest, errors.New("serial_number, topic and device_template_id are required"))
		return
	}
	reg := model.Registration{
		OwnerID:          req.OwnerID,
		DeviceTemplateID: req.DeviceTemplateID,
		Topic:            req.Topic,
		SerialNumber:     req.SerialNumber,
		Name:             req.Name,
	}
	if err := s.store.CreateRegistration(r.Context(), &reg); err != nil {
		s.log.WithError(err).Error("api: create registration failed")
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusCreated, reg)
}

func (s *Service) listRegistrations(w http.ResponseWriter, r *http.Request) {
	regs, err := s.store.ListRegistrations(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, regs)
}

func (s *Service) listValues(w http.ResponseWriter, r *http.Request) {
	serial := mux.Vars(r)["serial"]
	reg, err := s.store.FindRegistrationBySerial(r.Context(), serial)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	values, err := s.store.ParameterValuesFor(r.Context(), reg.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, values)
}

/************* schedules *************/

type scheduleRequest struct {
	RegistrationSerial string   `json:"registration_serial"`
	Days               []string `json:"days"`
	Start              string   `json:"start"` // "HH:MM" local
	End                string   `json:"end"`   // "HH:MM" local
	UTCOffsetMinutes   int      `json:"utc_offset_minutes"`
	Active             bool     `json:"active"`
}

type scheduleResponse struct {
	ID                 string   `json:"id"`
	RegistrationSerial string   `json:"registration_serial"`
	Days               []string `json:"days"`
	Start              string   `json:"start"`
	End                string   `json:"end"`
	Active             bool     `json:"active"`
}

// toModel validates the request and normalizes its local window to UTC.
func (req *scheduleRequest) toModel() (model.Schedule, error) {
	if req.RegistrationSerial == "" {
		return model.Schedule{}, errors.New("registration_serial is required")
	}
	var days schedule.DaySet
	for _, name := range req.Days {
		d, ok := schedule.ParseDay(name)
		if !ok {
			return model.Schedule{}, fmt.Errorf("unknown day %q", name)
		}
		days = days.With(d)
	}
	if days.Empty() {
		return model.Schedule{}, errors.New("days must not be empty")
	}
	start, err := parseClock(req.Start)
	if err != nil {
		return model.Schedule{}, err
	}
	end, err := parseClock(req.End)
	if err != nil {
		return model.Schedule{}, err
	}
	utc, err := schedule.Normalize(schedule.Window{Start: start, End: end, Days: days}, req.UTCOffsetMinutes)
	if err != nil {
		return model.Schedule{}, err
	}
	return model.Schedule{
		RegistrationSerial: req.RegistrationSerial,
		Days:               utc.Days,
		StartMinute:        utc.Start,
		EndMinute:          utc.End,
		Active:             req.Active,
	}, nil
}

// toResponse denormalizes a stored UTC schedule back into the caller's
// local clock.
func toResponse(sched model.Schedule, offsetMinutes int) (scheduleResponse, error) {
	local, err := schedule.Denormalize(sched.Window(), offsetMinutes)
	if err != nil {
		return scheduleResponse{}, err
	}
	days := make([]string, 0, 7)
	for _, d := range local.Days.Weekdays() {
		days = append(days, d.String()[:3])
	}
	return scheduleResponse{
		ID:                 sched.ID,
		RegistrationSerial: sched.RegistrationSerial,
		Days:               days,
		Start:              formatClock(local.Start),
		End:                formatClock(local.End),
		Active:             sched.Active,
	}, nil
}

func (s *Service) createSchedule(w http.ResponseWriter, r *http.Request) {
	var req scheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	sched, err := req.toModel()
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if _, err := s.store.FindRegistrationBySerial(r.Context(), sched.RegistrationSerial); err != nil {
		writeStoreError(w, err)
		return
	}
	if err := s.store.CreateSchedule(r.Context(), &sched); err != nil {
		s.log.WithError(err).Error("api: create schedule failed")
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusCreated, sched)
}

func (s *Service) updateSchedule(w http.ResponseWriter, r *http.Request) {
	var req scheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	sched, err := req.toModel()
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	sched.ID = mux.Vars(r)["id"]
	if err := s.store.UpdateSchedule(r.Context(), &sched); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sched)
}

func (s *Service) deleteSchedule(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteSchedule(r.Context(), mux.Vars(r)["id"]); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Service) setActive(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Active bool `json:"active"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.store.SetScheduleActive(r.Context(), mux.Vars(r)["id"], req.Active); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Service) listSchedules(w http.ResponseWriter, r *http.Request) {
	serial := mux.Vars(r)["serial"]
	offset, err := offsetParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	scheds, err := s.store.SchedulesForSerial(r.Context(), serial)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	out := make([]scheduleResponse, 0, len(scheds))
	for _, sc := range scheds {
		resp, err := toResponse(sc, offset)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		out = append(out, resp)
	}
	writeJSON(w, http.StatusOK, out)
}

/************* helpers *************/

func offsetParam(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("utc_offset_minutes")
	if raw == "" {
		return 0, nil
	}
	offset, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("bad utc_offset_minutes %q", raw)
	}
	return offset, nil
}

func parseClock(v string) (int, error) {
	t, err := time.Parse("15:04", v)
	if err != nil {
		return 0, fmt.Errorf("bad time of day %q (want HH:MM)", v)
	}
	return t.Hour()*60 + t.Minute(), nil
}

func formatClock(minute int) string {
	return fmt.Sprintf("%02d:%02d", minute/60, minute%60)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeError(w, http.StatusInternalServerError, err)
}
