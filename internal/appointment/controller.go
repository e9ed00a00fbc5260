// Package appointment owns the in-memory booking collection for the signed-in
// user and the state machine over it. Illegal transitions and non-permitted
// actors are rejected locally, before any network call; the collection only
// ever takes records the service confirmed.
//
// The remote service does no version checking: two actors racing on the same
// booking are last-write-wins there. The local pending re-check below narrows
// the window but cannot close it.
package appointment

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"healthcare-coordination-client/internal/gateway"
	"healthcare-coordination-client/internal/model"
	"healthcare-coordination-client/internal/session"
)

// BookingRequest is the input for creating or editing a booking.
type BookingRequest struct {
	DoctorID int64
	Date     string // 2006-01-02
	Time     string // 15:04
	Type     string
	Reason   string
}

type Controller struct {
	session *session.Manager
	gw      *gateway.Client
	log     zerolog.Logger

	mu    sync.Mutex
	appts []model.Appointment
}

func NewController(sm *session.Manager, gw *gateway.Client, log zerolog.Logger) *Controller {
	return &Controller{session: sm, gw: gw, log: log}
}

// Appointments returns a snapshot of the local collection in service order.
func (c *Controller) Appointments() []model.Appointment {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]model.Appointment, len(c.appts))
	copy(out, c.appts)
	return out
}

// List fetches the bookings visible to the acting user and replaces the whole
// local collection with the result. Read-only with respect to remote state.
func (c *Controller) List(ctx context.Context) ([]model.Appointment, error) {
	actor, err := c.actor()
	if err != nil {
		return nil, err
	}
	if actor.Role != model.RolePatient && actor.Role != model.RoleDoctor {
		return nil, &model.AuthorizationError{Reason: "no appointment view for role " + string(actor.Role)}
	}

	records, err := c.gw.MyAppointments(ctx, actor.Role)
	if err != nil {
		return nil, err
	}

	appts := make([]model.Appointment, 0, len(records))
	for _, rec := range records {
		appts = append(appts, normalize(rec))
	}

	c.mu.Lock()
	c.appts = appts
	c.mu.Unlock()
	return c.Appointments(), nil
}

// Create books a new appointment for the acting patient. The service assigns
// the id and the pending status; only its returned record enters the
// collection, so the cache cannot drift from server truth.
func (c *Controller) Create(ctx context.Context, req BookingRequest) (model.Appointment, error) {
	actor, err := c.actor()
	if err != nil {
		return model.Appointment{}, err
	}
	if actor.Role != model.RolePatient {
		return model.Appointment{}, &model.AuthorizationError{Reason: "only patients book appointments"}
	}
	scheduled, err := validate(req)
	if err != nil {
		return model.Appointment{}, err
	}

	rec, err := c.gw.BookAppointment(ctx, gateway.BookingRecord{
		DoctorID:      req.DoctorID,
		ScheduledTime: scheduled,
		Type:          req.Type,
		Reason:        req.Reason,
	})
	if err != nil {
		return model.Appointment{}, err
	}

	appt := normalize(rec)
	c.mu.Lock()
	c.appts = append(c.appts, appt)
	c.mu.Unlock()

	c.log.Info().Int64("id", appt.ID).Int64("doctor_id", appt.DoctorID).Msg("appointment booked")
	return appt, nil
}

// UpdateDetails rewrites date/time/type/doctor/reason on a still-pending
// booking owned by the acting patient. Status is resubmitted unchanged.
func (c *Controller) UpdateDetails(ctx context.Context, id int64, req BookingRequest) (model.Appointment, error) {
	actor, err := c.actor()
	if err != nil {
		return model.Appointment{}, err
	}
	current, err := c.pendingByActor(id, func(a model.Appointment) bool {
		return actor.Role == model.RolePatient && a.PatientID == actor.ID
	}, "only the owning patient edits a booking")
	if err != nil {
		return model.Appointment{}, err
	}
	scheduled, err := validate(req)
	if err != nil {
		return model.Appointment{}, err
	}

	rec, err := c.gw.UpdateAppointment(ctx, id, gateway.UpdateRecord{
		DoctorID:      req.DoctorID,
		ScheduledTime: scheduled,
		Type:          req.Type,
		Reason:        req.Reason,
		Status:        current.Status,
	})
	if err != nil {
		return model.Appointment{}, err
	}
	return c.replace(rec), nil
}

// Confirm transitions pending -> confirmed; only the assigned doctor may.
func (c *Controller) Confirm(ctx context.Context, id int64) (model.Appointment, error) {
	actor, err := c.actor()
	if err != nil {
		return model.Appointment{}, err
	}
	return c.transition(ctx, id, model.StatusConfirmed, func(a model.Appointment) bool {
		return actor.Role == model.RoleDoctor && a.DoctorID == actor.ID
	}, "only the assigned doctor confirms")
}

// Cancel transitions pending -> cancelled; the owning patient or the assigned
// doctor may.
func (c *Controller) Cancel(ctx context.Context, id int64) (model.Appointment, error) {
	actor, err := c.actor()
	if err != nil {
		return model.Appointment{}, err
	}
	return c.transition(ctx, id, model.StatusCancelled, func(a model.Appointment) bool {
		switch actor.Role {
		case model.RolePatient:
			return a.PatientID == actor.ID
		case model.RoleDoctor:
			return a.DoctorID == actor.ID
		}
		return false
	}, "only the owning patient or assigned doctor cancels")
}

func (c *Controller) transition(ctx context.Context, id int64, to model.Status, permitted func(model.Appointment) bool, denial string) (model.Appointment, error) {
	current, err := c.pendingByActor(id, permitted, denial)
	if err != nil {
		return model.Appointment{}, err
	}
	if !model.TransitionAllowed(current.Status, to) {
		return model.Appointment{}, &model.AuthorizationError{
			Reason: "cannot move a " + string(current.Status) + " appointment to " + string(to),
		}
	}

	scheduled, err := model.CombineSchedule(current.Date, current.Time)
	if err != nil {
		return model.Appointment{}, err
	}
	// same full-record update shape as an edit, status field flipped
	rec, err := c.gw.UpdateAppointment(ctx, id, gateway.UpdateRecord{
		DoctorID:      current.DoctorID,
		ScheduledTime: scheduled,
		Type:          current.Type,
		Reason:        current.Reason,
		Status:        to,
	})
	if err != nil {
		return model.Appointment{}, err
	}

	appt := c.replace(rec)
	c.log.Info().Int64("id", id).Str("status", string(to)).Msg("appointment transitioned")
	return appt, nil
}

// pendingByActor looks the booking up locally and re-checks, immediately
// before any submit, that it is still pending and that the actor is
// permitted. A stale actor fails here instead of round-tripping.
func (c *Controller) pendingByActor(id int64, permitted func(model.Appointment) bool, denial string) (model.Appointment, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, a := range c.appts {
		if a.ID != id {
			continue
		}
		if !permitted(a) {
			return model.Appointment{}, &model.AuthorizationError{Reason: denial}
		}
		if a.Status != model.StatusPending {
			return model.Appointment{}, &model.AuthorizationError{
				Reason: "appointment is " + string(a.Status) + ", not pending",
			}
		}
		return a, nil
	}
	return model.Appointment{}, &model.ValidationError{Field: "appointment", Reason: "unknown id"}
}

// replace swaps the matching local entry for the server-confirmed record.
func (c *Controller) replace(rec gateway.AppointmentRecord) model.Appointment {
	appt := normalize(rec)
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.appts {
		if c.appts[i].ID == appt.ID {
			c.appts[i] = appt
			return appt
		}
	}
	c.appts = append(c.appts, appt)
	return appt
}

func (c *Controller) actor() (model.User, error) {
	actor, ok := c.session.CurrentUser()
	if !ok {
		return model.User{}, &model.AuthError{Reason: "not signed in"}
	}
	return actor, nil
}

func validate(req BookingRequest) (time.Time, error) {
	switch {
	case req.DoctorID <= 0:
		return time.Time{}, &model.ValidationError{Field: "doctor_id", Reason: "required"}
	case req.Date == "":
		return time.Time{}, &model.ValidationError{Field: "date", Reason: "required"}
	case req.Time == "":
		return time.Time{}, &model.ValidationError{Field: "time", Reason: "required"}
	case req.Type == "":
		return time.Time{}, &model.ValidationError{Field: "type", Reason: "required"}
	}
	ts, err := model.CombineSchedule(req.Date, req.Time)
	if err != nil {
		return time.Time{}, &model.ValidationError{Field: "schedule", Reason: err.Error()}
	}
	return ts, nil
}

func normalize(rec gateway.AppointmentRecord) model.Appointment {
	date, clock := model.SplitSchedule(rec.ScheduledTime)
	return model.Appointment{
		ID:          rec.ID,
		PatientID:   rec.PatientID,
		DoctorID:    rec.DoctorID,
		PatientName: rec.PatientName,
		DoctorName:  rec.DoctorName,
		Date:        date,
		Time:        clock,
		Type:        rec.Type,
		Reason:      rec.Reason,
		Status:      rec.Status,
		CreatedAt:   rec.CreatedAt,
		UpdatedAt:   rec.UpdatedAt,
	}
}
