package gateway

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"healthcare-coordination-client/internal/model"
)

// TokenPair is the credential-exchange result.
type TokenPair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// AppointmentRecord is the raw wire shape of a booking; normalization into
// model.Appointment happens in the lifecycle controller.
type AppointmentRecord struct {
	ID            int64        `json:"id"`
	PatientID     int64        `json:"patient_id"`
	DoctorID      int64        `json:"doctor_id"`
	PatientName   string       `json:"patient_name"`
	DoctorName    string       `json:"doctor_name"`
	ScheduledTime time.Time    `json:"scheduled_time"`
	Type          string       `json:"type"`
	Reason        string       `json:"reason"`
	Status        model.Status `json:"status"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

type BookingRecord struct {
	DoctorID      int64     `json:"doctor_id"`
	ScheduledTime time.Time `json:"scheduled_time"`
	Type          string    `json:"type"`
	Reason        string    `json:"reason,omitempty"`
}

type UpdateRecord struct {
	DoctorID      int64        `json:"doctor_id"`
	ScheduledTime time.Time    `json:"scheduled_time"`
	Type          string       `json:"type"`
	Reason        string       `json:"reason,omitempty"`
	Status        model.Status `json:"status"`
}

type RegisterRequest struct {
	Username        string     `json:"username"`
	Email           string     `json:"email"`
	Password        string     `json:"password"`
	PasswordConfirm string     `json:"password2"`
	FirstName       string     `json:"first_name"`
	LastName        string     `json:"last_name"`
	Role            model.Role `json:"role"`
}

// Login exchanges credentials for a token pair. Unauthenticated.
func (c *Client) Login(ctx context.Context, identifier, secret string) (TokenPair, error) {
	body := map[string]string{"username": identifier, "password": secret}
	var pair TokenPair
	if err := c.do(ctx, "login", http.MethodPost, "/auth/login", body, &pair); err != nil {
		return TokenPair{}, err
	}
	return pair, nil
}

// Profile fetches the authenticated user's own record.
func (c *Client) Profile(ctx context.Context) (model.User, error) {
	var u model.User
	if err := c.do(ctx, "profile", http.MethodGet, "/auth/profile", nil, &u); err != nil {
		return model.User{}, err
	}
	return u, nil
}

func (c *Client) Register(ctx context.Context, req RegisterRequest) (model.User, error) {
	var u model.User
	if err := c.do(ctx, "register", http.MethodPost, "/auth/register", req, &u); err != nil {
		return model.User{}, err
	}
	return u, nil
}

// Doctors returns the clinician directory in service order.
func (c *Client) Doctors(ctx context.Context) ([]model.DirectoryEntry, error) {
	var out []model.DirectoryEntry
	if err := c.do(ctx, "doctors", http.MethodGet, "/users/doctors", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// MyAppointments lists the raw records visible to the caller for the given
// role (a patient sees their own bookings, a doctor their assigned ones).
func (c *Client) MyAppointments(ctx context.Context, role model.Role) ([]AppointmentRecord, error) {
	path := "/appointments/mine?role=" + url.QueryEscape(string(role))
	var out []AppointmentRecord
	if err := c.do(ctx, "list appointments", http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) BookAppointment(ctx context.Context, req BookingRecord) (AppointmentRecord, error) {
	var rec AppointmentRecord
	if err := c.do(ctx, "create appointment", http.MethodPost, "/appointments/book", req, &rec); err != nil {
		return AppointmentRecord{}, err
	}
	return rec, nil
}

func (c *Client) UpdateAppointment(ctx context.Context, id int64, req UpdateRecord) (AppointmentRecord, error) {
	var rec AppointmentRecord
	path := fmt.Sprintf("/appointments/%d", id)
	if err := c.do(ctx, "update appointment", http.MethodPut, path, req, &rec); err != nil {
		return AppointmentRecord{}, err
	}
	return rec, nil
}
