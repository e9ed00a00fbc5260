package model

import (
	"fmt"
	"time"
)

type Role string

const (
	RolePatient Role = "patient"
	RoleDoctor  Role = "doctor"
	RoleAdmin   Role = "admin"
)

func (r Role) Valid() bool {
	switch r {
	case RolePatient, RoleDoctor, RoleAdmin:
		return true
	}
	return false
}

type User struct {
	ID          int64  `json:"id"`
	Username    string `json:"username"`
	Email       string `json:"email"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Role        Role   `json:"role"`
	PhoneNumber string `json:"phone_number,omitempty"`
}

func (u User) DisplayName() string {
	return u.FirstName + " " + u.LastName
}

type Status string

// wire vocabulary of the appointment service; note the double-l spelling
const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further transition is allowed from s.
// Confirmed is terminal in the current design.
func (s Status) Terminal() bool {
	return s == StatusConfirmed || s == StatusCancelled
}

// TransitionAllowed is the single source of truth for the appointment state
// machine: pending -> confirmed, pending -> cancelled, nothing else.
func TransitionAllowed(from, to Status) bool {
	if from != StatusPending {
		return false
	}
	return to == StatusConfirmed || to == StatusCancelled
}

// Appointment is the client-side view of a booking. Date and Time are the
// display decomposition of the combined scheduled_time wire timestamp.
type Appointment struct {
	ID          int64
	PatientID   int64
	DoctorID    int64
	PatientName string
	DoctorName  string
	Date        string // 2006-01-02
	Time        string // 15:04
	Type        string
	Reason      string
	Status      Status
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

const (
	dateLayout     = "2006-01-02"
	timeLayout     = "15:04"
	combinedLayout = "2006-01-02 15:04"
)

// CombineSchedule joins a date and a time-of-day into the wire timestamp.
func CombineSchedule(date, clock string) (time.Time, error) {
	ts, err := time.ParseInLocation(combinedLayout, date+" "+clock, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad schedule %q %q: %w", date, clock, err)
	}
	return ts, nil
}

// SplitSchedule decomposes the wire timestamp for display.
func SplitSchedule(ts time.Time) (date, clock string) {
	ts = ts.UTC()
	return ts.Format(dateLayout), ts.Format(timeLayout)
}

type DirectoryEntry struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

func (d DirectoryEntry) DisplayName() string {
	return d.FirstName + " " + d.LastName
}
