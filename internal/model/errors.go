package model

import "fmt"

// AuthError: bad credentials or a failed profile fetch during login. The
// session never partially commits when one of these is returned.
type AuthError struct {
	Reason string
	Err    error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("auth: %s: %v", e.Reason, e.Err)
	}
	return "auth: " + e.Reason
}

func (e *AuthError) Unwrap() error { return e.Err }

// ValidationError: locally detectable bad input, raised before any network
// call is attempted.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Reason
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Reason)
}

// AuthorizationError: a transition or edit attempted by a non-permitted actor
// or on an appointment that is no longer pending. Raised before any network
// call.
type AuthorizationError struct {
	Reason string
}

func (e *AuthorizationError) Error() string { return "not allowed: " + e.Reason }

// NetworkError: transport failure or non-success response from the remote
// gateway. Message carries the server-provided text when there is one.
type NetworkError struct {
	Op      string
	Status  int
	Message string
	Err     error
}

func (e *NetworkError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	case e.Message != "":
		return fmt.Sprintf("%s: %s (status %d)", e.Op, e.Message, e.Status)
	default:
		return fmt.Sprintf("%s: status %d", e.Op, e.Status)
	}
}

func (e *NetworkError) Unwrap() error { return e.Err }
