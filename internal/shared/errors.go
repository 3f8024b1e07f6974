package shared

import (
	"errors"
	"fmt"
)

var (
	// Configuration errors
	ErrMissingConfig = fmt.Errorf("configuration not found")
	ErrInvalidConfig = fmt.Errorf("invalid configuration")

	// Authentication errors
	ErrAuthFailed       = fmt.Errorf("authentication failed")
	ErrTokenInvalid     = fmt.Errorf("%w: token invalid", ErrAuthFailed)
	ErrTokenExpired     = fmt.Errorf("%w: token expired", ErrAuthFailed)
	ErrTokenRevoked     = fmt.Errorf("%w: token revoked", ErrAuthFailed)
	ErrNotAuthenticated = fmt.Errorf("not authenticated")
	ErrSessionExpired   = fmt.Errorf("session expired")

	// Registry errors
	ErrValidation    = fmt.Errorf("validation failed")
	ErrQuotaExceeded = fmt.Errorf("job quota exceeded")
	ErrNetwork       = fmt.Errorf("network error")
	ErrServer        = fmt.Errorf("server error")
	ErrConflict      = fmt.Errorf("conflict")
	ErrNotReady      = fmt.Errorf("job not ready for review")
	ErrForbidden     = fmt.Errorf("forbidden")
	ErrJobNotFound   = fmt.Errorf("job not found")

	// Controller errors
	ErrBusy      = fmt.Errorf("another operation is in flight for this job")
	ErrDiscarded = fmt.Errorf("result discarded")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
)

// APIError is a valid-but-error response from the backend.
//
// Kind is one of the registry sentinels above; errors.Is matches against it.
type APIError struct {
	Kind    error
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	switch {
	case e.Message != "" && e.Code != "":
		return fmt.Sprintf("%v (status %d, %s): %s", e.Kind, e.Status, e.Code, e.Message)
	case e.Message != "":
		return fmt.Sprintf("%v (status %d): %s", e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("%v (status %d)", e.Kind, e.Status)
}

func (e *APIError) Unwrap() error { return e.Kind }

// Problem is the user-facing rendering of an error.
type Problem struct {
	Message string // human readable
	Retry   bool   // whether a retry affordance makes sense
	Relogin bool   // the user has to authenticate again
}

// Describe turns any error from the registry or controller into a [Problem].
func Describe(err error) Problem {
	var apiErr *APIError
	detail := ""
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		detail = ": " + apiErr.Message
	}

	switch {
	case err == nil:
		return Problem{}
	case errors.Is(err, ErrValidation):
		return Problem{Message: err.Error()}
	case errors.Is(err, ErrQuotaExceeded):
		return Problem{Message: "You have no jobs remaining. Contact support to raise your quota."}
	case errors.Is(err, ErrTokenExpired):
		return Problem{Message: "Your access token has expired. Please log in again.", Relogin: true}
	case errors.Is(err, ErrTokenRevoked):
		return Problem{Message: "Your access token was revoked. Please log in again.", Relogin: true}
	case errors.Is(err, ErrAuthFailed):
		return Problem{Message: "That access token was not accepted.", Relogin: true}
	case errors.Is(err, ErrSessionExpired), errors.Is(err, ErrNotAuthenticated):
		return Problem{Message: "Your session has ended. Please log in again.", Relogin: true}
	case errors.Is(err, ErrConflict):
		return Problem{Message: "This job was already resolved elsewhere. The list has been refreshed.", Retry: true}
	case errors.Is(err, ErrNotReady):
		return Problem{Message: "This job is not waiting for review."}
	case errors.Is(err, ErrForbidden):
		return Problem{Message: "Only admin sessions can do that."}
	case errors.Is(err, ErrBusy):
		return Problem{Message: "An operation for this job is already running."}
	case errors.Is(err, ErrNetwork):
		return Problem{Message: "Could not reach the server. Check your connection.", Retry: true}
	case errors.Is(err, ErrServer):
		return Problem{Message: "The server reported an error" + detail, Retry: true}
	}
	return Problem{Message: err.Error(), Retry: true}
}
