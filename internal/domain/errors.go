package domain

import (
	"fmt"
	"net/http"
)

// ValidationError reports user input that cannot form a request.
// Nothing is changed when it is returned.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid input: %s", e.Reason)
}

// Is matches any *ValidationError so errors.Is(err, &ValidationError{}) works.
func (e *ValidationError) Is(target error) bool {
	_, ok := target.(*ValidationError)
	return ok
}

// AuthError reports a missing or rejected credential.
type AuthError struct {
	Reason string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("not authenticated: %s", e.Reason)
}

// Is matches any *AuthError.
func (e *AuthError) Is(target error) bool {
	_, ok := target.(*AuthError)
	return ok
}

// TransportError reports a failed call to the analysis service.
// StatusCode is zero when no HTTP response was received.
type TransportError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, http.StatusText(e.StatusCode), e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s: unexpected status %d %s", e.Op, e.StatusCode, http.StatusText(e.StatusCode))
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	default:
		return e.Op + ": request failed"
	}
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Is matches any *TransportError.
func (e *TransportError) Is(target error) bool {
	_, ok := target.(*TransportError)
	return ok
}

// Unauthorized reports whether the service rejected the bearer token.
func (e *TransportError) Unauthorized() bool {
	return e.StatusCode == http.StatusUnauthorized
}

// UntrustedMessageError reports a cross-context message from an origin outside
// the allow-list. It is never shown to the user.
type UntrustedMessageError struct {
	Origin string
}

func (e *UntrustedMessageError) Error() string {
	return fmt.Sprintf("message from untrusted origin %q", e.Origin)
}

// Is matches any *UntrustedMessageError.
func (e *UntrustedMessageError) Is(target error) bool {
	_, ok := target.(*UntrustedMessageError)
	return ok
}
