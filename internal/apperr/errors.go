// Package apperr defines the client-side error taxonomy shared by every
// component that talks to the remote authority. Callers match kinds with
// errors.Is and obtain a display string with UserMessage.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrUnauthenticated means no usable local credential exists.
	ErrUnauthenticated = errors.New("not logged in")
	// ErrSessionExpired means the authority rejected the stored credential.
	ErrSessionExpired = errors.New("session expired")
	// ErrConnectivity means the request never produced an HTTP response.
	ErrConnectivity = errors.New("server unreachable")
	// ErrResourceEmpty means a binary resource was fetched but had no bytes.
	ErrResourceEmpty = errors.New("resource is empty")
	// ErrValidation means local input was rejected before reaching the network.
	ErrValidation = errors.New("validation failed")
	// ErrServerRejected means the authority answered with a non-2xx status.
	ErrServerRejected = errors.New("server rejected request")
	// ErrInvalidCredentials means the authority refused an email/password pair.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// Kind classifies an error into one of the taxonomy buckets.
type Kind int

const (
	KindUnknown Kind = iota
	KindUnauthenticated
	KindSessionExpired
	KindConnectivity
	KindResourceEmpty
	KindValidation
	KindServerRejected
	KindInvalidCredentials
)

// String returns a stable identifier for the kind.
func (k Kind) String() string {
	switch k {
	case KindUnauthenticated:
		return "unauthenticated"
	case KindSessionExpired:
		return "session_expired"
	case KindConnectivity:
		return "connectivity"
	case KindResourceEmpty:
		return "resource_empty"
	case KindValidation:
		return "validation_failed"
	case KindServerRejected:
		return "server_rejected"
	case KindInvalidCredentials:
		return "invalid_credentials"
	default:
		return "unknown"
	}
}

// ServerError carries a non-2xx response from the authority.
type ServerError struct {
	Status int
	Body   string
}

func (e *ServerError) Error() string {
	body := strings.TrimSpace(e.Body)
	if body == "" {
		body = http.StatusText(e.Status)
	}
	return fmt.Sprintf("server error (%d): %s", e.Status, body)
}

// Is reports ErrServerRejected for every status and ErrSessionExpired for 401.
func (e *ServerError) Is(target error) bool {
	switch target {
	case ErrServerRejected:
		return true
	case ErrSessionExpired:
		return e.Status == http.StatusUnauthorized
	}
	return false
}

// KindOf returns the taxonomy kind of err. Session expiry wins over the
// generic server rejection it is also reported as.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindUnknown
	case errors.Is(err, ErrSessionExpired):
		return KindSessionExpired
	case errors.Is(err, ErrUnauthenticated):
		return KindUnauthenticated
	case errors.Is(err, ErrConnectivity):
		return KindConnectivity
	case errors.Is(err, ErrResourceEmpty):
		return KindResourceEmpty
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrInvalidCredentials):
		return KindInvalidCredentials
	case errors.Is(err, ErrServerRejected):
		return KindServerRejected
	}
	return KindUnknown
}

// RequiresLogout reports whether err must force the client back to the
// unauthenticated state.
func RequiresLogout(err error) bool {
	k := KindOf(err)
	return k == KindSessionExpired || k == KindUnauthenticated
}

// UserMessage returns a message suitable for display. Each kind produces a
// distinct message so callers can branch on it.
func UserMessage(err error) string {
	switch KindOf(err) {
	case KindUnauthenticated:
		return "You need to log in to access this page. Run 'minutes login'."
	case KindSessionExpired:
		return "Your session has expired. Please log in again."
	case KindConnectivity:
		return "Could not reach the server. Check your connection and try again."
	case KindResourceEmpty:
		return "The requested file is empty."
	case KindValidation:
		var ve interface{ ValidationMessage() string }
		if errors.As(err, &ve) {
			return ve.ValidationMessage()
		}
		return "The input is not valid: " + err.Error()
	case KindInvalidCredentials:
		return "Invalid email or password."
	case KindServerRejected:
		var se *ServerError
		if errors.As(err, &se) {
			return fmt.Sprintf("The server rejected the request (%d): %s", se.Status, strings.TrimSpace(se.Body))
		}
		return "The server rejected the request."
	}
	if err == nil {
		return ""
	}
	return "Unexpected error: " + err.Error()
}
