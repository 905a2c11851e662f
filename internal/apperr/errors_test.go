package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, KindUnknown},
		{"unauthenticated", ErrUnauthenticated, KindUnauthenticated},
		{"wrapped expired", fmt.Errorf("probe: %w", ErrSessionExpired), KindSessionExpired},
		{"connectivity", fmt.Errorf("get records: %w", ErrConnectivity), KindConnectivity},
		{"empty", ErrResourceEmpty, KindResourceEmpty},
		{"validation", ErrValidation, KindValidation},
		{"login", ErrInvalidCredentials, KindInvalidCredentials},
		{"server 500", &ServerError{Status: 500, Body: "boom"}, KindServerRejected},
		{"server 401", &ServerError{Status: http.StatusUnauthorized}, KindSessionExpired},
		{"other", errors.New("x"), KindUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestUserMessage_DistinctPerKind(t *testing.T) {
	errs := []error{
		ErrUnauthenticated,
		ErrSessionExpired,
		ErrConnectivity,
		ErrResourceEmpty,
		ErrValidation,
		ErrInvalidCredentials,
		&ServerError{Status: 404, Body: "not found"},
	}
	seen := make(map[string]error)
	for _, err := range errs {
		msg := UserMessage(err)
		if msg == "" {
			t.Errorf("UserMessage(%v) is empty", err)
		}
		if prev, ok := seen[msg]; ok {
			t.Errorf("UserMessage(%v) duplicates message of %v: %q", err, prev, msg)
		}
		seen[msg] = err
	}
}

func TestServerError_Message(t *testing.T) {
	err := &ServerError{Status: 404, Body: "  missing \n"}
	if got, want := err.Error(), "server error (404): missing"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	err = &ServerError{Status: 502}
	if got, want := err.Error(), "server error (502): Bad Gateway"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

type fakeValidation struct{}

func (fakeValidation) Error() string             { return "bad file" }
func (fakeValidation) ValidationMessage() string { return "file too big" }
func (fakeValidation) Is(target error) bool      { return target == ErrValidation }

func TestUserMessage_ValidationUsesDetail(t *testing.T) {
	if got := UserMessage(fakeValidation{}); got != "file too big" {
		t.Errorf("UserMessage() = %q, want detail message", got)
	}
}

func TestRequiresLogout(t *testing.T) {
	if !RequiresLogout(ErrSessionExpired) || !RequiresLogout(ErrUnauthenticated) {
		t.Error("expired and unauthenticated must force logout")
	}
	if RequiresLogout(ErrConnectivity) {
		t.Error("connectivity must not force logout")
	}
}
