// Package credential holds the persisted bearer token and user profile that
// decide whether the client is logged in.
package credential

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/wesm/minutes/internal/apperr"
)

// Role is the authority-assigned role of a user.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleBase  Role = "base"
)

// ParseRole maps the authority's role strings onto Role. Anything that is
// not an administrator is a base user.
func ParseRole(s string, isAdmin bool) Role {
	if isAdmin || strings.EqualFold(strings.TrimSpace(s), string(RoleAdmin)) {
		return RoleAdmin
	}
	return RoleBase
}

// Label returns a display name for the role.
func (r Role) Label() string {
	if r == RoleAdmin {
		return "Administrator"
	}
	return "Base user"
}

// UserProfile identifies the logged-in user.
type UserProfile struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  Role   `json:"role"`
}

// Validate reports whether the profile carries a non-empty id and email.
func (p UserProfile) Validate() error {
	if strings.TrimSpace(p.ID) == "" {
		return errors.New("profile id is empty")
	}
	if strings.TrimSpace(p.Email) == "" {
		return errors.New("profile email is empty")
	}
	return nil
}

// Credential pairs a bearer token with the profile it was issued for.
// Either both are present and valid or the credential does not exist.
type Credential struct {
	Token   string
	Profile UserProfile
}

// Validate reports whether the credential is complete.
func (c Credential) Validate() error {
	if strings.TrimSpace(c.Token) == "" {
		return errors.New("token is empty")
	}
	return c.Profile.Validate()
}

// Store is the single source of truth for "am I logged in".
//
// Get returns (nil, nil) when no credential exists. When the persisted
// data is partial, unparsable, or fails profile validation, Get clears it
// and reports it as absent: reads repair corruption as a side effect.
//
// Set is atomic with respect to Get; no reader observes a token without its
// profile. Set rejects incomplete credentials with apperr.ErrValidation.
type Store interface {
	Get(ctx context.Context) (*Credential, error)
	Set(ctx context.Context, c Credential) error
	Clear(ctx context.Context) error
}

// encodeProfile validates c and serialises its profile for persistence.
func encodeProfile(c Credential) (string, error) {
	if err := c.Validate(); err != nil {
		return "", fmt.Errorf("%w: %v", apperr.ErrValidation, err)
	}
	if c.Profile.Role == "" {
		c.Profile.Role = RoleBase
	}
	data, err := json.Marshal(c.Profile)
	if err != nil {
		return "", fmt.Errorf("encode profile: %w", err)
	}
	return string(data), nil
}

// decode rebuilds a credential from its persisted parts.
func decode(token, rawProfile string) (*Credential, error) {
	if strings.TrimSpace(token) == "" {
		return nil, errors.New("token is empty")
	}
	if strings.TrimSpace(rawProfile) == "" {
		return nil, errors.New("profile is empty")
	}
	var p UserProfile
	if err := json.Unmarshal([]byte(rawProfile), &p); err != nil {
		return nil, fmt.Errorf("parse profile: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	p.Role = ParseRole(string(p.Role), false)
	return &Credential{Token: token, Profile: p}, nil
}
