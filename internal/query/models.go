// Package query provides the record models shared by the CLI and the TUI,
// the Engine interface that fetches them from the remote authority, and the
// Controller that keeps a filtered record list consistent with user input.
package query

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/wesm/minutes/internal/apperr"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// DateLayout is the calendar-date format used on the wire and in filters.
const DateLayout = "2006-01-02"

// Status is the lifecycle state of a record.
type Status string

const (
	StatusNone       Status = ""
	StatusAny        Status = "any"
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusDone       Status = "done"
)

// FilterStatuses lists the values the status filter cycles through.
var FilterStatuses = []Status{StatusNone, StatusPending, StatusInProgress, StatusDone}

var titleCaser = cases.Title(language.English)

// ParseStatus accepts the wire names plus the hyphenated spelling of
// in_progress. The empty string means no constraint.
func ParseStatus(s string) (Status, error) {
	norm := strings.ToLower(strings.TrimSpace(s))
	norm = strings.ReplaceAll(norm, "-", "_")
	switch Status(norm) {
	case StatusNone, StatusAny, StatusPending, StatusInProgress, StatusDone:
		return Status(norm), nil
	}
	return "", fmt.Errorf("%w: unknown status %q", apperr.ErrValidation, s)
}

// Label returns a human-readable status name.
func (s Status) Label() string {
	switch s {
	case StatusNone, StatusAny:
		return "All"
	}
	return titleCaser.String(strings.ReplaceAll(string(s), "_", " "))
}

// Next returns the status that follows s in FilterStatuses.
func (s Status) Next() Status {
	for i, st := range FilterStatuses {
		if st == s {
			return FilterStatuses[(i+1)%len(FilterStatuses)]
		}
	}
	return FilterStatuses[0]
}

// RecordSummary is a record as shown in list views.
type RecordSummary struct {
	ID              int64
	Title           string
	Status          Status
	Date            time.Time
	CommitmentCount int
}

// RecordDetail is a full record with its commitments.
type RecordDetail struct {
	ID          int64
	Title       string
	Status      Status
	Date        time.Time
	PDFPath     string // empty when the record has no document
	Commitments []Commitment
}

// Commitment is a tracked obligation tied to a record.
type Commitment struct {
	ID          int64
	Description string
	Responsible string
	DueDate     time.Time
	Actions     []Action
}

// Action is a logged follow-up on a commitment.
type Action struct {
	ID          int64
	Date        time.Time
	AuthorEmail string
	Description string
	FilePath    string // empty when no file was attached
}

// AttachmentRef points at a protected binary resource of a record.
type AttachmentRef struct {
	Label string
	Path  string
}

// Attachments returns the record document followed by every action file,
// in display order.
func (d *RecordDetail) Attachments() []AttachmentRef {
	var refs []AttachmentRef
	if d.PDFPath != "" {
		refs = append(refs, AttachmentRef{Label: "Record document", Path: d.PDFPath})
	}
	for _, c := range d.Commitments {
		for _, a := range c.Actions {
			if a.FilePath == "" {
				continue
			}
			refs = append(refs, AttachmentRef{
				Label: fmt.Sprintf("Action %d (%s)", a.ID, a.AuthorEmail),
				Path:  a.FilePath,
			})
		}
	}
	return refs
}

// Field names one member of FilterState.
type Field int

const (
	FieldStatus Field = iota
	FieldTitle
	FieldDate
)

func (f Field) String() string {
	switch f {
	case FieldStatus:
		return "status"
	case FieldTitle:
		return "titleSubstring"
	case FieldDate:
		return "date"
	default:
		return "unknown"
	}
}

// FilterState holds the active list constraints. A zero field means
// "no constraint".
type FilterState struct {
	Status Status
	Title  string
	Date   string // YYYY-MM-DD
}

// IsZero reports whether no constraint is active.
func (f FilterState) IsZero() bool {
	return len(f.Values()) == 0
}

// Values encodes the active constraints as query parameters. Empty fields
// and the "any" status are dropped so the authority only sees constraints
// that narrow the result.
func (f FilterState) Values() url.Values {
	v := url.Values{}
	if f.Status != StatusNone && f.Status != StatusAny {
		v.Set("status", string(f.Status))
	}
	if strings.TrimSpace(f.Title) != "" {
		v.Set("titleSubstring", f.Title)
	}
	if strings.TrimSpace(f.Date) != "" {
		v.Set("date", f.Date)
	}
	return v
}

// With returns a copy of f with field set to value. Values are validated:
// status must be a known status and date must be a calendar date.
func (f FilterState) With(field Field, value string) (FilterState, error) {
	switch field {
	case FieldStatus:
		st, err := ParseStatus(value)
		if err != nil {
			return f, err
		}
		f.Status = st
	case FieldTitle:
		f.Title = value
	case FieldDate:
		value = strings.TrimSpace(value)
		if value != "" {
			if _, err := time.Parse(DateLayout, value); err != nil {
				return f, fmt.Errorf("%w: date must be YYYY-MM-DD, got %q", apperr.ErrValidation, value)
			}
		}
		f.Date = value
	default:
		return f, fmt.Errorf("%w: unknown filter field %d", apperr.ErrValidation, int(field))
	}
	return f, nil
}

// String renders the active constraints for logs and status lines.
func (f FilterState) String() string {
	if f.IsZero() {
		return "(no filters)"
	}
	return f.Values().Encode()
}
