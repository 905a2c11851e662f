package query

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/wesm/minutes/internal/apperr"
)

func TestFilterStateValuesDropsEmptyFields(t *testing.T) {
	tests := []struct {
		name   string
		filter FilterState
		want   string
	}{
		{"empty", FilterState{}, ""},
		{"any status", FilterState{Status: StatusAny}, ""},
		{"blank title", FilterState{Title: "   "}, ""},
		{"status only", FilterState{Status: StatusPending}, "status=pending"},
		{"all fields", FilterState{Status: StatusDone, Title: "board", Date: "2024-03-01"}, "date=2024-03-01&status=done&titleSubstring=board"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.filter.Values().Encode(); got != tt.want {
				t.Errorf("Values() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseStatus(t *testing.T) {
	for in, want := range map[string]Status{
		"":            StatusNone,
		"any":         StatusAny,
		"Pending":     StatusPending,
		"in-progress": StatusInProgress,
		"in_progress": StatusInProgress,
		" done ":      StatusDone,
	} {
		got, err := ParseStatus(in)
		if err != nil {
			t.Errorf("ParseStatus(%q) error = %v", in, err)
			continue
		}
		if got != want {
			t.Errorf("ParseStatus(%q) = %q, want %q", in, got, want)
		}
	}
	if _, err := ParseStatus("closed"); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("ParseStatus(closed) error = %v, want ErrValidation", err)
	}
}

func TestStatusLabelAndNext(t *testing.T) {
	labels := map[Status]string{
		StatusNone:       "All",
		StatusPending:    "Pending",
		StatusInProgress: "In Progress",
		StatusDone:       "Done",
	}
	for st, want := range labels {
		if got := st.Label(); got != want {
			t.Errorf("%q.Label() = %q, want %q", st, got, want)
		}
	}

	var seen []Status
	st := StatusNone
	for range FilterStatuses {
		st = st.Next()
		seen = append(seen, st)
	}
	want := []Status{StatusPending, StatusInProgress, StatusDone, StatusNone}
	if diff := cmp.Diff(want, seen); diff != "" {
		t.Errorf("Next() cycle mismatch (-want +got):\n%s", diff)
	}
}

func TestFilterStateWith(t *testing.T) {
	f, err := FilterState{}.With(FieldDate, " 2024-02-29 ")
	if err != nil {
		t.Fatalf("With(date) error = %v", err)
	}
	if f.Date != "2024-02-29" {
		t.Errorf("Date = %q", f.Date)
	}
	f, err = f.With(FieldDate, "")
	if err != nil || f.Date != "" {
		t.Errorf("clearing date: %+v, %v", f, err)
	}
	if _, err := f.With(FieldDate, "29/02/2024"); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("bad date error = %v", err)
	}
	if _, err := f.With(Field(42), "x"); err == nil {
		t.Error("unknown field should fail")
	}
}

func TestRecordDetailAttachments(t *testing.T) {
	d := &RecordDetail{
		PDFPath: "/media/actas/1.pdf",
		Commitments: []Commitment{
			{ID: 1, Actions: []Action{
				{ID: 10, AuthorEmail: "a@x.org", FilePath: "/media/acciones/a.jpg"},
				{ID: 11, AuthorEmail: "b@x.org"},
			}},
			{ID: 2, Actions: []Action{
				{ID: 12, AuthorEmail: "c@x.org", FilePath: "acciones/c.pdf"},
			}},
		},
	}
	var paths []string
	for _, a := range d.Attachments() {
		paths = append(paths, a.Path)
	}
	want := []string{"/media/actas/1.pdf", "/media/acciones/a.jpg", "acciones/c.pdf"}
	if diff := cmp.Diff(want, paths); diff != "" {
		t.Errorf("Attachments() mismatch (-want +got):\n%s", diff)
	}
	if got := (&RecordDetail{}).Attachments(); len(got) != 0 {
		t.Errorf("empty record attachments = %v", got)
	}
}
