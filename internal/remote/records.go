package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/wesm/minutes/internal/apperr"
	"github.com/wesm/minutes/internal/query"
	"github.com/wesm/minutes/internal/upload"
)

// Compile-time check that Client implements query.Engine.
var _ query.Engine = (*Client)(nil)

// ============================================================================
// API Response Types
// ============================================================================

// recordSummaryJSON matches the record list item format.
type recordSummaryJSON struct {
	ID              int64  `json:"id"`
	Title           string `json:"title"`
	Status          string `json:"status"`
	Date            string `json:"date"`
	CommitmentCount int    `json:"commitmentCount"`
}

// recordDetailJSON matches the record detail format.
type recordDetailJSON struct {
	ID          int64            `json:"id"`
	Title       string           `json:"title"`
	Status      string           `json:"status"`
	Date        string           `json:"date"`
	PDFPath     *string          `json:"pdfPath"`
	Commitments []commitmentJSON `json:"commitments"`
}

// commitmentJSON matches a commitment inside a record detail.
type commitmentJSON struct {
	ID          int64        `json:"id"`
	Description string       `json:"description"`
	Responsible string       `json:"responsible"`
	DueDate     string       `json:"dueDate"`
	Actions     []actionJSON `json:"actions"`
}

// actionJSON matches an action inside a commitment.
type actionJSON struct {
	ID          int64   `json:"id"`
	Date        string  `json:"date"`
	AuthorEmail string  `json:"authorEmail"`
	Description string  `json:"description"`
	FilePath    *string `json:"filePath"`
}

// pagedRecordsJSON is the paginated list envelope some deployments use.
type pagedRecordsJSON struct {
	Results []recordSummaryJSON `json:"results"`
}

// ============================================================================
// Helper Functions
// ============================================================================

var dateLayouts = []string{
	query.DateLayout,
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02 15:04:05",
}

// parseDate accepts a calendar date or a timestamp. Unparsable values
// yield the zero time.
func parseDate(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func toStatus(s string) query.Status {
	st, err := query.ParseStatus(s)
	if err != nil {
		return query.Status(s)
	}
	return st
}

func toRecordSummary(r recordSummaryJSON) query.RecordSummary {
	return query.RecordSummary{
		ID:              r.ID,
		Title:           r.Title,
		Status:          toStatus(r.Status),
		Date:            parseDate(r.Date),
		CommitmentCount: r.CommitmentCount,
	}
}

func toAction(a actionJSON) query.Action {
	return query.Action{
		ID:          a.ID,
		Date:        parseDate(a.Date),
		AuthorEmail: a.AuthorEmail,
		Description: a.Description,
		FilePath:    deref(a.FilePath),
	}
}

func toRecordDetail(r recordDetailJSON) *query.RecordDetail {
	d := &query.RecordDetail{
		ID:      r.ID,
		Title:   r.Title,
		Status:  toStatus(r.Status),
		Date:    parseDate(r.Date),
		PDFPath: deref(r.PDFPath),
	}
	for _, c := range r.Commitments {
		commitment := query.Commitment{
			ID:          c.ID,
			Description: c.Description,
			Responsible: c.Responsible,
			DueDate:     parseDate(c.DueDate),
		}
		for _, a := range c.Actions {
			commitment.Actions = append(commitment.Actions, toAction(a))
		}
		d.Commitments = append(d.Commitments, commitment)
	}
	return d
}

// ============================================================================
// Engine Interface Implementation
// ============================================================================

// ListRecords fetches records matching filter. Only active constraints are
// sent.
func (c *Client) ListRecords(ctx context.Context, filter query.FilterState) ([]query.RecordSummary, error) {
	path := "/records"
	if params := filter.Values(); len(params) > 0 {
		path += "?" + params.Encode()
	}

	var raw json.RawMessage
	if err := c.getJSON(ctx, path, &raw); err != nil {
		return nil, err
	}

	var items []recordSummaryJSON
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var paged pagedRecordsJSON
		if err := json.Unmarshal(trimmed, &paged); err != nil {
			return nil, fmt.Errorf("decode records response: %w", err)
		}
		items = paged.Results
	} else if err := json.Unmarshal(trimmed, &items); err != nil {
		return nil, fmt.Errorf("decode records response: %w", err)
	}

	records := make([]query.RecordSummary, len(items))
	for i, r := range items {
		records[i] = toRecordSummary(r)
	}
	return records, nil
}

// GetRecord fetches a single record with its commitments.
func (c *Client) GetRecord(ctx context.Context, id int64) (*query.RecordDetail, error) {
	var rd recordDetailJSON
	if err := c.getJSON(ctx, recordPath(id), &rd); err != nil {
		return nil, err
	}
	return toRecordDetail(rd), nil
}

// ============================================================================
// Actions
// ============================================================================

// ActionInput is a follow-up to submit on a commitment.
type ActionInput struct {
	CommitmentID int64
	Description  string
	File         *upload.File // optional
}

// CreateAction submits an action as a multipart form. Missing fields and
// files rejected by upload.Validate fail locally with apperr.ErrValidation
// before any request is made.
func (c *Client) CreateAction(ctx context.Context, in ActionInput) (*query.Action, error) {
	if in.CommitmentID <= 0 {
		return nil, fmt.Errorf("%w: a commitment is required", apperr.ErrValidation)
	}
	if strings.TrimSpace(in.Description) == "" {
		return nil, fmt.Errorf("%w: a description is required", apperr.ErrValidation)
	}
	if in.File != nil {
		if verr := upload.Validate(*in.File); verr != nil {
			return nil, verr
		}
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("commitmentId", strconv.FormatInt(in.CommitmentID, 10)); err != nil {
		return nil, fmt.Errorf("encode action: %w", err)
	}
	if err := mw.WriteField("description", in.Description); err != nil {
		return nil, fmt.Errorf("encode action: %w", err)
	}
	if in.File != nil {
		if err := writeFilePart(mw, *in.File); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("encode action: %w", err)
	}

	resp, err := c.do(ctx, request{
		method:      http.MethodPost,
		path:        "/actions",
		body:        &body,
		contentType: mw.FormDataContentType(),
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return nil, handleErrorResponse(resp)
	}

	var aj actionJSON
	if err := json.NewDecoder(resp.Body).Decode(&aj); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode action response: %w", err)
	}
	action := toAction(aj)
	if action.Description == "" {
		action.Description = in.Description
	}
	return &action, nil
}

func writeFilePart(mw *multipart.Writer, f upload.File) error {
	src, err := f.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, escapeQuotes(f.Name)))
	h.Set("Content-Type", f.ContentType)
	part, err := mw.CreatePart(h)
	if err != nil {
		return fmt.Errorf("encode file part: %w", err)
	}
	// The content must still match what was validated.
	n, err := io.Copy(part, io.LimitReader(src, f.Size+1))
	if err != nil {
		return fmt.Errorf("read %s: %w", f.Name, err)
	}
	if n != f.Size {
		return fmt.Errorf("%w: %s changed size after validation (%d bytes, expected %d)", apperr.ErrValidation, f.Name, n, f.Size)
	}
	return nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}

// ============================================================================
// Media
// ============================================================================

// Media is a streamed binary resource. The caller must close Body.
type Media struct {
	Body          io.ReadCloser
	ContentType   string
	ContentLength int64 // -1 when unknown
}

// FetchMedia requests the protected resource identified by a canonical
// relative key such as "actas/2024/minutes.pdf".
func (c *Client) FetchMedia(ctx context.Context, key string) (*Media, error) {
	segments := strings.Split(key, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}

	resp, err := c.do(ctx, request{
		method: http.MethodGet,
		path:   "/media/" + strings.Join(segments, "/"),
		accept: "*/*",
	})
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		return nil, handleErrorResponse(resp)
	}
	return &Media{
		Body:          resp.Body,
		ContentType:   resp.Header.Get("Content-Type"),
		ContentLength: resp.ContentLength,
	}, nil
}
