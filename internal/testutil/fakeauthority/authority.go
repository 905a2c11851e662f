// Package fakeauthority is an in-process stand-in for the meeting-minutes
// authority. It serves the login, record, action and media endpoints with
// token authentication so client code can be exercised end to end.
package fakeauthority

import (
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// User is an account known to the authority.
type User struct {
	ID       int64
	Email    string
	Password string
	Role     string // "admin" or "base"
}

// Action is a follow-up as served on the wire.
type Action struct {
	ID          int64   `json:"id"`
	Date        string  `json:"date"`
	AuthorEmail string  `json:"authorEmail"`
	Description string  `json:"description"`
	FilePath    *string `json:"filePath"`
}

// Commitment is a commitment as served on the wire.
type Commitment struct {
	ID          int64    `json:"id"`
	Description string   `json:"description"`
	Responsible string   `json:"responsible"`
	DueDate     string   `json:"dueDate"`
	Actions     []Action `json:"actions"`
}

// Record is a record as served by the detail endpoint.
type Record struct {
	ID          int64        `json:"id"`
	Title       string       `json:"title"`
	Status      string       `json:"status"`
	Date        string       `json:"date"`
	PDFPath     *string      `json:"pdfPath"`
	Commitments []Commitment `json:"commitments"`
}

// Summary is a record as served by the list endpoint.
type Summary struct {
	ID              int64  `json:"id"`
	Title           string `json:"title"`
	Status          string `json:"status"`
	Date            string `json:"date"`
	CommitmentCount int    `json:"commitmentCount"`
}

// SubmittedAction records what a client posted to /actions.
type SubmittedAction struct {
	CommitmentID string
	Description  string
	FileName     string
	FileType     string
	FileSize     int
	AuthorEmail  string
}

// RecordedRequest is one request seen by the authority.
type RecordedRequest struct {
	Method    string
	Path      string
	RawQuery  string
	Auth      string
	RequestID string
}

type override struct {
	status int
	body   string
}

// Authority holds the fake server state. All methods are safe for
// concurrent use.
type Authority struct {
	mu        sync.Mutex
	users     map[string]User
	tokens    map[string]int64
	records   []Record
	media     map[string][]byte
	overrides map[string]override
	requests  []RecordedRequest
	submitted []SubmittedAction
	nextID    int64

	limiter *RateLimiter
	logger  *slog.Logger
	router  chi.Router
}

// Option configures an Authority.
type Option func(*Authority)

// WithRateLimit rejects requests beyond rps per client with 429.
func WithRateLimit(rps float64, burst int) Option {
	return func(a *Authority) {
		a.limiter = NewRateLimiter(rps, burst)
	}
}

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Authority) {
		a.logger = logger
	}
}

// New creates an empty authority.
func New(opts ...Option) *Authority {
	a := &Authority{
		users:     make(map[string]User),
		tokens:    make(map[string]int64),
		media:     make(map[string][]byte),
		overrides: make(map[string]override),
		nextID:    1000,
		logger:    slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.router = a.setupRouter()
	return a
}

// Start serves a new authority over plain HTTP on a loopback address until
// the test ends.
func Start(t testing.TB, opts ...Option) (*Authority, *httptest.Server) {
	t.Helper()
	a := New(opts...)
	srv := httptest.NewServer(a.Handler())
	t.Cleanup(srv.Close)
	return a, srv
}

// Handler returns the HTTP handler.
func (a *Authority) Handler() http.Handler {
	return a.router
}

func (a *Authority) setupRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(a.recordMiddleware)
	r.Use(a.loggerMiddleware)
	r.Use(chimw.Recoverer)
	if a.limiter != nil {
		r.Use(RateLimitMiddleware(a.limiter))
	}

	r.Post("/login", a.handleLogin)

	r.Group(func(r chi.Router) {
		r.Use(a.authMiddleware)
		r.Use(a.overrideMiddleware)

		r.Get("/records", a.handleListRecords)
		r.Get("/records/{id}", a.handleGetRecord)
		r.Post("/actions", a.handleCreateAction)
		r.Get("/media/*", a.handleMedia)
	})

	return r
}

// AddUser registers an account and returns its id.
func (a *Authority) AddUser(email, password, role string) int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nextID++
	a.users[strings.ToLower(email)] = User{ID: a.nextID, Email: email, Password: password, Role: role}
	return a.nextID
}

// IssueToken returns a fresh token for a registered user, as a login would.
func (a *Authority) IssueToken(email string) string {
	a.mu.Lock()
	defer a.mu.Unlock()
	u, ok := a.users[strings.ToLower(email)]
	if !ok {
		return ""
	}
	return a.issueLocked(u.ID)
}

func (a *Authority) issueLocked(userID int64) string {
	buf := make([]byte, 20)
	_, _ = rand.Read(buf)
	token := hex.EncodeToString(buf)
	a.tokens[token] = userID
	return token
}

// RevokeAll invalidates every issued token.
func (a *Authority) RevokeAll() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.tokens = make(map[string]int64)
}

// AddRecord stores a record. Records are listed newest first.
func (a *Authority) AddRecord(r Record) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.records = append(a.records, r)
}

// PutMedia stores content under a canonical relative key.
func (a *Authority) PutMedia(key string, content []byte) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.media[key] = content
}

// Override makes every authenticated request whose path starts with prefix
// answer status with body. A zero status removes the override.
func (a *Authority) Override(prefix string, status int, body string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if status == 0 {
		delete(a.overrides, prefix)
		return
	}
	a.overrides[prefix] = override{status: status, body: body}
}

// Requests returns every request seen so far.
func (a *Authority) Requests() []RecordedRequest {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]RecordedRequest(nil), a.requests...)
}

// Hits counts requests whose path starts with prefix.
func (a *Authority) Hits(prefix string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for _, r := range a.requests {
		if strings.HasPrefix(r.Path, prefix) {
			n++
		}
	}
	return n
}

// Submitted returns the actions posted so far.
func (a *Authority) Submitted() []SubmittedAction {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]SubmittedAction(nil), a.submitted...)
}

func (a *Authority) sortedRecordsLocked() []Record {
	out := append([]Record(nil), a.records...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date > out[j].Date })
	return out
}

// Seed loads a small data set: an administrator, a base user, three
// records and the documents they reference.
func (a *Authority) Seed() {
	a.AddUser("admin@example.com", "admin123", "admin")
	a.AddUser("user@example.com", "user123", "base")

	pdf1 := "/media/actas/2024/board-march.pdf"
	file1 := "/media/acciones/budget-draft.jpg"
	a.AddRecord(Record{
		ID: 1, Title: "Board meeting March", Status: "pending", Date: "2024-03-12",
		PDFPath: &pdf1,
		Commitments: []Commitment{{
			ID: 11, Description: "Prepare budget draft", Responsible: "Ana Ruiz", DueDate: "2024-04-01",
			Actions: []Action{{ID: 111, Date: "2024-03-20T10:00:00Z", AuthorEmail: "user@example.com", Description: "First draft shared", FilePath: &file1}},
		}},
	})
	a.AddRecord(Record{
		ID: 2, Title: "Safety committee", Status: "in_progress", Date: "2024-02-05",
		Commitments: []Commitment{
			{ID: 21, Description: "Inspect fire exits", Responsible: "Luis Gomez", DueDate: "2024-02-28"},
			{ID: 22, Description: "Order extinguishers", Responsible: "Ana Ruiz", DueDate: "2024-03-15"},
		},
	})
	a.AddRecord(Record{
		ID: 3, Title: "Board meeting January", Status: "done", Date: "2024-01-09",
	})

	a.PutMedia("actas/2024/board-march.pdf", []byte("%PDF-1.4\nboard minutes\n%%EOF\n"))
	a.PutMedia("acciones/budget-draft.jpg", []byte("\xff\xd8\xff\xe0fake-jpeg"))
}

func today() string {
	return time.Now().UTC().Format(time.RFC3339)
}
