package tui

import (
	"context"
	"io"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/wesm/minutes/internal/apperr"
	"github.com/wesm/minutes/internal/attachment"
	"github.com/wesm/minutes/internal/credential"
	"github.com/wesm/minutes/internal/export"
	"github.com/wesm/minutes/internal/query"
	"github.com/wesm/minutes/internal/query/querytest"
	"github.com/wesm/minutes/internal/remote"
	"github.com/wesm/minutes/internal/session"
)

// ansiStart is the escape sequence prefix found in styled terminal output.
const ansiStart = "\x1b["

// colorProfileMu serializes tests that mutate the global lipgloss color profile.
var colorProfileMu sync.Mutex

// forceColorProfile sets lipgloss to ANSI color output for tests that assert
// on styled output and restores the original profile via t.Cleanup.
func forceColorProfile(t *testing.T) {
	t.Helper()
	colorProfileMu.Lock()
	orig := lipgloss.ColorProfile()
	lipgloss.SetColorProfile(termenv.ANSI)
	t.Cleanup(func() {
		lipgloss.SetColorProfile(orig)
		colorProfileMu.Unlock()
	})
}

var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;?]*[ -/]*[@-~]`)

func stripANSI(s string) string {
	return ansiPattern.ReplaceAllString(s, "")
}

// =============================================================================
// Test doubles
// =============================================================================

type fakeGuard struct {
	mu     sync.Mutex
	result session.Result
	user   *credential.UserProfile
	calls  int
}

func allowGuard() *fakeGuard {
	return &fakeGuard{
		result: session.Result{State: session.Allowed},
		user:   &credential.UserProfile{ID: "2", Email: "user@example.com", Role: credential.RoleBase},
	}
}

func denyGuard(err error) *fakeGuard {
	return &fakeGuard{result: session.Result{State: session.Denied, Err: err, Message: apperr.UserMessage(err)}}
}

func (g *fakeGuard) Check(ctx context.Context, onFail func(session.Result)) session.Result {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if g.result.State == session.Denied && onFail != nil {
		onFail(g.result)
	}
	return g.result
}

func (g *fakeGuard) User() *credential.UserProfile {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.result.State != session.Allowed {
		return nil
	}
	return g.user
}

func (g *fakeGuard) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

type fakeOpener struct {
	result *attachment.Result
	err    error
	opened []string
	files  map[string]string
}

func (o *fakeOpener) Open(ctx context.Context, pathOrURL string) (*attachment.Result, error) {
	o.opened = append(o.opened, pathOrURL)
	return o.result, o.err
}

func (o *fakeOpener) Source() export.Source {
	return func(ctx context.Context, ref query.AttachmentRef) (string, io.ReadCloser, error) {
		body, ok := o.files[ref.Path]
		if !ok {
			return "", nil, o.err
		}
		return attachment.FileName(ref.Path), io.NopCloser(strings.NewReader(body)), nil
	}
}

type fakeSubmitter struct {
	inputs []remote.ActionInput
	err    error
}

func (s *fakeSubmitter) CreateAction(ctx context.Context, in remote.ActionInput) (*query.Action, error) {
	s.inputs = append(s.inputs, in)
	if s.err != nil {
		return nil, s.err
	}
	return &query.Action{ID: 999, Description: in.Description}, nil
}

// manualClock holds debounce timers until Fire is called.
type manualClock struct {
	mu      sync.Mutex
	pending []*manualTimer
}

type manualTimer struct {
	f       func()
	stopped bool
}

func (t *manualTimer) Stop() bool {
	was := !t.stopped
	t.stopped = true
	return was
}

func (c *manualClock) AfterFunc(d time.Duration, f func()) query.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &manualTimer{f: f}
	c.pending = append(c.pending, t)
	return t
}

// Fire runs every timer that has not been stopped.
func (c *manualClock) Fire() {
	c.mu.Lock()
	ts := c.pending
	c.pending = nil
	c.mu.Unlock()
	for _, t := range ts {
		if !t.stopped {
			t.f()
		}
	}
}

// =============================================================================
// Fixtures
// =============================================================================

func day(s string) time.Time {
	t, _ := time.Parse(query.DateLayout, s)
	return t
}

var testRecords = []query.RecordSummary{
	{ID: 1, Title: "Board meeting March", Status: query.StatusPending, Date: day("2024-03-12"), CommitmentCount: 1},
	{ID: 2, Title: "Budget committee", Status: query.StatusInProgress, Date: day("2024-02-05"), CommitmentCount: 2},
	{ID: 3, Title: "Annual assembly", Status: query.StatusDone, Date: day("2024-01-09")},
}

func testDetail() *query.RecordDetail {
	return &query.RecordDetail{
		ID:      1,
		Title:   "Board meeting March",
		Status:  query.StatusPending,
		Date:    day("2024-03-12"),
		PDFPath: "/media/actas/2024/board-march.pdf",
		Commitments: []query.Commitment{
			{
				ID: 11, Description: "Prepare budget draft", Responsible: "Ana", DueDate: day("2024-04-01"),
				Actions: []query.Action{
					{ID: 111, Date: day("2024-03-15"), AuthorEmail: "user@example.com", Description: "Draft shared", FilePath: "/media/acciones/budget-draft.jpg"},
				},
			},
			{ID: 12, Description: "Book the venue"},
		},
	}
}

type harness struct {
	engine    *querytest.MockEngine
	clock     *manualClock
	ctrl      *query.Controller
	guard     *fakeGuard
	opener    *fakeOpener
	submitter *fakeSubmitter
}

func newHarness(t *testing.T, guard *fakeGuard) *harness {
	t.Helper()
	h := &harness{
		engine: &querytest.MockEngine{
			Records: testRecords,
			Details: map[int64]*query.RecordDetail{1: testDetail()},
		},
		clock:     &manualClock{},
		guard:     guard,
		opener:    &fakeOpener{},
		submitter: &fakeSubmitter{},
	}
	h.ctrl = query.NewController(query.ControllerOptions{Engine: h.engine, AfterFunc: h.clock.AfterFunc})
	t.Cleanup(h.ctrl.Close)
	return h
}

func (h *harness) model(t *testing.T) Model {
	t.Helper()
	m := New(Options{
		Controller:        h.ctrl,
		Engine:            h.engine,
		Guard:             h.guard,
		Opener:            h.opener,
		Submitter:         h.submitter,
		DownloadDir:       t.TempDir(),
		ExportConcurrency: 2,
		Version:           "test123",
	})
	return apply(t, m, tea.WindowSizeMsg{Width: 100, Height: 24})
}

// apply runs one Update and returns the concrete model.
func apply(t *testing.T, m Model, msg tea.Msg) Model {
	t.Helper()
	next, _ := m.Update(msg)
	return next.(Model)
}

// applyCmd runs one Update and returns the model and command.
func applyCmd(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	return next.(Model), cmd
}

func key(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	case "up":
		return tea.KeyMsg{Type: tea.KeyUp}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	case "right":
		return tea.KeyMsg{Type: tea.KeyRight}
	case "ctrl+c":
		return tea.KeyMsg{Type: tea.KeyCtrlC}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func typeText(t *testing.T, m Model, text string) Model {
	t.Helper()
	for _, r := range text {
		m = apply(t, m, key(string(r)))
	}
	return m
}

// nextResults waits for the controller's next published state matching done.
func nextResults(t *testing.T, ctrl *query.Controller, done func(query.ResultState) bool) resultsMsg {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case s := <-ctrl.Updates():
			if done(s) {
				return resultsMsg{state: s}
			}
		case <-deadline:
			t.Fatal("timed out waiting for controller update")
		}
	}
}

func settled(s query.ResultState) bool { return !s.Loading }

// listModel returns a model past the session check with the list loaded.
func listModel(t *testing.T, h *harness) Model {
	t.Helper()
	m := h.model(t)
	m = apply(t, m, m.checkSession(0)())
	if m.level != levelList {
		t.Fatalf("level = %v, want list", m.level)
	}
	return apply(t, m, nextResults(t, h.ctrl, settled))
}

// detailModel returns a model showing record 1.
func detailModel(t *testing.T, h *harness) Model {
	t.Helper()
	m := listModel(t, h)
	m = apply(t, m, m.checkSession(1)())
	if m.level != levelDetail {
		t.Fatalf("level = %v, want detail", m.level)
	}
	return apply(t, m, m.loadDetail(1)())
}

// runCmd executes cmd and any batched subcommands, returning their messages.
// Only use it for commands that do not wait on timers.
func runCmd(cmd tea.Cmd) []tea.Msg {
	if cmd == nil {
		return nil
	}
	msg := cmd()
	if batch, ok := msg.(tea.BatchMsg); ok {
		var out []tea.Msg
		for _, c := range batch {
			out = append(out, runCmd(c)...)
		}
		return out
	}
	return []tea.Msg{msg}
}
