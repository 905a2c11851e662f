// Package tui provides a terminal user interface for browsing records.
package tui

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/wesm/minutes/internal/apperr"
	"github.com/wesm/minutes/internal/attachment"
	"github.com/wesm/minutes/internal/credential"
	"github.com/wesm/minutes/internal/export"
	"github.com/wesm/minutes/internal/query"
	"github.com/wesm/minutes/internal/remote"
	"github.com/wesm/minutes/internal/session"
)

// viewLevel represents the current screen.
type viewLevel int

const (
	levelChecking viewLevel = iota // Session guard is running
	levelLocked                    // Session denied; only retry and quit are possible
	levelList
	levelDetail
)

// inputMode is the filter field currently being edited on the list screen.
type inputMode int

const (
	inputNone inputMode = iota
	inputTitle
	inputDate
)

// modalType represents the type of modal dialog.
type modalType int

const (
	modalNone modalType = iota
	modalHelp
	modalActionForm
	modalExportResult
)

// Guard runs the session check that gates protected screens.
type Guard interface {
	Check(ctx context.Context, onFail func(session.Result)) session.Result
	User() *credential.UserProfile
}

// Opener retrieves protected attachments.
type Opener interface {
	Open(ctx context.Context, pathOrURL string) (*attachment.Result, error)
	Source() export.Source
}

// ActionSubmitter submits follow-up actions.
type ActionSubmitter interface {
	CreateAction(ctx context.Context, in remote.ActionInput) (*query.Action, error)
}

// Options configuration for TUI.
type Options struct {
	Controller        *query.Controller
	Engine            query.Engine
	Guard             Guard
	Opener            Opener
	Submitter         ActionSubmitter
	DownloadDir       string
	ExportConcurrency int
	Version           string
}

// actionForm holds the state of the new-action modal.
type actionForm struct {
	commitment  int // index into detail.Commitments
	description textinput.Model
	file        textinput.Model
	focus       int // 0 commitment, 1 description, 2 file
	err         string
	submitting  bool
}

// Model is the main TUI model following the Elm architecture.
type Model struct {
	controller  *query.Controller
	engine      query.Engine
	guard       Guard
	opener      Opener
	submitter   ActionSubmitter
	downloadDir string
	concurrency int
	version     string

	level viewLevel
	user  *credential.UserProfile

	lockedMessage string

	// Record list
	records      []query.RecordSummary
	filter       query.FilterState
	loading      bool
	err          error
	cursor       int
	scrollOffset int

	// Detail view
	detail          *query.RecordDetail
	detailLoading   bool
	detailErr       error
	detailRequestID uint64 // Current request ID for record detail
	attachCursor    int
	detailScroll    int

	// Filter editing
	inputMode  inputMode
	titleInput textinput.Model
	dateInput  textinput.Model

	// listening is true while a waitForResults command is outstanding.
	listening bool

	modal       modalType
	modalResult string
	form        actionForm
	exporting   bool

	// Terminal dimensions
	width    int
	height   int
	pageSize int

	spinnerFrame  int
	spinnerActive bool

	flashMessage   string
	flashExpiresAt time.Time

	quitting bool
}

// New creates a new TUI model with the given options.
func New(opts Options) Model {
	ti := textinput.New()
	ti.Placeholder = "title contains"
	ti.CharLimit = 200
	ti.Width = 40

	di := textinput.New()
	di.Placeholder = "YYYY-MM-DD"
	di.CharLimit = 10
	di.Width = 12

	if opts.ExportConcurrency < 1 {
		opts.ExportConcurrency = 1
	}

	return Model{
		controller:    opts.Controller,
		engine:        opts.Engine,
		guard:         opts.Guard,
		opener:        opts.Opener,
		submitter:     opts.Submitter,
		downloadDir:   opts.DownloadDir,
		concurrency:   opts.ExportConcurrency,
		version:       opts.Version,
		level:         levelChecking,
		titleInput:    ti,
		dateInput:     di,
		pageSize:      20,
		spinnerActive: true,
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.checkSession(0), spinnerTick())
}

// sessionCheckedMsg carries a guard activation result. recordID is the
// detail to open when the check passes; zero means the list.
type sessionCheckedMsg struct {
	result   session.Result
	recordID int64
}

// resultsMsg carries a list state published by the controller.
type resultsMsg struct {
	state query.ResultState
}

// detailLoadedMsg is sent when record detail is loaded.
type detailLoadedMsg struct {
	detail    *query.RecordDetail
	err       error
	requestID uint64 // To detect stale responses
}

// attachmentOpenedMsg is sent when an attachment open completes.
type attachmentOpenedMsg struct {
	label  string
	result *attachment.Result
	err    error
}

// actionSubmittedMsg is sent when an action submission completes.
type actionSubmittedMsg struct {
	recordID int64
	action   *query.Action
	err      error
}

// exportResultMsg is returned when attachment export completes.
type exportResultMsg struct {
	stats export.ExportStats
}

// flashClearMsg clears the flash message after timeout.
type flashClearMsg struct{}

// spinnerTickMsg advances the loading spinner animation.
type spinnerTickMsg struct{}

// spinnerFrames are the Braille dot animation frames for the loading spinner.
var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// spinnerInterval is how fast the spinner animates.
const spinnerInterval = 80 * time.Millisecond

// flashDuration is how long flash messages are displayed.
const flashDuration = 4 * time.Second

// checkSession runs one guard activation. Every protected screen is entered
// through it.
func (m Model) checkSession(recordID int64) tea.Cmd {
	guard := m.guard
	return func() tea.Msg {
		return sessionCheckedMsg{result: guard.Check(context.Background(), nil), recordID: recordID}
	}
}

// waitForResults delivers the next controller update. It is re-armed after
// each delivery; a closed channel ends the subscription.
func waitForResults(ch <-chan query.ResultState) tea.Cmd {
	return func() tea.Msg {
		s, ok := <-ch
		if !ok {
			return nil
		}
		return resultsMsg{state: s}
	}
}

func (m Model) loadDetail(id int64) tea.Cmd {
	requestID := m.detailRequestID
	engine := m.engine
	return func() (msg tea.Msg) {
		defer func() {
			if r := recover(); r != nil {
				msg = detailLoadedMsg{err: fmt.Errorf("detail panic: %v", r), requestID: requestID}
			}
		}()
		detail, err := engine.GetRecord(context.Background(), id)
		return detailLoadedMsg{detail: detail, err: err, requestID: requestID}
	}
}

func (m Model) openAttachment(ref query.AttachmentRef) tea.Cmd {
	opener := m.opener
	return func() tea.Msg {
		res, err := opener.Open(context.Background(), ref.Path)
		return attachmentOpenedMsg{label: ref.Label, result: res, err: err}
	}
}

func (m Model) submitAction(recordID int64, in remote.ActionInput) tea.Cmd {
	submitter := m.submitter
	return func() tea.Msg {
		action, err := submitter.CreateAction(context.Background(), in)
		return actionSubmittedMsg{recordID: recordID, action: action, err: err}
	}
}

func (m Model) exportAttachments() tea.Cmd {
	refs := m.detail.Attachments()
	dir := filepath.Join(m.downloadDir, fmt.Sprintf("record-%d", m.detail.ID))
	src := m.opener.Source()
	n := m.concurrency
	return func() tea.Msg {
		return exportResultMsg{stats: export.Attachments(context.Background(), dir, refs, src, n)}
	}
}

func spinnerTick() tea.Cmd {
	return tea.Tick(spinnerInterval, func(t time.Time) tea.Msg {
		return spinnerTickMsg{}
	})
}

// startSpinner returns a spinnerTick command if the spinner isn't already active,
// and marks it as active. Call this when loading begins.
func (m *Model) startSpinner() tea.Cmd {
	if m.spinnerActive {
		return nil
	}
	m.spinnerActive = true
	m.spinnerFrame = 0
	return spinnerTick()
}

func (m Model) busy() bool {
	return m.level == levelChecking || m.loading || m.detailLoading || m.form.submitting || m.exporting
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyPress(msg)

	case tea.WindowSizeMsg:
		m.width = max(msg.Width, 0)
		m.height = max(msg.Height, 0)
		// title bar, filter line, table header, separator, info line, footer
		m.pageSize = max(m.height-6, 1)
		m.ensureCursorVisible()
		return m, nil

	case sessionCheckedMsg:
		return m.handleSessionChecked(msg)

	case resultsMsg:
		m.listening = false
		if m.level == levelLocked {
			return m, nil
		}
		s := msg.state
		m.loading = s.Loading
		m.records = s.Records
		m.err = s.Err
		if s.Err != nil && apperr.RequiresLogout(s.Err) {
			m.lock(apperr.UserMessage(s.Err))
			return m, nil
		}
		m.clampCursor()
		var cmd tea.Cmd
		if m.loading {
			cmd = m.startSpinner()
		}
		listen := m.listen()
		return m, tea.Batch(listen, cmd)

	case detailLoadedMsg:
		// Ignore stale responses from previous loads
		if msg.requestID != m.detailRequestID || m.level != levelDetail {
			return m, nil
		}
		m.detailLoading = false
		if msg.err != nil {
			if apperr.RequiresLogout(msg.err) {
				m.lock(apperr.UserMessage(msg.err))
				return m, nil
			}
			m.detailErr = msg.err
			return m, nil
		}
		m.detailErr = nil
		m.detail = msg.detail
		if n := len(m.detail.Attachments()); m.attachCursor >= n {
			m.attachCursor = max(n-1, 0)
		}
		return m, nil

	case attachmentOpenedMsg:
		if msg.err != nil {
			if apperr.RequiresLogout(msg.err) {
				m.lock(apperr.UserMessage(msg.err))
				return m, nil
			}
			return m.showFlash(apperr.UserMessage(msg.err))
		}
		if msg.result.Presented {
			return m.showFlash("Opened " + msg.label)
		}
		return m.showFlash("Saved " + msg.label + " to " + msg.result.SavedPath)

	case actionSubmittedMsg:
		m.form.submitting = false
		if msg.err != nil {
			if apperr.RequiresLogout(msg.err) {
				m.lock(apperr.UserMessage(msg.err))
				return m, nil
			}
			m.form.err = apperr.UserMessage(msg.err)
			return m, nil
		}
		m.modal = modalNone
		m.form = actionForm{}
		flash := m.setFlash("Action added")
		if m.level == levelDetail && m.detail != nil && m.detail.ID == msg.recordID {
			m.detailRequestID++
			m.detailLoading = true
			cmd := tea.Batch(flash, m.loadDetail(msg.recordID), m.startSpinner())
			return m, cmd
		}
		return m, flash

	case exportResultMsg:
		m.exporting = false
		if msg.stats.Err != nil && apperr.RequiresLogout(msg.stats.Err) {
			m.lock(apperr.UserMessage(msg.stats.Err))
			return m, nil
		}
		m.modal = modalExportResult
		m.modalResult = export.FormatExportResult(msg.stats)
		return m, nil

	case spinnerTickMsg:
		if !m.busy() {
			m.spinnerActive = false
			return m, nil
		}
		m.spinnerFrame = (m.spinnerFrame + 1) % len(spinnerFrames)
		return m, spinnerTick()

	case flashClearMsg:
		if !m.flashExpiresAt.IsZero() && !time.Now().Before(m.flashExpiresAt) {
			m.flashMessage = ""
		}
		return m, nil
	}

	return m, nil
}

func (m Model) handleSessionChecked(msg sessionCheckedMsg) (tea.Model, tea.Cmd) {
	if msg.result.State != session.Allowed {
		m.lock(msg.result.Message)
		return m, nil
	}
	m.user = m.guard.User()

	if msg.recordID != 0 {
		m.level = levelDetail
		m.detail = nil
		m.detailErr = nil
		m.detailLoading = true
		m.attachCursor = 0
		m.detailScroll = 0
		m.detailRequestID++
		cmd := tea.Batch(m.loadDetail(msg.recordID), m.startSpinner())
		return m, cmd
	}

	m.level = levelList
	m.loading = true
	m.filter = m.controller.Filter()
	m.controller.Refresh()
	cmd := tea.Batch(m.startSpinner(), m.listen())
	return m, cmd
}

// listen subscribes to controller updates unless a subscription is
// already outstanding.
func (m *Model) listen() tea.Cmd {
	if m.listening {
		return nil
	}
	m.listening = true
	return waitForResults(m.controller.Updates())
}

// lock switches to the locked screen after a denied check or any
// session failure reported by a request.
func (m *Model) lock(message string) {
	m.level = levelLocked
	m.lockedMessage = message
	m.user = nil
	m.modal = modalNone
	m.inputMode = inputNone
	m.titleInput.Blur()
	m.dateInput.Blur()
	m.detail = nil
	m.detailLoading = false
	m.loading = false
	m.exporting = false
	m.form = actionForm{}
}

func (m Model) showFlash(message string) (tea.Model, tea.Cmd) {
	cmd := m.setFlash(message)
	return m, cmd
}

func (m *Model) setFlash(message string) tea.Cmd {
	m.flashMessage = message
	m.flashExpiresAt = time.Now().Add(flashDuration)
	return tea.Tick(flashDuration, func(t time.Time) tea.Msg {
		return flashClearMsg{}
	})
}

func (m *Model) clampCursor() {
	if m.cursor >= len(m.records) {
		m.cursor = max(len(m.records)-1, 0)
	}
	m.ensureCursorVisible()
}

func (m *Model) ensureCursorVisible() {
	if m.cursor < m.scrollOffset {
		m.scrollOffset = m.cursor
	} else if m.cursor >= m.scrollOffset+m.pageSize {
		m.scrollOffset = m.cursor - m.pageSize + 1
	}
	if m.scrollOffset < 0 {
		m.scrollOffset = 0
	}
}

// View implements tea.Model.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	if m.width == 0 {
		return "Loading..."
	}

	var v string
	switch m.level {
	case levelChecking:
		v = m.checkingView()
	case levelLocked:
		v = m.lockedView()
	case levelList:
		v = fmt.Sprintf("%s\n%s\n%s", m.headerView(), m.recordListView(), m.footerView())
	case levelDetail:
		v = fmt.Sprintf("%s\n%s\n%s", m.headerView(), m.recordDetailView(), m.footerView())
	}
	if m.modal != modalNone {
		v = m.overlayModal(v)
	}
	return v
}
