package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/wesm/minutes/internal/apperr"
	"github.com/wesm/minutes/internal/query"
	"github.com/wesm/minutes/internal/remote"
	"github.com/wesm/minutes/internal/upload"
)

func (m Model) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		m.quitting = true
		return m, tea.Quit
	}

	if m.modal != modalNone {
		return m.handleModalKeys(msg)
	}

	switch m.level {
	case levelChecking:
		if msg.String() == "q" {
			m.quitting = true
			return m, tea.Quit
		}
		return m, nil
	case levelLocked:
		return m.handleLockedKeys(msg)
	case levelList:
		if m.inputMode != inputNone {
			return m.handleFilterInputKeys(msg)
		}
		return m.handleListKeys(msg)
	case levelDetail:
		return m.handleDetailKeys(msg)
	}
	return m, nil
}

func (m Model) handleLockedKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "esc":
		m.quitting = true
		return m, tea.Quit
	case "r":
		m.level = levelChecking
		m.lockedMessage = ""
		cmd := tea.Batch(m.checkSession(0), m.startSpinner())
		return m, cmd
	}
	return m, nil
}

func (m Model) handleListKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q":
		m.quitting = true
		return m, tea.Quit
	case "?":
		m.modal = modalHelp
		return m, nil

	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.records)-1 {
			m.cursor++
		}
	case "pgup":
		m.cursor = max(m.cursor-m.pageSize, 0)
	case "pgdown":
		m.cursor = max(min(m.cursor+m.pageSize, len(m.records)-1), 0)
	case "home", "g":
		m.cursor = 0
	case "end", "G":
		m.cursor = max(len(m.records)-1, 0)

	case "enter":
		if m.cursor < len(m.records) {
			// The detail screen is protected: re-run the guard first.
			return m, m.checkSession(m.records[m.cursor].ID)
		}

	case "/":
		m.inputMode = inputTitle
		m.titleInput.SetValue(m.filter.Title)
		m.titleInput.CursorEnd()
		cmd := m.titleInput.Focus()
		return m, cmd
	case "d":
		m.inputMode = inputDate
		m.dateInput.SetValue(m.filter.Date)
		m.dateInput.CursorEnd()
		cmd := m.dateInput.Focus()
		return m, cmd
	case "s":
		next := m.filter.Status.Next()
		return m.applyFilter(query.FieldStatus, string(next))
	case "c":
		m.controller.ClearFilters()
		m.filter = m.controller.Filter()
		m.titleInput.SetValue("")
		m.dateInput.SetValue("")
		m.loading = true
		cmd := m.startSpinner()
		return m, cmd
	case "r":
		m.controller.Refresh()
		m.loading = true
		cmd := m.startSpinner()
		return m, cmd
	}
	m.ensureCursorVisible()
	return m, nil
}

// applyFilter forwards an edit to the controller. Title edits are debounced
// there; status and date edits query immediately.
func (m Model) applyFilter(field query.Field, value string) (tea.Model, tea.Cmd) {
	if err := m.controller.SetFilter(field, value); err != nil {
		return m.showFlash(apperr.UserMessage(err))
	}
	m.filter = m.controller.Filter()
	if field == query.FieldTitle {
		return m, nil
	}
	m.loading = true
	cmd := m.startSpinner()
	return m, cmd
}

func (m Model) handleFilterInputKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch m.inputMode {
	case inputTitle:
		switch msg.String() {
		case "esc", "enter":
			m.inputMode = inputNone
			m.titleInput.Blur()
			return m, nil
		}
		var cmd tea.Cmd
		before := m.titleInput.Value()
		m.titleInput, cmd = m.titleInput.Update(msg)
		if v := m.titleInput.Value(); v != before {
			mm, fcmd := m.applyFilter(query.FieldTitle, v)
			return mm, tea.Batch(cmd, fcmd)
		}
		return m, cmd

	case inputDate:
		switch msg.String() {
		case "esc":
			m.inputMode = inputNone
			m.dateInput.Blur()
			m.dateInput.SetValue(m.filter.Date)
			return m, nil
		case "enter":
			value := strings.TrimSpace(m.dateInput.Value())
			if _, err := m.filter.With(query.FieldDate, value); err != nil {
				// Stay in the input so the date can be corrected.
				return m.showFlash(apperr.UserMessage(err))
			}
			m.inputMode = inputNone
			m.dateInput.Blur()
			return m.applyFilter(query.FieldDate, value)
		}
		var cmd tea.Cmd
		m.dateInput, cmd = m.dateInput.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) handleDetailKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	var refs []query.AttachmentRef
	if m.detail != nil {
		refs = m.detail.Attachments()
	}

	switch msg.String() {
	case "q":
		m.quitting = true
		return m, tea.Quit
	case "?":
		m.modal = modalHelp
		return m, nil
	case "esc", "backspace":
		m.level = levelList
		m.detail = nil
		m.detailErr = nil
		m.detailLoading = false
		m.detailRequestID++ // drop any in-flight load
		return m, nil

	case "up", "k":
		if m.attachCursor > 0 {
			m.attachCursor--
		}
	case "down", "j":
		if m.attachCursor < len(refs)-1 {
			m.attachCursor++
		}
	case "pgup":
		m.detailScroll = max(m.detailScroll-m.pageSize, 0)
	case "pgdown":
		m.detailScroll += m.pageSize
		m.clampDetailScroll()

	case "o", "enter":
		if m.attachCursor < len(refs) {
			ref := refs[m.attachCursor]
			flash := m.setFlash("Opening " + ref.Label + "...")
			return m, tea.Batch(flash, m.openAttachment(ref))
		}
		return m.showFlash("This record has no attachments")

	case "e":
		if len(refs) == 0 {
			return m.showFlash("This record has no attachments")
		}
		if m.exporting {
			return m, nil
		}
		m.exporting = true
		cmd := tea.Batch(m.exportAttachments(), m.startSpinner())
		return m, cmd

	case "n":
		if m.detail == nil || len(m.detail.Commitments) == 0 {
			return m.showFlash("This record has no commitments")
		}
		cmd := m.openActionForm()
		return m, cmd

	case "r":
		if m.detail != nil {
			return m, m.checkSession(m.detail.ID)
		}
	}
	return m, nil
}

func (m *Model) clampDetailScroll() {
	limit := max(len(m.buildDetailLines())-m.pageSize, 0)
	if m.detailScroll > limit {
		m.detailScroll = limit
	}
	if m.detailScroll < 0 {
		m.detailScroll = 0
	}
}

func (m *Model) openActionForm() tea.Cmd {
	desc := textinput.New()
	desc.Placeholder = "what was done"
	desc.CharLimit = 1000
	desc.Width = 48

	file := textinput.New()
	file.Placeholder = "optional path to a PDF or JPEG"
	file.CharLimit = 4096
	file.Width = 48

	m.form = actionForm{description: desc, file: file, focus: 1}
	m.modal = modalActionForm
	return m.form.description.Focus()
}

func (m *Model) focusFormField(i int) tea.Cmd {
	m.form.focus = (i + 3) % 3
	m.form.description.Blur()
	m.form.file.Blur()
	switch m.form.focus {
	case 1:
		return m.form.description.Focus()
	case 2:
		return m.form.file.Focus()
	}
	return nil
}

func (m Model) handleModalKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch m.modal {
	case modalHelp, modalExportResult:
		switch msg.String() {
		case "esc", "enter", "q", "?":
			m.modal = modalNone
			m.modalResult = ""
		}
		return m, nil
	case modalActionForm:
		return m.handleActionFormKeys(msg)
	}
	return m, nil
}

func (m Model) handleActionFormKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.form.submitting {
		return m, nil
	}
	commitments := m.detail.Commitments

	switch msg.String() {
	case "esc":
		m.modal = modalNone
		m.form = actionForm{}
		return m, nil
	case "tab", "down":
		cmd := m.focusFormField(m.form.focus + 1)
		return m, cmd
	case "shift+tab", "up":
		cmd := m.focusFormField(m.form.focus - 1)
		return m, cmd
	case "ctrl+s":
		return m.submitForm()
	case "enter":
		if m.form.focus < 2 {
			cmd := m.focusFormField(m.form.focus + 1)
			return m, cmd
		}
		return m.submitForm()
	case "left", "right":
		if m.form.focus == 0 {
			step := 1
			if msg.String() == "left" {
				step = len(commitments) - 1
			}
			m.form.commitment = (m.form.commitment + step) % len(commitments)
			return m, nil
		}
	}

	var cmd tea.Cmd
	switch m.form.focus {
	case 1:
		m.form.description, cmd = m.form.description.Update(msg)
	case 2:
		m.form.file, cmd = m.form.file.Update(msg)
	}
	return m, cmd
}

// submitForm validates the form locally and sends it. Invalid input never
// reaches the network.
func (m Model) submitForm() (tea.Model, tea.Cmd) {
	m.form.err = ""
	description := strings.TrimSpace(m.form.description.Value())
	if description == "" {
		m.form.err = "A description is required."
		cmd := m.focusFormField(1)
		return m, cmd
	}

	in := remote.ActionInput{
		CommitmentID: m.detail.Commitments[m.form.commitment].ID,
		Description:  description,
	}
	if path := strings.TrimSpace(m.form.file.Value()); path != "" {
		f, err := upload.Open(path)
		if err != nil {
			m.form.err = apperr.UserMessage(err)
			cmd := m.focusFormField(2)
			return m, cmd
		}
		if verr := upload.Validate(f); verr != nil {
			m.form.err = verr.ValidationMessage()
			cmd := m.focusFormField(2)
			return m, cmd
		}
		in.File = &f
	}

	m.form.submitting = true
	cmd := tea.Batch(m.submitAction(m.detail.ID, in), m.startSpinner())
	return m, cmd
}
