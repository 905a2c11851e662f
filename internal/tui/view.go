package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/wesm/minutes/internal/apperr"
	"github.com/wesm/minutes/internal/query"
)

// Monochrome theme - adaptive for light and dark terminals
var (
	bgBase   = lipgloss.AdaptiveColor{Light: "#ffffff", Dark: "#000000"}
	bgAlt    = lipgloss.AdaptiveColor{Light: "#f0f0f0", Dark: "#181818"}
	bgCursor = lipgloss.AdaptiveColor{Light: "#e0e0e0", Dark: "#282828"}

	titleBarStyle = lipgloss.NewStyle().
			Bold(true).
			Background(lipgloss.AdaptiveColor{Light: "#e0e0e0", Dark: "#333333"}).
			Foreground(lipgloss.AdaptiveColor{Light: "#000000", Dark: "#ffffff"}).
			Padding(0, 1)

	statsStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#555555", Dark: "#999999"}).
			Background(bgBase).
			Padding(0, 1)

	// Spinner style - NOT faint so it's visible
	spinnerStyle = lipgloss.NewStyle().
			Bold(true).
			Background(bgBase)

	tableHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				Background(bgBase)

	separatorStyle = lipgloss.NewStyle().
			Faint(true).
			Background(bgBase)

	cursorRowStyle = lipgloss.NewStyle().
			Background(bgCursor)

	normalRowStyle = lipgloss.NewStyle().
			Background(bgBase)

	altRowStyle = lipgloss.NewStyle().
			Background(bgAlt)

	footerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#555555", Dark: "#999999"}).
			Background(bgBase).
			Padding(0, 1)

	errorStyle = lipgloss.NewStyle().
			Bold(true).
			Background(bgBase)

	activeFilterStyle = lipgloss.NewStyle().
				Bold(true).
				Background(bgBase)

	sectionStyle = lipgloss.NewStyle().
			Bold(true).
			Underline(true)

	modalStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			Padding(1, 2).
			Background(bgBase)

	modalTitleStyle = lipgloss.NewStyle().
			Bold(true)

	focusStyle = lipgloss.NewStyle().
			Reverse(true)

	flashStyle = lipgloss.NewStyle().
			Italic(true).
			Foreground(lipgloss.AdaptiveColor{Light: "#996600", Dark: "#ffcc00"}). // Amber for visibility
			Background(bgBase)

	lockedBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.DoubleBorder()).
			Padding(1, 4).
			Align(lipgloss.Center)
)

const (
	colDate        = 10
	colStatus      = 12
	colCommitments = 5
)

// buildTitleBar renders the top line: app name and version on the left,
// the confirmed user on the right.
func (m Model) buildTitleBar() string {
	left := "minutes"
	if m.version != "" && m.version != "dev" {
		left += " " + m.version
	}
	right := ""
	if m.user != nil {
		right = fmt.Sprintf("%s (%s)", m.user.Email, m.user.Role.Label())
	}
	// titleBarStyle has Padding(0, 1)
	contentWidth := max(m.width-2, 1)
	gap := contentWidth - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 1 {
		right = ""
		gap = max(contentWidth-lipgloss.Width(left), 0)
	}
	return titleBarStyle.Render(padRight(left+strings.Repeat(" ", gap)+right, contentWidth))
}

// buildFilterLine shows the active filters; the field being edited is
// replaced by its input.
func (m Model) buildFilterLine() string {
	parts := []string{"Status: " + m.filter.Status.Label()}

	switch {
	case m.inputMode == inputTitle:
		parts = append(parts, "Title: "+m.titleInput.View())
	case m.filter.Title != "":
		parts = append(parts, activeFilterStyle.Render(fmt.Sprintf("Title: %q", m.filter.Title)))
	default:
		parts = append(parts, "Title: any")
	}

	switch {
	case m.inputMode == inputDate:
		parts = append(parts, "Date: "+m.dateInput.View())
	case m.filter.Date != "":
		parts = append(parts, activeFilterStyle.Render("Date: "+m.filter.Date))
	default:
		parts = append(parts, "Date: any")
	}

	return statsStyle.Render(padRight(strings.Join(parts, "   "), max(m.width-2, 1)))
}

func (m Model) buildBreadcrumb() string {
	crumb := "Records"
	if m.detail != nil {
		crumb += " › " + m.detail.Title
	}
	return statsStyle.Render(padRight(truncateRunes(crumb, max(m.width-2, 1)), max(m.width-2, 1)))
}

func (m Model) headerView() string {
	second := m.buildFilterLine()
	if m.level == levelDetail {
		second = m.buildBreadcrumb()
	}
	return m.buildTitleBar() + "\n" + second
}

func (m Model) titleWidth() int {
	return max(m.width-(colDate+colStatus+colCommitments+10), 10)
}

func (m Model) recordRow(r query.RecordSummary) string {
	return fmt.Sprintf(" %s  %s  %s  %*d ",
		padRight(formatDate(r.Date), colDate),
		padRight(r.Status.Label(), colStatus),
		padRight(truncateRunes(r.Title, m.titleWidth()), m.titleWidth()),
		colCommitments, r.CommitmentCount)
}

func (m Model) recordListView() string {
	var sb strings.Builder

	header := fmt.Sprintf(" %s  %s  %s  %*s ",
		padRight("Date", colDate),
		padRight("Status", colStatus),
		padRight("Title", m.titleWidth()),
		colCommitments, "Items")
	sb.WriteString(tableHeaderStyle.Render(padRight(header, m.width)))
	sb.WriteString("\n")
	sb.WriteString(separatorStyle.Render(strings.Repeat("─", m.width)))
	sb.WriteString("\n")

	end := min(m.scrollOffset+m.pageSize, len(m.records))
	used := 0
	for i := m.scrollOffset; i < end; i++ {
		line := padRight(m.recordRow(m.records[i]), m.width)
		switch {
		case i == m.cursor:
			line = cursorRowStyle.Render(line)
		case i%2 == 1:
			line = altRowStyle.Render(line)
		default:
			line = normalRowStyle.Render(line)
		}
		sb.WriteString(line)
		sb.WriteString("\n")
		used++
	}

	if len(m.records) == 0 && !m.loading {
		msg := "No records found"
		if !m.filter.IsZero() {
			msg += " (press c to clear filters)"
		}
		sb.WriteString(normalRowStyle.Render(padRight(" "+msg, m.width)))
		sb.WriteString("\n")
		used++
	}

	for ; used < m.pageSize; used++ {
		sb.WriteString(normalRowStyle.Render(strings.Repeat(" ", m.width)))
		sb.WriteString("\n")
	}

	sb.WriteString(m.renderInfoLine())
	return sb.String()
}

// buildDetailLines renders the detail body before scrolling.
func (m Model) buildDetailLines() []string {
	if m.detail == nil {
		return nil
	}
	d := m.detail
	width := max(m.width-2, 20)
	var lines []string
	add := func(s string) { lines = append(lines, wrapText(s, width)...) }

	lines = append(lines, modalTitleStyle.Render(truncateRunes(d.Title, width)))
	add(fmt.Sprintf("Status: %s    Date: %s", d.Status.Label(), formatDate(d.Date)))
	if d.PDFPath != "" {
		add("Document: " + d.PDFPath)
	} else {
		add("Document: none")
	}
	lines = append(lines, "")

	lines = append(lines, sectionStyle.Render(fmt.Sprintf("Commitments (%d)", len(d.Commitments))))
	if len(d.Commitments) == 0 {
		add("  No commitments recorded.")
	}
	for _, c := range d.Commitments {
		add(fmt.Sprintf("  #%d %s", c.ID, c.Description))
		add(fmt.Sprintf("      Responsible: %s   Due: %s", orDash(c.Responsible), formatDate(c.DueDate)))
		if len(c.Actions) == 0 {
			add("      No actions yet.")
		}
		for _, a := range c.Actions {
			entry := fmt.Sprintf("      - %s %s: %s", formatDate(a.Date), orDash(a.AuthorEmail), a.Description)
			if a.FilePath != "" {
				entry += " [file]"
			}
			add(entry)
		}
	}
	lines = append(lines, "")

	refs := d.Attachments()
	lines = append(lines, sectionStyle.Render(fmt.Sprintf("Attachments (%d)", len(refs))))
	if len(refs) == 0 {
		add("  None.")
	}
	for i, ref := range refs {
		marker := "  "
		if i == m.attachCursor {
			marker = "> "
		}
		line := truncateRunes(marker+ref.Label+"  "+ref.Path, width)
		if i == m.attachCursor {
			line = cursorRowStyle.Render(line)
		}
		lines = append(lines, line)
	}
	return lines
}

func (m Model) recordDetailView() string {
	bodyHeight := m.pageSize + 2
	var body []string

	switch {
	case m.detailErr != nil:
		body = []string{errorStyle.Render("Could not load the record: " + apperr.UserMessage(m.detailErr))}
	case m.detail == nil:
		body = []string{" Loading record..."}
	default:
		lines := m.buildDetailLines()
		start := min(m.detailScroll, max(len(lines)-1, 0))
		body = lines[start:min(start+bodyHeight, len(lines))]
	}

	var sb strings.Builder
	for i := 0; i < bodyHeight; i++ {
		line := ""
		if i < len(body) {
			line = " " + body[i]
		}
		sb.WriteString(normalRowStyle.Render(padRight(line, m.width)))
		sb.WriteString("\n")
	}
	sb.WriteString(m.renderInfoLine())
	return sb.String()
}

// renderInfoLine renders the line above the footer: a flash message or the
// current error on the left, the spinner on the right while loading.
func (m Model) renderInfoLine() string {
	contentWidth := max(m.width-2, 1)

	content := ""
	style := statsStyle
	switch {
	case m.flashMessage != "":
		content = m.flashMessage
		style = flashStyle.Padding(0, 1)
	case m.level == levelList && m.err != nil:
		// Stale records stay visible; only the message changes.
		content = "Error: " + apperr.UserMessage(m.err)
		style = errorStyle.Padding(0, 1)
	case m.level == levelList:
		content = fmt.Sprintf("%d record(s)  %s", len(m.records), m.filter.String())
	}

	if m.busy() {
		indicator := spinnerStyle.Render(m.spinnerIndicator())
		gap := max(contentWidth-lipgloss.Width(content)-1, 1)
		content = truncateToWidth(content, contentWidth-2) + strings.Repeat(" ", gap) + indicator
	}
	return style.Render(padRight(content, contentWidth))
}

// spinnerIndicator returns the current spinner frame string.
func (m Model) spinnerIndicator() string {
	if m.spinnerFrame < len(spinnerFrames) {
		return spinnerFrames[m.spinnerFrame]
	}
	return spinnerFrames[0]
}

func (m Model) footerView() string {
	var keys []string
	var posStr string

	switch m.level {
	case levelList:
		if m.inputMode != inputNone {
			keys = []string{"Enter apply", "Esc done"}
			break
		}
		keys = []string{"↑/↓", "Enter open", "/ title", "s status", "d date", "c clear", "r reload", "? help", "q quit"}
		if len(m.records) > 0 {
			posStr = fmt.Sprintf(" %d/%d ", m.cursor+1, len(m.records))
		}
	case levelDetail:
		keys = []string{"↑/↓ select", "o open", "e export", "n new action", "Esc back", "q quit"}
		if m.detail != nil {
			if n := len(m.detail.Attachments()); n > 0 {
				posStr = fmt.Sprintf(" file %d/%d ", m.attachCursor+1, n)
			}
		}
	}

	keysStr := strings.Join(keys, " │ ")
	gap := max(m.width-lipgloss.Width(keysStr)-lipgloss.Width(posStr)-2, 0)
	return footerStyle.Render(padRight(keysStr+strings.Repeat(" ", gap)+posStr, max(m.width-2, 1)))
}

func (m Model) checkingView() string {
	box := spinnerStyle.Render(m.spinnerIndicator()) + " Checking session..."
	return m.buildTitleBar() + "\n" +
		lipgloss.Place(m.width, max(m.height-1, 1), lipgloss.Center, lipgloss.Center, box)
}

func (m Model) lockedView() string {
	msg := m.lockedMessage
	if msg == "" {
		msg = "Access denied."
	}
	content := strings.Join([]string{
		modalTitleStyle.Render("Access denied"),
		"",
		strings.Join(wrapText(msg, min(max(m.width-16, 20), 60)), "\n"),
		"",
		"Run 'minutes login' to sign in, then press r to retry.",
		"r retry │ q quit",
	}, "\n")
	return m.buildTitleBar() + "\n" +
		lipgloss.Place(m.width, max(m.height-1, 1), lipgloss.Center, lipgloss.Center, lockedBoxStyle.Render(content))
}

var rawHelpLines = []string{
	"Keyboard shortcuts",
	"",
	"Record list",
	"  ↑/k ↓/j       move",
	"  Enter         open record",
	"  /             edit title filter (applied as you type)",
	"  s             cycle status filter",
	"  d             filter by date (YYYY-MM-DD)",
	"  c             clear all filters",
	"  r             reload",
	"",
	"Record detail",
	"  ↑/k ↓/j       select attachment",
	"  o / Enter     open attachment",
	"  e             export all attachments",
	"  n             add an action to a commitment",
	"  Esc           back to list",
	"",
	"  q             quit",
}

func (m Model) renderHelpModal() string {
	rendered := make([]string, len(rawHelpLines))
	for i, line := range rawHelpLines {
		if i == 0 {
			rendered[i] = modalTitleStyle.Render(line)
		} else {
			rendered[i] = line
		}
	}
	return strings.Join(rendered, "\n")
}

func (m Model) renderActionFormModal() string {
	if m.detail == nil || len(m.detail.Commitments) == 0 {
		return ""
	}
	c := m.detail.Commitments[m.form.commitment]
	commitment := truncateRunes(fmt.Sprintf("‹ #%d %s ›", c.ID, c.Description), 48)
	if m.form.focus == 0 {
		commitment = focusStyle.Render(commitment)
	}

	lines := []string{
		modalTitleStyle.Render("New action"),
		"",
		"Commitment:  " + commitment,
		"Description: " + m.form.description.View(),
		"File:        " + m.form.file.View(),
		"",
	}
	switch {
	case m.form.submitting:
		lines = append(lines, spinnerStyle.Render(m.spinnerIndicator())+" Submitting...")
	case m.form.err != "":
		lines = append(lines, errorStyle.Render(m.form.err))
	default:
		lines = append(lines, "")
	}
	lines = append(lines, "", "Tab next field │ ←/→ commitment │ Enter submit │ Esc cancel")
	return strings.Join(lines, "\n")
}

func (m Model) overlayModal(background string) string {
	var modalContent string

	switch m.modal {
	case modalHelp:
		modalContent = m.renderHelpModal()
	case modalActionForm:
		modalContent = m.renderActionFormModal()
	case modalExportResult:
		modalContent = modalTitleStyle.Render("Export") + "\n\n" + m.modalResult + "\n\nPress Enter to close"
	}

	if modalContent == "" {
		return background
	}

	modal := modalStyle.Render(modalContent)
	bgLines := strings.Split(background, "\n")
	modalLines := strings.Split(modal, "\n")

	startLine := max((len(bgLines)-len(modalLines))/2, 0)
	modalWidth := lipgloss.Width(modal)
	leftPadding := max((m.width-modalWidth)/2, 0)

	// Overlay modal onto background, preserving background where modal doesn't cover
	for i, modalLine := range modalLines {
		lineIdx := startLine + i
		if lineIdx >= len(bgLines) {
			break
		}
		bgLine := bgLines[lineIdx]
		bgWidth := lipgloss.Width(bgLine)

		var composite strings.Builder
		if leftPadding > 0 {
			leftBg := truncateToWidth(bgLine, leftPadding)
			composite.WriteString(leftBg)
			if w := lipgloss.Width(leftBg); w < leftPadding {
				composite.WriteString(strings.Repeat(" ", leftPadding-w))
			}
		}
		composite.WriteString(modalLine)
		if rightStart := leftPadding + modalWidth; rightStart < bgWidth {
			composite.WriteString(skipToWidth(bgLine, rightStart))
		}
		bgLines[lineIdx] = composite.String()
	}
	return strings.Join(bgLines, "\n")
}
