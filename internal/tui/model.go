package tui

import (
	"context"
	"errors"
	"fmt"
	"image/color"
	"strings"
	"time"

	"charm.land/bubbles/v2/help"
	"charm.land/bubbles/v2/key"
	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"
	"github.com/hylla/tavla/internal/app"
	"github.com/hylla/tavla/internal/domain"
)

// errNoBoard reports a model built without a board session.
var errNoBoard = errors.New("board session is not configured")

// Model is the bubbletea board view over one board session.
type Model struct {
	board      *app.Board
	toasts     *Toasts
	help       help.Model
	keys       keyMap
	detail     *detailRenderer
	copyText   func(string) error
	clock      func() time.Time
	title      string
	showCounts bool

	ready    bool
	loaded   bool
	width    int
	height   int
	err      error
	status   string
	showInfo bool

	selectedColumn int
	selectedTask   int
	hoverColumn    int
}

// loadedMsg reports a finished open or refresh.
type loadedMsg struct {
	err     error
	refresh bool
}

// outcomeMsg reports one resolved relocation.
type outcomeMsg struct {
	outcome app.Outcome
}

// toastExpiredMsg triggers a redraw once toasts may have expired.
type toastExpiredMsg struct{}

// NewModel constructs the board view.
func NewModel(board *app.Board, opts ...Option) Model {
	h := help.New()
	h.ShowAll = false
	m := Model{
		board:       board,
		help:        h,
		keys:        newKeyMap(),
		detail:      &detailRenderer{},
		copyText:    defaultClipboard,
		clock:       time.Now,
		showCounts:  true,
		status:      "loading...",
		hoverColumn: -1,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&m)
		}
	}
	if m.toasts == nil {
		m.toasts = NewToasts(DefaultToastTTL, m.clock)
	}
	if board == nil {
		m.err = errNoBoard
	}
	return m
}

// Init handles init.
func (m Model) Init() tea.Cmd {
	if m.board == nil {
		return nil
	}
	return m.openBoard
}

// openBoard loads the board, reusing a fresh cached task list.
func (m Model) openBoard() tea.Msg {
	return loadedMsg{err: m.board.Open(context.Background())}
}

// refreshBoard reloads statuses and tasks from the remote.
func (m Model) refreshBoard() tea.Msg {
	return loadedMsg{err: m.board.Refresh(context.Background()), refresh: true}
}

// resolveCmd persists one optimistic drop off the UI goroutine.
func (m Model) resolveCmd(drop app.Drop) tea.Cmd {
	gestures := m.board.Gestures()
	return func() tea.Msg {
		return outcomeMsg{outcome: gestures.Resolve(context.Background(), drop)}
	}
}

// toastTick schedules a redraw after the toast window.
func (m Model) toastTick() tea.Cmd {
	return tea.Tick(m.toasts.TTL(), func(time.Time) tea.Msg {
		return toastExpiredMsg{}
	})
}

// Update updates state for the requested operation.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if m.board == nil {
		if press, ok := msg.(tea.KeyPressMsg); ok && key.Matches(press, m.keys.quit) {
			return m, tea.Quit
		}
		return m, nil
	}
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case loadedMsg:
		return m.handleLoaded(msg)

	case outcomeMsg:
		return m.handleOutcome(msg.outcome)

	case toastExpiredMsg:
		return m, nil

	case tea.KeyPressMsg:
		return m.handleKey(msg)

	case tea.MouseWheelMsg:
		return m.handleMouseWheel(msg)

	case tea.MouseClickMsg:
		return m.handleMouseClick(msg)

	case tea.MouseMotionMsg:
		return m.handleMouseMotion(msg)

	case tea.MouseReleaseMsg:
		return m.handleMouseRelease(msg)

	default:
		return m, nil
	}
}

// handleLoaded applies an open or refresh result.
func (m Model) handleLoaded(msg loadedMsg) (tea.Model, tea.Cmd) {
	m.loaded = true
	if msg.err != nil {
		if len(m.board.Registry().Columns()) == 0 {
			m.err = msg.err
			return m, nil
		}
		m.err = nil
		m.status = "load failed"
		m.toasts.Notify(loadFailureMessage(msg.err), app.LevelError)
		m.clampSelections()
		return m, m.toastTick()
	}
	m.err = nil
	m.status = "ready"
	if msg.refresh {
		m.status = "refreshed"
	}
	if source := m.board.CatalogSource(); source.Source == app.CatalogSourceStatic {
		m.status = "using built-in statuses"
	}
	m.clampSelections()
	return m, nil
}

// loadFailureMessage maps a load error to toast text.
func loadFailureMessage(err error) string {
	if errors.Is(err, app.ErrNetwork) || errors.Is(err, app.ErrMalformedResponse) {
		return app.UserMessage(err)
	}
	return "could not load tasks: " + err.Error()
}

// handleOutcome follows the moved card and reports the final state.
func (m Model) handleOutcome(out app.Outcome) (tea.Model, tea.Cmd) {
	switch out.State {
	case app.StateCommitted:
		m.status = "moved #" + out.TaskID
		if column, ok := m.board.Registry().Column(out.TargetColumnID); ok {
			m.status += " to " + column.Name
		}
	case app.StateReverted:
		if errors.Is(out.Err, app.ErrStaleResponse) {
			m.status = "#" + out.TaskID + " synced with server"
			if id, ok := m.board.Registry().ColumnOf(out.TaskID); ok {
				if column, ok := m.board.Registry().Column(id); ok {
					m.status = "#" + out.TaskID + " is in " + column.Name
				}
			}
			break
		}
		m.status = "move of #" + out.TaskID + " reverted"
	default:
		m.status = "ready"
	}
	m.focusTaskByID(out.TaskID)
	return m, m.toastTick()
}

// handleKey handles key presses.
func (m Model) handleKey(msg tea.KeyPressMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.quit) {
		return m, tea.Quit
	}
	if m.err != nil {
		if key.Matches(msg, m.keys.reload) && m.board != nil {
			m.status = "refreshing..."
			return m, m.refreshBoard
		}
		return m, nil
	}
	if m.showInfo {
		if key.Matches(msg, m.keys.cancel) || key.Matches(msg, m.keys.taskInfo) {
			m.showInfo = false
		}
		return m, nil
	}
	if m.help.ShowAll {
		if key.Matches(msg, m.keys.cancel) || key.Matches(msg, m.keys.toggleHelp) {
			m.help.ShowAll = false
		}
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.toggleHelp):
		m.help.ShowAll = true
		return m, nil
	case key.Matches(msg, m.keys.cancel):
		if m.board.Gestures().Cancel() {
			m.hoverColumn = -1
			m.status = "drag cancelled"
		}
		return m, nil
	case key.Matches(msg, m.keys.reload):
		m.status = "refreshing..."
		return m, m.refreshBoard
	case key.Matches(msg, m.keys.moveLeft):
		if m.selectedColumn > 0 {
			m.selectedColumn--
			m.selectedTask = 0
		}
		return m, nil
	case key.Matches(msg, m.keys.moveRight):
		if m.selectedColumn < len(m.board.Registry().Columns())-1 {
			m.selectedColumn++
			m.selectedTask = 0
		}
		return m, nil
	case key.Matches(msg, m.keys.moveUp):
		if m.selectedTask > 0 {
			m.selectedTask--
		}
		return m, nil
	case key.Matches(msg, m.keys.moveDown):
		if m.selectedTask < len(m.currentCards())-1 {
			m.selectedTask++
		}
		return m, nil
	case key.Matches(msg, m.keys.moveTaskLeft):
		return m.relocateSelected(-1)
	case key.Matches(msg, m.keys.moveTaskRight):
		return m.relocateSelected(1)
	case key.Matches(msg, m.keys.taskInfo):
		if _, ok := m.selectedCard(); ok {
			m.showInfo = true
		}
		return m, nil
	case key.Matches(msg, m.keys.copyID):
		return m.copySelectedID()
	}
	return m, nil
}

// relocateSelected moves the selected card one column left or right.
func (m Model) relocateSelected(delta int) (tea.Model, tea.Cmd) {
	card, ok := m.selectedCard()
	if !ok {
		return m, nil
	}
	columns := m.board.Registry().Columns()
	target := m.selectedColumn + delta
	if target < 0 || target >= len(columns) {
		m.status = "no column in that direction"
		return m, nil
	}
	if err := m.board.Gestures().Begin(card.Task.ID, app.Point{}); err != nil {
		m.toasts.Notify(app.UserMessage(err), app.LevelError)
		return m, m.toastTick()
	}
	return m.release(card.Task.ID, columns[target].StatusID)
}

// release ends the active drag over one column. Optimistic drops render at once and resolve in a
// command.
func (m Model) release(taskID, targetColumnID string) (tea.Model, tea.Cmd) {
	m.hoverColumn = -1
	drop := m.board.Gestures().Release(targetColumnID)
	m.focusTaskByID(taskID)
	switch drop.State {
	case app.StateResolving:
		m.status = "saving #" + taskID + "..."
		return m, m.resolveCmd(drop)
	case app.StateDropSameColumn:
		m.status = "ready"
	case app.StateReverted:
		m.status = "move of #" + taskID + " rejected"
	}
	return m, m.toastTick()
}

// copySelectedID copies the selected task id.
func (m Model) copySelectedID() (tea.Model, tea.Cmd) {
	card, ok := m.selectedCard()
	if !ok {
		return m, nil
	}
	if err := m.copyText(card.Task.ID); err != nil {
		m.toasts.Notify("copy failed: "+err.Error(), app.LevelError)
	} else {
		m.toasts.Notify("copied task id "+card.Task.ID, app.LevelInfo)
	}
	return m, m.toastTick()
}

// handleMouseWheel handles mouse wheel.
func (m Model) handleMouseWheel(msg tea.MouseWheelMsg) (tea.Model, tea.Cmd) {
	if m.help.ShowAll || m.showInfo || m.err != nil {
		return m, nil
	}
	cards := m.currentCards()
	if len(cards) == 0 {
		return m, nil
	}
	switch msg.Button {
	case tea.MouseWheelUp:
		if m.selectedTask > 0 {
			m.selectedTask--
		}
	case tea.MouseWheelDown:
		if m.selectedTask < len(cards)-1 {
			m.selectedTask++
		}
	}
	return m, nil
}

// handleMouseClick selects the card under the pointer and starts dragging it.
func (m Model) handleMouseClick(msg tea.MouseClickMsg) (tea.Model, tea.Cmd) {
	if m.help.ShowAll || m.showInfo || m.err != nil || msg.Button != tea.MouseLeft {
		return m, nil
	}
	colIdx, ok := m.columnAt(msg.X)
	if !ok {
		return m, nil
	}
	column := m.board.Registry().Columns()[colIdx]
	cards := m.board.Registry().Cards(column.StatusID)
	cardIdx := m.cardAt(colIdx, cards, msg.Y)
	m.selectedColumn = colIdx
	if cardIdx < 0 {
		m.selectedTask = 0
		m.clampSelections()
		return m, nil
	}
	m.selectedTask = cardIdx
	if err := m.board.Gestures().Begin(cards[cardIdx].Task.ID, app.Point{X: msg.X, Y: msg.Y}); err != nil {
		m.toasts.Notify(app.UserMessage(err), app.LevelError)
		return m, m.toastTick()
	}
	m.hoverColumn = colIdx
	m.status = "dragging #" + cards[cardIdx].Task.ID
	return m, nil
}

// handleMouseMotion tracks the drop target of the active drag.
func (m Model) handleMouseMotion(msg tea.MouseMotionMsg) (tea.Model, tea.Cmd) {
	if !m.board.Gestures().Motion(app.Point{X: msg.X, Y: msg.Y}) {
		return m, nil
	}
	if colIdx, ok := m.columnAt(msg.X); ok {
		m.hoverColumn = colIdx
	} else {
		m.hoverColumn = -1
	}
	return m, nil
}

// handleMouseRelease drops the dragged card on the column under the pointer. Releasing outside
// every column cancels the drag.
func (m Model) handleMouseRelease(msg tea.MouseReleaseMsg) (tea.Model, tea.Cmd) {
	gestures := m.board.Gestures()
	session, ok := gestures.Session()
	if !ok {
		return m, nil
	}
	colIdx, ok := m.columnAt(msg.X)
	if !ok {
		gestures.Cancel()
		m.hoverColumn = -1
		m.status = "drag cancelled"
		return m, nil
	}
	return m.release(session.TaskID, m.board.Registry().Columns()[colIdx].StatusID)
}

// currentCards returns the cards of the selected column.
func (m Model) currentCards() []app.CardView {
	columns := m.board.Registry().Columns()
	if len(columns) == 0 {
		return nil
	}
	return m.board.Registry().Cards(columns[clamp(m.selectedColumn, 0, len(columns)-1)].StatusID)
}

// selectedCard returns the selected card.
func (m Model) selectedCard() (app.CardView, bool) {
	cards := m.currentCards()
	if len(cards) == 0 {
		return app.CardView{}, false
	}
	return cards[clamp(m.selectedTask, 0, len(cards)-1)], true
}

// clampSelections clamps selections.
func (m *Model) clampSelections() {
	columns := m.board.Registry().Columns()
	if len(columns) == 0 {
		m.selectedColumn = 0
		m.selectedTask = 0
		return
	}
	m.selectedColumn = clamp(m.selectedColumn, 0, len(columns)-1)
	cards := m.board.Registry().Cards(columns[m.selectedColumn].StatusID)
	m.selectedTask = clamp(m.selectedTask, 0, max(0, len(cards)-1))
}

// focusTaskByID selects the card of one task wherever it is placed.
func (m *Model) focusTaskByID(taskID string) {
	registry := m.board.Registry()
	columnID, ok := registry.ColumnOf(taskID)
	if !ok {
		m.clampSelections()
		return
	}
	for colIdx, column := range registry.Columns() {
		if column.StatusID != columnID {
			continue
		}
		m.selectedColumn = colIdx
		for cardIdx, card := range registry.Cards(columnID) {
			if card.Task.ID == taskID {
				m.selectedTask = cardIdx
				return
			}
		}
	}
	m.clampSelections()
}

// View renders the board.
func (m Model) View() tea.View {
	if m.err != nil {
		return newView("error: " + m.err.Error() + "\n\npress r to retry • q quit\n")
	}
	if !m.ready || !m.loaded {
		return newView(m.status)
	}

	registry := m.board.Registry()
	columns := registry.Columns()
	accent := lipgloss.Color("62")
	if len(columns) > 0 {
		accent = columnAccent(columns[clamp(m.selectedColumn, 0, len(columns)-1)])
	}
	muted := lipgloss.Color("241")
	dim := lipgloss.Color("239")

	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("252"))
	statusStyle := lipgloss.NewStyle().Foreground(dim)

	header := titleStyle.Render("tavla")
	if m.title != "" {
		header += "  " + m.title
	}
	header += statusStyle.Render(fmt.Sprintf("  cards: %d", registry.Len()))
	if source := m.board.CatalogSource(); source.Source == app.CatalogSourceStatic {
		header += statusStyle.Render("  statuses: built-in " + source.Version)
	}
	if session, ok := m.board.Gestures().Session(); ok {
		header += statusStyle.Render("  dragging #" + session.TaskID)
	}

	counters := m.board.Counters()
	colWidth := m.columnWidth()
	colHeight := m.columnHeight()
	columnViews := make([]string, 0, len(columns))
	for colIdx, column := range columns {
		columnViews = append(columnViews, m.renderColumn(colIdx, column, counters[column.StatusID], colWidth, colHeight, dim))
	}
	body := lipgloss.JoinHorizontal(lipgloss.Top, columnViews...)
	if len(columns) == 0 {
		body = statusStyle.Render("no statuses to show")
	}

	sections := []string{header, "", body}
	if toasts := m.renderToasts(); toasts != "" {
		sections = append(sections, toasts)
	}
	if strings.TrimSpace(m.status) != "" && m.status != "ready" {
		sections = append(sections, statusStyle.Render(m.status))
	}
	content := strings.Join(sections, "\n")

	helpBubble := m.help
	helpBubble.ShowAll = false
	helpBubble.SetWidth(max(0, m.width-2))
	helpLine := lipgloss.NewStyle().
		Foreground(muted).
		BorderTop(true).
		BorderForeground(dim).
		Padding(0, 1).
		Width(max(0, m.width)).
		Render(helpBubble.View(m.keys))

	if m.height > 0 {
		content = fitLines(content, max(0, m.height-lipgloss.Height(helpLine)))
	}
	fullContent := content + "\n" + helpLine

	overlay := ""
	switch {
	case m.help.ShowAll:
		overlay = m.renderHelpOverlay(accent, muted, dim, m.width-8)
	case m.showInfo:
		overlay = m.renderTaskInfo(accent, muted, dim, m.width-8)
	}
	if overlay != "" {
		overlayHeight := lipgloss.Height(fullContent)
		if m.height > 0 {
			overlayHeight = m.height
		}
		fullContent = overlayOnContent(fullContent, overlay, max(1, m.width), max(1, overlayHeight))
	}
	return newView(fullContent)
}

// newView wraps content in the board's view settings.
func newView(content string) tea.View {
	v := tea.NewView(content)
	v.MouseMode = tea.MouseModeCellMotion
	v.AltScreen = true
	return v
}

// columnAccent returns the column colour hint.
func columnAccent(column domain.Column) color.Color {
	if strings.TrimSpace(column.ColorHint) == "" {
		return lipgloss.Color("62")
	}
	return lipgloss.Color(column.ColorHint)
}

// columnStyle returns the frame of one column.
func (m Model) columnStyle(width int) lipgloss.Style {
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("239")).
		Padding(1, 2).
		MarginRight(1).
		Width(width)
}

// renderColumn renders one column with its cards.
func (m Model) renderColumn(colIdx int, column domain.Column, counter app.StatusCounter, colWidth, colHeight int, dim color.Color) string {
	accent := columnAccent(column)
	style := m.columnStyle(colWidth).BorderForeground(dim)
	switch {
	case colIdx == m.hoverColumn && m.board.Gestures().State() == app.StateDragging:
		style = style.BorderForeground(lipgloss.Color("212"))
	case colIdx == m.selectedColumn:
		style = style.BorderForeground(accent)
	}

	title := column.Name
	if m.showCounts {
		title = fmt.Sprintf("%s (%d)", column.Name, counter.Shown)
		if counter.Total > counter.Shown {
			title = fmt.Sprintf("%s (%d of %d)", column.Name, counter.Shown, counter.Total)
		}
	}
	headerLine := lipgloss.NewStyle().Bold(true).Foreground(accent).Render(truncate(title, colWidth))

	cards := m.board.Registry().Cards(column.StatusID)
	lines, spans := m.cardLines(colIdx, cards, colWidth)
	innerHeight := max(1, colHeight-4)
	window := max(1, innerHeight-1)
	scrollTop := m.scrollTop(colIdx, spans, len(lines), window)
	if len(lines) > window {
		lines = lines[scrollTop : scrollTop+window]
	}
	content := fitLines(strings.Join(append([]string{headerLine}, lines...), "\n"), innerHeight)
	return style.Render(content)
}

// cardSpan is the first and last rendered line of one card.
type cardSpan struct {
	start int
	end   int
}

// cardLines renders the cards of one column and reports each card's line span.
func (m Model) cardLines(colIdx int, cards []app.CardView, colWidth int) ([]string, []cardSpan) {
	muted := lipgloss.Color("241")
	if len(cards) == 0 {
		return []string{lipgloss.NewStyle().Foreground(lipgloss.Color("243")).Render("(empty)")}, nil
	}
	selectedStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("212")).Bold(true)
	draggingStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("252")).Background(lipgloss.Color("237")).Bold(true)
	pendingStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("179")).Italic(true)
	subStyle := lipgloss.NewStyle().Foreground(muted)

	lines := make([]string, 0, len(cards)*3)
	spans := make([]cardSpan, 0, len(cards))
	for idx, card := range cards {
		selected := colIdx == m.selectedColumn && idx == m.selectedTask
		prefix := "  "
		if selected {
			prefix = "│ "
		}
		if card.Dragging {
			prefix = "≡ "
		}
		title := prefix + truncate("#"+card.Task.ID+" "+card.Task.Subject, max(1, colWidth-2))
		switch {
		case card.Dragging:
			title = draggingStyle.Render(title)
		case selected:
			title = selectedStyle.Render(title)
		}

		start := len(lines)
		lines = append(lines, title)
		if sub := cardMeta(card); sub != "" {
			sub = "  " + truncate(sub, max(1, colWidth-2))
			if card.Pending {
				lines = append(lines, pendingStyle.Render(sub))
			} else {
				lines = append(lines, subStyle.Render(sub))
			}
		}
		spans = append(spans, cardSpan{start: start, end: len(lines) - 1})
		if idx < len(cards)-1 {
			lines = append(lines, "")
		}
	}
	return lines, spans
}

// cardMeta returns the secondary line of one card.
func cardMeta(card app.CardView) string {
	parts := make([]string, 0, 3)
	if project := strings.TrimSpace(card.Task.ProjectName); project != "" {
		parts = append(parts, project)
	}
	if priority := strings.TrimSpace(card.Task.PriorityLabel); priority != "" {
		parts = append(parts, priority)
	}
	if card.Pending {
		parts = append(parts, "saving…")
	}
	return strings.Join(parts, " · ")
}

// scrollTop keeps the selected card of the selected column inside the visible window.
func (m Model) scrollTop(colIdx int, spans []cardSpan, total, window int) int {
	top := 0
	if colIdx == m.selectedColumn && m.selectedTask >= 0 && m.selectedTask < len(spans) {
		span := spans[m.selectedTask]
		if span.end >= top+window {
			top = span.end - window + 1
		}
		if span.start < top {
			top = span.start
		}
	}
	return clamp(top, 0, max(0, total-window))
}

// columnAt maps a pointer column to a board column index.
func (m Model) columnAt(x int) (int, bool) {
	columns := m.board.Registry().Columns()
	if x < 0 || len(columns) == 0 {
		return 0, false
	}
	span := m.columnSpan()
	if span <= 0 {
		return 0, false
	}
	idx := x / span
	if idx >= len(columns) {
		return 0, false
	}
	return idx, true
}

// cardAt maps a pointer row inside one column to a card index, or -1.
func (m Model) cardAt(colIdx int, cards []app.CardView, y int) int {
	row := y - m.cardsTop()
	if row < 0 {
		return -1
	}
	lines, spans := m.cardLines(colIdx, cards, m.columnWidth())
	window := max(1, max(1, m.columnHeight()-4)-1)
	if row >= window {
		return -1
	}
	row += m.scrollTop(colIdx, spans, len(lines), window)
	for idx, span := range spans {
		if row >= span.start && row <= span.end {
			return idx
		}
	}
	return -1
}

// columnSpan is the rendered width of one column including its margin.
func (m Model) columnSpan() int {
	return lipgloss.Width(m.columnStyle(m.columnWidth()).Render(""))
}

// renderToasts renders the live toast stack.
func (m Model) renderToasts() string {
	active := m.toasts.Active()
	if len(active) == 0 {
		return ""
	}
	lines := make([]string, 0, len(active))
	for _, toast := range active {
		lines = append(lines, toastStyle(toast.Level).Render(toastIcon(toast.Level)+" "+toast.Message))
	}
	return strings.Join(lines, "\n")
}

// toastStyle returns the style of one level.
func toastStyle(level app.Level) lipgloss.Style {
	switch level {
	case app.LevelSuccess:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("78"))
	case app.LevelError:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Bold(true)
	default:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	}
}

// toastIcon returns the glyph of one level.
func toastIcon(level app.Level) string {
	switch level {
	case app.LevelSuccess:
		return "✓"
	case app.LevelError:
		return "✗"
	default:
		return "•"
	}
}

// renderHelpOverlay renders the full help panel.
func (m Model) renderHelpOverlay(accent, muted, dim color.Color, maxWidth int) string {
	width := clamp(maxWidth, 56, 100)
	hb := m.help
	hb.ShowAll = true
	hb.SetWidth(width - 4)

	title := lipgloss.NewStyle().Bold(true).Foreground(accent).Render("tavla help")
	workflow := []string{
		lipgloss.NewStyle().Bold(true).Foreground(accent).Render("Moving cards"),
		"drag a card onto another column to change its status",
		"[ ] move the selected card one column left or right",
		"a moved card shows saving… until the task service confirms it",
		"rejected or failed moves snap back and show a message",
	}
	lines := []string{
		title,
		"",
		hb.View(m.keys),
		"",
		lipgloss.NewStyle().Foreground(muted).Render(strings.Join(workflow, "\n")),
		lipgloss.NewStyle().Foreground(muted).Render("press ? or esc to close"),
	}
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(dim).
		Padding(0, 1).
		Width(width).
		Render(strings.Join(lines, "\n"))
}

// renderTaskInfo renders the selected task as markdown.
func (m Model) renderTaskInfo(accent, muted, dim color.Color, maxWidth int) string {
	card, ok := m.selectedCard()
	if !ok {
		return ""
	}
	width := clamp(maxWidth, 40, 90)
	title := lipgloss.NewStyle().Bold(true).Foreground(accent).Render("#" + card.Task.ID)
	body := m.detail.render(taskMarkdown(card, m.board.Registry()), width-4)
	lines := []string{
		title,
		body,
		lipgloss.NewStyle().Foreground(muted).Render("press i or esc to close • y copy id"),
	}
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(dim).
		Padding(0, 1).
		Width(width).
		Render(strings.Join(lines, "\n"))
}

// columnWidth returns column width.
func (m Model) columnWidth() int {
	return m.columnWidthFor(m.width)
}

// columnWidthFor returns column width for.
func (m Model) columnWidthFor(boardWidth int) int {
	count := len(m.board.Registry().Columns())
	if count == 0 {
		return 24
	}
	w := 28
	if boardWidth > 0 {
		// Per-column overhead: left/right border (2), horizontal padding (4), margin-right (1)
		const colOverhead = 7
		usable := boardWidth - count*colOverhead
		candidate := usable / count
		if candidate > 0 {
			w = candidate
		}
	}
	return clamp(w, 24, 42)
}

// columnHeight returns column height.
func (m Model) columnHeight() int {
	const headerLines = 2
	const footerLines = 5
	h := m.height - headerLines - footerLines
	if h < 14 {
		return 14
	}
	return h
}

// boardTop is the first row of the column frames: header + spacer.
func (m Model) boardTop() int {
	return 2
}

// cardsTop is the first card row: column border, top padding, column title.
func (m Model) cardsTop() int {
	return m.boardTop() + 3
}

// clamp clamps the requested operation.
func clamp(v, minV, maxV int) int {
	if maxV < minV {
		return minV
	}
	if v < minV {
		return minV
	}
	if v > maxV {
		return maxV
	}
	return v
}

// fitLines fits lines.
func fitLines(content string, maxLines int) string {
	if maxLines <= 0 {
		return ""
	}
	lines := strings.Split(content, "\n")
	switch {
	case len(lines) > maxLines:
		if maxLines == 1 {
			lines = []string{"…"}
		} else {
			lines = append(lines[:maxLines-1], "…")
		}
	case len(lines) < maxLines:
		padding := make([]string, maxLines-len(lines))
		lines = append(lines, padding...)
	}
	return strings.Join(lines, "\n")
}

// overlayOnContent overlays on content.
func overlayOnContent(base, overlay string, width, height int) string {
	if width <= 0 || height <= 0 {
		if strings.TrimSpace(overlay) == "" {
			return base
		}
		return overlay + "\n\n" + base
	}

	base = fitLines(base, height)
	canvas := lipgloss.NewCanvas(width, height)
	baseLayer := lipgloss.NewLayer(base).X(0).Y(0).Z(0)
	centeredOverlay := lipgloss.Place(
		width,
		height,
		lipgloss.Center,
		lipgloss.Center,
		overlay,
	)
	overlayLayer := lipgloss.NewLayer(centeredOverlay).X(0).Y(0).Z(10)

	canvas.Compose(baseLayer)
	canvas.Compose(overlayLayer)
	return canvas.Render()
}

// truncate truncates the requested operation.
func truncate(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	rs := []rune(s)
	if len(rs) <= limit {
		return s
	}
	if limit <= 1 {
		return string(rs[:limit])
	}
	return string(rs[:limit-1]) + "…"
}
