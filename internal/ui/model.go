// Package ui renders the dashboard: an output panel, a call tree, an
// exception panel and a status bar, all fed live from the event store's
// notification channel. The renderer drains the channel and calls
// executor methods; it never mutates the store's collections.
package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/LayerDynamics/runtui/internal/event"
	"github.com/LayerDynamics/runtui/internal/executor"
)

const (
	defaultMaxOutputLines = 2000
	noticeFadeDelay       = 3 * time.Second
)

// panel identifies which pane has keyboard focus.
type panel int

const (
	panelOutput panel = iota
	panelCalls
	panelExceptions
	panelCount
)

// eventMsg wraps a store event for delivery through the bubbletea loop.
type eventMsg struct {
	event event.Event
}

// restartDoneMsg reports the outcome of an asynchronous restart.
type restartDoneMsg struct {
	err error
}

// noticeFadeMsg clears the status bar notice after a delay.
type noticeFadeMsg struct{}

// Option adjusts model construction.
type Option func(*Model)

// WithMaxOutputLines caps how many output lines the output panel retains.
func WithMaxOutputLines(n int) Option {
	return func(m *Model) {
		if n > 0 {
			m.maxLines = n
		}
	}
}

// WithTimestamps prefixes output lines with their capture time.
func WithTimestamps(show bool) Option {
	return func(m *Model) { m.showTimestamps = show }
}

// Model is the top-level bubbletea model for the dashboard.
type Model struct {
	store *event.Store
	exec  *executor.Executor

	keys   KeyMap
	help   help.Model
	spin   spinner.Model
	search textinput.Model

	width  int
	height int
	ready  bool

	focus     panel
	searching bool
	filter    string

	// Output panel: the model keeps its own capped copy of the lines so
	// rendering never walks the store.
	output viewport.Model
	lines  []event.OutputLine
	follow bool

	// Call tree panel.
	tree       *callTree
	cursor     int
	callScroll int
	callWidth  int
	callRows   int

	// Exception panel shows the most recent exception.
	excView viewport.Model
	lastExc *event.Exception

	notice string

	maxLines       int
	showTimestamps bool
}

// NewModel builds the dashboard over a store and an executor. The model
// starts empty and fills up as it drains the store's event channel.
func NewModel(store *event.Store, exec *executor.Executor, opts ...Option) Model {
	search := textinput.New()
	search.Prompt = "/"
	search.Placeholder = "search output"
	search.CharLimit = 128

	m := Model{
		store:    store,
		exec:     exec,
		keys:     DefaultKeyMap,
		help:     help.New(),
		spin:     newSpinner(),
		search:   search,
		follow:   true,
		tree:     newCallTree(),
		maxLines: defaultMaxOutputLines,
	}
	for _, opt := range opts {
		opt(&m)
	}
	return m
}

// NewProgram wraps the model in a bubbletea program with the alternate
// screen enabled.
func NewProgram(m Model) *tea.Program {
	return tea.NewProgram(m, tea.WithAltScreen())
}

func newSpinner() spinner.Model {
	return spinner.New(
		spinner.WithSpinner(spinner.MiniDot),
		spinner.WithStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("2"))),
	)
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(listenForEvent(m.store.Events()), m.spin.Tick)
}

// listenForEvent returns a command that blocks until the next store
// event arrives, then delivers it as an eventMsg. Update re-issues it
// after applying each event.
func listenForEvent(ch <-chan event.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return nil
		}
		return eventMsg{event: ev}
	}
}

func scheduleNoticeFade() tea.Cmd {
	return tea.Tick(noticeFadeDelay, func(time.Time) tea.Msg {
		return noticeFadeMsg{}
	})
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.ready = true
		m.layout()
		return m, nil

	case eventMsg:
		return m.handleEvent(msg)

	case restartDoneMsg:
		if msg.err != nil {
			m.notice = "restart failed: " + msg.err.Error()
			return m, scheduleNoticeFade()
		}
		return m, nil

	case noticeFadeMsg:
		m.notice = ""
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) handleEvent(msg eventMsg) (tea.Model, tea.Cmd) {
	ev := msg.event
	switch ev.Kind {
	case event.KindOutput:
		if ev.Output != nil {
			m.appendLine(*ev.Output)
		}
	case event.KindCall:
		if ev.Call != nil {
			m.tree.addCall(*ev.Call)
			m.clampCursor()
		}
	case event.KindReturn:
		if ev.Return != nil {
			m.tree.addReturn(*ev.Return)
		}
	case event.KindException:
		if ev.Exception != nil {
			m.setException(*ev.Exception)
		}
	}
	return m, listenForEvent(m.store.Events())
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.searching {
		return m.handleSearchKey(msg)
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, m.quitCmd()

	case key.Matches(msg, m.keys.Pause):
		if m.exec != nil {
			if m.exec.Paused() {
				m.exec.Resume()
			} else {
				m.exec.Pause()
			}
		}

	case key.Matches(msg, m.keys.Restart):
		m.resetPanels()
		exec := m.exec
		if exec == nil {
			return m, nil
		}
		return m, func() tea.Msg { return restartDoneMsg{err: exec.Restart()} }

	case key.Matches(msg, m.keys.Search):
		m.searching = true
		m.search.Focus()
		m.layout()
		return m, textinput.Blink

	case key.Matches(msg, m.keys.Clear):
		if m.filter != "" {
			m.filter = ""
			m.search.SetValue("")
			m.refreshOutput()
			m.layout()
		}

	case key.Matches(msg, m.keys.FocusNext):
		m.focus = (m.focus + 1) % panelCount

	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
		m.layout()

	case key.Matches(msg, m.keys.Collapse):
		if m.focus == panelCalls {
			m.toggleSelected()
		}

	case key.Matches(msg, m.keys.Up):
		m.scrollFocused(-1)
	case key.Matches(msg, m.keys.Down):
		m.scrollFocused(1)
	case key.Matches(msg, m.keys.PageUp):
		m.pageFocused(-1)
	case key.Matches(msg, m.keys.PageDown):
		m.pageFocused(1)
	}
	return m, nil
}

func (m Model) handleSearchKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC:
		return m, m.quitCmd()
	case tea.KeyEsc:
		m.searching = false
		m.filter = ""
		m.search.SetValue("")
		m.search.Blur()
		m.refreshOutput()
		m.layout()
		return m, nil
	case tea.KeyEnter:
		m.searching = false
		m.search.Blur()
		m.layout()
		return m, nil
	}
	var cmd tea.Cmd
	m.search, cmd = m.search.Update(msg)
	if v := m.search.Value(); v != m.filter {
		m.filter = v
		m.refreshOutput()
	}
	return m, cmd
}

// quitCmd stops the child off the UI goroutine, then quits.
func (m Model) quitCmd() tea.Cmd {
	exec := m.exec
	return func() tea.Msg {
		if exec != nil {
			_ = exec.Stop()
		}
		return tea.Quit()
	}
}

func (m *Model) appendLine(line event.OutputLine) {
	m.lines = append(m.lines, line)
	if len(m.lines) > m.maxLines {
		m.lines = m.lines[len(m.lines)-m.maxLines:]
	}
	m.refreshOutput()
}

func (m *Model) refreshOutput() {
	m.output.SetContent(m.renderLines())
	if m.follow {
		m.output.GotoBottom()
	}
}

func (m *Model) renderLines() string {
	var b strings.Builder
	query := strings.ToLower(m.filter)
	for _, line := range m.lines {
		if query != "" && !strings.Contains(strings.ToLower(line.Content), query) {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		if m.showTimestamps {
			b.WriteString(timestampStyle.Render(line.Timestamp.Format("15:04:05.000")))
			b.WriteByte(' ')
		}
		b.WriteString(styleFor(string(line.Stream)).Render(line.Content))
	}
	return b.String()
}

func (m *Model) setException(exc event.Exception) {
	m.lastExc = &exc
	var b strings.Builder
	b.WriteString(excTypeStyle.Render(exc.ExceptionType))
	if exc.Message != "" {
		b.WriteString(": " + exc.Message)
	}
	for _, frame := range exc.Traceback {
		b.WriteString("\n" + tracebackSty.Render(frame))
	}
	m.excView.SetContent(b.String())
	m.excView.GotoTop()
}

func (m *Model) resetPanels() {
	m.lines = nil
	m.output.SetContent("")
	m.follow = true
	m.tree = newCallTree()
	m.cursor = 0
	m.callScroll = 0
	m.lastExc = nil
	m.excView.SetContent("")
}

func (m *Model) scrollFocused(delta int) {
	switch m.focus {
	case panelOutput:
		if delta < 0 {
			m.output.LineUp(-delta)
			m.follow = false
		} else {
			m.output.LineDown(delta)
			m.follow = m.output.AtBottom()
		}
	case panelCalls:
		m.moveCursor(delta)
	case panelExceptions:
		if delta < 0 {
			m.excView.LineUp(-delta)
		} else {
			m.excView.LineDown(delta)
		}
	}
}

func (m *Model) pageFocused(dir int) {
	switch m.focus {
	case panelOutput:
		if dir < 0 {
			m.output.HalfViewUp()
			m.follow = false
		} else {
			m.output.HalfViewDown()
			m.follow = m.output.AtBottom()
		}
	case panelCalls:
		m.moveCursor(dir * max(1, m.callRows))
	case panelExceptions:
		if dir < 0 {
			m.excView.HalfViewUp()
		} else {
			m.excView.HalfViewDown()
		}
	}
}

func (m *Model) moveCursor(delta int) {
	rows := m.tree.rows()
	if len(rows) == 0 {
		m.cursor = 0
		m.callScroll = 0
		return
	}
	m.cursor += delta
	if m.cursor < 0 {
		m.cursor = 0
	}
	if m.cursor >= len(rows) {
		m.cursor = len(rows) - 1
	}
	m.scrollCursorIntoView()
}

func (m *Model) clampCursor() {
	n := len(m.tree.rows())
	if n == 0 {
		m.cursor = 0
		m.callScroll = 0
		return
	}
	if m.cursor >= n {
		m.cursor = n - 1
	}
	m.scrollCursorIntoView()
}

func (m *Model) scrollCursorIntoView() {
	if m.callRows <= 0 {
		return
	}
	if m.cursor < m.callScroll {
		m.callScroll = m.cursor
	}
	if m.cursor >= m.callScroll+m.callRows {
		m.callScroll = m.cursor - m.callRows + 1
	}
}

func (m *Model) toggleSelected() {
	rows := m.tree.rows()
	if m.cursor < 0 || m.cursor >= len(rows) {
		return
	}
	node := rows[m.cursor].node
	if len(node.children) == 0 {
		return
	}
	m.tree.toggle(node.call.CallID)
	m.clampCursor()
}

// layout recomputes pane dimensions from the terminal size and the
// other chrome currently visible.
func (m *Model) layout() {
	if m.width <= 0 || m.height <= 0 {
		return
	}
	m.help.Width = m.width
	m.search.Width = max(10, m.width-4)

	chrome := 1 + lipgloss.Height(m.help.View(m.keys))
	if m.searching || m.filter != "" {
		chrome++
	}
	bodyH := max(6, m.height-chrome)

	outW := m.width * 3 / 5
	rightW := m.width - outW

	// Each panel spends two columns and two rows on its border plus one
	// inner line on its title.
	m.output.Width = max(10, outW-2)
	m.output.Height = max(1, bodyH-3)

	callH := bodyH * 3 / 5
	excH := bodyH - callH
	m.callWidth = max(10, rightW-2)
	m.callRows = max(1, callH-3)
	m.excView.Width = m.callWidth
	m.excView.Height = max(1, excH-3)

	m.refreshOutput()
	m.scrollCursorIntoView()
}

// View implements tea.Model.
func (m Model) View() string {
	if !m.ready {
		return "Initializing..."
	}
	sections := []string{
		m.statusBarView(),
		lipgloss.JoinHorizontal(lipgloss.Top, m.outputPanelView(), m.rightColumnView()),
	}
	if bar := m.searchBarView(); bar != "" {
		sections = append(sections, bar)
	}
	sections = append(sections, m.help.View(m.keys))
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) statusBarView() string {
	badge := stoppedBadge.String()
	if m.exec != nil && m.exec.Running() {
		if m.exec.Paused() {
			badge = pausedBadge.String()
		} else {
			badge = runningBadge.String() + m.spin.View()
		}
	}

	var parts []string
	if m.exec != nil {
		parts = append(parts, m.exec.Script())
		if pid := m.exec.PID(); pid > 0 {
			parts = append(parts, fmt.Sprintf("pid %d", pid))
		}
		if s, ok := m.exec.Sampler().Last(); ok {
			parts = append(parts, fmt.Sprintf("cpu %.1f%%", s.CPUPercent))
			parts = append(parts, fmt.Sprintf("mem %.1fMB", s.MemoryMB))
		}
	}
	if m.store != nil {
		c := m.store.Counts()
		parts = append(parts, fmt.Sprintf("out %d  calls %d  ret %d  exc %d",
			c.Output, c.Calls, c.Returns, c.Exceptions))
	}

	avail := m.width - lipgloss.Width(badge)
	notice := ""
	if m.notice != "" {
		notice = noticeStyle.Render(" " + m.notice)
		avail -= lipgloss.Width(notice)
	}
	text := trunc(" "+strings.Join(parts, "  "), max(0, avail))
	return badge + statusText.Width(max(0, avail)).Render(text) + notice
}

func (m Model) outputPanelView() string {
	style := panelStyle
	if m.focus == panelOutput {
		style = focusedPanelStyle
	}
	title := "Output"
	if m.filter != "" {
		title = "Output (filtered)"
	}
	content := panelTitleStyle.Render(title) + "\n" + m.output.View()
	return style.Width(m.output.Width).Height(m.output.Height + 1).Render(content)
}

func (m Model) rightColumnView() string {
	return lipgloss.JoinVertical(lipgloss.Left, m.callsPanelView(), m.excPanelView())
}

func (m Model) callsPanelView() string {
	style := panelStyle
	if m.focus == panelCalls {
		style = focusedPanelStyle
	}
	var b strings.Builder
	b.WriteString(panelTitleStyle.Render(fmt.Sprintf("Calls (%d active)", m.tree.activeCount())))

	rows := m.tree.rows()
	if len(rows) == 0 {
		b.WriteString("\n" + returnStyle.Render("no calls traced"))
	} else {
		end := min(len(rows), m.callScroll+m.callRows)
		for i := m.callScroll; i < end; i++ {
			b.WriteByte('\n')
			b.WriteString(renderRow(rows[i], m.callWidth, i == m.cursor && m.focus == panelCalls))
		}
	}
	return style.Width(m.callWidth).Height(m.callRows + 1).Render(b.String())
}

func (m Model) excPanelView() string {
	style := panelStyle
	if m.focus == panelExceptions {
		style = focusedPanelStyle
	}
	title := panelTitleStyle.Render("Exceptions")
	body := returnStyle.Render("none")
	if m.lastExc != nil {
		body = m.excView.View()
	}
	return style.Width(m.excView.Width).Height(m.excView.Height + 1).Render(title + "\n" + body)
}

func (m Model) searchBarView() string {
	if m.searching {
		return m.search.View()
	}
	if m.filter != "" {
		return timestampStyle.Render(" filter: " + m.filter)
	}
	return ""
}
