package terminal

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/x/ansi"

	"place-client/internal/runstatus"
	"place-client/internal/runtime"
)

const (
	defaultWidth  = 80
	defaultHeight = 24
	chromeRows    = 10
	minCanvasRows = 4
	maxNotices    = 3
	maxLogLines   = 4
	noticeTTL     = 5 * time.Second
	tickInterval  = time.Second
)

type dirtyMsg struct{}
type roomMsg roomInfo
type noticeMsg notice
type statusMsg string
type navigateMsg string
type logMsg string
type tickMsg time.Time

type runDoneMsg struct {
	err error
}

type keyMap struct {
	Quit key.Binding
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}

var defaultKeys = keyMap{
	Quit: key.NewBinding(key.WithKeys("q", "ctrl+c", "esc"), key.WithHelp("q", "quit")),
}

type shownNotice struct {
	notice
	at time.Time
}

type model struct {
	room    string
	bridge  *Renderer
	keys    keyMap
	help    help.Model
	spinner spinner.Model
	now     func() time.Time

	width, height int

	status      string
	roomName    string
	description string
	loginURL    string
	loaded      bool
	notices     []shownNotice
	logs        []string
	exitErr     error
	quitting    bool

	canvasView string
	canvasRev  uint64
	canvasCols int
	canvasRows int
}

func newModel(room string, bridge *Renderer) *model {
	return &model{
		room:    room,
		bridge:  bridge,
		keys:    defaultKeys,
		help:    help.New(),
		spinner: spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(spinnerStyle)),
		now:     time.Now,
		status:  runstatus.Starting,
	}
}

func (m *model) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		tickCmd(),
		waitFor(m.bridge.dirtyCh, func(struct{}) tea.Msg { return dirtyMsg{} }),
		waitFor(m.bridge.roomCh, func(info roomInfo) tea.Msg { return roomMsg(info) }),
		waitFor(m.bridge.noticeCh, func(n notice) tea.Msg { return noticeMsg(n) }),
		waitFor(m.bridge.statusCh, func(status string) tea.Msg { return statusMsg(status) }),
		waitFor(m.bridge.navCh, func(target string) tea.Msg { return navigateMsg(target) }),
		waitFor(m.bridge.logCh, func(line string) tea.Msg { return logMsg(line) }),
	)
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.help.Width = msg.Width
		m.refreshCanvas(true)
		return m, nil
	case tea.KeyMsg:
		if key.Matches(msg, m.keys.Quit) {
			m.quitting = true
			return m, tea.Quit
		}
		return m, nil
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case dirtyMsg:
		m.refreshCanvas(false)
		return m, waitFor(m.bridge.dirtyCh, func(struct{}) tea.Msg { return dirtyMsg{} })
	case roomMsg:
		m.roomName = msg.name
		m.description = msg.description
		m.loaded = true
		m.refreshCanvas(true)
		return m, waitFor(m.bridge.roomCh, func(info roomInfo) tea.Msg { return roomMsg(info) })
	case noticeMsg:
		m.notices = append(m.notices, shownNotice{notice: notice(msg), at: m.now()})
		if len(m.notices) > maxNotices {
			m.notices = m.notices[len(m.notices)-maxNotices:]
		}
		return m, waitFor(m.bridge.noticeCh, func(n notice) tea.Msg { return noticeMsg(n) })
	case statusMsg:
		m.status = string(msg)
		if runstatus.Live(m.status) {
			m.loginURL = ""
		}
		return m, waitFor(m.bridge.statusCh, func(status string) tea.Msg { return statusMsg(status) })
	case navigateMsg:
		m.loginURL = string(msg)
		return m, waitFor(m.bridge.navCh, func(target string) tea.Msg { return navigateMsg(target) })
	case logMsg:
		m.logs = append(m.logs, string(msg))
		if len(m.logs) > maxLogLines {
			m.logs = m.logs[len(m.logs)-maxLogLines:]
		}
		return m, waitFor(m.bridge.logCh, func(line string) tea.Msg { return logMsg(line) })
	case tickMsg:
		m.pruneNotices()
		return m, tickCmd()
	case runDoneMsg:
		if msg.err == nil || errors.Is(msg.err, context.Canceled) || errors.Is(msg.err, runtime.ErrStopped) {
			m.quitting = true
			return m, tea.Quit
		}
		m.exitErr = msg.err
		m.status = runstatus.Disconnected
		return m, nil
	}
	return m, nil
}

func (m *model) View() string {
	if m.quitting {
		return ""
	}
	width := m.viewWidth()
	truncate := func(s string) string { return ansi.Truncate(s, width, "…") }

	lines := []string{truncate(titleStyle.Render("place-client") + " " + roomStyle.Render(m.room) + "  " + m.statusView())}
	if m.roomName != "" {
		info := m.roomName
		if m.description != "" {
			info += " · " + m.description
		}
		lines = append(lines, truncate(infoStyle.Render(info)))
	}

	if m.loaded && m.canvasView != "" {
		lines = append(lines, m.canvasView)
	} else {
		lines = append(lines, "", m.spinner.View()+" Loading canvas…")
	}

	if m.loginURL != "" {
		lines = append(lines, "", "Log in at:", linkStyle.Render(m.loginURL))
	}
	for _, n := range m.notices {
		lines = append(lines, truncate(noticeBadge(n.kind)+" "+n.message))
	}
	if m.exitErr != nil {
		lines = append(lines, truncate(errorStyle.Render("Stopped: "+m.exitErr.Error())))
	}
	for _, line := range m.logs {
		lines = append(lines, truncate(line))
	}
	lines = append(lines, helpStyle.Render(m.help.View(m.keys)))
	return strings.Join(lines, "\n")
}

func (m *model) statusView() string {
	switch {
	case runstatus.Live(m.status):
		return statusLiveStyle.Render("● " + m.status)
	case runstatus.Key(m.status) == runstatus.KeyDisconnectedAuth, m.exitErr != nil:
		return statusErrorStyle.Render("● " + m.status)
	default:
		return m.spinner.View() + statusBusyStyle.Render(m.status)
	}
}

func (m *model) viewWidth() int {
	if m.width <= 0 {
		return defaultWidth
	}
	return m.width
}

func (m *model) canvasArea() (int, int) {
	height := m.height
	if height <= 0 {
		height = defaultHeight
	}
	return m.viewWidth(), max(height-chromeRows, minCanvasRows)
}

// refreshCanvas re-renders the cached canvas when the surface or the
// available area changed since the last render.
func (m *model) refreshCanvas(force bool) {
	dims, pixels, rev := m.bridge.surface.Snapshot()
	cols, rows := m.canvasArea()
	if !force && rev == m.canvasRev && cols == m.canvasCols && rows == m.canvasRows {
		return
	}
	m.canvasView = renderCanvas(dims, pixels, cols, rows)
	m.canvasRev, m.canvasCols, m.canvasRows = rev, cols, rows
}

func (m *model) pruneNotices() {
	now := m.now()
	kept := m.notices[:0]
	for _, n := range m.notices {
		if now.Sub(n.at) < noticeTTL {
			kept = append(kept, n)
		}
	}
	m.notices = kept
}

func tickCmd() tea.Cmd {
	return tea.Tick(tickInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}
