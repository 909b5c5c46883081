// Package companion is the root bubbletea model: the playground with the
// pet, a status pane, a plugin list and the input line.
package companion

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	zone "github.com/lrstanley/bubblezone"

	"github.com/zjrosen/deskmate/internal/event"
	"github.com/zjrosen/deskmate/internal/keys"
	"github.com/zjrosen/deskmate/internal/log"
	"github.com/zjrosen/deskmate/internal/plugin"
	"github.com/zjrosen/deskmate/internal/plugins/drag"
	"github.com/zjrosen/deskmate/internal/plugins/move"
	"github.com/zjrosen/deskmate/internal/plugins/pet"
	"github.com/zjrosen/deskmate/internal/plugins/petstate"
	"github.com/zjrosen/deskmate/internal/plugins/speak"
	"github.com/zjrosen/deskmate/internal/pubsub"
	"github.com/zjrosen/deskmate/internal/task"
	"github.com/zjrosen/deskmate/internal/ui/logpane"
	"github.com/zjrosen/deskmate/internal/ui/markdown"
	"github.com/zjrosen/deskmate/internal/ui/playground"
	"github.com/zjrosen/deskmate/internal/ui/styles"
	"github.com/zjrosen/deskmate/internal/ui/toaster"
)

const (
	statusWidth     = 38
	minWidthForSide = 70
	refreshInterval = time.Second
	pettingMood     = 5
)

// Options configures the view.
type Options struct {
	// Theme is passed to markdown.ResolveStyle.
	Theme string
	// ShowStatus opens the status pane on start.
	ShowStatus bool
	// Logs tails log lines into the log pane. Nil disables it.
	Logs *log.Listener
	// ShowLog opens the log pane on start.
	ShowLog bool
}

type snapshotMsg struct {
	snap Snapshot
	err  error
}

type actionErrMsg struct {
	what string
	err  error
}

type refreshTickMsg struct{}

// Model is the companion view.
type Model struct {
	ctx     context.Context
	backend Backend
	events  *pubsub.ContinuousListener[event.Event]
	logs    *log.Listener
	md      *markdown.Renderer

	snap       Snapshot
	status     string // rendered status pane
	showStatus bool
	showPlugs  bool
	cursor     int
	showHelp   bool

	input   textinput.Model
	ground  playground.Model
	toast   toaster.Model
	logPane logpane.Model
	help    help.Model

	width, height int
}

// New builds the view. ctx bounds the event subscription.
func New(ctx context.Context, backend Backend, opts Options) Model {
	in := textinput.New()
	in.Placeholder = "Say something..."
	in.Prompt = "> "
	in.Focus()

	md, err := markdown.New(statusWidth-4, opts.Theme)
	if err != nil {
		log.ErrorErr(log.CatUI, "markdown renderer unavailable", err)
	}

	logPane := logpane.New(logpane.DefaultCapacity)
	if opts.ShowLog && opts.Logs != nil {
		logPane.Toggle()
	}

	return Model{
		ctx:        ctx,
		backend:    backend,
		events:     pubsub.NewContinuousListener(ctx, backend),
		logs:       opts.Logs,
		md:         md,
		showStatus: opts.ShowStatus,
		input:      in,
		toast:      toaster.New(),
		logPane:    logPane,
		help:       help.New(),
	}
}

// Init starts listening and takes the first snapshot.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{textinput.Blink, m.events.Listen(), m.refresh(), tickRefresh()}
	if m.logs != nil {
		cmds = append(cmds, m.logs.Listen())
	}
	return tea.Batch(cmds...)
}

func tickRefresh() tea.Cmd {
	return tea.Tick(refreshInterval, func(time.Time) tea.Msg { return refreshTickMsg{} })
}

func (m Model) refresh() tea.Cmd {
	ctx, b := m.ctx, m.backend
	return func() tea.Msg {
		snap, err := b.Snapshot(ctx)
		return snapshotMsg{snap: snap, err: err}
	}
}

// do runs a backend call off the update loop, reporting only failures.
func (m Model) do(what string, fn func(ctx context.Context) error) tea.Cmd {
	ctx := m.ctx
	return func() tea.Msg {
		if err := fn(ctx); err != nil {
			return actionErrMsg{what: what, err: err}
		}
		return nil
	}
}

func (m Model) trigger(e event.Event) tea.Cmd {
	b := m.backend
	return m.do(event.Name(e), func(ctx context.Context) error { return b.Trigger(ctx, e) })
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.layout()
		m.logPane.SetSize(msg.Width, msg.Height)
		return m, nil

	case pubsub.Event[event.Event]:
		cmd := m.onEvent(msg.Payload)
		return m, tea.Batch(cmd, m.events.Listen())

	case pubsub.Event[string]:
		m.logPane.Append(msg.Payload)
		return m, m.logs.Listen()

	case snapshotMsg:
		if msg.err != nil {
			log.ErrorErr(log.CatUI, "snapshot failed", msg.err)
			return m, nil
		}
		m.snap = msg.snap
		if !m.ground.Dragging() {
			m.ground.SetPet(m.snap.Name, m.snap.Position, m.snap.Bounds)
		}
		m.ground.SetMood(m.snap.Mood)
		m.cursor = min(m.cursor, max(len(m.snap.Plugins)-1, 0))
		m.status = m.renderStatus(m.snap.Status)
		return m, nil

	case refreshTickMsg:
		return m, tea.Batch(m.refresh(), tickRefresh())

	case actionErrMsg:
		var cmd tea.Cmd
		m.toast, cmd = m.toast.Show(fmt.Sprintf("%s: %v", msg.what, msg.err), toaster.StyleError, toaster.DefaultDuration)
		return m, cmd

	case toaster.DismissMsg:
		m.toast = m.toast.Update(msg)
		return m, nil

	case logpane.CloseMsg:
		return m, nil

	case playground.DragStartMsg:
		return m, m.trigger(drag.Start{Pos: msg.At})
	case playground.DragMsg:
		return m, m.trigger(drag.Drag{Pos: msg.At})
	case playground.DropMsg:
		return m, m.trigger(drag.End{Pos: msg.At})
	case playground.PetMsg:
		return m, m.trigger(petstate.Modify{Mood: pettingMood, Reason: "petting"})

	case tea.MouseMsg:
		var cmd tea.Cmd
		m.ground, cmd = m.ground.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		return m.onKey(msg)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) onEvent(e event.Event) tea.Cmd {
	switch e := e.(type) {
	case speak.Speak:
		m.ground.Say(e.Text)
	case move.Move:
		m.ground.SetPet(m.snap.Name, e.Pos, pet.Size{})
	case drag.Drag:
		if !m.ground.Dragging() {
			m.ground.SetPet(m.snap.Name, e.Pos, pet.Size{})
		}
	case petstate.Changed:
		m.ground.SetMood(petstate.MoodWord(e.New.Mood))
	case task.Failed:
		var cmd tea.Cmd
		m.toast, cmd = m.toast.Show(fmt.Sprintf("%s failed: %v", e.Name, e.Err), toaster.StyleError, toaster.DefaultDuration)
		return cmd
	case plugin.Loaded:
		var cmd tea.Cmd
		m.toast, cmd = m.toast.Show(e.ID+" loaded", toaster.StyleSuccess, toaster.DefaultDuration)
		return tea.Batch(cmd, m.refresh())
	case plugin.Unloaded:
		var cmd tea.Cmd
		m.toast, cmd = m.toast.Show(e.ID+" unloaded", toaster.StyleInfo, toaster.DefaultDuration)
		return tea.Batch(cmd, m.refresh())
	case plugin.ConfigUpdated:
		return m.refresh()
	}
	return nil
}

func (m Model) onKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, keys.Companion.Quit) {
		return m, tea.Quit
	}
	if m.logPane.Visible() {
		var cmd tea.Cmd
		m.logPane, cmd = m.logPane.Update(msg)
		return m, cmd
	}
	if m.showPlugs {
		return m.onPluginKey(msg)
	}

	switch {
	case key.Matches(msg, keys.Companion.Send):
		text := strings.TrimSpace(m.input.Value())
		if text == "" {
			return m, nil
		}
		m.input.Reset()
		b := m.backend
		return m, m.do("say", func(ctx context.Context) error { return b.Say(ctx, text) })
	case key.Matches(msg, keys.Companion.ToggleStatus):
		m.showStatus = !m.showStatus
		m.layout()
		return m, nil
	case key.Matches(msg, keys.Companion.Plugins):
		m.showPlugs = true
		m.layout()
		return m, m.refresh()
	case key.Matches(msg, keys.Companion.Logs):
		m.logPane.Toggle()
		return m, nil
	case key.Matches(msg, keys.Companion.Help):
		m.showHelp = !m.showHelp
		m.layout()
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) onPluginKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	plugs := m.snap.Plugins
	switch {
	case key.Matches(msg, keys.Plugins.Close):
		m.showPlugs = false
		m.layout()
	case key.Matches(msg, keys.Plugins.Up):
		m.cursor = max(m.cursor-1, 0)
	case key.Matches(msg, keys.Plugins.Down):
		m.cursor = min(m.cursor+1, max(len(plugs)-1, 0))
	case key.Matches(msg, keys.Plugins.Toggle):
		if m.cursor < len(plugs) {
			st, b := plugs[m.cursor], m.backend
			return m, tea.Sequence(
				m.do("enable "+st.ID, func(ctx context.Context) error { return b.SetEnabled(ctx, st.ID, !st.Enabled) }),
				m.refresh(),
			)
		}
	case key.Matches(msg, keys.Plugins.Reload):
		if m.cursor < len(plugs) {
			id, b := plugs[m.cursor].ID, m.backend
			return m, m.do("reload "+id, func(ctx context.Context) error { return b.Reload(ctx, id) })
		}
	}
	return m, nil
}

// layout splits the screen between playground, side pane and footer.
func (m *Model) layout() {
	side := 0
	if (m.showStatus || m.showPlugs) && m.width >= minWidthForSide {
		side = statusWidth
	}
	footer := 2
	if m.showHelp {
		footer = 4
	}
	m.input.Width = max(m.width-4, 1)
	m.ground.SetSize(max(m.width-side, 0), max(m.height-footer, 0), 0)
}

func (m Model) sideVisible() bool {
	return (m.showStatus || m.showPlugs) && m.width >= minWidthForSide
}

// renderStatus renders the status markdown, falling back to the raw text.
func (m Model) renderStatus(text string) string {
	if m.md == nil || text == "" {
		return text
	}
	out, err := m.md.Render(text)
	if err != nil {
		log.ErrorErr(log.CatUI, "rendering status", err)
		return text
	}
	return out
}

// View implements tea.Model.
func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}
	body := m.ground.View()
	if m.sideVisible() {
		var side string
		if m.showPlugs {
			side = m.pluginsView()
		} else {
			side = m.statusView()
		}
		body = lipgloss.JoinHorizontal(lipgloss.Top, body, side)
	}

	footer := m.input.View()
	if m.showHelp {
		footer += "\n" + m.help.FullHelpView(keys.Companion.FullHelp())
	} else {
		footer += "\n" + m.help.ShortHelpView(keys.Companion.ShortHelp())
	}

	view := lipgloss.JoinVertical(lipgloss.Left, body, footer)
	view = m.toast.Overlay(view, m.width, m.height)
	view = m.logPane.Overlay(view)
	return zone.Scan(view)
}

func (m Model) paneHeight() int {
	footer := 2
	if m.showHelp {
		footer = 4
	}
	return max(m.height-footer-2, 1)
}

func (m Model) statusView() string {
	content := m.status
	if content == "" {
		content = styles.MutedStyle.Render("Nothing to report.")
	}
	return styles.PaneStyle.
		Width(statusWidth - 2).
		Height(m.paneHeight()).
		MaxHeight(m.paneHeight() + 2).
		Render(content)
}

func (m Model) pluginsView() string {
	var b strings.Builder
	b.WriteString(styles.TitleStyle.Render("Plugins") + "\n")
	for i, st := range m.snap.Plugins {
		cursor := "  "
		if i == m.cursor {
			cursor = styles.SelectionIndicatorStyle.Render("> ")
		}
		mark := "[ ]"
		if st.Enabled {
			mark = "[x]"
		}
		state := ""
		if st.Enabled && !st.Loaded {
			state = styles.MutedStyle.Render(" waiting")
		}
		fmt.Fprintf(&b, "%s%s %s%s\n", cursor, mark, st.ID, state)
	}
	b.WriteString("\n" + m.help.ShortHelpView(keys.Plugins.ShortHelp()))
	return styles.FocusedPaneStyle.
		Width(statusWidth - 2).
		Height(m.paneHeight()).
		Render(b.String())
}
