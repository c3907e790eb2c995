// Package watch provides a terminal UI that follows one alert group
// live: the projected escalation plan on one pane and the merged log on
// the other, refreshed as the driver advances the escalation.
package watch

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/OWNER/escalator/internal/plan"
	"github.com/OWNER/escalator/internal/store"
	"github.com/OWNER/escalator/internal/style"
)

// refreshInterval is how often the group document is reloaded.
const refreshInterval = 2 * time.Second

// pane selects which projection the viewport shows.
type pane int

const (
	panePlan pane = iota
	paneLog
)

// Model is the bubbletea model for the watch TUI.
type Model struct {
	store   *store.Store
	groupID string

	doc *store.Document
	err error

	active   pane
	viewport viewport.Model
	ready    bool

	keys     KeyMap
	help     help.Model
	showHelp bool
	width    int
	height   int
}

// New creates a watch model for one alert group.
func New(st *store.Store, groupID string) Model {
	return Model{
		store:   st,
		groupID: groupID,
		keys:    DefaultKeyMap(),
		help:    help.New(),
	}
}

// Init starts the refresh loop.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.reload, tick())
}

// tickMsg triggers a periodic reload.
type tickMsg time.Time

func tick() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// reloadMsg is the result of reloading the group document.
type reloadMsg struct {
	doc *store.Document
	err error
}

func (m Model) reload() tea.Msg {
	doc, err := m.store.Load(m.groupID)
	return reloadMsg{doc: doc, err: err}
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		headerHeight := 2
		footerHeight := 2
		if !m.ready {
			m.viewport = viewport.New(msg.Width, msg.Height-headerHeight-footerHeight)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = msg.Height - headerHeight - footerHeight
		}
		m.viewport.SetContent(m.content())
		return m, nil

	case tickMsg:
		return m, tea.Batch(m.reload, tick())

	case reloadMsg:
		m.doc = msg.doc
		m.err = msg.err
		if m.ready {
			m.viewport.SetContent(m.content())
		}
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit

		case key.Matches(msg, m.keys.Help):
			m.showHelp = !m.showHelp
			return m, nil

		case key.Matches(msg, m.keys.Toggle):
			if m.active == panePlan {
				m.active = paneLog
			} else {
				m.active = panePlan
			}
			if m.ready {
				m.viewport.SetContent(m.content())
				m.viewport.GotoTop()
			}
			return m, nil

		case key.Matches(msg, m.keys.Up):
			m.viewport.LineUp(1)
			return m, nil

		case key.Matches(msg, m.keys.Down):
			m.viewport.LineDown(1)
			return m, nil
		}
	}

	return m, nil
}

// content renders the active pane's body.
func (m Model) content() string {
	if m.err != nil {
		return style.Error.Render(m.err.Error())
	}
	if m.doc == nil {
		return style.Dim.Render("Loading...")
	}

	if m.active == panePlan {
		entries := plan.Forecast(m.doc.Group, m.doc.Snapshot, time.Now().UTC(), false)
		if len(entries) == 0 {
			return style.Dim.Render("Nothing planned.")
		}
		return plan.RenderEntries(entries)
	}

	records := plan.LogRecords(m.doc.Group, true)
	if len(records) == 0 {
		return style.Dim.Render("No log records.")
	}
	return plan.RenderLog(records)
}

// View renders the full screen.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}

	var b strings.Builder

	title := fmt.Sprintf("%s %s", style.Heading.Render("esc watch"), style.Bold.Render(m.groupID))
	paneName := "plan"
	if m.active == paneLog {
		paneName = "log"
	}
	b.WriteString(fmt.Sprintf("%s  %s\n\n", title, style.Dim.Render("["+paneName+"]")))

	b.WriteString(m.viewport.View())
	b.WriteString("\n")

	if m.showHelp {
		b.WriteString(m.help.FullHelpView(m.keys.FullHelp()))
	} else {
		b.WriteString(m.help.ShortHelpView(m.keys.ShortHelp()))
	}
	return b.String()
}
