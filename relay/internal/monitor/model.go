// Package monitor implements the operator dashboard: a live table of relay
// connections with the option to force-disconnect a session.
package monitor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/jsjperu/wha-relay/pkg/relayclient"
)

// Source is the subset of the admin API the dashboard needs.
type Source interface {
	ListClients(ctx context.Context) (*relayclient.ClientList, error)
	Disconnect(ctx context.Context, socketID, ruc string) (string, error)
}

type clientsMsg struct {
	list *relayclient.ClientList
	err  error
}

type disconnectedMsg struct {
	message string
	err     error
}

type tickMsg time.Time

// Model is the root dashboard model.
type Model struct {
	src      Source
	target   string
	interval time.Duration

	clients  clientsTable
	lastErr  error
	notice   string
	updated  time.Time
	confirm  *relayclient.ClientInfo
	showHelp bool
	width    int
	now      func() time.Time
}

// NewModel creates a dashboard polling src every interval. target is shown in
// the header.
func NewModel(src Source, target string, interval time.Duration) Model {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return Model{src: src, target: target, interval: interval, now: time.Now}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.fetch(), m.tick())
}

func (m Model) fetch() tea.Cmd {
	src := m.src
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		list, err := src.ListClients(ctx)
		return clientsMsg{list: list, err: err}
	}
}

func (m Model) tick() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m Model) disconnect(c relayclient.ClientInfo) tea.Cmd {
	src := m.src
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		msg, err := src.Disconnect(ctx, c.ID, "")
		return disconnectedMsg{message: msg, err: err}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case tickMsg:
		return m, tea.Batch(m.fetch(), m.tick())

	case clientsMsg:
		m.lastErr = msg.err
		if msg.err == nil {
			m.clients.update(msg.list.Clients)
			m.updated = m.now()
		}
		return m, nil

	case disconnectedMsg:
		if msg.err != nil {
			m.lastErr = msg.err
			return m, nil
		}
		m.notice = msg.message
		return m, m.fetch()

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.confirm != nil {
		switch {
		case key.Matches(msg, keys.Confirm):
			target := *m.confirm
			m.confirm = nil
			return m, m.disconnect(target)
		case key.Matches(msg, keys.Cancel), key.Matches(msg, keys.Quit):
			m.confirm = nil
		}
		return m, nil
	}

	switch {
	case key.Matches(msg, keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, keys.Help):
		m.showHelp = !m.showHelp
	case key.Matches(msg, keys.Down):
		m.clients.move(1)
	case key.Matches(msg, keys.Up):
		m.clients.move(-1)
	case key.Matches(msg, keys.Top):
		m.clients.cursor = 0
	case key.Matches(msg, keys.Bottom):
		m.clients.move(len(m.clients.items))
	case key.Matches(msg, keys.Refresh):
		return m, m.fetch()
	case key.Matches(msg, keys.Disconnect):
		if c, ok := m.clients.selected(); ok {
			m.confirm = &c
			m.notice = ""
		}
	}
	return m, nil
}

func (m Model) View() string {
	if m.showHelp {
		return m.helpView()
	}

	width := max(m.width-2, 40)
	now := m.now()

	header := titleStyle.Render("wha-relay monitor") + "  " + descriptionStyle.Render(m.target)
	info := fmt.Sprintf("Connections: %d   Sessions: %d", len(m.clients.items), m.clients.admitted())
	if !m.updated.IsZero() {
		info += "   Updated: " + m.updated.Format("15:04:05")
	}

	body := panelStyle.Width(width).Render(
		subtitleStyle.Render(" Clients") + "\n" + m.clients.View(now),
	)

	var footer string
	switch {
	case m.confirm != nil:
		footer = noticeStyle.Render(fmt.Sprintf("  Disconnect %s (%s)? y/n", m.confirm.RUC, m.confirm.ID))
	case m.lastErr != nil:
		footer = errorStyle.Render("  " + m.lastErr.Error())
	case m.notice != "":
		footer = noticeStyle.Render("  " + m.notice)
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		descriptionStyle.Render(info),
		body,
		footer,
		m.helpBar(),
	)
}

func (m Model) helpBar() string {
	var parts []string
	for _, b := range keys.bindings() {
		h := b.Help()
		parts = append(parts, h.Key+" "+h.Desc)
	}
	return helpStyle.Render("  " + strings.Join(parts, "  "))
}

func (m Model) helpView() string {
	keyStyle := lipgloss.NewStyle().Foreground(colorAccent).Bold(true).Width(10)
	descStyle := lipgloss.NewStyle().Foreground(colorText)

	var sb strings.Builder
	sb.WriteString(titleStyle.Render("Keyboard Shortcuts") + "\n\n")
	for _, b := range keys.bindings() {
		h := b.Help()
		sb.WriteString(keyStyle.Render(h.Key) + descStyle.Render(h.Desc) + "\n")
	}
	sb.WriteString("\n" + helpStyle.Render("Press ? to close"))
	return panelStyle.Render(sb.String())
}
