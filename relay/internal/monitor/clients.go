package monitor

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/jsjperu/wha-relay/pkg/relayclient"
)

const anonymousLabel = "Anónimo"

type clientsTable struct {
	items  []relayclient.ClientInfo
	cursor int
}

func (c *clientsTable) update(items []relayclient.ClientInfo) {
	// Keep the cursor on the same connection across refreshes.
	var selected string
	if cur, ok := c.selected(); ok {
		selected = cur.ID
	}
	c.items = items
	c.cursor = 0
	for i, it := range items {
		if it.ID == selected {
			c.cursor = i
			break
		}
	}
}

func (c clientsTable) selected() (relayclient.ClientInfo, bool) {
	if c.cursor < 0 || c.cursor >= len(c.items) {
		return relayclient.ClientInfo{}, false
	}
	return c.items[c.cursor], true
}

func (c *clientsTable) move(delta int) {
	c.cursor = min(max(c.cursor+delta, 0), max(len(c.items)-1, 0))
}

func (c clientsTable) admitted() int {
	n := 0
	for _, it := range c.items {
		if it.RUC != anonymousLabel {
			n++
		}
	}
	return n
}

func (c clientsTable) View(now time.Time) string {
	if len(c.items) == 0 {
		return dimmedStyle.Render("  No connected clients")
	}

	headerStyle := lipgloss.NewStyle().Foreground(colorSubtle).Bold(true)
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("    %-14s %-38s %-18s %-8s %s\n",
		headerStyle.Render("RUC"),
		headerStyle.Render("CONNECTION"),
		headerStyle.Render("ADDRESS"),
		headerStyle.Render("AGE"),
		headerStyle.Render("STATUS"),
	))

	for i, it := range c.items {
		cursor := "  "
		style := lipgloss.NewStyle().Foreground(colorText)
		if i == c.cursor {
			cursor = selectedStyle.Render("> ")
			style = style.Bold(true)
		}
		dot := admittedDot
		if it.RUC == anonymousLabel {
			dot = anonymousDot
		}
		sb.WriteString(fmt.Sprintf("%s%s %-14s %-38s %-18s %-8s %s\n",
			cursor, dot,
			style.Render(it.RUC),
			style.Render(it.ID),
			style.Render(it.Address),
			style.Render(formatAge(now, it.ConnectedAt)),
			descriptionStyle.Render(truncate(string(it.Status), 40)),
		))
	}
	return sb.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}

func formatAge(now, t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	default:
		return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
	}
}
