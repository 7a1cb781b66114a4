package monitor

import "github.com/charmbracelet/lipgloss"

var (
	colorPrimary   = lipgloss.Color("#25D366") // whatsapp green
	colorSecondary = lipgloss.Color("#128C7E")
	colorAccent    = lipgloss.Color("#F59E0B")
	colorError     = lipgloss.Color("#EF4444")
	colorMuted     = lipgloss.Color("#6B7280")
	colorText      = lipgloss.Color("#E5E7EB")
	colorSubtle    = lipgloss.Color("#9CA3AF")
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorPrimary)

	subtitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorSecondary)

	descriptionStyle = lipgloss.NewStyle().Foreground(colorSubtle)
	selectedStyle    = lipgloss.NewStyle().Foreground(colorPrimary).Bold(true)
	dimmedStyle      = lipgloss.NewStyle().Foreground(colorMuted)
	errorStyle       = lipgloss.NewStyle().Foreground(colorError)
	noticeStyle      = lipgloss.NewStyle().Foreground(colorAccent)
	helpStyle        = lipgloss.NewStyle().Foreground(colorMuted)

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorPrimary).
			Padding(0, 1)

	admittedDot  = lipgloss.NewStyle().Foreground(colorPrimary).Render("●")
	anonymousDot = lipgloss.NewStyle().Foreground(colorMuted).Render("○")
)
