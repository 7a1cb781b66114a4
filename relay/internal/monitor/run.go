package monitor

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// Run shows the dashboard until the operator quits.
func Run(src Source, target string, interval time.Duration) error {
	p := tea.NewProgram(NewModel(src, target, interval), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("monitor: %w", err)
	}
	return nil
}
