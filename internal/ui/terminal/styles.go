package terminal

import (
	"github.com/charmbracelet/lipgloss"

	"place-client/internal/notify"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("69"))
	roomStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	infoStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("250"))
	helpStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	linkStyle    = lipgloss.NewStyle().Underline(true).Foreground(lipgloss.Color("39"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	spinnerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("69"))

	statusLiveStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	statusBusyStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	statusErrorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))

	noticeBadgeBase = lipgloss.NewStyle().Bold(true).Padding(0, 1).Foreground(lipgloss.Color("0"))
)

func noticeBadge(kind notify.Kind) string {
	switch kind {
	case notify.Success:
		return noticeBadgeBase.Background(lipgloss.Color("10")).Render("OK")
	case notify.Error:
		return noticeBadgeBase.Background(lipgloss.Color("9")).Render("ERR")
	default:
		return noticeBadgeBase.Background(lipgloss.Color("12")).Render("INFO")
	}
}
