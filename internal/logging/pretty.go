package logging

import (
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

var (
	colorProfileOnce sync.Once

	timeStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	msgStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("252"))
	keyStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("117"))
	valueStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("255"))
	sepStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("238"))
	blockStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("245")).
			Padding(0, 1)
)

func shouldPrettyPrint() bool {
	term := strings.TrimSpace(os.Getenv("TERM"))
	if term == "" || term == "dumb" {
		return false
	}
	return os.Getenv("NO_COLOR") == ""
}

func ensureColorProfile() {
	colorProfileOnce.Do(func() {
		profile := termenv.EnvColorProfile()
		if profile == termenv.Ascii {
			profile = termenv.ANSI256
		}
		lipgloss.SetColorProfile(profile)
	})
}

func levelBadge(level slog.Level) string {
	base := lipgloss.NewStyle().Bold(true).Padding(0, 1)
	switch {
	case level <= slog.LevelDebug:
		return base.Foreground(lipgloss.Color("255")).Background(lipgloss.Color("240")).Render("DEBUG")
	case level <= slog.LevelInfo:
		return base.Foreground(lipgloss.Color("230")).Background(lipgloss.Color("31")).Render("INFO")
	case level <= slog.LevelWarn:
		return base.Foreground(lipgloss.Color("234")).Background(lipgloss.Color("214")).Render("WARN")
	default:
		return base.Foreground(lipgloss.Color("231")).Background(lipgloss.Color("160")).Render("ERROR")
	}
}

// FormatEventANSI renders event with colour badges; JSON fields are boxed on
// their own lines below the message.
func FormatEventANSI(event Event) string {
	ensureColorProfile()
	line := lipgloss.JoinHorizontal(lipgloss.Center,
		timeStyle.Render(event.Time.Format("15:04:05.000")),
		" ",
		levelBadge(event.Level),
		" ",
		msgStyle.Render(event.Message),
	)

	var inline []string
	var blocks []string
	for _, key := range orderedFieldKeys(event.Fields) {
		label := keyStyle.Render(key) + sepStyle.Render("=")
		if pretty, ok := prettyJSON(event.Fields[key]); ok {
			blocks = append(blocks, label+"\n"+blockStyle.Render(pretty))
			continue
		}
		inline = append(inline, label+valueStyle.Render(formatFieldValue(event.Fields[key])))
	}
	if len(inline) > 0 {
		line += "  " + strings.Join(inline, " ")
	}
	for _, block := range blocks {
		line += "\n  " + strings.ReplaceAll(block, "\n", "\n  ")
	}
	return line + "\n"
}
