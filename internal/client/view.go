package client

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	figure "github.com/common-nighthawk/go-figure"
	"github.com/mattn/go-runewidth"
)

type styles struct {
	banner   lipgloss.Style
	label    lipgloss.Style
	self     lipgloss.Style
	other    lipgloss.Style
	meta     lipgloss.Style
	typing   lipgloss.Style
	logInfo  lipgloss.Style
	logError lipgloss.Style
	help     lipgloss.Style
}

func newStyles() styles {
	base := lipgloss.NewStyle()
	return styles{
		banner:   base.Foreground(lipgloss.Color("13")).Bold(true),
		label:    base.Foreground(lipgloss.Color("8")),
		self:     base.Foreground(lipgloss.Color("14")).Bold(true),
		other:    base.Foreground(lipgloss.Color("10")).Bold(true),
		meta:     base.Foreground(lipgloss.Color("8")),
		typing:   base.Foreground(lipgloss.Color("11")).Italic(true),
		logInfo:  base.Foreground(lipgloss.Color("7")),
		logError: base.Foreground(lipgloss.Color("9")),
		help:     base.Foreground(lipgloss.Color("12")),
	}
}

var banner = figure.NewFigure("DriftChat", "", true).String()

// View renders either the login screen or the chat screen.
func (a *App) View() string {
	if a.phase == phaseLogin {
		return a.loginView()
	}
	return a.chatView()
}

func (a *App) loginView() string {
	var b strings.Builder
	b.WriteString(a.styles.banner.Render(banner))
	b.WriteString("\n\n")
	b.WriteString(a.styles.label.Render("username") + "\n")
	b.WriteString(a.username.View() + "\n\n")
	b.WriteString(a.styles.label.Render("password") + "\n")
	b.WriteString(a.password.View() + "\n\n")
	b.WriteString(a.styles.help.Render("enter: sign in · ctrl+r: register · ctrl+c: quit"))
	b.WriteString("\n")
	b.WriteString(a.logLineView())
	return b.String()
}

func (a *App) chatView() string {
	var b strings.Builder
	b.WriteString(a.viewport.View())
	b.WriteString("\n")
	b.WriteString(a.typingLine())
	b.WriteString("\n")
	b.WriteString(a.input.View())
	b.WriteString("\n")
	b.WriteString(a.logLineView())
	return b.String()
}

func (a *App) typingLine() string {
	if len(a.typing) == 0 {
		return ""
	}
	names := make([]string, 0, len(a.typing))
	for name := range a.typing {
		names = append(names, name)
	}
	sort.Strings(names)
	if len(names) == 1 {
		return a.styles.typing.Render(names[0] + " is typing…")
	}
	return a.styles.typing.Render(strings.Join(names, ", ") + " are typing…")
}

func (a *App) logLineView() string {
	if a.logLine == "" {
		return ""
	}
	if a.logErr {
		return a.styles.logError.Render(a.logLine)
	}
	return a.styles.logInfo.Render(a.logLine)
}

func (a *App) resize() {
	if a.height == 0 {
		return
	}
	// Typing line, input, and log line sit below the viewport.
	const fixed = 3
	height := a.height - fixed
	if height < 3 {
		height = 3
	}
	a.viewport.Height = height
	a.viewport.Width = a.width
	a.refreshViewport()
}

func (a *App) refreshViewport() {
	width := a.viewport.Width
	if width <= 0 {
		width = 80
	}

	if len(a.messages) == 0 {
		a.viewport.SetContent("No messages yet. Type and press Enter to send.")
		return
	}

	lines := make([]string, 0, len(a.messages))
	for i, m := range a.messages {
		nameStyle := a.styles.other
		if m.UserID == a.selfID {
			nameStyle = a.styles.self
		}
		header := fmt.Sprintf("%s %s",
			a.styles.meta.Render(fmt.Sprintf("[%d] %s", i+1, m.Timestamp.Local().Format("15:04"))),
			nameStyle.Render(m.Username))
		lines = append(lines, header)
		lines = append(lines, wrapLine(m.Text, width)...)
	}
	a.viewport.SetContent(strings.Join(lines, "\n"))
	a.viewport.GotoBottom()
}

// wrapLine splits text on display width so wide runes do not overflow the
// viewport.
func wrapLine(text string, width int) []string {
	if width <= 0 {
		return []string{text}
	}

	var lines []string
	var b strings.Builder
	lineWidth := 0
	for _, r := range text {
		rw := runewidth.RuneWidth(r)
		if r == '\n' || lineWidth+rw > width {
			lines = append(lines, b.String())
			b.Reset()
			lineWidth = 0
			if r == '\n' {
				continue
			}
		}
		b.WriteRune(r)
		lineWidth += rw
	}
	if b.Len() > 0 {
		lines = append(lines, b.String())
	}
	if len(lines) == 0 {
		lines = []string{""}
	}
	return lines
}
