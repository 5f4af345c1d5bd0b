package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/zhouzirui/os1/backend/internal/model/settings"
	"github.com/zhouzirui/os1/backend/internal/model/transcript"
)

var (
	timestampStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	systemStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243")).
			Italic(true)

	userStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")).
			Bold(true)

	agentStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("135")).
			Bold(true)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212")).
			MarginBottom(1)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243")).
			Width(12)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))
)

func speakerStyle(s transcript.Speaker) lipgloss.Style {
	switch s {
	case transcript.User:
		return userStyle
	case transcript.Agent:
		return agentStyle
	default:
		return systemStyle
	}
}

// renderEvent 渲染一条记录，格式与控制台一致。
func renderEvent(ev transcript.Event) string {
	ts := timestampStyle.Render("[" + ev.Timestamp.Local().Format("15:04:05") + "]")
	style := speakerStyle(ev.Speaker)
	text := ev.Text
	if ev.Speaker == transcript.System && strings.HasPrefix(text, "Error") {
		style = errorStyle
	}
	return fmt.Sprintf("%s %s %s", ts, style.Render(string(ev.Speaker)+":"), text)
}

func renderStatus(st settings.Status) string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("Configuration"))
	b.WriteString("\n")
	row := func(label, value string) {
		b.WriteString(labelStyle.Render(label))
		b.WriteString(value)
		b.WriteString("\n")
	}
	row("Phone:", st.Phone)
	row("Knowledge:", st.Knowledge)
	if st.SavedAt != "" {
		row("Saved:", st.SavedAt)
	} else if !st.Saved {
		row("Saved:", "never")
	}
	return b.String()
}
