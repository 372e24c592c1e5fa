package main

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/Keyring-Network/keyring-gavryn/research-console/internal/session"
	"github.com/Keyring-Network/keyring-gavryn/research-console/internal/timeline"
)

// renderConversation lays out every message in order. Agent messages carry
// the research activity archived for them; the live timeline trails the
// conversation while a turn is streaming.
func renderConversation(snapshot session.Snapshot, theme uiTheme, width int) string {
	if len(snapshot.Messages) == 0 && len(snapshot.Live) == 0 {
		return theme.helpText.Render("No messages yet. Ask something to start researching.")
	}
	body := lipgloss.NewStyle().Width(width)
	var b strings.Builder
	for _, msg := range snapshot.Messages {
		switch msg.Role {
		case timeline.RoleHuman:
			b.WriteString(theme.human.Render("You"))
		default:
			b.WriteString(theme.agent.Render("Agent"))
			if entries := snapshot.Archive[msg.ID]; len(entries) > 0 {
				b.WriteString("\n")
				b.WriteString(renderEntries(entries, theme, width))
			}
		}
		b.WriteString("\n")
		b.WriteString(body.Render(msg.Content))
		b.WriteString("\n\n")
	}
	if snapshot.Loading {
		b.WriteString(theme.status.Render("Research in progress"))
		b.WriteString("\n")
		if len(snapshot.Live) == 0 {
			b.WriteString(theme.helpText.Render("  waiting for the first step..."))
		} else {
			b.WriteString(renderEntries(snapshot.Live, theme, width))
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderEntries(entries []timeline.Entry, theme uiTheme, width int) string {
	summary := lipgloss.NewStyle().Width(maxInt(10, width-4)).PaddingLeft(4)
	lines := make([]string, 0, len(entries)*2)
	for _, entry := range entries {
		lines = append(lines, "  • "+theme.entryTitle.Render(entry.Title))
		if strings.TrimSpace(entry.Summary) != "" {
			lines = append(lines, summary.Render(theme.entryBody.Render(entry.Summary)))
		}
	}
	return strings.Join(lines, "\n")
}
