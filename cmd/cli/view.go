package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/nstogner/ragchat/pkg/store"
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5")).
			Background(lipgloss.Color("#25A065")).
			Padding(0, 1)

	identityStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))

	senderStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("5")).
			Bold(true)

	userStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("2")).
			Bold(true)

	messageStyle    = lipgloss.NewStyle().PaddingLeft(2)
	attachmentStyle = lipgloss.NewStyle().PaddingLeft(2).Foreground(lipgloss.Color("6"))
	spinnerStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
	helpStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))

	noticeStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("9")).
			Padding(0, 1)
)

func (m model) View() string {
	if m.screen == screenAuth {
		return m.authView()
	}

	status := ""
	if m.loading {
		status = m.spinner.View() + " Thinking..."
	}

	return lipgloss.JoinVertical(
		lipgloss.Left,
		m.header(),
		m.viewport.View(),
		status,
		m.noticeView(),
		m.textarea.View(),
	)
}

func (m model) header() string {
	who := "guest"
	if m.session.Authenticated() && m.session.Email != "" {
		who = m.session.Email
	}
	return titleStyle.Render("RAG Chat") + " " + identityStyle.Render(who)
}

func (m model) authView() string {
	title := "Sign in"
	toggle := "Ctrl+T to create an account"
	if m.signUp {
		title = "Sign up"
		toggle = "Ctrl+T to sign in instead"
	}

	status := ""
	if m.authBusy {
		status = "Contacting identity provider..."
	}

	return lipgloss.JoinVertical(
		lipgloss.Left,
		titleStyle.Render(title),
		"",
		m.email.View(),
		m.password.View(),
		"",
		helpStyle.Render("Enter to submit, Tab to switch field, "+toggle+", Esc to continue as guest."),
		status,
		m.noticeView(),
	)
}

func (m model) noticeView() string {
	if m.notice == "" {
		return ""
	}
	return noticeStyle.Render(m.notice + "\n" + helpStyle.Render("Press any key to continue."))
}

// renderTranscript renders the conversation oldest first. Assistant replies
// are markdown; user input is shown as typed.
func renderTranscript(msgs []store.Message, r *glamour.TermRenderer) string {
	if len(msgs) == 0 {
		return helpStyle.Render("Ask a question to get started.")
	}

	var sb strings.Builder
	for _, msg := range msgs {
		switch msg.Role {
		case store.RoleUser:
			sb.WriteString(userStyle.Render("You: "))
			sb.WriteString("\n")
			sb.WriteString(messageStyle.Render(msg.Content))
			sb.WriteString("\n")
		case store.RoleAssistant:
			sb.WriteString(senderStyle.Render("Assistant: "))
			sb.WriteString("\n")
			sb.WriteString(renderMarkdown(r, msg.Content))
			for _, a := range msg.Attachments {
				if line, ok := attachmentLine(a); ok {
					sb.WriteString(attachmentStyle.Render(line))
					sb.WriteString("\n")
				}
			}
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func renderMarkdown(r *glamour.TermRenderer, content string) string {
	if r == nil {
		return messageStyle.Render(content) + "\n"
	}
	out, err := r.Render(content)
	if err != nil {
		return messageStyle.Render(content) + "\n"
	}
	return out
}

// attachmentLine formats a as "[image] <title> (<seriesId>) <source>".
// Unknown attachment types render nothing.
func attachmentLine(a store.Attachment) (string, bool) {
	if !a.Known() {
		return "", false
	}
	parts := []string{fmt.Sprintf("[%s]", a.Type)}
	if a.Title != "" {
		parts = append(parts, a.Title)
	}
	if a.SeriesID != "" {
		parts = append(parts, "("+a.SeriesID+")")
	}
	parts = append(parts, a.Source)
	return strings.Join(parts, " "), true
}
