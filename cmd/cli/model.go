package main

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/nstogner/ragchat/pkg/auth"
	"github.com/nstogner/ragchat/pkg/runner"
	"github.com/nstogner/ragchat/pkg/store"
)

const signUpNotice = "Check your email for verification link!"

type screen int

const (
	screenAuth screen = iota
	screenChat
)

// Form fields on the auth screen.
const (
	fieldEmail = iota
	fieldPassword
)

type conversationUpdateMsg struct{}
type loadingMsg bool
type sessionMsg auth.Session
type authResultMsg struct {
	signUp bool
	err    error
}
type submitDoneMsg struct {
	text string
	err  error
}

type modelDeps struct {
	conv        *store.Conversation
	runner      *runner.Runner
	auth        *auth.Manager
	authEnabled bool
	sessions    <-chan auth.Session
}

type model struct {
	ctx context.Context
	modelDeps

	convUpdates    <-chan struct{}
	loadingUpdates <-chan bool

	screen  screen
	session auth.Session
	loading bool
	// notice is a blocking message; any key dismisses it.
	notice string
	width  int
	height int

	// Auth screen
	email    textinput.Model
	password textinput.Model
	focus    int
	signUp   bool
	authBusy bool

	// Chat screen
	viewport viewport.Model
	textarea textarea.Model
	spinner  spinner.Model
	renderer *glamour.TermRenderer
}

func newModel(ctx context.Context, deps modelDeps) model {
	ta := textarea.New()
	ta.Placeholder = "Ask a question..."
	ta.Focus()
	ta.Prompt = "┃ "
	ta.CharLimit = 2000
	ta.SetWidth(80)
	ta.SetHeight(3)
	ta.FocusedStyle.CursorLine = lipgloss.NewStyle()
	ta.ShowLineNumbers = false
	// Enter sends; the textarea must not swallow it as a newline.
	ta.KeyMap.InsertNewline.SetEnabled(false)

	email := textinput.New()
	email.Placeholder = "you@example.com"
	email.Prompt = "Email:    "
	email.CharLimit = 254

	password := textinput.New()
	password.Placeholder = "password"
	password.Prompt = "Password: "
	password.EchoMode = textinput.EchoPassword
	password.EchoCharacter = '•'

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = spinnerStyle

	// Use "light" style to avoid terminal queries that leak into input
	r, _ := glamour.NewTermRenderer(
		glamour.WithStandardStyle("light"),
		glamour.WithWordWrap(80),
	)

	m := model{
		ctx:            ctx,
		modelDeps:      deps,
		convUpdates:    deps.conv.Subscribe(),
		loadingUpdates: deps.runner.Subscribe(),
		session:        deps.auth.Current(),
		screen:         screenChat,
		email:          email,
		password:       password,
		viewport:       viewport.New(80, 20),
		textarea:       ta,
		spinner:        sp,
		renderer:       r,
	}
	if deps.authEnabled && !m.session.Authenticated() {
		m = m.showAuth()
	}
	m.refreshTranscript()
	return m
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		textarea.Blink,
		waitForUpdate(m.convUpdates),
		waitForLoading(m.loadingUpdates),
		waitForSession(m.sessions),
	)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.viewport.Width = msg.Width
		m.textarea.SetWidth(msg.Width)
		m.viewport.Height = msg.Height - m.textarea.Height() - 4 // Header, status and margins
		if m.viewport.Height < 0 {
			m.viewport.Height = 0
		}
		// Recreate renderer with new width
		m.renderer, _ = glamour.NewTermRenderer(
			glamour.WithStandardStyle("light"),
			glamour.WithWordWrap(max(m.width-4, 20)),
		)
		m.refreshTranscript()

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			return m, tea.Quit
		}
		if m.notice != "" {
			m.notice = ""
			return m, nil
		}
		if m.screen == screenAuth {
			return m.updateAuth(msg)
		}
		if msg.Type == tea.KeyEnter {
			return m.submit()
		}

	case conversationUpdateMsg:
		m.refreshTranscript()
		cmds = append(cmds, waitForUpdate(m.convUpdates))

	case loadingMsg:
		m.loading = bool(msg)
		if m.loading {
			cmds = append(cmds, m.spinner.Tick)
		}
		cmds = append(cmds, waitForLoading(m.loadingUpdates))

	case sessionMsg:
		prev := m.session
		m.session = auth.Session(msg)
		slog.Debug("TUI received session change", "authenticated", m.session.Authenticated())
		if prev.Authenticated() && !m.session.Authenticated() && m.authEnabled {
			m = m.showAuth()
		}
		if m.session.Authenticated() && m.screen == screenAuth {
			m = m.showChat()
		}
		cmds = append(cmds, waitForSession(m.sessions))

	case authResultMsg:
		m.authBusy = false
		switch {
		case msg.err != nil:
			m.notice = msg.err.Error()
		case msg.signUp:
			m.notice = signUpNotice
			m.signUp = false
		default:
			m.session = m.auth.Current()
			m = m.showChat()
		}
		return m, nil

	case submitDoneMsg:
		m.loading = m.runner.Loading()
		if errors.Is(msg.err, runner.ErrInFlight) {
			// Give the rejected text back rather than dropping it.
			if strings.TrimSpace(m.textarea.Value()) == "" {
				m.textarea.SetValue(msg.text)
			}
			m.notice = "A question is already being answered. Try again when it finishes."
		} else if msg.err != nil && !errors.Is(msg.err, runner.ErrEmptyMessage) {
			slog.Debug("Submit rejected", "error", msg.err)
		}

	case spinner.TickMsg:
		if m.loading {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			cmds = append(cmds, cmd)
		}
		return m, tea.Batch(cmds...)
	}

	var taCmd, vpCmd tea.Cmd
	if m.screen == screenChat {
		m.textarea, taCmd = m.textarea.Update(msg)
		m.viewport, vpCmd = m.viewport.Update(msg)
	}
	cmds = append(cmds, taCmd, vpCmd)

	return m, tea.Batch(cmds...)
}

func (m model) updateAuth(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.authBusy {
		return m, nil
	}
	switch msg.Type {
	case tea.KeyEsc:
		return m.showChat(), nil
	case tea.KeyTab, tea.KeyShiftTab, tea.KeyUp, tea.KeyDown:
		m.focus = 1 - m.focus
		return m.focusField(), nil
	case tea.KeyCtrlT:
		m.signUp = !m.signUp
		return m, nil
	case tea.KeyEnter:
		email := strings.TrimSpace(m.email.Value())
		password := m.password.Value()
		if email == "" || password == "" {
			m.notice = "Email and password are required."
			return m, nil
		}
		m.authBusy = true
		return m, m.authCmd(email, password, m.signUp)
	}

	var cmd tea.Cmd
	if m.focus == fieldEmail {
		m.email, cmd = m.email.Update(msg)
	} else {
		m.password, cmd = m.password.Update(msg)
	}
	return m, cmd
}

func (m model) submit() (tea.Model, tea.Cmd) {
	v := strings.TrimSpace(m.textarea.Value())
	if v == "" || m.loading {
		return m, nil
	}

	switch v {
	case "/exit":
		return m, tea.Quit
	case "/logout":
		m.textarea.Reset()
		return m, func() tea.Msg {
			m.auth.SignOut(m.ctx)
			return nil
		}
	case "/login":
		m.textarea.Reset()
		if !m.authEnabled {
			m.notice = "Identity provider is not configured. Running in guest-only mode."
			return m, nil
		}
		return m.showAuth(), nil
	}

	// Input stays disabled until the runner reports the outcome, so a
	// second Enter cannot race the first submit.
	m.loading = true
	m.textarea.Reset()
	text := v
	return m, func() tea.Msg {
		_, err := m.runner.Submit(m.ctx, text)
		return submitDoneMsg{text: text, err: err}
	}
}

func (m model) authCmd(email, password string, signUp bool) tea.Cmd {
	return func() tea.Msg {
		var err error
		if signUp {
			err = m.auth.SignUp(m.ctx, email, password)
		} else {
			err = m.auth.SignIn(m.ctx, email, password)
		}
		if err != nil {
			slog.Info("Authentication failed", "signUp", signUp, "error", err)
		}
		return authResultMsg{signUp: signUp, err: err}
	}
}

func (m model) showAuth() model {
	m.screen = screenAuth
	m.focus = fieldEmail
	m.password.Reset()
	m.textarea.Blur()
	return m.focusField()
}

func (m model) showChat() model {
	m.screen = screenChat
	m.email.Blur()
	m.password.Blur()
	m.password.Reset()
	m.textarea.Focus()
	return m
}

func (m model) focusField() model {
	if m.focus == fieldEmail {
		m.email.Focus()
		m.password.Blur()
	} else {
		m.password.Focus()
		m.email.Blur()
	}
	return m
}

func (m *model) refreshTranscript() {
	m.viewport.SetContent(renderTranscript(m.conv.Snapshot(), m.renderer))
	m.viewport.GotoBottom()
}

func waitForUpdate(sub <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		if _, ok := <-sub; !ok {
			return nil
		}
		return conversationUpdateMsg{}
	}
}

func waitForLoading(sub <-chan bool) tea.Cmd {
	return func() tea.Msg {
		v, ok := <-sub
		if !ok {
			return nil
		}
		return loadingMsg(v)
	}
}

func waitForSession(sub <-chan auth.Session) tea.Cmd {
	return func() tea.Msg {
		s, ok := <-sub
		if !ok {
			return nil
		}
		return sessionMsg(s)
	}
}
