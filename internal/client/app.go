package client

import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"driftchat/internal/config"
	"driftchat/internal/protocol"
)

const typingIdle = 2 * time.Second

// App implements the bubbletea tea.Model interface for the terminal client.
type App struct {
	cfg     config.ClientConfig
	session *Session

	phase    phase
	focus    int
	username textinput.Model
	password textinput.Model
	input    textinput.Model
	viewport viewport.Model
	width    int
	height   int
	styles   styles
	commands []command

	token    string
	selfID   string
	selfName string

	messages []protocol.ChatMessage
	typing   map[string]struct{}

	typingActive  bool
	lastKeystroke time.Time

	logLine string
	logErr  bool
}

type phase int

const (
	phaseLogin phase = iota
	phaseChat
)

// Bubble Tea messages produced by session commands.
type authResultMsg struct {
	result AuthResult
	err    error
}

type connectedMsg struct{ err error }

type historyMsg struct {
	messages []protocol.ChatMessage
	err      error
}

type envelopeMsg struct {
	env protocol.Envelope
	ok  bool
}

type typingTickMsg time.Time

// NewApp returns a Bubble Tea model pre-populated with defaults.
func NewApp(cfg config.ClientConfig) tea.Model {
	username := textinput.New()
	username.Placeholder = "username"
	username.CharLimit = 32
	username.Focus()

	password := textinput.New()
	password.Placeholder = "password"
	password.EchoMode = textinput.EchoPassword
	password.CharLimit = 72

	input := textinput.New()
	input.Placeholder = "Type a message, or " + cfg.CommandPrefix + "help"
	input.CharLimit = 1024

	app := &App{
		cfg:      cfg,
		session:  NewSession(cfg),
		phase:    phaseLogin,
		username: username,
		password: password,
		input:    input,
		viewport: viewport.New(0, 0),
		styles:   newStyles(),
		typing:   make(map[string]struct{}),
	}
	app.commands = app.commandTable()
	return app
}

// Init is part of the tea.Model interface.
func (a *App) Init() tea.Cmd {
	return textinput.Blink
}

// Update handles user input and session events.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch m := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = m.Width
		a.height = m.Height
		a.resize()
		return a, nil
	case tea.KeyMsg:
		return a.handleKey(m)
	case authResultMsg:
		return a.handleAuthResult(m)
	case connectedMsg:
		return a.handleConnected(m)
	case historyMsg:
		return a.handleHistory(m)
	case envelopeMsg:
		return a.handleEnvelope(m)
	case typingTickMsg:
		return a.handleTypingTick()
	default:
		var cmd tea.Cmd
		a.viewport, cmd = a.viewport.Update(msg)
		return a, cmd
	}
}

func (a *App) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.Type == tea.KeyCtrlC {
		_ = a.session.Close()
		return a, tea.Quit
	}
	if a.phase == phaseLogin {
		return a.handleLoginKey(msg)
	}
	return a.handleChatKey(msg)
}

func (a *App) handleLoginKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyTab, tea.KeyShiftTab, tea.KeyUp, tea.KeyDown:
		a.focus = (a.focus + 1) % 2
		if a.focus == 0 {
			a.username.Focus()
			a.password.Blur()
		} else {
			a.username.Blur()
			a.password.Focus()
		}
		return a, nil
	case tea.KeyEnter:
		return a, a.submitAuth(false)
	case tea.KeyCtrlR:
		return a, a.submitAuth(true)
	}

	var cmd tea.Cmd
	if a.focus == 0 {
		a.username, cmd = a.username.Update(msg)
	} else {
		a.password, cmd = a.password.Update(msg)
	}
	return a, cmd
}

func (a *App) handleChatKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEnter:
		return a.handleSubmit()
	case tea.KeyPgUp:
		a.viewport.LineUp(a.viewport.Height)
		return a, nil
	case tea.KeyPgDown:
		a.viewport.LineDown(a.viewport.Height)
		return a, nil
	}

	var cmd tea.Cmd
	a.input, cmd = a.input.Update(msg)

	cmds := []tea.Cmd{cmd}
	if typingCmd := a.noteKeystroke(); typingCmd != nil {
		cmds = append(cmds, typingCmd)
	}
	return a, tea.Batch(cmds...)
}

func (a *App) handleSubmit() (tea.Model, tea.Cmd) {
	raw := strings.TrimSpace(a.input.Value())
	a.input.Reset()
	if raw == "" {
		return a, nil
	}

	if strings.HasPrefix(raw, a.cfg.CommandPrefix) {
		return a, a.executeCommand(raw)
	}

	a.stopTyping()
	if err := a.session.Send(protocol.EventChatMessage, protocol.ChatMessageRequest{Text: raw}); err != nil {
		a.setLog("send failed: "+err.Error(), true)
	}
	return a, nil
}

// noteKeystroke drives the typing indicator: the first keystroke of a burst
// emits typing-started, and an idle timer emits typing-stopped.
func (a *App) noteKeystroke() tea.Cmd {
	a.lastKeystroke = time.Now()
	if a.typingActive || a.input.Value() == "" {
		return nil
	}
	a.typingActive = true
	_ = a.session.Send(protocol.EventTypingStarted, nil)
	return a.typingTick()
}

func (a *App) handleTypingTick() (tea.Model, tea.Cmd) {
	if !a.typingActive {
		return a, nil
	}
	if time.Since(a.lastKeystroke) >= typingIdle {
		a.stopTyping()
		return a, nil
	}
	return a, a.typingTick()
}

func (a *App) typingTick() tea.Cmd {
	return tea.Tick(500*time.Millisecond, func(t time.Time) tea.Msg {
		return typingTickMsg(t)
	})
}

func (a *App) stopTyping() {
	if !a.typingActive {
		return
	}
	a.typingActive = false
	_ = a.session.Send(protocol.EventTypingStopped, nil)
}

func (a *App) submitAuth(register bool) tea.Cmd {
	username := strings.TrimSpace(a.username.Value())
	password := a.password.Value()
	if username == "" || password == "" {
		a.setLog("username and password required", true)
		return nil
	}

	session := a.session
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		var (
			result AuthResult
			err    error
		)
		if register {
			result, err = session.Register(ctx, username, password)
		} else {
			result, err = session.Login(ctx, username, password)
		}
		return authResultMsg{result: result, err: err}
	}
}

func (a *App) handleAuthResult(msg authResultMsg) (tea.Model, tea.Cmd) {
	if msg.err != nil {
		a.setLog(msg.err.Error(), true)
		return a, nil
	}

	a.token = msg.result.Token
	a.selfID = msg.result.User.ID
	a.selfName = msg.result.User.Username
	a.setLog("signed in as "+a.selfName, false)

	session := a.session
	token := a.token
	return a, func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return connectedMsg{err: session.Connect(ctx, token)}
	}
}

func (a *App) handleConnected(msg connectedMsg) (tea.Model, tea.Cmd) {
	if msg.err != nil {
		a.setLog("connect failed: "+msg.err.Error(), true)
		return a, nil
	}

	a.phase = phaseChat
	a.input.Focus()
	a.resize()

	session := a.session
	token := a.token
	fetchHistory := func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		messages, err := session.History(ctx, token)
		return historyMsg{messages: messages, err: err}
	}
	return a, tea.Batch(fetchHistory, a.waitForEnvelope())
}

func (a *App) handleHistory(msg historyMsg) (tea.Model, tea.Cmd) {
	if msg.err != nil {
		a.setLog("history unavailable: "+msg.err.Error(), true)
		return a, nil
	}
	// The backlog precedes anything received live; keep live frames that
	// raced ahead of the fetch.
	a.messages = append(msg.messages, a.messages...)
	a.refreshViewport()
	return a, nil
}

func (a *App) waitForEnvelope() tea.Cmd {
	envelopes := a.session.Envelopes()
	return func() tea.Msg {
		env, ok := <-envelopes
		return envelopeMsg{env: env, ok: ok}
	}
}

func (a *App) setLog(line string, isErr bool) {
	a.logLine = line
	a.logErr = isErr
}
