package client

import (
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"driftchat/internal/protocol"
)

type command struct {
	trigger string
	usage   string
	help    string
	run     func(args []string) tea.Cmd
}

func (a *App) commandTable() []command {
	prefix := a.cfg.CommandPrefix
	return []command{
		{
			trigger: prefix + "delete",
			usage:   prefix + "delete <n>",
			help:    "delete your own message number n",
			run:     a.runDelete,
		},
		{
			trigger: prefix + "help",
			usage:   prefix + "help",
			help:    "list available commands",
			run:     a.runHelp,
		},
		{
			trigger: prefix + "quit",
			usage:   prefix + "quit",
			help:    "disconnect and exit",
			run:     a.runQuit,
		},
	}
}

func (a *App) executeCommand(raw string) tea.Cmd {
	fields := strings.Fields(raw)
	if len(fields) == 0 {
		return nil
	}

	for _, cmd := range a.commands {
		if cmd.trigger == fields[0] {
			return cmd.run(fields[1:])
		}
	}

	a.setLog("unknown command: "+fields[0], true)
	return nil
}

// runDelete resolves the on-screen message number and asks the server to
// delete it. Only the author's own messages qualify; the server enforces the
// same rule regardless of what the client asks for.
func (a *App) runDelete(args []string) tea.Cmd {
	if len(args) != 1 {
		a.setLog("usage: "+a.cfg.CommandPrefix+"delete <n>", true)
		return nil
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n < 1 || n > len(a.messages) {
		a.setLog("no such message number", true)
		return nil
	}

	target := a.messages[n-1]
	if target.UserID != a.selfID {
		a.setLog("you can only delete your own messages", true)
		return nil
	}

	if err := a.session.Send(protocol.EventDeleteMessage, protocol.DeleteMessageRequest{MessageID: target.ID}); err != nil {
		a.setLog("delete failed: "+err.Error(), true)
	}
	return nil
}

func (a *App) runHelp([]string) tea.Cmd {
	var b strings.Builder
	b.WriteString("commands:")
	for _, cmd := range a.commands {
		b.WriteString(" " + cmd.usage)
	}
	a.setLog(b.String(), false)
	return nil
}

func (a *App) runQuit([]string) tea.Cmd {
	a.stopTyping()
	_ = a.session.Close()
	return tea.Quit
}
