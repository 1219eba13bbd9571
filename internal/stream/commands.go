package stream

import (
	"bufio"
	"context"
	"io"
	"strings"
)

// Command is a user control action.
type Command int

const (
	CmdNone Command = iota
	CmdQuit
	CmdTogglePause
	CmdScreenshot
)

func (c Command) String() string {
	switch c {
	case CmdQuit:
		return "quit"
	case CmdTogglePause:
		return "pause"
	case CmdScreenshot:
		return "screenshot"
	default:
		return "none"
	}
}

// ParseKey maps a key code to a command: q quits, p toggles pause, s saves a screenshot.
func ParseKey(key int) Command {
	switch key {
	case 'q', 'Q', 27: // 27 = Esc
		return CmdQuit
	case 'p', 'P', ' ':
		return CmdTogglePause
	case 's', 'S':
		return CmdScreenshot
	default:
		return CmdNone
	}
}

// ParseCommand maps a command name (as used by the preview API) or a single key to a command.
func ParseCommand(s string) Command {
	s = strings.TrimSpace(strings.ToLower(s))
	switch s {
	case "quit", "exit":
		return CmdQuit
	case "pause", "resume", "toggle":
		return CmdTogglePause
	case "screenshot", "snap":
		return CmdScreenshot
	}
	if len(s) == 1 {
		return ParseKey(int(s[0]))
	}
	return CmdNone
}

// ReadCommands reads lines from r (typically stdin) and sends the parsed
// commands to out until r is exhausted or ctx is done.
func ReadCommands(ctx context.Context, r io.Reader, out chan<- Command) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		cmd := ParseCommand(scanner.Text())
		if cmd == CmdNone {
			continue
		}
		select {
		case out <- cmd:
		case <-ctx.Done():
			return
		}
	}
}
