package dispatch

import (
	"fmt"
	"strings"
)

// Command is a dispatch token.
type Command string

const (
	SpeakClipboard     Command = "speak-clipboard"
	SpeakText          Command = "speak-text"
	ToggleInputSurface Command = "toggle-input-surface"
	Stop               Command = "stop"
	ChooseDevice       Command = "choose-device"
	ChooseVoice        Command = "choose-voice"
	SurfaceSubmit      Command = "input-surface-submit"
	SurfaceCancel      Command = "input-surface-cancel"
	Quit               Command = "quit"
)

var commands = map[Command]struct{}{
	SpeakClipboard:     {},
	SpeakText:          {},
	ToggleInputSurface: {},
	Stop:               {},
	ChooseDevice:       {},
	ChooseVoice:        {},
	SurfaceSubmit:      {},
	SurfaceCancel:      {},
	Quit:               {},
}

// Commands lists every known token in a stable order.
func Commands() []Command {
	return []Command{
		SpeakClipboard, SpeakText, ToggleInputSurface, Stop,
		ChooseDevice, ChooseVoice, SurfaceSubmit, SurfaceCancel, Quit,
	}
}

// ParseCommand validates a token received from an external source.
func ParseCommand(token string) (Command, error) {
	cmd := Command(strings.ToLower(strings.TrimSpace(token)))
	if _, ok := commands[cmd]; !ok {
		return "", fmt.Errorf("unknown command %q", token)
	}
	return cmd, nil
}

// Origins of a request.
const (
	SourceHotkey  = "hotkey"
	SourceTray    = "tray"
	SourceSurface = "surface"
	SourceBus     = "bus"
	SourceHTTP    = "http"
)

// Request is one unit of work for the dispatch loop.
type Request struct {
	Command Command
	Arg     string
	Source  string
}
