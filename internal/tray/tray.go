// Package tray shows the system tray menu and turns clicks into dispatch
// requests.
package tray

import (
	"context"
	"log/slog"
	"sync"

	"fyne.io/systray"
	"github.com/loqalabs/loqa-say/internal/dispatch"
)

type menuEntry struct {
	title     string
	tooltip   string
	command   dispatch.Command
	separator bool
}

func menu() []menuEntry {
	return []menuEntry{
		{title: "Speak clipboard", tooltip: "Read the clipboard aloud", command: dispatch.SpeakClipboard},
		{title: "Open input box", tooltip: "Type text to speak", command: dispatch.ToggleInputSurface},
		{title: "Stop", tooltip: "Stop speaking", command: dispatch.Stop},
		{separator: true},
		{title: "Choose audio device", tooltip: "Select the output device", command: dispatch.ChooseDevice},
		{title: "Choose voice", tooltip: "Select the voice model", command: dispatch.ChooseVoice},
		{title: "Quit", tooltip: "Quit Loqa Say", command: dispatch.Quit},
	}
}

// Tray owns the menu. Run must be called from the main goroutine.
type Tray struct {
	title   string
	enqueue func(dispatch.Request) error
	log     *slog.Logger

	mu      sync.Mutex
	running bool
	stopped bool
	done    chan struct{}
}

func New(title string, enqueue func(dispatch.Request) error, log *slog.Logger) *Tray {
	return &Tray{
		title:   title,
		enqueue: enqueue,
		log:     log.With(slog.String("component", "tray")),
		done:    make(chan struct{}),
	}
}

// Run blocks until Stop is called. onReady runs once the menu is shown.
func (t *Tray) Run(onReady func()) {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	t.running = true
	t.mu.Unlock()

	systray.Run(func() {
		systray.SetIcon(Icon())
		systray.SetTooltip(t.title)
		for _, entry := range menu() {
			if entry.separator {
				systray.AddSeparator()
				continue
			}
			item := systray.AddMenuItem(entry.title, entry.tooltip)
			go t.forward(item, entry.command)
		}
		t.log.Info("tray ready")
		if onReady != nil {
			onReady()
		}
	}, func() {
		close(t.done)
		t.log.Info("tray closed")
	})
}

func (t *Tray) forward(item *systray.MenuItem, cmd dispatch.Command) {
	for {
		select {
		case <-t.done:
			return
		case <-item.ClickedCh:
			if err := t.enqueue(dispatch.Request{Command: cmd, Source: dispatch.SourceTray}); err != nil {
				t.log.Warn("dropped tray command", slog.String("command", string(cmd)), slog.String("error", err.Error()))
			}
		}
	}
}

// SetStatus shows text in the tray tooltip.
func (t *Tray) SetStatus(text string) {
	t.mu.Lock()
	running := t.running && !t.stopped
	t.mu.Unlock()
	if !running {
		return
	}
	if text == "" {
		systray.SetTooltip(t.title)
		return
	}
	systray.SetTooltip(t.title + ": " + text)
}

// Stop ends Run. Safe to call more than once and before Run.
func (t *Tray) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return
	}
	t.stopped = true
	if t.running {
		systray.Quit()
	}
}

// Record mirrors the speaking state in the tooltip.
func (t *Tray) Record(_ context.Context, u dispatch.Utterance) {
	if u.Status == dispatch.StatusStarted {
		t.SetStatus("speaking")
		return
	}
	t.SetStatus("")
}
