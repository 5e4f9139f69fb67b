// Package desktop implements the clipboard, notification, chooser and
// input-prompt collaborators on top of the host's native dialogs.
package desktop

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/atotto/clipboard"
)

var (
	// ErrDismissed means the user closed a dialog without confirming.
	ErrDismissed = errors.New("dialog dismissed")
	// ErrUnsupported means the platform has no native dialogs.
	ErrUnsupported = errors.New("not supported on this platform")
)

// Dialogs shows native dialogs. Cancelled dialogs return ErrDismissed.
type Dialogs interface {
	List(ctx context.Context, title, text string, items []string) (string, error)
	Entry(ctx context.Context, title, text, initial string) (string, error)
	Notify(ctx context.Context, title, text string, urgent bool) error
}

// Clipboard reads the system clipboard.
type Clipboard struct{}

func (Clipboard) ReadAll() (string, error) {
	text, err := clipboard.ReadAll()
	if err != nil {
		return "", fmt.Errorf("read clipboard: %w", err)
	}
	return text, nil
}

// Notifier shows desktop notifications. Every message is also logged so a
// headless run still surfaces it.
type Notifier struct {
	enabled bool
	dialogs Dialogs
	log     *slog.Logger
}

// NewNotifier builds a notifier. A nil dialogs uses Zenity.
func NewNotifier(enabled bool, dialogs Dialogs, log *slog.Logger) *Notifier {
	if dialogs == nil {
		dialogs = Zenity{}
	}
	return &Notifier{
		enabled: enabled,
		dialogs: dialogs,
		log:     log.With(slog.String("component", "notifier")),
	}
}

func (n *Notifier) Info(title, message string) {
	n.log.Info(message, slog.String("title", title))
	n.show(title, message, false)
}

func (n *Notifier) Error(title, message string) {
	n.log.Error(message, slog.String("title", title))
	n.show(title, message, true)
}

func (n *Notifier) show(title, message string, urgent bool) {
	if !n.enabled {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := n.dialogs.Notify(ctx, title, message, urgent); err != nil {
			n.log.Debug("notification failed", slog.String("error", err.Error()))
		}
	}()
}

// Chooser shows a single-choice list dialog.
type Chooser struct {
	dialogs Dialogs
}

// NewChooser builds a chooser. A nil dialogs uses Zenity.
func NewChooser(dialogs Dialogs) *Chooser {
	if dialogs == nil {
		dialogs = Zenity{}
	}
	return &Chooser{dialogs: dialogs}
}

func (c *Chooser) Choose(ctx context.Context, title, prompt string, items []string) (string, bool, error) {
	if len(items) == 0 {
		return "", false, errors.New("nothing to choose from")
	}
	choice, err := c.dialogs.List(ctx, title, prompt, items)
	if err != nil {
		if errors.Is(err, ErrDismissed) {
			return "", false, nil
		}
		return "", false, err
	}
	if strings.TrimSpace(choice) == "" {
		return "", false, nil
	}
	return choice, true, nil
}
