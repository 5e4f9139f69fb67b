package desktop

import (
	"context"
	"errors"

	"github.com/ncruces/zenity"
)

// Zenity shows dialogs through zenity on Linux, AppleScript on macOS and
// the Win32 API on Windows.
type Zenity struct{}

func (Zenity) List(ctx context.Context, title, text string, items []string) (string, error) {
	choice, err := zenity.List(text, items,
		zenity.Title(title),
		zenity.Context(ctx),
		zenity.DisallowEmpty(),
	)
	return choice, dialogError(err)
}

func (Zenity) Entry(ctx context.Context, title, text, initial string) (string, error) {
	entered, err := zenity.Entry(text,
		zenity.Title(title),
		zenity.EntryText(initial),
		zenity.Context(ctx),
	)
	return entered, dialogError(err)
}

func (Zenity) Notify(ctx context.Context, title, text string, urgent bool) error {
	icon := zenity.InfoIcon
	if urgent {
		icon = zenity.ErrorIcon
	}
	return dialogError(zenity.Notify(text, zenity.Title(title), icon, zenity.Context(ctx)))
}

func dialogError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, zenity.ErrCanceled):
		return ErrDismissed
	case errors.Is(err, zenity.ErrUnsupported):
		return ErrUnsupported
	}
	return err
}
