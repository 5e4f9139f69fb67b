package hotkeys

import (
	"github.com/loqalabs/loqa-say/internal/settings"
	"golang.design/x/hotkey"
)

// X11 keysym for BackSpace.
const backspaceKey = hotkey.Key(0xff08)

func modifier(name string) (hotkey.Modifier, bool) {
	switch name {
	case settings.ModCtrl:
		return hotkey.ModCtrl, true
	case settings.ModShift:
		return hotkey.ModShift, true
	case settings.ModAlt:
		return hotkey.Mod1, true
	case settings.ModSuper:
		return hotkey.Mod4, true
	}
	return 0, false
}
