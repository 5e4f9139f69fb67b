package hotkeys

import (
	"github.com/loqalabs/loqa-say/internal/settings"
	"golang.design/x/hotkey"
)

// Carbon's "Delete" is the backspace key on Mac keyboards.
const backspaceKey = hotkey.KeyDelete

func modifier(name string) (hotkey.Modifier, bool) {
	switch name {
	case settings.ModCtrl:
		return hotkey.ModCtrl, true
	case settings.ModShift:
		return hotkey.ModShift, true
	case settings.ModAlt:
		return hotkey.ModOption, true
	case settings.ModSuper:
		return hotkey.ModCmd, true
	}
	return 0, false
}
