package hotkeys

import (
	"github.com/loqalabs/loqa-say/internal/settings"
	"golang.design/x/hotkey"
)

// VK_BACK
const backspaceKey = hotkey.Key(0x08)

func modifier(name string) (hotkey.Modifier, bool) {
	switch name {
	case settings.ModCtrl:
		return hotkey.ModCtrl, true
	case settings.ModShift:
		return hotkey.ModShift, true
	case settings.ModAlt:
		return hotkey.ModAlt, true
	case settings.ModSuper:
		return hotkey.ModWin, true
	}
	return 0, false
}
