package hotkeys

import (
	"fmt"

	"github.com/loqalabs/loqa-say/internal/settings"
	"golang.design/x/hotkey"
)

var namedKeys = map[string]hotkey.Key{
	"space":  hotkey.KeySpace,
	"enter":  hotkey.KeyReturn,
	"escape": hotkey.KeyEscape,
	"tab":    hotkey.KeyTab,
	"delete": hotkey.KeyDelete,
	"left":   hotkey.KeyLeft,
	"right":  hotkey.KeyRight,
	"up":     hotkey.KeyUp,
	"down":   hotkey.KeyDown,
	"a":      hotkey.KeyA, "b": hotkey.KeyB, "c": hotkey.KeyC, "d": hotkey.KeyD,
	"e": hotkey.KeyE, "f": hotkey.KeyF, "g": hotkey.KeyG, "h": hotkey.KeyH,
	"i": hotkey.KeyI, "j": hotkey.KeyJ, "k": hotkey.KeyK, "l": hotkey.KeyL,
	"m": hotkey.KeyM, "n": hotkey.KeyN, "o": hotkey.KeyO, "p": hotkey.KeyP,
	"q": hotkey.KeyQ, "r": hotkey.KeyR, "s": hotkey.KeyS, "t": hotkey.KeyT,
	"u": hotkey.KeyU, "v": hotkey.KeyV, "w": hotkey.KeyW, "x": hotkey.KeyX,
	"y": hotkey.KeyY, "z": hotkey.KeyZ,
	"0": hotkey.Key0, "1": hotkey.Key1, "2": hotkey.Key2, "3": hotkey.Key3,
	"4": hotkey.Key4, "5": hotkey.Key5, "6": hotkey.Key6, "7": hotkey.Key7,
	"8": hotkey.Key8, "9": hotkey.Key9,
	"f1": hotkey.KeyF1, "f2": hotkey.KeyF2, "f3": hotkey.KeyF3, "f4": hotkey.KeyF4,
	"f5": hotkey.KeyF5, "f6": hotkey.KeyF6, "f7": hotkey.KeyF7, "f8": hotkey.KeyF8,
	"f9": hotkey.KeyF9, "f10": hotkey.KeyF10, "f11": hotkey.KeyF11, "f12": hotkey.KeyF12,
}

func lookupKey(name string) (hotkey.Key, bool) {
	if name == "backspace" {
		return backspaceKey, true
	}
	k, ok := namedKeys[name]
	return k, ok
}

// translate maps a chord string to the platform's modifier and key codes.
func translate(chord string) ([]hotkey.Modifier, hotkey.Key, error) {
	parsed, err := settings.ParseChord(chord)
	if err != nil {
		return nil, 0, err
	}
	mods := make([]hotkey.Modifier, 0, len(parsed.Modifiers))
	for _, name := range parsed.Modifiers {
		mod, ok := modifier(name)
		if !ok {
			return nil, 0, fmt.Errorf("unsupported modifier %q", name)
		}
		mods = append(mods, mod)
	}
	key, ok := lookupKey(parsed.Key)
	if !ok {
		return nil, 0, fmt.Errorf("unsupported key %q", parsed.Key)
	}
	return mods, key, nil
}
