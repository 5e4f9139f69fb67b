package settings

import (
	"fmt"
	"strings"
)

// NormalizeHotkey lowercases a chord, maps the French "espace" to "space" and
// trims surrounding whitespace.
func NormalizeHotkey(chord string) string {
	if chord == "" {
		return chord
	}
	return strings.TrimSpace(strings.ReplaceAll(strings.ToLower(chord), "espace", "space"))
}

// Modifier names understood by ParseChord.
const (
	ModCtrl  = "ctrl"
	ModShift = "shift"
	ModAlt   = "alt"
	ModSuper = "super"
)

var modifierAliases = map[string]string{
	"ctrl":    ModCtrl,
	"control": ModCtrl,
	"shift":   ModShift,
	"alt":     ModAlt,
	"option":  ModAlt,
	"opt":     ModAlt,
	"super":   ModSuper,
	"cmd":     ModSuper,
	"command": ModSuper,
	"win":     ModSuper,
	"windows": ModSuper,
	"meta":    ModSuper,
}

var keyAliases = map[string]string{
	"return": "enter",
	"esc":    "escape",
	"del":    "delete",
	"bksp":   "backspace",
	"spc":    "space",
}

// Chord is a parsed keychord: zero or more modifiers and one key.
type Chord struct {
	Modifiers []string
	Key       string
}

func (c Chord) String() string {
	parts := append(append([]string{}, c.Modifiers...), c.Key)
	return strings.Join(parts, "+")
}

// ParseChord splits a normalized chord such as "ctrl+shift+v" into modifiers
// and a key. Duplicate modifiers collapse; exactly one non-modifier key is
// required.
func ParseChord(chord string) (Chord, error) {
	normalized := NormalizeHotkey(chord)
	if normalized == "" {
		return Chord{}, fmt.Errorf("empty hotkey")
	}
	var out Chord
	seen := make(map[string]bool)
	for _, raw := range strings.Split(normalized, "+") {
		part := strings.TrimSpace(raw)
		if part == "" {
			return Chord{}, fmt.Errorf("hotkey %q has an empty segment", chord)
		}
		if mod, ok := modifierAliases[part]; ok {
			if !seen[mod] {
				seen[mod] = true
				out.Modifiers = append(out.Modifiers, mod)
			}
			continue
		}
		if out.Key != "" {
			return Chord{}, fmt.Errorf("hotkey %q names more than one key", chord)
		}
		if alias, ok := keyAliases[part]; ok {
			part = alias
		}
		out.Key = part
	}
	if out.Key == "" {
		return Chord{}, fmt.Errorf("hotkey %q has no key", chord)
	}
	return out, nil
}
