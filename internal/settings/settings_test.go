package settings

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestOpenMissingFileUsesDefaults(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "settings.toml"), newLogger())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	got := store.Get()
	if got != Default() {
		t.Fatalf("expected defaults, got %+v", got)
	}
	if got.HotkeyStop != "ctrl+shift+backspace" {
		t.Fatalf("unexpected stop hotkey %q", got.HotkeyStop)
	}
}

func TestUpdatePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "settings.toml")
	store, err := Open(path, newLogger())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := store.Update(func(s *Settings) {
		s.VoiceModel = "/voices/v.onnx"
		s.AudioDeviceName = "Speakers"
		s.Autostart = true
	}); err != nil {
		t.Fatalf("update: %v", err)
	}

	reopened, err := Open(path, newLogger())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	got := reopened.Get()
	if got.VoiceModel != "/voices/v.onnx" || got.AudioDeviceName != "Speakers" || !got.Autostart {
		t.Fatalf("settings not persisted: %+v", got)
	}
}

func TestOpenNormalizesHotkeysAndVolume(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.toml")
	data := []byte("hotkey_spotlight = \" Ctrl+Espace \"\nvolume = 3.5\n")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	store, err := Open(path, newLogger())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	got := store.Get()
	if got.HotkeySpotlight != "ctrl+space" {
		t.Fatalf("expected normalized hotkey, got %q", got.HotkeySpotlight)
	}
	if got.Volume != 1 {
		t.Fatalf("expected volume clamped to 1, got %v", got.Volume)
	}
	if got.HotkeySpeakClipboard != "ctrl+shift+v" {
		t.Fatalf("expected default for missing key, got %q", got.HotkeySpeakClipboard)
	}
}

func TestOpenCorruptFileFallsBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.toml")
	if err := os.WriteFile(path, []byte("volume = [unterminated"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	store, err := Open(path, newLogger())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if store.Get() != Default() {
		t.Fatalf("expected defaults after corrupt file")
	}
}

func TestClampVolume(t *testing.T) {
	cases := map[float64]float64{-1: 0, 0: 0, 0.5: 0.5, 1: 1, 2: 1}
	for in, want := range cases {
		if got := ClampVolume(in); got != want {
			t.Fatalf("ClampVolume(%v) = %v, want %v", in, got, want)
		}
	}
}

func TestNormalizeHotkey(t *testing.T) {
	cases := map[string]string{
		"":                  "",
		"CTRL+ESPACE":       "ctrl+space",
		"  Ctrl+Shift+V  ":  "ctrl+shift+v",
		"ctrl+space":        "ctrl+space",
		"Alt+Shift+Espace ": "alt+shift+space",
	}
	for in, want := range cases {
		if got := NormalizeHotkey(in); got != want {
			t.Fatalf("NormalizeHotkey(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestParseChord(t *testing.T) {
	chord, err := ParseChord("Control+Shift+Backspace")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(chord.Modifiers) != 2 || chord.Modifiers[0] != ModCtrl || chord.Modifiers[1] != ModShift {
		t.Fatalf("unexpected modifiers %v", chord.Modifiers)
	}
	if chord.Key != "backspace" {
		t.Fatalf("unexpected key %q", chord.Key)
	}
	if chord.String() != "ctrl+shift+backspace" {
		t.Fatalf("unexpected string %q", chord.String())
	}

	single, err := ParseChord("Esc")
	if err != nil {
		t.Fatalf("parse single: %v", err)
	}
	if single.Key != "escape" || len(single.Modifiers) != 0 {
		t.Fatalf("unexpected single chord %+v", single)
	}

	for _, bad := range []string{"", "ctrl+shift", "ctrl+a+b", "ctrl++a"} {
		if _, err := ParseChord(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}
