package settings

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/BurntSushi/toml"
)

// Settings is the user-facing preference document.
type Settings struct {
	VoiceModel           string  `toml:"voice_model"`
	AudioDeviceName      string  `toml:"audio_device_name"`
	HotkeySpeakClipboard string  `toml:"hotkey_speak_clipboard"`
	HotkeySpotlight      string  `toml:"hotkey_spotlight"`
	HotkeyStop           string  `toml:"hotkey_stop"`
	Volume               float64 `toml:"volume"`
	Autostart            bool    `toml:"autostart"`
}

func Default() Settings {
	return Settings{
		HotkeySpeakClipboard: "ctrl+shift+v",
		HotkeySpotlight:      "ctrl+space",
		HotkeyStop:           "ctrl+shift+backspace",
		Volume:               1.0,
	}
}

func (s *Settings) normalize() {
	s.HotkeySpeakClipboard = NormalizeHotkey(s.HotkeySpeakClipboard)
	s.HotkeySpotlight = NormalizeHotkey(s.HotkeySpotlight)
	s.HotkeyStop = NormalizeHotkey(s.HotkeyStop)
	s.Volume = ClampVolume(s.Volume)
}

// ClampVolume bounds a volume scalar to [0,1].
func ClampVolume(v float64) float64 {
	switch {
	case v != v:
		return 1.0
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

// Store keeps the current settings in memory and persists every change.
type Store struct {
	path    string
	log     *slog.Logger
	mu      sync.RWMutex
	current Settings
}

// Open reads the settings file at path. A missing file yields defaults; an
// unreadable one is logged and replaced by defaults on the next save.
func Open(path string, log *slog.Logger) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("settings path empty")
	}
	s := &Store{
		path:    path,
		log:     log.With(slog.String("component", "settings")),
		current: Default(),
	}
	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, fmt.Errorf("read settings: %w", err)
	default:
		loaded := Default()
		if _, err := toml.Decode(string(data), &loaded); err != nil {
			s.log.Warn("settings file unreadable, using defaults", slog.String("path", path), slog.String("error", err.Error()))
		} else {
			s.current = loaded
		}
	}
	s.current.normalize()
	return s, nil
}

func (s *Store) Path() string { return s.path }

// Get returns a copy of the current settings.
func (s *Store) Get() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Update applies fn to a copy of the settings and persists the result. The
// in-memory value only changes when the write succeeds.
func (s *Store) Update(fn func(*Settings)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.current
	fn(&next)
	next.normalize()
	if err := s.write(next); err != nil {
		return err
	}
	s.current = next
	return nil
}

// Save persists the current settings unchanged.
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(s.current)
}

func (s *Store) write(value Settings) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(value); err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create settings dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".settings-*.toml")
	if err != nil {
		return fmt.Errorf("create temp settings: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("write settings: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close settings: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace settings: %w", err)
	}
	return nil
}
