package runtime

import (
	"log/slog"

	"github.com/loqalabs/loqa-say/internal/audio"
	"github.com/loqalabs/loqa-say/internal/settings"
	"github.com/loqalabs/loqa-say/internal/voice"
)

// liveState feeds heartbeats and gauges.
type liveState struct {
	player   *audio.Controller
	voices   *voice.Cache
	settings *settings.Store
}

func (s liveState) Playing() bool { return s.player.Playing() }

func (s liveState) VoiceLoaded() string {
	if m := s.voices.Current(); m != nil {
		return m.Path
	}
	return ""
}

func (s liveState) Device() string { return s.settings.Get().AudioDeviceName }

// applyPreferredDevice selects and persists the configured preferred output
// when it is present.
func applyPreferredDevice(store *settings.Store, outputs []string, preferred string, log *slog.Logger) {
	if !audio.ShouldPrefer(outputs, store.Get().AudioDeviceName, preferred) {
		return
	}
	if err := store.Update(func(s *settings.Settings) { s.AudioDeviceName = preferred }); err != nil {
		log.Warn("failed to persist preferred device", slog.String("device", preferred), slogError(err))
		return
	}
	log.Info("preferred output device selected", slog.String("device", preferred))
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
