package voice

import (
	"log/slog"
	"sync"
)

// Cache holds at most one resident voice model.
type Cache struct {
	loader Loader
	log    *slog.Logger

	mu      sync.Mutex
	current *Model
}

func NewCache(loader Loader, log *slog.Logger) *Cache {
	return &Cache{loader: loader, log: log.With(slog.String("component", "voice-cache"))}
}

// EnsureLoaded returns the resident model when its path matches, otherwise it
// loads path and replaces the resident model. A failed load leaves the cache
// untouched.
func (c *Cache) EnsureLoaded(path string) (*Model, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current != nil && c.current.Path == path {
		return c.current, nil
	}
	model, err := c.loader.Load(path)
	if err != nil {
		return nil, err
	}
	previous := ""
	if c.current != nil {
		previous = c.current.Path
	}
	c.current = model
	c.log.Info("voice model loaded",
		slog.String("path", model.Path),
		slog.Int("sample_rate", model.SampleRate),
		slog.String("previous", previous))
	return model, nil
}

// Current returns the resident model or nil.
func (c *Cache) Current() *Model {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}
