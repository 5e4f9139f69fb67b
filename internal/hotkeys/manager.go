// Package hotkeys registers global keyboard shortcuts and turns key presses
// into dispatch requests.
package hotkeys

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/loqalabs/loqa-say/internal/dispatch"
	"github.com/loqalabs/loqa-say/internal/surface"
	"golang.design/x/hotkey"
)

// ErrRegistration matches every *RegistrationError.
var ErrRegistration = errors.New("hotkey registration failed")

const registrationHint = "try running with administrator privileges"

// RegistrationError reports a chord that could not be bound.
type RegistrationError struct {
	Chord string
	Hint  string
	Err   error
}

func (e *RegistrationError) Error() string {
	return fmt.Sprintf("register hotkey %q: %v (%s)", e.Chord, e.Err, e.Hint)
}

func (e *RegistrationError) Unwrap() error { return e.Err }

func (e *RegistrationError) Is(target error) bool { return target == ErrRegistration }

// Binding ties a chord to a command.
type Binding struct {
	Chord   string
	Command dispatch.Command
}

type registration struct {
	hk   *hotkey.Hotkey
	stop chan struct{}
	done chan struct{}
}

// Manager owns the registered hotkeys.
type Manager struct {
	enqueue func(dispatch.Request) error
	report  func(error)
	log     *slog.Logger

	mu       sync.Mutex
	active   map[string]*registration
	reported map[string]bool
}

// NewManager builds a manager. report receives each registration failure
// once; it may be nil.
func NewManager(enqueue func(dispatch.Request) error, report func(error), log *slog.Logger) *Manager {
	if report == nil {
		report = func(error) {}
	}
	return &Manager{
		enqueue:  enqueue,
		report:   report,
		log:      log.With(slog.String("component", "hotkeys")),
		active:   make(map[string]*registration),
		reported: make(map[string]bool),
	}
}

// Register binds every binding. A failing binding is reported and skipped;
// the rest are still registered.
func (m *Manager) Register(bindings ...Binding) []error {
	var errs []error
	for _, b := range bindings {
		if err := m.register(b); err != nil {
			errs = append(errs, err)
			m.mu.Lock()
			first := !m.reported[b.Chord]
			m.reported[b.Chord] = true
			m.mu.Unlock()
			if first {
				m.log.Warn("hotkey registration failed", slog.String("chord", b.Chord), slog.String("error", err.Error()))
				m.report(err)
			}
		}
	}
	return errs
}

func (m *Manager) register(b Binding) error {
	if b.Chord == "" {
		return nil
	}
	mods, key, err := translate(b.Chord)
	if err != nil {
		return &RegistrationError{Chord: b.Chord, Hint: "check the hotkey setting", Err: err}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.active[b.Chord]; exists {
		return nil
	}
	hk := hotkey.New(mods, key)
	if err := hk.Register(); err != nil {
		return &RegistrationError{Chord: b.Chord, Hint: registrationHint, Err: err}
	}
	reg := &registration{hk: hk, stop: make(chan struct{}), done: make(chan struct{})}
	m.active[b.Chord] = reg
	go m.listen(reg, b)
	m.log.Info("hotkey registered", slog.String("chord", b.Chord), slog.String("command", string(b.Command)))
	return nil
}

func (m *Manager) listen(reg *registration, b Binding) {
	defer close(reg.done)
	for {
		select {
		case <-reg.stop:
			return
		case _, ok := <-reg.hk.Keydown():
			if !ok {
				return
			}
			if err := m.enqueue(dispatch.Request{Command: b.Command, Source: dispatch.SourceHotkey}); err != nil {
				m.log.Warn("dropped hotkey command", slog.String("command", string(b.Command)), slog.String("error", err.Error()))
			}
		}
	}
}

// Unregister releases the given chords.
func (m *Manager) Unregister(chords ...string) {
	m.mu.Lock()
	var regs []*registration
	for _, chord := range chords {
		if reg, ok := m.active[chord]; ok {
			regs = append(regs, reg)
			delete(m.active, chord)
		}
	}
	m.mu.Unlock()

	for _, reg := range regs {
		close(reg.stop)
		if err := reg.hk.Unregister(); err != nil {
			m.log.Debug("hotkey unregister failed", slog.String("error", err.Error()))
		}
		<-reg.done
	}
}

// SurfaceListener binds the submit and cancel keys only while the input
// surface is visible.
func (m *Manager) SurfaceListener(submitKey, cancelKey string) surface.Listener {
	return func(state surface.State) {
		if state == surface.Visible {
			m.Register(
				Binding{Chord: submitKey, Command: dispatch.SurfaceSubmit},
				Binding{Chord: cancelKey, Command: dispatch.SurfaceCancel},
			)
			return
		}
		m.Unregister(submitKey, cancelKey)
	}
}

// Close releases every hotkey.
func (m *Manager) Close() {
	m.mu.Lock()
	chords := make([]string, 0, len(m.active))
	for chord := range m.active {
		chords = append(chords, chord)
	}
	m.mu.Unlock()
	m.Unregister(chords...)
}
