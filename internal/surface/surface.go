// Package surface tracks the visibility and text of the hotkey-toggled input box.
package surface

import (
	"strings"
	"sync"
)

type State string

const (
	Hidden  State = "hidden"
	Visible State = "visible"
)

// Renderer draws the surface. Show is called with the text to display each
// time the surface becomes visible; Hide when it is dismissed.
type Renderer interface {
	Show(text string)
	Hide()
}

// KeyHandler is implemented by renderers that consume Enter and Escape
// themselves, such as a modal entry dialog.
type KeyHandler interface {
	HandlesKeys() bool
}

// Listener observes visibility changes.
type Listener func(State)

// Machine is the input-surface state machine. It is driven from the dispatch
// loop; SetText may also be called by renderers from other goroutines.
type Machine struct {
	mu          sync.Mutex
	state       State
	constructed bool
	text        string
	renderer    Renderer
	listeners   []Listener
}

func New(renderer Renderer) *Machine {
	return &Machine{state: Hidden, renderer: renderer}
}

// NeedsKeyBindings reports whether submit and cancel must be bound as global
// keys while the surface is visible. It is false when the renderer reads
// those keys itself; a global grab would steal them from it.
func (m *Machine) NeedsKeyBindings() bool {
	if kh, ok := m.renderer.(KeyHandler); ok {
		return !kh.HandlesKeys()
	}
	return true
}

// AddListener registers fn for visibility changes.
func (m *Machine) AddListener(fn Listener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Text returns the current buffer.
func (m *Machine) Text() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.text
}

// SetText replaces the buffer. Ignored while hidden.
func (m *Machine) SetText(text string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != Visible {
		return false
	}
	m.text = text
	return true
}

// Toggle shows a hidden surface with an empty buffer or hides a visible one.
func (m *Machine) Toggle() State {
	m.mu.Lock()
	if m.state == Visible {
		m.state = Hidden
	} else {
		m.constructed = true
		m.text = ""
		m.state = Visible
	}
	next := m.state
	m.mu.Unlock()

	m.render(next, "")
	m.notify(next)
	return next
}

// Submit returns the trimmed buffer and clears it, keeping the surface open.
// It reports false when hidden or when there is nothing to say.
func (m *Machine) Submit() (string, bool) {
	m.mu.Lock()
	if m.state != Visible {
		m.mu.Unlock()
		return "", false
	}
	text := strings.TrimSpace(m.text)
	if text == "" {
		m.mu.Unlock()
		return "", false
	}
	m.text = ""
	m.mu.Unlock()

	m.render(Visible, "")
	return text, true
}

// Cancel hides a visible surface; no-op when hidden.
func (m *Machine) Cancel() {
	m.mu.Lock()
	if m.state != Visible {
		m.mu.Unlock()
		return
	}
	m.state = Hidden
	m.mu.Unlock()

	m.render(Hidden, "")
	m.notify(Hidden)
}

// Constructed reports whether the surface has ever been shown.
func (m *Machine) Constructed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.constructed
}

func (m *Machine) render(state State, text string) {
	if m.renderer == nil {
		return
	}
	if state == Visible {
		m.renderer.Show(text)
		return
	}
	m.renderer.Hide()
}

func (m *Machine) notify(state State) {
	m.mu.Lock()
	listeners := append([]Listener(nil), m.listeners...)
	m.mu.Unlock()
	for _, fn := range listeners {
		fn(state)
	}
}
