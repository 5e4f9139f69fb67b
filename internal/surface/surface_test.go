package surface

import "testing"

type recordingRenderer struct {
	shows []string
	hides int
}

func (r *recordingRenderer) Show(text string) { r.shows = append(r.shows, text) }
func (r *recordingRenderer) Hide()            { r.hides++ }

func TestToggleTwiceReturnsToHidden(t *testing.T) {
	m := New(nil)
	if m.State() != Hidden || m.Constructed() {
		t.Fatal("expected hidden, unconstructed initial state")
	}
	if got := m.Toggle(); got != Visible {
		t.Fatalf("expected visible, got %s", got)
	}
	if got := m.Toggle(); got != Hidden {
		t.Fatalf("expected hidden, got %s", got)
	}
	if !m.Constructed() {
		t.Fatal("expected surface to stay constructed")
	}
}

func TestSubmitClearsTextAndStaysVisible(t *testing.T) {
	m := New(nil)
	m.Toggle()
	m.SetText("  hello  ")
	text, ok := m.Submit()
	if !ok || text != "hello" {
		t.Fatalf("expected trimmed snapshot, got %q %v", text, ok)
	}
	if m.State() != Visible {
		t.Fatal("submit should keep the surface visible")
	}
	if m.Text() != "" {
		t.Fatalf("expected cleared buffer, got %q", m.Text())
	}
}

func TestReshowClearsText(t *testing.T) {
	m := New(nil)
	m.Toggle()
	m.SetText("draft")
	m.Toggle()
	if m.Text() != "draft" {
		t.Fatalf("hidden surface should keep its text, got %q", m.Text())
	}
	m.Toggle()
	if m.Text() != "" {
		t.Fatalf("expected empty text on re-show, got %q", m.Text())
	}
}

func TestSubmitWhileHiddenIsNoop(t *testing.T) {
	m := New(nil)
	if _, ok := m.Submit(); ok {
		t.Fatal("submit on hidden surface should not produce text")
	}
	if m.SetText("ignored") {
		t.Fatal("set text on hidden surface should be ignored")
	}
	if m.State() != Hidden {
		t.Fatal("state changed")
	}
}

func TestSubmitBlankTextIsNoop(t *testing.T) {
	m := New(nil)
	m.Toggle()
	m.SetText("   ")
	if _, ok := m.Submit(); ok {
		t.Fatal("blank submit should not produce text")
	}
}

func TestCancel(t *testing.T) {
	m := New(nil)
	m.Cancel()
	if m.State() != Hidden {
		t.Fatal("cancel on hidden surface changed state")
	}
	m.Toggle()
	m.Cancel()
	if m.State() != Hidden {
		t.Fatal("cancel should hide the surface")
	}
}

func TestListenersAndRenderer(t *testing.T) {
	r := &recordingRenderer{}
	m := New(r)
	var seen []State
	m.AddListener(func(s State) { seen = append(seen, s) })

	m.Toggle()
	m.SetText("hi")
	m.Submit()
	m.Cancel()
	m.Cancel()

	if len(seen) != 2 || seen[0] != Visible || seen[1] != Hidden {
		t.Fatalf("unexpected listener calls %v", seen)
	}
	if len(r.shows) != 2 || r.hides != 1 {
		t.Fatalf("unexpected renderer calls shows=%v hides=%d", r.shows, r.hides)
	}
}

type keyedRenderer struct {
	recordingRenderer
	handles bool
}

func (r *keyedRenderer) HandlesKeys() bool { return r.handles }

func TestNeedsKeyBindings(t *testing.T) {
	if !New(nil).NeedsKeyBindings() {
		t.Fatal("headless surface needs global submit and cancel keys")
	}
	if !New(&recordingRenderer{}).NeedsKeyBindings() {
		t.Fatal("plain renderer needs global submit and cancel keys")
	}
	if !New(&keyedRenderer{handles: false}).NeedsKeyBindings() {
		t.Fatal("renderer that declines keys needs global bindings")
	}
	if New(&keyedRenderer{handles: true}).NeedsKeyBindings() {
		t.Fatal("renderer that reads Enter and Escape must not be preempted by global grabs")
	}
}
