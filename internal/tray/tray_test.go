package tray

import (
	"bytes"
	"image/png"
	"testing"

	"github.com/loqalabs/loqa-say/internal/dispatch"
)

func TestMenuOrder(t *testing.T) {
	want := []dispatch.Command{
		dispatch.SpeakClipboard,
		dispatch.ToggleInputSurface,
		dispatch.Stop,
		"",
		dispatch.ChooseDevice,
		dispatch.ChooseVoice,
		dispatch.Quit,
	}
	entries := menu()
	if len(entries) != len(want) {
		t.Fatalf("expected %d entries, got %d", len(want), len(entries))
	}
	for i, e := range entries {
		if e.command != want[i] {
			t.Fatalf("entry %d: got %q want %q", i, e.command, want[i])
		}
		if e.separator != (want[i] == "") {
			t.Fatalf("entry %d: unexpected separator flag", i)
		}
	}
}

func TestIconIsPNG(t *testing.T) {
	img, err := png.Decode(bytes.NewReader(Icon()))
	if err != nil {
		t.Fatalf("decode icon: %v", err)
	}
	if b := img.Bounds(); b.Dx() != iconSize || b.Dy() != iconSize {
		t.Fatalf("unexpected icon size %v", b)
	}
	if _, _, _, a := img.At(6, 16).RGBA(); a == 0 {
		t.Fatal("speaker body not drawn")
	}
}
