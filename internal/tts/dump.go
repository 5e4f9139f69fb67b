package tts

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/loqalabs/loqa-say/internal/audio"
)

// Dumper writes synthesized buffers to 16-bit mono WAV files.
type Dumper struct {
	Dir   string
	clock func() time.Time
}

func NewDumper(dir string) *Dumper {
	return &Dumper{Dir: dir, clock: time.Now}
}

// Write stores buf under Dir and returns the file path.
func (d *Dumper) Write(buf audio.Buffer) (string, error) {
	if err := os.MkdirAll(d.Dir, 0o755); err != nil {
		return "", fmt.Errorf("create dump dir: %w", err)
	}
	name := fmt.Sprintf("utterance-%s.wav", d.clock().UTC().Format("20060102T150405.000000000"))
	path := filepath.Join(d.Dir, name)
	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create wav: %w", err)
	}
	defer file.Close()

	if err := writeWav(file, buf); err != nil {
		return "", err
	}
	return path, nil
}

func writeWav(file *os.File, buf audio.Buffer) error {
	ints := &goaudio.IntBuffer{
		Format: &goaudio.Format{NumChannels: 1, SampleRate: buf.SampleRate},
		Data:   make([]int, len(buf.Samples)),
	}
	for i, s := range buf.Samples {
		ints.Data[i] = int(floatToInt16(s))
	}
	enc := wav.NewEncoder(file, buf.SampleRate, 16, 1, 1)
	if err := enc.Write(ints); err != nil {
		return fmt.Errorf("write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("close wav encoder: %w", err)
	}
	return nil
}
