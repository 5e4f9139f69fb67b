package tts

import (
	"context"
	"math"
	"strings"
)

type mockEngine struct {
	sampleRate int
}

// NewMockEngine returns an engine that renders one short beep per word,
// followed by a gap of silence. It needs no voice files or external binaries.
func NewMockEngine(sampleRate int) Engine {
	if sampleRate <= 0 {
		sampleRate = 22050
	}
	return &mockEngine{sampleRate: sampleRate}
}

func (m *mockEngine) Synthesize(ctx context.Context, req Request) (<-chan Chunk, <-chan error) {
	chunks := make(chan Chunk)
	errs := make(chan error, 1)
	go func() {
		defer close(chunks)
		defer close(errs)

		rate := m.sampleRate
		if req.Model != nil && req.Model.SampleRate > 0 {
			rate = req.Model.SampleRate
		}
		words := strings.Fields(req.Text)
		for i, word := range words {
			beep := make([]float32, rate*8/100)
			freq := 300.0 + float64(len(word)%8)*60
			for n := range beep {
				beep[n] = float32(0.3 * math.Sin(2*math.Pi*freq*float64(n)/float64(rate)))
			}
			gap := Int16Chunk(make([]int16, rate/25))
			gap.Final = i == len(words)-1
			for _, c := range []Chunk{FloatChunk(beep), gap} {
				select {
				case chunks <- c:
				case <-ctx.Done():
					errs <- ctx.Err()
					return
				}
			}
		}
	}()
	return chunks, errs
}
