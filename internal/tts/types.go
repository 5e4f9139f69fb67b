package tts

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/loqalabs/loqa-say/internal/voice"
)

// ErrEmptySynthesisOutput is returned when the engine produced no PCM for non-empty text.
var ErrEmptySynthesisOutput = errors.New("synthesis produced no audio")

// Request contains parameters to synthesize speech.
type Request struct {
	Text  string
	Model *voice.Model
}

// ChunkKind tags the payload carried by a Chunk.
type ChunkKind int

const (
	Int16Samples ChunkKind = iota + 1
	FloatSamples
	RawBytes
)

func (k ChunkKind) String() string {
	switch k {
	case Int16Samples:
		return "int16"
	case FloatSamples:
		return "float"
	case RawBytes:
		return "raw"
	}
	return fmt.Sprintf("ChunkKind(%d)", int(k))
}

// Chunk is one unit of engine output. Exactly one payload field is set,
// selected by Kind. RawBytes carries little-endian int16 PCM.
type Chunk struct {
	Kind  ChunkKind
	Int16 []int16
	Float []float32
	Raw   []byte
	Final bool
}

func Int16Chunk(samples []int16) Chunk   { return Chunk{Kind: Int16Samples, Int16: samples} }
func FloatChunk(samples []float32) Chunk { return Chunk{Kind: FloatSamples, Float: samples} }
func RawChunk(data []byte) Chunk         { return Chunk{Kind: RawBytes, Raw: data} }

// AppendPCM appends the chunk as little-endian int16 bytes. Float samples are
// clipped to [-1,1] and scaled by 32767.
func (c Chunk) AppendPCM(dst []byte) ([]byte, error) {
	switch c.Kind {
	case Int16Samples:
		for _, s := range c.Int16 {
			dst = binary.LittleEndian.AppendUint16(dst, uint16(s))
		}
		return dst, nil
	case FloatSamples:
		for _, f := range c.Float {
			dst = binary.LittleEndian.AppendUint16(dst, uint16(floatToInt16(f)))
		}
		return dst, nil
	case RawBytes:
		return append(dst, c.Raw...), nil
	}
	return dst, fmt.Errorf("unknown chunk kind %v", c.Kind)
}

func floatToInt16(f float32) int16 {
	if math.IsNaN(float64(f)) {
		return 0
	}
	if f > 1 {
		f = 1
	} else if f < -1 {
		f = -1
	}
	return int16(f * 32767)
}

// Engine is the contract for producing audio chunks from text.
type Engine interface {
	Synthesize(ctx context.Context, req Request) (<-chan Chunk, <-chan error)
}
