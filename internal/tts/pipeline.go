package tts

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/loqalabs/loqa-say/internal/audio"
	"github.com/loqalabs/loqa-say/internal/settings"
	"github.com/loqalabs/loqa-say/internal/voice"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
)

// SettingsStore is the part of settings.Store the pipeline needs.
type SettingsStore interface {
	Get() settings.Settings
	Update(func(*settings.Settings)) error
}

// Pipeline turns text into a normalized mono buffer.
type Pipeline struct {
	engine   Engine
	cache    *voice.Cache
	catalog  voice.Catalog
	settings SettingsStore
	timeout  time.Duration
	dumper   *Dumper
	log      *slog.Logger
	duration metric.Float64Histogram
}

type PipelineOption func(*Pipeline)

// WithDumper writes every synthesized buffer to WAV.
func WithDumper(d *Dumper) PipelineOption {
	return func(p *Pipeline) { p.dumper = d }
}

// WithTimeout bounds a single engine run.
func WithTimeout(d time.Duration) PipelineOption {
	return func(p *Pipeline) { p.timeout = d }
}

func NewPipeline(engine Engine, cache *voice.Cache, catalog voice.Catalog, store SettingsStore, log *slog.Logger, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		engine:   engine,
		cache:    cache,
		catalog:  catalog,
		settings: store,
		log:      log.With(slog.String("component", "tts-pipeline")),
	}
	for _, opt := range opts {
		opt(p)
	}
	hist, err := otel.Meter("github.com/loqalabs/loqa-say/tts").Float64Histogram(
		"loqa_say.synthesis.duration",
		metric.WithDescription("Time spent synthesizing one utterance"),
		metric.WithUnit("s"),
	)
	if err != nil {
		p.log.Warn("failed to create synthesis histogram", slogError(err))
	} else {
		p.duration = hist
	}
	return p
}

// Synthesize renders text with the configured voice. Blank text yields a
// one-sample silent buffer without touching the engine.
func (p *Pipeline) Synthesize(ctx context.Context, text string) (buf audio.Buffer, err error) {
	if strings.TrimSpace(text) == "" {
		return audio.Silence(), nil
	}

	ctx, span := otel.Tracer("github.com/loqalabs/loqa-say/tts").Start(ctx, "tts.synthesize")
	started := time.Now()
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		if p.duration != nil && err == nil {
			p.duration.Record(ctx, time.Since(started).Seconds())
		}
	}()

	path, err := p.resolveVoice()
	if err != nil {
		return audio.Buffer{}, err
	}
	model, err := p.cache.EnsureLoaded(path)
	if err != nil {
		return audio.Buffer{}, err
	}
	span.SetAttributes(attribute.String("tts.voice", model.Path), attribute.Int("tts.text_length", len(text)))

	// Cancelling on return releases an engine still blocked on a send.
	var (
		runCtx context.Context
		cancel context.CancelFunc
	)
	if p.timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, p.timeout)
	} else {
		runCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	pcm, err := p.collect(runCtx, Request{Text: text, Model: model})
	if err != nil {
		return audio.Buffer{}, err
	}
	if len(pcm) < 2 {
		return audio.Buffer{}, ErrEmptySynthesisOutput
	}

	buf = audio.Buffer{
		Samples:    toFloat(pcm, float32(p.settings.Get().Volume)),
		SampleRate: model.SampleRate,
	}
	span.SetAttributes(attribute.Int("tts.samples", len(buf.Samples)))

	if p.dumper != nil {
		if file, err := p.dumper.Write(buf); err != nil {
			p.log.Warn("failed to dump utterance", slogError(err))
		} else {
			p.log.Debug("utterance dumped", slog.String("file", file))
		}
	}
	return buf, nil
}

// resolveVoice returns the configured voice path, adopting and persisting the
// first catalog entry when the configured one is unset or gone.
func (p *Pipeline) resolveVoice() (string, error) {
	path := p.settings.Get().VoiceModel
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	entry, err := p.catalog.First()
	if err != nil {
		if errors.Is(err, voice.ErrNoModelAvailable) {
			return "", fmt.Errorf("%w: no %s file in %s", voice.ErrNoModelAvailable, p.catalog.Extension, p.catalog.Dir)
		}
		return "", fmt.Errorf("scan models: %w", err)
	}
	if err := p.settings.Update(func(s *settings.Settings) { s.VoiceModel = entry.Path }); err != nil {
		p.log.Warn("failed to persist fallback voice", slog.String("voice", entry.Path), slogError(err))
	}
	p.log.Info("adopted fallback voice", slog.String("voice", entry.Path), slog.String("configured", path))
	return entry.Path, nil
}

func (p *Pipeline) collect(ctx context.Context, req Request) ([]byte, error) {
	chunks, errs := p.engine.Synthesize(ctx, req)
	var pcm []byte
	for chunks != nil || errs != nil {
		select {
		case chunk, ok := <-chunks:
			if !ok {
				chunks = nil
				continue
			}
			var err error
			if pcm, err = chunk.AppendPCM(pcm); err != nil {
				return nil, err
			}
		case err, ok := <-errs:
			if ok && err != nil {
				return nil, fmt.Errorf("synthesize: %w", err)
			}
			errs = nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return pcm, nil
}

// toFloat converts little-endian int16 PCM to float32, applies volume and
// clamps to [-1,1]. A trailing odd byte is dropped.
func toFloat(pcm []byte, volume float32) []float32 {
	out := make([]float32, len(pcm)/2)
	for i := range out {
		v := float32(int16(binary.LittleEndian.Uint16(pcm[i*2:]))) / 32768.0 * volume
		if v > 1 {
			v = 1
		} else if v < -1 {
			v = -1
		}
		out[i] = v
	}
	return out
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
