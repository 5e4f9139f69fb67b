package audio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// ErrStopped is returned by Play when the session was cancelled by Stop or by
// a newer Play call.
var ErrStopped = errors.New("playback stopped")

type session struct {
	cancelled atomic.Bool
}

// Controller plays one buffer at a time on the selected output device.
type Controller struct {
	backend         Backend
	deviceName      func() string
	framesPerBuffer int
	log             *slog.Logger

	// playMu serializes Play; mu guards session and stream.
	playMu  sync.Mutex
	mu      sync.Mutex
	session *session
	stream  Stream
}

// NewController builds a controller. deviceName is read on every Play so the
// selector can change between calls.
func NewController(backend Backend, deviceName func() string, framesPerBuffer int, log *slog.Logger) *Controller {
	if framesPerBuffer <= 0 {
		framesPerBuffer = 1024
	}
	if deviceName == nil {
		deviceName = func() string { return "" }
	}
	return &Controller{
		backend:         backend,
		deviceName:      deviceName,
		framesPerBuffer: framesPerBuffer,
		log:             log.With(slog.String("component", "playback")),
	}
}

// Play blocks until buf has been played, the session is stopped, or ctx is done.
// The newest call wins: it cancels any in-flight session before waiting for the
// device, even when buf itself is rejected.
func (c *Controller) Play(ctx context.Context, buf Buffer) (err error) {
	ctx, span := otel.Tracer("github.com/loqalabs/loqa-say/audio").Start(ctx, "audio.play")
	defer func() {
		if err != nil && !errors.Is(err, ErrStopped) {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	s := &session{}
	c.mu.Lock()
	if c.session != nil {
		c.session.cancelled.Store(true)
	}
	c.session = s
	c.abortLocked()
	if buf.SampleRate <= 0 {
		c.session = nil
		c.mu.Unlock()
		return fmt.Errorf("invalid sample rate %d", buf.SampleRate)
	}
	c.mu.Unlock()

	c.playMu.Lock()
	defer c.playMu.Unlock()
	defer c.release(s)

	if s.cancelled.Load() {
		return ErrStopped
	}

	device := c.resolve()
	span.SetAttributes(
		attribute.Int("audio.samples", len(buf.Samples)),
		attribute.Int("audio.sample_rate", buf.SampleRate),
	)
	if device != nil {
		span.SetAttributes(attribute.String("audio.device", device.Name))
	}

	stream, err := c.backend.OpenOutput(device, float64(buf.SampleRate), c.framesPerBuffer)
	if err != nil {
		return fmt.Errorf("open output stream: %w", err)
	}
	c.mu.Lock()
	if s.cancelled.Load() {
		c.mu.Unlock()
		_ = stream.Close()
		return ErrStopped
	}
	c.stream = stream
	c.mu.Unlock()

	if err := stream.Start(); err != nil {
		return fmt.Errorf("start output stream: %w", err)
	}

	samples := buf.Samples
	for off := 0; off < len(samples); off += c.framesPerBuffer {
		if s.cancelled.Load() {
			return ErrStopped
		}
		if err := ctx.Err(); err != nil {
			s.cancelled.Store(true)
			return err
		}
		end := off + c.framesPerBuffer
		if end > len(samples) {
			end = len(samples)
		}
		if err := stream.Write(samples[off:end]); err != nil {
			if s.cancelled.Load() {
				return ErrStopped
			}
			return fmt.Errorf("write audio: %w", err)
		}
	}
	if s.cancelled.Load() {
		return ErrStopped
	}
	return nil
}

// Stop cancels the active session and aborts the device stream at once.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != nil {
		c.session.cancelled.Store(true)
	}
	c.abortLocked()
}

// Playing reports whether an output stream is open.
func (c *Controller) Playing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stream != nil
}

// OutputDevices lists output-capable device names, first occurrence of each name kept.
func (c *Controller) OutputDevices() ([]string, error) {
	devices, err := c.backend.Devices()
	if err != nil {
		return nil, err
	}
	return OutputNames(devices), nil
}

func (c *Controller) resolve() *Device {
	name := c.deviceName()
	if name == "" {
		return nil
	}
	devices, err := c.backend.Devices()
	if err != nil {
		c.log.Warn("device enumeration failed, using default output", slogError(err))
		return nil
	}
	device, ok := FindOutput(devices, name)
	if !ok {
		c.log.Debug("output device not found, using default", slog.String("device", name))
		return nil
	}
	return device
}

func (c *Controller) abortLocked() {
	if c.stream == nil {
		return
	}
	if err := c.stream.Abort(); err != nil {
		c.log.Debug("stream abort failed", slogError(err))
	}
}

// release detaches the session's stream, stops and closes it. Errors are
// ignored: the stream may already be aborted.
func (c *Controller) release(s *session) {
	c.mu.Lock()
	stream := c.stream
	c.stream = nil
	if c.session == s {
		c.session = nil
	}
	c.mu.Unlock()

	if stream == nil {
		return
	}
	if s.cancelled.Load() {
		_ = stream.Abort()
	} else {
		_ = stream.Stop()
	}
	_ = stream.Close()
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
