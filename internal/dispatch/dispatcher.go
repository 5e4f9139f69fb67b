// Package dispatch serializes commands from hotkeys, the tray, the input
// surface and remote callers onto a single event loop.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/loqalabs/loqa-say/internal/audio"
	"github.com/loqalabs/loqa-say/internal/settings"
	"github.com/loqalabs/loqa-say/internal/surface"
	"github.com/loqalabs/loqa-say/internal/voice"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
)

var (
	ErrQueueFull = errors.New("dispatch queue full")
	ErrClosed    = errors.New("dispatcher closed")
)

const notifyTitle = "Loqa Say"

type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (audio.Buffer, error)
}

type Player interface {
	Play(ctx context.Context, buf audio.Buffer) error
	Stop()
	OutputDevices() ([]string, error)
}

type Clipboard interface {
	ReadAll() (string, error)
}

type Notifier interface {
	Info(title, message string)
	Error(title, message string)
}

// Chooser asks the user to pick one of items. ok is false when the dialog
// was dismissed.
type Chooser interface {
	Choose(ctx context.Context, title, prompt string, items []string) (choice string, ok bool, err error)
}

type Voices interface {
	List() ([]voice.Entry, error)
	Lookup(nameOrPath string) (voice.Entry, bool)
}

type VoiceLoader interface {
	EnsureLoaded(path string) (*voice.Model, error)
}

type SettingsStore interface {
	Get() settings.Settings
	Update(func(*settings.Settings)) error
}

type Surface interface {
	Toggle() surface.State
	Submit() (string, bool)
	Cancel()
}

// Stopper ends the tray loop on quit.
type Stopper interface {
	Stop()
}

// Recorder observes utterance lifecycle events.
type Recorder interface {
	Record(ctx context.Context, u Utterance)
}

// Deps are the collaborators of the dispatcher. Tray and Recorder may be nil.
type Deps struct {
	Synthesizer Synthesizer
	Player      Player
	Clipboard   Clipboard
	Notifier    Notifier
	Chooser     Chooser
	Voices      Voices
	VoiceLoader VoiceLoader
	Settings    SettingsStore
	Surface     Surface
	Tray        Stopper
	Recorder    Recorder
}

type Dispatcher struct {
	deps  Deps
	queue chan Request
	log   *slog.Logger
	clock func() time.Time

	closeOnce sync.Once
	closed    chan struct{}
	workers   sync.WaitGroup

	commands   metric.Int64Counter
	utterances metric.Int64Counter
}

func New(deps Deps, queueSize int, log *slog.Logger) *Dispatcher {
	if queueSize <= 0 {
		queueSize = 32
	}
	d := &Dispatcher{
		deps:   deps,
		queue:  make(chan Request, queueSize),
		log:    log.With(slog.String("component", "dispatch")),
		clock:  time.Now,
		closed: make(chan struct{}),
	}
	meter := otel.Meter("github.com/loqalabs/loqa-say/dispatch")
	var err error
	if d.commands, err = meter.Int64Counter("loqa_say.commands",
		metric.WithDescription("Commands handled by the dispatch loop")); err != nil {
		d.log.Warn("failed to create commands counter", slogError(err))
	}
	if d.utterances, err = meter.Int64Counter("loqa_say.utterances",
		metric.WithDescription("Finished utterances by status and source")); err != nil {
		d.log.Warn("failed to create utterances counter", slogError(err))
	}
	return d
}

// Enqueue hands req to the loop without blocking.
func (d *Dispatcher) Enqueue(req Request) error {
	select {
	case <-d.closed:
		return ErrClosed
	default:
	}
	select {
	case d.queue <- req:
		return nil
	case <-d.closed:
		return ErrClosed
	default:
		return ErrQueueFull
	}
}

// Run consumes requests until quit or ctx cancellation, then waits for
// in-flight workers.
func (d *Dispatcher) Run(ctx context.Context) error {
	workCtx, cancel := context.WithCancel(ctx)
	defer func() {
		cancel()
		d.workers.Wait()
	}()
	defer d.closeOnce.Do(func() { close(d.closed) })

	d.log.Info("dispatch loop started")
	for {
		select {
		case <-ctx.Done():
			d.log.Info("dispatch loop stopped", slog.String("reason", "context"))
			return nil
		case req := <-d.queue:
			if d.handle(workCtx, req) {
				d.log.Info("dispatch loop stopped", slog.String("reason", "quit"))
				return nil
			}
		}
	}
}

// handle runs one command and reports whether the loop should end.
func (d *Dispatcher) handle(ctx context.Context, req Request) (quit bool) {
	d.log.Debug("command received", slog.String("command", string(req.Command)), slog.String("source", req.Source))
	if d.commands != nil {
		d.commands.Add(ctx, 1, metric.WithAttributes(attribute.String("command", string(req.Command))))
	}
	defer func() {
		if r := recover(); r != nil {
			d.fail(fmt.Sprintf("%s failed", req.Command), fmt.Errorf("panic: %v", r))
		}
	}()

	switch req.Command {
	case SpeakClipboard:
		text, err := d.deps.Clipboard.ReadAll()
		if err != nil {
			d.fail("Clipboard unavailable", err)
			return false
		}
		if strings.TrimSpace(text) == "" {
			d.deps.Notifier.Info(notifyTitle, "Clipboard is empty")
			return false
		}
		d.spawn(ctx, text, UtteranceClipboard)
	case SpeakText:
		if strings.TrimSpace(req.Arg) == "" {
			return false
		}
		d.spawn(ctx, req.Arg, UtteranceRemote)
	case ToggleInputSurface:
		d.deps.Surface.Toggle()
	case Stop:
		d.deps.Player.Stop()
	case ChooseDevice:
		d.chooseDevice(ctx, req.Arg)
	case ChooseVoice:
		d.chooseVoice(ctx, req.Arg)
	case SurfaceSubmit:
		if text, ok := d.deps.Surface.Submit(); ok {
			d.spawn(ctx, text, UtteranceSurface)
		}
	case SurfaceCancel:
		d.deps.Surface.Cancel()
	case Quit:
		d.deps.Player.Stop()
		if d.deps.Tray != nil {
			d.deps.Tray.Stop()
		}
		return true
	default:
		d.log.Warn("ignoring unknown command", slog.String("command", string(req.Command)))
	}
	return false
}

func (d *Dispatcher) chooseDevice(ctx context.Context, name string) {
	if name == "" {
		devices, err := d.deps.Player.OutputDevices()
		if err != nil {
			d.fail("Audio devices unavailable", err)
			return
		}
		if len(devices) == 0 {
			d.deps.Notifier.Error(notifyTitle, "No output audio devices found")
			return
		}
		choice, ok, err := d.deps.Chooser.Choose(ctx, "Choose audio device", "Output device:", devices)
		if err != nil {
			d.fail("Device selection failed", err)
			return
		}
		if !ok {
			return
		}
		name = choice
	}
	if err := d.deps.Settings.Update(func(s *settings.Settings) { s.AudioDeviceName = name }); err != nil {
		d.fail("Could not save audio device", err)
		return
	}
	d.log.Info("audio device selected", slog.String("device", name))
}

func (d *Dispatcher) chooseVoice(ctx context.Context, arg string) {
	var entry voice.Entry
	if arg != "" {
		found, ok := d.deps.Voices.Lookup(arg)
		if !ok {
			d.deps.Notifier.Error(notifyTitle, fmt.Sprintf("Voice %q not found", arg))
			return
		}
		entry = found
	} else {
		entries, err := d.deps.Voices.List()
		if err != nil {
			d.fail("Voice list unavailable", err)
			return
		}
		if len(entries) == 0 {
			d.deps.Notifier.Error(notifyTitle, "No voice models found")
			return
		}
		names := make([]string, len(entries))
		for i, e := range entries {
			names[i] = e.Name
		}
		choice, ok, err := d.deps.Chooser.Choose(ctx, "Choose voice", "Voice model:", names)
		if err != nil {
			d.fail("Voice selection failed", err)
			return
		}
		if !ok {
			return
		}
		if entry, ok = d.deps.Voices.Lookup(choice); !ok {
			d.deps.Notifier.Error(notifyTitle, fmt.Sprintf("Voice %q not found", choice))
			return
		}
	}
	if err := d.deps.Settings.Update(func(s *settings.Settings) { s.VoiceModel = entry.Path }); err != nil {
		d.fail("Could not save voice", err)
		return
	}
	if _, err := d.deps.VoiceLoader.EnsureLoaded(entry.Path); err != nil {
		d.fail("Voice failed to load", err)
		return
	}
	d.log.Info("voice selected", slog.String("voice", entry.Path))
}

func (d *Dispatcher) spawn(ctx context.Context, text, source string) {
	d.workers.Add(1)
	go func() {
		defer d.workers.Done()
		d.speak(ctx, text, source)
	}()
}

// speak is the worker body: synthesize, play, record. Failures never escape.
func (d *Dispatcher) speak(ctx context.Context, text, source string) {
	u := Utterance{
		ID:        uuid.NewString(),
		Source:    source,
		Text:      text,
		Status:    StatusStarted,
		StartedAt: d.clock(),
	}
	current := d.deps.Settings.Get()
	u.Voice = current.VoiceModel
	u.Device = current.AudioDeviceName

	ctx, span := otel.Tracer("github.com/loqalabs/loqa-say/dispatch").Start(ctx, "dispatch.speak")
	span.SetAttributes(attribute.String("utterance.id", u.ID), attribute.String("utterance.source", source))
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic: %v", r)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			d.finish(ctx, u, err)
		}
	}()

	d.record(ctx, u)
	buf, err := d.deps.Synthesizer.Synthesize(ctx, text)
	if err == nil {
		u.SampleRate = buf.SampleRate
		u.Samples = len(buf.Samples)
		u.Voice = d.deps.Settings.Get().VoiceModel
		err = d.deps.Player.Play(ctx, buf)
	}
	if err != nil && !isCancellation(err) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	d.finish(ctx, u, err)
}

func (d *Dispatcher) finish(ctx context.Context, u Utterance, err error) {
	u.FinishedAt = d.clock()
	switch {
	case err == nil:
		u.Status = StatusCompleted
	case isCancellation(err):
		u.Status = StatusCancelled
	default:
		u.Status = StatusFailed
		u.Error = err.Error()
		d.fail("Speech failed", err)
	}
	if d.utterances != nil {
		d.utterances.Add(context.WithoutCancel(ctx), 1, metric.WithAttributes(
			attribute.String("status", u.Status),
			attribute.String("source", u.Source),
		))
	}
	d.log.Info("utterance finished",
		slog.String("id", u.ID),
		slog.String("status", u.Status),
		slog.String("source", u.Source),
		slog.Duration("elapsed", u.FinishedAt.Sub(u.StartedAt)),
	)
	d.record(ctx, u)
}

func (d *Dispatcher) record(ctx context.Context, u Utterance) {
	if d.deps.Recorder == nil {
		return
	}
	d.deps.Recorder.Record(context.WithoutCancel(ctx), u)
}

func (d *Dispatcher) fail(title string, err error) {
	d.log.Error(title, slogError(err))
	d.deps.Notifier.Error(notifyTitle, fmt.Sprintf("%s: %v", title, err))
}

func isCancellation(err error) bool {
	return errors.Is(err, audio.ErrStopped) || errors.Is(err, context.Canceled)
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
