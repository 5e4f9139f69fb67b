package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/loqalabs/loqa-say/internal/audio"
	"github.com/loqalabs/loqa-say/internal/audio/portaudio"
	"github.com/loqalabs/loqa-say/internal/bus"
	"github.com/loqalabs/loqa-say/internal/config"
	"github.com/loqalabs/loqa-say/internal/control"
	"github.com/loqalabs/loqa-say/internal/desktop"
	"github.com/loqalabs/loqa-say/internal/dispatch"
	"github.com/loqalabs/loqa-say/internal/history"
	"github.com/loqalabs/loqa-say/internal/hotkeys"
	"github.com/loqalabs/loqa-say/internal/httpapi"
	"github.com/loqalabs/loqa-say/internal/natsserver"
	"github.com/loqalabs/loqa-say/internal/settings"
	"github.com/loqalabs/loqa-say/internal/status"
	"github.com/loqalabs/loqa-say/internal/surface"
	"github.com/loqalabs/loqa-say/internal/tray"
	"github.com/loqalabs/loqa-say/internal/tts"
	"github.com/loqalabs/loqa-say/internal/voice"
)

var errNotStarted = errors.New("runtime not started")

type Runtime struct {
	cfg     config.Config
	version string
	logger  *slog.Logger
	tray    *tray.Tray

	dispatcher  atomic.Pointer[dispatch.Dispatcher]
	httpServer  *http.Server
	tracerClose func(context.Context) error
	ready       atomic.Bool
	wg          sync.WaitGroup
	closers     []func()
}

func New(cfg config.Config, version string, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:     cfg,
		version: version,
		logger:  logger,
	}
}

// AttachTray hands the tray to the runtime so quit can stop it. Call before
// Start.
func (r *Runtime) AttachTray(t *tray.Tray) {
	r.tray = t
}

// Enqueue forwards req to the dispatch loop once it exists.
func (r *Runtime) Enqueue(req dispatch.Request) error {
	d := r.dispatcher.Load()
	if d == nil {
		return errNotStarted
	}
	return d.Enqueue(req)
}

// Start wires every component and runs the dispatch loop until quit or ctx
// cancellation.
func (r *Runtime) Start(ctx context.Context) error {
	defer r.shutdown()

	shutdownTelemetry, metricsHandler, err := setupTelemetry(r.cfg, r.version, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	r.tracerClose = shutdownTelemetry

	store, err := settings.Open(r.cfg.Settings.Path, r.logger)
	if err != nil {
		return fmt.Errorf("open settings: %w", err)
	}

	hist, err := history.Open(ctx, r.cfg.History, r.logger)
	if err != nil {
		return fmt.Errorf("open history: %w", err)
	}
	r.onClose(func() { _ = hist.Close() })

	backend, err := portaudio.Open()
	if err != nil {
		return err
	}
	r.onClose(func() { _ = backend.Close() })

	player := audio.NewController(backend, func() string { return store.Get().AudioDeviceName }, r.cfg.Audio.FramesPerBuffer, r.logger)
	if outputs, err := player.OutputDevices(); err != nil {
		r.logger.Warn("failed to list output devices", slogError(err))
	} else {
		applyPreferredDevice(store, outputs, r.cfg.Audio.PreferredDevice, r.logger)
	}

	catalog := voice.Catalog{Dir: r.cfg.Voice.ModelsDir, Extension: r.cfg.Voice.Extension}
	cache := voice.NewCache(voice.FileLoader{DefaultSampleRate: r.cfg.Voice.DefaultSampleRate}, r.logger)
	engine, err := r.newEngine()
	if err != nil {
		return err
	}
	opts := []tts.PipelineOption{tts.WithTimeout(time.Duration(r.cfg.TTS.TimeoutMS) * time.Millisecond)}
	if r.cfg.TTS.DumpDir != "" {
		opts = append(opts, tts.WithDumper(tts.NewDumper(r.cfg.TTS.DumpDir)))
	}
	pipeline := tts.NewPipeline(engine, cache, catalog, store, r.logger, opts...)

	notifier := desktop.NewNotifier(r.cfg.Desktop.Notifications, nil, r.logger)
	var renderer surface.Renderer
	var prompt *desktop.Prompt
	if r.cfg.Desktop.InputDialog {
		prompt = desktop.NewPrompt(r.cfg.Tray.Title, nil, r.logger)
		renderer = prompt
		r.onClose(prompt.Close)
	}
	surf := surface.New(renderer)

	busClient, ctrl := r.startBus(ctx)

	recs := dispatch.Recorders{hist}
	if ctrl != nil {
		recs = append(recs, ctrl)
	}
	var trayStopper dispatch.Stopper
	if r.tray != nil {
		trayStopper = r.tray
		recs = append(recs, r.tray)
	}

	d := dispatch.New(dispatch.Deps{
		Synthesizer: pipeline,
		Player:      player,
		Clipboard:   desktop.Clipboard{},
		Notifier:    notifier,
		Chooser:     desktop.NewChooser(nil),
		Voices:      catalog,
		VoiceLoader: cache,
		Settings:    store,
		Surface:     surf,
		Tray:        trayStopper,
		Recorder:    recs,
	}, r.cfg.Dispatch.QueueSize, r.logger)
	r.dispatcher.Store(d)
	if prompt != nil {
		prompt.Bind(surf.SetText, d.Enqueue)
	}

	if r.cfg.Hotkeys.Enabled {
		r.startHotkeys(store.Get(), surf, d, notifier)
	}

	var pub status.Publisher
	if busClient != nil {
		pub = busClient
	}
	reporter := status.NewReporter(status.Options{
		NodeID:   r.cfg.Node.ID,
		Runtime:  r.cfg.RuntimeName,
		Version:  r.version,
		Interval: time.Duration(r.cfg.Node.HeartbeatInterval) * time.Millisecond,
	}, liveState{player: player, voices: cache, settings: store}, pub, r.logger)
	reporter.Start(ctx)
	r.onClose(reporter.Close)

	if r.cfg.HTTP.Enabled {
		r.startHTTP(&httpapi.Server{
			Queue:   d,
			Surface: surf,
			History: hist,
			Devices: player.OutputDevices,
			Voices:  catalog.List,
			Ready:   r.ready.Load,
			Metrics: metricsHandler,
			Log:     r.logger.With(slog.String("component", "http")),
		})
	}

	r.ready.Store(true)
	r.logger.Info("runtime started",
		slog.String("settings", store.Path()),
		slog.String("models_dir", catalog.Dir),
		slog.String("device", store.Get().AudioDeviceName))

	err = d.Run(ctx)
	r.ready.Store(false)
	player.Stop()
	r.logger.Info("runtime stopping")
	return err
}

func (r *Runtime) newEngine() (tts.Engine, error) {
	switch r.cfg.TTS.Mode {
	case "mock":
		return tts.NewMockEngine(r.cfg.Voice.DefaultSampleRate), nil
	default:
		engine, err := tts.NewExecEngine(r.cfg.TTS.Command, r.cfg.TTS.Format)
		if err != nil {
			return nil, fmt.Errorf("create tts engine: %w", err)
		}
		return engine, nil
	}
}

// startBus brings up the embedded server, the client and the command
// bridge. Failures are logged; the daemon keeps working locally.
func (r *Runtime) startBus(ctx context.Context) (*bus.Client, *control.Service) {
	if !r.cfg.Bus.Enabled {
		return nil, nil
	}
	busCfg := r.cfg.Bus
	srv, err := natsserver.Start(busCfg, r.logger)
	if err != nil {
		r.logger.Warn("embedded bus unavailable", slogError(err))
		return nil, nil
	}
	if srv != nil {
		r.onClose(srv.Shutdown)
		busCfg.Servers = []string{srv.ClientURL()}
	}

	client, err := bus.Connect(ctx, busCfg, r.cfg.RuntimeName, r.logger)
	if err != nil {
		r.logger.Warn("bus unavailable", slogError(err))
		return nil, nil
	}
	r.onClose(client.Close)

	ctrl := control.NewService(client, enqueueFunc(r.Enqueue), r.logger)
	if err := ctrl.Start(); err != nil {
		r.logger.Warn("failed to start control service", slogError(err))
		return client, nil
	}
	r.onClose(ctrl.Close)
	return client, ctrl
}

func (r *Runtime) startHotkeys(current settings.Settings, surf *surface.Machine, d *dispatch.Dispatcher, notifier *desktop.Notifier) {
	manager := hotkeys.NewManager(d.Enqueue, func(err error) {
		notifier.Error(r.cfg.Tray.Title, err.Error())
	}, r.logger)
	manager.Register(
		hotkeys.Binding{Chord: current.HotkeySpeakClipboard, Command: dispatch.SpeakClipboard},
		hotkeys.Binding{Chord: current.HotkeySpotlight, Command: dispatch.ToggleInputSurface},
		hotkeys.Binding{Chord: current.HotkeyStop, Command: dispatch.Stop},
	)
	if surf.NeedsKeyBindings() {
		surf.AddListener(manager.SurfaceListener(r.cfg.Hotkeys.SubmitKey, r.cfg.Hotkeys.CancelKey))
	} else {
		r.logger.Debug("input surface reads submit and cancel keys itself")
	}
	r.onClose(manager.Close)
}

func (r *Runtime) startHTTP(api *httpapi.Server) {
	addr := fmt.Sprintf("%s:%d", r.cfg.HTTP.Bind, r.cfg.HTTP.Port)
	r.httpServer = &http.Server{
		Addr:              addr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			r.logger.Error("http server failed", slog.String("error", err.Error()))
		}
	}()
	r.logger.Info("http api listening", slog.String("addr", addr))
}

func (r *Runtime) onClose(fn func()) {
	r.closers = append(r.closers, fn)
}

func (r *Runtime) shutdown() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if r.httpServer != nil {
		if err := r.httpServer.Shutdown(shutdownCtx); err != nil {
			r.logger.Error("http shutdown error", slog.String("error", err.Error()))
		}
		r.wg.Wait()
	}
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i]()
	}
	r.closers = nil

	if r.tracerClose != nil {
		if err := r.tracerClose(shutdownCtx); err != nil {
			r.logger.Error("telemetry shutdown error", slog.String("error", err.Error()))
		}
	}
}

type enqueueFunc func(dispatch.Request) error

func (f enqueueFunc) Enqueue(req dispatch.Request) error { return f(req) }
