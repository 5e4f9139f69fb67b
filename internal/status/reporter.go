// Package status publishes daemon heartbeats and exposes playback state as
// observable gauges.
package status

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/loqalabs/loqa-say/internal/protocol"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// Source reports the live state sampled by heartbeats and gauges.
type Source interface {
	Playing() bool
	VoiceLoaded() string
	Device() string
}

// Publisher sends a heartbeat. *bus.Client satisfies it.
type Publisher interface {
	PublishJSON(subject string, v any) error
}

type Options struct {
	NodeID   string
	Runtime  string
	Version  string
	Interval time.Duration
}

type Reporter struct {
	opts   Options
	source Source
	pub    Publisher
	log    *slog.Logger
	clock  func() time.Time

	mu   sync.Mutex
	last protocol.Heartbeat

	cancel context.CancelFunc
	done   chan struct{}
	reg    metric.Registration
}

// NewReporter registers the gauges. pub may be nil when the bus is disabled;
// heartbeats are then only kept for Last.
func NewReporter(opts Options, source Source, pub Publisher, log *slog.Logger) *Reporter {
	if opts.Interval <= 0 {
		opts.Interval = 5 * time.Second
	}
	r := &Reporter{
		opts:   opts,
		source: source,
		pub:    pub,
		log:    log.With(slog.String("component", "status-reporter")),
		clock:  time.Now,
	}
	if err := r.initMetrics(); err != nil {
		r.log.Warn("failed to initialize metrics", slog.String("error", err.Error()))
	}
	return r
}

func (r *Reporter) initMetrics() error {
	meter := otel.Meter("github.com/loqalabs/loqa-say/status")
	playing, err := meter.Int64ObservableGauge("loqa_say.playing",
		metric.WithDescription("1 while audio is being played"))
	if err != nil {
		return err
	}
	loaded, err := meter.Int64ObservableGauge("loqa_say.voice.loaded",
		metric.WithDescription("1 while a voice model is resident"))
	if err != nil {
		return err
	}
	reg, err := meter.RegisterCallback(func(ctx context.Context, o metric.Observer) error {
		o.ObserveInt64(playing, boolToInt(r.source.Playing()))
		o.ObserveInt64(loaded, boolToInt(r.source.VoiceLoaded() != ""))
		return nil
	}, playing, loaded)
	if err != nil {
		return err
	}
	r.reg = reg
	return nil
}

// Start publishes one heartbeat immediately and then on every interval.
func (r *Reporter) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})
	go r.run(ctx)
}

func (r *Reporter) run(ctx context.Context) {
	defer close(r.done)
	ticker := time.NewTicker(r.opts.Interval)
	defer ticker.Stop()

	r.beat()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.beat()
		}
	}
}

func (r *Reporter) beat() {
	hb := r.snapshot()
	r.mu.Lock()
	r.last = hb
	r.mu.Unlock()
	if r.pub == nil {
		return
	}
	if err := r.pub.PublishJSON(protocol.HeartbeatSubject(r.opts.NodeID), hb); err != nil {
		r.log.Warn("failed to publish heartbeat", slog.String("error", err.Error()))
	}
}

func (r *Reporter) snapshot() protocol.Heartbeat {
	return protocol.Heartbeat{
		NodeID:      r.opts.NodeID,
		Runtime:     r.opts.Runtime,
		Version:     r.opts.Version,
		Playing:     r.source.Playing(),
		VoiceLoaded: r.source.VoiceLoaded(),
		Device:      r.source.Device(),
		Timestamp:   r.clock().UTC(),
	}
}

// Last returns the most recent heartbeat, or a fresh snapshot before the
// first one.
func (r *Reporter) Last() protocol.Heartbeat {
	r.mu.Lock()
	last := r.last
	r.mu.Unlock()
	if last.NodeID == "" && last.Timestamp.IsZero() {
		return r.snapshot()
	}
	return last
}

func (r *Reporter) Close() {
	if r.cancel != nil {
		r.cancel()
		<-r.done
	}
	if r.reg != nil {
		_ = r.reg.Unregister()
	}
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
