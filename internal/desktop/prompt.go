package desktop

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/loqalabs/loqa-say/internal/dispatch"
)

// Prompt renders the input surface as a native text-entry dialog. A
// confirmed entry becomes the surface text followed by a submit command;
// dismissing the dialog becomes a cancel command.
type Prompt struct {
	title   string
	dialogs Dialogs
	log     *slog.Logger
	setText func(string) bool
	enqueue func(dispatch.Request) error

	mu     sync.Mutex
	gen    int
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPrompt builds a prompt. A nil dialogs uses Zenity.
func NewPrompt(title string, dialogs Dialogs, log *slog.Logger) *Prompt {
	if dialogs == nil {
		dialogs = Zenity{}
	}
	return &Prompt{
		title:   title,
		dialogs: dialogs,
		log:     log.With(slog.String("component", "input-prompt")),
	}
}

// HandlesKeys reports that the dialog consumes Enter and Escape itself, so
// global submit and cancel keys must not be grabbed while it is open.
func (p *Prompt) HandlesKeys() bool { return true }

// Bind connects the prompt to the surface buffer and the dispatch queue.
func (p *Prompt) Bind(setText func(string) bool, enqueue func(dispatch.Request) error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.setText = setText
	p.enqueue = enqueue
}

// Show opens a fresh dialog, replacing any open one.
func (p *Prompt) Show(text string) {
	p.mu.Lock()
	if p.cancel != nil {
		p.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.gen++
	gen := p.gen
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		entered, err := p.dialogs.Entry(ctx, p.title, "Text to speak:", text)
		p.finish(ctx, gen, entered, err)
	}()
}

// Hide closes the open dialog, if any.
func (p *Prompt) Hide() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	p.gen++
}

// Close hides the dialog and waits for it to return.
func (p *Prompt) Close() {
	p.Hide()
	p.wg.Wait()
}

func (p *Prompt) finish(ctx context.Context, gen int, entered string, err error) {
	p.mu.Lock()
	current := gen == p.gen && ctx.Err() == nil
	setText, enqueue := p.setText, p.enqueue
	p.mu.Unlock()
	if !current || enqueue == nil {
		return
	}

	if err != nil {
		if !errors.Is(err, ErrDismissed) {
			p.log.Warn("input prompt failed", slog.String("error", err.Error()))
		}
		p.send(enqueue, dispatch.SurfaceCancel)
		return
	}
	text := strings.TrimSpace(entered)
	if text == "" {
		p.send(enqueue, dispatch.SurfaceCancel)
		return
	}
	if setText != nil && !setText(text) {
		return
	}
	p.send(enqueue, dispatch.SurfaceSubmit)
}

func (p *Prompt) send(enqueue func(dispatch.Request) error, cmd dispatch.Command) {
	if err := enqueue(dispatch.Request{Command: cmd, Source: dispatch.SourceSurface}); err != nil {
		p.log.Warn("failed to enqueue surface command", slog.String("command", string(cmd)), slog.String("error", err.Error()))
	}
}
