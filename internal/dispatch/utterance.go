package dispatch

import (
	"context"
	"time"
)

// Utterance sources.
const (
	UtteranceClipboard = "clipboard"
	UtteranceSurface   = "surface"
	UtteranceRemote    = "remote"
)

// Utterance statuses. Started is only reported to recorders, never stored.
const (
	StatusStarted   = "started"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
	StatusFailed    = "failed"
)

// Utterance describes one speak request from synthesis to end of playback.
type Utterance struct {
	ID         string
	Source     string
	Text       string
	Voice      string
	Device     string
	SampleRate int
	Samples    int
	Status     string
	Error      string
	StartedAt  time.Time
	FinishedAt time.Time
}

// Recorders fans every event out to each recorder in order.
type Recorders []Recorder

func (rs Recorders) Record(ctx context.Context, u Utterance) {
	for _, r := range rs {
		r.Record(ctx, u)
	}
}
