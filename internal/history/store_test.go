package history

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/loqalabs/loqa-say/internal/config"
	"github.com/loqalabs/loqa-say/internal/dispatch"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func openStore(t *testing.T, cfg config.HistoryConfig) *Store {
	t.Helper()
	if cfg.RetentionMode == "" {
		cfg.RetentionMode = "persistent"
	}
	if cfg.Path == "" {
		cfg.Path = filepath.Join(t.TempDir(), "history.db")
	}
	s, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("open history: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestAppendAndList(t *testing.T) {
	s := openStore(t, config.HistoryConfig{StoreText: true})
	ctx := context.Background()
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	for i, id := range []string{"first", "second"} {
		err := s.Append(ctx, Entry{
			ID:         id,
			Source:     dispatch.UtteranceClipboard,
			Text:       "hello " + id,
			SampleRate: 22050,
			Samples:    100 * (i + 1),
			Status:     dispatch.StatusCompleted,
			StartedAt:  start.Add(time.Duration(i) * time.Minute),
			FinishedAt: start.Add(time.Duration(i)*time.Minute + time.Second),
		})
		if err != nil {
			t.Fatalf("append %s: %v", id, err)
		}
	}

	entries, err := s.List(ctx, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].ID != "second" || entries[1].ID != "first" {
		t.Fatalf("expected newest first, got %s, %s", entries[0].ID, entries[1].ID)
	}
	if entries[0].Text != "hello second" || entries[0].Samples != 200 {
		t.Fatalf("unexpected entry %+v", entries[0])
	}
	if !entries[1].FinishedAt.Equal(start.Add(time.Second)) {
		t.Fatalf("timestamps not preserved: %v", entries[1].FinishedAt)
	}
}

func TestTextDroppedByDefault(t *testing.T) {
	s := openStore(t, config.HistoryConfig{})
	ctx := context.Background()
	if err := s.Append(ctx, Entry{ID: "x", Source: dispatch.UtteranceSurface, Text: "secret", Status: dispatch.StatusCompleted}); err != nil {
		t.Fatalf("append: %v", err)
	}
	entries, err := s.List(ctx, 1)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 1 || entries[0].Text != "" {
		t.Fatalf("expected text to be dropped, got %+v", entries)
	}
}

func TestPruneByDaysAndEntries(t *testing.T) {
	s := openStore(t, config.HistoryConfig{RetentionDays: 1, MaxEntries: 2})
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	s.clock = func() time.Time { return now }

	entries := []Entry{
		{ID: "old", FinishedAt: now.Add(-72 * time.Hour)},
		{ID: "a", FinishedAt: now.Add(-3 * time.Hour)},
		{ID: "b", FinishedAt: now.Add(-2 * time.Hour)},
		{ID: "c", FinishedAt: now.Add(-1 * time.Hour)},
	}
	for _, e := range entries {
		e.Source = dispatch.UtteranceRemote
		e.Status = dispatch.StatusCompleted
		if err := s.Append(ctx, e); err != nil {
			t.Fatalf("append %s: %v", e.ID, err)
		}
	}
	if err := s.Prune(ctx); err != nil {
		t.Fatalf("prune: %v", err)
	}
	got, err := s.List(ctx, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 || got[0].ID != "c" || got[1].ID != "b" {
		t.Fatalf("unexpected entries after prune: %+v", got)
	}
}

func TestRecordSkipsStarted(t *testing.T) {
	s := openStore(t, config.HistoryConfig{})
	ctx := context.Background()
	s.Record(ctx, dispatch.Utterance{ID: "u1", Source: dispatch.UtteranceRemote, Status: dispatch.StatusStarted})
	s.Record(ctx, dispatch.Utterance{ID: "u1", Source: dispatch.UtteranceRemote, Status: dispatch.StatusFailed, Error: "boom"})

	got, err := s.List(ctx, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 || got[0].Status != dispatch.StatusFailed || got[0].Error != "boom" {
		t.Fatalf("unexpected entries %+v", got)
	}
}

func TestEphemeralKeepsBoundedMemory(t *testing.T) {
	s, err := Open(context.Background(), config.HistoryConfig{RetentionMode: "ephemeral", MaxEntries: 2}, newLogger())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		if err := s.Append(ctx, Entry{ID: id, Status: dispatch.StatusCompleted}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	got, err := s.List(ctx, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 || got[0].ID != "c" || got[1].ID != "b" {
		t.Fatalf("unexpected entries %+v", got)
	}
}
