// Package history keeps a SQLite record of finished utterances.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/loqalabs/loqa-say/internal/config"
	"github.com/loqalabs/loqa-say/internal/dispatch"
	_ "modernc.org/sqlite"
)

// Entry is one finished utterance.
type Entry struct {
	ID         string    `json:"id"`
	Source     string    `json:"source"`
	Text       string    `json:"text,omitempty"`
	Voice      string    `json:"voice,omitempty"`
	Device     string    `json:"device,omitempty"`
	SampleRate int       `json:"sample_rate"`
	Samples    int       `json:"samples"`
	Status     string    `json:"status"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Store is a SQLite-backed utterance log. In ephemeral mode entries live in
// memory only and are lost on exit.
type Store struct {
	db    *sql.DB
	cfg   config.HistoryConfig
	log   *slog.Logger
	clock func() time.Time

	mu     sync.Mutex
	memory []Entry
}

// Open initializes the history store according to config.
func Open(ctx context.Context, cfg config.HistoryConfig, log *slog.Logger) (*Store, error) {
	log = log.With(slog.String("component", "history"))
	if cfg.RetentionMode == "ephemeral" {
		return &Store{cfg: cfg, log: log, clock: time.Now}, nil
	}

	dir := filepath.Dir(cfg.Path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", cfg.Path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &Store{db: db, cfg: cfg, log: log, clock: time.Now}

	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	if cfg.VacuumOnStart {
		if err := s.vacuum(ctx); err != nil {
			log.Warn("history vacuum failed", slog.String("error", err.Error()))
		}
	}

	if err := s.Prune(ctx); err != nil {
		log.Warn("history prune on start failed", slog.String("error", err.Error()))
	}

	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS utterances (
    id TEXT PRIMARY KEY,
    source TEXT NOT NULL,
    text TEXT,
    voice TEXT,
    device TEXT,
    sample_rate INTEGER,
    samples INTEGER,
    status TEXT NOT NULL,
    error TEXT,
    started_at INTEGER NOT NULL,
    finished_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_utterances_finished ON utterances(finished_at);
`
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

func (s *Store) vacuum(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return err
}

// Close releases underlying resources.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Append writes a finished utterance. Text is dropped unless store_text is on.
func (s *Store) Append(ctx context.Context, e Entry) error {
	if e.FinishedAt.IsZero() {
		e.FinishedAt = s.clock()
	}
	if e.StartedAt.IsZero() {
		e.StartedAt = e.FinishedAt
	}
	e.StartedAt = e.StartedAt.UTC()
	e.FinishedAt = e.FinishedAt.UTC()
	if !s.cfg.StoreText {
		e.Text = ""
	}

	if s.db == nil {
		s.mu.Lock()
		s.memory = append(s.memory, e)
		if keep := s.cfg.MaxEntries; keep > 0 && len(s.memory) > keep {
			s.memory = append([]Entry(nil), s.memory[len(s.memory)-keep:]...)
		}
		s.mu.Unlock()
		return nil
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO utterances(id, source, text, voice, device, sample_rate, samples, status, error, started_at, finished_at)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET status=excluded.status, error=excluded.error, finished_at=excluded.finished_at`,
		e.ID, e.Source, e.Text, e.Voice, e.Device, e.SampleRate, e.Samples, e.Status, e.Error,
		e.StartedAt.UnixNano(), e.FinishedAt.UnixNano())
	return err
}

// List returns up to limit entries, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 100
	}
	if s.db == nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		out := make([]Entry, 0, min(limit, len(s.memory)))
		for i := len(s.memory) - 1; i >= 0 && len(out) < limit; i-- {
			out = append(out, s.memory[i])
		}
		return out, nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, source, text, voice, device, sample_rate, samples, status, error, started_at, finished_at
		 FROM utterances ORDER BY finished_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var text, voice, device, errText sql.NullString
		var started, finished int64
		if err := rows.Scan(&e.ID, &e.Source, &text, &voice, &device, &e.SampleRate, &e.Samples, &e.Status, &errText, &started, &finished); err != nil {
			return nil, err
		}
		e.Text, e.Voice, e.Device, e.Error = text.String, voice.String, device.String, errText.String
		e.StartedAt = time.Unix(0, started).UTC()
		e.FinishedAt = time.Unix(0, finished).UTC()
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Prune applies configured retention (called on startup and after appends).
func (s *Store) Prune(ctx context.Context) (err error) {
	if s.db == nil {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if s.cfg.RetentionDays > 0 {
		cutoff := s.clock().Add(-time.Duration(s.cfg.RetentionDays) * 24 * time.Hour)
		if _, err = tx.ExecContext(ctx, `DELETE FROM utterances WHERE finished_at < ?`, cutoff.UnixNano()); err != nil {
			return err
		}
	}
	if s.cfg.MaxEntries > 0 {
		_, err = tx.ExecContext(ctx, `DELETE FROM utterances WHERE id IN (
			SELECT id FROM utterances ORDER BY finished_at DESC LIMIT -1 OFFSET ?
		)`, s.cfg.MaxEntries)
		if err != nil {
			return err
		}
	}
	err = tx.Commit()
	return err
}

// Record stores finished utterances; started events are ignored.
func (s *Store) Record(ctx context.Context, u dispatch.Utterance) {
	if u.Status == dispatch.StatusStarted {
		return
	}
	entry := Entry{
		ID:         u.ID,
		Source:     u.Source,
		Text:       u.Text,
		Voice:      u.Voice,
		Device:     u.Device,
		SampleRate: u.SampleRate,
		Samples:    u.Samples,
		Status:     u.Status,
		Error:      u.Error,
		StartedAt:  u.StartedAt,
		FinishedAt: u.FinishedAt,
	}
	if err := s.Append(ctx, entry); err != nil {
		s.log.Warn("failed to record utterance", slog.String("id", u.ID), slog.String("error", err.Error()))
		return
	}
	if err := s.Prune(ctx); err != nil {
		s.log.Warn("history prune failed", slog.String("error", err.Error()))
	}
}
