package control

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/loqalabs/loqa-say/internal/bus"
	"github.com/loqalabs/loqa-say/internal/config"
	"github.com/loqalabs/loqa-say/internal/dispatch"
	"github.com/loqalabs/loqa-say/internal/natsserver"
	"github.com/loqalabs/loqa-say/internal/protocol"
	"github.com/nats-io/nats.go"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

type recordingQueue struct {
	mu   sync.Mutex
	reqs []dispatch.Request
	err  error
}

func (q *recordingQueue) Enqueue(req dispatch.Request) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.reqs = append(q.reqs, req)
	return nil
}

func TestAcceptQueuesKnownCommand(t *testing.T) {
	q := &recordingQueue{}
	s := NewService(nil, q, newLogger())

	reply := s.accept([]byte(`{"request_id":"r1","command":"speak-text","arg":"hi there"}`))
	if !reply.Accepted || reply.RequestID != "r1" || reply.Error != "" {
		t.Fatalf("unexpected reply %+v", reply)
	}
	if len(q.reqs) != 1 {
		t.Fatalf("expected one queued request, got %d", len(q.reqs))
	}
	got := q.reqs[0]
	if got.Command != dispatch.SpeakText || got.Arg != "hi there" || got.Source != dispatch.SourceBus {
		t.Fatalf("unexpected request %+v", got)
	}
}

func TestAcceptRejectsBadInput(t *testing.T) {
	q := &recordingQueue{}
	s := NewService(nil, q, newLogger())

	if reply := s.accept([]byte(`{not json`)); reply.Accepted || reply.Error == "" {
		t.Fatalf("expected decode error, got %+v", reply)
	}
	if reply := s.accept([]byte(`{"command":"explode"}`)); reply.Accepted || reply.Error == "" {
		t.Fatalf("expected unknown command error, got %+v", reply)
	}
	if len(q.reqs) != 0 {
		t.Fatal("invalid commands reached the queue")
	}
}

func TestAcceptReportsQueueErrors(t *testing.T) {
	q := &recordingQueue{err: dispatch.ErrQueueFull}
	s := NewService(nil, q, newLogger())
	if reply := s.accept([]byte(`{"command":"stop"}`)); reply.Accepted || reply.Error != dispatch.ErrQueueFull.Error() {
		t.Fatalf("expected queue error, got %+v", reply)
	}
}

func startBus(t *testing.T) *bus.Client {
	t.Helper()
	cfg := config.BusConfig{
		Enabled:        true,
		Embedded:       true,
		Host:           "127.0.0.1",
		Port:           -1,
		StoreDir:       t.TempDir(),
		ConnectTimeout: 2000,
	}
	srv, err := natsserver.Start(cfg, newLogger())
	if err != nil {
		t.Fatalf("start embedded server: %v", err)
	}
	t.Cleanup(srv.Shutdown)

	cfg.Servers = []string{srv.ClientURL()}
	client, err := bus.Connect(context.Background(), cfg, "loqa-say-test", newLogger())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(client.Close)
	return client
}

func TestServiceOverBus(t *testing.T) {
	client := startBus(t)
	q := &recordingQueue{}
	s := NewService(client, q, newLogger())
	if err := s.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer s.Close()

	statuses := make(chan *nats.Msg, 1)
	sub, err := client.Conn().ChanSubscribe(protocol.SubjectStatus, statuses)
	if err != nil {
		t.Fatalf("subscribe status: %v", err)
	}
	defer sub.Unsubscribe()
	if err := client.Conn().Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var reply protocol.CommandReply
	req := protocol.CommandMessage{RequestID: "abc", Command: "toggle-input-surface", Timestamp: time.Now()}
	if err := client.RequestJSON(ctx, protocol.SubjectCommand, req, &reply); err != nil {
		t.Fatalf("request: %v", err)
	}
	if !reply.Accepted || reply.RequestID != "abc" {
		t.Fatalf("unexpected reply %+v", reply)
	}

	s.Record(ctx, dispatch.Utterance{ID: "u1", Source: dispatch.UtteranceRemote, Status: dispatch.StatusCompleted, Samples: 10})
	select {
	case msg := <-statuses:
		var status protocol.SpeechStatus
		if err := json.Unmarshal(msg.Data, &status); err != nil {
			t.Fatalf("decode status: %v", err)
		}
		if status.UtteranceID != "u1" || status.Status != dispatch.StatusCompleted || status.Samples != 10 {
			t.Fatalf("unexpected status %+v", status)
		}
	case <-ctx.Done():
		t.Fatal("no status published")
	}
}
