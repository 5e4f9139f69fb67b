package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/loqalabs/loqa-say/internal/bus"
	"github.com/loqalabs/loqa-say/internal/config"
	"github.com/loqalabs/loqa-say/internal/control"
	"github.com/loqalabs/loqa-say/internal/dispatch"
	"github.com/loqalabs/loqa-say/internal/natsserver"
	"github.com/loqalabs/loqa-say/internal/protocol"
	"github.com/loqalabs/loqa-say/internal/voice"
)

type queue struct {
	mu   sync.Mutex
	reqs []dispatch.Request
	err  error
}

func (q *queue) Enqueue(req dispatch.Request) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.reqs = append(q.reqs, req)
	return nil
}

func startDaemonBus(t *testing.T, q *queue) config.BusConfig {
	t.Helper()
	cfg := config.BusConfig{
		Enabled:        true,
		Embedded:       true,
		Host:           "127.0.0.1",
		Port:           -1,
		StoreDir:       t.TempDir(),
		ConnectTimeout: 2000,
	}
	srv, err := natsserver.Start(cfg, quietLogger())
	if err != nil {
		t.Fatalf("start embedded server: %v", err)
	}
	t.Cleanup(srv.Shutdown)
	cfg.Servers = []string{srv.ClientURL()}

	client, err := bus.Connect(context.Background(), cfg, "loqa-say-test", quietLogger())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(client.Close)
	svc := control.NewService(client, q, quietLogger())
	if err := svc.Start(); err != nil {
		t.Fatalf("start control: %v", err)
	}
	t.Cleanup(svc.Close)
	if err := client.Conn().Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	return cfg
}

func TestNewCommandMessage(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.FixedZone("x", 3600))
	msg := newCommandMessage(dispatch.SpeakText, "hello there", now)
	if msg.Command != "speak-text" || msg.Arg != "hello there" || msg.Sender != "loqa-sayctl" {
		t.Fatalf("unexpected message %+v", msg)
	}
	if msg.RequestID == "" {
		t.Fatalf("expected request id")
	}
	if msg.Timestamp.Location() != time.UTC || !msg.Timestamp.Equal(now) {
		t.Fatalf("unexpected timestamp %v", msg.Timestamp)
	}
}

func TestSendQueuesCommand(t *testing.T) {
	q := &queue{}
	cfg := startDaemonBus(t, q)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	msg := newCommandMessage(dispatch.ChooseVoice, "amy", time.Now())
	reply, err := send(ctx, cfg, msg)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if reply.RequestID != msg.RequestID {
		t.Fatalf("reply id %q, want %q", reply.RequestID, msg.RequestID)
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.reqs) != 1 {
		t.Fatalf("expected 1 queued request, got %d", len(q.reqs))
	}
	got := q.reqs[0]
	if got.Command != dispatch.ChooseVoice || got.Arg != "amy" || got.Source != dispatch.SourceBus {
		t.Fatalf("unexpected request %+v", got)
	}
}

func TestSendReportsRejection(t *testing.T) {
	q := &queue{err: dispatch.ErrQueueFull}
	cfg := startDaemonBus(t, q)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := send(ctx, cfg, newCommandMessage(dispatch.Stop, "", time.Now()))
	if !errors.Is(err, errRejected) {
		t.Fatalf("expected rejection, got %v", err)
	}
}

func TestGetJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/voices":
			_ = json.NewEncoder(w).Encode([]voice.Entry{{Name: "amy", Path: "/models/amy.onnx"}})
		default:
			w.WriteHeader(http.StatusInternalServerError)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "history unavailable"})
		}
	}))
	defer srv.Close()

	var voices []voice.Entry
	if err := getJSON(context.Background(), srv.Client(), srv.URL, "/v1/voices", &voices); err != nil {
		t.Fatalf("get voices: %v", err)
	}
	if len(voices) != 1 || voices[0].Name != "amy" {
		t.Fatalf("unexpected voices %+v", voices)
	}

	var entries []any
	err := getJSON(context.Background(), srv.Client(), srv.URL, "/v1/history", &entries)
	if err == nil || !strings.Contains(err.Error(), "history unavailable") {
		t.Fatalf("expected server error, got %v", err)
	}
}

func TestAPIBase(t *testing.T) {
	if got := apiBase(config.HTTPConfig{Bind: "0.0.0.0", Port: 8765}); got != "http://127.0.0.1:8765" {
		t.Fatalf("unexpected base %q", got)
	}
	if got := apiBase(config.HTTPConfig{Bind: "192.168.1.5", Port: 9000}); got != "http://192.168.1.5:9000" {
		t.Fatalf("unexpected base %q", got)
	}
}

func TestPrintEvent(t *testing.T) {
	var buf bytes.Buffer
	data, _ := json.Marshal(protocol.SpeechStatus{UtteranceID: "u1", Source: "remote", Status: "failed", Error: "boom"})
	printEvent(&buf, protocol.SubjectStatus, data)
	out := buf.String()
	if !strings.Contains(out, "u1 failed source=remote") || !strings.Contains(out, `error="boom"`) {
		t.Fatalf("unexpected output %q", out)
	}

	buf.Reset()
	data, _ = json.Marshal(protocol.Heartbeat{NodeID: "n1", Playing: true})
	printEvent(&buf, protocol.HeartbeatSubject("n1"), data)
	if !strings.Contains(buf.String(), "heartbeat node=n1 playing=true") {
		t.Fatalf("unexpected output %q", buf.String())
	}
}
