// Package httpapi serves the local HTTP control API.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/loqalabs/loqa-say/internal/dispatch"
	"github.com/loqalabs/loqa-say/internal/history"
	"github.com/loqalabs/loqa-say/internal/surface"
	"github.com/loqalabs/loqa-say/internal/voice"
)

type CommandQueue interface {
	Enqueue(dispatch.Request) error
}

type SurfaceView interface {
	State() surface.State
	Text() string
	SetText(string) bool
}

type HistoryReader interface {
	List(ctx context.Context, limit int) ([]history.Entry, error)
}

// Server routes the HTTP endpoints. Metrics may be nil.
type Server struct {
	Queue   CommandQueue
	Surface SurfaceView
	History HistoryReader
	Devices func() ([]string, error)
	Voices  func() ([]voice.Entry, error)
	Ready   func() bool
	Metrics http.Handler
	Log     *slog.Logger
}

type commandRequest struct {
	Command string `json:"command"`
	Arg     string `json:"arg,omitempty"`
}

type surfaceResponse struct {
	State surface.State `json:"state"`
	Text  string        `json:"text"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Handler returns the request router.
func (a *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", a.handleHealth)
	mux.HandleFunc("GET /readyz", a.handleReady)
	if a.Metrics != nil {
		mux.Handle("GET /metrics", a.Metrics)
	}
	mux.HandleFunc("POST /v1/commands", a.handleCommand)
	mux.HandleFunc("GET /v1/surface", a.handleSurface)
	mux.HandleFunc("PUT /v1/surface/text", a.handleSurfaceText)
	mux.HandleFunc("GET /v1/history", a.handleHistory)
	mux.HandleFunc("GET /v1/devices", a.handleDevices)
	mux.HandleFunc("GET /v1/voices", a.handleVoices)
	return mux
}

func (a *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (a *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	if a.Ready() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}

func (a *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	var req commandRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		a.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body: " + err.Error()})
		return
	}
	cmd, err := dispatch.ParseCommand(req.Command)
	if err != nil {
		a.writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	if err := a.Queue.Enqueue(dispatch.Request{Command: cmd, Arg: req.Arg, Source: dispatch.SourceHTTP}); err != nil {
		status := http.StatusServiceUnavailable
		if errors.Is(err, dispatch.ErrQueueFull) {
			status = http.StatusTooManyRequests
		}
		a.writeJSON(w, status, errorResponse{Error: err.Error()})
		return
	}
	a.writeJSON(w, http.StatusAccepted, map[string]string{"command": string(cmd), "status": "queued"})
}

func (a *Server) handleSurface(w http.ResponseWriter, _ *http.Request) {
	a.writeJSON(w, http.StatusOK, surfaceResponse{State: a.Surface.State(), Text: a.Surface.Text()})
}

func (a *Server) handleSurfaceText(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&body); err != nil {
		a.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body: " + err.Error()})
		return
	}
	if !a.Surface.SetText(body.Text) {
		a.writeJSON(w, http.StatusConflict, errorResponse{Error: "input surface is hidden"})
		return
	}
	a.writeJSON(w, http.StatusOK, surfaceResponse{State: a.Surface.State(), Text: a.Surface.Text()})
}

func (a *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			a.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "limit must be a positive integer"})
			return
		}
		limit = v
	}
	entries, err := a.History.List(r.Context(), limit)
	if err != nil {
		a.Log.Error("history query failed", slogError(err))
		a.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "history unavailable"})
		return
	}
	if entries == nil {
		entries = []history.Entry{}
	}
	a.writeJSON(w, http.StatusOK, entries)
}

func (a *Server) handleDevices(w http.ResponseWriter, _ *http.Request) {
	devices, err := a.Devices()
	if err != nil {
		a.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	if devices == nil {
		devices = []string{}
	}
	a.writeJSON(w, http.StatusOK, devices)
}

func (a *Server) handleVoices(w http.ResponseWriter, _ *http.Request) {
	voices, err := a.Voices()
	if err != nil {
		a.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	if voices == nil {
		voices = []voice.Entry{}
	}
	a.writeJSON(w, http.StatusOK, voices)
}

func (a *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.Log.Debug("failed to write response", slogError(err))
	}
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
