// Package control bridges the message bus to the dispatch loop: commands in
// on say.command, utterance lifecycle out on say.status.
package control

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/loqalabs/loqa-say/internal/bus"
	"github.com/loqalabs/loqa-say/internal/dispatch"
	"github.com/loqalabs/loqa-say/internal/protocol"
	"github.com/nats-io/nats.go"
)

// Enqueuer accepts requests for the dispatch loop.
type Enqueuer interface {
	Enqueue(dispatch.Request) error
}

type Service struct {
	bus      *bus.Client
	dispatch Enqueuer
	sub      *nats.Subscription
	logger   *slog.Logger
	clock    func() time.Time
}

func NewService(busClient *bus.Client, d Enqueuer, log *slog.Logger) *Service {
	return &Service{
		bus:      busClient,
		dispatch: d,
		logger:   log.With(slog.String("component", "control-service")),
		clock:    time.Now,
	}
}

func (s *Service) Start() error {
	if s.bus == nil {
		return errors.New("control service requires a bus connection")
	}
	sub, err := s.bus.Conn().Subscribe(protocol.SubjectCommand, s.handleCommand)
	if err != nil {
		return err
	}
	s.sub = sub
	s.logger.Info("listening for commands", slog.String("subject", protocol.SubjectCommand))
	return nil
}

func (s *Service) Close() {
	if s.sub != nil {
		_ = s.sub.Drain()
	}
}

func (s *Service) Healthy() bool { return s.sub != nil && s.bus.Healthy() }

func (s *Service) handleCommand(msg *nats.Msg) {
	reply := s.accept(msg.Data)
	if msg.Reply == "" {
		return
	}
	data, err := json.Marshal(reply)
	if err != nil {
		s.logger.Warn("failed to marshal command reply", slogError(err))
		return
	}
	if err := msg.Respond(data); err != nil {
		s.logger.Warn("failed to reply to command", slogError(err))
	}
}

// accept decodes one command message and hands it to the dispatch loop.
func (s *Service) accept(data []byte) protocol.CommandReply {
	var req protocol.CommandMessage
	if err := json.Unmarshal(data, &req); err != nil {
		s.logger.Warn("failed to decode command", slogError(err))
		return protocol.CommandReply{Error: "invalid command message: " + err.Error()}
	}
	reply := protocol.CommandReply{RequestID: req.RequestID}
	cmd, err := dispatch.ParseCommand(req.Command)
	if err != nil {
		reply.Error = err.Error()
		return reply
	}
	if err := s.dispatch.Enqueue(dispatch.Request{Command: cmd, Arg: req.Arg, Source: dispatch.SourceBus}); err != nil {
		reply.Error = err.Error()
		return reply
	}
	s.logger.Debug("command accepted",
		slog.String("command", string(cmd)),
		slog.String("sender", req.Sender),
		slog.String("request_id", req.RequestID))
	reply.Accepted = true
	return reply
}

// Record publishes the utterance as a say.status event.
func (s *Service) Record(_ context.Context, u dispatch.Utterance) {
	status := protocol.SpeechStatus{
		UtteranceID: u.ID,
		Source:      u.Source,
		Status:      u.Status,
		Voice:       u.Voice,
		Device:      u.Device,
		Samples:     u.Samples,
		SampleRate:  u.SampleRate,
		Error:       u.Error,
		Timestamp:   s.clock().UTC(),
	}
	if err := s.bus.PublishJSON(protocol.SubjectStatus, status); err != nil {
		s.logger.Warn("failed to publish speech status", slogError(err))
	}
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
