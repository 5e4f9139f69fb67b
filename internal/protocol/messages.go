package protocol

import "time"

// CommandMessage asks a running daemon to dispatch a command token.
type CommandMessage struct {
	RequestID string    `json:"request_id,omitempty"`
	Command   string    `json:"command"`
	Arg       string    `json:"arg,omitempty"`
	Sender    string    `json:"sender,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// CommandReply acknowledges a CommandMessage. Accepted means queued, not
// completed.
type CommandReply struct {
	RequestID string `json:"request_id,omitempty"`
	Accepted  bool   `json:"accepted"`
	Error     string `json:"error,omitempty"`
}

// SpeechStatus reports an utterance lifecycle event.
type SpeechStatus struct {
	UtteranceID string    `json:"utterance_id"`
	Source      string    `json:"source"`
	Status      string    `json:"status"`
	Voice       string    `json:"voice,omitempty"`
	Device      string    `json:"device,omitempty"`
	Samples     int       `json:"samples,omitempty"`
	SampleRate  int       `json:"sample_rate,omitempty"`
	Error       string    `json:"error,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// Heartbeat announces a live daemon.
type Heartbeat struct {
	NodeID      string    `json:"node_id"`
	Runtime     string    `json:"runtime"`
	Version     string    `json:"version"`
	Playing     bool      `json:"playing"`
	VoiceLoaded string    `json:"voice_loaded,omitempty"`
	Device      string    `json:"device,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

const (
	SubjectCommand         = "say.command"
	SubjectStatus          = "say.status"
	SubjectHeartbeatPrefix = "say.heartbeat"
)

// HeartbeatSubject returns the per-node heartbeat subject.
func HeartbeatSubject(nodeID string) string {
	return SubjectHeartbeatPrefix + "." + nodeID
}
