package websocket

import "github.com/stemsi/exstem-client/internal/exam"

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionSelect   Action = "select"
	ActionNavigate Action = "navigate"
	ActionSubmit   Action = "submit"
	ActionRetry    Action = "retry"
	ActionPing     Action = "ping"
)

// RequestPayload is every client message. Option is set for select,
// Direction for navigate.
type RequestPayload struct {
	Action    Action `json:"action"`
	Option    string `json:"option,omitempty"`
	Direction string `json:"direction,omitempty"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventSnapshot Event = "snapshot"
	EventError    Event = "error"
	EventPong     Event = "pong"
)

// SnapshotResponse carries the full exam state; sent on connect, on every
// tick, and after every change.
type SnapshotResponse struct {
	Event    Event         `json:"event"`
	Snapshot exam.Snapshot `json:"snapshot"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
