package websocket

import (
	"encoding/json"

	"github.com/google/uuid"
)

// ─── Actions (Client → Server) ──────────────────────────────────────

// Action names what a client message asks for.
type Action string

const (
	ActionAutosave Action = "autosave"
	ActionSubmit   Action = "submit"
	ActionReport   Action = "report"
	ActionPing     Action = "ping"
)

// RequestPayload is every client message. Fields unused by the action are ignored.
// RequestID is echoed back so the client can match replies.
type RequestPayload struct {
	Action         Action          `json:"action"`
	RequestID      string          `json:"request_id,omitempty"`
	QuestionID     uuid.UUID       `json:"question_id,omitempty"`
	SelectedOption string          `json:"selected_option,omitempty"`
	Kind           string          `json:"kind,omitempty"`
	Detail         json.RawMessage `json:"detail,omitempty"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

// Event names a server message.
type Event string

const (
	EventSaved    Event = "saved"
	EventFinished Event = "finished"
	EventReported Event = "reported"
	EventPong     Event = "pong"
	EventError    Event = "error"
)

// ResponsePayload is every server message.
type ResponsePayload struct {
	Event     Event       `json:"event"`
	RequestID string      `json:"request_id,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Error     *ErrorBody  `json:"error,omitempty"`
}

// ErrorBody mirrors the REST error body.
type ErrorBody struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}
