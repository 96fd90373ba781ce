package websocket

import (
	"encoding/json"

	"github.com/rocketscienceinc/gamesession-backend/internal/entity"
)

const (
	ActionCreate = "session:create"
	ActionJoin   = "session:join"
	ActionResume = "session:resume"
	ActionMove   = "session:move"
	ActionClose  = "session:close"

	ActionState  = "session:state"
	ActionClosed = "session:closed"
	ActionError  = "error"
)

// Message represents a WebSocket message with an action type and a payload.
type Message struct {
	Action  string          `json:"action"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type CreatePayload struct {
	Variant entity.Variant `json:"variant"`
	Options entity.Options `json:"options"`
}

type SessionPayload struct {
	SessionID string `json:"session_id"`
}

type MovePayload struct {
	SessionID       string        `json:"session_id"`
	ObservedVersion int64         `json:"observed_version"`
	Action          entity.Action `json:"action"`
}

type StatePayload struct {
	Session *entity.Session `json:"session"`
}

type ErrorPayload struct {
	Action  string          `json:"action"`
	Code    string          `json:"code"`
	Error   string          `json:"error"`
	Session *entity.Session `json:"session,omitempty"`
}
