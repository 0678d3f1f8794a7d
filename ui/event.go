package ui

import "fmt"

// EventType classifies a client-to-server UI event.
type EventType string

const (
	EventSubmit  EventType = "submit"
	EventCancel  EventType = "cancel"
	EventSelect  EventType = "select"
	EventApprove EventType = "approve"
	EventReject  EventType = "reject"
	EventUpdate  EventType = "update"
)

// Event is a user interaction with a rendered component, fed back into
// the next message turn. For submit events the payload holds the form
// field values; for approve/reject it holds the requestId being decided.
type Event struct {
	Type      EventType      `json:"type"`
	Component ComponentID    `json:"componentId,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// Validate rejects event types outside the protocol.
func (e *Event) Validate() error {
	switch e.Type {
	case EventSubmit, EventCancel, EventSelect, EventApprove, EventReject, EventUpdate:
		return nil
	}
	return fmt.Errorf("unknown event type %q", e.Type)
}

// RequestID extracts the requestId an approve or reject event refers to.
func (e *Event) RequestID() string {
	if e.Payload == nil {
		return ""
	}
	id, _ := e.Payload["requestId"].(string)
	return id
}
