package status

import (
	"time"

	"xboxbt-driver/internal/device"
)

// Message is sent from the server to websocket clients.
type Message struct {
	Type        string          `json:"type"` // "full", "event" or "selected"
	Seq         int64           `json:"seq"`
	Timestamp   int64           `json:"timestamp"` // unix milliseconds
	Controllers []device.Status `json:"controllers,omitempty"`
	Event       *device.Event   `json:"event,omitempty"`
	Controller  *int            `json:"controller,omitempty"`
}

// NewFullMessage carries the status of every attached controller.
func NewFullMessage(seq int64, controllers []device.Status) *Message {
	return &Message{
		Type:        "full",
		Seq:         seq,
		Timestamp:   time.Now().UnixMilli(),
		Controllers: controllers,
	}
}

// NewEventMessage carries one session event and the status after it.
func NewEventMessage(seq int64, ev device.Event, controllers []device.Status) *Message {
	return &Message{
		Type:        "event",
		Seq:         seq,
		Timestamp:   time.Now().UnixMilli(),
		Event:       &ev,
		Controllers: controllers,
	}
}

// NewSelectedMessage confirms a controller selection.
func NewSelectedMessage(id int) *Message {
	return &Message{
		Type:       "selected",
		Timestamp:  time.Now().UnixMilli(),
		Controller: &id,
	}
}

// ClientMessage is sent from a client to the server. "select" restricts
// events to one controller id; -1 selects all of them again.
type ClientMessage struct {
	Type       string `json:"type"`
	Controller int    `json:"controller"`
}
