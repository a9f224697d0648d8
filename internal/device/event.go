package device

import (
	"xboxbt-driver/internal/battery"
	"xboxbt-driver/internal/rumble"
)

// EventKind says what changed on a session.
type EventKind string

const (
	EventConnected    EventKind = "connected"
	EventDisconnected EventKind = "disconnected"
	EventProfile      EventKind = "profile"
	EventBattery      EventKind = "battery"
	EventMouseMode    EventKind = "mouse_mode"
)

// Event is a state change reported to the Observer.
type Event struct {
	Kind      EventKind      `json:"kind"`
	ID        int            `json:"id"`
	Address   string         `json:"address"`
	Profile   uint8          `json:"profile,omitempty"`
	Battery   *battery.State `json:"battery,omitempty"`
	MouseMode bool           `json:"mouse_mode,omitempty"`
}

// Observer receives session events. It is called from the report path and
// must not block.
type Observer func(Event)

// Status is a point-in-time view of a session.
type Status struct {
	ID        int            `json:"id"`
	Name      string         `json:"name"`
	Address   string         `json:"address"`
	Product   string         `json:"product"`
	Quirks    string         `json:"quirks"`
	Variant   string         `json:"variant"`
	Profile   uint8          `json:"profile"`
	MouseMode bool           `json:"mouse_mode"`
	Battery   *battery.State `json:"battery,omitempty"`
	Rumble    rumble.Stats   `json:"rumble"`
}

func (s *Session) notify(ev Event) {
	if s.observer == nil {
		return
	}
	ev.ID = s.id
	ev.Address = s.identity.Address
	s.observer(ev)
}
