package status

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"xboxbt-driver/internal/device"
)

const (
	fullSyncInterval = 5 * time.Second
	eventBuffer      = 64
)

// Source lists the attached controllers.
type Source interface {
	Statuses() []device.Status
}

// Broadcaster turns session events into websocket messages.
type Broadcaster struct {
	hub     *Hub
	src     Source
	events  chan device.Event
	seq     atomic.Int64
	dropped atomic.Uint64
	log     *zap.Logger
}

// NewBroadcaster feeds the hub from session events and src.
func NewBroadcaster(h *Hub, src Source, log *zap.Logger) *Broadcaster {
	if log == nil {
		log = zap.NewNop()
	}
	return &Broadcaster{
		hub:    h,
		src:    src,
		events: make(chan device.Event, eventBuffer),
		log:    log,
	}
}

// Observe queues a session event. It never blocks; events are dropped while
// the queue is full.
func (b *Broadcaster) Observe(ev device.Event) {
	select {
	case b.events <- ev:
	default:
		b.dropped.Add(1)
	}
}

// Dropped returns the number of events lost to a full queue.
func (b *Broadcaster) Dropped() uint64 { return b.dropped.Load() }

// Run broadcasts events as they arrive and a full status periodically.
func (b *Broadcaster) Run(ctx context.Context) {
	ticker := time.NewTicker(fullSyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-b.events:
			b.send(NewEventMessage(b.seq.Add(1), ev, b.src.Statuses()), ev.ID)
		case <-ticker.C:
			if b.hub.Clients() > 0 {
				b.send(NewFullMessage(b.seq.Add(1), b.src.Statuses()), AllControllers)
			}
		}
	}
}

// SendInitialState queues the current full status on a client that has not
// been registered yet.
func (b *Broadcaster) SendInitialState(c *Client) {
	data, err := json.Marshal(NewFullMessage(b.seq.Add(1), b.src.Statuses()))
	if err != nil {
		b.log.Warn("marshal status", zap.Error(err))
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

func (b *Broadcaster) send(msg *Message, id int) {
	data, err := json.Marshal(msg)
	if err != nil {
		b.log.Warn("marshal status", zap.Error(err))
		return
	}
	b.hub.Broadcast(data, id)
}
