package events

import (
	"context"
	"strings"
	"sync"
)

const (
	TypeSessionUpdate = "session_update"
	TypeSessionClosed = "session_closed"

	defaultBuffer = 16
)

type SessionEvent struct {
	SessionID string `json:"session_id"`
	Seq       int64  `json:"seq"`
	Type      string `json:"type"`
	Ts        string `json:"ts"`
	Payload   any    `json:"payload,omitempty"`
}

// Broker fans session events out to subscribers. A subscriber whose buffer
// is full loses its oldest pending event, never the newest: every event
// carries a full snapshot, so the latest one is all a slow reader needs.
type Broker struct {
	mu          sync.RWMutex
	buffer      int
	subscribers map[string]map[chan SessionEvent]struct{}
}

func NormalizeType(eventType string) string {
	return strings.TrimSpace(strings.ToLower(eventType))
}

func NewBroker(buffer int) *Broker {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &Broker{
		buffer:      buffer,
		subscribers: map[string]map[chan SessionEvent]struct{}{},
	}
}

func (b *Broker) Subscribe(ctx context.Context, sessionID string) <-chan SessionEvent {
	ch := make(chan SessionEvent, b.buffer)

	b.mu.Lock()
	if b.subscribers[sessionID] == nil {
		b.subscribers[sessionID] = map[chan SessionEvent]struct{}{}
	}
	b.subscribers[sessionID][ch] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		if b.subscribers[sessionID] != nil {
			delete(b.subscribers[sessionID], ch)
			if len(b.subscribers[sessionID]) == 0 {
				delete(b.subscribers, sessionID)
			}
		}
		close(ch)
		b.mu.Unlock()
	}()

	return ch
}

func (b *Broker) Publish(event SessionEvent) {
	event.Type = NormalizeType(event.Type)

	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subscribers[event.SessionID] {
		deliverLatest(ch, event)
	}
}

func deliverLatest(ch chan SessionEvent, event SessionEvent) {
	for {
		select {
		case ch <- event:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}
