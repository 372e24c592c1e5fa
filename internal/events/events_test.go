package events

import (
	"context"
	"sync"
	"testing"
	"time"
)

type snapshot struct {
	Loading bool
}

func receiveEvent(t *testing.T, ch <-chan SessionEvent) SessionEvent {
	t.Helper()
	select {
	case ev, ok := <-ch:
		if !ok {
			t.Fatal("channel closed before receive")
		}
		return ev
	case <-time.After(500 * time.Millisecond):
		t.Fatal("timed out waiting for event")
	}
	return SessionEvent{}
}

func drain(ch <-chan SessionEvent) []SessionEvent {
	var out []SessionEvent
	for {
		select {
		case ev := <-ch:
			out = append(out, ev)
		default:
			return out
		}
	}
}

func waitForClosed(t *testing.T, ch <-chan SessionEvent) {
	t.Helper()
	deadline := time.After(500 * time.Millisecond)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for channel close")
		}
	}
}

func update(sessionID string, seq int64, loading bool) SessionEvent {
	return SessionEvent{SessionID: sessionID, Seq: seq, Type: TypeSessionUpdate, Payload: snapshot{Loading: loading}}
}

func TestNewBroker_DefaultBuffer(t *testing.T) {
	if b := NewBroker(0); b.buffer != defaultBuffer {
		t.Fatalf("expected default buffer %d, got %d", defaultBuffer, b.buffer)
	}
	if b := NewBroker(-3); b.buffer != defaultBuffer {
		t.Fatalf("expected default buffer for negative size, got %d", b.buffer)
	}
	if b := NewBroker(4); b.buffer != 4 {
		t.Fatalf("expected buffer 4, got %d", b.buffer)
	}
}

func TestPublish_ReachesOnlyThatSession(t *testing.T) {
	b := NewBroker(0)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	first := b.Subscribe(ctx, "session-1")
	second := b.Subscribe(ctx, "session-1")
	other := b.Subscribe(ctx, "session-2")

	b.Publish(update("session-1", 1, true))

	for _, ch := range []<-chan SessionEvent{first, second} {
		if got := receiveEvent(t, ch); got.Seq != 1 || got.SessionID != "session-1" {
			t.Fatalf("unexpected event: %+v", got)
		}
	}
	if got := drain(other); len(got) != 0 {
		t.Fatalf("expected nothing for session-2, got %+v", got)
	}
}

func TestPublish_FullBufferKeepsLatestSnapshot(t *testing.T) {
	b := NewBroker(2)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := b.Subscribe(ctx, "session-1")
	for seq := int64(1); seq <= 4; seq++ {
		b.Publish(update("session-1", seq, true))
	}
	b.Publish(update("session-1", 5, false))

	got := drain(ch)
	if len(got) != 2 {
		t.Fatalf("expected a full buffer of 2, got %d", len(got))
	}
	if got[0].Seq != 4 || got[1].Seq != 5 {
		t.Fatalf("expected seq 4 then 5, got %d then %d", got[0].Seq, got[1].Seq)
	}
	if final := got[1].Payload.(snapshot); final.Loading {
		t.Fatal("expected the idle snapshot to be delivered last")
	}
}

func TestPublish_SessionClosedSurvivesBacklog(t *testing.T) {
	b := NewBroker(1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := b.Subscribe(ctx, "session-1")
	for seq := int64(1); seq <= 10; seq++ {
		b.Publish(update("session-1", seq, true))
	}
	b.Publish(SessionEvent{SessionID: "session-1", Seq: 11, Type: TypeSessionClosed})

	if got := receiveEvent(t, ch); got.Type != TypeSessionClosed {
		t.Fatalf("expected session_closed, got %q (seq %d)", got.Type, got.Seq)
	}
}

func TestPublish_NormalizesType(t *testing.T) {
	b := NewBroker(0)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := b.Subscribe(ctx, "session-1")
	b.Publish(SessionEvent{SessionID: "session-1", Type: "  Session_Closed "})
	if got := receiveEvent(t, ch); got.Type != TypeSessionClosed {
		t.Fatalf("unexpected type %q", got.Type)
	}
}

func TestSubscribe_CancelClosesAndForgets(t *testing.T) {
	b := NewBroker(0)
	ctx, cancel := context.WithCancel(context.Background())

	ch := b.Subscribe(ctx, "session-1")
	b.Publish(update("session-1", 1, true))
	cancel()
	waitForClosed(t, ch)

	b.mu.RLock()
	_, exists := b.subscribers["session-1"]
	b.mu.RUnlock()
	if exists {
		t.Fatal("expected the session entry to be removed")
	}

	// Publishing to a session nobody watches is a no-op.
	b.Publish(update("session-1", 2, false))
}

func TestPublish_SlowReaderEndsOnLatest(t *testing.T) {
	b := NewBroker(2)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := b.Subscribe(ctx, "session-1")

	var wg sync.WaitGroup
	for worker := 0; worker < 8; worker++ {
		wg.Add(1)
		go func(offset int64) {
			defer wg.Done()
			for i := int64(0); i < 50; i++ {
				b.Publish(update("session-1", offset*100+i, true))
			}
		}(int64(worker))
	}
	wg.Wait()
	b.Publish(update("session-1", 10_000, false))

	got := drain(ch)
	if len(got) == 0 {
		t.Fatal("expected buffered events")
	}
	if last := got[len(got)-1]; last.Seq != 10_000 {
		t.Fatalf("expected the final snapshot last, got seq %d", last.Seq)
	}
}
