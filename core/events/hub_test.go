package events

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"fundvault/core/types"
)

type stubEvent struct {
	payload *types.Event
}

func (e stubEvent) EventType() string   { return e.payload.Type }
func (e stubEvent) Event() *types.Event { return e.payload }

func emitN(hub *Hub, n int) {
	for i := 0; i < n; i++ {
		hub.Emit(stubEvent{payload: &types.Event{
			Type:       "test.event",
			Attributes: map[string]string{"n": fmt.Sprintf("%d", i)},
		}})
	}
}

func TestHubSequencesFromOne(t *testing.T) {
	hub := NewHub(16)
	emitN(hub, 3)
	if hub.Head() != 3 {
		t.Fatalf("head = %d, want 3", hub.Head())
	}
	_, cancel, backlog, err := hub.Subscribe(0)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()
	if len(backlog) != 3 {
		t.Fatalf("backlog = %d, want 3", len(backlog))
	}
	for i, record := range backlog {
		if record.Sequence != uint64(i+1) {
			t.Fatalf("sequence[%d] = %d, want %d", i, record.Sequence, i+1)
		}
	}
}

func TestHubCursorResume(t *testing.T) {
	hub := NewHub(16)
	emitN(hub, 5)
	_, cancel, backlog, err := hub.Subscribe(3)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()
	if len(backlog) != 2 || backlog[0].Sequence != 4 {
		t.Fatalf("backlog after cursor 3 = %+v", backlog)
	}
	if _, _, _, err := hub.Subscribe(99); !errors.Is(err, ErrCursorAhead) {
		t.Fatalf("cursor beyond head: got %v, want ErrCursorAhead", err)
	}
}

func TestHubDeliversLiveRecords(t *testing.T) {
	hub := NewHub(16)
	ch, cancel, _, err := hub.Subscribe(0)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()
	emitN(hub, 1)
	select {
	case record := <-ch:
		if record.Sequence != 1 || record.Event.Type != "test.event" {
			t.Fatalf("unexpected record %+v", record)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for live record")
	}
}

func TestHubTrimsBacklogAtCapacity(t *testing.T) {
	hub := NewHub(4)
	emitN(hub, 10)
	_, cancel, backlog, err := hub.Subscribe(0)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()
	if len(backlog) != 4 {
		t.Fatalf("backlog = %d, want trimmed 4", len(backlog))
	}
	if backlog[0].Sequence != 7 {
		t.Fatalf("oldest retained = %d, want 7", backlog[0].Sequence)
	}
}

func TestHubCancelClosesChannel(t *testing.T) {
	hub := NewHub(4)
	ch, cancel, _, err := hub.Subscribe(0)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	cancel()
	if _, ok := <-ch; ok {
		t.Fatal("channel must be closed after cancel")
	}
	// Cancelling twice is safe.
	cancel()
}
