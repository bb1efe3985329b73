package events

import (
	"errors"
	"fmt"
	"sync"

	"fundvault/core/types"
)

// ErrCursorAhead rejects subscriptions whose cursor lies beyond the hub's
// current head, which happens when a consumer resumes against a hub whose
// sequence counter restarted.
var ErrCursorAhead = errors.New("events: cursor beyond head")

// payloadCarrier is implemented by event envelopes that can render themselves
// into the generic attribute representation.
type payloadCarrier interface {
	Event() *types.Event
}

// Record is a sequenced entry in the hub's event log. Sequences start at 1 and
// never repeat for the lifetime of the hub.
type Record struct {
	Sequence uint64       `json:"sequence"`
	Event    *types.Event `json:"event"`
}

// Hub is an in-memory, sequence-numbered event log with subscription support.
// It retains a bounded backlog so subscribers can resume from a cursor.
type Hub struct {
	mu       sync.Mutex
	log      []Record
	nextSeq  uint64
	capacity int
	subs     map[uint64]chan Record
	nextSub  uint64
}

const defaultHubCapacity = 4096

// NewHub constructs a hub retaining up to capacity records of backlog. A
// non-positive capacity falls back to the default.
func NewHub(capacity int) *Hub {
	if capacity <= 0 {
		capacity = defaultHubCapacity
	}
	return &Hub{
		nextSeq:  1,
		capacity: capacity,
		subs:     make(map[uint64]chan Record),
	}
}

// Emit implements the Emitter interface. Events that cannot render a payload
// are recorded with their type only.
func (h *Hub) Emit(evt Event) {
	if h == nil || evt == nil {
		return
	}
	payload := &types.Event{Type: evt.EventType(), Attributes: map[string]string{}}
	if carrier, ok := evt.(payloadCarrier); ok {
		if rendered := carrier.Event(); rendered != nil {
			payload = rendered
		}
	}
	h.mu.Lock()
	record := Record{Sequence: h.nextSeq, Event: payload}
	h.nextSeq++
	h.log = append(h.log, record)
	if len(h.log) > h.capacity {
		h.log = h.log[len(h.log)-h.capacity:]
	}
	for _, ch := range h.subs {
		select {
		case ch <- record:
		default:
			// Slow subscriber: drop rather than block the emitting operation.
		}
	}
	h.mu.Unlock()
}

// Subscribe registers a subscriber resuming after the supplied cursor (0 means
// from the beginning of the retained backlog). It returns the live channel, a
// cancel function, and the backlog of records already past the cursor.
func (h *Hub) Subscribe(cursor uint64) (<-chan Record, func(), []Record, error) {
	if h == nil {
		return nil, nil, nil, fmt.Errorf("events: hub not initialised")
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if cursor >= h.nextSeq {
		return nil, nil, nil, fmt.Errorf("%w: cursor %d, head %d", ErrCursorAhead, cursor, h.nextSeq-1)
	}
	var backlog []Record
	for _, record := range h.log {
		if record.Sequence > cursor {
			backlog = append(backlog, record)
		}
	}
	id := h.nextSub
	h.nextSub++
	ch := make(chan Record, 128)
	h.subs[id] = ch
	cancel := func() {
		h.mu.Lock()
		if existing, ok := h.subs[id]; ok {
			delete(h.subs, id)
			close(existing)
		}
		h.mu.Unlock()
	}
	return ch, cancel, backlog, nil
}

// Head returns the sequence of the most recently emitted record.
func (h *Hub) Head() uint64 {
	if h == nil {
		return 0
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.nextSeq - 1
}
