package app

import (
	"sort"
	"sync"

	"quiz-session-service/internal/domain"
)

// eventHub fans session events out to subscriber channels. Every published
// event gets the next per-session sequence number; the most recent event of
// each kind is retained so reconnecting clients can replay the state they
// missed without the hub keeping a full log.
type eventHub struct {
	sessionID string

	mu       sync.Mutex
	seq      uint64
	subs     map[chan domain.Event]struct{}
	retained map[domain.EventKind]domain.Event
	closed   bool
}

func newEventHub(sessionID string) *eventHub {
	return &eventHub{
		sessionID: sessionID,
		subs:      make(map[chan domain.Event]struct{}),
		retained:  make(map[domain.EventKind]domain.Event),
	}
}

// publish assigns the next sequence number and delivers to all subscribers.
// Sends never block: a slow subscriber has its oldest pending event dropped
// so one stalled connection cannot hold up the session.
func (h *eventHub) publish(kind domain.EventKind, payload interface{}) domain.Event {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.seq++
	event := domain.Event{
		SessionID: h.sessionID,
		Seq:       h.seq,
		Kind:      kind,
		Payload:   payload,
	}
	h.retained[kind] = event

	for ch := range h.subs {
		select {
		case ch <- event:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- event
		}
	}
	return event
}

// subscribe registers a new subscriber. Retained events with a sequence number
// greater than sinceSeq are queued first, oldest to newest, so a reconnecting
// client catches up on the phase, tally, and leaderboard it missed.
func (h *eventHub) subscribe(sinceSeq uint64) (<-chan domain.Event, func()) {
	ch := make(chan domain.Event, 16)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	replay := make([]domain.Event, 0, len(h.retained))
	for _, event := range h.retained {
		if event.Seq > sinceSeq {
			replay = append(replay, event)
		}
	}
	sort.Slice(replay, func(i, j int) bool { return replay[i].Seq < replay[j].Seq })
	for _, event := range replay {
		ch <- event
	}
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if _, ok := h.subs[ch]; ok {
			delete(h.subs, ch)
			close(ch)
		}
		h.mu.Unlock()
	}
	return ch, cancel
}

// lastSeq reports the sequence number of the most recent event.
func (h *eventHub) lastSeq() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.seq
}

// close drops all subscribers after the final events have been delivered.
func (h *eventHub) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for ch := range h.subs {
		delete(h.subs, ch)
		close(ch)
	}
}
