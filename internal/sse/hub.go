// Package sse fans captured-mail notifications out to server-sent event streams.
package sse

import (
	"encoding/json"
	"fmt"
	"sync"
)

// Event is one server-sent event frame.
type Event struct {
	Name string
	Data any
}

// Encode renders the event in text/event-stream framing.
func (e Event) Encode() ([]byte, error) {
	data, err := json.Marshal(e.Data)
	if err != nil {
		return nil, fmt.Errorf("encode event %q: %w", e.Name, err)
	}
	return []byte(fmt.Sprintf("event: %s\ndata: %s\n\n", e.Name, data)), nil
}

// Hub delivers frames to subscribers of a recipient address. Subscribers of
// the empty address receive every frame. Slow subscribers drop frames.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[chan []byte]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[chan []byte]struct{})}
}

func (h *Hub) Subscribe(address string) (<-chan []byte, func()) {
	ch := make(chan []byte, 8)
	h.mu.Lock()
	if _, ok := h.subs[address]; !ok {
		h.subs[address] = make(map[chan []byte]struct{})
	}
	h.subs[address][ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			if subscribers, ok := h.subs[address]; ok {
				delete(subscribers, ch)
				if len(subscribers) == 0 {
					delete(h.subs, address)
				}
			}
			h.mu.Unlock()
			close(ch)
		})
	}
}

// Publish sends the event to every subscriber of the given addresses and to
// catch-all subscribers. It returns the number of frames queued.
func (h *Hub) Publish(addresses []string, event Event) (int, error) {
	payload, err := event.Encode()
	if err != nil {
		return 0, err
	}

	targets := map[string]struct{}{"": {}}
	for _, address := range addresses {
		if address != "" {
			targets[address] = struct{}{}
		}
	}

	delivered := 0
	h.mu.RLock()
	defer h.mu.RUnlock()
	for address := range targets {
		for ch := range h.subs[address] {
			select {
			case ch <- payload:
				delivered++
			default:
			}
		}
	}
	return delivered, nil
}
