package testutil

import (
	"context"
	"sync"
)

// PublishedEvent is one event captured by an EventSink.
type PublishedEvent struct {
	Type string
	Data interface{}
}

// EventSink captures published events in memory. A non-nil Err is returned
// from every Publish after recording the event.
type EventSink struct {
	Err error

	mu     sync.Mutex
	events []PublishedEvent
}

// Publish implements events.Sink
func (s *EventSink) Publish(_ context.Context, eventType string, data interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, PublishedEvent{Type: eventType, Data: data})
	return s.Err
}

// Events returns the captured events in order.
func (s *EventSink) Events() []PublishedEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]PublishedEvent(nil), s.events...)
}

// Types returns the captured event types in order.
func (s *EventSink) Types() []string {
	evs := s.Events()
	out := make([]string, len(evs))
	for i, e := range evs {
		out[i] = e.Type
	}
	return out
}

// Last returns the data of the most recent event of eventType, or nil.
func (s *EventSink) Last(eventType string) interface{} {
	evs := s.Events()
	for i := len(evs) - 1; i >= 0; i-- {
		if evs[i].Type == eventType {
			return evs[i].Data
		}
	}
	return nil
}
