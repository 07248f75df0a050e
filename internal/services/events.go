package services

import (
	"log"
	"sync"

	"qa-escrow/internal/models"
)

// EventSink receives notifications for committed ledger operations.
type EventSink interface {
	Emit(event *models.LedgerEvent)
}

// LogEventSink writes every event to the standard logger.
type LogEventSink struct{}

func (LogEventSink) Emit(event *models.LedgerEvent) {
	log.Printf("[Ledger] event=%s question=%d answer=%d actor=%s counterparty=%s amount=%d tx=%s t=%d",
		event.Type, event.QuestionID, event.AnswerID, event.Actor,
		event.Counterparty, event.Amount, event.TxRef, event.LogicalTime)
}

// MemoryEventSink keeps the most recent events in memory.
type MemoryEventSink struct {
	mu       sync.Mutex
	capacity int
	events   []*models.LedgerEvent
}

// NewMemoryEventSink keeps at most capacity events; zero means unbounded.
func NewMemoryEventSink(capacity int) *MemoryEventSink {
	return &MemoryEventSink{capacity: capacity}
}

func (s *MemoryEventSink) Emit(event *models.LedgerEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	if s.capacity > 0 && len(s.events) > s.capacity {
		s.events = s.events[len(s.events)-s.capacity:]
	}
}

// Events returns a copy of the retained events, oldest first
func (s *MemoryEventSink) Events() []*models.LedgerEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.LedgerEvent, len(s.events))
	copy(out, s.events)
	return out
}

// OfType returns the retained events of one type
func (s *MemoryEventSink) OfType(eventType models.LedgerEventType) []*models.LedgerEvent {
	var out []*models.LedgerEvent
	for _, e := range s.Events() {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

// MultiEventSink fans an event out to several sinks.
type MultiEventSink []EventSink

func (m MultiEventSink) Emit(event *models.LedgerEvent) {
	for _, sink := range m {
		sink.Emit(event)
	}
}
