package crawler

import (
	"sync"
	"time"
)

// Status is the human readable progress of a run.
type Status struct {
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// statusSlot holds the latest Status. Writers overwrite, readers copy.
type statusSlot struct {
	mu  sync.RWMutex
	cur Status
}

func (s *statusSlot) set(msg string, at time.Time) {
	s.mu.Lock()
	s.cur = Status{Message: msg, Timestamp: at}
	s.mu.Unlock()
}

func (s *statusSlot) get() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur
}
