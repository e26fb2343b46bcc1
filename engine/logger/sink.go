package logger

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Sink forwards configuration errors and warnings to a user callback and to zap, reporting each distinct message of
// a key once. A key that recovers is forgotten so a later failure is reported again.
type Sink struct {
	mu       sync.Mutex
	log      *zap.Logger
	fn       func(string)
	reported map[string]map[string]bool
}

// NewSink creates a Sink. Either argument may be nil.
//
// Parameters:
//   - log: the logger receiving every reported message
//   - fn: the user log sink, called with the formatted message
//
// Returns:
//   - *Sink: the sink
func NewSink(log *zap.Logger, fn func(string)) *Sink {
	if log == nil {
		log = zap.NewNop()
	}
	return &Sink{log: log, fn: fn, reported: make(map[string]map[string]bool)}
}

// Error reports err for key at error level.
//
// Returns:
//   - bool: true if the message was reported, false if it was a repeat or err is nil
func (s *Sink) Error(key string, err error) bool {
	if err == nil {
		return false
	}
	msg := fmt.Sprintf("%s: %v", key, err)
	if !s.once(key, msg) {
		return false
	}
	s.log.Error(msg, zap.String("key", key), zap.Error(err))
	s.forward(msg)
	return true
}

// Warn reports a warning for key.
//
// Returns:
//   - bool: true if the message was reported, false if it was a repeat
func (s *Sink) Warn(key, warning string) bool {
	msg := fmt.Sprintf("%s: %s", key, warning)
	if !s.once(key, msg) {
		return false
	}
	s.log.Warn(msg, zap.String("key", key))
	s.forward("warning: " + msg)
	return true
}

// Forget clears the reported messages of key.
func (s *Sink) Forget(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.reported, key)
}

func (s *Sink) once(key, msg string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen, ok := s.reported[key]
	if !ok {
		seen = make(map[string]bool)
		s.reported[key] = seen
	}
	if seen[msg] {
		return false
	}
	seen[msg] = true
	return true
}

func (s *Sink) forward(msg string) {
	if s.fn != nil {
		s.fn(msg)
	}
}
