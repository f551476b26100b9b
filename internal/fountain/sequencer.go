package fountain

import "sync"

// Sequencer hands out frame sequence numbers. The counter runs 0..255 and
// then wraps; it is never reset on reconnect.
type Sequencer struct {
	mu   sync.Mutex
	next int
}

// Next returns the current value and advances the counter.
func (s *Sequencer) Next() byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.next
	s.next++
	if s.next > 255 {
		s.next = 0
	}
	return byte(v)
}
