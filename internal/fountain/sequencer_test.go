package fountain

import (
	"sync"
	"testing"
)

func TestSequencerWraps(t *testing.T) {
	var s Sequencer
	for i := 0; i < 256; i++ {
		if got := s.Next(); int(got) != i {
			t.Fatalf("call %d = %d, want %d", i+1, got, i)
		}
	}
	if got := s.Next(); got != 0 {
		t.Errorf("257th call = %d, want 0", got)
	}
	if got := s.Next(); got != 1 {
		t.Errorf("258th call = %d, want 1", got)
	}
}

func TestSequencerConcurrent(t *testing.T) {
	var s Sequencer
	var mu sync.Mutex
	seen := make(map[byte]int)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 32; j++ {
				v := s.Next()
				mu.Lock()
				seen[v]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if len(seen) != 256 {
		t.Errorf("distinct values = %d, want 256", len(seen))
	}
}
