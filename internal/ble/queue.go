package ble

import "context"

// DefaultQueueSize is the number of frames that may wait for the transport.
const DefaultQueueSize = 10

// Queue is a bounded FIFO of outgoing frames. Producers block while it is
// full; the Supervisor's consumer is the only reader.
type Queue struct {
	ch chan []byte
}

// NewQueue creates a queue holding at most size frames.
func NewQueue(size int) *Queue {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &Queue{ch: make(chan []byte, size)}
}

// Enqueue adds a frame, blocking while the queue is full. The frame is
// copied. Returns ctx.Err() if ctx ends first.
func (q *Queue) Enqueue(ctx context.Context, frame []byte) error {
	cp := make([]byte, len(frame))
	copy(cp, frame)
	select {
	case q.ch <- cp:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dequeue removes the oldest frame, blocking while the queue is empty.
func (q *Queue) Dequeue(ctx context.Context) ([]byte, error) {
	select {
	case frame := <-q.ch:
		return frame, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Len returns the number of pending frames.
func (q *Queue) Len() int { return len(q.ch) }

// Cap returns the queue capacity.
func (q *Queue) Cap() int { return cap(q.ch) }
