package bus

import "sync"

// Ring keeps the most recent unread messages for a subscribed topic.
// When full, the oldest message is dropped.
type Ring struct {
	mu      sync.Mutex
	buf     [][]byte
	size    int
	dropped int64
}

// NewRing creates a ring holding at most size messages.
func NewRing(size int) *Ring {
	if size < 1 {
		size = 1
	}
	return &Ring{size: size}
}

// Push appends a copy of data.
func (r *Ring) Push(data []byte) {
	cp := append([]byte(nil), data...)

	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.buf) == r.size {
		r.buf = r.buf[1:]
		r.dropped++
	}
	r.buf = append(r.buf, cp)
}

// Drain returns all buffered messages, oldest first, and empties the ring.
func (r *Ring) Drain() [][]byte {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := r.buf
	r.buf = nil
	return out
}

// Len returns the number of unread messages.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.buf)
}

// Dropped returns how many messages were overwritten before being read.
func (r *Ring) Dropped() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}
