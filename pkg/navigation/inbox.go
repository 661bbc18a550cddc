package navigation

// Inbox is the bounded hand-off from perception to navigation.
// One goroutine offers batches; the navigation goroutine drains them.
// When full, the oldest batch is dropped.
type Inbox struct {
	ch chan []Obstacle
}

// NewInbox creates an inbox holding up to size batches.
func NewInbox(size int) *Inbox {
	if size < 1 {
		size = 1
	}
	return &Inbox{ch: make(chan []Obstacle, size)}
}

// Offer queues a batch without blocking. It reports false when an older
// batch had to be discarded to make room.
func (in *Inbox) Offer(batch []Obstacle) bool {
	for dropped := false; ; dropped = true {
		select {
		case in.ch <- batch:
			return !dropped
		default:
		}

		select {
		case <-in.ch:
		default:
		}
	}
}

// Len returns the number of queued batches.
func (in *Inbox) Len() int {
	return len(in.ch)
}

// drain returns everything queued, in arrival order.
func (in *Inbox) drain() []Obstacle {
	var out []Obstacle
	for {
		select {
		case batch := <-in.ch:
			out = append(out, batch...)
		default:
			return out
		}
	}
}
