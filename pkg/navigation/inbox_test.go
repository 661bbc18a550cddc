package navigation

import (
	"testing"

	"gonum.org/v1/gonum/spatial/r3"
)

func TestInbox_DropsOldestWhenFull(t *testing.T) {
	in := NewInbox(2)

	batch := func(x float64) []Obstacle {
		return []Obstacle{{Position: r3.Vec{X: x}}}
	}

	if !in.Offer(batch(1)) || !in.Offer(batch(2)) {
		t.Fatal("offers below capacity should not drop")
	}
	if in.Offer(batch(3)) {
		t.Error("offer above capacity should report a drop")
	}
	if in.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", in.Len())
	}

	got := in.drain()
	if len(got) != 2 || got[0].Position.X != 2 || got[1].Position.X != 3 {
		t.Errorf("drain() = %+v, want batches 2 and 3", got)
	}
	if in.Len() != 0 {
		t.Errorf("Len() after drain = %d", in.Len())
	}
}
