// Package state holds the vehicle's fused state and its lifecycle status.
//
// The sensor loop is the only writer of kinematic fields; every other loop
// reads consistent snapshots.
package state

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"gonum.org/v1/gonum/spatial/r3"
)

// ErrInvalidTransition is returned when a status change would move the
// lifecycle backwards or out of Shutdown.
var ErrInvalidTransition = errors.New("invalid status transition")

// StatusCode is the lifecycle stage of the system.
type StatusCode string

const (
	Initializing StatusCode = "initializing"
	Ready        StatusCode = "ready"
	Active       StatusCode = "active"
	Failed       StatusCode = "error"
	Shutdown     StatusCode = "shutdown"
)

// rank orders the forward-only stages. Failed sits outside the order.
var rank = map[StatusCode]int{
	Initializing: 0,
	Ready:        1,
	Active:       2,
	Shutdown:     3,
}

// Status is the system status with an optional error reason.
type Status struct {
	Code   StatusCode `json:"state"`
	Reason string     `json:"reason,omitempty"`
}

func (s Status) String() string {
	if s.Code == Failed && s.Reason != "" {
		return fmt.Sprintf("error(%s)", s.Reason)
	}
	return string(s.Code)
}

// VehicleState is a point-in-time view of the robot.
// Orientation holds roll, pitch and yaw in radians; Z is yaw.
type VehicleState struct {
	Timestamp    time.Time `json:"timestamp"`
	Position     r3.Vec    `json:"position"`
	Velocity     r3.Vec    `json:"velocity"`
	Orientation  r3.Vec    `json:"orientation"`
	BatteryLevel float64   `json:"battery_level"`
	Status       Status    `json:"system_status"`
}

// Store guards a VehicleState for one writer and many readers.
type Store struct {
	mu    sync.RWMutex
	state VehicleState
	now   func() time.Time
}

// NewStore returns a store at the origin with a full battery, Initializing.
func NewStore() *Store {
	return NewStoreWithClock(time.Now)
}

// NewStoreWithClock is NewStore with an injectable clock.
func NewStoreWithClock(now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{
		now: now,
		state: VehicleState{
			Timestamp:    now(),
			BatteryLevel: 100,
			Status:       Status{Code: Initializing},
		},
	}
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() VehicleState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Update applies fn to the state under the write lock and stamps it.
// Status changes made inside fn are discarded; use Transition or Fail.
func (s *Store) Update(fn func(*VehicleState)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := s.state.Status
	fn(&s.state)
	s.state.Status = status
	s.state.Timestamp = s.now()
}

// Status returns the current lifecycle status.
func (s *Store) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Status
}

// Transition moves the lifecycle forward to the given stage.
// Failed is reached through Fail and left through Recover or Shutdown.
func (s *Store) Transition(to StatusCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	from := s.state.Status.Code
	if from == to {
		return nil
	}

	toRank, ok := rank[to]
	if !ok {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}

	switch {
	case from == Shutdown:
		return fmt.Errorf("%w: %s is terminal", ErrInvalidTransition, from)
	case from == Failed && to != Shutdown:
		return fmt.Errorf("%w: %s -> %s (recover first)", ErrInvalidTransition, from, to)
	case from != Failed && toRank < rank[from]:
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}

	s.state.Status = Status{Code: to}
	return nil
}

// Fail puts the system into the error state with a reason.
// It has no effect once the system has shut down.
func (s *Store) Fail(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Status.Code == Shutdown {
		return
	}
	s.state.Status = Status{Code: Failed, Reason: reason}
}

// Recover returns a failed system to Ready.
func (s *Store) Recover() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Status.Code != Failed {
		return fmt.Errorf("%w: recover from %s", ErrInvalidTransition, s.state.Status.Code)
	}
	s.state.Status = Status{Code: Ready}
	return nil
}
