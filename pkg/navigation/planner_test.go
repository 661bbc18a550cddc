package navigation

import (
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/teslashibe/go-mechros/pkg/state"
)

// fakeGoals is a GoalSource backed by a slice.
type fakeGoals struct {
	mu      sync.Mutex
	pending [][]byte
}

func (f *fakeGoals) push(raw string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pending = append(f.pending, []byte(raw))
}

func (f *fakeGoals) Drain() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.pending
	f.pending = nil
	return out
}

// fakeClock is a settable clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func at(x, y, yaw float64) state.VehicleState {
	return state.VehicleState{
		Position:    r3.Vec{X: x, Y: y},
		Orientation: r3.Vec{Z: yaw},
	}
}

func TestPlanner_IdleEmitsNothing(t *testing.T) {
	p := NewPlanner(DefaultConfig(), nil)

	assert.Nil(t, p.Update(at(0, 0, 0)))
	assert.Equal(t, Idle, p.Phase())
	assert.Nil(t, p.CurrentPath())
}

// Goal (10,0,0) from the origin: the vehicle drives along +x and a single
// Stop follows arrival.
func TestPlanner_DriveToGoal(t *testing.T) {
	goals := &fakeGoals{}
	p := NewPlanner(DefaultConfig(), goals)
	goals.push(`{"x": 10, "y": 0, "z": 0}`)

	const dt = 0.1
	st := at(0, 0, 0)
	stops := 0

	for cycle := 0; cycle < 200; cycle++ {
		cmd := p.Update(st)
		if cmd == nil {
			break
		}

		if p.Phase() == Completed {
			stops++
			assert.Equal(t, Stop, cmd.Kind)
			assert.Equal(t, r3.Vec{}, cmd.Linear)
			assert.Equal(t, r3.Vec{}, cmd.Angular)
			continue
		}

		require.NotNil(t, cmd.Target)
		assert.Equal(t, r3.Vec{X: 10}, *cmd.Target)
		assert.Greater(t, cmd.Linear.X, 0.0, "cycle %d", cycle)
		assert.LessOrEqual(t, r3.Norm(cmd.Linear), 2.0+1e-9)
		assert.InDelta(t, 0.0, cmd.Linear.Y, 1e-9)
		assert.InDelta(t, 0.0, cmd.Angular.Z, 1e-9)

		st.Position = r3.Add(st.Position, r3.Scale(dt, cmd.Linear))
	}

	assert.Equal(t, 1, stops, "exactly one Stop after arrival")
	assert.InDelta(t, 10.0, st.Position.X, 0.1)
	assert.Equal(t, Idle, p.Phase())
	assert.Nil(t, p.Update(st), "no further commands once idle")
}

func TestPlanner_FirstCommandClampedToMaxSpeed(t *testing.T) {
	p := NewPlanner(DefaultConfig(), nil)
	p.SetGoal(r3.Vec{X: 10})

	cmd := p.Update(at(0, 0, 0))
	require.NotNil(t, cmd)

	assert.InDelta(t, 2.0, cmd.Linear.X, 1e-9)
	assert.Equal(t, Stop, cmd.Kind, "kind follows the waypoint kind")
	assert.Equal(t, PriorityNormal, cmd.Priority)
	assert.Equal(t, InTransit, p.Phase())
}

func TestPlanner_SpeedNeverExceedsLimit(t *testing.T) {
	for i := 0; i < 72; i++ {
		a := float64(i) * math.Pi / 36
		p := NewPlanner(DefaultConfig(), nil)
		p.SetGoal(r3.Vec{X: 9 * math.Cos(a), Y: 9 * math.Sin(a)})

		cmd := p.Update(at(0, 0, 0))
		require.NotNil(t, cmd)
		assert.LessOrEqual(t, r3.Norm(cmd.Linear), 2.0, "heading %d", i)
	}
}

func TestPlanner_SlowWhenPIDOutputSmall(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PID = Gains{Kp: 1.0}
	p := NewPlanner(cfg, nil)
	p.SetGoal(r3.Vec{X: 0.5})

	cmd := p.Update(at(0, 0, 0))
	require.NotNil(t, cmd)
	assert.InDelta(t, 0.5, cmd.Linear.X, 1e-9)
}

func TestPlanner_HeadingError(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxAngularSpeed = 10
	p := NewPlanner(cfg, nil)

	// Target behind on the left, facing -π/2: raw error 3π/2 wraps to -π/2.
	p.SetGoal(r3.Vec{X: -5})
	cmd := p.Update(at(0, 0, -math.Pi/2))
	require.NotNil(t, cmd)
	assert.InDelta(t, -math.Pi, cmd.Angular.Z, 1e-9)
	assert.InDelta(t, 0.0, cmd.Angular.X, 1e-9)
}

func TestPlanner_AngularClampedToConfig(t *testing.T) {
	p := NewPlanner(DefaultConfig(), nil)
	p.SetGoal(r3.Vec{Y: 5})

	cmd := p.Update(at(0, 0, 0))
	require.NotNil(t, cmd)
	assert.InDelta(t, 1.57, cmd.Angular.Z, 1e-9)
}

func TestWrapAngle(t *testing.T) {
	tests := []struct{ in, want float64 }{
		{0, 0},
		{math.Pi, math.Pi},
		{-math.Pi, math.Pi},
		{3 * math.Pi / 2, -math.Pi / 2},
		{-3 * math.Pi / 2, math.Pi / 2},
		{0.25, 0.25},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, WrapAngle(tt.in), 1e-9, "WrapAngle(%v)", tt.in)
	}
}

func TestPlanner_NewGoalReplacesQueue(t *testing.T) {
	goals := &fakeGoals{}
	p := NewPlanner(DefaultConfig(), goals)

	goals.push(`{"x": 10, "y": 0, "z": 0}`)
	goals.push(`{"x": 0, "y": 3, "z": 0}`)

	cmd := p.Update(at(0, 0, 0))
	require.NotNil(t, cmd)
	require.NotNil(t, cmd.Target)
	assert.Equal(t, r3.Vec{Y: 3}, *cmd.Target)

	wps := p.Waypoints()
	require.Len(t, wps, 1)
	assert.Equal(t, r3.Vec{Y: 3}, wps[0].Position)
}

func TestPlanner_MalformedGoalSkipped(t *testing.T) {
	goals := &fakeGoals{}
	p := NewPlanner(DefaultConfig(), goals)

	goals.push(`{"x": 1}`)
	goals.push(`not json`)

	assert.Nil(t, p.Update(at(0, 0, 0)))
	assert.Equal(t, Idle, p.Phase())
}

func TestPlanner_GoalAlreadyReached(t *testing.T) {
	p := NewPlanner(DefaultConfig(), nil)
	p.SetGoal(r3.Vec{X: 1})

	cmd := p.Update(at(0.95, 0, 0))
	require.NotNil(t, cmd)
	assert.Equal(t, Stop, cmd.Kind)
	assert.Equal(t, r3.Vec{}, cmd.Linear)
	assert.Nil(t, cmd.Target)
	assert.Equal(t, Completed, p.Phase())

	assert.Nil(t, p.Update(at(0.95, 0, 0)))
	assert.Equal(t, Idle, p.Phase())
}

func TestPlanner_ToleranceIsStrict(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PositionTolerance = 0.25
	p := NewPlanner(cfg, nil)
	p.SetGoal(r3.Vec{X: 1})

	// Exactly at tolerance is not reached.
	cmd := p.Update(at(0.75, 0, 0))
	require.NotNil(t, cmd)
	assert.NotNil(t, cmd.Target)
	assert.Equal(t, InTransit, p.Phase())

	cmd = p.Update(at(0.875, 0, 0))
	require.NotNil(t, cmd)
	assert.Nil(t, cmd.Target)
	assert.Equal(t, Completed, p.Phase())
}

func TestPlanner_ClearGoalsEmitsOneStop(t *testing.T) {
	p := NewPlanner(DefaultConfig(), nil)
	p.SetGoal(r3.Vec{X: 10})
	require.NotNil(t, p.Update(at(0, 0, 0)))

	p.ClearGoals()

	cmd := p.Update(at(0.2, 0, 0))
	require.NotNil(t, cmd)
	assert.Equal(t, Stop, cmd.Kind)
	assert.Equal(t, r3.Vec{}, cmd.Linear)

	assert.Nil(t, p.Update(at(0.2, 0, 0)))
	assert.Equal(t, Idle, p.Phase())
}

func TestPlanner_ClearGoalsWhenIdle(t *testing.T) {
	p := NewPlanner(DefaultConfig(), nil)
	p.ClearGoals()
	assert.Nil(t, p.Update(at(0, 0, 0)))
}

func TestPlanner_ObstaclesFromInboxDeflect(t *testing.T) {
	p := NewPlanner(DefaultConfig(), nil)
	p.SetGoal(r3.Vec{X: 10})

	p.Inbox().Offer([]Obstacle{{Position: r3.Vec{X: 0.25}, Class: Person, Confidence: 0.9}})

	cmd := p.Update(at(0, 0, 0))
	require.NotNil(t, cmd)
	assert.InDelta(t, 1.0, cmd.Linear.X, 1e-9)
	assert.InDelta(t, 0.5, cmd.Linear.Y, 1e-9)

	obs := p.Obstacles()
	require.Len(t, obs.Obstacles, 1)
	assert.InDelta(t, 0.9, obs.Confidence, 1e-9)
}

func TestPlanner_PrunesStaleObstacles(t *testing.T) {
	clock := newFakeClock()
	p := NewPlanner(DefaultConfig(), nil, WithClock(clock.Now))
	p.AddObstacles([]Obstacle{{Position: r3.Vec{X: 0.25}}})

	clock.Advance(5 * time.Second)
	p.Update(at(0, 0, 0))
	assert.Len(t, p.Obstacles().Obstacles, 1, "exactly 5s old is not stale")

	clock.Advance(time.Millisecond)
	p.SetGoal(r3.Vec{X: 10})
	cmd := p.Update(at(0, 0, 0))
	require.NotNil(t, cmd)

	assert.Empty(t, p.Obstacles().Obstacles)
	assert.InDelta(t, 2.0, cmd.Linear.X, 1e-9, "no deflection after prune")
	assert.InDelta(t, 0.0, cmd.Linear.Y, 1e-9)
}

func TestPlanner_PrunesBeforeMergingInbox(t *testing.T) {
	clock := newFakeClock()
	p := NewPlanner(DefaultConfig(), nil, WithClock(clock.Now))
	p.AddObstacles([]Obstacle{{Position: r3.Vec{X: 0.25}}})

	clock.Advance(10 * time.Second)
	p.Inbox().Offer([]Obstacle{{Position: r3.Vec{Y: 3}}})
	p.SetGoal(r3.Vec{X: 10})

	cmd := p.Update(at(0, 0, 0))
	require.NotNil(t, cmd)

	obs := p.Obstacles().Obstacles
	require.Len(t, obs, 1, "stale entry cleared, fresh batch kept")
	assert.Equal(t, r3.Vec{Y: 3}, obs[0].Position)
	assert.InDelta(t, 2.0, cmd.Linear.X, 1e-9)
	assert.InDelta(t, 0.0, cmd.Linear.Y, 1e-9)
}

func TestPlanner_FreshObservationsKeepMapAlive(t *testing.T) {
	clock := newFakeClock()
	p := NewPlanner(DefaultConfig(), nil, WithClock(clock.Now))

	p.AddObstacles([]Obstacle{{Position: r3.Vec{X: 3}}})
	clock.Advance(4 * time.Second)
	p.Inbox().Offer([]Obstacle{{Position: r3.Vec{Y: 3}}})
	p.Update(at(0, 0, 0))

	clock.Advance(4 * time.Second)
	p.Update(at(0, 0, 0))

	assert.Len(t, p.Obstacles().Obstacles, 2)
}
