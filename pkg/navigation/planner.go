// Package navigation turns goals and obstacle observations into per-cycle
// motion commands.
//
// A Planner owns the waypoint queue and the obstacle map. Perception hands
// obstacles over through an Inbox and goals arrive through a GoalSource;
// both are consumed on the navigation goroutine inside Update.
package navigation

import (
	"log/slog"
	"math"
	"sync"
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/teslashibe/go-mechros/pkg/state"
)

// Phase is the planner's progress toward its current goal.
type Phase int

const (
	Idle Phase = iota
	InTransit
	Completed
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case InTransit:
		return "transit"
	case Completed:
		return "completed"
	}
	return "unknown"
}

// Planner orchestrates path planning, PID speed control and obstacle
// avoidance against the waypoint queue.
type Planner struct {
	cfg    Config
	pid    *PID
	paths  *PathPlanner
	avoid  *Avoidance
	inbox  *Inbox
	goals  GoalSource
	logger *slog.Logger
	now    func() time.Time

	mu          sync.Mutex
	waypoints   []Waypoint
	path        *Path
	obstacles   ObstacleMap
	phase       Phase
	stopPending bool
}

// Option configures a Planner.
type Option func(*Planner)

// WithLogger sets the planner's logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Planner) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(p *Planner) {
		if now != nil {
			p.now = now
		}
	}
}

// NewPlanner creates a planner. goals may be nil when goals are only set
// through SetGoal.
func NewPlanner(cfg Config, goals GoalSource, opts ...Option) *Planner {
	p := &Planner{
		cfg:    cfg,
		pid:    NewPID(cfg.PID),
		paths:  NewPathPlanner(cfg),
		avoid:  NewAvoidance(cfg.SafetyDistance),
		inbox:  NewInbox(cfg.InboxSize),
		goals:  goals,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Inbox returns the perception hand-off queue.
func (p *Planner) Inbox() *Inbox {
	return p.inbox
}

// SetGoal replaces the waypoint queue with a fresh path to goal.
func (p *Planner) SetGoal(goal r3.Vec) Path {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.setGoalLocked(goal)
}

func (p *Planner) setGoalLocked(goal r3.Vec) Path {
	path := p.paths.Plan(goal, p.obstacles)

	p.waypoints = append([]Waypoint(nil), path.Waypoints...)
	p.path = &path
	p.phase = InTransit
	p.stopPending = false

	p.logger.Info("new goal",
		"path", path.ID,
		"goal", goal,
		"distance", path.TotalDistance,
		"eta_s", path.EstimatedTime)
	return path
}

// ClearGoals empties the waypoint queue. If the vehicle was moving, the
// next Update emits a single Stop.
func (p *Planner) ClearGoals() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.waypoints) == 0 {
		return
	}
	p.waypoints = nil
	p.stopPending = true
	p.logger.Info("goals cleared")
}

// CurrentPath returns the active path, or nil.
func (p *Planner) CurrentPath() *Path {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.path == nil {
		return nil
	}
	cp := *p.path
	return &cp
}

// Waypoints returns a copy of the remaining queue.
func (p *Planner) Waypoints() []Waypoint {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Waypoint(nil), p.waypoints...)
}

// Phase returns the current planner phase.
func (p *Planner) Phase() Phase {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.phase
}

// Obstacles returns a copy of the current obstacle map.
func (p *Planner) Obstacles() ObstacleMap {
	p.mu.Lock()
	defer p.mu.Unlock()
	m := p.obstacles
	m.Obstacles = append([]Obstacle(nil), p.obstacles.Obstacles...)
	return m
}

// AddObstacles merges observations into the map directly. Perception
// running on another goroutine must use Inbox instead.
func (p *Planner) AddObstacles(obs []Obstacle) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.addObstaclesLocked(obs)
}

func (p *Planner) addObstaclesLocked(obs []Obstacle) {
	if len(obs) == 0 {
		return
	}
	p.obstacles.Obstacles = append(p.obstacles.Obstacles, obs...)
	p.obstacles.LastUpdate = p.now()

	var sum float64
	for _, o := range p.obstacles.Obstacles {
		sum += o.Confidence
	}
	p.obstacles.Confidence = sum / float64(len(p.obstacles.Obstacles))
}

// pruneLocked clears the whole map once it has gone stale.
func (p *Planner) pruneLocked() {
	if p.obstacles.LastUpdate.IsZero() {
		return
	}
	if p.now().Sub(p.obstacles.LastUpdate) > p.cfg.ObstacleTTL {
		if n := len(p.obstacles.Obstacles); n > 0 {
			p.logger.Debug("obstacle map stale, clearing", "count", n)
		}
		p.obstacles = ObstacleMap{}
	}
}

// Update runs one navigation cycle against the given vehicle state and
// returns the command to dispatch, or nil when there is nothing to do.
func (p *Planner) Update(st state.VehicleState) *Command {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.pruneLocked()
	p.addObstaclesLocked(p.inbox.drain())
	p.drainGoalsLocked()

	if len(p.waypoints) == 0 {
		if p.stopPending {
			return p.completeLocked()
		}
		if p.phase == Completed {
			p.phase = Idle
		}
		return nil
	}

	if p.waypoints[0].Reached(st.Position) {
		p.waypoints = p.waypoints[1:]
		if len(p.waypoints) == 0 {
			if p.path != nil {
				p.logger.Info("goal reached", "path", p.path.ID, "position", st.Position)
			}
			return p.completeLocked()
		}
	}

	cmd := p.steerLocked(p.waypoints[0], st)
	adjusted := p.avoid.Adjust(cmd, p.obstacles)
	return &adjusted
}

// completeLocked emits the single zero-velocity Stop that ends a run.
func (p *Planner) completeLocked() *Command {
	p.phase = Completed
	p.stopPending = false
	return &Command{
		Timestamp: p.now(),
		Kind:      Stop,
		Priority:  PriorityNormal,
	}
}

func (p *Planner) drainGoalsLocked() {
	if p.goals == nil {
		return
	}
	for _, raw := range p.goals.Drain() {
		goal, err := ParseGoal(raw)
		if err != nil {
			p.logger.Warn("dropping goal", "payload", string(raw), "error", err)
			continue
		}
		p.setGoalLocked(goal)
	}
}

func (p *Planner) steerLocked(wp Waypoint, st state.VehicleState) Command {
	toTarget := r3.Sub(wp.Position, st.Position)
	distance := r3.Norm(toTarget)

	speed := math.Abs(p.pid.Update(distance, 0))
	speed = math.Min(speed, math.Min(wp.MaxSpeed, p.cfg.MaxLinearSpeed))

	var direction r3.Vec
	if distance > ArrivalEpsilon {
		direction = r3.Scale(1/distance, toTarget)
	}

	heading := math.Atan2(toTarget.Y, toTarget.X)
	yaw := HeadingGain * WrapAngle(heading-st.Orientation.Z)
	yaw = math.Max(-p.cfg.MaxAngularSpeed, math.Min(yaw, p.cfg.MaxAngularSpeed))

	kind := Move
	switch wp.Kind {
	case StopPoint:
		kind = Stop
	case PrecisionPoint:
		kind = Precision
	}

	target := wp.Position
	return Command{
		Timestamp: p.now(),
		Linear:    LimitNorm(r3.Scale(speed, direction), speed),
		Angular:   r3.Vec{Z: yaw},
		Target:    &target,
		Kind:      kind,
		Priority:  PriorityNormal,
	}
}

// WrapAngle maps a into (-π, π].
func WrapAngle(a float64) float64 {
	a = math.Mod(a+math.Pi, 2*math.Pi)
	if a <= 0 {
		a += 2 * math.Pi
	}
	return a - math.Pi
}
