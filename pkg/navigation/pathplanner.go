package navigation

import (
	"github.com/google/uuid"
	"gonum.org/v1/gonum/spatial/r3"
)

// PathPlanner turns a goal into a path. It plans a single straight-line
// waypoint to the goal and does not consult the obstacle map.
type PathPlanner struct {
	cfg Config
}

// NewPathPlanner creates a planner using the speed and tolerance from cfg.
func NewPathPlanner(cfg Config) *PathPlanner {
	return &PathPlanner{cfg: cfg}
}

// Plan returns a one-waypoint path ending at goal.
// Distance is measured from the origin, not from the vehicle.
func (p *PathPlanner) Plan(goal r3.Vec, _ ObstacleMap) Path {
	wp := Waypoint{
		Position:  goal,
		Tolerance: p.cfg.PositionTolerance,
		MaxSpeed:  p.cfg.MaxLinearSpeed,
		Kind:      StopPoint,
	}

	distance := r3.Norm(goal)

	return Path{
		ID:            "path_" + uuid.NewString(),
		Waypoints:     []Waypoint{wp},
		TotalDistance: distance,
		EstimatedTime: distance / p.cfg.MaxLinearSpeed,
	}
}
