package navigation

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Avoidance bends velocity commands away from nearby obstacles.
type Avoidance struct {
	SafetyDistance float64
}

// NewAvoidance creates an avoidance stage with the given safety radius.
func NewAvoidance(safetyDistance float64) *Avoidance {
	return &Avoidance{SafetyDistance: safetyDistance}
}

// Adjust returns cmd with its linear velocity scaled down and pushed
// sideways for every obstacle inside the safety radius. Obstacles are
// applied in list order and their effects accumulate.
func (a *Avoidance) Adjust(cmd Command, obstacles ObstacleMap) Command {
	for _, obs := range obstacles.Obstacles {
		d := r3.Norm(obs.Position)
		if d >= a.SafetyDistance {
			continue
		}

		factor := math.Max(d/a.SafetyDistance, MinSpeedFactor)
		cmd.Linear = r3.Scale(factor, cmd.Linear)
		cmd.Linear = r3.Add(cmd.Linear, lateral(obs.Position))
	}
	return cmd
}

// lateral returns the horizontal perpendicular of the obstacle direction,
// scaled by AvoidanceGain. An obstacle at the origin has no direction.
func lateral(pos r3.Vec) r3.Vec {
	n := r3.Norm(pos)
	if n == 0 {
		return r3.Vec{}
	}
	unit := r3.Scale(1/n, pos)
	return r3.Vec{X: -unit.Y * AvoidanceGain, Y: unit.X * AvoidanceGain}
}
