package navigation

import (
	"fmt"
	"time"

	"gonum.org/v1/gonum/spatial/r3"
)

// WaypointKind describes how the vehicle should treat a waypoint.
type WaypointKind int

const (
	Transit WaypointKind = iota
	StopPoint
	PrecisionPoint
	Checkpoint
)

var waypointKindNames = [...]string{"transit", "stop", "precision", "checkpoint"}

func (k WaypointKind) String() string {
	if int(k) < len(waypointKindNames) {
		return waypointKindNames[k]
	}
	return fmt.Sprintf("WaypointKind(%d)", int(k))
}

// MarshalText implements encoding.TextMarshaler.
func (k WaypointKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Waypoint is a single navigable target. Treat it as a value; it is never
// modified once queued.
type Waypoint struct {
	Position  r3.Vec       `json:"position"`
	Tolerance float64      `json:"tolerance"`
	MaxSpeed  float64      `json:"max_speed"`
	Kind      WaypointKind `json:"kind"`
}

// Reached reports whether pos is strictly inside the waypoint's tolerance.
func (w Waypoint) Reached(pos r3.Vec) bool {
	return r3.Norm(r3.Sub(w.Position, pos)) < w.Tolerance
}

// Path is an ordered list of waypoints produced for one goal.
type Path struct {
	ID            string     `json:"id"`
	Waypoints     []Waypoint `json:"waypoints"`
	TotalDistance float64    `json:"total_distance"`
	EstimatedTime float64    `json:"estimated_time"` // seconds
}

// ObstacleClass is the perceived category of an obstacle.
type ObstacleClass int

const (
	Static ObstacleClass = iota
	Dynamic
	Unknown
	Person
	Vehicle
	Wall
)

var obstacleClassNames = [...]string{"static", "dynamic", "unknown", "person", "vehicle", "wall"}

func (c ObstacleClass) String() string {
	if int(c) < len(obstacleClassNames) {
		return obstacleClassNames[c]
	}
	return fmt.Sprintf("ObstacleClass(%d)", int(c))
}

// MarshalText implements encoding.TextMarshaler.
func (c ObstacleClass) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// Obstacle is a perceived object. Position is relative to the vehicle.
type Obstacle struct {
	Position   r3.Vec        `json:"position"`
	Size       r3.Vec        `json:"size"`
	Velocity   *r3.Vec       `json:"velocity,omitempty"`
	Class      ObstacleClass `json:"class"`
	Confidence float64       `json:"confidence"`
}

// ObstacleMap is the time-windowed set of known obstacles.
type ObstacleMap struct {
	Obstacles  []Obstacle `json:"obstacles"`
	LastUpdate time.Time  `json:"last_update"`
	Confidence float64    `json:"confidence"`
}

// CommandKind is the intent of a navigation command.
type CommandKind int

const (
	Move CommandKind = iota
	Rotate
	Stop
	Emergency
	Hold
	Precision
)

var commandKindNames = [...]string{"move", "rotate", "stop", "emergency", "hold", "precision"}

func (k CommandKind) String() string {
	if int(k) < len(commandKindNames) {
		return commandKindNames[k]
	}
	return fmt.Sprintf("CommandKind(%d)", int(k))
}

// MarshalText implements encoding.TextMarshaler.
func (k CommandKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Priority ranks commands.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityEmergency
)

var priorityNames = [...]string{"low", "normal", "high", "emergency"}

func (p Priority) String() string {
	if int(p) < len(priorityNames) {
		return priorityNames[p]
	}
	return fmt.Sprintf("Priority(%d)", int(p))
}

// MarshalText implements encoding.TextMarshaler.
func (p Priority) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// Command is produced once per navigation cycle and consumed immediately.
type Command struct {
	Timestamp time.Time   `json:"timestamp"`
	Linear    r3.Vec      `json:"linear_velocity"`
	Angular   r3.Vec      `json:"angular_velocity"`
	Target    *r3.Vec     `json:"target_position,omitempty"`
	Kind      CommandKind `json:"command_type"`
	Priority  Priority    `json:"priority"`
}
