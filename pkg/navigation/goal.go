package navigation

import (
	"encoding/json"
	"errors"
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"
)

// ErrInvalidGoal is returned for goal payloads missing a coordinate.
var ErrInvalidGoal = errors.New("invalid goal")

// GoalSource yields raw goal payloads received since the last call.
type GoalSource interface {
	Drain() [][]byte
}

type goalPayload struct {
	X *float64 `json:"x"`
	Y *float64 `json:"y"`
	Z *float64 `json:"z"`
}

// ParseGoal decodes a {"x":..,"y":..,"z":..} payload.
func ParseGoal(data []byte) (r3.Vec, error) {
	var p goalPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return r3.Vec{}, fmt.Errorf("%w: %v", ErrInvalidGoal, err)
	}
	if p.X == nil || p.Y == nil || p.Z == nil {
		return r3.Vec{}, fmt.Errorf("%w: x, y and z are required", ErrInvalidGoal)
	}
	return r3.Vec{X: *p.X, Y: *p.Y, Z: *p.Z}, nil
}

// EncodeGoal is the inverse of ParseGoal.
func EncodeGoal(goal r3.Vec) []byte {
	data, _ := json.Marshal(map[string]float64{"x": goal.X, "y": goal.Y, "z": goal.Z})
	return data
}
