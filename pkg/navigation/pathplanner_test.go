package navigation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

func TestPathPlanner_DirectToGoal(t *testing.T) {
	cfg := DefaultConfig()
	pp := NewPathPlanner(cfg)

	path := pp.Plan(r3.Vec{X: 10}, ObstacleMap{})

	require.Len(t, path.Waypoints, 1)
	wp := path.Waypoints[0]
	assert.Equal(t, r3.Vec{X: 10}, wp.Position)
	assert.Equal(t, StopPoint, wp.Kind)
	assert.Equal(t, 0.1, wp.Tolerance)
	assert.Equal(t, 2.0, wp.MaxSpeed)
	assert.InDelta(t, 10.0, path.TotalDistance, 1e-9)
	assert.InDelta(t, 5.0, path.EstimatedTime, 1e-9)
	assert.True(t, strings.HasPrefix(path.ID, "path_"), "id %q", path.ID)
}

func TestPathPlanner_DistanceFromOrigin(t *testing.T) {
	pp := NewPathPlanner(DefaultConfig())

	path := pp.Plan(r3.Vec{X: 3, Y: 4}, ObstacleMap{})
	assert.InDelta(t, 5.0, path.TotalDistance, 1e-9)
	assert.InDelta(t, 2.5, path.EstimatedTime, 1e-9)
}

func TestPathPlanner_IgnoresObstacles(t *testing.T) {
	pp := NewPathPlanner(DefaultConfig())
	blocked := ObstacleMap{Obstacles: []Obstacle{{Position: r3.Vec{X: 5}, Class: Wall}}}

	a := pp.Plan(r3.Vec{X: 10}, blocked)
	b := pp.Plan(r3.Vec{X: 10}, ObstacleMap{})

	assert.Equal(t, a.Waypoints, b.Waypoints)
	assert.NotEqual(t, a.ID, b.ID)
}
