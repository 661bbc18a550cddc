package navigation

import (
	"errors"
	"time"
)

// Fixed control gains.
const (
	HeadingGain    = 2.0 // angular z per radian of heading error
	AvoidanceGain  = 0.5 // magnitude of the lateral avoidance vector
	MinSpeedFactor = 0.1 // floor on linear scaling near an obstacle
	ArrivalEpsilon = 1e-3
)

// Gains holds PID coefficients.
type Gains struct {
	Kp float64 `mapstructure:"kp" json:"kp"`
	Ki float64 `mapstructure:"ki" json:"ki"`
	Kd float64 `mapstructure:"kd" json:"kd"`
}

// Config holds the tunable navigation parameters.
type Config struct {
	// Speed limits
	MaxLinearSpeed  float64 `mapstructure:"max_linear_speed" json:"max_linear_speed"`   // m/s
	MaxAngularSpeed float64 `mapstructure:"max_angular_speed" json:"max_angular_speed"` // rad/s

	// Arrival
	PositionTolerance    float64 `mapstructure:"position_tolerance" json:"position_tolerance"`       // m
	OrientationTolerance float64 `mapstructure:"orientation_tolerance" json:"orientation_tolerance"` // rad

	// Obstacles
	SafetyDistance float64       `mapstructure:"safety_distance" json:"safety_distance"` // m
	ObstacleTTL    time.Duration `mapstructure:"obstacle_ttl" json:"obstacle_ttl"`

	PlanningFrequency float64 `mapstructure:"planning_frequency" json:"planning_frequency"` // Hz
	PID               Gains   `mapstructure:"pid" json:"pid"`

	// Perception hand-off capacity, in batches
	InboxSize int `mapstructure:"inbox_size" json:"inbox_size"`
}

// DefaultConfig returns the stock navigation tuning.
func DefaultConfig() Config {
	return Config{
		MaxLinearSpeed:       2.0,
		MaxAngularSpeed:      1.57,
		PositionTolerance:    0.1,
		OrientationTolerance: 0.1,
		SafetyDistance:       0.5,
		ObstacleTTL:          5 * time.Second,
		PlanningFrequency:    10.0,
		PID:                  Gains{Kp: 1.0, Ki: 0.1, Kd: 0.05},
		InboxSize:            16,
	}
}

// Validate checks the config for values the planner cannot work with.
func (c Config) Validate() error {
	if c.MaxLinearSpeed <= 0 {
		return errors.New("navigation: max_linear_speed must be positive")
	}
	if c.MaxAngularSpeed <= 0 {
		return errors.New("navigation: max_angular_speed must be positive")
	}
	if c.PositionTolerance <= 0 {
		return errors.New("navigation: position_tolerance must be positive")
	}
	if c.SafetyDistance <= 0 {
		return errors.New("navigation: safety_distance must be positive")
	}
	if c.ObstacleTTL <= 0 {
		return errors.New("navigation: obstacle_ttl must be positive")
	}
	if c.InboxSize <= 0 {
		return errors.New("navigation: inbox_size must be positive")
	}
	return nil
}
