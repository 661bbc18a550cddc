package actuators

import (
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/teslashibe/go-mechros/pkg/navigation"
	"github.com/teslashibe/go-mechros/pkg/safety"
)

// GripperCommand sets the gripper opening (0..1) and grip force in newtons.
type GripperCommand struct {
	Position float64 `json:"position"`
	Force    float64 `json:"force"`
}

// LEDCommand sets one LED's color and brightness.
type LEDCommand struct {
	ID         int   `json:"led_id"`
	R          uint8 `json:"r"`
	G          uint8 `json:"g"`
	B          uint8 `json:"b"`
	Brightness uint8 `json:"brightness"`
}

// SpeakerCommand plays a single tone.
type SpeakerCommand struct {
	Frequency float64       `json:"frequency"`
	Duration  time.Duration `json:"duration"`
	Volume    float64       `json:"volume"`
}

// CommandSet is everything to actuate in one cycle. Nil or empty fields
// leave that subsystem untouched.
type CommandSet struct {
	Timestamp     time.Time       `json:"timestamp"`
	Linear        *r3.Vec         `json:"linear_velocity,omitempty"`
	Angular       *r3.Vec         `json:"angular_velocity,omitempty"`
	MotorSpeeds   []float64       `json:"motor_speeds,omitempty"`
	ServoAngles   []float64       `json:"servo_angles,omitempty"`
	Gripper       *GripperCommand `json:"gripper,omitempty"`
	LEDs          []LEDCommand    `json:"leds,omitempty"`
	Speaker       *SpeakerCommand `json:"speaker,omitempty"`
	EmergencyStop bool            `json:"emergency_stop"`
}

// FromNavigation converts a navigation command into a command set that
// drives the wheels from its velocities.
func FromNavigation(cmd navigation.Command) CommandSet {
	linear, angular := cmd.Linear, cmd.Angular
	return CommandSet{
		Timestamp:     cmd.Timestamp,
		Linear:        &linear,
		Angular:       &angular,
		EmergencyStop: cmd.Kind == navigation.Emergency,
	}
}

// EmergencyStopSet returns a command set that only triggers the
// emergency sequence.
func EmergencyStopSet() CommandSet {
	return CommandSet{Timestamp: time.Now(), EmergencyStop: true}
}

// Motion returns the part of the set the safety monitor checks.
func (c CommandSet) Motion() safety.Motion {
	return safety.Motion{
		Linear:      c.Linear,
		Angular:     c.Angular,
		MotorSpeeds: c.MotorSpeeds,
	}
}

func (c CommandSet) hasMotion() bool {
	return c.MotorSpeeds != nil || c.Linear != nil || c.Angular != nil
}
