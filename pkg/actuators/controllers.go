package actuators

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"gonum.org/v1/gonum/spatial/r3"
)

// Differential drive mixing gains.
const (
	ForwardGain = 100.0 // RPM per m/s
	TurnGain    = 50.0  // RPM per rad/s
)

// Gripper motion profile.
const (
	GripperSteps     = 10
	GripperStepDelay = 20 * time.Millisecond
)

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(v, hi))
}

// MotorController validates and clamps wheel speeds before they reach
// the driver.
type MotorController struct {
	driver MotorDriver
	count  int
	maxRPM float64

	mu      sync.Mutex
	current []float64
}

// NewMotorController wraps driver for count motors capped at maxRPM.
func NewMotorController(driver MotorDriver, count int, maxRPM float64) *MotorController {
	return &MotorController{
		driver:  driver,
		count:   count,
		maxRPM:  maxRPM,
		current: make([]float64, count),
	}
}

// Mix converts body velocities into [left, right, left, right] wheel speeds.
func Mix(linear, angular r3.Vec) []float64 {
	forward := linear.X * ForwardGain
	turn := angular.Z * TurnGain
	return []float64{forward - turn, forward + turn, forward - turn, forward + turn}
}

// SetSpeeds sends one speed per motor, clamped to ±maxRPM.
func (m *MotorController) SetSpeeds(ctx context.Context, rpm []float64) error {
	if len(rpm) != m.count {
		return fmt.Errorf("%w: %w: got %d speeds for %d motors",
			ErrInvalidCommand, ErrMotorCount, len(rpm), m.count)
	}
	if m.driver == nil {
		return ErrNotConnected
	}

	clamped := make([]float64, len(rpm))
	for i, v := range rpm {
		clamped[i] = clamp(v, -m.maxRPM, m.maxRPM)
	}

	if err := m.driver.SetSpeeds(ctx, clamped); err != nil {
		return fmt.Errorf("set motor speeds: %w", err)
	}

	m.mu.Lock()
	m.current = clamped
	m.mu.Unlock()
	return nil
}

// SetVelocity mixes body velocities into wheel speeds and sends them.
// Only a four-motor layout can be mixed.
func (m *MotorController) SetVelocity(ctx context.Context, linear, angular r3.Vec) error {
	return m.SetSpeeds(ctx, Mix(linear, angular))
}

// StopAll sets every motor to zero.
func (m *MotorController) StopAll(ctx context.Context) error {
	return m.SetSpeeds(ctx, make([]float64, m.count))
}

// Speeds returns the last speeds sent.
func (m *MotorController) Speeds() []float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]float64(nil), m.current...)
}

// ServoController clamps joint angles to 0..180 degrees.
type ServoController struct {
	driver ServoDriver
	count  int
}

// NewServoController wraps driver for count servos.
func NewServoController(driver ServoDriver, count int) *ServoController {
	return &ServoController{driver: driver, count: count}
}

// SetAngles sends up to count angles. Extra entries are ignored.
func (s *ServoController) SetAngles(ctx context.Context, degrees []float64) error {
	if s.driver == nil {
		return ErrNotConnected
	}
	n := min(len(degrees), s.count)
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		out[i] = clamp(degrees[i], 0, 180)
	}
	if err := s.driver.SetAngles(ctx, out); err != nil {
		return fmt.Errorf("set servo angles: %w", err)
	}
	return nil
}

// GripperController moves the gripper in small steps.
type GripperController struct {
	driver GripperDriver
	sleep  Sleeper

	mu       sync.Mutex
	position float64
}

// NewGripperController wraps driver. The gripper starts open.
func NewGripperController(driver GripperDriver, sleep Sleeper) *GripperController {
	return &GripperController{driver: driver, sleep: sleep}
}

// Move interpolates from the current position to cmd.Position over
// GripperSteps steps.
func (g *GripperController) Move(ctx context.Context, cmd GripperCommand) error {
	if g.driver == nil {
		return ErrNotConnected
	}
	target := clamp(cmd.Position, 0, 1)

	g.mu.Lock()
	start := g.position
	g.mu.Unlock()

	for i := 1; i <= GripperSteps; i++ {
		pos := start + (target-start)*float64(i)/GripperSteps
		if err := g.driver.SetPosition(ctx, pos, cmd.Force); err != nil {
			return fmt.Errorf("gripper step %d: %w", i, err)
		}

		g.mu.Lock()
		g.position = pos
		g.mu.Unlock()

		if err := g.sleep(ctx, GripperStepDelay); err != nil {
			return err
		}
	}
	return nil
}

// Position returns the last commanded position.
func (g *GripperController) Position() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.position
}

// LEDController addresses a fixed strip of LEDs.
type LEDController struct {
	driver LEDDriver
	count  int
}

// NewLEDController wraps driver for count LEDs.
func NewLEDController(driver LEDDriver, count int) *LEDController {
	return &LEDController{driver: driver, count: count}
}

// Count returns the number of LEDs.
func (l *LEDController) Count() int {
	return l.count
}

// Set applies one LED command.
func (l *LEDController) Set(ctx context.Context, cmd LEDCommand) error {
	if cmd.ID < 0 || cmd.ID >= l.count {
		return fmt.Errorf("%w: %w: %d (have %d)", ErrInvalidCommand, ErrLEDOutOfRange, cmd.ID, l.count)
	}
	if l.driver == nil {
		return ErrNotConnected
	}
	if err := l.driver.SetLED(ctx, cmd.ID, cmd.R, cmd.G, cmd.B, cmd.Brightness); err != nil {
		return fmt.Errorf("led %d: %w", cmd.ID, err)
	}
	return nil
}

// SetAll paints every LED the same color. It keeps going past failures
// and returns the first one.
func (l *LEDController) SetAll(ctx context.Context, r, g, b, brightness uint8) error {
	var first error
	for id := 0; id < l.count; id++ {
		err := l.Set(ctx, LEDCommand{ID: id, R: r, G: g, B: b, Brightness: brightness})
		if err != nil && first == nil {
			first = err
		}
	}
	return first
}

// ClearAll turns every LED off.
func (l *LEDController) ClearAll(ctx context.Context) error {
	return l.SetAll(ctx, 0, 0, 0, 0)
}

// SpeakerController plays tones and holds for their duration.
type SpeakerController struct {
	driver SpeakerDriver
	sleep  Sleeper
}

// NewSpeakerController wraps driver.
func NewSpeakerController(driver SpeakerDriver, sleep Sleeper) *SpeakerController {
	return &SpeakerController{driver: driver, sleep: sleep}
}

// Play starts the tone and returns once it has finished.
func (s *SpeakerController) Play(ctx context.Context, cmd SpeakerCommand) error {
	if s.driver == nil {
		return ErrNotConnected
	}
	volume := clamp(cmd.Volume, 0, 1)
	if err := s.driver.PlayTone(ctx, cmd.Frequency, cmd.Duration, volume); err != nil {
		return fmt.Errorf("play tone: %w", err)
	}
	return s.sleep(ctx, cmd.Duration)
}
