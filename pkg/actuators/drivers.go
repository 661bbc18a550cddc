package actuators

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors. Both invalid-command errors wrap ErrInvalidCommand and
// are returned from Execute; every other subsystem failure is only logged
// and reported.
var (
	ErrInvalidCommand = errors.New("invalid actuator command")
	ErrMotorCount     = errors.New("motor speed count mismatch")
	ErrLEDOutOfRange  = errors.New("led id out of range")
	ErrNotConnected   = errors.New("actuator not connected")
)

// MotorDriver applies wheel speeds in RPM, one entry per motor.
type MotorDriver interface {
	SetSpeeds(ctx context.Context, rpm []float64) error
}

// ServoDriver applies joint angles in degrees, one entry per servo.
type ServoDriver interface {
	SetAngles(ctx context.Context, degrees []float64) error
}

// GripperDriver moves the gripper to position (0 open, 1 closed).
type GripperDriver interface {
	SetPosition(ctx context.Context, position, force float64) error
}

// LEDDriver sets one LED.
type LEDDriver interface {
	SetLED(ctx context.Context, id int, r, g, b, brightness uint8) error
}

// SpeakerDriver starts a tone. It need not block for the duration.
type SpeakerDriver interface {
	PlayTone(ctx context.Context, frequency float64, duration time.Duration, volume float64) error
}

// Initializer is implemented by drivers that need setup before use.
type Initializer interface {
	Initialize(ctx context.Context) error
}

// Drivers is the hardware attached to this vehicle. Nil means absent.
type Drivers struct {
	Motors  MotorDriver
	Servos  ServoDriver
	Gripper GripperDriver
	LEDs    LEDDriver
	Speaker SpeakerDriver
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Sleep is the default Sleeper.
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func initialize(ctx context.Context, driver any) error {
	if in, ok := driver.(Initializer); ok {
		return in.Initialize(ctx)
	}
	return nil
}
