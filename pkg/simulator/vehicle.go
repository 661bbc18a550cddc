// Package simulator provides a kinematic differential-drive vehicle that
// stands in for the real sensors and actuators.
//
// Motor speeds are turned back into body velocities using the inverse of
// the actuator mixing, and the pose is integrated lazily on every call
// from the elapsed wall (or injected) time.
package simulator

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/teslashibe/go-mechros/pkg/actuators"
	"github.com/teslashibe/go-mechros/pkg/perception"
	"github.com/teslashibe/go-mechros/pkg/sensors"
)

// ErrFault is returned by a modality switched into fault mode.
var ErrFault = errors.New("simulated fault")

// Defaults for a fresh vehicle.
const (
	DefaultSensingRange = 5.0     // m
	DefaultDrainPerRev  = 0.00005 // battery % per wheel revolution
)

// Obstacle is a static object in the world frame.
type Obstacle struct {
	Position r3.Vec
	Class    string
}

// LED is the last state written to one LED.
type LED struct {
	R, G, B, Brightness uint8
}

// Vehicle is a simulated robot. It is safe for concurrent use.
type Vehicle struct {
	now func() time.Time

	mu        sync.Mutex
	last      time.Time
	position  r3.Vec
	velocity  r3.Vec // world frame
	accel     r3.Vec
	yaw       float64
	yawRate   float64
	forward   float64 // m/s, body frame
	battery   float64
	speeds    []float64
	servos    []float64
	gripper   float64
	leds      map[int]LED
	tones     []actuators.SpeakerCommand
	obstacles []Obstacle
	faults    map[string]bool

	SensingRange float64
	DrainPerRev  float64
}

// New creates a vehicle at the origin facing +x with a full battery.
func New(now func() time.Time) *Vehicle {
	if now == nil {
		now = time.Now
	}
	return &Vehicle{
		now:          now,
		last:         now(),
		battery:      100,
		leds:         make(map[int]LED),
		faults:       make(map[string]bool),
		SensingRange: DefaultSensingRange,
		DrainPerRev:  DefaultDrainPerRev,
	}
}

// Drivers returns the vehicle as actuator drivers.
func (v *Vehicle) Drivers() actuators.Drivers {
	return actuators.Drivers{Motors: v, Servos: v, Gripper: v, LEDs: v, Speaker: v}
}

// Sensors returns the vehicle as sensors.
func (v *Vehicle) Sensors() sensors.Set {
	return sensors.Set{IMU: v, GPS: v, Environment: v, Proximity: v, Battery: v}
}

// SetFault makes one modality ("motors", "gps", "imu", ...) fail.
func (v *Vehicle) SetFault(name string, failing bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.faults[name] = failing
}

// AddObstacle places a static obstacle in the world.
func (v *Vehicle) AddObstacle(pos r3.Vec, class string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.obstacles = append(v.obstacles, Obstacle{Position: pos, Class: class})
}

// Pose returns the integrated position and yaw.
func (v *Vehicle) Pose() (r3.Vec, float64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.integrateLocked()
	return v.position, v.yaw
}

// integrateLocked advances the pose to now at the current body velocity.
func (v *Vehicle) integrateLocked() {
	now := v.now()
	dt := now.Sub(v.last).Seconds()
	v.last = now
	if dt <= 0 {
		return
	}

	// Midpoint heading keeps arcs close to the true path.
	heading := v.yaw + v.yawRate*dt/2
	step := r3.Vec{X: math.Cos(heading) * v.forward * dt, Y: math.Sin(heading) * v.forward * dt}
	v.position = r3.Add(v.position, step)
	v.yaw = wrap(v.yaw + v.yawRate*dt)

	var revs float64
	for _, s := range v.speeds {
		revs += math.Abs(s) / 60 * dt
	}
	v.battery = math.Max(0, v.battery-revs*v.DrainPerRev)
}

func wrap(a float64) float64 {
	return math.Atan2(math.Sin(a), math.Cos(a))
}

// SetSpeeds implements actuators.MotorDriver for a [L, R, L, R] layout.
func (v *Vehicle) SetSpeeds(ctx context.Context, rpm []float64) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.faults["motors"] {
		return ErrFault
	}
	v.integrateLocked()

	var left, right float64
	var nl, nr int
	for i, s := range rpm {
		if i%2 == 0 {
			left += s
			nl++
		} else {
			right += s
			nr++
		}
	}
	if nl > 0 {
		left /= float64(nl)
	}
	if nr > 0 {
		right /= float64(nr)
	}

	prev := v.velocity
	v.forward = (left + right) / 2 / actuators.ForwardGain
	v.yawRate = (right - left) / 2 / actuators.TurnGain
	v.velocity = r3.Vec{X: math.Cos(v.yaw) * v.forward, Y: math.Sin(v.yaw) * v.forward}
	v.accel = r3.Sub(v.velocity, prev)
	v.speeds = append([]float64(nil), rpm...)
	return nil
}

// Speeds returns the last wheel speeds.
func (v *Vehicle) Speeds() []float64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]float64(nil), v.speeds...)
}

// SetAngles implements actuators.ServoDriver.
func (v *Vehicle) SetAngles(ctx context.Context, degrees []float64) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.faults["servos"] {
		return ErrFault
	}
	v.servos = append([]float64(nil), degrees...)
	return nil
}

// SetPosition implements actuators.GripperDriver.
func (v *Vehicle) SetPosition(ctx context.Context, position, force float64) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.faults["gripper"] {
		return ErrFault
	}
	v.gripper = position
	return nil
}

// SetLED implements actuators.LEDDriver.
func (v *Vehicle) SetLED(ctx context.Context, id int, r, g, b, brightness uint8) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.faults["leds"] {
		return ErrFault
	}
	v.leds[id] = LED{R: r, G: g, B: b, Brightness: brightness}
	return nil
}

// LEDs returns a copy of the LED states.
func (v *Vehicle) LEDs() map[int]LED {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make(map[int]LED, len(v.leds))
	for k, l := range v.leds {
		out[k] = l
	}
	return out
}

// PlayTone implements actuators.SpeakerDriver. It records the tone and
// returns at once.
func (v *Vehicle) PlayTone(ctx context.Context, frequency float64, duration time.Duration, volume float64) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.faults["speaker"] {
		return ErrFault
	}
	v.tones = append(v.tones, actuators.SpeakerCommand{Frequency: frequency, Duration: duration, Volume: volume})
	return nil
}

// Tones returns every tone played so far.
func (v *Vehicle) Tones() []actuators.SpeakerCommand {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]actuators.SpeakerCommand(nil), v.tones...)
}

// ReadIMU implements sensors.IMU.
func (v *Vehicle) ReadIMU(ctx context.Context) (sensors.IMUReading, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.faults["imu"] {
		return sensors.IMUReading{}, ErrFault
	}
	v.integrateLocked()
	return sensors.IMUReading{
		LinearAcceleration: v.accel,
		AngularVelocity:    r3.Vec{Z: v.yawRate},
		Orientation:        r3.Vec{Z: v.yaw},
	}, nil
}

// ReadGPS implements sensors.GPS with a perfect local-frame fix.
func (v *Vehicle) ReadGPS(ctx context.Context) (sensors.GPSReading, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.faults["gps"] {
		return sensors.GPSReading{}, ErrFault
	}
	v.integrateLocked()
	return sensors.GPSReading{
		Latitude:  v.position.X,
		Longitude: v.position.Y,
		Altitude:  v.position.Z,
	}, nil
}

// ReadEnvironment implements sensors.Environment.
func (v *Vehicle) ReadEnvironment(ctx context.Context) (sensors.EnvironmentReading, error) {
	if v.fault("environment") {
		return sensors.EnvironmentReading{}, ErrFault
	}
	return sensors.EnvironmentReading{Temperature: 22, Humidity: 45, Pressure: 1013.25, LightLevel: 400}, nil
}

// ReadProximity implements sensors.Proximity: the distance to every
// obstacle within sensing range.
func (v *Vehicle) ReadProximity(ctx context.Context) ([]float64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.faults["proximity"] {
		return nil, ErrFault
	}
	v.integrateLocked()

	var out []float64
	for _, o := range v.obstacles {
		if d := r3.Norm(r3.Sub(o.Position, v.position)); d <= v.SensingRange {
			out = append(out, d)
		}
	}
	return out, nil
}

// ReadBattery implements sensors.Battery.
func (v *Vehicle) ReadBattery(ctx context.Context) (float64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.faults["battery"] {
		return 0, ErrFault
	}
	v.integrateLocked()
	return v.battery, nil
}

// Detect implements perception.Source. Positions are offsets from the
// vehicle in the world frame.
func (v *Vehicle) Detect(ctx context.Context) ([]perception.Detection, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.faults["vision"] {
		return nil, ErrFault
	}
	v.integrateLocked()

	var out []perception.Detection
	for _, o := range v.obstacles {
		rel := r3.Sub(o.Position, v.position)
		if r3.Norm(rel) > v.SensingRange {
			continue
		}
		out = append(out, perception.Detection{Class: o.Class, Position: &rel, Confidence: 0.9})
	}
	return out, nil
}

func (v *Vehicle) fault(name string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.faults[name]
}
