// Package actuators fans actuator commands out to the vehicle's motors,
// servos, gripper, LEDs and speaker, behind the safety gate.
package actuators

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/teslashibe/go-mechros/pkg/safety"
)

// Subsystem names used in reports and metrics.
const (
	SubsystemMotors  = "motors"
	SubsystemServos  = "servos"
	SubsystemGripper = "gripper"
	SubsystemLEDs    = "leds"
	SubsystemSpeaker = "speaker"
)

// StatusPrefix precedes the JSON status on the commands topic.
const StatusPrefix = "STATUS: "

// Publisher receives the status snapshot after each dispatch.
type Publisher interface {
	Publish(topic string, data []byte) error
}

// Result is the outcome of one subsystem in a dispatch.
type Result struct {
	Subsystem string        `json:"subsystem"`
	Err       error         `json:"-"`
	Error     string        `json:"error,omitempty"`
	Duration  time.Duration `json:"duration"`
}

// Report summarizes one Execute call.
type Report struct {
	Rejected  bool     `json:"rejected"`
	Emergency bool     `json:"emergency"`
	Results   []Result `json:"results,omitempty"`
}

// Failed returns the results that ended in an error.
func (r Report) Failed() []Result {
	var out []Result
	for _, res := range r.Results {
		if res.Err != nil {
			out = append(out, res)
		}
	}
	return out
}

// Result returns the result for one subsystem, if it ran.
func (r Report) Result(subsystem string) (Result, bool) {
	for _, res := range r.Results {
		if res.Subsystem == subsystem {
			return res, true
		}
	}
	return Result{}, false
}

// Status is the aggregate actuator state published after each dispatch.
type Status struct {
	MotorsOnline        bool `json:"motors_online"`
	ServosOnline        bool `json:"servos_online"`
	GripperOnline       bool `json:"gripper_online"`
	LEDsOnline          bool `json:"leds_online"`
	SpeakerOnline       bool `json:"speaker_online"`
	SafetySystemActive  bool `json:"safety_system_active"`
	EmergencyStopActive bool `json:"emergency_stop_active"`
}

// Dispatcher owns the actuator controllers. Execute and the emergency
// sequence are serialized: no normal command runs while an emergency
// sequence is in progress.
type Dispatcher struct {
	cfg     Config
	drivers Drivers
	safety  *safety.Monitor
	logger  *slog.Logger
	sleep   Sleeper

	publisher Publisher
	topic     string

	motors  *MotorController
	servos  *ServoController
	gripper *GripperController
	leds    *LEDController
	speaker *SpeakerController

	mu sync.Mutex

	online map[string]*atomic.Bool
	estop  atomic.Bool

	failures    metric.Int64Counter
	emergencies metric.Int64Counter
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the dispatcher's logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithSleeper replaces the real-time waits used by sequences and
// controllers.
func WithSleeper(s Sleeper) Option {
	return func(d *Dispatcher) {
		if s != nil {
			d.sleep = s
		}
	}
}

// WithPublisher publishes the status to topic after each dispatch.
func WithPublisher(p Publisher, topic string) Option {
	return func(d *Dispatcher) {
		d.publisher = p
		d.topic = topic
	}
}

// NewDispatcher builds the controllers for drivers.
// Uses the global OTel meter for metrics (no-op if not configured).
func NewDispatcher(cfg Config, drivers Drivers, monitor *safety.Monitor, opts ...Option) (*Dispatcher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if monitor == nil {
		return nil, errors.New("actuators: safety monitor is required")
	}

	d := &Dispatcher{
		cfg:     cfg,
		drivers: drivers,
		safety:  monitor,
		logger:  slog.Default(),
		sleep:   Sleep,
		online:  make(map[string]*atomic.Bool),
	}
	for _, opt := range opts {
		opt(d)
	}

	d.motors = NewMotorController(drivers.Motors, cfg.MotorCount, cfg.MaxMotorRPM)
	d.servos = NewServoController(drivers.Servos, cfg.ServoCount)
	d.gripper = NewGripperController(drivers.Gripper, d.sleep)
	d.leds = NewLEDController(drivers.LEDs, cfg.LEDCount)
	d.speaker = NewSpeakerController(drivers.Speaker, d.sleep)

	for _, name := range []string{SubsystemMotors, SubsystemServos, SubsystemGripper, SubsystemLEDs, SubsystemSpeaker} {
		d.online[name] = new(atomic.Bool)
	}

	m := meter()
	var err error

	d.failures, err = m.Int64Counter(
		"actuators.subsystem.failures",
		metric.WithDescription("Subsystem dispatch failures, including timeouts and panics"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating failures counter: %w", err)
	}

	d.emergencies, err = m.Int64Counter(
		"actuators.emergency.stops",
		metric.WithDescription("Emergency stop sequences run"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating emergency counter: %w", err)
	}

	return d, nil
}

// Motors returns the motor controller.
func (d *Dispatcher) Motors() *MotorController { return d.motors }

// Gripper returns the gripper controller.
func (d *Dispatcher) Gripper() *GripperController { return d.gripper }

// Initialize brings each present subsystem online, arms the safety gate
// and plays the startup sequence. A subsystem whose driver fails to
// initialize is left offline and its error returned.
func (d *Dispatcher) Initialize(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	present := []struct {
		name   string
		driver any
	}{
		{SubsystemMotors, d.drivers.Motors},
		{SubsystemServos, d.drivers.Servos},
		{SubsystemGripper, d.drivers.Gripper},
		{SubsystemLEDs, d.drivers.LEDs},
		{SubsystemSpeaker, d.drivers.Speaker},
	}

	var errs []error
	for _, p := range present {
		if p.driver == nil {
			d.logger.Warn("actuator not present", "subsystem", p.name)
			continue
		}
		if err := initialize(ctx, p.driver); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", p.name, err))
			d.logger.Error("actuator init failed", "subsystem", p.name, "error", err)
			continue
		}
		d.online[p.name].Store(true)
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}

	d.safety.Activate()
	d.startupSequence(ctx)

	d.logger.Info("actuators initialized", "status", d.Status())
	return nil
}

// startupSequence lights the LEDs one by one, beeps, spins the motors
// briefly and clears the LEDs. Failures are logged.
func (d *Dispatcher) startupSequence(ctx context.Context) {
	d.logger.Info("running startup sequence")

	for id := 0; id < d.leds.Count(); id++ {
		d.logStep("startup led", d.leds.Set(ctx, LEDCommand{ID: id, G: 255, Brightness: 100}))
		d.logStep("startup wait", d.sleep(ctx, 100*time.Millisecond))
	}

	d.logStep("startup beep", d.speaker.Play(ctx, SpeakerCommand{
		Frequency: 1000,
		Duration:  200 * time.Millisecond,
		Volume:    0.5,
	}))

	test := make([]float64, d.cfg.MotorCount)
	for i := range test {
		test[i] = 100
	}
	d.logStep("startup motor test", d.motors.SetSpeeds(ctx, test))
	d.logStep("startup wait", d.sleep(ctx, 500*time.Millisecond))
	d.logStep("startup motor stop", d.motors.StopAll(ctx))

	d.logStep("startup led clear", d.leds.ClearAll(ctx))
}

func (d *Dispatcher) logStep(step string, err error) {
	if err != nil && !errors.Is(err, ErrNotConnected) {
		d.logger.Warn("sequence step failed", "step", step, "error", err)
	}
}

// Execute runs one actuation cycle.
//
// An emergency stop set runs the emergency sequence and nothing else. A
// set the safety monitor rejects is dropped without error. Otherwise all
// present sub-commands run concurrently, each bounded by the subsystem
// timeout; failures are isolated and reported. The returned error is
// non-nil only for invalid commands.
func (d *Dispatcher) Execute(ctx context.Context, set CommandSet) (Report, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if set.EmergencyStop {
		d.emergencyLocked(ctx)
		d.publishStatus()
		return Report{Emergency: true}, nil
	}

	if !d.safety.IsSafe(set.Motion()) {
		return Report{Rejected: true}, nil
	}

	report := Report{Results: d.fanOut(ctx, set)}
	d.publishStatus()

	var invalid []error
	for _, res := range report.Results {
		if errors.Is(res.Err, ErrInvalidCommand) {
			invalid = append(invalid, fmt.Errorf("%s: %w", res.Subsystem, res.Err))
		}
	}
	return report, errors.Join(invalid...)
}

type unit struct {
	name    string
	timeout time.Duration
	run     func(ctx context.Context) error
}

func (d *Dispatcher) units(set CommandSet) []unit {
	timeout := d.cfg.SubsystemTimeout
	var units []unit

	switch {
	case set.MotorSpeeds != nil:
		speeds := set.MotorSpeeds
		units = append(units, unit{SubsystemMotors, timeout, func(ctx context.Context) error {
			return d.motors.SetSpeeds(ctx, speeds)
		}})
	case set.Linear != nil || set.Angular != nil:
		var linear, angular r3.Vec
		if set.Linear != nil {
			linear = *set.Linear
		}
		if set.Angular != nil {
			angular = *set.Angular
		}
		units = append(units, unit{SubsystemMotors, timeout, func(ctx context.Context) error {
			return d.motors.SetVelocity(ctx, linear, angular)
		}})
	}

	if set.ServoAngles != nil {
		angles := set.ServoAngles
		units = append(units, unit{SubsystemServos, timeout, func(ctx context.Context) error {
			return d.servos.SetAngles(ctx, angles)
		}})
	}

	if set.Gripper != nil {
		cmd := *set.Gripper
		units = append(units, unit{SubsystemGripper, timeout, func(ctx context.Context) error {
			return d.gripper.Move(ctx, cmd)
		}})
	}

	if len(set.LEDs) > 0 {
		leds := set.LEDs
		units = append(units, unit{SubsystemLEDs, timeout, func(ctx context.Context) error {
			var errs []error
			for _, cmd := range leds {
				if err := d.leds.Set(ctx, cmd); err != nil {
					errs = append(errs, err)
				}
			}
			return errors.Join(errs...)
		}})
	}

	if set.Speaker != nil {
		cmd := *set.Speaker
		units = append(units, unit{SubsystemSpeaker, timeout + cmd.Duration, func(ctx context.Context) error {
			return d.speaker.Play(ctx, cmd)
		}})
	}

	return units
}

// fanOut runs every unit concurrently and collects results in unit order.
func (d *Dispatcher) fanOut(ctx context.Context, set CommandSet) []Result {
	units := d.units(set)
	if len(units) == 0 {
		return nil
	}

	results := make([]Result, len(units))
	var wg conc.WaitGroup
	for i, u := range units {
		wg.Go(func() {
			results[i] = d.runUnit(ctx, u)
		})
	}
	wg.Wait()
	return results
}

// runUnit runs one subsystem with its own deadline. A stalled driver call
// is abandoned when the deadline passes; its goroutine finishes on its own.
func (d *Dispatcher) runUnit(parent context.Context, u unit) Result {
	start := time.Now()
	err := bounded(parent, u.name, u.timeout, u.run)

	res := Result{Subsystem: u.name, Err: err, Duration: time.Since(start)}
	if err != nil {
		res.Error = err.Error()
		d.failures.Add(context.Background(), 1,
			metric.WithAttributes(attribute.String("subsystem", u.name)))
		d.logger.Warn("subsystem dispatch failed", "subsystem", u.name, "error", err)
	}
	return res
}

// bounded runs fn with a deadline of timeout, recovering panics. When the
// deadline passes first, fn is abandoned and left to return on its own.
func bounded(parent context.Context, name string, timeout time.Duration, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		var pc panics.Catcher
		var err error
		pc.Try(func() { err = fn(ctx) })
		if r := pc.Recovered(); r != nil {
			err = r.AsError()
		}
		done <- err
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("%s timed out after %s: %w", name, timeout, ctx.Err())
	}
}

// EmergencyStop runs the emergency sequence outside a dispatch cycle.
func (d *Dispatcher) EmergencyStop(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.emergencyLocked(ctx)
	d.publishStatus()
}

// emergencyLocked halts the motors, flashes the LEDs red and sounds the
// alarm. It runs to completion even if ctx is cancelled or a step fails.
// Each driver step gets the subsystem timeout; a step that hangs is
// abandoned and the sequence moves on.
func (d *Dispatcher) emergencyLocked(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)

	d.estop.Store(true)
	d.emergencies.Add(ctx, 1)
	d.logger.Error("EMERGENCY STOP")

	step := func(name string, timeout time.Duration, fn func(ctx context.Context) error) {
		d.logStep(name, bounded(ctx, name, timeout, fn))
	}
	timeout := d.cfg.SubsystemTimeout

	step("emergency motor stop", timeout, d.motors.StopAll)

	for i := 0; i < 5; i++ {
		step("emergency flash", timeout, func(ctx context.Context) error {
			return d.leds.SetAll(ctx, 255, 0, 0, 255)
		})
		d.logStep("emergency wait", d.sleep(ctx, 200*time.Millisecond))
		step("emergency clear", timeout, d.leds.ClearAll)
		d.logStep("emergency wait", d.sleep(ctx, 200*time.Millisecond))
	}

	alarm := SpeakerCommand{
		Frequency: 2000,
		Duration:  300 * time.Millisecond,
		Volume:    0.8,
	}
	for i := 0; i < 3; i++ {
		step("emergency alarm", timeout+alarm.Duration, func(ctx context.Context) error {
			return d.speaker.Play(ctx, alarm)
		})
		d.logStep("emergency wait", d.sleep(ctx, 100*time.Millisecond))
	}

	d.logger.Warn("emergency sequence complete")
}

// ClearEmergency releases the latched emergency flag.
func (d *Dispatcher) ClearEmergency() {
	if d.estop.Swap(false) {
		d.logger.Info("emergency stop cleared")
	}
}

// EmergencyActive reports whether an emergency stop is latched.
func (d *Dispatcher) EmergencyActive() bool {
	return d.estop.Load()
}

// Status returns the aggregate actuator state.
func (d *Dispatcher) Status() Status {
	return Status{
		MotorsOnline:        d.online[SubsystemMotors].Load(),
		ServosOnline:        d.online[SubsystemServos].Load(),
		GripperOnline:       d.online[SubsystemGripper].Load(),
		LEDsOnline:          d.online[SubsystemLEDs].Load(),
		SpeakerOnline:       d.online[SubsystemSpeaker].Load(),
		SafetySystemActive:  d.safety.Active(),
		EmergencyStopActive: d.estop.Load(),
	}
}

func (d *Dispatcher) publishStatus() {
	if d.publisher == nil {
		return
	}
	data, err := json.Marshal(d.Status())
	if err != nil {
		d.logger.Error("failed to encode actuator status", "error", err)
		return
	}
	if err := d.publisher.Publish(d.topic, append([]byte(StatusPrefix), data...)); err != nil {
		d.logger.Debug("failed to publish actuator status", "error", err)
	}
}
