// Package mech assembles the control stack and runs its loops.
//
// A Mech owns the bus, the shared state store, the sensor hub, the
// navigation planner, the safety monitor and the actuator dispatcher, and
// drives them from four fixed-rate loops:
//
//	sensor      read sensors, update the shared state, publish telemetry
//	navigation  apply operator commands, plan, dispatch to actuators
//	perception  poll the vision source into the planner's inbox
//	publisher   publish the system state
package mech

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync/atomic"
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/teslashibe/go-mechros/internal/config"
	"github.com/teslashibe/go-mechros/pkg/actuators"
	"github.com/teslashibe/go-mechros/pkg/bus"
	"github.com/teslashibe/go-mechros/pkg/navigation"
	"github.com/teslashibe/go-mechros/pkg/perception"
	"github.com/teslashibe/go-mechros/pkg/safety"
	"github.com/teslashibe/go-mechros/pkg/scheduler"
	"github.com/teslashibe/go-mechros/pkg/sensors"
	"github.com/teslashibe/go-mechros/pkg/state"
)

// Task names.
const (
	TaskSensor     = "sensor"
	TaskNavigation = "navigation"
	TaskPerception = "perception"
	TaskPublisher  = "publisher"
)

// Remote commands understood on the remote_commands topic.
const (
	CommandEmergencyStop      = "estop"
	CommandEmergencyStopAlias = "emergency_stop"
	CommandStop               = "stop"
	CommandRecover            = "recover"
)

// Collaborators are the hardware-facing parts of the vehicle. Any field
// may be left empty.
type Collaborators struct {
	Sensors sensors.Set
	Drivers actuators.Drivers
	Vision  perception.Source
}

// Mech is the assembled vehicle.
type Mech struct {
	cfg    config.Config
	logger *slog.Logger
	now    func() time.Time
	sleep  actuators.Sleeper

	bus        *bus.Bus
	store      *state.Store
	sensors    *sensors.Hub
	planner    *navigation.Planner
	monitor    *safety.Monitor
	dispatcher *actuators.Dispatcher
	ingest     *perception.Ingest
	sched      *scheduler.Scheduler

	running atomic.Bool
}

// Option configures a Mech.
type Option func(*Mech)

// WithClock replaces time.Now for the state store, planner and sensor hub.
func WithClock(now func() time.Time) Option {
	return func(m *Mech) {
		if now != nil {
			m.now = now
		}
	}
}

// WithSleeper replaces the actuator sequence delays.
func WithSleeper(s actuators.Sleeper) Option {
	return func(m *Mech) {
		if s != nil {
			m.sleep = s
		}
	}
}

// New builds every component. It fails if any part of cfg is invalid.
func New(cfg config.Config, collab Collaborators, logger *slog.Logger, opts ...Option) (*Mech, error) {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Mech{
		cfg:    cfg,
		logger: logger.With("component", "mech"),
		now:    time.Now,
		sleep:  actuators.Sleep,
	}
	for _, opt := range opts {
		opt(m)
	}

	var err error
	if m.bus, err = bus.New(cfg.Bus, logger.With("component", "bus")); err != nil {
		return nil, fmt.Errorf("bus: %w", err)
	}

	m.store = state.NewStoreWithClock(m.now)

	if m.monitor, err = safety.NewMonitor(cfg.Safety, logger.With("component", "safety")); err != nil {
		return nil, err
	}

	m.dispatcher, err = actuators.NewDispatcher(cfg.Actuators, collab.Drivers, m.monitor,
		actuators.WithLogger(logger.With("component", "actuators")),
		actuators.WithSleeper(m.sleep),
		actuators.WithPublisher(m.bus, bus.TopicCommands),
	)
	if err != nil {
		return nil, err
	}

	m.sensors = sensors.NewHub(collab.Sensors,
		sensors.WithLogger(logger.With("component", "sensors")),
		sensors.WithClock(m.now),
		sensors.WithPublisher(m.bus, bus.TopicTelemetry),
	)

	// Turn commands the safety gate would reject are never planned.
	nav := cfg.Navigation
	nav.MaxAngularSpeed = math.Min(nav.MaxAngularSpeed, cfg.Safety.MaxAngularSpeed)
	if err := nav.Validate(); err != nil {
		return nil, err
	}
	m.planner = navigation.NewPlanner(nav, m.bus.Goals(),
		navigation.WithLogger(logger.With("component", "navigation")),
		navigation.WithClock(m.now),
	)

	m.ingest = perception.NewIngest(collab.Vision, m.planner.Inbox(), logger.With("component", "perception"))

	if m.sched, err = scheduler.New(logger.With("component", "scheduler")); err != nil {
		return nil, err
	}
	for _, t := range []scheduler.Task{
		{Name: TaskSensor, Interval: cfg.Loops.Sensor, Run: m.sensorCycle},
		{Name: TaskNavigation, Interval: cfg.Loops.Navigation, Run: m.navigationCycle},
		{Name: TaskPerception, Interval: cfg.Loops.Perception, Run: m.perceptionCycle},
		{Name: TaskPublisher, Interval: cfg.Loops.Publisher, Run: m.publishCycle},
	} {
		if err := m.sched.Add(t); err != nil {
			return nil, err
		}
	}

	return m, nil
}

// Bus returns the message bus.
func (m *Mech) Bus() *bus.Bus { return m.bus }

// State returns the shared state store.
func (m *Mech) State() *state.Store { return m.store }

// Planner returns the navigation planner.
func (m *Mech) Planner() *navigation.Planner { return m.planner }

// Dispatcher returns the actuator dispatcher.
func (m *Mech) Dispatcher() *actuators.Dispatcher { return m.dispatcher }

// Sensors returns the sensor hub.
func (m *Mech) Sensors() *sensors.Hub { return m.sensors }

// Scheduler returns the loop scheduler.
func (m *Mech) Scheduler() *scheduler.Scheduler { return m.sched }

// Initialize calibrates sensors and brings actuators online. On failure
// the system is left in the error state with the reason recorded.
func (m *Mech) Initialize(ctx context.Context) error {
	m.logger.Info("initializing")

	if err := m.bringUp(ctx); err != nil {
		m.store.Fail(err.Error())
		return err
	}
	if err := m.store.Transition(state.Ready); err != nil {
		return err
	}

	m.logger.Info("ready", "status", m.store.Status())
	return nil
}

// bringUp initializes the sensors, then the actuators. A successful
// actuator initialization arms the safety monitor.
func (m *Mech) bringUp(ctx context.Context) error {
	if err := m.sensors.Initialize(ctx); err != nil {
		return fmt.Errorf("sensor initialization failed: %w", err)
	}
	if err := m.dispatcher.Initialize(ctx); err != nil {
		return fmt.Errorf("actuator initialization failed: %w", err)
	}
	return nil
}

// activate moves a Ready system to Active. It refuses while the safety
// monitor is disarmed.
func (m *Mech) activate() error {
	if !m.monitor.Active() {
		return errors.New("mech: safety monitor is not armed")
	}
	if code := m.store.Status().Code; code != state.Ready && code != state.Active {
		return fmt.Errorf("%w: %s -> %s", state.ErrInvalidTransition, code, state.Active)
	}
	return m.store.Transition(state.Active)
}

// Run activates the system and runs the loops until ctx is cancelled,
// then stops the motors and shuts down. A system that failed to
// initialize still runs its loops so that its status keeps being
// published and a "recover" command can be received.
func (m *Mech) Run(ctx context.Context) error {
	if !m.running.CompareAndSwap(false, true) {
		return errors.New("mech: already running")
	}
	defer m.running.Store(false)

	if err := m.activate(); err != nil {
		m.logger.Warn("running without activation", "status", m.store.Status(), "error", err)
	} else {
		m.logger.Info("active")
	}

	err := m.sched.Run(ctx)
	m.shutdown(context.WithoutCancel(ctx))
	return err
}

func (m *Mech) shutdown(ctx context.Context) {
	m.logger.Info("shutting down")

	if err := m.dispatcher.Motors().StopAll(ctx); err != nil {
		m.logger.Warn("failed to stop motors", "error", err)
	}
	if err := m.store.Transition(state.Shutdown); err != nil {
		m.logger.Warn("shutdown transition failed", "error", err)
	}
	m.publishCycle(ctx)
	m.bus.Close()
}

func (m *Mech) sensorCycle(ctx context.Context) error {
	data := m.sensors.Update(ctx)

	m.store.Update(func(v *state.VehicleState) {
		if data.Position != nil {
			v.Position = *data.Position
		}
		if data.Velocity != nil {
			v.Velocity = *data.Velocity
		}
		if data.Orientation != nil {
			v.Orientation = *data.Orientation
		}
		if data.BatteryLevel != nil {
			v.BatteryLevel = *data.BatteryLevel
		}
	})
	return nil
}

func (m *Mech) navigationCycle(ctx context.Context) error {
	m.handleRemoteCommands(ctx)

	if m.dispatcher.EmergencyActive() {
		return nil
	}
	st := m.store.Snapshot()
	if st.Status.Code != state.Active {
		return nil
	}

	cmd := m.planner.Update(st)
	if cmd == nil {
		return nil
	}

	set := actuators.FromNavigation(*cmd)
	if set.Linear != nil {
		body := toBodyFrame(*set.Linear, st.Orientation.Z)
		set.Linear = &body
	}

	report, err := m.dispatcher.Execute(ctx, set)
	if report.Rejected {
		m.logger.Debug("command rejected by safety monitor", "kind", cmd.Kind)
	}
	for _, res := range report.Failed() {
		m.logger.Debug("subsystem failed", "subsystem", res.Subsystem, "error", res.Error)
	}
	return err
}

// toBodyFrame rotates a world-frame velocity into the vehicle frame, where
// +x is forward. The result is never longer than v.
func toBodyFrame(v r3.Vec, yaw float64) r3.Vec {
	if yaw == 0 {
		return v
	}
	body := r3.NewRotation(-yaw, r3.Vec{Z: 1}).Rotate(v)
	return navigation.LimitNorm(body, r3.Norm(v))
}

func (m *Mech) handleRemoteCommands(ctx context.Context) {
	for _, raw := range m.bus.RemoteCommands().Drain() {
		cmd := strings.ToLower(strings.TrimSpace(string(raw)))
		m.logger.Info("remote command", "command", cmd)

		switch cmd {
		case CommandEmergencyStop, CommandEmergencyStopAlias:
			m.planner.ClearGoals()
			m.dispatcher.EmergencyStop(ctx)

		case CommandStop:
			m.planner.ClearGoals()

		case CommandRecover:
			m.recover(ctx)

		default:
			m.logger.Warn("unknown remote command", "command", cmd)
		}
	}
}

// recover clears a latched emergency stop. A failed system re-runs
// initialization and returns to Ready only if it succeeds; it is then
// reactivated if its loops are running.
func (m *Mech) recover(ctx context.Context) {
	m.dispatcher.ClearEmergency()

	if m.store.Status().Code == state.Failed {
		if err := m.bringUp(ctx); err != nil {
			m.store.Fail(err.Error())
			m.logger.Warn("recover failed", "error", err)
			return
		}
		if err := m.store.Recover(); err != nil {
			m.logger.Warn("recover failed", "error", err)
			return
		}
	}
	if m.running.Load() && m.store.Status().Code != state.Active {
		if err := m.activate(); err != nil {
			m.logger.Warn("reactivation failed", "error", err)
			return
		}
	}
	m.logger.Info("recovered", "status", m.store.Status())
}

func (m *Mech) perceptionCycle(ctx context.Context) error {
	return m.ingest.Poll(ctx)
}

func (m *Mech) publishCycle(ctx context.Context) error {
	if err := m.bus.PublishJSON(bus.TopicSystemState, m.store.Snapshot()); err != nil && !errors.Is(err, bus.ErrClosed) {
		return err
	}
	return nil
}
