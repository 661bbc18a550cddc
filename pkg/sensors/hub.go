// Package sensors fuses the fitted sensors into one snapshot per cycle.
//
// Every modality is optional. A modality that is absent or fails to read
// is nil in the snapshot; read failures are logged and never stop the
// cycle.
package sensors

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"gonum.org/v1/gonum/spatial/r3"
)

// Modality names used in logs and Status.
const (
	ModalityIMU         = "imu"
	ModalityGPS         = "gps"
	ModalityLidar       = "lidar"
	ModalityEnvironment = "environment"
	ModalityProximity   = "proximity"
	ModalityBattery     = "battery"
)

// Data is one fused sensor snapshot.
type Data struct {
	Timestamp       time.Time `json:"timestamp"`
	Position        *r3.Vec   `json:"position,omitempty"`
	Velocity        *r3.Vec   `json:"velocity,omitempty"`
	Acceleration    *r3.Vec   `json:"acceleration,omitempty"`
	AngularVelocity *r3.Vec   `json:"angular_velocity,omitempty"`
	Orientation     *r3.Vec   `json:"orientation,omitempty"`
	Temperature     *float64  `json:"temperature,omitempty"`
	Humidity        *float64  `json:"humidity,omitempty"`
	Pressure        *float64  `json:"pressure,omitempty"`
	LightLevel      *float64  `json:"light_level,omitempty"`
	BatteryLevel    *float64  `json:"battery_level,omitempty"`
	Proximity       []float64 `json:"proximity,omitempty"`

	IMU   *IMUReading `json:"imu,omitempty"`
	GPS   *GPSReading `json:"gps,omitempty"`
	Lidar *LidarScan  `json:"lidar,omitempty"`
}

// Publisher receives the telemetry snapshot.
type Publisher interface {
	Publish(topic string, data []byte) error
}

// Status reports which modalities produced a reading last cycle.
type Status struct {
	IMUOnline         bool `json:"imu_online"`
	GPSOnline         bool `json:"gps_online"`
	LidarOnline       bool `json:"lidar_online"`
	EnvironmentOnline bool `json:"environment_online"`
	ProximityOnline   bool `json:"proximity_online"`
	BatteryOnline     bool `json:"battery_online"`
}

// Hub reads every fitted sensor and fuses the results.
type Hub struct {
	set    Set
	logger *slog.Logger
	now    func() time.Time

	publisher Publisher
	topic     string

	mu     sync.Mutex
	status Status
	last   Data
}

// Option configures a Hub.
type Option func(*Hub)

// WithLogger sets the hub's logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *Hub) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(h *Hub) {
		if now != nil {
			h.now = now
		}
	}
}

// WithPublisher publishes each snapshot as JSON to topic.
func WithPublisher(p Publisher, topic string) Option {
	return func(h *Hub) {
		h.publisher = p
		h.topic = topic
	}
}

// NewHub creates a hub over the given sensors.
func NewHub(set Set, opts ...Option) *Hub {
	h := &Hub{
		set:    set,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Initialize calibrates the sensors that support it.
func (h *Hub) Initialize(ctx context.Context) error {
	fitted := []struct {
		name   string
		sensor any
	}{
		{ModalityIMU, h.set.IMU},
		{ModalityGPS, h.set.GPS},
		{ModalityLidar, h.set.Lidar},
		{ModalityEnvironment, h.set.Environment},
		{ModalityProximity, h.set.Proximity},
		{ModalityBattery, h.set.Battery},
	}

	for _, f := range fitted {
		if f.sensor == nil {
			h.logger.Debug("sensor not fitted", "modality", f.name)
			continue
		}
		in, ok := f.sensor.(Initializer)
		if !ok {
			continue
		}
		if err := in.Initialize(ctx); err != nil {
			return fmt.Errorf("initialize %s: %w", f.name, err)
		}
	}

	h.logger.Info("sensors initialized")
	return nil
}

// Update reads every fitted sensor once and publishes the snapshot.
func (h *Hub) Update(ctx context.Context) Data {
	data := Data{Timestamp: h.now()}
	var st Status

	if h.set.IMU != nil {
		if r, err := h.set.IMU.ReadIMU(ctx); h.ok(ModalityIMU, err) {
			st.IMUOnline = true
			data.IMU = &r
			acc, gyro, orient := r.LinearAcceleration, r.AngularVelocity, r.Orientation
			data.Acceleration = &acc
			data.AngularVelocity = &gyro
			data.Orientation = &orient
			// Velocity is taken straight from acceleration until a proper
			// integrator is fitted.
			vel := r.LinearAcceleration
			data.Velocity = &vel
		}
	}

	if h.set.GPS != nil {
		if r, err := h.set.GPS.ReadGPS(ctx); h.ok(ModalityGPS, err) {
			st.GPSOnline = true
			data.GPS = &r
			data.Position = &r3.Vec{X: r.Latitude, Y: r.Longitude, Z: r.Altitude}
		}
	}

	if h.set.Lidar != nil {
		if r, err := h.set.Lidar.Scan(ctx); h.ok(ModalityLidar, err) {
			st.LidarOnline = true
			data.Lidar = &r
		}
	}

	if h.set.Environment != nil {
		if r, err := h.set.Environment.ReadEnvironment(ctx); h.ok(ModalityEnvironment, err) {
			st.EnvironmentOnline = true
			data.Temperature = &r.Temperature
			data.Humidity = &r.Humidity
			data.Pressure = &r.Pressure
			data.LightLevel = &r.LightLevel
		}
	}

	if h.set.Proximity != nil {
		if r, err := h.set.Proximity.ReadProximity(ctx); h.ok(ModalityProximity, err) {
			st.ProximityOnline = true
			data.Proximity = r
		}
	}

	if h.set.Battery != nil {
		if r, err := h.set.Battery.ReadBattery(ctx); h.ok(ModalityBattery, err) {
			st.BatteryOnline = true
			data.BatteryLevel = &r
		}
	}

	h.mu.Lock()
	h.status = st
	h.last = data
	h.mu.Unlock()

	h.publish(data)
	return data
}

func (h *Hub) ok(modality string, err error) bool {
	if err != nil {
		h.logger.Warn("sensor read failed", "modality", modality, "error", err)
		return false
	}
	return true
}

func (h *Hub) publish(data Data) {
	if h.publisher == nil {
		return
	}
	payload, err := json.Marshal(data)
	if err != nil {
		h.logger.Error("failed to encode telemetry", "error", err)
		return
	}
	if err := h.publisher.Publish(h.topic, payload); err != nil {
		h.logger.Debug("failed to publish telemetry", "error", err)
	}
}

// Status returns the online flags from the last Update.
func (h *Hub) Status() Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.status
}

// Last returns the snapshot from the last Update.
func (h *Hub) Last() Data {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.last
}
