package sensors

import (
	"context"

	"gonum.org/v1/gonum/spatial/r3"
)

// IMUReading is one inertial measurement.
type IMUReading struct {
	LinearAcceleration r3.Vec `json:"linear_acceleration"` // m/s²
	AngularVelocity    r3.Vec `json:"angular_velocity"`    // rad/s
	Orientation        r3.Vec `json:"orientation"`         // roll, pitch, yaw
}

// GPSReading is one position fix. Coordinates are in the local frame.
type GPSReading struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Altitude  float64 `json:"altitude"`
	Accuracy  float64 `json:"accuracy"`
}

// LidarScan is a planar range scan.
type LidarScan struct {
	AngleMin       float64   `json:"angle_min"`
	AngleIncrement float64   `json:"angle_increment"`
	Ranges         []float64 `json:"ranges"`
}

// EnvironmentReading holds ambient measurements.
type EnvironmentReading struct {
	Temperature float64 `json:"temperature"` // °C
	Humidity    float64 `json:"humidity"`    // %
	Pressure    float64 `json:"pressure"`    // hPa
	LightLevel  float64 `json:"light_level"` // lux
}

// IMU reads the inertial unit.
type IMU interface {
	ReadIMU(ctx context.Context) (IMUReading, error)
}

// GPS reads the position fix.
type GPS interface {
	ReadGPS(ctx context.Context) (GPSReading, error)
}

// Lidar reads a range scan.
type Lidar interface {
	Scan(ctx context.Context) (LidarScan, error)
}

// Environment reads ambient conditions.
type Environment interface {
	ReadEnvironment(ctx context.Context) (EnvironmentReading, error)
}

// Proximity reads the short-range distance sensors, in meters.
type Proximity interface {
	ReadProximity(ctx context.Context) ([]float64, error)
}

// Battery reads the charge level (0–100).
type Battery interface {
	ReadBattery(ctx context.Context) (float64, error)
}

// Initializer is implemented by sensors that need calibration.
type Initializer interface {
	Initialize(ctx context.Context) error
}

// Set is the sensors fitted to this vehicle. Nil means absent.
type Set struct {
	IMU         IMU
	GPS         GPS
	Lidar       Lidar
	Environment Environment
	Proximity   Proximity
	Battery     Battery
}
