// Package config loads runtime configuration for the mechros commands.
//
// Values come from built-in defaults, an optional JSON or YAML file and
// MECHROS_* environment variables, in increasing order of precedence.
// Nested keys map to variables with dots replaced by underscores, e.g.
// navigation.max_linear_speed → MECHROS_NAVIGATION_MAX_LINEAR_SPEED.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/teslashibe/go-mechros/pkg/actuators"
	"github.com/teslashibe/go-mechros/pkg/bus"
	"github.com/teslashibe/go-mechros/pkg/navigation"
	"github.com/teslashibe/go-mechros/pkg/recorder"
	"github.com/teslashibe/go-mechros/pkg/safety"
	"github.com/teslashibe/go-mechros/pkg/web"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "MECHROS"

// LoopsConfig holds the period of each control loop.
type LoopsConfig struct {
	Sensor     time.Duration `mapstructure:"sensor" json:"sensor"`         // 20 Hz
	Navigation time.Duration `mapstructure:"navigation" json:"navigation"` // 10 Hz
	Perception time.Duration `mapstructure:"perception" json:"perception"` // ~30 Hz
	Publisher  time.Duration `mapstructure:"publisher" json:"publisher"`   // 5 Hz
}

// Config is the complete runtime configuration.
type Config struct {
	LogLevel  string `mapstructure:"log_level" json:"log_level"`
	LogFormat string `mapstructure:"log_format" json:"log_format"`

	// Simulate runs against the built-in simulator instead of hardware.
	Simulate bool `mapstructure:"simulate" json:"simulate"`

	Navigation navigation.Config `mapstructure:"navigation" json:"navigation"`
	Safety     safety.Limits     `mapstructure:"safety" json:"safety"`
	Actuators  actuators.Config  `mapstructure:"actuators" json:"actuators"`
	Loops      LoopsConfig       `mapstructure:"loops" json:"loops"`
	Bus        bus.Config        `mapstructure:"bus" json:"bus"`
	Web        web.Config        `mapstructure:"web" json:"web"`
	Recorder   recorder.Config   `mapstructure:"recorder" json:"recorder"`
}

// Default returns the built-in configuration.
func Default() Config {
	nav := navigation.DefaultConfig()
	return Config{
		LogLevel:   "info",
		LogFormat:  "",
		Simulate:   true,
		Navigation: nav,
		Safety:     safety.DefaultLimits(),
		Actuators:  actuators.DefaultConfig(),
		Loops: LoopsConfig{
			Sensor:     50 * time.Millisecond,
			Navigation: time.Duration(float64(time.Second) / nav.PlanningFrequency),
			Perception: 33 * time.Millisecond,
			Publisher:  200 * time.Millisecond,
		},
		Bus:      bus.DefaultConfig(),
		Web:      web.DefaultConfig(),
		Recorder: recorder.DefaultConfig(),
	}
}

func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("log_format", d.LogFormat)
	v.SetDefault("simulate", d.Simulate)

	v.SetDefault("navigation.max_linear_speed", d.Navigation.MaxLinearSpeed)
	v.SetDefault("navigation.max_angular_speed", d.Navigation.MaxAngularSpeed)
	v.SetDefault("navigation.position_tolerance", d.Navigation.PositionTolerance)
	v.SetDefault("navigation.orientation_tolerance", d.Navigation.OrientationTolerance)
	v.SetDefault("navigation.safety_distance", d.Navigation.SafetyDistance)
	v.SetDefault("navigation.obstacle_ttl", d.Navigation.ObstacleTTL)
	v.SetDefault("navigation.planning_frequency", d.Navigation.PlanningFrequency)
	v.SetDefault("navigation.pid.kp", d.Navigation.PID.Kp)
	v.SetDefault("navigation.pid.ki", d.Navigation.PID.Ki)
	v.SetDefault("navigation.pid.kd", d.Navigation.PID.Kd)
	v.SetDefault("navigation.inbox_size", d.Navigation.InboxSize)

	v.SetDefault("safety.max_linear_speed", d.Safety.MaxLinearSpeed)
	v.SetDefault("safety.max_angular_speed", d.Safety.MaxAngularSpeed)
	v.SetDefault("safety.max_motor_rpm", d.Safety.MaxMotorRPM)

	v.SetDefault("actuators.motor_count", d.Actuators.MotorCount)
	v.SetDefault("actuators.max_motor_rpm", d.Actuators.MaxMotorRPM)
	v.SetDefault("actuators.servo_count", d.Actuators.ServoCount)
	v.SetDefault("actuators.led_count", d.Actuators.LEDCount)
	v.SetDefault("actuators.subsystem_timeout", d.Actuators.SubsystemTimeout)
	v.SetDefault("actuators.serial.port", d.Actuators.Serial.Port)
	v.SetDefault("actuators.serial.baud_rate", d.Actuators.Serial.BaudRate)

	v.SetDefault("loops.sensor", d.Loops.Sensor)
	v.SetDefault("loops.navigation", d.Loops.Navigation)
	v.SetDefault("loops.perception", d.Loops.Perception)
	v.SetDefault("loops.publisher", d.Loops.Publisher)

	v.SetDefault("bus.node_name", d.Bus.NodeName)
	v.SetDefault("bus.prefix", d.Bus.Prefix)
	v.SetDefault("bus.goal_buffer", d.Bus.GoalBuffer)
	v.SetDefault("bus.remote_buffer", d.Bus.RemoteBuffer)

	v.SetDefault("web.addr", d.Web.Addr)

	v.SetDefault("recorder.enabled", d.Recorder.Enabled)
	v.SetDefault("recorder.path", d.Recorder.Path)
	v.SetDefault("recorder.flush_interval", d.Recorder.FlushInterval)
	v.SetDefault("recorder.batch_size", d.Recorder.BatchSize)
	v.SetDefault("recorder.max_pending", d.Recorder.MaxPending)
	v.SetDefault("recorder.topics", d.Recorder.Topics)
}

// Load builds a Config. path names a config file; when empty, a file
// called "mechros" (any supported extension) is looked up in the working
// directory and /etc/mechros, and its absence is not an error.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("error reading config file: %w", err)
		}
	} else {
		v.SetConfigName("mechros")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/mechros")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("error reading config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("error decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks every section.
func (c *Config) Validate() error {
	var errs []error
	if err := c.Navigation.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Safety.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Actuators.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Bus.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("bus: %w", err))
	}
	if err := c.Web.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("web: %w", err))
	}
	if c.Recorder.Enabled {
		if err := c.Recorder.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("recorder: %w", err))
		}
	}
	for name, d := range map[string]time.Duration{
		"sensor":     c.Loops.Sensor,
		"navigation": c.Loops.Navigation,
		"perception": c.Loops.Perception,
		"publisher":  c.Loops.Publisher,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("loops: %s period must be positive", name))
		}
	}
	if !c.Simulate && c.Actuators.Serial.Port == "" {
		errs = append(errs, fmt.Errorf("actuators: serial.port is required unless simulate is set"))
	}
	return errors.Join(errs...)
}

// ConfigPath returns the config file from MECHROS_CONFIG, or "" to use
// the default lookup.
func ConfigPath() string {
	return os.Getenv(EnvPrefix + "_CONFIG")
}
