package actuators

import (
	"fmt"
	"time"
)

// Config holds the actuator layout and dispatch tuning.
type Config struct {
	MotorCount  int     `mapstructure:"motor_count" json:"motor_count"`
	MaxMotorRPM float64 `mapstructure:"max_motor_rpm" json:"max_motor_rpm"`
	ServoCount  int     `mapstructure:"servo_count" json:"servo_count"`
	LEDCount    int     `mapstructure:"led_count" json:"led_count"`

	// SubsystemTimeout bounds each unit of a concurrent dispatch.
	// Speaker units get the tone duration on top.
	SubsystemTimeout time.Duration `mapstructure:"subsystem_timeout" json:"subsystem_timeout"`

	// Serial drives the motors over a serial link when Port is set.
	Serial SerialConfig `mapstructure:"serial" json:"serial"`
}

// SerialConfig configures the serial motor link.
type SerialConfig struct {
	Port     string `mapstructure:"port" json:"port"`
	BaudRate int    `mapstructure:"baud_rate" json:"baud_rate"`
}

// DefaultConfig returns the stock four-wheel layout.
func DefaultConfig() Config {
	return Config{
		MotorCount:       4,
		MaxMotorRPM:      3000,
		ServoCount:       6,
		LEDCount:         8,
		SubsystemTimeout: 500 * time.Millisecond,
		Serial: SerialConfig{
			BaudRate: 115200,
		},
	}
}

// Validate checks that the configuration is usable.
func (c Config) Validate() error {
	if c.MotorCount < 1 {
		return fmt.Errorf("actuators: motor_count must be at least 1, got %d", c.MotorCount)
	}
	if c.MaxMotorRPM <= 0 {
		return fmt.Errorf("actuators: max_motor_rpm must be positive")
	}
	if c.ServoCount < 0 || c.LEDCount < 0 {
		return fmt.Errorf("actuators: servo_count and led_count must not be negative")
	}
	if c.SubsystemTimeout <= 0 {
		return fmt.Errorf("actuators: subsystem_timeout must be positive")
	}
	return nil
}
