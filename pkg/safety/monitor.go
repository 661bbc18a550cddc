// Package safety gates motion commands against hard kinematic limits.
package safety

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync/atomic"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"gonum.org/v1/gonum/spatial/r3"
)

// Limits are the process-wide caps every command is checked against.
type Limits struct {
	MaxLinearSpeed  float64 `mapstructure:"max_linear_speed" json:"max_linear_speed"`   // m/s
	MaxAngularSpeed float64 `mapstructure:"max_angular_speed" json:"max_angular_speed"` // rad/s
	MaxMotorRPM     float64 `mapstructure:"max_motor_rpm" json:"max_motor_rpm"`
}

// DefaultLimits returns the stock safety limits.
func DefaultLimits() Limits {
	return Limits{
		MaxLinearSpeed:  2.0,
		MaxAngularSpeed: 1.0,
		MaxMotorRPM:     3000,
	}
}

// Validate rejects non-positive limits.
func (l Limits) Validate() error {
	if l.MaxLinearSpeed <= 0 || l.MaxAngularSpeed <= 0 || l.MaxMotorRPM <= 0 {
		return fmt.Errorf("safety: limits must be positive: %+v", l)
	}
	return nil
}

// Motion is the part of a command the monitor inspects.
// Nil fields are not checked.
type Motion struct {
	Linear      *r3.Vec
	Angular     *r3.Vec
	MotorSpeeds []float64
}

// Monitor decides whether a command may reach hardware.
// An inactive monitor passes everything; it is armed after startup.
type Monitor struct {
	limits Limits
	active atomic.Bool
	logger *slog.Logger

	rejected metric.Int64Counter
}

// NewMonitor creates an inactive monitor.
// Uses the global OTel meter for metrics (no-op if not configured).
func NewMonitor(limits Limits, logger *slog.Logger) (*Monitor, error) {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Monitor{limits: limits, logger: logger}

	var err error
	m.rejected, err = meter().Int64Counter(
		"safety.commands.rejected",
		metric.WithDescription("Commands rejected by the safety gate"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating rejected counter: %w", err)
	}
	return m, nil
}

// Limits returns the configured limits.
func (m *Monitor) Limits() Limits {
	return m.limits
}

// Activate arms the gate.
func (m *Monitor) Activate() {
	if !m.active.Swap(true) {
		m.logger.Info("safety monitor activated")
	}
}

// Deactivate disarms the gate.
func (m *Monitor) Deactivate() {
	if m.active.Swap(false) {
		m.logger.Warn("safety monitor deactivated")
	}
}

// Active reports whether the gate is armed.
func (m *Monitor) Active() bool {
	return m.active.Load()
}

// IsSafe reports whether mo is within every limit. A rejection is not an
// error: the caller drops the whole command for this cycle.
func (m *Monitor) IsSafe(mo Motion) bool {
	if !m.active.Load() {
		return true
	}

	if reason, ok := m.check(mo); !ok {
		m.logger.Warn("command rejected", "reason", reason)
		m.rejected.Add(context.Background(), 1,
			metric.WithAttributes(attribute.String("reason", reason)))
		return false
	}
	return true
}

func (m *Monitor) check(mo Motion) (string, bool) {
	if mo.Linear != nil && r3.Norm(*mo.Linear) > m.limits.MaxLinearSpeed {
		return "linear_speed", false
	}
	if mo.Angular != nil && r3.Norm(*mo.Angular) > m.limits.MaxAngularSpeed {
		return "angular_speed", false
	}
	for _, rpm := range mo.MotorSpeeds {
		if math.Abs(rpm) > m.limits.MaxMotorRPM {
			return "motor_rpm", false
		}
	}
	return "", true
}
