package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chdir moves into an empty directory so no stray mechros.* file is found.
func chdir(t *testing.T) {
	t.Helper()
	t.Chdir(t.TempDir())
}

func TestLoad_DefaultValues(t *testing.T) {
	chdir(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.True(t, cfg.Simulate)
	assert.Equal(t, 2.0, cfg.Navigation.MaxLinearSpeed)
	assert.Equal(t, 0.1, cfg.Navigation.PositionTolerance)
	assert.Equal(t, 5*time.Second, cfg.Navigation.ObstacleTTL)
	assert.Equal(t, 1.0, cfg.Navigation.PID.Kp)
	assert.Equal(t, 0.05, cfg.Navigation.PID.Kd)
	assert.Equal(t, 1.0, cfg.Safety.MaxAngularSpeed)
	assert.Equal(t, 3000.0, cfg.Safety.MaxMotorRPM)
	assert.Equal(t, 4, cfg.Actuators.MotorCount)
	assert.Equal(t, 500*time.Millisecond, cfg.Actuators.SubsystemTimeout)
	assert.Equal(t, 115200, cfg.Actuators.Serial.BaudRate)
	assert.Equal(t, 50*time.Millisecond, cfg.Loops.Sensor)
	assert.Equal(t, 100*time.Millisecond, cfg.Loops.Navigation)
	assert.Equal(t, 200*time.Millisecond, cfg.Loops.Publisher)
	assert.Equal(t, "mechros2", cfg.Bus.Prefix)
	assert.Equal(t, 10, cfg.Bus.GoalBuffer)
	assert.Equal(t, 5, cfg.Bus.RemoteBuffer)
	assert.Equal(t, ":8080", cfg.Web.Addr)
	assert.False(t, cfg.Recorder.Enabled)
	assert.Contains(t, cfg.Recorder.Topics, "system_state")
}

func TestLoad_WithValidConfigFile(t *testing.T) {
	chdir(t)

	path := filepath.Join(t.TempDir(), "mechros.yaml")
	yaml := `
log_level: debug
navigation:
  max_linear_speed: 1.5
  obstacle_ttl: 2s
  pid:
    kp: 0.8
loops:
  navigation: 50ms
web:
  addr: 127.0.0.1:9000
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 1.5, cfg.Navigation.MaxLinearSpeed)
	assert.Equal(t, 2*time.Second, cfg.Navigation.ObstacleTTL)
	assert.Equal(t, 0.8, cfg.Navigation.PID.Kp)
	assert.Equal(t, 0.1, cfg.Navigation.PID.Ki, "unset keys keep defaults")
	assert.Equal(t, 50*time.Millisecond, cfg.Loops.Navigation)
	assert.Equal(t, "127.0.0.1:9000", cfg.Web.Addr)
}

func TestLoad_DiscoversFileInWorkingDir(t *testing.T) {
	chdir(t)
	require.NoError(t, os.WriteFile("mechros.json", []byte(`{"bus":{"prefix":"rover"}}`), 0644))

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "rover", cfg.Bus.Prefix)
}

func TestLoad_EnvOverrides(t *testing.T) {
	chdir(t)
	t.Setenv("MECHROS_LOG_LEVEL", "warn")
	t.Setenv("MECHROS_NAVIGATION_SAFETY_DISTANCE", "0.75")
	t.Setenv("MECHROS_ACTUATORS_MOTOR_COUNT", "2")
	t.Setenv("MECHROS_RECORDER_FLUSH_INTERVAL", "250ms")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, 0.75, cfg.Navigation.SafetyDistance)
	assert.Equal(t, 2, cfg.Actuators.MotorCount)
	assert.Equal(t, 250*time.Millisecond, cfg.Recorder.FlushInterval)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/mechros.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error reading config file")
}

func TestLoad_InvalidValues(t *testing.T) {
	chdir(t)
	t.Setenv("MECHROS_NAVIGATION_MAX_LINEAR_SPEED", "0")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_linear_speed")
}

func TestValidate_HardwareNeedsSerialPort(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	cfg.Simulate = false
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "serial.port")

	cfg.Actuators.Serial.Port = "/dev/ttyACM0"
	assert.NoError(t, cfg.Validate())
}

func TestValidate_LoopPeriods(t *testing.T) {
	cfg := Default()
	cfg.Loops.Perception = 0
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "perception")
}

func TestConfigPath(t *testing.T) {
	t.Setenv("MECHROS_CONFIG", "/etc/mechros/custom.yaml")
	assert.Equal(t, "/etc/mechros/custom.yaml", ConfigPath())
}
