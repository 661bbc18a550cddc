package bus

import "fmt"

// Topic names. On the wire every topic is prefixed with the configured
// prefix (default: "mechros2").

// TopicSystemState carries the full vehicle state.
// Publishes: JSON VehicleState at the publication rate
const TopicSystemState = "system_state"

// TopicTelemetry carries the fused sensor snapshot.
// Publishes: JSON sensor data at the sensor rate
const TopicTelemetry = "telemetry"

// TopicCommands carries the actuator status after each dispatch.
// Publishes: "STATUS: " followed by JSON
const TopicCommands = "commands"

// TopicNavigationGoals receives goal positions.
// Subscribes: JSON {"x":..,"y":..,"z":..}
const TopicNavigationGoals = "navigation_goals"

// TopicRemoteCommands receives operator commands.
// Subscribes: free-form strings ("estop", "stop", "recover")
const TopicRemoteCommands = "remote_commands"

// Topics builds fully-qualified topic names.
type Topics struct {
	prefix string
}

// NewTopics creates a Topics helper with the given prefix.
func NewTopics(prefix string) *Topics {
	return &Topics{prefix: prefix}
}

// Qualify returns prefix/name.
func (t *Topics) Qualify(name string) string {
	return fmt.Sprintf("%s/%s", t.prefix, name)
}

// SystemState returns the full system state topic path.
func (t *Topics) SystemState() string {
	return t.Qualify(TopicSystemState)
}

// Telemetry returns the full telemetry topic path.
func (t *Topics) Telemetry() string {
	return t.Qualify(TopicTelemetry)
}

// Commands returns the full commands topic path.
func (t *Topics) Commands() string {
	return t.Qualify(TopicCommands)
}

// NavigationGoals returns the full navigation goals topic path.
func (t *Topics) NavigationGoals() string {
	return t.Qualify(TopicNavigationGoals)
}

// RemoteCommands returns the full remote commands topic path.
func (t *Topics) RemoteCommands() string {
	return t.Qualify(TopicRemoteCommands)
}
