// Package protocol defines the WebSocket message types spoken between
// operators and the vehicle.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// MessageType identifies the type of WebSocket message
type MessageType string

const (
	// Operator → vehicle messages
	TypeGoal    MessageType = "goal"    // Navigation goal
	TypeCommand MessageType = "command" // Remote command string

	// Vehicle → operator messages
	TypeState     MessageType = "state"     // Vehicle state snapshot
	TypeTelemetry MessageType = "telemetry" // Sensor snapshot
	TypeStatus    MessageType = "status"    // Actuator status
	TypeAck       MessageType = "ack"       // Request accepted
	TypeError     MessageType = "error"     // Request rejected

	// Bidirectional
	TypePing MessageType = "ping" // Health check
	TypePong MessageType = "pong" // Health check response
)

// Message is the base wrapper for all WebSocket messages
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp int64           `json:"ts,omitempty"` // Unix milliseconds
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewMessage creates a new message with the current timestamp
func NewMessage(msgType MessageType, data any) (*Message, error) {
	var rawData json.RawMessage
	if data != nil {
		var err error
		rawData, err = json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal message data: %w", err)
		}
	}

	return &Message{
		Type:      msgType,
		Timestamp: time.Now().UnixMilli(),
		Data:      rawData,
	}, nil
}

// NewRawMessage wraps already-encoded JSON data.
func NewRawMessage(msgType MessageType, data []byte) *Message {
	return &Message{
		Type:      msgType,
		Timestamp: time.Now().UnixMilli(),
		Data:      json.RawMessage(data),
	}
}

// ParseData unmarshals the message data into the provided struct
func (m *Message) ParseData(v any) error {
	if m.Data == nil {
		return fmt.Errorf("message %s has no data", m.Type)
	}
	return json.Unmarshal(m.Data, v)
}

// Bytes returns the JSON-encoded message
func (m *Message) Bytes() ([]byte, error) {
	return json.Marshal(m)
}

// ParseMessage parses a JSON message from bytes
func ParseMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}
	if msg.Type == "" {
		return nil, fmt.Errorf("failed to parse message: missing type")
	}
	return &msg, nil
}

// GoalData is a navigation goal in the world frame.
type GoalData struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// CommandData is a remote command such as "estop", "stop" or "recover".
type CommandData struct {
	Command string `json:"command"`
}

// AckData acknowledges a request.
type AckData struct {
	For MessageType `json:"for"`
}

// ErrorData reports why a request was rejected.
type ErrorData struct {
	For     MessageType `json:"for,omitempty"`
	Message string      `json:"message"`
}

// PingData is sent with a ping.
type PingData struct {
	ID string `json:"id,omitempty"`
}

// PongData answers a ping.
type PongData struct {
	ID       string `json:"id,omitempty"`
	PingTS   int64  `json:"ping_ts"`
	ServerTS int64  `json:"server_ts"`
}

// NewGoalMessage creates a goal message.
func NewGoalMessage(x, y, z float64) (*Message, error) {
	return NewMessage(TypeGoal, GoalData{X: x, Y: y, Z: z})
}

// NewCommandMessage creates a remote command message.
func NewCommandMessage(command string) (*Message, error) {
	return NewMessage(TypeCommand, CommandData{Command: command})
}

// NewAckMessage acknowledges a message of type t.
func NewAckMessage(t MessageType) (*Message, error) {
	return NewMessage(TypeAck, AckData{For: t})
}

// NewErrorMessage rejects a message of type t.
func NewErrorMessage(t MessageType, reason string) (*Message, error) {
	return NewMessage(TypeError, ErrorData{For: t, Message: reason})
}

// NewPingMessage creates a ping.
func NewPingMessage(id string) (*Message, error) {
	return NewMessage(TypePing, PingData{ID: id})
}

// NewPongMessage answers a ping sent at pingTS.
func NewPongMessage(id string, pingTS int64) (*Message, error) {
	return NewMessage(TypePong, PongData{ID: id, PingTS: pingTS, ServerTS: time.Now().UnixMilli()})
}

// GetGoalData extracts goal data.
func (m *Message) GetGoalData() (*GoalData, error) {
	if m.Type != TypeGoal {
		return nil, fmt.Errorf("expected %s message, got %s", TypeGoal, m.Type)
	}
	var data GoalData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetCommandData extracts command data.
func (m *Message) GetCommandData() (*CommandData, error) {
	if m.Type != TypeCommand {
		return nil, fmt.Errorf("expected %s message, got %s", TypeCommand, m.Type)
	}
	var data CommandData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	if data.Command == "" {
		return nil, fmt.Errorf("command is empty")
	}
	return &data, nil
}
