package protocol

import (
	"encoding/json"
	"testing"
)

func TestParseMessage_Goal(t *testing.T) {
	msg, err := NewGoalMessage(10, -1.5, 0)
	if err != nil {
		t.Fatalf("NewGoalMessage: %v", err)
	}
	data, err := msg.Bytes()
	if err != nil {
		t.Fatalf("Bytes: %v", err)
	}

	parsed, err := ParseMessage(data)
	if err != nil {
		t.Fatalf("ParseMessage: %v", err)
	}
	if parsed.Type != TypeGoal {
		t.Errorf("Type = %s, want %s", parsed.Type, TypeGoal)
	}
	if parsed.Timestamp == 0 {
		t.Error("Timestamp should be set")
	}

	goal, err := parsed.GetGoalData()
	if err != nil {
		t.Fatalf("GetGoalData: %v", err)
	}
	if goal.X != 10 || goal.Y != -1.5 || goal.Z != 0 {
		t.Errorf("goal = %+v", goal)
	}
}

func TestParseMessage_Invalid(t *testing.T) {
	if _, err := ParseMessage([]byte("not json")); err == nil {
		t.Error("expected error for invalid JSON")
	}
	if _, err := ParseMessage([]byte(`{"data":{}}`)); err == nil {
		t.Error("expected error for missing type")
	}
}

func TestGetCommandData(t *testing.T) {
	msg, _ := NewCommandMessage("estop")
	cmd, err := msg.GetCommandData()
	if err != nil {
		t.Fatalf("GetCommandData: %v", err)
	}
	if cmd.Command != "estop" {
		t.Errorf("Command = %q, want estop", cmd.Command)
	}

	empty, _ := NewCommandMessage("")
	if _, err := empty.GetCommandData(); err == nil {
		t.Error("expected error for empty command")
	}

	goal, _ := NewGoalMessage(1, 2, 3)
	if _, err := goal.GetCommandData(); err == nil {
		t.Error("expected type mismatch error")
	}
}

func TestNewRawMessage(t *testing.T) {
	msg := NewRawMessage(TypeState, []byte(`{"battery_level":90}`))
	data, _ := msg.Bytes()

	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	inner, ok := decoded["data"].(map[string]any)
	if !ok || inner["battery_level"] != float64(90) {
		t.Errorf("data = %v", decoded["data"])
	}
}

func TestPong(t *testing.T) {
	msg, _ := NewPongMessage("abc", 1234)
	var pong PongData
	if err := msg.ParseData(&pong); err != nil {
		t.Fatalf("ParseData: %v", err)
	}
	if pong.ID != "abc" || pong.PingTS != 1234 || pong.ServerTS == 0 {
		t.Errorf("pong = %+v", pong)
	}
}
