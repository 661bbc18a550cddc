package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-mechros/pkg/protocol"
)

func TestBuildRequest_Goal(t *testing.T) {
	msg, err := buildRequest([]string{"goal", "2", "-1.5"})
	require.NoError(t, err)
	assert.Equal(t, protocol.TypeGoal, msg.Type)

	goal, err := msg.GetGoalData()
	require.NoError(t, err)
	assert.Equal(t, protocol.GoalData{X: 2, Y: -1.5, Z: 0}, *goal)

	msg, err = buildRequest([]string{"goal", "1", "2", "3"})
	require.NoError(t, err)
	goal, err = msg.GetGoalData()
	require.NoError(t, err)
	assert.Equal(t, 3.0, goal.Z)
}

func TestBuildRequest_Command(t *testing.T) {
	msg, err := buildRequest([]string{"cmd", "estop"})
	require.NoError(t, err)

	cmd, err := msg.GetCommandData()
	require.NoError(t, err)
	assert.Equal(t, "estop", cmd.Command)
}

func TestBuildRequest_Ping(t *testing.T) {
	msg, err := buildRequest([]string{"ping"})
	require.NoError(t, err)

	var ping protocol.PingData
	require.NoError(t, msg.ParseData(&ping))
	assert.NotEmpty(t, ping.ID)
}

func TestBuildRequest_Invalid(t *testing.T) {
	for _, args := range [][]string{
		nil,
		{"goal"},
		{"goal", "1"},
		{"goal", "1", "x"},
		{"goal", "1", "2", "3", "4"},
		{"cmd"},
		{"cmd", "  "},
		{"dance"},
	} {
		_, err := buildRequest(args)
		assert.Error(t, err, "%v", args)
	}
}

func TestReport(t *testing.T) {
	ack, _ := protocol.NewAckMessage(protocol.TypeGoal)
	done, err := report(ack, time.Millisecond)
	assert.True(t, done)
	assert.NoError(t, err)

	rejected, _ := protocol.NewErrorMessage(protocol.TypeGoal, "goal must be finite")
	done, err = report(rejected, time.Millisecond)
	assert.True(t, done)
	assert.ErrorContains(t, err, "goal must be finite")

	state, _ := protocol.NewMessage(protocol.TypeState, map[string]string{"status": "active"})
	done, err = report(state, time.Millisecond)
	assert.False(t, done)
	assert.NoError(t, err)
}
