package web

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-mechros/pkg/actuators"
	"github.com/teslashibe/go-mechros/pkg/bus"
	"github.com/teslashibe/go-mechros/pkg/scheduler"
	"github.com/teslashibe/go-mechros/pkg/state"
)

type fakeActuators struct{ status actuators.Status }

func (f fakeActuators) Status() actuators.Status { return f.status }

type fakeLoops struct{ stats []scheduler.TaskStats }

func (f fakeLoops) Stats() []scheduler.TaskStats { return f.stats }

func newTestServer(t *testing.T, src Sources) (*Server, *bus.Bus) {
	t.Helper()
	b, err := bus.New(bus.DefaultConfig(), nil)
	require.NoError(t, err)
	s, err := NewServer(DefaultConfig(), b, src, nil)
	require.NoError(t, err)
	return s, b
}

func do(t *testing.T, s *Server, method, path, body string) (int, map[string]any) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.App().Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out map[string]any
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(t, json.Unmarshal(raw, &out))
	}
	return resp.StatusCode, out
}

func TestNewServer_RequiresBus(t *testing.T) {
	_, err := NewServer(DefaultConfig(), nil, Sources{}, nil)
	assert.Error(t, err)

	b, _ := bus.New(bus.DefaultConfig(), nil)
	_, err = NewServer(Config{}, b, Sources{}, nil)
	assert.Error(t, err)
}

func TestServer_State(t *testing.T) {
	store := state.NewStore()
	store.Update(func(v *state.VehicleState) { v.BatteryLevel = 87.5 })
	s, _ := newTestServer(t, Sources{State: store})

	code, body := do(t, s, http.MethodGet, "/api/state", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 87.5, body["battery_level"])
	status, ok := body["system_status"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "initializing", status["state"])
}

func TestServer_Unavailable(t *testing.T) {
	s, _ := newTestServer(t, Sources{})
	for _, path := range []string{"/api/state", "/api/actuators", "/api/loops"} {
		code, _ := do(t, s, http.MethodGet, path, "")
		assert.Equal(t, http.StatusServiceUnavailable, code, path)
	}
}

func TestServer_ActuatorsAndLoops(t *testing.T) {
	s, _ := newTestServer(t, Sources{
		Actuators: fakeActuators{actuators.Status{MotorsOnline: true, EmergencyStopActive: true}},
		Loops:     fakeLoops{[]scheduler.TaskStats{{Name: "navigation", Ticks: 3}}},
	})

	code, body := do(t, s, http.MethodGet, "/api/actuators", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["motors_online"])
	assert.Equal(t, true, body["emergency_stop_active"])
	assert.Equal(t, false, body["servos_online"])

	req := httptest.NewRequest(http.MethodGet, "/api/loops", nil)
	resp, err := s.App().Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	var loops []scheduler.TaskStats
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&loops))
	require.Len(t, loops, 1)
	assert.Equal(t, "navigation", loops[0].Name)
	assert.EqualValues(t, 3, loops[0].Ticks)
}

func TestServer_PostGoal(t *testing.T) {
	s, b := newTestServer(t, Sources{})

	code, body := do(t, s, http.MethodPost, "/api/goals", `{"x":10,"y":-2,"z":0}`)
	require.Equal(t, http.StatusAccepted, code)
	goal := body["goal"].(map[string]any)
	assert.Equal(t, 10.0, goal["x"])

	goals := b.Goals().Drain()
	require.Len(t, goals, 1)
	assert.JSONEq(t, `{"x":10,"y":-2,"z":0}`, string(goals[0]))
}

func TestServer_PostGoalRejectsMalformed(t *testing.T) {
	s, b := newTestServer(t, Sources{})

	for _, payload := range []string{`{"x":1,"y":2}`, `not json`, `{}`} {
		code, body := do(t, s, http.MethodPost, "/api/goals", payload)
		assert.Equal(t, http.StatusBadRequest, code, payload)
		assert.Contains(t, body["error"], "invalid goal")
	}
	assert.Zero(t, b.Goals().Len())
}

func TestServer_PostCommand(t *testing.T) {
	s, b := newTestServer(t, Sources{})

	code, _ := do(t, s, http.MethodPost, "/api/commands", `{"command":" estop "}`)
	require.Equal(t, http.StatusAccepted, code)

	cmds := b.RemoteCommands().Drain()
	require.Len(t, cmds, 1)
	assert.Equal(t, "estop", string(cmds[0]))

	code, _ = do(t, s, http.MethodPost, "/api/commands", `{"command":""}`)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestServer_PostAfterBusClosed(t *testing.T) {
	s, b := newTestServer(t, Sources{})
	require.NoError(t, b.Close())

	code, _ := do(t, s, http.MethodPost, "/api/commands", `{"command":"stop"}`)
	assert.Equal(t, http.StatusServiceUnavailable, code)
}

func TestServer_BusInfo(t *testing.T) {
	s, b := newTestServer(t, Sources{})
	require.NoError(t, b.Publish(bus.TopicSystemState, []byte(`{}`)))

	code, body := do(t, s, http.MethodGet, "/api/bus", "")
	require.Equal(t, http.StatusOK, code)
	info := body["info"].(map[string]any)
	assert.Equal(t, "mechros2_hub", info["name"])
	assert.Contains(t, info["publishers"], "mechros2/system_state")
}

func TestServer_WebSocketRequiresUpgrade(t *testing.T) {
	s, _ := newTestServer(t, Sources{})
	code, _ := do(t, s, http.MethodGet, "/ws/stream/system_state", "")
	assert.Equal(t, http.StatusUpgradeRequired, code)
}

func TestServer_StreamsTopic(t *testing.T) {
	b, err := bus.New(bus.DefaultConfig(), nil)
	require.NoError(t, err)
	s, err := NewServer(Config{Addr: "127.0.0.1:18091"}, b, Sources{}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Start(ctx)
	defer s.Shutdown()
	time.Sleep(100 * time.Millisecond)

	conn, _, err := websocket.DefaultDialer.Dial("ws://127.0.0.1:18091/ws/stream/system_state", nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return s.Hub().ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, b.Publish(bus.TopicTelemetry, []byte(`{"skip":true}`)))
	require.NoError(t, b.Publish(bus.TopicSystemState, []byte(`{"battery_level":50}`)))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"battery_level":50}`, string(data))
}
