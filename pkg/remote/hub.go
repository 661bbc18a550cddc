// Package remote provides the WebSocket endpoint for remote operators.
//
// Operators send goals, commands and pings as protocol messages; the hub
// validates them and publishes them on the bus. State, telemetry and
// actuator status are forwarded back to every connected operator.
package remote

import (
	"bytes"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/teslashibe/go-mechros/pkg/actuators"
	"github.com/teslashibe/go-mechros/pkg/bus"
	"github.com/teslashibe/go-mechros/pkg/navigation"
	"github.com/teslashibe/go-mechros/pkg/protocol"
)

// writeWait bounds a single send so a stalled operator cannot hold up
// the publisher.
const writeWait = 2 * time.Second

// Operator represents a connected operator
type Operator struct {
	ID        string
	Conn      *websocket.Conn
	Connected time.Time
	LastSeen  time.Time

	mu sync.Mutex
}

// Send sends a message to the operator
func (o *Operator) Send(msg *protocol.Message) error {
	data, err := msg.Bytes()
	if err != nil {
		return err
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	o.Conn.SetWriteDeadline(time.Now().Add(writeWait))
	return o.Conn.WriteMessage(websocket.TextMessage, data)
}

// Hub manages WebSocket connections from operators
type Hub struct {
	bus    *bus.Bus
	logger *slog.Logger

	mu        sync.RWMutex
	operators map[string]*Operator
	detach    []func()

	// Stats
	messagesReceived atomic.Uint64
	messagesSent     atomic.Uint64
	goalsAccepted    atomic.Uint64
	commandsAccepted atomic.Uint64
	rejected         atomic.Uint64
}

// NewHub creates an operator hub publishing onto b
func NewHub(b *bus.Bus, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		bus:       b,
		logger:    logger.With("component", "remote"),
		operators: make(map[string]*Operator),
	}
}

// forwarded maps bus topics to the message type operators receive.
var forwarded = map[string]protocol.MessageType{
	bus.TopicSystemState: protocol.TypeState,
	bus.TopicTelemetry:   protocol.TypeTelemetry,
	bus.TopicCommands:    protocol.TypeStatus,
}

// Attach starts forwarding vehicle topics to operators.
func (h *Hub) Attach() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.detach) > 0 {
		return
	}
	for topic, msgType := range forwarded {
		msgType := msgType
		h.detach = append(h.detach, h.bus.Subscribe(topic, func(_ string, data []byte) {
			data = bytes.TrimPrefix(data, []byte(actuators.StatusPrefix))
			h.Broadcast(protocol.NewRawMessage(msgType, data))
		}))
	}
}

// Detach stops forwarding vehicle topics.
func (h *Hub) Detach() {
	h.mu.Lock()
	detach := h.detach
	h.detach = nil
	h.mu.Unlock()

	for _, fn := range detach {
		fn()
	}
}

// RegisterRoutes registers WebSocket routes on a Fiber app
func (h *Hub) RegisterRoutes(app *fiber.App) {
	app.Use("/ws/operator", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/operator", websocket.New(h.handleOperator))
	app.Get("/ws/operator/:id", websocket.New(h.handleOperator))
}

// handleOperator handles an operator WebSocket connection
func (h *Hub) handleOperator(c *websocket.Conn) {
	id := c.Params("id")
	if id == "" {
		id = uuid.NewString()
	}

	now := time.Now()
	op := &Operator{
		ID:        id,
		Conn:      c,
		Connected: now,
		LastSeen:  now,
	}

	h.mu.Lock()
	h.operators[id] = op
	count := len(h.operators)
	h.mu.Unlock()
	h.logger.Info("operator connected", "operator", id, "total", count)

	defer func() {
		h.mu.Lock()
		if h.operators[id] == op {
			delete(h.operators, id)
		}
		count := len(h.operators)
		h.mu.Unlock()
		h.logger.Info("operator disconnected", "operator", id, "total", count)
	}()

	for {
		_, data, err := c.ReadMessage()
		if err != nil {
			h.logger.Debug("operator read error", "operator", id, "error", err)
			return
		}

		op.mu.Lock()
		op.LastSeen = time.Now()
		op.mu.Unlock()

		h.messagesReceived.Add(1)
		if reply := h.handleMessage(id, data); reply != nil {
			h.messagesSent.Add(1)
			if err := op.Send(reply); err != nil {
				h.logger.Warn("reply failed", "operator", id, "error", err)
				return
			}
		}
	}
}

// handleMessage processes one operator message and returns the reply
func (h *Hub) handleMessage(operatorID string, data []byte) *protocol.Message {
	msg, err := protocol.ParseMessage(data)
	if err != nil {
		h.logger.Warn("parse error", "operator", operatorID, "error", err)
		return h.reject("", err.Error())
	}

	switch msg.Type {
	case protocol.TypeGoal:
		goal, err := navigation.ParseGoal(msg.Data)
		if err != nil {
			return h.reject(msg.Type, err.Error())
		}
		if err := h.bus.Publish(bus.TopicNavigationGoals, navigation.EncodeGoal(goal)); err != nil {
			return h.reject(msg.Type, err.Error())
		}
		h.goalsAccepted.Add(1)
		h.logger.Info("goal received", "operator", operatorID, "x", goal.X, "y", goal.Y, "z", goal.Z)
		return h.ack(msg.Type)

	case protocol.TypeCommand:
		cmd, err := msg.GetCommandData()
		if err != nil {
			return h.reject(msg.Type, err.Error())
		}
		if err := h.bus.Publish(bus.TopicRemoteCommands, []byte(cmd.Command)); err != nil {
			return h.reject(msg.Type, err.Error())
		}
		h.commandsAccepted.Add(1)
		h.logger.Info("command received", "operator", operatorID, "command", cmd.Command)
		return h.ack(msg.Type)

	case protocol.TypePing:
		var ping protocol.PingData
		_ = msg.ParseData(&ping)
		pong, _ := protocol.NewPongMessage(ping.ID, msg.Timestamp)
		return pong

	default:
		return h.reject(msg.Type, "unsupported message type")
	}
}

func (h *Hub) ack(t protocol.MessageType) *protocol.Message {
	msg, _ := protocol.NewAckMessage(t)
	return msg
}

func (h *Hub) reject(t protocol.MessageType, reason string) *protocol.Message {
	h.rejected.Add(1)
	msg, _ := protocol.NewErrorMessage(t, reason)
	return msg
}

// Send sends a message to one operator
func (h *Hub) Send(operatorID string, msg *protocol.Message) error {
	h.mu.RLock()
	op, ok := h.operators[operatorID]
	h.mu.RUnlock()

	if !ok {
		return fiber.NewError(fiber.StatusNotFound, "operator not connected")
	}

	h.messagesSent.Add(1)
	return op.Send(msg)
}

// Broadcast sends a message to all connected operators
func (h *Hub) Broadcast(msg *protocol.Message) {
	h.mu.RLock()
	ops := make([]*Operator, 0, len(h.operators))
	for _, op := range h.operators {
		ops = append(ops, op)
	}
	h.mu.RUnlock()

	for _, op := range ops {
		h.messagesSent.Add(1)
		if err := op.Send(msg); err != nil {
			h.logger.Warn("broadcast failed", "operator", op.ID, "error", err)
		}
	}
}

// OperatorCount returns the number of connected operators
func (h *Hub) OperatorCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.operators)
}

// Stats contains hub statistics
type Stats struct {
	OperatorCount    int    `json:"operator_count"`
	MessagesReceived uint64 `json:"messages_received"`
	MessagesSent     uint64 `json:"messages_sent"`
	GoalsAccepted    uint64 `json:"goals_accepted"`
	CommandsAccepted uint64 `json:"commands_accepted"`
	Rejected         uint64 `json:"rejected"`
}

// Stats returns hub statistics
func (h *Hub) Stats() Stats {
	return Stats{
		OperatorCount:    h.OperatorCount(),
		MessagesReceived: h.messagesReceived.Load(),
		MessagesSent:     h.messagesSent.Load(),
		GoalsAccepted:    h.goalsAccepted.Load(),
		CommandsAccepted: h.commandsAccepted.Load(),
		Rejected:         h.rejected.Load(),
	}
}

// OperatorInfo contains info about a connected operator
type OperatorInfo struct {
	ID        string    `json:"id"`
	Connected time.Time `json:"connected"`
	LastSeen  time.Time `json:"last_seen"`
}

// OperatorInfos returns info about all connected operators
func (h *Hub) OperatorInfos() []OperatorInfo {
	h.mu.RLock()
	defer h.mu.RUnlock()

	infos := make([]OperatorInfo, 0, len(h.operators))
	for _, op := range h.operators {
		op.mu.Lock()
		infos = append(infos, OperatorInfo{
			ID:        op.ID,
			Connected: op.Connected,
			LastSeen:  op.LastSeen,
		})
		op.mu.Unlock()
	}
	return infos
}

// RegisterAPIRoutes registers API routes for operator management
func (h *Hub) RegisterAPIRoutes(api fiber.Router) {
	operators := api.Group("/operators")

	operators.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"operators": h.OperatorInfos(),
			"count":     h.OperatorCount(),
		})
	})

	operators.Get("/stats", func(c *fiber.Ctx) error {
		return c.JSON(h.Stats())
	})
}
