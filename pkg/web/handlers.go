package web

import (
	"slices"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-mechros/pkg/bus"
	"github.com/teslashibe/go-mechros/pkg/hub"
	"github.com/teslashibe/go-mechros/pkg/navigation"
)

// CommandRequest is the request body for POST /api/commands
type CommandRequest struct {
	Command string `json:"command"`
}

func unavailable(c *fiber.Ctx, what string) error {
	return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
		"error": what + " not available",
	})
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "ok",
		"clients": s.hub.ClientCount(),
	})
}

func (s *Server) handleState(c *fiber.Ctx) error {
	if s.src.State == nil {
		return unavailable(c, "state")
	}
	return c.JSON(s.src.State.Snapshot())
}

func (s *Server) handleActuators(c *fiber.Ctx) error {
	if s.src.Actuators == nil {
		return unavailable(c, "actuators")
	}
	return c.JSON(s.src.Actuators.Status())
}

func (s *Server) handleLoops(c *fiber.Ctx) error {
	if s.src.Loops == nil {
		return unavailable(c, "loops")
	}
	return c.JSON(s.src.Loops.Stats())
}

func (s *Server) handleBus(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"info":  s.bus.Info(),
		"stats": s.bus.Stats(),
		"hub":   s.hub.Stats(),
	})
}

// handleGoal validates a goal and publishes it for the navigation loop
func (s *Server) handleGoal(c *fiber.Ctx) error {
	goal, err := navigation.ParseGoal(c.Body())
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	if err := s.bus.Publish(bus.TopicNavigationGoals, navigation.EncodeGoal(goal)); err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	s.logger.Info("goal accepted", "x", goal.X, "y", goal.Y, "z", goal.Z)
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"goal": fiber.Map{"x": goal.X, "y": goal.Y, "z": goal.Z},
	})
}

// handleCommand publishes a free-form operator command
func (s *Server) handleCommand(c *fiber.Ctx) error {
	var req CommandRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}
	req.Command = strings.TrimSpace(req.Command)
	if req.Command == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "command is required",
		})
	}

	if err := s.bus.Publish(bus.TopicRemoteCommands, []byte(req.Command)); err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	s.logger.Info("command accepted", "command", req.Command)
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"command": req.Command,
	})
}

// handleTopicWS streams one topic, or every stream topic for "all"
func (s *Server) handleTopicWS(conn *websocket.Conn) {
	topic := conn.Params("topic")
	if topic == "all" {
		topic = hub.Wildcard
	} else if !slices.Contains(StreamTopics, topic) {
		s.logger.Warn("unknown stream topic", "topic", topic)
		conn.Close()
		return
	}

	hub.NewClient(s.hub, conn, topic).Run()
}
