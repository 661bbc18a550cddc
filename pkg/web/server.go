// Package web serves the local operator API: state and loop inspection
// over REST, goal and command injection, and live topic streams over
// websocket.
package web

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-mechros/pkg/actuators"
	"github.com/teslashibe/go-mechros/pkg/bus"
	"github.com/teslashibe/go-mechros/pkg/hub"
	"github.com/teslashibe/go-mechros/pkg/scheduler"
	"github.com/teslashibe/go-mechros/pkg/state"
)

// Config holds web server configuration.
type Config struct {
	// Addr is the listen address.
	// Default: ":8080"
	Addr string `mapstructure:"addr" json:"addr"`
}

// DefaultConfig returns the default web configuration.
func DefaultConfig() Config {
	return Config{Addr: ":8080"}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("addr is required")
	}
	return nil
}

// StateReader exposes the shared vehicle state.
type StateReader interface {
	Snapshot() state.VehicleState
}

// ActuatorReader exposes the aggregate actuator status.
type ActuatorReader interface {
	Status() actuators.Status
}

// LoopReader exposes per-loop statistics.
type LoopReader interface {
	Stats() []scheduler.TaskStats
}

// Sources are the read-only views the API reports on. Nil fields answer
// 503.
type Sources struct {
	State     StateReader
	Actuators ActuatorReader
	Loops     LoopReader
}

// StreamTopics are forwarded from the bus to websocket clients.
var StreamTopics = []string{
	bus.TopicSystemState,
	bus.TopicTelemetry,
	bus.TopicCommands,
}

// Server is the operator API server
type Server struct {
	cfg    Config
	app    *fiber.App
	bus    *bus.Bus
	hub    *hub.Hub
	src    Sources
	logger *slog.Logger

	unsubscribe []func()
}

// NewServer creates the server and its routes. Call Start to serve.
func NewServer(cfg Config, b *bus.Bus, src Sources, logger *slog.Logger) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if b == nil {
		return nil, fmt.Errorf("bus is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		cfg:    cfg,
		bus:    b,
		src:    src,
		logger: logger.With("component", "web"),
	}
	s.hub = hub.New("topics", s.logger)

	app := fiber.New(fiber.Config{
		AppName:               "mechros",
		DisableStartupMessage: true,
	})
	app.Use(recover.New())
	app.Use(cors.New())

	api := app.Group("/api")
	api.Get("/health", s.handleHealth)
	api.Get("/state", s.handleState)
	api.Get("/actuators", s.handleActuators)
	api.Get("/loops", s.handleLoops)
	api.Get("/bus", s.handleBus)
	api.Post("/goals", s.handleGoal)
	api.Post("/commands", s.handleCommand)

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/stream/:topic", websocket.New(s.handleTopicWS))

	s.app = app
	return s, nil
}

// App returns the underlying fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

// Hub returns the topic broadcast hub.
func (s *Server) Hub() *hub.Hub {
	return s.hub
}

// Start forwards stream topics to the hub and serves until Shutdown.
// The hub stops when ctx is done.
func (s *Server) Start(ctx context.Context) error {
	go s.hub.Run(ctx)
	for _, topic := range StreamTopics {
		s.unsubscribe = append(s.unsubscribe, s.bus.Subscribe(topic, s.hub.Publish))
	}

	s.logger.Info("operator API listening", "addr", s.cfg.Addr)
	return s.app.Listen(s.cfg.Addr)
}

// Shutdown gracefully stops the web server
func (s *Server) Shutdown() error {
	for _, unsub := range s.unsubscribe {
		unsub()
	}
	s.unsubscribe = nil
	return s.app.Shutdown()
}
