// Package bus is the in-process publish/subscribe layer that carries
// state, telemetry, actuator status, goals and operator commands.
//
// Subscribers run synchronously on the publisher's goroutine and must not
// block. Inbound topics (goals and remote commands) are buffered in rings
// that the control loops drain.
package bus

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
)

// ErrClosed is returned by Publish after Close.
var ErrClosed = errors.New("bus closed")

// Config holds bus configuration.
type Config struct {
	// NodeName identifies this process in Info.
	NodeName string `mapstructure:"node_name" json:"node_name"`

	// Prefix is the namespace for all topics.
	// Default: "mechros2"
	Prefix string `mapstructure:"prefix" json:"prefix"`

	// GoalBuffer is how many unread goals are kept.
	GoalBuffer int `mapstructure:"goal_buffer" json:"goal_buffer"`

	// RemoteBuffer is how many unread operator commands are kept.
	RemoteBuffer int `mapstructure:"remote_buffer" json:"remote_buffer"`
}

// DefaultConfig returns a Config with the stock topic layout.
func DefaultConfig() Config {
	return Config{
		NodeName:     "mechros2_hub",
		Prefix:       "mechros2",
		GoalBuffer:   10,
		RemoteBuffer: 5,
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.NodeName == "" {
		return fmt.Errorf("node_name is required")
	}
	if c.Prefix == "" {
		return fmt.Errorf("prefix is required")
	}
	if c.GoalBuffer < 1 || c.RemoteBuffer < 1 {
		return fmt.Errorf("buffer sizes must be at least 1")
	}
	return nil
}

// Handler receives the payload of a published message.
type Handler func(topic string, data []byte)

type subscription struct {
	id      uint64
	handler Handler
}

// Bus routes published messages to subscribers.
type Bus struct {
	cfg    Config
	logger *slog.Logger
	topics *Topics

	mu        sync.RWMutex
	subs      map[string][]subscription
	published map[string]struct{}
	rings     map[string]*Ring
	closed    bool
	nextID    uint64

	// Stats
	messagesPublished atomic.Int64
	messagesDelivered atomic.Int64
}

// New creates a bus with rings attached to the inbound topics.
func New(cfg Config, logger *slog.Logger) (*Bus, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	b := &Bus{
		cfg:       cfg,
		logger:    logger,
		topics:    NewTopics(cfg.Prefix),
		subs:      make(map[string][]subscription),
		published: make(map[string]struct{}),
		rings:     make(map[string]*Ring),
	}

	b.attachRing(TopicNavigationGoals, cfg.GoalBuffer)
	b.attachRing(TopicRemoteCommands, cfg.RemoteBuffer)
	return b, nil
}

func (b *Bus) attachRing(topic string, size int) {
	ring := NewRing(size)
	b.rings[topic] = ring
	b.Subscribe(topic, func(_ string, data []byte) {
		ring.Push(data)
	})
}

// Topics returns the topic name helper.
func (b *Bus) Topics() *Topics {
	return b.topics
}

// Ring returns the inbound buffer for topic, or nil if it has none.
func (b *Bus) Ring(topic string) *Ring {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.rings[topic]
}

// Goals returns the navigation goal buffer.
func (b *Bus) Goals() *Ring {
	return b.Ring(TopicNavigationGoals)
}

// RemoteCommands returns the operator command buffer.
func (b *Bus) RemoteCommands() *Ring {
	return b.Ring(TopicRemoteCommands)
}

// Publish delivers data to every subscriber of topic.
func (b *Bus) Publish(topic string, data []byte) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrClosed
	}
	b.published[topic] = struct{}{}
	subs := append([]subscription(nil), b.subs[topic]...)
	b.mu.Unlock()

	b.messagesPublished.Add(1)
	for _, s := range subs {
		s.handler(topic, data)
		b.messagesDelivered.Add(1)
	}
	return nil
}

// PublishJSON encodes v and publishes it.
func (b *Bus) PublishJSON(topic string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", topic, err)
	}
	return b.Publish(topic, data)
}

// Subscribe registers handler for topic. The returned func removes it.
func (b *Bus) Subscribe(topic string, handler Handler) (unsubscribe func()) {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs[topic] = append(b.subs[topic], subscription{id: id, handler: handler})
	b.mu.Unlock()

	b.logger.Debug("subscribed to topic", "topic", b.topics.Qualify(topic))

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			list := b.subs[topic]
			for i, s := range list {
				if s.id == id {
					b.subs[topic] = append(list[:i:i], list[i+1:]...)
					break
				}
			}
			if len(b.subs[topic]) == 0 {
				delete(b.subs, topic)
			}
		})
	}
}

// Close stops further publishing.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	b.logger.Info("bus closed")
	return nil
}

// Info describes this node on the bus.
type Info struct {
	Name          string   `json:"name"`
	Namespace     string   `json:"namespace"`
	Publishers    []string `json:"publishers"`
	Subscriptions []string `json:"subscriptions"`
}

// Info returns the node name and the qualified topics seen so far.
func (b *Bus) Info() Info {
	b.mu.RLock()
	defer b.mu.RUnlock()

	info := Info{
		Name:      b.cfg.NodeName,
		Namespace: "/" + b.cfg.Prefix,
	}
	for topic := range b.published {
		info.Publishers = append(info.Publishers, b.topics.Qualify(topic))
	}
	for topic := range b.subs {
		info.Subscriptions = append(info.Subscriptions, b.topics.Qualify(topic))
	}
	sort.Strings(info.Publishers)
	sort.Strings(info.Subscriptions)
	return info
}

// Stats returns bus statistics.
func (b *Bus) Stats() Stats {
	return Stats{
		MessagesPublished: b.messagesPublished.Load(),
		MessagesDelivered: b.messagesDelivered.Load(),
		GoalsDropped:      b.Goals().Dropped(),
		CommandsDropped:   b.RemoteCommands().Dropped(),
	}
}

// Stats contains bus statistics.
type Stats struct {
	MessagesPublished int64 `json:"messages_published"`
	MessagesDelivered int64 `json:"messages_delivered"`
	GoalsDropped      int64 `json:"goals_dropped"`
	CommandsDropped   int64 `json:"commands_dropped"`
}
