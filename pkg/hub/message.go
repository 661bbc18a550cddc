// Package hub provides a thread-safe websocket broadcast hub
// using the idiomatic Go channel-based fan-out pattern.
//
// Every frame carries the bus topic it was published on. Clients
// subscribe to one topic, or to all of them with Wildcard.
package hub

// Wildcard subscribes a client to every topic.
const Wildcard = "*"

// Message represents a message to be broadcast to clients
type Message struct {
	Topic string
	Data  []byte
}

// NewMessage creates a message for topic from pre-encoded JSON bytes
func NewMessage(topic string, data []byte) Message {
	return Message{Topic: topic, Data: data}
}
