package messaging

import (
	"context"
)

// Broker defines the interface for message brokers. Lifecycle events leave
// the service through this interface only; swapping Redis for another
// transport must not touch the waitlist service.
type Broker interface {
	Publish(ctx context.Context, channel string, message interface{}) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	Close() error
}

// Message is the envelope published on lifecycle channels.
type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}
