package domain

import (
	"context"
	"time"
)

// Well-known event bus topics. Tenancy is carried in the message envelope,
// not the topic name.
const (
	TopicTransactionIngested = "kestrel.transaction.ingested"
	TopicScreeningCompleted  = "kestrel.screening.completed"
	TopicAlert               = "kestrel.alert"
)

// Message is the envelope published on the event bus.
type Message struct {
	ID        string    `json:"id"`
	Topic     string    `json:"topic"`
	TenantID  string    `json:"tenantId"`
	Payload   []byte    `json:"payload"`
	Timestamp time.Time `json:"timestamp"`
}

// MessageHandler processes a received message. Returning an error triggers
// implementation-specific retry or logging; it does not stop the
// subscription.
type MessageHandler func(ctx context.Context, msg *Message) error

// Subscription represents an active subscription.
type Subscription interface {
	// Unsubscribe stops delivery. Safe to call more than once.
	Unsubscribe() error
}

// EventBus defines the messaging interface.
type EventBus interface {
	// Publish sends a message to a topic for a tenant.
	Publish(ctx context.Context, tenantID, topic string, payload []byte) error

	// Subscribe registers a handler for a topic across all tenants.
	Subscribe(ctx context.Context, topic string, handler MessageHandler) (Subscription, error)

	// Ping checks connectivity.
	Ping(ctx context.Context) error

	// Close shuts down the bus and all subscriptions.
	Close() error
}

// EventBusConfig holds event bus settings.
type EventBusConfig struct {
	// Type is "channel" or "nats".
	Type string `json:"type"`

	ChannelBufferSize int `json:"channelBufferSize,omitempty"`

	NATSUrl           string `json:"natsUrl,omitempty"`
	NATSMaxReconnects int    `json:"natsMaxReconnects,omitempty"`
	NATSReconnectWait int    `json:"natsReconnectWait,omitempty"` // seconds
}
