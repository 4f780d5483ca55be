package domain

import (
	"context"
)

// EventBus moves assessment pipeline messages between components.
// Implementations are in-process channels for single-node deployments
// and NATS for clusters. Every method takes the tenant so isolation is
// enforced at the transport, not by caller discipline.
type EventBus interface {
	// Publish sends a message on the tenant's topic.
	Publish(ctx context.Context, tenantID string, topic string, payload []byte) error

	// Subscribe attaches a handler; the returned Subscription detaches it.
	Subscribe(ctx context.Context, tenantID string, topic string, handler MessageHandler) (Subscription, error)

	// Request sends a message and waits for a single reply. The reply
	// topic reaches the responder via Metadata["replyTo"].
	Request(ctx context.Context, tenantID string, topic string, payload []byte) ([]byte, error)

	Ping(ctx context.Context) error
	Close() error
}

// MessageHandler processes one delivered message. A returned error is
// logged by the bus; it does not stop delivery.
type MessageHandler func(ctx context.Context, msg *Message) error

// Message is the wire envelope shared by all bus implementations.
type Message struct {
	ID        string            `json:"id"`
	TenantID  string            `json:"tenantId"`
	Topic     string            `json:"topic"`
	Payload   []byte            `json:"payload"`
	Metadata  map[string]string `json:"metadata"`
	Timestamp int64             `json:"timestamp"`
}

// Subscription is a handle on an active topic subscription.
type Subscription interface {
	Unsubscribe() error
	Topic() string
}

// EventBusConfig selects and tunes the bus implementation.
type EventBusConfig struct {
	// Type is "channel" or "nats".
	Type string `json:"type" yaml:"type"`

	ChannelBufferSize int `json:"channelBufferSize" yaml:"channel_buffer_size"`

	NATSUrl           string `json:"natsUrl" yaml:"nats_url"`
	NATSToken         string `json:"natsToken" yaml:"nats_token"`
	NATSMaxReconnects int    `json:"natsMaxReconnects" yaml:"nats_max_reconnects"`
	NATSReconnectWait int    `json:"natsReconnectWait" yaml:"nats_reconnect_wait"` // seconds
}

// Standard topic names for the assessment pipeline. The bus prefixes
// topics with the product name and tenant, so these stay bare.
const (
	TopicEventIngested = "event.ingested"
	TopicAssessment    = "assessment.completed"
	TopicDecision      = "decision.required"
	TopicAlert         = "alert.raised"
	TopicModelSwapped  = "model.swapped"
)
