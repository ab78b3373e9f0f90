// internal/queue/queue.go
//
// Package queue is the message-transport boundary of the worker. The
// dispatcher works against these interfaces; the Pulsar implementation
// lives in pulsar.go.
package queue

import "context"

// Message is one inbound payload. The scrape pipeline treats the
// payload as a UTF-8 domain name.
type Message interface {
	Payload() []byte
}

// Consumer receives domain messages from the inbound topic.
type Consumer interface {
	// Receive blocks until a message arrives or ctx is done.
	Receive(ctx context.Context) (Message, error)
	// Ack acknowledges a message. The dispatcher acks immediately
	// after task launch, not after completion.
	Ack(msg Message)
	Close()
}

// Producer publishes result records to the outbound topic.
type Producer interface {
	Send(ctx context.Context, payload []byte) error
	Close()
}

// Client owns the wire connection behind a consumer/producer pair.
type Client interface {
	Consumer(topic, subscription string) (Consumer, error)
	Producer(topic string) (Producer, error)
	Close()
}
