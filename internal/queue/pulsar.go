// internal/queue/pulsar.go
package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/apache/pulsar-client-go/pulsar"
	"github.com/rs/zerolog/log"
)

// topicNamespace is the Pulsar namespace all worker topics live in.
const topicNamespace = "persistent://public/default/"

// PulsarClient implements Client over an Apache Pulsar connection.
type PulsarClient struct {
	client pulsar.Client
}

// NewPulsarClient connects to the broker at serviceURL
// (pulsar://host:port).
func NewPulsarClient(serviceURL string) (*PulsarClient, error) {
	client, err := pulsar.NewClient(pulsar.ClientOptions{
		URL:               serviceURL,
		ConnectionTimeout: 10 * time.Second,
		OperationTimeout:  30 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to pulsar at %s: %w", serviceURL, err)
	}
	log.Info().Str("url", serviceURL).Msg("Pulsar client connected")
	return &PulsarClient{client: client}, nil
}

// Consumer subscribes to topic with a shared subscription so many
// workers can drain the same domain stream.
func (c *PulsarClient) Consumer(topic, subscription string) (Consumer, error) {
	consumer, err := c.client.Subscribe(pulsar.ConsumerOptions{
		Topic:            topicNamespace + topic,
		SubscriptionName: subscription,
		Type:             pulsar.Shared,
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe to %s: %w", topic, err)
	}
	return &pulsarConsumer{consumer: consumer}, nil
}

// Producer creates a producer on topic.
func (c *PulsarClient) Producer(topic string) (Producer, error) {
	producer, err := c.client.CreateProducer(pulsar.ProducerOptions{
		Topic: topicNamespace + topic,
	})
	if err != nil {
		return nil, fmt.Errorf("create producer for %s: %w", topic, err)
	}
	return &pulsarProducer{producer: producer}, nil
}

// Close closes the underlying connection. Consumers and producers
// created from it become unusable.
func (c *PulsarClient) Close() {
	c.client.Close()
}

type pulsarMessage struct {
	msg pulsar.Message
}

func (m *pulsarMessage) Payload() []byte { return m.msg.Payload() }

type pulsarConsumer struct {
	consumer pulsar.Consumer
}

func (c *pulsarConsumer) Receive(ctx context.Context) (Message, error) {
	msg, err := c.consumer.Receive(ctx)
	if err != nil {
		return nil, err
	}
	return &pulsarMessage{msg: msg}, nil
}

func (c *pulsarConsumer) Ack(msg Message) {
	pm, ok := msg.(*pulsarMessage)
	if !ok {
		return
	}
	if err := c.consumer.Ack(pm.msg); err != nil {
		log.Warn().Err(err).Msg("Failed to ack message")
	}
}

func (c *pulsarConsumer) Close() {
	c.consumer.Close()
}

type pulsarProducer struct {
	producer pulsar.Producer
}

func (p *pulsarProducer) Send(ctx context.Context, payload []byte) error {
	_, err := p.producer.Send(ctx, &pulsar.ProducerMessage{Payload: payload})
	return err
}

func (p *pulsarProducer) Close() {
	p.producer.Close()
}
