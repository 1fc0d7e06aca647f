package producer

import (
	"context"
	"encoding/json"
	"fmt"

	wbfkafka "github.com/wb-go/wbf/kafka"
	"github.com/wb-go/wbf/retry"

	"github.com/buzzzzx/shanbor/internal/config"
	"github.com/buzzzzx/shanbor/internal/model"
)

// sender is the part of the Kafka client the producer needs.
type sender interface {
	SendWithRetry(ctx context.Context, strategy retry.Strategy, key, value []byte) error
	Close() error
}

// Producer publishes render events to Kafka.
type Producer struct {
	client   sender
	strategy retry.Strategy
}

// New creates a new Producer writing to cfg.Topic on cfg.Brokers.
func New(cfg *config.Kafka, s retry.Strategy) *Producer {
	return &Producer{
		client:   wbfkafka.NewProducer(cfg.Brokers, cfg.Topic),
		strategy: s,
	}
}

// Publish serializes the event to JSON and sends it to Kafka.
// The event ID is used as the message key.
func (p *Producer) Publish(ctx context.Context, event model.RenderEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal render event: %w", err)
	}

	key := []byte(event.ID.String())

	if err := p.client.SendWithRetry(ctx, p.strategy, key, data); err != nil {
		return fmt.Errorf("failed to send render event: %w", err)
	}

	return nil
}

// Close closes the underlying Kafka writer.
func (p *Producer) Close() error {
	return p.client.Close()
}
