package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// CallbackPublisher publishes callback scheduling requests.
type CallbackPublisher struct {
	writer *kafka.Writer
}

// NewCallbackPublisher constructs a publisher for the given topic.
func NewCallbackPublisher(k *Kafka, topic string) *CallbackPublisher {
	return &CallbackPublisher{writer: k.NewWriter(topic)}
}

// PublishCallback emits a callback request keyed by contact.
func (p *CallbackPublisher) PublishCallback(ctx context.Context, request CallbackRequest) error {
	value, err := json.Marshal(request)
	if err != nil {
		return fmt.Errorf("callback publisher: marshal request: %w", err)
	}
	record := kafka.Message{
		Key:   request.ContactID[:],
		Value: value,
		Time:  time.Now().UTC(),
	}
	if err := p.writer.WriteMessages(ctx, record); err != nil {
		return fmt.Errorf("callback publisher: write request: %w", err)
	}
	return nil
}

// Close closes the publisher.
func (p *CallbackPublisher) Close() error {
	return p.writer.Close()
}
