package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"go.uber.org/zap"
)

// Bus is an in-process pub/sub for item lifecycle events. Buffered output
// channels decouple item writes from pipeline processing.
type Bus struct {
	ch *gochannel.GoChannel
}

// NewBus creates an event bus.
func NewBus(logger *zap.Logger) *Bus {
	return &Bus{
		ch: gochannel.NewGoChannel(
			gochannel.Config{OutputChannelBuffer: 256},
			NewZapLoggerAdapter(logger),
		),
	}
}

// PublishItemEvent marshals and publishes an item event.
func (b *Bus) PublishItemEvent(topic string, ev ItemEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	if err := b.ch.Publish(topic, msg); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// Subscribe returns the message stream for a topic.
func (b *Bus) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	ch, err := b.ch.Subscribe(ctx, topic)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", topic, err)
	}
	return ch, nil
}

// Close shuts the bus down, closing all subscriber channels.
func (b *Bus) Close() error {
	if err := b.ch.Close(); err != nil {
		return fmt.Errorf("close bus: %w", err)
	}
	return nil
}

// DecodeItemEvent unmarshals an item event payload.
func DecodeItemEvent(msg *message.Message) (ItemEvent, error) {
	var ev ItemEvent
	if err := json.Unmarshal(msg.Payload, &ev); err != nil {
		return ItemEvent{}, fmt.Errorf("decode event %s: %w", msg.UUID, err)
	}
	return ev, nil
}
