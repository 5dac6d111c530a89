package events

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/shiramwangi/gawa/internal/entity"
)

var logger = zerolog.New(os.Stdout).With().Timestamp().Str("component", "events").Logger()

const (
	OrderCreated        = "order.created"
	ContributionApplied = "contribution.applied"
	OrderConfirmed      = "order.confirmed"
	OrderCancelled      = "order.cancelled"
	PaymentCompleted    = "payment.completed"
	PaymentFailed       = "payment.failed"
	DeliveryCreated     = "delivery.created"
)

// Envelope is the JSON body of every published message.
type Envelope struct {
	Type       string    `json:"type"`
	OrderID    int64     `json:"order_id"`
	OccurredAt time.Time `json:"occurred_at"`
	Data       any       `json:"data"`
}

// Publisher emits domain events. Publishing happens after the store commit, so
// callers log failures instead of returning them.
type Publisher interface {
	Publish(ctx context.Context, eventType string, orderID int64, data any) error
}

// DeliveryDispatcher hands a freshly spawned delivery to whoever assigns couriers.
type DeliveryDispatcher interface {
	Dispatch(ctx context.Context, d *entity.Delivery) error
}

// writer is the part of *kafka.Writer used here.
type writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// KafkaPublisher writes order events to the order topic, keyed per order so
// one order's events stay on one partition.
type KafkaPublisher struct {
	w writer
}

// NewKafkaPublisher returns a publisher over w. A nil w yields a publisher that drops events.
func NewKafkaPublisher(w *kafka.Writer) *KafkaPublisher {
	if w == nil {
		return &KafkaPublisher{}
	}
	return &KafkaPublisher{w: w}
}

func (p *KafkaPublisher) Publish(ctx context.Context, eventType string, orderID int64, data any) error {
	if p.w == nil {
		logger.Debug().Str("type", eventType).Int64("order_id", orderID).Msg("event publishing disabled")
		return nil
	}
	body, err := json.Marshal(Envelope{Type: eventType, OrderID: orderID, OccurredAt: time.Now().UTC(), Data: data})
	if err != nil {
		return err
	}
	return p.w.WriteMessages(ctx, kafka.Message{
		Key:     []byte(fmt.Sprintf("order-%d", orderID)),
		Value:   body,
		Headers: []kafka.Header{{Key: "event-type", Value: []byte(eventType)}},
	})
}

// KafkaDispatcher publishes deliveries on the delivery topic for the courier side to pick up.
type KafkaDispatcher struct {
	w writer
}

func NewKafkaDispatcher(w *kafka.Writer) *KafkaDispatcher {
	if w == nil {
		return &KafkaDispatcher{}
	}
	return &KafkaDispatcher{w: w}
}

func (d *KafkaDispatcher) Dispatch(ctx context.Context, delivery *entity.Delivery) error {
	if d.w == nil {
		logger.Debug().Int64("delivery_id", delivery.ID).Msg("delivery dispatch disabled")
		return nil
	}
	body, err := json.Marshal(Envelope{Type: DeliveryCreated, OrderID: delivery.OrderID, OccurredAt: time.Now().UTC(), Data: delivery})
	if err != nil {
		return err
	}
	return d.w.WriteMessages(ctx, kafka.Message{
		Key:     []byte(fmt.Sprintf("delivery-created-%d", delivery.ID)),
		Value:   body,
		Headers: []kafka.Header{{Key: "event-type", Value: []byte(DeliveryCreated)}},
	})
}
