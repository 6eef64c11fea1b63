// Package event publishes domain events to a RabbitMQ topic exchange for downstream consumers.
// Publishing is best effort. A failed publish is logged and never fails the command which caused it.
package event

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	ActivityCreated   = "activity.created"
	ActivityUpdated   = "activity.updated"
	ActivityDeleted   = "activity.deleted"
	AttendanceUpdated = "attendance.updated"
	CommentCreated    = "comment.created"
)

// Event is the envelope of every published domain event.
type Event struct {
	ID         string    `json:"id"`
	Kind       string    `json:"kind"`
	ActivityID string    `json:"activityId"`
	OccurredAt time.Time `json:"occurredAt"`
	Payload    any       `json:"payload,omitempty"`
}

type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

func NewPublisher(logger *slog.Logger, channel channel, exchange string) *Publisher {
	return &Publisher{
		logger:   logger,
		channel:  channel,
		exchange: exchange,
		now:      time.Now,
	}
}

type Publisher struct {
	logger   *slog.Logger
	channel  channel
	exchange string
	now      func() time.Time
}

// Publish sends an event of the given kind using the kind as routing key.
func (p *Publisher) Publish(ctx context.Context, kind, activityID string, payload any) {
	event := Event{
		ID:         uuid.NewString(),
		Kind:       kind,
		ActivityID: activityID,
		OccurredAt: p.now().UTC(),
		Payload:    payload,
	}

	body, err := json.Marshal(event)
	if err != nil {
		p.logger.ErrorContext(ctx, "Failed to marshal event", "kind", kind, "activityId", activityID, "error", err)
		return
	}

	// the command already succeeded so its cancellation must not drop the event
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	err = p.channel.PublishWithContext(ctx, p.exchange, kind, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    event.ID,
		Timestamp:    event.OccurredAt,
		Type:         kind,
		Body:         body,
	})
	if err != nil {
		p.logger.ErrorContext(ctx, "Failed to publish event", "kind", kind, "activityId", activityID, "error", err)
		return
	}

	p.logger.DebugContext(ctx, "Published event", "kind", kind, "activityId", activityID, "eventId", event.ID)
}

// NopPublisher discards every event. It is used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, string, any) {}

type exchangeDeclarer interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
}

// DeclareExchange declares the durable topic exchange events are published to.
func DeclareExchange(channel exchangeDeclarer, name string) error {
	err := channel.ExchangeDeclare(name, amqp.ExchangeTopic, true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to declare exchange %q: %v", name, err)
	}
	return nil
}
