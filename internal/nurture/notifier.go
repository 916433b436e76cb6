// Package nurture notifies the external nurture workflow of outreach
// attempts. The workflow owns long-horizon nurture beyond the retry queue.
package nurture

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"leadbooking_backend/platform/logger"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

const routingKeyAttemptStarted = "lead.attempt_started"

// AttemptStarted is published when the dispatcher starts attempt N for a lead.
type AttemptStarted struct {
	TenantID  string    `json:"tenant_id"`
	LeadID    uuid.UUID `json:"lead_id"`
	Phone     string    `json:"phone"`
	Attempt   int       `json:"attempt"`
	StartedAt time.Time `json:"started_at"`
}

// Workflow receives attempt notifications.
type Workflow interface {
	AttemptStarted(ctx context.Context, evt AttemptStarted) error
}

// Publisher is the part of an AMQP channel the notifier needs.
type Publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// AMQPNotifier publishes attempt events to a RabbitMQ exchange.
type AMQPNotifier struct {
	ch       Publisher
	exchange string
}

func NewAMQPNotifier(ch Publisher, exchange string) *AMQPNotifier {
	return &AMQPNotifier{ch: ch, exchange: exchange}
}

func (n *AMQPNotifier) AttemptStarted(ctx context.Context, evt AttemptStarted) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal attempt event: %w", err)
	}

	err = n.ch.PublishWithContext(ctx,
		n.exchange,
		routingKeyAttemptStarted,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			MessageId:    fmt.Sprintf("%s:%d", evt.LeadID, evt.Attempt),
			Timestamp:    evt.StartedAt,
		},
	)
	if err != nil {
		return fmt.Errorf("publish attempt event: %w", err)
	}
	return nil
}

// Connect dials RabbitMQ and declares the nurture exchange.
func Connect(url, exchange string) (*amqp.Connection, *amqp.Channel, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("open amqp channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	return conn, ch, nil
}

// LogWorkflow records attempts in the log when no broker is configured.
type LogWorkflow struct {
	Log *logger.Logger
}

func (w LogWorkflow) AttemptStarted(_ context.Context, evt AttemptStarted) error {
	if w.Log != nil {
		w.Log.Debug("nurture attempt started", "lead_id", evt.LeadID.String(), "attempt", evt.Attempt)
	}
	return nil
}
