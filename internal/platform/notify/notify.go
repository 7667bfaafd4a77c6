// Package notify publishes email jobs to the notification broker.
//
// The control plane does not render or send mail itself; it publishes a JSON
// job to a topic exchange and the mail worker picks it up. Publishing is
// guarded by a breaker with a high failure tolerance because a lost reminder
// never affects a resource.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/imamik/leasehold/internal/resilience"
)

// Routing keys of the email jobs.
const (
	RoutingIdleReminder    = "email.idle_reminder"
	RoutingBalanceDepleted = "email.balance_depleted"
)

// Recipient addresses an email job.
type Recipient struct {
	Email string
	Name  string
}

// EmailMessage is the job payload consumed by the mail worker.
type EmailMessage struct {
	Type          string `json:"type"`
	Recipient     string `json:"recipient"`
	RecipientName string `json:"recipientName,omitempty"`
	Content       string `json:"content"`
	ActionURL     string `json:"actionUrl,omitempty"`
}

// channel is the subset of *amqp.Channel used by the publisher.
type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Publisher publishes email jobs to one exchange.
type Publisher struct {
	conn     *amqp.Connection
	ch       channel
	exchange string
	breaker  *resilience.Breaker
}

// Dial connects to the broker and declares the durable topic exchange.
func Dial(url, exchange string) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to declare exchange %s: %w", exchange, err)
	}

	p := newPublisher(ch, exchange, nil)
	p.conn = conn
	return p, nil
}

func newPublisher(ch channel, exchange string, breaker *resilience.Breaker) *Publisher {
	if breaker == nil {
		breaker = resilience.New(resilience.NotificationPolicy())
	}
	return &Publisher{ch: ch, exchange: exchange, breaker: breaker}
}

// Close closes the channel and the connection.
func (p *Publisher) Close() error {
	err := p.ch.Close()
	if p.conn != nil {
		if cerr := p.conn.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// IdleReminder tells an owner that a resource has been stopped for a long time.
func (p *Publisher) IdleReminder(ctx context.Context, to Recipient, resourceName string, idleDays int) error {
	return p.publish(ctx, RoutingIdleReminder, EmailMessage{
		Type:          "idle_reminder",
		Recipient:     to.Email,
		RecipientName: to.Name,
		Content: fmt.Sprintf("Your resource %q has been stopped for %d days. Delete it if you no longer need it.",
			resourceName, idleDays),
	})
}

// BalanceDepleted tells an owner that their balance ran out and their resources were stopped.
func (p *Publisher) BalanceDepleted(ctx context.Context, to Recipient, stopped []string) error {
	return p.publish(ctx, RoutingBalanceDepleted, EmailMessage{
		Type:          "balance_depleted",
		Recipient:     to.Email,
		RecipientName: to.Name,
		Content: fmt.Sprintf("Your balance reached zero. The following resources were stopped: %s.",
			strings.Join(stopped, ", ")),
	})
}

func (p *Publisher) publish(ctx context.Context, routingKey string, msg EmailMessage) error {
	if msg.Recipient == "" {
		return fmt.Errorf("email job %s has no recipient", msg.Type)
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal email message: %w", err)
	}

	err = p.breaker.Do(ctx, func(ctx context.Context) error {
		return p.ch.PublishWithContext(ctx, p.exchange, routingKey, false, false, amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		})
	})
	if err != nil {
		return fmt.Errorf("failed to publish email message: %w", err)
	}
	return nil
}
