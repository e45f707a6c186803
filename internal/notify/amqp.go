package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/josh-kwaku/settlement-engine/internal/domain"
	"github.com/josh-kwaku/settlement-engine/internal/logging"
)

const defaultPublishTimeout = 5 * time.Second

type amqpChannel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPNotifier publishes alerts to a durable topic exchange, routed by
// notification topic.
type AMQPNotifier struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	channel  amqpChannel
	exchange string
	declared bool
	// timeout bounds one Notify, reconnect included. Zero means defaultPublishTimeout.
	timeout time.Duration
}

func NewAMQPNotifier(amqpURL, exchange string) (*AMQPNotifier, error) {
	clean, err := sanitizeAMQPURL(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("NewAMQPNotifier: %w", err)
	}

	conn, err := amqp.DialConfig(clean, amqp.Config{Dial: amqp.DefaultDial(10 * time.Second)})
	if err != nil {
		return nil, fmt.Errorf("NewAMQPNotifier: dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("NewAMQPNotifier: open channel: %w", err)
	}
	return &AMQPNotifier{conn: conn, channel: ch, exchange: exchange}, nil
}

func sanitizeAMQPURL(raw string) (string, error) {
	clean := strings.Trim(strings.TrimSpace(raw), "\"'")
	u, err := url.Parse(clean)
	if err != nil {
		return "", err
	}
	if u.Scheme != "amqp" && u.Scheme != "amqps" {
		return "", errors.New("AMQP scheme must be amqp:// or amqps://")
	}
	return clean, nil
}

func (a *AMQPNotifier) Notify(ctx context.Context, n domain.Notification) {
	if err := a.publish(ctx, n); err != nil {
		logging.FromContext(ctx).Error("notification publish failed",
			"topic", n.Topic,
			"exchange", a.exchange,
			"error", err,
		)
	}
}

func (a *AMQPNotifier) publish(ctx context.Context, n domain.Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("publish: marshal: %w", err)
	}

	timeout := a.timeout
	if timeout <= 0 {
		timeout = defaultPublishTimeout
	}
	// Alerts raised at the end of a cancelled request still go out.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.declared {
		if err := a.channel.ExchangeDeclare(a.exchange, "topic", true, false, false, false, nil); err != nil {
			return fmt.Errorf("publish: declare exchange: %w", err)
		}
		a.declared = true
	}

	err = a.channel.PublishWithContext(ctx, a.exchange, n.Topic, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Body:         body,
	})
	if err == nil {
		return nil
	}

	// A closed channel is reopened once.
	if a.conn == nil || a.conn.IsClosed() {
		return fmt.Errorf("publish: %w", err)
	}
	ch, chErr := a.conn.Channel()
	if chErr != nil {
		return fmt.Errorf("publish: reopen channel: %w", chErr)
	}
	a.channel = ch
	if err := ch.ExchangeDeclare(a.exchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("publish: declare exchange: %w", err)
	}
	if err := ch.PublishWithContext(ctx, a.exchange, n.Topic, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Body:         body,
	}); err != nil {
		return fmt.Errorf("publish: retry: %w", err)
	}
	return nil
}

func (a *AMQPNotifier) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.channel != nil {
		a.channel.Close()
	}
	if a.conn != nil {
		a.conn.Close()
	}
}
