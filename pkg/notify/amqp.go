// Package notify delivers ledger events to the outside world.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"github.com/neonsphere/weave/pkg/ledger"
)

type AMQPConfig struct {
	URL        string
	Exchange   string
	RoutingKey string // events go out as <RoutingKey>.<EventType>
	MaxRetries int
}

// channel is the part of *amqp.Channel the publisher needs.
type channel interface {
	PublishWithContext(
		ctx context.Context,
		exchange, key string,
		mandatory, immediate bool,
		msg amqp.Publishing,
	) error
	Close() error
}

// AMQPPublisher is a ledger.EventSink publishing JSON events to a
// RabbitMQ topic exchange.
type AMQPPublisher struct {
	conn     *amqp.Connection
	ch       channel
	exchange string
	key      string
	log      *logrus.Logger
}

// DialAMQP connects to the broker, retrying with exponential backoff
// until MaxRetries attempts failed or ctx is done, and declares the
// exchange.
func DialAMQP(ctx context.Context, config AMQPConfig, log *logrus.Logger) (*AMQPPublisher, error) {
	if config.URL == "" {
		return nil, errors.New("notify: amqp url is required")
	}
	if config.Exchange == "" {
		config.Exchange = "weave.events"
	}
	if config.RoutingKey == "" {
		config.RoutingKey = "weave"
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = 5
	}
	if log == nil {
		log = logrus.New()
	}

	conn, err := dialWithRetry(ctx, config.URL, config.MaxRetries, log)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open amqp channel: %w", err)
	}
	if err := ch.ExchangeDeclare(
		config.Exchange, // name
		"topic",         // kind
		true,            // durable
		false,           // auto-deleted
		false,           // internal
		false,           // no-wait
		nil,             // args
	); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", config.Exchange, err)
	}

	p := newAMQPPublisher(ch, config.Exchange, config.RoutingKey, log)
	p.conn = conn
	return p, nil
}

var dial = amqp.Dial

func dialWithRetry(ctx context.Context, url string, attempts int, log *logrus.Logger) (*amqp.Connection, error) {
	waitTime := time.Second
	for i := 0; ; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		conn, err := dial(url)
		if err == nil {
			return conn, nil
		}
		if i+1 >= attempts {
			return nil, err
		}
		log.WithError(err).WithField("attempt", i+1).Warnf("amqp dial failed, retrying in %v", waitTime)
		timer := time.NewTimer(waitTime)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, errors.Join(ctx.Err(), err)
		case <-timer.C:
		}
		waitTime = time.Duration(math.Pow(2, float64(i+1))) * time.Second
	}
}

func newAMQPPublisher(ch channel, exchange, key string, log *logrus.Logger) *AMQPPublisher {
	return &AMQPPublisher{ch: ch, exchange: exchange, key: key, log: log}
}

// Publish implements ledger.EventSink.
func (p *AMQPPublisher) Publish(ctx context.Context, ev ledger.Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return p.ch.PublishWithContext(
		ctx,
		p.exchange,
		p.key+"."+ev.Type.String(),
		false, false,
		amqp.Publishing{
			ContentType:  "application/json",
			Type:         ev.Type.String(),
			MessageId:    fmt.Sprintf("%d", ev.Sequence),
			Body:         body,
			Timestamp:    ev.At,
			DeliveryMode: amqp.Persistent,
		},
	)
}

// Close releases the channel and the connection.
func (p *AMQPPublisher) Close() error {
	var err error
	if p.ch != nil {
		err = errors.Join(err, p.ch.Close())
	}
	if p.conn != nil {
		err = errors.Join(err, p.conn.Close())
	}
	return err
}
