// Package amqp publishes ledger mutation events to RabbitMQ.
package amqp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rabbitmq/amqp091-go"

	"ledger/internal/log"
	"ledger/internal/server"
)

// Circuit breaker states.
const (
	StateClosed int32 = iota
	StateOpen
	StateHalfOpen
)

const (
	maxFailures    = 5
	openTimeout    = 30 * time.Second
	publishTimeout = 5 * time.Second
	maxTries       = 4
)

// ErrCircuitOpen is returned while the broker is considered unavailable.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// channel is the subset of *amqp091.Channel used for publishing.
type channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp091.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
	Close() error
}

type dialFunc func(url string) (channel, io.Closer, error)

func dialAMQP(url string) (channel, io.Closer, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, nil, fmt.Errorf("dial AMQP: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("open channel: %w", err)
	}
	return ch, conn, nil
}

// Publisher sends one EntryEvent per mutation to a durable topic
// exchange. The connection is opened on first use and reopened after
// connection errors.
type Publisher struct {
	url          string
	exchangeName string
	logger       *log.Logger
	dial         dialFunc
	newBackOff   func() backoff.BackOff

	mu      sync.Mutex
	conn    io.Closer
	channel channel

	state        int32
	failureCount int64
	failureMu    sync.Mutex
	lastFailure  time.Time
}

func NewPublisher(url, exchangeName string, logger *log.Logger) *Publisher {
	if logger == nil {
		logger = log.Discard()
	}
	return &Publisher{
		url:          url,
		exchangeName: exchangeName,
		logger:       logger.WithComponent(log.ComponentAMQP),
		dial:         dialAMQP,
		newBackOff:   func() backoff.BackOff { return exponentialBackOff() },
	}
}

// exponentialBackOff yields 1s, 2s, 4s, ... capped at 30s.
func exponentialBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.Multiplier = 2
	b.MaxInterval = 30 * time.Second
	b.RandomizationFactor = 0
	b.Reset()
	return b
}

// Notify implements server.Notifier.
func (p *Publisher) Notify(ctx context.Context, ev server.Event) error {
	return p.Publish(ctx, NewEntryEvent(ev))
}

// Publish sends msg as a persistent JSON message, retrying connection
// errors with exponential backoff.
func (p *Publisher) Publish(ctx context.Context, msg *EntryEvent) error {
	if p.isCircuitOpen() {
		return ErrCircuitOpen
	}
	body, err := msg.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	publishing := amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		MessageId:    msg.ID,
		Timestamp:    msg.Timestamp,
		Type:         msg.RoutingKey(),
		Body:         body,
	}
	_, err = backoff.Retry(ctx, func() (struct{}, error) {
		ch, err := p.ensureChannel()
		if err != nil {
			return struct{}{}, err
		}
		pctx, cancel := context.WithTimeout(ctx, publishTimeout)
		defer cancel()
		if err := ch.PublishWithContext(pctx, p.exchangeName, msg.RoutingKey(), false, false, publishing); err != nil {
			if isConnectionError(err) {
				p.resetConnection()
				return struct{}{}, err
			}
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, nil
	}, backoff.WithBackOff(p.newBackOff()), backoff.WithMaxTries(maxTries))

	if err != nil {
		p.recordFailure()
		p.logger.WarnContext(ctx, "Failed to publish entry event",
			log.FieldOperation, log.OpPublish,
			log.FieldCommand, msg.Command,
			log.FieldPeriod, msg.Period,
			log.FieldError, err.Error())
		return fmt.Errorf("publish %s: %w", msg.RoutingKey(), err)
	}
	p.recordSuccess()
	p.logger.DebugContext(ctx, "Published entry event",
		log.FieldCommand, msg.Command,
		log.FieldPeriod, msg.Period,
		log.FieldEID, msg.EID,
		"exchange", p.exchangeName)
	return nil
}

func (p *Publisher) ensureChannel() (channel, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.channel != nil {
		return p.channel, nil
	}
	ch, conn, err := p.dial(p.url)
	if err != nil {
		return nil, err
	}
	if err := ch.ExchangeDeclare(p.exchangeName, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, backoff.Permanent(fmt.Errorf("declare exchange: %w", err))
	}
	p.channel, p.conn = ch, conn
	p.logger.Info("Connected to AMQP broker", "exchange", p.exchangeName)
	return ch, nil
}

func (p *Publisher) resetConnection() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closeLocked()
}

func (p *Publisher) closeLocked() error {
	var errs []error
	if p.channel != nil {
		errs = append(errs, p.channel.Close())
		p.channel = nil
	}
	if p.conn != nil {
		errs = append(errs, p.conn.Close())
		p.conn = nil
	}
	return errors.Join(errs...)
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closeLocked()
}

// isCircuitOpen reports whether publishing is suspended. An open circuit
// moves to half-open once openTimeout has passed, letting one attempt
// through.
func (p *Publisher) isCircuitOpen() bool {
	switch atomic.LoadInt32(&p.state) {
	case StateOpen:
		p.failureMu.Lock()
		elapsed := time.Since(p.lastFailure)
		p.failureMu.Unlock()
		if elapsed > openTimeout {
			atomic.CompareAndSwapInt32(&p.state, StateOpen, StateHalfOpen)
			return false
		}
		return true
	default:
		return false
	}
}

func (p *Publisher) recordSuccess() {
	atomic.StoreInt64(&p.failureCount, 0)
	atomic.StoreInt32(&p.state, StateClosed)
}

func (p *Publisher) recordFailure() {
	p.failureMu.Lock()
	p.lastFailure = time.Now()
	p.failureMu.Unlock()

	n := atomic.AddInt64(&p.failureCount, 1)
	if n >= maxFailures || atomic.LoadInt32(&p.state) == StateHalfOpen {
		if atomic.SwapInt32(&p.state, StateOpen) != StateOpen {
			p.logger.Warn("AMQP circuit breaker opened", "failures", n)
		}
	}
}

var connectionErrorMarkers = []string{
	"connection refused",
	"connection reset",
	"connection closed",
	"channel/connection is not open",
	"broken pipe",
	"eof",
	"use of closed network connection",
	"i/o timeout",
}

// isConnectionError reports whether err is worth a reconnect.
func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, amqp091.ErrClosed) || errors.Is(err, io.EOF) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range connectionErrorMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

var _ server.Notifier = (*Publisher)(nil)
