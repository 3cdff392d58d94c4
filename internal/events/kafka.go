package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/efreitasn/spotsim/internal/domain"
	"github.com/segmentio/kafka-go"
)

const writeTimeout = 5 * time.Second

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Kafka publishes events as JSON messages to a single topic. Trades are
// keyed by symbol, cancellations by order id.
type Kafka struct {
	writer messageWriter
	logger *slog.Logger
}

// NewKafka creates an asynchronous publisher for brokers and topic.
// Delivery failures surface after WriteMessages returns, so they are
// reported through logger.
func NewKafka(brokers []string, topic string, logger *slog.Logger) *Kafka {
	k := &Kafka{logger: logger}
	k.writer = &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		Async:        true,
		Compression:  kafka.Zstd,
		Completion:   k.delivered,
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			logger.Error("kafka writer error", slog.String("detail", fmt.Sprintf(msg, args...)))
		}),
	}
	return k
}

// delivered is called by the writer once a batch is acknowledged or failed.
func (k *Kafka) delivered(msgs []kafka.Message, err error) {
	if err == nil {
		return
	}
	types := make(map[string]int)
	for _, m := range msgs {
		types[header(m, "event-type")]++
	}
	k.logger.Error("event delivery failed",
		slog.Int("messages", len(msgs)),
		slog.Any("event_types", types),
		slog.String("error", err.Error()),
	)
}

// TradeExecuted publishes one message per trade.
func (k *Kafka) TradeExecuted(ctx context.Context, trades []*domain.Trade) error {
	if len(trades) == 0 {
		return nil
	}
	msgs := make([]kafka.Message, 0, len(trades))
	for _, t := range trades {
		msg, err := newMessage(TypeTradeExecuted, t.Symbol, newTradeEvent(t))
		if err != nil {
			return err
		}
		msgs = append(msgs, msg)
	}
	return k.write(ctx, msgs...)
}

// OrderCancelled publishes a cancellation.
func (k *Kafka) OrderCancelled(ctx context.Context, o *domain.Order) error {
	msg, err := newMessage(TypeOrderCancelled, o.OrderID, newOrderCancelledEvent(o))
	if err != nil {
		return err
	}
	return k.write(ctx, msg)
}

// Close flushes pending messages and closes the writer.
func (k *Kafka) Close() error {
	return k.writer.Close()
}

func (k *Kafka) write(ctx context.Context, msgs ...kafka.Message) error {
	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := k.writer.WriteMessages(writeCtx, msgs...); err != nil {
		return fmt.Errorf("events: write: %w", err)
	}
	return nil
}

func header(m kafka.Message, key string) string {
	for _, h := range m.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func newMessage(eventType, key string, payload any) (kafka.Message, error) {
	value, err := json.Marshal(payload)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("events: marshal %s: %w", eventType, err)
	}
	return kafka.Message{
		Key:     []byte(key),
		Value:   value,
		Headers: []kafka.Header{{Key: "event-type", Value: []byte(eventType)}},
	}, nil
}
