package events

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/efreitasn/spotsim/internal/domain"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafka_TradeExecuted(t *testing.T) {
	w := &fakeWriter{}
	k := &Kafka{writer: w}
	at := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	trades := []*domain.Trade{
		{TradeID: "t-1", OrderID: "o-2", MakerOrderID: "o-1", AccountID: "bob", MakerAccountID: "alice",
			Symbol: "BTCUSDT", Side: domain.OrderSideBuy, Price: decimal.NewFromInt(100), Amount: decimal.NewFromInt(1),
			Total: decimal.RequireFromString("100.1"), Fee: decimal.RequireFromString("0.1"), ExecutedAt: at},
		{TradeID: "t-2", OrderID: "o-3", AccountID: "bob", Symbol: "ETHUSDT", Side: domain.OrderSideSell,
			Price: decimal.NewFromInt(3000), Amount: decimal.NewFromInt(1), Total: decimal.NewFromInt(2997),
			Fee: decimal.NewFromInt(3), ExecutedAt: at},
	}

	if err := k.TradeExecuted(context.Background(), trades); err != nil {
		t.Fatal(err)
	}
	if len(w.msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(w.msgs))
	}
	if string(w.msgs[1].Key) != "ETHUSDT" || header(w.msgs[1], "event-type") != TypeTradeExecuted {
		t.Errorf("unexpected message metadata: key=%s headers=%v", w.msgs[1].Key, w.msgs[1].Headers)
	}

	var ev TradeEvent
	if err := json.Unmarshal(w.msgs[0].Value, &ev); err != nil {
		t.Fatal(err)
	}
	if ev.TradeID != "t-1" || ev.MakerOrderID != "o-1" || ev.Total != "100.1" || !ev.ExecutedAt.Equal(at) {
		t.Errorf("unexpected payload: %+v", ev)
	}

	if err := k.TradeExecuted(context.Background(), nil); err != nil || len(w.msgs) != 2 {
		t.Errorf("empty batch should write nothing")
	}
}

func TestKafka_OrderCancelled(t *testing.T) {
	w := &fakeWriter{}
	k := &Kafka{writer: w}
	cancelled := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	o := &domain.Order{OrderID: "o-9", AccountID: "alice", Symbol: "BTCUSDT", Side: domain.OrderSideSell,
		Amount: decimal.NewFromInt(2), Filled: decimal.Zero, Remaining: decimal.NewFromInt(2), CancelledAt: &cancelled}
	if err := k.OrderCancelled(context.Background(), o); err != nil {
		t.Fatal(err)
	}

	m := w.msgs[0]
	if string(m.Key) != "o-9" || header(m, "event-type") != TypeOrderCancelled {
		t.Errorf("unexpected metadata: %+v", m)
	}
	var ev OrderCancelledEvent
	if err := json.Unmarshal(m.Value, &ev); err != nil {
		t.Fatal(err)
	}
	if ev.Remaining != "2" || ev.Side != "sell" || !ev.CancelledAt.Equal(cancelled) {
		t.Errorf("unexpected payload: %+v", ev)
	}

	if err := k.Close(); err != nil || !w.closed {
		t.Error("Close should close the writer")
	}
}

func TestKafka_WriteError(t *testing.T) {
	w := &fakeWriter{err: errors.New("broker down")}
	k := &Kafka{writer: w}

	err := k.OrderCancelled(context.Background(), &domain.Order{OrderID: "o-1"})
	if err == nil || !errors.Is(err, w.err) {
		t.Errorf("expected wrapped writer error, got %v", err)
	}
}

func TestKafka_DeliveryFailureLogged(t *testing.T) {
	var buf bytes.Buffer
	k := NewKafka([]string{"localhost:9092"}, "spotsim.events", slog.New(slog.NewJSONHandler(&buf, nil)))
	defer k.Close()

	w, ok := k.writer.(*kafka.Writer)
	if !ok || w.Completion == nil || w.ErrorLogger == nil {
		t.Fatal("async writer must report delivery results")
	}

	msg, err := newMessage(TypeTradeExecuted, "BTCUSDT", map[string]string{"trade_id": "t-1"})
	if err != nil {
		t.Fatal(err)
	}

	w.Completion([]kafka.Message{msg}, nil)
	if buf.Len() != 0 {
		t.Fatalf("successful delivery should not log: %s", buf.String())
	}

	w.Completion([]kafka.Message{msg, msg}, errors.New("leader not available"))
	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode log entry %q: %v", buf.String(), err)
	}
	if entry["msg"] != "event delivery failed" || entry["messages"] != float64(2) {
		t.Errorf("unexpected log entry: %v", entry)
	}
	if !strings.Contains(entry["error"].(string), "leader not available") {
		t.Errorf("error not logged: %v", entry)
	}
	types, _ := entry["event_types"].(map[string]any)
	if types[TypeTradeExecuted] != float64(2) {
		t.Errorf("event_types = %v", entry["event_types"])
	}
}
