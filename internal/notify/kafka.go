package notify

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/efreitasn/venue/internal/domain"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink publishes events to a topic keyed by market id, so every event
// of a market lands on one partition in order.
type KafkaSink struct {
	writer messageWriter
}

// NewKafkaSink creates a sink writing to topic on brokers.
func NewKafkaSink(brokers []string, topic string) *KafkaSink {
	return &KafkaSink{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			Async:        false,
			BatchTimeout: 10 * time.Millisecond,
		},
	}
}

// Name implements Sink.
func (s *KafkaSink) Name() string { return "kafka" }

type kafkaEvent struct {
	ID       string         `json:"id"`
	Type     string         `json:"type"`
	Accnt    string         `json:"accnt,omitempty"`
	MarketID int64          `json:"market_id"`
	Time     int64          `json:"time"`
	Exec     *domain.Exec   `json:"exec,omitempty"`
	Market   *domain.Market `json:"market,omitempty"`
}

// Deliver implements Sink.
func (s *KafkaSink) Deliver(ctx context.Context, ev Event) error {
	value, err := json.Marshal(kafkaEvent{
		ID:       ev.ID,
		Type:     ev.Type,
		Accnt:    ev.Accnt,
		MarketID: ev.MarketID,
		Time:     ev.Time.UnixMilli(),
		Exec:     ev.Exec,
		Market:   ev.Market,
	})
	if err != nil {
		return err
	}
	return s.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(strconv.FormatInt(ev.MarketID, 10)),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(ev.Type)},
		},
	})
}

// Close flushes and closes the writer.
func (s *KafkaSink) Close() error {
	return s.writer.Close()
}
