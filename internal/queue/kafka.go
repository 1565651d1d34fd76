package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/hoardrun1/hoardrun-sub005/internal/store"
	m "github.com/hoardrun1/hoardrun-sub005/pkg/metrics"
)

const (
	EventCreated = "transaction.created"
	EventSettled = "transaction.settled"
)

type Event struct {
	Type          string          `json:"type"`
	TransactionID string          `json:"transaction_id"`
	UserID        string          `json:"user_id"`
	Status        string          `json:"status"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	Reason        string          `json:"reason,omitempty"`
	OccurredAt    time.Time       `json:"occurred_at"`
}

func EventFor(typ string, tx *store.Transaction) Event {
	return Event{
		Type:          typ,
		TransactionID: tx.ID,
		UserID:        tx.UserID,
		Status:        tx.Status,
		Amount:        tx.Amount,
		Currency:      tx.Currency,
		Reason:        tx.Reason,
		OccurredAt:    time.Now().UTC(),
	}
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Bus publishes transaction events keyed by transaction id so every event
// of one transaction lands on the same partition.
type Bus struct {
	w     messageWriter
	topic string
}

func New(brokers []string, topic string) *Bus {
	return &Bus{
		w: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireAll,
			AllowAutoTopicCreation: true,
		},
		topic: topic,
	}
}

func (b *Bus) Publish(ctx context.Context, e Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return err
	}
	if err := b.w.WriteMessages(ctx, kafka.Message{Key: []byte(e.TransactionID), Value: payload, Time: e.OccurredAt}); err != nil {
		return fmt.Errorf("publish %s: %w", e.Type, err)
	}
	log.WithFields(log.Fields{"type": e.Type, "transaction_id": e.TransactionID, "topic": b.topic}).
		Debug("[QUEUE] Event published")
	return nil
}

func (b *Bus) Close() error { return b.w.Close() }

// Discard is used when no brokers are configured.
type Discard struct{}

func (Discard) Publish(context.Context, Event) error { return nil }
func (Discard) Close() error                         { return nil }

// NewPublisher returns a Bus, or Discard when brokers is empty.
func NewPublisher(brokers []string, topic string) Publisher {
	if len(brokers) == 0 {
		log.Warn("[QUEUE] No Kafka brokers configured, events are discarded")
		return Discard{}
	}
	return New(brokers, topic)
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Handler func(ctx context.Context, e Event) error

type Consumer struct {
	r messageReader
}

func NewConsumer(brokers []string, topic, groupID string) *Consumer {
	return &Consumer{r: kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6,
	})}
}

// Run fetches, handles and commits until ctx is cancelled. Undecodable
// messages and handler failures are logged and committed so one bad message
// cannot stall the partition.
func (c *Consumer) Run(ctx context.Context, h Handler) error {
	log.Info("[QUEUE] Consumer started")
	for {
		msg, err := c.r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("fetch: %w", err)
		}

		var e Event
		if err := json.Unmarshal(msg.Value, &e); err != nil {
			log.WithError(err).WithField("offset", msg.Offset).Warn("[QUEUE] Dropping undecodable message")
			m.IncEvent("unknown", "BAD_MESSAGE")
		} else if err := h(ctx, e); err != nil {
			log.WithError(err).WithFields(log.Fields{"type": e.Type, "transaction_id": e.TransactionID}).
				Error("[QUEUE] Handler failed")
			m.IncEvent(e.Type, "FAILED")
		} else {
			m.IncEvent(e.Type, "SUCCESS")
		}

		if err := c.r.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("commit: %w", err)
		}
	}
}

func (c *Consumer) Close() error { return c.r.Close() }
