package queue

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hoardrun1/hoardrun-sub005/internal/store"
	m "github.com/hoardrun1/hoardrun-sub005/pkg/metrics"
)

func init() {
	log.SetOutput(io.Discard)
}

type recordingWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *recordingWriter) Close() error { return nil }

type scriptedReader struct {
	msgs      []kafka.Message
	committed []int64
	cancel    context.CancelFunc
}

func (r *scriptedReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	if len(r.msgs) == 0 {
		r.cancel()
		<-ctx.Done()
		return kafka.Message{}, ctx.Err()
	}
	msg := r.msgs[0]
	r.msgs = r.msgs[1:]
	return msg, nil
}

func (r *scriptedReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	for _, msg := range msgs {
		r.committed = append(r.committed, msg.Offset)
	}
	return nil
}

func (r *scriptedReader) Close() error { return nil }

func sampleTx() *store.Transaction {
	return &store.Transaction{
		ID: "tx-1", UserID: "user-1", Status: store.StatusSuccessful,
		Amount: decimal.RequireFromString("9.99"), Currency: "EUR",
	}
}

func TestPublishKeysByTransaction(t *testing.T) {
	w := &recordingWriter{}
	b := &Bus{w: w, topic: "bank.transactions"}

	require.NoError(t, b.Publish(context.Background(), EventFor(EventSettled, sampleTx())))
	require.Len(t, w.msgs, 1)
	assert.Equal(t, "tx-1", string(w.msgs[0].Key))

	var e Event
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &e))
	assert.Equal(t, EventSettled, e.Type)
	assert.True(t, e.Amount.Equal(decimal.RequireFromString("9.99")))
}

func TestPublishWrapsWriterError(t *testing.T) {
	b := &Bus{w: &recordingWriter{err: errors.New("leader not available")}, topic: "t"}
	err := b.Publish(context.Background(), EventFor(EventCreated, sampleTx()))
	assert.ErrorContains(t, err, "publish transaction.created")
}

func TestNewPublisherWithoutBrokersDiscards(t *testing.T) {
	p := NewPublisher(nil, "t")
	assert.IsType(t, Discard{}, p)
	assert.NoError(t, p.Publish(context.Background(), Event{}))
}

func TestConsumerCommitsEvenWhenHandlerFails(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	good, _ := json.Marshal(EventFor(EventSettled, sampleTx()))
	r := &scriptedReader{
		cancel: cancel,
		msgs: []kafka.Message{
			{Offset: 1, Value: good},
			{Offset: 2, Value: []byte("{not json")},
			{Offset: 3, Value: good},
		},
	}
	c := &Consumer{r: r}

	before := testutil.ToFloat64(m.EventsConsumed.WithLabelValues(EventSettled, "FAILED"))
	calls := 0
	err := c.Run(ctx, func(context.Context, Event) error {
		calls++
		if calls == 1 {
			return errors.New("mailgun down")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, []int64{1, 2, 3}, r.committed)
	assert.Equal(t, before+1, testutil.ToFloat64(m.EventsConsumed.WithLabelValues(EventSettled, "FAILED")))
}
