package kafka

import (
	"encoding/json"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

func TestOutboxPublisher_Publish(t *testing.T) {
	t.Parallel()

	mockProducer := mocks.NewSyncProducer(t, nil)
	mockProducer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var envelope OutboxEnvelope
		if err := json.Unmarshal(val, &envelope); err != nil {
			return err
		}
		require.Equal(t, "outbox-1", envelope.ID)
		require.Equal(t, "order-123", envelope.AggregateID)
		require.Equal(t, string(EventTypeOrderStatusChanged), envelope.EventType)
		require.JSONEq(t, `{"process_status":"shipped"}`, string(envelope.Payload))
		require.False(t, envelope.PublishedAt.IsZero())
		return nil
	})

	publisher := NewOutboxPublisher(NewProducerFromSync(mockProducer, nil), "")

	err := publisher.Publish(domain.OutboxMessage{
		ID:            "outbox-1",
		AggregateType: AggregateOrder,
		AggregateID:   "order-123",
		EventType:     string(EventTypeOrderStatusChanged),
		Payload:       []byte(`{"process_status":"shipped"}`),
	})
	require.NoError(t, err)
	require.NoError(t, mockProducer.Close())
}

func TestOutboxPublisher_PublishProducerError(t *testing.T) {
	t.Parallel()

	mockProducer := mocks.NewSyncProducer(t, nil)
	mockProducer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	publisher := NewOutboxPublisher(NewProducerFromSync(mockProducer, nil), TopicOrderEvents)

	err := publisher.Publish(domain.OutboxMessage{
		ID:            "outbox-2",
		AggregateType: AggregateOrder,
		AggregateID:   "order-234",
		EventType:     string(EventTypeOrderPaid),
		Payload:       []byte(`{}`),
	})
	require.Error(t, err)
	require.NoError(t, mockProducer.Close())
}

type recordingPublisher struct {
	topic string
	key   string
}

func (r *recordingPublisher) PublishEvent(topic, key string, _ any) error {
	r.topic, r.key = topic, key
	return nil
}

func TestOutboxPublisher_KeyFallsBackToMessageID(t *testing.T) {
	t.Parallel()

	rec := &recordingPublisher{}
	publisher := NewOutboxPublisher(rec, "custom.topic")

	require.NoError(t, publisher.Publish(domain.OutboxMessage{ID: "outbox-9", Payload: []byte(`{}`)}))
	require.Equal(t, "custom.topic", rec.topic)
	require.Equal(t, "outbox-9", rec.key)
}

func TestOutboxPublisher_PublishNilProducer(t *testing.T) {
	t.Parallel()

	publisher := NewOutboxPublisher(nil, TopicOrderEvents)
	require.Error(t, publisher.Publish(domain.OutboxMessage{ID: "outbox-3"}))
}
