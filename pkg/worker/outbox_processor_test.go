package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medflow/waitlist-api/internal/model"
	"github.com/medflow/waitlist-api/internal/repository"
	"github.com/medflow/waitlist-api/internal/repository/memory"
	"github.com/medflow/waitlist-api/pkg/logger"
	"github.com/medflow/waitlist-api/pkg/messaging"
	"github.com/medflow/waitlist-api/pkg/metrics"
)

// promauto registers against the default registerer, so the test binary gets
// one shared instance.
var (
	testMetrics     *metrics.Metrics
	testMetricsOnce sync.Once
)

func sharedMetrics() *metrics.Metrics {
	testMetricsOnce.Do(func() {
		testMetrics = metrics.New("waitlist_worker_test")
	})
	return testMetrics
}

type fakeBroker struct {
	mu        sync.Mutex
	published []publishedMessage
	failTypes map[string]bool
}

type publishedMessage struct {
	Channel string
	Message messaging.Message
}

func newFakeBroker(failTypes ...string) *fakeBroker {
	fail := make(map[string]bool, len(failTypes))
	for _, t := range failTypes {
		fail[t] = true
	}
	return &fakeBroker{failTypes: fail}
}

func (b *fakeBroker) Publish(_ context.Context, channel string, message interface{}) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failTypes[channel] {
		return errors.New("broker unavailable")
	}
	b.published = append(b.published, publishedMessage{
		Channel: channel,
		Message: message.(messaging.Message),
	})
	return nil
}

func (b *fakeBroker) Subscribe(context.Context, string) (<-chan []byte, error) {
	return nil, errors.New("not implemented")
}

func (b *fakeBroker) Close() error { return nil }

func (b *fakeBroker) messages() []publishedMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]publishedMessage, len(b.published))
	copy(out, b.published)
	return out
}

func newProcessor(repo *memory.OutboxRepository, broker messaging.Broker, attempts int) *OutboxProcessor {
	return NewOutboxProcessor(repo, broker, OutboxProcessorConfig{
		BatchSize:     10,
		PollInterval:  time.Millisecond,
		RetryAttempts: attempts,
		RetryDelay:    time.Millisecond,
	}, logger.NewLogger(nil), sharedMetrics())
}

func createEvent(t *testing.T, repo *memory.OutboxRepository, eventType string) *model.OutboxEvent {
	t.Helper()
	payload, err := json.Marshal(map[string]string{"entry_id": "e-1"})
	require.NoError(t, err)
	event := &model.OutboxEvent{EventType: eventType, Payload: payload}
	require.NoError(t, repo.Create(context.Background(), event))
	return event
}

func TestOutboxProcessorPublishesPendingEvents(t *testing.T) {
	repo := memory.NewOutboxRepository()
	broker := newFakeBroker()
	processor := newProcessor(repo, broker, 3)

	createEvent(t, repo, model.EventWaitlistJoined)
	createEvent(t, repo, model.EventWaitlistInvited)

	require.NoError(t, processor.processEvents(context.Background()))

	messages := broker.messages()
	require.Len(t, messages, 2)
	assert.Equal(t, model.EventWaitlistJoined, messages[0].Channel)
	assert.Equal(t, model.EventWaitlistJoined, messages[0].Message.Type)
	assert.Equal(t, model.EventWaitlistInvited, messages[1].Channel)

	for _, event := range repo.Events() {
		assert.Equal(t, model.OutboxStatusProcessed, event.Status)
	}
}

func TestOutboxProcessorRetriesThenParksFailures(t *testing.T) {
	repo := memory.NewOutboxRepository()
	broker := newFakeBroker(model.EventWaitlistJoined)
	processor := newProcessor(repo, broker, 2)

	createEvent(t, repo, model.EventWaitlistJoined)

	// First attempt schedules a retry.
	require.NoError(t, processor.processEvents(context.Background()))
	events := repo.Events()
	require.Len(t, events, 1)
	assert.Equal(t, model.OutboxStatusRetry, events[0].Status)
	assert.Equal(t, 1, events[0].RetryCount)
	require.NotNil(t, events[0].RetryAt)

	// Second attempt exhausts the budget and parks the event.
	time.Sleep(5 * time.Millisecond)
	require.NoError(t, processor.processEvents(context.Background()))
	events = repo.Events()
	assert.Equal(t, model.OutboxStatusFailed, events[0].Status)
	assert.Equal(t, 2, events[0].RetryCount)
	require.NotNil(t, events[0].ErrorMessage)
	assert.Contains(t, *events[0].ErrorMessage, "broker unavailable")
}

func TestOutboxProcessorSkipsEventsNotYetDue(t *testing.T) {
	repo := memory.NewOutboxRepository()
	broker := newFakeBroker(model.EventWaitlistJoined)
	processor := NewOutboxProcessor(repo, broker, OutboxProcessorConfig{
		BatchSize:     10,
		PollInterval:  time.Millisecond,
		RetryAttempts: 5,
		RetryDelay:    time.Hour,
	}, logger.NewLogger(nil), sharedMetrics())

	createEvent(t, repo, model.EventWaitlistJoined)

	require.NoError(t, processor.processEvents(context.Background()))
	events := repo.Events()
	require.Len(t, events, 1)
	assert.Equal(t, model.OutboxStatusRetry, events[0].Status)
	assert.Equal(t, 1, events[0].RetryCount)
	require.NotNil(t, events[0].RetryAt)

	// RetryAt is an hour out, so the next pass leaves the event untouched.
	require.NoError(t, processor.processEvents(context.Background()))
	assert.Equal(t, 1, repo.Events()[0].RetryCount)
}

func TestPendingEventsClaimedOnce(t *testing.T) {
	repo := memory.NewOutboxRepository()
	createEvent(t, repo, model.EventWaitlistJoined)

	// A second worker polling while the first still holds its batch must not
	// see the claimed events, or both would publish them.
	err := repo.WithPending(context.Background(), 10, func(ctx context.Context, _ repository.OutboxTx, events []*model.OutboxEvent) error {
		require.Len(t, events, 1)
		return repo.WithPending(ctx, 10, func(_ context.Context, _ repository.OutboxTx, concurrent []*model.OutboxEvent) error {
			assert.Empty(t, concurrent)
			return nil
		})
	})
	require.NoError(t, err)

	// Once the batch is released unmarked, the event is visible again.
	err = repo.WithPending(context.Background(), 10, func(_ context.Context, _ repository.OutboxTx, events []*model.OutboxEvent) error {
		assert.Len(t, events, 1)
		return nil
	})
	require.NoError(t, err)
}

func TestOutboxProcessorPrunesProcessedEvents(t *testing.T) {
	repo := memory.NewOutboxRepository()
	broker := newFakeBroker()
	processor := NewOutboxProcessor(repo, broker, OutboxProcessorConfig{
		BatchSize:     10,
		PollInterval:  time.Millisecond,
		RetryAttempts: 3,
		RetryDelay:    time.Millisecond,
		RetainFor:     time.Nanosecond,
	}, logger.NewLogger(nil), sharedMetrics())

	createEvent(t, repo, model.EventWaitlistJoined)

	require.NoError(t, processor.processEvents(context.Background()))
	time.Sleep(2 * time.Millisecond)
	require.NoError(t, processor.processEvents(context.Background()))

	assert.Empty(t, repo.Events())
}

func TestOutboxProcessorConfigValidation(t *testing.T) {
	repo := memory.NewOutboxRepository()
	broker := newFakeBroker()

	assert.Panics(t, func() {
		NewOutboxProcessor(repo, broker, OutboxProcessorConfig{
			PollInterval:  time.Second,
			RetryAttempts: 1,
			RetryDelay:    time.Second,
		}, logger.NewLogger(nil), sharedMetrics())
	})
}
