package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/medflow/waitlist-api/internal/model"
	"github.com/medflow/waitlist-api/internal/repository"
	"github.com/medflow/waitlist-api/pkg/logger"
	"github.com/medflow/waitlist-api/pkg/messaging"
	"github.com/medflow/waitlist-api/pkg/metrics"
)

type OutboxProcessorConfig struct {
	BatchSize     int
	PollInterval  time.Duration
	RetryAttempts int
	RetryDelay    time.Duration
	RetainFor     time.Duration
}

// OutboxProcessor ships pending lifecycle events to the message broker.
// Failed publishes are retried with a fixed delay until the attempt budget
// runs out, then parked as failed for operator inspection.
type OutboxProcessor struct {
	repo    repository.OutboxRepository
	broker  messaging.Broker
	config  OutboxProcessorConfig
	logger  *logger.Logger
	metrics *metrics.Metrics
}

func NewOutboxProcessor(
	repo repository.OutboxRepository,
	broker messaging.Broker,
	config OutboxProcessorConfig,
	logger *logger.Logger,
	metrics *metrics.Metrics,
) *OutboxProcessor {
	if config.BatchSize <= 0 {
		panic("BatchSize must be greater than 0")
	}
	if config.PollInterval <= 0 {
		panic("PollInterval must be greater than 0")
	}
	if config.RetryAttempts <= 0 {
		panic("RetryAttempts must be greater than 0")
	}
	if config.RetryDelay <= 0 {
		panic("RetryDelay must be greater than 0")
	}

	return &OutboxProcessor{
		repo:    repo,
		broker:  broker,
		config:  config,
		logger:  logger,
		metrics: metrics,
	}
}

func (p *OutboxProcessor) Start(ctx context.Context) {
	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	p.logger.Info("starting outbox processor")

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("shutting down outbox processor")
			return
		case <-ticker.C:
			if err := p.processEvents(ctx); err != nil {
				p.logger.Error(err, "failed to process outbox events")
			}
		}
	}
}

func (p *OutboxProcessor) processEvents(ctx context.Context) error {
	timer := prometheus.NewTimer(p.metrics.OutboxProcessingLatency)
	defer timer.ObserveDuration()

	// Publishing and marking run inside the claiming transaction, so the
	// row locks span the whole batch and a second worker never republishes
	// an event this one is still holding.
	err := p.repo.WithPending(ctx, p.config.BatchSize, func(ctx context.Context, tx repository.OutboxTx, events []*model.OutboxEvent) error {
		for _, event := range events {
			if err := p.publish(ctx, event); err != nil {
				p.metrics.OutboxEventsFailed.Inc()
				p.logger.Error(err, "failed to publish event", "event_id", event.ID, "event_type", event.EventType)

				var retryAt *time.Time
				if event.RetryCount+1 < p.config.RetryAttempts {
					at := time.Now().Add(p.config.RetryDelay)
					retryAt = &at
				}
				if err := tx.MarkFailed(ctx, event.ID, err.Error(), retryAt); err != nil {
					return fmt.Errorf("failed to mark event failed: %w", err)
				}
				continue
			}

			if err := tx.MarkProcessed(ctx, event.ID); err != nil {
				return fmt.Errorf("failed to mark event processed: %w", err)
			}
			p.metrics.OutboxEventsProcessed.Inc()
		}
		return nil
	})
	if err != nil {
		p.metrics.DatabaseOperations.WithLabelValues("process_pending_events", "error").Inc()
		return fmt.Errorf("failed to process pending events: %w", err)
	}

	if p.config.RetainFor > 0 {
		if _, err := p.repo.DeleteProcessedBefore(ctx, time.Now().Add(-p.config.RetainFor)); err != nil {
			p.logger.Error(err, "failed to prune processed events")
		}
	}
	return nil
}

// publish sends the event on the channel named after its type, wrapped in
// the standard envelope.
func (p *OutboxProcessor) publish(ctx context.Context, event *model.OutboxEvent) error {
	var payload interface{}
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		return fmt.Errorf("invalid event payload: %w", err)
	}
	return p.broker.Publish(ctx, event.EventType, messaging.Message{
		Type:    event.EventType,
		Payload: payload,
	})
}
