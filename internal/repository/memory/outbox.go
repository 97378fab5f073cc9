package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/medflow/waitlist-api/internal/model"
	"github.com/medflow/waitlist-api/internal/repository"
)

type OutboxRepository struct {
	mu      sync.RWMutex
	events  []*model.OutboxEvent
	claimed map[uuid.UUID]bool
}

func NewOutboxRepository() *OutboxRepository {
	return &OutboxRepository{claimed: make(map[uuid.UUID]bool)}
}

var _ repository.OutboxRepository = (*OutboxRepository)(nil)

func (r *OutboxRepository) Create(_ context.Context, event *model.OutboxEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	event.ID = uuid.New()
	event.Status = model.OutboxStatusPending
	event.CreatedAt = time.Now()
	event.UpdatedAt = event.CreatedAt

	clone := *event
	r.events = append(r.events, &clone)
	return nil
}

// WithPending emulates the row locks of the postgres implementation with a
// claimed set: events a worker is holding are invisible to a second caller
// until fn returns.
func (r *OutboxRepository) WithPending(ctx context.Context, limit int, fn func(ctx context.Context, tx repository.OutboxTx, events []*model.OutboxEvent) error) error {
	r.mu.Lock()
	now := time.Now()
	var claimed []*model.OutboxEvent
	for _, event := range r.events {
		if event.Status != model.OutboxStatusPending && event.Status != model.OutboxStatusRetry {
			continue
		}
		if event.RetryAt != nil && event.RetryAt.After(now) {
			continue
		}
		if r.claimed[event.ID] {
			continue
		}
		r.claimed[event.ID] = true
		clone := *event
		claimed = append(claimed, &clone)
		if limit > 0 && len(claimed) >= limit {
			break
		}
	}
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		for _, event := range claimed {
			delete(r.claimed, event.ID)
		}
		r.mu.Unlock()
	}()

	return fn(ctx, outboxMarker{repo: r}, claimed)
}

type outboxMarker struct {
	repo *OutboxRepository
}

func (m outboxMarker) MarkProcessed(_ context.Context, id uuid.UUID) error {
	m.repo.mu.Lock()
	defer m.repo.mu.Unlock()

	for _, event := range m.repo.events {
		if event.ID == id {
			now := time.Now()
			event.Status = model.OutboxStatusProcessed
			event.ProcessedAt = &now
			event.UpdatedAt = now
			return nil
		}
	}
	return nil
}

func (m outboxMarker) MarkFailed(_ context.Context, id uuid.UUID, errMsg string, retryAt *time.Time) error {
	m.repo.mu.Lock()
	defer m.repo.mu.Unlock()

	for _, event := range m.repo.events {
		if event.ID == id {
			if retryAt != nil {
				event.Status = model.OutboxStatusRetry
			} else {
				event.Status = model.OutboxStatusFailed
			}
			event.ErrorMessage = &errMsg
			event.RetryAt = retryAt
			event.RetryCount++
			event.UpdatedAt = time.Now()
			return nil
		}
	}
	return nil
}

func (r *OutboxRepository) DeleteProcessedBefore(_ context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var kept []*model.OutboxEvent
	var deleted int64
	for _, event := range r.events {
		if event.Status == model.OutboxStatusProcessed && event.ProcessedAt != nil && event.ProcessedAt.Before(before) {
			deleted++
			continue
		}
		kept = append(kept, event)
	}
	r.events = kept
	return deleted, nil
}

// Events returns a snapshot of everything recorded, oldest first.
func (r *OutboxRepository) Events() []*model.OutboxEvent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*model.OutboxEvent, len(r.events))
	for i, event := range r.events {
		clone := *event
		out[i] = &clone
	}
	return out
}
