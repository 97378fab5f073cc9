package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/medflow/waitlist-api/internal/model"
	"github.com/medflow/waitlist-api/internal/repository"
)

type AuditRepository struct {
	mu      sync.RWMutex
	records []*model.AuditRecord
}

func NewAuditRepository() *AuditRepository {
	return &AuditRepository{}
}

var _ repository.AuditRepository = (*AuditRepository)(nil)

func (r *AuditRepository) Append(_ context.Context, record *model.AuditRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *record
	r.records = append(r.records, &clone)
	return nil
}

func (r *AuditRepository) AppendMany(ctx context.Context, records []*model.AuditRecord) error {
	for _, record := range records {
		if err := r.Append(ctx, record); err != nil {
			return err
		}
	}
	return nil
}

func (r *AuditRepository) ListForEntry(_ context.Context, entryID uuid.UUID) ([]*model.AuditRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*model.AuditRecord
	for _, record := range r.records {
		if record.EntryID == entryID {
			clone := *record
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
