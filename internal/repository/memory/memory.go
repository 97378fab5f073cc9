// Package memory provides in-process repository implementations backed by
// maps. They mirror the postgres semantics, including tenant scoping and the
// queued-entry uniqueness constraint, and exist for tests and local runs
// without a database.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/medflow/waitlist-api/internal/model"
	"github.com/medflow/waitlist-api/internal/repository"
	apperrors "github.com/medflow/waitlist-api/pkg/errors"
)

type WaitlistRepository struct {
	mu      sync.RWMutex
	entries map[uuid.UUID]*model.WaitlistEntry
	audit   *AuditRepository
}

// NewWaitlistRepository takes the audit store so batch updates can land
// entries and audit records as one unit, mirroring the postgres transaction.
func NewWaitlistRepository(audit *AuditRepository) *WaitlistRepository {
	return &WaitlistRepository{
		entries: make(map[uuid.UUID]*model.WaitlistEntry),
		audit:   audit,
	}
}

var _ repository.WaitlistRepository = (*WaitlistRepository)(nil)

func cloneEntry(e *model.WaitlistEntry) *model.WaitlistEntry {
	c := *e
	c.Audit = nil
	return &c
}

func queued(s model.WaitlistStatus) bool {
	return s == model.WaitlistStatusActive || s == model.WaitlistStatusInvited
}

func (r *WaitlistRepository) Create(_ context.Context, entry *model.WaitlistEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Emulates the partial unique index over queued entries.
	for _, existing := range r.entries {
		if existing.TenantID == entry.TenantID &&
			existing.PatientID == entry.PatientID &&
			uuidPtrEqual(existing.ClinicID, entry.ClinicID) &&
			uuidPtrEqual(existing.DoctorID, entry.DoctorID) &&
			queued(existing.Status) && queued(entry.Status) {
			return apperrors.Conflict("patient already has a queued waitlist entry in this scope", nil)
		}
	}

	r.entries[entry.ID] = cloneEntry(entry)
	return nil
}

func (r *WaitlistRepository) Get(_ context.Context, tenantID, id uuid.UUID) (*model.WaitlistEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.entries[id]
	if !ok || entry.TenantID != tenantID {
		return nil, apperrors.NotFound("waitlist entry", nil)
	}
	return cloneEntry(entry), nil
}

func (r *WaitlistRepository) GetMany(_ context.Context, tenantID uuid.UUID, ids []uuid.UUID) ([]*model.WaitlistEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*model.WaitlistEntry
	for _, id := range ids {
		if entry, ok := r.entries[id]; ok && entry.TenantID == tenantID {
			out = append(out, cloneEntry(entry))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *WaitlistRepository) Update(_ context.Context, entry *model.WaitlistEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.entries[entry.ID]
	if !ok || existing.TenantID != entry.TenantID {
		return apperrors.NotFound("waitlist entry", nil)
	}
	entry.UpdatedAt = time.Now()
	r.entries[entry.ID] = cloneEntry(entry)
	return nil
}

func (r *WaitlistRepository) List(_ context.Context, filters *model.WaitlistFilters) ([]*model.WaitlistEntry, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []*model.WaitlistEntry
	for _, entry := range r.entries {
		if entry.TenantID != filters.TenantID {
			continue
		}
		if filters.ClinicID != nil && !uuidPtrEqual(entry.ClinicID, filters.ClinicID) {
			continue
		}
		if filters.DoctorID != nil && !uuidPtrEqual(entry.DoctorID, filters.DoctorID) {
			continue
		}
		if filters.PatientID != nil && entry.PatientID != *filters.PatientID {
			continue
		}
		if len(filters.Statuses) > 0 && !statusIn(entry.Status, filters.Statuses) {
			continue
		}
		matched = append(matched, cloneEntry(entry))
	}

	if filters.SortBy == model.SortByPriority {
		sort.Slice(matched, func(i, j int) bool {
			if matched[i].PriorityScore != matched[j].PriorityScore {
				return matched[i].PriorityScore < matched[j].PriorityScore
			}
			return matched[i].CreatedAt.Before(matched[j].CreatedAt)
		})
	} else {
		sort.Slice(matched, func(i, j int) bool {
			return matched[i].CreatedAt.Before(matched[j].CreatedAt)
		})
	}

	total := len(matched)
	start := filters.Offset()
	if start > total {
		start = total
	}
	end := start + filters.PageSize
	if filters.PageSize <= 0 || end > total {
		end = total
	}
	return matched[start:end], total, nil
}

// UpdateManyWithAudit validates the whole batch before touching any entry,
// so a failure applies nothing — the in-memory analogue of the postgres
// transaction.
func (r *WaitlistRepository) UpdateManyWithAudit(ctx context.Context, entries []*model.WaitlistEntry, records []*model.AuditRecord) error {
	r.mu.Lock()
	for _, entry := range entries {
		existing, ok := r.entries[entry.ID]
		if !ok || existing.TenantID != entry.TenantID {
			r.mu.Unlock()
			return apperrors.NotFound("waitlist entry", nil)
		}
	}

	now := time.Now()
	for _, entry := range entries {
		entry.UpdatedAt = now
		r.entries[entry.ID] = cloneEntry(entry)
	}
	r.mu.Unlock()

	if r.audit == nil {
		return nil
	}
	return r.audit.AppendMany(ctx, records)
}

func (r *WaitlistRepository) FindQueued(_ context.Context, tenantID uuid.UUID, clinicID, doctorID *uuid.UUID, patientID uuid.UUID) (*model.WaitlistEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, entry := range r.entries {
		if entry.TenantID != tenantID || entry.PatientID != patientID || !queued(entry.Status) {
			continue
		}
		if clinicID != nil && !uuidPtrEqual(entry.ClinicID, clinicID) {
			continue
		}
		if doctorID != nil && !uuidPtrEqual(entry.DoctorID, doctorID) {
			continue
		}
		return cloneEntry(entry), nil
	}
	return nil, nil
}

func (r *WaitlistRepository) CountQueued(_ context.Context, tenantID uuid.UUID, clinicID *uuid.UUID) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, entry := range r.entries {
		if entry.TenantID != tenantID || !queued(entry.Status) {
			continue
		}
		if clinicID != nil && !uuidPtrEqual(entry.ClinicID, clinicID) {
			continue
		}
		count++
	}
	return count, nil
}

func (r *WaitlistRepository) CountsByStatus(_ context.Context, tenantID uuid.UUID, clinicID *uuid.UUID) (*model.StatusCounts, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	counts := &model.StatusCounts{ByStatus: make(map[model.WaitlistStatus]int)}
	for _, entry := range r.entries {
		if entry.TenantID != tenantID {
			continue
		}
		if clinicID != nil && !uuidPtrEqual(entry.ClinicID, clinicID) {
			continue
		}
		counts.ByStatus[entry.Status]++
		counts.Total++
	}
	return counts, nil
}

func (r *WaitlistRepository) ListDue(_ context.Context, now time.Time, limit int) ([]*model.WaitlistEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var due []*model.WaitlistEntry
	for _, entry := range r.entries {
		if !queued(entry.Status) || entry.ExpiresAt == nil || entry.ExpiresAt.After(now) {
			continue
		}
		due = append(due, cloneEntry(entry))
	}
	sort.Slice(due, func(i, j int) bool { return due[i].ExpiresAt.Before(*due[j].ExpiresAt) })
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func uuidPtrEqual(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func statusIn(s model.WaitlistStatus, set []model.WaitlistStatus) bool {
	for _, candidate := range set {
		if s == candidate {
			return true
		}
	}
	return false
}
