package waitlist

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/medflow/waitlist-api/internal/model"
	apperrors "github.com/medflow/waitlist-api/pkg/errors"
)

// Get returns a single entry with its full audit history. Entries under a
// different tenant are indistinguishable from missing ones.
func (s *Service) Get(ctx context.Context, tenantID, entryID uuid.UUID) (*model.WaitlistEntry, error) {
	entry, err := s.repo.Get(ctx, tenantID, entryID)
	if err != nil {
		return nil, err
	}
	return s.withAudit(ctx, entry)
}

// List returns one page of entries plus the stable total for the filter.
func (s *Service) List(ctx context.Context, filters *model.WaitlistFilters) ([]*model.WaitlistEntry, int, error) {
	for _, status := range filters.Statuses {
		if !status.Valid() {
			return nil, 0, apperrors.InvalidArgument(fmt.Sprintf("invalid status %q", status), nil)
		}
	}
	if filters.SortBy == "" {
		filters.SortBy = model.SortByPriority
	}
	if filters.SortBy != model.SortByPriority && filters.SortBy != model.SortByCreatedAt {
		return nil, 0, apperrors.InvalidArgument(fmt.Sprintf("invalid sort field %q", filters.SortBy), nil)
	}
	filters.Normalize()

	entries, total, err := s.repo.List(ctx, filters)
	if err != nil {
		return nil, 0, apperrors.Internal(err)
	}
	return entries, total, nil
}

// Counts is the read-side rollup for a scope, with every status present in
// the map even when zero.
func (s *Service) Counts(ctx context.Context, tenantID uuid.UUID, clinicID *uuid.UUID) (*model.StatusCounts, error) {
	counts, err := s.repo.CountsByStatus(ctx, tenantID, clinicID)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	for _, status := range []model.WaitlistStatus{
		model.WaitlistStatusActive,
		model.WaitlistStatusInvited,
		model.WaitlistStatusPromoted,
		model.WaitlistStatusExpired,
		model.WaitlistStatusCancelled,
	} {
		if _, ok := counts.ByStatus[status]; !ok {
			counts.ByStatus[status] = 0
		}
	}
	return counts, nil
}

func (s *Service) withAudit(ctx context.Context, entry *model.WaitlistEntry) (*model.WaitlistEntry, error) {
	records, err := s.auditRepo.ListForEntry(ctx, entry.ID)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	entry.Audit = records
	return entry, nil
}
