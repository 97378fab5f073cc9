package waitlist

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/medflow/waitlist-api/internal/model"
	apperrors "github.com/medflow/waitlist-api/pkg/errors"
)

// allowedTransitions is the lifecycle state machine. Terminal states have no
// outgoing edges; promotion is only reachable through Promote, which carries
// the appointment id.
var allowedTransitions = map[model.WaitlistStatus]map[model.WaitlistStatus]bool{
	model.WaitlistStatusActive: {
		model.WaitlistStatusInvited:   true,
		model.WaitlistStatusExpired:   true,
		model.WaitlistStatusCancelled: true,
	},
	model.WaitlistStatusInvited: {
		model.WaitlistStatusPromoted:  true,
		model.WaitlistStatusExpired:   true,
		model.WaitlistStatusCancelled: true,
	},
}

func canTransition(from, to model.WaitlistStatus) bool {
	return allowedTransitions[from][to]
}

func auditActionForStatus(to model.WaitlistStatus) model.AuditAction {
	switch to {
	case model.WaitlistStatusCancelled:
		return model.AuditActionCancellation
	case model.WaitlistStatusExpired:
		return model.AuditActionExpiration
	default:
		return model.AuditActionStatusChange
	}
}

// UpdateStatus transitions a single entry. Calling it with the entry's
// current status is an idempotent no-op: no audit record, entry returned
// unchanged.
func (s *Service) UpdateStatus(ctx context.Context, tenantID, entryID uuid.UUID, newStatus model.WaitlistStatus, actorID *uuid.UUID, notes string) (*model.WaitlistEntry, error) {
	if !newStatus.Valid() {
		return nil, apperrors.InvalidArgument(fmt.Sprintf("invalid status %q", newStatus), nil)
	}

	entry, err := s.repo.Get(ctx, tenantID, entryID)
	if err != nil {
		return nil, err
	}

	if entry.Status == newStatus {
		return s.withAudit(ctx, entry)
	}

	if newStatus == model.WaitlistStatusPromoted {
		return nil, apperrors.Conflict("promotion requires an appointment id, use the promote operation", nil)
	}
	if !canTransition(entry.Status, newStatus) {
		return nil, apperrors.Conflict(
			fmt.Sprintf("cannot transition from %s to %s", entry.Status, newStatus), nil)
	}

	entry.Status = newStatus
	if notes != "" && newStatus != model.WaitlistStatusCancelled {
		entry.Notes = notes
	}

	if err := s.repo.Update(ctx, entry); err != nil {
		return nil, err
	}

	if err := s.appendAudit(ctx, entry, auditActionForStatus(newStatus), actorID, notes, model.JSONMap{
		"status": string(newStatus),
	}); err != nil {
		return nil, err
	}

	if eventType, ok := eventForStatus(newStatus); ok {
		s.emit(ctx, eventType, entry, nil)
	}
	return entry, nil
}

// Promote moves an invited entry into a concrete booking. Only entries still
// occupying the queue may be promoted; promoting an expired or cancelled
// entry is rejected rather than silently resurrecting it.
func (s *Service) Promote(ctx context.Context, tenantID, entryID, appointmentID uuid.UUID, actorID *uuid.UUID, notes string) (*model.WaitlistEntry, error) {
	if appointmentID == uuid.Nil {
		return nil, apperrors.InvalidArgument("appointment id is required", nil)
	}

	entry, err := s.repo.Get(ctx, tenantID, entryID)
	if err != nil {
		return nil, err
	}

	if entry.Status.Terminal() {
		return nil, apperrors.Conflict(
			fmt.Sprintf("cannot promote entry in terminal status %s", entry.Status), nil)
	}

	entry.Status = model.WaitlistStatusPromoted
	entry.PromotedAppointmentID = &appointmentID
	if notes != "" {
		entry.Notes = notes
	}

	if err := s.repo.Update(ctx, entry); err != nil {
		return nil, err
	}

	if err := s.appendAudit(ctx, entry, model.AuditActionPromotion, actorID, notes, model.JSONMap{
		"appointmentId": appointmentID.String(),
	}); err != nil {
		return nil, err
	}

	s.emit(ctx, model.EventWaitlistPromoted, entry, &appointmentID)
	return entry, nil
}

// BulkUpdateStatus applies one transition to a set of entries. The full id
// set is validated inside the tenant before any entry is mutated, so a
// partial failure never leaves a subset transitioned. Entries already in the
// target status are skipped without an extra audit record.
func (s *Service) BulkUpdateStatus(ctx context.Context, tenantID uuid.UUID, entryIDs []uuid.UUID, newStatus model.WaitlistStatus, actorID *uuid.UUID, notes string) ([]*model.WaitlistEntry, error) {
	if !newStatus.Valid() {
		return nil, apperrors.InvalidArgument(fmt.Sprintf("invalid status %q", newStatus), nil)
	}
	if newStatus == model.WaitlistStatusPromoted {
		return nil, apperrors.Conflict("promotion requires an appointment id, use the promote operation", nil)
	}
	if len(entryIDs) == 0 {
		return nil, apperrors.InvalidArgument("entry ids are required", nil)
	}

	unique := make([]uuid.UUID, 0, len(entryIDs))
	seen := make(map[uuid.UUID]struct{}, len(entryIDs))
	for _, id := range entryIDs {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			unique = append(unique, id)
		}
	}

	entries, err := s.repo.GetMany(ctx, tenantID, unique)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	if len(entries) != len(unique) {
		return nil, apperrors.NotFound("waitlist entry", nil)
	}

	for _, entry := range entries {
		if entry.Status == newStatus {
			continue
		}
		if !canTransition(entry.Status, newStatus) {
			return nil, apperrors.Conflict(
				fmt.Sprintf("entry %s cannot transition from %s to %s", entry.ID, entry.Status, newStatus), nil)
		}
	}

	batchID := uuid.New()
	now := time.Now()
	transitioned := make([]*model.WaitlistEntry, 0, len(entries))
	records := make([]*model.AuditRecord, 0, len(entries))

	for _, entry := range entries {
		if entry.Status == newStatus {
			continue
		}
		entry.Status = newStatus
		if notes != "" && newStatus != model.WaitlistStatusCancelled {
			entry.Notes = notes
		}
		transitioned = append(transitioned, entry)
		records = append(records, &model.AuditRecord{
			ID:      uuid.New(),
			EntryID: entry.ID,
			Action:  auditActionForStatus(newStatus),
			ActorID: actorID,
			Notes:   notes,
			Metadata: model.JSONMap{
				"status":  string(newStatus),
				"bulk":    true,
				"batchId": batchID.String(),
			},
			CreatedAt: now,
		})
	}

	// Entry updates and audit records land in one unit of work: a store
	// failure mid-batch must not leave a subset transitioned.
	if len(transitioned) > 0 {
		if err := s.repo.UpdateManyWithAudit(ctx, transitioned, records); err != nil {
			var appErr *apperrors.AppError
			if errors.As(err, &appErr) {
				return nil, err
			}
			return nil, apperrors.Internal(err)
		}
	}

	if eventType, ok := eventForStatus(newStatus); ok {
		for _, entry := range transitioned {
			s.emit(ctx, eventType, entry, nil)
		}
	}

	return entries, nil
}

// UpdatePriority overwrites an entry's score. Any orderable value is
// accepted; the queue simply re-sorts.
func (s *Service) UpdatePriority(ctx context.Context, tenantID, entryID uuid.UUID, newScore int64, actorID *uuid.UUID, notes string) (*model.WaitlistEntry, error) {
	entry, err := s.repo.Get(ctx, tenantID, entryID)
	if err != nil {
		return nil, err
	}

	entry.PriorityScore = newScore

	if err := s.repo.Update(ctx, entry); err != nil {
		return nil, err
	}

	if err := s.appendAudit(ctx, entry, model.AuditActionUpdated, actorID, notes, model.JSONMap{
		"priorityScore": newScore,
	}); err != nil {
		return nil, err
	}

	return entry, nil
}

// ExpireDue transitions queued entries whose expiry timestamp has passed.
// Called by the sweeper worker, never inline with a request.
func (s *Service) ExpireDue(ctx context.Context, now time.Time, limit int) (int, error) {
	due, err := s.repo.ListDue(ctx, now, limit)
	if err != nil {
		return 0, apperrors.Internal(err)
	}

	expired := 0
	for _, entry := range due {
		entry.Status = model.WaitlistStatusExpired
		if err := s.repo.Update(ctx, entry); err != nil {
			return expired, apperrors.Internal(err)
		}
		if err := s.appendAudit(ctx, entry, model.AuditActionExpiration, nil, "", model.JSONMap{
			"status":    string(model.WaitlistStatusExpired),
			"expiresAt": entry.ExpiresAt,
		}); err != nil {
			return expired, err
		}
		s.emit(ctx, model.EventWaitlistExpired, entry, nil)
		expired++
	}
	return expired, nil
}
