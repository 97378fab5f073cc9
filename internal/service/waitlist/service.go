package waitlist

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/medflow/waitlist-api/internal/model"
	"github.com/medflow/waitlist-api/internal/repository"
	"github.com/medflow/waitlist-api/internal/service/policy"
	apperrors "github.com/medflow/waitlist-api/pkg/errors"
	"github.com/medflow/waitlist-api/pkg/locker"
	"github.com/medflow/waitlist-api/pkg/metrics"
)

// Service is the write and read path for waitlist entries: admission
// control, lifecycle transitions, and the analytics rollup.
type Service struct {
	repo      repository.WaitlistRepository
	auditRepo repository.AuditRepository
	outbox    repository.OutboxRepository
	policySvc *policy.Service
	locker    locker.Locker
	scorer    Scorer
	metrics   *metrics.Metrics
}

func NewService(
	repo repository.WaitlistRepository,
	auditRepo repository.AuditRepository,
	outbox repository.OutboxRepository,
	policySvc *policy.Service,
	scopeLocker locker.Locker,
	scorer Scorer,
	m *metrics.Metrics,
) *Service {
	if scorer == nil {
		scorer = NewArrivalScorer()
	}
	if scopeLocker == nil {
		scopeLocker = locker.Noop{}
	}
	return &Service{
		repo:      repo,
		auditRepo: auditRepo,
		outbox:    outbox,
		policySvc: policySvc,
		locker:    scopeLocker,
		scorer:    scorer,
		metrics:   m,
	}
}

// EnqueueInput is a validated join request. Tenant and actor come from the
// request context, never from the body.
type EnqueueInput struct {
	TenantID        uuid.UUID
	ClinicID        *uuid.UUID
	DoctorID        *uuid.UUID
	PatientID       uuid.UUID
	RequestedWindow *model.RequestedWindow
	Notes           string
	Metadata        map[string]interface{}
	ActorID         *uuid.UUID
}

// Enqueue admits a patient onto the waitlist. The duplicate check, capacity
// check and insert run inside a per-scope lock so concurrent joiners cannot
// both pass the checks; the store's unique index backs the duplicate rule as
// a second line of defense.
func (s *Service) Enqueue(ctx context.Context, input *EnqueueInput) (*model.WaitlistEntry, error) {
	if input.TenantID == uuid.Nil {
		return nil, apperrors.InvalidArgument("tenant id is required", nil)
	}
	if input.PatientID == uuid.Nil {
		s.countAdmission("invalid")
		return nil, apperrors.InvalidArgument("patient id is required", nil)
	}

	effective, err := s.policySvc.Resolve(ctx, input.TenantID, input.ClinicID)
	if err != nil {
		return nil, err
	}

	var entry *model.WaitlistEntry

	err = s.locker.WithScopeLock(ctx, input.TenantID, input.ClinicID, func(ctx context.Context) error {
		existing, err := s.repo.FindQueued(ctx, input.TenantID, input.ClinicID, input.DoctorID, input.PatientID)
		if err != nil {
			return apperrors.Internal(err)
		}
		if existing != nil {
			s.countAdmission("duplicate")
			return apperrors.Conflict("patient already has a queued waitlist entry in this scope", nil)
		}

		queued, err := s.repo.CountQueued(ctx, input.TenantID, input.ClinicID)
		if err != nil {
			return apperrors.Internal(err)
		}
		if queued >= effective.MaxQueueSize {
			s.countAdmission("capacity")
			return apperrors.Conflict("waitlist is at capacity for this scope", nil)
		}

		now := time.Now()
		entry = &model.WaitlistEntry{
			ID:              uuid.New(),
			TenantID:        input.TenantID,
			ClinicID:        input.ClinicID,
			DoctorID:        input.DoctorID,
			PatientID:       input.PatientID,
			Status:          model.WaitlistStatusActive,
			RequestedWindow: input.RequestedWindow,
			Notes:           input.Notes,
			Metadata:        input.Metadata,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		entry.PriorityScore = s.scorer.Score(entry, effective, now)

		if effective.AutoExpiryHours > 0 {
			expiresAt := now.Add(time.Duration(effective.AutoExpiryHours) * time.Hour)
			entry.ExpiresAt = &expiresAt
		}

		if err := s.repo.Create(ctx, entry); err != nil {
			var appErr *apperrors.AppError
			if errors.As(err, &appErr) {
				s.countAdmission("duplicate")
				return err
			}
			return apperrors.Internal(err)
		}

		if err := s.appendAudit(ctx, entry, model.AuditActionCreated, input.ActorID, input.Notes, nil); err != nil {
			return err
		}

		s.countAdmission("admitted")
		if s.metrics != nil {
			// The count is scoped the same way the capacity check is, so
			// the gauge needs the clinic dimension too; a tenant-only label
			// would flap between clinic scopes.
			clinicLabel := ""
			if input.ClinicID != nil {
				clinicLabel = input.ClinicID.String()
			}
			s.metrics.QueueDepth.WithLabelValues(input.TenantID.String(), clinicLabel).Set(float64(queued + 1))
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, locker.ErrLockNotAcquired) {
			return nil, apperrors.Conflict("waitlist admission in progress for this scope, retry", err)
		}
		return nil, err
	}

	s.emit(ctx, model.EventWaitlistJoined, entry, nil)
	return entry, nil
}

// appendAudit writes one history record. The log is materially part of the
// entry's state, so a failed append is surfaced as Internal even when the
// primary mutation already succeeded.
func (s *Service) appendAudit(ctx context.Context, entry *model.WaitlistEntry, action model.AuditAction, actorID *uuid.UUID, notes string, metadata model.JSONMap) error {
	record := &model.AuditRecord{
		ID:        uuid.New(),
		EntryID:   entry.ID,
		Action:    action,
		ActorID:   actorID,
		Notes:     notes,
		Metadata:  metadata,
		CreatedAt: time.Now(),
	}
	if err := s.auditRepo.Append(ctx, record); err != nil {
		return apperrors.Internal(err)
	}
	entry.Audit = append(entry.Audit, record)
	return nil
}

// emit records a lifecycle event in the outbox for asynchronous delivery.
// Delivery is decoupled from the caller's request: a failed outbox write is
// logged, never propagated.
func (s *Service) emit(ctx context.Context, eventType string, entry *model.WaitlistEntry, appointmentID *uuid.UUID) {
	payload := &model.WaitlistEventPayload{
		EntryID:       entry.ID,
		TenantID:      entry.TenantID,
		ClinicID:      entry.ClinicID,
		DoctorID:      entry.DoctorID,
		PatientID:     entry.PatientID,
		Status:        entry.Status,
		PriorityScore: entry.PriorityScore,
		AppointmentID: appointmentID,
		Metadata:      entry.Metadata,
		OccurredAt:    time.Now(),
	}

	raw, err := marshalPayload(payload)
	if err != nil {
		log.Error().Err(err).Str("event_type", eventType).Msg("failed to marshal waitlist event")
		return
	}

	event := &model.OutboxEvent{
		EventType: eventType,
		Payload:   raw,
	}
	if err := s.outbox.Create(ctx, event); err != nil {
		log.Error().Err(err).
			Str("event_type", eventType).
			Str("entry_id", entry.ID.String()).
			Msg("failed to enqueue waitlist event")
	}
}

func (s *Service) countAdmission(outcome string) {
	if s.metrics != nil {
		s.metrics.AdmissionDecisions.WithLabelValues(outcome).Inc()
	}
}
