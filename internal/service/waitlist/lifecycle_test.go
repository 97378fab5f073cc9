package waitlist_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medflow/waitlist-api/internal/model"
	"github.com/medflow/waitlist-api/internal/repository/memory"
	"github.com/medflow/waitlist-api/internal/service/policy"
	"github.com/medflow/waitlist-api/internal/service/waitlist"
	apperrors "github.com/medflow/waitlist-api/pkg/errors"
	"github.com/medflow/waitlist-api/pkg/locker"
)

func enqueueInputWithNotes(tenantID, patientID uuid.UUID, notes string) *waitlist.EnqueueInput {
	return &waitlist.EnqueueInput{
		TenantID:  tenantID,
		PatientID: patientID,
		Notes:     notes,
	}
}

func TestUpdateStatusIdempotent(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	tenantID := uuid.New()

	entry, err := env.enqueue(t, tenantID, nil, nil, uuid.New())
	require.NoError(t, err)

	// Re-applying the current status changes nothing and records nothing.
	same, err := env.svc.UpdateStatus(ctx, tenantID, entry.ID, model.WaitlistStatusActive, nil, "")
	require.NoError(t, err)
	assert.Equal(t, model.WaitlistStatusActive, same.Status)

	records, err := env.auditRepo.ListForEntry(ctx, entry.ID)
	require.NoError(t, err)
	assert.Len(t, records, 1, "only the creation record")
}

func TestUpdateStatusRejectsInvalidStatus(t *testing.T) {
	env := newTestEnv()
	tenantID := uuid.New()

	entry, err := env.enqueue(t, tenantID, nil, nil, uuid.New())
	require.NoError(t, err)

	_, err = env.svc.UpdateStatus(context.Background(), tenantID, entry.ID, model.WaitlistStatus("archived"), nil, "")
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrInvalidArgument))
}

func TestUpdateStatusRejectsInvalidTransition(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	tenantID := uuid.New()

	entry, err := env.enqueue(t, tenantID, nil, nil, uuid.New())
	require.NoError(t, err)

	_, err = env.svc.UpdateStatus(ctx, tenantID, entry.ID, model.WaitlistStatusCancelled, nil, "")
	require.NoError(t, err)

	// Cancelled is terminal.
	_, err = env.svc.UpdateStatus(ctx, tenantID, entry.ID, model.WaitlistStatusInvited, nil, "")
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrConflict))
}

func TestUpdateStatusCannotPromoteDirectly(t *testing.T) {
	env := newTestEnv()
	tenantID := uuid.New()

	entry, err := env.enqueue(t, tenantID, nil, nil, uuid.New())
	require.NoError(t, err)

	_, err = env.svc.UpdateStatus(context.Background(), tenantID, entry.ID, model.WaitlistStatusPromoted, nil, "")
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrConflict))
}

func TestUpdateStatusCancellationKeepsOriginalNotes(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	tenantID := uuid.New()

	entry, err := env.svc.Enqueue(ctx, enqueueInputWithNotes(tenantID, uuid.New(), "prefers mornings"))
	require.NoError(t, err)

	updated, err := env.svc.UpdateStatus(ctx, tenantID, entry.ID, model.WaitlistStatusCancelled, nil, "patient moved away")
	require.NoError(t, err)
	assert.Equal(t, "prefers mornings", updated.Notes)

	records, err := env.auditRepo.ListForEntry(ctx, entry.ID)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, model.AuditActionCancellation, records[1].Action)
	assert.Equal(t, "patient moved away", records[1].Notes)
}

func TestStatusChangeEmitsEvent(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	tenantID := uuid.New()

	entry, err := env.enqueue(t, tenantID, nil, nil, uuid.New())
	require.NoError(t, err)

	_, err = env.svc.UpdateStatus(ctx, tenantID, entry.ID, model.WaitlistStatusInvited, nil, "")
	require.NoError(t, err)

	events := env.outbox.Events()
	require.Len(t, events, 2)
	assert.Equal(t, model.EventWaitlistJoined, events[0].EventType)
	assert.Equal(t, model.EventWaitlistInvited, events[1].EventType)
}

func TestPromoteRequiresAppointment(t *testing.T) {
	env := newTestEnv()
	tenantID := uuid.New()

	entry, err := env.enqueue(t, tenantID, nil, nil, uuid.New())
	require.NoError(t, err)

	_, err = env.svc.Promote(context.Background(), tenantID, entry.ID, uuid.Nil, nil, "")
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrInvalidArgument))
}

func TestPromoteRejectsTerminalEntry(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	tenantID := uuid.New()

	entry, err := env.enqueue(t, tenantID, nil, nil, uuid.New())
	require.NoError(t, err)
	_, err = env.svc.UpdateStatus(ctx, tenantID, entry.ID, model.WaitlistStatusCancelled, nil, "")
	require.NoError(t, err)

	_, err = env.svc.Promote(ctx, tenantID, entry.ID, uuid.New(), nil, "")
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrConflict))
}

func TestBulkUpdateStatusAllOrNothing(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	tenantID := uuid.New()

	e1, err := env.enqueue(t, tenantID, nil, nil, uuid.New())
	require.NoError(t, err)
	e2, err := env.enqueue(t, tenantID, nil, nil, uuid.New())
	require.NoError(t, err)

	// One unknown id fails the whole batch before any entry is touched.
	_, err = env.svc.BulkUpdateStatus(ctx, tenantID, []uuid.UUID{e1.ID, e2.ID, uuid.New()}, model.WaitlistStatusInvited, nil, "")
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrNotFound))

	for _, id := range []uuid.UUID{e1.ID, e2.ID} {
		got, err := env.svc.Get(ctx, tenantID, id)
		require.NoError(t, err)
		assert.Equal(t, model.WaitlistStatusActive, got.Status)
	}
}

func TestBulkUpdateStatusRejectsInvalidTransitionBeforeMutating(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	tenantID := uuid.New()

	e1, err := env.enqueue(t, tenantID, nil, nil, uuid.New())
	require.NoError(t, err)
	e2, err := env.enqueue(t, tenantID, nil, nil, uuid.New())
	require.NoError(t, err)
	_, err = env.svc.UpdateStatus(ctx, tenantID, e2.ID, model.WaitlistStatusExpired, nil, "")
	require.NoError(t, err)

	// Expired -> invited is not a legal edge, so e1 must stay active too.
	_, err = env.svc.BulkUpdateStatus(ctx, tenantID, []uuid.UUID{e1.ID, e2.ID}, model.WaitlistStatusInvited, nil, "")
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrConflict))

	got, err := env.svc.Get(ctx, tenantID, e1.ID)
	require.NoError(t, err)
	assert.Equal(t, model.WaitlistStatusActive, got.Status)
}

func TestBulkUpdateStatusSkipsEntriesAlreadyInTargetStatus(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	tenantID := uuid.New()

	e1, err := env.enqueue(t, tenantID, nil, nil, uuid.New())
	require.NoError(t, err)
	e2, err := env.enqueue(t, tenantID, nil, nil, uuid.New())
	require.NoError(t, err)
	_, err = env.svc.UpdateStatus(ctx, tenantID, e1.ID, model.WaitlistStatusInvited, nil, "")
	require.NoError(t, err)

	entries, err := env.svc.BulkUpdateStatus(ctx, tenantID, []uuid.UUID{e1.ID, e2.ID}, model.WaitlistStatusInvited, nil, "triage batch")
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	// e1 was already invited: no second status-change record.
	records, err := env.auditRepo.ListForEntry(ctx, e1.ID)
	require.NoError(t, err)
	assert.Len(t, records, 2)

	records, err = env.auditRepo.ListForEntry(ctx, e2.ID)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, model.AuditActionStatusChange, records[1].Action)
	assert.Equal(t, true, records[1].Metadata["bulk"])
	assert.NotEmpty(t, records[1].Metadata["batchId"])
}

// failingBatchStore simulates the store going away mid-request.
type failingBatchStore struct {
	*memory.WaitlistRepository
	fail bool
}

func (s *failingBatchStore) UpdateManyWithAudit(ctx context.Context, entries []*model.WaitlistEntry, records []*model.AuditRecord) error {
	if s.fail {
		return errors.New("connection reset by peer")
	}
	return s.WaitlistRepository.UpdateManyWithAudit(ctx, entries, records)
}

func TestBulkUpdateStatusStoreFailureAppliesNothing(t *testing.T) {
	auditRepo := memory.NewAuditRepository()
	repo := &failingBatchStore{WaitlistRepository: memory.NewWaitlistRepository(auditRepo)}
	policySvc := policy.NewService(memory.NewPolicyRepository(), 0)
	svc := waitlist.NewService(repo, auditRepo, memory.NewOutboxRepository(),
		policySvc, locker.Noop{}, waitlist.NewArrivalScorer(), nil)

	ctx := context.Background()
	tenantID := uuid.New()

	e1, err := svc.Enqueue(ctx, &waitlist.EnqueueInput{TenantID: tenantID, PatientID: uuid.New()})
	require.NoError(t, err)
	e2, err := svc.Enqueue(ctx, &waitlist.EnqueueInput{TenantID: tenantID, PatientID: uuid.New()})
	require.NoError(t, err)

	repo.fail = true
	_, err = svc.BulkUpdateStatus(ctx, tenantID, []uuid.UUID{e1.ID, e2.ID}, model.WaitlistStatusInvited, nil, "")
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrInternal))

	// A failed batch leaves every entry untransitioned and unaudited.
	repo.fail = false
	for _, id := range []uuid.UUID{e1.ID, e2.ID} {
		got, err := svc.Get(ctx, tenantID, id)
		require.NoError(t, err)
		assert.Equal(t, model.WaitlistStatusActive, got.Status)

		records, err := auditRepo.ListForEntry(ctx, id)
		require.NoError(t, err)
		assert.Len(t, records, 1, "only the creation record")
	}
}

func TestBulkUpdateStatusIsolatedByTenant(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	foreign, err := env.enqueue(t, uuid.New(), nil, nil, uuid.New())
	require.NoError(t, err)

	_, err = env.svc.BulkUpdateStatus(ctx, uuid.New(), []uuid.UUID{foreign.ID}, model.WaitlistStatusInvited, nil, "")
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrNotFound))
}

func TestUpdateStatusSurfacesAuditFailure(t *testing.T) {
	svc, audit, _ := newFlakyAuditEnv()
	ctx := context.Background()
	tenantID := uuid.New()

	entry, err := svc.Enqueue(ctx, &waitlist.EnqueueInput{TenantID: tenantID, PatientID: uuid.New()})
	require.NoError(t, err)

	audit.fail = true
	_, err = svc.UpdateStatus(ctx, tenantID, entry.ID, model.WaitlistStatusInvited, nil, "")
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrInternal))

	// The transition itself landed; Internal tells the caller the history
	// record is missing.
	got, err := svc.Get(ctx, tenantID, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, model.WaitlistStatusInvited, got.Status)
}

func TestUpdatePriorityRecordsAudit(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	tenantID := uuid.New()

	entry, err := env.enqueue(t, tenantID, nil, nil, uuid.New())
	require.NoError(t, err)

	updated, err := env.svc.UpdatePriority(ctx, tenantID, entry.ID, 42, nil, "urgent referral")
	require.NoError(t, err)
	assert.Equal(t, int64(42), updated.PriorityScore)

	records, err := env.auditRepo.ListForEntry(ctx, entry.ID)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, model.AuditActionUpdated, records[1].Action)
	assert.Equal(t, int64(42), records[1].Metadata["priorityScore"])
}

func TestExpireDue(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	tenantID := uuid.New()

	entry, err := env.enqueue(t, tenantID, nil, nil, uuid.New())
	require.NoError(t, err)
	fresh, err := env.enqueue(t, tenantID, nil, nil, uuid.New())
	require.NoError(t, err)

	past := time.Now().Add(-time.Hour)
	entry.ExpiresAt = &past
	require.NoError(t, env.repo.Update(ctx, entry))

	expired, err := env.svc.ExpireDue(ctx, time.Now(), 100)
	require.NoError(t, err)
	assert.Equal(t, 1, expired)

	got, err := env.svc.Get(ctx, tenantID, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, model.WaitlistStatusExpired, got.Status)
	require.Len(t, got.Audit, 2)
	assert.Equal(t, model.AuditActionExpiration, got.Audit[1].Action)

	still, err := env.svc.Get(ctx, tenantID, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, model.WaitlistStatusActive, still.Status)

	events := env.outbox.Events()
	require.NotEmpty(t, events)
	assert.Equal(t, model.EventWaitlistExpired, events[len(events)-1].EventType)
}
