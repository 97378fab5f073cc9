package policy_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medflow/waitlist-api/internal/model"
	"github.com/medflow/waitlist-api/internal/repository/memory"
	"github.com/medflow/waitlist-api/internal/service/policy"
	apperrors "github.com/medflow/waitlist-api/pkg/errors"
)

func newService() (*policy.Service, *memory.PolicyRepository) {
	repo := memory.NewPolicyRepository()
	return policy.NewService(repo, time.Minute), repo
}

func intPtr(v int) *int { return &v }

func strPtr(s string) *string { return &s }

func TestResolveFallsBackToSystemDefaults(t *testing.T) {
	svc, _ := newService()
	clinicID := uuid.New()

	effective, err := svc.Resolve(context.Background(), uuid.New(), &clinicID)
	require.NoError(t, err)

	assert.Equal(t, model.PolicySourceDefault, effective.Source)
	assert.Equal(t, model.DefaultMaxQueueSize, effective.MaxQueueSize)
	assert.Equal(t, model.DefaultAutoExpiryHours, effective.AutoExpiryHours)
	assert.Equal(t, model.DefaultAutoPromoteBufferMinutes, effective.AutoPromoteBufferMinutes)
}

func TestResolveUsesTenantPolicyWhenClinicHasNone(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()
	tenantID := uuid.New()
	clinicID := uuid.New()

	_, err := svc.Upsert(ctx, tenantID, &model.UpsertPolicyRequest{
		MaxQueueSize: intPtr(10),
	})
	require.NoError(t, err)

	effective, err := svc.Resolve(ctx, tenantID, &clinicID)
	require.NoError(t, err)
	assert.Equal(t, model.PolicySourceTenant, effective.Source)
	assert.Equal(t, 10, effective.MaxQueueSize)
	assert.Equal(t, model.DefaultAutoExpiryHours, effective.AutoExpiryHours)
}

func TestResolvePrefersClinicPolicy(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()
	tenantID := uuid.New()
	clinicID := uuid.New()

	_, err := svc.Upsert(ctx, tenantID, &model.UpsertPolicyRequest{
		MaxQueueSize: intPtr(10),
	})
	require.NoError(t, err)
	_, err = svc.Upsert(ctx, tenantID, &model.UpsertPolicyRequest{
		ClinicID:     strPtr(clinicID.String()),
		MaxQueueSize: intPtr(5),
	})
	require.NoError(t, err)

	effective, err := svc.Resolve(ctx, tenantID, &clinicID)
	require.NoError(t, err)
	assert.Equal(t, model.PolicySourceClinic, effective.Source)
	assert.Equal(t, 5, effective.MaxQueueSize)

	// Other clinics under the tenant still resolve tenant-wide.
	other := uuid.New()
	effective, err = svc.Resolve(ctx, tenantID, &other)
	require.NoError(t, err)
	assert.Equal(t, model.PolicySourceTenant, effective.Source)
	assert.Equal(t, 10, effective.MaxQueueSize)
}

func TestResolveIsolatedByTenant(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()
	tenantID := uuid.New()

	_, err := svc.Upsert(ctx, tenantID, &model.UpsertPolicyRequest{MaxQueueSize: intPtr(3)})
	require.NoError(t, err)

	effective, err := svc.Resolve(ctx, uuid.New(), nil)
	require.NoError(t, err)
	assert.Equal(t, model.PolicySourceDefault, effective.Source)
}

func TestUpsertMergesPartialUpdate(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()
	tenantID := uuid.New()

	_, err := svc.Upsert(ctx, tenantID, &model.UpsertPolicyRequest{
		MaxQueueSize:    intPtr(20),
		AutoExpiryHours: intPtr(48),
	})
	require.NoError(t, err)

	// A second partial update touches one field and keeps the rest.
	updated, err := svc.Upsert(ctx, tenantID, &model.UpsertPolicyRequest{
		AutoPromoteBufferMinutes: intPtr(15),
	})
	require.NoError(t, err)

	assert.Equal(t, 20, updated.MaxQueueSize)
	assert.Equal(t, 48, updated.AutoExpiryHours)
	assert.Equal(t, 15, updated.AutoPromoteBufferMinutes)
}

func TestUpsertInvalidatesCache(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()
	tenantID := uuid.New()

	effective, err := svc.Resolve(ctx, tenantID, nil)
	require.NoError(t, err)
	assert.Equal(t, model.PolicySourceDefault, effective.Source)

	_, err = svc.Upsert(ctx, tenantID, &model.UpsertPolicyRequest{MaxQueueSize: intPtr(7)})
	require.NoError(t, err)

	effective, err = svc.Resolve(ctx, tenantID, nil)
	require.NoError(t, err)
	assert.Equal(t, model.PolicySourceTenant, effective.Source)
	assert.Equal(t, 7, effective.MaxQueueSize)
}

func TestUpsertValidation(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()
	tenantID := uuid.New()

	_, err := svc.Upsert(ctx, tenantID, &model.UpsertPolicyRequest{MaxQueueSize: intPtr(0)})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrInvalidArgument))

	_, err = svc.Upsert(ctx, tenantID, &model.UpsertPolicyRequest{AutoExpiryHours: intPtr(400)})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrInvalidArgument))

	_, err = svc.Upsert(ctx, tenantID, &model.UpsertPolicyRequest{
		PriorityWeights: map[string]float64{"urgency": -1},
	})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrInvalidArgument))

	_, err = svc.Upsert(ctx, tenantID, &model.UpsertPolicyRequest{ClinicID: strPtr("not-a-uuid")})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrInvalidArgument))
}
