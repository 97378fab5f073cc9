package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/medflow/waitlist-api/internal/model"
	"github.com/medflow/waitlist-api/internal/repository"
)

type PolicyRepository struct {
	mu       sync.RWMutex
	policies map[string]*model.WaitlistPolicy
}

func NewPolicyRepository() *PolicyRepository {
	return &PolicyRepository{policies: make(map[string]*model.WaitlistPolicy)}
}

var _ repository.PolicyRepository = (*PolicyRepository)(nil)

func policyKey(tenantID uuid.UUID, clinicID *uuid.UUID) string {
	if clinicID != nil {
		return tenantID.String() + ":" + clinicID.String()
	}
	return tenantID.String()
}

func (r *PolicyRepository) Get(_ context.Context, tenantID uuid.UUID, clinicID *uuid.UUID) (*model.WaitlistPolicy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	policy, ok := r.policies[policyKey(tenantID, clinicID)]
	if !ok {
		return nil, nil
	}
	clone := *policy
	return &clone, nil
}

func (r *PolicyRepository) Upsert(_ context.Context, policy *model.WaitlistPolicy) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	if policy.ID == uuid.Nil {
		policy.ID = uuid.New()
	}
	if policy.CreatedAt.IsZero() {
		policy.CreatedAt = now
	}
	policy.UpdatedAt = now

	clone := *policy
	r.policies[policyKey(policy.TenantID, policy.ClinicID)] = &clone
	return nil
}
