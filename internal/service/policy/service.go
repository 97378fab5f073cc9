package policy

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"

	"github.com/medflow/waitlist-api/internal/model"
	"github.com/medflow/waitlist-api/internal/repository"
	apperrors "github.com/medflow/waitlist-api/pkg/errors"
)

// Service resolves the effective waitlist policy for an admission scope.
// Resolution runs on every admission decision, so lookups go through a small
// TTL cache in front of the store.
type Service struct {
	repo  repository.PolicyRepository
	cache *gocache.Cache
}

func NewService(repo repository.PolicyRepository, cacheTTL time.Duration) *Service {
	return &Service{
		repo:  repo,
		cache: gocache.New(cacheTTL, 2*cacheTTL),
	}
}

// Resolve walks the fallback chain: clinic-specific, then tenant-wide, then
// hard-coded system defaults. Absence at every level is not an error; only a
// failing store is.
func (s *Service) Resolve(ctx context.Context, tenantID uuid.UUID, clinicID *uuid.UUID) (*model.EffectivePolicy, error) {
	key := cacheKey(tenantID, clinicID)
	if cached, ok := s.cache.Get(key); ok {
		return cached.(*model.EffectivePolicy), nil
	}

	effective, err := s.resolve(ctx, tenantID, clinicID)
	if err != nil {
		return nil, err
	}

	s.cache.SetDefault(key, effective)
	return effective, nil
}

func (s *Service) resolve(ctx context.Context, tenantID uuid.UUID, clinicID *uuid.UUID) (*model.EffectivePolicy, error) {
	if clinicID != nil {
		stored, err := s.repo.Get(ctx, tenantID, clinicID)
		if err != nil {
			return nil, apperrors.Internal(err)
		}
		if stored != nil {
			return stored.Effective(model.PolicySourceClinic), nil
		}
	}

	stored, err := s.repo.Get(ctx, tenantID, nil)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	if stored != nil {
		return stored.Effective(model.PolicySourceTenant), nil
	}

	return model.SystemDefaultPolicy(), nil
}

// Upsert applies a partial update at (tenant, clinic|nil): supplied fields
// replace stored values, everything else keeps its stored value, or the
// system default when no policy existed at that scope yet.
func (s *Service) Upsert(ctx context.Context, tenantID uuid.UUID, req *model.UpsertPolicyRequest) (*model.WaitlistPolicy, error) {
	var clinicID *uuid.UUID
	if req.ClinicID != nil {
		id, err := uuid.Parse(*req.ClinicID)
		if err != nil {
			return nil, apperrors.InvalidArgument("invalid clinic id", err)
		}
		clinicID = &id
	}

	existing, err := s.repo.Get(ctx, tenantID, clinicID)
	if err != nil {
		return nil, apperrors.Internal(err)
	}

	policy := existing
	if policy == nil {
		policy = &model.WaitlistPolicy{
			TenantID:                 tenantID,
			ClinicID:                 clinicID,
			MaxQueueSize:             model.DefaultMaxQueueSize,
			AutoExpiryHours:          model.DefaultAutoExpiryHours,
			AutoPromoteBufferMinutes: model.DefaultAutoPromoteBufferMinutes,
		}
	}

	if req.MaxQueueSize != nil {
		policy.MaxQueueSize = *req.MaxQueueSize
	}
	if req.AutoExpiryHours != nil {
		policy.AutoExpiryHours = *req.AutoExpiryHours
	}
	if req.AutoPromoteBufferMinutes != nil {
		policy.AutoPromoteBufferMinutes = *req.AutoPromoteBufferMinutes
	}
	if req.PriorityWeights != nil {
		policy.PriorityWeights = model.WeightMap(req.PriorityWeights)
	}
	if req.NotificationTemplateOverrides != nil {
		policy.NotificationTemplateOverrides = model.TemplateMap(req.NotificationTemplateOverrides)
	}

	if err := validate(policy); err != nil {
		return nil, err
	}

	if err := s.repo.Upsert(ctx, policy); err != nil {
		return nil, apperrors.Internal(err)
	}

	// A tenant-wide change affects every clinic key resolving through the
	// fallback, so drop the whole cache rather than chase key patterns.
	s.cache.Flush()

	return policy, nil
}

func validate(p *model.WaitlistPolicy) error {
	if p.MaxQueueSize <= 0 {
		return apperrors.InvalidArgument("max_queue_size must be positive", nil)
	}
	if p.AutoExpiryHours <= 0 || p.AutoExpiryHours > model.MaxAutoExpiryHours {
		return apperrors.InvalidArgument(
			fmt.Sprintf("auto_expiry_hours must be in (0, %d]", model.MaxAutoExpiryHours), nil)
	}
	if p.AutoPromoteBufferMinutes <= 0 {
		return apperrors.InvalidArgument("auto_promote_buffer_minutes must be positive", nil)
	}
	for name, weight := range p.PriorityWeights {
		if weight < 0 {
			return apperrors.InvalidArgument(fmt.Sprintf("priority weight %q must be non-negative", name), nil)
		}
	}
	return nil
}

func cacheKey(tenantID uuid.UUID, clinicID *uuid.UUID) string {
	if clinicID != nil {
		return fmt.Sprintf("policy:%s:%s", tenantID, *clinicID)
	}
	return fmt.Sprintf("policy:%s", tenantID)
}
