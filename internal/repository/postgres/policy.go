package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/medflow/waitlist-api/internal/model"
)

func (r *policyRepository) Get(ctx context.Context, tenantID uuid.UUID, clinicID *uuid.UUID) (*model.WaitlistPolicy, error) {
	query := `
		SELECT id, tenant_id, clinic_id, max_queue_size, auto_expiry_hours,
			   auto_promote_buffer_minutes, priority_weights,
			   notification_template_overrides, created_at, updated_at
		FROM waitlist_policies
		WHERE tenant_id = $1
	`
	args := []interface{}{tenantID}
	if clinicID != nil {
		query += " AND clinic_id = $2"
		args = append(args, *clinicID)
	} else {
		query += " AND clinic_id IS NULL"
	}

	var policy model.WaitlistPolicy
	err := r.db.GetContext(ctx, &policy, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get waitlist policy: %w", err)
	}
	return &policy, nil
}

func (r *policyRepository) Upsert(ctx context.Context, policy *model.WaitlistPolicy) error {
	// COALESCE on clinic_id keeps the (tenant, NULL) row unique; the table
	// has a unique index over (tenant_id, COALESCE(clinic_id, nil uuid)).
	query := `
		INSERT INTO waitlist_policies (
			id, tenant_id, clinic_id, max_queue_size, auto_expiry_hours,
			auto_promote_buffer_minutes, priority_weights,
			notification_template_overrides, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (tenant_id, COALESCE(clinic_id, '00000000-0000-0000-0000-000000000000'::uuid))
		DO UPDATE SET
			max_queue_size = EXCLUDED.max_queue_size,
			auto_expiry_hours = EXCLUDED.auto_expiry_hours,
			auto_promote_buffer_minutes = EXCLUDED.auto_promote_buffer_minutes,
			priority_weights = EXCLUDED.priority_weights,
			notification_template_overrides = EXCLUDED.notification_template_overrides,
			updated_at = EXCLUDED.updated_at
	`
	now := time.Now()
	if policy.ID == uuid.Nil {
		policy.ID = uuid.New()
	}
	if policy.CreatedAt.IsZero() {
		policy.CreatedAt = now
	}
	policy.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, query,
		policy.ID,
		policy.TenantID,
		policy.ClinicID,
		policy.MaxQueueSize,
		policy.AutoExpiryHours,
		policy.AutoPromoteBufferMinutes,
		policy.PriorityWeights,
		policy.NotificationTemplateOverrides,
		policy.CreatedAt,
		policy.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert waitlist policy: %w", err)
	}
	return nil
}
