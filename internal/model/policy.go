package model

import (
	"time"

	"github.com/google/uuid"
)

// System defaults, used when neither a clinic-specific nor a tenant-wide
// policy exists.
const (
	DefaultMaxQueueSize             = 250
	DefaultAutoExpiryHours          = 72
	DefaultAutoPromoteBufferMinutes = 30
	MaxAutoExpiryHours              = 336
)

// WaitlistPolicy is the stored configuration for (tenant, clinic|null).
// A nil ClinicID denotes the tenant-wide default.
type WaitlistPolicy struct {
	ID                            uuid.UUID   `db:"id" json:"id"`
	TenantID                      uuid.UUID   `db:"tenant_id" json:"tenant_id"`
	ClinicID                      *uuid.UUID  `db:"clinic_id" json:"clinic_id,omitempty"`
	MaxQueueSize                  int         `db:"max_queue_size" json:"max_queue_size"`
	AutoExpiryHours               int         `db:"auto_expiry_hours" json:"auto_expiry_hours"`
	AutoPromoteBufferMinutes      int         `db:"auto_promote_buffer_minutes" json:"auto_promote_buffer_minutes"`
	PriorityWeights               WeightMap   `db:"priority_weights" json:"priority_weights,omitempty"`
	NotificationTemplateOverrides TemplateMap `db:"notification_template_overrides" json:"notification_template_overrides,omitempty"`
	CreatedAt                     time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt                     time.Time   `db:"updated_at" json:"updated_at"`
}

// EffectivePolicy is the result of resolution: always usable, never nil
// fields. Source records which level of the fallback chain produced it.
type EffectivePolicy struct {
	MaxQueueSize                  int         `json:"max_queue_size"`
	AutoExpiryHours               int         `json:"auto_expiry_hours"`
	AutoPromoteBufferMinutes      int         `json:"auto_promote_buffer_minutes"`
	PriorityWeights               WeightMap   `json:"priority_weights"`
	NotificationTemplateOverrides TemplateMap `json:"notification_template_overrides"`
	Source                        PolicySource `json:"source"`
}

type PolicySource string

const (
	PolicySourceClinic  PolicySource = "clinic"
	PolicySourceTenant  PolicySource = "tenant"
	PolicySourceDefault PolicySource = "default"
)

// SystemDefaultPolicy returns the hard-coded final fallback.
func SystemDefaultPolicy() *EffectivePolicy {
	return &EffectivePolicy{
		MaxQueueSize:                  DefaultMaxQueueSize,
		AutoExpiryHours:               DefaultAutoExpiryHours,
		AutoPromoteBufferMinutes:      DefaultAutoPromoteBufferMinutes,
		PriorityWeights:               WeightMap{},
		NotificationTemplateOverrides: TemplateMap{},
		Source:                        PolicySourceDefault,
	}
}

// Effective converts a stored policy into the resolved form.
func (p *WaitlistPolicy) Effective(source PolicySource) *EffectivePolicy {
	weights := p.PriorityWeights
	if weights == nil {
		weights = WeightMap{}
	}
	overrides := p.NotificationTemplateOverrides
	if overrides == nil {
		overrides = TemplateMap{}
	}
	return &EffectivePolicy{
		MaxQueueSize:                  p.MaxQueueSize,
		AutoExpiryHours:               p.AutoExpiryHours,
		AutoPromoteBufferMinutes:      p.AutoPromoteBufferMinutes,
		PriorityWeights:               weights,
		NotificationTemplateOverrides: overrides,
		Source:                        source,
	}
}

// UpsertPolicyRequest carries a partial update: only supplied fields change,
// the rest keep their stored (or default) values.
type UpsertPolicyRequest struct {
	ClinicID                      *string            `json:"clinic_id" binding:"omitempty,uuid"`
	MaxQueueSize                  *int               `json:"max_queue_size" binding:"omitempty,gt=0"`
	AutoExpiryHours               *int               `json:"auto_expiry_hours" binding:"omitempty,gt=0,lte=336"`
	AutoPromoteBufferMinutes      *int               `json:"auto_promote_buffer_minutes" binding:"omitempty,gt=0"`
	PriorityWeights               map[string]float64 `json:"priority_weights" binding:"omitempty,dive,gte=0"`
	NotificationTemplateOverrides map[string]string  `json:"notification_template_overrides"`
}
