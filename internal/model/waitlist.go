package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type WaitlistStatus string

const (
	WaitlistStatusActive    WaitlistStatus = "active"
	WaitlistStatusInvited   WaitlistStatus = "invited"
	WaitlistStatusPromoted  WaitlistStatus = "promoted"
	WaitlistStatusExpired   WaitlistStatus = "expired"
	WaitlistStatusCancelled WaitlistStatus = "cancelled"
)

// QueueStatuses are the statuses that occupy queue capacity and are subject
// to the duplicate rule.
var QueueStatuses = []WaitlistStatus{WaitlistStatusActive, WaitlistStatusInvited}

func (s WaitlistStatus) Valid() bool {
	switch s {
	case WaitlistStatusActive, WaitlistStatusInvited, WaitlistStatusPromoted,
		WaitlistStatusExpired, WaitlistStatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further transitions are allowed out of s.
func (s WaitlistStatus) Terminal() bool {
	switch s {
	case WaitlistStatusPromoted, WaitlistStatusExpired, WaitlistStatusCancelled:
		return true
	}
	return false
}

// RequestedWindow is the patient's preferred time range. Informational only;
// admission never enforces it.
type RequestedWindow struct {
	Start *time.Time `json:"start,omitempty"`
	End   *time.Time `json:"end,omitempty"`
	Notes string     `json:"notes,omitempty"`
}

func (w RequestedWindow) Value() (driver.Value, error) {
	return json.Marshal(w)
}

func (w *RequestedWindow) Scan(src interface{}) error {
	if src == nil {
		return nil
	}
	b, ok := src.([]byte)
	if !ok {
		return fmt.Errorf("cannot scan %T into RequestedWindow", src)
	}
	return json.Unmarshal(b, w)
}

// WaitlistEntry is a request to wait for availability at a clinic, optionally
// narrowed to a doctor. All queries against it are tenant-scoped.
type WaitlistEntry struct {
	ID                    uuid.UUID        `db:"id" json:"id"`
	TenantID              uuid.UUID        `db:"tenant_id" json:"tenant_id"`
	ClinicID              *uuid.UUID       `db:"clinic_id" json:"clinic_id,omitempty"`
	DoctorID              *uuid.UUID       `db:"doctor_id" json:"doctor_id,omitempty"`
	PatientID             uuid.UUID        `db:"patient_id" json:"patient_id"`
	Status                WaitlistStatus   `db:"status" json:"status"`
	PriorityScore         int64            `db:"priority_score" json:"priority_score"`
	RequestedWindow       *RequestedWindow `db:"requested_window" json:"requested_window,omitempty"`
	Notes                 string           `db:"notes" json:"notes,omitempty"`
	Metadata              JSONMap          `db:"metadata" json:"metadata,omitempty"`
	ExpiresAt             *time.Time       `db:"expires_at" json:"expires_at,omitempty"`
	PromotedAppointmentID *uuid.UUID       `db:"promoted_appointment_id" json:"promoted_appointment_id,omitempty"`
	CreatedAt             time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt             time.Time        `db:"updated_at" json:"updated_at"`

	// Audit is the append-only transition history, oldest first. Loaded
	// alongside the entry, never written through it.
	Audit []*AuditRecord `db:"-" json:"audit,omitempty"`
}

// WaitlistFilters narrows list queries. Nil pointer fields are unconstrained.
type WaitlistFilters struct {
	TenantID  uuid.UUID
	ClinicID  *uuid.UUID
	DoctorID  *uuid.UUID
	PatientID *uuid.UUID
	Statuses  []WaitlistStatus
	SortBy    SortField
	Pagination
}

type SortField string

const (
	SortByPriority  SortField = "priority"
	SortByCreatedAt SortField = "createdAt"
)

// StatusCounts is the analytics rollup for a scope.
type StatusCounts struct {
	Total    int                    `json:"total"`
	ByStatus map[WaitlistStatus]int `json:"by_status"`
}

// EnqueueRequest is the join-request body.
type EnqueueRequest struct {
	PatientID       string                 `json:"patient_id" binding:"required,uuid"`
	ClinicID        string                 `json:"clinic_id" binding:"omitempty,uuid"`
	DoctorID        string                 `json:"doctor_id" binding:"omitempty,uuid"`
	RequestedWindow *RequestedWindow       `json:"requested_window"`
	Notes           string                 `json:"notes" binding:"max=2000"`
	Metadata        map[string]interface{} `json:"metadata"`
}

type UpdateStatusRequest struct {
	Status string `json:"status" binding:"required,oneof=active invited promoted expired cancelled"`
	Notes  string `json:"notes" binding:"max=2000"`
}

type PromoteRequest struct {
	AppointmentID string `json:"appointment_id" binding:"required,uuid"`
	Notes         string `json:"notes" binding:"max=2000"`
}

type UpdatePriorityRequest struct {
	PriorityScore *int64 `json:"priority_score" binding:"required"`
	Notes         string `json:"notes" binding:"max=2000"`
}

type BulkUpdateStatusRequest struct {
	EntryIDs []string `json:"entry_ids" binding:"required,min=1,max=500,dive,uuid"`
	Status   string   `json:"status" binding:"required,oneof=active invited promoted expired cancelled"`
	Notes    string   `json:"notes" binding:"max=2000"`
}
