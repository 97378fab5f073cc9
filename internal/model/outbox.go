package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type OutboxStatus string

const (
	OutboxStatusPending   OutboxStatus = "pending"
	OutboxStatusRetry     OutboxStatus = "retry"
	OutboxStatusProcessed OutboxStatus = "processed"
	OutboxStatusFailed    OutboxStatus = "failed"
)

// Lifecycle event types published to the messaging collaborator. The channel
// name equals the event type.
const (
	EventWaitlistJoined    = "waitlist.joined"
	EventWaitlistInvited   = "waitlist.invited"
	EventWaitlistPromoted  = "waitlist.promoted"
	EventWaitlistExpired   = "waitlist.expired"
	EventWaitlistCancelled = "waitlist.cancelled"
)

// OutboxEvent is a pending lifecycle event, written in the same unit of work
// as the mutation it describes and shipped asynchronously by the worker.
type OutboxEvent struct {
	ID           uuid.UUID       `db:"id" json:"id"`
	EventType    string          `db:"event_type" json:"event_type"`
	Payload      json.RawMessage `db:"payload" json:"payload"`
	Status       OutboxStatus    `db:"status" json:"status"`
	ErrorMessage *string         `db:"error_message" json:"error_message,omitempty"`
	RetryCount   int             `db:"retry_count" json:"retry_count"`
	RetryAt      *time.Time      `db:"retry_at" json:"retry_at,omitempty"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
	ProcessedAt  *time.Time      `db:"processed_at" json:"processed_at,omitempty"`
	UpdatedAt    time.Time       `db:"updated_at" json:"updated_at"`
}

// WaitlistEventPayload is the wire payload for every waitlist.* event.
type WaitlistEventPayload struct {
	EntryID       uuid.UUID              `json:"entry_id"`
	TenantID      uuid.UUID              `json:"tenant_id"`
	ClinicID      *uuid.UUID             `json:"clinic_id,omitempty"`
	DoctorID      *uuid.UUID             `json:"doctor_id,omitempty"`
	PatientID     uuid.UUID              `json:"patient_id"`
	Status        WaitlistStatus         `json:"status"`
	PriorityScore int64                  `json:"priority_score"`
	AppointmentID *uuid.UUID             `json:"appointment_id,omitempty"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
	OccurredAt    time.Time              `json:"occurred_at"`
}
