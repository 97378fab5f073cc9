package model

import (
	"time"

	"github.com/google/uuid"
)

type AuditAction string

const (
	AuditActionCreated      AuditAction = "created"
	AuditActionUpdated      AuditAction = "updated"
	AuditActionStatusChange AuditAction = "status-change"
	AuditActionPromotion    AuditAction = "promotion"
	AuditActionExpiration   AuditAction = "expiration"
	AuditActionCancellation AuditAction = "cancellation"
)

// AuditRecord is one element of an entry's append-only history. Records are
// only ever inserted; the log is materially part of the entry's state, so a
// failed append after a successful mutation is reported as an internal error.
type AuditRecord struct {
	ID        uuid.UUID   `db:"id" json:"id"`
	EntryID   uuid.UUID   `db:"entry_id" json:"-"`
	Action    AuditAction `db:"action" json:"action"`
	ActorID   *uuid.UUID  `db:"actor_id" json:"actor_id,omitempty"`
	Notes     string      `db:"notes" json:"notes,omitempty"`
	Metadata  JSONMap     `db:"metadata" json:"metadata,omitempty"`
	CreatedAt time.Time   `db:"created_at" json:"created_at"`
}
