package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/medflow/waitlist-api/internal/model"
)

// All repository interfaces in one file
type (
	// WaitlistRepository is the persistence surface for waitlist entries.
	// Every read is tenant-scoped; a row that exists under another tenant
	// behaves exactly like a missing row.
	WaitlistRepository interface {
		Create(ctx context.Context, entry *model.WaitlistEntry) error
		Get(ctx context.Context, tenantID, id uuid.UUID) (*model.WaitlistEntry, error)
		GetMany(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) ([]*model.WaitlistEntry, error)
		Update(ctx context.Context, entry *model.WaitlistEntry) error
		List(ctx context.Context, filters *model.WaitlistFilters) ([]*model.WaitlistEntry, int, error)

		// FindQueued returns the active/invited entry matching the given
		// patient and the narrowest scope supplied, or nil when none exists.
		FindQueued(ctx context.Context, tenantID uuid.UUID, clinicID, doctorID *uuid.UUID, patientID uuid.UUID) (*model.WaitlistEntry, error)

		// CountQueued counts active+invited entries in the admission scope.
		CountQueued(ctx context.Context, tenantID uuid.UUID, clinicID *uuid.UUID) (int, error)

		CountsByStatus(ctx context.Context, tenantID uuid.UUID, clinicID *uuid.UUID) (*model.StatusCounts, error)

		// ListDue returns queued entries whose expires_at has passed,
		// across all tenants, for the sweeper.
		ListDue(ctx context.Context, now time.Time, limit int) ([]*model.WaitlistEntry, error)

		// UpdateManyWithAudit persists a batch of entry updates and their
		// audit records in one unit of work: either every entry and every
		// record lands, or none do.
		UpdateManyWithAudit(ctx context.Context, entries []*model.WaitlistEntry, records []*model.AuditRecord) error
	}

	// AuditRepository appends to and reads an entry's immutable history.
	AuditRepository interface {
		Append(ctx context.Context, record *model.AuditRecord) error
		AppendMany(ctx context.Context, records []*model.AuditRecord) error
		ListForEntry(ctx context.Context, entryID uuid.UUID) ([]*model.AuditRecord, error)
	}

	PolicyRepository interface {
		// Get performs a point lookup; clinicID nil selects the
		// tenant-wide row. Returns nil when no policy is stored.
		Get(ctx context.Context, tenantID uuid.UUID, clinicID *uuid.UUID) (*model.WaitlistPolicy, error)
		Upsert(ctx context.Context, policy *model.WaitlistPolicy) error
	}

	OutboxRepository interface {
		Create(ctx context.Context, event *model.OutboxEvent) error

		// WithPending claims up to limit due events under the store's row
		// locks and runs fn with them. Marks issued through tx commit
		// together with the claim, so an event a worker is publishing is
		// never visible to a second worker.
		WithPending(ctx context.Context, limit int, fn func(ctx context.Context, tx OutboxTx, events []*model.OutboxEvent) error) error

		DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error)
	}

	// OutboxTx marks claimed events within the claiming transaction.
	OutboxTx interface {
		MarkProcessed(ctx context.Context, id uuid.UUID) error
		MarkFailed(ctx context.Context, id uuid.UUID, errMsg string, retryAt *time.Time) error
	}
)
