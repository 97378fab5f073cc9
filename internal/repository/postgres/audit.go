package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/medflow/waitlist-api/internal/model"
)

func (r *auditRepository) Append(ctx context.Context, record *model.AuditRecord) error {
	query := `
		INSERT INTO waitlist_audit (
			id, entry_id, action, actor_id, notes, metadata, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.ExecContext(ctx, query,
		record.ID,
		record.EntryID,
		record.Action,
		record.ActorID,
		record.Notes,
		record.Metadata,
		record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append audit record: %w", err)
	}
	return nil
}

func (r *auditRepository) AppendMany(ctx context.Context, records []*model.AuditRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	query := `
		INSERT INTO waitlist_audit (
			id, entry_id, action, actor_id, notes, metadata, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	for _, record := range records {
		if _, err := tx.ExecContext(ctx, query,
			record.ID,
			record.EntryID,
			record.Action,
			record.ActorID,
			record.Notes,
			record.Metadata,
			record.CreatedAt,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to append audit records: %w", err)
		}
	}

	return tx.Commit()
}

func (r *auditRepository) ListForEntry(ctx context.Context, entryID uuid.UUID) ([]*model.AuditRecord, error) {
	query := `
		SELECT id, entry_id, action, actor_id, notes, metadata, created_at
		FROM waitlist_audit
		WHERE entry_id = $1
		ORDER BY created_at ASC, id ASC
	`
	var records []*model.AuditRecord
	if err := r.db.SelectContext(ctx, &records, query, entryID); err != nil {
		return nil, fmt.Errorf("failed to list audit records: %w", err)
	}
	return records, nil
}
