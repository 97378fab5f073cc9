package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/medflow/waitlist-api/internal/model"
	apperrors "github.com/medflow/waitlist-api/pkg/errors"
)

const waitlistColumns = `
	id, tenant_id, clinic_id, doctor_id, patient_id,
	status, priority_score, requested_window, notes, metadata,
	expires_at, promoted_appointment_id, created_at, updated_at
`

func (r *waitlistRepository) Create(ctx context.Context, entry *model.WaitlistEntry) error {
	query := `
		INSERT INTO waitlist_entries (
			id, tenant_id, clinic_id, doctor_id, patient_id,
			status, priority_score, requested_window, notes, metadata,
			expires_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err := r.db.ExecContext(ctx, query,
		entry.ID,
		entry.TenantID,
		entry.ClinicID,
		entry.DoctorID,
		entry.PatientID,
		entry.Status,
		entry.PriorityScore,
		entry.RequestedWindow,
		entry.Notes,
		entry.Metadata,
		entry.ExpiresAt,
		entry.CreatedAt,
		entry.UpdatedAt,
	)
	if err != nil {
		// The partial unique index over queued entries backs the duplicate
		// invariant when two writers race past the application check.
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return apperrors.Conflict("patient already has a queued waitlist entry in this scope", err)
		}
		return fmt.Errorf("failed to create waitlist entry: %w", err)
	}
	return nil
}

func (r *waitlistRepository) Get(ctx context.Context, tenantID, id uuid.UUID) (*model.WaitlistEntry, error) {
	query := `
		SELECT ` + waitlistColumns + `
		FROM waitlist_entries
		WHERE tenant_id = $1 AND id = $2
	`
	var entry model.WaitlistEntry
	err := r.db.GetContext(ctx, &entry, query, tenantID, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("waitlist entry", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get waitlist entry: %w", err)
	}
	return &entry, nil
}

func (r *waitlistRepository) GetMany(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) ([]*model.WaitlistEntry, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := `
		SELECT ` + waitlistColumns + `
		FROM waitlist_entries
		WHERE tenant_id = $1 AND id = ANY($2)
		ORDER BY created_at ASC
	`
	strIDs := make([]string, len(ids))
	for i, id := range ids {
		strIDs[i] = id.String()
	}

	var entries []*model.WaitlistEntry
	err := r.db.SelectContext(ctx, &entries, query, tenantID, pq.Array(strIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to get waitlist entries: %w", err)
	}
	return entries, nil
}

func (r *waitlistRepository) Update(ctx context.Context, entry *model.WaitlistEntry) error {
	query := `
		UPDATE waitlist_entries
		SET status = $1, priority_score = $2, notes = $3,
			expires_at = $4, promoted_appointment_id = $5, updated_at = $6
		WHERE tenant_id = $7 AND id = $8
	`
	entry.UpdatedAt = time.Now()

	result, err := r.db.ExecContext(ctx, query,
		entry.Status,
		entry.PriorityScore,
		entry.Notes,
		entry.ExpiresAt,
		entry.PromotedAppointmentID,
		entry.UpdatedAt,
		entry.TenantID,
		entry.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update waitlist entry: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return apperrors.NotFound("waitlist entry", nil)
	}

	return nil
}

func (r *waitlistRepository) List(ctx context.Context, filters *model.WaitlistFilters) ([]*model.WaitlistEntry, int, error) {
	where := "WHERE tenant_id = $1"
	args := []interface{}{filters.TenantID}
	argCount := 2

	if filters.ClinicID != nil {
		where += fmt.Sprintf(" AND clinic_id = $%d", argCount)
		args = append(args, *filters.ClinicID)
		argCount++
	}
	if filters.DoctorID != nil {
		where += fmt.Sprintf(" AND doctor_id = $%d", argCount)
		args = append(args, *filters.DoctorID)
		argCount++
	}
	if filters.PatientID != nil {
		where += fmt.Sprintf(" AND patient_id = $%d", argCount)
		args = append(args, *filters.PatientID)
		argCount++
	}
	if len(filters.Statuses) > 0 {
		where += fmt.Sprintf(" AND status = ANY($%d)", argCount)
		statuses := make([]string, len(filters.Statuses))
		for i, s := range filters.Statuses {
			statuses[i] = string(s)
		}
		args = append(args, pq.Array(statuses))
		argCount++
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM waitlist_entries " + where
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count waitlist entries: %w", err)
	}

	orderBy := "ORDER BY created_at ASC"
	if filters.SortBy == model.SortByPriority {
		// Equal scores fall back to arrival order.
		orderBy = "ORDER BY priority_score ASC, created_at ASC"
	}

	query := fmt.Sprintf(
		"SELECT %s FROM waitlist_entries %s %s LIMIT $%d OFFSET $%d",
		waitlistColumns, where, orderBy, argCount, argCount+1,
	)
	args = append(args, filters.PageSize, filters.Offset())

	var entries []*model.WaitlistEntry
	if err := r.db.SelectContext(ctx, &entries, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list waitlist entries: %w", err)
	}
	return entries, total, nil
}

// UpdateManyWithAudit runs the batch inside one transaction so a failure on
// any entry or audit row rolls the whole batch back; entry state and the
// audit log never diverge.
func (r *waitlistRepository) UpdateManyWithAudit(ctx context.Context, entries []*model.WaitlistEntry, records []*model.AuditRecord) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	updateQuery := `
		UPDATE waitlist_entries
		SET status = $1, priority_score = $2, notes = $3,
			expires_at = $4, promoted_appointment_id = $5, updated_at = $6
		WHERE tenant_id = $7 AND id = $8
	`
	now := time.Now()
	for _, entry := range entries {
		entry.UpdatedAt = now
		result, err := tx.ExecContext(ctx, updateQuery,
			entry.Status,
			entry.PriorityScore,
			entry.Notes,
			entry.ExpiresAt,
			entry.PromotedAppointmentID,
			entry.UpdatedAt,
			entry.TenantID,
			entry.ID,
		)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to update waitlist entry: %w", err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if rows == 0 {
			tx.Rollback()
			return apperrors.NotFound("waitlist entry", nil)
		}
	}

	auditQuery := `
		INSERT INTO waitlist_audit (
			id, entry_id, action, actor_id, notes, metadata, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	for _, record := range records {
		if _, err := tx.ExecContext(ctx, auditQuery,
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

func (r *waitlistRepository) FindQueued(ctx context.Context, tenantID uuid.UUID, clinicID, doctorID *uuid.UUID, patientID uuid.UUID) (*model.WaitlistEntry, error) {
	query := `
		SELECT ` + waitlistColumns + `
		FROM waitlist_entries
		WHERE tenant_id = $1 AND patient_id = $2
		AND status IN ('active', 'invited')
	`
	args := []interface{}{tenantID, patientID}
	argCount := 3

	// Only constrain on clinic/doctor when the caller supplied them: the
	// duplicate rule matches the narrowest scope given.
	if clinicID != nil {
		query += fmt.Sprintf(" AND clinic_id = $%d", argCount)
		args = append(args, *clinicID)
		argCount++
	}
	if doctorID != nil {
		query += fmt.Sprintf(" AND doctor_id = $%d", argCount)
		args = append(args, *doctorID)
		argCount++
	}
	query += " LIMIT 1"

	var entry model.WaitlistEntry
	err := r.db.GetContext(ctx, &entry, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find queued entry: %w", err)
	}
	return &entry, nil
}

func (r *waitlistRepository) CountQueued(ctx context.Context, tenantID uuid.UUID, clinicID *uuid.UUID) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM waitlist_entries
		WHERE tenant_id = $1
		AND status IN ('active', 'invited')
	`
	args := []interface{}{tenantID}
	if clinicID != nil {
		query += " AND clinic_id = $2"
		args = append(args, *clinicID)
	}

	var count int
	if err := r.db.GetContext(ctx, &count, query, args...); err != nil {
		return 0, fmt.Errorf("failed to count queued entries: %w", err)
	}
	return count, nil
}

func (r *waitlistRepository) CountsByStatus(ctx context.Context, tenantID uuid.UUID, clinicID *uuid.UUID) (*model.StatusCounts, error) {
	query := `
		SELECT status, COUNT(*) AS count
		FROM waitlist_entries
		WHERE tenant_id = $1
	`
	args := []interface{}{tenantID}
	if clinicID != nil {
		query += " AND clinic_id = $2"
		args = append(args, *clinicID)
	}
	query += " GROUP BY status"

	rows := []struct {
		Status model.WaitlistStatus `db:"status"`
		Count  int                  `db:"count"`
	}{}
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to aggregate status counts: %w", err)
	}

	counts := &model.StatusCounts{ByStatus: make(map[model.WaitlistStatus]int)}
	for _, row := range rows {
		counts.ByStatus[row.Status] = row.Count
		counts.Total += row.Count
	}
	return counts, nil
}

func (r *waitlistRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]*model.WaitlistEntry, error) {
	query := `
		SELECT ` + waitlistColumns + `
		FROM waitlist_entries
		WHERE status IN ('active', 'invited')
		AND expires_at IS NOT NULL
		AND expires_at <= $1
		ORDER BY expires_at ASC
		LIMIT $2
	`
	var entries []*model.WaitlistEntry
	if err := r.db.SelectContext(ctx, &entries, query, now, limit); err != nil {
		return nil, fmt.Errorf("failed to list due entries: %w", err)
	}
	return entries, nil
}
