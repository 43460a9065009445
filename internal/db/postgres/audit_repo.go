package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"Fetcharr/internal/audit"
)

type postgresAuditRepo struct {
	db *sql.DB
}

// NewAuditRepository creates a new PostgreSQL audit-event repository
func NewAuditRepository(db *sql.DB) audit.Repository {
	return &postgresAuditRepo{db: db}
}

// Insert stores one audit event
func (r *postgresAuditRepo) Insert(ctx context.Context, ev *audit.Event) error {
	query := `
		INSERT INTO audit_events (id, event_type, user_id, provider, ip, occurred_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), $6)`

	if _, err := r.db.ExecContext(ctx, query,
		ev.ID, ev.Type, ev.UserID, ev.Provider, ev.IP, ev.OccurredAt); err != nil {
		return fmt.Errorf("failed to insert audit event: %w", err)
	}
	return nil
}
