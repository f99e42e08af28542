package override

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository stores override records in PostgreSQL. The table is
// append-only by convention and carries no update path here.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a repository backed by PostgreSQL.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Append inserts an override record.
func (r *PostgresRepository) Append(ctx context.Context, rec Record) error {
	_, err := r.db.Exec(ctx, `INSERT INTO admin_overrides
        (id, type, justification, entity_ref, actor, role, outcome, denial_reason, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		rec.ID, rec.Type, rec.Justification, rec.EntityRef, rec.Actor, rec.Role,
		rec.Outcome, rec.DenialReason, rec.CreatedAt.UTC())
	return err
}

// ListByEntity returns override records for an entity, oldest first.
func (r *PostgresRepository) ListByEntity(ctx context.Context, entityRef string) ([]Record, error) {
	rows, err := r.db.Query(ctx, `SELECT id, type, justification, entity_ref, actor, role, outcome, denial_reason, created_at
        FROM admin_overrides WHERE entity_ref = $1 ORDER BY created_at`, entityRef)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.Type, &rec.Justification, &rec.EntityRef, &rec.Actor,
			&rec.Role, &rec.Outcome, &rec.DenialReason, &rec.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
