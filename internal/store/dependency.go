package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/planora/roadmap/internal/types"
)

const dependencyColumns = `id, session_id, from_item_id, to_item_id,
	dependency_type, confidence, rationale, is_manual, is_validated, created_at`

// ReplaceDependencies swaps a session's dependency set for a new one in one
// transaction. The resolver re-derives edges on every run, so the old set is
// always fully superseded.
func (s *Store) ReplaceDependencies(ctx context.Context, sessionID string, deps []*types.RoadmapDependency) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM dependencies WHERE session_id = ?`, sessionID); err != nil {
			return fmt.Errorf("failed to clear dependencies for %s: %w", sessionID, err)
		}

		stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO dependencies (`+dependencyColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare dependency insert: %w", err)
		}
		defer stmt.Close()

		for _, d := range deps {
			d.SetDefaults()
			if err := d.Validate(); err != nil {
				return fmt.Errorf("invalid dependency %s: %w", d.ID, err)
			}
			_, err := stmt.ExecContext(ctx,
				d.ID, d.SessionID, d.FromItemID, d.ToItemID,
				string(d.DependencyType), d.Confidence, d.Rationale,
				boolToInt(d.IsManual), boolToInt(d.IsValidated),
				formatTime(d.CreatedAt),
			)
			if err != nil {
				return fmt.Errorf("failed to insert dependency %s: %w", d.ID, err)
			}
		}
		return nil
	})
}

// ListDependencies retrieves a session's dependencies in creation order.
func (s *Store) ListDependencies(ctx context.Context, sessionID string) ([]*types.RoadmapDependency, error) {
	rows, err := s.db.QueryContext(ctx, `
	SELECT `+dependencyColumns+` FROM dependencies
	WHERE session_id = ?
	ORDER BY created_at, id
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list dependencies: %w", err)
	}
	defer rows.Close()

	var deps []*types.RoadmapDependency
	for rows.Next() {
		var d types.RoadmapDependency
		var toItemID, rationale sql.NullString
		var depType, createdAt string
		var isManual, isValidated int

		err := rows.Scan(
			&d.ID, &d.SessionID, &d.FromItemID, &toItemID,
			&depType, &d.Confidence, &rationale, &isManual, &isValidated,
			&createdAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan dependency: %w", err)
		}
		d.ToItemID = toItemID.String
		d.DependencyType = types.DependencyType(depType)
		d.Rationale = rationale.String
		d.IsManual = isManual != 0
		d.IsValidated = isValidated != 0
		d.CreatedAt = parseTime(createdAt)
		deps = append(deps, &d)
	}
	return deps, rows.Err()
}
