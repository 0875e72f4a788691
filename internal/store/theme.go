package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/planora/roadmap/internal/types"
)

const themeColumns = `id, session_id, name, color, business_objective,
	success_metrics, total_effort_points, total_items, display_order, created_at`

// ReplaceThemes swaps a session's themes for a new set in one transaction.
func (s *Store) ReplaceThemes(ctx context.Context, sessionID string, themes []*types.RoadmapTheme) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM themes WHERE session_id = ?`, sessionID); err != nil {
			return fmt.Errorf("failed to clear themes for %s: %w", sessionID, err)
		}

		for _, th := range themes {
			th.SetDefaults()
			if err := th.Validate(); err != nil {
				return fmt.Errorf("invalid theme %s: %w", th.ID, err)
			}
			_, err := tx.ExecContext(ctx, `
			INSERT INTO themes (`+themeColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			`,
				th.ID, th.SessionID, th.Name, th.Color, th.BusinessObjective,
				marshalStrings(th.SuccessMetrics), th.TotalEffortPoints,
				th.TotalItems, th.DisplayOrder, formatTime(th.CreatedAt),
			)
			if err != nil {
				return fmt.Errorf("failed to insert theme %s: %w", th.ID, err)
			}
		}
		return nil
	})
}

// ListThemes retrieves a session's themes in display order.
func (s *Store) ListThemes(ctx context.Context, sessionID string) ([]*types.RoadmapTheme, error) {
	rows, err := s.db.QueryContext(ctx, `
	SELECT `+themeColumns+` FROM themes
	WHERE session_id = ?
	ORDER BY display_order, name
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list themes: %w", err)
	}
	defer rows.Close()

	var themes []*types.RoadmapTheme
	for rows.Next() {
		var th types.RoadmapTheme
		var color, objective, metrics sql.NullString
		var createdAt string

		err := rows.Scan(
			&th.ID, &th.SessionID, &th.Name, &color, &objective,
			&metrics, &th.TotalEffortPoints, &th.TotalItems, &th.DisplayOrder,
			&createdAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan theme: %w", err)
		}
		th.Color = color.String
		th.BusinessObjective = objective.String
		th.SuccessMetrics = unmarshalStrings(metrics)
		th.CreatedAt = parseTime(createdAt)
		themes = append(themes, &th)
	}
	return themes, rows.Err()
}
