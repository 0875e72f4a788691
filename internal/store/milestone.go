package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/planora/roadmap/internal/types"
)

const milestoneColumns = `id, session_id, theme_id, name, target_sprint,
	target_date, status, criteria, completion_percentage, created_at`

// ReplaceMilestones swaps a session's milestones for a new set in one
// transaction.
func (s *Store) ReplaceMilestones(ctx context.Context, sessionID string, milestones []*types.RoadmapMilestone) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM milestones WHERE session_id = ?`, sessionID); err != nil {
			return fmt.Errorf("failed to clear milestones for %s: %w", sessionID, err)
		}

		for _, m := range milestones {
			m.SetDefaults()
			if err := m.Validate(); err != nil {
				return fmt.Errorf("invalid milestone %s: %w", m.ID, err)
			}
			_, err := tx.ExecContext(ctx, `
			INSERT INTO milestones (`+milestoneColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			`,
				m.ID, m.SessionID, m.ThemeID, m.Name, m.TargetSprint,
				formatTime(m.TargetDate), string(m.Status),
				marshalStrings(m.Criteria), m.CompletionPercentage,
				formatTime(m.CreatedAt),
			)
			if err != nil {
				return fmt.Errorf("failed to insert milestone %s: %w", m.ID, err)
			}
		}
		return nil
	})
}

// ListMilestones retrieves a session's milestones in sprint order.
func (s *Store) ListMilestones(ctx context.Context, sessionID string) ([]*types.RoadmapMilestone, error) {
	rows, err := s.db.QueryContext(ctx, `
	SELECT `+milestoneColumns+` FROM milestones
	WHERE session_id = ?
	ORDER BY target_sprint, name
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list milestones: %w", err)
	}
	defer rows.Close()

	var milestones []*types.RoadmapMilestone
	for rows.Next() {
		var m types.RoadmapMilestone
		var themeID, criteria sql.NullString
		var status, targetDate, createdAt string

		err := rows.Scan(
			&m.ID, &m.SessionID, &themeID, &m.Name, &m.TargetSprint,
			&targetDate, &status, &criteria, &m.CompletionPercentage,
			&createdAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan milestone: %w", err)
		}
		m.ThemeID = themeID.String
		m.Status = types.MilestoneStatus(status)
		m.Criteria = unmarshalStrings(criteria)
		m.TargetDate = parseTime(targetDate)
		m.CreatedAt = parseTime(createdAt)
		milestones = append(milestones, &m)
	}
	return milestones, rows.Err()
}
