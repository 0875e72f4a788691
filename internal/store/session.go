package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/planora/roadmap/internal/types"
)

const sessionColumns = `id, name, description,
	sprint_length_weeks, team_velocity, team_count, buffer_percentage, start_date,
	artifact_ids, feasibility_ids, ideation_ids, custom_items,
	status, progress_step, progress_total, progress_message, error_message,
	has_cycles, cycle_items,
	total_items, total_sprints, total_themes, total_milestones, total_dependencies,
	created_at, updated_at`

// CreateSession inserts a new session row.
func (s *Store) CreateSession(ctx context.Context, session *types.RoadmapSession) error {
	session.SetDefaults()
	if err := session.Validate(); err != nil {
		return fmt.Errorf("invalid session: %w", err)
	}

	customJSON, err := json.Marshal(session.CustomItems)
	if err != nil {
		return fmt.Errorf("failed to marshal custom items: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
	INSERT INTO sessions (`+sessionColumns+`)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		session.ID, session.Name, session.Description,
		session.Capacity.SprintLengthWeeks, session.Capacity.TeamVelocity,
		session.Capacity.TeamCount, session.Capacity.BufferPercentage,
		formatTime(session.Capacity.StartDate),
		marshalStrings(session.ArtifactIDs), marshalStrings(session.FeasibilityIDs),
		marshalStrings(session.IdeationIDs), string(customJSON),
		string(session.Status), session.ProgressStep, session.ProgressTotal,
		session.ProgressMessage, session.ErrorMessage,
		boolToInt(session.HasCycles), marshalStrings(session.CycleItems),
		session.TotalItems, session.TotalSprints, session.TotalThemes,
		session.TotalMilestones, session.TotalDependencies,
		formatTime(session.CreatedAt), formatTime(session.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create session %s: %w", session.ID, err)
	}
	return nil
}

// GetSession retrieves a session by ID. Returns ErrNotFound if absent.
func (s *Store) GetSession(ctx context.Context, id string) (*types.RoadmapSession, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)
	session, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session %s: %w", id, err)
	}
	return session, nil
}

// SessionFilter configures ListSessions.
type SessionFilter struct {
	// Status filters by session status (empty = all).
	Status types.SessionStatus
	// Limit restricts the number of results (0 = no limit).
	Limit int
	// Offset skips the first N results.
	Offset int
}

// ListSessions retrieves sessions newest first.
func (s *Store) ListSessions(ctx context.Context, filter SessionFilter) ([]*types.RoadmapSession, error) {
	var conditions []string
	var args []any

	if filter.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, string(filter.Status))
	}

	query := `SELECT ` + sessionColumns + ` FROM sessions`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}
	if filter.Offset > 0 {
		query += " OFFSET ?"
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*types.RoadmapSession
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

// UpdateSession rewrites all mutable session fields.
func (s *Store) UpdateSession(ctx context.Context, session *types.RoadmapSession) error {
	if err := session.Validate(); err != nil {
		return fmt.Errorf("invalid session: %w", err)
	}
	session.UpdatedAt = time.Now().UTC()

	customJSON, err := json.Marshal(session.CustomItems)
	if err != nil {
		return fmt.Errorf("failed to marshal custom items: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
	UPDATE sessions SET
		name = ?, description = ?,
		sprint_length_weeks = ?, team_velocity = ?, team_count = ?,
		buffer_percentage = ?, start_date = ?,
		artifact_ids = ?, feasibility_ids = ?, ideation_ids = ?, custom_items = ?,
		status = ?, progress_step = ?, progress_total = ?,
		progress_message = ?, error_message = ?,
		has_cycles = ?, cycle_items = ?,
		updated_at = ?
	WHERE id = ?
	`,
		session.Name, session.Description,
		session.Capacity.SprintLengthWeeks, session.Capacity.TeamVelocity,
		session.Capacity.TeamCount, session.Capacity.BufferPercentage,
		formatTime(session.Capacity.StartDate),
		marshalStrings(session.ArtifactIDs), marshalStrings(session.FeasibilityIDs),
		marshalStrings(session.IdeationIDs), string(customJSON),
		string(session.Status), session.ProgressStep, session.ProgressTotal,
		session.ProgressMessage, session.ErrorMessage,
		boolToInt(session.HasCycles), marshalStrings(session.CycleItems),
		formatTime(session.UpdatedAt),
		session.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update session %s: %w", session.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("session %s: %w", session.ID, ErrNotFound)
	}
	return nil
}

// DeleteSession removes a session; children cascade through foreign keys.
// Idempotent.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete session %s: %w", id, err)
	}
	return nil
}

// TransitionStatus atomically moves a session from one of the given states
// into another. Returns false when the session was not in an allowed state,
// which is how concurrent pipeline starts lose the race.
func (s *Store) TransitionStatus(ctx context.Context, id string, from []types.SessionStatus, to types.SessionStatus) (bool, error) {
	placeholders := make([]string, len(from))
	args := []any{string(to), formatTime(time.Now().UTC()), id}
	for i, st := range from {
		placeholders[i] = "?"
		args = append(args, string(st))
	}

	res, err := s.db.ExecContext(ctx, `
	UPDATE sessions SET status = ?, updated_at = ?
	WHERE id = ? AND status IN (`+strings.Join(placeholders, ", ")+`)
	`, args...)
	if err != nil {
		return false, fmt.Errorf("failed to transition session %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read transition result: %w", err)
	}
	return n > 0, nil
}

// UpdateProgress advances the pipeline position visible to status polling.
func (s *Store) UpdateProgress(ctx context.Context, id string, status types.SessionStatus, step, total int, message string) error {
	_, err := s.db.ExecContext(ctx, `
	UPDATE sessions SET status = ?, progress_step = ?, progress_total = ?,
		progress_message = ?, error_message = '', updated_at = ?
	WHERE id = ?
	`, string(status), step, total, message, formatTime(time.Now().UTC()), id)
	if err != nil {
		return fmt.Errorf("failed to update progress for %s: %w", id, err)
	}
	return nil
}

// SetFailed marks the session failed with a human-readable message, leaving
// completed stage outputs intact for inspection.
func (s *Store) SetFailed(ctx context.Context, id, message string) error {
	_, err := s.db.ExecContext(ctx, `
	UPDATE sessions SET status = ?, error_message = ?, updated_at = ? WHERE id = ?
	`, string(types.StatusFailed), message, formatTime(time.Now().UTC()), id)
	if err != nil {
		return fmt.Errorf("failed to mark session %s failed: %w", id, err)
	}
	return nil
}

// SetGraphFlags records the resolver's cycle findings on the session.
func (s *Store) SetGraphFlags(ctx context.Context, id string, hasCycles bool, cycleItems []string) error {
	_, err := s.db.ExecContext(ctx, `
	UPDATE sessions SET has_cycles = ?, cycle_items = ?, updated_at = ? WHERE id = ?
	`, boolToInt(hasCycles), marshalStrings(cycleItems), formatTime(time.Now().UTC()), id)
	if err != nil {
		return fmt.Errorf("failed to set graph flags for %s: %w", id, err)
	}
	return nil
}

// RefreshCounters recomputes the session's aggregate counters from its
// children. TotalSprints comes from the furthest segment end.
func (s *Store) RefreshCounters(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `
	UPDATE sessions SET
		total_items = (SELECT COUNT(*) FROM items WHERE session_id = ? AND is_excluded = 0),
		total_sprints = COALESCE((
			SELECT MAX(seg.start_sprint + seg.sprint_count - 1)
			FROM segments seg JOIN items i ON i.id = seg.item_id
			WHERE i.session_id = ?), 0),
		total_themes = (SELECT COUNT(*) FROM themes WHERE session_id = ?),
		total_milestones = (SELECT COUNT(*) FROM milestones WHERE session_id = ?),
		total_dependencies = (SELECT COUNT(*) FROM dependencies WHERE session_id = ?),
		updated_at = ?
	WHERE id = ?
	`, id, id, id, id, id, formatTime(time.Now().UTC()), id)
	if err != nil {
		return fmt.Errorf("failed to refresh counters for %s: %w", id, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*types.RoadmapSession, error) {
	var session types.RoadmapSession
	var description, progressMessage, errorMessage sql.NullString
	var startDate, createdAt, updatedAt string
	var artifactIDs, feasibilityIDs, ideationIDs, customItems, cycleItems sql.NullString
	var hasCycles int
	var status string

	err := row.Scan(
		&session.ID, &session.Name, &description,
		&session.Capacity.SprintLengthWeeks, &session.Capacity.TeamVelocity,
		&session.Capacity.TeamCount, &session.Capacity.BufferPercentage, &startDate,
		&artifactIDs, &feasibilityIDs, &ideationIDs, &customItems,
		&status, &session.ProgressStep, &session.ProgressTotal,
		&progressMessage, &errorMessage,
		&hasCycles, &cycleItems,
		&session.TotalItems, &session.TotalSprints, &session.TotalThemes,
		&session.TotalMilestones, &session.TotalDependencies,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	session.Description = description.String
	session.ProgressMessage = progressMessage.String
	session.ErrorMessage = errorMessage.String
	session.Status = types.SessionStatus(status)
	session.Capacity.StartDate = parseTime(startDate)
	session.CreatedAt = parseTime(createdAt)
	session.UpdatedAt = parseTime(updatedAt)
	session.HasCycles = hasCycles != 0
	session.ArtifactIDs = unmarshalStrings(artifactIDs)
	session.FeasibilityIDs = unmarshalStrings(feasibilityIDs)
	session.IdeationIDs = unmarshalStrings(ideationIDs)
	session.CycleItems = unmarshalStrings(cycleItems)

	if customItems.Valid && customItems.String != "" && customItems.String != "null" {
		if err := json.Unmarshal([]byte(customItems.String), &session.CustomItems); err != nil {
			return nil, fmt.Errorf("failed to unmarshal custom items: %w", err)
		}
	}
	if len(session.CustomItems) == 0 {
		session.CustomItems = nil
	}
	return &session, nil
}
