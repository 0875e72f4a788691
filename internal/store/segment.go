package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/planora/roadmap/internal/types"
)

const segmentColumns = `id, item_id, assigned_team, start_sprint, sprint_count,
	effort_points, sequence_order, row_index, status, is_manually_positioned,
	label, color_override, version, created_at, updated_at`

// InsertSegments writes a batch of segments in one transaction.
func (s *Store) InsertSegments(ctx context.Context, segments []*types.RoadmapItemSegment) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO segments (`+segmentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare segment insert: %w", err)
		}
		defer stmt.Close()

		for _, seg := range segments {
			seg.SetDefaults()
			if err := seg.Validate(); err != nil {
				return fmt.Errorf("invalid segment %s: %w", seg.ID, err)
			}
			if _, err := stmt.ExecContext(ctx, segmentArgs(seg)...); err != nil {
				return fmt.Errorf("failed to insert segment %s: %w", seg.ID, err)
			}
		}
		return nil
	})
}

// GetSegment retrieves a single segment by ID.
func (s *Store) GetSegment(ctx context.Context, id string) (*types.RoadmapItemSegment, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+segmentColumns+` FROM segments WHERE id = ?`, id)
	seg, err := scanSegment(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("segment %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get segment %s: %w", id, err)
	}
	return seg, nil
}

// ListSegmentsBySession retrieves all segments of a session's items in
// timeline order.
func (s *Store) ListSegmentsBySession(ctx context.Context, sessionID string) ([]*types.RoadmapItemSegment, error) {
	rows, err := s.db.QueryContext(ctx, `
	SELECT `+prefixColumns("seg", segmentColumns)+`
	FROM segments seg JOIN items i ON i.id = seg.item_id
	WHERE i.session_id = ?
	ORDER BY seg.assigned_team, seg.start_sprint, seg.row_index, seg.id
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list segments: %w", err)
	}
	defer rows.Close()
	return collectSegments(rows)
}

// ListSegmentsByItem retrieves one item's segments in timeline order.
func (s *Store) ListSegmentsByItem(ctx context.Context, itemID string) ([]*types.RoadmapItemSegment, error) {
	rows, err := s.db.QueryContext(ctx, `
	SELECT `+segmentColumns+` FROM segments
	WHERE item_id = ?
	ORDER BY start_sprint, id
	`, itemID)
	if err != nil {
		return nil, fmt.Errorf("failed to list segments for item %s: %w", itemID, err)
	}
	defer rows.Close()
	return collectSegments(rows)
}

// UpdateSegment rewrites a segment's placement with an optimistic version
// check: the write only lands when the stored version matches the version
// the caller read, and the version increments on success.
func (s *Store) UpdateSegment(ctx context.Context, seg *types.RoadmapItemSegment) error {
	if err := seg.Validate(); err != nil {
		return fmt.Errorf("invalid segment: %w", err)
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return updateSegmentTx(ctx, tx, seg)
	})
}

// DeleteSegment removes a segment, honoring the version check.
func (s *Store) DeleteSegment(ctx context.Context, id string, version int) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return deleteSegmentTx(ctx, tx, id, version)
	})
}

// DeleteNonPinnedSegments clears a session's scheduler-produced segments
// ahead of a re-run. A segment survives when it is manually positioned
// itself or when its owning item is: editing one segment of a split item
// pins the item, and the item's sibling segments must carry forward with
// it or the item's effort would lose the unedited portions. Returns the
// survivors.
func (s *Store) DeleteNonPinnedSegments(ctx context.Context, sessionID string) ([]*types.RoadmapItemSegment, error) {
	if _, err := s.db.ExecContext(ctx, `
	DELETE FROM segments WHERE is_manually_positioned = 0 AND item_id IN (
		SELECT id FROM items WHERE session_id = ? AND is_manually_positioned = 0
	)
	`, sessionID); err != nil {
		return nil, fmt.Errorf("failed to delete segments for %s: %w", sessionID, err)
	}
	return s.ListSegmentsBySession(ctx, sessionID)
}

// SegmentChange is one mutation within an atomic batch.
type SegmentChange struct {
	// Create inserts a new segment when set.
	Create *types.RoadmapItemSegment
	// Update rewrites an existing segment when set. Its Version field must
	// match the stored row.
	Update *types.RoadmapItemSegment
	// DeleteID removes a segment when non-empty; DeleteVersion must match.
	DeleteID      string
	DeleteVersion int
}

// ApplySegmentChanges commits a batch of segment mutations in one
// transaction. Any version mismatch or constraint failure rolls the whole
// batch back.
func (s *Store) ApplySegmentChanges(ctx context.Context, changes []SegmentChange) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, ch := range changes {
			switch {
			case ch.Create != nil:
				ch.Create.SetDefaults()
				if err := ch.Create.Validate(); err != nil {
					return fmt.Errorf("invalid segment %s: %w", ch.Create.ID, err)
				}
				if _, err := tx.ExecContext(ctx, `
				INSERT INTO segments (`+segmentColumns+`)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
				`, segmentArgs(ch.Create)...); err != nil {
					return fmt.Errorf("failed to insert segment %s: %w", ch.Create.ID, err)
				}
			case ch.Update != nil:
				if err := ch.Update.Validate(); err != nil {
					return fmt.Errorf("invalid segment %s: %w", ch.Update.ID, err)
				}
				if err := updateSegmentTx(ctx, tx, ch.Update); err != nil {
					return err
				}
			case ch.DeleteID != "":
				if err := deleteSegmentTx(ctx, tx, ch.DeleteID, ch.DeleteVersion); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

func updateSegmentTx(ctx context.Context, tx *sql.Tx, seg *types.RoadmapItemSegment) error {
	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx, `
	UPDATE segments SET
		assigned_team = ?, start_sprint = ?, sprint_count = ?, effort_points = ?,
		sequence_order = ?, row_index = ?, status = ?, is_manually_positioned = ?,
		label = ?, color_override = ?, version = version + 1, updated_at = ?
	WHERE id = ? AND version = ?
	`,
		seg.AssignedTeam, seg.StartSprint, seg.SprintCount, seg.EffortPoints,
		seg.SequenceOrder, seg.RowIndex, string(seg.Status),
		boolToInt(seg.IsManuallyPositioned), seg.Label, seg.ColorOverride,
		formatTime(now), seg.ID, seg.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update segment %s: %w", seg.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read update result: %w", err)
	}
	if n == 0 {
		var exists int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM segments WHERE id = ?`, seg.ID).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check segment %s: %w", seg.ID, err)
		}
		if exists == 0 {
			return fmt.Errorf("segment %s: %w", seg.ID, ErrNotFound)
		}
		return fmt.Errorf("segment %s: %w", seg.ID, ErrVersionConflict)
	}
	seg.Version++
	seg.UpdatedAt = now
	return nil
}

func deleteSegmentTx(ctx context.Context, tx *sql.Tx, id string, version int) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM segments WHERE id = ? AND version = ?`, id, version)
	if err != nil {
		return fmt.Errorf("failed to delete segment %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read delete result: %w", err)
	}
	if n == 0 {
		var exists int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM segments WHERE id = ?`, id).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check segment %s: %w", id, err)
		}
		if exists == 0 {
			return fmt.Errorf("segment %s: %w", id, ErrNotFound)
		}
		return fmt.Errorf("segment %s: %w", id, ErrVersionConflict)
	}
	return nil
}

func segmentArgs(seg *types.RoadmapItemSegment) []any {
	return []any{
		seg.ID, seg.ItemID, seg.AssignedTeam, seg.StartSprint, seg.SprintCount,
		seg.EffortPoints, seg.SequenceOrder, seg.RowIndex, string(seg.Status),
		boolToInt(seg.IsManuallyPositioned), seg.Label, seg.ColorOverride,
		seg.Version, formatTime(seg.CreatedAt), formatTime(seg.UpdatedAt),
	}
}

func collectSegments(rows *sql.Rows) ([]*types.RoadmapItemSegment, error) {
	var segments []*types.RoadmapItemSegment
	for rows.Next() {
		seg, err := scanSegment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan segment: %w", err)
		}
		segments = append(segments, seg)
	}
	return segments, rows.Err()
}

func scanSegment(row rowScanner) (*types.RoadmapItemSegment, error) {
	var seg types.RoadmapItemSegment
	var status string
	var label, colorOverride sql.NullString
	var isManual int
	var createdAt, updatedAt string

	err := row.Scan(
		&seg.ID, &seg.ItemID, &seg.AssignedTeam, &seg.StartSprint,
		&seg.SprintCount, &seg.EffortPoints, &seg.SequenceOrder, &seg.RowIndex,
		&status, &isManual, &label, &colorOverride, &seg.Version,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	seg.Status = types.ItemStatus(status)
	seg.IsManuallyPositioned = isManual != 0
	seg.Label = label.String
	seg.ColorOverride = colorOverride.String
	seg.CreatedAt = parseTime(createdAt)
	seg.UpdatedAt = parseTime(updatedAt)
	return &seg, nil
}
