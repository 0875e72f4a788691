package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/planora/roadmap/internal/types"
)

const itemColumns = `id, session_id, source_type, source_artifact_id,
	title, description, item_type, priority, effort_points, risk_level,
	value_score, sequence_order, theme_id, status,
	is_excluded, is_manually_positioned, created_at, updated_at`

// InsertItems writes a batch of items in one transaction.
func (s *Store) InsertItems(ctx context.Context, items []*types.RoadmapItem) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO items (`+itemColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare item insert: %w", err)
		}
		defer stmt.Close()

		for _, it := range items {
			it.SetDefaults()
			if err := it.Validate(); err != nil {
				return fmt.Errorf("invalid item %s: %w", it.ID, err)
			}
			_, err := stmt.ExecContext(ctx,
				it.ID, it.SessionID, string(it.SourceType), it.SourceArtifactID,
				it.Title, it.Description, string(it.ItemType), it.Priority,
				it.EffortPoints, string(it.RiskLevel), it.ValueScore,
				it.SequenceOrder, it.ThemeID, string(it.Status),
				boolToInt(it.IsExcluded), boolToInt(it.IsManuallyPositioned),
				formatTime(it.CreatedAt), formatTime(it.UpdatedAt),
			)
			if err != nil {
				return fmt.Errorf("failed to insert item %s: %w", it.ID, err)
			}
		}
		return nil
	})
}

// GetItem retrieves a single item by ID.
func (s *Store) GetItem(ctx context.Context, id string) (*types.RoadmapItem, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM items WHERE id = ?`, id)
	item, err := scanItem(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("item %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get item %s: %w", id, err)
	}
	return item, nil
}

// ListItems retrieves a session's items in resolver sequence order.
func (s *Store) ListItems(ctx context.Context, sessionID string) ([]*types.RoadmapItem, error) {
	rows, err := s.db.QueryContext(ctx, `
	SELECT `+itemColumns+` FROM items
	WHERE session_id = ?
	ORDER BY sequence_order, created_at, id
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}
	defer rows.Close()

	var items []*types.RoadmapItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// UpdateItem rewrites all mutable item fields.
func (s *Store) UpdateItem(ctx context.Context, item *types.RoadmapItem) error {
	if err := item.Validate(); err != nil {
		return fmt.Errorf("invalid item: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
	UPDATE items SET
		title = ?, description = ?, item_type = ?, priority = ?,
		effort_points = ?, risk_level = ?, value_score = ?,
		sequence_order = ?, theme_id = ?, status = ?,
		is_excluded = ?, is_manually_positioned = ?, updated_at = ?
	WHERE id = ?
	`,
		item.Title, item.Description, string(item.ItemType), item.Priority,
		item.EffortPoints, string(item.RiskLevel), item.ValueScore,
		item.SequenceOrder, item.ThemeID, string(item.Status),
		boolToInt(item.IsExcluded), boolToInt(item.IsManuallyPositioned),
		formatTime(item.UpdatedAt), item.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update item %s: %w", item.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("item %s: %w", item.ID, ErrNotFound)
	}
	return nil
}

// UpdateItemSequence persists resolver-assigned sequence order for a batch
// of items in one transaction.
func (s *Store) UpdateItemSequence(ctx context.Context, items []*types.RoadmapItem) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, it := range items {
			if _, err := tx.ExecContext(ctx, `
			UPDATE items SET sequence_order = ?, updated_at = ? WHERE id = ?
			`, it.SequenceOrder, formatTime(it.UpdatedAt), it.ID); err != nil {
				return fmt.Errorf("failed to update sequence for %s: %w", it.ID, err)
			}
		}
		return nil
	})
}

// UpdateItemThemes persists clusterer-assigned theme IDs for a batch of
// items in one transaction.
func (s *Store) UpdateItemThemes(ctx context.Context, items []*types.RoadmapItem) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, it := range items {
			if _, err := tx.ExecContext(ctx, `
			UPDATE items SET theme_id = ?, updated_at = ? WHERE id = ?
			`, it.ThemeID, formatTime(it.UpdatedAt), it.ID); err != nil {
				return fmt.Errorf("failed to update theme for %s: %w", it.ID, err)
			}
		}
		return nil
	})
}

// DeleteNonPinnedItems clears a session's items ahead of a retry, keeping
// manually positioned ones so their placements survive the re-run. Returns
// the surviving items.
func (s *Store) DeleteNonPinnedItems(ctx context.Context, sessionID string) ([]*types.RoadmapItem, error) {
	if _, err := s.db.ExecContext(ctx, `
	DELETE FROM items WHERE session_id = ? AND is_manually_positioned = 0
	`, sessionID); err != nil {
		return nil, fmt.Errorf("failed to delete items for %s: %w", sessionID, err)
	}
	return s.ListItems(ctx, sessionID)
}

func scanItem(row rowScanner) (*types.RoadmapItem, error) {
	var item types.RoadmapItem
	var sourceArtifactID, description, themeID sql.NullString
	var sourceType, itemType, riskLevel, status string
	var valueScore sql.NullFloat64
	var isExcluded, isManual int
	var createdAt, updatedAt string

	err := row.Scan(
		&item.ID, &item.SessionID, &sourceType, &sourceArtifactID,
		&item.Title, &description, &itemType, &item.Priority,
		&item.EffortPoints, &riskLevel, &valueScore,
		&item.SequenceOrder, &themeID, &status,
		&isExcluded, &isManual, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	item.SourceType = types.SourceType(sourceType)
	item.SourceArtifactID = sourceArtifactID.String
	item.Description = description.String
	item.ItemType = types.ItemType(itemType)
	item.RiskLevel = types.RiskLevel(riskLevel)
	item.ThemeID = themeID.String
	item.Status = types.ItemStatus(status)
	item.IsExcluded = isExcluded != 0
	item.IsManuallyPositioned = isManual != 0
	item.CreatedAt = parseTime(createdAt)
	item.UpdatedAt = parseTime(updatedAt)
	if valueScore.Valid {
		v := valueScore.Float64
		item.ValueScore = &v
	}
	return &item, nil
}
