package app

import (
	"context"
	"fmt"
	"strings"

	"prodplan/api/internal/rows"
	"prodplan/api/internal/store"
	"prodplan/api/internal/util"
)

type SnapshotInput struct {
	Cells    [][]string `json:"cells"`
	FileName string     `json:"fileName"`
}

type SnapshotResult struct {
	SnapshotID string `json:"snapshotId"`
	ItemCount  int    `json:"itemCount"`
	Matched    int    `json:"matched"`
	FellOut    int64  `json:"fellOut"`
}

// UploadSnapshot ingests a baseline spreadsheet: it becomes the single active
// snapshot for the account and re-derives every heading's baseline status.
// Matched headings become ranked or existing depending on rank-points data;
// everything the snapshot omits falls out to additional.
func (s *Service) UploadSnapshot(ctx context.Context, accountID int64, input SnapshotInput, actor string) (SnapshotResult, error) {
	parsed := rows.Parse(input.Cells)
	valid := make([]rows.HeadingRow, 0, len(parsed))
	for _, row := range parsed {
		if row.Name != "" {
			valid = append(valid, row)
		}
	}
	if len(valid) == 0 {
		return SnapshotResult{}, errNoValidRows()
	}

	editor := actorPtr(actor)
	var result SnapshotResult
	var indexed []store.Heading

	err := s.store.InTx(ctx, func(tx store.Store) error {
		if err := tx.DeactivateSnapshots(ctx, accountID); err != nil {
			return err
		}

		snapshotID := util.NewID("snap")
		if err := tx.InsertSnapshot(ctx, store.Snapshot{
			ID:         snapshotID,
			AccountID:  accountID,
			FileName:   input.FileName,
			IsActive:   true,
			UploadedBy: editor,
		}); err != nil {
			return err
		}

		matchedIDs := make([]int64, 0, len(valid))
		matchedSet := make(map[int64]struct{})
		items := make([]store.SnapshotItem, 0, len(valid))

		for i, row := range valid {
			heading, err := matchHeading(ctx, tx, accountID, row)
			if err != nil {
				return err
			}

			item := store.SnapshotItem{
				SnapshotID: snapshotID,
				Name:       row.Name,
				RankPoints: row.RankPoints,
				Position:   i,
			}
			if heading != nil {
				headingID := heading.ID
				item.HeadingID = &headingID

				status := store.StatusExisting
				if strings.TrimSpace(row.RankPoints) != "" {
					status = store.StatusRanked
				}
				if err := tx.SetHeadingStatus(ctx, heading.ID, status, editor); err != nil {
					return err
				}
				heading.Status = status
				if _, seen := matchedSet[heading.ID]; !seen {
					matchedSet[heading.ID] = struct{}{}
					matchedIDs = append(matchedIDs, heading.ID)
				}
				indexed = append(indexed, *heading)
			}
			items = append(items, item)
		}

		if err := tx.InsertSnapshotItems(ctx, items); err != nil {
			return err
		}

		fellOut, err := tx.MarkHeadingsAdditionalExcept(ctx, accountID, matchedIDs, editor)
		if err != nil {
			return err
		}
		if s.search != nil {
			for _, id := range fellOut {
				h, err := tx.GetHeading(ctx, accountID, id)
				if err != nil {
					return err
				}
				indexed = append(indexed, h)
			}
		}

		result = SnapshotResult{
			SnapshotID: snapshotID,
			ItemCount:  len(items),
			Matched:    len(matchedIDs),
			FellOut:    int64(len(fellOut)),
		}
		return s.logActivity(ctx, tx, store.ActivityEntry{
			AccountID:  accountID,
			Action:     "snapshot_uploaded",
			Details:    fmt.Sprintf("%d rows from %s, %d matched", len(items), input.FileName, len(matchedIDs)),
			Actor:      editor,
			EntityType: "snapshot",
			EntityID:   result.SnapshotID,
		})
	})
	if err != nil {
		return SnapshotResult{}, err
	}

	for _, h := range indexed {
		s.indexHeading(h)
	}
	s.publishActivity(ctx, store.ActivityEntry{
		AccountID:  accountID,
		Action:     "snapshot_uploaded",
		Details:    fmt.Sprintf("%d rows from %s, %d matched", result.ItemCount, input.FileName, result.Matched),
		Actor:      editor,
		EntityType: "snapshot",
		EntityID:   result.SnapshotID,
	})
	return result, nil
}

// ListSnapshots returns the account's snapshots, newest first.
func (s *Service) ListSnapshots(ctx context.Context, accountID int64) ([]store.Snapshot, error) {
	return s.store.ListSnapshots(ctx, accountID)
}

// SnapshotItems returns the row-level items of one snapshot.
func (s *Service) SnapshotItems(ctx context.Context, accountID int64, snapshotID string) ([]store.SnapshotItem, error) {
	snapshots, err := s.store.ListSnapshots(ctx, accountID)
	if err != nil {
		return nil, err
	}
	found := false
	for _, snap := range snapshots {
		if snap.ID == snapshotID {
			found = true
			break
		}
	}
	if !found {
		return nil, errNotFound("snapshot")
	}
	return s.store.ListSnapshotItems(ctx, snapshotID)
}
