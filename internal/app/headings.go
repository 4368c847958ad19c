package app

import (
	"context"
	"database/sql"
	"errors"

	"prodplan/api/internal/rows"
	"prodplan/api/internal/store"
)

// HeadingEditInput carries only the fields the caller wants changed. Families
// arrive pre-tokenized and are trimmed and deduped, never re-split.
type HeadingEditInput struct {
	Name         *string  `json:"name"`
	Families     []string `json:"families"`
	ReferenceURL *string  `json:"referenceUrl"`
	Definition   *string  `json:"definition"`
	Aliases      *string  `json:"aliases"`
	Category     *string  `json:"category"`
	Companies    *string  `json:"companies"`
	RankPoints   *string  `json:"rankPoints"`
	HeadingType  *string  `json:"headingType"`
	Status       *string  `json:"status"`
	Stage        *string  `json:"stage"`
}

// ListHeadings returns the account's headings with their families.
func (s *Service) ListHeadings(ctx context.Context, accountID int64) ([]store.Heading, error) {
	return s.store.ListHeadings(ctx, accountID)
}

// GetHeading loads one heading in account scope.
func (s *Service) GetHeading(ctx context.Context, accountID, headingID int64) (store.Heading, error) {
	h, err := s.store.GetHeading(ctx, accountID, headingID)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Heading{}, errNotFound("heading")
	}
	if err != nil {
		return store.Heading{}, err
	}
	return h, nil
}

// EditHeading applies a direct partial edit outside the import path. Unlike
// reconciliation, the caller may move status and workflow stage explicitly.
func (s *Service) EditHeading(ctx context.Context, accountID, headingID int64, input HeadingEditInput, actor string) (store.Heading, error) {
	if input.Status != nil {
		switch *input.Status {
		case store.StatusExisting, store.StatusRanked, store.StatusAdditional:
		default:
			return store.Heading{}, validationError("invalid status", map[string]any{"status": *input.Status})
		}
	}
	if input.Stage != nil {
		switch *input.Stage {
		case store.StageImported, store.StageSupported, store.StageAssigned:
		default:
			return store.Heading{}, validationError("invalid workflow stage", map[string]any{"stage": *input.Stage})
		}
	}
	editor := actorPtr(actor)

	var updated store.Heading
	err := s.store.InTx(ctx, func(tx store.Store) error {
		h, err := tx.GetHeading(ctx, accountID, headingID)
		if errors.Is(err, sql.ErrNoRows) {
			return errNotFound("heading")
		}
		if err != nil {
			return err
		}

		if input.Name != nil {
			h.Name = *input.Name
		}
		if input.ReferenceURL != nil {
			h.ReferenceURL = *input.ReferenceURL
		}
		if input.Definition != nil {
			h.Definition = *input.Definition
		}
		if input.Aliases != nil {
			h.Aliases = *input.Aliases
		}
		if input.Category != nil {
			h.Category = *input.Category
		}
		if input.Companies != nil {
			h.Companies = *input.Companies
		}
		if input.RankPoints != nil {
			h.RankPoints = *input.RankPoints
		}
		if input.HeadingType != nil {
			h.HeadingType = *input.HeadingType
		}
		if input.Status != nil {
			h.Status = *input.Status
		}
		if input.Stage != nil {
			h.WorkflowStage = *input.Stage
		}
		h.UpdatedBy = editor
		if err := tx.UpdateHeading(ctx, h); err != nil {
			return err
		}

		if input.Families != nil {
			families := rows.CleanFamilies(input.Families)
			if err := tx.ReplaceHeadingFamilies(ctx, headingID, families); err != nil {
				return err
			}
			h.Families = families
		}

		updated = h
		return s.logActivity(ctx, tx, store.ActivityEntry{
			AccountID:  accountID,
			Action:     "heading_edited",
			Details:    h.Name,
			Actor:      editor,
			EntityType: "heading",
			EntityID:   fmt64(headingID),
		})
	})
	if err != nil {
		return store.Heading{}, err
	}

	s.indexHeading(updated)
	return updated, nil
}

// DeleteHeading removes a heading that no PDM in the account references.
func (s *Service) DeleteHeading(ctx context.Context, accountID, headingID int64, actor string) error {
	editor := actorPtr(actor)
	err := s.store.InTx(ctx, func(tx store.Store) error {
		n, err := tx.CountPdmsReferencingHeading(ctx, accountID, headingID, 0)
		if err != nil {
			return err
		}
		if n > 0 {
			return validationError("heading is referenced by a PDM", map[string]any{"headingId": headingID, "pdmCount": n})
		}
		deleted, err := tx.DeleteHeading(ctx, accountID, headingID)
		if err != nil {
			return err
		}
		if !deleted {
			return errNotFound("heading")
		}
		return s.logActivity(ctx, tx, store.ActivityEntry{
			AccountID:  accountID,
			Action:     "heading_deleted",
			Actor:      editor,
			EntityType: "heading",
			EntityID:   fmt64(headingID),
		})
	})
	if err != nil {
		return err
	}

	s.dropHeadingFromIndex(headingID)
	return nil
}

// ListImportBatches returns the account's import batches, newest first.
func (s *Service) ListImportBatches(ctx context.Context, accountID int64) ([]store.ImportBatch, error) {
	return s.store.ListImportBatches(ctx, accountID)
}

// ImportBatchItems returns the per-heading actions of one batch.
func (s *Service) ImportBatchItems(ctx context.Context, accountID int64, batchID string) ([]store.ImportBatchItem, error) {
	batches, err := s.store.ListImportBatches(ctx, accountID)
	if err != nil {
		return nil, err
	}
	found := false
	for _, b := range batches {
		if b.ID == batchID {
			found = true
			break
		}
	}
	if !found {
		return nil, errNotFound("import batch")
	}
	return s.store.ListImportBatchItems(ctx, batchID)
}
