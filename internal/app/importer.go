package app

import (
	"context"
	"fmt"
	"strings"

	"prodplan/api/internal/rows"
	"prodplan/api/internal/store"
	"prodplan/api/internal/util"
)

type ImportInput struct {
	Cells         [][]string `json:"cells"`
	ContextFamily string     `json:"contextFamily"`
	FileName      string     `json:"fileName"`
}

type ImportResult struct {
	BatchID  string  `json:"batchId"`
	RowCount int     `json:"rowCount"`
	Created  []int64 `json:"created"`
	Updated  []int64 `json:"updated"`
}

// ImportHeadings reconciles a production spreadsheet against the account's
// headings: matched rows overwrite in place, unmatched rows become new
// headings, and the whole run is recorded as one immutable import batch.
func (s *Service) ImportHeadings(ctx context.Context, accountID int64, input ImportInput, actor string) (ImportResult, error) {
	parsed := rows.Parse(input.Cells)
	usable := make([]rows.HeadingRow, 0, len(parsed))
	for _, row := range parsed {
		if row.Name != "" {
			usable = append(usable, row)
		}
	}
	if len(usable) == 0 {
		return ImportResult{}, errNoUsableRows()
	}

	editor := actorPtr(actor)
	contextFamily := strings.TrimSpace(input.ContextFamily)

	var result ImportResult
	var indexed []store.Heading
	run := func() error {
		result = ImportResult{}
		indexed = indexed[:0]
		return s.store.InTx(ctx, func(tx store.Store) error {
			batchID := util.NewID("batch")
			touched := make(map[int64]string) // heading id -> action, first wins

			for _, row := range usable {
				families := rows.NormalizeFamilies(row.Families, contextFamily)
				heading, err := matchHeading(ctx, tx, accountID, row)
				if err != nil {
					return err
				}

				if heading != nil {
					applyRow(heading, row, editor)
					if err := tx.UpdateHeading(ctx, *heading); err != nil {
						return err
					}
					if err := tx.ReplaceHeadingFamilies(ctx, heading.ID, families); err != nil {
						return err
					}
					heading.Families = families
					if _, seen := touched[heading.ID]; !seen {
						touched[heading.ID] = "updated"
						result.Updated = append(result.Updated, heading.ID)
					}
					indexed = append(indexed, *heading)
					continue
				}

				nextID, err := tx.NextHeadingID(ctx)
				if err != nil {
					return err
				}
				statusSource := row.Status
				if statusSource == "" {
					statusSource = row.HeadingType
				}
				created := store.Heading{
					ID:              nextID,
					AccountID:       accountID,
					Name:            row.Name,
					ReferenceURL:    row.ReferenceURL,
					WorkflowStage:   store.StageImported,
					Status:          rows.NormalizeStatus(statusSource, store.StatusAdditional),
					Definition:      row.Definition,
					Aliases:         row.Aliases,
					Category:        row.Category,
					Companies:       row.Companies,
					RankPoints:      row.RankPoints,
					HeadingType:     row.HeadingType,
					SourceStatus:    row.SourceStatus,
					SourceTimestamp: row.SourceTimestamp,
					UpdatedBy:       editor,
				}
				if err := tx.InsertHeading(ctx, created); err != nil {
					return err
				}
				if err := tx.ReplaceHeadingFamilies(ctx, created.ID, families); err != nil {
					return err
				}
				created.Families = families
				touched[created.ID] = "created"
				result.Created = append(result.Created, created.ID)
				indexed = append(indexed, created)
			}

			batch := store.ImportBatch{
				ID:            batchID,
				AccountID:     accountID,
				ContextFamily: contextFamily,
				FileName:      input.FileName,
				RowCount:      len(usable),
				CreatedBy:     editor,
			}
			if err := tx.InsertImportBatch(ctx, batch); err != nil {
				return err
			}
			items := make([]store.ImportBatchItem, 0, len(touched))
			for headingID, action := range touched {
				items = append(items, store.ImportBatchItem{BatchID: batchID, HeadingID: headingID, Action: action})
			}
			if err := tx.InsertImportBatchItems(ctx, items); err != nil {
				return err
			}

			result.BatchID = batchID
			result.RowCount = len(usable)
			return s.logActivity(ctx, tx, store.ActivityEntry{
				AccountID:  accountID,
				Action:     "headings_imported",
				Details:    fmt.Sprintf("%d rows from %s", len(usable), input.FileName),
				Actor:      editor,
				EntityType: "import_batch",
				EntityID:   batchID,
			})
		})
	}

	if err := s.withIdentifierRetry(run); err != nil {
		return ImportResult{}, err
	}

	for _, h := range indexed {
		s.indexHeading(h)
	}
	s.publishActivity(ctx, store.ActivityEntry{
		AccountID:  accountID,
		Action:     "headings_imported",
		Details:    fmt.Sprintf("%d rows from %s", len(usable), input.FileName),
		Actor:      editor,
		EntityType: "import_batch",
		EntityID:   result.BatchID,
	})
	return result, nil
}

// matchHeading resolves a row to an existing heading inside the account: by id
// first, then by case-insensitive name. An id owned by a different account is
// treated as absent and falls through to name matching.
func matchHeading(ctx context.Context, tx store.Store, accountID int64, row rows.HeadingRow) (*store.Heading, error) {
	if row.ID != nil {
		heading, err := tx.FindHeadingByID(ctx, accountID, *row.ID)
		if err != nil {
			return nil, err
		}
		if heading != nil {
			return heading, nil
		}
	}
	return tx.FindHeadingByName(ctx, accountID, row.Name)
}

// applyRow overwrites the heading's mutable fields from the row. Workflow
// stage and baseline status are untouched: those belong to the snapshot and
// assignment passes.
func applyRow(h *store.Heading, row rows.HeadingRow, editor *string) {
	h.Name = row.Name
	h.ReferenceURL = row.ReferenceURL
	h.Definition = row.Definition
	h.Aliases = row.Aliases
	h.Category = row.Category
	h.Companies = row.Companies
	h.RankPoints = row.RankPoints
	h.HeadingType = row.HeadingType
	h.SourceStatus = row.SourceStatus
	h.SourceTimestamp = row.SourceTimestamp
	h.UpdatedBy = editor
}
