package app

import (
	"context"
	"strings"

	"prodplan/api/internal/store"
	"prodplan/api/internal/util"
)

type QcErrorInput struct {
	HeadingID   *int64 `json:"headingId"`
	Description string `json:"description"`
}

// CreateQcError records a standalone defect report. When the report names a
// heading, the heading must belong to the account.
func (s *Service) CreateQcError(ctx context.Context, accountID int64, input QcErrorInput, actor string) (store.QcErrorReport, error) {
	if strings.TrimSpace(input.Description) == "" {
		return store.QcErrorReport{}, validationError("description is required", nil)
	}
	editor := actorPtr(actor)

	var report store.QcErrorReport
	err := s.store.InTx(ctx, func(tx store.Store) error {
		if input.HeadingID != nil {
			missing, err := tx.MissingHeadingIDs(ctx, accountID, []int64{*input.HeadingID})
			if err != nil {
				return err
			}
			if len(missing) > 0 {
				return errHeadingOwnership(missing)
			}
		}
		report = store.QcErrorReport{
			ID:                  util.NewID("qcerr"),
			AccountID:           accountID,
			HeadingID:           input.HeadingID,
			Description:         input.Description,
			RectificationStatus: store.RectificationPending,
			ValidationStatus:    store.ValidationPending,
			ReportedBy:          editor,
		}
		if err := tx.InsertQcErrorReport(ctx, report); err != nil {
			return err
		}
		return s.logActivity(ctx, tx, store.ActivityEntry{
			AccountID:  accountID,
			Action:     "qc_error_reported",
			Details:    input.Description,
			Actor:      editor,
			EntityType: "qc_error",
			EntityID:   report.ID,
		})
	})
	if err != nil {
		return store.QcErrorReport{}, err
	}
	return report, nil
}

// ListQcErrors returns the account's defect reports, newest first.
func (s *Service) ListQcErrors(ctx context.Context, accountID int64) ([]store.QcErrorReport, error) {
	return s.store.ListQcErrorReports(ctx, accountID)
}

// SetQcErrorStatus moves a report's rectification and validation pair. The
// pair is independent of the PDM status ledger.
func (s *Service) SetQcErrorStatus(ctx context.Context, accountID int64, id, rectification, validation string, actor string) (store.QcErrorReport, error) {
	switch rectification {
	case store.RectificationPending, store.RectificationDone, store.RectificationNotNeeded:
	default:
		return store.QcErrorReport{}, validationError("invalid rectification status", map[string]any{"rectificationStatus": rectification})
	}
	switch validation {
	case store.ValidationPending, store.ValidationDone:
	default:
		return store.QcErrorReport{}, validationError("invalid validation status", map[string]any{"validationStatus": validation})
	}
	editor := actorPtr(actor)

	var report store.QcErrorReport
	err := s.store.InTx(ctx, func(tx store.Store) error {
		updated, err := tx.UpdateQcErrorStatus(ctx, accountID, id, rectification, validation)
		if err != nil {
			return err
		}
		if !updated {
			return errNotFound("qc error")
		}
		report, err = tx.GetQcErrorReport(ctx, accountID, id)
		if err != nil {
			return err
		}
		return s.logActivity(ctx, tx, store.ActivityEntry{
			AccountID:  accountID,
			Action:     "qc_error_status_changed",
			Details:    rectification + " / " + validation,
			Actor:      editor,
			EntityType: "qc_error",
			EntityID:   id,
		})
	})
	if err != nil {
		return store.QcErrorReport{}, err
	}
	return report, nil
}
