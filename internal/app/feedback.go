package app

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"prodplan/api/internal/store"
)

type FeedbackInput struct {
	UpdatedDescription string   `json:"updatedDescription"`
	Comment            string   `json:"comment"`
	ErrorCategories    []string `json:"errorCategories"`
}

// normalizeCategories trims each category, drops empties, and dedupes while
// keeping first-seen order.
func normalizeCategories(raw []string) []string {
	out := make([]string, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for _, c := range raw {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}

// SubmitQcFeedback upserts the PDM's current feedback row, replaces its
// category set wholesale, and appends a history row for the submission even
// when nothing changed. The PDM's qc_status is re-derived from the categories:
// checked when the set is empty, error otherwise.
func (s *Service) SubmitQcFeedback(ctx context.Context, accountID, pdmID int64, input FeedbackInput, actor string) (store.QcFeedback, error) {
	editor := actorPtr(actor)
	categories := normalizeCategories(input.ErrorCategories)

	var saved store.QcFeedback
	err := s.store.InTx(ctx, func(tx store.Store) error {
		p, err := tx.GetPdm(ctx, accountID, pdmID)
		if errors.Is(err, sql.ErrNoRows) {
			return errNotFound("pdm")
		}
		if err != nil {
			return err
		}
		before := p.State()

		feedback := store.QcFeedback{
			PdmID:              pdmID,
			UpdatedDescription: input.UpdatedDescription,
			Comment:            input.Comment,
			Categories:         categories,
			SubmittedBy:        editor,
		}
		if err := tx.UpsertQcFeedback(ctx, feedback); err != nil {
			return err
		}
		if err := tx.ReplaceFeedbackErrors(ctx, pdmID, categories); err != nil {
			return err
		}
		if err := tx.InsertFeedbackHistory(ctx, store.FeedbackHistoryEntry{
			PdmID:              pdmID,
			UpdatedDescription: input.UpdatedDescription,
			Comment:            input.Comment,
			Categories:         categories,
			SubmittedBy:        editor,
		}); err != nil {
			return err
		}

		if len(categories) == 0 {
			p.QcStatus = store.QcChecked
		} else {
			p.QcStatus = store.QcError
		}
		submitted := strings.TrimSpace(input.UpdatedDescription)
		p.IsDescriptionUpdated = submitted != "" && submitted != strings.TrimSpace(p.Description)
		p.IsQcEdited = true
		if err := tx.UpdatePdm(ctx, p); err != nil {
			return err
		}

		after := p.State()
		if err := recordStatusEvent(ctx, tx, accountID, pdmID, EventQcFeedbackSubmitted, &before, &after, editor); err != nil {
			return err
		}
		saved = feedback
		return s.logActivity(ctx, tx, pdmActivity(accountID, "qc_feedback_submitted", pdmID, editor))
	})
	if err != nil {
		return store.QcFeedback{}, err
	}

	s.publishActivity(ctx, pdmActivity(accountID, "qc_feedback_submitted", pdmID, editor))
	return saved, nil
}

// QcFeedback returns the PDM's current feedback row, or NotFound when none has
// been submitted yet.
func (s *Service) QcFeedback(ctx context.Context, accountID, pdmID int64) (store.QcFeedback, error) {
	if _, err := s.store.GetPdm(ctx, accountID, pdmID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.QcFeedback{}, errNotFound("pdm")
		}
		return store.QcFeedback{}, err
	}
	feedback, err := s.store.GetQcFeedback(ctx, pdmID)
	if err != nil {
		return store.QcFeedback{}, err
	}
	if feedback == nil {
		return store.QcFeedback{}, errNotFound("feedback")
	}
	return *feedback, nil
}

// FeedbackHistory lists every submission for the PDM, oldest first.
func (s *Service) FeedbackHistory(ctx context.Context, accountID, pdmID int64) ([]store.FeedbackHistoryEntry, error) {
	if _, err := s.store.GetPdm(ctx, accountID, pdmID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errNotFound("pdm")
		}
		return nil, err
	}
	return s.store.ListFeedbackHistory(ctx, pdmID)
}
