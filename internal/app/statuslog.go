package app

import (
	"context"

	"prodplan/api/internal/store"
)

// Status event types. The set is fixed; anything else is a programming error.
const (
	EventCreated              = "created"
	EventUpdated              = "updated"
	EventDeleted              = "deleted"
	EventQcFeedbackSubmitted  = "qc_feedback_submitted"
	EventQcStatusChanged      = "qc_status_changed"
	EventRectificationChanged = "rectification_status_changed"
	EventValidationChanged    = "validation_status_changed"
	EventPublishedChanged     = "published_status_changed"
)

var allowedEventTypes = map[string]struct{}{
	EventCreated:              {},
	EventUpdated:              {},
	EventDeleted:              {},
	EventQcFeedbackSubmitted:  {},
	EventQcStatusChanged:      {},
	EventRectificationChanged: {},
	EventValidationChanged:    {},
	EventPublishedChanged:     {},
}

// recordStatusEvent appends one row to the PDM status ledger. The ledger has
// no foreign key to pdms: rows are keyed by the PDM's (possibly former) id and
// survive its deletion.
func recordStatusEvent(ctx context.Context, tx store.Store, accountID, pdmID int64, eventType string, from, to *store.PdmState, actor *string) error {
	if _, ok := allowedEventTypes[eventType]; !ok {
		return errUnsupportedEventType(eventType)
	}
	return tx.InsertStatusEvent(ctx, store.PdmStatusEvent{
		PdmID:     pdmID,
		AccountID: accountID,
		EventType: eventType,
		From:      from,
		To:        to,
		Actor:     actor,
	})
}

// PdmStatusEvents returns the full ledger for a PDM id, including ids whose
// PDM has since been deleted.
func (s *Service) PdmStatusEvents(ctx context.Context, accountID, pdmID int64) ([]store.PdmStatusEvent, error) {
	return s.store.ListStatusEvents(ctx, accountID, pdmID)
}
