package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"prodplan/api/internal/store"
)

// HeadingRef binds one heading to a PDM at a sort position. A zero SortOrder
// means "positional": the ref's index in the slice, 1-based.
type HeadingRef struct {
	HeadingID int64 `json:"headingId"`
	SortOrder int   `json:"sortOrder"`
}

type PdmCreateInput struct {
	ID           *int64       `json:"id"`
	IsCopro      bool         `json:"isCopro"`
	URL          string       `json:"url"`
	CompanyTypes []string     `json:"companyTypes"`
	Description  string       `json:"description"`
	Comment      string       `json:"comment"`
	WordCount    *int         `json:"wordCount"`
	Headings     []HeadingRef `json:"headings"`
}

// PdmUpdateInput carries only the fields the caller wants changed; nil fields
// are left alone. A nil Headings slice keeps the current assignment.
type PdmUpdateInput struct {
	IsCopro      *bool        `json:"isCopro"`
	URL          *string      `json:"url"`
	CompanyTypes []string     `json:"companyTypes"`
	Description  *string      `json:"description"`
	Comment      *string      `json:"comment"`
	WordCount    *int         `json:"wordCount"`
	Headings     []HeadingRef `json:"headings"`
}

// normalizeHeadingRefs fills positional sort orders and enforces the PDM
// heading invariant: 1 to 8 refs, unique sort positions in 1..8, no heading
// referenced twice.
func normalizeHeadingRefs(refs []HeadingRef) ([]HeadingRef, error) {
	if len(refs) < 1 || len(refs) > 8 {
		return nil, validationError("a PDM must reference between 1 and 8 headings", map[string]any{"count": len(refs)})
	}
	out := make([]HeadingRef, len(refs))
	copy(out, refs)
	allZero := true
	for _, r := range out {
		if r.SortOrder != 0 {
			allZero = false
			break
		}
	}
	if allZero {
		for i := range out {
			out[i].SortOrder = i + 1
		}
	}
	seenOrder := make(map[int]struct{}, len(out))
	seenHeading := make(map[int64]struct{}, len(out))
	for _, r := range out {
		if r.SortOrder < 1 || r.SortOrder > 8 {
			return nil, validationError("sort order must be between 1 and 8", map[string]any{"sortOrder": r.SortOrder})
		}
		if _, dup := seenOrder[r.SortOrder]; dup {
			return nil, validationError("duplicate sort order", map[string]any{"sortOrder": r.SortOrder})
		}
		seenOrder[r.SortOrder] = struct{}{}
		if _, dup := seenHeading[r.HeadingID]; dup {
			return nil, validationError("duplicate heading reference", map[string]any{"headingId": r.HeadingID})
		}
		seenHeading[r.HeadingID] = struct{}{}
	}
	return out, nil
}

func refHeadingIDs(refs []HeadingRef) []int64 {
	ids := make([]int64, len(refs))
	for i, r := range refs {
		ids[i] = r.HeadingID
	}
	return ids
}

// pdmDayRange returns today's id range [YYDDD000, YYDDD999] and the YYDDD
// label used in error messages.
func pdmDayRange(now time.Time) (lo, hi int64, day string) {
	yy := now.Year() % 100
	ddd := now.YearDay()
	lo = int64(yy*1000+ddd) * 1000
	return lo, lo + 999, fmt.Sprintf("%02d%03d", yy, ddd)
}

// allocatePdmID takes max(id in today's range)+1, or the range floor when the
// day is untouched. The pdms primary key is the backstop for concurrent
// allocations of the same id.
func allocatePdmID(ctx context.Context, tx store.Store, now time.Time) (int64, error) {
	lo, hi, day := pdmDayRange(now)
	max, ok, err := tx.MaxPdmIDInRange(ctx, lo, hi)
	if err != nil {
		return 0, err
	}
	if !ok {
		return lo, nil
	}
	if max >= hi {
		return 0, errRangeExhausted(day)
	}
	return max + 1, nil
}

func wordCount(description string) int {
	return len(strings.Fields(description))
}

// CreatePdm writes a new deliverable, binds its headings, moves every bound
// heading to the assigned stage, and opens the status ledger with a created
// event.
func (s *Service) CreatePdm(ctx context.Context, accountID int64, input PdmCreateInput, actor string) (store.Pdm, error) {
	refs, err := normalizeHeadingRefs(input.Headings)
	if err != nil {
		return store.Pdm{}, err
	}
	editor := actorPtr(actor)

	var created store.Pdm
	var bound []store.Heading
	op := func() error {
		bound = bound[:0]
		return s.store.InTx(ctx, func(tx store.Store) error {
			ids := refHeadingIDs(refs)
			missing, err := tx.MissingHeadingIDs(ctx, accountID, ids)
			if err != nil {
				return err
			}
			if len(missing) > 0 {
				return errHeadingOwnership(missing)
			}

			var id int64
			if input.ID != nil {
				id = *input.ID
			} else {
				id, err = allocatePdmID(ctx, tx, time.Now().UTC())
				if err != nil {
					return err
				}
			}

			words := wordCount(input.Description)
			if input.WordCount != nil {
				words = *input.WordCount
			}
			p := store.Pdm{
				ID:                  id,
				AccountID:           accountID,
				IsCopro:             input.IsCopro,
				URL:                 input.URL,
				CompanyTypes:        input.CompanyTypes,
				Description:         input.Description,
				Comment:             input.Comment,
				WordCount:           words,
				Uploaded:            false,
				QcStatus:            store.QcPending,
				RectificationStatus: store.RectificationPending,
				ValidationStatus:    store.ValidationPending,
				CreatedBy:           editor,
			}
			if err := tx.InsertPdm(ctx, p); err != nil {
				return err
			}

			joins := make([]store.PdmHeading, len(refs))
			for i, r := range refs {
				joins[i] = store.PdmHeading{PdmID: id, HeadingID: r.HeadingID, SortOrder: r.SortOrder}
			}
			if err := tx.ReplacePdmHeadings(ctx, id, joins); err != nil {
				return err
			}
			if err := tx.SetHeadingStageBulk(ctx, ids, store.StageAssigned, editor); err != nil {
				return err
			}
			for _, hid := range ids {
				h, err := tx.GetHeading(ctx, accountID, hid)
				if err != nil {
					return err
				}
				bound = append(bound, h)
			}

			after := p.State()
			if err := recordStatusEvent(ctx, tx, accountID, id, EventCreated, nil, &after, editor); err != nil {
				return err
			}
			created = p
			return s.logActivity(ctx, tx, pdmActivity(accountID, "pdm_created", id, editor))
		})
	}

	if input.ID != nil {
		if err := op(); err != nil {
			if store.IsUniqueViolation(err) {
				return store.Pdm{}, errIdentifierConflict()
			}
			return store.Pdm{}, err
		}
	} else if err := s.withIdentifierRetry(op); err != nil {
		return store.Pdm{}, err
	}

	for _, h := range bound {
		s.indexHeading(h)
	}
	s.publishActivity(ctx, pdmActivity(accountID, "pdm_created", created.ID, editor))
	return created, nil
}

// UpdatePdm applies a partial edit. When the heading set changes, newly bound
// headings move to assigned and removed ones revert to supported or imported,
// unless another PDM in the account still references them.
func (s *Service) UpdatePdm(ctx context.Context, accountID, pdmID int64, input PdmUpdateInput, actor string) (store.Pdm, error) {
	var refs []HeadingRef
	if input.Headings != nil {
		var err error
		refs, err = normalizeHeadingRefs(input.Headings)
		if err != nil {
			return store.Pdm{}, err
		}
	}
	editor := actorPtr(actor)

	var updated store.Pdm
	var touched []store.Heading
	err := s.store.InTx(ctx, func(tx store.Store) error {
		p, err := tx.GetPdm(ctx, accountID, pdmID)
		if errors.Is(err, sql.ErrNoRows) {
			return errNotFound("pdm")
		}
		if err != nil {
			return err
		}
		before := p.State()

		if input.IsCopro != nil {
			p.IsCopro = *input.IsCopro
		}
		if input.URL != nil {
			p.URL = *input.URL
		}
		if input.CompanyTypes != nil {
			p.CompanyTypes = input.CompanyTypes
		}
		if input.Description != nil {
			p.Description = *input.Description
			p.WordCount = wordCount(p.Description)
		}
		if input.Comment != nil {
			p.Comment = *input.Comment
		}
		if input.WordCount != nil {
			p.WordCount = *input.WordCount
		}
		if err := tx.UpdatePdm(ctx, p); err != nil {
			return err
		}

		if refs != nil {
			ids := refHeadingIDs(refs)
			missing, err := tx.MissingHeadingIDs(ctx, accountID, ids)
			if err != nil {
				return err
			}
			if len(missing) > 0 {
				return errHeadingOwnership(missing)
			}

			current, err := tx.ListPdmHeadings(ctx, pdmID)
			if err != nil {
				return err
			}
			keep := make(map[int64]struct{}, len(ids))
			for _, id := range ids {
				keep[id] = struct{}{}
			}
			var removed []int64
			for _, ph := range current {
				if _, ok := keep[ph.HeadingID]; !ok {
					removed = append(removed, ph.HeadingID)
				}
			}

			joins := make([]store.PdmHeading, len(refs))
			for i, r := range refs {
				joins[i] = store.PdmHeading{PdmID: pdmID, HeadingID: r.HeadingID, SortOrder: r.SortOrder}
			}
			if err := tx.ReplacePdmHeadings(ctx, pdmID, joins); err != nil {
				return err
			}
			if err := tx.SetHeadingStageBulk(ctx, ids, store.StageAssigned, editor); err != nil {
				return err
			}
			for _, hid := range ids {
				h, err := tx.GetHeading(ctx, accountID, hid)
				if err != nil {
					return err
				}
				touched = append(touched, h)
			}

			reverted, err := revertUnreferencedHeadings(ctx, tx, accountID, pdmID, removed, editor)
			if err != nil {
				return err
			}
			touched = append(touched, reverted...)
		}

		after := p.State()
		if err := recordStatusEvent(ctx, tx, accountID, pdmID, EventUpdated, &before, &after, editor); err != nil {
			return err
		}
		updated = p
		return s.logActivity(ctx, tx, pdmActivity(accountID, "pdm_updated", pdmID, editor))
	})
	if err != nil {
		return store.Pdm{}, err
	}

	for _, h := range touched {
		s.indexHeading(h)
	}
	s.publishActivity(ctx, pdmActivity(accountID, "pdm_updated", pdmID, editor))
	return updated, nil
}

// DeletePdm removes the deliverable. The status ledger keeps every event for
// the id, closed out by a deleted event with a null to-state; the headings it
// referenced revert unless another PDM still holds them.
func (s *Service) DeletePdm(ctx context.Context, accountID, pdmID int64, actor string) error {
	editor := actorPtr(actor)

	var touched []store.Heading
	err := s.store.InTx(ctx, func(tx store.Store) error {
		p, err := tx.GetPdm(ctx, accountID, pdmID)
		if errors.Is(err, sql.ErrNoRows) {
			return errNotFound("pdm")
		}
		if err != nil {
			return err
		}
		before := p.State()

		current, err := tx.ListPdmHeadings(ctx, pdmID)
		if err != nil {
			return err
		}
		released := make([]int64, len(current))
		for i, ph := range current {
			released[i] = ph.HeadingID
		}

		if err := recordStatusEvent(ctx, tx, accountID, pdmID, EventDeleted, &before, nil, editor); err != nil {
			return err
		}
		deleted, err := tx.DeletePdm(ctx, accountID, pdmID)
		if err != nil {
			return err
		}
		if !deleted {
			return errNotFound("pdm")
		}

		reverted, err := revertUnreferencedHeadings(ctx, tx, accountID, pdmID, released, editor)
		if err != nil {
			return err
		}
		touched = reverted
		return s.logActivity(ctx, tx, pdmActivity(accountID, "pdm_deleted", pdmID, editor))
	})
	if err != nil {
		return err
	}

	for _, h := range touched {
		s.indexHeading(h)
	}
	s.publishActivity(ctx, pdmActivity(accountID, "pdm_deleted", pdmID, editor))
	return nil
}

// revertUnreferencedHeadings walks the released heading ids and, for each one
// no other PDM in the account still references, restores the pre-assignment
// stage: supported when the heading carries a reference URL, imported
// otherwise. Returns the headings whose stage changed.
func revertUnreferencedHeadings(ctx context.Context, tx store.Store, accountID, excludePdmID int64, headingIDs []int64, editor *string) ([]store.Heading, error) {
	var reverted []store.Heading
	for _, hid := range headingIDs {
		n, err := tx.CountPdmsReferencingHeading(ctx, accountID, hid, excludePdmID)
		if err != nil {
			return nil, err
		}
		if n > 0 {
			continue
		}
		h, err := tx.GetHeading(ctx, accountID, hid)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, err
		}
		stage := store.StageImported
		if h.ReferenceURL != "" {
			stage = store.StageSupported
		}
		if err := tx.SetHeadingStage(ctx, hid, stage, editor); err != nil {
			return nil, err
		}
		h.WorkflowStage = stage
		reverted = append(reverted, h)
	}
	return reverted, nil
}

// SetPdmUploaded flips the published flag and records a
// published_status_changed event.
func (s *Service) SetPdmUploaded(ctx context.Context, accountID, pdmID int64, uploaded bool, actor string) (store.Pdm, error) {
	return s.transitionPdm(ctx, accountID, pdmID, EventPublishedChanged, actor, func(p *store.Pdm) error {
		p.Uploaded = uploaded
		return nil
	})
}

// SetPdmQcStatus moves qc_status to one of pending, checked or error.
func (s *Service) SetPdmQcStatus(ctx context.Context, accountID, pdmID int64, qcStatus, actor string) (store.Pdm, error) {
	switch qcStatus {
	case store.QcPending, store.QcChecked, store.QcError:
	default:
		return store.Pdm{}, validationError("invalid qc status", map[string]any{"qcStatus": qcStatus})
	}
	return s.transitionPdm(ctx, accountID, pdmID, EventQcStatusChanged, actor, func(p *store.Pdm) error {
		p.QcStatus = qcStatus
		return nil
	})
}

// SetPdmRectification moves rectification_status.
func (s *Service) SetPdmRectification(ctx context.Context, accountID, pdmID int64, status, actor string) (store.Pdm, error) {
	switch status {
	case store.RectificationPending, store.RectificationDone, store.RectificationNotNeeded:
	default:
		return store.Pdm{}, validationError("invalid rectification status", map[string]any{"rectificationStatus": status})
	}
	return s.transitionPdm(ctx, accountID, pdmID, EventRectificationChanged, actor, func(p *store.Pdm) error {
		p.RectificationStatus = status
		return nil
	})
}

// SetPdmValidation moves validation_status.
func (s *Service) SetPdmValidation(ctx context.Context, accountID, pdmID int64, status, actor string) (store.Pdm, error) {
	switch status {
	case store.ValidationPending, store.ValidationDone:
	default:
		return store.Pdm{}, validationError("invalid validation status", map[string]any{"validationStatus": status})
	}
	return s.transitionPdm(ctx, accountID, pdmID, EventValidationChanged, actor, func(p *store.Pdm) error {
		p.ValidationStatus = status
		return nil
	})
}

// transitionPdm is the shared single-field transition: load, mutate, persist,
// ledger the before/after 4-tuple under the given event type.
func (s *Service) transitionPdm(ctx context.Context, accountID, pdmID int64, eventType, actor string, mutate func(*store.Pdm) error) (store.Pdm, error) {
	editor := actorPtr(actor)
	var updated store.Pdm
	err := s.store.InTx(ctx, func(tx store.Store) error {
		p, err := tx.GetPdm(ctx, accountID, pdmID)
		if errors.Is(err, sql.ErrNoRows) {
			return errNotFound("pdm")
		}
		if err != nil {
			return err
		}
		before := p.State()
		if err := mutate(&p); err != nil {
			return err
		}
		if err := tx.UpdatePdm(ctx, p); err != nil {
			return err
		}
		after := p.State()
		if err := recordStatusEvent(ctx, tx, accountID, pdmID, eventType, &before, &after, editor); err != nil {
			return err
		}
		updated = p
		return s.logActivity(ctx, tx, pdmActivity(accountID, "pdm_"+eventType, pdmID, editor))
	})
	if err != nil {
		return store.Pdm{}, err
	}
	s.publishActivity(ctx, pdmActivity(accountID, "pdm_"+eventType, pdmID, editor))
	return updated, nil
}

// GetPdm loads one deliverable with its heading bindings.
func (s *Service) GetPdm(ctx context.Context, accountID, pdmID int64) (store.Pdm, []store.PdmHeading, error) {
	p, err := s.store.GetPdm(ctx, accountID, pdmID)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Pdm{}, nil, errNotFound("pdm")
	}
	if err != nil {
		return store.Pdm{}, nil, err
	}
	refs, err := s.store.ListPdmHeadings(ctx, pdmID)
	if err != nil {
		return store.Pdm{}, nil, err
	}
	return p, refs, nil
}

// ListPdms returns the account's deliverables, newest first.
func (s *Service) ListPdms(ctx context.Context, accountID int64) ([]store.Pdm, error) {
	return s.store.ListPdms(ctx, accountID)
}

func pdmActivity(accountID int64, action string, pdmID int64, actor *string) store.ActivityEntry {
	return store.ActivityEntry{
		AccountID:  accountID,
		Action:     action,
		Details:    fmt.Sprintf("pdm %d", pdmID),
		Actor:      actor,
		EntityType: "pdm",
		EntityID:   fmt64(pdmID),
	}
}
