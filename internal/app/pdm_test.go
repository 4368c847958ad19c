package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"prodplan/api/internal/store"
)

// 2026-02-14 is day 45 of the year, so the day's range is [26045000, 26045999].
var allocDay = time.Date(2026, time.February, 14, 12, 0, 0, 0, time.UTC)

func TestAllocatePdmIDStartsAtRangeFloor(t *testing.T) {
	fake := &fakeStore{
		maxPdmIDInRangeFn: func(_ context.Context, lo, hi int64) (int64, bool, error) {
			if lo != 26045000 || hi != 26045999 {
				t.Errorf("expected range [26045000, 26045999], got [%d, %d]", lo, hi)
			}
			return 0, false, nil
		},
	}

	id, err := allocatePdmID(context.Background(), fake, allocDay)
	if err != nil {
		t.Fatalf("allocatePdmID failed: %v", err)
	}
	if id != 26045000 {
		t.Errorf("expected floor 26045000, got %d", id)
	}
}

func TestAllocatePdmIDIncrementsMax(t *testing.T) {
	fake := &fakeStore{
		maxPdmIDInRangeFn: func(context.Context, int64, int64) (int64, bool, error) {
			return 26045000, true, nil
		},
	}

	id, err := allocatePdmID(context.Background(), fake, allocDay)
	if err != nil {
		t.Fatalf("allocatePdmID failed: %v", err)
	}
	if id != 26045001 {
		t.Errorf("expected 26045001, got %d", id)
	}
}

func TestAllocatePdmIDRangeExhausted(t *testing.T) {
	fake := &fakeStore{
		maxPdmIDInRangeFn: func(context.Context, int64, int64) (int64, bool, error) {
			return 26045999, true, nil
		},
	}

	_, err := allocatePdmID(context.Background(), fake, allocDay)
	var domainErr *DomainError
	if !errors.As(err, &domainErr) || domainErr.Code != "RANGE_EXHAUSTED" {
		t.Fatalf("expected RANGE_EXHAUSTED, got %v", err)
	}
}

func TestCreatePdmValidatesHeadingRefs(t *testing.T) {
	svc := newTestService(&fakeStore{})
	ctx := context.Background()

	cases := []struct {
		name     string
		headings []HeadingRef
	}{
		{"empty", nil},
		{"too many", []HeadingRef{
			{HeadingID: 1}, {HeadingID: 2}, {HeadingID: 3}, {HeadingID: 4}, {HeadingID: 5},
			{HeadingID: 6}, {HeadingID: 7}, {HeadingID: 8}, {HeadingID: 9},
		}},
		{"duplicate sort order", []HeadingRef{
			{HeadingID: 1, SortOrder: 1}, {HeadingID: 2, SortOrder: 1},
		}},
		{"sort order out of range", []HeadingRef{{HeadingID: 1, SortOrder: 9}}},
		{"duplicate heading", []HeadingRef{
			{HeadingID: 1, SortOrder: 1}, {HeadingID: 1, SortOrder: 2},
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.CreatePdm(ctx, 1, PdmCreateInput{Headings: tc.headings}, "")
			var domainErr *DomainError
			if !errors.As(err, &domainErr) || domainErr.Code != "VALIDATION_ERROR" {
				t.Fatalf("expected VALIDATION_ERROR, got %v", err)
			}
		})
	}
}

func TestCreatePdmRejectsForeignHeadings(t *testing.T) {
	fake := &fakeStore{
		missingHeadingIDsFn: func(_ context.Context, _ int64, ids []int64) ([]int64, error) {
			return []int64{99}, nil
		},
	}
	svc := newTestService(fake)

	_, err := svc.CreatePdm(context.Background(), 1, PdmCreateInput{
		Headings: []HeadingRef{{HeadingID: 99}},
	}, "")
	var domainErr *DomainError
	if !errors.As(err, &domainErr) || domainErr.Code != "HEADING_OWNERSHIP" {
		t.Fatalf("expected HEADING_OWNERSHIP, got %v", err)
	}
	details, ok := domainErr.Details.(map[string]any)
	if !ok {
		t.Fatalf("expected details map, got %T", domainErr.Details)
	}
	missing, ok := details["headingIds"].([]int64)
	if !ok || len(missing) != 1 || missing[0] != 99 {
		t.Errorf("expected failing heading ids in details, got %v", details["headingIds"])
	}
}

func TestCreatePdmAssignsHeadingsAndOpensLedger(t *testing.T) {
	var inserted store.Pdm
	var joins []store.PdmHeading
	var bulkStage string
	var bulkIDs []int64
	var events []store.PdmStatusEvent
	fake := &fakeStore{
		insertPdmFn: func(_ context.Context, p store.Pdm) error {
			inserted = p
			return nil
		},
		replacePdmHeadingsFn: func(_ context.Context, _ int64, refs []store.PdmHeading) error {
			joins = refs
			return nil
		},
		setHeadingStageBulkFn: func(_ context.Context, ids []int64, stage string, _ *string) error {
			bulkIDs = ids
			bulkStage = stage
			return nil
		},
		insertStatusEventFn: func(_ context.Context, e store.PdmStatusEvent) error {
			events = append(events, e)
			return nil
		},
	}
	svc := newTestService(fake)

	p, err := svc.CreatePdm(context.Background(), 1, PdmCreateInput{
		Description: "four words exactly here",
		Headings:    []HeadingRef{{HeadingID: 10}, {HeadingID: 11}},
	}, "dave")
	if err != nil {
		t.Fatalf("CreatePdm failed: %v", err)
	}

	if inserted.WordCount != 4 {
		t.Errorf("expected computed word count 4, got %d", inserted.WordCount)
	}
	if inserted.QcStatus != store.QcPending {
		t.Errorf("expected qc status pending, got %q", inserted.QcStatus)
	}
	if inserted.RectificationStatus != store.RectificationPending || inserted.ValidationStatus != store.ValidationPending {
		t.Errorf("expected pending rectification/validation, got %q/%q", inserted.RectificationStatus, inserted.ValidationStatus)
	}

	if len(joins) != 2 || joins[0].SortOrder != 1 || joins[1].SortOrder != 2 {
		t.Errorf("expected positional sort orders 1,2, got %v", joins)
	}
	if bulkStage != store.StageAssigned || len(bulkIDs) != 2 {
		t.Errorf("expected both headings moved to assigned, got %q %v", bulkStage, bulkIDs)
	}

	if len(events) != 1 {
		t.Fatalf("expected 1 status event, got %d", len(events))
	}
	e := events[0]
	if e.EventType != EventCreated {
		t.Errorf("expected created event, got %q", e.EventType)
	}
	if e.From != nil {
		t.Errorf("expected nil from-state on create, got %v", e.From)
	}
	if e.To == nil || e.To.QcStatus != store.QcPending {
		t.Errorf("expected to-state snapshot, got %v", e.To)
	}
	if e.PdmID != p.ID {
		t.Errorf("expected event keyed by pdm id %d, got %d", p.ID, e.PdmID)
	}
}

func TestCreatePdmHonorsSuppliedWordCount(t *testing.T) {
	var inserted store.Pdm
	fake := &fakeStore{
		insertPdmFn: func(_ context.Context, p store.Pdm) error {
			inserted = p
			return nil
		},
	}
	svc := newTestService(fake)

	supplied := 250
	_, err := svc.CreatePdm(context.Background(), 1, PdmCreateInput{
		Description: "two words",
		WordCount:   &supplied,
		Headings:    []HeadingRef{{HeadingID: 1}},
	}, "")
	if err != nil {
		t.Fatalf("CreatePdm failed: %v", err)
	}
	if inserted.WordCount != 250 {
		t.Errorf("expected supplied word count kept, got %d", inserted.WordCount)
	}
}

func TestUpdatePdmRevertsRemovedHeadings(t *testing.T) {
	pdm := store.Pdm{ID: 26045000, AccountID: 1, QcStatus: store.QcPending, RectificationStatus: store.RectificationPending, ValidationStatus: store.ValidationPending}
	headings := map[int64]store.Heading{
		1: {ID: 1, AccountID: 1, ReferenceURL: "https://example.com/1"},
		2: {ID: 2, AccountID: 1},
		3: {ID: 3, AccountID: 1},
	}
	stageByHeading := make(map[int64]string)
	fake := &fakeStore{
		getPdmFn: func(context.Context, int64, int64) (store.Pdm, error) { return pdm, nil },
		listPdmHeadingsFn: func(context.Context, int64) ([]store.PdmHeading, error) {
			return []store.PdmHeading{
				{PdmID: pdm.ID, HeadingID: 1, SortOrder: 1},
				{PdmID: pdm.ID, HeadingID: 2, SortOrder: 2},
				{PdmID: pdm.ID, HeadingID: 3, SortOrder: 3},
			}, nil
		},
		getHeadingFn: func(_ context.Context, _ int64, headingID int64) (store.Heading, error) {
			return headings[headingID], nil
		},
		countPdmsReferencingFn: func(_ context.Context, _ int64, headingID, excludePdmID int64) (int, error) {
			if excludePdmID != pdm.ID {
				t.Errorf("reference check must exclude the edited pdm, got %d", excludePdmID)
			}
			if headingID == 2 {
				return 1, nil // still referenced by another deliverable
			}
			return 0, nil
		},
		setHeadingStageFn: func(_ context.Context, headingID int64, stage string, _ *string) error {
			stageByHeading[headingID] = stage
			return nil
		},
	}
	svc := newTestService(fake)

	_, err := svc.UpdatePdm(context.Background(), 1, pdm.ID, PdmUpdateInput{
		Headings: []HeadingRef{{HeadingID: 3}},
	}, "")
	if err != nil {
		t.Fatalf("UpdatePdm failed: %v", err)
	}

	if stageByHeading[1] != store.StageSupported {
		t.Errorf("heading with reference URL should revert to supported, got %q", stageByHeading[1])
	}
	if _, reverted := stageByHeading[2]; reverted {
		t.Error("heading still referenced elsewhere must not revert")
	}
	if _, reverted := stageByHeading[3]; reverted {
		t.Error("heading kept on the pdm must not revert")
	}
}

func TestUpdatePdmAppliesPartialFields(t *testing.T) {
	pdm := store.Pdm{ID: 26045000, AccountID: 1, Description: "old", Comment: "keep me", WordCount: 1}
	var updated store.Pdm
	fake := &fakeStore{
		getPdmFn:    func(context.Context, int64, int64) (store.Pdm, error) { return pdm, nil },
		updatePdmFn: func(_ context.Context, p store.Pdm) error { updated = p; return nil },
	}
	svc := newTestService(fake)

	desc := "a brand new description"
	_, err := svc.UpdatePdm(context.Background(), 1, pdm.ID, PdmUpdateInput{Description: &desc}, "")
	if err != nil {
		t.Fatalf("UpdatePdm failed: %v", err)
	}
	if updated.Description != desc {
		t.Errorf("expected description replaced, got %q", updated.Description)
	}
	if updated.WordCount != 4 {
		t.Errorf("expected word count recomputed, got %d", updated.WordCount)
	}
	if updated.Comment != "keep me" {
		t.Errorf("absent fields must be left alone, got %q", updated.Comment)
	}
}

func TestUpdatePdmNotFound(t *testing.T) {
	svc := newTestService(&fakeStore{})

	_, err := svc.UpdatePdm(context.Background(), 1, 26045000, PdmUpdateInput{}, "")
	var domainErr *DomainError
	if !errors.As(err, &domainErr) || domainErr.Code != "NOT_FOUND" {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}
}

func TestDeletePdmClosesLedgerAndReverts(t *testing.T) {
	pdm := store.Pdm{ID: 26045001, AccountID: 1, Uploaded: true, QcStatus: store.QcChecked, RectificationStatus: store.RectificationDone, ValidationStatus: store.ValidationDone}
	var events []store.PdmStatusEvent
	var deletedID int64
	stageByHeading := make(map[int64]string)
	fake := &fakeStore{
		getPdmFn: func(context.Context, int64, int64) (store.Pdm, error) { return pdm, nil },
		listPdmHeadingsFn: func(context.Context, int64) ([]store.PdmHeading, error) {
			return []store.PdmHeading{{PdmID: pdm.ID, HeadingID: 5, SortOrder: 1}}, nil
		},
		insertStatusEventFn: func(_ context.Context, e store.PdmStatusEvent) error {
			events = append(events, e)
			return nil
		},
		deletePdmFn: func(_ context.Context, _ int64, pdmID int64) (bool, error) {
			deletedID = pdmID
			return true, nil
		},
		setHeadingStageFn: func(_ context.Context, headingID int64, stage string, _ *string) error {
			stageByHeading[headingID] = stage
			return nil
		},
	}
	svc := newTestService(fake)

	if err := svc.DeletePdm(context.Background(), 1, pdm.ID, "erin"); err != nil {
		t.Fatalf("DeletePdm failed: %v", err)
	}

	if deletedID != pdm.ID {
		t.Errorf("expected delete of %d, got %d", pdm.ID, deletedID)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 status event, got %d", len(events))
	}
	e := events[0]
	if e.EventType != EventDeleted {
		t.Errorf("expected deleted event, got %q", e.EventType)
	}
	if e.To != nil {
		t.Errorf("expected nil to-state on delete, got %v", e.To)
	}
	if e.From == nil || !e.From.Uploaded || e.From.QcStatus != store.QcChecked {
		t.Errorf("expected captured before-state, got %v", e.From)
	}
	if stageByHeading[5] != store.StageImported {
		t.Errorf("expected released heading reverted to imported, got %q", stageByHeading[5])
	}
}

func TestSingleFieldTransitionsUseOwnEventTypes(t *testing.T) {
	pdm := store.Pdm{ID: 26045002, AccountID: 1, QcStatus: store.QcPending, RectificationStatus: store.RectificationPending, ValidationStatus: store.ValidationPending}

	cases := []struct {
		name      string
		run       func(svc *Service) error
		eventType string
	}{
		{
			"uploaded",
			func(svc *Service) error {
				_, err := svc.SetPdmUploaded(context.Background(), 1, pdm.ID, true, "")
				return err
			},
			EventPublishedChanged,
		},
		{
			"qc status",
			func(svc *Service) error {
				_, err := svc.SetPdmQcStatus(context.Background(), 1, pdm.ID, store.QcChecked, "")
				return err
			},
			EventQcStatusChanged,
		},
		{
			"rectification",
			func(svc *Service) error {
				_, err := svc.SetPdmRectification(context.Background(), 1, pdm.ID, store.RectificationDone, "")
				return err
			},
			EventRectificationChanged,
		},
		{
			"validation",
			func(svc *Service) error {
				_, err := svc.SetPdmValidation(context.Background(), 1, pdm.ID, store.ValidationDone, "")
				return err
			},
			EventValidationChanged,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var event store.PdmStatusEvent
			fake := &fakeStore{
				getPdmFn: func(context.Context, int64, int64) (store.Pdm, error) { return pdm, nil },
				insertStatusEventFn: func(_ context.Context, e store.PdmStatusEvent) error {
					event = e
					return nil
				},
			}
			svc := newTestService(fake)

			if err := tc.run(svc); err != nil {
				t.Fatalf("transition failed: %v", err)
			}
			if event.EventType != tc.eventType {
				t.Errorf("expected event type %q, got %q", tc.eventType, event.EventType)
			}
			if event.From == nil || event.To == nil {
				t.Errorf("expected before and after states, got %v -> %v", event.From, event.To)
			}
		})
	}
}

func TestTransitionRejectsInvalidEnumValues(t *testing.T) {
	svc := newTestService(&fakeStore{})
	ctx := context.Background()

	if _, err := svc.SetPdmQcStatus(ctx, 1, 26045000, "verified", ""); err == nil {
		t.Error("expected invalid qc status to be rejected")
	}
	if _, err := svc.SetPdmRectification(ctx, 1, 26045000, "Maybe", ""); err == nil {
		t.Error("expected invalid rectification status to be rejected")
	}
	if _, err := svc.SetPdmValidation(ctx, 1, 26045000, "Not Needed", ""); err == nil {
		t.Error("expected invalid validation status to be rejected")
	}
}
