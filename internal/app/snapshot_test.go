package app

import (
	"context"
	"errors"
	"testing"

	"prodplan/api/internal/store"
)

func TestSnapshotRanksMatchedHeadings(t *testing.T) {
	headings := map[string]store.Heading{
		"alpha": {ID: 1, AccountID: 1, Name: "alpha"},
		"beta":  {ID: 2, AccountID: 1, Name: "beta"},
	}
	statusByHeading := make(map[int64]string)
	var exceptIDs []int64
	fake := &fakeStore{
		findHeadingByNameFn: func(_ context.Context, _ int64, name string) (*store.Heading, error) {
			if h, ok := headings[name]; ok {
				return &h, nil
			}
			return nil, nil
		},
		setHeadingStatusFn: func(_ context.Context, headingID int64, status string, _ *string) error {
			statusByHeading[headingID] = status
			return nil
		},
		markAdditionalExceptFn: func(_ context.Context, _ int64, matchedIDs []int64, _ *string) ([]int64, error) {
			exceptIDs = matchedIDs
			return []int64{7, 8, 9}, nil
		},
	}
	svc := newTestService(fake)

	result, err := svc.UploadSnapshot(context.Background(), 1, SnapshotInput{
		Cells: [][]string{
			{"Heading", "Rank Points"},
			{"alpha", "120"},
			{"beta", ""},
			{"gamma", "50"},
		},
		FileName: "baseline.csv",
	}, "carol")
	if err != nil {
		t.Fatalf("UploadSnapshot failed: %v", err)
	}

	if statusByHeading[1] != store.StatusRanked {
		t.Errorf("expected alpha ranked, got %q", statusByHeading[1])
	}
	if statusByHeading[2] != store.StatusExisting {
		t.Errorf("expected beta existing, got %q", statusByHeading[2])
	}
	if len(exceptIDs) != 2 {
		t.Errorf("expected 2 matched ids in the fall-out sweep, got %v", exceptIDs)
	}
	if result.ItemCount != 3 {
		t.Errorf("expected 3 items (gamma unmatched still recorded), got %d", result.ItemCount)
	}
	if result.Matched != 2 {
		t.Errorf("expected 2 matched, got %d", result.Matched)
	}
	if result.FellOut != 3 {
		t.Errorf("expected fell-out count from sweep, got %d", result.FellOut)
	}
}

func TestSnapshotActivatesExactlyOne(t *testing.T) {
	var deactivated bool
	var active *bool
	fake := &fakeStore{
		deactivateSnapshotsFn: func(context.Context, int64) error {
			deactivated = true
			return nil
		},
		insertSnapshotFn: func(_ context.Context, snap store.Snapshot) error {
			if !deactivated {
				t.Error("new snapshot inserted before prior snapshots were deactivated")
			}
			active = &snap.IsActive
			return nil
		},
	}
	svc := newTestService(fake)

	_, err := svc.UploadSnapshot(context.Background(), 1, SnapshotInput{
		Cells: [][]string{{"Heading"}, {"alpha"}},
	}, "")
	if err != nil {
		t.Fatalf("UploadSnapshot failed: %v", err)
	}
	if active == nil || !*active {
		t.Error("expected new snapshot to be active")
	}
}

func TestSnapshotRecordsUnmatchedItemsWithoutHeading(t *testing.T) {
	var items []store.SnapshotItem
	fake := &fakeStore{
		insertSnapshotItemsFn: func(_ context.Context, snapItems []store.SnapshotItem) error {
			items = snapItems
			return nil
		},
	}
	svc := newTestService(fake)

	_, err := svc.UploadSnapshot(context.Background(), 1, SnapshotInput{
		Cells: [][]string{{"Heading"}, {"unknown"}},
	}, "")
	if err != nil {
		t.Fatalf("UploadSnapshot failed: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}
	if items[0].HeadingID != nil {
		t.Errorf("expected nil heading reference, got %v", *items[0].HeadingID)
	}
	if items[0].Name != "unknown" {
		t.Errorf("expected raw name kept, got %q", items[0].Name)
	}
}

func TestSnapshotReindexesFellOutHeadings(t *testing.T) {
	fake := &fakeStore{
		findHeadingByNameFn: func(_ context.Context, _ int64, name string) (*store.Heading, error) {
			if name == "alpha" {
				return &store.Heading{ID: 1, AccountID: 1, Name: "alpha"}, nil
			}
			return nil, nil
		},
		markAdditionalExceptFn: func(context.Context, int64, []int64, *string) ([]int64, error) {
			return []int64{5}, nil
		},
		getHeadingFn: func(_ context.Context, accountID, headingID int64) (store.Heading, error) {
			return store.Heading{ID: headingID, AccountID: accountID, Name: "orphan", Status: store.StatusAdditional}, nil
		},
	}
	index := &fakeIndexer{}
	svc := New(testConfig(), fake, index, nil)

	_, err := svc.UploadSnapshot(context.Background(), 1, SnapshotInput{
		Cells: [][]string{{"Heading", "Rank Points"}, {"alpha", "10"}},
	}, "")
	if err != nil {
		t.Fatalf("UploadSnapshot failed: %v", err)
	}

	byID := map[int64]string{}
	for _, rec := range index.indexed {
		byID[rec.ID] = rec.Status
	}
	if byID[1] != store.StatusRanked {
		t.Errorf("matched heading indexed with status %q, want %q", byID[1], store.StatusRanked)
	}
	if byID[5] != store.StatusAdditional {
		t.Errorf("fell-out heading indexed with status %q, want %q", byID[5], store.StatusAdditional)
	}
}

func TestSnapshotFailsWithNoValidRows(t *testing.T) {
	svc := newTestService(&fakeStore{})

	_, err := svc.UploadSnapshot(context.Background(), 1, SnapshotInput{
		Cells: [][]string{{"Heading"}, {""}},
	}, "")
	var domainErr *DomainError
	if !errors.As(err, &domainErr) || domainErr.Code != "NO_VALID_ROWS" {
		t.Fatalf("expected NO_VALID_ROWS, got %v", err)
	}
}
