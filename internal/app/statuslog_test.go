package app

import (
	"context"
	"errors"
	"testing"

	"prodplan/api/internal/store"
)

func TestRecordStatusEventRejectsUnknownType(t *testing.T) {
	inserted := false
	fake := &fakeStore{
		insertStatusEventFn: func(context.Context, store.PdmStatusEvent) error {
			inserted = true
			return nil
		},
	}

	err := recordStatusEvent(context.Background(), fake, 1, 26045000, "archived", nil, nil, nil)
	var domainErr *DomainError
	if !errors.As(err, &domainErr) || domainErr.Code != "UNSUPPORTED_EVENT_TYPE" {
		t.Fatalf("expected UNSUPPORTED_EVENT_TYPE, got %v", err)
	}
	if inserted {
		t.Error("no row must be written for a rejected event type")
	}
}

func TestRecordStatusEventAcceptsWholeEnumeration(t *testing.T) {
	for eventType := range allowedEventTypes {
		fake := &fakeStore{}
		if err := recordStatusEvent(context.Background(), fake, 1, 26045000, eventType, nil, nil, nil); err != nil {
			t.Errorf("event type %q rejected: %v", eventType, err)
		}
	}
}

func TestPdmStatusEventsSurviveDeletion(t *testing.T) {
	// The ledger is read by pdm id, not through the pdms table, so a deleted
	// id still answers.
	fake := &fakeStore{
		listStatusEventsFn: func(_ context.Context, _ int64, pdmID int64) ([]store.PdmStatusEvent, error) {
			return []store.PdmStatusEvent{
				{PdmID: pdmID, EventType: EventCreated},
				{PdmID: pdmID, EventType: EventDeleted},
			}, nil
		},
	}
	svc := newTestService(fake)

	events, err := svc.PdmStatusEvents(context.Background(), 1, 26045000)
	if err != nil {
		t.Fatalf("PdmStatusEvents failed: %v", err)
	}
	if len(events) != 2 || events[1].EventType != EventDeleted {
		t.Errorf("expected full ledger including deletion, got %v", events)
	}
}
