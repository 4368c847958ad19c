package app

import (
	"context"
	"database/sql"

	"prodplan/api/internal/config"
	"prodplan/api/internal/search"
	"prodplan/api/internal/store"
)

// fakeStore implements store.Store with overridable hooks. InTx runs the
// callback against the fake itself, which matches the real store's behavior
// of handing the callback a transaction-bound Store.
type fakeStore struct {
	inTxFn                        func(context.Context, func(store.Store) error) error
	nextHeadingIDFn               func(context.Context) (int64, error)
	findHeadingByIDFn             func(context.Context, int64, int64) (*store.Heading, error)
	findHeadingByNameFn           func(context.Context, int64, string) (*store.Heading, error)
	getHeadingFn                  func(context.Context, int64, int64) (store.Heading, error)
	listHeadingsFn                func(context.Context, int64) ([]store.Heading, error)
	insertHeadingFn               func(context.Context, store.Heading) error
	updateHeadingFn               func(context.Context, store.Heading) error
	deleteHeadingFn               func(context.Context, int64, int64) (bool, error)
	replaceHeadingFamiliesFn      func(context.Context, int64, []string) error
	setHeadingStageFn             func(context.Context, int64, string, *string) error
	setHeadingStageBulkFn         func(context.Context, []int64, string, *string) error
	setHeadingStatusFn            func(context.Context, int64, string, *string) error
	markAdditionalExceptFn        func(context.Context, int64, []int64, *string) ([]int64, error)
	missingHeadingIDsFn           func(context.Context, int64, []int64) ([]int64, error)
	countPdmsReferencingFn        func(context.Context, int64, int64, int64) (int, error)
	insertImportBatchFn           func(context.Context, store.ImportBatch) error
	insertImportBatchItemsFn      func(context.Context, []store.ImportBatchItem) error
	deactivateSnapshotsFn         func(context.Context, int64) error
	insertSnapshotFn              func(context.Context, store.Snapshot) error
	insertSnapshotItemsFn         func(context.Context, []store.SnapshotItem) error
	listSnapshotsFn               func(context.Context, int64) ([]store.Snapshot, error)
	maxPdmIDInRangeFn             func(context.Context, int64, int64) (int64, bool, error)
	insertPdmFn                   func(context.Context, store.Pdm) error
	getPdmFn                      func(context.Context, int64, int64) (store.Pdm, error)
	updatePdmFn                   func(context.Context, store.Pdm) error
	deletePdmFn                   func(context.Context, int64, int64) (bool, error)
	replacePdmHeadingsFn          func(context.Context, int64, []store.PdmHeading) error
	listPdmHeadingsFn             func(context.Context, int64) ([]store.PdmHeading, error)
	insertStatusEventFn           func(context.Context, store.PdmStatusEvent) error
	listStatusEventsFn            func(context.Context, int64, int64) ([]store.PdmStatusEvent, error)
	getQcFeedbackFn               func(context.Context, int64) (*store.QcFeedback, error)
	upsertQcFeedbackFn            func(context.Context, store.QcFeedback) error
	replaceFeedbackErrorsFn       func(context.Context, int64, []string) error
	insertFeedbackHistoryFn       func(context.Context, store.FeedbackHistoryEntry) error
	listFeedbackHistoryFn         func(context.Context, int64) ([]store.FeedbackHistoryEntry, error)
	insertQcErrorReportFn         func(context.Context, store.QcErrorReport) error
	getQcErrorReportFn            func(context.Context, int64, string) (store.QcErrorReport, error)
	updateQcErrorStatusFn         func(context.Context, int64, string, string, string) (bool, error)
	insertActivityFn              func(context.Context, store.ActivityEntry) error
	listActivityFn                func(context.Context, int64, int) ([]store.ActivityEntry, error)
}

func (f *fakeStore) InTx(ctx context.Context, fn func(store.Store) error) error {
	if f.inTxFn != nil {
		return f.inTxFn(ctx, fn)
	}
	return fn(f)
}

func (f *fakeStore) Ping(context.Context) error { return nil }

func (f *fakeStore) NextHeadingID(ctx context.Context) (int64, error) {
	if f.nextHeadingIDFn != nil {
		return f.nextHeadingIDFn(ctx)
	}
	return 1, nil
}

func (f *fakeStore) FindHeadingByID(ctx context.Context, accountID, headingID int64) (*store.Heading, error) {
	if f.findHeadingByIDFn != nil {
		return f.findHeadingByIDFn(ctx, accountID, headingID)
	}
	return nil, nil
}

func (f *fakeStore) FindHeadingByName(ctx context.Context, accountID int64, name string) (*store.Heading, error) {
	if f.findHeadingByNameFn != nil {
		return f.findHeadingByNameFn(ctx, accountID, name)
	}
	return nil, nil
}

func (f *fakeStore) GetHeading(ctx context.Context, accountID, headingID int64) (store.Heading, error) {
	if f.getHeadingFn != nil {
		return f.getHeadingFn(ctx, accountID, headingID)
	}
	return store.Heading{ID: headingID, AccountID: accountID}, nil
}

func (f *fakeStore) ListHeadings(ctx context.Context, accountID int64) ([]store.Heading, error) {
	if f.listHeadingsFn != nil {
		return f.listHeadingsFn(ctx, accountID)
	}
	return nil, nil
}

func (f *fakeStore) InsertHeading(ctx context.Context, h store.Heading) error {
	if f.insertHeadingFn != nil {
		return f.insertHeadingFn(ctx, h)
	}
	return nil
}

func (f *fakeStore) UpdateHeading(ctx context.Context, h store.Heading) error {
	if f.updateHeadingFn != nil {
		return f.updateHeadingFn(ctx, h)
	}
	return nil
}

func (f *fakeStore) DeleteHeading(ctx context.Context, accountID, headingID int64) (bool, error) {
	if f.deleteHeadingFn != nil {
		return f.deleteHeadingFn(ctx, accountID, headingID)
	}
	return true, nil
}

func (f *fakeStore) ReplaceHeadingFamilies(ctx context.Context, headingID int64, families []string) error {
	if f.replaceHeadingFamiliesFn != nil {
		return f.replaceHeadingFamiliesFn(ctx, headingID, families)
	}
	return nil
}

func (f *fakeStore) SetHeadingStage(ctx context.Context, headingID int64, stage string, actor *string) error {
	if f.setHeadingStageFn != nil {
		return f.setHeadingStageFn(ctx, headingID, stage, actor)
	}
	return nil
}

func (f *fakeStore) SetHeadingStageBulk(ctx context.Context, headingIDs []int64, stage string, actor *string) error {
	if f.setHeadingStageBulkFn != nil {
		return f.setHeadingStageBulkFn(ctx, headingIDs, stage, actor)
	}
	return nil
}

func (f *fakeStore) SetHeadingStatus(ctx context.Context, headingID int64, status string, actor *string) error {
	if f.setHeadingStatusFn != nil {
		return f.setHeadingStatusFn(ctx, headingID, status, actor)
	}
	return nil
}

func (f *fakeStore) MarkHeadingsAdditionalExcept(ctx context.Context, accountID int64, matchedIDs []int64, actor *string) ([]int64, error) {
	if f.markAdditionalExceptFn != nil {
		return f.markAdditionalExceptFn(ctx, accountID, matchedIDs, actor)
	}
	return nil, nil
}

func (f *fakeStore) MissingHeadingIDs(ctx context.Context, accountID int64, headingIDs []int64) ([]int64, error) {
	if f.missingHeadingIDsFn != nil {
		return f.missingHeadingIDsFn(ctx, accountID, headingIDs)
	}
	return nil, nil
}

func (f *fakeStore) CountPdmsReferencingHeading(ctx context.Context, accountID, headingID, excludePdmID int64) (int, error) {
	if f.countPdmsReferencingFn != nil {
		return f.countPdmsReferencingFn(ctx, accountID, headingID, excludePdmID)
	}
	return 0, nil
}

func (f *fakeStore) InsertImportBatch(ctx context.Context, b store.ImportBatch) error {
	if f.insertImportBatchFn != nil {
		return f.insertImportBatchFn(ctx, b)
	}
	return nil
}

func (f *fakeStore) InsertImportBatchItems(ctx context.Context, items []store.ImportBatchItem) error {
	if f.insertImportBatchItemsFn != nil {
		return f.insertImportBatchItemsFn(ctx, items)
	}
	return nil
}

func (f *fakeStore) ListImportBatches(context.Context, int64) ([]store.ImportBatch, error) {
	return nil, nil
}

func (f *fakeStore) ListImportBatchItems(context.Context, string) ([]store.ImportBatchItem, error) {
	return nil, nil
}

func (f *fakeStore) DeactivateSnapshots(ctx context.Context, accountID int64) error {
	if f.deactivateSnapshotsFn != nil {
		return f.deactivateSnapshotsFn(ctx, accountID)
	}
	return nil
}

func (f *fakeStore) InsertSnapshot(ctx context.Context, s store.Snapshot) error {
	if f.insertSnapshotFn != nil {
		return f.insertSnapshotFn(ctx, s)
	}
	return nil
}

func (f *fakeStore) InsertSnapshotItems(ctx context.Context, items []store.SnapshotItem) error {
	if f.insertSnapshotItemsFn != nil {
		return f.insertSnapshotItemsFn(ctx, items)
	}
	return nil
}

func (f *fakeStore) ActiveSnapshot(context.Context, int64) (*store.Snapshot, error) {
	return nil, nil
}

func (f *fakeStore) ListSnapshots(ctx context.Context, accountID int64) ([]store.Snapshot, error) {
	if f.listSnapshotsFn != nil {
		return f.listSnapshotsFn(ctx, accountID)
	}
	return nil, nil
}

func (f *fakeStore) ListSnapshotItems(context.Context, string) ([]store.SnapshotItem, error) {
	return nil, nil
}

func (f *fakeStore) MaxPdmIDInRange(ctx context.Context, lo, hi int64) (int64, bool, error) {
	if f.maxPdmIDInRangeFn != nil {
		return f.maxPdmIDInRangeFn(ctx, lo, hi)
	}
	return 0, false, nil
}

func (f *fakeStore) InsertPdm(ctx context.Context, p store.Pdm) error {
	if f.insertPdmFn != nil {
		return f.insertPdmFn(ctx, p)
	}
	return nil
}

func (f *fakeStore) GetPdm(ctx context.Context, accountID, pdmID int64) (store.Pdm, error) {
	if f.getPdmFn != nil {
		return f.getPdmFn(ctx, accountID, pdmID)
	}
	return store.Pdm{}, sql.ErrNoRows
}

func (f *fakeStore) UpdatePdm(ctx context.Context, p store.Pdm) error {
	if f.updatePdmFn != nil {
		return f.updatePdmFn(ctx, p)
	}
	return nil
}

func (f *fakeStore) DeletePdm(ctx context.Context, accountID, pdmID int64) (bool, error) {
	if f.deletePdmFn != nil {
		return f.deletePdmFn(ctx, accountID, pdmID)
	}
	return true, nil
}

func (f *fakeStore) ListPdms(context.Context, int64) ([]store.Pdm, error) { return nil, nil }

func (f *fakeStore) ReplacePdmHeadings(ctx context.Context, pdmID int64, refs []store.PdmHeading) error {
	if f.replacePdmHeadingsFn != nil {
		return f.replacePdmHeadingsFn(ctx, pdmID, refs)
	}
	return nil
}

func (f *fakeStore) ListPdmHeadings(ctx context.Context, pdmID int64) ([]store.PdmHeading, error) {
	if f.listPdmHeadingsFn != nil {
		return f.listPdmHeadingsFn(ctx, pdmID)
	}
	return nil, nil
}

func (f *fakeStore) InsertStatusEvent(ctx context.Context, e store.PdmStatusEvent) error {
	if f.insertStatusEventFn != nil {
		return f.insertStatusEventFn(ctx, e)
	}
	return nil
}

func (f *fakeStore) ListStatusEvents(ctx context.Context, accountID, pdmID int64) ([]store.PdmStatusEvent, error) {
	if f.listStatusEventsFn != nil {
		return f.listStatusEventsFn(ctx, accountID, pdmID)
	}
	return nil, nil
}

func (f *fakeStore) GetQcFeedback(ctx context.Context, pdmID int64) (*store.QcFeedback, error) {
	if f.getQcFeedbackFn != nil {
		return f.getQcFeedbackFn(ctx, pdmID)
	}
	return nil, nil
}

func (f *fakeStore) UpsertQcFeedback(ctx context.Context, feedback store.QcFeedback) error {
	if f.upsertQcFeedbackFn != nil {
		return f.upsertQcFeedbackFn(ctx, feedback)
	}
	return nil
}

func (f *fakeStore) ReplaceFeedbackErrors(ctx context.Context, pdmID int64, categories []string) error {
	if f.replaceFeedbackErrorsFn != nil {
		return f.replaceFeedbackErrorsFn(ctx, pdmID, categories)
	}
	return nil
}

func (f *fakeStore) InsertFeedbackHistory(ctx context.Context, entry store.FeedbackHistoryEntry) error {
	if f.insertFeedbackHistoryFn != nil {
		return f.insertFeedbackHistoryFn(ctx, entry)
	}
	return nil
}

func (f *fakeStore) ListFeedbackHistory(ctx context.Context, pdmID int64) ([]store.FeedbackHistoryEntry, error) {
	if f.listFeedbackHistoryFn != nil {
		return f.listFeedbackHistoryFn(ctx, pdmID)
	}
	return nil, nil
}

func (f *fakeStore) InsertQcErrorReport(ctx context.Context, r store.QcErrorReport) error {
	if f.insertQcErrorReportFn != nil {
		return f.insertQcErrorReportFn(ctx, r)
	}
	return nil
}

func (f *fakeStore) GetQcErrorReport(ctx context.Context, accountID int64, id string) (store.QcErrorReport, error) {
	if f.getQcErrorReportFn != nil {
		return f.getQcErrorReportFn(ctx, accountID, id)
	}
	return store.QcErrorReport{ID: id, AccountID: accountID}, nil
}

func (f *fakeStore) ListQcErrorReports(context.Context, int64) ([]store.QcErrorReport, error) {
	return nil, nil
}

func (f *fakeStore) UpdateQcErrorStatus(ctx context.Context, accountID int64, id, rectification, validation string) (bool, error) {
	if f.updateQcErrorStatusFn != nil {
		return f.updateQcErrorStatusFn(ctx, accountID, id, rectification, validation)
	}
	return true, nil
}

func (f *fakeStore) InsertActivity(ctx context.Context, entry store.ActivityEntry) error {
	if f.insertActivityFn != nil {
		return f.insertActivityFn(ctx, entry)
	}
	return nil
}

func (f *fakeStore) ListActivity(ctx context.Context, accountID int64, limit int) ([]store.ActivityEntry, error) {
	if f.listActivityFn != nil {
		return f.listActivityFn(ctx, accountID, limit)
	}
	return nil, nil
}

func testConfig() config.Config {
	return config.Config{Addr: ":0", MigrationsDir: "../../db/migrations"}
}

func newTestService(fake *fakeStore) *Service {
	return New(testConfig(), fake, nil, nil)
}

// fakeIndexer records index traffic so tests can assert what reaches search.
type fakeIndexer struct {
	indexed []search.HeadingRecord
	deleted []int64
}

func (f *fakeIndexer) IndexHeading(rec search.HeadingRecord) { f.indexed = append(f.indexed, rec) }
func (f *fakeIndexer) DeleteHeading(id int64)                { f.deleted = append(f.deleted, id) }
func (f *fakeIndexer) Search(search.Query) search.Response   { return search.Response{} }
