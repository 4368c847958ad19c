package store

import "context"

// Store is the persistence surface the engines run against. PostgresStore
// implements it on either a pooled connection or an open transaction; InTx
// hands the callback a Store bound to one transaction so a whole engine
// operation commits or rolls back as a unit.
type Store interface {
	// InTx runs fn inside a single transaction. Nested calls reuse the
	// enclosing transaction.
	InTx(ctx context.Context, fn func(Store) error) error
	Ping(ctx context.Context) error

	// Headings
	NextHeadingID(ctx context.Context) (int64, error)
	FindHeadingByID(ctx context.Context, accountID, headingID int64) (*Heading, error)
	FindHeadingByName(ctx context.Context, accountID int64, name string) (*Heading, error)
	GetHeading(ctx context.Context, accountID, headingID int64) (Heading, error)
	ListHeadings(ctx context.Context, accountID int64) ([]Heading, error)
	InsertHeading(ctx context.Context, h Heading) error
	UpdateHeading(ctx context.Context, h Heading) error
	DeleteHeading(ctx context.Context, accountID, headingID int64) (bool, error)
	ReplaceHeadingFamilies(ctx context.Context, headingID int64, families []string) error
	SetHeadingStage(ctx context.Context, headingID int64, stage string, actor *string) error
	SetHeadingStageBulk(ctx context.Context, headingIDs []int64, stage string, actor *string) error
	SetHeadingStatus(ctx context.Context, headingID int64, status string, actor *string) error
	MarkHeadingsAdditionalExcept(ctx context.Context, accountID int64, matchedIDs []int64, actor *string) ([]int64, error)
	MissingHeadingIDs(ctx context.Context, accountID int64, headingIDs []int64) ([]int64, error)
	CountPdmsReferencingHeading(ctx context.Context, accountID, headingID, excludePdmID int64) (int, error)

	// Import batches
	InsertImportBatch(ctx context.Context, b ImportBatch) error
	InsertImportBatchItems(ctx context.Context, items []ImportBatchItem) error
	ListImportBatches(ctx context.Context, accountID int64) ([]ImportBatch, error)
	ListImportBatchItems(ctx context.Context, batchID string) ([]ImportBatchItem, error)

	// Snapshots
	DeactivateSnapshots(ctx context.Context, accountID int64) error
	InsertSnapshot(ctx context.Context, s Snapshot) error
	InsertSnapshotItems(ctx context.Context, items []SnapshotItem) error
	ActiveSnapshot(ctx context.Context, accountID int64) (*Snapshot, error)
	ListSnapshots(ctx context.Context, accountID int64) ([]Snapshot, error)
	ListSnapshotItems(ctx context.Context, snapshotID string) ([]SnapshotItem, error)

	// PDMs
	MaxPdmIDInRange(ctx context.Context, lo, hi int64) (int64, bool, error)
	InsertPdm(ctx context.Context, p Pdm) error
	GetPdm(ctx context.Context, accountID, pdmID int64) (Pdm, error)
	UpdatePdm(ctx context.Context, p Pdm) error
	DeletePdm(ctx context.Context, accountID, pdmID int64) (bool, error)
	ListPdms(ctx context.Context, accountID int64) ([]Pdm, error)
	ReplacePdmHeadings(ctx context.Context, pdmID int64, refs []PdmHeading) error
	ListPdmHeadings(ctx context.Context, pdmID int64) ([]PdmHeading, error)

	// Status events
	InsertStatusEvent(ctx context.Context, e PdmStatusEvent) error
	ListStatusEvents(ctx context.Context, accountID, pdmID int64) ([]PdmStatusEvent, error)

	// QC feedback
	GetQcFeedback(ctx context.Context, pdmID int64) (*QcFeedback, error)
	UpsertQcFeedback(ctx context.Context, f QcFeedback) error
	ReplaceFeedbackErrors(ctx context.Context, pdmID int64, categories []string) error
	InsertFeedbackHistory(ctx context.Context, entry FeedbackHistoryEntry) error
	ListFeedbackHistory(ctx context.Context, pdmID int64) ([]FeedbackHistoryEntry, error)

	// Standalone QC error reports
	InsertQcErrorReport(ctx context.Context, r QcErrorReport) error
	GetQcErrorReport(ctx context.Context, accountID int64, id string) (QcErrorReport, error)
	ListQcErrorReports(ctx context.Context, accountID int64) ([]QcErrorReport, error)
	UpdateQcErrorStatus(ctx context.Context, accountID int64, id, rectification, validation string) (bool, error)

	// Activity log
	InsertActivity(ctx context.Context, entry ActivityEntry) error
	ListActivity(ctx context.Context, accountID int64, limit int) ([]ActivityEntry, error)
}
