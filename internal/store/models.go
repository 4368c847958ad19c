package store

import "time"

// Heading workflow stages.
const (
	StageImported  = "imported"
	StageSupported = "supported"
	StageAssigned  = "assigned"
)

// Heading baseline statuses.
const (
	StatusExisting   = "existing"
	StatusRanked     = "ranked"
	StatusAdditional = "additional"
)

// PDM QC statuses.
const (
	QcPending = "pending"
	QcChecked = "checked"
	QcError   = "error"
)

// Rectification / validation statuses.
const (
	RectificationPending   = "Pending"
	RectificationDone      = "Done"
	RectificationNotNeeded = "Not Needed"
	ValidationPending      = "Pending"
	ValidationDone         = "Done"
)

type Heading struct {
	ID              int64
	AccountID       int64
	Name            string
	Families        []string
	GroupingFamily  string
	ReferenceURL    string
	WorkflowStage   string
	Status          string
	Definition      string
	Aliases         string
	Category        string
	Companies       string
	RankPoints      string
	HeadingType     string
	SourceStatus    string
	SourceTimestamp string
	UpdatedBy       *string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type ImportBatch struct {
	ID            string
	AccountID     int64
	ContextFamily string
	FileName      string
	RowCount      int
	CreatedBy     *string
	CreatedAt     time.Time
}

type ImportBatchItem struct {
	BatchID   string
	HeadingID int64
	Action    string // created | updated
}

type Snapshot struct {
	ID         string
	AccountID  int64
	FileName   string
	IsActive   bool
	UploadedBy *string
	CreatedAt  time.Time
}

type SnapshotItem struct {
	ID         int64
	SnapshotID string
	HeadingID  *int64
	Name       string
	RankPoints string
	Position   int
}

type Pdm struct {
	ID                   int64
	AccountID            int64
	IsCopro              bool
	URL                  string
	CompanyTypes         []string
	Description          string
	Comment              string
	WordCount            int
	Uploaded             bool
	QcStatus             string
	RectificationStatus  string
	ValidationStatus     string
	IsQcEdited           bool
	IsDescriptionUpdated bool
	CreatedBy            *string
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

type PdmHeading struct {
	PdmID     int64
	HeadingID int64
	SortOrder int
}

// PdmState is the audited 4-tuple of a PDM's status fields.
type PdmState struct {
	Uploaded            bool   `json:"uploaded"`
	QcStatus            string `json:"qcStatus"`
	RectificationStatus string `json:"rectificationStatus"`
	ValidationStatus    string `json:"validationStatus"`
}

// State returns the audited 4-tuple snapshot of the PDM.
func (p Pdm) State() PdmState {
	return PdmState{
		Uploaded:            p.Uploaded,
		QcStatus:            p.QcStatus,
		RectificationStatus: p.RectificationStatus,
		ValidationStatus:    p.ValidationStatus,
	}
}

type PdmStatusEvent struct {
	ID        int64
	PdmID     int64
	AccountID int64
	EventType string
	From      *PdmState
	To        *PdmState
	Actor     *string
	CreatedAt time.Time
}

type QcFeedback struct {
	PdmID              int64
	UpdatedDescription string
	Comment            string
	Categories         []string
	SubmittedBy        *string
	SubmittedAt        time.Time
}

type FeedbackHistoryEntry struct {
	ID                 int64
	PdmID              int64
	UpdatedDescription string
	Comment            string
	Categories         []string
	SubmittedBy        *string
	CreatedAt          time.Time
}

type QcErrorReport struct {
	ID                  string
	AccountID           int64
	HeadingID           *int64
	Description         string
	RectificationStatus string
	ValidationStatus    string
	ReportedBy          *string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

type ActivityEntry struct {
	ID         int64
	AccountID  int64
	Action     string
	Details    string
	Actor      *string
	EntityType string
	EntityID   string
	CreatedAt  time.Time
}
