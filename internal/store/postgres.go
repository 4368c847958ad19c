package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// querier is satisfied by both *sql.DB and *sql.Tx so every store method can
// run inside or outside a transaction unchanged.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type PostgresStore struct {
	db *sql.DB // nil when bound to a transaction
	q  querier
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, q: db}
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) InTx(ctx context.Context, fn func(Store) error) error {
	if s.db == nil {
		// Already transaction-bound.
		return fn(s)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(&PostgresStore{q: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// IsUniqueViolation reports whether err is a Postgres unique-constraint
// failure (SQLSTATE 23505). The heading and PDM id allocators rely on this as
// the backstop for concurrent max+1 races.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.SQLState() == "23505"
}

// ---- Headings ----

const headingColumns = `
	id, account_id, name, grouping_family, reference_url, workflow_stage, status,
	definition, aliases, category, companies, rank_points, heading_type,
	source_status, source_timestamp, updated_by, created_at, updated_at`

func scanHeading(row interface{ Scan(...any) error }) (Heading, error) {
	var h Heading
	err := row.Scan(
		&h.ID, &h.AccountID, &h.Name, &h.GroupingFamily, &h.ReferenceURL,
		&h.WorkflowStage, &h.Status, &h.Definition, &h.Aliases, &h.Category,
		&h.Companies, &h.RankPoints, &h.HeadingType, &h.SourceStatus,
		&h.SourceTimestamp, &h.UpdatedBy, &h.CreatedAt, &h.UpdatedAt,
	)
	return h, err
}

func (s *PostgresStore) NextHeadingID(ctx context.Context) (int64, error) {
	var next int64
	err := s.q.QueryRowContext(ctx, `SELECT COALESCE(MAX(id), 0) + 1 FROM headings`).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("next heading id: %w", err)
	}
	return next, nil
}

func (s *PostgresStore) FindHeadingByID(ctx context.Context, accountID, headingID int64) (*Heading, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+headingColumns+` FROM headings WHERE id=$1 AND account_id=$2`, headingID, accountID)
	h, err := scanHeading(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find heading by id: %w", err)
	}
	if err := s.loadFamilies(ctx, &h); err != nil {
		return nil, err
	}
	return &h, nil
}

func (s *PostgresStore) FindHeadingByName(ctx context.Context, accountID int64, name string) (*Heading, error) {
	row := s.q.QueryRowContext(ctx, `
		SELECT `+headingColumns+`
		FROM headings
		WHERE account_id=$1 AND LOWER(name)=LOWER($2)
		ORDER BY id
		LIMIT 1
	`, accountID, name)
	h, err := scanHeading(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find heading by name: %w", err)
	}
	if err := s.loadFamilies(ctx, &h); err != nil {
		return nil, err
	}
	return &h, nil
}

func (s *PostgresStore) GetHeading(ctx context.Context, accountID, headingID int64) (Heading, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+headingColumns+` FROM headings WHERE id=$1 AND account_id=$2`, headingID, accountID)
	h, err := scanHeading(row)
	if err != nil {
		return Heading{}, err
	}
	if err := s.loadFamilies(ctx, &h); err != nil {
		return Heading{}, err
	}
	return h, nil
}

func (s *PostgresStore) ListHeadings(ctx context.Context, accountID int64) ([]Heading, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT `+headingColumns+` FROM headings WHERE account_id=$1 ORDER BY id
	`, accountID)
	if err != nil {
		return nil, fmt.Errorf("list headings: %w", err)
	}
	defer rows.Close()

	items := make([]Heading, 0)
	for rows.Next() {
		h, err := scanHeading(rows)
		if err != nil {
			return nil, fmt.Errorf("scan heading: %w", err)
		}
		items = append(items, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate headings: %w", err)
	}

	famRows, err := s.q.QueryContext(ctx, `
		SELECT hf.heading_id, hf.family
		FROM heading_families hf
		JOIN headings h ON h.id = hf.heading_id
		WHERE h.account_id=$1
		ORDER BY hf.heading_id, hf.position
	`, accountID)
	if err != nil {
		return nil, fmt.Errorf("list heading families: %w", err)
	}
	defer famRows.Close()

	families := make(map[int64][]string)
	for famRows.Next() {
		var headingID int64
		var family string
		if err := famRows.Scan(&headingID, &family); err != nil {
			return nil, fmt.Errorf("scan heading family: %w", err)
		}
		families[headingID] = append(families[headingID], family)
	}
	if err := famRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate heading families: %w", err)
	}
	for i := range items {
		items[i].Families = families[items[i].ID]
	}
	return items, nil
}

func (s *PostgresStore) loadFamilies(ctx context.Context, h *Heading) error {
	rows, err := s.q.QueryContext(ctx, `
		SELECT family FROM heading_families WHERE heading_id=$1 ORDER BY position
	`, h.ID)
	if err != nil {
		return fmt.Errorf("load families: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var family string
		if err := rows.Scan(&family); err != nil {
			return fmt.Errorf("scan family: %w", err)
		}
		h.Families = append(h.Families, family)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate families: %w", err)
	}
	return nil
}

func (s *PostgresStore) InsertHeading(ctx context.Context, h Heading) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO headings (
			id, account_id, name, grouping_family, reference_url, workflow_stage, status,
			definition, aliases, category, companies, rank_points, heading_type,
			source_status, source_timestamp, updated_by
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`, h.ID, h.AccountID, h.Name, h.GroupingFamily, h.ReferenceURL, h.WorkflowStage, h.Status,
		h.Definition, h.Aliases, h.Category, h.Companies, h.RankPoints, h.HeadingType,
		h.SourceStatus, h.SourceTimestamp, h.UpdatedBy)
	if err != nil {
		return fmt.Errorf("insert heading: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateHeading(ctx context.Context, h Heading) error {
	_, err := s.q.ExecContext(ctx, `
		UPDATE headings
		SET name=$3, grouping_family=$4, reference_url=$5, workflow_stage=$6, status=$7,
			definition=$8, aliases=$9, category=$10, companies=$11, rank_points=$12,
			heading_type=$13, source_status=$14, source_timestamp=$15, updated_by=$16,
			updated_at=NOW()
		WHERE id=$1 AND account_id=$2
	`, h.ID, h.AccountID, h.Name, h.GroupingFamily, h.ReferenceURL, h.WorkflowStage, h.Status,
		h.Definition, h.Aliases, h.Category, h.Companies, h.RankPoints, h.HeadingType,
		h.SourceStatus, h.SourceTimestamp, h.UpdatedBy)
	if err != nil {
		return fmt.Errorf("update heading: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteHeading(ctx context.Context, accountID, headingID int64) (bool, error) {
	res, err := s.q.ExecContext(ctx, `DELETE FROM headings WHERE id=$1 AND account_id=$2`, headingID, accountID)
	if err != nil {
		return false, fmt.Errorf("delete heading: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete heading rows affected: %w", err)
	}
	return affected > 0, nil
}

func (s *PostgresStore) ReplaceHeadingFamilies(ctx context.Context, headingID int64, families []string) error {
	if _, err := s.q.ExecContext(ctx, `DELETE FROM heading_families WHERE heading_id=$1`, headingID); err != nil {
		return fmt.Errorf("clear heading families: %w", err)
	}
	for i, family := range families {
		if _, err := s.q.ExecContext(ctx, `
			INSERT INTO heading_families (heading_id, family, position) VALUES ($1, $2, $3)
		`, headingID, family, i); err != nil {
			return fmt.Errorf("insert heading family: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) SetHeadingStage(ctx context.Context, headingID int64, stage string, actor *string) error {
	_, err := s.q.ExecContext(ctx, `
		UPDATE headings SET workflow_stage=$2, updated_by=COALESCE($3, updated_by), updated_at=NOW() WHERE id=$1
	`, headingID, stage, actor)
	if err != nil {
		return fmt.Errorf("set heading stage: %w", err)
	}
	return nil
}

func (s *PostgresStore) SetHeadingStageBulk(ctx context.Context, headingIDs []int64, stage string, actor *string) error {
	if len(headingIDs) == 0 {
		return nil
	}
	_, err := s.q.ExecContext(ctx, `
		UPDATE headings SET workflow_stage=$2, updated_by=COALESCE($3, updated_by), updated_at=NOW() WHERE id = ANY($1)
	`, headingIDs, stage, actor)
	if err != nil {
		return fmt.Errorf("set heading stage bulk: %w", err)
	}
	return nil
}

func (s *PostgresStore) SetHeadingStatus(ctx context.Context, headingID int64, status string, actor *string) error {
	_, err := s.q.ExecContext(ctx, `
		UPDATE headings SET status=$2, updated_by=COALESCE($3, updated_by), updated_at=NOW() WHERE id=$1
	`, headingID, status, actor)
	if err != nil {
		return fmt.Errorf("set heading status: %w", err)
	}
	return nil
}

// MarkHeadingsAdditionalExcept flips every heading in the account that is not
// in matchedIDs to status 'additional' in a single statement and returns the
// flipped ids. This is how headings fall out of the baseline when a later
// snapshot omits them; the caller reindexes the returned ids.
func (s *PostgresStore) MarkHeadingsAdditionalExcept(ctx context.Context, accountID int64, matchedIDs []int64, actor *string) ([]int64, error) {
	if matchedIDs == nil {
		matchedIDs = []int64{}
	}
	rows, err := s.q.QueryContext(ctx, `
		UPDATE headings
		SET status=$3, updated_by=COALESCE($4, updated_by), updated_at=NOW()
		WHERE account_id=$1 AND NOT (id = ANY($2)) AND status <> $3
		RETURNING id
	`, accountID, matchedIDs, StatusAdditional, actor)
	if err != nil {
		return nil, fmt.Errorf("mark headings additional: %w", err)
	}
	defer rows.Close()

	var flipped []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan flipped heading id: %w", err)
		}
		flipped = append(flipped, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("mark headings additional: %w", err)
	}
	return flipped, nil
}

// MissingHeadingIDs returns the subset of headingIDs that do not exist inside
// the account, for field-scoped ownership errors.
func (s *PostgresStore) MissingHeadingIDs(ctx context.Context, accountID int64, headingIDs []int64) ([]int64, error) {
	if len(headingIDs) == 0 {
		return nil, nil
	}
	rows, err := s.q.QueryContext(ctx, `
		SELECT candidate.id
		FROM UNNEST($2::bigint[]) AS candidate(id)
		WHERE NOT EXISTS (
			SELECT 1 FROM headings h WHERE h.id = candidate.id AND h.account_id = $1
		)
	`, accountID, headingIDs)
	if err != nil {
		return nil, fmt.Errorf("check heading ownership: %w", err)
	}
	defer rows.Close()
	var missing []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan missing heading id: %w", err)
		}
		missing = append(missing, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate missing heading ids: %w", err)
	}
	return missing, nil
}

func (s *PostgresStore) CountPdmsReferencingHeading(ctx context.Context, accountID, headingID, excludePdmID int64) (int, error) {
	var count int
	err := s.q.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM pdm_headings ph
		JOIN pdms p ON p.id = ph.pdm_id
		WHERE ph.heading_id=$1 AND p.account_id=$2 AND ph.pdm_id <> $3
	`, headingID, accountID, excludePdmID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count referencing pdms: %w", err)
	}
	return count, nil
}

// ---- Import batches ----

func (s *PostgresStore) InsertImportBatch(ctx context.Context, b ImportBatch) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO import_batches (id, account_id, context_family, file_name, row_count, created_by)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, b.ID, b.AccountID, b.ContextFamily, b.FileName, b.RowCount, b.CreatedBy)
	if err != nil {
		return fmt.Errorf("insert import batch: %w", err)
	}
	return nil
}

func (s *PostgresStore) InsertImportBatchItems(ctx context.Context, items []ImportBatchItem) error {
	for _, item := range items {
		if _, err := s.q.ExecContext(ctx, `
			INSERT INTO import_batch_items (batch_id, heading_id, action) VALUES ($1, $2, $3)
		`, item.BatchID, item.HeadingID, item.Action); err != nil {
			return fmt.Errorf("insert import batch item: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) ListImportBatches(ctx context.Context, accountID int64) ([]ImportBatch, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, account_id, context_family, file_name, row_count, created_by, created_at
		FROM import_batches
		WHERE account_id=$1
		ORDER BY created_at DESC
	`, accountID)
	if err != nil {
		return nil, fmt.Errorf("list import batches: %w", err)
	}
	defer rows.Close()
	items := make([]ImportBatch, 0)
	for rows.Next() {
		var b ImportBatch
		if err := rows.Scan(&b.ID, &b.AccountID, &b.ContextFamily, &b.FileName, &b.RowCount, &b.CreatedBy, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan import batch: %w", err)
		}
		items = append(items, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate import batches: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) ListImportBatchItems(ctx context.Context, batchID string) ([]ImportBatchItem, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT batch_id, heading_id, action FROM import_batch_items WHERE batch_id=$1 ORDER BY heading_id
	`, batchID)
	if err != nil {
		return nil, fmt.Errorf("list import batch items: %w", err)
	}
	defer rows.Close()
	items := make([]ImportBatchItem, 0)
	for rows.Next() {
		var item ImportBatchItem
		if err := rows.Scan(&item.BatchID, &item.HeadingID, &item.Action); err != nil {
			return nil, fmt.Errorf("scan import batch item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate import batch items: %w", err)
	}
	return items, nil
}

// ---- Snapshots ----

func (s *PostgresStore) DeactivateSnapshots(ctx context.Context, accountID int64) error {
	_, err := s.q.ExecContext(ctx, `
		UPDATE existing_heading_snapshots SET is_active=FALSE WHERE account_id=$1 AND is_active
	`, accountID)
	if err != nil {
		return fmt.Errorf("deactivate snapshots: %w", err)
	}
	return nil
}

func (s *PostgresStore) InsertSnapshot(ctx context.Context, snap Snapshot) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO existing_heading_snapshots (id, account_id, file_name, is_active, uploaded_by)
		VALUES ($1, $2, $3, $4, $5)
	`, snap.ID, snap.AccountID, snap.FileName, snap.IsActive, snap.UploadedBy)
	if err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	return nil
}

func (s *PostgresStore) InsertSnapshotItems(ctx context.Context, items []SnapshotItem) error {
	for _, item := range items {
		if _, err := s.q.ExecContext(ctx, `
			INSERT INTO existing_heading_snapshot_items (snapshot_id, heading_id, name, rank_points, position)
			VALUES ($1, $2, $3, $4, $5)
		`, item.SnapshotID, item.HeadingID, item.Name, item.RankPoints, item.Position); err != nil {
			return fmt.Errorf("insert snapshot item: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) ActiveSnapshot(ctx context.Context, accountID int64) (*Snapshot, error) {
	var snap Snapshot
	err := s.q.QueryRowContext(ctx, `
		SELECT id, account_id, file_name, is_active, uploaded_by, created_at
		FROM existing_heading_snapshots
		WHERE account_id=$1 AND is_active
	`, accountID).Scan(&snap.ID, &snap.AccountID, &snap.FileName, &snap.IsActive, &snap.UploadedBy, &snap.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("active snapshot: %w", err)
	}
	return &snap, nil
}

func (s *PostgresStore) ListSnapshots(ctx context.Context, accountID int64) ([]Snapshot, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, account_id, file_name, is_active, uploaded_by, created_at
		FROM existing_heading_snapshots
		WHERE account_id=$1
		ORDER BY created_at DESC
	`, accountID)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()
	items := make([]Snapshot, 0)
	for rows.Next() {
		var snap Snapshot
		if err := rows.Scan(&snap.ID, &snap.AccountID, &snap.FileName, &snap.IsActive, &snap.UploadedBy, &snap.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		items = append(items, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshots: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) ListSnapshotItems(ctx context.Context, snapshotID string) ([]SnapshotItem, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, snapshot_id, heading_id, name, rank_points, position
		FROM existing_heading_snapshot_items
		WHERE snapshot_id=$1
		ORDER BY position
	`, snapshotID)
	if err != nil {
		return nil, fmt.Errorf("list snapshot items: %w", err)
	}
	defer rows.Close()
	items := make([]SnapshotItem, 0)
	for rows.Next() {
		var item SnapshotItem
		if err := rows.Scan(&item.ID, &item.SnapshotID, &item.HeadingID, &item.Name, &item.RankPoints, &item.Position); err != nil {
			return nil, fmt.Errorf("scan snapshot item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshot items: %w", err)
	}
	return items, nil
}
