package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// ---- PDMs ----

const pdmColumns = `
	id, account_id, is_copro, url, company_types, description, comment, word_count,
	uploaded, qc_status, rectification_status, validation_status,
	is_qc_edited, is_description_updated, created_by, created_at, updated_at`

func scanPdm(row interface{ Scan(...any) error }) (Pdm, error) {
	var p Pdm
	var companyTypes []byte
	err := row.Scan(
		&p.ID, &p.AccountID, &p.IsCopro, &p.URL, &companyTypes, &p.Description,
		&p.Comment, &p.WordCount, &p.Uploaded, &p.QcStatus, &p.RectificationStatus,
		&p.ValidationStatus, &p.IsQcEdited, &p.IsDescriptionUpdated, &p.CreatedBy,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return Pdm{}, err
	}
	if len(companyTypes) > 0 {
		if err := json.Unmarshal(companyTypes, &p.CompanyTypes); err != nil {
			return Pdm{}, fmt.Errorf("unmarshal company types: %w", err)
		}
	}
	return p, nil
}

// MaxPdmIDInRange returns the highest PDM id inside [lo, hi] across all
// accounts, and whether any exists. The allocator's uniqueness backstop is the
// primary key.
func (s *PostgresStore) MaxPdmIDInRange(ctx context.Context, lo, hi int64) (int64, bool, error) {
	var max sql.NullInt64
	err := s.q.QueryRowContext(ctx, `SELECT MAX(id) FROM pdms WHERE id BETWEEN $1 AND $2`, lo, hi).Scan(&max)
	if err != nil {
		return 0, false, fmt.Errorf("max pdm id in range: %w", err)
	}
	return max.Int64, max.Valid, nil
}

func (s *PostgresStore) InsertPdm(ctx context.Context, p Pdm) error {
	companyTypes, err := json.Marshal(nonNilStrings(p.CompanyTypes))
	if err != nil {
		return fmt.Errorf("marshal company types: %w", err)
	}
	_, err = s.q.ExecContext(ctx, `
		INSERT INTO pdms (
			id, account_id, is_copro, url, company_types, description, comment, word_count,
			uploaded, qc_status, rectification_status, validation_status,
			is_qc_edited, is_description_updated, created_by
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`, p.ID, p.AccountID, p.IsCopro, p.URL, companyTypes, p.Description, p.Comment, p.WordCount,
		p.Uploaded, p.QcStatus, p.RectificationStatus, p.ValidationStatus,
		p.IsQcEdited, p.IsDescriptionUpdated, p.CreatedBy)
	if err != nil {
		return fmt.Errorf("insert pdm: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetPdm(ctx context.Context, accountID, pdmID int64) (Pdm, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+pdmColumns+` FROM pdms WHERE id=$1 AND account_id=$2`, pdmID, accountID)
	return scanPdm(row)
}

func (s *PostgresStore) UpdatePdm(ctx context.Context, p Pdm) error {
	companyTypes, err := json.Marshal(nonNilStrings(p.CompanyTypes))
	if err != nil {
		return fmt.Errorf("marshal company types: %w", err)
	}
	_, err = s.q.ExecContext(ctx, `
		UPDATE pdms
		SET is_copro=$3, url=$4, company_types=$5, description=$6, comment=$7, word_count=$8,
			uploaded=$9, qc_status=$10, rectification_status=$11, validation_status=$12,
			is_qc_edited=$13, is_description_updated=$14, updated_at=NOW()
		WHERE id=$1 AND account_id=$2
	`, p.ID, p.AccountID, p.IsCopro, p.URL, companyTypes, p.Description, p.Comment, p.WordCount,
		p.Uploaded, p.QcStatus, p.RectificationStatus, p.ValidationStatus,
		p.IsQcEdited, p.IsDescriptionUpdated)
	if err != nil {
		return fmt.Errorf("update pdm: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeletePdm(ctx context.Context, accountID, pdmID int64) (bool, error) {
	res, err := s.q.ExecContext(ctx, `DELETE FROM pdms WHERE id=$1 AND account_id=$2`, pdmID, accountID)
	if err != nil {
		return false, fmt.Errorf("delete pdm: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete pdm rows affected: %w", err)
	}
	return affected > 0, nil
}

func (s *PostgresStore) ListPdms(ctx context.Context, accountID int64) ([]Pdm, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT `+pdmColumns+` FROM pdms WHERE account_id=$1 ORDER BY id DESC
	`, accountID)
	if err != nil {
		return nil, fmt.Errorf("list pdms: %w", err)
	}
	defer rows.Close()
	items := make([]Pdm, 0)
	for rows.Next() {
		p, err := scanPdm(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pdm: %w", err)
		}
		items = append(items, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pdms: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) ReplacePdmHeadings(ctx context.Context, pdmID int64, refs []PdmHeading) error {
	if _, err := s.q.ExecContext(ctx, `DELETE FROM pdm_headings WHERE pdm_id=$1`, pdmID); err != nil {
		return fmt.Errorf("clear pdm headings: %w", err)
	}
	for _, ref := range refs {
		if _, err := s.q.ExecContext(ctx, `
			INSERT INTO pdm_headings (pdm_id, heading_id, sort_order) VALUES ($1, $2, $3)
		`, pdmID, ref.HeadingID, ref.SortOrder); err != nil {
			return fmt.Errorf("insert pdm heading: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) ListPdmHeadings(ctx context.Context, pdmID int64) ([]PdmHeading, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT pdm_id, heading_id, sort_order FROM pdm_headings WHERE pdm_id=$1 ORDER BY sort_order
	`, pdmID)
	if err != nil {
		return nil, fmt.Errorf("list pdm headings: %w", err)
	}
	defer rows.Close()
	items := make([]PdmHeading, 0)
	for rows.Next() {
		var ref PdmHeading
		if err := rows.Scan(&ref.PdmID, &ref.HeadingID, &ref.SortOrder); err != nil {
			return nil, fmt.Errorf("scan pdm heading: %w", err)
		}
		items = append(items, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pdm headings: %w", err)
	}
	return items, nil
}

// ---- Status events ----

func (s *PostgresStore) InsertStatusEvent(ctx context.Context, e PdmStatusEvent) error {
	var fromUploaded, toUploaded *bool
	var fromQc, fromRect, fromVal, toQc, toRect, toVal *string
	if e.From != nil {
		fromUploaded = &e.From.Uploaded
		fromQc = &e.From.QcStatus
		fromRect = &e.From.RectificationStatus
		fromVal = &e.From.ValidationStatus
	}
	if e.To != nil {
		toUploaded = &e.To.Uploaded
		toQc = &e.To.QcStatus
		toRect = &e.To.RectificationStatus
		toVal = &e.To.ValidationStatus
	}
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO pdm_status_events (
			pdm_id, account_id, event_type,
			from_uploaded, from_qc_status, from_rectification_status, from_validation_status,
			to_uploaded, to_qc_status, to_rectification_status, to_validation_status,
			actor
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, e.PdmID, e.AccountID, e.EventType,
		fromUploaded, fromQc, fromRect, fromVal,
		toUploaded, toQc, toRect, toVal,
		e.Actor)
	if err != nil {
		return fmt.Errorf("insert status event: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListStatusEvents(ctx context.Context, accountID, pdmID int64) ([]PdmStatusEvent, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, pdm_id, account_id, event_type,
			from_uploaded, from_qc_status, from_rectification_status, from_validation_status,
			to_uploaded, to_qc_status, to_rectification_status, to_validation_status,
			actor, created_at
		FROM pdm_status_events
		WHERE pdm_id=$1 AND account_id=$2
		ORDER BY id
	`, pdmID, accountID)
	if err != nil {
		return nil, fmt.Errorf("list status events: %w", err)
	}
	defer rows.Close()
	items := make([]PdmStatusEvent, 0)
	for rows.Next() {
		var e PdmStatusEvent
		var fromUploaded, toUploaded *bool
		var fromQc, fromRect, fromVal, toQc, toRect, toVal *string
		if err := rows.Scan(&e.ID, &e.PdmID, &e.AccountID, &e.EventType,
			&fromUploaded, &fromQc, &fromRect, &fromVal,
			&toUploaded, &toQc, &toRect, &toVal,
			&e.Actor, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan status event: %w", err)
		}
		if fromUploaded != nil {
			e.From = &PdmState{Uploaded: *fromUploaded, QcStatus: deref(fromQc), RectificationStatus: deref(fromRect), ValidationStatus: deref(fromVal)}
		}
		if toUploaded != nil {
			e.To = &PdmState{Uploaded: *toUploaded, QcStatus: deref(toQc), RectificationStatus: deref(toRect), ValidationStatus: deref(toVal)}
		}
		items = append(items, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate status events: %w", err)
	}
	return items, nil
}

// ---- QC feedback ----

func (s *PostgresStore) GetQcFeedback(ctx context.Context, pdmID int64) (*QcFeedback, error) {
	var f QcFeedback
	err := s.q.QueryRowContext(ctx, `
		SELECT pdm_id, updated_description, comment, submitted_by, submitted_at
		FROM pdm_qc_feedback
		WHERE pdm_id=$1
	`, pdmID).Scan(&f.PdmID, &f.UpdatedDescription, &f.Comment, &f.SubmittedBy, &f.SubmittedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get qc feedback: %w", err)
	}
	rows, err := s.q.QueryContext(ctx, `
		SELECT category FROM pdm_qc_feedback_errors WHERE pdm_id=$1 ORDER BY position
	`, pdmID)
	if err != nil {
		return nil, fmt.Errorf("load feedback categories: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var category string
		if err := rows.Scan(&category); err != nil {
			return nil, fmt.Errorf("scan feedback category: %w", err)
		}
		f.Categories = append(f.Categories, category)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate feedback categories: %w", err)
	}
	return &f, nil
}

func (s *PostgresStore) UpsertQcFeedback(ctx context.Context, f QcFeedback) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO pdm_qc_feedback (pdm_id, updated_description, comment, submitted_by, submitted_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (pdm_id) DO UPDATE
		SET updated_description=EXCLUDED.updated_description,
			comment=EXCLUDED.comment,
			submitted_by=EXCLUDED.submitted_by,
			submitted_at=NOW()
	`, f.PdmID, f.UpdatedDescription, f.Comment, f.SubmittedBy)
	if err != nil {
		return fmt.Errorf("upsert qc feedback: %w", err)
	}
	return nil
}

func (s *PostgresStore) ReplaceFeedbackErrors(ctx context.Context, pdmID int64, categories []string) error {
	if _, err := s.q.ExecContext(ctx, `DELETE FROM pdm_qc_feedback_errors WHERE pdm_id=$1`, pdmID); err != nil {
		return fmt.Errorf("clear feedback errors: %w", err)
	}
	for i, category := range categories {
		if _, err := s.q.ExecContext(ctx, `
			INSERT INTO pdm_qc_feedback_errors (pdm_id, category, position) VALUES ($1, $2, $3)
		`, pdmID, category, i); err != nil {
			return fmt.Errorf("insert feedback error: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) InsertFeedbackHistory(ctx context.Context, entry FeedbackHistoryEntry) error {
	categories, err := json.Marshal(nonNilStrings(entry.Categories))
	if err != nil {
		return fmt.Errorf("marshal history categories: %w", err)
	}
	_, err = s.q.ExecContext(ctx, `
		INSERT INTO pdm_feedback_history (pdm_id, updated_description, comment, categories, submitted_by)
		VALUES ($1, $2, $3, $4, $5)
	`, entry.PdmID, entry.UpdatedDescription, entry.Comment, categories, entry.SubmittedBy)
	if err != nil {
		return fmt.Errorf("insert feedback history: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListFeedbackHistory(ctx context.Context, pdmID int64) ([]FeedbackHistoryEntry, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, pdm_id, updated_description, comment, categories, submitted_by, created_at
		FROM pdm_feedback_history
		WHERE pdm_id=$1
		ORDER BY id
	`, pdmID)
	if err != nil {
		return nil, fmt.Errorf("list feedback history: %w", err)
	}
	defer rows.Close()
	items := make([]FeedbackHistoryEntry, 0)
	for rows.Next() {
		var entry FeedbackHistoryEntry
		var categories []byte
		if err := rows.Scan(&entry.ID, &entry.PdmID, &entry.UpdatedDescription, &entry.Comment, &categories, &entry.SubmittedBy, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan feedback history: %w", err)
		}
		if len(categories) > 0 {
			if err := json.Unmarshal(categories, &entry.Categories); err != nil {
				return nil, fmt.Errorf("unmarshal history categories: %w", err)
			}
		}
		items = append(items, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate feedback history: %w", err)
	}
	return items, nil
}

// ---- Standalone QC error reports ----

func (s *PostgresStore) InsertQcErrorReport(ctx context.Context, r QcErrorReport) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO qc_errors (id, account_id, heading_id, description, rectification_status, validation_status, reported_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, r.ID, r.AccountID, r.HeadingID, r.Description, r.RectificationStatus, r.ValidationStatus, r.ReportedBy)
	if err != nil {
		return fmt.Errorf("insert qc error report: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetQcErrorReport(ctx context.Context, accountID int64, id string) (QcErrorReport, error) {
	var r QcErrorReport
	err := s.q.QueryRowContext(ctx, `
		SELECT id, account_id, heading_id, description, rectification_status, validation_status, reported_by, created_at, updated_at
		FROM qc_errors
		WHERE id=$1 AND account_id=$2
	`, id, accountID).Scan(&r.ID, &r.AccountID, &r.HeadingID, &r.Description, &r.RectificationStatus, &r.ValidationStatus, &r.ReportedBy, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return QcErrorReport{}, err
	}
	return r, nil
}

func (s *PostgresStore) ListQcErrorReports(ctx context.Context, accountID int64) ([]QcErrorReport, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, account_id, heading_id, description, rectification_status, validation_status, reported_by, created_at, updated_at
		FROM qc_errors
		WHERE account_id=$1
		ORDER BY created_at DESC
	`, accountID)
	if err != nil {
		return nil, fmt.Errorf("list qc error reports: %w", err)
	}
	defer rows.Close()
	items := make([]QcErrorReport, 0)
	for rows.Next() {
		var r QcErrorReport
		if err := rows.Scan(&r.ID, &r.AccountID, &r.HeadingID, &r.Description, &r.RectificationStatus, &r.ValidationStatus, &r.ReportedBy, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan qc error report: %w", err)
		}
		items = append(items, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate qc error reports: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) UpdateQcErrorStatus(ctx context.Context, accountID int64, id, rectification, validation string) (bool, error) {
	res, err := s.q.ExecContext(ctx, `
		UPDATE qc_errors SET rectification_status=$3, validation_status=$4, updated_at=NOW()
		WHERE id=$1 AND account_id=$2
	`, id, accountID, rectification, validation)
	if err != nil {
		return false, fmt.Errorf("update qc error status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update qc error rows affected: %w", err)
	}
	return affected > 0, nil
}

// ---- Activity log ----

func (s *PostgresStore) InsertActivity(ctx context.Context, entry ActivityEntry) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO activity_log (account_id, action, details, actor, entity_type, entity_id)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, entry.AccountID, entry.Action, entry.Details, entry.Actor, entry.EntityType, entry.EntityID)
	if err != nil {
		return fmt.Errorf("insert activity: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListActivity(ctx context.Context, accountID int64, limit int) ([]ActivityEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, account_id, action, details, actor, entity_type, entity_id, created_at
		FROM activity_log
		WHERE account_id=$1
		ORDER BY id DESC
		LIMIT $2
	`, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("list activity: %w", err)
	}
	defer rows.Close()
	items := make([]ActivityEntry, 0)
	for rows.Next() {
		var entry ActivityEntry
		if err := rows.Scan(&entry.ID, &entry.AccountID, &entry.Action, &entry.Details, &entry.Actor, &entry.EntityType, &entry.EntityID, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		items = append(items, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate activity: %w", err)
	}
	return items, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func nonNilStrings(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
