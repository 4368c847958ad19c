package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgFTS implements Searcher using PostgreSQL full-text search as a fallback.
type PgFTS struct {
	db *sql.DB
}

// NewPgFTS creates a PostgreSQL FTS searcher.
func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true. If Postgres is down, the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

const headingTsVector = "to_tsvector('english', h.name || ' ' || h.aliases || ' ' || h.definition)"

// Search runs plainto_tsquery over name, aliases and definition, ranked by
// ts_rank with ts_headline snippets.
func (p *PgFTS) Search(q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	const tsQuery = "plainto_tsquery('english', $1)"
	where := headingTsVector + " @@ " + tsQuery + " AND h.account_id = $2"
	args := []any{q.Text, q.AccountID}

	ctx := context.Background()

	var total int
	countSQL := "SELECT count(*) FROM headings h WHERE " + where
	if err := p.db.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	dataSQL := fmt.Sprintf(`
		SELECT id, name, snippet, families, status, workflow_stage FROM (
			SELECT h.id, h.name,
				ts_headline('english', coalesce(h.definition, ''), %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				coalesce((SELECT string_agg(f.family, ',' ORDER BY f.position) FROM heading_families f WHERE f.heading_id = h.id), '') AS families,
				h.status, h.workflow_stage,
				ts_rank(%s, %s) AS rank
			FROM headings h
			WHERE %s
		) sub
		ORDER BY rank DESC
		LIMIT %d OFFSET %d`, tsQuery, headingTsVector, tsQuery, where, limit, offset)

	rows, err := p.db.QueryContext(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		var families string
		if err := rows.Scan(&r.ID, &r.Name, &r.Snippet, &families, &r.Status, &r.Stage); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		if families != "" {
			r.Families = strings.Split(families, ",")
		}
		results = append(results, r)
	}

	return results, total, rows.Err()
}

// LoadAllRecords returns every heading for full reindexing.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]HeadingRecord, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT h.id, h.account_id, h.name,
			coalesce((SELECT string_agg(f.family, ',' ORDER BY f.position) FROM heading_families f WHERE f.heading_id = h.id), ''),
			h.status, h.workflow_stage
		FROM headings h
	`)
	if err != nil {
		return nil, fmt.Errorf("load headings: %w", err)
	}
	defer rows.Close()

	headings := make([]HeadingRecord, 0)
	for rows.Next() {
		var h HeadingRecord
		var families string
		if err := rows.Scan(&h.ID, &h.AccountID, &h.Name, &families, &h.Status, &h.Stage); err != nil {
			return nil, fmt.Errorf("scan heading: %w", err)
		}
		if families != "" {
			h.Families = strings.Split(families, ",")
		}
		headings = append(headings, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate headings: %w", err)
	}
	return headings, nil
}
