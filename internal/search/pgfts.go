package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgFTS implements suggestion search with PostgreSQL full-text search,
// used when Meilisearch is absent or unhealthy.
type PgFTS struct {
	db *sql.DB
}

func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true. If Postgres is down, the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

func (p *PgFTS) Search(q Query) ([]SuggestionRecord, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}

	where := "NOT s.hidden AND NOT s.applied AND to_tsvector('english', s.body) @@ plainto_tsquery('english', $1)"
	args := []any{q.Text}
	if q.ParagraphID != "" {
		where += " AND s.paragraph_id = $2"
		args = append(args, q.ParagraphID)
	}

	countSQL := "SELECT count(*) FROM suggestions s WHERE " + where
	var total int
	if err := p.db.QueryRow(countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count suggestion matches: %w", err)
	}

	dataSQL := fmt.Sprintf(`
		SELECT s.id, s.paragraph_id, p.document_id, s.body, s.consensus, s.evidence_status, s.applied
		FROM suggestions s
		JOIN paragraphs p ON p.id = s.paragraph_id
		WHERE %s
		ORDER BY ts_rank(to_tsvector('english', s.body), plainto_tsquery('english', $1)) DESC
		LIMIT %d`, where, limit)

	rows, err := p.db.Query(dataSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("search suggestions: %w", err)
	}
	defer rows.Close()

	var results []SuggestionRecord
	for rows.Next() {
		var r SuggestionRecord
		if err := rows.Scan(&r.ID, &r.ParagraphID, &r.DocumentID, &r.Text, &r.Consensus, &r.Status, &r.Applied); err != nil {
			return nil, 0, fmt.Errorf("scan suggestion match: %w", err)
		}
		results = append(results, r)
	}
	return results, total, rows.Err()
}

// LoadAllRecords reads every visible suggestion for reindexing.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]SuggestionRecord, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT s.id, s.paragraph_id, p.document_id, s.body, s.consensus, s.evidence_status, s.applied
		FROM suggestions s
		JOIN paragraphs p ON p.id = s.paragraph_id
		WHERE NOT s.hidden`)
	if err != nil {
		return nil, fmt.Errorf("load suggestion records: %w", err)
	}
	defer rows.Close()

	var records []SuggestionRecord
	for rows.Next() {
		var r SuggestionRecord
		if err := rows.Scan(&r.ID, &r.ParagraphID, &r.DocumentID, &r.Text, &r.Consensus, &r.Status, &r.Applied); err != nil {
			return nil, fmt.Errorf("scan suggestion record: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}
