package search

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
)

// PgFTS implements Searcher with PostgreSQL full-text search over the
// stored page documents. It is the fallback when Meilisearch is down:
// coarser (whole pages, no chunking) but always available.
type PgFTS struct {
	db *sql.DB
}

func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true. If Postgres is down, the whole bot is down.
func (p *PgFTS) Healthy() bool {
	return true
}

// Search runs plainto_tsquery over page title and content. The 'simple'
// configuration avoids language-specific stemming since page content
// mixes German and English.
func (p *PgFTS) Search(ctx context.Context, q Query) ([]Result, int, error) {
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

	const docText = `coalesce(body#>>'{ocs,title}', '') || ' ' || coalesce(body->>'content', '')`
	tsVector := "to_tsvector('simple', " + docText + ")"
	tsQuery := "plainto_tsquery('simple', $1)"

	where := fmt.Sprintf("doc_type = 'Page' AND %s @@ %s", tsVector, tsQuery)
	args := []any{q.Text}
	argN := 2

	if q.Subtype != "" {
		where += fmt.Sprintf(" AND coalesce(body->>'subtype', '') = $%d", argN)
		args = append(args, q.Subtype)
		argN++
	}
	if q.GroupID != "" {
		// Page bodies carry no group id. The pages of a group are its
		// own landing page (the Group document) plus every protocol
		// that resolved to it.
		where += fmt.Sprintf(` AND coalesce(body#>>'{ocs,id}', '') IN (
			SELECT body->>'page_id' FROM documents
			WHERE (doc_type = 'Group' AND id = $%d)
			   OR (doc_type = 'Protocol' AND body->>'group_id' = $%d)
		)`, argN, argN)
		args = append(args, q.GroupID)
	}

	countSQL := "SELECT count(*) FROM documents WHERE " + where

	var total int
	if err := p.db.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	dataSQL := fmt.Sprintf(`
		SELECT id,
			coalesce(body#>>'{ocs,id}', '0'),
			coalesce(body#>>'{ocs,title}', ''),
			coalesce(body->>'subtype', ''),
			ts_headline('simple', %s, %s, 'MaxFragments=1,MaxWords=30')
		FROM documents
		WHERE %s
		ORDER BY ts_rank(%s, %s) DESC
		LIMIT %d OFFSET %d`,
		docText, tsQuery, where, tsVector, tsQuery, limit, offset)

	rows, err := p.db.QueryContext(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		var pageID string
		if err := rows.Scan(&r.ID, &pageID, &r.Title, &r.Subtype, &r.Snippet); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		r.PageID, _ = strconv.Atoi(pageID)
		results = append(results, r)
	}
	return results, total, rows.Err()
}
