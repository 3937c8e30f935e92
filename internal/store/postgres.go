package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// PostgresBackend stores documents in a single JSONB-bodied table with a
// revision counter per row. Revision checks happen in the WHERE clause of
// the write, so a stale token surfaces as zero affected rows.
type PostgresBackend struct {
	db *sql.DB
}

func NewPostgresBackend(db *sql.DB) *PostgresBackend {
	return &PostgresBackend{db: db}
}

func (b *PostgresBackend) DB() *sql.DB {
	return b.db
}

func (b *PostgresBackend) Get(ctx context.Context, id string) (Doc, error) {
	const query = `SELECT id, doc_type, rev, updated_at, body FROM documents WHERE id = $1`
	var doc Doc
	err := b.db.QueryRowContext(ctx, query, id).Scan(&doc.ID, &doc.Type, &doc.Rev, &doc.UpdatedAt, &doc.Body)
	if errors.Is(err, sql.ErrNoRows) {
		return Doc{}, ErrNotFound
	}
	if err != nil {
		return Doc{}, fmt.Errorf("get document: %w", err)
	}
	return doc, nil
}

func (b *PostgresBackend) Put(ctx context.Context, doc Doc) (int64, error) {
	if doc.Rev == 0 {
		const insert = `
			INSERT INTO documents (id, doc_type, rev, updated_at, body)
			VALUES ($1, $2, 1, $3, $4)
			ON CONFLICT (id) DO NOTHING
			RETURNING rev
		`
		var rev int64
		err := b.db.QueryRowContext(ctx, insert, doc.ID, doc.Type, doc.UpdatedAt, doc.Body).Scan(&rev)
		if errors.Is(err, sql.ErrNoRows) {
			// Row already exists: creating without a revision is a conflict.
			return 0, ErrConflict
		}
		if err != nil {
			return 0, fmt.Errorf("insert document: %w", err)
		}
		return rev, nil
	}

	const update = `
		UPDATE documents
		SET rev = rev + 1, updated_at = $3, body = $4
		WHERE id = $1 AND rev = $2
		RETURNING rev
	`
	var rev int64
	err := b.db.QueryRowContext(ctx, update, doc.ID, doc.Rev, doc.UpdatedAt, doc.Body).Scan(&rev)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrConflict
	}
	if err != nil {
		return 0, fmt.Errorf("update document: %w", err)
	}
	return rev, nil
}

func (b *PostgresBackend) Delete(ctx context.Context, id string) error {
	res, err := b.db.ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

// fieldPattern limits selector and sort field names to plain identifiers,
// since they are spliced into the query text.
var fieldPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

func (b *PostgresBackend) Find(ctx context.Context, q Query) ([]Doc, error) {
	var sb strings.Builder
	sb.WriteString(`SELECT id, doc_type, rev, updated_at, body FROM documents WHERE doc_type = $1`)
	args := []any{q.Type}

	for field, value := range q.Eq {
		if !fieldPattern.MatchString(field) {
			return nil, fmt.Errorf("invalid selector field %q", field)
		}
		args = append(args, fmt.Sprintf("%v", value))
		fmt.Fprintf(&sb, ` AND body->>'%s' = $%d`, field, len(args))
	}

	if len(q.Sort) > 0 {
		var clauses []string
		for _, s := range q.Sort {
			if !fieldPattern.MatchString(s.Field) {
				return nil, fmt.Errorf("invalid sort field %q", s.Field)
			}
			direction := "ASC"
			if s.Desc {
				direction = "DESC"
			}
			expr := fmt.Sprintf("body->>'%s'", s.Field)
			if s.Field == "updated_at" {
				expr = "updated_at"
			}
			clauses = append(clauses, expr+" "+direction)
		}
		sb.WriteString(" ORDER BY " + strings.Join(clauses, ", "))
	}

	if q.Limit > 0 {
		args = append(args, q.Limit)
		fmt.Fprintf(&sb, " LIMIT $%d", len(args))
	}

	rows, err := b.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("find documents: %w", err)
	}
	defer rows.Close()

	var docs []Doc
	for rows.Next() {
		var doc Doc
		if err := rows.Scan(&doc.ID, &doc.Type, &doc.Rev, &doc.UpdatedAt, &doc.Body); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}
