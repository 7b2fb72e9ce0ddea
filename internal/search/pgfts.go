package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

const (
	// ftsExpr must stay in sync with the idx_catalog_entries_fts GIN
	// index, or every search degrades to a sequential scan.
	ftsExpr = "to_tsvector('english', title || ' ' || description)"
	tsQuery = "plainto_tsquery('english', $1)"
)

// PgFTS is the fallback Searcher: PostgreSQL full-text search over the
// catalog snapshot.
type PgFTS struct {
	db *sql.DB
}

// NewPgFTS wraps the shared connection pool.
func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true. If Postgres is down, the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

// Search queries catalog_entries with plainto_tsquery and ts_rank, using
// ts_headline to build snippets.
func (p *PgFTS) Search(q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}

	where, args := buildWhere(q)
	ctx := context.Background()

	var total int
	countSQL := "SELECT count(*) FROM catalog_entries WHERE " + where
	if err := p.db.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts: count matches: %w", err)
	}
	if total == 0 {
		return nil, 0, nil
	}

	rows, err := p.db.QueryContext(ctx, dataQuery(q, where), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts: run query: %w", err)
	}
	defer rows.Close()

	results, err := scanMatches(rows)
	if err != nil {
		return nil, 0, err
	}
	return results, total, nil
}

// buildWhere assembles the WHERE clause and its positional args. $1 is
// always the query text; filters take the slots after it.
func buildWhere(q Query) (string, []any) {
	args := []any{q.Text}
	clauses := []string{ftsExpr + " @@ " + tsQuery}
	if q.FilterKind != "" {
		args = append(args, string(q.FilterKind))
		clauses = append(clauses, fmt.Sprintf("kind = $%d", len(args)))
	}
	if q.FilterStatus != "" {
		args = append(args, q.FilterStatus)
		clauses = append(clauses, fmt.Sprintf("status = $%d", len(args)))
	}
	if q.HideDrafts {
		clauses = append(clauses, "status NOT IN ('DRAFTING', 'DRAFT')")
	}
	return strings.Join(clauses, " AND "), args
}

func dataQuery(q Query, where string) string {
	limit, offset := q.Limit, q.Offset
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return fmt.Sprintf(`
		SELECT kind, id, title,
			ts_headline('english', coalesce(description, ''), %s, 'MaxFragments=1,MaxWords=30') AS snippet,
			status, source,
			ts_rank(%s, %s) AS rank
		FROM catalog_entries
		WHERE %s
		ORDER BY rank DESC
		LIMIT %d OFFSET %d`,
		tsQuery, ftsExpr, tsQuery, where, limit, offset)
}

func scanMatches(rows *sql.Rows) ([]Result, error) {
	var results []Result
	for rows.Next() {
		var (
			r    Result
			kind string
			rank float64
		)
		if err := rows.Scan(&kind, &r.ID, &r.Title, &r.Snippet, &r.Status, &r.Source, &rank); err != nil {
			return nil, fmt.Errorf("pgfts: scan row: %w", err)
		}
		r.Type = ResultType(kind)
		results = append(results, r)
	}
	return results, rows.Err()
}

// LoadAllRecords returns every catalog entry for full reindexing.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]CatalogRecord, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, kind, title, description, status, source
		FROM catalog_entries
	`)
	if err != nil {
		return nil, fmt.Errorf("load catalog entries: %w", err)
	}
	defer rows.Close()

	records := make([]CatalogRecord, 0)
	for rows.Next() {
		var rec CatalogRecord
		if err := rows.Scan(&rec.ID, &rec.Kind, &rec.Title, &rec.Description, &rec.Status, &rec.Source); err != nil {
			return nil, fmt.Errorf("scan catalog entry: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate catalog entries: %w", err)
	}

	return records, nil
}
