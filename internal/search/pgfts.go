package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgFTS searches episodes with PostgreSQL full-text search as a fallback.
// It relies on the generated search_tsv column on episodes.
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

// Search runs plainto_tsquery over the episode tsvector with ts_headline
// snippets, ranked by ts_rank.
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

	const where = `e.search_tsv @@ plainto_tsquery('simple', $1)
		AND ($2 = 0 OR e.track_id = $2)`

	var total int
	countSQL := fmt.Sprintf(`SELECT count(*) FROM episodes e WHERE %s`, where)
	if err := p.db.QueryRowContext(ctx, countSQL, q.Text, q.TrackID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	dataSQL := fmt.Sprintf(`
		SELECT e.id, e.title,
			ts_headline('simple', coalesce(NULLIF(e.scenario, ''), e.plan),
				plainto_tsquery('simple', $1),
				'MaxFragments=1,MaxWords=30,StartSel=<mark>,StopSel=</mark>') AS snippet,
			e.track_id, e.status
		FROM episodes e
		WHERE %s
		ORDER BY ts_rank(e.search_tsv, plainto_tsquery('simple', $1)) DESC, e.id
		LIMIT %d OFFSET %d`, where, limit, offset)

	rows, err := p.db.QueryContext(ctx, dataSQL, q.Text, q.TrackID)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts search: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.EpisodeID, &r.Title, &r.Snippet, &r.TrackID, &r.Status); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		results = append(results, r)
	}
	return results, total, rows.Err()
}

// LoadAllRecords reads every episode for bulk reindexing into Meilisearch.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]EpisodeRecord, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT id, title, plan, scenario, track_id, status FROM episodes ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("pgfts load records: %w", err)
	}
	defer rows.Close()

	var records []EpisodeRecord
	for rows.Next() {
		var rec EpisodeRecord
		if err := rows.Scan(&rec.ID, &rec.Title, &rec.Plan, &rec.Scenario, &rec.TrackID, &rec.Status); err != nil {
			return nil, fmt.Errorf("pgfts scan record: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
