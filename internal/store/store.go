package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"runstats/internal/runstats"
)

const schema = `
CREATE TABLE IF NOT EXISTS summaries (
	id TEXT PRIMARY KEY,
	source TEXT NOT NULL,
	group_by TEXT NOT NULL,
	run_count INTEGER NOT NULL,
	created_at DATETIME NOT NULL
);
CREATE TABLE IF NOT EXISTS summary_fields (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	summary_id TEXT NOT NULL REFERENCES summaries(id),
	group_name TEXT NOT NULL,
	run_count INTEGER NOT NULL,
	field TEXT NOT NULL,
	total REAL NOT NULL,
	mean REAL NOT NULL,
	min REAL NOT NULL,
	max REAL NOT NULL,
	stddev REAL NOT NULL
);
`

// Store keeps a history of aggregation summaries in a sqlite file.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

type FieldRow struct {
	GroupName string
	RunCount  int
	Field     string
	Total     float64
	Mean      float64
	Min       float64
	Max       float64
	StdDev    float64
}

type Summary struct {
	ID        string
	Source    string
	GroupBy   string
	RunCount  int
	CreatedAt time.Time
	Fields    []FieldRow
}

func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open history %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create history tables: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Save records res, read from source, and returns the new summary id.
func (s *Store) Save(ctx context.Context, source string, res *runstats.Result) (string, error) {
	id := uuid.NewString()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `INSERT INTO summaries (id, source, group_by, run_count, created_at) VALUES (?, ?, ?, ?, ?)`,
		id, source, res.GroupBy, res.Count, s.now().UTC())
	if err != nil {
		return "", fmt.Errorf("insert summary: %w", err)
	}

	rows := fieldRows("", res.Count, res.Fields, res.Stats)
	for _, g := range res.Groups {
		rows = append(rows, fieldRows(g.Name, g.Count, res.Fields, g.Stats)...)
	}
	for _, r := range rows {
		_, err := tx.ExecContext(ctx, `INSERT INTO summary_fields (summary_id, group_name, run_count, field, total, mean, min, max, stddev) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id, r.GroupName, r.RunCount, r.Field, r.Total, r.Mean, r.Min, r.Max, r.StdDev)
		if err != nil {
			return "", fmt.Errorf("insert field %s: %w", r.Field, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	return id, nil
}

func fieldRows(group string, count int, fields []string, stats map[string]*runstats.FieldStats) []FieldRow {
	rows := make([]FieldRow, 0, len(fields))
	for _, f := range fields {
		st := stats[f]
		rows = append(rows, FieldRow{
			GroupName: group,
			RunCount:  count,
			Field:     f,
			Total:     st.Total,
			Mean:      st.Mean(),
			Min:       st.Min,
			Max:       st.Max,
			StdDev:    st.StdDev(),
		})
	}
	return rows
}

// List returns every recorded summary, newest first.
func (s *Store) List(ctx context.Context) ([]Summary, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, source, group_by, run_count, created_at FROM summaries ORDER BY created_at DESC, rowid DESC`)
	if err != nil {
		return nil, fmt.Errorf("query summaries: %w", err)
	}
	defer rows.Close()

	var summaries []Summary
	for rows.Next() {
		var sum Summary
		if err := rows.Scan(&sum.ID, &sum.Source, &sum.GroupBy, &sum.RunCount, &sum.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		summaries = append(summaries, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range summaries {
		fields, err := s.fields(ctx, summaries[i].ID)
		if err != nil {
			return nil, err
		}
		summaries[i].Fields = fields
	}
	return summaries, nil
}

func (s *Store) fields(ctx context.Context, summaryID string) ([]FieldRow, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT group_name, run_count, field, total, mean, min, max, stddev FROM summary_fields WHERE summary_id = ? ORDER BY id`, summaryID)
	if err != nil {
		return nil, fmt.Errorf("query fields: %w", err)
	}
	defer rows.Close()

	var out []FieldRow
	for rows.Next() {
		var r FieldRow
		if err := rows.Scan(&r.GroupName, &r.RunCount, &r.Field, &r.Total, &r.Mean, &r.Min, &r.Max, &r.StdDev); err != nil {
			return nil, fmt.Errorf("scan field: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
