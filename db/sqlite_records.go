package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"groupwork-server-go/grouping"
	"groupwork-server-go/models"
)

const createGroupingsTable = `
CREATE TABLE IF NOT EXISTS groupings (
	id         TEXT PRIMARY KEY,
	title      TEXT NOT NULL,
	class_id   TEXT NOT NULL,
	subject_id TEXT NOT NULL DEFAULT '-',
	date       TEXT NOT NULL,
	groups     TEXT NOT NULL
)`

// SQLiteGroupingRecords stores grouping records in a SQLite table with a JSON groups column.
type SQLiteGroupingRecords struct {
	sqlDB *sql.DB
}

var _ grouping.Records = (*SQLiteGroupingRecords)(nil)

// OpenSQLiteGroupingRecords opens (or creates) the database at path. ":memory:" is accepted.
func OpenSQLiteGroupingRecords(path string) (*SQLiteGroupingRecords, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	dsn := path
	if path != ":memory:" {
		dsn = path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// A :memory: database lives and dies with its connection.
	sqlDB.SetMaxOpenConns(1)
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(createGroupingsTable); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("create groupings table: %w", err)
	}
	return &SQLiteGroupingRecords{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *SQLiteGroupingRecords) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Insert stores a new record.
func (s *SQLiteGroupingRecords) Insert(ctx context.Context, rec models.GroupingRecord) error {
	groups, err := json.Marshal(rec.Groups)
	if err != nil {
		return fmt.Errorf("encode groups: %w", err)
	}
	_, err = s.sqlDB.ExecContext(ctx,
		`INSERT INTO groupings (id, title, class_id, subject_id, date, groups) VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Title, rec.ClassID, rec.SubjectID, rec.Date, string(groups),
	)
	if err != nil {
		return fmt.Errorf("insert grouping %s: %w", rec.ID, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (models.GroupingRecord, error) {
	var (
		rec    models.GroupingRecord
		groups string
	)
	if err := row.Scan(&rec.ID, &rec.Title, &rec.ClassID, &rec.SubjectID, &rec.Date, &groups); err != nil {
		return models.GroupingRecord{}, err
	}
	if err := json.Unmarshal([]byte(groups), &rec.Groups); err != nil {
		return models.GroupingRecord{}, fmt.Errorf("grouping %s has malformed groups: %w", rec.ID, err)
	}
	return rec, nil
}

// Find loads one record.
func (s *SQLiteGroupingRecords) Find(ctx context.Context, id string) (models.GroupingRecord, error) {
	row := s.sqlDB.QueryRowContext(ctx,
		`SELECT id, title, class_id, subject_id, date, groups FROM groupings WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.GroupingRecord{}, grouping.ErrNotFound
	}
	if err != nil {
		return models.GroupingRecord{}, fmt.Errorf("get grouping %s: %w", id, err)
	}
	return rec, nil
}

// All loads every record, newest date first, then by title.
func (s *SQLiteGroupingRecords) All(ctx context.Context) ([]models.GroupingRecord, error) {
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT id, title, class_id, subject_id, date, groups FROM groupings ORDER BY date DESC, title ASC`)
	if err != nil {
		return nil, fmt.Errorf("list groupings: %w", err)
	}
	defer rows.Close()

	recs := []models.GroupingRecord{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan grouping: %w", err)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate groupings: %w", err)
	}
	return recs, nil
}

// Replace overwrites the groups of an existing record.
func (s *SQLiteGroupingRecords) Replace(ctx context.Context, id string, groups []models.GroupRef) error {
	encoded, err := json.Marshal(groups)
	if err != nil {
		return fmt.Errorf("encode groups: %w", err)
	}
	res, err := s.sqlDB.ExecContext(ctx, `UPDATE groupings SET groups = ? WHERE id = ?`, string(encoded), id)
	if err != nil {
		return fmt.Errorf("update grouping %s: %w", id, err)
	}
	return requireAffected(res)
}

// Remove deletes a record.
func (s *SQLiteGroupingRecords) Remove(ctx context.Context, id string) error {
	res, err := s.sqlDB.ExecContext(ctx, `DELETE FROM groupings WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete grouping %s: %w", id, err)
	}
	return requireAffected(res)
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return grouping.ErrNotFound
	}
	return nil
}
