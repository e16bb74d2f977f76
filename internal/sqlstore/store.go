// Package sqlstore is a small table helper over SQLite. Table and column
// names are validated identifiers; every value is a bound parameter.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"sort"
	"strings"

	_ "modernc.org/sqlite"

	ferrors "github.com/conneroisu/feasp/internal/errors"
)

const driverName = "sqlite"

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Column is a name/value pair used as an equality condition.
type Column struct {
	Name  string
	Value any
}

// Store wraps one SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens the database at dsn. ":memory:" gives a private in-memory
// database.
func Open(dsn string) (*Store, error) {
	if dsn == "" {
		return nil, ferrors.NewConfigError("EMPTY_DSN", "database dsn is empty")
	}
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: open %s: %w", dsn, err)
	}
	if dsn == ":memory:" {
		// Each connection to :memory: is its own database.
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlstore: open %s: %w", dsn, err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateTable creates table with untyped columns if it does not exist.
func (s *Store) CreateTable(ctx context.Context, table string, columns []string) error {
	if err := checkIdent(table); err != nil {
		return err
	}
	if len(columns) == 0 {
		return ferrors.NewBadRequest("NO_COLUMNS", "table "+table+" needs at least one column", nil)
	}
	for _, c := range columns {
		if err := checkIdent(c); err != nil {
			return err
		}
	}
	query := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", table, strings.Join(columns, ", "))
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("sqlstore: create %s: %w", table, err)
	}
	return nil
}

// Insert adds one row. values are given in column order.
func (s *Store) Insert(ctx context.Context, table string, values ...any) error {
	query, err := insertQuery(table, len(values))
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, query, values...); err != nil {
		return fmt.Errorf("sqlstore: insert into %s: %w", table, err)
	}
	return nil
}

// InsertMany adds rows in one transaction. Either every row is added or
// none is.
func (s *Store) InsertMany(ctx context.Context, table string, rows [][]any) error {
	if len(rows) == 0 {
		return nil
	}
	query, err := insertQuery(table, len(rows[0]))
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlstore: begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("sqlstore: insert into %s: %w", table, err)
	}
	defer stmt.Close()

	for i, row := range rows {
		if len(row) != len(rows[0]) {
			return ferrors.NewBadRequest("ROW_WIDTH", fmt.Sprintf("row %d has %d values, want %d", i, len(row), len(rows[0])), nil)
		}
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			return fmt.Errorf("sqlstore: insert into %s row %d: %w", table, i, err)
		}
	}
	return tx.Commit()
}

// Delete removes the rows matching every condition in where and returns how
// many were removed. An empty where is rejected.
func (s *Store) Delete(ctx context.Context, table string, where map[string]any) (int64, error) {
	if err := checkIdent(table); err != nil {
		return 0, err
	}
	if len(where) == 0 {
		return 0, ferrors.NewBadRequest("EMPTY_WHERE", "delete from "+table+" needs a condition", nil)
	}
	clause, args, err := assignments(where, " AND ")
	if err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE %s", table, clause), args...)
	if err != nil {
		return 0, fmt.Errorf("sqlstore: delete from %s: %w", table, err)
	}
	return res.RowsAffected()
}

// Update sets the columns in set on rows where the where column matches and
// returns how many rows changed.
func (s *Store) Update(ctx context.Context, table string, set map[string]any, where Column) (int64, error) {
	if err := checkIdent(table); err != nil {
		return 0, err
	}
	if len(set) == 0 {
		return 0, ferrors.NewBadRequest("EMPTY_SET", "update of "+table+" sets nothing", nil)
	}
	if err := checkIdent(where.Name); err != nil {
		return 0, err
	}
	clause, args, err := assignments(set, ", ")
	if err != nil {
		return 0, err
	}
	args = append(args, where.Value)
	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s = ?", table, clause, where.Name)
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("sqlstore: update %s: %w", table, err)
	}
	return res.RowsAffected()
}

// FetchAll returns every row of table in insertion order.
func (s *Store) FetchAll(ctx context.Context, table string) ([][]any, error) {
	if err := checkIdent(table); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("SELECT * FROM %s ORDER BY rowid", table))
	if err != nil {
		return nil, fmt.Errorf("sqlstore: select from %s: %w", table, err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var result [][]any
	for rows.Next() {
		row, err := scanRow(rows, len(columns))
		if err != nil {
			return nil, fmt.Errorf("sqlstore: scan %s: %w", table, err)
		}
		result = append(result, row)
	}
	return result, rows.Err()
}

// QueryRow returns the first row of table matching every condition in where,
// or nil when none does.
func (s *Store) QueryRow(ctx context.Context, table string, where map[string]any) ([]any, error) {
	if err := checkIdent(table); err != nil {
		return nil, err
	}
	query := fmt.Sprintf("SELECT * FROM %s", table)
	var args []any
	if len(where) > 0 {
		clause, a, err := assignments(where, " AND ")
		if err != nil {
			return nil, err
		}
		query += " WHERE " + clause
		args = a
	}
	query += " ORDER BY rowid LIMIT 1"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: select from %s: %w", table, err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	if !rows.Next() {
		return nil, rows.Err()
	}
	row, err := scanRow(rows, len(columns))
	if err != nil {
		return nil, fmt.Errorf("sqlstore: scan %s: %w", table, err)
	}
	return row, nil
}

func scanRow(rows *sql.Rows, n int) ([]any, error) {
	row := make([]any, n)
	ptrs := make([]any, n)
	for i := range row {
		ptrs[i] = &row[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, err
	}
	return row, nil
}

func insertQuery(table string, n int) (string, error) {
	if err := checkIdent(table); err != nil {
		return "", err
	}
	if n == 0 {
		return "", ferrors.NewBadRequest("NO_VALUES", "insert into "+table+" has no values", nil)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
	return fmt.Sprintf("INSERT INTO %s VALUES (%s)", table, placeholders), nil
}

// assignments renders "a = ? <sep> b = ?" with columns in sorted order so
// the argument order is deterministic.
func assignments(m map[string]any, sep string) (string, []any, error) {
	names := make([]string, 0, len(m))
	for name := range m {
		if err := checkIdent(name); err != nil {
			return "", nil, err
		}
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, len(names))
	args := make([]any, len(names))
	for i, name := range names {
		parts[i] = name + " = ?"
		args[i] = m[name]
	}
	return strings.Join(parts, sep), args, nil
}

func checkIdent(name string) error {
	if !identPattern.MatchString(name) {
		return ferrors.NewBadRequest("INVALID_IDENTIFIER", fmt.Sprintf("invalid identifier %q", name), nil)
	}
	return nil
}
