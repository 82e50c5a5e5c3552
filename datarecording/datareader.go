package datarecording

import (
	"context"
	"database/sql"
	"fmt"
	"reflect"
)

// QueryParams encapsulates the optional clauses of a read.
type QueryParams struct {
	// Where holds the WHERE clause without the keyword, e.g.
	// "time > ? AND node_id = ?".
	Where string

	// Args fills the placeholders in Where.
	Args []any

	// Limit caps the number of returned rows; zero means no cap.
	Limit int

	// Offset skips rows for pagination.
	Offset int

	// OrderBy specifies sorting without the keywords, e.g. "sequence".
	OrderBy string
}

// DataReader reads recorded rows back out of a database.
type DataReader interface {
	// MapTable associates a table with the row struct it was recorded
	// with. Required before querying the table.
	MapTable(tableName string, sampleEntry any)

	// ListTables returns the mapped table names.
	ListTables() []string

	// Query reads rows from a mapped table.
	Query(ctx context.Context, tableName string, params QueryParams) (
		results []any, totalCount int, err error)

	// Close closes the underlying database.
	Close() error
}

// NewReader opens a reader on a database file written by a DataRecorder.
func NewReader(dbFilename string) DataReader {
	db, err := sql.Open("sqlite3", dbFilename)
	if err != nil {
		panic(err)
	}

	return &sqliteReader{db: db, typeMap: map[string]reflect.Type{}}
}

// NewReaderWithDB creates a reader on an existing database handle.
func NewReaderWithDB(db *sql.DB) DataReader {
	return &sqliteReader{db: db, typeMap: map[string]reflect.Type{}}
}

type sqliteReader struct {
	db      *sql.DB
	typeMap map[string]reflect.Type
}

func (r *sqliteReader) MapTable(tableName string, sampleEntry any) {
	r.typeMap[tableName] = reflect.TypeOf(sampleEntry)
}

func (r *sqliteReader) ListTables() []string {
	names := make([]string, 0, len(r.typeMap))
	for name := range r.typeMap {
		names = append(names, name)
	}

	return names
}

func (r *sqliteReader) Close() error {
	return r.db.Close()
}

func (r *sqliteReader) Query(
	ctx context.Context,
	tableName string,
	params QueryParams,
) ([]any, int, error) {
	structType, ok := r.typeMap[tableName]
	if !ok {
		return nil, 0, fmt.Errorf("table %q is not mapped", tableName)
	}

	total, err := r.countRows(ctx, tableName, params)
	if err != nil {
		return nil, 0, err
	}

	query := "SELECT * FROM " + tableName
	if params.Where != "" {
		query += " WHERE " + params.Where
	}
	if params.OrderBy != "" {
		query += " ORDER BY " + params.OrderBy
	}
	if params.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d OFFSET %d", params.Limit, params.Offset)
	}

	rows, err := r.db.QueryContext(ctx, query, params.Args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var results []any
	for rows.Next() {
		entry := reflect.New(structType).Elem()

		fields := make([]any, structType.NumField())
		for i := range fields {
			fields[i] = entry.Field(i).Addr().Interface()
		}

		if err := rows.Scan(fields...); err != nil {
			return nil, 0, err
		}

		results = append(results, entry.Interface())
	}

	return results, total, rows.Err()
}

func (r *sqliteReader) countRows(
	ctx context.Context,
	tableName string,
	params QueryParams,
) (int, error) {
	query := "SELECT COUNT(*) FROM " + tableName
	if params.Where != "" {
		query += " WHERE " + params.Where
	}

	var total int
	err := r.db.QueryRowContext(ctx, query, params.Args...).Scan(&total)

	return total, err
}
