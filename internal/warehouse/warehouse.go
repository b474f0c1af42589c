// Package warehouse is the relational side of the pipeline: the append-only
// users table and the regional aggregate computed over it.
package warehouse

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"

	"go-etl-pipeline/internal/model"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Warehouse is the relational store the load and aggregate stages use.
type Warehouse interface {
	// EnsureUsersTable creates the users table if it is absent.
	EnsureUsersTable(ctx context.Context) error
	// CopyUsers appends every row of a CSV stream (header first, columns in
	// model.UserColumns order). Rows are never deduplicated.
	CopyUsers(ctx context.Context, r io.Reader) (int64, error)
	// CopyAggregate streams the regional aggregate over the whole table as CSV
	// with a header, ordered by region then count descending.
	CopyAggregate(ctx context.Context, w io.Writer) (int64, error)
	// CountUsers returns the current number of rows in the users table.
	CountUsers(ctx context.Context) (int64, error)
	Close() error
}

// Open connects to the warehouse selected by driver.
func Open(ctx context.Context, driver, dsn string) (Warehouse, error) {
	switch driver {
	case DriverPostgres:
		return OpenPostgres(ctx, dsn)
	case DriverSQLite:
		return OpenSQLite(dsn)
	default:
		return nil, fmt.Errorf("warehouse: unknown driver %q", driver)
	}
}

// ParseAggregate reads a CSV produced by CopyAggregate back into records.
func ParseAggregate(r io.Reader) ([]model.AggregateRecord, error) {
	rows, err := csv.NewReader(r).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("warehouse: parse aggregate: %w", err)
	}
	if len(rows) == 0 {
		return nil, errors.New("warehouse: parse aggregate: missing header")
	}
	out := make([]model.AggregateRecord, 0, len(rows)-1)
	for _, row := range rows[1:] {
		if len(row) != len(model.AggregateColumns) {
			return nil, fmt.Errorf("warehouse: parse aggregate: row has %d columns", len(row))
		}
		count, err := strconv.ParseInt(row[2], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("warehouse: parse aggregate count: %w", err)
		}
		total, err := strconv.ParseInt(row[3], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("warehouse: parse aggregate total: %w", err)
		}
		out = append(out, model.AggregateRecord{Region: row[0], MonthName: row[1], UserCount: count, RegionTotal: total})
	}
	return out, nil
}
