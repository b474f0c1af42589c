package warehouse

import (
	"context"
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"go-etl-pipeline/internal/model"
)

const sqliteCreateUsers = `
CREATE TABLE IF NOT EXISTS users (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	user_name VARCHAR(50),
	date_of_birth DATE,
	date_of_registration DATE,
	phone VARCHAR(50),
	login VARCHAR(50),
	password VARCHAR(30),
	email VARCHAR(100),
	gender VARCHAR(20),
	country VARCHAR(50),
	region VARCHAR(100)
);
`

const sqliteInsertUser = `
INSERT INTO users (user_name, date_of_birth, date_of_registration, phone, login,
                   password, email, gender, country, region)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// Month names are mapped in Go; SQLite has no to_char.
const sqliteAggregate = `
SELECT region,
       CAST(strftime('%m', date_of_registration) AS INTEGER) AS month_num,
       COUNT(*) AS count_user,
       SUM(COUNT(*)) OVER (PARTITION BY region) AS total_by_region
  FROM users
 GROUP BY 1, 2
 ORDER BY 1, 3 DESC, 2`

// date columns by position in model.UserColumns
var userDateColumns = map[int]bool{1: true, 2: true}

// SQLite implements Warehouse on a local database file. It mirrors the
// Postgres schema and aggregate so the pipeline can run without a server.
type SQLite struct {
	db *sql.DB
}

func OpenSQLite(dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("warehouse: open sqlite %q: %w", dsn, err)
	}
	// one connection keeps :memory: databases shared and writes serialized
	db.SetMaxOpenConns(1)
	return &SQLite{db: db}, nil
}

func (s *SQLite) EnsureUsersTable(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sqliteCreateUsers); err != nil {
		return model.TransientIO("create users table", err)
	}
	return nil
}

func (s *SQLite) CopyUsers(ctx context.Context, r io.Reader) (int64, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return 0, model.DataFormat("copy users", errors.New("empty input, header expected"))
	}
	if err != nil {
		return 0, model.DataFormat("copy users", fmt.Errorf("read header: %w", err))
	}
	if len(header) != len(model.UserColumns) {
		return 0, model.DataFormat("copy users",
			fmt.Errorf("header has %d columns, want %d", len(header), len(model.UserColumns)))
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, model.TransientIO("begin copy", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, sqliteInsertUser)
	if err != nil {
		return 0, model.TransientIO("prepare copy", err)
	}
	defer stmt.Close()

	var count int64
	for line := 2; ; line++ {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, model.DataFormat("copy users", fmt.Errorf("line %d: %w", line, err))
		}
		args, err := userArgs(rec)
		if err != nil {
			return 0, model.DataFormat("copy users", fmt.Errorf("line %d: %w", line, err))
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return 0, model.TransientIO("copy users", err)
		}
		count++
	}

	if err := tx.Commit(); err != nil {
		return 0, model.TransientIO("commit copy", err)
	}
	return count, nil
}

// userArgs checks column count and date columns the way a typed COPY would.
// Empty fields become NULL.
func userArgs(rec []string) ([]any, error) {
	if len(rec) != len(model.UserColumns) {
		return nil, fmt.Errorf("row has %d columns, want %d", len(rec), len(model.UserColumns))
	}
	args := make([]any, len(rec))
	for i, v := range rec {
		if v == "" {
			args[i] = nil
			continue
		}
		if userDateColumns[i] {
			if _, err := time.Parse(model.DateLayout, v); err != nil {
				return nil, fmt.Errorf("column %s: invalid date %q", model.UserColumns[i], v)
			}
		}
		args[i] = v
	}
	return args, nil
}

func (s *SQLite) CopyAggregate(ctx context.Context, w io.Writer) (int64, error) {
	rows, err := s.db.QueryContext(ctx, sqliteAggregate)
	if err != nil {
		if strings.Contains(err.Error(), "no such table") {
			return 0, model.DataFormat("aggregate users", err)
		}
		return 0, model.TransientIO("aggregate users", err)
	}
	defer rows.Close()

	writer := csv.NewWriter(w)
	if err := writer.Write(model.AggregateColumns); err != nil {
		return 0, model.TransientIO("write aggregate header", err)
	}

	var count int64
	for rows.Next() {
		var (
			region   sql.NullString
			monthNum sql.NullInt64
			rec      model.AggregateRecord
		)
		if err := rows.Scan(&region, &monthNum, &rec.UserCount, &rec.RegionTotal); err != nil {
			return count, model.TransientIO("scan aggregate", err)
		}
		rec.Region = region.String
		rec.MonthName = monthName(monthNum)
		if err := writer.Write(rec.Row()); err != nil {
			return count, model.TransientIO("write aggregate", err)
		}
		count++
	}
	if err := rows.Err(); err != nil {
		return count, model.TransientIO("iterate aggregate", err)
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return count, model.TransientIO("flush aggregate", err)
	}
	return count, nil
}

func monthName(n sql.NullInt64) string {
	if !n.Valid || n.Int64 < 1 || n.Int64 > 12 {
		return ""
	}
	return strings.ToLower(time.Month(n.Int64).String())
}

func (s *SQLite) CountUsers(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, model.TransientIO("count users", err)
	}
	return n, nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}
