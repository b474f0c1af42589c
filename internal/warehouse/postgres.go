package warehouse

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"go-etl-pipeline/internal/model"
)

const pgCreateUsers = `
CREATE TABLE IF NOT EXISTS users
(
    id                   SERIAL PRIMARY KEY,
    user_name            VARCHAR(50),
    date_of_birth        DATE,
    date_of_registration DATE,
    phone                VARCHAR(50),
    login                VARCHAR(50),
    password             VARCHAR(30),
    email                VARCHAR(100),
    gender               VARCHAR(20),
    country              VARCHAR(50),
    region               VARCHAR(100)
);`

const pgCopyUsers = `
COPY users(user_name, date_of_birth, date_of_registration, phone, login,
           password, email, gender, country, region)
FROM STDIN WITH CSV HEADER DELIMITER ','`

// FMmonth drops the blank padding to_char adds to month names.
const pgCopyAggregate = `
COPY (SELECT region,
             to_char(date_of_registration, 'FMmonth') AS month_name,
             COUNT(*) AS count_user,
             SUM(COUNT(*)) OVER (PARTITION BY region) AS total_by_region
        FROM users
       GROUP BY 1, 2
       ORDER BY 1, 3 DESC) TO STDOUT WITH CSV HEADER`

// Postgres implements Warehouse with COPY over pgx.
type Postgres struct {
	pool *pgxpool.Pool
}

func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("warehouse: parse postgres dsn: %w", err)
	}
	if cfg.MaxConns <= 0 || cfg.MaxConns > 4 {
		cfg.MaxConns = 4
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("warehouse: connect postgres: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

func (p *Postgres) EnsureUsersTable(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, pgCreateUsers); err != nil {
		return classifyPg("create users table", err)
	}
	return nil
}

func (p *Postgres) CopyUsers(ctx context.Context, r io.Reader) (int64, error) {
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return 0, model.TransientIO("acquire connection", err)
	}
	defer conn.Release()

	tag, err := conn.Conn().PgConn().CopyFrom(ctx, r, pgCopyUsers)
	if err != nil {
		return 0, classifyPg("copy users", err)
	}
	return tag.RowsAffected(), nil
}

func (p *Postgres) CopyAggregate(ctx context.Context, w io.Writer) (int64, error) {
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return 0, model.TransientIO("acquire connection", err)
	}
	defer conn.Release()

	tag, err := conn.Conn().PgConn().CopyTo(ctx, w, pgCopyAggregate)
	if err != nil {
		return 0, classifyPg("copy aggregate", err)
	}
	return tag.RowsAffected(), nil
}

func (p *Postgres) CountUsers(ctx context.Context) (int64, error) {
	var n int64
	if err := p.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, classifyPg("count users", err)
	}
	return n, nil
}

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

// classifyPg treats data exceptions (22), integrity violations (23) and
// syntax/undefined object errors (42) as format problems.
func classifyPg(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case strings.HasPrefix(pgErr.Code, "22"),
			strings.HasPrefix(pgErr.Code, "23"),
			strings.HasPrefix(pgErr.Code, "42"):
			return model.DataFormat(op, err)
		}
	}
	return model.TransientIO(op, err)
}
