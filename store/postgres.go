package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"

	praxis "github.com/praxis-id/praxis"
)

// Postgres implements praxis.Store. Construct it with New around an opened
// *sql.DB using the pgx driver.
type Postgres struct {
	db *sql.DB
}

var _ praxis.Store = (*Postgres)(nil)

// New returns a Postgres store bound to db.
func New(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// Open opens a pgx-backed *sql.DB for dsn and verifies connectivity.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

func mapNotFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return praxis.ErrRecordNotFound
	}
	return fmt.Errorf("db error: %w", err)
}
