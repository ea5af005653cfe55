package jobstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiranshivaraju/analyzr/pkg/models"
)

// PostgresStore keeps each job as a JSONB document in the analyses table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a PostgresStore. The analyses table comes from migrations.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close is a no-op: the pool is shared and closed by its owner.
func (s *PostgresStore) Close() error { return nil }

func (s *PostgresStore) Get(ctx context.Context, id string) (*models.Job, error) {
	var doc []byte
	err := s.pool.QueryRow(ctx, `SELECT doc FROM analyses WHERE id = $1`, id).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", id, err)
	}
	return decode(doc)
}

func (s *PostgresStore) Set(ctx context.Context, id string, job *models.Job) error {
	doc, err := encode(job)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO analyses (id, doc, updated_at) VALUES ($1, $2, $3)
		 ON CONFLICT (id) DO UPDATE SET doc = EXCLUDED.doc, updated_at = EXCLUDED.updated_at`,
		id, doc, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("set job %s: %w", id, err)
	}
	return nil
}

func (s *PostgresStore) Keys(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT id FROM analyses`)
	if err != nil {
		return nil, fmt.Errorf("list job keys: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan job key: %w", err)
	}
	return ids, nil
}

var _ Backend = (*PostgresStore)(nil)
