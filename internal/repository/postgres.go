package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"claims-agent/internal/domain"
)

// pgxAPI is the subset of *pgxpool.Pool used by PostgresStore.
type pgxAPI interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PostgresStore persists conversation turns in PostgreSQL.
type PostgresStore struct {
	db    pgxAPI
	close func()
	now   func() time.Time
}

func NewPostgresStore(ctx context.Context, databaseURL string, opts ...Option) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("repository: connect postgres: %w", err)
	}

	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	s := newPostgresStore(pool, opts...)
	s.close = pool.Close
	return s, nil
}

func newPostgresStore(db pgxAPI, opts ...Option) *PostgresStore {
	o := applyOptions(opts)
	return &PostgresStore{db: db, now: o.now, close: func() {}}
}

func initSchema(ctx context.Context, db pgxAPI) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS claim_turns (
			seq BIGSERIAL PRIMARY KEY,
			id TEXT NOT NULL UNIQUE,
			policy_number TEXT NOT NULL,
			query TEXT NOT NULL,
			response TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_claim_turns_policy_created ON claim_turns (policy_number, created_at DESC);`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("repository: init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) Append(ctx context.Context, policyNumber, query, response string) error {
	if strings.TrimSpace(policyNumber) == "" {
		return errors.New("repository: Append: policy number is required")
	}
	_, err := s.db.Exec(ctx,
		`INSERT INTO claim_turns (id, policy_number, query, response, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		uuid.NewString(),
		policyNumber,
		query,
		response,
		s.now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("repository: Append: %w", err)
	}
	return nil
}

func (s *PostgresStore) Recent(ctx context.Context, policyNumber string, maxCount int, maxAge time.Duration) ([]domain.Turn, error) {
	if strings.TrimSpace(policyNumber) == "" {
		return nil, errors.New("repository: Recent: policy number is required")
	}
	if maxCount <= 0 {
		return nil, nil
	}
	since := time.Time{}
	if maxAge > 0 {
		since = s.now().UTC().Add(-maxAge)
	}

	rows, err := s.db.Query(ctx,
		`SELECT id, policy_number, query, response, created_at
		 FROM claim_turns
		 WHERE policy_number = $1 AND created_at >= $2
		 ORDER BY created_at DESC, seq DESC
		 LIMIT $3`,
		policyNumber,
		since,
		maxCount,
	)
	if err != nil {
		return nil, fmt.Errorf("repository: Recent query: %w", err)
	}
	defer rows.Close()

	var turns []domain.Turn
	for rows.Next() {
		var t domain.Turn
		if err := rows.Scan(&t.ID, &t.PolicyNumber, &t.Query, &t.Response, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("repository: Recent scan: %w", err)
		}
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: Recent iterate: %w", err)
	}

	reverseTurns(turns)
	return turns, nil
}

func (s *PostgresStore) Close() error {
	s.close()
	return nil
}
