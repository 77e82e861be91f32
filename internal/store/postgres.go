package store

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/SachikoNitta/factnet/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
)

const embeddingDimensions = 1536

// PostgresOptions configures the persistent backend. URI is a postgres://
// connection string; Username and Password override any credentials embedded
// in the URI when set.
type PostgresOptions struct {
	URI      string
	Username string
	Password string
}

// PostgresStore is the persistent FactStore backed by pgx. The per-pair
// dedup invariant is enforced by a conditional upsert, so concurrent writers
// on the same pair never produce duplicate edges.
type PostgresStore struct {
	db     *pgxpool.Pool
	closed atomic.Bool
}

func NewPostgresStore(ctx context.Context, opts PostgresOptions) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(opts.URI)
	if err != nil {
		return nil, fmt.Errorf("parse postgres uri: %w", err)
	}
	if opts.Username != "" {
		cfg.ConnConfig.User = opts.Username
	}
	if opts.Password != "" {
		cfg.ConnConfig.Password = opts.Password
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	s := &PostgresStore{db: pool}
	if err := s.setupSchema(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("setup schema: %w", err)
	}
	return s, nil
}

func (s *PostgresStore) setupSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS facts (
			id TEXT PRIMARY KEY,
			content TEXT NOT NULL,
			metadata JSONB,
			embedding vector(%d),
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`, embeddingDimensions),
		`CREATE TABLE IF NOT EXISTS fact_relationships (
			source_id TEXT NOT NULL REFERENCES facts(id) ON DELETE CASCADE,
			target_id TEXT NOT NULL REFERENCES facts(id) ON DELETE CASCADE,
			rel_type TEXT NOT NULL,
			confidence DOUBLE PRECISION NOT NULL,
			manual BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (source_id, target_id)
		)`,
		`CREATE INDEX IF NOT EXISTS fact_relationships_target_idx ON fact_relationships (target_id)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *PostgresStore) PutFact(ctx context.Context, f *domain.Fact) error {
	if s.closed.Load() {
		return ErrClosed
	}

	var embedding *pgvector.Vector
	if len(f.Embedding) > 0 {
		v := pgvector.NewVector(f.Embedding)
		embedding = &v
	}

	err := s.db.QueryRow(ctx,
		`INSERT INTO facts (id, content, metadata, embedding)
		 VALUES ($1, $2, $3, $4)
		 RETURNING created_at`,
		f.ID, f.Content, f.Metadata, embedding,
	).Scan(&f.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateID
		}
		return err
	}
	return nil
}

func (s *PostgresStore) GetFact(ctx context.Context, id string) (*domain.Fact, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}

	f := &domain.Fact{}
	var embedding *pgvector.Vector
	err := s.db.QueryRow(ctx,
		`SELECT id, content, metadata, embedding, created_at FROM facts WHERE id = $1`,
		id,
	).Scan(&f.ID, &f.Content, &f.Metadata, &embedding, &f.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if embedding != nil {
		f.Embedding = embedding.Slice()
	}
	return f, nil
}

func (s *PostgresStore) ListFacts(ctx context.Context) ([]domain.Fact, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}

	rows, err := s.db.Query(ctx,
		`SELECT id, content, metadata, created_at FROM facts ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var facts []domain.Fact
	for rows.Next() {
		var f domain.Fact
		if err := rows.Scan(&f.ID, &f.Content, &f.Metadata, &f.CreatedAt); err != nil {
			return nil, err
		}
		facts = append(facts, f)
	}
	return facts, rows.Err()
}

func (s *PostgresStore) PutRelationship(ctx context.Context, r *domain.Relationship) error {
	if s.closed.Load() {
		return ErrClosed
	}

	// A manual write replaces whatever holds the pair; a detected write only
	// lands while the pair is not manually asserted. No row back means the
	// conditional update declined the write.
	err := s.db.QueryRow(ctx,
		`INSERT INTO fact_relationships (source_id, target_id, rel_type, confidence, manual)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (source_id, target_id) DO UPDATE
		 SET rel_type = EXCLUDED.rel_type,
		     confidence = EXCLUDED.confidence,
		     manual = EXCLUDED.manual,
		     updated_at = NOW()
		 WHERE NOT fact_relationships.manual OR EXCLUDED.manual
		 RETURNING created_at`,
		r.SourceID, r.TargetID, r.Type, r.Confidence, r.Manual,
	).Scan(&r.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrManualEdge
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return ErrDanglingEndpoint
		}
		return err
	}
	return nil
}

func (s *PostgresStore) GetRelationships(ctx context.Context, factID string, filter domain.RelationshipFilter) ([]domain.Relationship, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}

	query := `SELECT source_id, target_id, rel_type, confidence, manual, created_at
			  FROM fact_relationships`
	var args []any
	var conditions []string

	if factID != "" {
		args = append(args, factID)
		switch filter.Direction {
		case domain.DirectionOutgoing:
			conditions = append(conditions, "source_id = $1")
		case domain.DirectionIncoming:
			conditions = append(conditions, "target_id = $1")
		default:
			conditions = append(conditions, "(source_id = $1 OR target_id = $1)")
		}
	}
	if filter.Type != nil {
		args = append(args, string(*filter.Type))
		conditions = append(conditions, fmt.Sprintf("rel_type = $%d", len(args)))
	}

	for i, cond := range conditions {
		if i == 0 {
			query += " WHERE " + cond
		} else {
			query += " AND " + cond
		}
	}
	query += " ORDER BY source_id, target_id"

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rels []domain.Relationship
	for rows.Next() {
		var r domain.Relationship
		if err := rows.Scan(&r.SourceID, &r.TargetID, &r.Type, &r.Confidence, &r.Manual, &r.CreatedAt); err != nil {
			return nil, err
		}
		rels = append(rels, r)
	}
	return rels, rows.Err()
}

func (s *PostgresStore) FindSimilarFacts(ctx context.Context, embedding []float32, limit int) ([]domain.Fact, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.db.Query(ctx,
		`SELECT id, content, metadata, created_at
		 FROM facts
		 WHERE embedding IS NOT NULL
		 ORDER BY embedding <=> $1
		 LIMIT $2`,
		pgvector.NewVector(embedding), limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var facts []domain.Fact
	for rows.Next() {
		var f domain.Fact
		if err := rows.Scan(&f.ID, &f.Content, &f.Metadata, &f.CreatedAt); err != nil {
			return nil, err
		}
		facts = append(facts, f)
	}
	return facts, rows.Err()
}

// Ping checks database liveness.
func (s *PostgresStore) Ping(ctx context.Context) error {
	if s.closed.Load() {
		return ErrClosed
	}
	return s.db.Ping(ctx)
}

func (s *PostgresStore) Close() error {
	if s.closed.CompareAndSwap(false, true) {
		s.db.Close()
	}
	return nil
}
