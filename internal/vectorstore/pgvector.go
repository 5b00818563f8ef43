package vectorstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"
)

// Pool is the subset of *pgxpool.Pool the store needs.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

// PgVectorStore keeps chunks in a Postgres table keyed by fingerprint and
// document markers in a sibling "<table>_documents" table.
type PgVectorStore struct {
	db        Pool
	table     string
	docTable  string
	dimension int
	metric    string
}

func NewPgVectorStore(db Pool, table string, dimension int, metric string) (*PgVectorStore, error) {
	if table == "" {
		return nil, fmt.Errorf("table name is required")
	}
	if dimension <= 0 {
		return nil, fmt.Errorf("invalid dimension %d", dimension)
	}
	m, err := NormalizeMetric(metric)
	if err != nil {
		return nil, err
	}
	return &PgVectorStore{
		db:        db,
		table:     pgx.Identifier{table}.Sanitize(),
		docTable:  pgx.Identifier{table + "_documents"}.Sanitize(),
		dimension: dimension,
		metric:    m,
	}, nil
}

// distanceOp returns the pgvector operator ordering rows by similarity.
func (s *PgVectorStore) distanceOp() string {
	switch s.metric {
	case MetricDot:
		return "<#>"
	case MetricEuclid:
		return "<->"
	default:
		return "<=>"
	}
}

func (s *PgVectorStore) score(distance float64) float64 {
	switch s.metric {
	case MetricDot:
		// <#> yields the negative inner product
		return -distance
	case MetricEuclid:
		return distanceToScore(distance)
	default:
		return 1 - distance
	}
}

func (s *PgVectorStore) EnsureCollection(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id          TEXT PRIMARY KEY,
			document_id TEXT NOT NULL,
			ordinal     INTEGER NOT NULL,
			filename    TEXT NOT NULL DEFAULT '',
			content     TEXT NOT NULL,
			embedding   vector(%d) NOT NULL,
			created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, s.table, s.dimension),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			document_id TEXT PRIMARY KEY,
			filename    TEXT NOT NULL DEFAULT '',
			chunks      INTEGER NOT NULL,
			ingested_at TIMESTAMPTZ NOT NULL
		)`, s.docTable),
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}

	// pgvector stores the declared dimension in atttypmod.
	var dim int
	err := s.db.QueryRow(ctx,
		`SELECT atttypmod FROM pg_attribute WHERE attrelid = $1::regclass AND attname = 'embedding'`,
		s.table,
	).Scan(&dim)
	if err != nil {
		return fmt.Errorf("read embedding dimension: %w", err)
	}
	if dim != s.dimension {
		return fmt.Errorf("%w: table %s has dimension %d, embedder produces %d",
			ErrDimensionMismatch, s.table, dim, s.dimension)
	}
	return nil
}

func (s *PgVectorStore) Exists(ctx context.Context, id string) (bool, error) {
	var ok bool
	err := s.db.QueryRow(ctx,
		fmt.Sprintf(`SELECT EXISTS(SELECT 1 FROM %s WHERE id = $1)`, s.table), id,
	).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("check chunk: %w", wrapPgErr(err))
	}
	return ok, nil
}

func (s *PgVectorStore) Upsert(ctx context.Context, rec Record) error {
	if err := rec.Validate(s.dimension); err != nil {
		return err
	}
	_, err := s.db.Exec(ctx,
		fmt.Sprintf(`INSERT INTO %s (id, document_id, ordinal, filename, content, embedding)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (id) DO NOTHING`, s.table),
		rec.ID, rec.Payload.DocumentID, rec.Payload.Ordinal, rec.Payload.Filename, rec.Payload.Text,
		pgvector.NewVector(rec.Vector),
	)
	if err != nil {
		return fmt.Errorf("upsert chunk %s: %w", rec.ID, wrapPgErr(err))
	}
	return nil
}

func (s *PgVectorStore) Search(ctx context.Context, vector []float32, opts SearchOptions) ([]Match, error) {
	if len(vector) != s.dimension {
		return nil, fmt.Errorf("%w: query has %d, want %d", ErrDimensionMismatch, len(vector), s.dimension)
	}

	op := s.distanceOp()
	rows, err := s.db.Query(ctx,
		fmt.Sprintf(`SELECT id, document_id, ordinal, filename, content, embedding %s $1 AS distance
		 FROM %s
		 ORDER BY embedding %s $1
		 LIMIT $2`, op, s.table, op),
		pgvector.NewVector(vector), topK(opts),
	)
	if err != nil {
		return nil, fmt.Errorf("similarity search: %w", wrapPgErr(err))
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var (
			m        Match
			distance float64
		)
		if err := rows.Scan(&m.ID, &m.Payload.DocumentID, &m.Payload.Ordinal, &m.Payload.Filename, &m.Payload.Text, &distance); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		m.Score = s.score(distance)
		if !opts.keep(m.Score) {
			continue
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate results: %w", wrapPgErr(err))
	}
	return matches, nil
}

func (s *PgVectorStore) DocumentExists(ctx context.Context, documentID string) (bool, error) {
	var ok bool
	err := s.db.QueryRow(ctx,
		fmt.Sprintf(`SELECT EXISTS(SELECT 1 FROM %s WHERE document_id = $1)`, s.docTable), documentID,
	).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("check document: %w", wrapPgErr(err))
	}
	return ok, nil
}

func (s *PgVectorStore) MarkDocument(ctx context.Context, marker DocumentMarker) error {
	if marker.DocumentID == "" {
		return fmt.Errorf("%w: document_id is empty", ErrInvalidRecord)
	}
	_, err := s.db.Exec(ctx,
		fmt.Sprintf(`INSERT INTO %s (document_id, filename, chunks, ingested_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (document_id) DO NOTHING`, s.docTable),
		marker.DocumentID, marker.Filename, marker.Chunks, marker.IngestedAt,
	)
	if err != nil {
		return fmt.Errorf("mark document: %w", wrapPgErr(err))
	}
	return nil
}

func (s *PgVectorStore) Ping(ctx context.Context) error {
	if err := s.db.Ping(ctx); err != nil {
		return fmt.Errorf("ping database: %w", wrapPgErr(err))
	}
	return nil
}

// wrapPgErr marks connection-level failures as transient. Errors carrying a
// SQLSTATE came from the server and are returned unchanged.
func wrapPgErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) || errors.Is(err, context.Canceled) || errors.Is(err, pgx.ErrNoRows) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrUnavailable, err)
}
