package vectorstore

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T, metric string) (*PgVectorStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	store, err := NewPgVectorStore(mock, "docs", 3, metric)
	require.NoError(t, err)
	return store, mock
}

func TestPgVectorStore_EnsureCollection(t *testing.T) {
	ctx := context.Background()

	expectSchema := func(mock pgxmock.PgxPoolIface) {
		mock.ExpectExec(regexp.QuoteMeta("CREATE EXTENSION IF NOT EXISTS vector")).
			WillReturnResult(pgxmock.NewResult("CREATE", 0))
		mock.ExpectExec(regexp.QuoteMeta(`CREATE TABLE IF NOT EXISTS "docs" (`)).
			WillReturnResult(pgxmock.NewResult("CREATE", 0))
		mock.ExpectExec(regexp.QuoteMeta(`CREATE TABLE IF NOT EXISTS "docs_documents" (`)).
			WillReturnResult(pgxmock.NewResult("CREATE", 0))
	}

	t.Run("Should accept matching dimension", func(t *testing.T) {
		store, mock := newMockStore(t, "cosine")
		expectSchema(mock)
		mock.ExpectQuery("SELECT atttypmod FROM pg_attribute").
			WithArgs(`"docs"`).
			WillReturnRows(pgxmock.NewRows([]string{"atttypmod"}).AddRow(3))

		require.NoError(t, store.EnsureCollection(ctx))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Should reject dimension mismatch", func(t *testing.T) {
		store, mock := newMockStore(t, "cosine")
		expectSchema(mock)
		mock.ExpectQuery("SELECT atttypmod FROM pg_attribute").
			WithArgs(`"docs"`).
			WillReturnRows(pgxmock.NewRows([]string{"atttypmod"}).AddRow(768))

		assert.ErrorIs(t, store.EnsureCollection(ctx), ErrDimensionMismatch)
	})
}

func TestPgVectorStore_Exists(t *testing.T) {
	ctx := context.Background()

	t.Run("Should query by fingerprint", func(t *testing.T) {
		store, mock := newMockStore(t, "cosine")
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT EXISTS(SELECT 1 FROM "docs" WHERE id = $1)`)).
			WithArgs("h1").
			WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

		ok, err := store.Exists(ctx, "h1")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Should mark connection failures unavailable", func(t *testing.T) {
		store, mock := newMockStore(t, "cosine")
		mock.ExpectQuery("SELECT EXISTS").
			WithArgs("h1").
			WillReturnError(errors.New("connection refused"))

		_, err := store.Exists(ctx, "h1")
		assert.ErrorIs(t, err, ErrUnavailable)
	})

	t.Run("Should keep server errors permanent", func(t *testing.T) {
		store, mock := newMockStore(t, "cosine")
		mock.ExpectQuery("SELECT EXISTS").
			WithArgs("h1").
			WillReturnError(&pgconn.PgError{Code: "42P01", Message: "relation does not exist"})

		_, err := store.Exists(ctx, "h1")
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrUnavailable)
	})
}

func TestPgVectorStore_Upsert(t *testing.T) {
	store, mock := newMockStore(t, "cosine")
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "docs"`)).
		WithArgs("h1", "d1", 2, "a.txt", "hello", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := store.Upsert(context.Background(), Record{
		ID:      "h1",
		Vector:  []float32{1, 0, 0},
		Payload: Payload{Text: "hello", DocumentID: "d1", Ordinal: 2, Filename: "a.txt"},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())

	assert.ErrorIs(t, store.Upsert(context.Background(), Record{ID: "h2", Vector: []float32{1}}), ErrDimensionMismatch)
}

func TestPgVectorStore_Search(t *testing.T) {
	ctx := context.Background()

	t.Run("Should convert cosine distance to similarity", func(t *testing.T) {
		store, mock := newMockStore(t, "cosine")
		mock.ExpectQuery(regexp.QuoteMeta(`embedding <=> $1 AS distance`)).
			WithArgs(pgxmock.AnyArg(), 2).
			WillReturnRows(pgxmock.NewRows([]string{"id", "document_id", "ordinal", "filename", "content", "distance"}).
				AddRow("h1", "d1", 0, "a.txt", "first", 0.1).
				AddRow("h2", "d1", 1, "a.txt", "second", 0.7))

		matches, err := store.Search(ctx, []float32{1, 0, 0}, SearchOptions{TopK: 2, MinScore: 0.5})
		require.NoError(t, err)
		require.Len(t, matches, 1)
		assert.Equal(t, "h1", matches[0].ID)
		assert.InDelta(t, 0.9, matches[0].Score, 1e-9)
		assert.Equal(t, "first", matches[0].Payload.Text)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Should use inner product operator for dot", func(t *testing.T) {
		store, mock := newMockStore(t, "dot")
		mock.ExpectQuery(regexp.QuoteMeta(`embedding <#> $1 AS distance`)).
			WithArgs(pgxmock.AnyArg(), 5).
			WillReturnRows(pgxmock.NewRows([]string{"id", "document_id", "ordinal", "filename", "content", "distance"}).
				AddRow("h1", "d1", 0, "", "first", -3.0))

		matches, err := store.Search(ctx, []float32{1, 0, 0}, SearchOptions{})
		require.NoError(t, err)
		require.Len(t, matches, 1)
		assert.InDelta(t, 3.0, matches[0].Score, 1e-9)
	})
}

func TestPgVectorStore_Documents(t *testing.T) {
	store, mock := newMockStore(t, "cosine")
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT EXISTS(SELECT 1 FROM "docs_documents" WHERE document_id = $1)`)).
		WithArgs("d1").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "docs_documents"`)).
		WithArgs("d1", "a.txt", 3, now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	ok, err := store.DocumentExists(context.Background(), "d1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.MarkDocument(context.Background(), DocumentMarker{DocumentID: "d1", Filename: "a.txt", Chunks: 3, IngestedAt: now}))
	assert.NoError(t, mock.ExpectationsWereMet())
}
