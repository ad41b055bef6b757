package postgres

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/ogp-proxy/internal/proxy"
)

func newMockStore(t *testing.T) (pgxmock.PgxPoolIface, *Store) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	store, err := NewWithPool(mock, "")
	require.NoError(t, err)
	store.now = func() time.Time { return time.Unix(1700000000, 0) }
	return mock, store
}

func TestNewWithPoolValidation(t *testing.T) {
	t.Parallel()

	_, err := NewWithPool(nil, "t")
	require.Error(t, err)

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	_, err = NewWithPool(mock, "bad-name;drop")
	require.Error(t, err)

	store, err := NewWithPool(mock, "")
	require.NoError(t, err)
	assert.Equal(t, defaultTable, store.table)
}

func TestNewRequiresDSN(t *testing.T) {
	t.Parallel()

	_, err := New(context.Background(), Config{})
	require.Error(t, err)
}

func TestEnsureSchema(t *testing.T) {
	t.Parallel()

	mock, store := newMockStore(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS response_cache").
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))

	require.NoError(t, store.EnsureSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPutUpsertsRow(t *testing.T) {
	t.Parallel()

	mock, store := newMockStore(t)
	stored := time.Unix(1700000000, 0).UTC()
	resp := proxy.CachedResponse{
		Status:    http.StatusOK,
		Header:    http.Header{"Content-Type": {"image/webp"}},
		Body:      []byte("RIFF"),
		StoredAt:  stored,
		ExpiresAt: stored.Add(time.Hour),
	}

	mock.ExpectExec("INSERT INTO response_cache").
		WithArgs("k1", http.StatusOK, []byte(`{"Content-Type":["image/webp"]}`), []byte("RIFF"), resp.StoredAt, resp.ExpiresAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.Put(context.Background(), "k1", resp))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPutPropagatesErrors(t *testing.T) {
	t.Parallel()

	mock, store := newMockStore(t)
	mock.ExpectExec("INSERT INTO response_cache").
		WithArgs("k1", 200, []byte(`{}`), []byte{}, pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(errors.New("db down"))

	err := store.Put(context.Background(), "k1", proxy.CachedResponse{Status: 200})
	require.ErrorContains(t, err, "db down")
	require.Error(t, store.Put(context.Background(), "", proxy.CachedResponse{}))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetReturnsRow(t *testing.T) {
	t.Parallel()

	mock, store := newMockStore(t)
	stored := time.Unix(1699999000, 0).UTC()
	rows := pgxmock.NewRows([]string{"status", "headers", "body", "stored_at", "expires_at"}).
		AddRow(200, []byte(`{"Content-Type":["application/json"]}`), []byte(`{"error":false}`), stored, stored.Add(time.Hour))
	mock.ExpectQuery("SELECT status, headers, body").
		WithArgs("k1", time.Unix(1700000000, 0).UTC()).
		WillReturnRows(rows)

	got, ok, err := store.Get(context.Background(), "k1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 200, got.Status)
	assert.Equal(t, "application/json", got.Header.Get("Content-Type"))
	assert.Equal(t, `{"error":false}`, string(got.Body))
	assert.Equal(t, stored, got.StoredAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetMissAndError(t *testing.T) {
	t.Parallel()

	mock, store := newMockStore(t)
	mock.ExpectQuery("SELECT status").
		WithArgs("missing", pgxmock.AnyArg()).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery("SELECT status").
		WithArgs("broken", pgxmock.AnyArg()).
		WillReturnError(errors.New("timeout"))

	_, ok, err := store.Get(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = store.Get(context.Background(), "broken")
	require.Error(t, err)
	assert.False(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}
