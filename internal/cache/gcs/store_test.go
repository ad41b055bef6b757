package gcs

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	"github.com/JakeFAU/ogp-proxy/internal/cache"
)

// newTestStore creates a Store pointed at a fake GCS endpoint.
func newTestStore(t *testing.T, handler http.Handler) *Store {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := storage.NewClient(context.Background(), option.WithEndpoint(server.URL), option.WithoutAuthentication())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	store, err := New(client, Config{Bucket: "test-bucket", Prefix: "/responses/"})
	require.NoError(t, err)
	return store
}

func TestNewValidation(t *testing.T) {
	_, err := New(nil, Config{Bucket: "b"})
	require.Error(t, err)

	client, err := storage.NewClient(context.Background(), option.WithoutAuthentication())
	require.NoError(t, err)
	defer client.Close()
	_, err = New(client, Config{})
	require.Error(t, err)
}

func TestPutUploadsEnvelope(t *testing.T) {
	var uploaded string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/upload/storage/v1/b/test-bucket/o")
		assert.Equal(t, "responses/abc123.json", r.URL.Query().Get("name"))
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		uploaded = string(body)
		fmt.Fprintln(w, `{ "name": "responses/abc123.json", "bucket": "test-bucket" }`)
	})
	store := newTestStore(t, handler)

	entry := cache.NewEntry(http.StatusOK, http.Header{"Content-Type": {"image/webp"}}, []byte("img"), time.Now(), time.Hour)
	require.NoError(t, store.Put(context.Background(), "abc123", entry))
	assert.Contains(t, uploaded, `"status":200`)
	assert.Contains(t, uploaded, "image/webp")
}

func TestPutUploadError(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":{"code":500,"message":"boom"}}`, http.StatusInternalServerError)
	})
	store := newTestStore(t, handler)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := store.Put(ctx, "abc123", cache.NewEntry(http.StatusOK, nil, nil, time.Now(), time.Hour))
	require.Error(t, err)
}

func TestPutRequiresKey(t *testing.T) {
	store := newTestStore(t, http.NotFoundHandler())
	require.Error(t, store.Put(context.Background(), " ", cache.NewEntry(200, nil, nil, time.Now(), time.Hour)))
}

func TestGetReadsEnvelope(t *testing.T) {
	entry := cache.NewEntry(http.StatusOK, http.Header{"Content-Type": {"application/json"}}, []byte(`{"error":false}`), time.Now(), time.Hour)
	data, err := cache.Encode(entry)
	require.NoError(t, err)

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || !strings.Contains(r.URL.Path, "abc123.json") {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(data)
	})
	store := newTestStore(t, handler)

	got, ok, err := store.Get(context.Background(), "abc123")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, entry.Body, got.Body)

	_, ok, err = store.Get(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestObjectName(t *testing.T) {
	assert.Equal(t, "k.json", (&Store{}).objectName("k"))
	assert.Equal(t, "p/q/k.json", (&Store{prefix: "p/q"}).objectName("k"))
}
