package cache

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyIsStableAndDistinct(t *testing.T) {
	t.Parallel()

	a := Key(http.MethodGet, "proxy.example", "/og?q=https://a.example")
	assert.Len(t, a, 64)
	assert.Equal(t, a, Key(http.MethodGet, "proxy.example", "/og?q=https://a.example"))
	assert.NotEqual(t, a, Key(http.MethodGet, "proxy.example", "/img?q=https://a.example"))
	assert.NotEqual(t, a, Key(http.MethodHead, "proxy.example", "/og?q=https://a.example"))
	assert.NotEqual(t, a, Key(http.MethodGet, "other.example", "/og?q=https://a.example"))
}

func TestTTLFromHeader(t *testing.T) {
	t.Parallel()

	fallback := 10 * time.Minute
	tests := []struct {
		name string
		cc   string
		want time.Duration
	}{
		{"missing", "", fallback},
		{"dynamic", CacheControl, time.Hour},
		{"asset", CacheControlAsset, 31536000 * time.Second},
		{"max-age only", "public, max-age=60", time.Minute},
		{"s-maxage wins", "max-age=60, s-maxage=120", 2 * time.Minute},
		{"no-store", CacheControlNone, 0},
		{"private", "private, max-age=60", 0},
		{"garbage", "public, max-age=soon", fallback},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			h := http.Header{}
			if tt.cc != "" {
				h.Set("Cache-Control", tt.cc)
			}
			assert.Equal(t, tt.want, TTLFromHeader(h, fallback))
		})
	}
}

func TestEntryRoundTrip(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	h := http.Header{"Content-Type": {"image/webp"}}
	entry := NewEntry(http.StatusOK, h, []byte{0x52, 0x49, 0x46, 0x46}, now, time.Hour)
	h.Set("Content-Type", "mutated")

	assert.Equal(t, "image/webp", entry.Header.Get("Content-Type"))
	assert.False(t, entry.Expired(now.Add(59*time.Minute)))
	assert.True(t, entry.Expired(now.Add(time.Hour)))

	data, err := Encode(entry)
	require.NoError(t, err)
	decoded, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, entry, decoded)

	_, err = Decode([]byte("{"))
	require.Error(t, err)
}

func TestStorable(t *testing.T) {
	t.Parallel()

	assert.True(t, Storable(http.StatusOK))
	assert.False(t, Storable(http.StatusFound))
	assert.False(t, Storable(http.StatusNotFound))
}
