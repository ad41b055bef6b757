package server

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/ogp-proxy/internal/config"
)

const testPage = `<!doctype html>
<html><head>
<title>Fallback Title</title>
<meta property="og:title" content="Tom &amp; Jerry">
<meta name="description" content="Cat and mouse">
<meta property="og:image" content="/cover.png">
<link rel="icon" href="/favicon.ico">
</head><body></body></html>`

func TestBuild_EndToEnd(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/page":
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte(testPage))
		case "/cover.png":
			w.Header().Set("Content-Type", "application/octet-stream")
			_, _ = w.Write(pngBytes(t, 800, 400))
		default:
			http.NotFound(w, r)
		}
	}))
	defer upstream.Close()

	cfg := baseConfig()
	app, err := Build(context.Background(), &cfg, "test")
	require.NoError(t, err)
	defer app.Close(context.Background())

	t.Run("metadata", func(t *testing.T) {
		rec := get(app, "/og?q="+upstream.URL+"/page")
		require.Equal(t, http.StatusOK, rec.Code)

		var body struct {
			Error bool `json:"error"`
			Data  struct {
				Title       string `json:"title"`
				Description string `json:"description"`
				Image       string `json:"image"`
				Favicon     string `json:"favicon"`
			} `json:"data"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		require.False(t, body.Error)
		require.Equal(t, "Fallback Title", body.Data.Title)
		require.Equal(t, "Cat and mouse", body.Data.Description)
		require.Equal(t, upstream.URL+"/cover.png", body.Data.Image)
		require.Equal(t, upstream.URL+"/favicon.ico", body.Data.Favicon)
	})

	t.Run("upstream status", func(t *testing.T) {
		rec := get(app, "/og?q="+upstream.URL+"/missing")
		require.Equal(t, http.StatusNotFound, rec.Code)
		require.Contains(t, rec.Body.String(), "Server Responded with 404 Not Found")
	})

	t.Run("image", func(t *testing.T) {
		rec := get(app, "/img?q="+upstream.URL+"/cover.png")
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, "image/webp", rec.Header().Get("Content-Type"))

		cfg, format, err := image.DecodeConfig(bytes.NewReader(rec.Body.Bytes()))
		require.NoError(t, err)
		require.Equal(t, "webp", format)
		require.Equal(t, 314, cfg.Width)
		require.Equal(t, 157, cfg.Height)
	})

	t.Run("image fallback", func(t *testing.T) {
		rec := get(app, "/img?q="+upstream.URL+"/missing")
		require.Equal(t, http.StatusFound, rec.Code)
		require.Equal(t, "/nf", rec.Header().Get("Location"))

		rec = get(app, "/fav?q="+upstream.URL+"/page")
		require.Equal(t, http.StatusFound, rec.Code)
		require.Equal(t, "/nff", rec.Header().Get("Location"))
	})
}

func TestBuild_LocalCacheBackend(t *testing.T) {
	cfg := baseConfig()
	cfg.Cache.Backend = config.CacheLocal
	cfg.Cache.Local.BaseDir = t.TempDir()

	app, err := Build(context.Background(), &cfg, "test")
	require.NoError(t, err)
	defer app.Close(context.Background())

	require.Equal(t, http.StatusOK, get(app, "/healthz").Code)
}

func TestBuild_LocalCacheBackendRejectsBadDir(t *testing.T) {
	cfg := baseConfig()
	cfg.Cache.Backend = config.CacheLocal
	cfg.Cache.Local.BaseDir = "/proc/ogproxy-cannot-write-here"

	_, err := Build(context.Background(), &cfg, "test")
	require.Error(t, err)
}

func baseConfig() config.Config {
	return config.Config{
		Server: config.ServerConfig{Port: 0, FallbackMode: config.FallbackRedirect},
		HTTP: config.HTTPConfig{
			TimeoutSeconds: 5,
			UserAgent:      config.DefaultUserAgent,
			MaxRedirects:   1,
		},
		Image:     config.ImageConfig{Quality: 75},
		Cache:     config.CacheConfig{Backend: config.CacheNone, TTLSeconds: 3600},
		Logging:   config.LoggingConfig{Development: true},
		Telemetry: config.TelemetryConfig{ServiceName: "ogproxy-test"},
	}
}

func get(app *App, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, req)
	return rec
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}
