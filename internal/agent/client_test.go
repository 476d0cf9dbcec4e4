package agent

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mfarzz/webprintrdbi/internal/jobs"
)

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL+"/", 2*time.Second, 2*time.Second)
}

func TestExtensionForContentType(t *testing.T) {
	assert.Equal(t, ".pdf", ExtensionForContentType("application/pdf"))
	assert.Equal(t, ".jpg", ExtensionForContentType("image/jpeg"))
	assert.Equal(t, ".png", ExtensionForContentType("IMAGE/PNG; charset=binary"))
	assert.Equal(t, ".gif", ExtensionForContentType("image/gif"))
	assert.Equal(t, "", ExtensionForContentType("application/octet-stream"))
}

func TestClientFetchQueue(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/queue", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `[{"id":"a","status":"pending","settings":{"copies":2,"color":"bw","resolvedPages":[1,3]}},{"id":"b","status":"pending","settings":{"resolvedPages":"all"}}]`)
	}))

	queue, err := c.FetchQueue(context.Background())
	require.NoError(t, err)
	require.Len(t, queue, 2)
	assert.Equal(t, "a", queue[0].ID)
	assert.Equal(t, 2, queue[0].Settings.Copies)
	assert.Equal(t, jobs.ColorBW, queue[0].Settings.Color)
	assert.Equal(t, []int{1, 3}, queue[0].Settings.ResolvedPages.Pages)
	assert.True(t, queue[1].Settings.ResolvedPages.All())
}

func TestClientFetchQueueServerError(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))

	_, err := c.FetchQueue(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}

func TestClientDownload(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/print-file/img":
			w.Header().Set("Content-Type", "image/jpeg")
			_, _ = io.WriteString(w, "jpeg-bytes")
		case "/api/print-file/raw":
			w.Header().Set("Content-Type", "application/octet-stream")
			_, _ = io.WriteString(w, "raw")
		case "/api/print-file/gone":
			w.WriteHeader(http.StatusGone)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	dir := t.TempDir()

	path, err := c.Download(context.Background(), &jobs.Job{ID: "img"}, dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "img.jpg"), path)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "jpeg-bytes", string(data))

	path, err = c.Download(context.Background(), &jobs.Job{ID: "raw", StoredFileName: "x.BMP"}, dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "raw.bmp"), path)

	path, err = c.Download(context.Background(), &jobs.Job{ID: "raw"}, dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "raw.pdf"), path)

	_, err = c.Download(context.Background(), &jobs.Job{ID: "gone"}, dir)
	assert.ErrorIs(t, err, ErrFileGone)

	_, err = c.Download(context.Background(), &jobs.Job{ID: "missing"}, dir)
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestClientStatusMapping(t *testing.T) {
	var reason string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		switch r.URL.Path {
		case "/api/queue/a/claim", "/api/queue/a/done", "/api/agent/ping":
			_, _ = io.WriteString(w, `{"ok":true}`)
		case "/api/queue/b/claim":
			w.WriteHeader(http.StatusConflict)
		case "/api/queue/a/error":
			var body map[string]string
			_ = json.NewDecoder(r.Body).Decode(&body)
			reason = body["reason"]
			_, _ = io.WriteString(w, `{"ok":true}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	ctx := context.Background()

	assert.NoError(t, c.Claim(ctx, "a"))
	assert.NoError(t, c.Done(ctx, "a"))
	assert.NoError(t, c.Ping(ctx))
	assert.ErrorIs(t, c.Claim(ctx, "b"), ErrAlreadyClaimed)
	assert.ErrorIs(t, c.Done(ctx, "zzz"), ErrJobNotFound)

	require.NoError(t, c.ReportError(ctx, "a", "printer jammed"))
	assert.Equal(t, "printer jammed", reason)
}

func TestClientQueueTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(release) })

	c := NewClient(srv.URL, 50*time.Millisecond, time.Second)
	_, err := c.FetchQueue(context.Background())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
