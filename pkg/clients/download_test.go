package clients

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/storekit-io/shopbulk/pkg/errors"
)

func newTestDownloader(t *testing.T, handler http.HandlerFunc) (*Downloader, string) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	base := NewHTTPClient(nil, zap.NewNop())
	t.Cleanup(func() { _ = base.Close() })

	return NewDownloader(base, zap.NewNop()), server.URL
}

func gzipped(t *testing.T, content string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	_, err := gz.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	return buf.Bytes()
}

func TestFetchPlainArtifact(t *testing.T) {
	content := "{\"id\":\"1\"}\n{\"id\":\"2\"}\n"
	downloader, url := newTestDownloader(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(content))
	})

	dest := filepath.Join(t.TempDir(), "artifact.jsonl")
	written, err := downloader.Fetch(context.Background(), url, dest)
	require.NoError(t, err)
	assert.Equal(t, int64(len(content)), written)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, content, string(data))
}

func TestFetchGzipByMagicBytes(t *testing.T) {
	content := "{\"id\":\"1\"}\n"
	payload := gzipped(t, content)
	downloader, url := newTestDownloader(t, func(w http.ResponseWriter, r *http.Request) {
		// No Content-Encoding header: the payload must be sniffed
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write(payload)
	})

	dest := filepath.Join(t.TempDir(), "artifact.jsonl")
	_, err := downloader.Fetch(context.Background(), url, dest)
	require.NoError(t, err)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, content, string(data))
}

func TestFetchErrorStatus(t *testing.T) {
	downloader, url := newTestDownloader(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})

	dest := filepath.Join(t.TempDir(), "artifact.jsonl")
	_, err := downloader.Fetch(context.Background(), url, dest)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeTransport))

	_, statErr := os.Stat(dest)
	assert.True(t, os.IsNotExist(statErr), "no file on failed download")
}

func TestFetchTruncatedGzipRemovesPartialFile(t *testing.T) {
	payload := gzipped(t, "some artifact content that compresses")
	downloader, url := newTestDownloader(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Encoding", "gzip")
		_, _ = w.Write(payload[:len(payload)-4])
	})

	dest := filepath.Join(t.TempDir(), "artifact.jsonl")
	_, err := downloader.Fetch(context.Background(), url, dest)
	require.Error(t, err)

	_, statErr := os.Stat(dest)
	assert.True(t, os.IsNotExist(statErr), "partial file must be removed")
}
