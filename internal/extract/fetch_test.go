package extract

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcp-open-lab/zenny-books-sub002/internal/common"
)

func TestFetcher_Local(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "receipt.jpg")
	require.NoError(t, os.WriteFile(path, []byte("jpeg bytes"), 0o600))

	f := NewFetcher()
	defer f.Close()

	data, err := f.Fetch(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "jpeg bytes", string(data))

	data, err = f.Fetch(context.Background(), "file://"+path)
	require.NoError(t, err)
	assert.Equal(t, "jpeg bytes", string(data))

	_, err = f.Fetch(context.Background(), filepath.Join(dir, "missing.jpg"))
	assert.Error(t, err)

	_, err = f.Fetch(context.Background(), dir)
	assert.Error(t, err)
}

func TestFetcher_HTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("0123456789"))
	}))
	defer srv.Close()

	f := NewFetcher(WithHTTPClient(srv.Client()))
	data, err := f.Fetch(context.Background(), srv.URL+"/statement.pdf")
	require.NoError(t, err)
	assert.Equal(t, "0123456789", string(data))

	_, err = f.Fetch(context.Background(), srv.URL+"/missing")
	assert.Error(t, err)

	small := NewFetcher(WithHTTPClient(srv.Client()), WithMaxFileSize(4))
	_, err = small.Fetch(context.Background(), srv.URL+"/statement.pdf")
	assert.ErrorContains(t, err, "limit")
}

func TestFetcher_Rejects(t *testing.T) {
	f := NewFetcher()

	_, err := f.Fetch(context.Background(), "")
	assert.Error(t, err)

	_, err = f.Fetch(context.Background(), "ftp://example.com/a.pdf")
	assert.ErrorContains(t, err, "unsupported url scheme")

	_, err = f.Fetch(context.Background(), "gs://bucket-only")
	assert.ErrorContains(t, err, "bucket and an object")
}

func TestFetcher_Schemes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("auth:\n  jwt_secret: s3cret\n"), 0o600))

	f := NewFetcher(WithSchemes(RemoteSchemes...))
	defer f.Close()

	for _, u := range []string{path, "file://" + path, "http://169.254.169.254/latest/meta-data"} {
		data, err := f.Fetch(context.Background(), u)
		var validationErr *common.ValidationError
		assert.True(t, errors.As(err, &validationErr), u)
		assert.Nil(t, data, u)
	}
}

func TestCheckURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{"gs object", "gs://uploads/u1/receipt.jpg", false},
		{"https", "https://files.example.com/statement.pdf", false},
		{"scheme case ignored", "HTTPS://files.example.com/a.pdf", false},
		{"bare path", "/etc/passwd", true},
		{"relative path", "uploads/receipt.jpg", true},
		{"file url", "file:///etc/passwd", true},
		{"plain http", "http://files.example.com/a.pdf", true},
		{"missing host", "https:///a.pdf", true},
		{"missing bucket", "gs:///a.pdf", true},
		{"empty", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckURL(tt.url, RemoteSchemes)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}

	assert.NoError(t, CheckURL("/tmp/receipt.jpg", []string{"file"}), "the CLI may allow local files")
}
