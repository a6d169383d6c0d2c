package extract

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/storage"

	"github.com/mcp-open-lab/zenny-books-sub002/internal/common"
)

// DefaultMaxFileSize bounds a single fetched upload.
const DefaultMaxFileSize = 25 << 20

// RemoteSchemes are the URL schemes a shared server fetches on behalf of API
// clients. Local paths and file:// URLs would read the server's own disk.
var RemoteSchemes = []string{"gs", "https"}

// Fetcher downloads the file behind an item's URL. It understands local
// paths, file:// and gs:// URLs, and http(s), optionally limited to a set of
// schemes.
type Fetcher struct {
	httpClient *http.Client
	gcs        *storage.Client
	newGCS     func(ctx context.Context) (*storage.Client, error)
	schemes    []string
	maxBytes   int64
	mu         sync.Mutex
}

// FetcherOption configures a Fetcher.
type FetcherOption func(*Fetcher)

// WithHTTPClient sets the client used for http(s) URLs.
func WithHTTPClient(c *http.Client) FetcherOption {
	return func(f *Fetcher) { f.httpClient = c }
}

// WithStorageClient sets the client used for gs:// URLs.
func WithStorageClient(c *storage.Client) FetcherOption {
	return func(f *Fetcher) { f.gcs = c }
}

// WithMaxFileSize overrides DefaultMaxFileSize.
func WithMaxFileSize(n int64) FetcherOption {
	return func(f *Fetcher) { f.maxBytes = n }
}

// WithSchemes limits Fetch to URLs with one of schemes. Bare paths count as
// "file". Without this option every supported scheme is allowed.
func WithSchemes(schemes ...string) FetcherOption {
	return func(f *Fetcher) { f.schemes = schemes }
}

// NewFetcher creates a Fetcher. The Cloud Storage client is created on
// first use so deployments without credentials can still read local files.
func NewFetcher(opts ...FetcherOption) *Fetcher {
	f := &Fetcher{
		httpClient: &http.Client{Timeout: 60 * time.Second},
		maxBytes:   DefaultMaxFileSize,
		newGCS: func(ctx context.Context) (*storage.Client, error) {
			return storage.NewClient(ctx)
		},
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch returns the content at rawURL.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	if f.schemes != nil {
		if err := CheckURL(rawURL, f.schemes); err != nil {
			return nil, err
		}
	}

	scheme, u, err := parseFileURL(rawURL)
	if err != nil {
		return nil, err
	}
	switch scheme {
	case "file":
		if u == nil {
			return f.readLocal(rawURL)
		}
		return f.readLocal(u.Path)
	case "gs":
		return f.readGCS(ctx, u.Host, strings.TrimPrefix(u.Path, "/"))
	case "http", "https":
		return f.readHTTP(ctx, rawURL)
	default:
		return nil, fmt.Errorf("unsupported url scheme %q", scheme)
	}
}

// CheckURL reports a validation error unless rawURL uses one of schemes and
// names a host where its scheme needs one.
func CheckURL(rawURL string, schemes []string) error {
	scheme, u, err := parseFileURL(rawURL)
	if err != nil {
		return common.NewValidationError("url", err.Error())
	}
	if !slices.Contains(schemes, scheme) {
		return common.NewValidationError("url", fmt.Sprintf("scheme %q is not allowed, use one of %s", scheme, strings.Join(schemes, ", ")))
	}
	if scheme != "file" && u.Host == "" {
		return common.NewValidationError("url", "must name a host or bucket")
	}
	return nil
}

// parseFileURL returns the scheme Fetch would use for rawURL. Bare paths,
// including Windows drive letters, are "file" with a nil URL.
func parseFileURL(rawURL string) (string, *url.URL, error) {
	if rawURL == "" {
		return "", nil, fmt.Errorf("empty file url")
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" || len(u.Scheme) == 1 {
		return "file", nil, nil
	}
	return strings.ToLower(u.Scheme), u, nil
}

func (f *Fetcher) readLocal(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", filepath.Base(path), err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}
	if info.Size() > f.maxBytes {
		return nil, fmt.Errorf("%s is %d bytes, over the %d byte limit", filepath.Base(path), info.Size(), f.maxBytes)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	return data, nil
}

func (f *Fetcher) storageClient(ctx context.Context) (*storage.Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.gcs != nil {
		return f.gcs, nil
	}
	c, err := f.newGCS(ctx)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	f.gcs = c
	return c, nil
}

func (f *Fetcher) readGCS(ctx context.Context, bucket, object string) ([]byte, error) {
	if bucket == "" || object == "" {
		return nil, fmt.Errorf("gs url needs a bucket and an object")
	}
	client, err := f.storageClient(ctx)
	if err != nil {
		return nil, err
	}

	r, err := client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("open gs://%s/%s: %w", bucket, object, err)
	}
	defer r.Close()

	return f.readLimited(r, "gs://"+bucket+"/"+object)
}

func (f *Fetcher) readHTTP(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download: unexpected status %d", resp.StatusCode)
	}
	return f.readLimited(resp.Body, rawURL)
}

func (f *Fetcher) readLimited(r io.Reader, name string) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, f.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	if int64(len(data)) > f.maxBytes {
		return nil, fmt.Errorf("%s exceeds the %d byte limit", name, f.maxBytes)
	}
	return data, nil
}

// Close releases the Cloud Storage client if one was created.
func (f *Fetcher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.gcs == nil {
		return nil
	}
	err := f.gcs.Close()
	f.gcs = nil
	return err
}
