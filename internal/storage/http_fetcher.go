package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultMaxBlobSize bounds a fetched blob. A snapshot of the largest
// partition is well below it.
const DefaultMaxBlobSize = 4 << 20

// HTTPFetcher fetches blobs with plain GET requests from a public base URL,
// such as a CDN in front of the bucket or the daemon's /blobs route.
type HTTPFetcher struct {
	baseURL string
	prefix  string
	client  *http.Client
	maxSize int64
}

func NewHTTPFetcher(baseURL, prefix string, client *http.Client) *HTTPFetcher {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPFetcher{
		baseURL: strings.TrimRight(baseURL, "/"),
		prefix:  prefix,
		client:  client,
		maxSize: DefaultMaxBlobSize,
	}
}

// URL returns the address of a blob.
func (f *HTTPFetcher) URL(key BlobKey) string {
	return f.baseURL + "/" + key.Path(f.prefix)
}

func (f *HTTPFetcher) Fetch(ctx context.Context, key BlobKey) ([]byte, error) {
	url := f.URL(key)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", ContentType)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		// Not published yet. S3 websites answer 403 for missing keys
		// without list permission; that is not treated as absence.
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &NotFoundError{Name: url}
	case resp.StatusCode != http.StatusOK:
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &HTTPError{URL: url, StatusCode: resp.StatusCode}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxSize+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > f.maxSize {
		return nil, fmt.Errorf("GET %s: blob exceeds %d bytes", url, f.maxSize)
	}
	return data, nil
}
