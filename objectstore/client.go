// Package objectstore fetches image bytes referenced by conversations.
//
// Images uploaded by users live in an S3 compatible bucket and are reached
// through minio. Anything else (product CDN images for instance) is fetched
// over plain HTTP.
package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
)

// MaxObjectSize caps a single fetched object.
const MaxObjectSize = 20 << 20

// ErrTooLarge is returned when an object exceeds MaxObjectSize.
var ErrTooLarge = errors.New("object exceeds size limit")

// Fetcher resolves a remote image reference to its bytes.
type Fetcher interface {
	FetchBytes(ctx context.Context, rawURL string) ([]byte, error)
}

// Config describes the bucket holding uploaded images.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
	Bucket    string
	UseSSL    bool
	// PublicBaseURL is the address objects are linked under, when it differs
	// from the endpoint (a CDN in front of the bucket for example).
	PublicBaseURL string
}

// Client fetches bucket objects through minio and other URLs over HTTP.
type Client struct {
	api        *minio.Client
	bucket     string
	endpoint   string
	publicBase string
	http       *HTTPFetcher
	logger     *zap.SugaredLogger
}

// New creates a Client. When cfg.Endpoint is empty the client only fetches
// over HTTP.
func New(cfg Config, logger *zap.SugaredLogger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	c := &Client{
		bucket:     cfg.Bucket,
		endpoint:   strings.ToLower(cfg.Endpoint),
		publicBase: strings.TrimSuffix(cfg.PublicBaseURL, "/"),
		http:       NewHTTPFetcher(nil),
		logger:     logger,
	}
	if cfg.Endpoint == "" {
		return c, nil
	}

	api, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create object storage client: %w", err)
	}
	c.api = api
	return c, nil
}

// FetchBytes implements Fetcher.
func (c *Client) FetchBytes(ctx context.Context, rawURL string) ([]byte, error) {
	if key, ok := c.objectKey(rawURL); ok {
		c.logger.Debugw("Fetching image from bucket", "bucket", c.bucket, "key", key)
		return c.Download(ctx, key)
	}
	return c.http.FetchBytes(ctx, rawURL)
}

// objectKey maps rawURL to a key of the configured bucket. Supported forms
// are s3://bucket/key, {PublicBaseURL}/key and path style
// {endpoint}/bucket/key.
func (c *Client) objectKey(rawURL string) (string, bool) {
	if c.api == nil {
		return "", false
	}
	if c.publicBase != "" && strings.HasPrefix(rawURL, c.publicBase+"/") {
		return strings.TrimPrefix(rawURL, c.publicBase+"/"), true
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return "", false
	}
	path := strings.TrimPrefix(u.Path, "/")
	switch {
	case u.Scheme == "s3" && u.Host == c.bucket:
		return path, path != ""
	case strings.EqualFold(u.Host, c.endpoint) && strings.HasPrefix(path, c.bucket+"/"):
		key := strings.TrimPrefix(path, c.bucket+"/")
		return key, key != ""
	}
	return "", false
}

// Download reads the object key of the bucket into memory.
func (c *Client) Download(ctx context.Context, key string) ([]byte, error) {
	if c.api == nil {
		return nil, errors.New("object storage is not configured")
	}
	obj, err := c.api.GetObject(ctx, c.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get object %s: %w", key, err)
	}
	defer obj.Close()

	return readLimited(obj, key)
}

// HTTPFetcher downloads public URLs.
type HTTPFetcher struct {
	client *http.Client
}

// NewHTTPFetcher wraps client, or a client with a 30 second timeout when nil.
func NewHTTPFetcher(client *http.Client) *HTTPFetcher {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPFetcher{client: client}
}

func (f *HTTPFetcher) FetchBytes(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid image url %q: %w", rawURL, err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch %s: status %d", rawURL, resp.StatusCode)
	}
	return readLimited(resp.Body, rawURL)
}

func readLimited(r io.Reader, name string) ([]byte, error) {
	buf := new(bytes.Buffer)
	n, err := io.Copy(buf, io.LimitReader(r, MaxObjectSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", name, err)
	}
	if n > MaxObjectSize {
		return nil, fmt.Errorf("%s: %w", name, ErrTooLarge)
	}
	return buf.Bytes(), nil
}
