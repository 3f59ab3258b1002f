package clients

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"time"
)

var ErrUnsupportedURL = errors.New("only absolute http and https URLs can be fetched")

const defaultContentType = "application/octet-stream"

// Asset is a fetched remote resource. Body must be closed.
type Asset struct {
	StatusCode  int
	ContentType string
	Body        io.ReadCloser
}

// AssetClient fetches player photos and team logos on behalf of browsers
// that cannot load them cross-origin.
type AssetClient struct {
	*BaseClient
}

func NewAssetClient(timeout time.Duration) *AssetClient {
	base := NewBaseClient("")
	base.SetTimeout(timeout)
	base.SetHeader("User-Agent", "bidroom-asset-proxy/1.0")
	return &AssetClient{BaseClient: base}
}

// Fetch GETs rawURL. Upstream error statuses are returned as an Asset, not
// an error; errors mean the fetch itself failed.
func (c *AssetClient) Fetch(ctx context.Context, rawURL string) (*Asset, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedURL, rawURL)
	}

	resp, err := c.Get(ctx, u.String())
	if err != nil {
		return nil, err
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = defaultContentType
	}
	return &Asset{
		StatusCode:  resp.StatusCode,
		ContentType: contentType,
		Body:        resp.Body,
	}, nil
}
