package transport

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/ericcug/dashget/internal/errs"
	"github.com/ericcug/dashget/internal/logger"
)

// FetchManifest fetches raw MPD bytes from url with one GET, letting the
// HTTP client follow any redirects (dash-proxied manifests commonly 302
// to a CDN edge), and returns the bytes alongside the final URL they
// were served from (callers need this for BaseURL resolution).
func (c *Client) FetchManifest(ctx context.Context, url string, log logger.Logger) ([]byte, string, error) {
	data, finalURL, err := c.fetchOnce(ctx, url, log)
	if err != nil {
		return nil, "", err
	}
	return data, finalURL, nil
}

func (c *Client) fetchOnce(ctx context.Context, url string, log logger.Logger) ([]byte, string, error) {
	req, err := c.NewRequest(ctx, http.MethodGet, url, true)
	if err != nil {
		return nil, "", fmt.Errorf("%w: building manifest request: %v", errs.ErrNetwork, err)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, "", classifyTransportErr(err)
	}
	defer resp.Body.Close()

	finalURL := url
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}

	if resp.StatusCode != http.StatusOK {
		return nil, "", &errs.HTTPStatusError{URL: finalURL, StatusCode: resp.StatusCode}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("%w: reading manifest body: %v", errs.ErrIO, err)
	}

	log.Debugf("fetched manifest from %s (%d bytes)", finalURL, len(data))
	return data, finalURL, nil
}

func classifyTransportErr(err error) error {
	return fmt.Errorf("%w: %v", errs.ErrNetwork, err)
}
