package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/hemanthi1109-arch/orangehrm-automation-qa/internal/client"
	"github.com/hemanthi1109-arch/orangehrm-automation-qa/internal/config"
)

// DocumentFetcher returns the HTML of a page on the target.
type DocumentFetcher interface {
	Fetch(ctx context.Context, path string, cookies map[string]string) (string, error)
}

// HTTPFetcher fetches the raw server response.
type HTTPFetcher struct {
	client *client.Client
}

// NewHTTPFetcher returns a fetcher backed by c.
func NewHTTPFetcher(c *client.Client) *HTTPFetcher {
	return &HTTPFetcher{client: c}
}

// Fetch sends cookies as an explicit Cookie header, in name order.
func (f *HTTPFetcher) Fetch(ctx context.Context, path string, cookies map[string]string) (string, error) {
	headers := map[string]string{}
	if len(cookies) > 0 {
		names := make([]string, 0, len(cookies))
		for name := range cookies {
			names = append(names, name)
		}
		sort.Strings(names)
		pairs := make([]string, 0, len(names))
		for _, name := range names {
			pairs = append(pairs, name+"="+cookies[name])
		}
		headers["Cookie"] = strings.Join(pairs, "; ")
	}

	resp, err := f.client.Do(ctx, client.Request{
		Name:    "add employee page",
		Method:  http.MethodGet,
		Path:    path,
		Headers: headers,
	})
	if err != nil {
		return "", fmt.Errorf("bootstrap: fetching %s: %w", path, err)
	}
	return string(resp.Body), nil
}

// FetcherFor returns the fetcher selected by bootstrap.renderer and a func
// releasing it.
func FetcherFor(cfg *config.Config, c *client.Client, l *zap.Logger) (DocumentFetcher, func()) {
	if cfg.Bootstrap.Renderer == config.RendererChromedp {
		f := NewChromeFetcher(cfg.Target.BaseURL, cfg.Bootstrap.Chrome, l)
		return f, f.Close
	}
	return NewHTTPFetcher(c), func() {}
}
