package pages

import (
	"context"
	"fmt"
	"time"

	"github.com/playwright-community/playwright-go"
)

// APIRequester sends hrmapi lookups through a browser context's request API so
// they carry the UI session cookies.
type APIRequester struct {
	Request playwright.APIRequestContext
}

// Get implements hrmapi.Requester.
func (r APIRequester) Get(ctx context.Context, url string, query map[string]string) (int, []byte, error) {
	if err := ctx.Err(); err != nil {
		return 0, nil, err
	}
	opts := playwright.APIRequestContextGetOptions{
		Params:  queryParams(query),
		Timeout: requestTimeout(ctx),
	}

	resp, err := r.Request.Get(url, opts)
	if err != nil {
		return 0, nil, fmt.Errorf("pages: api request: %w", err)
	}
	defer resp.Dispose()

	body, err := resp.Body()
	if err != nil {
		return resp.Status(), nil, fmt.Errorf("pages: reading api response: %w", err)
	}
	return resp.Status(), body, nil
}

// requestTimeout is the ctx deadline in milliseconds, nil without one.
// Playwright treats 0 as no timeout, so a deadline about to pass becomes 1.
func requestTimeout(ctx context.Context) *float64 {
	deadline, ok := ctx.Deadline()
	if !ok {
		return nil
	}
	return playwright.Float(float64(max(time.Until(deadline).Milliseconds(), 1)))
}

func queryParams(query map[string]string) map[string]interface{} {
	if len(query) == 0 {
		return nil
	}
	out := make(map[string]interface{}, len(query))
	for k, v := range query {
		out[k] = v
	}
	return out
}
