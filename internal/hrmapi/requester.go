package hrmapi

import (
	"context"

	"github.com/hemanthi1109-arch/orangehrm-automation-qa/internal/client"
)

// ClientRequester sends lookups through the load client and its cookie jar.
type ClientRequester struct {
	Client *client.Client
}

// Get implements Requester.
func (r ClientRequester) Get(ctx context.Context, url string, query map[string]string) (int, []byte, error) {
	resp, err := r.Client.Do(ctx, client.Request{
		Name:        "api lookup",
		Path:        url,
		QueryParams: query,
		Headers:     map[string]string{"Accept": "application/json"},
	})
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, resp.Body, nil
}
