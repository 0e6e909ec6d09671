package clients

import (
	"context"
	"fmt"

	"github.com/go-resty/resty/v2"

	"github.com/notifyflow/notifyflow/engine"
)

// LookupClient fetches choice lists for lookup widgets at render time.
type LookupClient struct {
	http *resty.Client
}

func NewLookupClient(opts Options) *LookupClient {
	return &LookupClient{http: newClient(opts)}
}

type lookupResponse struct {
	Data []engine.Choice `json:"data"`
}

func (c *LookupClient) Choices(ctx context.Context, filter map[string]string) ([]engine.Choice, error) {
	var out lookupResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(filter).
		SetResult(&out).
		Get("/choices")
	if err != nil {
		return nil, fmt.Errorf("querying lookup provider: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("lookup provider returned %s", resp.Status())
	}
	return out.Data, nil
}
