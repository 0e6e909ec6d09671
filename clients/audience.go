package clients

import (
	"context"
	"fmt"

	"github.com/go-resty/resty/v2"

	"github.com/notifyflow/notifyflow/engine"
)

// audiencePageSize is the fixed directory page size.
const audiencePageSize = 300

// AudienceClient queries the external audience directory. It implements
// engine.Directory: deterministic ordering by licence number ascending,
// fixed page size.
type AudienceClient struct {
	http *resty.Client
}

func NewAudienceClient(opts Options) *AudienceClient {
	return &AudienceClient{http: newClient(opts)}
}

type audienceQueryRequest struct {
	Filter     engine.Filter  `json:"filter"`
	Sort       map[string]int `json:"sort"`
	Pagination map[string]int `json:"pagination"`
}

type audienceQueryResponse struct {
	Data       []engine.Recipient `json:"data"`
	Pagination engine.Page        `json:"pagination"`
}

func (c *AudienceClient) Query(ctx context.Context, filter engine.Filter, page int) ([]engine.Recipient, engine.Page, error) {
	var out audienceQueryResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(audienceQueryRequest{
			Filter:     filter,
			Sort:       map[string]int{"licence_number": 1},
			Pagination: map[string]int{"page": page, "perPage": audiencePageSize},
		}).
		SetResult(&out).
		Post("/licences/search")
	if err != nil {
		return nil, engine.Page{}, fmt.Errorf("querying audience directory: %w", err)
	}
	if resp.IsError() {
		return nil, engine.Page{}, fmt.Errorf("audience directory returned %s", resp.Status())
	}
	return out.Data, out.Pagination, nil
}
