package clients

import (
	"context"
	"fmt"

	"github.com/go-resty/resty/v2"

	"github.com/notifyflow/notifyflow/engine"
)

// RenderClient talks to the rendering/dispatch service. The request body
// carries a sender identity only for engine.Commit calls; its absence is
// what makes the upstream treat the call as a side-effect-free preview.
type RenderClient struct {
	http *resty.Client
}

func NewRenderClient(opts Options) *RenderClient {
	return &RenderClient{http: newClient(opts)}
}

type renderRequest struct {
	LicenceNumbers []string       `json:"licenceNumbers"`
	Variables      map[string]any `json:"variables"`
	Sender         string         `json:"sender,omitempty"`
}

type renderResponse struct {
	Data           []engine.RenderedMessage `json:"data"`
	RecipientCount int                      `json:"recipientCount"`
}

func (c *RenderClient) Render(ctx context.Context, taskID int, licenceNumbers []string, variables map[string]any, mode engine.SendMode) ([]engine.RenderedMessage, int, error) {
	body := renderRequest{
		LicenceNumbers: licenceNumbers,
		Variables:      variables,
	}
	switch m := mode.(type) {
	case engine.Preview:
	case engine.Commit:
		if m.Sender == "" {
			return nil, 0, fmt.Errorf("commit render without a sender identity")
		}
		body.Sender = m.Sender
	default:
		return nil, 0, fmt.Errorf("unknown send mode %T", mode)
	}

	var out renderResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&out).
		Post(fmt.Sprintf("/notifications/%d/render", taskID))
	if err != nil {
		return nil, 0, fmt.Errorf("calling rendering service: %w", err)
	}
	if resp.IsError() {
		return nil, 0, fmt.Errorf("rendering service returned %s", resp.Status())
	}
	return out.Data, out.RecipientCount, nil
}
