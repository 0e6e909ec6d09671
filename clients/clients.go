// Package clients holds the HTTP clients for the four external
// collaborators: the task-definition source, the audience directory, the
// lookup provider, and the rendering/dispatch service. All timeout and
// retry policy lives here; the engine itself never retries.
package clients

import (
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
)

// Options configures one outbound client.
type Options struct {
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int
}

// newClient builds a resty client with the shared conventions: timeout,
// retries with backoff, and a correlation id on every request.
func newClient(opts Options) *resty.Client {
	return resty.New().
		SetBaseURL(opts.BaseURL).
		SetTimeout(opts.Timeout).
		SetRetryCount(opts.MaxRetries).
		SetRetryWaitTime(100 * time.Millisecond).
		OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
			req.SetHeader("X-Correlation-ID", uuid.New().String())
			return nil
		})
}
