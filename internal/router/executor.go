package router

import (
	"bytes"
	"context"
	"io"
	"net/http"

	"github.com/yanun0323/errors"

	"main/pkg/exception"
)

// HTTPExecutor posts command payloads to a dispatch endpoint. Transport
// errors and 5xx responses are transient; 4xx responses are permanent so
// the router fails the command without retrying.
type HTTPExecutor struct {
	endpoint string
	client   *http.Client
}

// NewHTTPExecutor creates an executor for the given endpoint. A nil client
// falls back to http.DefaultClient.
func NewHTTPExecutor(endpoint string, client *http.Client) *HTTPExecutor {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPExecutor{endpoint: endpoint, client: client}
}

func (e *HTTPExecutor) Execute(ctx context.Context, payload []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, errors.Wrap(err, "build dispatch request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, exception.Transient(errors.Wrap(err, "dispatch request"))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, exception.Transient(errors.Wrap(err, "read dispatch response"))
	}
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return body, nil
	case resp.StatusCode >= 500:
		return nil, exception.Transient(errors.Errorf("dispatch endpoint returned %d", resp.StatusCode))
	default:
		return nil, errors.Errorf("dispatch endpoint rejected command: %d", resp.StatusCode)
	}
}
