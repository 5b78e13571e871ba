package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"elverra-membership/internal/domain/ports/adapter"
	"elverra-membership/internal/infra/metrics"
)

const maxResponseBody = 1 << 20

// apiClient is the small HTTP layer shared by the adapters. Transport
// failures and unreadable responses surface as network errors.
type apiClient struct {
	gateway string
	baseURL string
	http    *http.Client
}

func newAPIClient(gateway, baseURL string, timeout time.Duration) apiClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return apiClient{
		gateway: gateway,
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

func (c apiClient) postJSON(ctx context.Context, op, path string, headers map[string]string, in, out interface{}) (int, error) {
	body, err := json.Marshal(in)
	if err != nil {
		return 0, fmt.Errorf("%s: marshal %s request: %w", c.gateway, op, err)
	}
	h := map[string]string{"Content-Type": "application/json", "Accept": "application/json"}
	for k, v := range headers {
		h[k] = v
	}
	return c.do(ctx, op, http.MethodPost, path, h, bytes.NewReader(body), out)
}

func (c apiClient) postForm(ctx context.Context, op, path string, headers map[string]string, form url.Values, out interface{}) (int, error) {
	h := map[string]string{"Content-Type": "application/x-www-form-urlencoded", "Accept": "application/json"}
	for k, v := range headers {
		h[k] = v
	}
	return c.do(ctx, op, http.MethodPost, path, h, strings.NewReader(form.Encode()), out)
}

func (c apiClient) do(ctx context.Context, op, method, path string, headers map[string]string, body io.Reader, out interface{}) (status int, err error) {
	start := time.Now()
	defer func() { metrics.ObserveGatewayCall(c.gateway, op, start, err) }()

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return 0, fmt.Errorf("%s: build %s request: %w", c.gateway, op, err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, adapter.NewNetworkError(c.gateway, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return resp.StatusCode, adapter.NewNetworkError(c.gateway, err)
	}
	if resp.StatusCode >= 500 {
		return resp.StatusCode, adapter.NewNetworkError(c.gateway, fmt.Errorf("%s: http %d", op, resp.StatusCode))
	}
	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return resp.StatusCode, adapter.NewNetworkError(c.gateway, fmt.Errorf("%s: decode response: %w", op, err))
		}
	}
	return resp.StatusCode, nil
}
