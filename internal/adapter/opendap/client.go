package opendap

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// Client fetches DAP4 NetCDF-4 subsets from a Hyrax OPeNDAP server.
type Client struct {
	httpClient *http.Client
	token      string
}

// NewClient creates an OPeNDAP client. Timeouts are applied per request
// through the context, so httpClient should not set its own. A non-empty
// token is sent as an Earthdata Login bearer token.
func NewClient(httpClient *http.Client, token string) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{httpClient: httpClient, token: token}
}

// SubsetURL builds the DAP4 request URL for the given variables.
func SubsetURL(sourceURL string, variables []string) string {
	params := url.Values{"dap4.ce": {strings.Join(variables, ";")}}
	return sourceURL + cacheSuffix + "?" + params.Encode()
}

// Fetch requests the subset and returns the open response body. The caller
// must close it. Any non-2xx status is an error.
func (c *Client) Fetch(ctx context.Context, sourceURL string, variables []string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, SubsetURL(sourceURL, variables), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("opendap request: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, fmt.Errorf("opendap error: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return resp.Body, nil
}
