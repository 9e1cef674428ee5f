package terminal

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/DelfimCelestino/dinex/internal/license"
)

// Client is an HTTP client for talking to the license server. Business
// rejections come back as ValidationResult values; errors are reserved for
// transport and server failures so callers can tell the two apart.
type Client struct {
	serverURL  string
	httpClient *http.Client
}

// NewClient creates a new license server client.
func NewClient(serverURL string) *Client {
	return &Client{
		serverURL: strings.TrimRight(serverURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Validate asks the server to validate the given license key.
func (c *Client) Validate(ctx context.Context, key string) (*license.ValidationResult, error) {
	endpoint := c.serverURL + "/api/licenses?action=validate&key=" + url.QueryEscape(key)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build validation request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("reach license server: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read validation response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("license server returned status %d", resp.StatusCode)
	}

	var result license.ValidationResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("decode validation response: %w", err)
	}

	return &result, nil
}
