package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// StatusError is a non-2xx response from a vendor API. Collectors inspect
// the status code to distinguish "feature not configured" (403/404, valid
// data) from real failures.
type StatusError struct {
	StatusCode int
	Body       string
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	return fmt.Sprintf("vendor API returned %d: %s", e.StatusCode, e.Body)
}

// IsNotConfigured reports whether err is a 403 or 404 vendor response,
// which the provider contract treats as "feature not configured" rather
// than a collection failure.
func IsNotConfigured(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode == http.StatusForbidden || se.StatusCode == http.StatusNotFound
	}
	return false
}

// isRetryableError reports whether a vendor failure is worth retrying on a
// later sync: rate limits and server-side errors are, everything else not.
func isRetryableError(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode == http.StatusTooManyRequests || se.StatusCode >= 500
	}
	return false
}

// APIClient is a minimal authenticated JSON client shared by the provider
// implementations. Each provider configures its base URL and auth header
// at construction; tests point BaseURL at an httptest server.
type APIClient struct {
	BaseURL string

	httpClient *http.Client
	headers    map[string]string
}

// NewAPIClient creates an APIClient with the given base URL and timeout.
func NewAPIClient(baseURL string, timeout time.Duration) *APIClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &APIClient{
		BaseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		headers:    make(map[string]string),
	}
}

// SetBearerToken sets a Bearer Authorization header for all requests.
func (c *APIClient) SetBearerToken(token string) {
	c.headers["Authorization"] = "Bearer " + token
}

// SetHeader sets an arbitrary header for all requests.
func (c *APIClient) SetHeader(key, value string) {
	c.headers[key] = value
}

// GetJSON performs a GET request and decodes the JSON response into v.
// Non-2xx responses return a *StatusError.
func (c *APIClient) GetJSON(ctx context.Context, path string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	for k, val := range c.headers {
		req.Header.Set(k, val)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	if v == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
