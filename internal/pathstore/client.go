package pathstore

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
)

// Client communicates with the pathstore HTTP API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// RetryableError marks a failure worth retrying (rate limit or server error).
type RetryableError struct {
	StatusCode int
	Message    string
}

func (e *RetryableError) Error() string {
	return fmt.Sprintf("retryable pathstore error (status %d): %s", e.StatusCode, e.Message)
}

// NodeRequest is the body for PUT /kv/{key}.
type NodeRequest struct {
	Value     any    `json:"value"`
	MergeMode string `json:"merge_mode,omitempty"`
	Source    string `json:"source,omitempty"`
	ExpiresAt string `json:"expires_at,omitempty"`
}

// NodeResponse is the response from GET /kv/{key}.
type NodeResponse struct {
	Key   string `json:"key_path"`
	Value any    `json:"value"`
}

// PutNode stores or updates a node at the given path.
func (c *Client) PutNode(ctx context.Context, key string, req NodeRequest) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal node: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPut, c.baseURL+"/kv/"+key, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	c.authorize(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("put node: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return statusError("put node "+key, resp)
	}
	return nil
}

// GetNode retrieves a node by key. A missing node yields nil, nil.
func (c *Client) GetNode(ctx context.Context, key string) (*NodeResponse, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/kv/"+key, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	c.authorize(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("get node: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, statusError("get node "+key, resp)
	}

	var node NodeResponse
	if err := json.NewDecoder(resp.Body).Decode(&node); err != nil {
		return nil, fmt.Errorf("decode node: %w", err)
	}
	return &node, nil
}

// DeleteNode deletes a node and optionally its children.
func (c *Client) DeleteNode(ctx context.Context, key string, recursive bool) error {
	u := c.baseURL + "/kv/" + key
	if recursive {
		u += "?children=true"
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodDelete, u, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	c.authorize(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("delete node: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return statusError("delete node "+key, resp)
	}
	return nil
}

// ListChildrenResponse is a single node from a prefix scan.
type ListChildrenResponse struct {
	Key   string `json:"key_path"`
	Value any    `json:"value"`
}

// ListChildren does a prefix scan under the given key.
func (c *Client) ListChildren(ctx context.Context, key string, limit int) ([]ListChildrenResponse, error) {
	u := c.baseURL + "/kv/" + key + "/*"
	if limit > 0 {
		u += "?limit=" + url.QueryEscape(fmt.Sprintf("%d", limit))
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	c.authorize(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("list children: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, statusError("list children "+key, resp)
	}

	var result struct {
		Nodes []ListChildrenResponse `json:"nodes"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode children: %w", err)
	}
	return result.Nodes, nil
}

// Close releases idle connections.
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}

func (c *Client) authorize(r *http.Request) {
	if c.apiKey != "" {
		r.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

func statusError(op string, resp *http.Response) error {
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return &RetryableError{StatusCode: resp.StatusCode, Message: op + ": " + string(respBody)}
	}
	return fmt.Errorf("%s: status %d: %s", op, resp.StatusCode, string(respBody))
}
