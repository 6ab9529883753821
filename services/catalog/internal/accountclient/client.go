// Package accountclient resolves bearer tokens against the account service.
package accountclient

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"bookbazaar/pkg/domain"
)

// Client calls the account service over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// APIError represents an account service error response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return e.Message
}

// NewClient constructs an account service client.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 5 * time.Second},
	}
}

// Me resolves the bearer token to the authenticated user.
func (c *Client) Me(token string) (domain.User, error) {
	req, err := http.NewRequest(http.MethodGet, c.baseURL+"/auth/me", nil)
	if err != nil {
		return domain.User{}, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.User{}, fmt.Errorf("call account service: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return domain.User{}, err
	}
	if resp.StatusCode != http.StatusOK {
		apiErr := &APIError{Status: resp.StatusCode, Message: "unauthorized"}
		var payload struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(body, &payload) == nil && payload.Message != "" {
			apiErr.Message = payload.Message
		}
		return domain.User{}, apiErr
	}
	var payload struct {
		User domain.User `json:"user"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return domain.User{}, fmt.Errorf("decode account response: %w", err)
	}
	return payload.User, nil
}
