package app

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"bookbazaar/internal/servicetoken"
)

type bookPurger interface {
	PurgeSellerBooks(sellerID string) (int, error)
}

type httpCatalogClient struct {
	baseURL    string
	signer     *servicetoken.Signer
	httpClient *http.Client
}

func newCatalogClient(baseURL string, signer *servicetoken.Signer) (*httpCatalogClient, error) {
	if signer == nil {
		return nil, fmt.Errorf("internal signer is required")
	}
	return &httpCatalogClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		signer:     signer,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}, nil
}

// PurgeSellerBooks asks the catalog service to remove every book and
// cover blob owned by the seller.
func (c *httpCatalogClient) PurgeSellerBooks(sellerID string) (int, error) {
	target := c.baseURL + "/internal/sellers/" + url.PathEscape(sellerID) + "/books"
	req, err := http.NewRequest(http.MethodDelete, target, nil)
	if err != nil {
		return 0, err
	}
	token, err := c.signer.Token()
	if err != nil {
		return 0, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		var errResp struct {
			Message string `json:"message"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&errResp)
		msg := errResp.Message
		if msg == "" {
			msg = resp.Status
		}
		return 0, fmt.Errorf("catalog purge error: %s", msg)
	}
	var body struct {
		Removed int `json:"removed"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("catalog purge response: %w", err)
	}
	return body.Removed, nil
}
