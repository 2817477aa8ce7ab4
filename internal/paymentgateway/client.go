// Package paymentgateway implements the HTTP client for the external payment
// gateway. The billing service depends on the Gateway interface, so tests
// substitute a double instead of a module-level singleton.
package paymentgateway

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"time"
)

// Gateway is the capability the billing service consumes.
type Gateway interface {
	CreateIntent(ctx context.Context, req CreateIntentRequest) (*CreateIntentResponse, error)
	Confirm(ctx context.Context, intentID string, req ConfirmRequest) (*ConfirmResponse, error)
}

// Client talks to the gateway's REST API with basic auth.
type Client struct {
	shopID     string
	secretKey  string
	apiURL     string
	httpClient *http.Client
}

// NewClient creates a gateway client.
func NewClient(apiURL, shopID, secretKey string) *Client {
	return &Client{
		shopID:     shopID,
		secretKey:  secretKey,
		apiURL:     apiURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	url := c.apiURL + path
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return nil, err
	}
	auth := base64.StdEncoding.EncodeToString([]byte(c.shopID + ":" + c.secretKey))
	req.Header.Set("Authorization", "Basic "+auth)
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

// CreateIntent asks the gateway to prepare a charge for the given amount.
func (c *Client) CreateIntent(ctx context.Context, reqParams CreateIntentRequest) (*CreateIntentResponse, error) {
	req, err := c.newRequest(ctx, "POST", "/intents", reqParams)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, errors.New("unexpected status: " + resp.Status)
	}

	var intentResp CreateIntentResponse
	if err := json.NewDecoder(resp.Body).Decode(&intentResp); err != nil {
		return nil, err
	}
	return &intentResp, nil
}

// Confirm submits card data for a prepared intent and returns the outcome.
func (c *Client) Confirm(ctx context.Context, intentID string, reqParams ConfirmRequest) (*ConfirmResponse, error) {
	req, err := c.newRequest(ctx, "POST", "/intents/"+intentID+"/confirm", reqParams)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.New("unexpected status: " + resp.Status)
	}

	var confirmResp ConfirmResponse
	if err := json.NewDecoder(resp.Body).Decode(&confirmResp); err != nil {
		return nil, err
	}
	return &confirmResp, nil
}
