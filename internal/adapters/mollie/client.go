// Package mollie is a minimal client for the Mollie v2 API, covering the
// customer, mandate and subscription resources the reconciliation needs.
//
// Every create call carries an Idempotency-Key header so that a retried
// request (by the transport or the operator) cannot create a duplicate
// resource on the provider side.
package mollie

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
)

const defaultBaseURL = "https://api.mollie.com/v2"

// Client talks to the Mollie v2 API.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client authenticated with the given API key.
func NewClient(apiKey string) *Client {
	return &Client{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// NewClientWithBaseURL creates a client against a non-default endpoint.
// Used by tests to point the client at a local server.
func NewClientWithBaseURL(apiKey, baseURL string) *Client {
	c := NewClient(apiKey)
	c.baseURL = baseURL
	return c
}

// APIError is the provider's error document ({status, title, detail}).
type APIError struct {
	Status int    `json:"status"`
	Title  string `json:"title"`
	Detail string `json:"detail"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("mollie API error: %s (status %d): %s", e.Title, e.Status, e.Detail)
}

// ListCustomers returns a single page of customers, at most limit items.
// It deliberately does not follow pagination links: customers beyond the
// first page are invisible to matching.
func (c *Client) ListCustomers(ctx context.Context, limit int) ([]Customer, error) {
	var env customersEnvelope
	path := "/customers?limit=" + strconv.Itoa(limit)
	if err := c.do(ctx, http.MethodGet, path, nil, &env); err != nil {
		return nil, err
	}
	return env.Embedded.Customers, nil
}

// CreateCustomer creates a new customer.
func (c *Client) CreateCustomer(ctx context.Context, req CreateCustomerRequest) (*Customer, error) {
	var customer Customer
	if err := c.do(ctx, http.MethodPost, "/customers", req, &customer); err != nil {
		return nil, err
	}
	return &customer, nil
}

// DeleteCustomer removes a customer from the provider. This is a maintenance
// operation only; the reconciliation pipeline never deletes anything.
func (c *Client) DeleteCustomer(ctx context.Context, customerID string) error {
	return c.do(ctx, http.MethodDelete, "/customers/"+customerID, nil, nil)
}

// ListMandates returns the mandates of one customer.
func (c *Client) ListMandates(ctx context.Context, customerID string) ([]Mandate, error) {
	var env mandatesEnvelope
	if err := c.do(ctx, http.MethodGet, "/customers/"+customerID+"/mandates", nil, &env); err != nil {
		return nil, err
	}
	return env.Embedded.Mandates, nil
}

// CreateMandate issues a direct-debit mandate for a customer.
func (c *Client) CreateMandate(ctx context.Context, customerID string, req CreateMandateRequest) (*Mandate, error) {
	var mandate Mandate
	if err := c.do(ctx, http.MethodPost, "/customers/"+customerID+"/mandates", req, &mandate); err != nil {
		return nil, err
	}
	return &mandate, nil
}

// ListSubscriptions returns the subscriptions of one customer.
func (c *Client) ListSubscriptions(ctx context.Context, customerID string) ([]Subscription, error) {
	var env subscriptionsEnvelope
	if err := c.do(ctx, http.MethodGet, "/customers/"+customerID+"/subscriptions", nil, &env); err != nil {
		return nil, err
	}
	return env.Embedded.Subscriptions, nil
}

// CreateSubscription creates a recurring payment instruction for a customer.
func (c *Client) CreateSubscription(ctx context.Context, customerID string, req CreateSubscriptionRequest) (*Subscription, error) {
	var sub Subscription
	if err := c.do(ctx, http.MethodPost, "/customers/"+customerID+"/subscriptions", req, &sub); err != nil {
		return nil, err
	}
	return &sub, nil
}

// do performs one API call. A nil body sends no payload; a nil out discards
// the response body after the status check.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if method == http.MethodPost {
		req.Header.Set("Idempotency-Key", uuid.NewString())
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr APIError
		if err := json.Unmarshal(respBody, &apiErr); err == nil && apiErr.Title != "" {
			return &apiErr
		}
		return fmt.Errorf("mollie API returned status %d: %s", resp.StatusCode, string(respBody))
	}

	if out == nil || len(respBody) == 0 {
		return nil
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	return nil
}
