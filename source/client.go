package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"leadboard/models"
	"leadboard/utils"
)

// Client talks to the upstream REST service.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	retry   *utils.RetryConfig
	logger  *utils.Logger
}

// NewClient creates an upstream client. Only account listing is retried;
// page requests are single-shot.
func NewClient(baseURL, token string, timeout time.Duration, maxRetries int, logger *utils.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: timeout},
		retry: &utils.RetryConfig{
			MaxAttempts: maxRetries,
			BaseDelay:   500 * time.Millisecond,
			Logger:      logger,
		},
		logger: logger,
	}
}

type accountsResponse struct {
	Items []models.Account `json:"items"`
}

// ListAccounts fetches the account list.
func (c *Client) ListAccounts(ctx context.Context) ([]models.Account, error) {
	var accounts []models.Account
	err := c.retry.Do(ctx, "list-accounts", func(ctx context.Context) error {
		var resp accountsResponse
		if err := c.getJSON(ctx, c.baseURL+"/accounts", &resp); err != nil {
			return err
		}
		accounts = resp.Items
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAccountsUnavailable, err)
	}
	c.logger.Debug("[upstream] %d accounts listed", len(accounts))
	return accounts, nil
}

// FetchPage requests one page of an account's collection.
func (c *Client) FetchPage(ctx context.Context, req PageRequest) (*models.Page, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(req.Page))
	q.Set("limit", strconv.Itoa(req.Limit))
	endpoint := fmt.Sprintf("%s/accounts/%s/%ss?%s",
		c.baseURL, url.PathEscape(req.AccountID), req.Kind, q.Encode())

	var page models.Page
	if err := c.getJSON(ctx, endpoint, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("upstream: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("upstream: GET %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Code: resp.StatusCode, URL: endpoint, Body: strings.TrimSpace(string(body))}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("upstream: decode %s: %w", endpoint, err)
	}
	return nil
}

// StatusError is a non-200 upstream response.
type StatusError struct {
	Code int
	URL  string
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("upstream: GET %s: status %d", e.URL, e.Code)
	}
	return fmt.Sprintf("upstream: GET %s: status %d: %s", e.URL, e.Code, e.Body)
}
