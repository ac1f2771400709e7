// Package client is a small REST client for the folio backend. It is
// what the browser frontend does after a mint: record the transaction,
// push the EPUB, and read back a recipient's holdings.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"folio/internal/server/database"
)

// APIError is a non-2xx response from the backend.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

// CreateItemParams is the body of an item-create call, using the wire
// field names the backend expects.
type CreateItemParams struct {
	TokenID          int64  `json:"token_id"`
	Price            string `json:"price"`
	Recipient        string `json:"recipient"`
	RoyaltyRecipient string `json:"royaltyRecipient"`
	RoyaltyValue     int    `json:"royaltyValue"`
	MetadataURI      string `json:"metadataUri"`
	Timestamp        string `json:"timestamp"`
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.http = h
		}
	}
}

// WithMaxAttempts sets how many times read calls are tried.
func WithMaxAttempts(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxAttempts = n
		}
	}
}

// Client talks to a running folio server. Reads are retried up to
// maxAttempts with doubling backoff; writes are never retried, since a
// repeated create is not idempotent.
type Client struct {
	baseURL     string
	http        *http.Client
	maxAttempts int
	baseDelay   time.Duration
}

// New creates a Client for the given server base URL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		http:        &http.Client{Timeout: 30 * time.Second},
		maxAttempts: 3,
		baseDelay:   250 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CreateItem records a minted item on the backend.
func (c *Client) CreateItem(ctx context.Context, params CreateItemParams) (*database.Item, error) {
	body, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("failed to encode item: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/items", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	item := &database.Item{}
	if err := c.do(req, item); err != nil {
		return nil, err
	}
	return item, nil
}

// DeleteItem removes an item record and returns the deleted row.
func (c *Client) DeleteItem(ctx context.Context, tokenID int64) (*database.Item, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete,
		fmt.Sprintf("%s/api/items/%d", c.baseURL, tokenID), nil)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Message string         `json:"message"`
		Item    *database.Item `json:"item"`
	}
	if err := c.do(req, &resp); err != nil {
		return nil, err
	}
	return resp.Item, nil
}

// ListItems fetches all items owned by a recipient address. The read
// is retried with backoff on transport errors and 5xx responses.
func (c *Client) ListItems(ctx context.Context, recipient string) ([]*database.Item, error) {
	url := c.baseURL + "/api/items/" + recipient

	var lastErr error
	delay := c.baseDelay
	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}

		var items []*database.Item
		err = c.do(req, &items)
		if err == nil {
			return items, nil
		}
		if !retryable(err) {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("list items failed after %d attempts: %w", c.maxAttempts, lastErr)
}

// UploadEpub sends the file at path as the EPUB for the given token id
// and returns the serving path reported by the backend.
func (c *Client) UploadEpub(ctx context.Context, tokenID int64, path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer file.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("epub", filepath.Base(path))
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(part, file); err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/upload-epub/"+strconv.FormatInt(tokenID, 10), &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var resp struct {
		Message  string `json:"message"`
		FilePath string `json:"filePath"`
	}
	if err := c.do(req, &resp); err != nil {
		return "", err
	}
	return resp.FilePath, nil
}

// do executes the request and decodes a 2xx JSON body into out.
func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return &APIError{Status: resp.StatusCode, Message: errorMessage(resp.Body)}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// errorMessage pulls the error or message field out of a failure body.
func errorMessage(r io.Reader) string {
	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(r).Decode(&body); err != nil {
		return "unreadable error body"
	}
	if body.Error != "" {
		return body.Error
	}
	return body.Message
}

// retryable reports whether a call is worth repeating: transport
// failures and 5xx responses are, client errors are not.
func retryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status >= 500
	}
	return true
}
