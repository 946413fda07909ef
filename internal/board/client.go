// Package board provides a thin HTTP client for the external work-management
// platform the leads originate from.
package board

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"leadrouting_backend/platform/config"
	"leadrouting_backend/platform/logger"
)

// Item is one raw board item with its typed column values.
type Item struct {
	ID           string                 `json:"id"`
	Name         string                 `json:"name"`
	ColumnValues map[string]interface{} `json:"columnValues"`
}

// User is one platform user from the account directory.
type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// WritebackRequest carries one routing decision to be written to an item.
// Assignee, status and reason land in their mapped columns in a single call.
type WritebackRequest struct {
	BoardID          string `json:"boardId"`
	ItemID           string `json:"itemId"`
	AssigneeColumnID string `json:"assigneeColumnId,omitempty"`
	PersonID         string `json:"personId,omitempty"`
	StatusColumnID   string `json:"statusColumnId,omitempty"`
	StatusLabel      string `json:"statusLabel,omitempty"`
	ReasonColumnID   string `json:"reasonColumnId,omitempty"`
	Reason           string `json:"reason,omitempty"`
}

// APIError is a non-2xx response from the platform. RetryAfter carries the
// Retry-After hint when the platform rate limits us.
type APIError struct {
	StatusCode int
	Message    string
	RetryAfter time.Duration
}

func (e *APIError) Error() string {
	return fmt.Sprintf("board api: status %d: %s", e.StatusCode, e.Message)
}

// Reader fetches items and users from the platform.
type Reader interface {
	GetItem(ctx context.Context, boardID, itemID string) (Item, error)
	ListUsers(ctx context.Context) ([]User, error)
}

// Writer pushes routing decisions to the platform.
type Writer interface {
	ApplyDecision(ctx context.Context, req WritebackRequest) error
	WriteStatus(ctx context.Context, boardID, itemID, statusColumnID, label, reasonColumnID, reason string) error
}

// Client talks to the platform REST API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	log        *logger.Logger
}

// New creates a platform client.
func New(cfg config.BoardConfig, log *logger.Logger) *Client {
	timeout := cfg.GetBoardHTTPTimeout()
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    cfg.GetBoardAPIURL(),
		token:      cfg.GetBoardAPIToken(),
		httpClient: &http.Client{Timeout: timeout},
		log:        log,
	}
}

// GetItem fetches one item with its column values.
func (c *Client) GetItem(ctx context.Context, boardID, itemID string) (Item, error) {
	var item Item
	path := fmt.Sprintf("/boards/%s/items/%s", boardID, itemID)
	if err := c.do(ctx, http.MethodGet, path, nil, &item); err != nil {
		return Item{}, err
	}
	return item, nil
}

// ListUsers fetches the account user directory.
func (c *Client) ListUsers(ctx context.Context) ([]User, error) {
	var users []User
	if err := c.do(ctx, http.MethodGet, "/users", nil, &users); err != nil {
		return nil, err
	}
	return users, nil
}

// ApplyDecision writes assignee, status and reason columns in one call.
func (c *Client) ApplyDecision(ctx context.Context, req WritebackRequest) error {
	path := fmt.Sprintf("/boards/%s/items/%s/columns", req.BoardID, req.ItemID)
	return c.do(ctx, http.MethodPut, path, req, nil)
}

// WriteStatus writes only the status and reason columns, used for the
// best-effort "Pending Approval" marker.
func (c *Client) WriteStatus(ctx context.Context, boardID, itemID, statusColumnID, label, reasonColumnID, reason string) error {
	return c.ApplyDecision(ctx, WritebackRequest{
		BoardID:        boardID,
		ItemID:         itemID,
		StatusColumnID: statusColumnID,
		StatusLabel:    label,
		ReasonColumnID: reasonColumnID,
		Reason:         reason,
	})
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("board request encode: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", c.token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{
			StatusCode: resp.StatusCode,
			Message:    string(msg),
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("board response decode: %w", err)
	}
	return nil
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(header); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return 0
}
