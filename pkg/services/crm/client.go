// Package crm implements the engine's collaborator contracts against the
// surrounding CRM's internal HTTP API.
package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/reachcrm/flowd/pkg/models"
	"github.com/reachcrm/flowd/pkg/protocol"
)

const defaultTimeout = 10 * time.Second

// Client talks to the CRM's internal API. It satisfies both
// protocol.Messenger and protocol.ContactStore.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewClient(baseURL, token string, logger *slog.Logger) *Client {
	return &Client{
		baseURL:    baseURL,
		token:      token,
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     logger.With("module", "crm_client"),
	}
}

var (
	_ protocol.Messenger    = (*Client)(nil)
	_ protocol.ContactStore = (*Client)(nil)
)

type sendMessageRequest struct {
	AccountID   string `json:"account_id"`
	ContactID   string `json:"contact_id"`
	MessageType string `json:"message_type"`
	Content     string `json:"content"`
	MediaURL    string `json:"media_url,omitempty"`
}

type sendMessageResponse struct {
	ID string `json:"id"`
}

func (c *Client) Send(ctx context.Context, accountID, contactID, messageType, content, mediaURL string) (string, error) {
	var resp sendMessageResponse

	err := c.do(ctx, http.MethodPost, "/internal/messages", sendMessageRequest{
		AccountID:   accountID,
		ContactID:   contactID,
		MessageType: messageType,
		Content:     content,
		MediaURL:    mediaURL,
	}, &resp)
	if err != nil {
		return "", fmt.Errorf("failed to send message: %w", err)
	}

	return resp.ID, nil
}

func (c *Client) Contact(ctx context.Context, contactID string) (*models.Contact, error) {
	var contact models.Contact

	err := c.do(ctx, http.MethodGet, "/internal/contacts/"+url.PathEscape(contactID), nil, &contact)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch contact %s: %w", contactID, err)
	}

	return &contact, nil
}

type tagRequest struct {
	Tag    string `json:"tag"`
	TeamID string `json:"team_id"`
}

func (c *Client) AddTag(ctx context.Context, contactID, tag, teamID string) error {
	path := "/internal/contacts/" + url.PathEscape(contactID) + "/tags"

	return c.do(ctx, http.MethodPost, path, tagRequest{Tag: tag, TeamID: teamID}, nil)
}

func (c *Client) RemoveTag(ctx context.Context, contactID, tag, teamID string) error {
	path := "/internal/contacts/" + url.PathEscape(contactID) + "/tags/" + url.PathEscape(tag) +
		"?team_id=" + url.QueryEscape(teamID)

	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

type fieldRequest struct {
	Field  string `json:"field"`
	Value  any    `json:"value"`
	Custom bool   `json:"custom"`
}

func (c *Client) UpdateField(ctx context.Context, contactID, field string, value any) error {
	path := "/internal/contacts/" + url.PathEscape(contactID) + "/fields"

	return c.do(ctx, http.MethodPatch, path, fieldRequest{Field: field, Value: value}, nil)
}

func (c *Client) UpdateCustomField(ctx context.Context, contactID, field string, value any) error {
	path := "/internal/contacts/" + url.PathEscape(contactID) + "/fields"

	return c.do(ctx, http.MethodPatch, path, fieldRequest{Field: field, Value: value, Custom: true}, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader

	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}

		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/json")

	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))

		return fmt.Errorf("%s %s: unexpected status %d: %s", method, path, resp.StatusCode, data)
	}

	if out != nil {
		err = json.NewDecoder(resp.Body).Decode(out)
		if err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}
