// Package rest is the daemon's client for the desk server's HTTP API:
// conversation snapshots, sends, read receipts and search. Records it
// returns are merged into the canonical list with the same idempotent
// rule as socket events — the two delivery paths overlap by design.
package rest

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/deskwire/deskd/internal/auth"
	"github.com/deskwire/deskd/internal/wire"
)

// Client talks to the desk server's REST API.
type Client struct {
	http   *resty.Client
	logger *zap.Logger
}

// New creates a REST client for the given base URL. The token source is
// consulted per request so a refreshed token takes effect immediately.
func New(baseURL string, tokens auth.Source, logger *zap.Logger) *Client {
	hc := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(15 * time.Second).
		SetHeader("Accept", "application/json")

	hc.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		req.SetAuthToken(tokens.Token())
		return nil
	})

	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{http: hc, logger: logger}
}

// Snapshot is the initial conversation state for one contact.
type Snapshot struct {
	ContactID    string         `json:"contact_id"`
	ContactName  string         `json:"contact_name"`
	Messages     []wire.Message `json:"messages"`
	Tickets      []wire.Ticket  `json:"tickets"`
	LastReadAtMs int64          `json:"last_read_at_unix_ms"`
}

// SendRequest is the body for sending a message. CorrelationID is
// client-generated; the server echoes it back on both the REST response
// and the message_sent socket frame so the pending entity can be matched
// without content heuristics.
type SendRequest struct {
	CorrelationID string `json:"correlation_id"`
	TicketID      string `json:"ticket_id,omitempty"`
	Body          string `json:"body"`
	ReplyToID     string `json:"reply_to_id,omitempty"`
}

// Conversation fetches the snapshot for a contact.
func (c *Client) Conversation(ctx context.Context, contactID string) (*Snapshot, error) {
	var snap Snapshot
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&snap).
		Get(fmt.Sprintf("/api/contacts/%s/conversation", contactID))
	if err != nil {
		return nil, fmt.Errorf("fetch conversation %s: %w", contactID, err)
	}
	if err := c.checkStatus(resp); err != nil {
		return nil, err
	}
	return &snap, nil
}

// SendMessage posts a new outgoing message and returns the confirmed record.
func (c *Client) SendMessage(ctx context.Context, contactID string, req SendRequest) (*wire.Message, error) {
	var msg wire.Message
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&msg).
		Post(fmt.Sprintf("/api/contacts/%s/messages", contactID))
	if err != nil {
		return nil, fmt.Errorf("send message to %s: %w", contactID, err)
	}
	if err := c.checkStatus(resp); err != nil {
		return nil, err
	}
	return &msg, nil
}

// MarkRead reports the operator has read the contact's conversation.
func (c *Client) MarkRead(ctx context.Context, contactID string) error {
	resp, err := c.http.R().
		SetContext(ctx).
		Post(fmt.Sprintf("/api/contacts/%s/read", contactID))
	if err != nil {
		return fmt.Errorf("mark read %s: %w", contactID, err)
	}
	return c.checkStatus(resp)
}

// SearchMessages queries the server-side message search.
func (c *Client) SearchMessages(ctx context.Context, query, contactID string, limit int) ([]wire.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	var out struct {
		Messages []wire.Message `json:"messages"`
	}
	req := c.http.R().
		SetContext(ctx).
		SetQueryParam("q", query).
		SetQueryParam("limit", fmt.Sprintf("%d", limit)).
		SetResult(&out)
	if contactID != "" {
		req.SetQueryParam("contact_id", contactID)
	}
	resp, err := req.Get("/api/messages/search")
	if err != nil {
		return nil, fmt.Errorf("search messages: %w", err)
	}
	if err := c.checkStatus(resp); err != nil {
		return nil, err
	}
	return out.Messages, nil
}

func (c *Client) checkStatus(resp *resty.Response) error {
	switch {
	case resp.StatusCode() == http.StatusUnauthorized:
		return &auth.Error{Reason: "api returned 401"}
	case resp.IsError():
		c.logger.Warn("api request failed",
			zap.String("method", resp.Request.Method),
			zap.String("url", resp.Request.URL),
			zap.Int("status", resp.StatusCode()))
		return fmt.Errorf("api %s %s: status %d", resp.Request.Method, resp.Request.URL, resp.StatusCode())
	default:
		return nil
	}
}
