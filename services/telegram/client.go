// Package telegram is the chat transport: a Bot API client and a bot that
// feeds each user's messages to the assistant in arrival order.
package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"
)

const defaultBaseURL = "https://api.telegram.org"

// User is the sender of a message
type User struct {
	ID        int64  `json:"id"`
	Username  string `json:"username,omitempty"`
	FirstName string `json:"first_name,omitempty"`
}

// Chat is the conversation a message belongs to
type Chat struct {
	ID int64 `json:"id"`
}

// Message is an incoming or sent chat message
type Message struct {
	MessageID int64  `json:"message_id"`
	From      *User  `json:"from,omitempty"`
	Chat      Chat   `json:"chat"`
	Text      string `json:"text,omitempty"`
}

// Update is one event from getUpdates
type Update struct {
	UpdateID int64    `json:"update_id"`
	Message  *Message `json:"message,omitempty"`
}

// apiResponse is the Bot API envelope
type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	ErrorCode   int             `json:"error_code,omitempty"`
	Description string          `json:"description,omitempty"`
}

// APIError is a refusal reported by the Bot API
type APIError struct {
	Method      string
	Code        int
	Description string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram %s failed (%d): %s", e.Method, e.Code, e.Description)
}

// Client calls the Telegram Bot API
type Client struct {
	client      *resty.Client
	pollTimeout time.Duration
	sendLimiter *rate.Limiter
}

// ClientOption configures a Client
type ClientOption func(*Client)

// WithSendRate paces sendMessage and editMessageText to perSecond calls.
// The Bot API starts refusing bursts above roughly 30 messages a second.
func WithSendRate(perSecond float64) ClientOption {
	return func(c *Client) {
		if perSecond <= 0 {
			c.sendLimiter = nil
			return
		}
		burst := int(perSecond)
		if burst < 1 {
			burst = 1
		}
		c.sendLimiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// NewClient creates a new Client. The HTTP timeout leaves room for a full
// long-poll interval.
func NewClient(baseURL, token string, pollTimeout time.Duration, opts ...ClientOption) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if pollTimeout < 0 {
		pollTimeout = 0
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/") + "/bot" + token).
		SetTimeout(pollTimeout + 10*time.Second).
		SetHeader("Content-Type", "application/json")

	c := &Client{client: client, pollTimeout: pollTimeout}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetUpdates long-polls for messages after offset
func (c *Client) GetUpdates(ctx context.Context, offset int64) ([]Update, error) {
	var updates []Update
	err := c.call(ctx, "getUpdates", map[string]interface{}{
		"offset":          offset,
		"timeout":         int(c.pollTimeout / time.Second),
		"allowed_updates": []string{"message"},
	}, &updates)
	return updates, err
}

// SendMessage posts text to a chat
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string) (*Message, error) {
	if err := c.wait(ctx, "sendMessage"); err != nil {
		return nil, err
	}
	var msg Message
	if err := c.call(ctx, "sendMessage", map[string]interface{}{
		"chat_id": chatID,
		"text":    text,
	}, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// EditMessageText replaces the text of a message the bot sent
func (c *Client) EditMessageText(ctx context.Context, chatID, messageID int64, text string) error {
	if err := c.wait(ctx, "editMessageText"); err != nil {
		return err
	}
	return c.call(ctx, "editMessageText", map[string]interface{}{
		"chat_id":    chatID,
		"message_id": messageID,
		"text":       text,
	}, nil)
}

func (c *Client) wait(ctx context.Context, method string) error {
	if c.sendLimiter == nil {
		return nil
	}
	if err := c.sendLimiter.Wait(ctx); err != nil {
		return fmt.Errorf("telegram %s: %w", method, err)
	}
	return nil
}

func (c *Client) call(ctx context.Context, method string, body interface{}, result interface{}) error {
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(body).
		Post("/" + method)
	if err != nil {
		return fmt.Errorf("telegram %s: %w", method, err)
	}

	var envelope apiResponse
	if err := json.Unmarshal(resp.Body(), &envelope); err != nil {
		return fmt.Errorf("telegram %s: unexpected response (status %d): %w", method, resp.StatusCode(), err)
	}
	if !envelope.OK {
		return &APIError{Method: method, Code: envelope.ErrorCode, Description: envelope.Description}
	}
	if result == nil || len(envelope.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(envelope.Result, result); err != nil {
		return fmt.Errorf("telegram %s: failed to decode result: %w", method, err)
	}
	return nil
}
