package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPClient talks to a bot-API style gateway over HTTP. It is the production
// implementation of Client; tests use in-memory fakes instead.
type HTTPClient struct {
	baseURL string
	token   string
	client  *http.Client
}

func NewHTTPClient(baseURL, token string) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

type sendMessageRequest struct {
	ChatID   int64    `json:"chat_id"`
	Text     string   `json:"text"`
	Keyboard Keyboard `json:"keyboard,omitempty"`
}

type sendMessageResponse struct {
	MessageID int64 `json:"message_id"`
}

type editMessageRequest struct {
	ChatID    int64    `json:"chat_id"`
	MessageID int64    `json:"message_id"`
	Text      string   `json:"text"`
	Keyboard  Keyboard `json:"keyboard,omitempty"`
}

type deleteMessageRequest struct {
	ChatID    int64 `json:"chat_id"`
	MessageID int64 `json:"message_id"`
}

func (c *HTTPClient) SendMessage(ctx context.Context, chatID int64, text string, kb Keyboard) (Handle, error) {
	var resp sendMessageResponse
	err := c.call(ctx, "sendMessage", sendMessageRequest{ChatID: chatID, Text: text, Keyboard: kb}, &resp)
	if err != nil {
		return Handle{}, err
	}
	return Handle{ChatID: chatID, MessageID: resp.MessageID}, nil
}

func (c *HTTPClient) EditMessage(ctx context.Context, h Handle, text string, kb Keyboard) error {
	return c.call(ctx, "editMessage", editMessageRequest{
		ChatID: h.ChatID, MessageID: h.MessageID, Text: text, Keyboard: kb,
	}, nil)
}

func (c *HTTPClient) DeleteMessage(ctx context.Context, h Handle) error {
	return c.call(ctx, "deleteMessage", deleteMessageRequest{ChatID: h.ChatID, MessageID: h.MessageID}, nil)
}

func (c *HTTPClient) call(ctx context.Context, method string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshaling %s request: %w", method, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+method, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("creating %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("executing %s: %w", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s: gateway returned %d: %s", method, resp.StatusCode, data)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decoding %s response: %w", method, err)
		}
	}
	return nil
}
