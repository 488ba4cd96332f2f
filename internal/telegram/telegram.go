// Package telegram sends operator alerts through the Telegram Bot API.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/deusflow/sarawaknews/internal/retry"
)

const (
	DefaultBaseURL = "https://api.telegram.org"
	// Telegram rejects messages above 4096 characters.
	maxMessageRunes = 4000
)

type Client struct {
	token   string
	chatID  string
	baseURL string
	http    *http.Client
	retry   retry.Config
	log     *slog.Logger
}

func New(token, chatID string) *Client {
	return &Client{
		token:   token,
		chatID:  chatID,
		baseURL: DefaultBaseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
		retry:   retry.Config{MaxAttempts: 3, Delay: 2 * time.Second, Backoff: true},
		log:     slog.Default(),
	}
}

// WithBaseURL points the client at another API host, used by tests.
func (c *Client) WithBaseURL(u string) *Client {
	c.baseURL = u
	return c
}

func (c *Client) WithRetry(cfg retry.Config) *Client {
	c.retry = cfg
	return c
}

// SendMessage posts an HTML-formatted message to the configured chat, retrying
// transient failures with backoff. 4xx responses other than 429 are not retried.
func (c *Client) SendMessage(ctx context.Context, text string) error {
	if r := []rune(text); len(r) > maxMessageRunes {
		text = string(r[:maxMessageRunes])
	}

	attempt := 0
	err := retry.WithRetry(ctx, c.retry, func() error {
		attempt++
		err := c.sendOnce(ctx, text)
		if err != nil {
			c.log.Warn("telegram send failed", "attempt", attempt, "error", err)
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("telegram sendMessage: %w", err)
	}
	c.log.Debug("telegram message sent", "attempt", attempt)
	return nil
}

func (c *Client) sendOnce(ctx context.Context, text string) error {
	payload := map[string]any{
		"chat_id":                  c.chatID,
		"text":                     text,
		"parse_mode":               "HTML",
		"disable_web_page_preview": true,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return retry.Permanent(fmt.Errorf("encode payload: %w", err))
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", c.baseURL, c.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return retry.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	switch {
	case resp.StatusCode == http.StatusOK:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return fmt.Errorf("telegram API error: status %d", resp.StatusCode)
	default:
		return retry.Permanent(fmt.Errorf("telegram API error: status %d", resp.StatusCode))
	}
}
