// Package telegram is a minimal Bot API client covering the calls the
// service needs: sending messages and managing the webhook.
package telegram

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/posterwatch/posterwatch/pkg/logger"
)

const defaultAPIBase = "https://api.telegram.org"

// Client talks to the Telegram Bot API.
type Client struct {
	client  *http.Client
	baseURL string
	token   string
	log     *logger.Logger
}

// NewClient constructs a client for the given bot token.
func NewClient(client *http.Client, token string, log *logger.Logger) (*Client, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, fmt.Errorf("bot token required")
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if log == nil {
		log = logger.NewDefault("telegram")
	}
	return &Client{client: client, baseURL: defaultAPIBase, token: token, log: log}, nil
}

// SetBaseURL points the client at a different API host. Tests use this.
func (c *Client) SetBaseURL(base string) {
	c.baseURL = strings.TrimRight(base, "/")
}

func (c *Client) call(ctx context.Context, method string, params url.Values) (gjson.Result, error) {
	endpoint := fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(params.Encode()))
	if err != nil {
		return gjson.Result{}, fmt.Errorf("build %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("%s: %w", method, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("read %s response: %w", method, err)
	}

	parsed := gjson.ParseBytes(body)
	if !parsed.Get("ok").Bool() {
		desc := parsed.Get("description").String()
		if desc == "" {
			desc = fmt.Sprintf("status %d", resp.StatusCode)
		}
		return gjson.Result{}, fmt.Errorf("%s failed: %s", method, desc)
	}
	return parsed.Get("result"), nil
}

// SendMessage delivers an HTML-formatted message to a chat.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string) error {
	params := url.Values{}
	params.Set("chat_id", strconv.FormatInt(chatID, 10))
	params.Set("text", text)
	params.Set("parse_mode", "HTML")
	params.Set("disable_web_page_preview", "true")

	_, err := c.call(ctx, "sendMessage", params)
	return err
}

// SetWebhook registers the webhook URL with Telegram.
func (c *Client) SetWebhook(ctx context.Context, webhookURL string) error {
	params := url.Values{}
	params.Set("url", webhookURL)

	_, err := c.call(ctx, "setWebhook", params)
	return err
}

// DeleteWebhook removes the registered webhook.
func (c *Client) DeleteWebhook(ctx context.Context) error {
	_, err := c.call(ctx, "deleteWebhook", url.Values{})
	return err
}

// GetMe returns the bot's username, verifying the token in the process.
func (c *Client) GetMe(ctx context.Context) (string, error) {
	result, err := c.call(ctx, "getMe", url.Values{})
	if err != nil {
		return "", err
	}
	return result.Get("username").String(), nil
}
