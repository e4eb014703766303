package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"

	"duetto/internal/models"
)

// ChatBot delivers alerts as markdown messages through the Telegram
// bot API.
type ChatBot struct {
	chatID  string
	baseURL string
	client  *http.Client
}

// NewChatBot returns a notifier posting to the bot identified by token.
func NewChatBot(token, chatID string) *ChatBot {
	return &ChatBot{
		chatID:  chatID,
		baseURL: "https://api.telegram.org/bot" + token,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *ChatBot) Name() string { return "telegram" }

// Send posts the rendered markdown message to the configured chat.
func (c *ChatBot) Send(ctx context.Context, alert models.Alert) error {
	payload := map[string]any{
		"chat_id":                  c.chatID,
		"text":                     RenderTelegram(alert),
		"parse_mode":               "Markdown",
		"disable_web_page_preview": false,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "marshal telegram payload")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/sendMessage", bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "build telegram request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "post telegram message")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return errors.Errorf("telegram error: %s", strings.TrimSpace(string(msg)))
	}
	log.Printf("Sent alert to Telegram: %s", alert.Title)
	return nil
}

// Probe calls getMe so a bad token shows up in the logs at startup.
func (c *ChatBot) Probe(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/getMe", nil)
	if err != nil {
		return errors.Wrap(err, "build getMe request")
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "call getMe")
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("getMe: HTTP %d", resp.StatusCode)
	}
	return nil
}

func (c *ChatBot) Close() error { return nil }
