package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"

	"duetto/internal/models"
)

// ChatV1 talks to an OpenAI-style chat completions endpoint.
type ChatV1 struct {
	apiKey  string
	baseURL string
	model   string
	client  *http.Client
}

// NewChatV1 returns nil when apiKey is empty; the provider is then
// disabled rather than failing at request time.
func NewChatV1(apiKey, baseURL, model string) *ChatV1 {
	if apiKey == "" {
		return nil
	}
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &ChatV1{
		apiKey:  apiKey,
		baseURL: baseURL,
		model:   model,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *ChatV1) Name() string { return ProviderChatV1 }

func (c *ChatV1) Analyze(ctx context.Context, alert models.Alert) (string, error) {
	payload := map[string]any{
		"model": c.model,
		"messages": []map[string]string{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": userPrompt(alert)},
		},
		"max_tokens":  300,
		"temperature": 0.3,
	}
	result, err := postJSON(ctx, c.client, c.baseURL+"/chat/completions", payload, map[string]string{
		"Authorization": "Bearer " + c.apiKey,
	})
	if err != nil {
		return "", err
	}

	choices, ok := result["choices"].([]any)
	if !ok || len(choices) == 0 {
		return "", errors.New("chat response has no choices")
	}
	choice, ok := choices[0].(map[string]any)
	if !ok {
		return "", errors.New("unexpected choice shape")
	}
	message, ok := choice["message"].(map[string]any)
	if !ok {
		return "", errors.New("choice has no message")
	}
	content, ok := message["content"].(string)
	if !ok {
		return "", errors.New("message has no content")
	}
	return strings.TrimSpace(content), nil
}

// ChatV2 talks to an Anthropic-style messages endpoint.
type ChatV2 struct {
	apiKey string
	url    string
	model  string
	client *http.Client
}

// NewChatV2 returns nil when apiKey is empty.
func NewChatV2(apiKey, model string) *ChatV2 {
	if apiKey == "" {
		return nil
	}
	if model == "" {
		model = "claude-3-5-haiku-20241022"
	}
	return &ChatV2{
		apiKey: apiKey,
		url:    "https://api.anthropic.com/v1/messages",
		model:  model,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *ChatV2) Name() string { return ProviderChatV2 }

func (c *ChatV2) Analyze(ctx context.Context, alert models.Alert) (string, error) {
	payload := map[string]any{
		"model":      c.model,
		"max_tokens": 300,
		"system":     systemPrompt,
		"messages": []map[string]string{
			{"role": "user", "content": userPrompt(alert)},
		},
	}
	result, err := postJSON(ctx, c.client, c.url, payload, map[string]string{
		"x-api-key":         c.apiKey,
		"anthropic-version": "2023-06-01",
	})
	if err != nil {
		return "", err
	}

	content, ok := result["content"].([]any)
	if !ok || len(content) == 0 {
		return "", errors.New("chat response has no content")
	}
	block, ok := content[0].(map[string]any)
	if !ok {
		return "", errors.New("unexpected content shape")
	}
	text, ok := block["text"].(string)
	if !ok {
		return "", errors.New("content block has no text")
	}
	return strings.TrimSpace(text), nil
}

// postJSON sends the payload and decodes the JSON reply into a generic
// map for the callers' field walks.
func postJSON(ctx context.Context, client *http.Client, url string, payload any, headers map[string]string) (map[string]any, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, "marshal chat payload")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "build chat request")
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "call chat API")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, errors.Errorf("AI API error: HTTP %d", resp.StatusCode)
	}

	var result map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, errors.Wrap(err, "decode chat response")
	}
	return result, nil
}
