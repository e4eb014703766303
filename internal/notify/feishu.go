package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"

	"duetto/internal/models"
)

// RichCard posts alerts to a Feishu incoming webhook as an interactive
// card built from the shared template.
type RichCard struct {
	url    string
	client *http.Client
}

// NewRichCard returns a notifier for a Feishu webhook URL.
func NewRichCard(url string) *RichCard {
	return &RichCard{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (r *RichCard) Name() string { return "feishu" }

func (r *RichCard) Send(ctx context.Context, alert models.Alert) error {
	body, err := json.Marshal(cardPayload(Build(alert)))
	if err != nil {
		return errors.Wrap(err, "marshal feishu card")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "build feishu request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "post feishu card")
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("feishu: HTTP %d", resp.StatusCode)
	}
	return nil
}

func (r *RichCard) Close() error { return nil }

// cardPayload maps the template onto Feishu's interactive card schema:
// a colored header, a lark_md body, one div of key/value fields and a
// button to the source.
func cardPayload(tpl models.NotificationTemplate) map[string]any {
	elements := []any{
		map[string]any{"tag": "div", "text": map[string]any{"tag": "lark_md", "content": tpl.Body}},
	}
	if len(tpl.Fields) > 0 {
		rows := make([]string, len(tpl.Fields))
		for i, f := range tpl.Fields {
			rows[i] = fmt.Sprintf("**%s**: %s", f.Key, f.Value)
		}
		elements = append(elements, map[string]any{
			"tag":  "div",
			"text": map[string]any{"tag": "lark_md", "content": strings.Join(rows, "\n")},
		})
	}
	if tpl.Link != "" {
		label := tpl.LinkText
		if label == "" {
			label = "View source"
		}
		elements = append(elements, map[string]any{
			"tag": "action",
			"actions": []any{map[string]any{
				"tag":  "button",
				"text": map[string]any{"tag": "plain_text", "content": label},
				"url":  tpl.Link,
				"type": "primary",
			}},
		})
	}
	return map[string]any{
		"msg_type": "interactive",
		"card": map[string]any{
			"header": map[string]any{
				"title":    map[string]any{"tag": "plain_text", "content": tpl.Title},
				"template": cardColor(tpl.Level),
			},
			"elements": elements,
		},
	}
}

func cardColor(level models.NotificationLevel) string {
	switch level {
	case models.LevelSuccess:
		return "green"
	case models.LevelWarning:
		return "orange"
	case models.LevelError:
		return "red"
	case models.LevelCritical:
		return "carmine"
	default:
		return "blue"
	}
}
