package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"test-analyzer/api/internal/oracle"
	"test-analyzer/api/internal/util"
)

type Client struct {
	APIKey string
	Model  string
	httpc  *http.Client
}

func New(key, model string) *Client {
	return &Client{
		APIKey: strings.TrimSpace(key),
		Model:  strings.TrimSpace(model),
		httpc:  &http.Client{Timeout: 60 * time.Second},
	}
}

func (c *Client) Name() string    { return "openai" }
func (c *Client) Available() bool { return c.APIKey != "" }

func (c *Client) Complete(ctx context.Context, system, user string, opts oracle.Options) (string, error) {
	if c.APIKey == "" {
		return "", fmt.Errorf("OPENAI_API_KEY is empty")
	}

	messages := []map[string]any{}
	if system != "" {
		messages = append(messages, map[string]any{"role": "system", "content": system})
	}
	messages = append(messages, map[string]any{"role": "user", "content": user})

	body := map[string]any{
		"model":       c.Model,
		"messages":    messages,
		"temperature": opts.Temperature,
	}
	if opts.JSON {
		body["response_format"] = map[string]any{"type": "json_object"}
	}
	if opts.MaxTokens > 0 {
		body["max_tokens"] = opts.MaxTokens
	}

	payload, _ := json.Marshal(body)
	req, _ := http.NewRequestWithContext(ctx, "POST", "https://api.openai.com/v1/chat/completions", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.APIKey)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		x, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("openai %d: %s", resp.StatusCode, util.Truncate(string(x), 1024))
	}

	var out struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("openai: empty choices")
	}
	return util.StripCodeFences(out.Choices[0].Message.Content), nil
}
