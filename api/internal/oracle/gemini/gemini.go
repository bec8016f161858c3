package gemini

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"test-analyzer/api/internal/oracle"
	"test-analyzer/api/internal/util"
)

type Client struct {
	APIKey string
	Model  string
}

func New(key, model string) *Client {
	return &Client{
		APIKey: strings.TrimSpace(key),
		Model:  strings.TrimSpace(model),
	}
}

func (c *Client) Name() string    { return "gemini" }
func (c *Client) Available() bool { return c.APIKey != "" }

func (c *Client) Complete(ctx context.Context, system, user string, opts oracle.Options) (string, error) {
	if c.APIKey == "" {
		return "", fmt.Errorf("GEMINI_API_KEY is empty")
	}
	cl, err := genai.NewClient(ctx, option.WithAPIKey(c.APIKey))
	if err != nil {
		return "", err
	}
	defer cl.Close()

	m := cl.GenerativeModel(c.Model)
	temp := opts.Temperature
	m.GenerationConfig = genai.GenerationConfig{
		Temperature: &temp,
	}
	if opts.JSON {
		m.GenerationConfig.ResponseMIMEType = "application/json"
	}
	if opts.MaxTokens > 0 {
		mt := int32(opts.MaxTokens)
		m.GenerationConfig.MaxOutputTokens = &mt
	}
	if system != "" {
		m.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(system)},
		}
	}

	resp, err := m.GenerateContent(ctx, genai.Text(user))
	if err != nil {
		return "", err
	}
	return util.StripCodeFences(firstText(resp)), nil
}

func firstText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	var b strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, p := range cand.Content.Parts {
			if t, ok := p.(genai.Text); ok {
				b.WriteString(string(t))
			}
		}
		break
	}
	return b.String()
}
