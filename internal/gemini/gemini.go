// Package gemini wraps the Gemini API for short-text translation.
package gemini

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const DefaultModel = "gemini-1.5-flash"

type Client struct {
	client *genai.Client
	model  string
}

func NewClient(ctx context.Context, apiKey, model string) (*Client, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	if model == "" {
		model = DefaultModel
	}
	return &Client{client: client, model: model}, nil
}

func (c *Client) Close() {
	if c.client != nil {
		c.client.Close()
	}
}

// Translate renders a news headline in the named target language.
func (c *Client) Translate(ctx context.Context, text, targetLanguage string) (string, error) {
	model := c.client.GenerativeModel(c.model)
	model.SetTemperature(0.2)

	resp, err := model.GenerateContent(ctx, genai.Text(Prompt(text, targetLanguage)))
	if err != nil {
		return "", fmt.Errorf("failed to generate content: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("no response from Gemini")
	}

	var raw strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if t, ok := p.(genai.Text); ok {
			raw.WriteString(string(t))
		}
	}
	return ParseResponse(raw.String())
}

// Prompt builds the translation instruction for one headline.
func Prompt(text, targetLanguage string) string {
	return fmt.Sprintf(`Translate this Malaysian news headline into %s.

Rules:
- Keep names of people, places and organisations as they are commonly written in %s.
- Do not add explanations, notes or quotes.
- Answer with exactly one line in the form: TRANSLATION: <headline>

Headline: %s`, targetLanguage, targetLanguage, text)
}

var labelPattern = regexp.MustCompile(`(?i)^\s*(TRANSLATION|TERJEMAHAN|翻译)\s*[:：]\s*`)

// ParseResponse extracts the labelled line; without a label the first
// non-empty line is used.
func ParseResponse(response string) (string, error) {
	var fallback string
	for _, raw := range strings.Split(response, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		if labelPattern.MatchString(line) {
			if out := strings.TrimSpace(labelPattern.ReplaceAllString(line, "")); out != "" {
				return out, nil
			}
			continue
		}
		if fallback == "" {
			fallback = line
		}
	}
	if fallback == "" {
		return "", fmt.Errorf("could not parse Gemini response: empty")
	}
	return fallback, nil
}
