package translate

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
)

type OpenAITranslator struct {
	client *openai.Client
	model  string
}

// NewOpenAITranslator builds a translator on the chat completions API.
// baseURL may be empty for the public endpoint.
func NewOpenAITranslator(apiKey, baseURL string) *OpenAITranslator {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAITranslator{client: openai.NewClientWithConfig(cfg), model: openai.GPT4oMini}
}

func (o *OpenAITranslator) Name() string { return "openai" }

func (o *OpenAITranslator) Translate(ctx context.Context, text string, lang Lang) (string, error) {
	prompt := fmt.Sprintf(`Translate the following Malaysian news headline into %s.
Keep the meaning and journalistic tone of the original.
Keep names of people, places and organisations in their usual local form.
Answer with the translated headline only, without additional comments.

Headline:
%s`, lang.Name(), text)

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxCompletionTokens: 200,
		Temperature:         0.2,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no response from OpenAI")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
