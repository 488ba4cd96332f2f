package translate

import (
	"context"
)

// GeminiClient is the subset of gemini.Client used here.
type GeminiClient interface {
	Translate(ctx context.Context, text, targetLanguage string) (string, error)
}

type GeminiTranslator struct {
	client GeminiClient
}

func NewGeminiTranslator(c GeminiClient) *GeminiTranslator {
	return &GeminiTranslator{client: c}
}

func (g *GeminiTranslator) Name() string { return "gemini" }

func (g *GeminiTranslator) Translate(ctx context.Context, text string, lang Lang) (string, error) {
	return g.client.Translate(ctx, text, lang.Name())
}
