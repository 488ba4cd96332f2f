package translate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const googleEndpoint = "https://translate.googleapis.com/translate_a/single"

// GoogleTranslator calls the public gtx endpoint. It needs no key.
type GoogleTranslator struct {
	baseURL string
	client  *http.Client
	log     *slog.Logger
}

func NewGoogleTranslator(timeout time.Duration) *GoogleTranslator {
	return &GoogleTranslator{
		baseURL: googleEndpoint,
		client:  &http.Client{Timeout: timeout},
		log:     slog.Default(),
	}
}

// WithBaseURL points the translator at another endpoint, e.g. an httptest server.
func (g *GoogleTranslator) WithBaseURL(u string) *GoogleTranslator {
	g.baseURL = u
	return g
}

func (g *GoogleTranslator) Name() string { return "google" }

func googleCode(l Lang) string {
	if l == LangZH {
		return "zh-CN"
	}
	return string(l)
}

func (g *GoogleTranslator) Translate(ctx context.Context, text string, lang Lang) (string, error) {
	params := url.Values{}
	params.Set("client", "gtx")
	params.Set("sl", "auto")
	params.Set("tl", googleCode(lang))
	params.Set("dt", "t")
	params.Set("q", text)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("HTTP error: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			g.log.Warn("failed to close response body", "error", closeErr)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("google translate returned status: %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("error reading response: %w", err)
	}

	out, err := parseGoogleTranslateResponse(body)
	if err != nil {
		return "", fmt.Errorf("error parsing response: %w", err)
	}
	return strings.TrimSpace(out), nil
}

// parseGoogleTranslateResponse joins the translated segments of the nested
// array the endpoint returns.
func parseGoogleTranslateResponse(body []byte) (string, error) {
	var response []interface{}
	if err := json.Unmarshal(body, &response); err != nil {
		return "", err
	}
	if len(response) == 0 {
		return "", errors.New("empty response from Google Translate")
	}
	segments, ok := response[0].([]interface{})
	if !ok {
		return "", errors.New("unexpected response format")
	}

	var result strings.Builder
	for _, seg := range segments {
		if parts, ok := seg.([]interface{}); ok && len(parts) > 0 {
			if s, ok := parts[0].(string); ok {
				result.WriteString(s)
			}
		}
	}
	return result.String(), nil
}
