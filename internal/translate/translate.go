// Package translate turns English headlines into Chinese and Malay titles and
// runs the backfill over articles that are still missing them.
package translate

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Lang is a target language code as stored on articles.
type Lang string

const (
	LangZH Lang = "zh"
	LangMS Lang = "ms"
)

// Targets are the languages every article is backfilled into.
var Targets = []Lang{LangZH, LangMS}

// Name is the English language name used in AI prompts.
func (l Lang) Name() string {
	switch l {
	case LangZH:
		return "Simplified Chinese"
	case LangMS:
		return "Malay"
	default:
		return string(l)
	}
}

// Translator renders text in lang. Implementations must be safe for
// concurrent use.
type Translator interface {
	Translate(ctx context.Context, text string, lang Lang) (string, error)
	Name() string
}

// Chain tries each translator in order and returns the first non-empty result.
type Chain []Translator

func (c Chain) Name() string {
	names := make([]string, 0, len(c))
	for _, t := range c {
		names = append(names, t.Name())
	}
	return "chain(" + strings.Join(names, ",") + ")"
}

func (c Chain) Translate(ctx context.Context, text string, lang Lang) (string, error) {
	if len(c) == 0 {
		return "", errors.New("no translators configured")
	}
	var errs []error
	for _, t := range c {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		out, err := t.Translate(ctx, text, lang)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", t.Name(), err))
			continue
		}
		if out = SanitizeAIText(out); out != "" {
			return out, nil
		}
		errs = append(errs, fmt.Errorf("%s: empty translation", t.Name()))
	}
	return "", errors.Join(errs...)
}

var (
	parenNote   = regexp.MustCompile(`(?is)\(\s*(note|catatan|注)\s*[:：].*?\)`)
	bracketNote = regexp.MustCompile(`(?is)\[\s*(note|catatan|注)\s*[:：].*?\]`)
	lineNote    = regexp.MustCompile(`(?im)^\s*(note|catatan|注)\s*[:：].*$`)
	labelPrefix = regexp.MustCompile(`(?i)^\s*(translation|terjemahan|翻译)\s*[:：]\s*`)
	spaces      = regexp.MustCompile(`[ \t]+`)
)

// SanitizeAIText strips the disclaimers and labels language models like to
// add around a translation.
func SanitizeAIText(s string) string {
	s = parenNote.ReplaceAllString(s, "")
	s = bracketNote.ReplaceAllString(s, "")
	s = lineNote.ReplaceAllString(s, "")

	var lines []string
	for _, l := range strings.Split(s, "\n") {
		l = strings.TrimSpace(spaces.ReplaceAllString(l, " "))
		l = labelPrefix.ReplaceAllString(l, "")
		if l != "" {
			lines = append(lines, l)
		}
	}
	out := strings.Join(lines, " ")
	return strings.Trim(out, "\"'“”「」 ")
}
