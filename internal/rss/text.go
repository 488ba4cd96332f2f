package rss

import (
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

// trailers appended to descriptions by common publishing platforms; the
// snippet is cut at the first one found
var snippetTrailers = []string{
	"Continue reading",
	"Read more »",
	"Read More",
	"Baca lagi",
	"[…]",
	"[...]",
}

// PlainText strips HTML from a feed field. Input that is not HTML comes back
// with whitespace collapsed.
func PlainText(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if strings.ContainsAny(s, "<&") {
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
		if err == nil {
			doc.Find("script, style, iframe, figure, img").Remove()
			doc.Find("p, br, div, li, h1, h2, h3, h4").AfterHtml(" ")
			s = doc.Find("body").Text()
		}
	}
	return collapseSpace(s)
}

// Snippet turns a description into plain text without platform trailers,
// bounded to MaxSnippetRunes.
func Snippet(s string) string {
	s = PlainText(s)
	// WordPress: "The post <title> appeared first on <site>."
	if i := strings.Index(s, " appeared first on "); i >= 0 {
		if j := strings.LastIndex(s[:i], "The post "); j >= 0 {
			s = s[:j]
		} else {
			s = s[:i]
		}
	}
	for _, t := range snippetTrailers {
		if i := strings.Index(s, t); i >= 0 {
			s = s[:i]
		}
	}
	return Truncate(strings.TrimSpace(s), MaxSnippetRunes)
}

// Truncate cuts s to at most n runes including the trailing ellipsis,
// preferring a word boundary.
func Truncate(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	cut := string(runes[:n-1])
	if i := strings.LastIndexByte(cut, ' '); i > len(cut)/2 {
		cut = cut[:i]
	}
	return strings.TrimSpace(cut) + "…"
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
